package chunk

// format is the 2-bit chunk type carried in the basic header.
type format uint8

const (
	format0 format = iota // 11-byte header: absolute timestamp
	format1               // 7-byte header: timestamp delta, same stream id
	format2               // 3-byte header: timestamp delta only
	format3               // no header: repeat of the previous chunk
)

// messageHeaderSize is indexed by format.
var messageHeaderSize = [4]int{11, 7, 3, 0}

// recvContext tracks, per CSID, the state needed to interpret a
// successor chunk's abbreviated header and to reassemble its message.
type recvContext struct {
	csid uint32

	lastTimestamp  uint32
	lastDelta      uint32
	lastLength     uint32
	lastType       MessageType
	lastStreamID   uint32
	extendedTSUsed bool

	// partial message currently being reassembled on this CSID.
	buf       []byte
	haveFirst bool // whether any chunk has been seen on this CSID yet
}

// sendContext mirrors recvContext for the emission side: it lets the
// writer decide, per CSID, whether the next chunk can use an abbreviated
// header because nothing relevant to that header field has changed.
type sendContext struct {
	lastTimestamp uint32
	lastDelta     uint32
	lastLength    uint32
	lastType      MessageType
	lastStreamID  uint32
	haveSent      bool
}
