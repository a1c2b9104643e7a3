package chunk

import (
	"bufio"
	"encoding/binary"
	"io"

	"chunkcast/internal/rtmperr"
)

// Reader decodes a stream of interleaved chunks back into complete
// messages. It is not safe for concurrent use; a connection owns exactly
// one Reader for its inbound direction.
type Reader struct {
	r         *bufio.Reader
	chunkSize uint32
	strict    bool
	contexts  map[uint32]*recvContext
}

// NewReader creates a Reader with the default incoming chunk size.
func NewReader(r io.Reader, strict bool) *Reader {
	return &Reader{
		r:         bufio.NewReaderSize(r, 4096),
		chunkSize: DefaultChunkSize,
		strict:    strict,
		contexts:  make(map[uint32]*recvContext),
	}
}

// SetChunkSize applies a negotiated incoming chunk size.
func (rd *Reader) SetChunkSize(size uint32) { rd.chunkSize = size }

// ReadMessage blocks until a complete message has been reassembled from
// one or more chunks, interleaving across CSIDs transparently.
func (rd *Reader) ReadMessage() (*Message, error) {
	for {
		f, csid, err := readBasicHeader(rd.r)
		if err != nil {
			return nil, err
		}

		ctx, ok := rd.contexts[csid]
		if !ok {
			ctx = &recvContext{csid: csid}
			rd.contexts[csid] = ctx
		}

		if !ctx.haveFirst && f != format0 {
			// Some encoders (notably librtmp-based ones) send a fmt=1 ping
			// on a fresh protocol-control CSID; tolerate that one specific
			// case and otherwise require an absolute header to start a
			// chunk stream.
			if !(csid == CSIDProtocolControl && f == format1) {
				return nil, rtmperr.ErrChunkRollback
			}
		}

		if err := rd.readMessageHeader(ctx, f); err != nil {
			return nil, err
		}

		remaining := int(ctx.lastLength) - len(ctx.buf)
		if remaining < 0 {
			return nil, rtmperr.ErrChunkOverrun
		}
		n := remaining
		if n > int(rd.chunkSize) {
			n = int(rd.chunkSize)
		}

		payload := make([]byte, n)
		if _, err := io.ReadFull(rd.r, payload); err != nil {
			return nil, err
		}
		ctx.buf = append(ctx.buf, payload...)
		ctx.haveFirst = true

		if len(ctx.buf) < int(ctx.lastLength) {
			continue
		}

		msg := &Message{
			CSID:      csid,
			Type:      ctx.lastType,
			Timestamp: ctx.lastTimestamp,
			StreamID:  ctx.lastStreamID,
			Payload:   ctx.buf,
		}
		ctx.buf = nil
		return msg, nil
	}
}

// readMessageHeader decodes the abbreviated message header that follows
// the basic header, updating ctx in place per the inheritance rules of
// formats 1/2/3.
func (rd *Reader) readMessageHeader(ctx *recvContext, f format) error {
	isFirstChunkOfMessage := len(ctx.buf) == 0

	if f == format3 {
		// Format 3 carries no header of its own; if this is the first
		// chunk of a new message (not a continuation of a fragmented
		// one), the delta from the prior header applies again (some
		// encoders omit the expected format 2).
		if isFirstChunkOfMessage && !ctx.extendedTSUsed {
			ctx.lastTimestamp += ctx.lastDelta
		}
		if ctx.extendedTSUsed {
			var ext [4]byte
			if _, err := io.ReadFull(rd.r, ext[:]); err != nil {
				return err
			}
			if isFirstChunkOfMessage {
				ctx.lastTimestamp = binary.BigEndian.Uint32(ext[:]) & 0x7FFFFFFF
			}
		}
		return nil
	}

	hdr := make([]byte, messageHeaderSize[f])
	if _, err := io.ReadFull(rd.r, hdr); err != nil {
		return err
	}

	if f <= format2 {
		delta := uint32(hdr[0])<<16 | uint32(hdr[1])<<8 | uint32(hdr[2])
		hdr = hdr[3:]
		ctx.lastDelta = delta

		ctx.extendedTSUsed = delta >= extendedTimestampSentinel
		if f == format0 {
			ctx.lastTimestamp = delta
		} else {
			ctx.lastTimestamp += delta
		}
	}

	if f <= format1 {
		length := uint32(hdr[0])<<16 | uint32(hdr[1])<<8 | uint32(hdr[2])
		hdr = hdr[3:]
		if length > MaxMessageSize {
			return rtmperr.ErrChunkLength
		}
		ctx.lastLength = length
		ctx.lastType = MessageType(hdr[0])
		hdr = hdr[1:]
	}

	if f == format0 {
		ctx.lastStreamID = binary.LittleEndian.Uint32(hdr)
	}

	if ctx.extendedTSUsed {
		var ext [4]byte
		if _, err := io.ReadFull(rd.r, ext[:]); err != nil {
			return err
		}
		// The extended field replaces whatever the 3-byte field computed
		// above; keep the low 31 bits, matching common server behavior
		// for peers that send a full 32-bit extended timestamp.
		ctx.lastTimestamp = binary.BigEndian.Uint32(ext[:]) & 0x7FFFFFFF
	}

	return nil
}
