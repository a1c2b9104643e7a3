package chunk

import (
	"encoding/binary"

	"chunkcast/internal/rtmperr"
)

// LimitType is the byte qualifier on a Set Peer Bandwidth message.
type LimitType uint8

const (
	LimitHard    LimitType = 0
	LimitSoft    LimitType = 1
	LimitDynamic LimitType = 2
)

// EncodeSetChunkSize builds a Set Chunk Size protocol control message.
func EncodeSetChunkSize(size uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], size&0x7FFFFFFF)
	return b[:]
}

// DecodeSetChunkSize extracts the proposed chunk size.
func DecodeSetChunkSize(payload []byte) (uint32, error) {
	if len(payload) < 4 {
		return 0, rtmperr.ErrChunkLength
	}
	return binary.BigEndian.Uint32(payload) & 0x7FFFFFFF, nil
}

// EncodeAbortMessage builds an Abort Message control message naming the
// chunk stream to abandon.
func EncodeAbortMessage(csid uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], csid)
	return b[:]
}

// DecodeAbortMessage extracts the aborted chunk stream id.
func DecodeAbortMessage(payload []byte) (uint32, error) {
	if len(payload) < 4 {
		return 0, rtmperr.ErrChunkLength
	}
	return binary.BigEndian.Uint32(payload), nil
}

// EncodeAcknowledgement builds an Acknowledgement reporting the number
// of bytes received so far.
func EncodeAcknowledgement(sequenceNumber uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], sequenceNumber)
	return b[:]
}

// DecodeAcknowledgement extracts the peer's reported sequence number.
func DecodeAcknowledgement(payload []byte) (uint32, error) {
	if len(payload) < 4 {
		return 0, rtmperr.ErrChunkLength
	}
	return binary.BigEndian.Uint32(payload), nil
}

// EncodeWindowAckSize builds a Window Acknowledgement Size message.
func EncodeWindowAckSize(size uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], size)
	return b[:]
}

// DecodeWindowAckSize extracts the negotiated window size.
func DecodeWindowAckSize(payload []byte) (uint32, error) {
	if len(payload) < 4 {
		return 0, rtmperr.ErrChunkLength
	}
	return binary.BigEndian.Uint32(payload), nil
}

// EncodeSetPeerBandwidth builds a Set Peer Bandwidth message.
func EncodeSetPeerBandwidth(bandwidth uint32, limit LimitType) []byte {
	var b [5]byte
	binary.BigEndian.PutUint32(b[:4], bandwidth)
	b[4] = byte(limit)
	return b[:]
}

// DecodeSetPeerBandwidth extracts the peer bandwidth and limit type.
func DecodeSetPeerBandwidth(payload []byte) (uint32, LimitType, error) {
	if len(payload) < 5 {
		return 0, 0, rtmperr.ErrChunkLength
	}
	return binary.BigEndian.Uint32(payload[:4]), LimitType(payload[4]), nil
}

// UserControlEventType identifies a User Control Message's sub-event.
type UserControlEventType uint16

const (
	UserControlStreamBegin      UserControlEventType = 0
	UserControlStreamEOF        UserControlEventType = 1
	UserControlStreamDry        UserControlEventType = 2
	UserControlSetBufferLength  UserControlEventType = 3
	UserControlStreamIsRecorded UserControlEventType = 4
	UserControlPingRequest      UserControlEventType = 6
	UserControlPingResponse     UserControlEventType = 7
)

// EncodeUserControlStreamBegin builds a "Stream Begin" user control
// event, sent for stream 0 after connect succeeds and for the playing
// stream when play starts.
func EncodeUserControlStreamBegin(streamID uint32) []byte {
	var b [6]byte
	binary.BigEndian.PutUint16(b[0:2], uint16(UserControlStreamBegin))
	binary.BigEndian.PutUint32(b[2:6], streamID)
	return b[:]
}

// DecodeUserControl splits a User Control Message into its event type and
// event-specific data.
func DecodeUserControl(payload []byte) (UserControlEventType, []byte, error) {
	if len(payload) < 2 {
		return 0, nil, rtmperr.ErrChunkLength
	}
	return UserControlEventType(binary.BigEndian.Uint16(payload[:2])), payload[2:], nil
}
