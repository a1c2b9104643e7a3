package chunk

import (
	"bufio"
	"encoding/binary"
	"io"
)

// Writer encodes complete messages into chunks, picking the shortest
// valid header format per CSID based on what changed since the last
// message sent on that CSID.
type Writer struct {
	w         *bufio.Writer
	chunkSize uint32
	contexts  map[uint32]*sendContext
}

// NewWriter creates a Writer with the default outgoing chunk size.
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		w:         bufio.NewWriterSize(w, 4096),
		chunkSize: DefaultChunkSize,
		contexts:  make(map[uint32]*sendContext),
	}
}

// SetChunkSize applies a negotiated outgoing chunk size.
func (wr *Writer) SetChunkSize(size uint32) { wr.chunkSize = size }

// WriteMessage splits msg into ceil(len(payload)/chunkSize) chunks: the
// first chunk uses whichever format is cheapest given what's changed
// since this CSID's previous message, and every successor chunk uses
// format 3.
func (wr *Writer) WriteMessage(msg *Message) error {
	ctx, ok := wr.contexts[msg.CSID]
	if !ok {
		ctx = &sendContext{}
		wr.contexts[msg.CSID] = ctx
	}

	f, delta, useExtended := selectFormat(ctx, msg)

	payload := msg.Payload
	first := true
	for {
		var chunkFmt format
		if first {
			chunkFmt = f
		} else {
			chunkFmt = format3
		}

		if err := writeBasicHeader(wr.w, chunkFmt, msg.CSID); err != nil {
			return err
		}
		if first {
			if err := writeMessageHeader(wr.w, chunkFmt, msg, delta, useExtended); err != nil {
				return err
			}
		} else if useExtended {
			// Format 3 continuations still carry the extended timestamp
			// field when the message used one.
			var ext [4]byte
			binary.BigEndian.PutUint32(ext[:], msg.Timestamp&0x7FFFFFFF)
			if _, err := wr.w.Write(ext[:]); err != nil {
				return err
			}
		}

		n := len(payload)
		if n > int(wr.chunkSize) {
			n = int(wr.chunkSize)
		}
		if _, err := wr.w.Write(payload[:n]); err != nil {
			return err
		}
		payload = payload[n:]
		first = false
		if len(payload) == 0 {
			break
		}
	}

	ctx.lastTimestamp = msg.Timestamp
	ctx.lastDelta = delta
	ctx.lastLength = uint32(len(msg.Payload))
	ctx.lastType = msg.Type
	ctx.lastStreamID = msg.StreamID
	ctx.haveSent = true

	return wr.w.Flush()
}

// selectFormat decides the cheapest header format for msg's first chunk:
// format 0 if this CSID has no prior context or the timestamp rolled
// back, format 1 if the stream id is unchanged but length/type differ,
// format 2 if only the timestamp delta differs, format 3 to replay an
// identical header.
func selectFormat(ctx *sendContext, msg *Message) (f format, delta uint32, useExtended bool) {
	if !ctx.haveSent {
		delta = msg.Timestamp
		return format0, delta, delta >= extendedTimestampSentinel
	}

	if msg.Timestamp < ctx.lastTimestamp {
		// Timestamp rollback without an absolute header is invalid; fall
		// back to a fresh format 0 header rather than emit a negative
		// delta.
		delta = msg.Timestamp
		return format0, delta, delta >= extendedTimestampSentinel
	}

	delta = msg.Timestamp - ctx.lastTimestamp
	useExtended = delta >= extendedTimestampSentinel

	if msg.StreamID != ctx.lastStreamID {
		delta = msg.Timestamp
		return format0, delta, delta >= extendedTimestampSentinel
	}
	if uint32(len(msg.Payload)) != ctx.lastLength || msg.Type != ctx.lastType {
		return format1, delta, useExtended
	}
	if delta != ctx.lastDelta {
		return format2, delta, useExtended
	}
	return format3, delta, useExtended
}

func writeMessageHeader(w *bufio.Writer, f format, msg *Message, delta uint32, useExtended bool) error {
	if f == format3 {
		if useExtended {
			var ext [4]byte
			binary.BigEndian.PutUint32(ext[:], msg.Timestamp&0x7FFFFFFF)
			_, err := w.Write(ext[:])
			return err
		}
		return nil
	}

	tsField := delta
	if useExtended {
		tsField = extendedTimestampSentinel
	}

	var buf []byte
	buf = append(buf, byte(tsField>>16), byte(tsField>>8), byte(tsField))

	if f <= format1 {
		length := uint32(len(msg.Payload))
		buf = append(buf, byte(length>>16), byte(length>>8), byte(length))
		buf = append(buf, byte(msg.Type))
	}
	if f == format0 {
		var sid [4]byte
		binary.LittleEndian.PutUint32(sid[:], msg.StreamID)
		buf = append(buf, sid[:]...)
	}

	if _, err := w.Write(buf); err != nil {
		return err
	}

	if useExtended {
		var ext [4]byte
		binary.BigEndian.PutUint32(ext[:], msg.Timestamp&0x7FFFFFFF)
		if _, err := w.Write(ext[:]); err != nil {
			return err
		}
	}
	return nil
}
