package chunk

import (
	"bytes"
	"testing"
)

func TestRoundTripSingleChunkMessage(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	msg := &Message{CSID: 4, Type: MessageAudio, Timestamp: 26, StreamID: 1, Payload: []byte("hello")}
	if err := w.WriteMessage(msg); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	r := NewReader(&buf, false)
	got, err := r.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if got.Type != msg.Type || got.Timestamp != msg.Timestamp || got.StreamID != msg.StreamID {
		t.Fatalf("header mismatch: got %+v want %+v", got, msg)
	}
	if !bytes.Equal(got.Payload, msg.Payload) {
		t.Fatalf("payload mismatch: got %q want %q", got.Payload, msg.Payload)
	}
}

func TestRoundTripFragmentedMessage(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.SetChunkSize(16)

	payload := bytes.Repeat([]byte{0xAB}, 100)
	msg := &Message{CSID: 6, Type: MessageVideo, Timestamp: 0, StreamID: 1, Payload: payload}
	if err := w.WriteMessage(msg); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	r := NewReader(&buf, false)
	r.SetChunkSize(16)
	got, err := r.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if !bytes.Equal(got.Payload, payload) {
		t.Fatalf("fragmented payload mismatch: got %d bytes want %d", len(got.Payload), len(payload))
	}
}

func TestRoundTripMultipleMessagesSameCSID(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	msgs := []*Message{
		{CSID: 4, Type: MessageAudio, Timestamp: 0, StreamID: 1, Payload: []byte("a")},
		{CSID: 4, Type: MessageAudio, Timestamp: 33, StreamID: 1, Payload: []byte("b")},
		{CSID: 4, Type: MessageAudio, Timestamp: 66, StreamID: 1, Payload: []byte("c")},
	}
	for _, m := range msgs {
		if err := w.WriteMessage(m); err != nil {
			t.Fatalf("WriteMessage: %v", err)
		}
	}

	r := NewReader(&buf, false)
	for i, want := range msgs {
		got, err := r.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage %d: %v", i, err)
		}
		if got.Timestamp != want.Timestamp || !bytes.Equal(got.Payload, want.Payload) {
			t.Fatalf("message %d mismatch: got %+v want %+v", i, got, want)
		}
	}
}

func TestRoundTripExtendedTimestamp(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	msg := &Message{CSID: 4, Type: MessageVideo, Timestamp: 0x01000050, StreamID: 1, Payload: []byte("x")}
	if err := w.WriteMessage(msg); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	r := NewReader(&buf, false)
	got, err := r.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if got.Timestamp != msg.Timestamp {
		t.Fatalf("extended timestamp mismatch: got %d want %d", got.Timestamp, msg.Timestamp)
	}
}

func TestBasicHeaderCSIDRanges(t *testing.T) {
	cases := []uint32{2, 63, 64, 319, 320, 65599}
	for _, csid := range cases {
		var buf bytes.Buffer
		bw := newTestBufWriter(&buf)
		if err := writeBasicHeader(bw, format0, csid); err != nil {
			t.Fatalf("writeBasicHeader(%d): %v", csid, err)
		}
		bw.Flush()

		br := newTestBufReader(&buf)
		f, got, err := readBasicHeader(br)
		if err != nil {
			t.Fatalf("readBasicHeader(%d): %v", csid, err)
		}
		if f != format0 || got != csid {
			t.Fatalf("CSID round trip mismatch: want %d got %d (fmt %d)", csid, got, f)
		}
	}
}
