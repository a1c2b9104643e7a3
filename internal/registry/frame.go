package registry

import "chunkcast/internal/media"

// FrameKind distinguishes the three kinds of media carried as a
// BroadcastFrame.
type FrameKind int

const (
	FrameVideo FrameKind = iota
	FrameAudio
	FrameMetadata
)

// BroadcastFrame is an immutable unit of routed media. Payload is
// reference-counted so fan-out to many subscribers never copies bytes;
// callers that hold onto a BroadcastFrame past the call that handed it
// to them must Retain it first and Release it when done.
type BroadcastFrame struct {
	Kind        FrameKind
	TimestampMS uint32
	Payload     *media.RefCountedBytes
	IsKeyframe  bool
	IsHeader    bool
}

// Retain increments the payload's reference count and returns f, for
// handing the same frame to another subscriber.
func (f BroadcastFrame) Retain() BroadcastFrame {
	f.Payload.Retain()
	return f
}

// Release decrements the payload's reference count.
func (f BroadcastFrame) Release() {
	f.Payload.Release()
}

// frameFromTag builds a BroadcastFrame from a classified media tag,
// taking ownership of a fresh reference-counted copy of its bytes.
func frameFromTag(tag media.Tag) BroadcastFrame {
	var kind FrameKind
	switch tag.Type {
	case media.TagVideo:
		kind = FrameVideo
	case media.TagAudio:
		kind = FrameAudio
	case media.TagScript:
		kind = FrameMetadata
	}
	return BroadcastFrame{
		Kind:        kind,
		TimestampMS: tag.Timestamp,
		Payload:     media.AcquireRefCountedBytes(tag.Data),
		IsKeyframe:  tag.IsKeyframe(),
		IsHeader:    tag.IsHeader(),
	}
}

// asTag reconstructs the media.Tag view of a BroadcastFrame, for feeding
// it back through the GOP buffer's Tag-based API.
func (f BroadcastFrame) asTag() media.Tag {
	var t media.TagType
	switch f.Kind {
	case FrameVideo:
		t = media.TagVideo
	case FrameAudio:
		t = media.TagAudio
	case FrameMetadata:
		t = media.TagScript
	}
	return media.Tag{Type: t, Timestamp: f.TimestampMS, Data: f.Payload.Bytes()}
}
