package media

import "testing"

func TestVideoFrameTypeAndCodec(t *testing.T) {
	b := byte(0x17) // keyframe, AVC
	if VideoFrameTypeOf(b) != FrameKeyframe {
		t.Fatalf("expected keyframe, got %v", VideoFrameTypeOf(b))
	}
	if VideoCodecOf(b) != CodecAVC {
		t.Fatalf("expected AVC, got %v", VideoCodecOf(b))
	}
}

func TestTagIsAVCSequenceHeader(t *testing.T) {
	tag := VideoTag(0, []byte{0x17, 0x00, 0, 0, 0})
	if !tag.IsAVCSequenceHeader() {
		t.Fatal("expected AVC sequence header detection")
	}
	frame := VideoTag(0, []byte{0x17, 0x01, 0, 0, 0})
	if frame.IsAVCSequenceHeader() {
		t.Fatal("NALU data tag must not be classified as a sequence header")
	}
}

func TestTagIsAACSequenceHeader(t *testing.T) {
	tag := AudioTag(0, []byte{0xAF, 0x00, 0x12, 0x10})
	if !tag.IsAACSequenceHeader() {
		t.Fatal("expected AAC sequence header detection")
	}
	frame := AudioTag(0, []byte{0xAF, 0x01, 0, 0})
	if frame.IsAACSequenceHeader() {
		t.Fatal("raw AAC data must not be classified as a sequence header")
	}
}

func TestTagIsKeyframe(t *testing.T) {
	kf := VideoTag(0, []byte{0x17, 0x01})
	if !kf.IsKeyframe() {
		t.Fatal("expected keyframe")
	}
	inter := VideoTag(0, []byte{0x27, 0x01})
	if inter.IsKeyframe() {
		t.Fatal("inter frame must not be a keyframe")
	}
}
