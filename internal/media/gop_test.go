package media

import "testing"

func makeTag(timestamp uint32, keyframe bool, size int) Tag {
	data := make([]byte, size)
	if keyframe {
		data[0] = 0x17
	} else {
		data[0] = 0x27
	}
	return VideoTag(timestamp, data)
}

func TestGopBufferBasic(t *testing.T) {
	g := NewGopBuffer()
	if g.IsReady() {
		t.Fatal("expected not ready initially")
	}
	g.SetVideoHeader(makeTag(0, true, 100))
	if g.IsReady() {
		t.Fatal("expected not ready without a complete GOP")
	}
	if !g.Push(makeTag(0, true, 500)) {
		t.Fatal("keyframe push should succeed")
	}
	if !g.IsReady() || !g.HasCompleteGOP() {
		t.Fatal("expected ready after header + keyframe")
	}
	g.Push(makeTag(33, false, 200))
	g.Push(makeTag(66, false, 200))
	if g.FrameCount() != 3 {
		t.Fatalf("expected 3 frames, got %d", g.FrameCount())
	}
}

func TestGopBufferKeyframeClears(t *testing.T) {
	g := NewGopBuffer()
	g.Push(makeTag(0, true, 500))
	g.Push(makeTag(33, false, 200))
	g.Push(makeTag(66, false, 200))
	if g.FrameCount() != 3 {
		t.Fatalf("expected 3, got %d", g.FrameCount())
	}
	g.Push(makeTag(100, true, 500))
	if g.FrameCount() != 1 {
		t.Fatalf("expected keyframe to clear prior frames, got %d", g.FrameCount())
	}
}

func TestGopBufferSizeLimit(t *testing.T) {
	g := NewGopBufferWithMaxSize(500)
	g.Push(makeTag(0, true, 200))
	g.Push(makeTag(33, false, 200))
	if !g.Push(makeTag(66, false, 200)) {
		t.Fatal("expected eviction of oldest frame to make room")
	}
	if g.Push(makeTag(99, false, 600)) {
		t.Fatal("a single frame larger than the cap must be rejected")
	}
}

func TestGopBufferClearVsClearFrames(t *testing.T) {
	g := NewGopBuffer()
	g.SetVideoHeader(makeTag(0, true, 50))
	g.Push(makeTag(0, true, 100))
	g.ClearFrames()
	if _, ok := g.VideoHeader(); !ok {
		t.Fatal("ClearFrames must keep headers")
	}
	if g.FrameCount() != 0 {
		t.Fatal("ClearFrames must drop frames")
	}
	g.Push(makeTag(0, true, 100))
	g.Clear()
	if _, ok := g.VideoHeader(); ok {
		t.Fatal("Clear must drop headers too")
	}
}

func TestGopBufferCatchupOrder(t *testing.T) {
	g := NewGopBuffer()
	g.SetVideoHeader(VideoTag(0, []byte{0x17, 0x00}))
	g.SetAudioHeader(AudioTag(0, []byte{0xAF, 0x00}))
	g.Push(makeTag(0, true, 100))
	g.Push(makeTag(33, false, 50))

	catchup := g.GetCatchupData()
	if len(catchup) != 4 {
		t.Fatalf("expected 4 items (video hdr, audio hdr, 2 frames), got %d", len(catchup))
	}
	if !catchup[0].IsAVCSequenceHeader() {
		t.Fatal("expected video header first")
	}
	if !catchup[1].IsAACSequenceHeader() {
		t.Fatal("expected audio header second")
	}
	if !catchup[2].IsKeyframe() {
		t.Fatal("expected keyframe frame next")
	}
}

func TestGopBufferAudioOnlyNeverReady(t *testing.T) {
	g := NewGopBuffer()
	g.SetAudioHeader(AudioTag(0, []byte{0xAF, 0x00}))
	g.Push(AudioTag(0, []byte{0xAF, 0x01, 0, 0}))
	if g.IsReady() {
		t.Fatal("audio-only streams must never report ready")
	}
}

func TestGopBufferNoCompleteGopWithoutKeyframe(t *testing.T) {
	g := NewGopBuffer()
	g.Push(makeTag(0, false, 100))
	g.Push(makeTag(33, false, 100))
	if g.HasCompleteGOP() {
		t.Fatal("expected no complete GOP without a keyframe")
	}
	g.Push(makeTag(66, true, 100))
	if !g.HasCompleteGOP() {
		t.Fatal("expected complete GOP after keyframe")
	}
}
