package media

// bufferedFrame is a tag plus its cached size, so GopBuffer doesn't need
// to re-measure frames on every eviction.
type bufferedFrame struct {
	tag  Tag
	size int
}

// GopBuffer retains a stream's sequence headers plus the frames since the
// last keyframe, so a subscriber joining mid-stream can catch up without
// waiting for the next keyframe. It is not safe for concurrent use; the
// registry's per-stream lock serializes access.
type GopBuffer struct {
	maxSize     int
	currentSize int

	videoHeader *Tag
	audioHeader *Tag
	metadata    []byte

	frames         []bufferedFrame
	hasCompleteGOP bool
}

// DefaultGopMaxSize is the buffer cap used when no override is given.
const DefaultGopMaxSize = 4 * 1024 * 1024

// NewGopBuffer creates a buffer with the default 4MiB cap.
func NewGopBuffer() *GopBuffer { return NewGopBufferWithMaxSize(DefaultGopMaxSize) }

// NewGopBufferWithMaxSize creates a buffer with an explicit byte cap.
func NewGopBufferWithMaxSize(maxSize int) *GopBuffer {
	return &GopBuffer{maxSize: maxSize}
}

func (g *GopBuffer) SetVideoHeader(t Tag) { g.videoHeader = &t }
func (g *GopBuffer) SetAudioHeader(t Tag) { g.audioHeader = &t }
func (g *GopBuffer) SetMetadata(data []byte) { g.metadata = data }

func (g *GopBuffer) VideoHeader() (Tag, bool) {
	if g.videoHeader == nil {
		return Tag{}, false
	}
	return *g.videoHeader, true
}

func (g *GopBuffer) AudioHeader() (Tag, bool) {
	if g.audioHeader == nil {
		return Tag{}, false
	}
	return *g.audioHeader, true
}

func (g *GopBuffer) Metadata() ([]byte, bool) {
	if g.metadata == nil {
		return nil, false
	}
	return g.metadata, true
}

// Push adds a frame to the buffer. A keyframe clears prior frames and
// starts a new GOP. If the buffer is over its byte cap, the oldest frames
// are evicted first; a single frame larger than the cap by itself is
// rejected and Push returns false.
func (g *GopBuffer) Push(tag Tag) bool {
	size := tag.Size()

	if tag.IsKeyframe() {
		g.ClearFrames()
		g.hasCompleteGOP = true
	}

	if g.currentSize+size > g.maxSize {
		for g.currentSize+size > g.maxSize && len(g.frames) > 0 {
			old := g.frames[0]
			g.frames = g.frames[1:]
			g.currentSize -= old.size
		}
		if g.currentSize+size > g.maxSize {
			return false
		}
	}

	g.frames = append(g.frames, bufferedFrame{tag: tag, size: size})
	g.currentSize += size
	return true
}

// ClearFrames drops buffered frames but keeps cached headers/metadata.
func (g *GopBuffer) ClearFrames() {
	g.frames = nil
	g.currentSize = 0
	g.hasCompleteGOP = false
}

// Clear drops everything, including cached headers and metadata.
func (g *GopBuffer) Clear() {
	g.ClearFrames()
	g.videoHeader = nil
	g.audioHeader = nil
	g.metadata = nil
}

// HasCompleteGOP reports whether the buffer holds frames starting from a
// keyframe.
func (g *GopBuffer) HasCompleteGOP() bool { return g.hasCompleteGOP }

// IsReady reports whether the buffer can serve a late joiner: it needs
// both a video sequence header and a complete GOP. An audio-only stream
// is deliberately never "ready" by this definition — late joiners are
// assumed to need a video keyframe to start decoding from.
func (g *GopBuffer) IsReady() bool {
	return g.videoHeader != nil && g.hasCompleteGOP
}

// GetCatchupData returns the sequence headers followed by every buffered
// frame, in the order a late joiner should receive them: video header,
// then audio header, then frames. Metadata is cached separately on the
// owning stream entry and is prepended there, not here.
func (g *GopBuffer) GetCatchupData() []Tag {
	result := make([]Tag, 0, len(g.frames)+2)
	if g.videoHeader != nil {
		result = append(result, *g.videoHeader)
	}
	if g.audioHeader != nil {
		result = append(result, *g.audioHeader)
	}
	for _, f := range g.frames {
		result = append(result, f.tag)
	}
	return result
}

// FrameCount returns the number of buffered frames.
func (g *GopBuffer) FrameCount() int { return len(g.frames) }

// Size returns the current buffer occupancy in bytes.
func (g *GopBuffer) Size() int { return g.currentSize }

// Utilization returns buffer occupancy as a percentage of its cap.
func (g *GopBuffer) Utilization() float32 {
	if g.maxSize <= 0 {
		return 0
	}
	return (float32(g.currentSize) / float32(g.maxSize)) * 100
}

// TimestampRange returns the first and last buffered frame timestamps.
func (g *GopBuffer) TimestampRange() (first, last uint32, ok bool) {
	if len(g.frames) == 0 {
		return 0, 0, false
	}
	return g.frames[0].tag.Timestamp, g.frames[len(g.frames)-1].tag.Timestamp, true
}

// GopDuration returns the span, in milliseconds, covered by buffered
// frames.
func (g *GopBuffer) GopDuration() (uint32, bool) {
	first, last, ok := g.TimestampRange()
	if !ok {
		return 0, false
	}
	return last - first, true
}
