package registry

import (
	"sync"
	"sync/atomic"
	"time"
)

// State is a StreamEntry's position in the publisher lifecycle.
type State int

const (
	StateActive State = iota
	StateGracePeriod
	StateIdle
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateGracePeriod:
		return "grace_period"
	case StateIdle:
		return "idle"
	default:
		return "unknown"
	}
}

// subscriberState is one subscriber's delivery channel plus the
// producer-side demotion flag. Only the entry's Broadcast goroutine
// (the stream's single publisher) reads or writes lagging; Subscribe/
// Unsubscribe only add or remove entries from the owning map under the
// entry lock.
type subscriberState struct {
	id      uint64
	ch      chan BroadcastFrame
	lagging bool
}

// Subscriber is a handle a subscriber's delivery task reads frames from.
type Subscriber struct {
	id uint64
	ch chan BroadcastFrame
}

// Frames returns the channel a subscriber's delivery task should range
// or select over. It receives this stream's frames in publish order;
// after a demotion the frames up to the next keyframe are skipped, so
// delivery resumes at a keyframe rather than blocking the publisher.
func (s *Subscriber) Frames() <-chan BroadcastFrame { return s.ch }

// StreamEntry is the registry's per-key state: cached sequence headers,
// a GOP catch-up cache, the current publisher (if any), and the set of
// subscriber delivery channels. One entry's write operations are
// serialized by its own mutex, independent of every other entry's.
type StreamEntry struct {
	key Key

	mu                      sync.RWMutex
	state                   State
	publisherID             *uint64
	publisherDisconnectedAt *time.Time
	createdAt               time.Time

	videoHeader  *BroadcastFrame
	audioHeader  *BroadcastFrame
	metadata     *BroadcastFrame
	gopFrames    []BroadcastFrame
	gopSize      int
	gopMaxSize   int
	gopComplete  bool

	subscribers       map[uint64]*subscriberState
	nextSubscriberID  uint64
	subscriberCount   atomic.Int32
	broadcastCapacity int
}

func newStreamEntry(key Key, publisherID uint64, broadcastCapacity, gopMaxSize int) *StreamEntry {
	pid := publisherID
	return &StreamEntry{
		key:               key,
		state:             StateActive,
		publisherID:       &pid,
		createdAt:         time.Now(),
		gopMaxSize:        gopMaxSize,
		subscribers:       make(map[uint64]*subscriberState),
		broadcastCapacity: broadcastCapacity,
	}
}

// State reports the entry's current lifecycle state.
func (e *StreamEntry) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// PublisherID reports the current publisher's session id, if any.
func (e *StreamEntry) PublisherID() (uint64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.publisherID == nil {
		return 0, false
	}
	return *e.publisherID, true
}

// SubscriberCount reports the number of currently attached subscribers.
func (e *StreamEntry) SubscriberCount() int { return int(e.subscriberCount.Load()) }

// CreatedAt reports when the entry was first created.
func (e *StreamEntry) CreatedAt() time.Time { return e.createdAt }

// tryTakeover implements the publisher-claim rule: an Active entry with
// a current owner always rejects; Idle, GracePeriod, or an Active entry
// with no owner (should not occur in practice, defensive only) always
// succeeds and the entry becomes Active under the new publisher.
func (e *StreamEntry) tryTakeover(sessionID uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateActive && e.publisherID != nil {
		return false
	}

	pid := sessionID
	e.publisherID = &pid
	e.publisherDisconnectedAt = nil
	e.state = StateActive
	return true
}

// unregisterPublisher clears the publisher slot if sessionID matches the
// current owner, transitioning to GracePeriod (subscribers remain) or
// Idle (none do). Reports the resulting state and whether a transition
// actually happened (false if sessionID was not the current owner).
func (e *StreamEntry) unregisterPublisher(sessionID uint64) (State, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.publisherID == nil || *e.publisherID != sessionID {
		return e.state, false
	}
	e.publisherID = nil
	now := time.Now()
	e.publisherDisconnectedAt = &now
	if e.subscriberCount.Load() > 0 {
		e.state = StateGracePeriod
	} else {
		e.state = StateIdle
	}
	return e.state, true
}

// subscribe registers a new subscriber and returns its handle plus a
// catch-up snapshot: cached metadata, video header, audio header, then
// buffered GOP frames in insertion order — each retained for the
// subscriber's own use. Succeeds during Active and GracePeriod.
func (e *StreamEntry) subscribe(capacity int) (*Subscriber, []BroadcastFrame) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextSubscriberID
	e.nextSubscriberID++
	ss := &subscriberState{id: id, ch: make(chan BroadcastFrame, capacity)}
	e.subscribers[id] = ss
	e.subscriberCount.Add(1)

	catchup := make([]BroadcastFrame, 0, len(e.gopFrames)+3)
	if e.metadata != nil {
		catchup = append(catchup, e.metadata.Retain())
	}
	if e.videoHeader != nil {
		catchup = append(catchup, e.videoHeader.Retain())
	}
	if e.audioHeader != nil {
		catchup = append(catchup, e.audioHeader.Retain())
	}
	for _, f := range e.gopFrames {
		catchup = append(catchup, f.Retain())
	}

	return &Subscriber{id: id, ch: ss.ch}, catchup
}

// unsubscribe removes a subscriber; it never removes the entry itself
// (only the cleanup sweep does that). Reports the resulting state and
// whether it just transitioned to Idle.
func (e *StreamEntry) unsubscribe(sub *Subscriber) (State, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.subscribers[sub.id]; !ok {
		return e.state, false
	}
	delete(e.subscribers, sub.id)
	e.subscriberCount.Add(-1)

	// A publisher-less entry losing its last subscriber moves from
	// GracePeriod to Idle immediately rather than waiting for the grace
	// window to expire on an entry nobody is watching.
	if e.publisherID == nil && e.subscriberCount.Load() == 0 && e.state != StateIdle {
		e.state = StateIdle
		return e.state, true
	}
	return e.state, false
}

// broadcastResult tallies one broadcast's subscriber-side outcomes, for
// metrics: frames dropped because a subscriber is already lagging,
// frames dropped because a subscriber's channel was (newly) found full,
// subscribers newly demoted, and subscribers resynced at this keyframe.
type broadcastResult struct {
	laggingDrops     int
	channelFullDrops int
	demotions        int
	resyncs          int
}

// broadcast updates the entry's header/GOP caches per the frame's kind,
// then fans it out to every subscriber. Frames dropped because a
// subscriber's channel is full are tolerated silently — that subscriber
// is marked lagging and skips everything until the next keyframe
// (backpressure by demotion, never by blocking the publisher). Takes
// ownership of frame's reference; the caller's own reference is released
// before returning.
func (e *StreamEntry) broadcast(frame BroadcastFrame) broadcastResult {
	e.mu.Lock()

	if frame.IsHeader {
		switch frame.Kind {
		case FrameVideo:
			e.replaceCachedLocked(&e.videoHeader, frame)
		case FrameAudio:
			e.replaceCachedLocked(&e.audioHeader, frame)
		}
	} else if frame.Kind == FrameMetadata {
		e.replaceCachedLocked(&e.metadata, frame)
	} else {
		e.pushGOPLocked(frame)
	}

	subs := make([]*subscriberState, 0, len(e.subscribers))
	for _, s := range e.subscribers {
		subs = append(subs, s)
	}
	e.mu.Unlock()

	var result broadcastResult
	for _, s := range subs {
		if s.lagging {
			if !frame.IsKeyframe {
				result.laggingDrops++
				continue
			}
			s.lagging = false
			result.resyncs++
		}
		select {
		case s.ch <- frame.Retain():
		default:
			if !s.lagging {
				result.demotions++
			}
			s.lagging = true
			result.channelFullDrops++
		}
	}

	frame.Release()
	return result
}

// replaceCachedLocked releases the previously cached header/metadata
// frame (if any) and stores a retained copy of frame in its place. Must
// be called with e.mu held.
func (e *StreamEntry) replaceCachedLocked(slot **BroadcastFrame, frame BroadcastFrame) {
	if *slot != nil {
		(*slot).Release()
	}
	retained := frame.Retain()
	*slot = &retained
}

// pushGOPLocked mirrors media.GopBuffer's push/evict algorithm, adapted
// to hold retained BroadcastFrame references rather than raw bytes: a
// keyframe clears and releases all prior frames and opens a new GOP;
// frames are evicted from the front (and released) to stay under the
// byte budget; a single frame larger than the budget is rejected
// without being retained. Must be called with e.mu held.
func (e *StreamEntry) pushGOPLocked(frame BroadcastFrame) {
	if frame.IsKeyframe {
		e.clearGOPLocked()
		e.gopComplete = true
	}

	size := len(frame.Payload.Bytes())
	if e.gopSize+size > e.gopMaxSize {
		for e.gopSize+size > e.gopMaxSize && len(e.gopFrames) > 0 {
			old := e.gopFrames[0]
			e.gopFrames = e.gopFrames[1:]
			e.gopSize -= len(old.Payload.Bytes())
			old.Release()
		}
		if e.gopSize+size > e.gopMaxSize {
			return
		}
	}

	e.gopFrames = append(e.gopFrames, frame.Retain())
	e.gopSize += size
}

func (e *StreamEntry) clearGOPLocked() {
	for _, f := range e.gopFrames {
		f.Release()
	}
	e.gopFrames = nil
	e.gopSize = 0
	e.gopComplete = false
}

// isReady reports whether the GOP cache can serve a late joiner: it
// needs both a video sequence header and a complete GOP. Matches
// media.GopBuffer.IsReady's audio-only-never-ready choice.
func (e *StreamEntry) isReady() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.videoHeader != nil && e.gopComplete
}

func (e *StreamEntry) disconnectedAt() (time.Time, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.publisherDisconnectedAt == nil {
		return time.Time{}, false
	}
	return *e.publisherDisconnectedAt, true
}
