package registry

import (
	"context"
	"sync"
	"time"

	"chunkcast/internal/media"
	"chunkcast/internal/metrics"
	"chunkcast/internal/rtmperr"
)

// Config holds the registry's tunables; internal/config supplies the
// process-wide defaults from environment variables.
type Config struct {
	BroadcastCapacity    int
	PublisherGracePeriod time.Duration
	IdleStreamTimeout    time.Duration
	CleanupInterval      time.Duration
	MaxGopSize           int
	GopBufferEnabled     bool
}

// DefaultConfig returns conservative out-of-the-box tunables suitable
// for a single-process deployment.
func DefaultConfig() Config {
	return Config{
		BroadcastCapacity:    256,
		PublisherGracePeriod: 10 * time.Second,
		IdleStreamTimeout:    60 * time.Second,
		CleanupInterval:      5 * time.Second,
		MaxGopSize:           media.DefaultGopMaxSize,
		GopBufferEnabled:     true,
	}
}

// Registry is the concurrent map from StreamKey to StreamEntry. The map
// itself is guarded by a reader/writer lock that serializes entry
// creation and removal; each entry's internal state is independently
// guarded by its own lock, so publisher/subscriber traffic on one stream
// never blocks on another's.
type Registry struct {
	cfg Config
	m   *metrics.Metrics

	mu      sync.RWMutex
	entries map[Key]*StreamEntry
}

// New creates a registry with cfg. A zero-value Config's BroadcastCapacity
// and MaxGopSize must be set by the caller; use DefaultConfig as a base.
// m, if non-nil, is recorded against for stream lifecycle and broadcast
// backpressure events.
func New(cfg Config, m *metrics.Metrics) *Registry {
	return &Registry{cfg: cfg, m: m, entries: make(map[Key]*StreamEntry)}
}

// RegisterPublisher claims key for sessionID. If key has no entry, one is
// created Active. If the entry exists and is Active with a current
// owner, registration is rejected (ErrAlreadyPublishing). Otherwise (the
// entry is Idle, in GracePeriod, or — defensively — Active without an
// owner) the caller takes over and the entry becomes Active.
func (r *Registry) RegisterPublisher(key Key, sessionID uint64) error {
	return r.RegisterPublisherWithCapacity(key, sessionID, 0)
}

// RegisterPublisherWithCapacity is RegisterPublisher with a per-stream
// broadcast-channel capacity override (0 uses the registry default),
// for callers that want a wider or narrower fan-out buffer for one
// specific stream.
func (r *Registry) RegisterPublisherWithCapacity(key Key, sessionID uint64, capacity int) error {
	entry, created := r.getOrCreateEntry(key, sessionID, capacity)
	if created {
		if r.m != nil {
			r.m.RecordStreamTransition(StateActive.String())
		}
		return nil
	}
	if !entry.tryTakeover(sessionID) {
		return rtmperr.ErrAlreadyPublishing
	}
	if r.m != nil {
		r.m.RecordStreamTransition(StateActive.String())
		r.m.RecordPublisherTakeover()
	}
	return nil
}

// getOrCreateEntry returns key's entry, creating a fresh Active one
// (owned by sessionID) if absent. created reports whether this call
// created the entry (in which case it is already correctly owned and no
// further takeover call is needed).
func (r *Registry) getOrCreateEntry(key Key, sessionID uint64, capacity int) (entry *StreamEntry, created bool) {
	r.mu.RLock()
	entry, ok := r.entries[key]
	r.mu.RUnlock()
	if ok {
		return entry, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok = r.entries[key]; ok {
		return entry, false
	}
	if capacity <= 0 {
		capacity = r.cfg.BroadcastCapacity
	}
	gopMax := r.cfg.MaxGopSize
	if !r.cfg.GopBufferEnabled {
		gopMax = 0
	}
	entry = newStreamEntry(key, sessionID, capacity, gopMax)
	r.entries[key] = entry
	return entry, true
}

// UnregisterPublisher releases sessionID's ownership of key, if it is
// the current owner. No-op otherwise (e.g. a stale disconnect from a
// session that already lost a takeover race).
func (r *Registry) UnregisterPublisher(key Key, sessionID uint64) {
	r.mu.RLock()
	entry, ok := r.entries[key]
	r.mu.RUnlock()
	if !ok {
		return
	}
	newState, changed := entry.unregisterPublisher(sessionID)
	if changed && r.m != nil {
		r.m.RecordStreamTransition(newState.String())
	}
}

// Subscribe attaches a new subscriber to key, returning a handle and a
// catch-up snapshot of cached headers/GOP frames. Fails with
// ErrStreamNotFound if key has never been published, or ErrStreamNotActive
// if the entry is Idle (no publisher and no content is flowing or cached
// worth joining) — subscribing during GracePeriod is allowed so a
// subscriber doesn't get disconnected across a brief publisher reconnect.
func (r *Registry) Subscribe(key Key) (*Subscriber, []BroadcastFrame, error) {
	r.mu.RLock()
	entry, ok := r.entries[key]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, rtmperr.ErrStreamNotFound
	}
	if entry.State() == StateIdle {
		return nil, nil, rtmperr.ErrStreamNotActive
	}
	sub, catchup := entry.subscribe(entry.broadcastCapacity)
	return sub, catchup, nil
}

// Unsubscribe detaches sub from key. Never removes the entry itself.
func (r *Registry) Unsubscribe(key Key, sub *Subscriber) {
	r.mu.RLock()
	entry, ok := r.entries[key]
	r.mu.RUnlock()
	if !ok {
		return
	}
	newState, changed := entry.unsubscribe(sub)
	if changed && r.m != nil {
		r.m.RecordStreamTransition(newState.String())
	}
}

// Broadcast updates key's header/GOP caches and fans frame out to every
// current subscriber. A frame for a key with no entry (should not occur
// given the command layer only broadcasts after a successful publish) is
// silently dropped.
func (r *Registry) Broadcast(key Key, frame BroadcastFrame) {
	r.mu.RLock()
	entry, ok := r.entries[key]
	r.mu.RUnlock()
	if !ok {
		frame.Release()
		return
	}
	result := entry.broadcast(frame)
	if r.m == nil {
		return
	}
	r.m.RecordFrameDropped("channel_full", result.channelFullDrops)
	r.m.RecordFrameDropped("lagging", result.laggingDrops)
	r.m.RecordSubscriberDemoted(result.demotions)
	r.m.RecordSubscriberResynced(result.resyncs)
}

// IsReady reports whether key's GOP cache is ready to serve a late
// joiner (has a video header and a complete GOP).
func (r *Registry) IsReady(key Key) bool {
	r.mu.RLock()
	entry, ok := r.entries[key]
	r.mu.RUnlock()
	return ok && entry.isReady()
}

// Entry exposes the raw entry for read-only inspection (admin API).
// Returns nil if key is unknown.
func (r *Registry) Entry(key Key) *StreamEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[key]
}

// Keys returns every currently known stream key.
func (r *Registry) Keys() []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]Key, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	return keys
}

// Cleanup sweeps the map once, removing entries whose GracePeriod has
// exceeded PublisherGracePeriod or whose Idle state has exceeded
// IdleStreamTimeout. Returns the keys removed, for logging.
func (r *Registry) Cleanup() []Key {
	now := time.Now()
	var removed []Key

	r.mu.Lock()
	defer r.mu.Unlock()
	for key, entry := range r.entries {
		switch entry.State() {
		case StateGracePeriod:
			if at, ok := entry.disconnectedAt(); ok && now.Sub(at) >= r.cfg.PublisherGracePeriod {
				delete(r.entries, key)
				removed = append(removed, key)
				if r.m != nil {
					r.m.RecordStreamExpired("grace_period")
				}
			}
		case StateIdle:
			idleSince := entry.createdAt
			if at, ok := entry.disconnectedAt(); ok {
				idleSince = at
			}
			if now.Sub(idleSince) >= r.cfg.IdleStreamTimeout {
				delete(r.entries, key)
				removed = append(removed, key)
				if r.m != nil {
					r.m.RecordStreamExpired("idle")
				}
			}
		}
	}
	return removed
}

// RunCleanupLoop runs Cleanup on cfg.CleanupInterval until ctx is
// cancelled. onRemoved, if non-nil, is called with each sweep's removed
// keys (for logging/metrics); it must not block.
func (r *Registry) RunCleanupLoop(ctx context.Context, onRemoved func([]Key)) {
	ticker := time.NewTicker(r.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := r.Cleanup()
			if len(removed) > 0 && onRemoved != nil {
				onRemoved(removed)
			}
		}
	}
}

// Stats is a point-in-time snapshot of one stream entry, for the admin
// API.
type Stats struct {
	Key             Key
	State           string
	PublisherID     uint64
	HasPublisher    bool
	SubscriberCount int
	CreatedAt       time.Time
	GopReady        bool
}

// StatsFor returns a Stats snapshot for key, or ok=false if unknown.
func (r *Registry) StatsFor(key Key) (Stats, bool) {
	r.mu.RLock()
	entry, ok := r.entries[key]
	r.mu.RUnlock()
	if !ok {
		return Stats{}, false
	}
	pid, hasPub := entry.PublisherID()
	return Stats{
		Key:             key,
		State:           entry.State().String(),
		PublisherID:     pid,
		HasPublisher:    hasPub,
		SubscriberCount: entry.SubscriberCount(),
		CreatedAt:       entry.CreatedAt(),
		GopReady:        entry.isReady(),
	}, true
}

// AllStats returns a Stats snapshot for every known stream.
func (r *Registry) AllStats() []Stats {
	keys := r.Keys()
	out := make([]Stats, 0, len(keys))
	for _, k := range keys {
		if s, ok := r.StatsFor(k); ok {
			out = append(out, s)
		}
	}
	return out
}

// FrameFromTag is the registry-facing constructor for a BroadcastFrame
// from a classified media tag — exported so the connection runtime can
// build frames without importing registry's unexported frameFromTag.
func FrameFromTag(tag media.Tag) BroadcastFrame { return frameFromTag(tag) }
