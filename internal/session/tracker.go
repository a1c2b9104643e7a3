package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Info is the subset of a State safe to read from any goroutine: fields
// fixed at connection accept time, not the mutable counters a session's
// own connection goroutine updates.
type Info struct {
	ID          uint64
	ConnID      uuid.UUID
	PeerAddr    string
	ConnectedAt time.Time
}

// Tracker is a concurrent registry of sessions currently being served, so
// the admin API can list active connections by their external
// correlation id without reaching into state another goroutine owns.
type Tracker struct {
	mu    sync.RWMutex
	infos map[uint64]Info
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker { return &Tracker{infos: make(map[uint64]Info)} }

// Add registers s as an active session.
func (t *Tracker) Add(s *State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.infos[s.ID] = Info{ID: s.ID, ConnID: s.ConnID, PeerAddr: s.PeerAddr, ConnectedAt: s.ConnectedAt}
}

// Remove drops id from the tracker.
func (t *Tracker) Remove(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.infos, id)
}

// Snapshot returns every currently tracked session.
func (t *Tracker) Snapshot() []Info {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Info, 0, len(t.infos))
	for _, info := range t.infos {
		out = append(out, info)
	}
	return out
}
