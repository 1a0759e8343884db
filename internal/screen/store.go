package screen

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultHistorySize is the number of app-switch snapshots kept.
const DefaultHistorySize = 10

// Store holds the latest snapshot and a bounded history of the snapshots
// that were current when the foreground app changed.
//
// Readers never block: the current snapshot is swapped atomically. Only the
// history is guarded by a lock.
type Store struct {
	current atomic.Pointer[Snapshot]

	mu       sync.Mutex
	history  []*Snapshot
	capacity int
}

// NewStore creates a Store keeping up to capacity history entries.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &Store{capacity: capacity}
}

// Update publishes snap as the current snapshot. The previous one moves to
// history only if it belonged to a different app.
func (s *Store) Update(snap *Snapshot) {
	if snap == nil {
		return
	}
	prev := s.current.Swap(snap)
	if prev == nil || prev.Package == snap.Package {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, prev)
	if over := len(s.history) - s.capacity; over > 0 {
		clear(s.history[:over])
		s.history = s.history[over:]
	}
}

// Current returns the current snapshot, if any.
func (s *Store) Current() (*Snapshot, bool) {
	snap := s.current.Load()
	return snap, snap != nil
}

// CurrentOrEmpty returns the current snapshot or a placeholder with no
// elements.
func (s *Store) CurrentOrEmpty() *Snapshot {
	if snap := s.current.Load(); snap != nil {
		return snap
	}
	return &Snapshot{
		Package:    "none",
		Hierarchy:  "No screen data available",
		CapturedAt: time.Now(),
	}
}

// HasData reports whether a snapshot has been published.
func (s *Store) HasData() bool { return s.current.Load() != nil }

// History returns the app-switch history, oldest first.
func (s *Store) History() []*Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Snapshot(nil), s.history...)
}

// Clear drops the current snapshot and the history.
func (s *Store) Clear() {
	s.current.Store(nil)
	s.mu.Lock()
	s.history = nil
	s.mu.Unlock()
}
