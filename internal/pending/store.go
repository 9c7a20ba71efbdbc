// Package pending implements the pending-confirmation store (spec §4.8):
// a single TTL map keyed by session that holds the one confirmation a
// session is waiting on (a mission build, a weather-location guess).
package pending

import (
	"sync"
	"time"

	"github.com/nova-run/orchestrator/pkg/models"
)

const defaultTTL = 10 * time.Minute

type entry struct {
	value   models.PendingConfirmation
	savedAt time.Time
}

// Store holds at most one PendingConfirmation per session key. It is safe
// for concurrent use. Losing this state (process restart) is tolerable:
// the next turn simply fails to find a pending confirmation and the
// dispatcher re-asks instead of acting.
type Store struct {
	mu  sync.Mutex
	ttl time.Duration
	m   map[string]entry
}

// New creates a Store with the given TTL. A non-positive ttl uses the
// 10-minute default.
func New(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{ttl: ttl, m: make(map[string]entry)}
}

// Set arms a pending confirmation for sessionKey, overwriting any prior
// one.
func (s *Store) Set(sessionKey string, c models.PendingConfirmation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	s.m[sessionKey] = entry{value: c, savedAt: c.CreatedAt}
}

// Get returns the pending confirmation for sessionKey, purging it first
// if it has expired.
func (s *Store) Get(sessionKey string) (models.PendingConfirmation, bool) {
	return s.GetAt(sessionKey, time.Now())
}

// GetAt is Get with an explicit reference time, for deterministic tests.
func (s *Store) GetAt(sessionKey string, now time.Time) (models.PendingConfirmation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[sessionKey]
	if !ok {
		return models.PendingConfirmation{}, false
	}
	if now.Sub(e.savedAt) > s.ttl {
		delete(s.m, sessionKey)
		return models.PendingConfirmation{}, false
	}
	return e.value, true
}

// Clear removes any pending confirmation for sessionKey, used once it has
// been accepted, declined, or superseded.
func (s *Store) Clear(sessionKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, sessionKey)
}

// Sweep proactively removes every entry that has expired as of now,
// returning the count removed. Lazy expiry on Get already keeps a read
// from ever observing a stale entry; Sweep exists so a session that
// never calls Get again doesn't leak its slot forever.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, e := range s.m {
		if now.Sub(e.savedAt) > s.ttl {
			delete(s.m, k)
			removed++
		}
	}
	return removed
}
