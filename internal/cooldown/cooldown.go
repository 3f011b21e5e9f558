// Package cooldown tracks per-issue remediation cooldowns so a burst of
// webhook deliveries for the same issue (created + comment + status change)
// triggers one remediation, not several.
package cooldown

import (
	"sync"
	"time"

	"github.com/remediarr/remediarr/internal/clock"
)

// Store records when an issue was last acted on and answers whether it is
// still cooling down. Entries expire lazily on read.
type Store struct {
	mu      sync.Mutex
	window  time.Duration
	clk     clock.Clock
	lastHit map[int64]time.Time
}

func NewStore(window time.Duration, clk clock.Clock) *Store {
	return &Store{
		window:  window,
		clk:     clk,
		lastHit: make(map[int64]time.Time),
	}
}

// Active reports whether the issue is inside its cooldown window, and the
// time remaining if so.
func (s *Store) Active(issueID int64) (bool, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hit, ok := s.lastHit[issueID]
	if !ok {
		return false, 0
	}
	elapsed := s.clk.Now().Sub(hit)
	if elapsed >= s.window {
		delete(s.lastHit, issueID)
		return false, 0
	}
	return true, s.window - elapsed
}

// Touch marks the issue as acted on now, starting (or restarting) its window.
func (s *Store) Touch(issueID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastHit[issueID] = s.clk.Now()
}

// Clear drops the cooldown for an issue, used when remediation failed and an
// immediate retry should be allowed.
func (s *Store) Clear(issueID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lastHit, issueID)
}

// Prune removes all expired entries. Called on each delivery so the map does
// not grow without bound on long-running instances.
func (s *Store) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now()
	removed := 0
	for id, hit := range s.lastHit {
		if now.Sub(hit) >= s.window {
			delete(s.lastHit, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked issues, expired entries included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lastHit)
}
