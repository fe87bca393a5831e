// Package memory provides an in-memory audit store for tests and for running
// the engine without Postgres.
package memory

import (
	"context"
	"sync"

	id "payouts/pkg/domain"
	audit "payouts/pkg/platform/audit"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	events []audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a snapshot of everything appended so far.
func (s *InMemoryStore) Events() []audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]audit.Event, len(s.events))
	copy(out, s.events)
	return out
}

// ByPayout returns the trail for one payout, oldest first.
func (s *InMemoryStore) ByPayout(payoutID id.PayoutID) []audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Event
	for _, e := range s.events {
		if e.PayoutID == payoutID {
			out = append(out, e)
		}
	}
	return out
}
