package audit

import (
	"context"
	"sync"
)

// InMemoryStore keeps events in order for tests and the CLI status view.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// ListAll returns a copy of every event in append order.
func (s *InMemoryStore) ListAll(_ context.Context) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event{}, s.events...), nil
}

// Actions returns the action of every event in append order.
func (s *InMemoryStore) Actions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.Action
	}
	return out
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}
