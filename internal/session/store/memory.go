package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"minerva/pkg/platform/sentinel"
)

// InMemoryStore keeps the namespace in a map for tests and ephemeral sessions.
type InMemoryStore struct {
	mu     sync.RWMutex
	values map[Key]string
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *InMemoryStore {
	return &InMemoryStore{values: make(map[Key]string)}
}

func (s *InMemoryStore) Get(_ context.Context, key Key) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[key]; ok {
		return v, nil
	}
	return "", fmt.Errorf("key %s: %w", key, sentinel.ErrNotFound)
}

func (s *InMemoryStore) Set(_ context.Context, key Key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

func (s *InMemoryStore) Keys(_ context.Context) ([]Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]Key, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys, nil
}
