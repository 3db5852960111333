package counter

import (
	"context"
	"sync"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is a single-node Store for the memory driver and tests.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]int64)}
}

func (s *MemoryStore) Increment(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[userID]++
	return s.values[userID], nil
}

func (s *MemoryStore) Decrement(_ context.Context, userID string, n int64) (int64, error) {
	if n < 0 {
		return 0, ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.values[userID]
	if !ok {
		return 0, nil
	}
	cur = max(cur-n, 0)
	s.values[userID] = cur
	return cur, nil
}

func (s *MemoryStore) Reset(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[userID] = 0
	return nil
}

func (s *MemoryStore) Get(_ context.Context, userID string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[userID]
	return v, ok, nil
}
