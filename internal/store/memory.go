package store

import (
	"context"
	"slices"
	"sync"

	"github.com/matthewbaird/outbreak/internal/types"
)

// MemoryStore keeps record collections in memory.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string][]types.Record
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string][]types.Record)}
}

// Read returns a copy of the collection stored under key.
func (s *MemoryStore) Read(_ context.Context, key string) ([]types.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.collections[key]), nil
}

// Write replaces the collection stored under key.
func (s *MemoryStore) Write(_ context.Context, key string, records []types.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[key] = slices.Clone(records)
	return nil
}
