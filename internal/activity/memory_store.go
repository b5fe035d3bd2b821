package activity

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
)

// MemoryStore implements Store using in-memory slices. Used by tests and by
// `idsr serve` when no database is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	seen    map[string]bool
}

// NewMemoryStore creates a new empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: map[string]bool{}}
}

// WriteEntries appends entries, ignoring any (event, entity) pair already
// stored.
func (s *MemoryStore) WriteEntries(_ context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		k := e.EventID + "\x00" + e.IndexedEntityType + "\x00" + e.IndexedEntityID
		if s.seen[k] {
			continue
		}
		s.seen[k] = true
		s.entries = append(s.entries, e)
	}
	return nil
}

func (s *MemoryStore) QueryByEntity(_ context.Context, entityType, entityID string, opts QueryOptions) ([]Entry, string, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cursor, hasCursor := cursorTime(opts.Cursor)
	var matched []Entry
	total := 0
	for _, e := range s.entries {
		if e.IndexedEntityType != entityType || e.IndexedEntityID != entityID {
			continue
		}
		if opts.Since != nil && e.OccurredAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && e.OccurredAt.After(*opts.Until) {
			continue
		}
		if len(opts.Categories) > 0 && !slices.Contains(opts.Categories, e.Category) {
			continue
		}
		if opts.MinWeight != "" && !IsAtLeastWeight(e.Weight, opts.MinWeight) {
			continue
		}
		total++
		if hasCursor && !e.OccurredAt.Before(cursor) {
			continue
		}
		matched = append(matched, e)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].OccurredAt.After(matched[j].OccurredAt)
	})

	var nextCursor string
	if limit := opts.limit(); len(matched) > limit {
		matched = matched[:limit]
		nextCursor = cursorOf(matched[len(matched)-1])
	}
	return matched, nextCursor, total, nil
}

func (s *MemoryStore) Search(_ context.Context, query string, opts SearchOptions) ([]Entry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(query)
	var matched []Entry
	for _, e := range s.entries {
		if !strings.Contains(strings.ToLower(e.Summary), q) {
			continue
		}
		if opts.EntityType != "" && e.IndexedEntityType != opts.EntityType {
			continue
		}
		if opts.Since != nil && e.OccurredAt.Before(*opts.Since) {
			continue
		}
		if len(opts.Categories) > 0 && !slices.Contains(opts.Categories, e.Category) {
			continue
		}
		matched = append(matched, e)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].OccurredAt.After(matched[j].OccurredAt)
	})

	total := len(matched)
	if limit := opts.limit(); len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}
