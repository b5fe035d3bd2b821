// Package activity keeps the audit trail of outbreak lifecycle events: one
// entry per (event, referenced entity), queryable per outbreak, org unit or
// disease and searchable by summary.
package activity

import (
	"context"
	"time"
)

// Store is the interface for reading and writing activity entries.
type Store interface {
	// WriteEntries writes one or more activity entries (one event → many entries).
	WriteEntries(ctx context.Context, entries []Entry) error

	// QueryByEntity returns activity entries for a specific entity.
	QueryByEntity(ctx context.Context, entityType, entityID string, opts QueryOptions) (entries []Entry, nextCursor string, totalCount int, err error)

	// Search performs a case-insensitive substring search across summaries.
	Search(ctx context.Context, query string, opts SearchOptions) (entries []Entry, totalCount int, err error)
}

// QueryOptions controls filtering and pagination for entity activity queries.
type QueryOptions struct {
	Since      *time.Time // default: 6 months ago
	Until      *time.Time // default: now
	Categories []string   // filter to specific categories
	MinWeight  string     // minimum weight threshold (default: "info")
	Limit      int        // max results (default: 100, max: 500)
	Cursor     string     // cursor for pagination
}

// SearchOptions controls filtering for activity search.
type SearchOptions struct {
	EntityType string     // filter to specific entity type
	Since      *time.Time // filter by time
	Categories []string   // filter to specific categories
	Limit      int        // max results (default: 20)
}

// DefaultQueryOptions returns QueryOptions with sensible defaults.
func DefaultQueryOptions() QueryOptions {
	sixMonthsAgo := time.Now().AddDate(0, -6, 0)
	now := time.Now()
	return QueryOptions{
		Since:     &sixMonthsAgo,
		Until:     &now,
		MinWeight: "info",
		Limit:     100,
	}
}

// DefaultSearchOptions returns SearchOptions with sensible defaults.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		Limit: 20,
	}
}

func (o QueryOptions) limit() int {
	if o.Limit <= 0 || o.Limit > 500 {
		return 100
	}
	return o.Limit
}

func (o SearchOptions) limit() int {
	if o.Limit <= 0 {
		return 20
	}
	return o.Limit
}

// cursorTime decodes a pagination cursor: the occurred_at of the last entry
// of the previous page.
func cursorTime(cursor string) (time.Time, bool) {
	if cursor == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, cursor)
	return t, err == nil
}

func cursorOf(e Entry) string { return e.OccurredAt.UTC().Format(time.RFC3339Nano) }
