package activity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
)

const tableName = "activity_entries"

// timeLayout is fixed width so that stored timestamps order lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

var entryColumns = []string{
	"event_id", "event_type", "occurred_at", "indexed_entity_type", "indexed_entity_id",
	"entity_role", "source_refs", "summary", "category", "weight", "payload",
}

// SQLStore implements Store on SQLite. Queries are assembled with the ent
// SQL builder; the activity table lives outside any generated schema.
type SQLStore struct {
	db *sql.DB
	b  *entsql.DialectBuilder
}

// NewSQLStore creates a new SQLStore.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, b: entsql.Dialect(dialect.SQLite)}
}

// CreateTable creates the activity_entries table and its indexes. Deployed
// databases are migrated with `idsr migrate`; this is for local stores and
// tests.
func (s *SQLStore) CreateTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	return err
}

// Schema is the DDL of the activity table.
const Schema = `
CREATE TABLE IF NOT EXISTS activity_entries (
	event_id            TEXT NOT NULL,
	event_type          TEXT NOT NULL,
	occurred_at         TEXT NOT NULL,
	indexed_entity_type TEXT NOT NULL,
	indexed_entity_id   TEXT NOT NULL,
	entity_role         TEXT NOT NULL,
	source_refs         TEXT NOT NULL DEFAULT '[]',
	summary             TEXT NOT NULL,
	category            TEXT NOT NULL,
	weight              TEXT NOT NULL,
	payload             TEXT,
	PRIMARY KEY (indexed_entity_type, indexed_entity_id, event_id)
);
CREATE INDEX IF NOT EXISTS idx_activity_entity_time
	ON activity_entries (indexed_entity_type, indexed_entity_id, occurred_at DESC);
`

// WriteEntries inserts activity entries. Entries already stored are skipped.
func (s *SQLStore) WriteEntries(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	ins := s.b.Insert(tableName).Columns(entryColumns...)
	for _, e := range entries {
		refs, err := json.Marshal(e.SourceRefs)
		if err != nil {
			return fmt.Errorf("encoding source refs: %w", err)
		}
		var payload any
		if len(e.Payload) > 0 {
			payload = string(e.Payload)
		}
		ins.Values(
			e.EventID, e.EventType, formatTime(e.OccurredAt), e.IndexedEntityType, e.IndexedEntityID,
			e.EntityRole, string(refs), e.Summary, e.Category, e.Weight, payload,
		)
	}
	ins.OnConflict(entsql.DoNothing())
	query, args := ins.Query()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("writing activity entries: %w", err)
	}
	return nil
}

// QueryByEntity returns activity entries for a specific entity with filtering and pagination.
func (s *SQLStore) QueryByEntity(ctx context.Context, entityType, entityID string, opts QueryOptions) ([]Entry, string, int, error) {
	preds := []*entsql.Predicate{
		entsql.EQ("indexed_entity_type", entityType),
		entsql.EQ("indexed_entity_id", entityID),
	}
	if opts.Since != nil {
		preds = append(preds, entsql.GTE("occurred_at", formatTime(*opts.Since)))
	}
	if opts.Until != nil {
		preds = append(preds, entsql.LTE("occurred_at", formatTime(*opts.Until)))
	}
	if len(opts.Categories) > 0 {
		preds = append(preds, entsql.In("category", toAny(opts.Categories)...))
	}
	if opts.MinWeight != "" {
		preds = append(preds, entsql.In("weight", toAny(weightsAtLeast(opts.MinWeight))...))
	}

	total, err := s.count(ctx, preds)
	if err != nil {
		return nil, "", 0, err
	}
	if cursor, ok := cursorTime(opts.Cursor); ok {
		preds = append(preds, entsql.LT("occurred_at", formatTime(cursor)))
	}

	limit := opts.limit()
	// Fetch one extra row to know whether a next page exists.
	entries, err := s.selectEntries(ctx, preds, limit+1)
	if err != nil {
		return nil, "", 0, err
	}
	var nextCursor string
	if len(entries) > limit {
		entries = entries[:limit]
		nextCursor = cursorOf(entries[len(entries)-1])
	}
	return entries, nextCursor, total, nil
}

// Search performs a case-insensitive substring search across summaries.
func (s *SQLStore) Search(ctx context.Context, query string, opts SearchOptions) ([]Entry, int, error) {
	preds := []*entsql.Predicate{entsql.ContainsFold("summary", query)}
	if opts.EntityType != "" {
		preds = append(preds, entsql.EQ("indexed_entity_type", opts.EntityType))
	}
	if opts.Since != nil {
		preds = append(preds, entsql.GTE("occurred_at", formatTime(*opts.Since)))
	}
	if len(opts.Categories) > 0 {
		preds = append(preds, entsql.In("category", toAny(opts.Categories)...))
	}
	total, err := s.count(ctx, preds)
	if err != nil {
		return nil, 0, err
	}
	entries, err := s.selectEntries(ctx, preds, opts.limit())
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (s *SQLStore) count(ctx context.Context, preds []*entsql.Predicate) (int, error) {
	query, args := s.b.Select(entsql.Count("*")).
		From(entsql.Table(tableName)).
		Where(entsql.And(preds...)).
		Query()
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting activity entries: %w", err)
	}
	return n, nil
}

func (s *SQLStore) selectEntries(ctx context.Context, preds []*entsql.Predicate, limit int) ([]Entry, error) {
	query, args := s.b.Select(entryColumns...).
		From(entsql.Table(tableName)).
		Where(entsql.And(preds...)).
		OrderBy(entsql.Desc("occurred_at")).
		Limit(limit).
		Query()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying activity entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var occurred, refs string
		var payload sql.NullString
		err := rows.Scan(
			&e.EventID, &e.EventType, &occurred, &e.IndexedEntityType, &e.IndexedEntityID,
			&e.EntityRole, &refs, &e.Summary, &e.Category, &e.Weight, &payload,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning activity entry: %w", err)
		}
		if e.OccurredAt, err = time.Parse(timeLayout, occurred); err != nil {
			return nil, fmt.Errorf("scanning activity entry: occurred_at %q: %w", occurred, err)
		}
		if refs != "" {
			_ = json.Unmarshal([]byte(refs), &e.SourceRefs)
		}
		if payload.Valid {
			e.Payload = json.RawMessage(payload.String)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
