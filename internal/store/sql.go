package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/matthewbaird/outbreak/internal/types"
)

const tableName = "outbreak_records"

// Schema is the DDL of the record table. Each record is kept as its JSON
// document, next to the columns used for lookups.
const Schema = `
CREATE TABLE IF NOT EXISTS outbreak_records (
	collection TEXT    NOT NULL,
	position   INTEGER NOT NULL,
	epicode    TEXT    NOT NULL DEFAULT '',
	org_unit   TEXT    NOT NULL DEFAULT '',
	disease    TEXT    NOT NULL DEFAULT '',
	period     TEXT    NOT NULL DEFAULT '',
	status     TEXT    NOT NULL DEFAULT '',
	document   TEXT    NOT NULL,
	PRIMARY KEY (collection, position)
);
CREATE INDEX IF NOT EXISTS idx_outbreak_records_epicode
	ON outbreak_records (collection, epicode);
`

var recordColumns = []string{"collection", "position", "epicode", "org_unit", "disease", "period", "status", "document"}

// SQLStore persists record collections in SQLite. A write replaces the
// whole collection inside one transaction.
type SQLStore struct {
	db *sql.DB
	b  *entsql.DialectBuilder
}

// NewSQLStore creates a new SQLStore.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, b: entsql.Dialect(dialect.SQLite)}
}

// CreateTable creates the record table for local stores and tests.
func (s *SQLStore) CreateTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	return err
}

// Read returns the collection stored under key in write order.
func (s *SQLStore) Read(ctx context.Context, key string) ([]types.Record, error) {
	query, args := s.b.Select("document").
		From(entsql.Table(tableName)).
		Where(entsql.EQ("collection", key)).
		OrderBy(entsql.Asc("position")).
		Query()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	defer rows.Close()

	var out []types.Record
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("reading %s: %w", key, err)
		}
		var r types.Record
		if err := json.Unmarshal([]byte(doc), &r); err != nil {
			return nil, fmt.Errorf("decoding %s record: %w", key, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Write replaces the collection stored under key.
func (s *SQLStore) Write(ctx context.Context, key string, records []types.Record) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query, args := s.b.Delete(tableName).Where(entsql.EQ("collection", key)).Query()
	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("clearing %s: %w", key, err)
	}
	if len(records) > 0 {
		ins := s.b.Insert(tableName).Columns(recordColumns...)
		for i, r := range records {
			doc, merr := json.Marshal(r)
			if merr != nil {
				return fmt.Errorf("encoding %s record %d: %w", key, i, merr)
			}
			ins.Values(key, i, r.Epicode, r.OrgUnit, r.Disease, r.Period, string(r.Status), string(doc))
		}
		query, args = ins.Query()
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("inserting %s: %w", key, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing %s: %w", key, err)
	}
	return nil
}
