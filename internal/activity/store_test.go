package activity

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func testEntry(entityType, entityID, category, weight, summary string, daysAgo int) Entry {
	return Entry{
		EventID:           "test-" + summary,
		EventType:         "outbreak_updated",
		OccurredAt:        time.Now().AddDate(0, 0, -daysAgo),
		IndexedEntityType: entityType,
		IndexedEntityID:   entityID,
		EntityRole:        "subject",
		SourceRefs:        []SourceRef{{EntityType: entityType, EntityID: entityID, Role: "subject"}},
		Summary:           summary,
		Category:          category,
		Weight:            weight,
	}
}

func newSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	s := NewSQLStore(db)
	if err := s.CreateTable(context.Background()); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	return s
}

// forEachStore runs fn against every Store implementation.
func forEachStore(t *testing.T, fn func(t *testing.T, store Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, newSQLStore(t)) })
}

func TestStore_WriteAndQuery(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		entries := []Entry{
			testEntry(EntityOutbreak, "E_OU1_A", "outbreak", "critical", "Cholera outbreak declared", 10),
			testEntry(EntityOutbreak, "E_OU1_A", "outbreak", "minor", "Cholera outbreak updated", 5),
			testEntry(EntityOutbreak, "E_OU2_B", "outbreak", "critical", "Measles outbreak declared", 10),
		}
		if err := store.WriteEntries(ctx, entries); err != nil {
			t.Fatalf("WriteEntries: %v", err)
		}

		results, _, total, err := store.QueryByEntity(ctx, EntityOutbreak, "E_OU1_A", DefaultQueryOptions())
		if err != nil {
			t.Fatalf("QueryByEntity: %v", err)
		}
		if total != 2 {
			t.Errorf("total = %d, want 2", total)
		}
		if len(results) != 2 {
			t.Fatalf("results = %d, want 2", len(results))
		}
		if results[0].Summary != "Cholera outbreak updated" {
			t.Errorf("first = %q, want most recent first", results[0].Summary)
		}
		if len(results[0].SourceRefs) != 1 || results[0].SourceRefs[0].EntityID != "E_OU1_A" {
			t.Errorf("source refs = %+v", results[0].SourceRefs)
		}
	})
}

func TestStore_WriteIsIdempotent(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		e := testEntry(EntityOrgUnit, "ou1", "alert", "major", "Alert raised", 1)
		if err := store.WriteEntries(ctx, []Entry{e}); err != nil {
			t.Fatalf("WriteEntries: %v", err)
		}
		if err := store.WriteEntries(ctx, []Entry{e}); err != nil {
			t.Fatalf("WriteEntries again: %v", err)
		}
		_, _, total, err := store.QueryByEntity(ctx, EntityOrgUnit, "ou1", DefaultQueryOptions())
		if err != nil {
			t.Fatalf("QueryByEntity: %v", err)
		}
		if total != 1 {
			t.Errorf("total = %d, want 1", total)
		}
	})
}

func TestStore_QueryByEntity_FilterCategory(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		store.WriteEntries(ctx, []Entry{
			testEntry(EntityOrgUnit, "ou1", "outbreak", "critical", "Outbreak", 10),
			testEntry(EntityOrgUnit, "ou1", "alert", "major", "Alert", 5),
		})

		opts := DefaultQueryOptions()
		opts.Categories = []string{"alert"}
		results, _, total, err := store.QueryByEntity(ctx, EntityOrgUnit, "ou1", opts)
		if err != nil {
			t.Fatalf("QueryByEntity: %v", err)
		}
		if total != 1 || len(results) != 1 {
			t.Fatalf("total = %d, results = %d, want 1", total, len(results))
		}
		if results[0].Category != "alert" {
			t.Errorf("category = %q, want alert", results[0].Category)
		}
	})
}

func TestStore_QueryByEntity_TimeWindow(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		store.WriteEntries(ctx, []Entry{
			testEntry(EntityDisease, "Cholera", "outbreak", "info", "Recent", 5),
			testEntry(EntityDisease, "Cholera", "outbreak", "info", "Old", 200),
		})

		since := time.Now().AddDate(0, 0, -30)
		opts := DefaultQueryOptions()
		opts.Since = &since
		results, _, total, err := store.QueryByEntity(ctx, EntityDisease, "Cholera", opts)
		if err != nil {
			t.Fatalf("QueryByEntity: %v", err)
		}
		if total != 1 {
			t.Errorf("total = %d, want 1", total)
		}
		if len(results) != 1 || results[0].Summary != "Recent" {
			t.Errorf("expected only 'Recent' entry")
		}
	})
}

func TestStore_QueryByEntity_MinWeight(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		store.WriteEntries(ctx, []Entry{
			testEntry(EntityOutbreak, "E1", "outbreak", "info", "Info level", 5),
			testEntry(EntityOutbreak, "E1", "outbreak", "major", "Major level", 5),
		})

		opts := DefaultQueryOptions()
		opts.MinWeight = "major"
		results, _, total, err := store.QueryByEntity(ctx, EntityOutbreak, "E1", opts)
		if err != nil {
			t.Fatalf("QueryByEntity: %v", err)
		}
		if total != 1 {
			t.Errorf("total = %d, want 1", total)
		}
		if len(results) != 1 || results[0].Weight != "major" {
			t.Errorf("expected only 'major' entry")
		}
	})
}

func TestStore_QueryByEntity_Pagination(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		store.WriteEntries(ctx, []Entry{
			testEntry(EntityOutbreak, "E1", "outbreak", "minor", "day 1", 3),
			testEntry(EntityOutbreak, "E1", "outbreak", "minor", "day 2", 2),
			testEntry(EntityOutbreak, "E1", "outbreak", "minor", "day 3", 1),
		})

		opts := DefaultQueryOptions()
		opts.Limit = 2
		page, cursor, total, err := store.QueryByEntity(ctx, EntityOutbreak, "E1", opts)
		if err != nil {
			t.Fatalf("QueryByEntity: %v", err)
		}
		if total != 3 || len(page) != 2 || cursor == "" {
			t.Fatalf("total = %d, page = %d, cursor = %q", total, len(page), cursor)
		}

		opts.Cursor = cursor
		page, cursor, _, err = store.QueryByEntity(ctx, EntityOutbreak, "E1", opts)
		if err != nil {
			t.Fatalf("QueryByEntity page 2: %v", err)
		}
		if len(page) != 1 || page[0].Summary != "day 1" {
			t.Errorf("page 2 = %+v, want only 'day 1'", page)
		}
		if cursor != "" {
			t.Errorf("cursor = %q, want none on last page", cursor)
		}
	})
}

func TestStore_Search(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		store.WriteEntries(ctx, []Entry{
			testEntry(EntityOutbreak, "E1", "outbreak", "critical", "Cholera outbreak in Kasese", 5),
			testEntry(EntityOutbreak, "E2", "alert", "major", "Measles alert in Gulu", 10),
			testEntry(EntityOrgUnit, "ou1", "outbreak", "critical", "cholera outbreak closed", 3),
		})

		results, total, err := store.Search(ctx, "CHOLERA", DefaultSearchOptions())
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if total != 2 || len(results) != 2 {
			t.Errorf("total = %d, results = %d, want 2", total, len(results))
		}

		opts := DefaultSearchOptions()
		opts.EntityType = EntityOrgUnit
		results, total, err = store.Search(ctx, "cholera", opts)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if total != 1 || len(results) != 1 || results[0].IndexedEntityType != EntityOrgUnit {
			t.Errorf("expected only the org unit entry")
		}

		results, total, err = store.Search(ctx, "zzzznotfound", DefaultSearchOptions())
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if total != 0 || len(results) != 0 {
			t.Errorf("expected no results, got %d", total)
		}
	})
}

func TestStore_EmptyStore(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		results, _, total, err := store.QueryByEntity(context.Background(), EntityOutbreak, "nobody", DefaultQueryOptions())
		if err != nil {
			t.Fatalf("QueryByEntity: %v", err)
		}
		if total != 0 || len(results) != 0 {
			t.Errorf("expected empty results from empty store")
		}
	})
}

func TestIsAtLeastWeight(t *testing.T) {
	tests := []struct {
		actual, minimum string
		want            bool
	}{
		{"critical", "major", true},
		{"major", "major", true},
		{"minor", "major", false},
		{"bogus", "info", false},
	}
	for _, tt := range tests {
		if got := IsAtLeastWeight(tt.actual, tt.minimum); got != tt.want {
			t.Errorf("IsAtLeastWeight(%q, %q) = %v, want %v", tt.actual, tt.minimum, got, tt.want)
		}
	}
}
