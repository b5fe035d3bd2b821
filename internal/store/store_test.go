package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/matthewbaird/outbreak/internal/engine"
	"github.com/matthewbaird/outbreak/internal/types"
)

func newSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	s := NewSQLStore(db)
	require.NoError(t, s.CreateTable(context.Background()))
	return s
}

func forEachStore(t *testing.T, fn func(t *testing.T, s engine.RecordStore)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, newSQLStore(t)) })
}

func record(epicode, ou, disease string, status types.Status) types.Record {
	r := types.Record{Type: types.RecordEpidemic, Epicode: epicode, Status: status}
	r.OrgUnit, r.Disease, r.Period = ou, disease, "2024W11"
	r.Confirmed = 7
	r.FirstCaseDate = types.NewDate(2024, 3, 11)
	r.Epidemic = true
	return r
}

func TestStore_ReadMissing(t *testing.T) {
	forEachStore(t, func(t *testing.T, s engine.RecordStore) {
		got, err := s.Read(context.Background(), engine.KeyEpidemics)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestStore_WriteReplaces(t *testing.T) {
	forEachStore(t, func(t *testing.T, s engine.RecordStore) {
		ctx := context.Background()
		first := []types.Record{
			record("E_A", "ou1", "Cholera", types.StatusConfirmed),
			record("E_B", "ou2", "Cholera", types.StatusClosed),
		}
		require.NoError(t, s.Write(ctx, engine.KeyEpidemics, first))
		require.NoError(t, s.Write(ctx, engine.KeyAlerts, []types.Record{record("", "ou3", "Measles", "")}))

		got, err := s.Read(ctx, engine.KeyEpidemics)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "E_A", got[0].Epicode)
		assert.Equal(t, 7, got[0].Confirmed)
		assert.Equal(t, types.NewDate(2024, 3, 11), got[0].FirstCaseDate)
		assert.True(t, bool(got[0].Epidemic))

		require.NoError(t, s.Write(ctx, engine.KeyEpidemics, first[1:]))
		got, err = s.Read(ctx, engine.KeyEpidemics)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "E_B", got[0].Epicode)

		alerts, err := s.Read(ctx, engine.KeyAlerts)
		require.NoError(t, err)
		assert.Len(t, alerts, 1)

		require.NoError(t, s.Write(ctx, engine.KeyEpidemics, nil))
		got, err = s.Read(ctx, engine.KeyEpidemics)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestFilter(t *testing.T) {
	recs := []types.Record{
		record("E_A", "ou1", "Cholera", types.StatusConfirmed),
		record("E_B", "ou2", "Cholera", types.StatusClosed),
		record("E_C", "ou1", "Measles", types.StatusConfirmed),
	}
	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"all", Filter{}, []string{"E_A", "E_B", "E_C"}},
		{"disease any case", Filter{Disease: "cholera"}, []string{"E_A", "E_B"}},
		{"org unit and status", Filter{OrgUnit: "ou1", Status: types.StatusConfirmed}, []string{"E_A", "E_C"}},
		{"no match", Filter{Period: "2024W01"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := []string{}
			for _, r := range Apply(recs, tt.filter) {
				got = append(got, r.Epicode)
			}
			assert.Equal(t, tt.want, got)
		})
	}

	r, ok := FindEpicode(recs, "E_C")
	require.True(t, ok)
	assert.Equal(t, "Measles", r.Disease)
	_, ok = FindEpicode(recs, "E_Z")
	assert.False(t, ok)
}
