package event

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/outbreak/internal/activity"
	"github.com/matthewbaird/outbreak/internal/types"
)

func outbreak() types.Record {
	rec := types.Record{Epicode: "E_OU1_ABCDEFGHIJK", Status: types.StatusConfirmed}
	rec.OrgUnit = "ou1"
	rec.OrgUnitName = "Kasese HC"
	rec.Disease = "Cholera"
	rec.Period = "2024W11"
	rec.Confirmed = 5
	rec.Suspected = 7
	rec.EndDate = types.NewDate(2024, 3, 31)
	return rec
}

type capture struct{ events []DomainEvent }

func (c *capture) Publish(_ context.Context, evt DomainEvent) { c.events = append(c.events, evt) }

// failingStore rejects every write.
type failingStore struct{ *activity.MemoryStore }

func (failingStore) WriteEntries(context.Context, []activity.Entry) error {
	return errors.New("disk full")
}

func TestNewOutbreakDeclared(t *testing.T) {
	evt := NewOutbreakDeclared(outbreak())
	assert.Equal(t, TypeOutbreakDeclared, evt.EventType)
	assert.Equal(t, "critical", evt.Weight)
	assert.Equal(t, "outbreak", evt.Category)
	assert.NotEmpty(t, evt.ID)
	assert.Contains(t, evt.Summary, "Cholera outbreak E_OU1_ABCDEFGHIJK declared in Kasese HC")
	require.Len(t, evt.AffectedEntities, 3)
	assert.Equal(t, activity.EntityOutbreak, evt.AffectedEntities[0].EntityType)

	var p RecordPayload
	require.NoError(t, json.Unmarshal(evt.Payload, &p))
	assert.Equal(t, 5, p.Confirmed)
	assert.Equal(t, "2024-03-31", p.EndDate)
}

func TestNewAlertRaised(t *testing.T) {
	rec := outbreak()
	rec.Epicode = ""
	evt := NewAlertRaised(rec)
	assert.Equal(t, "alert", evt.Category)
	assert.Equal(t, "ou1/Cholera/2024W11", evt.AffectedEntities[0].EntityID)
	assert.Contains(t, evt.Summary, "7 suspected")
}

func TestActivityRecorder_FansOutAndPublishes(t *testing.T) {
	ctx := context.Background()
	store := activity.NewMemoryStore()
	bus := &capture{}
	rec := NewActivityRecorder(store)
	rec.SetPublisher(bus)

	evt := NewOutbreakClosed(outbreak())
	require.NoError(t, rec.Record(ctx, evt))
	require.Len(t, bus.events, 1)
	assert.Equal(t, evt.ID, bus.events[0].ID)

	for _, ref := range evt.AffectedEntities {
		got, _, total, err := store.QueryByEntity(ctx, ref.EntityType, ref.EntityID, activity.DefaultQueryOptions())
		require.NoError(t, err)
		assert.Equal(t, 1, total, ref.EntityType)
		assert.Equal(t, ref.Role, got[0].EntityRole)
	}
}

func TestActivityRecorder_SkipsPublishOnStoreFailure(t *testing.T) {
	bus := &capture{}
	rec := NewActivityRecorder(failingStore{activity.NewMemoryStore()})
	rec.SetPublisher(bus)

	err := rec.Record(context.Background(), NewRunCompleted(RunCompletedPayload{RunID: "run-1"}))
	assert.Error(t, err)
	assert.Empty(t, bus.events)
}
