package signals

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/outbreak/internal/lifecycle"
	"github.com/matthewbaird/outbreak/internal/period"
	"github.com/matthewbaird/outbreak/internal/table"
	"github.com/matthewbaird/outbreak/internal/types"
)

func testReconciler() *lifecycle.Reconciler {
	return lifecycle.NewReconciler(lifecycle.WithClock(func() time.Time { return testNow }))
}

func persistedConfirmed(from types.Record) types.Record {
	p := types.Record{Epicode: "E_KNOWN", Status: types.StatusConfirmed, Type: types.RecordEpidemic}
	p.OrgUnit, p.Disease, p.Period = from.OrgUnit, from.Disease, from.Period
	p.Active = true
	return p
}

func TestCaseBasedDetection_ClosesPersistedConfirmed(t *testing.T) {
	ind := table.New([]string{table.ColOrgUnitID, table.ColOrgUnitName, "confPI", "deathPI", "suspPI"},
		table.Row{table.ColOrgUnitID: "ou1", table.ColOrgUnitName: "Kasese HC", "confPI": "25", "deathPI": "0", "suspPI": "0"},
	)
	reg := table.New([]string{table.ColOU, table.ColOnsetDate},
		table.Row{table.ColOU: "ou1", table.ColOnsetDate: "2024-03-11"},
	)
	detected, err := DetectCaseBased(CaseBasedInput{Indicators: ind, Registrations: reg}, caseMeta(), testOrgUnits(), testRun())
	require.NoError(t, err)
	require.Len(t, detected, 1)

	res := testReconciler().Reconcile(context.Background(),
		[]types.Record{persistedConfirmed(detected[0])}, detected, lifecycle.ModeEpidemic)
	require.Len(t, res.Updated, 1)
	upd := res.Updated[0]
	assert.Equal(t, "E_KNOWN", upd.Epicode)
	assert.Equal(t, types.StatusClosed, upd.Status)
	assert.False(t, bool(upd.Active))
	assert.Equal(t, testToday, upd.CloseDate)
	assert.Equal(t, 1, res.Transitions)
}

func TestAggregateDetection_ClosureLifecycle(t *testing.T) {
	periods := period.Windows(testNow, 3, 0, types.AlgorithmNonSeasonal)
	ds := wideTable(periods, map[string][]float64{"ou1": {5, 2, 3, 1}})
	detected, err := DetectAggregate(ds, aggregateMeta(types.AlgorithmNonSeasonal), testOrgUnits(), periods, 3, testRun())
	require.NoError(t, err)
	require.Len(t, detected, 1)

	rc := testReconciler()
	ctx := context.Background()
	first := rc.Reconcile(ctx, []types.Record{persistedConfirmed(detected[0])}, detected, lifecycle.ModeEpidemic)
	require.Len(t, first.Updated, 1)
	closed := first.Updated[0]
	assert.Equal(t, types.StatusClosed, closed.Status)
	assert.Equal(t, testToday, closed.CloseDate)

	program := types.ReportingProgram{ID: "prog", ProgramStage: types.ProgramStage{ID: "stage", DataElements: []types.Ref{
		{ID: "deX", Name: lifecycle.DEClosure},
	}}}
	ev := lifecycle.Envelope(closed, program, testToday)
	assert.Contains(t, ev.DataValues, types.DataValue{DataElement: "deX", Value: string(types.StatusClosed)})

	// The next run re-detects the same lineage: it stays Closed.
	second := rc.Reconcile(ctx, first.Merged, detected, lifecycle.ModeEpidemic)
	require.Len(t, second.Updated, 1)
	assert.Equal(t, types.StatusClosed, second.Updated[0].Status)
	assert.Equal(t, testToday, second.Updated[0].CloseDate)
	assert.Zero(t, second.Transitions)
}
