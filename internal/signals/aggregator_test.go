package signals

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/outbreak/internal/lifecycle"
	"github.com/matthewbaird/outbreak/internal/period"
	"github.com/matthewbaird/outbreak/internal/table"
	"github.com/matthewbaird/outbreak/internal/types"
)

var (
	testNow   = time.Date(2024, time.March, 13, 8, 0, 0, 0, time.UTC)
	testToday = types.DateOf(testNow)
)

func testRun() RunContext {
	return RunContext{
		Today: testToday,
		Codes: lifecycle.CodeGeneratorFunc(func(ou string) string {
			return lifecycle.FormatEpicode(ou, "DRAFT")
		}),
	}
}

func testOrgUnits() types.OrgUnits {
	return types.NewOrgUnits([]types.OrgUnitNode{
		{
			ID: "ou1", Code: "OU1", Name: "Kasese HC", Level: 3,
			Ancestors: []types.OrgUnitRef{{ID: "root", Name: "Uganda"}, {ID: "d1", Name: "Kasese District"}},
		},
		{
			ID: "ou2", Code: "OU2", Name: "Gulu HC", Level: 3,
			Ancestors: []types.OrgUnitRef{{ID: "root", Name: "Uganda"}, {ID: "d2", Name: "Gulu District"}},
		},
	})
}

func aggregateMeta(alg types.Algorithm) types.DiseaseMetadata {
	return types.DiseaseMetadata{
		Code:           "CHOL",
		Name:           "Cholera",
		Algorithm:      alg,
		DetectionLevel: 3,
		ReportingLevel: 2,
		IncubationDays: 7,
		Indicators:     []types.Indicator{{ID: "casesPI"}, {ID: "deathsPI"}},
	}
}

// wideTable builds an aggregate table with one row per org unit; values are
// aligned with periods for the cases indicator, deaths default to zero.
func wideTable(periods []period.Period, rows map[string][]float64) *table.Dataset {
	cols := []string{table.ColOrgUnitID, table.ColOrgUnitName, table.ColOrgUnitCode, table.LevelColumn(2)}
	for _, pe := range periods {
		cols = append(cols, "casesPI."+string(pe), "deathsPI."+string(pe))
	}
	ds := table.New(cols)
	for _, ou := range []string{"ou1", "ou2"} {
		vals, ok := rows[ou]
		if !ok {
			continue
		}
		r := table.Row{
			table.ColOrgUnitID:   ou,
			table.ColOrgUnitName: "name " + ou,
			table.ColOrgUnitCode: "",
			table.LevelColumn(2): "level2 " + ou,
		}
		for i, pe := range periods {
			r["casesPI."+string(pe)] = table.FormatFloat(vals[i])
			r["deathsPI."+string(pe)] = "0"
		}
		ds.Append(r)
	}
	return ds
}

func TestDetectAggregate_NonSeasonalEpidemic(t *testing.T) {
	periods := period.Windows(testNow, 3, 0, types.AlgorithmNonSeasonal)
	ds := wideTable(periods, map[string][]float64{"ou1": {5, 2, 3, 1}})

	got, err := DetectAggregate(ds, aggregateMeta(types.AlgorithmNonSeasonal), testOrgUnits(), periods, 3, testRun())
	require.NoError(t, err)
	require.Len(t, got, 1)

	rec := got[0]
	assert.True(t, bool(rec.Epidemic))
	assert.True(t, bool(rec.Alert))
	assert.Equal(t, "2024W11", rec.Period)
	assert.Equal(t, 5, rec.Confirmed)
	assert.Equal(t, 5, rec.Suspected)
	require.NotNil(t, rec.Cases)
	assert.InDelta(t, 2.0, rec.Cases.Mean, 1e-9)
	assert.InDelta(t, 1.0, rec.Cases.Stddev, 1e-9)
	assert.InDelta(t, 4.0, rec.Cases.Mean20Std, 1e-9)
	assert.Equal(t, types.NewDate(2024, 3, 11), rec.FirstCaseDate)
	assert.Equal(t, types.NewDate(2024, 3, 17), rec.LastCaseDate)
	assert.Equal(t, types.NewDate(2024, 3, 31), rec.EndDate)
	assert.Equal(t, types.NewDate(2024, 3, 24), rec.ReminderDate)
	assert.Equal(t, "d1", rec.ReportingOrgUnit)
	assert.Equal(t, "Kasese District", rec.ReportingOrgUnitName)
	assert.Equal(t, "OU1", rec.OrgUnitCode)
	assert.Equal(t, "E_OU1_DRAFT", rec.Epicode)
	assert.Equal(t, types.RecordEpidemic, rec.Type)
	assert.Equal(t, types.StatusClosed, rec.Status)
	// Closing replaces the provisional lastCaseDate+incubation close date.
	assert.Equal(t, testToday, rec.CloseDate)
	assert.False(t, bool(rec.Active))
}

func TestDetectAggregate_ThresholdBoundary(t *testing.T) {
	periods := period.Windows(testNow, 3, 0, types.AlgorithmNonSeasonal)
	tests := []struct {
		name     string
		current  float64
		epidemic bool
	}{
		{"exactly mean plus two sigma", 4, true},
		{"one below", 3, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := wideTable(periods, map[string][]float64{"ou1": {tt.current, 2, 3, 1}})
			got, err := DetectAggregate(ds, aggregateMeta(types.AlgorithmNonSeasonal), testOrgUnits(), periods, 3, testRun())
			require.NoError(t, err)
			var epidemic bool
			for _, r := range got {
				epidemic = epidemic || bool(r.Epidemic)
			}
			assert.Equal(t, tt.epidemic, epidemic)
		})
	}
}

func TestDetectAggregate_ZeroGuard(t *testing.T) {
	periods := period.Windows(testNow, 3, 0, types.AlgorithmNonSeasonal)
	ds := wideTable(periods, map[string][]float64{
		"ou1": {0, 0, 0, 0},
		"ou2": {3, 0, 0, 0},
	})
	got, err := DetectAggregate(ds, aggregateMeta(types.AlgorithmNonSeasonal), testOrgUnits(), periods, 3, testRun())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDetectAggregate_BelowEpidemicIsDropped(t *testing.T) {
	periods := period.Windows(testNow, 3, 0, types.AlgorithmNonSeasonal)
	// mean 4, sigma 2: 7 reaches mean+1.5σ but not mean+2σ.
	ds := wideTable(periods, map[string][]float64{"ou2": {7, 2, 4, 6}})
	got, err := DetectAggregate(ds, aggregateMeta(types.AlgorithmNonSeasonal), testOrgUnits(), periods, 3, testRun())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDetectAggregate_Seasonal(t *testing.T) {
	periods := period.Windows(testNow, 3, 2, types.AlgorithmSeasonal)
	require.Len(t, periods, 9)
	ds := wideTable(periods, map[string][]float64{"ou1": {6, 9, 6, 1, 2, 1, 2, 1, 2}})

	got, err := DetectAggregate(ds, aggregateMeta(types.AlgorithmSeasonal), testOrgUnits(), periods, 3, testRun())
	require.NoError(t, err)
	require.Len(t, got, 1)
	rec := got[0]
	assert.True(t, bool(rec.Epidemic))
	assert.Equal(t, "2024W10", rec.Period)
	assert.Equal(t, types.NewDate(2024, 3, 4), rec.FirstCaseDate)
	assert.Equal(t, 7, rec.Confirmed)
	assert.InDelta(t, 7.0, rec.Cases.MeanCurrent, 1e-9)
	assert.InDelta(t, 1.5, rec.Cases.Mean, 1e-9)
	require.NotNil(t, rec.DeathStats)
	assert.Zero(t, rec.Deaths)
}

func TestDetectAggregate_Errors(t *testing.T) {
	periods := period.Windows(testNow, 3, 0, types.AlgorithmNonSeasonal)
	meta := aggregateMeta(types.AlgorithmNonSeasonal)

	_, err := DetectAggregate(table.New(nil), meta, testOrgUnits(), periods, 3, testRun())
	assert.True(t, errors.Is(err, table.ErrEmpty))

	ds := table.New([]string{table.ColOrgUnitID, "otherPI.2024W11"}, table.Row{table.ColOrgUnitID: "ou1", "otherPI.2024W11": "9"})
	_, err = DetectAggregate(ds, meta, testOrgUnits(), periods, 3, testRun())
	assert.True(t, errors.Is(err, table.ErrKeyMismatch))

	_, err = DetectAggregate(ds, aggregateMeta(types.AlgorithmCaseBased), testOrgUnits(), periods, 3, testRun())
	assert.Error(t, err)
}

func TestNewSchedule(t *testing.T) {
	last := types.NewDate(2024, 3, 10)
	s := NewSchedule(last, 7, types.NewDate(2024, 3, 17))
	assert.Equal(t, types.NewDate(2024, 3, 17), s.CloseDate)
	assert.Equal(t, types.NewDate(2024, 3, 24), s.EndDate)
	assert.Equal(t, types.NewDate(2024, 3, 17), s.ReminderDate)
	assert.True(t, s.Active)
	assert.True(t, s.Reminder)

	s = NewSchedule(last, 7, types.NewDate(2024, 3, 24))
	assert.False(t, s.Active)
	assert.False(t, s.Reminder)

	s = NewSchedule(types.Date{}, 7, testToday)
	assert.False(t, s.Active)
}
