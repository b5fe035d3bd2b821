package signals

import (
	"github.com/matthewbaird/outbreak/internal/lifecycle"
	"github.com/matthewbaird/outbreak/internal/table"
	"github.com/matthewbaird/outbreak/internal/types"
)

// RunContext is the immutable per-run input shared by the detectors.
type RunContext struct {
	Today types.Date
	// Codes mints draft outbreak codes. Defaults to lifecycle.RandomCodes.
	Codes lifecycle.CodeGenerator
}

func (rc RunContext) codes() lifecycle.CodeGenerator {
	if rc.Codes == nil {
		return lifecycle.RandomCodes{}
	}
	return rc.Codes
}

// NewBaseline summarizes the current observations and the baseline window.
func NewBaseline(current, baseline []float64) types.Baseline {
	mean := table.Mean(baseline)
	sd := table.Stddev(baseline)
	return types.Baseline{
		MeanCurrent: table.Mean(current),
		Mean:        mean,
		Stddev:      sd,
		Mean20Std:   mean + 2*sd,
		Mean15Std:   mean + 1.5*sd,
	}
}

// ExceedsEpidemic reports whether the current value reaches mean+2σ. A zero
// on either side never counts, so all-zero windows are not outbreaks.
func ExceedsEpidemic(b types.Baseline) bool {
	return b.MeanCurrent != 0 && b.Mean20Std != 0 && b.MeanCurrent >= b.Mean20Std
}

// Schedule derives the lifecycle dates of a detection from its last case
// date: the outbreak ends two incubation periods after the last case, may be
// closed after one, and a reminder fires a week before the end.
type Schedule struct {
	CloseDate    types.Date
	EndDate      types.Date
	ReminderDate types.Date
	Active       bool
	Reminder     bool
}

// NewSchedule computes the schedule as of today.
func NewSchedule(last types.Date, incubationDays int, today types.Date) Schedule {
	s := Schedule{
		CloseDate: last.AddDays(incubationDays),
		EndDate:   last.AddDays(2 * incubationDays),
	}
	s.ReminderDate = s.EndDate.AddDays(-7)
	s.Active = !s.EndDate.IsZero() && today.Before(s.EndDate)
	s.Reminder = !s.ReminderDate.IsZero() && today.Equal(s.ReminderDate)
	return s
}

func (s Schedule) apply(c *types.CandidateRow) {
	c.CloseDate = s.CloseDate
	c.EndDate = s.EndDate
	c.ReminderDate = s.ReminderDate
	c.Active = types.Flag(s.Active)
	c.Reminder = types.Flag(s.Reminder)
}

// ClassifyCaseBased applies the fixed thresholds of case-based diseases:
// epidemic once confirmed cases reach the epidemic threshold, otherwise an
// alert once suspected cases reach the alert threshold before the end date.
// Rows without any case never qualify.
func ClassifyCaseBased(c types.Counts, alertThreshold, epiThreshold int, endDate, today types.Date) (epidemic, alert bool) {
	epidemic = c.Confirmed > 0 && c.Confirmed >= epiThreshold
	alert = !epidemic && c.Suspected > 0 && c.Suspected >= alertThreshold && today.Before(endDate)
	return epidemic, alert
}

// finalize tags a detection for its collection. Epidemic rows get the
// lifecycle classification and a draft outbreak code; reconciliation decides
// whether the code survives.
func finalize(c types.CandidateRow, rc RunContext) types.Record {
	rec := types.Record{CandidateRow: c}
	if !c.Epidemic {
		rec.Type = types.RecordAlert
		return rec
	}
	rec.Type = types.RecordEpidemic
	lifecycle.ApplyStatus(&rec, rc.Today)
	rec.Epicode = rc.codes().Generate(c.OrgUnitCode)
	return rec
}
