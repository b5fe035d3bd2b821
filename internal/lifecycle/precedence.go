package lifecycle

import (
	"github.com/matthewbaird/outbreak/internal/types"
)

// MergeCounts reconciles two sources for the same logical counts. Confirmed
// and deaths take the larger side; suspected takes the larger side and is
// then clamped to be at least the confirmed count.
func MergeCounts(a, b types.Counts) types.Counts {
	out := types.Counts{
		Confirmed: max(a.Confirmed, b.Confirmed, 0),
		Suspected: max(a.Suspected, b.Suspected, 0),
		Deaths:    max(a.Deaths, b.Deaths, 0),
	}
	if out.Suspected < out.Confirmed {
		out.Suspected = out.Confirmed
	}
	return out
}

// mergeRecord folds a fresh detection into the persisted record of the same
// key. Identity and lifecycle bookkeeping come from the persisted side;
// detection figures come from the fresh side. Counts follow MergeCounts and
// dates never move backwards.
func mergeRecord(persisted, detected types.Record) types.Record {
	out := persisted
	fresh := detected.CandidateRow

	out.Counts = MergeCounts(persisted.Counts, detected.Counts)
	out.Cases = fresh.Cases
	out.DeathStats = fresh.DeathStats
	out.Epidemic = fresh.Epidemic
	out.Alert = fresh.Alert
	out.Active = fresh.Active
	out.Reminder = fresh.Reminder
	out.Algorithm = fresh.Algorithm
	out.Source = fresh.Source
	out.IncubationDays = fresh.IncubationDays
	out.AlertThreshold = fresh.AlertThreshold
	out.EpiThreshold = fresh.EpiThreshold
	if fresh.OrgUnitName != "" {
		out.OrgUnitName = fresh.OrgUnitName
	}
	if fresh.OrgUnitCode != "" {
		out.OrgUnitCode = fresh.OrgUnitCode
	}
	if fresh.ReportingOrgUnit != "" {
		out.ReportingOrgUnit = fresh.ReportingOrgUnit
		out.ReportingOrgUnitName = fresh.ReportingOrgUnitName
	}

	out.FirstCaseDate = types.MinDate(persisted.FirstCaseDate, fresh.FirstCaseDate)
	out.LastCaseDate = types.MaxDate(persisted.LastCaseDate, fresh.LastCaseDate)
	out.EndDate = types.MaxDate(persisted.EndDate, fresh.EndDate)
	out.ReminderDate = types.MaxDate(persisted.ReminderDate, fresh.ReminderDate)
	if out.Epicode == "" {
		out.Epicode = detected.Epicode
	}
	if out.Type == "" {
		out.Type = detected.Type
	}
	return out
}
