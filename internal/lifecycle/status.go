// Package lifecycle reconciles freshly detected outbreaks and alerts against
// the persisted collections: it partitions rows into new, updated and
// untouched sets, keeps outbreak codes stable per lineage, and drives the
// Confirmed / Closed Vigilance / Closed status machine.
package lifecycle

import (
	"fmt"

	"github.com/matthewbaird/outbreak/internal/types"
)

// Transitions lists the statuses reachable from each status. Closed is
// terminal.
var Transitions = map[types.Status][]types.Status{
	types.StatusConfirmed:       {types.StatusClosedVigilance, types.StatusClosed},
	types.StatusClosedVigilance: {types.StatusClosed},
	types.StatusClosed:          {},
}

// ValidateTransition checks whether moving from current to target is
// allowed. Staying in the same status is always allowed.
func ValidateTransition(current, target types.Status) error {
	if current == target {
		return nil
	}
	allowed, ok := Transitions[current]
	if !ok {
		return fmt.Errorf("unknown current status: %s", current)
	}
	for _, s := range allowed {
		if s == target {
			return nil
		}
	}
	return fmt.Errorf("transition from %q to %q is not allowed", current, target)
}

// Classify returns the status the machine selects for rec's flags.
func Classify(rec types.Record) types.Status {
	if !rec.Epidemic || !rec.Active {
		return types.StatusConfirmed
	}
	if rec.Reminder {
		return types.StatusClosedVigilance
	}
	return types.StatusClosed
}

// ApplyStatus evaluates the status machine for rec as of today and reports
// whether the status changed. A record with no status starts as Confirmed.
// Entering Closed stamps today as the close date. Transitions the machine
// does not allow keep the current status, so a Closed record stays Closed
// and inactive. Applying the machine twice with the same inputs is a no-op
// the second time.
func ApplyStatus(rec *types.Record, today types.Date) bool {
	current := rec.Status
	if current == "" {
		current = types.StatusConfirmed
	}
	target := Classify(*rec)
	if err := ValidateTransition(current, target); err != nil {
		rec.Status = current
		if current == types.StatusClosed {
			rec.Active = false
		}
		return false
	}

	switch target {
	case types.StatusClosed:
		rec.Active = false
		rec.ReminderSent = false
		rec.DateReminderSent = types.Date{}
		if current != types.StatusClosed || rec.CloseDate.IsZero() {
			rec.CloseDate = today
		}
	case types.StatusClosedVigilance:
		rec.Active = true
		rec.ReminderSent = true
		if current != types.StatusClosedVigilance || rec.DateReminderSent.IsZero() {
			rec.DateReminderSent = today
		}
	default:
		rec.Active = true
		rec.ReminderSent = false
		rec.DateReminderSent = types.Date{}
		rec.CloseDate = types.Date{}
	}
	rec.Status = target
	return target != current
}

// ClosedOn reports whether rec was closed on day.
func ClosedOn(rec types.Record, day types.Date) bool {
	return rec.Status == types.StatusClosed && rec.CloseDate.Equal(day)
}

// VigilanceOn reports whether rec entered vigilance, and so had its reminder
// fired, on day.
func VigilanceOn(rec types.Record, day types.Date) bool {
	return rec.Status == types.StatusClosedVigilance && rec.DateReminderSent.Equal(day)
}

// refreshSchedule re-derives the detection inputs of the status machine from
// the record's dates. Active and Reminder are also machine outputs (Closed
// clears Active), so a row carrying an earlier evaluation must not feed
// those values back in. Unset dates leave the flag as detected.
func refreshSchedule(rec *types.Record, today types.Date) {
	if !rec.EndDate.IsZero() {
		rec.Active = types.Flag(today.Before(rec.EndDate))
	}
	if !rec.ReminderDate.IsZero() {
		rec.Reminder = types.Flag(today.Equal(rec.ReminderDate))
	}
}
