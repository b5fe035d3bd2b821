package lifecycle

import (
	"fmt"
	"strconv"

	"github.com/matthewbaird/outbreak/internal/table"
	"github.com/matthewbaird/outbreak/internal/types"
)

// EventStatus is the event status pushed for outbreak events.
const EventStatus = "COMPLETED"

// Data element names looked up in the reporting program stage.
const (
	DESuspected     = "suspected"
	DEDeaths        = "deaths"
	DEConfirmed     = "confirmed"
	DEFirstCaseDate = "firstCaseDate"
	DEOrigin        = "origin"
	DEOutbreakID    = "outbreakId"
	DEDisease       = "disease"
	DEEndDate       = "endDate"
	DEStatus        = "status"
	DEClosure       = "closure"
)

// Envelope builds the event pushed for rec. Semantic fields are mapped to
// data element ids through the program stage; names the stage does not
// define are skipped. A record that closed or entered vigilance today also
// carries the closure data value.
func Envelope(rec types.Record, program types.ReportingProgram, today types.Date) types.Event {
	var values []types.DataValue
	add := func(name, value string) {
		if id, ok := program.DataElementID(name); ok {
			values = append(values, types.DataValue{DataElement: id, Value: value})
		}
	}
	add(DESuspected, strconv.Itoa(rec.Suspected))
	add(DEDeaths, strconv.Itoa(rec.Deaths))
	add(DEConfirmed, strconv.Itoa(rec.Confirmed))
	add(DEFirstCaseDate, rec.FirstCaseDate.String())
	add(DEOrigin, rec.OrgUnit)
	add(DEOutbreakID, rec.Epicode)
	add(DEDisease, rec.Disease)
	add(DEEndDate, rec.EndDate.String())
	add(DEStatus, string(rec.Status))
	switch {
	case ClosedOn(rec, today):
		add(DEClosure, string(types.StatusClosed))
	case VigilanceOn(rec, today):
		add(DEClosure, string(types.StatusClosedVigilance))
	}

	programID, stageID := rec.Program, rec.ProgramStage
	if programID == "" {
		programID = program.ID
	}
	if stageID == "" {
		stageID = program.ProgramStage.ID
	}
	eventDate := rec.EventDate
	if eventDate.IsZero() {
		eventDate = rec.FirstCaseDate
	}
	return types.Event{
		Event:        rec.Event,
		EventDate:    eventDate.String(),
		Program:      programID,
		ProgramStage: stageID,
		StoredBy:     StoredBy,
		Status:       EventStatus,
		OrgUnit:      rec.OrgUnit,
		DataValues:   values,
	}
}

// Envelopes builds the events for every record that changed this run.
func Envelopes(records []types.Record, program types.ReportingProgram, today types.Date) []types.Event {
	var out []types.Event
	for _, rec := range records {
		if !rec.Updated {
			continue
		}
		out = append(out, Envelope(rec, program, today))
	}
	return out
}

// Deduplicate drops records repeating an earlier (orgUnit, disease, period)
// key. A record missing any key field makes the whole set un-keyable: the
// input is returned unchanged together with table.ErrKeyMismatch.
func Deduplicate(records []types.Record) ([]types.Record, error) {
	for i, r := range records {
		if r.OrgUnit == "" || r.Disease == "" || r.Period == "" {
			return records, fmt.Errorf("%w: record %d (epicode %q) lacks orgUnit/disease/period",
				table.ErrKeyMismatch, i, r.Epicode)
		}
	}
	seen := make(map[types.Key]bool, len(records))
	out := make([]types.Record, 0, len(records))
	for _, r := range records {
		if seen[r.Key()] {
			continue
		}
		seen[r.Key()] = true
		out = append(out, r)
	}
	return out, nil
}
