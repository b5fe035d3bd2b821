package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/matthewbaird/outbreak/internal/activity"
	"github.com/matthewbaird/outbreak/internal/types"
)

// Event types.
const (
	TypeOutbreakDeclared = "outbreak_declared"
	TypeOutbreakUpdated  = "outbreak_updated"
	TypeOutbreakClosed   = "outbreak_closed"
	TypeVigilanceEntered = "vigilance_entered"
	TypeAlertRaised      = "alert_raised"
	TypeRunCompleted     = "run_completed"
)

// DomainEvent carries the canonical shape of every lifecycle event.
type DomainEvent struct {
	ID               string               `json:"id"`
	EventType        string               `json:"event_type"`
	OccurredAt       time.Time            `json:"occurred_at"`
	AffectedEntities []activity.SourceRef `json:"affected_entities"`
	Summary          string               `json:"summary"`
	Category         string               `json:"category"` // "outbreak", "alert", "run"
	Weight           string               `json:"weight"`   // "critical", "major", "minor", "info"
	Payload          json.RawMessage      `json:"payload"`
}

func newID() string { return uuid.New().String() }

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

// ── Record events ────────────────────────────────────────────────────────────

// RecordPayload carries the state of an outbreak or alert record at the time
// of the event.
type RecordPayload struct {
	Epicode          string `json:"epicode,omitempty"`
	Disease          string `json:"disease"`
	OrgUnit          string `json:"org_unit"`
	OrgUnitName      string `json:"org_unit_name,omitempty"`
	ReportingOrgUnit string `json:"reporting_org_unit,omitempty"`
	Period           string `json:"period"`
	Status           string `json:"status,omitempty"`
	Confirmed        int    `json:"confirmed"`
	Suspected        int    `json:"suspected"`
	Deaths           int    `json:"deaths"`
	FirstCaseDate    string `json:"first_case_date,omitempty"`
	EndDate          string `json:"end_date,omitempty"`
	Event            string `json:"event,omitempty"`
}

// PayloadOf snapshots rec.
func PayloadOf(rec types.Record) RecordPayload {
	return RecordPayload{
		Epicode:          rec.Epicode,
		Disease:          rec.Disease,
		OrgUnit:          rec.OrgUnit,
		OrgUnitName:      rec.OrgUnitName,
		ReportingOrgUnit: rec.ReportingOrgUnit,
		Period:           rec.Period,
		Status:           string(rec.Status),
		Confirmed:        rec.Confirmed,
		Suspected:        rec.Suspected,
		Deaths:           rec.Deaths,
		FirstCaseDate:    rec.FirstCaseDate.String(),
		EndDate:          rec.EndDate.String(),
		Event:            rec.Event,
	}
}

// AlertID identifies an alert record, which has no outbreak code.
func AlertID(rec types.Record) string {
	return fmt.Sprintf("%s/%s/%s", rec.OrgUnit, rec.Disease, rec.Period)
}

func outbreakRefs(p RecordPayload) []activity.SourceRef {
	return []activity.SourceRef{
		{EntityType: activity.EntityOutbreak, EntityID: p.Epicode, Role: "subject"},
		{EntityType: activity.EntityOrgUnit, EntityID: p.OrgUnit, Role: "context"},
		{EntityType: activity.EntityDisease, EntityID: p.Disease, Role: "related"},
	}
}

func place(p RecordPayload) string {
	if p.OrgUnitName != "" {
		return p.OrgUnitName
	}
	return p.OrgUnit
}

func outbreakEvent(eventType, weight, summary string, p RecordPayload) DomainEvent {
	return DomainEvent{
		ID:               newID(),
		EventType:        eventType,
		OccurredAt:       time.Now(),
		AffectedEntities: outbreakRefs(p),
		Summary:          summary,
		Category:         "outbreak",
		Weight:           weight,
		Payload:          mustJSON(p),
	}
}

// NewOutbreakDeclared is recorded for every outbreak record that is new this run.
func NewOutbreakDeclared(rec types.Record) DomainEvent {
	p := PayloadOf(rec)
	return outbreakEvent(TypeOutbreakDeclared, "critical",
		fmt.Sprintf("%s outbreak %s declared in %s (%d confirmed)", p.Disease, p.Epicode, place(p), p.Confirmed), p)
}

// NewOutbreakUpdated is recorded when fresh detections update a known outbreak.
func NewOutbreakUpdated(rec types.Record) DomainEvent {
	p := PayloadOf(rec)
	return outbreakEvent(TypeOutbreakUpdated, "minor",
		fmt.Sprintf("%s outbreak %s updated in %s for %s", p.Disease, p.Epicode, place(p), p.Period), p)
}

// NewOutbreakClosed is recorded on the day an outbreak closes.
func NewOutbreakClosed(rec types.Record) DomainEvent {
	p := PayloadOf(rec)
	return outbreakEvent(TypeOutbreakClosed, "major",
		fmt.Sprintf("%s outbreak %s closed in %s", p.Disease, p.Epicode, place(p)), p)
}

// NewVigilanceEntered is recorded on the day an outbreak enters Closed Vigilance.
func NewVigilanceEntered(rec types.Record) DomainEvent {
	p := PayloadOf(rec)
	return outbreakEvent(TypeVigilanceEntered, "major",
		fmt.Sprintf("%s outbreak %s in %s closing on %s", p.Disease, p.Epicode, place(p), p.EndDate), p)
}

// NewAlertRaised is recorded for every alert record that is new this run.
func NewAlertRaised(rec types.Record) DomainEvent {
	p := PayloadOf(rec)
	return DomainEvent{
		ID:         newID(),
		EventType:  TypeAlertRaised,
		OccurredAt: time.Now(),
		AffectedEntities: []activity.SourceRef{
			{EntityType: activity.EntityAlert, EntityID: AlertID(rec), Role: "subject"},
			{EntityType: activity.EntityOrgUnit, EntityID: p.OrgUnit, Role: "context"},
			{EntityType: activity.EntityDisease, EntityID: p.Disease, Role: "related"},
		},
		Summary:  fmt.Sprintf("%s alert in %s (%d suspected)", p.Disease, place(p), p.Suspected),
		Category: "alert",
		Weight:   "major",
		Payload:  mustJSON(p),
	}
}

// ── Run events ───────────────────────────────────────────────────────────────

// RunCompletedPayload carries the summary of one engine run.
type RunCompletedPayload struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`
	Processed []string  `json:"processed"`
	Skipped   []string  `json:"skipped,omitempty"`
	New       int       `json:"new"`
	Updated   int       `json:"updated"`
	Existing  int       `json:"existing"`
	Alerts    int       `json:"alerts"`
	Messages  int       `json:"messages"`
	Failures  int       `json:"failures"`
}

func NewRunCompleted(p RunCompletedPayload) DomainEvent {
	return DomainEvent{
		ID:         newID(),
		EventType:  TypeRunCompleted,
		OccurredAt: time.Now(),
		AffectedEntities: []activity.SourceRef{
			{EntityType: activity.EntityRun, EntityID: p.RunID, Role: "subject"},
		},
		Summary: fmt.Sprintf("Run %s processed %d diseases (%d skipped): %d new, %d updated outbreaks, %d alerts",
			shortID(p.RunID), len(p.Processed), len(p.Skipped), p.New, p.Updated, p.Alerts),
		Category: "run",
		Weight:   "info",
		Payload:  mustJSON(p),
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
