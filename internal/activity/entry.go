package activity

import (
	"encoding/json"
	"time"
)

// Entity types indexed by the audit trail.
const (
	EntityOutbreak = "outbreak"
	EntityAlert    = "alert"
	EntityOrgUnit  = "orgunit"
	EntityDisease  = "disease"
	EntityRun      = "run"
)

// SourceRef identifies an entity referenced by a lifecycle event.
type SourceRef struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Role       string `json:"role"` // "subject", "context", "related"
}

// Entry is a secondary index entry over the lifecycle event log, keyed by a
// referenced entity. One event produces one entry per referenced entity.
type Entry struct {
	EventID           string          `json:"event_id"`
	EventType         string          `json:"event_type"`
	OccurredAt        time.Time       `json:"occurred_at"`
	IndexedEntityType string          `json:"indexed_entity_type"`
	IndexedEntityID   string          `json:"indexed_entity_id"`
	EntityRole        string          `json:"entity_role"`
	SourceRefs        []SourceRef     `json:"source_refs"`
	Summary           string          `json:"summary"`
	Category          string          `json:"category"` // "outbreak", "alert", "run"
	Weight            string          `json:"weight"`
	Payload           json.RawMessage `json:"payload,omitempty"`
}

// WeightOrder maps event weights to numeric severity (lower = more severe).
var WeightOrder = map[string]int{
	"critical": 1,
	"major":    2,
	"minor":    3,
	"info":     4,
}

// WeightSeverity returns the severity of weight; unknown weights rank last.
func WeightSeverity(weight string) int {
	if s, ok := WeightOrder[weight]; ok {
		return s
	}
	return 5
}

// IsAtLeastWeight returns true if actual is at least as severe as minimum.
func IsAtLeastWeight(actual, minimum string) bool {
	return WeightSeverity(actual) <= WeightSeverity(minimum)
}

// weightsAtLeast lists the weights at least as severe as minimum.
func weightsAtLeast(minimum string) []string {
	var out []string
	for w := range WeightOrder {
		if IsAtLeastWeight(w, minimum) {
			out = append(out, w)
		}
	}
	return out
}
