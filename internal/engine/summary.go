package engine

import (
	"errors"
	"time"

	"github.com/matthewbaird/outbreak/internal/table"
)

// Summary reports the outcome of one run.
type Summary struct {
	RunID       string           `json:"runId"`
	StartedAt   time.Time        `json:"startedAt"`
	Duration    time.Duration    `json:"duration"`
	Processed   []string         `json:"processed"`
	Skipped     []SkippedDisease `json:"skipped,omitempty"`
	New         int              `json:"new"`
	Updated     int              `json:"updated"`
	Existing    int              `json:"existing"`
	Alerts      int              `json:"alerts"`
	Transitions int              `json:"transitions"`
	Reminders   int              `json:"reminders"`
	Events      int              `json:"events"`
	Messages    int              `json:"messages"`
	Failures    []string         `json:"failures,omitempty"`
	Message     string           `json:"message"`
}

// SkippedDisease names a disease left out of a run and why.
type SkippedDisease struct {
	Disease string `json:"disease"`
	Reason  string `json:"reason"`
	Empty   bool   `json:"empty"`
}

func (s *Summary) skip(disease string, err error) {
	s.Skipped = append(s.Skipped, SkippedDisease{
		Disease: disease,
		Reason:  err.Error(),
		Empty:   errors.Is(err, table.ErrEmpty),
	})
}

// SkippedNames lists the skipped diseases.
func (s *Summary) SkippedNames() []string {
	out := make([]string, len(s.Skipped))
	for i, sk := range s.Skipped {
		out[i] = sk.Disease
	}
	return out
}
