// Package signals scores case counts against thresholds. It holds the
// aggregate (seasonal and non-seasonal) detector, the case-based detector and
// the registries both draw on: the canonical case-status vocabulary and the
// per-algorithm query shapes.
package signals

import (
	"strings"

	"github.com/matthewbaird/outbreak/internal/table"
	"github.com/matthewbaird/outbreak/internal/types"
)

// Canonical case-status columns produced by the text registry.
const (
	CanonicalConfirmed = "confirmedValue"
	CanonicalSuspected = "suspectedValue"
	CanonicalDeath     = "deathValue"
)

// TextRegistration maps a free-text option value to a canonical case status.
// Match is a substring; the longest matching registration wins.
type TextRegistration struct {
	Match     string
	Canonical string
}

// TextRegistry lists the option texts seen in case line lists.
var TextRegistry = []TextRegistration{
	{Match: "Confirmed case", Canonical: CanonicalConfirmed},
	{Match: "confirmed case", Canonical: CanonicalConfirmed},
	{Match: "Confirmed", Canonical: CanonicalConfirmed},
	{Match: "Suspected case", Canonical: CanonicalSuspected},
	{Match: "suspected case", Canonical: CanonicalSuspected},
	{Match: "Suspected", Canonical: CanonicalSuspected},
	{Match: "Died case", Canonical: CanonicalDeath},
	{Match: "died", Canonical: CanonicalDeath},
}

// CategoricalColumns are the line-list dimensions pivoted into per-day
// tallies.
var CategoricalColumns = []string{
	table.ColCaseClassification,
	table.ColImmediateOutcome,
	table.ColTestResult,
	table.ColTestResultClassification,
	table.ColStatusOutcome,
}

// Replacements returns TextRegistry as a substring replacement table.
func Replacements() map[string]string {
	out := make(map[string]string, len(TextRegistry))
	for _, reg := range TextRegistry {
		out[reg.Match] = reg.Canonical
	}
	return out
}

// CanonicalText resolves a single option value. Values that match no
// registration are returned unchanged with ok=false.
func CanonicalText(v string) (string, bool) {
	best := -1
	for i, reg := range TextRegistry {
		if !strings.Contains(v, reg.Match) {
			continue
		}
		if best < 0 || len(reg.Match) > len(TextRegistry[best].Match) {
			best = i
		}
	}
	if best < 0 {
		return v, false
	}
	return TextRegistry[best].Canonical, true
}

// AlgorithmRegistration describes how an algorithm's input is queried.
type AlgorithmRegistration struct {
	Algorithm types.Algorithm
	// Shape is the table shape the raw response is normalized with.
	Shape table.Shape
	// Windowed algorithms query an explicit list of weekly periods.
	Windowed    bool
	Description string
}

// AlgorithmRegistry contains every supported detection algorithm.
var AlgorithmRegistry = []AlgorithmRegistration{
	{
		Algorithm:   types.AlgorithmNonSeasonal,
		Shape:       table.ShapeAggregate,
		Windowed:    true,
		Description: "current week against the mean and spread of the preceding m weeks",
	},
	{
		Algorithm:   types.AlgorithmSeasonal,
		Shape:       table.ShapeAggregate,
		Windowed:    true,
		Description: "mean of the current m weeks against the same m weeks of the n prior years",
	},
	{
		Algorithm:   types.AlgorithmCaseBased,
		Shape:       table.ShapeEvent,
		Description: "fixed confirmed and suspected thresholds over the last 7 days of case reports",
	},
}

// LookupAlgorithm returns the registration for a.
func LookupAlgorithm(a types.Algorithm) (AlgorithmRegistration, bool) {
	for _, reg := range AlgorithmRegistry {
		if reg.Algorithm == a {
			return reg, true
		}
	}
	return AlgorithmRegistration{}, false
}
