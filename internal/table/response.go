// Package table normalizes raw analytics responses into named row datasets
// and provides the column operations the detectors are built from: numeric
// coercion, positional and named column resolution, group-by aggregation,
// one-hot pivots, keyed joins and de-duplication.
package table

import (
	"errors"
	"fmt"

	"github.com/matthewbaird/outbreak/internal/types"
)

var (
	// ErrEmpty is returned when a call succeeds but yields no rows.
	ErrEmpty = errors.New("table: empty result")

	// ErrKeyMismatch is returned when an operation references columns that
	// are absent from the dataset.
	ErrKeyMismatch = errors.New("table: key columns missing")
)

// Header describes one column of a raw response.
type Header struct {
	Name      string `json:"name"`
	Column    string `json:"column"`
	ValueType string `json:"valueType,omitempty"`
}

// Response is the raw tabular shape returned by the analytics endpoints.
type Response struct {
	Headers []Header   `json:"headers"`
	Rows    [][]string `json:"rows"`
	Height  int        `json:"height"`
	Width   int        `json:"width"`
}

// Shape selects how headers are turned into column names.
type Shape int

const (
	// ShapeEvent maps attribute ids through a HeaderMap.
	ShapeEvent Shape = iota
	// ShapeAggregate keeps the raw header name (indicator/period ids).
	ShapeAggregate
	// ShapeDates maps attribute ids like ShapeEvent; used for tracked
	// entity registration listings.
	ShapeDates
)

// Semantic column names produced by HeaderMap.
const (
	ColOnsetDate                = "onSetDate"
	ColDisease                  = "disease"
	ColImmediateOutcome         = "immediateOutcome"
	ColStatusOutcome            = "statusOutcome"
	ColCaseClassification       = "caseClassification"
	ColTestResult               = "testResult"
	ColTestResultClassification = "testResultClassification"
)

// Fixed columns of event and tracked entity listings.
const (
	ColOU        = "ou"
	ColOUName    = "ouname"
	ColEventDate = "eventdate"
	ColCreated   = "created"
)

// HeaderMap resolves attribute ids to semantic column names.
type HeaderMap map[string]string

// NewHeaderMap builds the lookup from the notification program attributes.
func NewHeaderMap(np types.NotificationProgram) HeaderMap {
	hm := HeaderMap{}
	add := func(id, name string) {
		if id != "" {
			hm[id] = name
		}
	}
	add(np.DateOfOnset.ID, ColOnsetDate)
	add(np.Disease.ID, ColDisease)
	add(np.RegPatientStatusOutcome.ID, ColImmediateOutcome)
	add(np.PatientStatusOutcome.ID, ColStatusOutcome)
	add(np.CaseClassification.ID, ColCaseClassification)
	add(np.TestResult.ID, ColTestResult)
	add(np.TestResultClassification.ID, ColTestResultClassification)
	return hm
}

// Column returns the semantic name for a header; unmapped headers pass
// through by name.
func (hm HeaderMap) Column(h Header) string {
	if name, ok := hm[h.Name]; ok {
		return name
	}
	return h.Name
}

// Normalize converts a raw response into a Dataset.
func Normalize(resp *Response, shape Shape, hm HeaderMap) (*Dataset, error) {
	if resp == nil || len(resp.Rows) == 0 {
		return nil, ErrEmpty
	}
	cols := make([]string, len(resp.Headers))
	for i, h := range resp.Headers {
		switch shape {
		case ShapeAggregate:
			cols[i] = h.Name
			if cols[i] == "" {
				cols[i] = h.Column
			}
		default:
			cols[i] = hm.Column(h)
		}
	}
	ds := New(cols)
	for n, raw := range resp.Rows {
		if len(raw) > len(cols) {
			return nil, fmt.Errorf("table: row %d has %d cells, %d headers", n, len(raw), len(cols))
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			if i < len(raw) {
				row[c] = raw[i]
			} else {
				row[c] = ""
			}
		}
		ds.Append(row)
	}
	return ds, nil
}
