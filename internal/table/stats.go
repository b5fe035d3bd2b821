package table

import (
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode"
)

// Mean returns the arithmetic mean, or 0 for no values.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

// Stddev returns the sample standard deviation (n-1 denominator). With fewer
// than two values there is no spread to measure and 0 is returned.
func Stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := Mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

// Descriptor columns of an aggregate wide table.
const (
	ColOrgUnitID   = "organisationunitid"
	ColOrgUnitName = "organisationunitname"
	ColOrgUnitCode = "organisationunitcode"
)

// LevelColumn is the hierarchy column added for showHierarchy at a 1-based
// level.
func LevelColumn(level int) string {
	return "orgunitlevel" + strconv.Itoa(level)
}

// WideSchema resolves the period-indexed cells of a wide aggregate table by
// name. A column belongs to (indicator, period) when its header name carries
// both ids as separate tokens, whatever separator the server used.
type WideSchema struct {
	cells map[[2]string]string
}

// ResolveWide indexes the columns of d for the given indicators and periods.
func ResolveWide(d *Dataset, indicators, periods []string) WideSchema {
	s := WideSchema{cells: map[[2]string]string{}}
	for _, c := range d.columns {
		toks := tokens(c)
		for _, ind := range indicators {
			if !slices.Contains(toks, ind) {
				continue
			}
			for _, pe := range periods {
				if slices.Contains(toks, pe) {
					s.cells[[2]string{ind, pe}] = c
				}
			}
		}
	}
	return s
}

// Cell returns the column name holding indicator at period.
func (s WideSchema) Cell(indicator, period string) (string, bool) {
	c, ok := s.cells[[2]string{indicator, period}]
	return c, ok
}

// Values reads indicator across periods from r. Missing cells read as 0,
// matching hideEmptyRows responses that omit empty columns.
func (s WideSchema) Values(r Row, indicator string, periods []string) []float64 {
	out := make([]float64, len(periods))
	for i, pe := range periods {
		if c, ok := s.Cell(indicator, pe); ok {
			out[i] = Float(r, c)
		}
	}
	return out
}

// Len returns the number of resolved cells.
func (s WideSchema) Len() int { return len(s.cells) }

// FindColumn returns the column named id, or failing that the first column
// carrying id as a token of its name.
func (d *Dataset) FindColumn(id string) (string, bool) {
	if slices.Contains(d.columns, id) {
		return id, true
	}
	for _, c := range d.columns {
		if slices.Contains(tokens(c), id) {
			return c, true
		}
	}
	return "", false
}

func tokens(name string) []string {
	return strings.FieldsFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
