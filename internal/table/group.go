package table

import (
	"slices"
)

// AggFunc reduces the values of one column within a group.
type AggFunc func(values []string) string

// Agg names an aggregation: Fn applied to Column, stored as As.
type Agg struct {
	Column string
	As     string
	Fn     AggFunc
}

// Grouping is a dataset partitioned by key columns, in first-seen order.
type Grouping struct {
	keys   []string
	order  []string
	groups map[string][]Row
	err    error
}

// GroupBy partitions rows by the given key columns.
func (d *Dataset) GroupBy(keys ...string) *Grouping {
	g := &Grouping{keys: keys, groups: map[string][]Row{}}
	if err := d.Has(keys...); err != nil {
		g.err = err
		return g
	}
	for _, r := range d.rows {
		k := compositeKey(r, keys)
		if _, ok := g.groups[k]; !ok {
			g.order = append(g.order, k)
		}
		g.groups[k] = append(g.groups[k], r)
	}
	return g
}

func (g *Grouping) keyRow(rows []Row) Row {
	out := make(Row, len(g.keys))
	for _, k := range g.keys {
		out[k] = rows[0][k]
	}
	return out
}

// Agg produces one row per group holding the key columns plus every
// aggregation.
func (g *Grouping) Agg(aggs ...Agg) (*Dataset, error) {
	if g.err != nil {
		return nil, g.err
	}
	cols := slices.Clone(g.keys)
	for _, a := range aggs {
		cols = append(cols, a.As)
	}
	out := New(cols)
	for _, k := range g.order {
		rows := g.groups[k]
		row := g.keyRow(rows)
		for _, a := range aggs {
			vals := make([]string, 0, len(rows))
			for _, r := range rows {
				vals = append(vals, r[a.Column])
			}
			row[a.As] = a.Fn(vals)
		}
		out.rows = append(out.rows, row)
	}
	return out, nil
}

// Pivot counts, per group, how many rows carry each distinct value of col
// and spreads the counts into one column per value. Groups lacking a value
// get 0. Empty values are not counted.
func (g *Grouping) Pivot(col string) (*Dataset, error) {
	if g.err != nil {
		return nil, g.err
	}
	var values []string
	for _, k := range g.order {
		for _, r := range g.groups[k] {
			v := r[col]
			if v != "" && !slices.Contains(values, v) {
				values = append(values, v)
			}
		}
	}
	slices.Sort(values)
	out := New(append(slices.Clone(g.keys), values...))
	for _, k := range g.order {
		rows := g.groups[k]
		row := g.keyRow(rows)
		counts := map[string]int{}
		for _, r := range rows {
			if v := r[col]; v != "" {
				counts[v]++
			}
		}
		for _, v := range values {
			row[v] = FormatFloat(float64(counts[v]))
		}
		out.rows = append(out.rows, row)
	}
	return out, nil
}

// Count aggregates to the number of values.
func Count(values []string) string { return FormatFloat(float64(len(values))) }

// Sum aggregates numeric values.
func Sum(values []string) string {
	var s float64
	for _, v := range parseAll(values) {
		s += v
	}
	return FormatFloat(s)
}

// MeanOf aggregates numeric values to their mean.
func MeanOf(values []string) string { return FormatFloat(Mean(parseAll(values))) }

// StddevOf aggregates numeric values to their sample standard deviation.
func StddevOf(values []string) string { return FormatFloat(Stddev(parseAll(values))) }

// Min aggregates numeric values to the smallest one; non-numeric values
// count as 0 like everywhere else. An empty group yields "".
func Min(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return FormatFloat(slices.Min(parseAll(values)))
}

// Max aggregates numeric values to the largest one.
func Max(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return FormatFloat(slices.Max(parseAll(values)))
}

// MinString aggregates to the lexically smallest non-empty value. ISO dates
// and week labels order correctly this way.
func MinString(values []string) string {
	best := ""
	for _, v := range values {
		if v != "" && (best == "" || v < best) {
			best = v
		}
	}
	return best
}

// MaxString aggregates to the lexically largest non-empty value.
func MaxString(values []string) string {
	best := ""
	for _, v := range values {
		if v > best {
			best = v
		}
	}
	return best
}

func parseAll(values []string) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = Float(Row{"v": v}, "v")
	}
	return out
}
