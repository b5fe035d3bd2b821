package table

import (
	"slices"
)

// JoinType selects which unmatched rows survive a join.
type JoinType int

const (
	Inner JoinType = iota
	Left
	Outer
)

// Merge provenance values written to MergeColumn when JoinOptions.Indicator
// is set.
const (
	MergeColumn = "_merge"
	LeftOnly    = "left_only"
	RightOnly   = "right_only"
	Both        = "both"
)

// JoinOptions configures Join.
type JoinOptions struct {
	How JoinType
	// Suffixes are appended to non-key columns present on both sides.
	// Defaults to "_left" and "_right".
	Suffixes [2]string
	// Indicator adds the MergeColumn provenance column.
	Indicator bool
}

// Join performs an equi-join of left and right on the key columns. Row order
// follows left, then unmatched right rows in their original order.
func Join(left, right *Dataset, on []string, opts JoinOptions) (*Dataset, error) {
	if err := left.Has(on...); err != nil {
		return nil, err
	}
	if err := right.Has(on...); err != nil {
		return nil, err
	}
	if opts.Suffixes == [2]string{} {
		opts.Suffixes = [2]string{"_left", "_right"}
	}

	collide := map[string]bool{}
	for _, c := range left.columns {
		if !slices.Contains(on, c) && slices.Contains(right.columns, c) {
			collide[c] = true
		}
	}
	leftName := func(c string) string {
		if collide[c] {
			return c + opts.Suffixes[0]
		}
		return c
	}
	rightName := func(c string) string {
		if collide[c] {
			return c + opts.Suffixes[1]
		}
		return c
	}

	cols := make([]string, 0, len(left.columns)+len(right.columns)+1)
	for _, c := range left.columns {
		cols = append(cols, leftName(c))
	}
	for _, c := range right.columns {
		if !slices.Contains(on, c) {
			cols = append(cols, rightName(c))
		}
	}
	if opts.Indicator {
		cols = append(cols, MergeColumn)
	}

	index := map[string][]int{}
	for i, r := range right.rows {
		k := compositeKey(r, on)
		index[k] = append(index[k], i)
	}
	matched := make([]bool, len(right.rows))

	build := func(l, r Row, merge string) Row {
		row := make(Row, len(cols))
		for _, c := range cols {
			row[c] = ""
		}
		for _, c := range left.columns {
			if l != nil {
				row[leftName(c)] = l[c]
			}
		}
		for _, c := range right.columns {
			if r == nil {
				continue
			}
			if slices.Contains(on, c) {
				if l == nil {
					row[c] = r[c]
				}
				continue
			}
			row[rightName(c)] = r[c]
		}
		if opts.Indicator {
			row[MergeColumn] = merge
		}
		return row
	}

	out := New(cols)
	for _, l := range left.rows {
		hits := index[compositeKey(l, on)]
		if len(hits) == 0 {
			if opts.How == Left || opts.How == Outer {
				out.rows = append(out.rows, build(l, nil, LeftOnly))
			}
			continue
		}
		for _, i := range hits {
			matched[i] = true
			out.rows = append(out.rows, build(l, right.rows[i], Both))
		}
	}
	if opts.How == Outer {
		for i, r := range right.rows {
			if !matched[i] {
				out.rows = append(out.rows, build(nil, r, RightOnly))
			}
		}
	}
	return out, nil
}
