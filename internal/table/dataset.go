package table

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Row maps column name to a scalar cell.
type Row map[string]string

// Clone returns a copy of r.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Dataset is an ordered sequence of rows sharing an ordered column list.
type Dataset struct {
	columns []string
	rows    []Row
}

// New creates a dataset with the given columns and rows.
func New(columns []string, rows ...Row) *Dataset {
	d := &Dataset{columns: slices.Clone(columns)}
	for _, r := range rows {
		d.Append(r)
	}
	return d
}

// Append adds a row. Columns the dataset does not know yet are appended to
// the column list in sorted order.
func (d *Dataset) Append(r Row) {
	var extra []string
	for k := range r {
		if !slices.Contains(d.columns, k) {
			extra = append(extra, k)
		}
	}
	slices.Sort(extra)
	d.columns = append(d.columns, extra...)
	d.rows = append(d.rows, r)
}

// Columns returns the column names in order.
func (d *Dataset) Columns() []string { return slices.Clone(d.columns) }

// Len returns the number of rows.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.rows)
}

// Empty reports whether the dataset has no rows.
func (d *Dataset) Empty() bool { return d.Len() == 0 }

// Rows returns the rows. Callers must not mutate them.
func (d *Dataset) Rows() []Row { return d.rows }

// Has returns ErrKeyMismatch naming the first column that is absent.
func (d *Dataset) Has(cols ...string) error {
	for _, c := range cols {
		if !slices.Contains(d.columns, c) {
			return fmt.Errorf("%w: %q", ErrKeyMismatch, c)
		}
	}
	return nil
}

// Slice returns the names of columns [from, to) by position.
func (d *Dataset) Slice(from, to int) []string {
	if from < 0 {
		from = 0
	}
	if to > len(d.columns) {
		to = len(d.columns)
	}
	if from >= to {
		return nil
	}
	return slices.Clone(d.columns[from:to])
}

// Filter returns the rows for which pred holds.
func (d *Dataset) Filter(pred func(Row) bool) *Dataset {
	out := &Dataset{columns: slices.Clone(d.columns)}
	for _, r := range d.rows {
		if pred(r) {
			out.rows = append(out.rows, r)
		}
	}
	return out
}

// Map returns a dataset with fn applied to a copy of every row.
func (d *Dataset) Map(fn func(Row) Row) *Dataset {
	out := &Dataset{columns: slices.Clone(d.columns)}
	for _, r := range d.rows {
		out.Append(fn(r.Clone()))
	}
	return out
}

// Rename renames columns; unknown names are ignored.
func (d *Dataset) Rename(names map[string]string) *Dataset {
	out := &Dataset{columns: make([]string, len(d.columns))}
	for i, c := range d.columns {
		if n, ok := names[c]; ok {
			out.columns[i] = n
		} else {
			out.columns[i] = c
		}
	}
	for _, r := range d.rows {
		nr := make(Row, len(r))
		for k, v := range r {
			if n, ok := names[k]; ok {
				k = n
			}
			nr[k] = v
		}
		out.rows = append(out.rows, nr)
	}
	return out
}

// Replace rewrites cell values of the given columns: any value containing a
// key of repl as a substring is replaced by the mapped value. Keys are tried
// longest first so "Confirmed case" wins over "Confirmed".
func (d *Dataset) Replace(repl map[string]string, cols ...string) *Dataset {
	keys := make([]string, 0, len(repl))
	for k := range repl {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		if len(a) != len(b) {
			return len(b) - len(a)
		}
		return strings.Compare(a, b)
	})
	return d.Map(func(r Row) Row {
		for _, c := range cols {
			v, ok := r[c]
			if !ok {
				continue
			}
			for _, k := range keys {
				if strings.Contains(v, k) {
					r[c] = repl[k]
					break
				}
			}
		}
		return r
	})
}

// Concat appends the rows of others to a copy of d.
func (d *Dataset) Concat(others ...*Dataset) *Dataset {
	out := New(d.columns, d.rows...)
	for _, o := range others {
		if o == nil {
			continue
		}
		for _, c := range o.columns {
			if !slices.Contains(out.columns, c) {
				out.columns = append(out.columns, c)
			}
		}
		out.rows = append(out.rows, o.rows...)
	}
	return out
}

// DropDuplicates keeps the first row of every distinct combination of cols.
func (d *Dataset) DropDuplicates(cols ...string) (*Dataset, error) {
	if err := d.Has(cols...); err != nil {
		return d, err
	}
	seen := make(map[string]bool, len(d.rows))
	out := &Dataset{columns: slices.Clone(d.columns)}
	for _, r := range d.rows {
		k := compositeKey(r, cols)
		if seen[k] {
			continue
		}
		seen[k] = true
		out.rows = append(out.rows, r)
	}
	return out, nil
}

func compositeKey(r Row, cols []string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = r[c]
	}
	return strings.Join(parts, "\x1f")
}

// Float coerces a cell to a number; non-numeric and missing cells yield 0.
func Float(r Row, col string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(r[col]), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Int coerces a cell to an integer, truncating fractions.
func Int(r Row, col string) int {
	return int(Float(r, col))
}

// Floats coerces several cells at once.
func Floats(r Row, cols []string) []float64 {
	out := make([]float64, len(cols))
	for i, c := range cols {
		out[i] = Float(r, c)
	}
	return out
}

// FormatFloat renders a number the way aggregated cells are stored.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
