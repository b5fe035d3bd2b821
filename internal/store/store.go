// Package store holds the record stores the engine persists epidemic and
// alert collections to when the DHIS2 datastore is not used: an SQLite
// store for deployments and an in-memory store for tests and dry runs.
package store

import (
	"slices"
	"strings"

	"github.com/matthewbaird/outbreak/internal/types"
)

// Filter narrows a record collection for listing. Empty fields match all.
type Filter struct {
	Disease string
	OrgUnit string
	Status  types.Status
	Period  string
}

// Match reports whether r satisfies the filter. Disease matches
// case-insensitively.
func (f Filter) Match(r types.Record) bool {
	if f.Disease != "" && !strings.EqualFold(f.Disease, r.Disease) {
		return false
	}
	if f.OrgUnit != "" && f.OrgUnit != r.OrgUnit {
		return false
	}
	if f.Status != "" && f.Status != r.Status {
		return false
	}
	if f.Period != "" && f.Period != r.Period {
		return false
	}
	return true
}

// Apply returns the records matching f, in order.
func Apply(records []types.Record, f Filter) []types.Record {
	out := make([]types.Record, 0, len(records))
	for _, r := range records {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// FindEpicode returns the record carrying epicode.
func FindEpicode(records []types.Record, epicode string) (types.Record, bool) {
	i := slices.IndexFunc(records, func(r types.Record) bool { return r.Epicode == epicode })
	if i < 0 {
		return types.Record{}, false
	}
	return records[i], true
}
