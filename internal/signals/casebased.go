package signals

import (
	"fmt"
	"strings"

	"github.com/matthewbaird/outbreak/internal/lifecycle"
	"github.com/matthewbaird/outbreak/internal/period"
	"github.com/matthewbaird/outbreak/internal/table"
	"github.com/matthewbaird/outbreak/internal/types"
)

// Derived line-list columns.
const (
	ColOnset = "dateOfOnSet"
	ColWeek  = "dateOfOnSetWeek"
)

// Sources recorded on case-based detections.
const (
	SourceEvents    = "events"
	SourceAnalytics = "analytics"
)

// CaseBasedInput carries the normalized responses for one case-based disease.
// Exactly one of Events (line list) or Indicators (program indicator totals
// per org unit) is expected; Events wins when both are set. Registrations
// lists tracked entities with their onset dates and is used for first and
// last case dates.
type CaseBasedInput struct {
	Events        *table.Dataset
	Indicators    *table.Dataset
	Registrations *table.Dataset
}

// weekly is one org unit's tally for one ISO week.
type weekly struct {
	ou, ouName string
	week       string
	counts     types.Counts
	first      types.Date
	last       types.Date
}

type caseDates map[string][2]types.Date

// DetectCaseBased scores case-based diseases against their fixed thresholds.
// Only epidemic and alert rows are returned.
func DetectCaseBased(in CaseBasedInput, meta types.DiseaseMetadata, orgUnits types.OrgUnits, rc RunContext) ([]types.Record, error) {
	dates, err := registrationDates(in.Registrations, meta)
	if err != nil {
		return nil, err
	}

	var tallies []weekly
	var source string
	switch {
	case !in.Events.Empty():
		source = SourceEvents
		tallies, err = eventTallies(in.Events, meta, dates)
	case !in.Indicators.Empty():
		source = SourceAnalytics
		tallies, err = indicatorTallies(in.Indicators, meta, dates, rc.Today)
	default:
		return nil, table.ErrEmpty
	}
	if err != nil {
		return nil, err
	}

	incubation := int(meta.IncubationDays)
	reportingLevel := int(meta.ReportingLevel)
	var out []types.Record
	for _, w := range tallies {
		sched := NewSchedule(w.last, incubation, rc.Today)
		epidemic, alert := ClassifyCaseBased(w.counts, int(meta.AlertThreshold), int(meta.EpiThreshold), sched.EndDate, rc.Today)
		if !epidemic && !alert {
			continue
		}
		c := types.CandidateRow{
			Counts:         w.counts,
			OrgUnit:        w.ou,
			OrgUnitName:    w.ouName,
			Disease:        meta.Name,
			Period:         w.week,
			Algorithm:      types.AlgorithmCaseBased,
			Source:         source,
			FirstCaseDate:  w.first,
			LastCaseDate:   w.last,
			IncubationDays: incubation,
			AlertThreshold: int(meta.AlertThreshold),
			EpiThreshold:   int(meta.EpiThreshold),
			Epidemic:       types.Flag(epidemic),
			Alert:          types.Flag(alert),
		}
		sched.apply(&c)
		// Case-based rows have no provisional close date; the status
		// machine sets it.
		c.CloseDate = types.Date{}
		resolveOrgUnit(&c, nil, orgUnits, reportingLevel)
		out = append(out, finalize(c, rc))
	}
	return out, nil
}

// eventTallies turns a case line list into weekly tallies per org unit.
//
// Option texts are canonicalized, then every categorical dimension is
// pivoted into per-day counts keyed by (ouname, ou, disease, onset date).
// The pivots are left-joined, so a status reported in several dimensions
// appears in several columns; the per-day figure takes the largest, with
// suspected never below confirmed. Days are then summed per ISO week.
func eventTallies(events *table.Dataset, meta types.DiseaseMetadata, dates caseDates) ([]weekly, error) {
	if err := events.Has(table.ColOU); err != nil {
		return nil, err
	}
	ev := events.Map(func(r table.Row) table.Row {
		r[ColOnset] = onsetOf(r)
		if _, ok := r[table.ColOUName]; !ok {
			r[table.ColOUName] = ""
		}
		r[table.ColDisease] = meta.Name
		return r
	}).Filter(func(r table.Row) bool { return r[ColOnset] != "" })
	if ev.Empty() {
		return nil, fmt.Errorf("%w: no dated case reports for %s", table.ErrEmpty, meta.Name)
	}
	ev = ev.Replace(Replacements(), CategoricalColumns...)

	keys := []string{table.ColOUName, table.ColOU, table.ColDisease, ColOnset}
	var combined *table.Dataset
	for _, dim := range CategoricalColumns {
		if ev.Has(dim) != nil {
			continue
		}
		pivot, err := ev.GroupBy(keys...).Pivot(dim)
		if err != nil {
			return nil, err
		}
		if combined == nil {
			combined = pivot
			continue
		}
		combined, err = table.Join(combined, pivot, keys, table.JoinOptions{
			How:      table.Left,
			Suffixes: [2]string{"", "_" + dim},
		})
		if err != nil {
			return nil, err
		}
	}
	if combined == nil {
		return nil, fmt.Errorf("%w: line list has no case status columns", table.ErrKeyMismatch)
	}

	cols := combined.Columns()
	daily := table.New([]string{table.ColOUName, table.ColOU, table.ColDisease, ColWeek,
		CanonicalConfirmed, CanonicalSuspected, CanonicalDeath})
	for _, r := range combined.Rows() {
		day, err := types.ParseDate(r[ColOnset])
		if err != nil {
			continue
		}
		counts := lifecycle.MergeCounts(types.Counts{
			Confirmed: maxCanonical(r, cols, CanonicalConfirmed),
			Suspected: maxCanonical(r, cols, CanonicalSuspected),
			Deaths:    maxCanonical(r, cols, CanonicalDeath),
		}, types.Counts{})
		daily.Append(table.Row{
			table.ColOUName:    r[table.ColOUName],
			table.ColOU:        r[table.ColOU],
			table.ColDisease:   r[table.ColDisease],
			ColWeek:            string(period.Of(day.Time)),
			CanonicalConfirmed: table.FormatFloat(float64(counts.Confirmed)),
			CanonicalSuspected: table.FormatFloat(float64(counts.Suspected)),
			CanonicalDeath:     table.FormatFloat(float64(counts.Deaths)),
		})
	}
	sums, err := daily.GroupBy(table.ColOUName, table.ColOU, table.ColDisease, ColWeek).Agg(
		table.Agg{Column: CanonicalConfirmed, As: CanonicalConfirmed, Fn: table.Sum},
		table.Agg{Column: CanonicalSuspected, As: CanonicalSuspected, Fn: table.Sum},
		table.Agg{Column: CanonicalDeath, As: CanonicalDeath, Fn: table.Sum},
	)
	if err != nil {
		return nil, err
	}

	eventDates, err := datesByOrgUnit(ev, ColOnset)
	if err != nil {
		return nil, err
	}
	out := make([]weekly, 0, sums.Len())
	for _, r := range sums.Rows() {
		w := weekly{
			ou:     r[table.ColOU],
			ouName: r[table.ColOUName],
			week:   r[ColWeek],
			counts: types.Counts{
				Confirmed: table.Int(r, CanonicalConfirmed),
				Suspected: table.Int(r, CanonicalSuspected),
				Deaths:    table.Int(r, CanonicalDeath),
			},
		}
		d, ok := dates[w.ou]
		if !ok {
			d = eventDates[w.ou]
		}
		w.first, w.last = d[0], d[1]
		out = append(out, w)
	}
	return out, nil
}

// indicatorTallies reads program indicator totals per org unit. The totals
// cover the last seven days and are attributed to the ISO week of today.
// Rows for org units without registration dates are dropped.
func indicatorTallies(ds *table.Dataset, meta types.DiseaseMetadata, dates caseDates, today types.Date) ([]weekly, error) {
	if err := ds.Has(table.ColOrgUnitID); err != nil {
		return nil, err
	}
	column := func(role string) (string, bool) {
		id, ok := meta.IndicatorFor(role)
		if !ok {
			return "", false
		}
		return ds.FindColumn(id)
	}
	confirmedCol, ok := column(types.RoleConfirmed)
	if !ok {
		return nil, fmt.Errorf("%w: no confirmed indicator column for %s", table.ErrKeyMismatch, meta.Name)
	}
	deathsCol, hasDeaths := column(types.RoleDeaths)
	suspectedCol, hasSuspected := column(types.RoleSuspected)

	if len(dates) == 0 {
		return nil, fmt.Errorf("%w: no registration dates for %s", table.ErrEmpty, meta.Name)
	}
	week := string(period.Of(today.Time))
	var out []weekly
	for _, r := range ds.Rows() {
		ou := r[table.ColOrgUnitID]
		d, ok := dates[ou]
		if !ok {
			continue
		}
		var c types.Counts
		c.Confirmed = table.Int(r, confirmedCol)
		if hasDeaths {
			c.Deaths = table.Int(r, deathsCol)
		}
		if hasSuspected {
			c.Suspected = table.Int(r, suspectedCol)
		}
		out = append(out, weekly{
			ou:     ou,
			ouName: r[table.ColOrgUnitName],
			week:   week,
			counts: lifecycle.MergeCounts(c, types.Counts{}),
			first:  d[0],
			last:   d[1],
		})
	}
	return out, nil
}

// registrationDates returns the first and last onset date per org unit from
// the tracked entity listing. Registrations of other diseases are ignored
// when the listing carries a disease column.
func registrationDates(reg *table.Dataset, meta types.DiseaseMetadata) (caseDates, error) {
	if reg.Empty() {
		return caseDates{}, nil
	}
	if err := reg.Has(table.ColOU); err != nil {
		return nil, err
	}
	rows := reg.Filter(func(r table.Row) bool {
		d := strings.TrimSpace(r[table.ColDisease])
		return d == "" || strings.EqualFold(d, meta.Name) || strings.EqualFold(d, meta.Code)
	}).Map(func(r table.Row) table.Row {
		on := r[table.ColOnsetDate]
		if on == "" {
			on = r[table.ColCreated]
		}
		r[ColOnset] = normalizeDate(on)
		return r
	}).Filter(func(r table.Row) bool { return r[ColOnset] != "" })
	if rows.Empty() {
		return caseDates{}, nil
	}
	return datesByOrgUnit(rows, ColOnset)
}

func datesByOrgUnit(ds *table.Dataset, col string) (caseDates, error) {
	agg, err := ds.GroupBy(table.ColOU).Agg(
		table.Agg{Column: col, As: "first", Fn: table.MinString},
		table.Agg{Column: col, As: "last", Fn: table.MaxString},
	)
	if err != nil {
		return nil, err
	}
	out := make(caseDates, agg.Len())
	for _, r := range agg.Rows() {
		first, err1 := types.ParseDate(r["first"])
		last, err2 := types.ParseDate(r["last"])
		if err1 != nil || err2 != nil {
			continue
		}
		out[r[table.ColOU]] = [2]types.Date{first, last}
	}
	return out, nil
}

// onsetOf is the date of onset, falling back to the event date.
func onsetOf(r table.Row) string {
	if d := normalizeDate(r[table.ColOnsetDate]); d != "" {
		return d
	}
	return normalizeDate(r[table.ColEventDate])
}

func normalizeDate(s string) string {
	d, err := types.ParseDate(s)
	if err != nil {
		return ""
	}
	return d.String()
}

// maxCanonical returns the largest count among the columns holding a
// canonical status, including its join-suffixed copies.
func maxCanonical(r table.Row, cols []string, canonical string) int {
	best := 0
	for _, c := range cols {
		if c == canonical || strings.HasPrefix(c, canonical+"_") {
			best = max(best, table.Int(r, c))
		}
	}
	return best
}
