package signals

import (
	"fmt"
	"math"

	"github.com/matthewbaird/outbreak/internal/period"
	"github.com/matthewbaird/outbreak/internal/table"
	"github.com/matthewbaird/outbreak/internal/types"
)

// DetectAggregate scores a wide aggregate table (one row per org unit, one
// column per indicator and period) for a SEASONAL or NON_SEASONAL disease.
//
// periods is the window returned by period.Windows for the same m. For
// NON_SEASONAL the current observation is periods[0] and the baseline the
// following m weeks. For SEASONAL the current observation is the mean of the
// first m weeks, the baseline the remaining m·n weeks, and the detection is
// dated to the center week of the current block.
//
// Only rows reaching mean+2σ are returned. They are flagged both epidemic
// and alert, so the same detection feeds the outbreak and the alert
// collections. An empty table yields
// table.ErrEmpty; a table without any cell for the case indicator yields
// table.ErrKeyMismatch.
func DetectAggregate(ds *table.Dataset, meta types.DiseaseMetadata, orgUnits types.OrgUnits,
	periods []period.Period, m int, rc RunContext) ([]types.Record, error) {
	if ds.Empty() {
		return nil, table.ErrEmpty
	}
	if meta.Algorithm != types.AlgorithmSeasonal && meta.Algorithm != types.AlgorithmNonSeasonal {
		return nil, fmt.Errorf("aggregate detector: unsupported algorithm %q", meta.Algorithm)
	}
	if err := ds.Has(table.ColOrgUnitID); err != nil {
		return nil, err
	}
	casesID, ok := meta.IndicatorFor(types.RoleCases)
	if !ok {
		return nil, fmt.Errorf("aggregate detector: %s has no cases indicator", meta.Name)
	}
	deathsID, hasDeaths := meta.IndicatorFor(types.RoleDeaths)

	current, baseline := period.Current(periods, m, meta.Algorithm)
	if len(current) == 0 {
		return nil, fmt.Errorf("aggregate detector: empty period window for %s", meta.Name)
	}
	selected := current[period.Center(len(current))]
	first, last, err := period.Bounds(selected)
	if err != nil {
		return nil, fmt.Errorf("aggregate detector: %w", err)
	}
	curLabels, baseLabels := period.Strings(current), period.Strings(baseline)

	indicators := []string{casesID}
	if hasDeaths {
		indicators = append(indicators, deathsID)
	}
	schema := table.ResolveWide(ds, indicators, period.Strings(periods))
	if _, ok := firstCell(schema, casesID, period.Strings(periods)); !ok {
		return nil, fmt.Errorf("%w: no %s cells for indicator %s", table.ErrKeyMismatch, meta.Name, casesID)
	}

	reportingLevel := int(meta.ReportingLevel)
	incubation := int(meta.IncubationDays)
	sched := NewSchedule(last, incubation, rc.Today)
	source := fmt.Sprintf("%s:%s", meta.Algorithm, period.Join(current))

	var out []types.Record
	for _, r := range ds.Rows() {
		ou := r[table.ColOrgUnitID]
		if ou == "" {
			continue
		}
		cases := NewBaseline(schema.Values(r, casesID, curLabels), schema.Values(r, casesID, baseLabels))
		if !ExceedsEpidemic(cases) {
			continue
		}

		c := types.CandidateRow{
			OrgUnit:        ou,
			OrgUnitName:    r[table.ColOrgUnitName],
			OrgUnitCode:    r[table.ColOrgUnitCode],
			Disease:        meta.Name,
			Period:         string(selected),
			Algorithm:      meta.Algorithm,
			Source:         source,
			Cases:          &cases,
			FirstCaseDate:  first,
			LastCaseDate:   last,
			IncubationDays: incubation,
			AlertThreshold: int(meta.AlertThreshold),
			EpiThreshold:   int(meta.EpiThreshold),
			Epidemic:       true,
			Alert:          true,
		}
		confirmed := int(math.Round(cases.MeanCurrent))
		c.Confirmed, c.Suspected = confirmed, confirmed
		if hasDeaths {
			deaths := NewBaseline(schema.Values(r, deathsID, curLabels), schema.Values(r, deathsID, baseLabels))
			c.DeathStats = &deaths
			c.Deaths = int(math.Round(deaths.MeanCurrent))
		}
		sched.apply(&c)
		resolveOrgUnit(&c, r, orgUnits, reportingLevel)
		out = append(out, finalize(c, rc))
	}
	return out, nil
}

func firstCell(s table.WideSchema, indicator string, periods []string) (string, bool) {
	for _, pe := range periods {
		if c, ok := s.Cell(indicator, pe); ok {
			return c, true
		}
	}
	return "", false
}

// resolveOrgUnit fills the org-unit code and the reporting ancestor. The
// hierarchy fetched for the run is authoritative; the table's own hierarchy
// columns are the fallback for the reporting unit name.
func resolveOrgUnit(c *types.CandidateRow, r table.Row, orgUnits types.OrgUnits, reportingLevel int) {
	node, known := orgUnits[c.OrgUnit]
	if c.OrgUnitCode == "" && known {
		c.OrgUnitCode = node.Code
	}
	if c.OrgUnitName == "" && known {
		c.OrgUnitName = node.Name
	}
	if anc, ok := orgUnits.ReportingUnit(c.OrgUnit, reportingLevel); ok {
		c.ReportingOrgUnit = anc.ID
		c.ReportingOrgUnitName = anc.Name
	}
	if c.ReportingOrgUnitName == "" && r != nil {
		c.ReportingOrgUnitName = r[table.LevelColumn(reportingLevel)]
	}
}
