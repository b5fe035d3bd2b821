package dhis2

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/matthewbaird/outbreak/internal/engine"
	"github.com/matthewbaird/outbreak/internal/period"
	"github.com/matthewbaird/outbreak/internal/table"
	"github.com/matthewbaird/outbreak/internal/types"
)

// caseWindow is the relative period the case line list and program
// indicators are read for.
const caseWindow = "LAST_7_DAYS"

func orgUnitLevel(level int) string { return "ou:LEVEL-" + strconv.Itoa(level) }

// tableLayout adds the parameters of a wide analytics table with one row
// per org unit and the hierarchy columns.
func tableLayout(q url.Values, columns string) {
	q.Set("displayProperty", "NAME")
	q.Set("tableLayout", "true")
	q.Set("columns", columns)
	q.Set("rows", "ou")
	q.Set("skipMeta", "false")
	q.Set("hideEmptyRows", "true")
	q.Set("skipRounding", "false")
	q.Set("showHierarchy", "true")
}

// Aggregate reads indicator values per org unit and week.
func (c *Client) Aggregate(ctx context.Context, q engine.AggregateQuery) (*table.Response, error) {
	v := url.Values{}
	v.Add("dimension", "dx:"+strings.Join(q.Indicators, ";"))
	v.Add("dimension", orgUnitLevel(q.Level))
	v.Add("dimension", "pe:"+strings.Join(period.Strings(q.Periods), ";"))
	tableLayout(v, "dx;pe")

	var resp table.Response
	if err := c.get(ctx, "analytics", v, &resp); err != nil {
		return nil, fmt.Errorf("aggregate analytics: %w", err)
	}
	return &resp, nil
}

// CaseEvents reads the case line list of one disease from event analytics.
func (c *Client) CaseEvents(ctx context.Context, q engine.EventQuery) (*table.Response, error) {
	pe := string(q.Period)
	if pe == "" {
		pe = caseWindow
	}
	a := q.Attributes
	v := url.Values{}
	v.Add("dimension", "pe:"+pe)
	v.Add("dimension", orgUnitLevel(q.Level))
	v.Add("dimension", a.DateOfOnset.ID)
	v.Add("dimension", a.Disease.ID+":IN:"+q.DiseaseCode)
	for _, ref := range []types.Ref{
		a.PatientStatusOutcome, a.RegPatientStatusOutcome, a.CaseClassification,
		a.TestResult, a.TestResultClassification,
	} {
		if ref.ID != "" {
			v.Add("dimension", ref.ID)
		}
	}
	v.Set("displayProperty", "NAME")

	var resp table.Response
	if err := c.get(ctx, "analytics/events/query/"+url.PathEscape(q.Program), v, &resp); err != nil {
		return nil, fmt.Errorf("case events: %w", err)
	}
	return &resp, nil
}

// CaseIndicators reads program indicator totals per org unit for the last
// seven days.
func (c *Client) CaseIndicators(ctx context.Context, q engine.IndicatorQuery) (*table.Response, error) {
	pe := string(q.Period)
	if pe == "" {
		pe = caseWindow
	}
	v := url.Values{}
	v.Add("dimension", "dx:"+strings.Join(q.Indicators, ";"))
	v.Add("dimension", orgUnitLevel(q.Level))
	v.Add("filter", "pe:"+pe)
	tableLayout(v, "dx")

	var resp table.Response
	if err := c.get(ctx, "analytics", v, &resp); err != nil {
		return nil, fmt.Errorf("case indicators: %w", err)
	}
	return &resp, nil
}

// Registrations lists active tracked entities registered for one disease
// below the root org unit since the program start date.
func (c *Client) Registrations(ctx context.Context, q engine.RegistrationQuery) (*table.Response, error) {
	v := url.Values{}
	v.Set("ou", q.RootOrgUnit)
	v.Set("program", q.Program)
	v.Set("ouMode", "DESCENDANTS")
	v.Set("programStatus", "ACTIVE")
	v.Add("attribute", q.Attributes.Disease.ID+":IN:"+q.DiseaseCode)
	if q.Attributes.DateOfOnset.ID != "" {
		v.Add("attribute", q.Attributes.DateOfOnset.ID)
	}
	if !q.ProgramStartDate.IsZero() {
		v.Set("programStartDate", q.ProgramStartDate.String())
	}
	v.Set("skipPaging", "true")

	var resp table.Response
	if err := c.get(ctx, "trackedEntityInstances/query", v, &resp); err != nil {
		return nil, fmt.Errorf("registrations: %w", err)
	}
	return &resp, nil
}

type orgUnitList struct {
	OrganisationUnits []types.OrgUnitNode `json:"organisationUnits"`
}

// OrgUnits fetches every org unit of a level with its ancestor chain.
func (c *Client) OrgUnits(ctx context.Context, level int) ([]types.OrgUnitNode, error) {
	v := url.Values{}
	v.Set("fields", "id,code,name,level,ancestors[id,code,name]")
	v.Set("paging", "false")
	v.Set("filter", "level:eq:"+strconv.Itoa(level))

	var out orgUnitList
	if err := c.get(ctx, "organisationUnits", v, &out); err != nil {
		return nil, fmt.Errorf("org units level %d: %w", level, err)
	}
	return out.OrganisationUnits, nil
}

// RootOrgUnits fetches the level 1 org units.
func (c *Client) RootOrgUnits(ctx context.Context) ([]types.OrgUnitRef, error) {
	v := url.Values{}
	v.Set("fields", "id,code,name")
	v.Set("paging", "false")
	v.Set("filter", "level:eq:1")

	var out orgUnitList
	if err := c.get(ctx, "organisationUnits", v, &out); err != nil {
		return nil, fmt.Errorf("root org units: %w", err)
	}
	refs := make([]types.OrgUnitRef, 0, len(out.OrganisationUnits))
	for _, n := range out.OrganisationUnits {
		refs = append(refs, types.OrgUnitRef{ID: n.ID, Code: n.Code, Name: n.Name})
	}
	return refs, nil
}
