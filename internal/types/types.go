// Package types provides the Go structs shared by every stage of an outbreak
// detection run: the disease catalogue, org-unit reference data, detector
// candidates, persisted outbreak/alert records and outbound payloads.
// JSON field names follow the documents kept in the DHIS2 datastore.
package types

import (
	"strings"
)

// Algorithm selects the temporal detection algorithm for a disease.
type Algorithm string

const (
	AlgorithmCaseBased   Algorithm = "CASE_BASED"
	AlgorithmSeasonal    Algorithm = "SEASONAL"
	AlgorithmNonSeasonal Algorithm = "NON_SEASONAL"
)

// Valid reports whether a is one of the known algorithms.
func (a Algorithm) Valid() bool {
	switch a {
	case AlgorithmCaseBased, AlgorithmSeasonal, AlgorithmNonSeasonal:
		return true
	}
	return false
}

// Status is the lifecycle state of a persisted outbreak.
type Status string

const (
	StatusConfirmed       Status = "Confirmed"
	StatusClosedVigilance Status = "Closed Vigilance"
	StatusClosed          Status = "Closed"
)

// RecordType tags which collection a record belongs to.
type RecordType string

const (
	RecordEpidemic RecordType = "EPIDEMIC"
	RecordAlert    RecordType = "ALERT"
)

// Epitype routes a reconciled record downstream.
type Epitype string

const (
	EpitypeNew Epitype = "new"
	EpitypeOld Epitype = "old"
)

// MessageKind selects the notification template.
type MessageKind string

const (
	MessageEpidemic MessageKind = "EPIDEMIC"
	MessageAlert    MessageKind = "ALERT"
	MessageReminder MessageKind = "REMINDER"
)

// Ref is a bare DHIS2 object reference.
type Ref struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Indicator roles. Aggregate algorithms read cases and deaths; the case-based
// analytics query reads confirmed, deaths and suspected.
const (
	RoleCases     = "cases"
	RoleDeaths    = "deaths"
	RoleConfirmed = "confirmed"
	RoleSuspected = "suspected"
)

// Indicator is a program indicator queried for a disease.
type Indicator struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

// DiseaseMetadata is the static per-disease configuration. It is immutable for
// the duration of a run.
type DiseaseMetadata struct {
	Code                 string      `json:"code"`
	Name                 string      `json:"disease"`
	Algorithm            Algorithm   `json:"epiAlgorithm"`
	DetectionLevel       FlexInt     `json:"detectionLevel"`
	ReportingLevel       FlexInt     `json:"reportingLevel"`
	AlertThreshold       FlexInt     `json:"alertThreshold"`
	EpiThreshold         FlexInt     `json:"epiThreshold"`
	IncubationDays       FlexInt     `json:"incubationDays"`
	M                    FlexInt     `json:"mPeriods,omitempty"`
	N                    FlexInt     `json:"nPeriods,omitempty"`
	Indicators           []Indicator `json:"programIndicators"`
	NotifiableUserGroups []Ref       `json:"notifiableUserGroups,omitempty"`
}

// IndicatorFor returns the id of the indicator carrying role. Indicators
// without an explicit role are assigned one by position.
func (d DiseaseMetadata) IndicatorFor(role string) (string, bool) {
	for _, ind := range d.Indicators {
		if ind.Role == role {
			return ind.ID, true
		}
	}
	var order []string
	if d.Algorithm == AlgorithmCaseBased {
		order = []string{RoleConfirmed, RoleDeaths, RoleSuspected}
	} else {
		order = []string{RoleCases, RoleDeaths}
	}
	for i, r := range order {
		if r != role || i >= len(d.Indicators) {
			continue
		}
		if d.Indicators[i].Role == "" {
			return d.Indicators[i].ID, true
		}
	}
	return "", false
}

// IndicatorIDs returns every indicator id in catalogue order.
func (d DiseaseMetadata) IndicatorIDs() []string {
	ids := make([]string, 0, len(d.Indicators))
	for _, ind := range d.Indicators {
		ids = append(ids, ind.ID)
	}
	return ids
}

// Windows returns the baseline window sizes, falling back to the program-wide
// defaults when the disease does not override them.
func (d DiseaseMetadata) Windows(cfg ProgramConfig) (m, n int) {
	m, n = int(d.M), int(d.N)
	if m <= 0 {
		m = int(cfg.MPeriods)
	}
	if n <= 0 {
		n = int(cfg.NPeriods)
	}
	return m, n
}

// OrgUnitRef is one entry of an org unit's ancestor chain.
type OrgUnitRef struct {
	ID   string `json:"id"`
	Code string `json:"code,omitempty"`
	Name string `json:"name,omitempty"`
}

// OrgUnitNode is read-only hierarchy reference data for a run. Ancestors are
// ordered root first.
type OrgUnitNode struct {
	ID        string       `json:"id"`
	Code      string       `json:"code,omitempty"`
	Name      string       `json:"name,omitempty"`
	Level     int          `json:"level,omitempty"`
	Ancestors []OrgUnitRef `json:"ancestors,omitempty"`
}

// AncestorAt returns the ancestor at index i of the root-first chain.
func (n OrgUnitNode) AncestorAt(i int) (OrgUnitRef, bool) {
	if i < 0 || i >= len(n.Ancestors) {
		return OrgUnitRef{}, false
	}
	return n.Ancestors[i], true
}

// OrgUnits indexes org-unit nodes by id.
type OrgUnits map[string]OrgUnitNode

// NewOrgUnits builds the index.
func NewOrgUnits(nodes []OrgUnitNode) OrgUnits {
	idx := make(OrgUnits, len(nodes))
	for _, n := range nodes {
		idx[n.ID] = n
	}
	return idx
}

// ReportingUnit resolves the ancestor of orgUnit at the given reporting level
// (1-based, as configured in the catalogue).
func (o OrgUnits) ReportingUnit(orgUnit string, reportingLevel int) (OrgUnitRef, bool) {
	node, ok := o[orgUnit]
	if !ok {
		return OrgUnitRef{}, false
	}
	return node.AncestorAt(reportingLevel - 1)
}

// Counts holds the three case tallies of a row.
type Counts struct {
	Confirmed int `json:"confirmedValue"`
	Suspected int `json:"suspectedValue"`
	Deaths    int `json:"deathValue"`
}

// Baseline carries the window statistics for one metric.
type Baseline struct {
	MeanCurrent float64 `json:"meanCurrent"`
	Mean        float64 `json:"meanBaseline"`
	Stddev      float64 `json:"stddevBaseline"`
	Mean20Std   float64 `json:"mean20std"`
	Mean15Std   float64 `json:"mean15std"`
}

// CandidateRow is one (orgUnit, disease, period) detection. It is recomputed
// every run.
type CandidateRow struct {
	Counts
	OrgUnit              string    `json:"orgUnit"`
	OrgUnitName          string    `json:"orgUnitName,omitempty"`
	OrgUnitCode          string    `json:"orgUnitCode,omitempty"`
	ReportingOrgUnit     string    `json:"reportingOrgUnit,omitempty"`
	ReportingOrgUnitName string    `json:"reportingOrgUnitName,omitempty"`
	Disease              string    `json:"disease"`
	Period               string    `json:"period"`
	Algorithm            Algorithm `json:"algorithm,omitempty"`
	Source               string    `json:"source,omitempty"`
	Cases                *Baseline `json:"cases,omitempty"`
	DeathStats           *Baseline `json:"deaths,omitempty"`
	FirstCaseDate        Date      `json:"firstCaseDate"`
	LastCaseDate         Date      `json:"lastCaseDate"`
	EndDate              Date      `json:"endDate"`
	CloseDate            Date      `json:"closeDate"`
	ReminderDate         Date      `json:"reminderDate"`
	IncubationDays       int       `json:"incubationDays"`
	AlertThreshold       int       `json:"alertThreshold,omitempty"`
	EpiThreshold         int       `json:"epiThreshold,omitempty"`
	Epidemic             Flag      `json:"epidemic"`
	Alert                Flag      `json:"alert"`
	Active               Flag      `json:"active"`
	Reminder             Flag      `json:"reminder"`
}

// Key is the equi-join key of reconciliation.
type Key struct {
	OrgUnit string
	Disease string
	Period  string
}

// Lineage identifies one logical outbreak across update cycles.
type Lineage struct {
	Disease string
	OrgUnit string
}

// Key returns the (orgUnit, disease, period) key of the row.
func (c CandidateRow) Key() Key {
	return Key{OrgUnit: c.OrgUnit, Disease: c.Disease, Period: c.Period}
}

// Lineage returns the (disease, orgUnit) lineage of the row.
func (c CandidateRow) Lineage() Lineage {
	return Lineage{Disease: c.Disease, OrgUnit: c.OrgUnit}
}

// Record is a persisted EpidemicRecord or AlertRecord.
type Record struct {
	CandidateRow
	Type             RecordType `json:"type,omitempty"`
	Epicode          string     `json:"epicode,omitempty"`
	Status           Status     `json:"status,omitempty"`
	ReminderSent     Flag       `json:"reminderSent"`
	DateReminderSent Date       `json:"dateReminderSent"`
	Event            string     `json:"event,omitempty"`
	EventDate        Date       `json:"eventDate"`
	Program          string     `json:"program,omitempty"`
	ProgramStage     string     `json:"programStage,omitempty"`
	StoredBy         string     `json:"storedBy,omitempty"`
	Updated          Flag       `json:"updated"`
	Epitype          Epitype    `json:"epitype,omitempty"`
}

// Open reports whether the record's lineage can still be continued.
func (r Record) Open() bool {
	return r.CloseDate.IsZero()
}

// ByDisease splits records into those of disease and the rest, preserving order.
func ByDisease(records []Record, disease string) (match, rest []Record) {
	for _, r := range records {
		if strings.EqualFold(r.Disease, disease) {
			match = append(match, r)
		} else {
			rest = append(rest, r)
		}
	}
	return match, rest
}

// Message is an outbound notification. It is never persisted.
type Message struct {
	Subject           string `json:"subject"`
	Text              string `json:"text"`
	UserGroups        []Ref  `json:"userGroups"`
	OrganisationUnits []Ref  `json:"organisationUnits"`
}

// MessageBatch is the body posted to messageConversations.
type MessageBatch struct {
	MessageConversations []Message `json:"messageConversations"`
}

// DataValue is one data element value of an event.
type DataValue struct {
	DataElement string `json:"dataElement"`
	Value       string `json:"value"`
}

// Event is the envelope pushed to the reporting program.
type Event struct {
	Event        string      `json:"event,omitempty"`
	EventDate    string      `json:"eventDate"`
	Program      string      `json:"program"`
	ProgramStage string      `json:"programStage"`
	StoredBy     string      `json:"storedBy"`
	Status       string      `json:"status"`
	OrgUnit      string      `json:"orgUnit"`
	DataValues   []DataValue `json:"dataValues"`
}

// EventBatch is the body posted to the events endpoint.
type EventBatch struct {
	Events []Event `json:"events"`
}
