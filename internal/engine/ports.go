package engine

import (
	"context"

	"github.com/matthewbaird/outbreak/internal/lifecycle"
	"github.com/matthewbaird/outbreak/internal/period"
	"github.com/matthewbaird/outbreak/internal/table"
	"github.com/matthewbaird/outbreak/internal/types"
)

// Record collections.
const (
	KeyEpidemics = "epidemics"
	KeyAlerts    = "alerts"
)

// CatalogueSource supplies the disease list and program configuration.
type CatalogueSource interface {
	Catalogue(ctx context.Context) (types.Catalogue, error)
}

// AggregateQuery selects indicator values per org unit and week.
type AggregateQuery struct {
	Indicators []string
	Periods    []period.Period
	Level      int
}

// EventQuery selects the case line list of one disease.
type EventQuery struct {
	Program     string
	Period      period.Period
	Level       int
	DiseaseCode string
	Attributes  types.NotificationProgram
}

// IndicatorQuery selects program indicator totals per org unit.
type IndicatorQuery struct {
	Indicators []string
	Period     period.Period
	Level      int
}

// RegistrationQuery selects tracked entities registered for one disease.
type RegistrationQuery struct {
	Program          string
	RootOrgUnit      string
	DiseaseCode      string
	Attributes       types.NotificationProgram
	ProgramStartDate types.Date
}

// Analytics reads case data and reference data.
type Analytics interface {
	Aggregate(ctx context.Context, q AggregateQuery) (*table.Response, error)
	CaseEvents(ctx context.Context, q EventQuery) (*table.Response, error)
	CaseIndicators(ctx context.Context, q IndicatorQuery) (*table.Response, error)
	Registrations(ctx context.Context, q RegistrationQuery) (*table.Response, error)
	OrgUnits(ctx context.Context, level int) ([]types.OrgUnitNode, error)
	RootOrgUnits(ctx context.Context) ([]types.OrgUnitRef, error)
}

// IDIssuer allocates event ids.
type IDIssuer = lifecycle.IDIssuer

// RecordStore reads and replaces a record collection.
type RecordStore interface {
	Read(ctx context.Context, key string) ([]types.Record, error)
	Write(ctx context.Context, key string, records []types.Record) error
}

// EventPusher creates or updates outbreak events.
type EventPusher interface {
	PushEvents(ctx context.Context, events []types.Event) error
}

// Notifier sends notification messages.
type Notifier interface {
	Send(ctx context.Context, batch types.MessageBatch) error
}
