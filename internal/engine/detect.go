package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/matthewbaird/outbreak/internal/period"
	"github.com/matthewbaird/outbreak/internal/signals"
	"github.com/matthewbaird/outbreak/internal/table"
	"github.com/matthewbaird/outbreak/internal/types"
)

// registrationLookback is how far back tracked entity registrations are
// read for first and last case dates.
const registrationLookback = 8

// detect queries the inputs of one disease and runs its detector.
func (e *Engine) detect(ctx context.Context, r *run, hm table.HeaderMap, meta types.DiseaseMetadata, log *zap.Logger) ([]types.Record, error) {
	reg, ok := signals.LookupAlgorithm(meta.Algorithm)
	if !ok {
		return nil, fmt.Errorf("unknown algorithm %q", meta.Algorithm)
	}
	nodes, err := e.deps.Analytics.OrgUnits(ctx, int(meta.DetectionLevel))
	if err != nil {
		return nil, fmt.Errorf("fetching level %d org units: %w", meta.DetectionLevel, err)
	}
	orgUnits := types.NewOrgUnits(nodes)
	rc := signals.RunContext{Today: r.today, Codes: e.codes}

	m, n := meta.Windows(r.catalogue.Config)
	periods := period.Windows(e.now(), m, n, meta.Algorithm)

	if reg.Windowed {
		resp, err := e.deps.Analytics.Aggregate(ctx, AggregateQuery{
			Indicators: meta.IndicatorIDs(),
			Periods:    periods,
			Level:      int(meta.DetectionLevel),
		})
		if err != nil {
			return nil, fmt.Errorf("querying aggregate indicators: %w", err)
		}
		ds, err := table.Normalize(resp, reg.Shape, hm)
		if err != nil {
			return nil, err
		}
		return signals.DetectAggregate(ds, meta, orgUnits, periods, m, rc)
	}

	var in signals.CaseBasedInput
	in.Registrations = e.registrations(ctx, r, hm, meta, log)
	np := r.catalogue.Config.NotificationProgram
	pe := period.Last7Days
	if len(periods) > 0 {
		pe = periods[0]
	}
	if e.caseSource == signals.SourceEvents {
		resp, err := e.deps.Analytics.CaseEvents(ctx, EventQuery{
			Program:     np.ID,
			Period:      pe,
			Level:       int(meta.DetectionLevel),
			DiseaseCode: meta.Code,
			Attributes:  np,
		})
		if err != nil {
			return nil, fmt.Errorf("querying case events: %w", err)
		}
		if in.Events, err = table.Normalize(resp, reg.Shape, hm); err != nil {
			return nil, err
		}
	} else {
		resp, err := e.deps.Analytics.CaseIndicators(ctx, IndicatorQuery{
			Indicators: meta.IndicatorIDs(),
			Period:     pe,
			Level:      int(meta.DetectionLevel),
		})
		if err != nil {
			return nil, fmt.Errorf("querying case indicators: %w", err)
		}
		if in.Indicators, err = table.Normalize(resp, table.ShapeAggregate, hm); err != nil {
			return nil, err
		}
	}
	return signals.DetectCaseBased(in, meta, orgUnits, rc)
}

// registrations reads the tracked entity registrations of a case-based
// disease. A failure only costs the registration dates, so it is logged and
// nil is returned.
func (e *Engine) registrations(ctx context.Context, r *run, hm table.HeaderMap, meta types.DiseaseMetadata, log *zap.Logger) *table.Dataset {
	if r.roots == nil && r.rootsErr == nil {
		r.roots, r.rootsErr = e.deps.Analytics.RootOrgUnits(ctx)
		if r.rootsErr == nil && len(r.roots) == 0 {
			r.rootsErr = errors.New("no root org unit")
		}
	}
	if r.rootsErr != nil {
		log.Warn("registration dates unavailable", zap.Error(r.rootsErr))
		return nil
	}
	np := r.catalogue.Config.NotificationProgram
	resp, err := e.deps.Analytics.Registrations(ctx, RegistrationQuery{
		Program:          np.ID,
		RootOrgUnit:      r.roots[0].ID,
		DiseaseCode:      meta.Code,
		Attributes:       np,
		ProgramStartDate: r.today.AddDays(-registrationLookback),
	})
	if err != nil {
		log.Warn("registration dates unavailable", zap.Error(err))
		return nil
	}
	ds, err := table.Normalize(resp, table.ShapeDates, hm)
	if err != nil {
		if !errors.Is(err, table.ErrEmpty) {
			log.Warn("registration dates unreadable", zap.Error(err))
		}
		return nil
	}
	return ds
}
