// Package engine runs one detection and reconciliation pass over every
// catalogued disease: query, detect, reconcile against the persisted
// collections, then persist, push events and notify.
package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matthewbaird/outbreak/internal/event"
	"github.com/matthewbaird/outbreak/internal/lifecycle"
	"github.com/matthewbaird/outbreak/internal/metrics"
	"github.com/matthewbaird/outbreak/internal/notify"
	"github.com/matthewbaird/outbreak/internal/signals"
	"github.com/matthewbaird/outbreak/internal/table"
	"github.com/matthewbaird/outbreak/internal/types"
)

// ErrBusy is returned by Run while another run is in progress.
var ErrBusy = errors.New("engine: run already in progress")

// DoneMessage is the completion signal of a run.
const DoneMessage = "Done processing"

// Deps are the collaborators of a run.
type Deps struct {
	Catalogue CatalogueSource
	Analytics Analytics
	IDs       IDIssuer
	Store     RecordStore
	Events    EventPusher
	Notifier  Notifier
}

// Engine runs detection passes. Runs are serialized.
type Engine struct {
	deps       Deps
	recorder   event.Recorder
	logger     *zap.Logger
	now        func() time.Time
	codes      lifecycle.CodeGenerator
	caseSource string
	trigger    string

	mu sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithClock overrides the clock used for "today" and the period windows.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithCodes overrides the outbreak code generator.
func WithCodes(c lifecycle.CodeGenerator) Option { return func(e *Engine) { e.codes = c } }

// WithRecorder records lifecycle events of every run.
func WithRecorder(r event.Recorder) Option { return func(e *Engine) { e.recorder = r } }

// WithCaseSource selects where case-based counts come from:
// signals.SourceEvents (line list) or signals.SourceAnalytics (program
// indicators, the default).
func WithCaseSource(s string) Option { return func(e *Engine) { e.caseSource = s } }

// New creates an Engine.
func New(deps Deps, opts ...Option) *Engine {
	e := &Engine{
		deps:       deps,
		logger:     zap.NewNop(),
		now:        time.Now,
		codes:      lifecycle.RandomCodes{},
		caseSource: signals.SourceAnalytics,
	}
	for _, o := range opts {
		o(e)
	}
	e.logger = e.logger.Named("engine")
	return e
}

// run is the state owned by one pass.
type run struct {
	id        string
	today     types.Date
	catalogue types.Catalogue
	epidemics []types.Record
	alerts    []types.Record
	messages  []types.Message
	events    []event.DomainEvent
	roots     []types.OrgUnitRef
	rootsErr  error
	summary   *Summary
}

// Run executes one pass over the catalogue. The returned error is reserved
// for failures before any disease is processed; everything later is logged
// and reflected in the Summary.
func (e *Engine) Run(ctx context.Context, trigger string) (Summary, error) {
	if !e.mu.TryLock() {
		metrics.RunsTotal.WithLabelValues(trigger, "busy").Inc()
		return Summary{}, ErrBusy
	}
	defer e.mu.Unlock()

	started := e.now()
	r := &run{
		id:      uuid.New().String(),
		today:   types.DateOf(started),
		summary: &Summary{StartedAt: started},
	}
	r.summary.RunID = r.id
	log := e.logger.With(zap.String("run", r.id))
	log.Info("detection run started", zap.String("today", r.today.String()), zap.String("trigger", trigger))

	if err := e.load(ctx, r); err != nil {
		metrics.RunsTotal.WithLabelValues(trigger, "failed").Inc()
		log.Error("detection run aborted", zap.Error(err))
		return *r.summary, err
	}

	rec := lifecycle.NewReconciler(
		lifecycle.WithCodes(e.codes),
		lifecycle.WithIDs(e.deps.IDs),
		lifecycle.WithProgram(r.catalogue.Config.ReportingProgram),
		lifecycle.WithLogger(log),
		lifecycle.WithClock(e.now),
	)
	hm := table.NewHeaderMap(r.catalogue.Config.NotificationProgram)
	for _, meta := range r.catalogue.Diseases {
		if err := ctx.Err(); err != nil {
			r.summary.skip(meta.Name, err)
			continue
		}
		e.processDisease(ctx, r, rec, hm, meta, log)
	}

	e.handoff(ctx, r, log)
	e.record(ctx, r, log)

	r.summary.Duration = time.Since(started)
	r.summary.Message = DoneMessage
	metrics.RunsTotal.WithLabelValues(trigger, "ok").Inc()
	metrics.RunDuration.Observe(r.summary.Duration.Seconds())
	log.Info(DoneMessage,
		zap.Int("processed", len(r.summary.Processed)),
		zap.Int("skipped", len(r.summary.Skipped)),
		zap.Int("new", r.summary.New),
		zap.Int("updated", r.summary.Updated),
		zap.Int("alerts", r.summary.Alerts),
		zap.Duration("duration", r.summary.Duration),
	)
	return *r.summary, nil
}

// load reads the catalogue and both persisted collections.
func (e *Engine) load(ctx context.Context, r *run) error {
	cat, err := e.deps.Catalogue.Catalogue(ctx)
	if err != nil {
		return fmt.Errorf("loading disease catalogue: %w", err)
	}
	r.catalogue = cat
	if r.epidemics, err = e.deps.Store.Read(ctx, KeyEpidemics); err != nil {
		return fmt.Errorf("reading %s: %w", KeyEpidemics, err)
	}
	if r.alerts, err = e.deps.Store.Read(ctx, KeyAlerts); err != nil {
		return fmt.Errorf("reading %s: %w", KeyAlerts, err)
	}
	return nil
}

// processDisease detects and reconciles one disease. Failures skip the
// disease and leave its persisted records untouched.
func (e *Engine) processDisease(ctx context.Context, r *run, rec *lifecycle.Reconciler, hm table.HeaderMap, meta types.DiseaseMetadata, log *zap.Logger) {
	log = log.With(zap.String("disease", meta.Name), zap.String("algorithm", string(meta.Algorithm)))

	detected, err := e.detect(ctx, r, hm, meta, log)
	if err != nil {
		if errors.Is(err, table.ErrEmpty) {
			log.Info("nothing to detect, skipping disease", zap.Error(err))
		} else {
			log.Warn("detection failed, skipping disease", zap.Error(err))
		}
		r.summary.skip(meta.Name, err)
		metrics.DiseasesTotal.WithLabelValues(string(meta.Algorithm), "skipped").Inc()
		return
	}

	// Aggregate detections are flagged both epidemic and alert and land in
	// both collections.
	var epidemicRows, alertRows []types.Record
	for _, d := range detected {
		if d.Epidemic {
			epidemicRows = append(epidemicRows, d)
		}
		if d.Alert {
			alertRows = append(alertRows, d)
		}
	}
	metrics.DetectionsTotal.WithLabelValues(meta.Name, "epidemic").Add(float64(len(epidemicRows)))
	metrics.DetectionsTotal.WithLabelValues(meta.Name, "alert").Add(float64(len(alertRows)))

	persistedAlerts, otherAlerts := types.ByDisease(r.alerts, meta.Name)
	alertRes := rec.Reconcile(ctx, persistedAlerts, alertRows, lifecycle.ModeAlert)
	r.alerts = append(otherAlerts, alertRes.Merged...)

	persistedEpi, otherEpi := types.ByDisease(r.epidemics, meta.Name)
	epiRes := rec.Reconcile(ctx, persistedEpi, epidemicRows, lifecycle.ModeEpidemic)
	r.epidemics = append(otherEpi, epiRes.Merged...)

	groups := meta.NotifiableUserGroups
	r.messages = append(r.messages, notify.ComposeAll(epiRes.New, groups, types.MessageEpidemic, r.today)...)
	r.messages = append(r.messages, notify.ComposeAll(alertRes.New, groups, types.MessageAlert, r.today)...)

	for _, a := range alertRes.New {
		r.events = append(r.events, event.NewAlertRaised(a))
	}
	for _, n := range epiRes.New {
		r.events = append(r.events, event.NewOutbreakDeclared(n))
	}
	for _, u := range epiRes.Updated {
		r.events = append(r.events, event.NewOutbreakUpdated(u))
	}
	for _, m := range slices.Concat(epiRes.Updated, epiRes.New) {
		switch {
		case lifecycle.ClosedOn(m, r.today):
			r.events = append(r.events, event.NewOutbreakClosed(m))
		case lifecycle.VigilanceOn(m, r.today):
			r.events = append(r.events, event.NewVigilanceEntered(m))
			r.messages = append(r.messages, notify.Compose(m, groups, types.MessageReminder, r.today))
			r.summary.Reminders++
		}
	}

	r.summary.Processed = append(r.summary.Processed, meta.Name)
	r.summary.New += len(epiRes.New)
	r.summary.Updated += len(epiRes.Updated)
	r.summary.Existing += len(epiRes.Existing)
	r.summary.Alerts += len(alertRes.New)
	r.summary.Transitions += epiRes.Transitions
	metrics.DiseasesTotal.WithLabelValues(string(meta.Algorithm), "processed").Inc()
	for _, p := range []struct {
		collection string
		res        lifecycle.Result
	}{{KeyEpidemics, epiRes}, {KeyAlerts, alertRes}} {
		metrics.ReconciledTotal.WithLabelValues(p.collection, "new").Add(float64(len(p.res.New)))
		metrics.ReconciledTotal.WithLabelValues(p.collection, "updated").Add(float64(len(p.res.Updated)))
		metrics.ReconciledTotal.WithLabelValues(p.collection, "existing").Add(float64(len(p.res.Existing)))
	}
	log.Info("finished disease",
		zap.Int("epidemics", len(epidemicRows)),
		zap.Int("alerts", len(alertRows)),
		zap.Int("new", len(epiRes.New)),
		zap.Int("updated", len(epiRes.Updated)),
	)
}

// handoff de-duplicates the run's collections and hands them to the
// persistence, event and messaging collaborators. Each step is attempted
// once; failures are logged and counted.
func (e *Engine) handoff(ctx context.Context, r *run, log *zap.Logger) {
	var err error
	if r.epidemics, err = lifecycle.Deduplicate(r.epidemics); err != nil {
		log.Warn("outbreaks not de-duplicated, using them as-is", zap.Error(err))
	}
	if r.alerts, err = lifecycle.Deduplicate(r.alerts); err != nil {
		log.Warn("alerts not de-duplicated, using them as-is", zap.Error(err))
	}

	if err := e.deps.Store.Write(ctx, KeyEpidemics, r.epidemics); err != nil {
		e.failed(r, log, "persist_epidemics", err)
	}

	events := lifecycle.Envelopes(r.epidemics, r.catalogue.Config.ReportingProgram, r.today)
	if len(events) > 0 && e.deps.Events != nil {
		if err := e.deps.Events.PushEvents(ctx, events); err != nil {
			e.failed(r, log, "push_events", err)
		} else {
			r.summary.Events = len(events)
		}
	}

	msgs := notify.Unique(r.messages)
	if len(msgs) > 0 && e.deps.Notifier != nil {
		if err := e.deps.Notifier.Send(ctx, notify.Batch(msgs)); err != nil {
			e.failed(r, log, "notify", err)
		} else {
			r.summary.Messages = len(msgs)
		}
	}

	if err := e.deps.Store.Write(ctx, KeyAlerts, r.alerts); err != nil {
		e.failed(r, log, "persist_alerts", err)
	}
}

func (e *Engine) failed(r *run, log *zap.Logger, stage string, err error) {
	log.Error("handoff failed", zap.String("stage", stage), zap.Error(err))
	r.summary.Failures = append(r.summary.Failures, stage)
	metrics.DeliveryFailuresTotal.WithLabelValues(stage).Inc()
}

// record writes the run's lifecycle events to the activity trail.
func (e *Engine) record(ctx context.Context, r *run, log *zap.Logger) {
	if e.recorder == nil {
		return
	}
	s := r.summary
	r.events = append(r.events, event.NewRunCompleted(event.RunCompletedPayload{
		RunID:     r.id,
		StartedAt: s.StartedAt,
		Duration:  time.Since(s.StartedAt).String(),
		Processed: s.Processed,
		Skipped:   s.SkippedNames(),
		New:       s.New,
		Updated:   s.Updated,
		Existing:  s.Existing,
		Alerts:    s.Alerts,
		Messages:  s.Messages,
		Failures:  len(s.Failures),
	}))
	for _, evt := range r.events {
		if err := e.recorder.Record(ctx, evt); err != nil {
			log.Warn("failed to record lifecycle event", zap.String("type", evt.EventType), zap.Error(err))
		}
	}
}
