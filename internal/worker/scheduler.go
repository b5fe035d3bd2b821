// Package worker runs the engine on a fixed interval and serializes the
// scheduled runs with the ones triggered over HTTP.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matthewbaird/outbreak/internal/engine"
)

// TriggerSchedule labels scheduled runs.
const TriggerSchedule = "schedule"

// Engine is the run entry point the scheduler drives.
type Engine interface {
	Run(ctx context.Context, trigger string) (engine.Summary, error)
}

// Scheduler starts a run every interval and remembers the latest summary.
type Scheduler struct {
	eng        Engine
	interval   time.Duration
	runOnStart bool
	logger     *zap.Logger

	mu   sync.RWMutex
	last *engine.Summary
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(s *Scheduler) { s.logger = l } }

// WithRunOnStart runs once as soon as Start is called.
func WithRunOnStart(v bool) Option { return func(s *Scheduler) { s.runOnStart = v } }

// NewScheduler creates a Scheduler. A non-positive interval disables
// scheduled runs; RunNow still works.
func NewScheduler(eng Engine, interval time.Duration, opts ...Option) *Scheduler {
	s := &Scheduler{eng: eng, interval: interval, logger: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.Named("scheduler")
	return s
}

// Start blocks, running the engine every interval until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	if s.runOnStart {
		s.tick(ctx)
	}
	if s.interval <= 0 {
		s.logger.Info("scheduled runs disabled")
		<-ctx.Done()
		return
	}
	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-t.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	sum, err := s.RunNow(ctx, TriggerSchedule)
	switch {
	case errors.Is(err, engine.ErrBusy):
		s.logger.Info("run already in progress, skipping tick")
	case err != nil:
		s.logger.Error("scheduled run failed", zap.Error(err))
	default:
		s.logger.Info("scheduled run completed",
			zap.String("run_id", sum.RunID),
			zap.Int("new", sum.New),
			zap.Int("alerts", sum.Alerts),
			zap.Strings("skipped", sum.SkippedNames()),
		)
	}
}

// RunNow runs the engine once and records the summary of a completed run.
func (s *Scheduler) RunNow(ctx context.Context, trigger string) (engine.Summary, error) {
	sum, err := s.eng.Run(ctx, trigger)
	if err != nil {
		return sum, err
	}
	s.mu.Lock()
	s.last = &sum
	s.mu.Unlock()
	return sum, nil
}

// Last returns the summary of the latest completed run.
func (s *Scheduler) Last() (engine.Summary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return engine.Summary{}, false
	}
	return *s.last, true
}
