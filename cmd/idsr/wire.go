package main

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/matthewbaird/outbreak/internal/activity"
	"github.com/matthewbaird/outbreak/internal/config"
	"github.com/matthewbaird/outbreak/internal/dhis2"
	"github.com/matthewbaird/outbreak/internal/engine"
	"github.com/matthewbaird/outbreak/internal/event"
	"github.com/matthewbaird/outbreak/internal/eventbus"
	"github.com/matthewbaird/outbreak/internal/store"
)

// runtime is every component of a configured process.
type runtime struct {
	client   *dhis2.Client
	db       *sql.DB
	records  engine.RecordStore
	activity activity.Store
	bus      *eventbus.Bus
	engine   *engine.Engine
}

func (r *runtime) Close() {
	r.bus.Stop()
	if r.db != nil {
		_ = r.db.Close()
	}
}

func openSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL: %w", err)
	}
	return db, nil
}

func newClient(cfg *config.Config, logger *zap.Logger) *dhis2.Client {
	return dhis2.New(dhis2.Config{
		URL:       cfg.DHIS2.URL,
		Username:  cfg.DHIS2.Username,
		Password:  cfg.DHIS2.Password,
		Namespace: cfg.DHIS2.Namespace,
		Timeout:   cfg.DHIS2.Timeout(),
	}, dhis2.WithLogger(logger))
}

func catalogueSource(cfg *config.Config, client *dhis2.Client) config.ValidatingCatalogue {
	if cfg.Catalogue.Source == config.SourceFile {
		return config.ValidatingCatalogue{Source: config.FileCatalogue{Path: cfg.Catalogue.Path}}
	}
	return config.ValidatingCatalogue{Source: client}
}

// wire builds the runtime. The event bus is created but not started.
func wire(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	rt := &runtime{client: newClient(cfg, logger)}

	if cfg.NeedsSQLite() {
		db, err := openSQLite(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		rt.db = db
	}

	switch cfg.Store.Backend {
	case config.BackendSQLite:
		s := store.NewSQLStore(rt.db)
		if err := s.CreateTable(ctx); err != nil {
			rt.db.Close()
			return nil, fmt.Errorf("creating record table: %w", err)
		}
		rt.records = s
	case config.BackendMemory:
		rt.records = store.NewMemoryStore()
	default:
		rt.records = rt.client
	}

	if cfg.Store.Activity {
		s := activity.NewSQLStore(rt.db)
		if err := s.CreateTable(ctx); err != nil {
			rt.db.Close()
			return nil, fmt.Errorf("creating activity table: %w", err)
		}
		rt.activity = s
	} else {
		rt.activity = activity.NewMemoryStore()
	}

	rt.bus = eventbus.New(256, logger)
	rt.bus.Subscribe("log", eventbus.NewLogConsumer(logger))
	rt.bus.Subscribe("metrics", eventbus.NewMetricsConsumer())

	recorder := event.NewActivityRecorder(rt.activity)
	recorder.SetPublisher(rt.bus)

	opts := []engine.Option{engine.WithLogger(logger), engine.WithRecorder(recorder)}
	if cfg.Engine.CaseSource != "" {
		opts = append(opts, engine.WithCaseSource(cfg.Engine.CaseSource))
	}
	rt.engine = engine.New(engine.Deps{
		Catalogue: catalogueSource(cfg, rt.client),
		Analytics: rt.client,
		IDs:       rt.client,
		Store:     rt.records,
		Events:    rt.client,
		Notifier:  rt.client,
	}, opts...)
	return rt, nil
}
