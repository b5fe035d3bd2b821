// Package server assembles all HTTP handlers and starts the server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/matthewbaird/outbreak/internal/activity"
	"github.com/matthewbaird/outbreak/internal/engine"
	"github.com/matthewbaird/outbreak/internal/handler"
)

// Config holds server configuration.
type Config struct {
	Port     int
	Records  engine.RecordStore
	Activity activity.Store
	Runner   handler.Runner
	// Feed serves the websocket event feed; nil disables /v1/feed.
	Feed   http.Handler
	Logger *zap.Logger
}

// NewRouter registers every route.
func NewRouter(cfg Config) chi.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(handler.Logging(logger.Named("http")))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		rh := handler.NewRecordHandler(cfg.Records)
		r.Get("/epidemics", rh.ListEpidemics)
		r.Get("/epidemics/{epicode}", rh.GetEpidemic)
		r.Get("/alerts", rh.ListAlerts)

		if cfg.Activity != nil {
			ah := handler.NewActivityHandler(cfg.Activity)
			r.Get("/activity/{epicode}", ah.GetOutbreakActivity)
			r.Get("/activity/{entity_type}/{entity_id}", ah.GetEntityActivity)
			r.Post("/activity/search", ah.SearchActivity)
		}

		if cfg.Runner != nil {
			runs := handler.NewRunHandler(cfg.Runner)
			r.Post("/runs", runs.StartRun)
			r.Get("/runs/last", runs.LastRun)
		}

		if cfg.Feed != nil {
			r.Handle("/feed", cfg.Feed)
		}
	})
	return r
}

// Run starts the HTTP server and shuts it down gracefully when ctx is done.
func Run(ctx context.Context, cfg Config) error {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("starting server", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
