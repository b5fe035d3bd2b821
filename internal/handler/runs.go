package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/matthewbaird/outbreak/internal/engine"
)

// TriggerAPI labels runs started over HTTP.
const TriggerAPI = "api"

// Runner starts an engine run and remembers the latest summary.
type Runner interface {
	RunNow(ctx context.Context, trigger string) (engine.Summary, error)
	Last() (engine.Summary, bool)
}

// RunHandler triggers runs and reports on them.
type RunHandler struct {
	runner Runner
}

// NewRunHandler creates a new RunHandler.
func NewRunHandler(r Runner) *RunHandler {
	return &RunHandler{runner: r}
}

// StartRun runs the engine synchronously and returns its summary. The run
// is not cancelled when the client disconnects.
// POST /v1/runs
func (h *RunHandler) StartRun(w http.ResponseWriter, r *http.Request) {
	sum, err := h.runner.RunNow(context.WithoutCancel(r.Context()), TriggerAPI)
	switch {
	case errors.Is(err, engine.ErrBusy):
		writeError(w, http.StatusConflict, "RUN_IN_PROGRESS", err.Error())
	case err != nil:
		writeError(w, http.StatusBadGateway, "RUN_FAILED", err.Error())
	default:
		writeJSON(w, http.StatusOK, sum)
	}
}

// LastRun returns the summary of the latest completed run.
// GET /v1/runs/last
func (h *RunHandler) LastRun(w http.ResponseWriter, r *http.Request) {
	sum, ok := h.runner.Last()
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no run has completed yet")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
