package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/matthewbaird/outbreak/internal/activity"
)

// ActivityHandler serves the lifecycle audit trail.
type ActivityHandler struct {
	store activity.Store
}

// NewActivityHandler creates a new ActivityHandler.
func NewActivityHandler(s activity.Store) *ActivityHandler {
	return &ActivityHandler{store: s}
}

type activityResponse struct {
	Activities []activity.Entry `json:"activities"`
	NextCursor string           `json:"next_cursor,omitempty"`
	TotalCount int              `json:"total_count"`
	Period     struct {
		Since time.Time `json:"since"`
		Until time.Time `json:"until"`
	} `json:"period"`
}

// GetOutbreakActivity returns the lifecycle history of one outbreak.
// GET /v1/activity/{epicode}
func (h *ActivityHandler) GetOutbreakActivity(w http.ResponseWriter, r *http.Request) {
	h.query(w, r, activity.EntityOutbreak, chi.URLParam(r, "epicode"))
}

// GetEntityActivity returns the activity of an org unit, disease or run.
// GET /v1/activity/{entity_type}/{entity_id}
func (h *ActivityHandler) GetEntityActivity(w http.ResponseWriter, r *http.Request) {
	h.query(w, r, chi.URLParam(r, "entity_type"), chi.URLParam(r, "entity_id"))
}

func (h *ActivityHandler) query(w http.ResponseWriter, r *http.Request, entityType, entityID string) {
	if entityType == "" || entityID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_PARAMS", "entity type and id are required")
		return
	}
	opts := activity.DefaultQueryOptions()
	since, ok := parseTime(r, "since")
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_TIME", "since must be RFC 3339")
		return
	}
	until, ok := parseTime(r, "until")
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_TIME", "until must be RFC 3339")
		return
	}
	if since != nil {
		opts.Since = since
	}
	if until != nil {
		opts.Until = until
	}
	q := r.URL.Query()
	if cats := q.Get("categories"); cats != "" {
		opts.Categories = strings.Split(cats, ",")
	}
	if mw := q.Get("min_weight"); mw != "" {
		opts.MinWeight = mw
	}
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			opts.Limit = min(n, 500)
		}
	}
	opts.Cursor = q.Get("cursor")

	entries, next, total, err := h.store.QueryByEntity(r.Context(), entityType, entityID, opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "QUERY_FAILED", err.Error())
		return
	}
	resp := activityResponse{Activities: entries, NextCursor: next, TotalCount: total}
	if opts.Since != nil {
		resp.Period.Since = *opts.Since
	}
	if opts.Until != nil {
		resp.Period.Until = *opts.Until
	}
	if resp.Activities == nil {
		resp.Activities = []activity.Entry{}
	}
	writeJSON(w, http.StatusOK, resp)
}

type searchRequest struct {
	Query      string   `json:"query"`
	EntityType string   `json:"entity_type,omitempty"`
	Since      string   `json:"since,omitempty"`
	Categories []string `json:"categories,omitempty"`
	Limit      int      `json:"limit,omitempty"`
}

// SearchActivity searches activity summaries.
// POST /v1/activity/search
func (h *ActivityHandler) SearchActivity(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "MISSING_PARAMS", "query is required")
		return
	}
	opts := activity.DefaultSearchOptions()
	opts.EntityType = req.EntityType
	opts.Categories = req.Categories
	if req.Limit > 0 {
		opts.Limit = min(req.Limit, 100)
	}
	if req.Since != "" {
		t, err := time.Parse(time.RFC3339, req.Since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_TIME", "since must be RFC 3339")
			return
		}
		opts.Since = &t
	}
	entries, total, err := h.store.Search(r.Context(), req.Query, opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SEARCH_FAILED", err.Error())
		return
	}
	if entries == nil {
		entries = []activity.Entry{}
	}
	writeJSON(w, http.StatusOK, struct {
		Results    []activity.Entry `json:"results"`
		TotalCount int              `json:"total_count"`
	}{entries, total})
}
