package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/matthewbaird/outbreak/internal/engine"
	"github.com/matthewbaird/outbreak/internal/store"
	"github.com/matthewbaird/outbreak/internal/types"
)

var knownStatuses = map[types.Status]bool{
	types.StatusConfirmed:       true,
	types.StatusClosedVigilance: true,
	types.StatusClosed:          true,
}

// RecordHandler serves the persisted epidemic and alert collections.
type RecordHandler struct {
	store engine.RecordStore
}

// NewRecordHandler creates a new RecordHandler.
func NewRecordHandler(s engine.RecordStore) *RecordHandler {
	return &RecordHandler{store: s}
}

type listRecordsResponse struct {
	Records    []types.Record `json:"records"`
	TotalCount int            `json:"total_count"`
}

// ListEpidemics lists outbreak records.
// GET /v1/epidemics?disease=&org_unit=&status=&period=&page_size=&offset=
func (h *RecordHandler) ListEpidemics(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, engine.KeyEpidemics)
}

// ListAlerts lists alert records.
// GET /v1/alerts?disease=&org_unit=&period=&page_size=&offset=
func (h *RecordHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, engine.KeyAlerts)
}

// GetEpidemic returns one outbreak record by its code.
// GET /v1/epidemics/{epicode}
func (h *RecordHandler) GetEpidemic(w http.ResponseWriter, r *http.Request) {
	epicode := chi.URLParam(r, "epicode")
	recs, err := h.store.Read(r.Context(), engine.KeyEpidemics)
	if err != nil {
		writeError(w, http.StatusBadGateway, "STORE_UNAVAILABLE", err.Error())
		return
	}
	rec, ok := store.FindEpicode(recs, epicode)
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no outbreak "+epicode)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *RecordHandler) list(w http.ResponseWriter, r *http.Request, key string) {
	q := r.URL.Query()
	f := store.Filter{
		Disease: q.Get("disease"),
		OrgUnit: q.Get("org_unit"),
		Status:  types.Status(q.Get("status")),
		Period:  q.Get("period"),
	}
	if f.Status != "" && !knownStatuses[f.Status] {
		writeError(w, http.StatusBadRequest, "INVALID_STATUS", "unknown status: "+string(f.Status))
		return
	}
	recs, err := h.store.Read(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusBadGateway, "STORE_UNAVAILABLE", err.Error())
		return
	}
	matched := store.Apply(recs, f)
	writeJSON(w, http.StatusOK, listRecordsResponse{
		Records:    page(matched, parsePagination(r)),
		TotalCount: len(matched),
	})
}
