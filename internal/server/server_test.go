package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/outbreak/internal/activity"
	"github.com/matthewbaird/outbreak/internal/engine"
	"github.com/matthewbaird/outbreak/internal/event"
	"github.com/matthewbaird/outbreak/internal/store"
	"github.com/matthewbaird/outbreak/internal/types"
)

type stubRunner struct {
	err  error
	last *engine.Summary
}

func (s *stubRunner) RunNow(_ context.Context, trigger string) (engine.Summary, error) {
	if s.err != nil {
		return engine.Summary{}, s.err
	}
	sum := engine.Summary{RunID: "r1", Message: engine.DoneMessage, Processed: []string{trigger}}
	s.last = &sum
	return sum, nil
}

func (s *stubRunner) Last() (engine.Summary, bool) {
	if s.last == nil {
		return engine.Summary{}, false
	}
	return *s.last, true
}

func epidemic(epicode, ou, disease string, status types.Status) types.Record {
	r := types.Record{Type: types.RecordEpidemic, Epicode: epicode, Status: status}
	r.OrgUnit, r.OrgUnitName, r.Disease, r.Period = ou, "HC "+ou, disease, "2024W11"
	return r
}

func newTestRouter(t *testing.T, runner *stubRunner) (http.Handler, *store.MemoryStore, activity.Store) {
	t.Helper()
	records := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, records.Write(ctx, engine.KeyEpidemics, []types.Record{
		epidemic("E_OU1_A", "ou1", "Cholera", types.StatusConfirmed),
		epidemic("E_OU2_B", "ou2", "Cholera", types.StatusClosed),
		epidemic("E_OU1_C", "ou1", "Measles", types.StatusClosedVigilance),
	}))
	require.NoError(t, records.Write(ctx, engine.KeyAlerts, []types.Record{{Type: types.RecordAlert}}))

	acts := activity.NewMemoryStore()
	rec := event.NewActivityRecorder(acts)
	require.NoError(t, rec.Record(ctx, event.NewOutbreakDeclared(epidemic("E_OU1_A", "ou1", "Cholera", types.StatusConfirmed))))

	return NewRouter(Config{Records: records, Activity: acts, Runner: runner}), records, acts
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestRouter_Health(t *testing.T) {
	h, _, _ := newTestRouter(t, &stubRunner{})
	w := get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = get(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_ListEpidemics(t *testing.T) {
	h, _, _ := newTestRouter(t, &stubRunner{})
	tests := []struct {
		path  string
		code  int
		total int
		first string
	}{
		{"/v1/epidemics", http.StatusOK, 3, "E_OU1_A"},
		{"/v1/epidemics?disease=cholera", http.StatusOK, 2, "E_OU1_A"},
		{"/v1/epidemics?org_unit=ou1&status=Closed%20Vigilance", http.StatusOK, 1, "E_OU1_C"},
		{"/v1/epidemics?page_size=1&offset=1", http.StatusOK, 3, "E_OU2_B"},
		{"/v1/epidemics?status=Open", http.StatusBadRequest, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := get(t, h, tt.path)
			require.Equal(t, tt.code, w.Code, w.Body.String())
			if tt.code != http.StatusOK {
				return
			}
			var resp struct {
				Records    []types.Record `json:"records"`
				TotalCount int            `json:"total_count"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.total, resp.TotalCount)
			require.NotEmpty(t, resp.Records)
			assert.Equal(t, tt.first, resp.Records[0].Epicode)
		})
	}
}

func TestRouter_GetEpidemicAndAlerts(t *testing.T) {
	h, _, _ := newTestRouter(t, &stubRunner{})
	w := get(t, h, "/v1/epidemics/E_OU2_B")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"epicode":"E_OU2_B"`)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/v1/epidemics/E_NONE").Code)

	w = get(t, h, "/v1/alerts")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_count":1`)
}

func TestRouter_Activity(t *testing.T) {
	h, _, _ := newTestRouter(t, &stubRunner{})
	w := get(t, h, "/v1/activity/E_OU1_A")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Activities []activity.Entry `json:"activities"`
		TotalCount int              `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.TotalCount)
	assert.Equal(t, event.TypeOutbreakDeclared, resp.Activities[0].EventType)

	w = get(t, h, "/v1/activity/orgunit/ou1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_count":1`)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/v1/activity/E_OU1_A?since=yesterday").Code)

	body, _ := json.Marshal(map[string]string{"query": "cholera"})
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/activity/search", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_count":3`)
}

func TestRouter_Runs(t *testing.T) {
	runner := &stubRunner{}
	h, _, _ := newTestRouter(t, runner)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/v1/runs/last").Code)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/runs", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), engine.DoneMessage)

	w = get(t, h, "/v1/runs/last")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"runId":"r1"`)

	runner.err = engine.ErrBusy
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/runs", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRun_Shutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, Config{Port: 0, Records: store.NewMemoryStore()}) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}
