package dhis2

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/outbreak/internal/engine"
	"github.com/matthewbaird/outbreak/internal/period"
	"github.com/matthewbaird/outbreak/internal/types"
)

// fakeDHIS2 is an in-memory DHIS2 API backed by a chi router.
type fakeDHIS2 struct {
	mu       sync.Mutex
	store    map[string]json.RawMessage
	queries  map[string]string
	methods  []string
	events   types.EventBatch
	messages types.MessageBatch
}

func newFakeDHIS2(t *testing.T) (*fakeDHIS2, *Client) {
	t.Helper()
	f := &fakeDHIS2{store: map[string]json.RawMessage{}, queries: map[string]string{}}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			user, pass, ok := req.BasicAuth()
			if !ok || user != "admin" || pass != "district" {
				http.Error(w, `{"status":"ERROR"}`, http.StatusUnauthorized)
				return
			}
			f.mu.Lock()
			f.methods = append(f.methods, req.Method+" "+req.URL.Path)
			f.mu.Unlock()
			next.ServeHTTP(w, req)
		})
	})
	r.Route("/api", func(r chi.Router) {
		r.Get("/dataStore/{ns}/{key}", func(w http.ResponseWriter, req *http.Request) {
			f.mu.Lock()
			defer f.mu.Unlock()
			doc, ok := f.store[chi.URLParam(req, "ns")+"/"+chi.URLParam(req, "key")]
			if !ok {
				http.Error(w, `{"httpStatusCode":404}`, http.StatusNotFound)
				return
			}
			_, _ = w.Write(doc)
		})
		r.Put("/dataStore/{ns}/{key}", func(w http.ResponseWriter, req *http.Request) {
			f.mu.Lock()
			defer f.mu.Unlock()
			k := chi.URLParam(req, "ns") + "/" + chi.URLParam(req, "key")
			if _, ok := f.store[k]; !ok {
				http.Error(w, `{"httpStatusCode":404}`, http.StatusNotFound)
				return
			}
			var doc json.RawMessage
			_ = json.NewDecoder(req.Body).Decode(&doc)
			f.store[k] = doc
		})
		r.Post("/dataStore/{ns}/{key}", func(w http.ResponseWriter, req *http.Request) {
			f.mu.Lock()
			defer f.mu.Unlock()
			var doc json.RawMessage
			_ = json.NewDecoder(req.Body).Decode(&doc)
			f.store[chi.URLParam(req, "ns")+"/"+chi.URLParam(req, "key")] = doc
			w.WriteHeader(http.StatusCreated)
		})
		r.Get("/system/id", func(w http.ResponseWriter, req *http.Request) {
			codes := []string{"a1", "a2", "a3", "a4", "a5"}
			n := len(codes)
			if req.URL.Query().Get("limit") == "2" {
				n = 2
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"codes": codes[:n]})
		})
		r.Get("/analytics", func(w http.ResponseWriter, req *http.Request) {
			f.mu.Lock()
			f.queries["analytics"] = req.URL.RawQuery
			f.mu.Unlock()
			_, _ = w.Write([]byte(`{"headers":[{"name":"organisationunitid","column":"Organisation unit ID"}],"rows":[["ou1"]],"height":1,"width":1}`))
		})
		r.Get("/analytics/events/query/{program}", func(w http.ResponseWriter, req *http.Request) {
			f.mu.Lock()
			f.queries["events/"+chi.URLParam(req, "program")] = req.URL.RawQuery
			f.mu.Unlock()
			_, _ = w.Write([]byte(`{"headers":[],"rows":[]}`))
		})
		r.Get("/trackedEntityInstances/query", func(w http.ResponseWriter, req *http.Request) {
			f.mu.Lock()
			f.queries["registrations"] = req.URL.RawQuery
			f.mu.Unlock()
			_, _ = w.Write([]byte(`{"headers":[],"rows":[]}`))
		})
		r.Get("/organisationUnits", func(w http.ResponseWriter, req *http.Request) {
			if req.URL.Query().Get("filter") == "level:eq:1" {
				_, _ = w.Write([]byte(`{"organisationUnits":[{"id":"root","code":"UG","name":"Uganda"}]}`))
				return
			}
			_, _ = w.Write([]byte(`{"organisationUnits":[{"id":"ou1","code":"OU1","name":"Kasese HC","level":3,
				"ancestors":[{"id":"root","name":"Uganda"},{"id":"d1","name":"Kasese District"}]}]}`))
		})
		r.Post("/events", func(w http.ResponseWriter, req *http.Request) {
			if req.URL.Query().Get("importStrategy") != "CREATE_AND_UPDATE" {
				http.Error(w, "bad strategy", http.StatusConflict)
				return
			}
			f.mu.Lock()
			defer f.mu.Unlock()
			_ = json.NewDecoder(req.Body).Decode(&f.events)
		})
		r.Post("/messageConversations", func(w http.ResponseWriter, req *http.Request) {
			f.mu.Lock()
			defer f.mu.Unlock()
			_ = json.NewDecoder(req.Body).Decode(&f.messages)
		})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return f, New(Config{URL: srv.URL + "/api/", Username: "admin", Password: "district"})
}

func TestClient_Catalogue(t *testing.T) {
	f, c := newFakeDHIS2(t)
	f.store[DefaultNamespace+"/"+KeyDiseases] = json.RawMessage(`{
		"diseases":[{"code":"CHOL","disease":"Cholera","epiAlgorithm":"NON_SEASONAL"}],
		"config":{"reportingProgram":{"id":"prog"},"mPeriods":"3","nPeriods":2}}`)

	cat, err := c.Catalogue(context.Background())
	require.NoError(t, err)
	require.Len(t, cat.Diseases, 1)
	assert.Equal(t, "Cholera", cat.Diseases[0].Name)
	assert.Equal(t, "prog", cat.Config.ReportingProgram.ID)
	assert.EqualValues(t, 3, cat.Config.MPeriods)
}

func TestClient_ReadWrite(t *testing.T) {
	f, c := newFakeDHIS2(t)
	ctx := context.Background()

	recs, err := c.Read(ctx, engine.KeyEpidemics)
	require.NoError(t, err)
	assert.Empty(t, recs)

	rec := types.Record{Epicode: "E_OU1_X", Status: types.StatusConfirmed}
	rec.OrgUnit = "ou1"
	require.NoError(t, c.Write(ctx, engine.KeyEpidemics, []types.Record{rec}))
	require.NoError(t, c.Write(ctx, engine.KeyEpidemics, []types.Record{rec, rec}))

	got, err := c.Read(ctx, engine.KeyEpidemics)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "E_OU1_X", got[0].Epicode)
	assert.Equal(t, "ou1", got[0].OrgUnit)

	// First write falls back from PUT to POST, the second updates in place.
	assert.Contains(t, f.methods, "POST /api/dataStore/"+DefaultNamespace+"/epidemics")
	assert.Contains(t, f.methods, "PUT /api/dataStore/"+DefaultNamespace+"/epidemics")
}

func TestClient_Issue(t *testing.T) {
	_, c := newFakeDHIS2(t)
	ids, err := c.Issue(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2"}, ids)

	_, err = c.Issue(context.Background(), 9)
	assert.Error(t, err)
}

func TestClient_AnalyticsQueries(t *testing.T) {
	f, c := newFakeDHIS2(t)
	ctx := context.Background()

	resp, err := c.Aggregate(ctx, engine.AggregateQuery{
		Indicators: []string{"casesPI", "deathsPI"},
		Periods:    []period.Period{"2024W11", "2024W10"},
		Level:      3,
	})
	require.NoError(t, err)
	require.Len(t, resp.Rows, 1)
	q := f.queries["analytics"]
	assert.Contains(t, q, "dimension=dx%3AcasesPI%3BdeathsPI")
	assert.Contains(t, q, "dimension=ou%3ALEVEL-3")
	assert.Contains(t, q, "dimension=pe%3A2024W11%3B2024W10")
	assert.Contains(t, q, "showHierarchy=true")
	assert.Contains(t, q, "columns=dx%3Bpe")

	attrs := types.NotificationProgram{
		DateOfOnset:        types.Ref{ID: "onsetAttr"},
		Disease:            types.Ref{ID: "diseaseAttr"},
		CaseClassification: types.Ref{ID: "classAttr"},
	}
	_, err = c.CaseEvents(ctx, engine.EventQuery{Program: "notif", Level: 3, DiseaseCode: "MEAS", Attributes: attrs})
	require.NoError(t, err)
	q = f.queries["events/notif"]
	assert.Contains(t, q, "dimension=pe%3ALAST_7_DAYS")
	assert.Contains(t, q, "dimension=diseaseAttr%3AIN%3AMEAS")
	assert.Contains(t, q, "dimension=classAttr")

	_, err = c.CaseIndicators(ctx, engine.IndicatorQuery{Indicators: []string{"confPI"}, Level: 3})
	require.NoError(t, err)
	assert.Contains(t, f.queries["analytics"], "filter=pe%3ALAST_7_DAYS")

	_, err = c.Registrations(ctx, engine.RegistrationQuery{
		Program: "notif", RootOrgUnit: "root", DiseaseCode: "MEAS", Attributes: attrs,
		ProgramStartDate: types.NewDate(2024, 3, 5),
	})
	require.NoError(t, err)
	q = f.queries["registrations"]
	assert.Contains(t, q, "ouMode=DESCENDANTS")
	assert.Contains(t, q, "programStartDate=2024-03-05")
	assert.Contains(t, q, "attribute=diseaseAttr%3AIN%3AMEAS")
}

func TestClient_OrgUnits(t *testing.T) {
	_, c := newFakeDHIS2(t)
	nodes, err := c.OrgUnits(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "OU1", nodes[0].Code)
	require.Len(t, nodes[0].Ancestors, 2)
	assert.Equal(t, "d1", nodes[0].Ancestors[1].ID)

	roots, err := c.RootOrgUnits(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []types.OrgUnitRef{{ID: "root", Code: "UG", Name: "Uganda"}}, roots)
}

func TestClient_PushAndSend(t *testing.T) {
	f, c := newFakeDHIS2(t)
	ctx := context.Background()

	require.NoError(t, c.PushEvents(ctx, []types.Event{{Event: "EVT1", Program: "prog"}}))
	require.Len(t, f.events.Events, 1)
	assert.Equal(t, "EVT1", f.events.Events[0].Event)

	batch := types.MessageBatch{MessageConversations: []types.Message{{Subject: "Cholera alert", Text: "Dear all"}}}
	require.NoError(t, c.Send(ctx, batch))
	assert.Equal(t, batch, f.messages)

	// Empty batches never reach the server.
	n := len(f.methods)
	require.NoError(t, c.PushEvents(ctx, nil))
	require.NoError(t, c.Send(ctx, types.MessageBatch{}))
	assert.Len(t, f.methods, n)
}

func TestClient_TransportErrors(t *testing.T) {
	_, c := newFakeDHIS2(t)
	c.password = "wrong"

	_, err := c.Catalogue(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.Code)

	down := New(Config{URL: "http://127.0.0.1:1/api"})
	_, err = down.OrgUnits(context.Background(), 3)
	assert.True(t, errors.Is(err, ErrTransport))
}
