package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-pipeline/internal/model"
	"github.com/sells-group/lead-pipeline/internal/resilience"
	"github.com/sells-group/lead-pipeline/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func serveRequest(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestBuildRouter_Health(t *testing.T) {
	breakers := resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig())
	breakers.Get("google_places")
	h := buildRouter(&apiServer{ctx: context.Background(), store: newTestStore(t), breakers: breakers}, []string{"*"}, nil)

	rr := serveRequest(t, h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	body := decodeBody(t, rr)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ok", body["store"])
	assert.Equal(t, map[string]any{"google_places": "closed"}, body["breakers"])
}

func TestBuildRouter_HealthNoStore(t *testing.T) {
	h := buildRouter(&apiServer{ctx: context.Background()}, []string{"*"}, nil)

	rr := serveRequest(t, h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "degraded", decodeBody(t, rr)["status"])
}

func TestBuildRouter_Metrics(t *testing.T) {
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("leads_runs_total 1\n"))
	})
	h := buildRouter(&apiServer{ctx: context.Background()}, []string{"*"}, metricsHandler)

	rr := serveRequest(t, h, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "leads_runs_total")
}

func TestBuildRouter_ListLeads(t *testing.T) {
	st := newTestStore(t)
	_, err := st.SaveLeads(context.Background(), []model.ScoredLead{
		{RawEntity: model.RawEntity{EntityName: "Gulf Grill Group LLC", Status: "ACTIVE"}, Source: "FL-Sunbiz", Layer: model.LayerEstablished, Score: 90},
		{RawEntity: model.RawEntity{EntityName: "Bayside Tavern LLC", Status: "ACTIVE"}, Source: "FL-Sunbiz", Layer: model.LayerNew, Score: 60},
	})
	require.NoError(t, err)
	h := buildRouter(&apiServer{ctx: context.Background(), store: st}, []string{"*"}, nil)

	rr := serveRequest(t, h, http.MethodGet, "/api/leads?layer=est")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.EqualValues(t, 1, body["count"])

	rr = serveRequest(t, h, http.MethodGet, "/api/leads?min_score=50")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 2, decodeBody(t, rr)["count"])
}

func TestBuildRouter_ListLeads_BadParams(t *testing.T) {
	h := buildRouter(&apiServer{ctx: context.Background(), store: newTestStore(t)}, []string{"*"}, nil)

	for _, target := range []string{"/api/leads?layer=old", "/api/leads?limit=abc", "/api/leads?min_score=-1"} {
		rr := serveRequest(t, h, http.MethodGet, target)
		assert.Equal(t, http.StatusBadRequest, rr.Code, target)
	}
}

func TestBuildRouter_Runs(t *testing.T) {
	st := newTestStore(t)
	run := &model.RunHistory{
		RunDate:             "2026-06-15",
		OperatorsFound:      3,
		CategoriesBreakdown: map[string]int{"stadium_arena": 3},
		CreatedAt:           time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, st.InsertRunHistory(context.Background(), run))
	h := buildRouter(&apiServer{ctx: context.Background(), store: st}, []string{"*"}, nil)

	rr := serveRequest(t, h, http.MethodGet, "/api/runs")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 1, decodeBody(t, rr)["count"])

	rr = serveRequest(t, h, http.MethodGet, "/api/runs/"+run.ID)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, run.ID, body["id"])
	assert.EqualValues(t, 3, body["multi_location_operators_found"])

	rr = serveRequest(t, h, http.MethodGet, "/api/runs/does-not-exist")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestBuildRouter_TriggerRun(t *testing.T) {
	release := make(chan struct{})
	calls := 0
	api := &apiServer{
		ctx:  context.Background(),
		done: make(chan struct{}),
		run: func(context.Context) (*model.RunHistory, error) {
			calls++
			<-release
			return &model.RunHistory{ID: "run-1"}, nil
		},
	}
	h := buildRouter(api, []string{"*"}, nil)

	rr := serveRequest(t, h, http.MethodPost, "/api/runs")
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, "accepted", decodeBody(t, rr)["status"])

	rr = serveRequest(t, h, http.MethodPost, "/api/runs")
	assert.Equal(t, http.StatusConflict, rr.Code)

	close(release)
	select {
	case <-api.done:
	case <-time.After(time.Second):
		t.Fatal("triggered run did not finish")
	}
	assert.Equal(t, 1, calls)
	assert.False(t, api.running.Load())
}

func TestBuildRouter_TriggerRunFailureClearsFlag(t *testing.T) {
	api := &apiServer{
		ctx:  context.Background(),
		done: make(chan struct{}),
		run: func(context.Context) (*model.RunHistory, error) {
			return nil, errors.New("store down")
		},
	}
	h := buildRouter(api, []string{"*"}, nil)

	rr := serveRequest(t, h, http.MethodPost, "/api/runs")
	assert.Equal(t, http.StatusAccepted, rr.Code)
	<-api.done
	assert.False(t, api.running.Load())
}

func TestBuildRouter_TriggerRunNotConfigured(t *testing.T) {
	h := buildRouter(&apiServer{ctx: context.Background()}, []string{"*"}, nil)

	rr := serveRequest(t, h, http.MethodPost, "/api/runs")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestBuildRouter_CORS(t *testing.T) {
	h := buildRouter(&apiServer{ctx: context.Background(), store: newTestStore(t)}, []string{"https://app.example.com"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "https://app.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}
