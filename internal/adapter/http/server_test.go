package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	httpadapter "github.com/couchcryptid/disaster-alert-service/internal/adapter/http"
	"github.com/couchcryptid/disaster-alert-service/internal/alerting"
	"github.com/couchcryptid/disaster-alert-service/internal/analysis"
	"github.com/couchcryptid/disaster-alert-service/internal/domain"
	"github.com/couchcryptid/disaster-alert-service/internal/notify"
	"github.com/couchcryptid/disaster-alert-service/internal/observability"
	"github.com/couchcryptid/disaster-alert-service/internal/reports"
	"github.com/couchcryptid/disaster-alert-service/internal/scoring"
	"github.com/couchcryptid/disaster-alert-service/internal/stats"
	"github.com/couchcryptid/disaster-alert-service/internal/store"
	"github.com/couchcryptid/disaster-alert-service/internal/weather"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type provider struct {
	err error
}

func (p provider) FetchWeather(_ context.Context, city string) (domain.WeatherPayload, error) {
	if p.err != nil {
		return domain.WeatherPayload{}, p.err
	}
	return weather.Synthetic(city), nil
}

func newTestServer(readyErr error) *httpadapter.Server {
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, nil, nil, slog.Default())
}

func newAPIServer(t *testing.T, weatherErr error) *httpadapter.Server {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2025, time.August, 15, 10, 0, 0, 0, time.UTC))
	domain.SetClock(clock)
	t.Cleanup(func() { domain.SetClock(nil) })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	mem := store.NewMemory()
	disp := notify.NewDispatcher(notify.DispatcherConfig{}, clock, logger, metrics)
	agg := alerting.NewAggregator(mem, clock, logger, metrics)
	mgr := alerting.NewManager(mem, disp, clock, logger, metrics)
	svc := reports.NewService(mem, agg, mgr, disp, clock, logger)
	engine := analysis.New(analysis.Deps{
		Scorer:     scoring.New(scoring.DefaultTables()),
		Weather:    provider{err: weatherErr},
		Snapshots:  mem,
		Aggregator: agg,
		Publisher:  disp,
		Reports:    svc,
		Clock:      clock,
		Logger:     logger,
		Metrics:    metrics,
	})
	api := httpadapter.NewAPI(engine, mgr, svc, stats.New(mem, clock), disp, logger)
	return httpadapter.NewServer(":0", &mockReadiness{}, nil, api, logger)
}

func do(t *testing.T, srv http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(method, path, r))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthzReturns200(t *testing.T) {
	rec := do(t, newTestServer(nil), http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[map[string]string](t, rec)["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := do(t, newTestServer(nil), http.MethodGet, "/readyz", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decode[map[string]string](t, rec)["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := do(t, newTestServer(fmt.Errorf("not ready yet")), http.MethodGet, "/readyz", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "not ready yet", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := do(t, newTestServer(nil), http.MethodGet, "/metrics", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestWSMountedOnlyWhenGiven(t *testing.T) {
	rec := do(t, newTestServer(nil), http.MethodGet, "/ws", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ws := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
	srv := httpadapter.NewServer(":0", &mockReadiness{}, ws, nil, slog.Default())
	assert.Equal(t, http.StatusTeapot, do(t, srv, http.MethodGet, "/ws", nil).Code)
}

func TestAPI_ReportWorkflow(t *testing.T) {
	srv := newAPIServer(t, nil)

	rec := do(t, srv, http.MethodPost, "/v1/reports", map[string]any{
		"city":        "Chennai",
		"risk_type":   "flood",
		"risk_level":  "critical",
		"description": "Adyar river overflowing into homes",
		"evidence":    []string{"photo.jpg"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decode[analysis.Result](t, rec)
	require.NotNil(t, res.Report)
	require.NotNil(t, res.Alert)
	assert.Equal(t, alerting.ActionCreate, res.Action)

	rec = do(t, srv, http.MethodPost, "/v1/reports/"+res.Report.ID+"/status", map[string]string{"status": "verified", "actor": "ndrf"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.ReportVerified, decode[domain.RiskReport](t, rec).Status)

	rec = do(t, srv, http.MethodGet, "/v1/alerts/"+res.Alert.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	alert := decode[domain.DisasterAlert](t, rec)
	assert.True(t, alert.ConfirmedBySystem)
	assert.Equal(t, 95, alert.AIConfidence)

	rec = do(t, srv, http.MethodPost, "/v1/reports/"+res.Report.ID+"/status", map[string]string{"status": "pending"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, srv, http.MethodGet, "/v1/reports?city=chennai", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.RiskReport](t, rec), 1)
}

func TestAPI_Errors(t *testing.T) {
	srv := newAPIServer(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"missing fields", http.MethodPost, "/v1/reports", map[string]any{"city": "Delhi"}, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/v1/messages", map[string]any{"city": "Delhi", "txt": "x"}, http.StatusBadRequest},
		{"unknown alert", http.MethodGet, "/v1/alerts/nope", nil, http.StatusNotFound},
		{"unknown report", http.MethodPost, "/v1/reports/nope/status", map[string]string{"status": "verified"}, http.StatusNotFound},
		{"bad status", http.MethodPost, "/v1/reports/nope/status", map[string]string{"status": "done"}, http.StatusBadRequest},
		{"bad days", http.MethodGet, "/v1/stats/alerts?days=-3", nil, http.StatusBadRequest},
		{"cancel unknown", http.MethodPost, "/v1/alerts/nope/cancel", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[map[string]string](t, rec)["error"])
		})
	}
}

func TestAPI_MessageAndCancel(t *testing.T) {
	srv := newAPIServer(t, nil)

	rec := do(t, srv, http.MethodPost, "/v1/messages", map[string]string{
		"city": "Mumbai",
		"text": "There is flooding and people are trapped, need help",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[analysis.Result](t, rec)
	require.NotNil(t, res.Alert)

	rec = do(t, srv, http.MethodGet, "/v1/alerts?city=mumbai&status=active", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.DisasterAlert](t, rec), 1)

	rec = do(t, srv, http.MethodPost, "/v1/alerts/"+res.Alert.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.AlertCancelled, decode[domain.DisasterAlert](t, rec).Status)

	rec = do(t, srv, http.MethodPost, "/v1/alerts/"+res.Alert.ID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, srv, http.MethodGet, "/v1/alerts?city=mumbai", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.DisasterAlert](t, rec), 1)
}

func TestAPI_CityRisk(t *testing.T) {
	rec := do(t, newAPIServer(t, nil), http.MethodGet, "/v1/cities/Bhopal/risk", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[analysis.Result](t, rec)
	assert.True(t, res.Simulated)
	assert.Equal(t, alerting.ActionNone, res.Action)
}

func TestAPI_CityRiskUnavailable(t *testing.T) {
	srv := newAPIServer(t, errors.New("connection reset"))

	rec := do(t, srv, http.MethodGet, "/v1/cities/Bhopal/risk", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, domain.ErrAnalysisUnavailable.Error(), decode[map[string]string](t, rec)["error"])
}

func TestAPI_Stats(t *testing.T) {
	srv := newAPIServer(t, nil)
	do(t, srv, http.MethodPost, "/v1/messages", map[string]string{"city": "Patna", "text": "flood water rising, need help"})

	rec := do(t, srv, http.MethodGet, "/v1/stats/alerts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	as := decode[stats.AlertStats](t, rec)
	assert.Equal(t, 1, as.Total)
	assert.Equal(t, stats.DefaultDays, as.Days)

	rec = do(t, srv, http.MethodGet, "/v1/stats/top-cities?limit=3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	top := decode[[]stats.CityRank](t, rec)
	require.Len(t, top, 1)
	assert.Equal(t, "Patna", top[0].City)

	rec = do(t, srv, http.MethodGet, "/v1/stats/cities/Patna", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[stats.CityStats](t, rec).ActiveAlerts, 1)

	rec = do(t, srv, http.MethodGet, "/v1/stats/reports?days=30", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, decode[stats.ReportStats](t, rec).Total)
}
