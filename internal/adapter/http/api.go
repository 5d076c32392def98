package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/couchcryptid/disaster-alert-service/internal/analysis"
	"github.com/couchcryptid/disaster-alert-service/internal/domain"
	"github.com/couchcryptid/disaster-alert-service/internal/stats"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

const maxBodyBytes = 1 << 20

// Analyzer is the analysis engine as seen by the API.
type Analyzer interface {
	AnalyzeCity(ctx context.Context, city string) (analysis.Result, error)
	AnalyzeMessage(ctx context.Context, city, text string) (analysis.Result, error)
	SubmitReport(ctx context.Context, sub domain.ReportSubmission) (analysis.Result, error)
}

// Alerts is the alert lifecycle as seen by the API.
type Alerts interface {
	ActiveAlerts(ctx context.Context, city string) ([]domain.DisasterAlert, error)
	History(ctx context.Context, city string, limit int) ([]domain.DisasterAlert, error)
	Get(ctx context.Context, id string) (domain.DisasterAlert, error)
	Cancel(ctx context.Context, id string) (domain.DisasterAlert, error)
}

// Reports is the report workflow as seen by the API.
type Reports interface {
	Get(ctx context.Context, id string) (domain.RiskReport, error)
	ListByCity(ctx context.Context, city string, days int) ([]domain.RiskReport, error)
	UpdateStatus(ctx context.Context, id string, next domain.ReportStatus, actor string) (domain.RiskReport, error)
}

// Stats computes statistics.
type Stats interface {
	Alerts(ctx context.Context, days int) (stats.AlertStats, error)
	Reports(ctx context.Context, days int) (stats.ReportStats, error)
	City(ctx context.Context, city string, days int) (stats.CityStats, error)
	TopAffectedCities(ctx context.Context, days, limit int) ([]stats.CityRank, error)
}

// Publisher announces alert changes.
type Publisher interface {
	Publish(ctx context.Context, alert domain.DisasterAlert) (bool, error)
}

// API serves the JSON query and submission endpoints.
type API struct {
	analyzer  Analyzer
	alerts    Alerts
	reports   Reports
	stats     Stats
	publisher Publisher
	logger    *slog.Logger
}

// NewAPI creates an API.
func NewAPI(analyzer Analyzer, alerts Alerts, reports Reports, st Stats, pub Publisher, logger *slog.Logger) *API {
	return &API{
		analyzer:  analyzer,
		alerts:    alerts,
		reports:   reports,
		stats:     st,
		publisher: pub,
		logger:    logger,
	}
}

func (a *API) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/cities/{city}/risk", a.handleCityRisk)
	mux.HandleFunc("POST /v1/messages", a.handleMessage)

	mux.HandleFunc("GET /v1/alerts", a.handleListAlerts)
	mux.HandleFunc("GET /v1/alerts/{id}", a.handleGetAlert)
	mux.HandleFunc("POST /v1/alerts/{id}/cancel", a.handleCancelAlert)

	mux.HandleFunc("POST /v1/reports", a.handleSubmitReport)
	mux.HandleFunc("GET /v1/reports", a.handleListReports)
	mux.HandleFunc("GET /v1/reports/{id}", a.handleGetReport)
	mux.HandleFunc("POST /v1/reports/{id}/status", a.handleReportStatus)

	mux.HandleFunc("GET /v1/stats/alerts", a.handleAlertStats)
	mux.HandleFunc("GET /v1/stats/reports", a.handleReportStats)
	mux.HandleFunc("GET /v1/stats/cities/{city}", a.handleCityStats)
	mux.HandleFunc("GET /v1/stats/top-cities", a.handleTopCities)
}

func (a *API) handleCityRisk(w http.ResponseWriter, r *http.Request) {
	res, err := a.analyzer.AnalyzeCity(r.Context(), r.PathValue("city"))
	a.respond(w, http.StatusOK, res, err)
}

func (a *API) handleMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		City string `json:"city"`
		Text string `json:"text"`
	}
	if !a.decode(w, r, &body) {
		return
	}
	res, err := a.analyzer.AnalyzeMessage(r.Context(), body.City, body.Text)
	a.respond(w, http.StatusOK, res, err)
}

func (a *API) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	city := r.URL.Query().Get("city")
	if r.URL.Query().Get("status") == string(domain.AlertActive) {
		alerts, err := a.alerts.ActiveAlerts(r.Context(), city)
		a.respond(w, http.StatusOK, alerts, err)
		return
	}
	limit, ok := a.intParam(w, r, "limit", 50)
	if !ok {
		return
	}
	alerts, err := a.alerts.History(r.Context(), city, limit)
	a.respond(w, http.StatusOK, alerts, err)
}

func (a *API) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := a.alerts.Get(r.Context(), r.PathValue("id"))
	a.respond(w, http.StatusOK, alert, err)
}

func (a *API) handleCancelAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := a.alerts.Cancel(r.Context(), r.PathValue("id"))
	if err == nil {
		if _, perr := a.publisher.Publish(r.Context(), alert); perr != nil {
			a.logger.Warn("cancel notification failed", "alert_id", alert.ID, "error", perr)
		}
	}
	a.respond(w, http.StatusOK, alert, err)
}

func (a *API) handleSubmitReport(w http.ResponseWriter, r *http.Request) {
	var sub domain.ReportSubmission
	if !a.decode(w, r, &sub) {
		return
	}
	res, err := a.analyzer.SubmitReport(r.Context(), sub)
	a.respond(w, http.StatusCreated, res, err)
}

func (a *API) handleListReports(w http.ResponseWriter, r *http.Request) {
	days, ok := a.intParam(w, r, "days", 0)
	if !ok {
		return
	}
	reports, err := a.reports.ListByCity(r.Context(), r.URL.Query().Get("city"), days)
	a.respond(w, http.StatusOK, reports, err)
}

func (a *API) handleGetReport(w http.ResponseWriter, r *http.Request) {
	report, err := a.reports.Get(r.Context(), r.PathValue("id"))
	a.respond(w, http.StatusOK, report, err)
}

func (a *API) handleReportStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
		Actor  string `json:"actor"`
	}
	if !a.decode(w, r, &body) {
		return
	}
	next, err := domain.ParseReportStatus(body.Status)
	if err != nil {
		a.respond(w, 0, nil, &domain.ValidationError{Fields: []string{"status"}, Reason: err.Error()})
		return
	}
	report, err := a.reports.UpdateStatus(r.Context(), r.PathValue("id"), next, body.Actor)
	a.respond(w, http.StatusOK, report, err)
}

func (a *API) handleAlertStats(w http.ResponseWriter, r *http.Request) {
	days, ok := a.intParam(w, r, "days", stats.DefaultDays)
	if !ok {
		return
	}
	out, err := a.stats.Alerts(r.Context(), days)
	a.respond(w, http.StatusOK, out, err)
}

func (a *API) handleReportStats(w http.ResponseWriter, r *http.Request) {
	days, ok := a.intParam(w, r, "days", stats.DefaultDays)
	if !ok {
		return
	}
	out, err := a.stats.Reports(r.Context(), days)
	a.respond(w, http.StatusOK, out, err)
}

func (a *API) handleCityStats(w http.ResponseWriter, r *http.Request) {
	days, ok := a.intParam(w, r, "days", stats.DefaultDays)
	if !ok {
		return
	}
	out, err := a.stats.City(r.Context(), r.PathValue("city"), days)
	a.respond(w, http.StatusOK, out, err)
}

func (a *API) handleTopCities(w http.ResponseWriter, r *http.Request) {
	days, ok := a.intParam(w, r, "days", stats.DefaultDays)
	if !ok {
		return
	}
	limit, ok := a.intParam(w, r, "limit", stats.DefaultTopLimit)
	if !ok {
		return
	}
	out, err := a.stats.TopAffectedCities(r.Context(), days, limit)
	a.respond(w, http.StatusOK, out, err)
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		a.respond(w, 0, nil, &domain.InvalidInputError{Reason: "malformed request body: " + err.Error()})
		return false
	}
	return true
}

func (a *API) intParam(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		a.respond(w, 0, nil, &domain.ValidationError{Fields: []string{name}, Reason: "must be a non-negative integer"})
		return 0, false
	}
	return n, true
}

// respond writes v with status, or maps err onto an HTTP status.
func (a *API) respond(w http.ResponseWriter, status int, v any, err error) {
	if err == nil {
		sharedobs.WriteJSON(w, status, v)
		return
	}
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusServiceUnavailable {
		a.logger.Error("request failed", "error", err)
		msg = domain.ErrAnalysisUnavailable.Error()
	}
	sharedobs.WriteJSON(w, code, map[string]string{"error": msg})
}

func statusFor(err error) int {
	var (
		ve *domain.ValidationError
		ie *domain.InvalidInputError
	)
	switch {
	case errors.As(err, &ve), errors.As(err, &ie):
		return http.StatusBadRequest
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	}
	return http.StatusServiceUnavailable
}
