// Package analysis is the request boundary of the engine. It turns weather
// fetches, free-text messages and report submissions into assessments, feeds
// them to the alert aggregator and publishes the alerts it creates or raises.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/disaster-alert-service/internal/alerting"
	"github.com/couchcryptid/disaster-alert-service/internal/domain"
	"github.com/couchcryptid/disaster-alert-service/internal/observability"
	"github.com/couchcryptid/disaster-alert-service/internal/reports"
	"github.com/couchcryptid/disaster-alert-service/internal/scoring"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// DefaultPriorMaxAge bounds how old a stored snapshot may be to supply the
// numeric lane for a text-only message.
const DefaultPriorMaxAge = 3 * time.Hour

// SnapshotStore persists weather snapshots.
type SnapshotStore interface {
	InsertSnapshot(ctx context.Context, s domain.WeatherSnapshot) error
	LatestSnapshot(ctx context.Context, city string) (domain.WeatherSnapshot, error)
}

// Aggregator creates or reuses alerts.
type Aggregator interface {
	Aggregate(ctx context.Context, req alerting.Request) (alerting.Decision, error)
}

// Publisher announces alerts.
type Publisher interface {
	Publish(ctx context.Context, alert domain.DisasterAlert) (bool, error)
}

// ReportSubmitter accepts risk reports.
type ReportSubmitter interface {
	Submit(ctx context.Context, sub domain.ReportSubmission) (reports.SubmitResult, error)
}

// Deps are the collaborators of an Analyzer. Clock and PriorMaxAge are
// optional.
type Deps struct {
	Scorer      *scoring.Scorer
	Weather     domain.WeatherProvider
	Snapshots   SnapshotStore
	Aggregator  Aggregator
	Publisher   Publisher
	Reports     ReportSubmitter
	Clock       clockwork.Clock
	PriorMaxAge time.Duration
	Logger      *slog.Logger
	Metrics     *observability.Metrics
}

// Result is the outcome of analyzing one signal.
type Result struct {
	Kind       string                 `json:"kind"`
	City       string                 `json:"city"`
	Assessment domain.RiskAssessment  `json:"assessment"`
	Weather    *domain.WeatherReading `json:"weather,omitempty"`
	Simulated  bool                   `json:"simulated"`
	Action     alerting.Action        `json:"alert_action"`
	Alert      *domain.DisasterAlert  `json:"alert,omitempty"`
	Report     *domain.RiskReport     `json:"report,omitempty"`
}

// Analyzer runs signals through scoring and alert aggregation. Errors that
// are not the caller's fault are logged and mapped to
// domain.ErrAnalysisUnavailable.
type Analyzer struct {
	deps Deps
}

// New creates an Analyzer.
func New(deps Deps) *Analyzer {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.PriorMaxAge <= 0 {
		deps.PriorMaxAge = DefaultPriorMaxAge
	}
	return &Analyzer{deps: deps}
}

// AnalyzeCity fetches current weather for city and analyzes it.
func (a *Analyzer) AnalyzeCity(ctx context.Context, city string) (Result, error) {
	payload, err := a.deps.Weather.FetchWeather(ctx, city)
	if err != nil {
		return Result{}, a.boundary(err, city, domain.DisasterNone, "weather fetch")
	}
	return a.AnalyzeWeatherPayload(ctx, city, payload)
}

// AnalyzeWeatherPayload normalizes and scores a provider payload, records a
// snapshot, and aggregates the assessment. Simulated payloads are recorded
// but never raise alerts.
func (a *Analyzer) AnalyzeWeatherPayload(ctx context.Context, city string, payload domain.WeatherPayload) (Result, error) {
	reading, sig, err := domain.NormalizeWeather(payload, city)
	if err != nil {
		return Result{}, a.boundary(err, city, domain.DisasterNone, "weather payload")
	}
	assessment := a.deps.Scorer.Score(sig)
	a.count(domain.SignalWeather, assessment)

	snap := domain.WeatherSnapshot{
		ID:        uuid.NewString(),
		Reading:   reading,
		Alerts:    assessment.Flags,
		RiskScore: assessment.RiskScore,
		RiskLevel: assessment.RiskLevel,
		Simulated: payload.Simulated,
		Timestamp: sig.ObservedAt,
	}
	if snap.Alerts == nil {
		snap.Alerts = []domain.WeatherFlag{}
	}
	if err := a.deps.Snapshots.InsertSnapshot(ctx, snap); err != nil {
		return Result{}, a.boundary(fmt.Errorf("insert snapshot: %w", err), reading.City, assessment.DisasterType, snapshotSummary(reading))
	}

	res := Result{
		Kind:       domain.KindWeather,
		City:       reading.City,
		Assessment: assessment,
		Weather:    &reading,
		Simulated:  payload.Simulated,
		Action:     alerting.ActionNone,
	}
	if payload.Simulated {
		a.deps.Logger.Warn("simulated weather, alerting skipped", "city", reading.City)
		return res, nil
	}
	return a.aggregate(ctx, res, alerting.Request{
		City:        reading.City,
		Assessment:  assessment,
		Source:      domain.SourceWeatherAPI,
		Coordinates: reading.Coordinates,
	}, snapshotSummary(reading))
}

// AnalyzeMessage scores free text for city. The city's latest real snapshot,
// when fresh enough, supplies the numeric lane.
func (a *Analyzer) AnalyzeMessage(ctx context.Context, city, text string) (Result, error) {
	sig, err := domain.NormalizeText(text, city, domain.SignalMessage)
	if err != nil {
		return Result{}, a.boundary(err, city, domain.DisasterNone, text)
	}

	var prior []domain.ObservationSignal
	if city != "" {
		p, ok, err := a.priorSignal(ctx, city)
		if err != nil {
			return Result{}, a.boundary(err, city, domain.DisasterNone, text)
		}
		if ok {
			prior = append(prior, p)
		}
	}

	assessment := a.deps.Scorer.Score(sig, prior...)
	a.count(domain.SignalMessage, assessment)

	res := Result{
		Kind:       domain.KindMessage,
		City:       sig.LocationCity,
		Assessment: assessment,
		Action:     alerting.ActionNone,
	}
	if sig.LocationCity == "" {
		return res, nil
	}
	return a.aggregate(ctx, res, alerting.Request{
		City:       sig.LocationCity,
		Assessment: assessment,
		Source:     domain.SourceAIPrediction,
	}, text)
}

// SubmitReport accepts a risk report.
func (a *Analyzer) SubmitReport(ctx context.Context, sub domain.ReportSubmission) (Result, error) {
	out, err := a.deps.Reports.Submit(ctx, sub)
	if err != nil {
		return Result{}, a.boundary(err, sub.City, domain.DisasterType(sub.RiskType), sub.Description)
	}
	assessment := reports.Assessment(out.Report)
	a.count(domain.SignalReport, assessment)

	res := Result{
		Kind:       domain.KindReport,
		City:       out.Report.Location.City,
		Assessment: assessment,
		Action:     out.Decision.Action,
		Report:     &out.Report,
	}
	if out.Decision.Action != alerting.ActionNone {
		alert := out.Decision.Alert
		res.Alert = &alert
	}
	return res, nil
}

// Process dispatches a source-topic envelope to the matching analysis.
func (a *Analyzer) Process(ctx context.Context, env domain.SignalEnvelope) (Result, error) {
	switch env.Kind {
	case domain.KindWeather:
		if env.Weather == nil {
			return Result{}, &domain.InvalidInputError{Reason: "weather envelope without payload"}
		}
		return a.AnalyzeWeatherPayload(ctx, env.City, *env.Weather)
	case domain.KindMessage:
		return a.AnalyzeMessage(ctx, env.City, env.Text)
	case domain.KindReport:
		if env.Report == nil {
			return Result{}, &domain.InvalidInputError{Reason: "report envelope without report"}
		}
		sub := *env.Report
		if sub.City == "" {
			sub.City = env.City
		}
		return a.SubmitReport(ctx, sub)
	}
	return Result{}, &domain.InvalidInputError{Reason: fmt.Sprintf("unknown signal kind %q", env.Kind)}
}

func (a *Analyzer) aggregate(ctx context.Context, res Result, req alerting.Request, signal string) (Result, error) {
	decision, err := a.deps.Aggregator.Aggregate(ctx, req)
	if err != nil {
		return Result{}, a.boundary(err, req.City, req.Assessment.DisasterType, signal)
	}
	res.Action = decision.Action
	for _, stale := range decision.Expired {
		a.notify(ctx, stale)
	}
	if decision.Action == alerting.ActionNone {
		return res, nil
	}
	alert := decision.Alert
	res.Alert = &alert
	if decision.Changed() {
		a.notify(ctx, alert)
	}
	return res, nil
}

func (a *Analyzer) notify(ctx context.Context, alert domain.DisasterAlert) {
	if _, err := a.deps.Publisher.Publish(ctx, alert); err != nil {
		a.deps.Logger.Warn("alert notification failed", "alert_id", alert.ID, "city", alert.City, "status", alert.Status, "error", err)
	}
}

func (a *Analyzer) priorSignal(ctx context.Context, city string) (domain.ObservationSignal, bool, error) {
	snap, err := a.deps.Snapshots.LatestSnapshot(ctx, city)
	if domain.IsNotFound(err) {
		return domain.ObservationSignal{}, false, nil
	}
	if err != nil {
		return domain.ObservationSignal{}, false, fmt.Errorf("latest snapshot: %w", err)
	}
	if snap.Simulated || a.deps.Clock.Since(snap.Timestamp) > a.deps.PriorMaxAge {
		return domain.ObservationSignal{}, false, nil
	}
	return SignalFromSnapshot(snap), true, nil
}

// SignalFromSnapshot rebuilds the numeric signal a snapshot was scored from.
func SignalFromSnapshot(s domain.WeatherSnapshot) domain.ObservationSignal {
	r := s.Reading
	return domain.ObservationSignal{
		Source:       domain.SignalWeather,
		Temperature:  &r.Temperature,
		Humidity:     &r.Humidity,
		WindSpeedKmh: &r.WindSpeedKmh,
		RainfallMm3h: &r.RainfallMm3h,
		VisibilityKm: &r.VisibilityKm,
		LocationCity: r.City,
		Coordinates:  r.Coordinates,
		ObservedAt:   s.Timestamp,
	}
}

// boundary passes caller errors through and maps everything else to
// domain.ErrAnalysisUnavailable after logging it.
func (a *Analyzer) boundary(err error, city string, t domain.DisasterType, signal string) error {
	if domain.IsCallerError(err) {
		return err
	}
	a.deps.Metrics.AnalysisFailure.Inc()
	a.deps.Logger.Error("analysis failed",
		"city", city,
		"disaster_type", t,
		"signal", signal,
		"error", err,
	)
	return domain.ErrAnalysisUnavailable
}

func (a *Analyzer) count(src domain.SignalSource, assessment domain.RiskAssessment) {
	a.deps.Metrics.Assessments.WithLabelValues(string(src), assessment.RiskLevel.String()).Inc()
}

func snapshotSummary(r domain.WeatherReading) string {
	return fmt.Sprintf("temp=%.0f humidity=%.0f wind=%.1f rain=%.1f visibility=%.1f",
		r.Temperature, r.Humidity, r.WindSpeedKmh, r.RainfallMm3h, r.VisibilityKm)
}
