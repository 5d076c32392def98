package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/disaster-alert-service/internal/domain"
	"github.com/couchcryptid/disaster-alert-service/internal/observability"
	"github.com/couchcryptid/disaster-alert-service/internal/store"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Action is the outcome of aggregating one assessment.
type Action string

const (
	ActionNone   Action = "none"
	ActionCreate Action = "create"
	ActionReuse  Action = "reuse"
)

// Validity windows by provenance.
const (
	WeatherWindow = 24 * time.Hour
	ReportWindow  = 12 * time.Hour
)

// Confidence caps applied until an alert is externally verified.
const (
	WeatherConfidenceCap = 85
	ReportConfidenceCap  = 95
)

// AlertStore is the persistence the Aggregator needs.
type AlertStore interface {
	ActiveAlert(ctx context.Context, city string, t domain.DisasterType, now time.Time) (domain.DisasterAlert, error)
	InsertActiveAlert(ctx context.Context, a domain.DisasterAlert) ([]domain.DisasterAlert, error)
	RaiseAlertConfidence(ctx context.Context, id string, confidence int, now time.Time) (domain.DisasterAlert, bool, error)
	EscalateAlert(ctx context.Context, id string, e store.Escalation, now time.Time) (domain.DisasterAlert, bool, error)
	LinkReport(ctx context.Context, id, reportID string, now time.Time) (domain.DisasterAlert, error)
}

// Request is one assessment to aggregate for a city.
type Request struct {
	City         string
	Assessment   domain.RiskAssessment
	Source       domain.AlertSource
	ReportedBy   string
	AffectedArea string
	Coordinates  *domain.Coordinates
}

// Decision is the result of Aggregate. Alert is the zero value for
// ActionNone. Expired holds stale alerts for the same pair that were closed
// to make room for a new one.
type Decision struct {
	Action           Action
	Alert            domain.DisasterAlert
	ConfidenceRaised bool
	Escalated        bool
	Expired          []domain.DisasterAlert
}

// Changed reports whether the decision created or modified an alert.
func (d Decision) Changed() bool {
	return d.Action == ActionCreate || d.ConfidenceRaised || d.Escalated
}

// Aggregator decides whether an assessment creates a new alert or reuses the
// active one for the same city and disaster type. Decisions for one pair are
// serialized in-process; the store's insert-if-no-active-duplicate primitive
// covers concurrent processes.
type Aggregator struct {
	store   AlertStore
	clock   clockwork.Clock
	locks   *keyedMutex
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewAggregator creates an Aggregator. A nil clock uses real time.
func NewAggregator(s AlertStore, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Aggregator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Aggregator{
		store:   s,
		clock:   clock,
		locks:   newKeyedMutex(),
		logger:  logger,
		metrics: metrics,
	}
}

// Aggregate applies the alerting rule to req.
func (g *Aggregator) Aggregate(ctx context.Context, req Request) (Decision, error) {
	level := req.Assessment.RiskLevel.Alerting()
	if level < domain.RiskHigh || req.Assessment.DisasterType == domain.DisasterNone || req.City == "" {
		g.metrics.AlertDecisions.WithLabelValues(string(ActionNone)).Inc()
		return Decision{Action: ActionNone}, nil
	}

	unlock := g.locks.Lock(domain.CityKey(req.City) + "|" + string(req.Assessment.DisasterType))
	defer unlock()

	now := g.clock.Now()
	existing, err := g.store.ActiveAlert(ctx, req.City, req.Assessment.DisasterType, now)
	switch {
	case err == nil:
		return g.reuse(ctx, existing, req, now)
	case !domain.IsNotFound(err):
		return Decision{}, fmt.Errorf("lookup active alert: %w", err)
	}

	alert := g.build(req, level, now)
	expired, err := g.store.InsertActiveAlert(ctx, alert)
	if errors.Is(err, domain.ErrPersistenceConflict) {
		g.logger.Debug("alert insert conflict, following reuse path",
			"city", req.City, "disaster_type", req.Assessment.DisasterType)
		existing, err = g.store.ActiveAlert(ctx, req.City, req.Assessment.DisasterType, now)
		if err != nil {
			return Decision{}, fmt.Errorf("reread active alert after conflict: %w", err)
		}
		return g.reuse(ctx, existing, req, now)
	}
	if err != nil {
		return Decision{}, fmt.Errorf("insert alert: %w", err)
	}

	g.metrics.AlertDecisions.WithLabelValues(string(ActionCreate)).Inc()
	g.logger.Info("alert created",
		"alert_id", alert.ID,
		"city", alert.City,
		"disaster_type", alert.DisasterType,
		"severity", alert.Severity.String(),
		"source", alert.Source,
		"valid_until", alert.ValidUntil,
	)
	return Decision{Action: ActionCreate, Alert: alert, Expired: expired}, nil
}

// reuse keeps the active alert. A more severe assessment escalates it in
// place, a user report is linked to it for later confirmation, and a higher
// confidence is carried over. The validity window never changes.
func (g *Aggregator) reuse(ctx context.Context, existing domain.DisasterAlert, req Request, now time.Time) (Decision, error) {
	g.metrics.AlertDecisions.WithLabelValues(string(ActionReuse)).Inc()
	d := Decision{Action: ActionReuse, Alert: existing}

	if level := req.Assessment.RiskLevel.Alerting(); level > existing.Severity {
		msg := req.Assessment.Message
		if msg == "" {
			msg = existing.Message
		}
		updated, changed, err := g.store.EscalateAlert(ctx, existing.ID, store.Escalation{
			From:         existing.Severity,
			To:           level,
			Message:      msg,
			Instructions: Instructions(existing.DisasterType, level, existing.Source),
		}, now)
		if err != nil {
			return Decision{}, fmt.Errorf("escalate alert: %w", err)
		}
		d.Alert, d.Escalated = updated, changed
		if changed {
			g.logger.Info("alert escalated",
				"alert_id", updated.ID,
				"city", updated.City,
				"disaster_type", updated.DisasterType,
				"from", existing.Severity.String(),
				"to", updated.Severity.String(),
			)
		}
	}

	if req.Source == domain.SourceUserReport && req.ReportedBy != "" && !d.Alert.LinkedTo(req.ReportedBy) {
		linked, err := g.store.LinkReport(ctx, d.Alert.ID, req.ReportedBy, now)
		if err != nil {
			return Decision{}, fmt.Errorf("link report to alert: %w", err)
		}
		d.Alert = linked
	}

	conf := capConfidence(req.Assessment.Confidence, d.Alert.Source)
	if conf <= d.Alert.AIConfidence {
		return d, nil
	}
	updated, changed, err := g.store.RaiseAlertConfidence(ctx, d.Alert.ID, conf, now)
	if err != nil {
		return Decision{}, fmt.Errorf("raise alert confidence: %w", err)
	}
	d.Alert, d.ConfidenceRaised = updated, changed
	return d, nil
}

func (g *Aggregator) build(req Request, level domain.RiskLevel, now time.Time) domain.DisasterAlert {
	area := req.AffectedArea
	if area == "" {
		area = req.City + " and surrounding areas"
	}
	t := req.Assessment.DisasterType
	return domain.DisasterAlert{
		ID:           uuid.NewString(),
		City:         req.City,
		DisasterType: t,
		Severity:     level,
		Message:      req.Assessment.Message,
		Source:       req.Source,
		AffectedArea: area,
		Coordinates:  req.Coordinates,
		ValidFrom:    now,
		ValidUntil:   now.Add(window(req.Source)),
		Instructions: Instructions(t, level, req.Source),
		Status:       domain.AlertActive,
		ReportedBy:   req.ReportedBy,
		AIConfidence: capConfidence(req.Assessment.Confidence, req.Source),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func window(source domain.AlertSource) time.Duration {
	if source == domain.SourceUserReport {
		return ReportWindow
	}
	return WeatherWindow
}

func capConfidence(c int, source domain.AlertSource) int {
	limit := WeatherConfidenceCap
	if source == domain.SourceUserReport {
		limit = ReportConfidenceCap
	}
	switch {
	case c < 0:
		return 0
	case c > limit:
		return limit
	}
	return c
}
