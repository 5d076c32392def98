package alerting

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/disaster-alert-service/internal/domain"
	"github.com/couchcryptid/disaster-alert-service/internal/observability"
	"github.com/couchcryptid/disaster-alert-service/internal/store"
	"github.com/jonboulle/clockwork"
)

// VerifiedConfidence is the confidence set on alerts confirmed by a
// verified report.
const VerifiedConfidence = 95

// LifecycleStore is the persistence the Manager needs.
type LifecycleStore interface {
	GetAlert(ctx context.Context, id string) (domain.DisasterAlert, error)
	ExpireAlerts(ctx context.Context, now time.Time) ([]domain.DisasterAlert, error)
	CancelAlert(ctx context.Context, id string, now time.Time) (domain.DisasterAlert, error)
	ConfirmAlertsForReport(ctx context.Context, reportID string, confidence int, now time.Time) ([]domain.DisasterAlert, error)
	ListAlerts(ctx context.Context, f store.AlertFilter) ([]domain.DisasterAlert, error)
}

// Announcer publishes alert state changes.
type Announcer interface {
	Publish(ctx context.Context, alert domain.DisasterAlert) (bool, error)
}

// Manager moves alerts through active → expired | cancelled and applies
// report verification. Every transition is a conditional store update, so
// terminal states are never left.
type Manager struct {
	store   LifecycleStore
	pub     Announcer
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewManager creates a Manager. Expired alerts are announced through pub,
// which may be nil. A nil clock uses real time.
func NewManager(s LifecycleStore, pub Announcer, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Manager{store: s, pub: pub, clock: clock, logger: logger, metrics: metrics}
}

// ExpireStale expires every active alert whose ValidUntil is before the
// sweep's start time and announces each one. Repeated sweeps change nothing
// further.
func (m *Manager) ExpireStale(ctx context.Context) ([]domain.DisasterAlert, error) {
	now := m.clock.Now()
	expired, err := m.store.ExpireAlerts(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("expire alerts: %w", err)
	}
	if len(expired) > 0 {
		m.metrics.AlertsExpired.Add(float64(len(expired)))
		m.logger.Info("alerts expired", "count", len(expired), "swept_at", now)
	}
	m.Announce(ctx, expired...)
	return expired, nil
}

// Announce publishes alerts, logging delivery failures.
func (m *Manager) Announce(ctx context.Context, alerts ...domain.DisasterAlert) {
	if m.pub == nil {
		return
	}
	for _, a := range alerts {
		if _, err := m.pub.Publish(ctx, a); err != nil {
			m.logger.Warn("alert notification failed", "alert_id", a.ID, "status", a.Status, "error", err)
		}
	}
}

// Cancel moves an active alert to cancelled. Alerts past their window are
// expired first, so they and other terminal alerts yield
// domain.ErrInvalidTransition.
func (m *Manager) Cancel(ctx context.Context, id string) (domain.DisasterAlert, error) {
	if _, err := m.ExpireStale(ctx); err != nil {
		return domain.DisasterAlert{}, err
	}
	a, err := m.store.CancelAlert(ctx, id, m.clock.Now())
	if err != nil {
		return a, fmt.Errorf("cancel alert %s: %w", id, err)
	}
	m.logger.Info("alert cancelled", "alert_id", id, "city", a.City, "disaster_type", a.DisasterType)
	return a, nil
}

// ConfirmFromReport marks alerts raised by reportID as confirmed with
// VerifiedConfidence. Validity windows are left unchanged.
func (m *Manager) ConfirmFromReport(ctx context.Context, reportID string) ([]domain.DisasterAlert, error) {
	confirmed, err := m.store.ConfirmAlertsForReport(ctx, reportID, VerifiedConfidence, m.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("confirm alerts for report %s: %w", reportID, err)
	}
	for _, a := range confirmed {
		m.logger.Info("alert confirmed", "alert_id", a.ID, "report_id", reportID, "city", a.City)
	}
	return confirmed, nil
}

// ActiveAlerts sweeps eagerly and returns the active alerts for a city, or
// for all cities when city is empty.
func (m *Manager) ActiveAlerts(ctx context.Context, city string) ([]domain.DisasterAlert, error) {
	if _, err := m.ExpireStale(ctx); err != nil {
		return nil, err
	}
	alerts, err := m.store.ListAlerts(ctx, store.AlertFilter{City: city, Status: domain.AlertActive})
	if err != nil {
		return nil, fmt.Errorf("list active alerts: %w", err)
	}
	return alerts, nil
}

// History returns a city's alerts in any state, newest first.
func (m *Manager) History(ctx context.Context, city string, limit int) ([]domain.DisasterAlert, error) {
	alerts, err := m.store.ListAlerts(ctx, store.AlertFilter{City: city, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("list alert history: %w", err)
	}
	return alerts, nil
}

// Get returns one alert.
func (m *Manager) Get(ctx context.Context, id string) (domain.DisasterAlert, error) {
	return m.store.GetAlert(ctx, id)
}
