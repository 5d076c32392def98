package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/disaster-alert-service/internal/domain"
	"github.com/couchcryptid/disaster-alert-service/internal/lru"
	"github.com/couchcryptid/disaster-alert-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

// Defaults for DispatcherConfig.
const (
	DefaultCacheSize       = 1024
	DefaultConfidenceDelta = 10
)

// DispatcherConfig tunes deduplication.
type DispatcherConfig struct {
	// CacheSize bounds the recent-alert table.
	CacheSize int
	// ConfidenceDelta is the minimum confidence increase that republishes an
	// alert already notified in the same state.
	ConfidenceDelta int
}

type notified struct {
	at         time.Time
	confidence int
	severity   domain.RiskLevel
	status     domain.AlertStatus
	confirmed  bool
}

// Dispatcher publishes alerts to every sink, suppressing repeats of an alert
// whose state has not materially changed since it was last sent.
type Dispatcher struct {
	sinks []Sink

	mu      sync.Mutex // serialises classify and reserve
	recent  *lru.Cache[string, notified]
	delta   int
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewDispatcher creates a Dispatcher. Zero config fields take the defaults.
func NewDispatcher(cfg DispatcherConfig, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics, sinks ...Sink) *Dispatcher {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.ConfidenceDelta <= 0 {
		cfg.ConfidenceDelta = DefaultConfidenceDelta
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Dispatcher{
		sinks:   sinks,
		recent:  lru.New[string, notified](cfg.CacheSize),
		delta:   cfg.ConfidenceDelta,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
	}
}

// Publish sends alert to its city channel and the global channel unless it
// duplicates the last notification for the same alert id. It reports whether
// anything was sent. Concurrent publishes of one alert state deliver once: the
// state is reserved before delivery and released if delivery fails.
func (d *Dispatcher) Publish(ctx context.Context, alert domain.DisasterAlert) (bool, error) {
	now := d.clock.Now()
	next := notified{
		at:         now,
		confidence: alert.AIConfidence,
		severity:   alert.Severity,
		status:     alert.Status,
		confirmed:  alert.ConfirmedBySystem,
	}

	d.mu.Lock()
	prev, seen := d.recent.Get(alert.ID, now)
	event, ok := d.classify(alert, prev, seen)
	if ok {
		d.recent.Put(alert.ID, next, alert.ValidUntil)
	}
	d.mu.Unlock()

	if !ok {
		d.metrics.NotificationsDeduped.Inc()
		d.logger.Debug("notification suppressed", "alert_id", alert.ID, "confidence", alert.AIConfidence)
		return false, nil
	}

	msg := Message{Type: event, Alert: &alert, SentAt: now}
	if err := d.fanOut(ctx, msg, ChannelKey(alert.City), GlobalChannel); err != nil {
		d.release(alert, next, prev, seen)
		return false, err
	}

	d.metrics.Notifications.WithLabelValues(string(event)).Inc()
	d.logger.Info("alert published",
		"alert_id", alert.ID,
		"event", event,
		"city", alert.City,
		"disaster_type", alert.DisasterType,
	)
	return true, nil
}

// PublishReport announces a report event on the report's city channel and
// the global channel. Report events are not deduplicated.
func (d *Dispatcher) PublishReport(ctx context.Context, event EventType, report domain.RiskReport) error {
	msg := Message{Type: event, Report: &report, SentAt: d.clock.Now()}
	if err := d.fanOut(ctx, msg, ChannelKey(report.Location.City), GlobalChannel); err != nil {
		return err
	}
	d.metrics.Notifications.WithLabelValues(string(event)).Inc()
	return nil
}

// release restores the entry replaced by a failed delivery, unless a later
// publish has already moved it on.
func (d *Dispatcher) release(alert domain.DisasterAlert, reserved, prev notified, seen bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cur, ok := d.recent.Get(alert.ID, d.clock.Now())
	if !ok || cur != reserved {
		return
	}
	if seen {
		d.recent.Put(alert.ID, prev, alert.ValidUntil)
		return
	}
	d.recent.Delete(alert.ID)
}

// Prune drops recent-alert entries whose validity window has closed.
func (d *Dispatcher) Prune() int {
	return d.recent.Prune(d.clock.Now())
}

func (d *Dispatcher) classify(alert domain.DisasterAlert, prev notified, seen bool) (EventType, bool) {
	switch {
	case !seen:
		if alert.Status.Terminal() {
			return EventAlertClosed, true
		}
		if alert.ConfirmedBySystem {
			return EventAlertConfirmed, true
		}
		return EventAlertCreated, true
	case alert.Status != prev.status:
		return EventAlertClosed, true
	case alert.ConfirmedBySystem && !prev.confirmed:
		return EventAlertConfirmed, true
	case alert.Severity > prev.severity:
		return EventAlertUpdated, true
	case alert.AIConfidence-prev.confidence >= d.delta:
		return EventAlertUpdated, true
	}
	return "", false
}

func (d *Dispatcher) fanOut(ctx context.Context, msg Message, channels ...string) error {
	var errs []error
	for _, ch := range channels {
		if ch == "" {
			continue
		}
		m := msg
		m.Channel = ch
		for _, s := range d.sinks {
			if err := s.Send(ctx, ch, m); err != nil {
				errs = append(errs, fmt.Errorf("send %s on %q: %w", msg.Type, ch, err))
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		d.logger.Warn("notification delivery failed", "event", msg.Type, "error", err)
		return err
	}
	return nil
}
