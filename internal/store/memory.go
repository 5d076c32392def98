package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/couchcryptid/disaster-alert-service/internal/domain"
)

// Memory is an in-process store guarded by a single RWMutex.
type Memory struct {
	mu        sync.RWMutex
	alerts    map[string]domain.DisasterAlert
	reports   map[string]domain.RiskReport
	snapshots []domain.WeatherSnapshot
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		alerts:  make(map[string]domain.DisasterAlert),
		reports: make(map[string]domain.RiskReport),
	}
}

// InsertActiveAlert stores a as the active alert for its city and disaster
// type. It returns domain.ErrPersistenceConflict when an active alert whose
// window has not closed already exists. Active alerts whose window closed
// before a.ValidFrom are expired first and returned.
func (m *Memory) InsertActiveAlert(_ context.Context, a domain.DisasterAlert) ([]domain.DisasterAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := domain.CityKey(a.City)
	var stale []string
	for id, existing := range m.alerts {
		if existing.Status != domain.AlertActive || existing.DisasterType != a.DisasterType ||
			domain.CityKey(existing.City) != key {
			continue
		}
		if !existing.ValidUntil.Before(a.ValidFrom) {
			return nil, domain.ErrPersistenceConflict
		}
		stale = append(stale, id)
	}

	var expired []domain.DisasterAlert
	for _, id := range stale {
		existing := m.alerts[id]
		existing.Status = domain.AlertExpired
		existing.UpdatedAt = a.ValidFrom
		m.alerts[id] = existing
		expired = append(expired, cloneAlert(existing))
	}
	a.Status = domain.AlertActive
	m.alerts[a.ID] = cloneAlert(a)
	return expired, nil
}

// ActiveAlert returns the active, unexpired alert for a city and type.
func (m *Memory) ActiveAlert(_ context.Context, city string, t domain.DisasterType, now time.Time) (domain.DisasterAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := domain.CityKey(city)
	for _, a := range m.alerts {
		if a.DisasterType == t && domain.CityKey(a.City) == key && a.ActiveAt(now) {
			return cloneAlert(a), nil
		}
	}
	return domain.DisasterAlert{}, &domain.NotFoundError{Kind: "active alert", ID: key + "/" + string(t)}
}

func (m *Memory) GetAlert(_ context.Context, id string) (domain.DisasterAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.alerts[id]
	if !ok {
		return domain.DisasterAlert{}, alertNotFound(id)
	}
	return cloneAlert(a), nil
}

// RaiseAlertConfidence sets the alert's confidence when it is active and the
// new value is higher. The bool reports whether a change was made.
func (m *Memory) RaiseAlertConfidence(_ context.Context, id string, confidence int, now time.Time) (domain.DisasterAlert, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.alerts[id]
	if !ok {
		return domain.DisasterAlert{}, false, alertNotFound(id)
	}
	if a.Status != domain.AlertActive || confidence <= a.AIConfidence {
		return cloneAlert(a), false, nil
	}
	a.AIConfidence = confidence
	a.UpdatedAt = now
	m.alerts[id] = a
	return cloneAlert(a), true, nil
}

// EscalateAlert applies e to an active alert whose severity still equals
// e.From. The bool reports whether a change was made.
func (m *Memory) EscalateAlert(_ context.Context, id string, e Escalation, now time.Time) (domain.DisasterAlert, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.alerts[id]
	if !ok {
		return domain.DisasterAlert{}, false, alertNotFound(id)
	}
	if a.Status != domain.AlertActive || a.Severity != e.From || e.To <= e.From {
		return cloneAlert(a), false, nil
	}
	a.Severity = e.To
	a.Message = e.Message
	a.Instructions = append([]string(nil), e.Instructions...)
	a.UpdatedAt = now
	m.alerts[id] = a
	return cloneAlert(a), true, nil
}

// LinkReport attaches reportID to an alert so that verifying the report
// confirms it. Linking twice is a no-op.
func (m *Memory) LinkReport(_ context.Context, id, reportID string, now time.Time) (domain.DisasterAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.alerts[id]
	if !ok {
		return domain.DisasterAlert{}, alertNotFound(id)
	}
	if a.LinkedTo(reportID) {
		return cloneAlert(a), nil
	}
	a.LinkedReports = append(append([]string(nil), a.LinkedReports...), reportID)
	a.UpdatedAt = now
	m.alerts[id] = a
	return cloneAlert(a), nil
}

// ExpireAlerts moves every active alert with ValidUntil before now to
// expired and returns the alerts it changed.
func (m *Memory) ExpireAlerts(_ context.Context, now time.Time) ([]domain.DisasterAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []domain.DisasterAlert
	for id, a := range m.alerts {
		if a.Status != domain.AlertActive || !now.After(a.ValidUntil) {
			continue
		}
		a.Status = domain.AlertExpired
		a.UpdatedAt = now
		m.alerts[id] = a
		expired = append(expired, cloneAlert(a))
	}
	return expired, nil
}

// CancelAlert moves an active alert to cancelled. An alert whose window has
// closed can no longer be cancelled.
func (m *Memory) CancelAlert(_ context.Context, id string, now time.Time) (domain.DisasterAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.alerts[id]
	if !ok {
		return domain.DisasterAlert{}, alertNotFound(id)
	}
	if !a.ActiveAt(now) {
		return cloneAlert(a), domain.ErrInvalidTransition
	}
	a.Status = domain.AlertCancelled
	a.UpdatedAt = now
	m.alerts[id] = a
	return cloneAlert(a), nil
}

// ConfirmAlertsForReport marks every active alert raised by or linked to
// reportID as confirmed with the given confidence. Validity windows are
// untouched.
func (m *Memory) ConfirmAlertsForReport(_ context.Context, reportID string, confidence int, now time.Time) ([]domain.DisasterAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var confirmed []domain.DisasterAlert
	for id, a := range m.alerts {
		if !a.LinkedTo(reportID) || a.Status != domain.AlertActive {
			continue
		}
		a.ConfirmedBySystem = true
		a.AIConfidence = confidence
		a.UpdatedAt = now
		m.alerts[id] = a
		confirmed = append(confirmed, cloneAlert(a))
	}
	return confirmed, nil
}

// ListAlerts returns matching alerts, newest first.
func (m *Memory) ListAlerts(_ context.Context, f AlertFilter) ([]domain.DisasterAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := domain.CityKey(f.City)
	out := make([]domain.DisasterAlert, 0)
	for _, a := range m.alerts {
		if key != "" && domain.CityKey(a.City) != key {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if !f.Since.IsZero() && a.CreatedAt.Before(f.Since) {
			continue
		}
		out = append(out, cloneAlert(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *Memory) InsertReport(_ context.Context, r domain.RiskReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reports[r.ID] = cloneReport(r)
	return nil
}

func (m *Memory) GetReport(_ context.Context, id string) (domain.RiskReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.reports[id]
	if !ok {
		return domain.RiskReport{}, reportNotFound(id)
	}
	return cloneReport(r), nil
}

// UpdateReport replaces the stored report when its current status equals
// expect, and returns domain.ErrPersistenceConflict otherwise.
func (m *Memory) UpdateReport(_ context.Context, r domain.RiskReport, expect domain.ReportStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.reports[r.ID]
	if !ok {
		return reportNotFound(r.ID)
	}
	if current.Status != expect {
		return domain.ErrPersistenceConflict
	}
	m.reports[r.ID] = cloneReport(r)
	return nil
}

// CountSimilarReports counts reports for the same city and type created at
// or after since.
func (m *Memory) CountSimilarReports(_ context.Context, city string, t domain.DisasterType, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := domain.CityKey(city)
	n := 0
	for _, r := range m.reports {
		if r.RiskType == t && domain.CityKey(r.Location.City) == key && !r.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// ListReports returns matching reports, newest first.
func (m *Memory) ListReports(_ context.Context, f ReportFilter) ([]domain.RiskReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := domain.CityKey(f.City)
	out := make([]domain.RiskReport, 0)
	for _, r := range m.reports {
		if key != "" && domain.CityKey(r.Location.City) != key {
			continue
		}
		if f.RiskType != "" && r.RiskType != f.RiskType {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if !f.Since.IsZero() && r.CreatedAt.Before(f.Since) {
			continue
		}
		out = append(out, cloneReport(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *Memory) InsertSnapshot(_ context.Context, s domain.WeatherSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s.Alerts = append([]domain.WeatherFlag(nil), s.Alerts...)
	m.snapshots = append(m.snapshots, s)
	return nil
}

// ListSnapshots returns a city's snapshots, newest first.
func (m *Memory) ListSnapshots(_ context.Context, city string, limit int) ([]domain.WeatherSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := domain.CityKey(city)
	out := make([]domain.WeatherSnapshot, 0)
	for i := len(m.snapshots) - 1; i >= 0; i-- {
		s := m.snapshots[i]
		if domain.CityKey(s.Reading.City) != key {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// LatestSnapshot returns the most recent snapshot for a city.
func (m *Memory) LatestSnapshot(ctx context.Context, city string) (domain.WeatherSnapshot, error) {
	snaps, err := m.ListSnapshots(ctx, city, 1)
	if err != nil {
		return domain.WeatherSnapshot{}, err
	}
	if len(snaps) == 0 {
		return domain.WeatherSnapshot{}, &domain.NotFoundError{Kind: "snapshot", ID: domain.CityKey(city)}
	}
	return snaps[0], nil
}
