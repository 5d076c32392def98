// Package stats computes rolling-window statistics over alerts and reports
// with explicit grouping functions.
package stats

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/couchcryptid/disaster-alert-service/internal/domain"
	"github.com/couchcryptid/disaster-alert-service/internal/store"
	"github.com/jonboulle/clockwork"
	"github.com/samber/lo"
)

const (
	DefaultDays     = 7
	DefaultTopLimit = 10
)

// Source is the read side of the store.
type Source interface {
	ListAlerts(ctx context.Context, f store.AlertFilter) ([]domain.DisasterAlert, error)
	ListReports(ctx context.Context, f store.ReportFilter) ([]domain.RiskReport, error)
	LatestSnapshot(ctx context.Context, city string) (domain.WeatherSnapshot, error)
}

// TypeSeverityCount is one (disaster type, severity) group.
type TypeSeverityCount struct {
	DisasterType domain.DisasterType `json:"disaster_type"`
	Severity     domain.RiskLevel    `json:"severity"`
	Count        int                 `json:"count"`
	Cities       []string            `json:"cities"`
}

// AlertStats summarizes alerts created in a rolling window.
type AlertStats struct {
	Days           int                        `json:"days"`
	Since          time.Time                  `json:"since"`
	Total          int                        `json:"total"`
	ByTypeSeverity []TypeSeverityCount        `json:"by_type_severity"`
	ByStatus       map[domain.AlertStatus]int `json:"by_status"`
	UniqueCities   int                        `json:"unique_cities"`
}

// ResponseTimes summarizes report response times in minutes.
type ResponseTimes struct {
	Count int     `json:"count"`
	Avg   float64 `json:"avg"`
	Min   int     `json:"min"`
	Max   int     `json:"max"`
}

// ReportStats summarizes reports created in a rolling window.
type ReportStats struct {
	Days         int                         `json:"days"`
	Since        time.Time                   `json:"since"`
	Total        int                         `json:"total"`
	ByType       map[domain.DisasterType]int `json:"by_type"`
	ByLevel      map[string]int              `json:"by_level"`
	ByStatus     map[domain.ReportStatus]int `json:"by_status"`
	ResponseTime ResponseTimes               `json:"response_time"`
}

// CityStats summarizes one city.
type CityStats struct {
	City           string                      `json:"city"`
	Days           int                         `json:"days"`
	AlertsByType   map[domain.DisasterType]int `json:"alerts_by_type"`
	AlertsByLevel  map[string]int              `json:"alerts_by_level"`
	AlertsByStatus map[domain.AlertStatus]int  `json:"alerts_by_status"`
	Reports        int                         `json:"reports"`
	ActiveAlerts   []domain.DisasterAlert      `json:"active_alerts"`
	LatestWeather  *domain.WeatherSnapshot     `json:"latest_weather,omitempty"`
}

// CityRank is one row of the most affected cities.
type CityRank struct {
	City   string `json:"city"`
	Severe int    `json:"severe"`
	Total  int    `json:"total"`
}

// Service computes statistics from a Source.
type Service struct {
	src   Source
	clock clockwork.Clock
}

// New creates a Service. A nil clock uses real time.
func New(src Source, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{src: src, clock: clock}
}

// Alerts returns alert statistics over the last days days.
func (s *Service) Alerts(ctx context.Context, days int) (AlertStats, error) {
	days, since := s.window(days)
	alerts, err := s.src.ListAlerts(ctx, store.AlertFilter{Since: since})
	if err != nil {
		return AlertStats{}, fmt.Errorf("list alerts: %w", err)
	}
	out := SummarizeAlerts(alerts)
	out.Days, out.Since = days, since
	return out, nil
}

// Reports returns report statistics over the last days days.
func (s *Service) Reports(ctx context.Context, days int) (ReportStats, error) {
	days, since := s.window(days)
	reports, err := s.src.ListReports(ctx, store.ReportFilter{Since: since})
	if err != nil {
		return ReportStats{}, fmt.Errorf("list reports: %w", err)
	}
	out := SummarizeReports(reports)
	out.Days, out.Since = days, since
	return out, nil
}

// City returns statistics for one city over the last days days together
// with its currently active alerts and latest weather snapshot.
func (s *Service) City(ctx context.Context, city string, days int) (CityStats, error) {
	if city == "" {
		return CityStats{}, &domain.ValidationError{Fields: []string{"city"}}
	}
	days, since := s.window(days)
	alerts, err := s.src.ListAlerts(ctx, store.AlertFilter{City: city, Since: since})
	if err != nil {
		return CityStats{}, fmt.Errorf("list alerts: %w", err)
	}
	reports, err := s.src.ListReports(ctx, store.ReportFilter{City: city, Since: since})
	if err != nil {
		return CityStats{}, fmt.Errorf("list reports: %w", err)
	}
	active, err := s.src.ListAlerts(ctx, store.AlertFilter{City: city, Status: domain.AlertActive})
	if err != nil {
		return CityStats{}, fmt.Errorf("list active alerts: %w", err)
	}

	now := s.clock.Now()
	out := CityStats{
		City:           city,
		Days:           days,
		AlertsByType:   tally(alerts, func(a domain.DisasterAlert) domain.DisasterType { return a.DisasterType }),
		AlertsByLevel:  tally(alerts, func(a domain.DisasterAlert) string { return a.Severity.String() }),
		AlertsByStatus: tally(alerts, func(a domain.DisasterAlert) domain.AlertStatus { return a.Status }),
		Reports:        len(reports),
		ActiveAlerts:   lo.Filter(active, func(a domain.DisasterAlert, _ int) bool { return a.ActiveAt(now) }),
	}

	snap, err := s.src.LatestSnapshot(ctx, city)
	switch {
	case err == nil:
		out.LatestWeather = &snap
	case !domain.IsNotFound(err):
		return CityStats{}, fmt.Errorf("latest snapshot: %w", err)
	}
	return out, nil
}

// TopAffectedCities ranks cities by high and critical alerts created in the
// last days days, then by total alerts.
func (s *Service) TopAffectedCities(ctx context.Context, days, limit int) ([]CityRank, error) {
	_, since := s.window(days)
	alerts, err := s.src.ListAlerts(ctx, store.AlertFilter{Since: since})
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	if limit <= 0 {
		limit = DefaultTopLimit
	}
	return RankCities(alerts, limit), nil
}

func (s *Service) window(days int) (int, time.Time) {
	if days <= 0 {
		days = DefaultDays
	}
	return days, s.clock.Now().AddDate(0, 0, -days)
}

// SummarizeAlerts groups alerts by (type, severity) and by status.
func SummarizeAlerts(alerts []domain.DisasterAlert) AlertStats {
	type key struct {
		t domain.DisasterType
		s domain.RiskLevel
	}
	groups := lo.GroupBy(alerts, func(a domain.DisasterAlert) key { return key{a.DisasterType, a.Severity} })

	rows := make([]TypeSeverityCount, 0, len(groups))
	for k, group := range groups {
		cities := lo.Uniq(lo.Map(group, func(a domain.DisasterAlert, _ int) string { return domain.CityKey(a.City) }))
		slices.Sort(cities)
		rows = append(rows, TypeSeverityCount{DisasterType: k.t, Severity: k.s, Count: len(group), Cities: cities})
	}
	slices.SortFunc(rows, func(a, b TypeSeverityCount) int {
		return cmp.Or(
			cmp.Compare(b.Count, a.Count),
			cmp.Compare(b.Severity, a.Severity),
			cmp.Compare(a.DisasterType, b.DisasterType),
		)
	})

	return AlertStats{
		Total:          len(alerts),
		ByTypeSeverity: rows,
		ByStatus:       tally(alerts, func(a domain.DisasterAlert) domain.AlertStatus { return a.Status }),
		UniqueCities:   len(lo.UniqBy(alerts, func(a domain.DisasterAlert) string { return domain.CityKey(a.City) })),
	}
}

// SummarizeReports groups reports by type, level and status and summarizes
// the response times of reports that have one.
func SummarizeReports(reports []domain.RiskReport) ReportStats {
	out := ReportStats{
		Total:    len(reports),
		ByType:   tally(reports, func(r domain.RiskReport) domain.DisasterType { return r.RiskType }),
		ByLevel:  tally(reports, func(r domain.RiskReport) string { return r.RiskLevel.String() }),
		ByStatus: tally(reports, func(r domain.RiskReport) domain.ReportStatus { return r.Status }),
	}

	times := lo.FilterMap(reports, func(r domain.RiskReport, _ int) (int, bool) {
		if r.ResponseTimeMinutes == nil {
			return 0, false
		}
		return *r.ResponseTimeMinutes, true
	})
	if len(times) > 0 {
		out.ResponseTime = ResponseTimes{
			Count: len(times),
			Avg:   float64(lo.Sum(times)) / float64(len(times)),
			Min:   lo.Min(times),
			Max:   lo.Max(times),
		}
	}
	return out
}

// RankCities counts high and critical alerts per city and returns the top
// limit cities with at least one alert.
func RankCities(alerts []domain.DisasterAlert, limit int) []CityRank {
	byCity := lo.GroupBy(alerts, func(a domain.DisasterAlert) string { return domain.CityKey(a.City) })

	ranks := lo.MapToSlice(byCity, func(_ string, group []domain.DisasterAlert) CityRank {
		return CityRank{
			City:   group[0].City,
			Severe: lo.CountBy(group, func(a domain.DisasterAlert) bool { return a.Severity.AtLeast(domain.RiskHigh) }),
			Total:  len(group),
		}
	})
	slices.SortFunc(ranks, func(a, b CityRank) int {
		return cmp.Or(
			cmp.Compare(b.Severe, a.Severe),
			cmp.Compare(b.Total, a.Total),
			cmp.Compare(a.City, b.City),
		)
	})
	if limit > 0 && len(ranks) > limit {
		ranks = ranks[:limit]
	}
	return ranks
}

// tally counts items per key.
func tally[T any, K comparable](items []T, key func(T) K) map[K]int {
	return lo.MapValues(lo.GroupBy(items, key), func(group []T, _ K) int { return len(group) })
}
