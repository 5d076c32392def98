// Package store persists alerts, risk reports, and weather snapshots.
//
// Two implementations share one method set: Memory for tests and single-node
// runs, and Postgres for durable deployments. Both provide the atomic
// insert-if-no-active-duplicate primitive that alert aggregation relies on.
package store

import (
	"context"
	"time"

	"github.com/couchcryptid/disaster-alert-service/internal/domain"
)

// Store is the full method set shared by Memory and Postgres.
type Store interface {
	InsertActiveAlert(ctx context.Context, a domain.DisasterAlert) ([]domain.DisasterAlert, error)
	ActiveAlert(ctx context.Context, city string, t domain.DisasterType, now time.Time) (domain.DisasterAlert, error)
	GetAlert(ctx context.Context, id string) (domain.DisasterAlert, error)
	RaiseAlertConfidence(ctx context.Context, id string, confidence int, now time.Time) (domain.DisasterAlert, bool, error)
	EscalateAlert(ctx context.Context, id string, e Escalation, now time.Time) (domain.DisasterAlert, bool, error)
	LinkReport(ctx context.Context, id, reportID string, now time.Time) (domain.DisasterAlert, error)
	ExpireAlerts(ctx context.Context, now time.Time) ([]domain.DisasterAlert, error)
	CancelAlert(ctx context.Context, id string, now time.Time) (domain.DisasterAlert, error)
	ConfirmAlertsForReport(ctx context.Context, reportID string, confidence int, now time.Time) ([]domain.DisasterAlert, error)
	ListAlerts(ctx context.Context, f AlertFilter) ([]domain.DisasterAlert, error)

	InsertReport(ctx context.Context, r domain.RiskReport) error
	GetReport(ctx context.Context, id string) (domain.RiskReport, error)
	UpdateReport(ctx context.Context, r domain.RiskReport, expect domain.ReportStatus) error
	CountSimilarReports(ctx context.Context, city string, t domain.DisasterType, since time.Time) (int, error)
	ListReports(ctx context.Context, f ReportFilter) ([]domain.RiskReport, error)

	InsertSnapshot(ctx context.Context, s domain.WeatherSnapshot) error
	ListSnapshots(ctx context.Context, city string, limit int) ([]domain.WeatherSnapshot, error)
	LatestSnapshot(ctx context.Context, city string) (domain.WeatherSnapshot, error)
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*Postgres)(nil)
)

// AlertFilter narrows ListAlerts. Zero values mean "any".
type AlertFilter struct {
	City   string
	Status domain.AlertStatus
	Since  time.Time
	Limit  int
}

// Escalation raises an active alert from severity From to To. It applies
// only while the stored severity still equals From.
type Escalation struct {
	From         domain.RiskLevel
	To           domain.RiskLevel
	Message      string
	Instructions []string
}

// ReportFilter narrows ListReports. Zero values mean "any".
type ReportFilter struct {
	City     string
	RiskType domain.DisasterType
	Status   domain.ReportStatus
	Since    time.Time
	Limit    int
}

func alertNotFound(id string) error {
	return &domain.NotFoundError{Kind: "alert", ID: id}
}

func reportNotFound(id string) error {
	return &domain.NotFoundError{Kind: "report", ID: id}
}

func cloneAlert(a domain.DisasterAlert) domain.DisasterAlert {
	a.Instructions = append([]string(nil), a.Instructions...)
	a.LinkedReports = append([]string(nil), a.LinkedReports...)
	if a.Coordinates != nil {
		c := *a.Coordinates
		a.Coordinates = &c
	}
	return a
}

func cloneReport(r domain.RiskReport) domain.RiskReport {
	r.Evidence = append([]string(nil), r.Evidence...)
	r.ImmediateActionsTaken = append([]string(nil), r.ImmediateActionsTaken...)
	r.HelpNeeded = append([]string(nil), r.HelpNeeded...)
	return r
}
