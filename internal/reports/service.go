// Package reports handles user-submitted risk reports: submission with a
// one-time confidence analysis, forward-only status updates, and the alert
// confirmation that follows verification.
package reports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/disaster-alert-service/internal/alerting"
	"github.com/couchcryptid/disaster-alert-service/internal/domain"
	"github.com/couchcryptid/disaster-alert-service/internal/notify"
	"github.com/couchcryptid/disaster-alert-service/internal/scoring"
	"github.com/couchcryptid/disaster-alert-service/internal/store"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	similarWindow     = 24 * time.Hour
	baseConfidence    = 70
	evidenceBonus     = 15
	crowdBonus        = 10
	crowdThreshold    = 10
	maxConfidence     = 95
	maxMessageExcerpt = 100
)

// Store is the report persistence the Service needs.
type Store interface {
	InsertReport(ctx context.Context, r domain.RiskReport) error
	GetReport(ctx context.Context, id string) (domain.RiskReport, error)
	UpdateReport(ctx context.Context, r domain.RiskReport, expect domain.ReportStatus) error
	CountSimilarReports(ctx context.Context, city string, t domain.DisasterType, since time.Time) (int, error)
	ListReports(ctx context.Context, f store.ReportFilter) ([]domain.RiskReport, error)
}

// Aggregator creates or reuses alerts.
type Aggregator interface {
	Aggregate(ctx context.Context, req alerting.Request) (alerting.Decision, error)
}

// Confirmer confirms alerts linked to a verified report.
type Confirmer interface {
	ConfirmFromReport(ctx context.Context, reportID string) ([]domain.DisasterAlert, error)
}

// Publisher announces alerts and report events.
type Publisher interface {
	Publish(ctx context.Context, alert domain.DisasterAlert) (bool, error)
	PublishReport(ctx context.Context, event notify.EventType, report domain.RiskReport) error
}

// SubmitResult is the outcome of Submit.
type SubmitResult struct {
	Report   domain.RiskReport
	Decision alerting.Decision
}

// Service implements the report workflow.
type Service struct {
	store      Store
	aggregator Aggregator
	confirmer  Confirmer
	publisher  Publisher
	clock      clockwork.Clock
	logger     *slog.Logger
}

// NewService creates a Service. A nil clock uses real time.
func NewService(s Store, agg Aggregator, confirmer Confirmer, pub Publisher, clock clockwork.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		store:      s,
		aggregator: agg,
		confirmer:  confirmer,
		publisher:  pub,
		clock:      clock,
		logger:     logger,
	}
}

// Submit validates and persists a report. Reports at high level or above
// create or reuse a user_report alert for the city and type.
func (s *Service) Submit(ctx context.Context, sub domain.ReportSubmission) (SubmitResult, error) {
	riskType, level, damage, err := sub.Validate()
	if err != nil {
		return SubmitResult{}, err
	}

	now := s.clock.Now()
	city := strings.TrimSpace(sub.City)
	similar, err := s.store.CountSimilarReports(ctx, city, riskType, now.Add(-similarWindow))
	if err != nil {
		return SubmitResult{}, fmt.Errorf("count similar reports: %w", err)
	}

	userID := sub.UserID
	if userID == "" {
		userID = "anonymous"
	}
	report := domain.RiskReport{
		ID:     uuid.NewString(),
		UserID: userID,
		Location: domain.ReportLocation{
			City:        city,
			State:       domain.StateForCity(city),
			Coordinates: sub.Coordinates,
		},
		RiskType:              riskType,
		RiskLevel:             level,
		Description:           strings.TrimSpace(sub.Description),
		Evidence:              nonNil(sub.Evidence),
		PeopleAffected:        sub.PeopleAffected,
		PropertyDamage:        damage,
		ImmediateActionsTaken: nonNil(sub.ImmediateActionsTaken),
		HelpNeeded:            nonNil(sub.HelpNeeded),
		ContactNumber:         sub.ContactNumber,
		Status:                domain.ReportPending,
		AIAnalysis: domain.AIAnalysis{
			Confidence:          Confidence(sub),
			PatternMatched:      similar > 0,
			SimilarReportsCount: similar,
		},
		CreatedAt: now,
	}
	if err := s.store.InsertReport(ctx, report); err != nil {
		return SubmitResult{}, fmt.Errorf("insert report: %w", err)
	}
	s.logger.Info("risk report submitted",
		"report_id", report.ID,
		"city", city,
		"risk_type", riskType,
		"risk_level", level.String(),
		"similar_reports", similar,
	)
	s.announce(ctx, notify.EventReportCreated, report)

	result := SubmitResult{Report: report, Decision: alerting.Decision{Action: alerting.ActionNone}}
	if level.Alerting() < domain.RiskHigh {
		return result, nil
	}

	decision, err := s.aggregator.Aggregate(ctx, alerting.Request{
		City:        city,
		Assessment:  Assessment(report),
		Source:      domain.SourceUserReport,
		ReportedBy:  report.ID,
		Coordinates: sub.Coordinates,
	})
	if err != nil {
		return result, fmt.Errorf("aggregate report alert: %w", err)
	}
	result.Decision = decision
	for _, stale := range decision.Expired {
		s.publish(ctx, stale)
	}
	if decision.Changed() {
		s.publish(ctx, decision.Alert)
	}
	return result, nil
}

// UpdateStatus advances a report. Verification records the verifier and
// response time and confirms the report's alerts; resolution records the
// resolution time.
func (s *Service) UpdateStatus(ctx context.Context, id string, next domain.ReportStatus, actor string) (domain.RiskReport, error) {
	r, err := s.store.GetReport(ctx, id)
	if err != nil {
		return domain.RiskReport{}, err
	}
	if !r.Status.CanTransition(next) {
		return r, fmt.Errorf("report %s: %s to %s: %w", id, r.Status, next, domain.ErrInvalidTransition)
	}

	now := s.clock.Now()
	prev := r.Status
	r.Status = next
	switch next {
	case domain.ReportVerified:
		if actor == "" {
			actor = "admin"
		}
		r.VerifiedBy = actor
		r.VerificationTime = &now
		setResponseTime(&r, now)
	case domain.ReportResponded:
		setResponseTime(&r, now)
	case domain.ReportResolved:
		r.ResolutionTime = &now
		setResponseTime(&r, now)
	}

	if err := s.store.UpdateReport(ctx, r, prev); err != nil {
		if errors.Is(err, domain.ErrPersistenceConflict) {
			return r, fmt.Errorf("report %s changed concurrently: %w", id, domain.ErrInvalidTransition)
		}
		return r, fmt.Errorf("update report: %w", err)
	}
	s.logger.Info("risk report status updated", "report_id", id, "from", prev, "to", next)
	s.announce(ctx, notify.EventReportUpdated, r)

	if next == domain.ReportVerified {
		confirmed, err := s.confirmer.ConfirmFromReport(ctx, id)
		if err != nil {
			return r, err
		}
		for _, a := range confirmed {
			s.publish(ctx, a)
		}
	}
	return r, nil
}

// Verify is UpdateStatus to verified.
func (s *Service) Verify(ctx context.Context, id, verifiedBy string) (domain.RiskReport, error) {
	return s.UpdateStatus(ctx, id, domain.ReportVerified, verifiedBy)
}

// Get returns one report.
func (s *Service) Get(ctx context.Context, id string) (domain.RiskReport, error) {
	return s.store.GetReport(ctx, id)
}

// ListByCity returns a city's reports from the last days days, newest first.
func (s *Service) ListByCity(ctx context.Context, city string, days int) ([]domain.RiskReport, error) {
	f := store.ReportFilter{City: city}
	if days > 0 {
		f.Since = s.clock.Now().AddDate(0, 0, -days)
	}
	return s.store.ListReports(ctx, f)
}

// Confidence is the one-time confidence for a submission: a base of 70,
// +15 with evidence, +10 when more than ten people are affected, capped at 95.
func Confidence(sub domain.ReportSubmission) int {
	c := baseConfidence
	if len(sub.Evidence) > 0 {
		c += evidenceBonus
	}
	if sub.PeopleAffected > crowdThreshold {
		c += crowdBonus
	}
	return min(c, maxConfidence)
}

// Assessment derives the assessment a report contributes to aggregation.
func Assessment(r domain.RiskReport) domain.RiskAssessment {
	excerpt := r.Description
	if len([]rune(excerpt)) > maxMessageExcerpt {
		excerpt = string([]rune(excerpt)[:maxMessageExcerpt]) + "..."
	}
	return domain.RiskAssessment{
		City:         r.Location.City,
		RiskLevel:    r.RiskLevel,
		RiskScore:    scoreForLevel(r.RiskLevel),
		DisasterType: r.RiskType,
		Confidence:   r.AIAnalysis.Confidence,
		ContributingFactors: []string{
			fmt.Sprintf("user report %s: %s", r.ID, excerpt),
		},
		Message:     fmt.Sprintf("User-reported %s in %s: %s", r.RiskType, r.Location.City, excerpt),
		Suggestions: scoring.Suggestions(r.RiskLevel, r.RiskType),
		AssessedAt:  r.CreatedAt,
	}
}

// scoreForLevel returns the lower bound of the level's score band.
func scoreForLevel(level domain.RiskLevel) int {
	switch level {
	case domain.RiskCritical:
		return 80
	case domain.RiskHigh:
		return 60
	case domain.RiskMedium:
		return 40
	case domain.RiskLow:
		return 20
	}
	return 0
}

func setResponseTime(r *domain.RiskReport, now time.Time) {
	if r.ResponseTimeMinutes != nil {
		return
	}
	minutes := int(now.Sub(r.CreatedAt).Minutes())
	r.ResponseTimeMinutes = &minutes
}

func (s *Service) announce(ctx context.Context, event notify.EventType, r domain.RiskReport) {
	if err := s.publisher.PublishReport(ctx, event, r); err != nil {
		s.logger.Warn("report notification failed", "report_id", r.ID, "event", event, "error", err)
	}
}

func (s *Service) publish(ctx context.Context, a domain.DisasterAlert) {
	if _, err := s.publisher.Publish(ctx, a); err != nil {
		s.logger.Warn("alert notification failed", "alert_id", a.ID, "error", err)
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
