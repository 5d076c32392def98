package domain

import (
	"context"
	"strings"
	"time"
)

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// OutputEvent is the serialized form destined for the sink topic.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// ObservationSignal is one normalized observation fed into scoring. Numeric
// fields are nil when the input carried no such measurement.
type ObservationSignal struct {
	Source       SignalSource `json:"source"`
	Temperature  *float64     `json:"temperature,omitempty"`
	Humidity     *float64     `json:"humidity,omitempty"`
	WindSpeedKmh *float64     `json:"wind_speed_kmh,omitempty"`
	RainfallMm3h *float64     `json:"rainfall_mm_3h,omitempty"`
	VisibilityKm *float64     `json:"visibility_km,omitempty"`
	FreeText     string       `json:"free_text,omitempty"`
	LocationCity string       `json:"location_city"`
	Coordinates  *Coordinates `json:"coordinates,omitempty"`
	ObservedAt   time.Time    `json:"observed_at"`
}

// HasWeather reports whether the signal carries any numeric measurement.
func (s ObservationSignal) HasWeather() bool {
	return s.Temperature != nil || s.Humidity != nil || s.WindSpeedKmh != nil ||
		s.RainfallMm3h != nil || s.VisibilityKm != nil
}

// HasText reports whether the signal carries free text.
func (s ObservationSignal) HasText() bool {
	return strings.TrimSpace(s.FreeText) != ""
}

// WeatherFlag is a qualitative condition raised by the numeric scoring lane.
type WeatherFlag struct {
	Type     DisasterType `json:"type"`
	Severity RiskLevel    `json:"severity"`
	Message  string       `json:"message"`
}

// RiskAssessment is the immutable output of one scoring call.
type RiskAssessment struct {
	City                string        `json:"city"`
	RiskLevel           RiskLevel     `json:"risk_level"`
	RiskScore           int           `json:"risk_score"`
	DisasterType        DisasterType  `json:"disaster_type"`
	Confidence          int           `json:"confidence"`
	ContributingFactors []string      `json:"contributing_factors"`
	Message             string        `json:"message"`
	Flags               []WeatherFlag `json:"flags,omitempty"`
	Suggestions         []string      `json:"suggestions,omitempty"`
	AssessedAt          time.Time     `json:"assessed_at"`
}

// DisasterAlert is a persisted, time-bounded warning for a city and disaster
// type.
type DisasterAlert struct {
	ID                string       `json:"id"`
	City              string       `json:"city"`
	DisasterType      DisasterType `json:"disaster_type"`
	Severity          RiskLevel    `json:"severity"`
	Message           string       `json:"message"`
	Source            AlertSource  `json:"source"`
	AffectedArea      string       `json:"affected_area"`
	Coordinates       *Coordinates `json:"coordinates,omitempty"`
	ValidFrom         time.Time    `json:"valid_from"`
	ValidUntil        time.Time    `json:"valid_until"`
	Instructions      []string     `json:"instructions"`
	Status            AlertStatus  `json:"status"`
	ReportedBy        string       `json:"reported_by,omitempty"`
	LinkedReports     []string     `json:"linked_reports,omitempty"`
	ConfirmedBySystem bool         `json:"confirmed_by_system"`
	AIConfidence      int          `json:"ai_confidence"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// ActiveAt reports whether the alert is active and unexpired at t.
func (a DisasterAlert) ActiveAt(t time.Time) bool {
	return a.Status == AlertActive && !t.After(a.ValidUntil)
}

// LinkedTo reports whether reportID raised the alert or was later attached
// to it.
func (a DisasterAlert) LinkedTo(reportID string) bool {
	if reportID == "" {
		return false
	}
	if a.ReportedBy == reportID {
		return true
	}
	for _, id := range a.LinkedReports {
		if id == reportID {
			return true
		}
	}
	return false
}

// ReportLocation is where a RiskReport was observed.
type ReportLocation struct {
	City        string       `json:"city"`
	State       string       `json:"state"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

// AIAnalysis is computed once when a report is submitted.
type AIAnalysis struct {
	Confidence          int  `json:"confidence"`
	PatternMatched      bool `json:"pattern_matched"`
	SimilarReportsCount int  `json:"similar_reports_count"`
}

// RiskReport is a user-submitted observation.
type RiskReport struct {
	ID                    string         `json:"id"`
	UserID                string         `json:"user_id"`
	Location              ReportLocation `json:"location"`
	RiskType              DisasterType   `json:"risk_type"`
	RiskLevel             RiskLevel      `json:"risk_level"`
	Description           string         `json:"description"`
	Evidence              []string       `json:"evidence"`
	PeopleAffected        int            `json:"people_affected"`
	PropertyDamage        PropertyDamage `json:"property_damage"`
	ImmediateActionsTaken []string       `json:"immediate_actions_taken"`
	HelpNeeded            []string       `json:"help_needed"`
	ContactNumber         string         `json:"contact_number,omitempty"`
	Status                ReportStatus   `json:"status"`
	VerifiedBy            string         `json:"verified_by,omitempty"`
	VerificationTime      *time.Time     `json:"verification_time,omitempty"`
	ResponseTimeMinutes   *int           `json:"response_time_minutes,omitempty"`
	ResolutionTime        *time.Time     `json:"resolution_time,omitempty"`
	AIAnalysis            AIAnalysis     `json:"ai_analysis"`
	CreatedAt             time.Time      `json:"created_at"`
}

// WeatherReading is the normalized content of one weather payload.
type WeatherReading struct {
	City         string       `json:"city"`
	Temperature  float64      `json:"temperature"`
	FeelsLike    float64      `json:"feels_like"`
	Humidity     float64      `json:"humidity"`
	Pressure     float64      `json:"pressure"`
	WindSpeedKmh float64      `json:"wind_speed_kmh"`
	VisibilityKm float64      `json:"visibility_km"`
	RainfallMm3h float64      `json:"rainfall_mm_3h"`
	Description  string       `json:"description"`
	Icon         string       `json:"icon"`
	Coordinates  *Coordinates `json:"coordinates,omitempty"`
}

// WeatherSnapshot is an append-only record of one normalized observation
// together with the flags and score derived from it.
type WeatherSnapshot struct {
	ID        string         `json:"id"`
	Reading   WeatherReading `json:"reading"`
	Alerts    []WeatherFlag  `json:"alerts"`
	RiskScore int            `json:"risk_score"`
	RiskLevel RiskLevel      `json:"risk_level"`
	Simulated bool           `json:"simulated"`
	Timestamp time.Time      `json:"timestamp"`
}
