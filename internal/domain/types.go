package domain

import (
	"fmt"
	"strings"
)

// RiskLevel is the ordered severity classification shared by assessments,
// alerts, and reports.
type RiskLevel int

const (
	RiskVeryLow RiskLevel = iota
	RiskLow
	RiskMedium
	RiskHigh
	RiskCritical
)

var riskLevelNames = map[RiskLevel]string{
	RiskVeryLow:  "very-low",
	RiskLow:      "low",
	RiskMedium:   "medium",
	RiskHigh:     "high",
	RiskCritical: "critical",
}

func (l RiskLevel) String() string {
	if name, ok := riskLevelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("RiskLevel(%d)", int(l))
}

// AtLeast reports whether l is at or above other.
func (l RiskLevel) AtLeast(other RiskLevel) bool {
	return l >= other
}

// Alerting returns the level used for downstream alerting, where very-low is
// treated as low.
func (l RiskLevel) Alerting() RiskLevel {
	if l < RiskLow {
		return RiskLow
	}
	return l
}

// ParseRiskLevel parses a level name. "severe" is an alias for critical and
// "very_low" for very-low.
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "very-low", "very_low", "verylow":
		return RiskVeryLow, nil
	case "low":
		return RiskLow, nil
	case "medium":
		return RiskMedium, nil
	case "high":
		return RiskHigh, nil
	case "critical", "severe":
		return RiskCritical, nil
	default:
		return RiskVeryLow, fmt.Errorf("unknown risk level %q", s)
	}
}

func (l RiskLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *RiskLevel) UnmarshalText(b []byte) error {
	parsed, err := ParseRiskLevel(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// DisasterType is the hazard category of an assessment or alert.
type DisasterType string

const (
	DisasterFlood      DisasterType = "flood"
	DisasterCyclone    DisasterType = "cyclone"
	DisasterHeatwave   DisasterType = "heatwave"
	DisasterEarthquake DisasterType = "earthquake"
	DisasterLandslide  DisasterType = "landslide"
	DisasterWildfire   DisasterType = "wildfire"
	DisasterTsunami    DisasterType = "tsunami"
	DisasterDrought    DisasterType = "drought"
	DisasterOther      DisasterType = "other"
	DisasterNone       DisasterType = "none"
)

// ParseDisasterType validates a disaster type name.
func ParseDisasterType(s string) (DisasterType, error) {
	t := DisasterType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case DisasterFlood, DisasterCyclone, DisasterHeatwave, DisasterEarthquake,
		DisasterLandslide, DisasterWildfire, DisasterTsunami, DisasterDrought,
		DisasterOther, DisasterNone:
		return t, nil
	}
	return "", fmt.Errorf("unknown disaster type %q", s)
}

// SignalSource identifies where an observation signal came from.
type SignalSource string

const (
	SignalWeather SignalSource = "weather"
	SignalReport  SignalSource = "report"
	SignalMessage SignalSource = "message"
)

// AlertSource is the provenance of a DisasterAlert.
type AlertSource string

const (
	SourceWeatherAPI   AlertSource = "weather_api"
	SourceAIPrediction AlertSource = "ai_prediction"
	SourceUserReport   AlertSource = "user_report"
	SourceGovernment   AlertSource = "government"
)

// AlertStatus is the lifecycle state of a DisasterAlert.
type AlertStatus string

const (
	AlertActive    AlertStatus = "active"
	AlertExpired   AlertStatus = "expired"
	AlertCancelled AlertStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s AlertStatus) Terminal() bool {
	return s == AlertExpired || s == AlertCancelled
}

// ReportStatus is the handling state of a RiskReport.
type ReportStatus string

const (
	ReportPending    ReportStatus = "pending"
	ReportVerified   ReportStatus = "verified"
	ReportResponded  ReportStatus = "responded"
	ReportResolved   ReportStatus = "resolved"
	ReportFalseAlarm ReportStatus = "false_alarm"
)

var reportTransitions = map[ReportStatus][]ReportStatus{
	ReportPending:   {ReportVerified, ReportResponded, ReportResolved, ReportFalseAlarm},
	ReportVerified:  {ReportResponded, ReportResolved},
	ReportResponded: {ReportResolved},
}

// CanTransition reports whether a report may advance from s to next.
func (s ReportStatus) CanTransition(next ReportStatus) bool {
	for _, allowed := range reportTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ParseReportStatus validates a report status name.
func ParseReportStatus(s string) (ReportStatus, error) {
	st := ReportStatus(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case ReportPending, ReportVerified, ReportResponded, ReportResolved, ReportFalseAlarm:
		return st, nil
	}
	return "", fmt.Errorf("unknown report status %q", s)
}

// PropertyDamage grades reported property damage.
type PropertyDamage string

const (
	DamageNone         PropertyDamage = "none"
	DamageMinor        PropertyDamage = "minor"
	DamageModerate     PropertyDamage = "moderate"
	DamageSevere       PropertyDamage = "severe"
	DamageCatastrophic PropertyDamage = "catastrophic"
)

// ParsePropertyDamage validates a damage grade. Empty input means none.
func ParsePropertyDamage(s string) (PropertyDamage, error) {
	d := PropertyDamage(strings.ToLower(strings.TrimSpace(s)))
	switch d {
	case "":
		return DamageNone, nil
	case DamageNone, DamageMinor, DamageModerate, DamageSevere, DamageCatastrophic:
		return d, nil
	}
	return "", fmt.Errorf("unknown property damage %q", s)
}

// Coordinates is a WGS-84 latitude/longitude pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}
