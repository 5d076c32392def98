package domain

import "strings"

// ReportSubmission is the accepted schema for a new RiskReport.
type ReportSubmission struct {
	UserID                string       `json:"user_id"`
	City                  string       `json:"city"`
	Coordinates           *Coordinates `json:"coordinates,omitempty"`
	RiskType              string       `json:"risk_type"`
	RiskLevel             string       `json:"risk_level"`
	Description           string       `json:"description"`
	Evidence              []string     `json:"evidence,omitempty"`
	PeopleAffected        int          `json:"people_affected,omitempty"`
	PropertyDamage        string       `json:"property_damage,omitempty"`
	ImmediateActionsTaken []string     `json:"immediate_actions_taken,omitempty"`
	HelpNeeded            []string     `json:"help_needed,omitempty"`
	ContactNumber         string       `json:"contact_number,omitempty"`
}

// Validate checks required fields and enum values and returns the parsed
// enums. All missing required fields are reported together.
func (s ReportSubmission) Validate() (DisasterType, RiskLevel, PropertyDamage, error) {
	var missing []string
	if strings.TrimSpace(s.City) == "" {
		missing = append(missing, "city")
	}
	if strings.TrimSpace(s.RiskType) == "" {
		missing = append(missing, "riskType")
	}
	if strings.TrimSpace(s.RiskLevel) == "" {
		missing = append(missing, "riskLevel")
	}
	if strings.TrimSpace(s.Description) == "" {
		missing = append(missing, "description")
	}
	if len(missing) > 0 {
		return "", 0, "", &ValidationError{Fields: missing}
	}

	riskType, err := ParseDisasterType(s.RiskType)
	if err != nil {
		return "", 0, "", &ValidationError{Fields: []string{"riskType"}, Reason: err.Error()}
	}
	level, err := ParseRiskLevel(s.RiskLevel)
	if err != nil {
		return "", 0, "", &ValidationError{Fields: []string{"riskLevel"}, Reason: err.Error()}
	}
	damage, err := ParsePropertyDamage(s.PropertyDamage)
	if err != nil {
		return "", 0, "", &ValidationError{Fields: []string{"propertyDamage"}, Reason: err.Error()}
	}
	if s.PeopleAffected < 0 {
		return "", 0, "", &ValidationError{Fields: []string{"peopleAffected"}, Reason: "must not be negative"}
	}
	return riskType, level, damage, nil
}
