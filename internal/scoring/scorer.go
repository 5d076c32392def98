package scoring

import (
	"fmt"
	"strings"

	"github.com/couchcryptid/disaster-alert-service/internal/domain"
)

// Scorer maps observation signals to risk assessments. It is safe for
// concurrent use; the tables are never mutated after construction.
type Scorer struct {
	tables Tables
}

// New creates a Scorer over the given keyword tables.
func New(tables Tables) *Scorer {
	return &Scorer{tables: tables.normalized()}
}

// LevelForScore bands a 0-100 score.
func LevelForScore(score int) domain.RiskLevel {
	switch {
	case score >= 80:
		return domain.RiskCritical
	case score >= 60:
		return domain.RiskHigh
	case score >= 40:
		return domain.RiskMedium
	case score >= 20:
		return domain.RiskLow
	}
	return domain.RiskVeryLow
}

// Score assesses a signal. When the signal carries no numeric fields, the
// most recent prior signal with weather supplies the numeric lane. Scoring
// never fails: absent fields contribute nothing.
func (s *Scorer) Score(sig domain.ObservationSignal, prior ...domain.ObservationSignal) domain.RiskAssessment {
	a := domain.RiskAssessment{
		City:         sig.LocationCity,
		DisasterType: domain.DisasterNone,
		AssessedAt:   sig.ObservedAt,
	}

	weatherSig, hasWeather := sig, sig.HasWeather()
	if !hasWeather {
		weatherSig, hasWeather = latestWeather(prior)
	}

	var (
		score     int
		level     = domain.RiskVeryLow
		wConf     int
		weatherTy = domain.DisasterNone
	)
	if hasWeather {
		w := scoreWeather(weatherSig)
		score += w.score
		level = w.topLevel
		weatherTy = w.topType
		wConf = w.confidence
		a.Flags = w.flags
		a.ContributingFactors = append(a.ContributingFactors, w.factors...)
	}

	var (
		kConf     int
		keywordTy = domain.DisasterNone
	)
	if sig.HasText() {
		k := scoreText(sig.FreeText, s.tables)
		score += k.score
		keywordTy = k.disaster
		kConf = k.confidence
		a.ContributingFactors = append(a.ContributingFactors, k.factors...)
	}

	a.RiskScore = clamp(score, 0, 100)
	if band := LevelForScore(a.RiskScore); band > level {
		level = band
	}
	a.RiskLevel = level

	switch {
	case weatherTy != domain.DisasterNone && weatherTy == keywordTy:
		a.DisasterType = weatherTy
		a.Confidence = max(wConf, kConf)
	case weatherTy != domain.DisasterNone:
		a.DisasterType = weatherTy
		a.Confidence = wConf
	case keywordTy != domain.DisasterNone:
		a.DisasterType = keywordTy
		a.Confidence = kConf
	default:
		a.Confidence = wConf
		if level >= domain.RiskMedium {
			a.DisasterType = domain.DisasterOther
		}
	}
	if a.Confidence == 0 {
		a.Confidence = 50
	}

	if a.ContributingFactors == nil {
		a.ContributingFactors = []string{}
	}
	a.Message = RiskMessage(a.RiskLevel, a.DisasterType, sig.LocationCity)
	a.Suggestions = Suggestions(a.RiskLevel, a.DisasterType)
	return a
}

func latestWeather(prior []domain.ObservationSignal) (domain.ObservationSignal, bool) {
	var (
		best  domain.ObservationSignal
		found bool
	)
	for _, p := range prior {
		if !p.HasWeather() {
			continue
		}
		if !found || p.ObservedAt.After(best.ObservedAt) {
			best, found = p, true
		}
	}
	return best, found
}

// RiskMessage renders the human-readable summary of an assessment.
func RiskMessage(level domain.RiskLevel, t domain.DisasterType, city string) string {
	if city == "" {
		city = "your area"
	}
	name := string(t)
	if t == domain.DisasterNone || t == "" {
		name = "weather"
	}
	switch level {
	case domain.RiskCritical:
		return fmt.Sprintf("CRITICAL %s RISK detected in %s! Immediate action required.", strings.ToUpper(name), city)
	case domain.RiskHigh:
		return fmt.Sprintf("HIGH %s risk in %s. Take precautions immediately.", name, city)
	case domain.RiskMedium:
		return fmt.Sprintf("Moderate %s risk in %s. Stay alert and monitor updates.", name, city)
	}
	return fmt.Sprintf("Low risk in %s. Normal conditions.", city)
}
