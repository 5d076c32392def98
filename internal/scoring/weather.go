package scoring

import (
	"fmt"

	"github.com/couchcryptid/disaster-alert-service/internal/domain"
)

// weatherLane is the result of the numeric scoring lane.
type weatherLane struct {
	score      int
	flags      []domain.WeatherFlag
	factors    []string
	topType    domain.DisasterType
	topLevel   domain.RiskLevel
	confidence int
}

// scoreWeather applies threshold points and qualitative flags to the numeric
// fields of a signal. Absent fields contribute nothing.
func scoreWeather(s domain.ObservationSignal) weatherLane {
	temp := valueOr(s.Temperature, 0)
	rain := valueOr(s.RainfallMm3h, 0)
	wind := valueOr(s.WindSpeedKmh, 0)
	humidity := valueOr(s.Humidity, 0)

	var lane weatherLane

	if pts := temperaturePoints(temp); pts > 0 {
		lane.score += pts
		lane.factors = append(lane.factors, fmt.Sprintf("temperature %.0f°C (+%d)", temp, pts))
	}
	if pts := rainfallPoints(rain); pts > 0 {
		lane.score += pts
		lane.factors = append(lane.factors, fmt.Sprintf("rainfall %.0fmm in 3h (+%d)", rain, pts))
	}
	if pts := windPoints(wind); pts > 0 {
		lane.score += pts
		lane.factors = append(lane.factors, fmt.Sprintf("wind %.0fkm/h (+%d)", wind, pts))
	}

	if temp > 40 {
		sev := domain.RiskMedium
		switch {
		case temp > 45:
			sev = domain.RiskCritical
		case temp > 42:
			sev = domain.RiskHigh
		}
		lane.flags = append(lane.flags, domain.WeatherFlag{
			Type: domain.DisasterHeatwave, Severity: sev,
			Message: fmt.Sprintf("Extreme heat warning: %.0f°C", temp),
		})
	}
	if rain > 50 {
		sev := domain.RiskHigh
		if rain > 100 {
			sev = domain.RiskCritical
		}
		lane.flags = append(lane.flags, domain.WeatherFlag{
			Type: domain.DisasterFlood, Severity: sev,
			Message: fmt.Sprintf("Flood risk: %.0fmm rain in 3 hours", rain),
		})
	}
	if wind > 60 {
		sev := domain.RiskHigh
		if wind > 80 {
			sev = domain.RiskCritical
		}
		lane.flags = append(lane.flags, domain.WeatherFlag{
			Type: domain.DisasterCyclone, Severity: sev,
			Message: fmt.Sprintf("Cyclone warning: %.0fkm/h winds", wind),
		})
	}
	if s.VisibilityKm != nil && *s.VisibilityKm < 1 {
		lane.flags = append(lane.flags, domain.WeatherFlag{
			Type: domain.DisasterOther, Severity: domain.RiskMedium,
			Message: fmt.Sprintf("Low visibility: %.1fkm", *s.VisibilityKm),
		})
	}
	if humidity > 85 && temp > 35 {
		lane.flags = append(lane.flags, domain.WeatherFlag{
			Type: domain.DisasterHeatwave, Severity: domain.RiskMedium,
			Message: fmt.Sprintf("High heat index: %.0f°C at %.0f%% humidity", temp, humidity),
		})
	}

	lane.topType = domain.DisasterNone
	lane.topLevel = domain.RiskVeryLow
	for _, f := range lane.flags {
		switch f.Severity {
		case domain.RiskCritical:
			lane.score += 20
		case domain.RiskHigh:
			lane.score += 10
		}
		if f.Severity > lane.topLevel {
			lane.topLevel = f.Severity
			lane.topType = f.Type
		}
		lane.factors = append(lane.factors, fmt.Sprintf("%s: %s", f.Type, f.Message))
	}
	lane.score = clamp(lane.score, 0, 100)
	lane.confidence = flagConfidence(lane.topLevel)
	return lane
}

func temperaturePoints(t float64) int {
	switch {
	case t > 45:
		return 30
	case t > 42:
		return 25
	case t > 40:
		return 20
	case t > 38:
		return 10
	}
	return 0
}

func rainfallPoints(mm float64) int {
	switch {
	case mm > 100:
		return 30
	case mm > 50:
		return 20
	case mm > 20:
		return 10
	}
	return 0
}

func windPoints(kmh float64) int {
	switch {
	case kmh > 80:
		return 20
	case kmh > 60:
		return 15
	case kmh > 40:
		return 5
	}
	return 0
}

func flagConfidence(top domain.RiskLevel) int {
	switch top {
	case domain.RiskCritical:
		return 95
	case domain.RiskHigh:
		return 85
	case domain.RiskMedium:
		return 70
	}
	return 50
}

func valueOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
