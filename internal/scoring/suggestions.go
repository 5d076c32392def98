package scoring

import "github.com/couchcryptid/disaster-alert-service/internal/domain"

const maxSuggestions = 6

var typeSuggestions = map[domain.DisasterType][]string{
	domain.DisasterFlood: {
		"Avoid walking or driving through flood waters",
		"Turn off electricity if water enters your home",
	},
	domain.DisasterCyclone: {
		"Stay indoors and away from windows",
		"Secure loose outdoor objects",
	},
	domain.DisasterEarthquake: {
		"Drop, cover, and hold on during shaking",
		"Stay away from buildings and power lines",
	},
	domain.DisasterHeatwave: {
		"Drink plenty of water and avoid going out at midday",
	},
	domain.DisasterLandslide: {
		"Stay away from steep slopes and drainage channels",
	},
}

// Suggestions returns at most six safety suggestions for a level and type.
func Suggestions(level domain.RiskLevel, t domain.DisasterType) []string {
	out := []string{
		"Stay informed through official channels",
		"Have an emergency kit ready",
	}
	switch {
	case level >= domain.RiskHigh:
		out = append(out,
			"EVACUATE if instructed by authorities",
			"Move to higher ground if flooding is possible",
			"Secure important documents and medications",
			"Charge all electronic devices",
		)
	case level == domain.RiskMedium:
		out = append(out,
			"Monitor weather updates regularly",
			"Prepare emergency supplies",
			"Identify safe locations in your area",
		)
	}
	out = append(out, typeSuggestions[t]...)
	if len(out) > maxSuggestions {
		out = out[:maxSuggestions]
	}
	return out
}
