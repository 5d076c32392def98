package alerting

import "github.com/couchcryptid/disaster-alert-service/internal/domain"

const (
	severeBanner     = "IMMEDIATE ACTION REQUIRED"
	precautionBanner = "TAKE IMMEDIATE PRECAUTIONS"
	emergencyContact = "Contact emergency services if needed (dial 112)"
)

var instructionTable = map[domain.DisasterType][]string{
	domain.DisasterHeatwave: {
		"Stay indoors during peak heat hours (12 PM - 4 PM)",
		"Drink plenty of water even if not thirsty",
		"Avoid strenuous outdoor activities",
		"Check on elderly neighbors and relatives",
		"Use fans or air conditioning to stay cool",
	},
	domain.DisasterFlood: {
		"Move to higher ground immediately",
		"Avoid walking or driving through flood water",
		"Turn off electricity at main switch",
		"Keep important documents in waterproof bags",
		"Follow evacuation orders if issued",
	},
	domain.DisasterCyclone: {
		"Stay indoors and away from windows",
		"Secure loose objects outside",
		"Keep emergency kit ready",
		"Monitor official weather updates",
		"Evacuate if ordered by authorities",
	},
	domain.DisasterEarthquake: {
		"Drop, cover, and hold on until shaking stops",
		"Stay away from glass, windows, and heavy furniture",
		"Expect aftershocks and move to open ground",
	},
	domain.DisasterLandslide: {
		"Move away from steep slopes and river valleys",
		"Watch for tilting trees, cracks, or sudden muddy water",
		"Follow evacuation orders if issued",
	},
}

var defaultInstructions = []string{
	"Stay alert and monitor weather updates",
	"Follow local authority instructions",
	"Keep emergency contacts handy",
}

// Instructions returns the instruction list for an alert. Critical alerts
// open with the immediate-action banner; high alerts raised from user
// reports open with the precautions banner. The emergency-contact line is
// always last.
func Instructions(t domain.DisasterType, severity domain.RiskLevel, source domain.AlertSource) []string {
	lines, ok := instructionTable[t]
	if !ok {
		lines = defaultInstructions
	}

	out := make([]string, 0, len(lines)+2)
	switch {
	case severity >= domain.RiskCritical:
		out = append(out, severeBanner)
	case severity == domain.RiskHigh && source == domain.SourceUserReport:
		out = append(out, precautionBanner)
	}
	out = append(out, lines...)
	return append(out, emergencyContact)
}
