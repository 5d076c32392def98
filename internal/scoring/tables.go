package scoring

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/couchcryptid/disaster-alert-service/internal/domain"
	"gopkg.in/yaml.v3"
)

// Tier is a weighted keyword set for one risk tier.
type Tier struct {
	Level    domain.RiskLevel
	Weight   float64
	Keywords []string
}

// TypeKeywords is the keyword set that identifies one disaster type.
type TypeKeywords struct {
	Type     domain.DisasterType
	Keywords []string
}

// Tables holds the keyword lookup data for the keyword lane. Types are in
// priority order: the first type with a match wins.
type Tables struct {
	Tiers []Tier
	Types []TypeKeywords
}

// DefaultTables returns the built-in keyword tables.
func DefaultTables() Tables {
	return Tables{
		Tiers: []Tier{
			{Level: domain.RiskCritical, Weight: 3, Keywords: []string{"flood", "cyclone", "tsunami", "earthquake", "fire", "emergency", "help", "trapped", "danger"}},
			{Level: domain.RiskHigh, Weight: 2, Keywords: []string{"heavy rain", "storm", "landslide", "evacuate", "warning", "alert", "severe"}},
			{Level: domain.RiskMedium, Weight: 1, Keywords: []string{"rain", "wind", "hot", "cold", "humid", "cloudy", "thunder"}},
			{Level: domain.RiskLow, Weight: 0.5, Keywords: []string{"weather", "forecast", "temperature", "humidity", "normal", "clear"}},
		},
		Types: []TypeKeywords{
			{Type: domain.DisasterFlood, Keywords: []string{"flood", "water", "rain", "river", "overflow"}},
			{Type: domain.DisasterCyclone, Keywords: []string{"cyclone", "storm", "wind", "hurricane", "typhoon"}},
			{Type: domain.DisasterHeatwave, Keywords: []string{"heat", "hot", "temperature", "sun", "burn"}},
			{Type: domain.DisasterEarthquake, Keywords: []string{"earthquake", "shake", "tremor", "seismic"}},
			{Type: domain.DisasterLandslide, Keywords: []string{"landslide", "mud", "slide", "hill", "erosion"}},
		},
	}
}

type tablesFile struct {
	Tiers []struct {
		Level    string   `yaml:"level"`
		Weight   float64  `yaml:"weight"`
		Keywords []string `yaml:"keywords"`
	} `yaml:"tiers"`
	Types []struct {
		Type     string   `yaml:"type"`
		Keywords []string `yaml:"keywords"`
	} `yaml:"types"`
}

// LoadTables reads keyword tables from a YAML file.
func LoadTables(path string) (Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Tables{}, fmt.Errorf("read keyword tables: %w", err)
	}
	return ParseTables(data)
}

// ParseTables decodes and validates YAML keyword tables.
func ParseTables(data []byte) (Tables, error) {
	var f tablesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Tables{}, fmt.Errorf("decode keyword tables: %w", err)
	}

	var t Tables
	for _, tier := range f.Tiers {
		level, err := domain.ParseRiskLevel(tier.Level)
		if err != nil {
			return Tables{}, fmt.Errorf("keyword tier: %w", err)
		}
		t.Tiers = append(t.Tiers, Tier{Level: level, Weight: tier.Weight, Keywords: tier.Keywords})
	}
	for _, typ := range f.Types {
		dt, err := domain.ParseDisasterType(typ.Type)
		if err != nil {
			return Tables{}, fmt.Errorf("keyword type: %w", err)
		}
		t.Types = append(t.Types, TypeKeywords{Type: dt, Keywords: typ.Keywords})
	}
	if err := t.Validate(); err != nil {
		return Tables{}, err
	}
	return t.normalized(), nil
}

// Validate checks that every tier has a positive weight and every set has
// at least one keyword.
func (t Tables) Validate() error {
	if len(t.Tiers) == 0 {
		return errors.New("keyword tables: no risk tiers")
	}
	for _, tier := range t.Tiers {
		if tier.Weight <= 0 {
			return fmt.Errorf("keyword tables: tier %s has non-positive weight", tier.Level)
		}
		if len(tier.Keywords) == 0 {
			return fmt.Errorf("keyword tables: tier %s has no keywords", tier.Level)
		}
	}
	for _, typ := range t.Types {
		if len(typ.Keywords) == 0 {
			return fmt.Errorf("keyword tables: type %s has no keywords", typ.Type)
		}
	}
	return nil
}

// normalized returns a copy with lower-cased, trimmed keywords.
func (t Tables) normalized() Tables {
	out := Tables{
		Tiers: make([]Tier, len(t.Tiers)),
		Types: make([]TypeKeywords, len(t.Types)),
	}
	for i, tier := range t.Tiers {
		out.Tiers[i] = Tier{Level: tier.Level, Weight: tier.Weight, Keywords: lowerAll(tier.Keywords)}
	}
	for i, typ := range t.Types {
		out.Types[i] = TypeKeywords{Type: typ.Type, Keywords: lowerAll(typ.Keywords)}
	}
	return out
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
