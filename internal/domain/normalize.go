package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Signal envelope kinds carried on the source topic.
const (
	KindWeather = "weather"
	KindMessage = "message"
	KindReport  = "report"
)

// WeatherPayload is the subset of an OpenWeather current-weather document the
// engine reads. Required fields are pointers so absence can be detected.
type WeatherPayload struct {
	Coord      *Coordinates       `json:"coord,omitempty"`
	Weather    []WeatherCondition `json:"weather,omitempty"`
	Main       *WeatherMain       `json:"main,omitempty"`
	Visibility *float64           `json:"visibility,omitempty"` // metres
	Wind       *WeatherWind       `json:"wind,omitempty"`
	Rain       *WeatherRain       `json:"rain,omitempty"`
	Name       string             `json:"name,omitempty"`

	// Simulated marks synthetic payloads produced while the provider is down.
	Simulated bool `json:"simulated,omitempty"`
}

type WeatherCondition struct {
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type WeatherMain struct {
	Temp      *float64 `json:"temp,omitempty"`
	FeelsLike *float64 `json:"feels_like,omitempty"`
	Humidity  *float64 `json:"humidity,omitempty"`
	Pressure  *float64 `json:"pressure,omitempty"`
}

type WeatherWind struct {
	Speed *float64 `json:"speed,omitempty"` // m/s
}

type WeatherRain struct {
	ThreeHour *float64 `json:"3h,omitempty"`
}

// SignalEnvelope is the schema of one message on the source topic.
type SignalEnvelope struct {
	Kind    string            `json:"kind"`
	City    string            `json:"city"`
	Weather *WeatherPayload   `json:"weather,omitempty"`
	Text    string            `json:"text,omitempty"`
	Report  *ReportSubmission `json:"report,omitempty"`
}

// ParseRawEvent decodes a source-topic message into a SignalEnvelope. Unknown
// fields and unknown kinds are rejected. Weather payloads are decoded leniently
// because providers add fields freely.
func ParseRawEvent(raw RawEvent) (SignalEnvelope, error) {
	var shape struct {
		Kind    string            `json:"kind"`
		City    string            `json:"city"`
		Weather json.RawMessage   `json:"weather,omitempty"`
		Text    string            `json:"text,omitempty"`
		Report  *ReportSubmission `json:"report,omitempty"`
	}
	dec := json.NewDecoder(bytes.NewReader(raw.Value))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&shape); err != nil {
		return SignalEnvelope{}, fmt.Errorf("parse raw event: %w", err)
	}

	env := SignalEnvelope{Kind: shape.Kind, City: strings.TrimSpace(shape.City), Text: shape.Text, Report: shape.Report}
	switch shape.Kind {
	case KindWeather:
		if len(shape.Weather) == 0 {
			return SignalEnvelope{}, &InvalidInputError{Reason: "weather envelope without payload"}
		}
		var p WeatherPayload
		if err := json.Unmarshal(shape.Weather, &p); err != nil {
			return SignalEnvelope{}, fmt.Errorf("parse weather payload: %w", err)
		}
		env.Weather = &p
	case KindMessage:
	case KindReport:
		if shape.Report == nil {
			return SignalEnvelope{}, &InvalidInputError{Reason: "report envelope without report"}
		}
	default:
		return SignalEnvelope{}, &InvalidInputError{Reason: fmt.Sprintf("unknown signal kind %q", shape.Kind)}
	}
	return env, nil
}

// NormalizeWeather converts a provider payload into a reading and the signal
// scored from it. city overrides the payload's own name when set.
func NormalizeWeather(p WeatherPayload, city string) (WeatherReading, ObservationSignal, error) {
	if p.Main == nil || p.Main.Temp == nil {
		return WeatherReading{}, ObservationSignal{}, &InvalidInputError{Reason: "weather payload missing temperature"}
	}
	if p.Main.Humidity == nil {
		return WeatherReading{}, ObservationSignal{}, &InvalidInputError{Reason: "weather payload missing humidity"}
	}
	if p.Wind == nil || p.Wind.Speed == nil {
		return WeatherReading{}, ObservationSignal{}, &InvalidInputError{Reason: "weather payload missing wind"}
	}

	city = strings.TrimSpace(city)
	if city == "" {
		city = strings.TrimSpace(p.Name)
	}
	if city == "" {
		return WeatherReading{}, ObservationSignal{}, &InvalidInputError{Reason: "weather payload missing city"}
	}

	reading := WeatherReading{
		City:         city,
		Temperature:  math.Round(*p.Main.Temp),
		Humidity:     *p.Main.Humidity,
		WindSpeedKmh: msToKmh(*p.Wind.Speed),
		VisibilityKm: 10,
		Coordinates:  p.Coord,
	}
	reading.FeelsLike = reading.Temperature
	if p.Main.FeelsLike != nil {
		reading.FeelsLike = math.Round(*p.Main.FeelsLike)
	}
	if p.Main.Pressure != nil {
		reading.Pressure = *p.Main.Pressure
	}
	if p.Rain != nil && p.Rain.ThreeHour != nil {
		reading.RainfallMm3h = *p.Rain.ThreeHour
	}
	if len(p.Weather) > 0 {
		reading.Description = p.Weather[0].Description
		reading.Icon = p.Weather[0].Icon
	}

	sig := ObservationSignal{
		Source:       SignalWeather,
		Temperature:  ptr(reading.Temperature),
		Humidity:     ptr(reading.Humidity),
		WindSpeedKmh: ptr(reading.WindSpeedKmh),
		RainfallMm3h: ptr(reading.RainfallMm3h),
		LocationCity: city,
		Coordinates:  p.Coord,
		ObservedAt:   clock.Now(),
	}
	if p.Visibility != nil {
		reading.VisibilityKm = *p.Visibility / 1000
		sig.VisibilityKm = ptr(reading.VisibilityKm)
	}
	return reading, sig, nil
}

// NormalizeText lower-cases free text into a signal. Text contributes only to
// keyword matching; no numeric measurement is derived from it.
func NormalizeText(text, city string, source SignalSource) (ObservationSignal, error) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return ObservationSignal{}, &InvalidInputError{Reason: "empty text"}
	}
	return ObservationSignal{
		Source:       source,
		FreeText:     text,
		LocationCity: strings.TrimSpace(city),
		ObservedAt:   clock.Now(),
	}, nil
}

// msToKmh converts m/s to km/h rounded to one decimal place.
func msToKmh(ms float64) float64 {
	return math.Round(ms*3.6*10) / 10
}

func ptr(v float64) *float64 {
	return &v
}
