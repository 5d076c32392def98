package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fptr(v float64) *float64 { return &v }

func mumbaiPayload() WeatherPayload {
	return WeatherPayload{
		Coord:      &Coordinates{Lat: 19.07, Lon: 72.87},
		Weather:    []WeatherCondition{{Description: "heavy intensity rain", Icon: "10d"}},
		Main:       &WeatherMain{Temp: fptr(29.6), FeelsLike: fptr(34.4), Humidity: fptr(94), Pressure: fptr(1002)},
		Visibility: fptr(800),
		Wind:       &WeatherWind{Speed: fptr(20)},
		Rain:       &WeatherRain{ThreeHour: fptr(120)},
		Name:       "Mumbai",
	}
}

func TestNormalizeWeather(t *testing.T) {
	fakeClock := clockwork.NewFakeClockAt(time.Date(2025, time.July, 3, 9, 0, 0, 0, time.UTC))
	SetClock(fakeClock)
	t.Cleanup(func() { SetClock(nil) })

	reading, sig, err := NormalizeWeather(mumbaiPayload(), "")
	require.NoError(t, err)

	assert.Equal(t, "Mumbai", reading.City)
	assert.Equal(t, 30.0, reading.Temperature)
	assert.Equal(t, 34.0, reading.FeelsLike)
	assert.Equal(t, 72.0, reading.WindSpeedKmh)
	assert.InDelta(t, 0.8, reading.VisibilityKm, 0.0001)
	assert.Equal(t, 120.0, reading.RainfallMm3h)
	assert.Equal(t, "heavy intensity rain", reading.Description)
	assert.Equal(t, "10d", reading.Icon)

	assert.Equal(t, SignalWeather, sig.Source)
	assert.Equal(t, "Mumbai", sig.LocationCity)
	require.NotNil(t, sig.WindSpeedKmh)
	assert.Equal(t, 72.0, *sig.WindSpeedKmh)
	require.NotNil(t, sig.VisibilityKm)
	assert.Equal(t, fakeClock.Now(), sig.ObservedAt)
	assert.True(t, sig.HasWeather())
	assert.False(t, sig.HasText())
}

func TestNormalizeWeather_Defaults(t *testing.T) {
	p := mumbaiPayload()
	p.Rain = nil
	p.Visibility = nil

	reading, sig, err := NormalizeWeather(p, "Pune")
	require.NoError(t, err)

	assert.Equal(t, "Pune", reading.City)
	assert.Equal(t, 0.0, reading.RainfallMm3h)
	require.NotNil(t, sig.RainfallMm3h)
	assert.Equal(t, 0.0, *sig.RainfallMm3h)
	assert.Nil(t, sig.VisibilityKm)
}

func TestNormalizeWeather_MissingFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *WeatherPayload)
	}{
		{"no main", func(p *WeatherPayload) { p.Main = nil }},
		{"no temperature", func(p *WeatherPayload) { p.Main.Temp = nil }},
		{"no humidity", func(p *WeatherPayload) { p.Main.Humidity = nil }},
		{"no wind", func(p *WeatherPayload) { p.Wind = nil }},
		{"no wind speed", func(p *WeatherPayload) { p.Wind.Speed = nil }},
		{"no city", func(p *WeatherPayload) { p.Name = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := mumbaiPayload()
			tt.mutate(&p)
			_, _, err := NormalizeWeather(p, "")
			var ie *InvalidInputError
			assert.True(t, errors.As(err, &ie), "expected InvalidInputError, got %v", err)
		})
	}
}

func TestNormalizeText(t *testing.T) {
	sig, err := NormalizeText("  There is FLOODING near the river ", "Patna", SignalMessage)
	require.NoError(t, err)
	assert.Equal(t, "there is flooding near the river", sig.FreeText)
	assert.Equal(t, "Patna", sig.LocationCity)
	assert.False(t, sig.HasWeather())

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := NormalizeText(text, "Patna", SignalMessage)
		var ie *InvalidInputError
		assert.True(t, errors.As(err, &ie))
	}
}

func TestParseRawEvent(t *testing.T) {
	t.Run("weather envelope", func(t *testing.T) {
		raw := RawEvent{Value: []byte(`{"kind":"weather","city":"Delhi","weather":{"main":{"temp":46,"humidity":40},"wind":{"speed":2.7},"visibility":8000,"base":"stations","cod":200}}`)}
		env, err := ParseRawEvent(raw)
		require.NoError(t, err)
		assert.Equal(t, KindWeather, env.Kind)
		assert.Equal(t, "Delhi", env.City)
		require.NotNil(t, env.Weather)
		assert.Equal(t, 46.0, *env.Weather.Main.Temp)
	})

	t.Run("message envelope", func(t *testing.T) {
		env, err := ParseRawEvent(RawEvent{Value: []byte(`{"kind":"message","city":"Patna","text":"need help"}`)})
		require.NoError(t, err)
		assert.Equal(t, "need help", env.Text)
	})

	t.Run("report envelope", func(t *testing.T) {
		env, err := ParseRawEvent(RawEvent{Value: []byte(`{"kind":"report","report":{"city":"Chennai","risk_type":"flood","risk_level":"high","description":"street flooded"}}`)})
		require.NoError(t, err)
		require.NotNil(t, env.Report)
		assert.Equal(t, "Chennai", env.Report.City)
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		_, err := ParseRawEvent(RawEvent{Value: []byte(`{"kind":"message","text":"x","extra":1}`)})
		assert.Error(t, err)
	})

	t.Run("rejects unknown kind", func(t *testing.T) {
		_, err := ParseRawEvent(RawEvent{Value: []byte(`{"kind":"tweet","text":"x"}`)})
		var ie *InvalidInputError
		assert.True(t, errors.As(err, &ie))
	})

	t.Run("rejects invalid json", func(t *testing.T) {
		_, err := ParseRawEvent(RawEvent{Value: []byte("not json")})
		assert.Error(t, err)
	})
}

func TestReportSubmission_Validate(t *testing.T) {
	_, _, _, err := ReportSubmission{}.Validate()
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, []string{"city", "riskType", "riskLevel", "description"}, ve.Fields)

	typ, level, damage, err := ReportSubmission{
		City: "Chennai", RiskType: "Flood", RiskLevel: "severe", Description: "water rising",
	}.Validate()
	require.NoError(t, err)
	assert.Equal(t, DisasterFlood, typ)
	assert.Equal(t, RiskCritical, level)
	assert.Equal(t, DamageNone, damage)

	_, _, _, err = ReportSubmission{City: "Chennai", RiskType: "meteor", RiskLevel: "high", Description: "x"}.Validate()
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, []string{"riskType"}, ve.Fields)
}

func TestRiskLevel(t *testing.T) {
	assert.True(t, RiskCritical.AtLeast(RiskHigh))
	assert.False(t, RiskMedium.AtLeast(RiskHigh))
	assert.Equal(t, RiskLow, RiskVeryLow.Alerting())
	assert.Equal(t, "very-low", RiskVeryLow.String())

	var l RiskLevel
	require.NoError(t, l.UnmarshalText([]byte("severe")))
	assert.Equal(t, RiskCritical, l)
	assert.Error(t, l.UnmarshalText([]byte("extreme")))
}

func TestReportStatus_CanTransition(t *testing.T) {
	assert.True(t, ReportPending.CanTransition(ReportVerified))
	assert.True(t, ReportVerified.CanTransition(ReportResolved))
	assert.False(t, ReportVerified.CanTransition(ReportPending))
	assert.False(t, ReportResolved.CanTransition(ReportVerified))
	assert.False(t, ReportFalseAlarm.CanTransition(ReportVerified))
}

func TestStateForCity(t *testing.T) {
	assert.Equal(t, "Maharashtra", StateForCity(" mumbai "))
	assert.Equal(t, "Tamil Nadu", StateForCity("Chennai"))
	assert.Equal(t, "Unknown", StateForCity("Springfield"))
}
