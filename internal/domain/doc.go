// Package domain models the disaster alert engine's core records and the rules
// that turn raw inputs into canonical observation signals.
//
// # Inputs
//
// Two kinds of raw input reach the engine:
//
//	Weather payloads: OpenWeather "current weather" JSON documents, fetched per
//	city by the weather provider or delivered on the source topic.
//	Text: free-text chat messages and user risk report descriptions.
//
// Both are normalized into an ObservationSignal before scoring. Normalization
// rejects payloads that lack the required weather fields (main.temp,
// main.humidity, wind) and text that is empty after trimming.
//
// # Units
//
//	Temperature and feels-like: °C, rounded to the nearest integer.
//	Wind speed: the provider reports m/s; signals carry km/h (×3.6).
//	Visibility: the provider reports metres; signals carry km.
//	Rainfall: the "3h" bucket in mm, 0 when the provider omits it.
//
// # Risk Levels
//
// RiskLevel is ordered: very-low < low < medium < high < critical. "severe"
// is accepted as an alias of critical when parsing. Alert severity uses the
// same scale.
//
// # Records
//
// DisasterAlert rows move forward only (active → expired, active → cancelled)
// and are never deleted. RiskReport status also only advances. WeatherSnapshot
// rows are append-only.
package domain
