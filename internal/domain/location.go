package domain

import "strings"

var cityStates = map[string]string{
	"delhi":       "Delhi",
	"mumbai":      "Maharashtra",
	"pune":        "Maharashtra",
	"chennai":     "Tamil Nadu",
	"bangalore":   "Karnataka",
	"bengaluru":   "Karnataka",
	"kolkata":     "West Bengal",
	"hyderabad":   "Telangana",
	"ahmedabad":   "Gujarat",
	"jaipur":      "Rajasthan",
	"lucknow":     "Uttar Pradesh",
	"bhopal":      "Madhya Pradesh",
	"patna":       "Bihar",
	"chandigarh":  "Chandigarh",
	"bhubaneswar": "Odisha",
	"guwahati":    "Assam",
}

// StateForCity returns the Indian state for a known city, or "Unknown".
func StateForCity(city string) string {
	if state, ok := cityStates[CityKey(city)]; ok {
		return state
	}
	return "Unknown"
}

// CityKey is the case-insensitive key used to compare cities.
func CityKey(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}
