// Package notify fans alert and report events out to subscribers. Each alert
// goes to its city's channel and to the global channel.
package notify

import (
	"context"
	"time"

	"github.com/couchcryptid/disaster-alert-service/internal/domain"
)

// GlobalChannel receives every event regardless of city.
const GlobalChannel = "_global"

// EventType names a published event.
type EventType string

const (
	EventAlertCreated   EventType = "alert.created"
	EventAlertUpdated   EventType = "alert.updated"
	EventAlertConfirmed EventType = "alert.confirmed"
	EventAlertClosed    EventType = "alert.closed"
	EventReportCreated  EventType = "report.created"
	EventReportUpdated  EventType = "report.status_updated"
)

// Message is the payload delivered to subscribers.
type Message struct {
	Type    EventType             `json:"type"`
	Channel string                `json:"channel"`
	Alert   *domain.DisasterAlert `json:"alert,omitempty"`
	Report  *domain.RiskReport    `json:"report,omitempty"`
	SentAt  time.Time             `json:"sent_at"`
}

// Sink delivers messages on a channel. The websocket Hub and the Kafka
// writer both implement it.
type Sink interface {
	Send(ctx context.Context, channel string, msg Message) error
}

// ChannelKey returns the channel name for a city.
func ChannelKey(city string) string {
	return domain.CityKey(city)
}
