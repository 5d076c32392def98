package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/couchcryptid/disaster-alert-service/internal/domain"
	"github.com/couchcryptid/disaster-alert-service/internal/notify"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer produces messages to one Kafka topic. On the assessment topic it
// implements pipeline.BatchLoader; on the alert topic it is a notify.Sink.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for topic.
func NewWriter(brokers []string, topic string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadBatch publishes output events in a single WriteMessages call.
func (w *Writer) LoadBatch(ctx context.Context, events []domain.OutputEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(events))
	for i := range events {
		msgs[i] = serializeToMessage(events[i])
	}
	return w.writer.WriteMessages(ctx, msgs...)
}

// Send publishes a notification keyed by channel so every event for one city
// lands on the same partition.
func (w *Writer) Send(ctx context.Context, channel string, msg notify.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("serialize notification: %w", err)
	}
	return w.writer.WriteMessages(ctx, serializeToMessage(domain.OutputEvent{
		Key:   []byte(channel),
		Value: data,
		Headers: map[string]string{
			"event_type": string(msg.Type),
			"sent_at":    msg.SentAt.Format(time.RFC3339),
		},
	}))
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage converts an OutputEvent into a Kafka message with
// headers in key order.
func serializeToMessage(event domain.OutputEvent) kafkago.Message {
	keys := make([]string, 0, len(event.Headers))
	for k := range event.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	headers := make([]kafkago.Header, 0, len(keys))
	for _, k := range keys {
		headers = append(headers, kafkago.Header{Key: k, Value: []byte(event.Headers[k])})
	}
	return kafkago.Message{
		Key:     event.Key,
		Value:   event.Value,
		Headers: headers,
	}
}
