package kafka

import (
	"testing"
	"time"

	"github.com/couchcryptid/disaster-alert-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

func TestMapMessageToRawEvent(t *testing.T) {
	now := time.Now()
	msg := kafkago.Message{
		Key:       []byte("delhi"),
		Value:     []byte(`{"kind":"message","city":"Delhi","text":"flooding"}`),
		Topic:     "disaster-signals",
		Partition: 2,
		Offset:    42,
		Time:      now,
		Headers: []kafkago.Header{
			{Key: "source", Value: []byte("seed")},
		},
	}

	raw := mapMessageToRawEvent(msg)

	assert.Equal(t, []byte("delhi"), raw.Key)
	assert.JSONEq(t, `{"kind":"message","city":"Delhi","text":"flooding"}`, string(raw.Value))
	assert.Equal(t, "disaster-signals", raw.Topic)
	assert.Equal(t, 2, raw.Partition)
	assert.Equal(t, int64(42), raw.Offset)
	assert.Equal(t, now, raw.Timestamp)
	assert.Equal(t, "seed", raw.Headers["source"])
	assert.Nil(t, raw.Commit)
}

func TestSerializeToMessage(t *testing.T) {
	event := domain.OutputEvent{
		Key:   []byte("mumbai"),
		Value: []byte(`{"risk_level":"high"}`),
		Headers: map[string]string{
			"risk_level": "high",
			"kind":       "weather",
		},
	}

	msg := serializeToMessage(event)

	assert.Equal(t, []byte("mumbai"), msg.Key)
	assert.Contains(t, string(msg.Value), `"risk_level":"high"`)
	assert.Len(t, msg.Headers, 2)
	assert.Equal(t, "kind", msg.Headers[0].Key)
	assert.Equal(t, []byte("weather"), msg.Headers[0].Value)
	assert.Equal(t, "risk_level", msg.Headers[1].Key)
}
