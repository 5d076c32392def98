package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/disaster-alert-service/internal/analysis"
	"github.com/couchcryptid/disaster-alert-service/internal/domain"
)

// Header keys set on every assessment event.
const (
	HeaderKind        = "kind"
	HeaderRiskLevel   = "risk_level"
	HeaderAlertAction = "alert_action"
	HeaderSimulated   = "simulated"
	HeaderProcessedAt = "processed_at"
)

// Processor analyzes one decoded signal envelope.
type Processor interface {
	Process(ctx context.Context, env domain.SignalEnvelope) (analysis.Result, error)
}

// SignalTransformer implements Transformer by decoding the envelope and
// running it through the analysis engine.
type SignalTransformer struct {
	processor Processor
	logger    *slog.Logger
}

// NewTransformer creates a SignalTransformer.
func NewTransformer(p Processor, logger *slog.Logger) *SignalTransformer {
	return &SignalTransformer{processor: p, logger: logger}
}

func (t *SignalTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.OutputEvent, error) {
	env, err := domain.ParseRawEvent(raw)
	if err != nil {
		return domain.OutputEvent{}, err
	}
	res, err := t.processor.Process(ctx, env)
	if err != nil {
		return domain.OutputEvent{}, fmt.Errorf("analyze %s signal for %q: %w", env.Kind, env.City, err)
	}
	if res.Alert != nil {
		t.logger.Debug("signal produced alert",
			"kind", res.Kind, "city", res.City, "alert_id", res.Alert.ID, "action", res.Action)
	}
	return SerializeResult(res, domain.Now())
}

// SerializeResult encodes an analysis result as a sink-topic event keyed by
// the lower-cased city.
func SerializeResult(res analysis.Result, processedAt time.Time) (domain.OutputEvent, error) {
	value, err := json.Marshal(res)
	if err != nil {
		return domain.OutputEvent{}, fmt.Errorf("marshal result: %w", err)
	}
	return domain.OutputEvent{
		Key:   []byte(domain.CityKey(res.City)),
		Value: value,
		Headers: map[string]string{
			HeaderKind:        res.Kind,
			HeaderRiskLevel:   res.Assessment.RiskLevel.String(),
			HeaderAlertAction: string(res.Action),
			HeaderSimulated:   fmt.Sprint(res.Simulated),
			HeaderProcessedAt: processedAt.UTC().Format(time.RFC3339),
		},
	}, nil
}
