//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/couchcryptid/disaster-alert-service/internal/adapter/kafka"
	"github.com/couchcryptid/disaster-alert-service/internal/alerting"
	"github.com/couchcryptid/disaster-alert-service/internal/analysis"
	"github.com/couchcryptid/disaster-alert-service/internal/config"
	"github.com/couchcryptid/disaster-alert-service/internal/domain"
	"github.com/couchcryptid/disaster-alert-service/internal/notify"
	"github.com/couchcryptid/disaster-alert-service/internal/observability"
	"github.com/couchcryptid/disaster-alert-service/internal/pipeline"
	"github.com/couchcryptid/disaster-alert-service/internal/reports"
	"github.com/couchcryptid/disaster-alert-service/internal/scoring"
	"github.com/couchcryptid/disaster-alert-service/internal/store"
	"github.com/couchcryptid/disaster-alert-service/internal/weather"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSourceTopic = "test-signals"
	testSinkTopic   = "test-assessments"
	testAlertTopic  = "test-alerts"
)

// newAnalyzer wires the engine over an in-memory store with notifications
// going to the given sinks.
func newAnalyzer(st *store.Memory, sinks ...notify.Sink) *analysis.Analyzer {
	logger := discardLogger()
	metrics := observability.NewMetricsForTesting()
	disp := notify.NewDispatcher(notify.DispatcherConfig{}, nil, logger, metrics, sinks...)
	agg := alerting.NewAggregator(st, nil, logger, metrics)
	mgr := alerting.NewManager(st, disp, nil, logger, metrics)

	return analysis.New(analysis.Deps{
		Scorer:     scoring.New(scoring.DefaultTables()),
		Weather:    weather.SimulatedProvider{},
		Snapshots:  st,
		Aggregator: agg,
		Publisher:  disp,
		Reports:    reports.NewService(st, agg, mgr, disp, nil, logger),
		Logger:     logger,
		Metrics:    metrics,
	})
}

func testConfig(broker, group string) *config.Config {
	return &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaSourceTopic:   testSourceTopic,
		KafkaSinkTopic:     testSinkTopic,
		KafkaAlertTopic:    testAlertTopic,
		KafkaGroupID:       fmt.Sprintf("%s-%d", group, time.Now().UnixNano()),
		BatchFlushInterval: 2 * time.Second,
	}
}

func publishSignals(ctx context.Context, t *testing.T, broker string, values ...[]byte) {
	t.Helper()
	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })

	msgs := make([]kafkago.Message, 0, len(values))
	for i, v := range values {
		msgs = append(msgs, kafkago.Message{Key: []byte(fmt.Sprintf("signal-%d", i)), Value: v})
	}
	require.NoError(t, producer.WriteMessages(ctx, msgs...))
}

func consumer(broker, topic string) *kafkago.Reader {
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       topic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
}

// TestPipelineEndToEnd runs every mock signal through Reader → analysis →
// Writer with a real broker and checks the assessment and alert topics.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	for _, topic := range []string{testSourceTopic, testSinkTopic, testAlertTopic} {
		createTopic(t, broker, topic)
	}
	cfg := testConfig(broker, "test-pipeline")

	signals := loadMockSignals(t)
	values := make([][]byte, len(signals))
	for i, s := range signals {
		values[i] = s
	}
	publishSignals(ctx, t, broker, values...)

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	sinkWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.KafkaSinkTopic, discardLogger())
	t.Cleanup(func() { _ = sinkWriter.Close() })
	alertWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.KafkaAlertTopic, discardLogger())
	t.Cleanup(func() { _ = alertWriter.Close() })

	mem := store.NewMemory()
	analyzer := newAnalyzer(mem, alertWriter)
	p := pipeline.New(reader, pipeline.NewTransformer(analyzer, discardLogger()), sinkWriter,
		discardLogger(), observability.NewMetricsForTesting(), 50)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	sink := consumer(broker, testSinkTopic)
	t.Cleanup(func() { _ = sink.Close() })

	byCity := map[string]map[string]string{}
	for len(byCity) < len(signals) {
		readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := sink.ReadMessage(readCtx)
		readCancel()
		require.NoError(t, err, "read from assessment topic")

		var res analysis.Result
		require.NoError(t, json.Unmarshal(msg.Value, &res))
		assert.Equal(t, domain.CityKey(res.City), string(msg.Key))

		headers := headerMap(msg)
		_, err = time.Parse(time.RFC3339, headers[pipeline.HeaderProcessedAt])
		assert.NoError(t, err, "processed_at should be valid RFC3339")
		byCity[res.City] = headers
	}

	assert.Equal(t, "critical", byCity["Delhi"][pipeline.HeaderRiskLevel])
	assert.Equal(t, "create", byCity["Delhi"][pipeline.HeaderAlertAction])
	assert.Equal(t, "very-low", byCity["Bengaluru"][pipeline.HeaderRiskLevel])
	assert.Equal(t, "none", byCity["Bengaluru"][pipeline.HeaderAlertAction])
	assert.Equal(t, domain.KindReport, byCity["Guwahati"][pipeline.HeaderKind])
	assert.Equal(t, "create", byCity["Guwahati"][pipeline.HeaderAlertAction])

	assert.NoError(t, p.CheckReadiness(ctx), "pipeline ready after a successful batch")

	// Each created alert reaches the alert topic on its city channel and the
	// global channel.
	alerts := consumer(broker, testAlertTopic)
	t.Cleanup(func() { _ = alerts.Close() })

	created := 0
	for created < 10 {
		readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := alerts.ReadMessage(readCtx)
		readCancel()
		require.NoError(t, err, "read from alert topic")
		if headerMap(msg)["event_type"] == string(notify.EventAlertCreated) {
			created++
		}
	}

	pipelineCancel()
	require.NoError(t, <-errCh)

	active, err := mem.ListAlerts(ctx, store.AlertFilter{Status: domain.AlertActive})
	require.NoError(t, err)
	assert.Len(t, active, 5)
}

// TestPipelineSkipsPoisonMessage verifies that an undecodable message is
// committed and skipped while the next valid signal is processed.
func TestPipelineSkipsPoisonMessage(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-poison")

	valid := loadMockSignals(t)[0]
	publishSignals(ctx, t, broker, []byte("not-json{{{"), []byte(`{"kind":"tweet","city":"Delhi"}`), valid)

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg.KafkaBrokers, cfg.KafkaSinkTopic, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	p := pipeline.New(reader, pipeline.NewTransformer(newAnalyzer(store.NewMemory()), discardLogger()), writer,
		discardLogger(), observability.NewMetricsForTesting(), 50)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	sink := consumer(broker, testSinkTopic)
	t.Cleanup(func() { _ = sink.Close() })

	readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
	msg, err := sink.ReadMessage(readCtx)
	readCancel()
	require.NoError(t, err)
	assert.Equal(t, "delhi", string(msg.Key))

	readCtx, readCancel = context.WithTimeout(ctx, 5*time.Second)
	_, err = sink.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "expected no second message on assessment topic")

	pipelineCancel()
	require.NoError(t, <-errCh)
}
