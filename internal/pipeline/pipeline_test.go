package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/disaster-alert-service/internal/alerting"
	"github.com/couchcryptid/disaster-alert-service/internal/analysis"
	"github.com/couchcryptid/disaster-alert-service/internal/domain"
	"github.com/couchcryptid/disaster-alert-service/internal/observability"
	"github.com/couchcryptid/disaster-alert-service/internal/pipeline"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockExtractor struct {
	batches [][]domain.RawEvent
	index   atomic.Int64
	err     error
}

func (m *mockExtractor) ExtractBatch(ctx context.Context, _ int) ([]domain.RawEvent, error) {
	if m.err != nil {
		return nil, m.err
	}
	i := int(m.index.Add(1) - 1)
	if i >= len(m.batches) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return m.batches[i], nil
}

type mockTransformer struct {
	failKeys map[string]bool
}

func (m *mockTransformer) Transform(_ context.Context, raw domain.RawEvent) (domain.OutputEvent, error) {
	if m.failKeys[string(raw.Key)] {
		return domain.OutputEvent{}, &domain.InvalidInputError{Reason: "bad signal"}
	}
	return domain.OutputEvent{Key: raw.Key, Value: raw.Value}, nil
}

type mockLoader struct {
	mu       sync.Mutex
	loaded   []domain.OutputEvent
	failures int
}

func (m *mockLoader) LoadBatch(_ context.Context, events []domain.OutputEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures > 0 {
		m.failures--
		return errors.New("broker unavailable")
	}
	m.loaded = append(m.loaded, events...)
	return nil
}

func (m *mockLoader) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.loaded)
}

type commitLog struct {
	mu   sync.Mutex
	keys []string
}

func (c *commitLog) commitFor(key string) func(context.Context) error {
	return func(context.Context) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.keys = append(c.keys, key)
		return nil
	}
}

func (c *commitLog) committed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.keys...)
}

func rawSignal(t *testing.T, key string, env domain.SignalEnvelope) domain.RawEvent {
	t.Helper()
	data, err := json.Marshal(env)
	require.NoError(t, err)
	return domain.RawEvent{Key: []byte(key), Value: data, Topic: "disaster-signals"}
}

func messageEnvelope(city, text string) domain.SignalEnvelope {
	return domain.SignalEnvelope{Kind: domain.KindMessage, City: city, Text: text}
}

func run(t *testing.T, p *pipeline.Pipeline, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	require.NoError(t, p.Run(ctx))
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	commits := &commitLog{}
	raw := rawSignal(t, "sig-1", messageEnvelope("Mumbai", "heavy rain"))
	raw.Commit = commits.commitFor("sig-1")

	ldr := &mockLoader{}
	p := pipeline.New(&mockExtractor{batches: [][]domain.RawEvent{{raw}}}, &mockTransformer{}, ldr,
		slog.Default(), observability.NewMetricsForTesting(), 10)

	require.Error(t, p.CheckReadiness(context.Background()))
	run(t, p, 300*time.Millisecond)

	assert.Equal(t, 1, ldr.count())
	assert.Equal(t, raw.Value, ldr.loaded[0].Value)
	assert.Equal(t, []string{"sig-1"}, commits.committed())
	assert.NoError(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	ldr := &mockLoader{}
	p := pipeline.New(&mockExtractor{}, &mockTransformer{}, ldr, slog.Default(), observability.NewMetricsForTesting(), 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Run(ctx))
	assert.Zero(t, ldr.count())
}

func TestPipeline_Run_PoisonMessageSkippedAndCommitted(t *testing.T) {
	commits := &commitLog{}
	good := rawSignal(t, "good", messageEnvelope("Delhi", "hot"))
	good.Commit = commits.commitFor("good")
	bad := rawSignal(t, "bad", messageEnvelope("Delhi", "???"))
	bad.Commit = commits.commitFor("bad")

	ldr := &mockLoader{}
	tfm := &mockTransformer{failKeys: map[string]bool{"bad": true}}
	p := pipeline.New(&mockExtractor{batches: [][]domain.RawEvent{{bad, good}}}, tfm, ldr,
		slog.Default(), observability.NewMetricsForTesting(), 10)

	run(t, p, 300*time.Millisecond)

	assert.Equal(t, 1, ldr.count())
	assert.Equal(t, []string{"bad", "good"}, commits.committed())
}

func TestPipeline_Run_AllFailNotReady(t *testing.T) {
	raw := rawSignal(t, "bad", messageEnvelope("Delhi", "x"))
	tfm := &mockTransformer{failKeys: map[string]bool{"bad": true}}
	p := pipeline.New(&mockExtractor{batches: [][]domain.RawEvent{{raw}}}, tfm, &mockLoader{},
		slog.Default(), observability.NewMetricsForTesting(), 10)

	run(t, p, 200*time.Millisecond)
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_LoadFailureDoesNotCommit(t *testing.T) {
	commits := &commitLog{}
	raw := rawSignal(t, "sig", messageEnvelope("Pune", "landslide"))
	raw.Commit = commits.commitFor("sig")

	ldr := &mockLoader{failures: 1}
	p := pipeline.New(&mockExtractor{batches: [][]domain.RawEvent{{raw}}}, &mockTransformer{}, ldr,
		slog.Default(), observability.NewMetricsForTesting(), 10)

	run(t, p, 500*time.Millisecond)

	assert.Zero(t, ldr.count())
	assert.Empty(t, commits.committed())
}

func TestPipeline_Run_ExtractErrorBacksOff(t *testing.T) {
	p := pipeline.New(&mockExtractor{err: errors.New("broker down")}, &mockTransformer{}, &mockLoader{},
		slog.Default(), observability.NewMetricsForTesting(), 10)

	start := time.Now()
	run(t, p, 300*time.Millisecond)
	assert.Less(t, time.Since(start), 2*time.Second)
}

type stubProcessor struct {
	res analysis.Result
	err error
	got domain.SignalEnvelope
}

func (s *stubProcessor) Process(_ context.Context, env domain.SignalEnvelope) (analysis.Result, error) {
	s.got = env
	return s.res, s.err
}

func TestSignalTransformer_Transform(t *testing.T) {
	proc := &stubProcessor{res: analysis.Result{
		Kind: domain.KindMessage,
		City: "Mumbai",
		Assessment: domain.RiskAssessment{
			City:         "Mumbai",
			RiskLevel:    domain.RiskCritical,
			DisasterType: domain.DisasterFlood,
		},
		Action: alerting.ActionCreate,
	}}
	tfm := pipeline.NewTransformer(proc, slog.Default())

	out, err := tfm.Transform(context.Background(), rawSignal(t, "k", messageEnvelope(" Mumbai ", "flooding")))
	require.NoError(t, err)

	assert.Equal(t, "Mumbai", proc.got.City)
	assert.Equal(t, []byte("mumbai"), out.Key)
	assert.Equal(t, "critical", out.Headers[pipeline.HeaderRiskLevel])
	assert.Equal(t, "create", out.Headers[pipeline.HeaderAlertAction])
	assert.Equal(t, "message", out.Headers[pipeline.HeaderKind])
	assert.Equal(t, "false", out.Headers[pipeline.HeaderSimulated])

	var decoded analysis.Result
	require.NoError(t, json.Unmarshal(out.Value, &decoded))
	if diff := cmp.Diff(proc.res, decoded); diff != "" {
		t.Fatalf("decoded result mismatch (-want +got):\n%s", diff)
	}
}

func TestSignalTransformer_Errors(t *testing.T) {
	tfm := pipeline.NewTransformer(&stubProcessor{}, slog.Default())

	_, err := tfm.Transform(context.Background(), domain.RawEvent{Value: []byte("not json")})
	assert.Error(t, err)

	_, err = tfm.Transform(context.Background(), domain.RawEvent{Value: []byte(`{"kind":"message","city":"Delhi","extra":1}`)})
	assert.Error(t, err, "unknown fields are rejected")

	failing := pipeline.NewTransformer(&stubProcessor{err: domain.ErrAnalysisUnavailable}, slog.Default())
	_, err = failing.Transform(context.Background(), rawSignal(t, "k", messageEnvelope("Delhi", "storm")))
	assert.ErrorIs(t, err, domain.ErrAnalysisUnavailable)
}

func TestSerializeResult_Headers(t *testing.T) {
	at := time.Date(2025, time.March, 3, 4, 5, 6, 0, time.FixedZone("IST", 5*3600+1800))
	out, err := pipeline.SerializeResult(analysis.Result{Kind: domain.KindWeather, City: "Kolkata", Simulated: true}, at)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-02T22:35:06Z", out.Headers[pipeline.HeaderProcessedAt])
	assert.Equal(t, "true", out.Headers[pipeline.HeaderSimulated])
	assert.Equal(t, "very-low", out.Headers[pipeline.HeaderRiskLevel])
}
