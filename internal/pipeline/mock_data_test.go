package pipeline_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/disaster-alert-service/internal/alerting"
	"github.com/couchcryptid/disaster-alert-service/internal/analysis"
	"github.com/couchcryptid/disaster-alert-service/internal/domain"
	"github.com/couchcryptid/disaster-alert-service/internal/notify"
	"github.com/couchcryptid/disaster-alert-service/internal/observability"
	"github.com/couchcryptid/disaster-alert-service/internal/pipeline"
	"github.com/couchcryptid/disaster-alert-service/internal/reports"
	"github.com/couchcryptid/disaster-alert-service/internal/scoring"
	"github.com/couchcryptid/disaster-alert-service/internal/store"
	"github.com/couchcryptid/disaster-alert-service/internal/weather"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) (*analysis.Analyzer, *store.Memory) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2025, time.July, 1, 6, 0, 0, 0, time.UTC))
	domain.SetClock(clock)
	t.Cleanup(func() { domain.SetClock(nil) })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	mem := store.NewMemory()
	disp := notify.NewDispatcher(notify.DispatcherConfig{}, clock, logger, metrics)
	agg := alerting.NewAggregator(mem, clock, logger, metrics)
	mgr := alerting.NewManager(mem, disp, clock, logger, metrics)

	return analysis.New(analysis.Deps{
		Scorer:     scoring.New(scoring.DefaultTables()),
		Weather:    weather.SimulatedProvider{},
		Snapshots:  mem,
		Aggregator: agg,
		Publisher:  disp,
		Reports:    reports.NewService(mem, agg, mgr, disp, clock, logger),
		Clock:      clock,
		Logger:     logger,
		Metrics:    metrics,
	}), mem
}

func readMockSignals(t *testing.T) []json.RawMessage {
	t.Helper()
	path := filepath.Join("..", "..", "data", "mock", "signals.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err, "mock data missing; check with go run ./cmd/replay")

	var envelopes []json.RawMessage
	require.NoError(t, json.Unmarshal(data, &envelopes))
	require.NotEmpty(t, envelopes)
	return envelopes
}

func TestSignalTransformer_WithMockData(t *testing.T) {
	want := map[string]struct {
		kind   string
		level  domain.RiskLevel
		typ    domain.DisasterType
		action alerting.Action
	}{
		"Delhi":     {domain.KindWeather, domain.RiskCritical, domain.DisasterHeatwave, alerting.ActionCreate},
		"Mumbai":    {domain.KindWeather, domain.RiskCritical, domain.DisasterFlood, alerting.ActionCreate},
		"Bengaluru": {domain.KindWeather, domain.RiskVeryLow, domain.DisasterNone, alerting.ActionNone},
		"Kolkata":   {domain.KindWeather, domain.RiskCritical, domain.DisasterCyclone, alerting.ActionCreate},
		"Chennai":   {domain.KindMessage, domain.RiskCritical, domain.DisasterFlood, alerting.ActionCreate},
		"Jaipur":    {domain.KindMessage, domain.RiskVeryLow, domain.DisasterNone, alerting.ActionNone},
		"Guwahati":  {domain.KindReport, domain.RiskHigh, domain.DisasterFlood, alerting.ActionCreate},
		"Pune":      {domain.KindReport, domain.RiskMedium, domain.DisasterLandslide, alerting.ActionNone},
	}

	engine, mem := newEngine(t)
	tfm := pipeline.NewTransformer(engine, slog.Default())

	envelopes := readMockSignals(t)
	require.Len(t, envelopes, len(want))

	for i, value := range envelopes {
		out, err := tfm.Transform(context.Background(), domain.RawEvent{Value: value, Offset: int64(i)})
		require.NoError(t, err, "envelope %d", i)

		var res analysis.Result
		require.NoError(t, json.Unmarshal(out.Value, &res))

		exp, ok := want[res.City]
		require.True(t, ok, "unexpected city %q", res.City)
		t.Run(res.City, func(t *testing.T) {
			assert.Equal(t, exp.kind, res.Kind)
			assert.Equal(t, exp.level, res.Assessment.RiskLevel)
			assert.Equal(t, exp.typ, res.Assessment.DisasterType)
			assert.Equal(t, exp.action, res.Action)
			assert.Equal(t, domain.CityKey(res.City), string(out.Key))
			assert.Equal(t, exp.level.String(), out.Headers[pipeline.HeaderRiskLevel])
			if exp.action == alerting.ActionCreate {
				require.NotNil(t, res.Alert)
				assert.Equal(t, domain.AlertActive, res.Alert.Status)
			}
		})
	}

	active, err := mem.ListAlerts(context.Background(), store.AlertFilter{Status: domain.AlertActive})
	require.NoError(t, err)
	assert.Len(t, active, 5)

	reportsStored, err := mem.ListReports(context.Background(), store.ReportFilter{})
	require.NoError(t, err)
	assert.Len(t, reportsStored, 2)
}

func TestSignalTransformer_MockDataIsReplaySafe(t *testing.T) {
	engine, mem := newEngine(t)
	tfm := pipeline.NewTransformer(engine, slog.Default())

	for range 2 {
		for _, value := range readMockSignals(t) {
			_, err := tfm.Transform(context.Background(), domain.RawEvent{Value: value})
			require.NoError(t, err)
		}
	}

	active, err := mem.ListAlerts(context.Background(), store.AlertFilter{Status: domain.AlertActive})
	require.NoError(t, err)
	assert.Len(t, active, 5, "replayed signals reuse alerts")
}
