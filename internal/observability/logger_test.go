package observability

import (
	"context"
	"log/slog"
	"testing"

	"github.com/couchcryptid/disaster-alert-service/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestNewLogger_Level(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	logger := NewLogger(&config.Config{LogLevel: "warn", LogFormat: "json"})
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelWarn))
	assert.Same(t, logger, slog.Default())

	debug := NewLogger(&config.Config{LogLevel: "debug", LogFormat: "text"})
	assert.True(t, debug.Enabled(context.Background(), slog.LevelDebug))
}

func TestNewMetricsForTesting_Unregistered(t *testing.T) {
	a := NewMetricsForTesting()
	b := NewMetricsForTesting()
	a.AlertDecisions.WithLabelValues("create").Inc()
	b.AlertDecisions.WithLabelValues("create").Inc()
	assert.Len(t, a.collectors(), 17)
}
