package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/disaster-alert-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/disaster-alert-service/internal/adapter/kafka"
	"github.com/couchcryptid/disaster-alert-service/internal/adapter/openweather"
	"github.com/couchcryptid/disaster-alert-service/internal/alerting"
	"github.com/couchcryptid/disaster-alert-service/internal/analysis"
	"github.com/couchcryptid/disaster-alert-service/internal/config"
	"github.com/couchcryptid/disaster-alert-service/internal/domain"
	"github.com/couchcryptid/disaster-alert-service/internal/notify"
	"github.com/couchcryptid/disaster-alert-service/internal/observability"
	"github.com/couchcryptid/disaster-alert-service/internal/pipeline"
	"github.com/couchcryptid/disaster-alert-service/internal/reports"
	"github.com/couchcryptid/disaster-alert-service/internal/scheduler"
	"github.com/couchcryptid/disaster-alert-service/internal/scoring"
	"github.com/couchcryptid/disaster-alert-service/internal/stats"
	"github.com/couchcryptid/disaster-alert-service/internal/store"
	"github.com/couchcryptid/disaster-alert-service/internal/weather"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var checks readiness

	// Storage: Postgres when DATABASE_URL is set, in-memory otherwise.
	var st store.Store
	var pg *store.Postgres
	if cfg.DatabaseURL != "" {
		pg, err = store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open postgres", "error", err)
			os.Exit(1)
		}
		if err := pg.Migrate(ctx); err != nil {
			logger.Error("failed to migrate postgres", "error", err)
			os.Exit(1)
		}
		st = pg
		checks = append(checks, pg)
		logger.Info("postgres store enabled")
	} else {
		st = store.NewMemory()
		logger.Info("in-memory store enabled")
	}

	tables := scoring.DefaultTables()
	if cfg.KeywordTablesPath != "" {
		tables, err = scoring.LoadTables(cfg.KeywordTablesPath)
		if err != nil {
			logger.Error("failed to load keyword tables", "path", cfg.KeywordTablesPath, "error", err)
			os.Exit(1)
		}
	}
	scorer := scoring.New(tables)

	// Weather provider: cached OpenWeather client behind the retrying fetcher.
	var provider domain.WeatherProvider = weather.SimulatedProvider{}
	if cfg.OpenWeatherAPIKey != "" {
		client := openweather.NewClient(cfg.OpenWeatherAPIKey, cfg.OpenWeatherBaseURL, cfg.OpenWeatherTimeout, metrics, logger)
		provider = openweather.NewCachedProvider(client, cfg.WeatherCacheSize, cfg.WeatherCacheTTL, nil, metrics)
		logger.Info("openweather enabled", "cache_size", cfg.WeatherCacheSize, "cache_ttl", cfg.WeatherCacheTTL)
	} else {
		logger.Info("openweather disabled, serving simulated weather")
	}
	fetcher := weather.NewFetcher(provider, weather.Options{
		Attempts: cfg.WeatherRetryAttempts,
		Simulate: cfg.WeatherSimulate,
	}, logger, metrics)

	hub := notify.NewHub(logger, metrics)
	go hub.Run(ctx)

	sinks := []notify.Sink{hub}
	var alertWriter *kafkaadapter.Writer
	if cfg.KafkaEnabled && cfg.KafkaAlertTopic != "" {
		alertWriter = kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaAlertTopic, logger)
		sinks = append(sinks, alertWriter)
	}
	dispatcher := notify.NewDispatcher(notify.DispatcherConfig{
		CacheSize:       cfg.DispatchCacheSize,
		ConfidenceDelta: cfg.DispatchConfidenceDelta,
	}, nil, logger, metrics, sinks...)

	aggregator := alerting.NewAggregator(st, nil, logger, metrics)
	manager := alerting.NewManager(st, dispatcher, nil, logger, metrics)
	reportSvc := reports.NewService(st, aggregator, manager, dispatcher, nil, logger)
	analyzer := analysis.New(analysis.Deps{
		Scorer:     scorer,
		Weather:    fetcher,
		Snapshots:  st,
		Aggregator: aggregator,
		Publisher:  dispatcher,
		Reports:    reportSvc,
		Logger:     logger,
		Metrics:    metrics,
	})
	statsSvc := stats.New(st, nil)

	sched, err := scheduler.New(scheduler.Config{
		PollSpec:    cfg.PollSchedule,
		SweepSpec:   cfg.SweepSchedule,
		Cities:      cfg.MonitoredCities,
		Concurrency: cfg.PollConcurrency,
	}, analyzer, manager, dispatcher, logger, metrics)
	if err != nil {
		logger.Error("failed to create scheduler", "error", err)
		os.Exit(1)
	}

	var (
		reader     *kafkaadapter.Reader
		sinkWriter *kafkaadapter.Writer
		p          *pipeline.Pipeline
	)
	if cfg.KafkaEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		sinkWriter = kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaSinkTopic, logger)
		p = pipeline.New(reader, pipeline.NewTransformer(analyzer, logger), sinkWriter, logger, metrics, cfg.BatchSize)
		checks = append(checks, p)
	} else {
		logger.Info("kafka pipeline disabled")
	}

	api := httpadapter.NewAPI(analyzer, manager, reportSvc, statsSvc, dispatcher, logger)
	srv := httpadapter.NewServer(cfg.HTTPAddr, checks, http.HandlerFunc(hub.ServeWS), api, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start scheduled polling and sweeps.
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		sched.Run(ctx)
	}()

	// Start signal pipeline.
	if p != nil {
		go func() {
			if err := p.Run(ctx); err != nil {
				logger.Error("pipeline error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-schedDone:
	case <-shutdownCtx.Done():
		logger.Warn("scheduler did not stop before shutdown timeout")
	}
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if sinkWriter != nil {
		if err := sinkWriter.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if alertWriter != nil {
		if err := alertWriter.Close(); err != nil {
			logger.Error("kafka alert writer close error", "error", err)
		}
	}
	if pg != nil {
		if err := pg.Close(); err != nil {
			logger.Error("postgres close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

// readiness is ready when every member is.
type readiness []sharedobs.ReadinessChecker

func (r readiness) CheckReadiness(ctx context.Context) error {
	for _, c := range r {
		if err := c.CheckReadiness(ctx); err != nil {
			return fmt.Errorf("not ready: %w", err)
		}
	}
	return nil
}
