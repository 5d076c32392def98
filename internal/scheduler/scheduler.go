// Package scheduler runs the periodic jobs: weather polling for the monitored
// cities and the alert expiry sweep.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/disaster-alert-service/internal/analysis"
	"github.com/couchcryptid/disaster-alert-service/internal/domain"
	"github.com/couchcryptid/disaster-alert-service/internal/observability"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

const (
	jobPoll  = "poll"
	jobSweep = "sweep"
)

// CityAnalyzer analyzes the current weather of one city.
type CityAnalyzer interface {
	AnalyzeCity(ctx context.Context, city string) (analysis.Result, error)
}

// Sweeper expires and announces alerts whose validity window has closed.
type Sweeper interface {
	ExpireStale(ctx context.Context) ([]domain.DisasterAlert, error)
}

// Pruner owns the recent-alert cache.
type Pruner interface {
	Prune() int
}

// Config holds scheduling settings.
type Config struct {
	PollSpec    string
	SweepSpec   string
	Cities      []string
	Concurrency int
	JobTimeout  time.Duration
}

// Scheduler wraps a cron runner. Overlapping runs of the same job are
// skipped.
type Scheduler struct {
	cfg      Config
	cron     *cron.Cron
	base     context.Context
	analyzer CityAnalyzer
	sweeper  Sweeper
	pruner   Pruner
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// New creates a Scheduler and registers its jobs. An empty spec disables
// the corresponding job.
func New(cfg Config, analyzer CityAnalyzer, sweeper Sweeper, pruner Pruner, logger *slog.Logger, metrics *observability.Metrics) (*Scheduler, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Minute
	}
	cl := cronLogger{logger: logger}
	s := &Scheduler{
		cfg:      cfg,
		cron:     cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		base:     context.Background(),
		analyzer: analyzer,
		sweeper:  sweeper,
		pruner:   pruner,
		logger:   logger,
		metrics:  metrics,
	}

	if cfg.PollSpec != "" {
		if _, err := s.cron.AddFunc(cfg.PollSpec, s.job(jobPoll, s.PollCities)); err != nil {
			return nil, fmt.Errorf("schedule %s %q: %w", jobPoll, cfg.PollSpec, err)
		}
	}
	if cfg.SweepSpec != "" {
		if _, err := s.cron.AddFunc(cfg.SweepSpec, s.job(jobSweep, func(ctx context.Context) error {
			_, err := s.Sweep(ctx)
			return err
		})); err != nil {
			return nil, fmt.Errorf("schedule %s %q: %w", jobSweep, cfg.SweepSpec, err)
		}
	}
	return s, nil
}

// Run starts the cron runner and blocks until ctx is cancelled, then waits
// for running jobs to finish. Jobs run under ctx, so cancelling it also
// cancels them.
func (s *Scheduler) Run(ctx context.Context) {
	s.base = ctx
	s.logger.Info("scheduler started",
		"poll", s.cfg.PollSpec, "sweep", s.cfg.SweepSpec, "cities", len(s.cfg.Cities))
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// PollCities analyzes every monitored city with bounded concurrency. A
// failing city does not stop the others; the failures are joined.
func (s *Scheduler) PollCities(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	errs := make([]error, len(s.cfg.Cities))
	for i, city := range s.cfg.Cities {
		g.Go(func() error {
			res, err := s.analyzer.AnalyzeCity(gctx, city)
			if err != nil {
				s.logger.Warn("city poll failed", "city", city, "error", err)
				errs[i] = fmt.Errorf("%s: %w", city, err)
				return nil
			}
			s.logger.Debug("city polled",
				"city", city,
				"risk_level", res.Assessment.RiskLevel.String(),
				"alert_action", res.Action,
				"simulated", res.Simulated,
			)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Sweep expires stale alerts, which the sweeper announces as closed, and
// prunes the recent-alert cache.
func (s *Scheduler) Sweep(ctx context.Context) ([]domain.DisasterAlert, error) {
	expired, err := s.sweeper.ExpireStale(ctx)
	if err != nil {
		return nil, err
	}
	if n := s.pruner.Prune(); n > 0 {
		s.logger.Debug("pruned recent alerts", "count", n)
	}
	return expired, nil
}

func (s *Scheduler) job(name string, fn func(ctx context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(s.base, s.cfg.JobTimeout)
		defer cancel()

		start := time.Now()
		if err := fn(ctx); err != nil {
			s.metrics.SchedulerRuns.WithLabelValues(name, "error").Inc()
			s.logger.Error("scheduled job failed", "job", name, "duration", time.Since(start), "error", err)
			return
		}
		s.metrics.SchedulerRuns.WithLabelValues(name, "success").Inc()
		s.logger.Debug("scheduled job finished", "job", name, "duration", time.Since(start))
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
