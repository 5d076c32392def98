// Package weather wraps a weather provider with bounded retries and a
// clearly flagged synthetic fallback for when the provider cannot answer.
package weather

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/couchcryptid/disaster-alert-service/internal/domain"
	"github.com/couchcryptid/disaster-alert-service/internal/observability"
	"github.com/couchcryptid/storm-data-shared/retry"
)

// SimulatedDescription marks synthetic readings.
const SimulatedDescription = "simulated data"

// Options configures a Fetcher.
type Options struct {
	// Attempts is the total number of provider calls for unavailable errors.
	Attempts    int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// Simulate enables the synthetic fallback.
	Simulate bool
}

// Fetcher implements domain.WeatherProvider on top of another provider.
type Fetcher struct {
	provider domain.WeatherProvider
	opts     Options
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewFetcher creates a Fetcher. Non-positive option values take defaults of
// 3 attempts and 200ms doubling up to 2s.
func NewFetcher(provider domain.WeatherProvider, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Fetcher {
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 200 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 2 * time.Second
	}
	return &Fetcher{provider: provider, opts: opts, logger: logger, metrics: metrics}
}

// FetchWeather retries unavailable errors with exponential backoff. When the
// provider stays unavailable or is rate limited and simulation is enabled, a
// synthetic payload with Simulated set is returned instead. Not-found and
// other errors are returned as-is.
func (f *Fetcher) FetchWeather(ctx context.Context, city string) (domain.WeatherPayload, error) {
	backoff := f.opts.BaseBackoff

	var err error
	for attempt := 1; attempt <= f.opts.Attempts; attempt++ {
		var p domain.WeatherPayload
		p, err = f.provider.FetchWeather(ctx, city)
		if err == nil {
			return p, nil
		}
		if !isUnavailable(err) || attempt == f.opts.Attempts {
			break
		}
		f.logger.Warn("weather provider unavailable, retrying",
			"city", city, "attempt", attempt, "backoff", backoff, "error", err)
		if !retry.SleepWithContext(ctx, backoff) {
			return domain.WeatherPayload{}, ctx.Err()
		}
		backoff = retry.NextBackoff(backoff, f.opts.MaxBackoff)
	}

	if !f.opts.Simulate || !(isUnavailable(err) || errors.Is(err, domain.ErrRateLimited)) {
		return domain.WeatherPayload{}, err
	}
	f.metrics.WeatherRequests.WithLabelValues("simulated").Inc()
	f.logger.Warn("weather provider failed, using simulated data", "city", city, "error", err)
	return Synthetic(city), nil
}

// Synthetic returns a deterministic, benign payload for city. Its readings
// stay below every alerting threshold.
func Synthetic(city string) domain.WeatherPayload {
	return domain.WeatherPayload{
		Weather: []domain.WeatherCondition{{Description: SimulatedDescription, Icon: "01d"}},
		Main: &domain.WeatherMain{
			Temp:      ptr(30),
			FeelsLike: ptr(32),
			Humidity:  ptr(55),
			Pressure:  ptr(1010),
		},
		Visibility: ptr(10000),
		Wind:       &domain.WeatherWind{Speed: ptr(2.5)},
		Rain:       &domain.WeatherRain{ThreeHour: ptr(0)},
		Name:       city,
		Simulated:  true,
	}
}

// SimulatedProvider serves Synthetic payloads for every city. It stands in
// for the real provider when no API key is configured.
type SimulatedProvider struct{}

func (SimulatedProvider) FetchWeather(_ context.Context, city string) (domain.WeatherPayload, error) {
	return Synthetic(city), nil
}

func isUnavailable(err error) bool {
	var ue *domain.UpstreamUnavailableError
	return errors.As(err, &ue)
}

func ptr(v float64) *float64 {
	return &v
}
