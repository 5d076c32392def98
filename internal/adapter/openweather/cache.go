package openweather

import (
	"context"
	"time"

	"github.com/couchcryptid/disaster-alert-service/internal/domain"
	"github.com/couchcryptid/disaster-alert-service/internal/lru"
	"github.com/couchcryptid/disaster-alert-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

// CachedProvider wraps a WeatherProvider with an LRU cache whose entries
// expire after ttl.
type CachedProvider struct {
	inner   domain.WeatherProvider
	cache   *lru.Cache[string, domain.WeatherPayload]
	ttl     time.Duration
	clock   clockwork.Clock
	metrics *observability.Metrics
}

// NewCachedProvider creates a cache decorator around a provider.
func NewCachedProvider(inner domain.WeatherProvider, maxEntries int, ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics) *CachedProvider {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CachedProvider{
		inner:   inner,
		cache:   lru.New[string, domain.WeatherPayload](maxEntries),
		ttl:     ttl,
		clock:   clock,
		metrics: metrics,
	}
}

func (c *CachedProvider) FetchWeather(ctx context.Context, city string) (domain.WeatherPayload, error) {
	key := domain.CityKey(city)
	if p, ok := c.cache.Get(key, c.clock.Now()); ok {
		c.metrics.WeatherCache.WithLabelValues("hit").Inc()
		return p, nil
	}
	c.metrics.WeatherCache.WithLabelValues("miss").Inc()

	p, err := c.inner.FetchWeather(ctx, city)
	if err != nil {
		return p, err
	}
	// Synthetic payloads are never cached so the next poll retries the provider.
	if !p.Simulated {
		c.cache.Put(key, p, c.clock.Now().Add(c.ttl))
	}
	return p, nil
}
