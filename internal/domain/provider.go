package domain

import "context"

// WeatherProvider fetches the current weather for a city. Implementations
// return a NotFoundError for unknown cities, ErrRateLimited when throttled, and
// an UpstreamUnavailableError for timeouts and server errors.
type WeatherProvider interface {
	FetchWeather(ctx context.Context, city string) (WeatherPayload, error)
}
