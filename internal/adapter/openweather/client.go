package openweather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/disaster-alert-service/internal/domain"
	"github.com/couchcryptid/disaster-alert-service/internal/observability"
)

const providerName = "openweather"

// Client implements domain.WeatherProvider using the OpenWeather current
// weather API.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an OpenWeather client.
func NewClient(apiKey, baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		metrics: metrics,
		logger:  logger,
	}
}

// FetchWeather returns the current weather for an Indian city in metric units.
func (c *Client) FetchWeather(ctx context.Context, city string) (domain.WeatherPayload, error) {
	params := url.Values{
		"q":     {city + ",IN"},
		"appid": {c.apiKey},
		"units": {"metric"},
	}
	fullURL := c.baseURL + "/weather?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.WeatherPayload{}, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.WeatherAPIDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.WeatherRequests.WithLabelValues("unavailable").Inc()
		if ctx.Err() != nil && !isTimeout(err) {
			return domain.WeatherPayload{}, ctx.Err()
		}
		return domain.WeatherPayload{}, &domain.UpstreamUnavailableError{Provider: providerName, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.metrics.WeatherRequests.WithLabelValues("not_found").Inc()
		return domain.WeatherPayload{}, &domain.NotFoundError{Kind: "city", ID: city}
	case resp.StatusCode == http.StatusTooManyRequests:
		c.metrics.WeatherRequests.WithLabelValues("rate_limited").Inc()
		return domain.WeatherPayload{}, domain.ErrRateLimited
	case resp.StatusCode >= http.StatusInternalServerError:
		c.metrics.WeatherRequests.WithLabelValues("unavailable").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.WeatherPayload{}, &domain.UpstreamUnavailableError{
			Provider: providerName,
			Err:      fmt.Errorf("status %d: %s", resp.StatusCode, body),
		}
	case resp.StatusCode != http.StatusOK:
		c.metrics.WeatherRequests.WithLabelValues("error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.WeatherPayload{}, fmt.Errorf("openweather API error: status %d: %s", resp.StatusCode, body)
	}

	var payload domain.WeatherPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.metrics.WeatherRequests.WithLabelValues("error").Inc()
		return domain.WeatherPayload{}, &domain.InvalidInputError{Reason: "decode weather response: " + err.Error()}
	}
	c.metrics.WeatherRequests.WithLabelValues("success").Inc()
	c.logger.Debug("weather fetched", "city", city, "name", payload.Name)
	return payload, nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout())
}
