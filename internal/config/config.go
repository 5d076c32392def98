package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// DefaultCities are polled when MONITORED_CITIES is unset.
var DefaultCities = []string{
	"Delhi", "Mumbai", "Chennai", "Kolkata", "Bangalore",
	"Hyderabad", "Ahmedabad", "Pune", "Jaipur", "Guwahati",
}

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaEnabled     bool
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaAlertTopic  string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	// Storage. An empty DatabaseURL selects the in-memory store.
	DatabaseURL string

	// Scoring.
	KeywordTablesPath string

	// OpenWeather provider configuration.
	OpenWeatherAPIKey    string
	OpenWeatherBaseURL   string
	OpenWeatherTimeout   time.Duration
	WeatherCacheSize     int
	WeatherCacheTTL      time.Duration
	WeatherRetryAttempts int
	WeatherSimulate      bool

	// Scheduling.
	MonitoredCities []string
	PollSchedule    string
	SweepSchedule   string
	PollConcurrency int

	// Notification dedupe.
	DispatchCacheSize       int
	DispatchConfidenceDelta int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	owTimeout, err := parseDuration("OPENWEATHER_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	cacheTTL, err := parseDuration("WEATHER_CACHE_TTL", "10m")
	if err != nil {
		return nil, err
	}

	cacheSize, err := parsePositiveInt("WEATHER_CACHE_SIZE", 256)
	if err != nil {
		return nil, err
	}
	retries, err := parsePositiveInt("WEATHER_RETRY_ATTEMPTS", 3)
	if err != nil {
		return nil, err
	}
	concurrency, err := parsePositiveInt("POLL_CONCURRENCY", 4)
	if err != nil {
		return nil, err
	}
	dispatchSize, err := parsePositiveInt("DISPATCH_CACHE_SIZE", 1024)
	if err != nil {
		return nil, err
	}
	dispatchDelta, err := parsePositiveInt("DISPATCH_CONFIDENCE_DELTA", 10)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		KafkaEnabled:       parseBool("KAFKA_ENABLED", true),
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "disaster-signals"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "risk-assessments"),
		KafkaAlertTopic:    sharedcfg.EnvOrDefault("KAFKA_ALERT_TOPIC", "disaster-alerts"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "disaster-alert-service"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		DatabaseURL:       os.Getenv("DATABASE_URL"),
		KeywordTablesPath: os.Getenv("KEYWORD_TABLES_PATH"),

		OpenWeatherAPIKey:    os.Getenv("OPENWEATHER_API_KEY"),
		OpenWeatherBaseURL:   sharedcfg.EnvOrDefault("OPENWEATHER_BASE_URL", "https://api.openweathermap.org/data/2.5"),
		OpenWeatherTimeout:   owTimeout,
		WeatherCacheSize:     cacheSize,
		WeatherCacheTTL:      cacheTTL,
		WeatherRetryAttempts: retries,
		WeatherSimulate:      parseBool("WEATHER_SIMULATE", true),

		MonitoredCities: parseList(os.Getenv("MONITORED_CITIES"), DefaultCities),
		PollSchedule:    sharedcfg.EnvOrDefault("POLL_SCHEDULE", "@every 30m"),
		SweepSchedule:   sharedcfg.EnvOrDefault("SWEEP_SCHEDULE", "@every 1m"),
		PollConcurrency: concurrency,

		DispatchCacheSize:       dispatchSize,
		DispatchConfidenceDelta: dispatchDelta,
	}

	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaSourceTopic == "" {
			return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
		}
		if cfg.KafkaSinkTopic == "" {
			return nil, errors.New("KAFKA_SINK_TOPIC is required")
		}
	}
	if cfg.OpenWeatherAPIKey == "" && !cfg.WeatherSimulate {
		return nil, errors.New("OPENWEATHER_API_KEY is required when WEATHER_SIMULATE is false")
	}

	return cfg, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}

func parseBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true"
	}
	return def
}

func parseList(s string, def []string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), def...)
	}
	return out
}
