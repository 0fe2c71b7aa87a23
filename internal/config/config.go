// Package config loads process configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/breatheroute/cleanroute/internal/airquality"
	"github.com/breatheroute/cleanroute/internal/database"
	"github.com/breatheroute/cleanroute/internal/routing"
)

// Sensor sources.
const (
	SourceCSV      = "csv"
	SourcePostgres = "postgres"
)

// Config is the full process configuration.
type Config struct {
	Port string `validate:"required,numeric"`
	Env  string `validate:"required"`

	// RequireTLS rejects API requests a proxy reports as plain HTTP.
	RequireTLS bool

	Telemetry TelemetryConfig
	Sensors   SensorConfig
	Model     airquality.ModelConfig
	Routing   RoutingConfig
	Exposure  ExposureConfig
	PubSub    PubSubConfig
	Database  database.Config

	// CorridorInterval is how often the worker compares the configured
	// corridors.
	CorridorInterval time.Duration `validate:"gte=1m"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string `validate:"required_if=Enabled true"`

	// SampleRatio is the fraction of traces sampled.
	SampleRatio float64 `validate:"gte=0,lte=1"`

	// MetricInterval is the metric export period.
	MetricInterval time.Duration `validate:"gte=1s"`
}

// SensorConfig selects and configures the sensor reading source.
type SensorConfig struct {
	Source      string `validate:"oneof=csv postgres"`
	CSVPath     string `validate:"required_if=Source csv"`
	Aggregation airquality.Aggregation

	// Window limits Postgres loads to recent readings (0 = all).
	Window time.Duration `validate:"gte=0"`
}

// RoutingConfig configures the OpenRouteService client.
type RoutingConfig struct {
	APIKey       string
	BaseURL      string        `validate:"omitempty,url"`
	Profile      routing.RouteProfile
	Timeout      time.Duration `validate:"gt=0"`
	Alternatives int           `validate:"min=1,max=5"`
	CacheTTL     time.Duration `validate:"gte=0"`
}

// ExposureConfig configures route sampling and score caching.
type ExposureConfig struct {
	StepMeters float64 `validate:"gt=0"`
	CacheSize  int     `validate:"gte=0"`
}

// PubSubConfig configures the worker's Pub/Sub transport.
type PubSubConfig struct {
	ProjectID    string
	Subscription string `validate:"required_with=ProjectID"`
	ResultTopic  string
}

// Load reads .env files (missing files are ignored) and then the
// environment. Variables already set in the environment take precedence.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables with defaults and
// validates it.
func FromEnv() (*Config, error) {
	p := &parser{}

	cfg := &Config{
		Port:       getenvDefault("APP_PORT", "8080"),
		Env:        getenvDefault("APP_ENV", "development"),
		RequireTLS: p.bool("REQUIRE_TLS", false),
		Telemetry: TelemetryConfig{
			Enabled:        p.bool("OTEL_ENABLED", false),
			OTLPEndpoint:   getenvDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			SampleRatio:    p.float("OTEL_SAMPLE_RATIO", 1),
			MetricInterval: p.duration("OTEL_METRIC_INTERVAL", 15*time.Second),
		},
		Sensors: SensorConfig{
			Source:  strings.ToLower(getenvDefault("SENSOR_SOURCE", SourceCSV)),
			CSVPath: getenvDefault("SENSOR_CSV_PATH", "data/airview_clearskies_hourly.csv"),
			Window:  p.duration("SENSOR_WINDOW", 0),
		},
		Model: airquality.ModelConfig{
			K:                    p.int("INTERP_K", 5),
			Power:                p.float("INTERP_POWER", 2),
			EpsilonMeters:        p.float("INTERP_EPSILON_METERS", 1),
			CoverageMarginMeters: p.float("COVERAGE_MARGIN_METERS", 2000),
		},
		Routing: RoutingConfig{
			APIKey:       os.Getenv("ORS_API_KEY"),
			BaseURL:      os.Getenv("ORS_BASE_URL"),
			Timeout:      p.duration("ROUTING_TIMEOUT", 10*time.Second),
			Alternatives: p.int("ROUTING_ALTERNATIVES", 3),
			CacheTTL:     p.duration("ROUTING_CACHE_TTL", 5*time.Minute),
		},
		Exposure: ExposureConfig{
			StepMeters: p.float("SAMPLE_STEP_METERS", 50),
			CacheSize:  p.int("SCORE_CACHE_SIZE", 1024),
		},
		PubSub: PubSubConfig{
			ProjectID:    os.Getenv("PUBSUB_PROJECT_ID"),
			Subscription: os.Getenv("PUBSUB_SUBSCRIPTION"),
			ResultTopic:  os.Getenv("PUBSUB_RESULT_TOPIC"),
		},
		Database:         database.ConfigFromEnv(),
		CorridorInterval: p.duration("CORRIDOR_INTERVAL", 60*time.Minute),
	}

	agg, err := airquality.ParseAggregation(os.Getenv("SENSOR_AGGREGATION"))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid SENSOR_AGGREGATION: %w", err))
	}
	cfg.Sensors.Aggregation = agg

	profile, err := routing.ParseProfile(os.Getenv("ROUTING_PROFILE"))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid ROUTING_PROFILE: %w", err))
	}
	cfg.Routing.Profile = profile

	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.Model.K < 1 {
		return nil, fmt.Errorf("invalid INTERP_K: must be at least 1")
	}

	return cfg, nil
}

// IsProduction reports whether the process runs in production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// parser collects parse errors so every invalid variable is reported at once.
type parser struct {
	errs []error
}

func (p *parser) int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return f
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return d
}

func (p *parser) bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return b
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
