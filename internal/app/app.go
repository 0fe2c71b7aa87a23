// Package app assembles the CleanRoute services shared by the API and the
// worker processes.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/breatheroute/cleanroute/internal/airquality"
	"github.com/breatheroute/cleanroute/internal/airquality/airview"
	"github.com/breatheroute/cleanroute/internal/airquality/postgres"
	"github.com/breatheroute/cleanroute/internal/api/middleware"
	"github.com/breatheroute/cleanroute/internal/comparison"
	"github.com/breatheroute/cleanroute/internal/config"
	"github.com/breatheroute/cleanroute/internal/database"
	"github.com/breatheroute/cleanroute/internal/exposure"
	"github.com/breatheroute/cleanroute/internal/provider/resilience"
	"github.com/breatheroute/cleanroute/internal/routing"
	"github.com/breatheroute/cleanroute/internal/routing/openrouteservice"
)

// Components are the wired services of one process.
type Components struct {
	// Pool is set only when sensors are read from Postgres.
	Pool *pgxpool.Pool

	Registry   *resilience.Registry
	AirQuality *airquality.Service
	Routing    *routing.Service
	Comparison *comparison.Service
}

// Build wires the sensor source, the routing provider and the comparison
// service from cfg. The model is not built; call StartModelBuild.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Components, error) {
	c := &Components{Registry: resilience.NewRegistry()}

	source, err := c.sensorSource(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	c.AirQuality = airquality.NewService(airquality.ServiceConfig{
		Source:      source,
		Model:       cfg.Model,
		Aggregation: cfg.Sensors.Aggregation,
		Logger:      log.With().Str("component", "airquality").Logger(),
	})

	if cfg.Routing.APIKey == "" {
		log.Warn().Msg("ORS_API_KEY not set - route comparisons will fail")
	}
	ors := openrouteservice.NewClient(openrouteservice.ClientConfig{
		APIKey:   cfg.Routing.APIKey,
		BaseURL:  cfg.Routing.BaseURL,
		Timeout:  cfg.Routing.Timeout,
		Registry: c.Registry,
		Logger:   log.With().Str("provider", openrouteservice.ProviderName).Logger(),
	})

	providerMetrics, err := middleware.NewProviderMetrics()
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("provider metrics: %w", err)
	}

	c.Routing = routing.NewService(routing.ServiceConfig{
		Provider: ors,
		Logger:   log.With().Str("component", "routing").Logger(),
		CacheTTL: cfg.Routing.CacheTTL,
		Metrics:  providerMetrics,
	})

	comparisonMetrics, err := comparison.NewMetrics()
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("comparison metrics: %w", err)
	}

	var cache *exposure.Cache
	if cfg.Exposure.CacheSize > 0 {
		cache = exposure.NewCache(cfg.Exposure.CacheSize)
	}

	c.Comparison = comparison.NewService(comparison.ServiceConfig{
		Holder:         c.AirQuality.Holder(),
		Router:         c.Routing,
		Sampler:        exposure.NewSampler(cfg.Exposure.StepMeters),
		Cache:          cache,
		Profile:        cfg.Routing.Profile,
		Alternatives:   cfg.Routing.Alternatives,
		RoutingTimeout: cfg.Routing.Timeout,
		Metrics:        comparisonMetrics,
		Logger:         log.With().Str("component", "comparison").Logger(),
	})

	return c, nil
}

func (c *Components) sensorSource(ctx context.Context, cfg *config.Config, log zerolog.Logger) (airquality.Source, error) {
	switch cfg.Sensors.Source {
	case config.SourcePostgres:
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		c.Pool = pool

		log.Info().
			Str("host", cfg.Database.Host).
			Int("port", cfg.Database.Port).
			Str("database", cfg.Database.Database).
			Msg("database connected")

		src := postgres.NewSource(pool, postgres.WithWindow(cfg.Sensors.Window))
		if err := src.EnsureSchema(ctx); err != nil {
			pool.Close()
			c.Pool = nil
			return nil, fmt.Errorf("ensure sensor schema: %w", err)
		}
		return src, nil

	default:
		log.Info().Str("path", cfg.Sensors.CSVPath).Msg("reading sensors from csv")
		return airview.NewSource(airview.SourceConfig{
			Path:     cfg.Sensors.CSVPath,
			Registry: c.Registry,
			Logger:   log.With().Str("source", "airview").Logger(),
		}), nil
	}
}

// StartModelBuild builds the model in the background. Until it succeeds,
// comparisons fail with model_not_ready.
func (c *Components) StartModelBuild(ctx context.Context, log zerolog.Logger) {
	go func() {
		model, err := c.AirQuality.BuildWithRetry(ctx)
		if err != nil {
			log.Error().Err(err).Msg("interpolation model unavailable")
			return
		}
		log.Info().
			Int("sensors", model.Dataset().Len()).
			Msg("interpolation model ready")
	}()
}

// Close releases the database pool, if any.
func (c *Components) Close() {
	if c.Pool != nil {
		c.Pool.Close()
	}
}
