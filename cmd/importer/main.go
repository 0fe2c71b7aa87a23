// Package main provides the entrypoint for the CleanRoute sensor importer.
// It copies the readings of a CSV export into PostgreSQL so the API and
// worker can run with SENSOR_SOURCE=postgres.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/cleanroute/internal/airquality/airview"
	"github.com/breatheroute/cleanroute/internal/airquality/postgres"
	"github.com/breatheroute/cleanroute/internal/config"
	"github.com/breatheroute/cleanroute/internal/database"
)

// Version and BuildTime are set at compile time via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", "cleanroute-importer").
		Str("version", Version).
		Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	// An explicit path overrides SENSOR_CSV_PATH.
	path := cfg.Sensors.CSVPath
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	readings, err := airview.NewSource(airview.SourceConfig{
		Path:   path,
		Logger: log.With().Str("source", "airview").Logger(),
	}).Load(ctx)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("failed to load readings")
	}

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	dst := postgres.NewSource(pool)
	if err := dst.EnsureSchema(ctx); err != nil {
		log.Error().Err(err).Msg("failed to create sensor schema")
		os.Exit(1) //nolint:gocritic // pool cleanup is best-effort
	}

	n, err := dst.Import(ctx, readings)
	if err != nil {
		log.Error().Err(err).Msg("failed to import readings")
		os.Exit(1)
	}

	log.Info().
		Str("path", path).
		Int("read", len(readings)).
		Int64("imported", n).
		Dur("duration", time.Since(start)).
		Str("build_time", BuildTime).
		Msg("sensor readings imported")
}
