// Package api provides the HTTP API for CleanRoute.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/breatheroute/cleanroute/internal/api/handler"
	"github.com/breatheroute/cleanroute/internal/api/middleware"
	"github.com/breatheroute/cleanroute/internal/api/response"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version   string
	BuildTime string
	Logger    zerolog.Logger
	Metrics   *middleware.Metrics

	// RequireTLS rejects plain HTTP requests that did not arrive through a
	// TLS-terminating proxy.
	RequireTLS bool

	// Comparer scores candidate routes (required).
	Comparer handler.RouteComparer

	// Pollution answers point estimates and coverage queries (required).
	Pollution handler.PollutionSource

	// ModelStatus, Providers, Cache and Database feed /v1/ops endpoints.
	ModelStatus handler.ModelStatusSource
	Providers   handler.ProviderHealthSource
	Cache       handler.CacheStatsSource
	Database    handler.Pinger
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware - order matters
	r.Use(middleware.RequestID) // Generate/propagate request ID first
	r.Use(middleware.Tracing()) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))         // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))       // Panic recovery
	r.Use(chimiddleware.RealIP)                  // Real IP extraction
	r.Use(middleware.SecurityHeaders)            // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS)) // TLS enforcement
	r.Use(middleware.ContentTypeJSON)            // JSON content type

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, r, "no resource at "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.MethodNotAllowed(w, r, r.Method+" is not supported on "+r.URL.Path)
	})

	validator := handler.NewValidator()

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Model:     cfg.ModelStatus,
		Providers: cfg.Providers,
		Cache:     cfg.Cache,
		Database:  cfg.Database,
	})
	routeHandler := handler.NewRouteHandler(cfg.Comparer, validator, cfg.Logger)
	metadataHandler := handler.NewMetadataHandler(cfg.Pollution, validator, cfg.Logger)

	// Create rate limit middleware for different endpoint categories
	expensiveRateLimit := middleware.RateLimitByIP(middleware.ExpensiveRateLimit)          // 30 req/min
	lookupRateLimit := middleware.RateLimitByIP(middleware.LookupRateLimit)                // 120 req/min
	standardRateLimit := middleware.RateLimitByIPAndEndpoint(middleware.StandardRateLimit) // 100 req/min per path

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		// Route comparison - expensive compute, strict rate limiting
		r.With(expensiveRateLimit, middleware.RequireJSON).Post("/routes:compare", routeHandler.CompareRoutes)
		r.With(expensiveRateLimit).Get("/routes/compare", routeHandler.CompareRoutesQuery)

		// Point estimates
		r.With(lookupRateLimit).Get("/pollution", metadataHandler.Pollution)

		// Dataset metadata
		r.With(standardRateLimit).Get("/coverage", metadataHandler.Coverage)
		r.Route("/metadata", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/sensors", metadataHandler.ListSensors)
		})
	})

	return r
}
