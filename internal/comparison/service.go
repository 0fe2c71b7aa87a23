package comparison

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/breatheroute/cleanroute/internal/airquality"
	"github.com/breatheroute/cleanroute/internal/exposure"
	"github.com/breatheroute/cleanroute/internal/routing"
)

const (
	// DefaultRoutingTimeout bounds each call to the routing provider.
	DefaultRoutingTimeout = 10 * time.Second

	// DefaultAlternatives is the number of candidate routes requested.
	DefaultAlternatives = 3
)

// Router fetches candidate routes. *routing.Service satisfies it.
type Router interface {
	GetDirections(ctx context.Context, req routing.DirectionsRequest) (*routing.DirectionsResponse, error)
}

// ServiceConfig holds configuration for the comparison service.
type ServiceConfig struct {
	// Holder provides the interpolation model (required).
	Holder *airquality.ModelHolder

	// Router fetches candidate routes (required).
	Router Router

	// Sampler resamples routes for scoring. Default: 50m steps.
	Sampler *exposure.Sampler

	// Cache memoises scores by geometry (optional).
	Cache *exposure.Cache

	// Profile is the routing profile. Default: driving-car.
	Profile routing.RouteProfile

	// Alternatives is the default number of candidates requested. Default: 3.
	Alternatives int

	// RoutingTimeout bounds each routing call, provider retries included.
	// Default: 10s.
	RoutingTimeout time.Duration

	// Concurrency bounds parallel scoring. Default: 4.
	Concurrency int

	// Metrics records comparison outcomes (optional).
	Metrics *Metrics

	// Logger for comparison operations.
	Logger zerolog.Logger
}

// Request is one origin/destination comparison.
type Request struct {
	Origin      exposure.Coordinate
	Destination exposure.Coordinate

	// Alternatives overrides the configured candidate count when positive.
	Alternatives int
}

// Service compares candidate routes for an origin and destination.
type Service struct {
	holder         *airquality.ModelHolder
	router         Router
	sampler        *exposure.Sampler
	cache          *exposure.Cache
	profile        routing.RouteProfile
	alternatives   int
	routingTimeout time.Duration
	concurrency    int
	metrics        *Metrics
	tracer         trace.Tracer
	logger         zerolog.Logger
}

// NewService creates a new comparison service.
func NewService(cfg ServiceConfig) *Service {
	sampler := cfg.Sampler
	if sampler == nil {
		sampler = exposure.NewSampler(exposure.DefaultStepMeters)
	}

	profile := cfg.Profile
	if profile == "" {
		profile = routing.ProfileDrive
	}

	alternatives := cfg.Alternatives
	if alternatives <= 0 {
		alternatives = DefaultAlternatives
	}

	timeout := cfg.RoutingTimeout
	if timeout <= 0 {
		timeout = DefaultRoutingTimeout
	}

	return &Service{
		holder:         cfg.Holder,
		router:         cfg.Router,
		sampler:        sampler,
		cache:          cfg.Cache,
		profile:        profile,
		alternatives:   alternatives,
		routingTimeout: timeout,
		concurrency:    cfg.Concurrency,
		metrics:        cfg.Metrics,
		tracer:         otel.Tracer(instrumentationName),
		logger:         cfg.Logger,
	}
}

// Compare fetches candidate routes and returns the fastest and cleanest.
// Endpoints outside sensor coverage are rejected before the routing
// provider is called.
func (s *Service) Compare(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	ctx, span := s.tracer.Start(ctx, "comparison.Compare",
		trace.WithAttributes(
			attribute.Float64("origin.lat", req.Origin.Lat),
			attribute.Float64("origin.lon", req.Origin.Lon),
			attribute.Float64("destination.lat", req.Destination.Lat),
			attribute.Float64("destination.lon", req.Destination.Lon),
		),
	)
	defer span.End()

	result, err := s.compare(ctx, req)

	s.metrics.record(ctx, result, time.Since(start), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(KindOf(err)))
		s.logger.Warn().
			Err(err).
			Str("kind", string(KindOf(err))).
			Dur("duration", time.Since(start)).
			Msg("route comparison failed")
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("candidates", len(result.Alternatives)),
		attribute.Float64("sample.step_meters", s.sampler.Step()),
		attribute.Int("fastest.index", result.Fastest.Index),
		attribute.Int("cleanest.index", result.Cleanest.Index),
	)

	s.logger.Info().
		Int("candidates", len(result.Alternatives)).
		Int("fastest", result.Fastest.Index).
		Int("cleanest", result.Cleanest.Index).
		Bool("same_route", result.SameRoute).
		Dur("duration", time.Since(start)).
		Msg("routes compared")

	return result, nil
}

func (s *Service) compare(ctx context.Context, req Request) (*Result, error) {
	model, err := s.holder.Get()
	if err != nil {
		return nil, &Error{Kind: KindModelNotReady, RouteIndex: -1, Err: err}
	}

	for _, p := range []exposure.Coordinate{req.Origin, req.Destination} {
		if !model.Covers(p) {
			return nil, coverageError(p, &airquality.CoverageError{Point: p})
		}
	}

	candidates, indexes, err := s.candidates(ctx, req)
	if err != nil {
		return nil, err
	}

	scorer := exposure.NewScorer(exposure.ScorerConfig{
		Estimator: model,
		Sampler:   s.sampler,
		Cache:     s.cache,
		Logger:    s.logger,
	})

	return NewSelector(scorer, s.concurrency).selectIndexed(ctx, candidates, indexes)
}

// candidates calls the routing provider and drops routes without a
// usable geometry. indexes holds the provider position of each kept route.
func (s *Service) candidates(ctx context.Context, req Request) ([]routing.Route, []int, error) {
	alternatives := req.Alternatives
	if alternatives <= 0 {
		alternatives = s.alternatives
	}

	routeCtx, cancel := context.WithTimeout(ctx, s.routingTimeout)
	defer cancel()

	resp, err := s.router.GetDirections(routeCtx, routing.DirectionsRequest{
		Origin:          req.Origin,
		Destination:     req.Destination,
		Profile:         s.profile,
		MaxAlternatives: alternatives,
	})
	if err != nil {
		if errors.Is(err, routing.ErrNoRouteFound) {
			return nil, nil, &Error{Kind: KindNoCandidates, RouteIndex: -1, Err: fmt.Errorf("%w: %w", ErrNoCandidates, err)}
		}
		return nil, nil, &Error{Kind: KindRoutingService, RouteIndex: -1, Err: fmt.Errorf("%w: %w", ErrRoutingService, err)}
	}
	if resp == nil {
		return nil, nil, &Error{Kind: KindNoCandidates, RouteIndex: -1, Err: ErrNoCandidates}
	}

	usable := make([]routing.Route, 0, len(resp.Routes))
	indexes := make([]int, 0, len(resp.Routes))
	for i, r := range resp.Routes {
		if !r.Usable() {
			s.logger.Warn().
				Int("route", i).
				Int("points", len(r.Points)).
				Msg("dropping route without usable geometry")
			continue
		}
		usable = append(usable, r)
		indexes = append(indexes, i)
	}
	if len(usable) == 0 {
		return nil, nil, &Error{Kind: KindNoCandidates, RouteIndex: -1, Err: ErrNoCandidates}
	}

	return usable, indexes, nil
}

// EstimateAt returns the interpolated concentration at p.
func (s *Service) EstimateAt(_ context.Context, p exposure.Coordinate) (*airquality.Estimate, error) {
	model, err := s.holder.Get()
	if err != nil {
		return nil, &Error{Kind: KindModelNotReady, RouteIndex: -1, Err: err}
	}
	return estimate(model, p)
}

// EstimateAtHour interpolates p from the readings taken in the hour
// containing t only. The per-hour model is built on demand with the
// published model's configuration, so its coverage can be smaller.
func (s *Service) EstimateAtHour(_ context.Context, p exposure.Coordinate, t time.Time) (*airquality.Estimate, error) {
	model, err := s.holder.Get()
	if err != nil {
		return nil, &Error{Kind: KindModelNotReady, RouteIndex: -1, Err: err}
	}

	hour := t.UTC().Truncate(time.Hour)
	ds, err := model.Dataset().AtHour(hour)
	if errors.Is(err, airquality.ErrEmptyDataset) {
		return nil, &Error{Kind: KindNoReadings, RouteIndex: -1, Err: fmt.Errorf("%w: %s", ErrNoReadings, hour.Format(time.RFC3339))}
	}
	if err != nil {
		return nil, err
	}

	hourly, err := airquality.NewModel(ds, model.Config())
	if err != nil {
		return nil, err
	}
	return estimate(hourly, p)
}

func estimate(model *airquality.Model, p exposure.Coordinate) (*airquality.Estimate, error) {
	est, err := model.Estimate(p)
	if err != nil {
		if errors.Is(err, airquality.ErrOutOfCoverage) {
			return nil, coverageError(p, err)
		}
		return nil, err
	}
	return est, nil
}

// Model returns the published interpolation model.
func (s *Service) Model() (*airquality.Model, error) {
	return s.holder.Get()
}

// CacheStats reports score cache usage. It is zero when no cache is configured.
func (s *Service) CacheStats() exposure.CacheStats {
	if s.cache == nil {
		return exposure.CacheStats{}
	}
	return s.cache.Stats()
}
