package routing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ServiceConfig holds configuration for the routing service.
type ServiceConfig struct {
	// Provider is the routing data provider.
	Provider Provider

	// Logger for service operations.
	Logger zerolog.Logger

	// CacheTTL is how long a response is served without asking the provider.
	// Default: 5 minutes
	CacheTTL time.Duration

	// CacheGridSize is the cache cell size in degrees. Requests whose
	// endpoints fall in the same cells share a response.
	// Default: 0.0005 (about 55m)
	CacheGridSize float64

	// StaleIfErrorTTL is how long after fetching a response may still be
	// served while the provider is failing.
	// Default: 15 minutes
	StaleIfErrorTTL time.Duration

	// CleanupInterval is how often entries past the stale window are dropped.
	// Default: 5 minutes
	CleanupInterval time.Duration

	// Metrics records provider calls and cache lookups (optional).
	Metrics Recorder
}

// Recorder receives provider call and cache metrics.
type Recorder interface {
	RecordRequest(provider, operation string, duration time.Duration, err error)
	RecordCacheHit(provider, operation string)
	RecordCacheMiss(provider, operation string)
}

const operationDirections = "directions"

// Service fetches candidate routes through a provider with a grid-keyed
// cache. Concurrent misses for the same key share one provider call.
type Service struct {
	provider        Provider
	logger          zerolog.Logger
	cacheTTL        time.Duration
	cacheGridSize   float64
	staleIfErrorTTL time.Duration
	cleanupInterval time.Duration
	metrics         Recorder
	now             func() time.Time

	flights singleflight.Group

	mu          sync.RWMutex
	cache       map[string]*cachedDirections
	lastCleanup time.Time
}

type cachedDirections struct {
	response  *DirectionsResponse
	fetchedAt time.Time
	expiresAt time.Time
}

// NewService creates a new routing service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 5 * time.Minute
	}

	cacheGridSize := cfg.CacheGridSize
	if cacheGridSize == 0 {
		cacheGridSize = 0.0005
	}

	staleIfErrorTTL := cfg.StaleIfErrorTTL
	if staleIfErrorTTL == 0 {
		staleIfErrorTTL = 15 * time.Minute
	}

	cleanupInterval := cfg.CleanupInterval
	if cleanupInterval == 0 {
		cleanupInterval = 5 * time.Minute
	}

	return &Service{
		provider:        cfg.Provider,
		logger:          cfg.Logger,
		cacheTTL:        cacheTTL,
		cacheGridSize:   cacheGridSize,
		staleIfErrorTTL: staleIfErrorTTL,
		cleanupInterval: cleanupInterval,
		metrics:         cfg.Metrics,
		now:             time.Now,
		cache:           make(map[string]*cachedDirections),
	}
}

// GetDirections returns candidate routes between two points.
func (s *Service) GetDirections(ctx context.Context, req DirectionsRequest) (*DirectionsResponse, error) {
	if err := validateCoordinates(req.Origin); err != nil {
		return nil, &Error{
			Provider: s.provider.Name(),
			Code:     "INVALID_ORIGIN",
			Message:  "invalid origin coordinates",
			Err:      ErrInvalidCoordinates,
		}
	}
	if err := validateCoordinates(req.Destination); err != nil {
		return nil, &Error{
			Provider: s.provider.Name(),
			Code:     "INVALID_DESTINATION",
			Message:  "invalid destination coordinates",
			Err:      ErrInvalidCoordinates,
		}
	}

	key := s.cacheKey(req)

	if resp, ok := s.fresh(key); ok {
		s.logger.Debug().Str("cache_key", key).Msg("cache hit for directions")
		s.recordCacheHit()
		return resp, nil
	}
	s.recordCacheMiss()

	v, err, shared := s.flights.Do(key, func() (interface{}, error) {
		return s.fetch(ctx, req, key)
	})
	if shared {
		s.logger.Debug().Str("cache_key", key).Msg("joined in-flight directions request")
	}
	if err != nil {
		return nil, err
	}
	return v.(*DirectionsResponse), nil
}

func (s *Service) fresh(key string) (*DirectionsResponse, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cached, ok := s.cache[key]
	if !ok || !s.now().Before(cached.expiresAt) {
		return nil, false
	}
	return cached.response, true
}

// fetch calls the provider and stores the result. A stale entry is served
// instead of an availability error while it is inside the stale window.
func (s *Service) fetch(ctx context.Context, req DirectionsRequest, key string) (*DirectionsResponse, error) {
	// A previous flight may have filled the cache after our lookup.
	if resp, ok := s.fresh(key); ok {
		return resp, nil
	}

	log := s.logger.With().
		Float64("origin_lat", req.Origin.Lat).
		Float64("origin_lon", req.Origin.Lon).
		Float64("dest_lat", req.Destination.Lat).
		Float64("dest_lon", req.Destination.Lon).
		Str("profile", string(req.Profile)).
		Str("provider", s.provider.Name()).
		Logger()

	log.Debug().Msg("fetching directions from provider")

	start := s.now()
	resp, err := s.provider.GetDirections(ctx, req)
	if s.metrics != nil {
		s.metrics.RecordRequest(s.provider.Name(), operationDirections, s.now().Sub(start), err)
	}

	if err != nil {
		log.Error().Err(err).Msg("failed to fetch directions")

		if stale, ok := s.stale(key, err); ok {
			log.Warn().
				Time("fetched_at", stale.fetchedAt).
				Msg("serving stale directions after provider error")
			return stale.response, nil
		}
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.cache[key] = &cachedDirections{
		response:  resp,
		fetchedAt: now,
		expiresAt: now.Add(s.cacheTTL),
	}
	log.Debug().Int("route_count", len(resp.Routes)).Msg("cached directions response")

	s.cleanupLocked(now)

	return resp, nil
}

func (s *Service) stale(key string, err error) (*cachedDirections, bool) {
	if definitive(err) {
		return nil, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	cached, ok := s.cache[key]
	if !ok || !s.now().Before(cached.fetchedAt.Add(s.staleIfErrorTTL)) {
		return nil, false
	}
	return cached, true
}

// definitive reports whether err is the provider's answer about the request
// itself rather than a failure to answer.
func definitive(err error) bool {
	return errors.Is(err, ErrNoRouteFound) ||
		errors.Is(err, ErrInvalidCoordinates) ||
		errors.Is(err, ErrUnsupportedProfile)
}

// cacheKey quantises both endpoints to the grid.
// Format: {profile}:{alternatives}:{originLatCell},{originLonCell}:{destLatCell},{destLonCell}.
func (s *Service) cacheKey(req DirectionsRequest) string {
	cell := func(v float64) int64 {
		return int64(math.Floor(v / s.cacheGridSize))
	}

	return fmt.Sprintf("%s:%d:%d,%d:%d,%d",
		req.Profile,
		req.MaxAlternatives,
		cell(req.Origin.Lat), cell(req.Origin.Lon),
		cell(req.Destination.Lat), cell(req.Destination.Lon),
	)
}

func (s *Service) recordCacheHit() {
	if s.metrics != nil {
		s.metrics.RecordCacheHit(s.provider.Name(), operationDirections)
	}
}

func (s *Service) recordCacheMiss() {
	if s.metrics != nil {
		s.metrics.RecordCacheMiss(s.provider.Name(), operationDirections)
	}
}

// cleanupLocked drops entries past the stale window. s.mu must be held.
func (s *Service) cleanupLocked(now time.Time) {
	if now.Sub(s.lastCleanup) < s.cleanupInterval {
		return
	}
	s.lastCleanup = now

	expired := 0
	for key, cached := range s.cache {
		if now.After(cached.fetchedAt.Add(s.staleIfErrorTTL)) {
			delete(s.cache, key)
			expired++
		}
	}

	if expired > 0 {
		s.logger.Debug().
			Int("expired_entries", expired).
			Msg("cleaned up expired routing cache entries")
	}
}

// CacheStats contains routing cache statistics.
type CacheStats struct {
	TotalEntries int
	FreshEntries int
	StaleEntries int
	Provider     string
}

// CacheStats returns routing cache statistics.
func (s *Service) CacheStats() CacheStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	stats := CacheStats{
		TotalEntries: len(s.cache),
		Provider:     s.provider.Name(),
	}
	for _, c := range s.cache {
		switch {
		case now.Before(c.expiresAt):
			stats.FreshEntries++
		case now.Before(c.fetchedAt.Add(s.staleIfErrorTTL)):
			stats.StaleEntries++
		}
	}
	return stats
}

// ProviderName returns the name of the underlying provider.
func (s *Service) ProviderName() string {
	return s.provider.Name()
}

func validateCoordinates(c Coordinate) error {
	if !c.Valid() {
		return fmt.Errorf("coordinate (%f, %f) out of range", c.Lat, c.Lon)
	}
	return nil
}
