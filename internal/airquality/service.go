package airquality

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Source loads raw sensor readings.
type Source interface {
	// Name identifies the source in logs and status output.
	Name() string

	// Load returns all readings available from the source.
	Load(ctx context.Context) ([]Reading, error)
}

// ServiceConfig holds configuration for the air quality service.
type ServiceConfig struct {
	// Source provides the sensor readings.
	Source Source

	// Holder receives the built model. A new holder is created when nil.
	Holder *ModelHolder

	// Model configures interpolation.
	Model ModelConfig

	// Aggregation selects how readings at one location are combined.
	Aggregation Aggregation

	// Logger for service operations.
	Logger zerolog.Logger

	// MaxBuildAttempts bounds BuildWithRetry (default: 5).
	MaxBuildAttempts uint64

	// InitialBackoff is the first retry delay for BuildWithRetry (default: 1s).
	InitialBackoff time.Duration
}

// Service loads the sensor dataset once and publishes the interpolation model.
type Service struct {
	source           Source
	holder           *ModelHolder
	modelConfig      ModelConfig
	aggregation      Aggregation
	logger           zerolog.Logger
	maxBuildAttempts uint64
	initialBackoff   time.Duration

	mu       sync.RWMutex
	lastErr  error
	attempts int
}

// NewService creates a new air quality service.
func NewService(cfg ServiceConfig) *Service {
	holder := cfg.Holder
	if holder == nil {
		holder = NewModelHolder()
	}

	maxAttempts := cfg.MaxBuildAttempts
	if maxAttempts == 0 {
		maxAttempts = 5
	}

	initialBackoff := cfg.InitialBackoff
	if initialBackoff == 0 {
		initialBackoff = time.Second
	}

	return &Service{
		source:           cfg.Source,
		holder:           holder,
		modelConfig:      cfg.Model,
		aggregation:      cfg.Aggregation,
		logger:           cfg.Logger,
		maxBuildAttempts: maxAttempts,
		initialBackoff:   initialBackoff,
	}
}

// Holder returns the holder the model is published to.
func (s *Service) Holder() *ModelHolder {
	return s.holder
}

// Model returns the published model or ErrModelNotReady.
func (s *Service) Model() (*Model, error) {
	return s.holder.Get()
}

// Build loads readings, builds the model and publishes it. Calling Build
// after a model has been published returns the existing model.
func (s *Service) Build(ctx context.Context) (*Model, error) {
	if m, err := s.holder.Get(); err == nil {
		return m, nil
	}

	s.mu.Lock()
	s.attempts++
	s.mu.Unlock()

	m, err := s.build(ctx)

	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}

	if !s.holder.Set(m) {
		// Another caller published first.
		return s.holder.Get()
	}
	return m, nil
}

// BuildWithRetry calls Build with exponential backoff until it succeeds, the
// attempt limit is reached or ctx is cancelled. An empty dataset is not retried.
func (s *Service) BuildWithRetry(ctx context.Context) (*Model, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.initialBackoff
	b.MaxElapsedTime = 0

	var model *Model
	operation := func() error {
		m, err := s.Build(ctx)
		if err != nil {
			if errors.Is(err, ErrEmptyDataset) {
				return backoff.Permanent(err)
			}
			s.logger.Warn().Err(err).Msg("sensor model build failed, retrying")
			return err
		}
		model = m
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, s.maxBuildAttempts-1), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		s.logger.Error().Err(err).Msg("giving up on sensor model build")
		return nil, err
	}
	return model, nil
}

func (s *Service) build(ctx context.Context) (*Model, error) {
	if s.source == nil {
		return nil, fmt.Errorf("%w: no source configured", ErrSourceUnavailable)
	}

	start := time.Now()
	s.logger.Debug().Str("source", s.source.Name()).Msg("loading sensor readings")

	readings, err := s.source.Load(ctx)
	if err != nil {
		s.logger.Error().Err(err).Str("source", s.source.Name()).Msg("failed to load sensor readings")
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	ds, err := NewDataset(readings, s.aggregation)
	if err != nil {
		return nil, err
	}

	m, err := NewModel(ds, s.modelConfig)
	if err != nil {
		return nil, err
	}

	bl, tr := m.Coverage().Bounds()
	s.logger.Info().
		Str("source", s.source.Name()).
		Int("readings", len(readings)).
		Int("rejected", ds.Rejected()).
		Int("sensors", ds.Len()).
		Float64("mean_pm25", ds.Mean()).
		Time("latest_hour", ds.Latest()).
		Float64("min_lat", bl.Lat).
		Float64("min_lon", bl.Lon).
		Float64("max_lat", tr.Lat).
		Float64("max_lon", tr.Lon).
		Dur("duration", time.Since(start)).
		Msg("interpolation model built")

	return m, nil
}

// Status returns information about the model build state.
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		Attempts: s.attempts,
	}
	if s.source != nil {
		st.Source = s.source.Name()
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}

	m, err := s.holder.Get()
	if err != nil {
		return st
	}

	st.Ready = true
	st.BuiltAt = m.BuiltAt()
	st.SensorCount = m.Dataset().Len()
	st.Rejected = m.Dataset().Rejected()
	st.LatestHour = m.Dataset().Latest()
	st.LastError = ""
	return st
}

// Status represents the current state of the model build.
type Status struct {
	Ready       bool
	Source      string
	Attempts    int
	LastError   string
	BuiltAt     time.Time
	LatestHour  time.Time
	SensorCount int
	Rejected    int
}
