package exposure

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/breatheroute/cleanroute/internal/airquality"
)

// Estimator yields PM2.5 concentrations at points. *airquality.Model
// satisfies it.
type Estimator interface {
	Estimate(p Coordinate) (*airquality.Estimate, error)
	Mean() float64
}

// Score is the exposure of one route.
type Score struct {
	// Value is the sum of concentration times sample length (µg/m³·m).
	Value float64 `json:"value"`

	// LengthMeters is the sampled route length.
	LengthMeters float64 `json:"lengthMeters"`

	// MeanConcentration is Value divided by LengthMeters.
	MeanConcentration float64 `json:"meanConcentration"`

	// Samples is the number of points evaluated.
	Samples int `json:"samples"`

	// DegradedSamples counts samples outside coverage that used the
	// dataset mean.
	DegradedSamples int `json:"degradedSamples"`

	// Degraded is set when at least one sample used the fallback.
	Degraded bool `json:"degraded"`
}

// ScorerConfig configures a Scorer.
type ScorerConfig struct {
	// Estimator provides concentrations (required).
	Estimator Estimator

	// Sampler resamples routes. Default: NewSampler(DefaultStepMeters).
	Sampler *Sampler

	// Cache memoises scores by geometry (optional).
	Cache *Cache

	// Logger for scorer operations.
	Logger zerolog.Logger
}

// Scorer computes route exposure scores.
type Scorer struct {
	estimator Estimator
	sampler   *Sampler
	cache     *Cache
	logger    zerolog.Logger
}

// NewScorer creates a new scorer.
func NewScorer(cfg ScorerConfig) *Scorer {
	sampler := cfg.Sampler
	if sampler == nil {
		sampler = NewSampler(DefaultStepMeters)
	}
	return &Scorer{
		estimator: cfg.Estimator,
		sampler:   sampler,
		cache:     cfg.Cache,
		logger:    cfg.Logger,
	}
}

// Score integrates concentration along the route. Samples outside the
// coverage region use the dataset mean and mark the score degraded; any
// other estimator error is returned.
func (s *Scorer) Score(points []Coordinate) (Score, error) {
	if s.cache != nil {
		if score, ok := s.cache.Get(points); ok {
			return score, nil
		}
	}

	samples, err := s.sampler.Sample(points)
	if err != nil {
		return Score{}, err
	}

	score := Score{Samples: len(samples)}
	for _, sample := range samples {
		concentration, err := s.concentration(sample.Point)
		if errors.Is(err, airquality.ErrOutOfCoverage) {
			concentration = s.estimator.Mean()
			score.DegradedSamples++
		} else if err != nil {
			return Score{}, fmt.Errorf("estimate at offset %.0fm: %w", sample.Offset, err)
		}

		score.Value += concentration * sample.Length
		score.LengthMeters += sample.Length
	}

	score.Degraded = score.DegradedSamples > 0
	if score.LengthMeters > 0 {
		score.MeanConcentration = score.Value / score.LengthMeters
	}

	if score.Degraded {
		s.logger.Debug().
			Int("samples", score.Samples).
			Int("degraded_samples", score.DegradedSamples).
			Msg("route leaves sensor coverage, using dataset mean")
	}

	if s.cache != nil {
		s.cache.Put(points, score)
	}

	return score, nil
}

func (s *Scorer) concentration(p Coordinate) (float64, error) {
	est, err := s.estimator.Estimate(p)
	if err != nil {
		return 0, err
	}
	return est.Value, nil
}
