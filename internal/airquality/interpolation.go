package airquality

import (
	"math"
	"time"

	"github.com/breatheroute/cleanroute/internal/spatial"
)

// Confidence represents the confidence level of an interpolated value.
type Confidence string

const (
	ConfidenceLow    Confidence = "LOW"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceHigh   Confidence = "HIGH"
)

// ModelConfig holds configuration for the interpolation model.
type ModelConfig struct {
	// K is the number of nearest sensors used per estimate. Default: 5.
	K int

	// Power is the inverse distance weighting exponent. Default: 2.0.
	Power float64

	// EpsilonMeters is the distance under which a query point is treated as
	// sitting on a sensor and gets that sensor's value. Default: 1.
	EpsilonMeters float64

	// CoverageMarginMeters pads the sensor bounding box. Default: 2000.
	// A negative value disables padding.
	CoverageMarginMeters float64

	// HighConfidenceMaxDistance is the max nearest-sensor distance for HIGH
	// confidence. Default: 5000 (5km).
	HighConfidenceMaxDistance float64

	// MediumConfidenceMaxDistance is the max nearest-sensor distance for
	// MEDIUM confidence. Default: 15000 (15km).
	MediumConfidenceMaxDistance float64
}

// DefaultModelConfig returns the default configuration.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		K:                           5,
		Power:                       2.0,
		EpsilonMeters:               1,
		CoverageMarginMeters:        2000,
		HighConfidenceMaxDistance:   5000,  // 5km
		MediumConfidenceMaxDistance: 15000, // 15km
	}
}

func (c ModelConfig) withDefaults() ModelConfig {
	def := DefaultModelConfig()
	if c.K <= 0 {
		c.K = def.K
	}
	if c.Power <= 0 {
		c.Power = def.Power
	}
	if c.EpsilonMeters <= 0 {
		c.EpsilonMeters = def.EpsilonMeters
	}
	if c.CoverageMarginMeters == 0 {
		c.CoverageMarginMeters = def.CoverageMarginMeters
	}
	if c.HighConfidenceMaxDistance <= 0 {
		c.HighConfidenceMaxDistance = def.HighConfidenceMaxDistance
	}
	if c.MediumConfidenceMaxDistance <= 0 {
		c.MediumConfidenceMaxDistance = def.MediumConfidenceMaxDistance
	}
	return c
}

// Estimate is an interpolated PM2.5 value at a point.
type Estimate struct {
	Point Coordinate

	// Value is the estimated concentration in µg/m³.
	Value float64

	// Confidence indicates the data quality.
	Confidence Confidence

	// NearestDistance is the distance to the nearest sensor in meters.
	NearestDistance float64

	// ExactMatch is set when the point lies within epsilon of a sensor.
	ExactMatch bool

	// Contributions lists the sensors used, nearest first.
	Contributions []Contribution
}

// Contribution describes a sensor's contribution to an estimate.
type Contribution struct {
	Sensor   string
	Location Coordinate
	Distance float64 // meters
	Value    float64 // sensor value
	Weight   float64 // normalized weight (0-1)
}

// Model estimates PM2.5 at arbitrary points by inverse distance weighting
// over the k nearest sensors. A Model is immutable once built and safe for
// concurrent use.
type Model struct {
	config   ModelConfig
	dataset  *Dataset
	index    *spatial.Index[Sensor]
	coverage CoverageRegion
	builtAt  time.Time
}

// NewModel builds the spatial index and coverage region for ds.
func NewModel(ds *Dataset, config ModelConfig) (*Model, error) {
	if ds == nil || ds.Len() == 0 {
		return nil, ErrEmptyDataset
	}
	config = config.withDefaults()

	sensors := ds.Sensors()
	entries := make([]spatial.Entry[Sensor], len(sensors))
	for i, s := range sensors {
		entries[i] = spatial.Entry[Sensor]{Coordinate: s.Location, Value: s}
	}

	return &Model{
		config:   config,
		dataset:  ds,
		index:    spatial.NewIndex(entries),
		coverage: NewCoverageRegion(sensors, config.CoverageMarginMeters),
		builtAt:  time.Now(),
	}, nil
}

// Config returns the effective configuration.
func (m *Model) Config() ModelConfig {
	return m.config
}

// Dataset returns the dataset the model was built from.
func (m *Model) Dataset() *Dataset {
	return m.dataset
}

// Coverage returns the coverage region.
func (m *Model) Coverage() CoverageRegion {
	return m.coverage
}

// Covers reports whether p lies inside the coverage region.
func (m *Model) Covers(p Coordinate) bool {
	return m.coverage.Contains(p)
}

// Mean returns the dataset-wide mean concentration.
func (m *Model) Mean() float64 {
	return m.dataset.Mean()
}

// BuiltAt returns when the model was built.
func (m *Model) BuiltAt() time.Time {
	return m.builtAt
}

// Estimate returns the interpolated concentration at p. Points outside the
// coverage region yield a *CoverageError.
func (m *Model) Estimate(p Coordinate) (*Estimate, error) {
	if !m.coverage.Contains(p) {
		return nil, &CoverageError{Point: p}
	}

	neighbors, err := m.index.Nearest(p, m.config.K)
	if err != nil {
		return nil, err
	}
	if len(neighbors) == 0 {
		return nil, ErrEmptyDataset
	}

	est := &Estimate{
		Point:           p,
		NearestDistance: neighbors[0].Distance,
	}

	switch {
	case neighbors[0].Distance < m.config.EpsilonMeters:
		nearest := neighbors[0]
		est.Value = nearest.Value.Value
		est.ExactMatch = true
		est.Contributions = []Contribution{contribution(nearest, 1)}

	case equidistant(neighbors):
		w := 1 / float64(len(neighbors))
		est.Contributions = make([]Contribution, len(neighbors))
		for i, n := range neighbors {
			est.Contributions[i] = contribution(n, w)
			est.Value += n.Value.Value * w
		}

	default:
		est.Contributions = make([]Contribution, len(neighbors))
		var totalWeight float64
		for i, n := range neighbors {
			weight := 1.0 / math.Pow(n.Distance, m.config.Power)
			est.Contributions[i] = contribution(n, weight)
			totalWeight += weight
		}

		// Normalize weights and calculate weighted average
		for i := range est.Contributions {
			est.Contributions[i].Weight /= totalWeight
			est.Value += est.Contributions[i].Value * est.Contributions[i].Weight
		}
	}

	est.Confidence = m.confidence(est.NearestDistance, len(est.Contributions))
	return est, nil
}

// confidence determines confidence level based on distance and sensor count.
func (m *Model) confidence(nearestDistance float64, sensorCount int) Confidence {
	if nearestDistance < m.config.EpsilonMeters {
		return ConfidenceHigh
	}
	if nearestDistance <= m.config.HighConfidenceMaxDistance && sensorCount >= 2 {
		return ConfidenceHigh
	}
	if nearestDistance <= m.config.MediumConfidenceMaxDistance {
		return ConfidenceMedium
	}
	return ConfidenceLow
}

func contribution(n spatial.Neighbor[Sensor], weight float64) Contribution {
	return Contribution{
		Sensor:   n.Value.Name,
		Location: n.Value.Location,
		Distance: n.Distance,
		Value:    n.Value.Value,
		Weight:   weight,
	}
}

// equidistant reports whether all neighbours sit at the same distance, in
// which case the weights are equal and the estimate is a plain mean.
func equidistant(neighbors []spatial.Neighbor[Sensor]) bool {
	if len(neighbors) < 2 {
		return false
	}
	first := neighbors[0].Distance
	for _, n := range neighbors[1:] {
		if math.Abs(n.Distance-first) > 1e-9*math.Max(1, first) {
			return false
		}
	}
	return true
}
