// Package exposure integrates interpolated PM2.5 concentrations along a
// route to produce a pollution-distance exposure score.
package exposure

import (
	"errors"
	"fmt"

	"github.com/breatheroute/cleanroute/internal/spatial"
)

// DefaultStepMeters is the default spacing between route samples.
const DefaultStepMeters = 50.0

var (
	// ErrEmptyRoute is returned for routes with zero length.
	ErrEmptyRoute = errors.New("empty route")
	// ErrInvalidRoute is returned when a route vertex is not a valid coordinate.
	ErrInvalidRoute = errors.New("route contains invalid coordinates")
)

// Coordinate is a route vertex or sample position.
type Coordinate = spatial.Coordinate

// RouteError describes a route that cannot be sampled.
type RouteError struct {
	Points int     // Number of vertices in the route
	Length float64 // Great-circle length in meters
	Err    error
}

func (e *RouteError) Error() string {
	return fmt.Sprintf("route with %d points (%.1fm): %v", e.Points, e.Length, e.Err)
}

func (e *RouteError) Unwrap() error {
	return e.Err
}

// Sample is one integration point along a route.
type Sample struct {
	Point  Coordinate
	Offset float64 // Distance from the route start in meters
	Length float64 // Route length this sample represents in meters
}

// Sampler resamples route polylines at a fixed great-circle spacing.
type Sampler struct {
	step float64
}

// NewSampler creates a sampler. A non-positive step selects DefaultStepMeters.
func NewSampler(stepMeters float64) *Sampler {
	if stepMeters <= 0 {
		stepMeters = DefaultStepMeters
	}
	return &Sampler{step: stepMeters}
}

// Step returns the sample spacing in meters.
func (s *Sampler) Step() float64 {
	return s.step
}

// Sample places points every step meters from the start of the route plus
// one at the end. Each sample covers half the gap to its neighbours, so the
// sample lengths add up to the route length. Routes shorter than one step
// yield a single sample at the midpoint covering the whole route.
func (s *Sampler) Sample(points []Coordinate) ([]Sample, error) {
	for _, p := range points {
		if !p.Valid() {
			return nil, &RouteError{Points: len(points), Err: ErrInvalidRoute}
		}
	}

	cum := cumulative(points)
	total := 0.0
	if len(cum) > 0 {
		total = cum[len(cum)-1]
	}
	if total <= 0 {
		return nil, &RouteError{Points: len(points), Length: total, Err: ErrEmptyRoute}
	}

	w := walker{points: points, cum: cum}

	if total < s.step {
		mid := total / 2
		return []Sample{{Point: w.at(mid), Offset: mid, Length: total}}, nil
	}

	var offsets []float64
	for i := 0; ; i++ {
		off := float64(i) * s.step
		if off >= total {
			break
		}
		offsets = append(offsets, off)
	}
	offsets = append(offsets, total)

	samples := make([]Sample, len(offsets))
	for i, off := range offsets {
		lo := 0.0
		if i > 0 {
			lo = (offsets[i-1] + off) / 2
		}
		hi := total
		if i < len(offsets)-1 {
			hi = (off + offsets[i+1]) / 2
		}
		samples[i] = Sample{
			Point:  w.at(off),
			Offset: off,
			Length: hi - lo,
		}
	}

	return samples, nil
}

func cumulative(points []Coordinate) []float64 {
	if len(points) == 0 {
		return nil
	}
	cum := make([]float64, len(points))
	for i := 1; i < len(points); i++ {
		cum[i] = cum[i-1] + spatial.Distance(points[i-1], points[i])
	}
	return cum
}

// walker locates positions along a polyline. Offsets must be queried in
// non-decreasing order.
type walker struct {
	points []Coordinate
	cum    []float64
	seg    int
}

func (w *walker) at(offset float64) Coordinate {
	last := len(w.points) - 1
	for w.seg < last-1 && w.cum[w.seg+1] < offset {
		w.seg++
	}
	// Skip zero-length segments so the interpolation fraction is defined.
	for w.seg < last-1 && w.cum[w.seg+1] == w.cum[w.seg] {
		w.seg++
	}

	a, b := w.points[w.seg], w.points[w.seg+1]
	span := w.cum[w.seg+1] - w.cum[w.seg]
	if span <= 0 {
		return b
	}
	return spatial.Interpolate(a, b, (offset-w.cum[w.seg])/span)
}
