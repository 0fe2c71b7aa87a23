// Package airquality estimates ground-level PM2.5 concentrations from sparse
// sensor readings.
package airquality

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/breatheroute/cleanroute/internal/spatial"
)

// Model errors.
var (
	ErrOutOfCoverage     = errors.New("point outside sensor coverage")
	ErrModelNotReady     = errors.New("interpolation model not ready")
	ErrEmptyDataset      = errors.New("dataset contains no valid readings")
	ErrSourceUnavailable = errors.New("sensor source unavailable")
)

// Coordinate is a WGS84 position in decimal degrees.
type Coordinate = spatial.Coordinate

// Unit is the concentration unit of all readings and estimates.
const Unit = "µg/m³"

// Reading is a single hourly PM2.5 observation from a fixed sensor.
type Reading struct {
	StationName string
	Location    Coordinate
	Value       float64
	Timestamp   time.Time
}

// Valid reports whether the reading has a finite, non-negative value and a
// location within WGS84 ranges.
func (r Reading) Valid() bool {
	if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) || r.Value < 0 {
		return false
	}
	return r.Location.Valid()
}

// Sensor is one aggregated sensor location in a dataset.
type Sensor struct {
	Name      string
	Location  Coordinate
	Value     float64
	Timestamp time.Time

	// Readings is the number of raw readings aggregated into Value.
	Readings int
}

// CoverageError reports a query point outside the model's coverage region.
type CoverageError struct {
	Point Coordinate
}

func (e *CoverageError) Error() string {
	return fmt.Sprintf("%s: (%.6f, %.6f)", ErrOutOfCoverage, e.Point.Lat, e.Point.Lon)
}

// Is makes errors.Is(err, ErrOutOfCoverage) match a CoverageError.
func (e *CoverageError) Is(target error) bool {
	return target == ErrOutOfCoverage
}
