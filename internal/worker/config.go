// Package worker provides background route comparison jobs for CleanRoute.
package worker

import (
	"slices"
	"time"

	"github.com/breatheroute/cleanroute/internal/spatial"
)

// Coordinate is a WGS84 point in decimal degrees.
type Coordinate = spatial.Coordinate

// Corridor is a commuter origin/destination pair compared on a schedule.
type Corridor struct {
	// Name is the human-readable name of the corridor.
	Name string

	Origin      Coordinate
	Destination Coordinate

	// Priority determines run order (lower = higher priority).
	Priority int
}

// BatchConfig holds configuration for the corridor batch job.
type BatchConfig struct {
	// Corridors are the trips to compare.
	// If empty, uses DefaultCorridors.
	Corridors []Corridor

	// Concurrency is the number of comparisons run at once.
	// Default: 3
	Concurrency int

	// Timeout bounds each comparison.
	// Default: 30 seconds
	Timeout time.Duration

	// Alternatives is the candidate count requested per corridor. Zero
	// uses the comparison service default.
	Alternatives int
}

// DefaultBatchConfig returns the default batch configuration.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		Corridors:   DefaultCorridors(),
		Concurrency: 3,
		Timeout:     30 * time.Second,
	}
}

// DefaultCorridors returns commuter corridors inside the Gurugram sensor
// network, from residential sectors to the main office districts.
func DefaultCorridors() []Corridor {
	var (
		cyberCity  = Coordinate{Lat: 28.4950, Lon: 77.0895}
		udyogVihar = Coordinate{Lat: 28.5011, Lon: 77.0820}
		golfCourse = Coordinate{Lat: 28.4595, Lon: 77.0996}
		sector29   = Coordinate{Lat: 28.4683, Lon: 77.0626}
		sohnaRoad  = Coordinate{Lat: 28.4089, Lon: 77.0418}
		sector51   = Coordinate{Lat: 28.4320, Lon: 77.0680}
		vikasSadan = Coordinate{Lat: 28.4502, Lon: 77.0263}
		huda       = Coordinate{Lat: 28.4595, Lon: 77.0266}
		mgRoad     = Coordinate{Lat: 28.4797, Lon: 77.0800}
		southCity  = Coordinate{Lat: 28.4406, Lon: 77.0527}
	)

	return []Corridor{
		{Name: "Sector 29 - Cyber City", Origin: sector29, Destination: cyberCity, Priority: 1},
		{Name: "Sohna Road - Cyber City", Origin: sohnaRoad, Destination: cyberCity, Priority: 1},
		{Name: "Sector 51 - Udyog Vihar", Origin: sector51, Destination: udyogVihar, Priority: 1},
		{Name: "HUDA City Centre - Golf Course Road", Origin: huda, Destination: golfCourse, Priority: 2},
		{Name: "South City - MG Road", Origin: southCity, Destination: mgRoad, Priority: 2},
		{Name: "Vikas Sadan - Udyog Vihar", Origin: vikasSadan, Destination: udyogVihar, Priority: 3},
	}
}

// OrderedCorridors returns the corridors sorted by priority. Corridors of
// equal priority keep their configured order.
func (c BatchConfig) OrderedCorridors() []Corridor {
	out := slices.Clone(c.Corridors)
	slices.SortStableFunc(out, func(a, b Corridor) int {
		return a.Priority - b.Priority
	})
	return out
}
