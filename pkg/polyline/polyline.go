// Package polyline encodes precision-5 polylines, the geometry format sent
// to API clients alongside raw route points.
package polyline

import (
	gopolyline "github.com/twpayne/go-polyline"
)

// Coordinate is a point in degrees.
type Coordinate struct {
	Lat float64
	Lon float64
}

// codec uses 1e5 scaling, matching Google and OpenRouteService.
var codec = gopolyline.Codec{Dim: 2, Scale: 1e5}

// Encode encodes coordinates. No coordinates encode to "".
func Encode(coords []Coordinate) string {
	if len(coords) == 0 {
		return ""
	}

	raw := make([][]float64, len(coords))
	for i, c := range coords {
		raw[i] = []float64{c.Lat, c.Lon}
	}
	return string(codec.EncodeCoords(nil, raw))
}
