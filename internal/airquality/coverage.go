package airquality

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// CoverageRegion is the bounding box of all sensor locations, padded by a
// margin in meters. Estimates are only produced inside it.
type CoverageRegion struct {
	sensors orb.Bound
	padded  orb.Bound
	margin  float64
}

// NewCoverageRegion builds the region around sensors with the given margin.
func NewCoverageRegion(sensors []Sensor, marginMeters float64) CoverageRegion {
	if len(sensors) == 0 {
		return CoverageRegion{}
	}
	if marginMeters < 0 {
		marginMeters = 0
	}

	first := toPoint(sensors[0].Location)
	b := orb.Bound{Min: first, Max: first}
	for _, s := range sensors[1:] {
		b = b.Extend(toPoint(s.Location))
	}

	padded := b
	if marginMeters > 0 {
		padded = geo.BoundPad(b, marginMeters)
	}

	return CoverageRegion{sensors: b, padded: padded, margin: marginMeters}
}

// Contains reports whether c lies inside the padded region.
func (r CoverageRegion) Contains(c Coordinate) bool {
	if !c.Valid() {
		return false
	}
	return r.padded.Contains(toPoint(c))
}

// Bounds returns the south-west and north-east corners of the padded region.
func (r CoverageRegion) Bounds() (southWest, northEast Coordinate) {
	return fromPoint(r.padded.Min), fromPoint(r.padded.Max)
}

// SensorBounds returns the corners of the unpadded sensor bounding box.
func (r CoverageRegion) SensorBounds() (southWest, northEast Coordinate) {
	return fromPoint(r.sensors.Min), fromPoint(r.sensors.Max)
}

// Center returns the centre of the sensor bounding box.
func (r CoverageRegion) Center() Coordinate {
	return fromPoint(r.sensors.Center())
}

// MarginMeters returns the padding applied around the sensor bounding box.
func (r CoverageRegion) MarginMeters() float64 {
	return r.margin
}

func toPoint(c Coordinate) orb.Point {
	return orb.Point{c.Lon, c.Lat}
}

func fromPoint(p orb.Point) Coordinate {
	return Coordinate{Lat: p.Lat(), Lon: p.Lon()}
}
