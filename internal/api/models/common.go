// Package models provides request and response models for the CleanRoute API.
package models

import (
	"time"

	"github.com/breatheroute/cleanroute/internal/spatial"
)

// Point represents a geographic coordinate.
type Point struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon float64 `json:"lon" validate:"gte=-180,lte=180"`
}

// PointFrom converts a domain coordinate.
func PointFrom(c spatial.Coordinate) Point {
	return Point{Lat: c.Lat, Lon: c.Lon}
}

// Coordinate converts the point to a domain coordinate.
func (p Point) Coordinate() spatial.Coordinate {
	return spatial.Coordinate{Lat: p.Lat, Lon: p.Lon}
}

// GeoBox represents a geographic bounding box.
type GeoBox struct {
	MinLat float64 `json:"minLat"`
	MinLon float64 `json:"minLon"`
	MaxLat float64 `json:"maxLat"`
	MaxLon float64 `json:"maxLon"`
}

// GeoBoxFrom builds a box from its south-west and north-east corners.
func GeoBoxFrom(southWest, northEast spatial.Coordinate) GeoBox {
	return GeoBox{
		MinLat: southWest.Lat,
		MinLon: southWest.Lon,
		MaxLat: northEast.Lat,
		MaxLon: northEast.Lon,
	}
}

// Confidence represents the confidence level of an estimate.
type Confidence string

const (
	ConfidenceLow    Confidence = "LOW"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceHigh   Confidence = "HIGH"
)

// HealthStatus represents the health status of a service.
type HealthStatus string

const (
	HealthStatusOK       HealthStatus = "OK"
	HealthStatusDegraded HealthStatus = "DEGRADED"
	HealthStatusFail     HealthStatus = "FAIL"
)

// Timestamp is a helper type for time.Time with custom JSON formatting.
type Timestamp time.Time

// MarshalJSON implements json.Marshaler for Timestamp.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Time(t).Format(time.RFC3339) + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler for Timestamp.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	// Remove quotes
	s := string(data[1 : len(data)-1])
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return err
	}
	*t = Timestamp(parsed)
	return nil
}

// Time returns the underlying time.Time.
func (t Timestamp) Time() time.Time {
	return time.Time(t)
}

// TimestampPtr returns nil for the zero time.
func TimestampPtr(t time.Time) *Timestamp {
	if t.IsZero() {
		return nil
	}
	ts := Timestamp(t)
	return &ts
}
