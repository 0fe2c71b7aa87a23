package models

import "time"

// PollutionEstimate is the interpolated PM2.5 concentration at a point.
type PollutionEstimate struct {
	Point      Point      `json:"point"`
	PM25       float64    `json:"pm25"`
	Unit       string     `json:"unit"`
	Confidence Confidence `json:"confidence"`

	NearestDistanceMeters float64 `json:"nearestDistanceMeters"`
	ExactMatch            bool    `json:"exactMatch"`

	// Hour is set when the estimate uses a single hour's readings.
	Hour *Timestamp `json:"hour,omitempty"`

	Contributions []Contribution `json:"contributions"`
}

// Contribution is one sensor's share of an estimate.
type Contribution struct {
	Sensor         string  `json:"sensor"`
	Point          Point   `json:"point"`
	DistanceMeters float64 `json:"distanceMeters"`
	PM25           float64 `json:"pm25"`
	Weight         float64 `json:"weight"`
}

// PollutionQuery is the query form of GET /v1/pollution.
type PollutionQuery struct {
	Lat  *float64   `query:"lat" validate:"required,gte=-90,lte=90"`
	Lon  *float64   `query:"lon" validate:"required,gte=-180,lte=180"`
	Hour *time.Time `query:"hour"`
}

// Coverage describes the region the model accepts queries for.
type Coverage struct {
	Bounds       GeoBox  `json:"bounds"`
	SensorBounds GeoBox  `json:"sensorBounds"`
	Center       Point   `json:"center"`
	MarginMeters float64 `json:"marginMeters"`
	SensorCount  int     `json:"sensorCount"`
	MeanPM25     float64 `json:"meanPm25"`
	Unit         string  `json:"unit"`

	LatestReadingAt *Timestamp `json:"latestReadingAt,omitempty"`
	BuiltAt         Timestamp  `json:"builtAt"`

	// Hours lists the reading hours /v1/pollution accepts, oldest first.
	Hours []Timestamp `json:"hours"`
}

// Sensor is one aggregated sensor location.
type Sensor struct {
	Name      string    `json:"name"`
	Point     Point     `json:"point"`
	PM25      float64   `json:"pm25"`
	Timestamp Timestamp `json:"timestamp"`
	Readings  int       `json:"readings"`
}

// SensorList is the response for GET /v1/metadata/sensors.
type SensorList struct {
	Items []Sensor       `json:"items"`
	Meta  SensorListMeta `json:"meta"`
}

// SensorListMeta summarises the dataset behind a sensor list.
type SensorListMeta struct {
	Count       int    `json:"count"`
	Rejected    int    `json:"rejected"`
	Aggregation string `json:"aggregation"`
	Unit        string `json:"unit"`
}
