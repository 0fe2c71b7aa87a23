package models

// CompareRequest is the request body for POST /v1/routes:compare.
type CompareRequest struct {
	Origin      *Point `json:"origin" validate:"required"`
	Destination *Point `json:"destination" validate:"required"`

	// Alternatives is the number of candidate routes to request (default 3).
	Alternatives int `json:"alternatives,omitempty" validate:"omitempty,min=1,max=5"`
}

// CompareQuery is the query form of a comparison for GET /v1/routes/compare.
type CompareQuery struct {
	StartLat     *float64 `query:"start_lat" validate:"required,gte=-90,lte=90"`
	StartLon     *float64 `query:"start_lon" validate:"required,gte=-180,lte=180"`
	EndLat       *float64 `query:"end_lat" validate:"required,gte=-90,lte=90"`
	EndLon       *float64 `query:"end_lon" validate:"required,gte=-180,lte=180"`
	Alternatives int      `query:"alternatives" validate:"omitempty,min=1,max=5"`
}

// CompareResponse is the result of a route comparison.
type CompareResponse struct {
	GeneratedAt Timestamp   `json:"generatedAt"`
	Fastest     RouteOption `json:"fastest"`
	Cleanest    RouteOption `json:"cleanest"`

	// SameRoute is set when the fastest route is also the cleanest.
	SameRoute bool `json:"sameRoute"`

	// Alternatives holds every scored candidate in provider order.
	Alternatives []RouteOption `json:"alternatives"`
	Warnings     []string      `json:"warnings,omitempty"`
}

// RouteOption is one scored candidate route.
type RouteOption struct {
	Index   int    `json:"index"`
	Summary string `json:"summary,omitempty"`

	// Polyline is the geometry as a precision-5 encoded polyline.
	Polyline string `json:"polyline"`

	// Points is the decoded geometry as [lat, lon] pairs.
	Points [][2]float64 `json:"points"`

	DurationSeconds float64 `json:"durationSeconds"`
	DistanceMeters  float64 `json:"distanceMeters"`

	// ExposureScore is the length-weighted PM2.5 dose in µg/m³·m.
	ExposureScore float64 `json:"exposureScore"`

	// AveragePM25 is ExposureScore divided by the sampled length.
	AveragePM25         float64 `json:"averagePm25"`
	SampledLengthMeters float64 `json:"sampledLengthMeters"`
	Samples             int     `json:"samples"`
	DegradedSamples     int     `json:"degradedSamples"`
	Degraded            bool    `json:"degraded"`
}
