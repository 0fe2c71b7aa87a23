package openrouteservice

import "github.com/paulmach/orb/geojson"

// directionsRequest is the body of POST /v2/directions/{profile}/geojson.
// Coordinates are [lon, lat].
type directionsRequest struct {
	Coordinates       [][2]float64       `json:"coordinates"`
	AlternativeRoutes *alternativeRoutes `json:"alternative_routes,omitempty"`
	Preference        string             `json:"preference,omitempty"`
	Instructions      bool               `json:"instructions"`
	Units             string             `json:"units"`
}

type alternativeRoutes struct {
	TargetCount  int     `json:"target_count"`
	ShareFactor  float64 `json:"share_factor,omitempty"`
	WeightFactor float64 `json:"weight_factor,omitempty"`
}

// featureCollection is the GeoJSON directions response. Each feature is one
// route with a LineString geometry.
type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	Geometry   *geojson.Geometry `json:"geometry"`
	Properties routeProperties   `json:"properties"`
}

type routeProperties struct {
	Summary struct {
		Distance float64 `json:"distance"` // meters
		Duration float64 `json:"duration"` // seconds
	} `json:"summary"`
	Segments []struct {
		Steps []step `json:"steps"`
	} `json:"segments"`
}

type step struct {
	Distance float64 `json:"distance"`
	Name     string  `json:"name"`
}

// apiError is the body ORS sends with non-200 responses.
type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ORS routing error codes that mean the request cannot be routed.
const (
	codeRouteNotFound    = 2009
	codePointNotRoutable = 2010
)
