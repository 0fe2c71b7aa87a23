// Package routing fetches candidate routes between two points from an
// external directions provider.
package routing

import (
	"context"
	"errors"
	"time"

	"github.com/breatheroute/cleanroute/internal/spatial"
)

// Sentinel errors for routing operations.
var (
	// ErrProviderUnavailable indicates the routing provider is down or the circuit breaker is open.
	ErrProviderUnavailable = errors.New("routing provider unavailable")
	// ErrNoRouteFound indicates no valid route exists between the given points.
	ErrNoRouteFound = errors.New("no route found between the given points")
	// ErrRateLimitExceeded indicates the API quota has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrInvalidCoordinates indicates the provided coordinates are invalid or out of range.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	// ErrUnsupportedProfile indicates the requested profile is not known.
	ErrUnsupportedProfile = errors.New("unsupported route profile")
)

// Provider defines the interface for routing providers.
type Provider interface {
	// GetDirections retrieves route directions between two points.
	// Returns multiple route alternatives when available.
	GetDirections(ctx context.Context, req DirectionsRequest) (*DirectionsResponse, error)
	// Name returns the provider identifier for logging and metrics.
	Name() string
	// SupportedProfiles returns the list of route profiles this provider supports.
	SupportedProfiles() []RouteProfile
}

// RouteProfile represents a routing profile (mode of transport).
type RouteProfile string

const (
	// ProfileDrive is the driving-car profile and the default for comparisons.
	ProfileDrive RouteProfile = "driving-car"
	// ProfileWalk is the foot-walking profile for pedestrian routing.
	ProfileWalk RouteProfile = "foot-walking"
	// ProfileBike is the cycling-regular profile for bike routing.
	ProfileBike RouteProfile = "cycling-regular"
)

// ParseProfile parses a profile name. The empty string selects ProfileDrive.
func ParseProfile(s string) (RouteProfile, error) {
	switch RouteProfile(s) {
	case "", ProfileDrive:
		return ProfileDrive, nil
	case ProfileWalk, ProfileBike:
		return RouteProfile(s), nil
	default:
		return "", ErrUnsupportedProfile
	}
}

// Coordinate represents a geographic point.
type Coordinate = spatial.Coordinate

// DirectionsRequest is the request for computing routes.
type DirectionsRequest struct {
	Origin          Coordinate
	Destination     Coordinate
	Profile         RouteProfile
	MaxAlternatives int // Maximum number of alternative routes to return (default: 2)
}

// DirectionsResponse is the response containing route alternatives.
type DirectionsResponse struct {
	Routes    []Route
	Provider  string
	FetchedAt time.Time
}

// Route is one candidate returned by a provider.
type Route struct {
	Points           []Coordinate // Geometry, origin first
	GeometryPolyline string       // Points as a precision-5 encoded polyline
	DistanceMeters   float64
	DurationSeconds  float64
	Summary          string // e.g. "via NH 48"
}

// Usable reports whether the route has at least two points to sample.
func (r Route) Usable() bool {
	return len(r.Points) >= 2
}

// Error provides detailed error information from the routing provider.
type Error struct {
	Provider string // Provider that generated the error
	Code     string // Error code from the provider
	Message  string // Human-readable error message
	Err      error  // Underlying error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is transient and the request can be retried.
func (e *Error) IsRetryable() bool {
	return errors.Is(e.Err, ErrProviderUnavailable) || errors.Is(e.Err, ErrRateLimitExceeded)
}
