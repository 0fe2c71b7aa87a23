package comparison

import (
	"errors"
	"fmt"

	"github.com/breatheroute/cleanroute/internal/airquality"
	"github.com/breatheroute/cleanroute/internal/exposure"
)

var (
	// ErrNoCandidates indicates the routing provider returned no usable routes.
	ErrNoCandidates = errors.New("no candidate routes")
	// ErrRoutingService indicates a transport failure or timeout talking to
	// the routing provider.
	ErrRoutingService = errors.New("routing service error")
	// ErrNoReadings indicates no sensor reported in the requested hour.
	ErrNoReadings = errors.New("no sensor readings in the requested hour")
)

// Kind classifies comparison failures for the presentation layer.
type Kind string

const (
	KindOutOfCoverage  Kind = "out_of_coverage"
	KindEmptyRoute     Kind = "empty_route"
	KindNoCandidates   Kind = "no_candidates"
	KindRoutingService Kind = "routing_service"
	KindModelNotReady  Kind = "model_not_ready"
	KindNoReadings     Kind = "no_readings"
	KindInternal       Kind = "internal"
)

// Error carries the kind of failure and the offending point or route.
type Error struct {
	Kind Kind

	// Point is the location that caused the failure, if any.
	Point *exposure.Coordinate

	// RouteIndex is the candidate that caused the failure, or -1.
	RouteIndex int

	Err error
}

func (e *Error) Error() string {
	switch {
	case e.Point != nil:
		return fmt.Sprintf("%s at (%.6f, %.6f): %v", e.Kind, e.Point.Lat, e.Point.Lon, e.Err)
	case e.RouteIndex >= 0:
		return fmt.Sprintf("%s in route %d: %v", e.Kind, e.RouteIndex, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf classifies err. Errors that are not an *Error are classified by
// the sentinel they wrap.
func KindOf(err error) Kind {
	var cmpErr *Error
	if errors.As(err, &cmpErr) {
		return cmpErr.Kind
	}
	switch {
	case errors.Is(err, airquality.ErrModelNotReady):
		return KindModelNotReady
	case errors.Is(err, airquality.ErrOutOfCoverage):
		return KindOutOfCoverage
	case errors.Is(err, exposure.ErrEmptyRoute), errors.Is(err, exposure.ErrInvalidRoute):
		return KindEmptyRoute
	case errors.Is(err, ErrNoCandidates):
		return KindNoCandidates
	case errors.Is(err, ErrRoutingService):
		return KindRoutingService
	case errors.Is(err, ErrNoReadings):
		return KindNoReadings
	default:
		return KindInternal
	}
}

func coverageError(p exposure.Coordinate, err error) *Error {
	return &Error{Kind: KindOutOfCoverage, Point: &p, RouteIndex: -1, Err: err}
}

func routeError(index int, err error) *Error {
	kind := KindInternal
	if errors.Is(err, exposure.ErrEmptyRoute) || errors.Is(err, exposure.ErrInvalidRoute) {
		kind = KindEmptyRoute
	}
	return &Error{Kind: kind, RouteIndex: index, Err: err}
}
