package models

import (
	"encoding/json"
	"net/http"
)

// Problem represents an RFC7807 error response.
// This is used for all API error responses with Content-Type: application/problem+json.
type Problem struct {
	// Type is a URI reference that identifies the problem type.
	Type string `json:"type"`

	// Title is a short, human-readable summary of the problem type.
	Title string `json:"title"`

	// Status is the HTTP status code for this occurrence of the problem.
	Status int `json:"status"`

	// Detail is a human-readable explanation specific to this occurrence.
	Detail string `json:"detail,omitempty"`

	// Instance is a URI reference that identifies the specific occurrence.
	Instance string `json:"instance,omitempty"`

	// TraceID is the request trace identifier for debugging.
	TraceID string `json:"traceId"`

	// Point is the offending location for out-of-coverage problems.
	Point *Point `json:"point,omitempty"`

	// RouteIndex identifies the candidate route for empty-route problems.
	RouteIndex *int `json:"routeIndex,omitempty"`

	// Errors contains structured field validation errors.
	Errors []FieldError `json:"errors,omitempty"`
}

// FieldError represents a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ProblemType constants for standard error types.
const (
	ProblemTypeValidation         = "https://cleanroute.breatheroute.nl/problems/validation-error"
	ProblemTypeNotFound           = "https://cleanroute.breatheroute.nl/problems/not-found"
	ProblemTypeOutOfCoverage      = "https://cleanroute.breatheroute.nl/problems/out-of-coverage"
	ProblemTypeEmptyRoute         = "https://cleanroute.breatheroute.nl/problems/empty-route"
	ProblemTypeNoRoute            = "https://cleanroute.breatheroute.nl/problems/no-route"
	ProblemTypeTooManyRequests    = "https://cleanroute.breatheroute.nl/problems/too-many-requests"
	ProblemTypeInternal           = "https://cleanroute.breatheroute.nl/problems/internal-error"
	ProblemTypeRoutingUnavailable = "https://cleanroute.breatheroute.nl/problems/routing-unavailable"
	ProblemTypeUnavailable        = "https://cleanroute.breatheroute.nl/problems/service-unavailable"
	ProblemTypeTLSRequired        = "https://cleanroute.breatheroute.nl/problems/tls-required"
	ProblemTypeUnsupportedMedia   = "https://cleanroute.breatheroute.nl/problems/unsupported-media-type"
	ProblemTypeMethodNotAllowed   = "https://cleanroute.breatheroute.nl/problems/method-not-allowed"
)

// NewProblem creates a new Problem with the given parameters.
func NewProblem(problemType, title string, status int, traceID string) *Problem {
	return &Problem{
		Type:    problemType,
		Title:   title,
		Status:  status,
		TraceID: traceID,
	}
}

// Write writes the Problem as JSON to the ResponseWriter.
func (p *Problem) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.Header().Set("X-Request-Id", p.TraceID)
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// detailed creates a problem for one occurrence.
func detailed(problemType, title string, status int, traceID, detail string) *Problem {
	p := NewProblem(problemType, title, status, traceID)
	p.Detail = detail
	return p
}

// NewBadRequest creates a 400 problem listing the invalid fields.
func NewBadRequest(traceID, detail string, errors []FieldError) *Problem {
	p := detailed(ProblemTypeValidation, "Validation error", http.StatusBadRequest, traceID, detail)
	p.Errors = errors
	return p
}

// NewNotFound creates a 404 problem for an unknown path.
func NewNotFound(traceID, detail string) *Problem {
	return detailed(ProblemTypeNotFound, "Not found", http.StatusNotFound, traceID, detail)
}

// NewMethodNotAllowed creates a 405 problem.
func NewMethodNotAllowed(traceID, detail string) *Problem {
	return detailed(ProblemTypeMethodNotAllowed, "Method not allowed", http.StatusMethodNotAllowed, traceID, detail)
}

// NewTLSRequired creates a 403 problem for plain HTTP requests behind a proxy.
func NewTLSRequired(traceID string) *Problem {
	return detailed(ProblemTypeTLSRequired, "TLS required", http.StatusForbidden, traceID, "This endpoint requires HTTPS")
}

// NewUnsupportedMediaType creates a 415 problem for non-JSON request bodies.
func NewUnsupportedMediaType(traceID string) *Problem {
	return detailed(ProblemTypeUnsupportedMedia, "Unsupported media type", http.StatusUnsupportedMediaType, traceID,
		"Content-Type must be application/json")
}

// NewOutOfCoverage creates a 422 problem naming the uncovered location.
func NewOutOfCoverage(traceID, detail string, point *Point) *Problem {
	p := detailed(ProblemTypeOutOfCoverage, "Location outside sensor coverage", http.StatusUnprocessableEntity, traceID, detail)
	p.Point = point
	return p
}

// NewEmptyRoute creates a 422 problem for a candidate route with no length.
// A negative routeIndex leaves the index out.
func NewEmptyRoute(traceID, detail string, routeIndex int) *Problem {
	p := detailed(ProblemTypeEmptyRoute, "Route has no length", http.StatusUnprocessableEntity, traceID, detail)
	if routeIndex >= 0 {
		p.RouteIndex = &routeIndex
	}
	return p
}

// NewNoRoute creates a 404 problem when routing produced no candidates.
func NewNoRoute(traceID, detail string) *Problem {
	return detailed(ProblemTypeNoRoute, "No route found", http.StatusNotFound, traceID, detail)
}

// NewTooManyRequests creates a 429 problem.
func NewTooManyRequests(traceID, detail string) *Problem {
	return detailed(ProblemTypeTooManyRequests, "Too many requests", http.StatusTooManyRequests, traceID, detail)
}

// NewInternalError creates a 500 problem.
func NewInternalError(traceID, detail string) *Problem {
	return detailed(ProblemTypeInternal, "Internal server error", http.StatusInternalServerError, traceID, detail)
}

// NewRoutingUnavailable creates a 502 problem for routing provider failures.
func NewRoutingUnavailable(traceID, detail string) *Problem {
	return detailed(ProblemTypeRoutingUnavailable, "Routing service unavailable", http.StatusBadGateway, traceID, detail)
}

// NewServiceUnavailable creates a 503 problem.
func NewServiceUnavailable(traceID, detail string) *Problem {
	return detailed(ProblemTypeUnavailable, "Service unavailable", http.StatusServiceUnavailable, traceID, detail)
}
