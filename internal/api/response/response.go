// Package response provides utilities for HTTP response handling.
package response

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/breatheroute/cleanroute/internal/api/middleware"
	"github.com/breatheroute/cleanroute/internal/api/models"
)

// JSON writes a JSON response with the given status code.
// Includes X-Request-Id header for correlation.
func JSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	requestID := middleware.GetRequestID(r.Context())
	if requestID != "" {
		w.Header().Set("X-Request-Id", requestID)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Error writes a Problem+JSON error response.
func Error(w http.ResponseWriter, r *http.Request, problem *models.Problem) {
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// BadRequest writes a 400 Bad Request error response.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string, errors []models.FieldError) {
	Error(w, r, models.NewBadRequest(traceID(r), detail, errors))
}

// NotFound writes a 404 Not Found error response.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewNotFound(traceID(r), detail))
}

// MethodNotAllowed writes a 405 Method Not Allowed error response.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewMethodNotAllowed(traceID(r), detail))
}

// OutOfCoverage writes a 422 response naming the uncovered point.
func OutOfCoverage(w http.ResponseWriter, r *http.Request, detail string, point *models.Point) {
	Error(w, r, models.NewOutOfCoverage(traceID(r), detail, point))
}

// EmptyRoute writes a 422 response for a zero-length candidate route.
func EmptyRoute(w http.ResponseWriter, r *http.Request, detail string, routeIndex int) {
	Error(w, r, models.NewEmptyRoute(traceID(r), detail, routeIndex))
}

// NoRoute writes a 404 response when routing produced no usable candidates.
func NoRoute(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewNoRoute(traceID(r), detail))
}

// InternalError writes a 500 Internal Server Error response.
func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewInternalError(traceID(r), detail))
}

// RoutingUnavailable writes a 502 response for routing provider failures.
func RoutingUnavailable(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewRoutingUnavailable(traceID(r), detail))
}

// ServiceUnavailable writes a 503 Service Unavailable error response.
// retryAfter, when positive, is sent as Retry-After in seconds.
func ServiceUnavailable(w http.ResponseWriter, r *http.Request, detail string, retryAfter int) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}
	Error(w, r, models.NewServiceUnavailable(traceID(r), detail))
}

func traceID(r *http.Request) string {
	return middleware.GetRequestID(r.Context())
}
