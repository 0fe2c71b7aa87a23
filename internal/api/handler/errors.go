package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/breatheroute/cleanroute/internal/api/models"
	"github.com/breatheroute/cleanroute/internal/api/response"
	"github.com/breatheroute/cleanroute/internal/comparison"
	"github.com/breatheroute/cleanroute/internal/routing"
)

// modelRetryAfter is the Retry-After hint, in seconds, while the model builds.
const modelRetryAfter = 5

// routingRetryAfter is the Retry-After hint, in seconds, after a transient
// routing provider failure.
const routingRetryAfter = 30

// writeError maps a domain error onto its problem response:
//
//	out of coverage  -> 422 out-of-coverage
//	empty route      -> 422 empty-route
//	no candidates    -> 404 no-route
//	routing service  -> 502 routing-unavailable
//	model not ready  -> 503 service-unavailable
//	no readings      -> 404 not-found
//
// Anything else is logged and returned as a 500 without internal detail.
func writeError(w http.ResponseWriter, r *http.Request, log zerolog.Logger, err error) {
	var cmpErr *comparison.Error
	errors.As(err, &cmpErr)

	switch comparison.KindOf(err) {
	case comparison.KindOutOfCoverage:
		var point *models.Point
		if cmpErr != nil && cmpErr.Point != nil {
			p := models.PointFrom(*cmpErr.Point)
			point = &p
		}
		detail := "location is outside the area covered by air quality sensors"
		if point != nil {
			detail = fmt.Sprintf("location (%.5f, %.5f) is outside the area covered by air quality sensors", point.Lat, point.Lon)
		}
		response.OutOfCoverage(w, r, detail, point)

	case comparison.KindEmptyRoute:
		index := -1
		if cmpErr != nil {
			index = cmpErr.RouteIndex
		}
		response.EmptyRoute(w, r, "a candidate route has zero length", index)

	case comparison.KindNoCandidates:
		response.NoRoute(w, r, "no route could be found between origin and destination")

	case comparison.KindRoutingService:
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("routing service failed")
		var routingErr *routing.Error
		if errors.As(err, &routingErr) && routingErr.IsRetryable() {
			w.Header().Set("Retry-After", strconv.Itoa(routingRetryAfter))
		}
		response.RoutingUnavailable(w, r, "the routing service is unavailable, try again later")

	case comparison.KindModelNotReady:
		response.ServiceUnavailable(w, r, "air quality model is still loading", modelRetryAfter)

	case comparison.KindNoReadings:
		response.NotFound(w, r, "no sensor readings were taken in the requested hour")

	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		response.InternalError(w, r, "an unexpected error occurred")
	}
}
