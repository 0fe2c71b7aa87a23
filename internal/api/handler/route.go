package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/cleanroute/internal/api/models"
	"github.com/breatheroute/cleanroute/internal/api/response"
	"github.com/breatheroute/cleanroute/internal/comparison"
	"github.com/breatheroute/cleanroute/internal/exposure"
	"github.com/breatheroute/cleanroute/pkg/polyline"
)

// maxCompareBody bounds the POST /v1/routes:compare request body.
const maxCompareBody = 16 << 10

// RouteComparer compares candidate routes for a trip.
type RouteComparer interface {
	Compare(ctx context.Context, req comparison.Request) (*comparison.Result, error)
}

// RouteHandler handles route comparison endpoints.
type RouteHandler struct {
	comparer  RouteComparer
	validator *Validator
	log       zerolog.Logger
	now       func() time.Time
}

// NewRouteHandler creates a new RouteHandler.
func NewRouteHandler(comparer RouteComparer, validator *Validator, log zerolog.Logger) *RouteHandler {
	return &RouteHandler{
		comparer:  comparer,
		validator: validator,
		log:       log,
		now:       time.Now,
	}
}

// CompareRoutes handles POST /v1/routes:compare.
func (h *RouteHandler) CompareRoutes(w http.ResponseWriter, r *http.Request) {
	var input models.CompareRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCompareBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	if errs := h.validator.Struct(input); errs != nil {
		response.BadRequest(w, r, "request validation failed", errs)
		return
	}

	h.compare(w, r, comparison.Request{
		Origin:       input.Origin.Coordinate(),
		Destination:  input.Destination.Coordinate(),
		Alternatives: input.Alternatives,
	})
}

// CompareRoutesQuery handles GET /v1/routes/compare?start_lat&start_lon&end_lat&end_lon.
func (h *RouteHandler) CompareRoutesQuery(w http.ResponseWriter, r *http.Request) {
	p := newQueryParser(r.URL.Query())
	query := models.CompareQuery{
		StartLat:     p.float("start_lat"),
		StartLon:     p.float("start_lon"),
		EndLat:       p.float("end_lat"),
		EndLon:       p.float("end_lon"),
		Alternatives: p.int("alternatives"),
	}
	if len(p.errs) > 0 {
		response.BadRequest(w, r, "invalid query parameters", p.errs)
		return
	}
	if errs := h.validator.Struct(query); errs != nil {
		response.BadRequest(w, r, "request validation failed", errs)
		return
	}

	h.compare(w, r, comparison.Request{
		Origin:       exposure.Coordinate{Lat: *query.StartLat, Lon: *query.StartLon},
		Destination:  exposure.Coordinate{Lat: *query.EndLat, Lon: *query.EndLon},
		Alternatives: query.Alternatives,
	})
}

func (h *RouteHandler) compare(w http.ResponseWriter, r *http.Request, req comparison.Request) {
	result, err := h.comparer.Compare(r.Context(), req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	w.Header().Set("Cache-Control", "private, max-age=60")
	response.JSON(w, r, http.StatusOK, toCompareResponse(result, h.now()))
}

func toCompareResponse(result *comparison.Result, now time.Time) models.CompareResponse {
	resp := models.CompareResponse{
		GeneratedAt:  models.Timestamp(now),
		Fastest:      toRouteOption(result.Fastest),
		Cleanest:     toRouteOption(result.Cleanest),
		SameRoute:    result.SameRoute,
		Alternatives: make([]models.RouteOption, 0, len(result.Alternatives)),
	}

	for _, alt := range result.Alternatives {
		resp.Alternatives = append(resp.Alternatives, toRouteOption(alt))
		if alt.Exposure.Degraded {
			resp.Warnings = append(resp.Warnings, fmt.Sprintf(
				"route %d: %d of %d samples lie outside sensor coverage and use the dataset mean",
				alt.Index, alt.Exposure.DegradedSamples, alt.Exposure.Samples,
			))
		}
	}

	return resp
}

func toRouteOption(s comparison.ScoredRoute) models.RouteOption {
	points := make([][2]float64, len(s.Route.Points))
	for i, p := range s.Route.Points {
		points[i] = [2]float64{p.Lat, p.Lon}
	}

	encoded := s.Route.GeometryPolyline
	if encoded == "" {
		coords := make([]polyline.Coordinate, len(s.Route.Points))
		for i, p := range s.Route.Points {
			coords[i] = polyline.Coordinate{Lat: p.Lat, Lon: p.Lon}
		}
		encoded = polyline.Encode(coords)
	}

	return models.RouteOption{
		Index:               s.Index,
		Summary:             s.Route.Summary,
		Polyline:            encoded,
		Points:              points,
		DurationSeconds:     s.Route.DurationSeconds,
		DistanceMeters:      s.Route.DistanceMeters,
		ExposureScore:       s.Exposure.Value,
		AveragePM25:         s.Exposure.MeanConcentration,
		SampledLengthMeters: s.Exposure.LengthMeters,
		Samples:             s.Exposure.Samples,
		DegradedSamples:     s.Exposure.DegradedSamples,
		Degraded:            s.Exposure.Degraded,
	}
}
