package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/cleanroute/internal/airquality"
	"github.com/breatheroute/cleanroute/internal/api/models"
	"github.com/breatheroute/cleanroute/internal/api/response"
	"github.com/breatheroute/cleanroute/internal/exposure"
)

// PollutionSource answers point queries against the published model.
type PollutionSource interface {
	EstimateAt(ctx context.Context, p exposure.Coordinate) (*airquality.Estimate, error)
	EstimateAtHour(ctx context.Context, p exposure.Coordinate, hour time.Time) (*airquality.Estimate, error)
	Model() (*airquality.Model, error)
}

// MetadataHandler handles pollution lookups and dataset metadata.
type MetadataHandler struct {
	source    PollutionSource
	validator *Validator
	log       zerolog.Logger
}

// NewMetadataHandler creates a new MetadataHandler.
func NewMetadataHandler(source PollutionSource, validator *Validator, log zerolog.Logger) *MetadataHandler {
	return &MetadataHandler{
		source:    source,
		validator: validator,
		log:       log,
	}
}

// Pollution handles GET /v1/pollution?lat&lon[&hour]. With hour, only the
// readings taken in that hour are interpolated.
func (h *MetadataHandler) Pollution(w http.ResponseWriter, r *http.Request) {
	p := newQueryParser(r.URL.Query())
	query := models.PollutionQuery{
		Lat:  p.float("lat"),
		Lon:  p.float("lon"),
		Hour: p.timestamp("hour"),
	}
	if len(p.errs) > 0 {
		response.BadRequest(w, r, "invalid query parameters", p.errs)
		return
	}
	if errs := h.validator.Struct(query); errs != nil {
		response.BadRequest(w, r, "request validation failed", errs)
		return
	}

	point := exposure.Coordinate{Lat: *query.Lat, Lon: *query.Lon}
	var (
		est *airquality.Estimate
		err error
	)
	if query.Hour != nil {
		est, err = h.source.EstimateAtHour(r.Context(), point, *query.Hour)
	} else {
		est, err = h.source.EstimateAt(r.Context(), point)
	}
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	out := models.PollutionEstimate{
		Point:                 models.PointFrom(est.Point),
		PM25:                  est.Value,
		Unit:                  airquality.Unit,
		Confidence:            models.Confidence(est.Confidence),
		NearestDistanceMeters: est.NearestDistance,
		ExactMatch:            est.ExactMatch,
		Contributions:         make([]models.Contribution, 0, len(est.Contributions)),
	}
	if query.Hour != nil {
		out.Hour = models.TimestampPtr(query.Hour.UTC().Truncate(time.Hour))
	}
	for _, c := range est.Contributions {
		out.Contributions = append(out.Contributions, models.Contribution{
			Sensor:         c.Sensor,
			Point:          models.PointFrom(c.Location),
			DistanceMeters: c.Distance,
			PM25:           c.Value,
			Weight:         c.Weight,
		})
	}

	response.JSON(w, r, http.StatusOK, out)
}

// Coverage handles GET /v1/coverage.
func (h *MetadataHandler) Coverage(w http.ResponseWriter, r *http.Request) {
	model, err := h.source.Model()
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	region := model.Coverage()
	ds := model.Dataset()

	out := models.Coverage{
		Bounds:          models.GeoBoxFrom(region.Bounds()),
		SensorBounds:    models.GeoBoxFrom(region.SensorBounds()),
		Center:          models.PointFrom(region.Center()),
		MarginMeters:    region.MarginMeters(),
		SensorCount:     ds.Len(),
		MeanPM25:        model.Mean(),
		Unit:            airquality.Unit,
		LatestReadingAt: models.TimestampPtr(ds.Latest()),
		BuiltAt:         models.Timestamp(model.BuiltAt()),
	}
	for _, hour := range ds.Hours() {
		out.Hours = append(out.Hours, models.Timestamp(hour))
	}

	w.Header().Set("Cache-Control", "public, max-age=300")
	response.JSON(w, r, http.StatusOK, out)
}

// ListSensors handles GET /v1/metadata/sensors.
func (h *MetadataHandler) ListSensors(w http.ResponseWriter, r *http.Request) {
	model, err := h.source.Model()
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	ds := model.Dataset()
	sensors := ds.Sensors()

	out := models.SensorList{
		Items: make([]models.Sensor, 0, len(sensors)),
		Meta: models.SensorListMeta{
			Count:       len(sensors),
			Rejected:    ds.Rejected(),
			Aggregation: string(ds.Aggregation()),
			Unit:        airquality.Unit,
		},
	}
	for _, s := range sensors {
		out.Items = append(out.Items, models.Sensor{
			Name:      s.Name,
			Point:     models.PointFrom(s.Location),
			PM25:      s.Value,
			Timestamp: models.Timestamp(s.Timestamp),
			Readings:  s.Readings,
		})
	}

	w.Header().Set("Cache-Control", "public, max-age=300")
	response.JSON(w, r, http.StatusOK, out)
}
