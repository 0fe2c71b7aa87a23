package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/cleanroute/internal/airquality"
	"github.com/breatheroute/cleanroute/internal/api"
	"github.com/breatheroute/cleanroute/internal/api/models"
	"github.com/breatheroute/cleanroute/internal/comparison"
	"github.com/breatheroute/cleanroute/internal/exposure"
	"github.com/breatheroute/cleanroute/internal/routing"
)

type stubRouter struct {
	routes []routing.Route
	err    error
}

func (s *stubRouter) GetDirections(_ context.Context, _ routing.DirectionsRequest) (*routing.DirectionsResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &routing.DirectionsResponse{Routes: s.routes, Provider: "stub", FetchedAt: time.Now()}, nil
}

type stubStatus struct {
	status airquality.Status
}

func (s stubStatus) Status() airquality.Status { return s.status }

var (
	sector29  = routing.Coordinate{Lat: 28.4683, Lon: 77.0626}
	cyberCity = routing.Coordinate{Lat: 28.4950, Lon: 77.0895}
)

func gurugramHolder(t *testing.T) *airquality.ModelHolder {
	t.Helper()
	hour := time.Date(2024, 11, 3, 14, 0, 0, 0, time.UTC)
	readings := []airquality.Reading{
		{StationName: "Sector 51", Location: airquality.Coordinate{Lat: 28.4320, Lon: 77.0680}, Value: 142.0, Timestamp: hour},
		{StationName: "Vikas Sadan", Location: airquality.Coordinate{Lat: 28.4502, Lon: 77.0263}, Value: 188.5, Timestamp: hour},
		{StationName: "Cyber City", Location: airquality.Coordinate{Lat: 28.4950, Lon: 77.0895}, Value: 96.0, Timestamp: hour},
		{StationName: "Sohna Road", Location: airquality.Coordinate{Lat: 28.4089, Lon: 77.0418}, Value: 121.3, Timestamp: hour},
		{StationName: "Udyog Vihar", Location: airquality.Coordinate{Lat: 28.5011, Lon: 77.0820}, Value: 110.7, Timestamp: hour},
		{StationName: "Golf Course Road", Location: airquality.Coordinate{Lat: 28.4595, Lon: 77.0996}, Value: 84.2, Timestamp: hour},
	}
	ds, err := airquality.NewDataset(readings, airquality.AggregateLatest)
	require.NoError(t, err)
	m, err := airquality.NewModel(ds, airquality.ModelConfig{})
	require.NoError(t, err)

	holder := airquality.NewModelHolder()
	require.True(t, holder.Set(m))
	return holder
}

func gurugramRoutes() []routing.Route {
	return []routing.Route{
		{
			Points:          []routing.Coordinate{sector29, {Lat: 28.4750, Lon: 77.0700}, {Lat: 28.4850, Lon: 77.0800}, cyberCity},
			DistanceMeters:  4521.7,
			DurationSeconds: 642.3,
			Summary:         "NH 48",
		},
		{
			Points:          []routing.Coordinate{sector29, {Lat: 28.4600, Lon: 77.0800}, {Lat: 28.4700, Lon: 77.0990}, cyberCity},
			DistanceMeters:  6180.2,
			DurationSeconds: 815.9,
			Summary:         "Golf Course Road",
		},
	}
}

func newTestRouter(t *testing.T, holder *airquality.ModelHolder, router comparison.Router, status airquality.Status) http.Handler {
	t.Helper()
	svc := comparison.NewService(comparison.ServiceConfig{
		Holder:         holder,
		Router:         router,
		Cache:          exposure.NewCache(16),
		RoutingTimeout: time.Second,
		Logger:         zerolog.Nop(),
	})
	return api.NewRouter(api.RouterConfig{
		Version:     "test",
		BuildTime:   "2024-01-01T00:00:00Z",
		Logger:      zerolog.New(io.Discard),
		Comparer:    svc,
		Pollution:   svc,
		ModelStatus: stubStatus{status: status},
		Cache:       svc,
	})
}

func readyRouter(t *testing.T) http.Handler {
	t.Helper()
	return newTestRouter(t, gurugramHolder(t), &stubRouter{routes: gurugramRoutes()}, airquality.Status{Ready: true, Source: "test"})
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) models.Problem {
	t.Helper()
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	var problem models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
	return problem
}

func TestRouter_HealthCheck(t *testing.T) {
	router := readyRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	var health models.Health
	err := json.Unmarshal(w.Body.Bytes(), &health)
	require.NoError(t, err)

	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.Equal(t, "test", health.Details["version"])
}

func TestRouter_ReadinessCheck(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		router := readyRouter(t)

		req := httptest.NewRequest(http.MethodGet, "/v1/ops/ready", http.NoBody)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("model building", func(t *testing.T) {
		router := newTestRouter(t, airquality.NewModelHolder(), &stubRouter{}, airquality.Status{Attempts: 2})

		req := httptest.NewRequest(http.MethodGet, "/v1/ops/ready", http.NoBody)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "5", w.Header().Get("Retry-After"))

		var health models.Health
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
		assert.Equal(t, models.HealthStatusFail, health.Status)
	})
}

func TestRouter_SystemStatus(t *testing.T) {
	router := newTestRouter(t, gurugramHolder(t), &stubRouter{}, airquality.Status{
		Ready:       true,
		Source:      "airview-csv",
		Attempts:    1,
		SensorCount: 6,
		BuiltAt:     time.Date(2024, 11, 3, 15, 0, 0, 0, time.UTC),
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var status models.SystemStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))

	assert.Equal(t, models.HealthStatusOK, status.Status)
	assert.True(t, status.Model.Ready)
	assert.Equal(t, "airview-csv", status.Model.Source)
	assert.Equal(t, 6, status.Model.SensorCount)
	assert.NotNil(t, status.Model.BuiltAt)
	assert.Len(t, status.Subsystems, 2)
	assert.Empty(t, status.ActiveDegradationFlags)
}

func TestRouter_CompareRoutes(t *testing.T) {
	router := readyRouter(t)

	body, _ := json.Marshal(models.CompareRequest{
		Origin:      &models.Point{Lat: sector29.Lat, Lon: sector29.Lon},
		Destination: &models.Point{Lat: cyberCity.Lat, Lon: cyberCity.Lon},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/routes:compare", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "private, max-age=60", w.Header().Get("Cache-Control"))

	var resp models.CompareResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, 0, resp.Fastest.Index)
	assert.Len(t, resp.Alternatives, 2)
	assert.NotEmpty(t, resp.Fastest.Polyline)
	assert.Len(t, resp.Fastest.Points, 4)
	assert.Equal(t, [2]float64{sector29.Lat, sector29.Lon}, resp.Fastest.Points[0])
	assert.Greater(t, resp.Cleanest.ExposureScore, 0.0)
	assert.LessOrEqual(t, resp.Cleanest.ExposureScore, resp.Fastest.ExposureScore)
	assert.Equal(t, resp.Fastest.Index == resp.Cleanest.Index, resp.SameRoute)
}

func TestRouter_CompareRoutesQuery(t *testing.T) {
	router := readyRouter(t)

	req := httptest.NewRequest(http.MethodGet,
		"/v1/routes/compare?start_lat=28.4683&start_lon=77.0626&end_lat=28.4950&end_lon=77.0895", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.CompareResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Alternatives, 2)
}

func TestRouter_CompareRoutes_Errors(t *testing.T) {
	tests := []struct {
		name       string
		router     *stubRouter
		method     string
		target     string
		body       string
		wantStatus int
		wantType   string
		retryAfter string
	}{
		{
			name:       "invalid json",
			router:     &stubRouter{routes: gurugramRoutes()},
			method:     http.MethodPost,
			target:     "/v1/routes:compare",
			body:       `{"origin":`,
			wantStatus: http.StatusBadRequest,
			wantType:   models.ProblemTypeValidation,
		},
		{
			name:       "missing destination",
			router:     &stubRouter{routes: gurugramRoutes()},
			method:     http.MethodPost,
			target:     "/v1/routes:compare",
			body:       `{"origin":{"lat":28.4683,"lon":77.0626}}`,
			wantStatus: http.StatusBadRequest,
			wantType:   models.ProblemTypeValidation,
		},
		{
			name:       "latitude out of range",
			router:     &stubRouter{routes: gurugramRoutes()},
			method:     http.MethodGet,
			target:     "/v1/routes/compare?start_lat=128.4&start_lon=77.06&end_lat=28.49&end_lon=77.08",
			wantStatus: http.StatusBadRequest,
			wantType:   models.ProblemTypeValidation,
		},
		{
			name:       "origin outside coverage",
			router:     &stubRouter{routes: gurugramRoutes()},
			method:     http.MethodGet,
			target:     "/v1/routes/compare?start_lat=19.0760&start_lon=72.8777&end_lat=28.4950&end_lon=77.0895",
			wantStatus: http.StatusUnprocessableEntity,
			wantType:   models.ProblemTypeOutOfCoverage,
		},
		{
			name:       "no route",
			router:     &stubRouter{err: routing.ErrNoRouteFound},
			method:     http.MethodGet,
			target:     "/v1/routes/compare?start_lat=28.4683&start_lon=77.0626&end_lat=28.4950&end_lon=77.0895",
			wantStatus: http.StatusNotFound,
			wantType:   models.ProblemTypeNoRoute,
		},
		{
			name:       "routing provider down",
			router:     &stubRouter{err: &routing.Error{Provider: "stub", Message: "unavailable", Err: routing.ErrProviderUnavailable}},
			method:     http.MethodGet,
			target:     "/v1/routes/compare?start_lat=28.4683&start_lon=77.0626&end_lat=28.4950&end_lon=77.0895",
			wantStatus: http.StatusBadGateway,
			wantType:   models.ProblemTypeRoutingUnavailable,
			retryAfter: "30",
		},
		{
			name:       "routing provider timed out",
			router:     &stubRouter{err: &routing.Error{Provider: "stub", Message: "timeout", Err: context.DeadlineExceeded}},
			method:     http.MethodGet,
			target:     "/v1/routes/compare?start_lat=28.4683&start_lon=77.0626&end_lat=28.4950&end_lon=77.0895",
			wantStatus: http.StatusBadGateway,
			wantType:   models.ProblemTypeRoutingUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t, gurugramHolder(t), tt.router, airquality.Status{Ready: true})

			var body io.Reader = http.NoBody
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			req := httptest.NewRequest(tt.method, tt.target, body)
			if tt.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			problem := decodeProblem(t, w)
			assert.Equal(t, tt.wantType, problem.Type)
			assert.NotEmpty(t, problem.TraceID)
			assert.Equal(t, tt.retryAfter, w.Header().Get("Retry-After"))
		})
	}
}

func TestRouter_CompareRoutes_OutOfCoverageNamesPoint(t *testing.T) {
	router := readyRouter(t)

	req := httptest.NewRequest(http.MethodGet,
		"/v1/routes/compare?start_lat=28.4683&start_lon=77.0626&end_lat=19.0760&end_lon=72.8777", http.NoBody)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	problem := decodeProblem(t, w)
	require.NotNil(t, problem.Point)
	assert.InDelta(t, 19.0760, problem.Point.Lat, 1e-9)
	assert.InDelta(t, 72.8777, problem.Point.Lon, 1e-9)
}

func TestRouter_CompareRoutes_ModelNotReady(t *testing.T) {
	router := newTestRouter(t, airquality.NewModelHolder(), &stubRouter{routes: gurugramRoutes()}, airquality.Status{})

	req := httptest.NewRequest(http.MethodGet,
		"/v1/routes/compare?start_lat=28.4683&start_lon=77.0626&end_lat=28.4950&end_lon=77.0895", http.NoBody)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "5", w.Header().Get("Retry-After"))
	assert.Equal(t, models.ProblemTypeUnavailable, decodeProblem(t, w).Type)
}

func TestRouter_CompareRoutes_RejectsNonJSON(t *testing.T) {
	router := readyRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/routes:compare", strings.NewReader("origin=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestRouter_Pollution(t *testing.T) {
	router := readyRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/pollution?lat=28.4950&lon=77.0895", http.NoBody)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var est models.PollutionEstimate
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &est))
	assert.True(t, est.ExactMatch)
	assert.InDelta(t, 96.0, est.PM25, 1e-9)
	assert.Equal(t, airquality.Unit, est.Unit)
	assert.Equal(t, models.ConfidenceHigh, est.Confidence)
	require.NotEmpty(t, est.Contributions)
	assert.Equal(t, "Cyber City", est.Contributions[0].Sensor)
}

func TestRouter_Pollution_Errors(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantType   string
	}{
		{"missing lon", "/v1/pollution?lat=28.4", http.StatusBadRequest, models.ProblemTypeValidation},
		{"not a number", "/v1/pollution?lat=abc&lon=77.0", http.StatusBadRequest, models.ProblemTypeValidation},
		{"outside coverage", "/v1/pollution?lat=52.37&lon=4.89", http.StatusUnprocessableEntity, models.ProblemTypeOutOfCoverage},
	}

	router := readyRouter(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, http.NoBody)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantType, decodeProblem(t, w).Type)
		})
	}
}

func TestRouter_PollutionAtHour(t *testing.T) {
	latest := time.Date(2024, 11, 3, 14, 0, 0, 0, time.UTC)
	readings := []airquality.Reading{
		{StationName: "Cyber City", Location: airquality.Coordinate{Lat: 28.4950, Lon: 77.0895}, Value: 96.0, Timestamp: latest},
		{StationName: "Sector 51", Location: airquality.Coordinate{Lat: 28.4320, Lon: 77.0680}, Value: 142.0, Timestamp: latest},
		{StationName: "Cyber City", Location: airquality.Coordinate{Lat: 28.4950, Lon: 77.0895}, Value: 210.0, Timestamp: latest.Add(-time.Hour)},
	}
	ds, err := airquality.NewDataset(readings, airquality.AggregateLatest)
	require.NoError(t, err)
	m, err := airquality.NewModel(ds, airquality.ModelConfig{})
	require.NoError(t, err)
	holder := airquality.NewModelHolder()
	require.True(t, holder.Set(m))

	router := newTestRouter(t, holder, &stubRouter{}, airquality.Status{Ready: true})

	get := func(target string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, http.NoBody))
		return w
	}

	w := get("/v1/coverage")
	require.Equal(t, http.StatusOK, w.Code)
	var cov models.Coverage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cov))
	require.Len(t, cov.Hours, 2)
	assert.Equal(t, latest.Add(-time.Hour), cov.Hours[0].Time().UTC())
	assert.Equal(t, latest, cov.Hours[1].Time().UTC())

	w = get("/v1/pollution?lat=28.4950&lon=77.0895&hour=2024-11-03T13:40:00Z")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var est models.PollutionEstimate
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &est))
	assert.InDelta(t, 210.0, est.PM25, 1e-9)
	require.NotNil(t, est.Hour)
	assert.Equal(t, latest.Add(-time.Hour), est.Hour.Time().UTC())

	w = get("/v1/pollution?lat=28.4950&lon=77.0895&hour=2024-11-02T09:00:00Z")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, models.ProblemTypeNotFound, decodeProblem(t, w).Type)

	w = get("/v1/pollution?lat=28.4950&lon=77.0895&hour=yesterday")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	problem := decodeProblem(t, w)
	require.Len(t, problem.Errors, 1)
	assert.Equal(t, "hour", problem.Errors[0].Field)
}

func TestRouter_Coverage(t *testing.T) {
	router := readyRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/coverage", http.NoBody)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var cov models.Coverage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cov))
	assert.Equal(t, 6, cov.SensorCount)
	assert.InDelta(t, 28.4089, cov.SensorBounds.MinLat, 1e-9)
	assert.InDelta(t, 77.0996, cov.SensorBounds.MaxLon, 1e-9)
	assert.Less(t, cov.Bounds.MinLat, cov.SensorBounds.MinLat)
	assert.Greater(t, cov.Bounds.MaxLat, cov.SensorBounds.MaxLat)
	require.NotNil(t, cov.LatestReadingAt)
}

func TestRouter_ListSensors(t *testing.T) {
	router := readyRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/metadata/sensors", http.NoBody)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var list models.SensorList
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Items, 6)
	assert.Equal(t, 6, list.Meta.Count)
	assert.Equal(t, string(airquality.AggregateLatest), list.Meta.Aggregation)
}

func TestRouter_MetadataWhileModelBuilding(t *testing.T) {
	router := newTestRouter(t, airquality.NewModelHolder(), &stubRouter{}, airquality.Status{})

	for _, path := range []string{"/v1/coverage", "/v1/metadata/sensors", "/v1/pollution?lat=28.4&lon=77.0"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		})
	}
}

func TestRouter_NotFound(t *testing.T) {
	router := readyRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/nonexistent", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, models.ProblemTypeNotFound, decodeProblem(t, w).Type)
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	router := readyRouter(t)

	req := httptest.NewRequest(http.MethodDelete, "/v1/ops/health", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, models.ProblemTypeMethodNotAllowed, decodeProblem(t, w).Type)
}

func TestRouter_SecurityHeaders(t *testing.T) {
	router := readyRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-referrer", w.Header().Get("Referrer-Policy"))
}
