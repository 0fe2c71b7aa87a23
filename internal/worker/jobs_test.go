package worker_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/cleanroute/internal/airquality"
	"github.com/breatheroute/cleanroute/internal/comparison"
	"github.com/breatheroute/cleanroute/internal/routing"
	"github.com/breatheroute/cleanroute/internal/worker"
)

func newProcessor(c *fakeComparer, corridors []worker.Corridor) *worker.Processor {
	job := worker.NewBatchJob(worker.BatchJobConfig{
		Config:   worker.BatchConfig{Corridors: corridors},
		Comparer: c,
		Logger:   zerolog.Nop(),
	})
	return worker.NewProcessor(c, job, zerolog.Nop())
}

func TestProcessor_Decode(t *testing.T) {
	p := newProcessor(&fakeComparer{}, testCorridors(1))

	tests := []struct {
		name    string
		data    string
		wantErr bool
	}{
		{"compare routes", `{"job_type":"compare_routes","origin":{"lat":28.46,"lon":77.06},"destination":{"lat":28.49,"lon":77.08}}`, false},
		{"corridors", `{"job_type":"compare_corridors"}`, false},
		{"health check", `{"job_type":"health_check"}`, false},
		{"unknown type still decodes", `{"job_type":"provider_refresh"}`, false},
		{"not json", `job_type=compare_routes`, true},
		{"missing job type", `{}`, true},
		{"compare without destination", `{"job_type":"compare_routes","origin":{"lat":28.46,"lon":77.06}}`, true},
		{"latitude out of range", `{"job_type":"compare_routes","origin":{"lat":98.46,"lon":77.06},"destination":{"lat":28.49,"lon":77.08}}`, true},
		{"too many alternatives", `{"job_type":"compare_routes","origin":{"lat":28.46,"lon":77.06},"destination":{"lat":28.49,"lon":77.08},"alternatives":9}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Decode([]byte(tt.data))
			if tt.wantErr {
				assert.ErrorIs(t, err, worker.ErrInvalidJob)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestProcessor_CompareRoutes(t *testing.T) {
	c := &fakeComparer{}
	p := newProcessor(c, testCorridors(1))

	msg, err := p.Decode([]byte(`{"job_type":"compare_routes","request_id":"req_1","origin":{"lat":28.4683,"lon":77.0626},"destination":{"lat":28.4950,"lon":77.0895},"alternatives":2}`))
	require.NoError(t, err)

	result, err := p.Process(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, worker.JobCompareRoutes, result.JobType)
	assert.Equal(t, "req_1", result.RequestID)
	assert.NotZero(t, result.CompletedAt)
	assert.Nil(t, result.Error)
	require.NotNil(t, result.Comparison)
	assert.Equal(t, 0, result.Comparison.Fastest)
	assert.Equal(t, 1, result.Comparison.Cleanest)
	assert.Len(t, result.Comparison.Routes, 2)
	assert.Equal(t, "Golf Course Road", result.Comparison.Routes[1].Summary)

	require.Len(t, c.requests, 1)
	assert.Equal(t, worker.Coordinate{Lat: 28.4683, Lon: 77.0626}, c.requests[0].Origin)
	assert.Equal(t, 2, c.requests[0].Alternatives)

	data, err := json.Marshal(result)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"same_route":false`)
}

func TestProcessor_CompareRoutes_PermanentFailure(t *testing.T) {
	origin := worker.Coordinate{Lat: 19.0760, Lon: 72.8777}
	c := &fakeComparer{errs: map[worker.Coordinate]error{
		origin: &comparison.Error{Kind: comparison.KindOutOfCoverage, Point: &origin, RouteIndex: -1, Err: airquality.ErrOutOfCoverage},
	}}
	p := newProcessor(c, testCorridors(1))

	result, err := p.Process(context.Background(), worker.JobMessage{
		JobType:     worker.JobCompareRoutes,
		Origin:      &worker.JobPoint{Lat: origin.Lat, Lon: origin.Lon},
		Destination: &worker.JobPoint{Lat: 28.4950, Lon: 77.0895},
	})
	require.NoError(t, err)
	require.NotNil(t, result.Error)
	assert.Equal(t, string(comparison.KindOutOfCoverage), result.Error.Kind)
	assert.Nil(t, result.Comparison)
}

func TestProcessor_CompareRoutes_TransientFailure(t *testing.T) {
	origin := worker.Coordinate{Lat: 28.4683, Lon: 77.0626}
	c := &fakeComparer{errs: map[worker.Coordinate]error{
		origin: &comparison.Error{Kind: comparison.KindRoutingService, RouteIndex: -1, Err: routing.ErrProviderUnavailable},
	}}
	p := newProcessor(c, testCorridors(1))

	result, err := p.Process(context.Background(), worker.JobMessage{
		JobType:     worker.JobCompareRoutes,
		Origin:      &worker.JobPoint{Lat: origin.Lat, Lon: origin.Lon},
		Destination: &worker.JobPoint{Lat: 28.4950, Lon: 77.0895},
	})
	assert.Error(t, err)
	assert.Nil(t, result)
}

func TestProcessor_CompareCorridors(t *testing.T) {
	corridors := testCorridors(3)
	c := &fakeComparer{errs: map[worker.Coordinate]error{
		corridors[1].Origin: &comparison.Error{Kind: comparison.KindNoCandidates, RouteIndex: -1, Err: comparison.ErrNoCandidates},
	}}
	p := newProcessor(c, corridors)

	result, err := p.Process(context.Background(), worker.JobMessage{JobType: worker.JobCompareCorridors})
	require.NoError(t, err)
	require.NotNil(t, result.Batch)
	assert.Equal(t, 3, result.Batch.Total)
	assert.Equal(t, 2, result.Batch.Successful)
	assert.Equal(t, 1, result.Batch.Failed)
	require.Len(t, result.Batch.Corridors, 3)
	require.NotNil(t, result.Batch.Corridors[1].Error)
	assert.Equal(t, "no_candidates", result.Batch.Corridors[1].Error.Kind)
}

func TestProcessor_CompareCorridors_MostlyFailing(t *testing.T) {
	corridors := testCorridors(3)
	fail := &comparison.Error{Kind: comparison.KindModelNotReady, RouteIndex: -1, Err: airquality.ErrModelNotReady}
	c := &fakeComparer{errs: map[worker.Coordinate]error{
		corridors[0].Origin: fail,
		corridors[1].Origin: fail,
	}}
	p := newProcessor(c, corridors)

	result, err := p.Process(context.Background(), worker.JobMessage{JobType: worker.JobCompareCorridors})
	assert.Error(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 2, result.Batch.Failed)
}

func TestProcessor_HealthCheck(t *testing.T) {
	corridors := testCorridors(3)
	c := &fakeComparer{}
	p := newProcessor(c, corridors)

	result, err := p.Process(context.Background(), worker.JobMessage{JobType: worker.JobHealthCheck})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Batch.Total)
	assert.Equal(t, int32(1), c.calls.Load())
}

func TestProcessor_HealthCheck_Fails(t *testing.T) {
	corridors := testCorridors(1)
	c := &fakeComparer{errs: map[worker.Coordinate]error{
		corridors[0].Origin: &comparison.Error{Kind: comparison.KindRoutingService, RouteIndex: -1, Err: comparison.ErrRoutingService},
	}}
	p := newProcessor(c, corridors)

	_, err := p.Process(context.Background(), worker.JobMessage{JobType: worker.JobHealthCheck})
	assert.ErrorIs(t, err, comparison.ErrRoutingService)
}

func TestProcessor_UnknownJob(t *testing.T) {
	p := newProcessor(&fakeComparer{}, testCorridors(1))

	_, err := p.Process(context.Background(), worker.JobMessage{JobType: "alert_evaluation"})
	assert.ErrorIs(t, err, worker.ErrUnknownJob)
}

func TestTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"routing service", &comparison.Error{Kind: comparison.KindRoutingService, Err: comparison.ErrRoutingService}, true},
		{"model not ready", airquality.ErrModelNotReady, true},
		{"deadline", context.DeadlineExceeded, true},
		{"out of coverage", airquality.ErrOutOfCoverage, false},
		{"no candidates", comparison.ErrNoCandidates, false},
		{"empty route", &comparison.Error{Kind: comparison.KindEmptyRoute, RouteIndex: 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, worker.Transient(tt.err))
		})
	}
}
