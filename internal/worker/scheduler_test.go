package worker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/cleanroute/internal/airquality"
	"github.com/breatheroute/cleanroute/internal/worker"
)

type collectingSink struct {
	mu      sync.Mutex
	results []*worker.JobResult
}

func (s *collectingSink) Publish(_ context.Context, r *worker.JobResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
	return nil
}

func TestScheduler_RunOnce(t *testing.T) {
	c := &fakeComparer{}
	job := worker.NewBatchJob(worker.BatchJobConfig{
		Config:   worker.BatchConfig{Corridors: testCorridors(2)},
		Comparer: c,
		Logger:   zerolog.Nop(),
	})
	sink := &collectingSink{}
	s := worker.NewScheduler(job, sink, time.Hour, zerolog.Nop())

	s.RunOnce(context.Background())

	require.Len(t, sink.results, 1)
	assert.Equal(t, worker.JobCompareCorridors, sink.results[0].JobType)
	assert.Equal(t, 2, sink.results[0].Batch.Successful)
}

func TestScheduler_RunOnce_CancelledContext(t *testing.T) {
	c := &fakeComparer{}
	job := worker.NewBatchJob(worker.BatchJobConfig{
		Config:   worker.BatchConfig{Corridors: testCorridors(2)},
		Comparer: c,
		Logger:   zerolog.Nop(),
	})
	sink := &collectingSink{}
	s := worker.NewScheduler(job, sink, 0, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.RunOnce(ctx)

	assert.Empty(t, sink.results)
	assert.Zero(t, c.calls.Load())
}

func TestScheduler_StartStop(t *testing.T) {
	job := worker.NewBatchJob(worker.BatchJobConfig{
		Config:   worker.BatchConfig{Corridors: testCorridors(1)},
		Comparer: &fakeComparer{},
		Logger:   zerolog.Nop(),
	})
	s := worker.NewScheduler(job, &collectingSink{}, time.Hour, zerolog.Nop())

	require.NoError(t, s.Start(context.Background()))
	s.Stop()
}

func TestScheduler_RunWhenReady(t *testing.T) {
	c := &fakeComparer{}
	job := worker.NewBatchJob(worker.BatchJobConfig{
		Config:   worker.BatchConfig{Corridors: testCorridors(2)},
		Comparer: c,
		Logger:   zerolog.Nop(),
	})
	sink := &collectingSink{}
	s := worker.NewScheduler(job, sink, time.Hour, zerolog.Nop())

	holder := airquality.NewModelHolder()
	done := make(chan struct{})
	go func() {
		s.RunWhenReady(context.Background(), holder)
		close(done)
	}()

	// Nothing runs before the model is published.
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, c.calls.Load())

	ds, err := airquality.NewDataset([]airquality.Reading{{
		StationName: "Cyber City",
		Location:    airquality.Coordinate{Lat: 28.4950, Lon: 77.0895},
		Value:       96,
		Timestamp:   time.Date(2024, 11, 13, 10, 0, 0, 0, time.UTC),
	}}, airquality.AggregateLatest)
	require.NoError(t, err)
	model, err := airquality.NewModel(ds, airquality.ModelConfig{})
	require.NoError(t, err)
	require.True(t, holder.Set(model))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("initial corridor run did not finish")
	}
	require.Len(t, sink.results, 1)
	assert.Equal(t, 2, sink.results[0].Batch.Successful)
}

func TestScheduler_RunWhenReady_ContextEnds(t *testing.T) {
	c := &fakeComparer{}
	job := worker.NewBatchJob(worker.BatchJobConfig{
		Config:   worker.BatchConfig{Corridors: testCorridors(1)},
		Comparer: c,
		Logger:   zerolog.Nop(),
	})
	sink := &collectingSink{}
	s := worker.NewScheduler(job, sink, time.Hour, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	s.RunWhenReady(ctx, airquality.NewModelHolder())

	assert.Empty(t, sink.results)
	assert.Zero(t, c.calls.Load())
}
