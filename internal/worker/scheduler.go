package worker

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"github.com/breatheroute/cleanroute/internal/airquality"
)

// DefaultInterval is the corridor batch period when none is configured.
const DefaultInterval = time.Hour

// ModelWaiter blocks until the interpolation model is published.
type ModelWaiter interface {
	Wait(ctx context.Context) (*airquality.Model, error)
}

// Scheduler runs the corridor batch periodically.
type Scheduler struct {
	scheduler *gocron.Scheduler
	job       *BatchJob
	sink      ResultSink
	interval  time.Duration
	logger    zerolog.Logger
}

// NewScheduler creates a new Scheduler. Results of each run go to sink.
func NewScheduler(job *BatchJob, sink ResultSink, interval time.Duration, logger zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	return &Scheduler{
		scheduler: s,
		job:       job,
		sink:      sink,
		interval:  interval,
		logger:    logger,
	}
}

// Start schedules the batch and starts the underlying scheduler. The first
// run happens one interval after Start.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.scheduler.Every(s.interval).WaitForSchedule().Do(func() {
		s.RunOnce(ctx)
	})
	if err != nil {
		return err
	}

	s.logger.Info().Dur("interval", s.interval).Msg("corridor schedule started")
	s.scheduler.StartAsync()
	return nil
}

// RunOnce runs the batch and forwards its summary.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	run := s.job.Run(ctx)
	result := &JobResult{
		JobType:     JobCompareCorridors,
		CompletedAt: run.EndTime,
		Batch:       summarizeBatch(run),
	}
	if err := s.sink.Publish(ctx, result); err != nil {
		s.logger.Error().Err(err).Msg("failed to publish corridor batch")
	}
}

// RunWhenReady waits for the model and then runs the batch once, so the
// first corridor results do not wait a full interval. It returns without
// running if ctx ends first.
func (s *Scheduler) RunWhenReady(ctx context.Context, models ModelWaiter) {
	model, err := models.Wait(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("model not ready, skipping initial corridor run")
		return
	}

	s.logger.Info().Int("sensors", model.Dataset().Len()).Msg("model ready, running corridors")
	s.RunOnce(ctx)
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
