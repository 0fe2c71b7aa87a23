package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/cleanroute/internal/comparison"
)

// Comparer compares candidate routes for one trip.
type Comparer interface {
	Compare(ctx context.Context, req comparison.Request) (*comparison.Result, error)
}

// BatchJob compares routes for a set of corridors.
type BatchJob struct {
	config   BatchConfig
	comparer Comparer
	logger   zerolog.Logger

	metrics *BatchMetrics
}

// BatchMetrics tracks batch job statistics.
type BatchMetrics struct {
	mu sync.RWMutex

	// Counters
	TotalRuns    int64
	Successful   int64
	Failed       int64
	Degraded     int64
	SameRoute    int64
	FailuresKind map[comparison.Kind]int64

	// Timings
	LastRunAt       time.Time
	LastRunDuration time.Duration
	TotalDuration   time.Duration
}

// BatchJobConfig holds configuration for creating a BatchJob.
type BatchJobConfig struct {
	Config   BatchConfig
	Comparer Comparer
	Logger   zerolog.Logger
}

// NewBatchJob creates a new corridor batch job.
func NewBatchJob(cfg BatchJobConfig) *BatchJob {
	config := cfg.Config
	defaults := DefaultBatchConfig()
	if len(config.Corridors) == 0 {
		config.Corridors = defaults.Corridors
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}

	return &BatchJob{
		config:   config,
		comparer: cfg.Comparer,
		logger:   cfg.Logger,
		metrics:  &BatchMetrics{FailuresKind: make(map[comparison.Kind]int64)},
	}
}

// Config returns the effective batch configuration.
func (j *BatchJob) Config() BatchConfig {
	return j.config
}

// BatchResult contains the result of a batch run.
type BatchResult struct {
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Total      int
	Successful int
	Failed     int
	Degraded   int
	SameRoute  int
	Corridors  []CorridorResult
}

// CorridorResult is the outcome for one corridor.
type CorridorResult struct {
	Corridor Corridor
	Result   *comparison.Result
	Err      error
	Duration time.Duration
}

// Kind classifies the corridor failure, or is empty on success.
func (r CorridorResult) Kind() comparison.Kind {
	if r.Err == nil {
		return ""
	}
	return comparison.KindOf(r.Err)
}

// Run compares every configured corridor. Results keep priority order.
func (j *BatchJob) Run(ctx context.Context) *BatchResult {
	return j.run(ctx, j.config.OrderedCorridors())
}

// RunCorridors compares the given corridors with the job's pool settings.
func (j *BatchJob) RunCorridors(ctx context.Context, corridors []Corridor) *BatchResult {
	return j.run(ctx, corridors)
}

func (j *BatchJob) run(ctx context.Context, corridors []Corridor) *BatchResult {
	startTime := time.Now()
	result := &BatchResult{
		StartTime: startTime,
		Total:     len(corridors),
		Corridors: make([]CorridorResult, len(corridors)),
	}

	j.logger.Info().
		Int("corridors", result.Total).
		Int("concurrency", j.config.Concurrency).
		Msg("starting corridor batch")

	// Create work channels
	work := make(chan indexedCorridor, len(corridors))
	results := make(chan indexedResult, len(corridors))

	// Start workers
	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.batchWorker(ctx, work, results)
		}()
	}

	for i, c := range corridors {
		work <- indexedCorridor{index: i, corridor: c}
	}
	close(work)

	go func() {
		wg.Wait()
		close(results)
	}()

	// Collect results
	for r := range results {
		result.Corridors[r.index] = r.res
		if r.res.Err != nil {
			result.Failed++
			continue
		}
		result.Successful++
		if degraded(r.res.Result) {
			result.Degraded++
		}
		if r.res.Result.SameRoute {
			result.SameRoute++
		}
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)

	j.updateMetrics(result)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Int("degraded", result.Degraded).
		Int("same_route", result.SameRoute).
		Msg("corridor batch completed")

	return result
}

type indexedCorridor struct {
	index    int
	corridor Corridor
}

type indexedResult struct {
	index int
	res   CorridorResult
}

func (j *BatchJob) batchWorker(ctx context.Context, work <-chan indexedCorridor, results chan<- indexedResult) {
	for it := range work {
		if err := ctx.Err(); err != nil {
			results <- indexedResult{index: it.index, res: CorridorResult{Corridor: it.corridor, Err: err}}
			continue
		}
		results <- indexedResult{index: it.index, res: j.compareCorridor(ctx, it.corridor)}
	}
}

func (j *BatchJob) compareCorridor(ctx context.Context, c Corridor) CorridorResult {
	start := time.Now()

	itemCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	res, err := j.comparer.Compare(itemCtx, comparison.Request{
		Origin:       c.Origin,
		Destination:  c.Destination,
		Alternatives: j.config.Alternatives,
	})
	if err != nil {
		j.logger.Warn().
			Err(err).
			Str("corridor", c.Name).
			Str("kind", string(comparison.KindOf(err))).
			Msg("corridor comparison failed")
	}

	return CorridorResult{
		Corridor: c,
		Result:   res,
		Err:      err,
		Duration: time.Since(start),
	}
}

// degraded reports whether any candidate used the out-of-coverage fallback.
func degraded(res *comparison.Result) bool {
	for _, alt := range res.Alternatives {
		if alt.Exposure.Degraded {
			return true
		}
	}
	return false
}

func (j *BatchJob) updateMetrics(result *BatchResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRuns++
	j.metrics.Successful += int64(result.Successful)
	j.metrics.Failed += int64(result.Failed)
	j.metrics.Degraded += int64(result.Degraded)
	j.metrics.SameRoute += int64(result.SameRoute)
	j.metrics.LastRunAt = result.EndTime
	j.metrics.LastRunDuration = result.Duration
	j.metrics.TotalDuration += result.Duration
	for _, c := range result.Corridors {
		if kind := c.Kind(); kind != "" {
			j.metrics.FailuresKind[kind]++
		}
	}
}

// GetMetrics returns a copy of the current metrics.
func (j *BatchJob) GetMetrics() BatchMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	kinds := make(map[comparison.Kind]int64, len(j.metrics.FailuresKind))
	for k, v := range j.metrics.FailuresKind {
		kinds[k] = v
	}

	return BatchMetrics{
		TotalRuns:       j.metrics.TotalRuns,
		Successful:      j.metrics.Successful,
		Failed:          j.metrics.Failed,
		Degraded:        j.metrics.Degraded,
		SameRoute:       j.metrics.SameRoute,
		FailuresKind:    kinds,
		LastRunAt:       j.metrics.LastRunAt,
		LastRunDuration: j.metrics.LastRunDuration,
		TotalDuration:   j.metrics.TotalDuration,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (j *BatchJob) MetricsSnapshot() map[string]interface{} {
	m := j.GetMetrics()
	failures := make(map[string]int64, len(m.FailuresKind))
	for k, v := range m.FailuresKind {
		failures[string(k)] = v
	}
	return map[string]interface{}{
		"total_runs":        m.TotalRuns,
		"successful":        m.Successful,
		"failed":            m.Failed,
		"degraded":          m.Degraded,
		"same_route":        m.SameRoute,
		"failures_by_kind":  failures,
		"last_run_at":       m.LastRunAt,
		"last_run_duration": m.LastRunDuration.String(),
		"total_duration":    m.TotalDuration.String(),
	}
}
