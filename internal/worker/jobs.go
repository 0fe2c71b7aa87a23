package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/breatheroute/cleanroute/internal/comparison"
)

// Job types accepted on the job subscription.
const (
	JobCompareRoutes    = "compare_routes"
	JobCompareCorridors = "compare_corridors"
	JobHealthCheck      = "health_check"
)

var (
	// ErrUnknownJob indicates a message with an unsupported job_type.
	ErrUnknownJob = errors.New("unknown job type")
	// ErrInvalidJob indicates a message that failed to parse or validate.
	ErrInvalidJob = errors.New("invalid job message")
)

// JobMessage is a job request received from Pub/Sub.
type JobMessage struct {
	JobType   string `json:"job_type" validate:"required"`
	RequestID string `json:"request_id,omitempty"`

	// Origin, Destination and Alternatives apply to compare_routes.
	Origin       *JobPoint `json:"origin,omitempty" validate:"required_if=JobType compare_routes"`
	Destination  *JobPoint `json:"destination,omitempty" validate:"required_if=JobType compare_routes"`
	Alternatives int       `json:"alternatives,omitempty" validate:"omitempty,min=1,max=5"`
}

// JobPoint is a coordinate in a job message.
type JobPoint struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon float64 `json:"lon" validate:"gte=-180,lte=180"`
}

func (p JobPoint) coordinate() Coordinate {
	return Coordinate{Lat: p.Lat, Lon: p.Lon}
}

// JobResult is published for every processed job.
type JobResult struct {
	JobType     string    `json:"job_type"`
	RequestID   string    `json:"request_id,omitempty"`
	CompletedAt time.Time `json:"completed_at"`

	Comparison *ComparisonSummary `json:"comparison,omitempty"`
	Batch      *BatchSummary      `json:"batch,omitempty"`
	Error      *JobError          `json:"error,omitempty"`
}

// JobError describes a comparison that could not be completed.
type JobError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ComparisonSummary is the published form of a comparison result.
type ComparisonSummary struct {
	Fastest   int            `json:"fastest"`
	Cleanest  int            `json:"cleanest"`
	SameRoute bool           `json:"same_route"`
	Routes    []RouteSummary `json:"routes"`
}

// RouteSummary is one scored candidate.
type RouteSummary struct {
	Index           int     `json:"index"`
	Summary         string  `json:"summary,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
	DistanceMeters  float64 `json:"distance_meters"`
	Exposure        float64 `json:"exposure"`
	MeanPM25        float64 `json:"mean_pm25"`
	Degraded        bool    `json:"degraded"`
}

// BatchSummary is the published form of a corridor batch.
type BatchSummary struct {
	DurationMillis int64             `json:"duration_ms"`
	Total          int               `json:"total"`
	Successful     int               `json:"successful"`
	Failed         int               `json:"failed"`
	Degraded       int               `json:"degraded"`
	Corridors      []CorridorSummary `json:"corridors"`
}

// CorridorSummary is one corridor outcome within a batch.
type CorridorSummary struct {
	Name       string             `json:"name"`
	Comparison *ComparisonSummary `json:"comparison,omitempty"`
	Error      *JobError          `json:"error,omitempty"`
}

// Processor turns job messages into results. It is independent of the
// transport so it can be driven by Pub/Sub or tests.
type Processor struct {
	comparer Comparer
	batch    *BatchJob
	validate *validator.Validate
	logger   zerolog.Logger
	now      func() time.Time
}

// NewProcessor creates a job processor.
func NewProcessor(comparer Comparer, batch *BatchJob, logger zerolog.Logger) *Processor {
	return &Processor{
		comparer: comparer,
		batch:    batch,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
		now:      time.Now,
	}
}

// Decode parses and validates a raw job message.
func (p *Processor) Decode(data []byte) (JobMessage, error) {
	var msg JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("%w: %w", ErrInvalidJob, err)
	}
	if err := p.validate.Struct(msg); err != nil {
		return msg, fmt.Errorf("%w: %w", ErrInvalidJob, err)
	}
	return msg, nil
}

// Process runs one job. Domain failures of a single comparison (coverage,
// empty or missing routes) are reported in the result. Transient failures
// are returned as errors so the message can be redelivered.
func (p *Processor) Process(ctx context.Context, msg JobMessage) (*JobResult, error) {
	switch msg.JobType {
	case JobCompareRoutes:
		return p.compareRoutes(ctx, msg)
	case JobCompareCorridors:
		return p.compareCorridors(ctx, msg)
	case JobHealthCheck:
		return p.healthCheck(ctx, msg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownJob, msg.JobType)
	}
}

func (p *Processor) compareRoutes(ctx context.Context, msg JobMessage) (*JobResult, error) {
	result := &JobResult{JobType: msg.JobType, RequestID: msg.RequestID}

	res, err := p.comparer.Compare(ctx, comparison.Request{
		Origin:       msg.Origin.coordinate(),
		Destination:  msg.Destination.coordinate(),
		Alternatives: msg.Alternatives,
	})
	if err != nil {
		if Transient(err) {
			return nil, err
		}
		result.Error = jobError(err)
	} else {
		result.Comparison = summarize(res)
	}

	result.CompletedAt = p.now()
	return result, nil
}

func (p *Processor) compareCorridors(ctx context.Context, msg JobMessage) (*JobResult, error) {
	run := p.batch.Run(ctx)

	result := &JobResult{
		JobType:     msg.JobType,
		RequestID:   msg.RequestID,
		CompletedAt: p.now(),
		Batch:       summarizeBatch(run),
	}

	// Consider it successful if no more than half failed.
	if run.Failed > run.Successful {
		return result, fmt.Errorf("too many corridor failures: %d/%d", run.Failed, run.Total)
	}
	return result, nil
}

func (p *Processor) healthCheck(ctx context.Context, msg JobMessage) (*JobResult, error) {
	p.logger.Debug().Msg("running health check")

	// Compare a single corridor to verify model and routing connectivity.
	corridors := p.batch.Config().OrderedCorridors()
	run := p.batch.RunCorridors(ctx, corridors[:1])

	result := &JobResult{
		JobType:     msg.JobType,
		RequestID:   msg.RequestID,
		CompletedAt: p.now(),
		Batch:       summarizeBatch(run),
	}
	if run.Failed > 0 {
		return result, fmt.Errorf("health check failed: %w", run.Corridors[0].Err)
	}

	p.logger.Debug().Msg("health check passed")
	return result, nil
}

// Transient reports whether err may succeed on retry.
func Transient(err error) bool {
	switch comparison.KindOf(err) {
	case comparison.KindRoutingService, comparison.KindModelNotReady:
		return true
	case comparison.KindInternal:
		return errors.Is(err, context.DeadlineExceeded)
	default:
		return false
	}
}

func jobError(err error) *JobError {
	return &JobError{Kind: string(comparison.KindOf(err)), Message: err.Error()}
}

func summarize(res *comparison.Result) *ComparisonSummary {
	out := &ComparisonSummary{
		Fastest:   res.Fastest.Index,
		Cleanest:  res.Cleanest.Index,
		SameRoute: res.SameRoute,
		Routes:    make([]RouteSummary, 0, len(res.Alternatives)),
	}
	for _, alt := range res.Alternatives {
		out.Routes = append(out.Routes, RouteSummary{
			Index:           alt.Index,
			Summary:         alt.Route.Summary,
			DurationSeconds: alt.Route.DurationSeconds,
			DistanceMeters:  alt.Route.DistanceMeters,
			Exposure:        alt.Exposure.Value,
			MeanPM25:        alt.Exposure.MeanConcentration,
			Degraded:        alt.Exposure.Degraded,
		})
	}
	return out
}

func summarizeBatch(run *BatchResult) *BatchSummary {
	out := &BatchSummary{
		DurationMillis: run.Duration.Milliseconds(),
		Total:          run.Total,
		Successful:     run.Successful,
		Failed:         run.Failed,
		Degraded:       run.Degraded,
		Corridors:      make([]CorridorSummary, 0, len(run.Corridors)),
	}
	for _, c := range run.Corridors {
		cs := CorridorSummary{Name: c.Corridor.Name}
		if c.Err != nil {
			cs.Error = jobError(c.Err)
		} else {
			cs.Comparison = summarize(c.Result)
		}
		out.Corridors = append(out.Corridors, cs)
	}
	return out
}
