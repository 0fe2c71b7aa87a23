package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// ResultSink receives job results.
type ResultSink interface {
	Publish(ctx context.Context, result *JobResult) error
}

// LogSink writes job results to the log. It is used when no result topic
// is configured.
type LogSink struct {
	Logger zerolog.Logger
}

// Publish logs the result.
func (s LogSink) Publish(_ context.Context, result *JobResult) error {
	ev := s.Logger.Info().
		Str("job_type", result.JobType).
		Str("request_id", result.RequestID)
	if result.Comparison != nil {
		ev = ev.Int("fastest", result.Comparison.Fastest).
			Int("cleanest", result.Comparison.Cleanest).
			Bool("same_route", result.Comparison.SameRoute)
	}
	if result.Batch != nil {
		ev = ev.Int("successful", result.Batch.Successful).
			Int("failed", result.Batch.Failed).
			Int("degraded", result.Batch.Degraded)
	}
	if result.Error != nil {
		ev = ev.Str("error_kind", result.Error.Kind).Str("error", result.Error.Message)
	}
	ev.Msg("job result")
	return nil
}

// PubSubHandler handles Pub/Sub messages for the worker.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	publisher        *pubsub.Publisher
	subscriptionName string
	processor        *Processor
	sink             ResultSink
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string

	// ResultTopic receives job results as JSON. Results are logged when empty.
	ResultTopic string

	Processor *Processor
	Logger    zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Configure receive settings.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 10
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	h := &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		processor:        cfg.Processor,
		sink:             LogSink{Logger: cfg.Logger},
		logger:           cfg.Logger,
	}

	if cfg.ResultTopic != "" {
		h.publisher = client.Publisher(cfg.ResultTopic)
		h.sink = &topicSink{publisher: h.publisher}
	}

	return h, nil
}

// Start begins processing Pub/Sub messages.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if h.handle(ctx, msg.ID, msg.PublishTime, msg.Data) {
			msg.Ack()
		} else {
			msg.Nack()
		}
	})
}

// Sink returns where job results are sent: the result topic when one is
// configured, the log otherwise.
func (h *PubSubHandler) Sink() ResultSink {
	return h.sink
}

// Close flushes pending results and closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	if h.publisher != nil {
		h.publisher.Stop()
	}
	return h.client.Close()
}

// handle processes one message and reports whether it should be acked.
func (h *PubSubHandler) handle(ctx context.Context, id string, published time.Time, data []byte) bool {
	return handleMessage(ctx, h.processor, h.sink, h.logger.With().
		Str("message_id", id).
		Str("publish_time", published.Format(time.RFC3339)).
		Logger(), data)
}

func handleMessage(ctx context.Context, p *Processor, sink ResultSink, logger zerolog.Logger, data []byte) bool {
	startTime := time.Now()

	logger.Debug().Msg("received pubsub message")

	// Parse message.
	job, err := p.Decode(data)
	if err != nil {
		// Ack malformed messages to prevent redelivery
		logger.Error().Err(err).Msg("failed to parse message")
		return true
	}

	logger = logger.With().Str("job_type", job.JobType).Logger()

	result, err := p.Process(ctx, job)
	if errors.Is(err, ErrUnknownJob) {
		logger.Warn().Msg("unknown job type")
		return true
	}

	if result != nil {
		if pubErr := sink.Publish(ctx, result); pubErr != nil {
			logger.Error().Err(pubErr).Msg("failed to publish job result")
			return false
		}
	}

	if err != nil {
		logger.Error().Err(err).Msg("job failed")
		return false
	}

	logger.Info().
		Dur("duration", time.Since(startTime)).
		Msg("job completed successfully")
	return true
}

type topicSink struct {
	publisher *pubsub.Publisher
}

func (s *topicSink) Publish(ctx context.Context, result *JobResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding job result: %w", err)
	}

	res := s.publisher.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"job_type": result.JobType,
		},
	})
	if _, err := res.Get(ctx); err != nil {
		return fmt.Errorf("publishing job result: %w", err)
	}
	return nil
}
