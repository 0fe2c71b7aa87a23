package comparison

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/breatheroute/cleanroute/internal/comparison"

// Metrics holds the comparison instruments.
type Metrics struct {
	comparisons     metric.Int64Counter
	duration        metric.Float64Histogram
	routesScored    metric.Int64Counter
	degradedSamples metric.Int64Counter
}

// NewMetrics registers the comparison instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)

	comparisons, err := meter.Int64Counter(
		"comparison.total",
		metric.WithDescription("Total number of route comparisons by outcome"),
		metric.WithUnit("{comparison}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"comparison.duration",
		metric.WithDescription("Duration of route comparisons in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	routesScored, err := meter.Int64Counter(
		"comparison.routes.scored",
		metric.WithDescription("Number of candidate routes scored"),
		metric.WithUnit("{route}"),
	)
	if err != nil {
		return nil, err
	}

	degradedSamples, err := meter.Int64Counter(
		"comparison.samples.degraded",
		metric.WithDescription("Route samples outside sensor coverage scored with the dataset mean"),
		metric.WithUnit("{sample}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		comparisons:     comparisons,
		duration:        duration,
		routesScored:    routesScored,
		degradedSamples: degradedSamples,
	}, nil
}

func (m *Metrics) record(ctx context.Context, result *Result, elapsed time.Duration, err error) {
	if m == nil {
		return
	}

	outcome := "ok"
	if err != nil {
		outcome = string(KindOf(err))
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))

	m.comparisons.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)

	if result == nil {
		return
	}
	m.routesScored.Add(ctx, int64(len(result.Alternatives)))
	var degraded int64
	for _, r := range result.Alternatives {
		degraded += int64(r.Exposure.DegradedSamples)
	}
	if degraded > 0 {
		m.degradedSamples.Add(ctx, degraded)
	}
}
