package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// IngestMetrics records ingest pipeline metrics (enqueue, worker outcomes).
type IngestMetrics interface {
	RecordJobsEnqueued(ctx context.Context, count int64)
	RecordOutcome(ctx context.Context, outcome string)
	RecordDuration(ctx context.Context, duration time.Duration, outcome string)
}

type ingestMetrics struct {
	jobsEnqueued metric.Int64Counter
	outcomes     metric.Int64Counter
	duration     metric.Float64Histogram
}

// NewIngestMetrics creates IngestMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewIngestMetrics(meter metric.Meter) (IngestMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	jobsEnqueued, err := meter.Int64Counter(
		MetricNameIngestJobsEnqueued,
		metric.WithDescription("Total object embedding jobs enqueued"),
	)
	if err != nil {
		return nil, fmt.Errorf("create ingest jobs enqueued counter: %w", err)
	}

	outcomes, err := meter.Int64Counter(
		MetricNameIngestOutcomes,
		metric.WithDescription("Total embedding job outcomes by status"),
	)
	if err != nil {
		return nil, fmt.Errorf("create ingest outcomes counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		MetricNameIngestDuration,
		metric.WithDescription("Embedding job duration (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create ingest duration histogram: %w", err)
	}

	return &ingestMetrics{
		jobsEnqueued: jobsEnqueued,
		outcomes:     outcomes,
		duration:     duration,
	}, nil
}

func (m *ingestMetrics) RecordJobsEnqueued(ctx context.Context, count int64) {
	m.jobsEnqueued.Add(ctx, count)
}

func (m *ingestMetrics) RecordOutcome(ctx context.Context, outcome string) {
	m.outcomes.Add(ctx, 1,
		metric.WithAttributes(attribute.String(AttrStatus, NormalizeLabel(outcome, AllowedIngestOutcomes))))
}

func (m *ingestMetrics) RecordDuration(ctx context.Context, duration time.Duration, outcome string) {
	m.duration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.String(AttrStatus, NormalizeLabel(outcome, AllowedIngestOutcomes))))
}
