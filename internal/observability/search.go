package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SearchMetrics records retrieval pipeline metrics. Methods accept ctx for
// exemplar support; collection labels come from operator config so their
// cardinality is bounded in practice.
type SearchMetrics interface {
	RecordQuery(ctx context.Context, status string, duration time.Duration)
	RecordStageDuration(ctx context.Context, stage string, duration time.Duration)
	RecordStage2Candidates(ctx context.Context, collection string, count int64)
	RecordDroppedCandidate(ctx context.Context, collection string)
}

type searchMetrics struct {
	queries       metric.Int64Counter
	queryDuration metric.Float64Histogram
	stageDuration metric.Float64Histogram
	candidates    metric.Int64Histogram
	dropped       metric.Int64Counter
}

// NewSearchMetrics creates SearchMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewSearchMetrics(meter metric.Meter) (SearchMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	queries, err := meter.Int64Counter(
		MetricNameSearchQueries,
		metric.WithDescription("Total search queries by terminal status"),
	)
	if err != nil {
		return nil, fmt.Errorf("create search queries counter: %w", err)
	}

	queryDuration, err := meter.Float64Histogram(
		"engine_search_duration_seconds",
		metric.WithDescription("End-to-end search query duration (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create search duration histogram: %w", err)
	}

	stageDuration, err := meter.Float64Histogram(
		MetricNameSearchStageDuration,
		metric.WithDescription("Per-stage retrieval duration (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create stage duration histogram: %w", err)
	}

	candidates, err := meter.Int64Histogram(
		MetricNameSearchCandidates,
		metric.WithDescription("Candidates re-scored in Stage 2 per collection"),
	)
	if err != nil {
		return nil, fmt.Errorf("create stage2 candidates histogram: %w", err)
	}

	dropped, err := meter.Int64Counter(
		MetricNameSearchDropped,
		metric.WithDescription("Stage 2 candidates dropped because the record vanished between stages"),
	)
	if err != nil {
		return nil, fmt.Errorf("create dropped candidates counter: %w", err)
	}

	return &searchMetrics{
		queries:       queries,
		queryDuration: queryDuration,
		stageDuration: stageDuration,
		candidates:    candidates,
		dropped:       dropped,
	}, nil
}

func (s *searchMetrics) RecordQuery(ctx context.Context, status string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String(AttrStatus, NormalizeLabel(status, AllowedSearchStatuses)))
	s.queries.Add(ctx, 1, attrs)
	s.queryDuration.Record(ctx, duration.Seconds(), attrs)
}

func (s *searchMetrics) RecordStageDuration(ctx context.Context, stage string, duration time.Duration) {
	s.stageDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.String(AttrStage, NormalizeLabel(stage, AllowedStages))))
}

func (s *searchMetrics) RecordStage2Candidates(ctx context.Context, collection string, count int64) {
	s.candidates.Record(ctx, count,
		metric.WithAttributes(attribute.String(AttrCollection, collection)))
}

func (s *searchMetrics) RecordDroppedCandidate(ctx context.Context, collection string) {
	s.dropped.Add(ctx, 1,
		metric.WithAttributes(attribute.String(AttrCollection, collection)))
}
