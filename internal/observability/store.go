package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// StoreMetrics records embedding store metrics. Compression ratio is
// observed per insert so capacity planning never has to assume a fixed
// ratio.
type StoreMetrics interface {
	RecordCompressionRatio(ctx context.Context, collection string, ratio float64)
	RecordOperation(ctx context.Context, collection, operation string)
}

type storeMetrics struct {
	compression metric.Float64Histogram
	operations  metric.Int64Counter
}

// NewStoreMetrics creates StoreMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewStoreMetrics(meter metric.Meter) (StoreMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	compression, err := meter.Float64Histogram(
		MetricNameStoreCompression,
		metric.WithDescription("Token matrix compression ratio (raw bytes / blob bytes) per insert"),
	)
	if err != nil {
		return nil, fmt.Errorf("create compression ratio histogram: %w", err)
	}

	operations, err := meter.Int64Counter(
		MetricNameStoreRecords,
		metric.WithDescription("Store operations by collection and operation (insert, delete)"),
	)
	if err != nil {
		return nil, fmt.Errorf("create store operations counter: %w", err)
	}

	return &storeMetrics{compression: compression, operations: operations}, nil
}

func (s *storeMetrics) RecordCompressionRatio(ctx context.Context, collection string, ratio float64) {
	s.compression.Record(ctx, ratio,
		metric.WithAttributes(attribute.String(AttrCollection, collection)))
}

func (s *storeMetrics) RecordOperation(ctx context.Context, collection, operation string) {
	s.operations.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrCollection, collection),
		attribute.String(AttrOperation, operation),
	))
}
