package observability

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all engine metric collectors. When metrics are disabled,
// all fields are nil; components accepting the interfaces already handle
// nil receivers at the call sites.
type Metrics struct {
	Search SearchMetrics
	Ingest IngestMetrics
	Store  StoreMetrics
	Cache  CacheMetrics
	HTTP   HTTPMetrics
}

// NewMetrics creates all metric collectors from the given meter.
// Returns (nil, nil) when meter is nil (metrics disabled).
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	search, err := NewSearchMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("search metrics: %w", err)
	}

	ingest, err := NewIngestMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("ingest metrics: %w", err)
	}

	store, err := NewStoreMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("store metrics: %w", err)
	}

	cache, err := NewCacheMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("cache metrics: %w", err)
	}

	httpMetrics, err := NewHTTPMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("http metrics: %w", err)
	}

	return &Metrics{
		Search: search,
		Ingest: ingest,
		Store:  store,
		Cache:  cache,
		HTTP:   httpMetrics,
	}, nil
}
