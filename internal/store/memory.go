package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/doclens/engine/internal/codec"
	enginerrors "github.com/doclens/engine/internal/errors"
	"github.com/doclens/engine/internal/models"
	"github.com/doclens/engine/internal/observability"
	"github.com/doclens/engine/pkg/vectormath"
)

// MemoryStore is an in-process Store using brute-force summary search. Its
// search is exact rather than approximate, which makes it a recall
// reference for the indexed backend in tests.
type MemoryStore struct {
	codec   *codec.Codec
	metrics observability.StoreMetrics

	mu          sync.RWMutex
	collections map[string]*memCollection
}

type memCollection struct {
	cfg models.CollectionConfig

	// Single-writer per collection: Insert/Delete take the write lock,
	// searches and fetches take the read lock.
	mu      sync.RWMutex
	records map[string]*memRecord
}

type memRecord struct {
	summary   []float32
	blob      []byte
	metadata  models.Metadata
	createdAt time.Time
}

// NewMemoryStore creates an empty in-memory store. metrics may be nil.
func NewMemoryStore(c *codec.Codec, metrics observability.StoreMetrics) *MemoryStore {
	return &MemoryStore{
		codec:       c,
		metrics:     metrics,
		collections: make(map[string]*memCollection),
	}
}

// CreateCollection implements Store.
func (s *MemoryStore) CreateCollection(_ context.Context, cfg models.CollectionConfig) error {
	if cfg.Dim <= 0 {
		return fmt.Errorf("collection %q: dimension must be positive", cfg.Name)
	}

	if !cfg.Metric.Valid() {
		return fmt.Errorf("collection %q: unknown metric %q", cfg.Name, cfg.Metric)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.collections[cfg.Name]; ok {
		if existing.cfg != cfg {
			return fmt.Errorf("collection %q already exists with different configuration", cfg.Name)
		}

		return nil
	}

	s.collections[cfg.Name] = &memCollection{
		cfg:     cfg,
		records: make(map[string]*memRecord),
	}

	return nil
}

func (s *MemoryStore) collection(name string) (*memCollection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col, ok := s.collections[name]
	if !ok {
		return nil, &enginerrors.NotFoundError{Message: fmt.Sprintf("collection %q not found", name)}
	}

	return col, nil
}

// Insert implements Store.
func (s *MemoryStore) Insert(ctx context.Context, collection, id string, summary []float32, fullMatrix *models.TokenMatrix, metadata models.Metadata) error {
	col, err := s.collection(collection)
	if err != nil {
		return err
	}

	if len(summary) != col.cfg.Dim {
		return enginerrors.NewDimensionMismatchError(collection, col.cfg.Dim, len(summary))
	}

	if err := metadata.Validate(); err != nil {
		return fmt.Errorf("insert %q: %w", id, err)
	}

	blob, stats, err := s.codec.Encode(fullMatrix)
	if err != nil {
		return fmt.Errorf("encode matrix for %q: %w", id, err)
	}

	summaryCopy := make([]float32, len(summary))
	copy(summaryCopy, summary)

	col.mu.Lock()
	defer col.mu.Unlock()

	if _, exists := col.records[id]; exists {
		return enginerrors.NewDuplicateIDError(collection, id)
	}

	col.records[id] = &memRecord{
		summary:   summaryCopy,
		blob:      blob,
		metadata:  metadata.Clone(),
		createdAt: time.Now(),
	}

	if s.metrics != nil {
		s.metrics.RecordCompressionRatio(ctx, collection, stats.Ratio())
		s.metrics.RecordOperation(ctx, collection, "insert")
	}

	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	col, err := s.collection(collection)
	if err != nil {
		return err
	}

	col.mu.Lock()
	defer col.mu.Unlock()

	if _, exists := col.records[id]; !exists {
		return enginerrors.NewNotFoundError(collection, id)
	}

	delete(col.records, id)

	if s.metrics != nil {
		s.metrics.RecordOperation(ctx, collection, "delete")
	}

	return nil
}

// ANNSearch implements Store with a full scan over summary vectors.
func (s *MemoryStore) ANNSearch(_ context.Context, collection string, querySummary []float32, k int) ([]models.Candidate, error) {
	col, err := s.collection(collection)
	if err != nil {
		return nil, err
	}

	if len(querySummary) != col.cfg.Dim {
		return nil, enginerrors.NewDimensionMismatchError(collection, col.cfg.Dim, len(querySummary))
	}

	if k <= 0 {
		return nil, nil
	}

	col.mu.RLock()
	defer col.mu.RUnlock()

	candidates := make([]models.Candidate, 0, len(col.records))

	for id, rec := range col.records {
		var score float64

		switch col.cfg.Metric {
		case models.MetricCosine:
			score = vectormath.CosineSimilarity(querySummary, rec.summary)
		case models.MetricInnerProduct:
			score = vectormath.Dot(querySummary, rec.summary)
		}

		candidates = append(candidates, models.Candidate{
			ID:           id,
			Collection:   collection,
			SummaryScore: score,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].SummaryScore != candidates[j].SummaryScore {
			return candidates[i].SummaryScore > candidates[j].SummaryScore
		}
		// Deterministic order for equal scores.
		return candidates[i].ID < candidates[j].ID
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}

	return candidates, nil
}

// GetFullMatrix implements Store.
func (s *MemoryStore) GetFullMatrix(_ context.Context, collection, id string) (*models.TokenMatrix, models.Metadata, error) {
	col, err := s.collection(collection)
	if err != nil {
		return nil, nil, err
	}

	col.mu.RLock()
	rec, exists := col.records[id]
	col.mu.RUnlock()

	if !exists {
		return nil, nil, enginerrors.NewNotFoundError(collection, id)
	}

	matrix, err := s.codec.Decode(rec.blob)
	if err != nil {
		return nil, nil, fmt.Errorf("decode matrix for %q: %w", id, err)
	}

	return matrix, rec.metadata.Clone(), nil
}

// CollectionSize implements Store.
func (s *MemoryStore) CollectionSize(_ context.Context, collection string) (int, error) {
	col, err := s.collection(collection)
	if err != nil {
		return 0, err
	}

	col.mu.RLock()
	defer col.mu.RUnlock()

	return len(col.records), nil
}

var _ Store = (*MemoryStore)(nil)
