package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doclens/engine/internal/codec"
	enginerrors "github.com/doclens/engine/internal/errors"
	"github.com/doclens/engine/internal/models"
)

func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()

	s := NewMemoryStore(codec.New(), nil)

	err := s.CreateCollection(context.Background(), models.CollectionConfig{
		Name:   "docs",
		Dim:    3,
		Metric: models.MetricCosine,
	})
	require.NoError(t, err)

	return s
}

func matrixFor(t *testing.T, rows [][]float32) *models.TokenMatrix {
	t.Helper()

	m := models.NewTokenMatrix(len(rows), len(rows[0]))
	for i, r := range rows {
		copy(m.Row(i), r)
	}

	return m
}

func TestMemoryStoreCreateCollection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Re-creating with the same configuration is a no-op.
	err := s.CreateCollection(ctx, models.CollectionConfig{Name: "docs", Dim: 3, Metric: models.MetricCosine})
	assert.NoError(t, err)

	err = s.CreateCollection(ctx, models.CollectionConfig{Name: "docs", Dim: 4, Metric: models.MetricCosine})
	assert.Error(t, err)

	err = s.CreateCollection(ctx, models.CollectionConfig{Name: "bad", Dim: 0, Metric: models.MetricCosine})
	assert.Error(t, err)

	err = s.CreateCollection(ctx, models.CollectionConfig{Name: "bad", Dim: 3, Metric: "hamming"})
	assert.Error(t, err)
}

func TestMemoryStoreInsertAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := matrixFor(t, [][]float32{{1, 0, 0}, {0, 1, 0}})
	meta := models.Metadata{"source": "test", "page": 3}

	err := s.Insert(ctx, "docs", "a", []float32{1, 0, 0}, m, meta)
	require.NoError(t, err)

	got, gotMeta, err := s.GetFullMatrix(ctx, "docs", "a")
	require.NoError(t, err)
	assert.Equal(t, m.Rows, got.Rows)
	assert.Equal(t, m.Cols, got.Cols)
	assert.Equal(t, m.Data, got.Data)
	assert.Equal(t, "test", gotMeta["source"])

	size, err := s.CollectionSize(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, 1, size)
}

func TestMemoryStoreInsertDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := matrixFor(t, [][]float32{{1, 0, 0}})

	require.NoError(t, s.Insert(ctx, "docs", "a", []float32{1, 0, 0}, m, nil))

	err := s.Insert(ctx, "docs", "a", []float32{0, 1, 0}, m, nil)
	assert.ErrorIs(t, err, enginerrors.ErrDuplicateID)

	// The duplicate insert must not have replaced the original.
	got, _, err := s.GetFullMatrix(ctx, "docs", "a")
	require.NoError(t, err)
	assert.Equal(t, m.Data, got.Data)
}

func TestMemoryStoreInsertDimensionMismatch(t *testing.T) {
	s := newTestStore(t)

	m := matrixFor(t, [][]float32{{1, 0}})

	err := s.Insert(context.Background(), "docs", "a", []float32{1, 0}, m, nil)
	assert.ErrorIs(t, err, enginerrors.ErrDimensionMismatch)
}

func TestMemoryStoreInsertUnknownCollection(t *testing.T) {
	s := newTestStore(t)

	m := matrixFor(t, [][]float32{{1, 0, 0}})

	err := s.Insert(context.Background(), "nope", "a", []float32{1, 0, 0}, m, nil)
	assert.ErrorIs(t, err, enginerrors.ErrNotFound)
}

func TestMemoryStoreDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := matrixFor(t, [][]float32{{1, 0, 0}})
	require.NoError(t, s.Insert(ctx, "docs", "a", []float32{1, 0, 0}, m, nil))

	require.NoError(t, s.Delete(ctx, "docs", "a"))

	_, _, err := s.GetFullMatrix(ctx, "docs", "a")
	assert.ErrorIs(t, err, enginerrors.ErrNotFound)

	err = s.Delete(ctx, "docs", "a")
	assert.ErrorIs(t, err, enginerrors.ErrNotFound)

	size, err := s.CollectionSize(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, 0, size)

	// Delete then re-insert under the same id is the replacement path.
	m2 := matrixFor(t, [][]float32{{0, 0, 1}})
	require.NoError(t, s.Insert(ctx, "docs", "a", []float32{0, 0, 1}, m2, nil))

	got, _, err := s.GetFullMatrix(ctx, "docs", "a")
	require.NoError(t, err)
	assert.Equal(t, m2.Data, got.Data)
}

func TestMemoryStoreANNSearchCosine(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := matrixFor(t, [][]float32{{1, 0, 0}})

	require.NoError(t, s.Insert(ctx, "docs", "x", []float32{1, 0, 0}, m, nil))
	require.NoError(t, s.Insert(ctx, "docs", "y", []float32{0.9, 0.1, 0}, m, nil))
	require.NoError(t, s.Insert(ctx, "docs", "z", []float32{0, 1, 0}, m, nil))

	candidates, err := s.ANNSearch(ctx, "docs", []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	assert.Equal(t, "x", candidates[0].ID)
	assert.Equal(t, "y", candidates[1].ID)
	assert.InDelta(t, 1.0, candidates[0].SummaryScore, 1e-6)
	assert.Greater(t, candidates[0].SummaryScore, candidates[1].SummaryScore)
	assert.Equal(t, "docs", candidates[0].Collection)
}

func TestMemoryStoreANNSearchInnerProduct(t *testing.T) {
	s := NewMemoryStore(codec.New(), nil)
	ctx := context.Background()

	err := s.CreateCollection(ctx, models.CollectionConfig{Name: "ip", Dim: 2, Metric: models.MetricInnerProduct})
	require.NoError(t, err)

	m := matrixFor(t, [][]float32{{1, 0}})

	// Inner product rewards magnitude, unlike cosine.
	require.NoError(t, s.Insert(ctx, "ip", "long", []float32{3, 0}, m, nil))
	require.NoError(t, s.Insert(ctx, "ip", "unit", []float32{1, 0}, m, nil))

	candidates, err := s.ANNSearch(ctx, "ip", []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	assert.Equal(t, "long", candidates[0].ID)
	assert.InDelta(t, 3.0, candidates[0].SummaryScore, 1e-6)
	assert.InDelta(t, 1.0, candidates[1].SummaryScore, 1e-6)
}

func TestMemoryStoreANNSearchFewerThanK(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := matrixFor(t, [][]float32{{1, 0, 0}})
	require.NoError(t, s.Insert(ctx, "docs", "only", []float32{1, 0, 0}, m, nil))

	candidates, err := s.ANNSearch(ctx, "docs", []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, candidates, 1)
}

func TestMemoryStoreANNSearchEmptyCollection(t *testing.T) {
	s := newTestStore(t)

	candidates, err := s.ANNSearch(context.Background(), "docs", []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestMemoryStoreANNSearchTieBreak(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := matrixFor(t, [][]float32{{1, 0, 0}})

	// Identical summaries score identically; order falls back to id.
	require.NoError(t, s.Insert(ctx, "docs", "b", []float32{1, 0, 0}, m, nil))
	require.NoError(t, s.Insert(ctx, "docs", "a", []float32{1, 0, 0}, m, nil))

	candidates, err := s.ANNSearch(ctx, "docs", []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "a", candidates[0].ID)
	assert.Equal(t, "b", candidates[1].ID)
}

func TestMemoryStoreANNSearchDimensionMismatch(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ANNSearch(context.Background(), "docs", []float32{1, 0}, 5)
	assert.ErrorIs(t, err, enginerrors.ErrDimensionMismatch)
}
