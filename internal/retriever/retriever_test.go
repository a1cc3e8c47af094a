package retriever

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	enginerrors "github.com/doclens/engine/internal/errors"
	"github.com/doclens/engine/internal/models"
)

type mockStore struct {
	annSearchFunc     func(ctx context.Context, collection string, querySummary []float32, k int) ([]models.Candidate, error)
	getFullMatrixFunc func(ctx context.Context, collection, id string) (*models.TokenMatrix, models.Metadata, error)
}

func (m *mockStore) ANNSearch(ctx context.Context, collection string, querySummary []float32, k int) ([]models.Candidate, error) {
	return m.annSearchFunc(ctx, collection, querySummary, k)
}

func (m *mockStore) GetFullMatrix(ctx context.Context, collection, id string) (*models.TokenMatrix, models.Metadata, error) {
	return m.getFullMatrixFunc(ctx, collection, id)
}

func testMatrix(t *testing.T, rows [][]float32) *models.TokenMatrix {
	t.Helper()

	m := models.NewTokenMatrix(len(rows), len(rows[0]))
	for i, r := range rows {
		copy(m.Row(i), r)
	}

	return m
}

func candidateList(collection string, ids ...string) []models.Candidate {
	candidates := make([]models.Candidate, len(ids))
	for i, id := range ids {
		candidates[i] = models.Candidate{
			ID:           id,
			Collection:   collection,
			SummaryScore: 1.0 - float64(i)*0.01,
		}
	}

	return candidates
}

func TestRetrieverSearch(t *testing.T) {
	unit := testMatrix(t, [][]float32{{1, 0}})

	store := &mockStore{
		annSearchFunc: func(_ context.Context, collection string, _ []float32, _ int) ([]models.Candidate, error) {
			return candidateList(collection, "a", "b"), nil
		},
		getFullMatrixFunc: func(_ context.Context, _, id string) (*models.TokenMatrix, models.Metadata, error) {
			return unit, models.Metadata{"id": id}, nil
		},
	}

	r, err := NewRetriever(Params{Store: store})
	require.NoError(t, err)

	out, err := r.Search(context.Background(), []string{"visual", "text"}, unit)
	require.NoError(t, err)
	assert.False(t, out.Partial)
	require.Len(t, out.PerCollection, 2)

	assert.Equal(t, "visual", out.PerCollection[0].Collection)
	assert.Equal(t, "text", out.PerCollection[1].Collection)

	for _, cr := range out.PerCollection {
		require.Len(t, cr.Results, 2)

		for _, result := range cr.Results {
			assert.Equal(t, cr.Collection, result.Collection)
			assert.InDelta(t, 1.0, result.Score, 1e-9)
			assert.Equal(t, result.ID, result.Metadata["id"])
		}
	}
}

func TestRetrieverStage2TruncationPerCollection(t *testing.T) {
	unit := testMatrix(t, [][]float32{{1, 0}})

	var (
		mu      sync.Mutex
		fetched []string
	)

	store := &mockStore{
		annSearchFunc: func(_ context.Context, collection string, _ []float32, k int) ([]models.Candidate, error) {
			assert.Equal(t, 10, k)
			return candidateList(collection, "a", "b", "c", "d", "e"), nil
		},
		getFullMatrixFunc: func(_ context.Context, collection, id string) (*models.TokenMatrix, models.Metadata, error) {
			mu.Lock()
			fetched = append(fetched, collection+"/"+id)
			mu.Unlock()

			return unit, nil, nil
		},
	}

	r, err := NewRetriever(Params{Store: store, Stage1K: 10, Stage2K: 2})
	require.NoError(t, err)

	out, err := r.Search(context.Background(), []string{"visual", "text"}, unit)
	require.NoError(t, err)

	// Stage 2 truncates per collection, keeping the two best summary
	// scores from each rather than the four best overall.
	assert.Len(t, fetched, 4)
	assert.Len(t, out.PerCollection[0].Results, 2)
	assert.Len(t, out.PerCollection[1].Results, 2)

	for _, cr := range out.PerCollection {
		for _, result := range cr.Results {
			assert.Contains(t, []string{"a", "b"}, result.ID)
		}
	}
}

func TestRetrieverDropsVanishedCandidates(t *testing.T) {
	unit := testMatrix(t, [][]float32{{1, 0}})

	store := &mockStore{
		annSearchFunc: func(_ context.Context, collection string, _ []float32, _ int) ([]models.Candidate, error) {
			return candidateList(collection, "kept", "deleted"), nil
		},
		getFullMatrixFunc: func(_ context.Context, collection, id string) (*models.TokenMatrix, models.Metadata, error) {
			if id == "deleted" {
				return nil, nil, enginerrors.NewNotFoundError(collection, id)
			}

			return unit, nil, nil
		},
	}

	r, err := NewRetriever(Params{Store: store})
	require.NoError(t, err)

	out, err := r.Search(context.Background(), []string{"docs"}, unit)
	require.NoError(t, err)
	assert.False(t, out.Partial)
	require.Len(t, out.PerCollection[0].Results, 1)
	assert.Equal(t, "kept", out.PerCollection[0].Results[0].ID)
}

func TestRetrieverSystemicFetchErrorFailsQuery(t *testing.T) {
	unit := testMatrix(t, [][]float32{{1, 0}})

	store := &mockStore{
		annSearchFunc: func(_ context.Context, collection string, _ []float32, _ int) ([]models.Candidate, error) {
			return candidateList(collection, "a", "b"), nil
		},
		getFullMatrixFunc: func(_ context.Context, _, _ string) (*models.TokenMatrix, models.Metadata, error) {
			return nil, nil, enginerrors.NewDecodeError("payload shorter than declared shape")
		},
	}

	r, err := NewRetriever(Params{Store: store})
	require.NoError(t, err)

	out, err := r.Search(context.Background(), []string{"docs"}, unit)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, enginerrors.ErrDecode)
}

func TestRetrieverStage1ErrorFailsQuery(t *testing.T) {
	unit := testMatrix(t, [][]float32{{1, 0}})

	store := &mockStore{
		annSearchFunc: func(_ context.Context, collection string, _ []float32, _ int) ([]models.Candidate, error) {
			if collection == "missing" {
				return nil, enginerrors.NewNotFoundError("", "")
			}

			return candidateList(collection, "a"), nil
		},
		getFullMatrixFunc: func(_ context.Context, _, _ string) (*models.TokenMatrix, models.Metadata, error) {
			return unit, nil, nil
		},
	}

	r, err := NewRetriever(Params{Store: store})
	require.NoError(t, err)

	out, err := r.Search(context.Background(), []string{"docs", "missing"}, unit)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, enginerrors.ErrNotFound)
}

func TestRetrieverEmptyQuery(t *testing.T) {
	store := &mockStore{}

	r, err := NewRetriever(Params{Store: store})
	require.NoError(t, err)

	_, err = r.Search(context.Background(), []string{"docs"}, nil)
	assert.ErrorIs(t, err, enginerrors.ErrEmptyMatrix)

	empty := &models.TokenMatrix{Rows: 0, Cols: 2}
	_, err = r.Search(context.Background(), []string{"docs"}, empty)
	assert.ErrorIs(t, err, enginerrors.ErrEmptyMatrix)
}

func TestRetrieverNoCollections(t *testing.T) {
	unit := testMatrix(t, [][]float32{{1, 0}})

	r, err := NewRetriever(Params{Store: &mockStore{}})
	require.NoError(t, err)

	out, err := r.Search(context.Background(), nil, unit)
	require.NoError(t, err)
	assert.Empty(t, out.PerCollection)
}

func TestRetrieverDeadlineBeforeStart(t *testing.T) {
	unit := testMatrix(t, [][]float32{{1, 0}})

	r, err := NewRetriever(Params{Store: &mockStore{}})
	require.NoError(t, err)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err = r.Search(ctx, []string{"docs"}, unit)
	assert.ErrorIs(t, err, enginerrors.ErrDeadlineExceeded)
}

func TestRetrieverDeadlineMidStage2ReturnsPartial(t *testing.T) {
	unit := testMatrix(t, [][]float32{{1, 0}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int32

	var mu sync.Mutex

	store := &mockStore{
		annSearchFunc: func(_ context.Context, collection string, _ []float32, _ int) ([]models.Candidate, error) {
			return candidateList(collection, "a", "b", "c"), nil
		},
		getFullMatrixFunc: func(_ context.Context, _, _ string) (*models.TokenMatrix, models.Metadata, error) {
			mu.Lock()
			calls++
			first := calls == 1
			mu.Unlock()

			if first {
				// The budget runs out right after the first score.
				cancel()
				return unit, nil, nil
			}

			return unit, nil, nil
		},
	}

	// Concurrency of one makes the interleaving deterministic: the first
	// task finishes and cancels before any later task can start work.
	r, err := NewRetriever(Params{Store: store, MaxConcurrentScores: 1})
	require.NoError(t, err)

	out, err := r.Search(ctx, []string{"docs"}, unit)
	require.Error(t, err)
	assert.ErrorIs(t, err, enginerrors.ErrDeadlineExceeded)

	require.NotNil(t, out)
	assert.True(t, out.Partial)
	require.Len(t, out.PerCollection, 1)
	assert.LessOrEqual(t, len(out.PerCollection[0].Results), 2)
	assert.GreaterOrEqual(t, len(out.PerCollection[0].Results), 1)
}

func TestRetrieverRequiresStore(t *testing.T) {
	_, err := NewRetriever(Params{})
	assert.Error(t, err)
}

func TestRetrieverConcurrencyBound(t *testing.T) {
	unit := testMatrix(t, [][]float32{{1, 0}})

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
	)

	store := &mockStore{
		annSearchFunc: func(_ context.Context, collection string, _ []float32, _ int) ([]models.Candidate, error) {
			ids := make([]string, 16)
			for i := range ids {
				ids[i] = fmt.Sprintf("c%02d", i)
			}

			return candidateList(collection, ids...), nil
		},
		getFullMatrixFunc: func(_ context.Context, _, _ string) (*models.TokenMatrix, models.Metadata, error) {
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()

			return unit, nil, nil
		},
	}

	r, err := NewRetriever(Params{Store: store, Stage2K: 16, MaxConcurrentScores: 3})
	require.NoError(t, err)

	out, err := r.Search(context.Background(), []string{"docs"}, unit)
	require.NoError(t, err)
	assert.Len(t, out.PerCollection[0].Results, 16)
	assert.LessOrEqual(t, maxSeen, 3)
}
