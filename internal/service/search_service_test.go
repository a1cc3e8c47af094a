package service

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doclens/engine/internal/embeddings"
	enginerrors "github.com/doclens/engine/internal/errors"
	"github.com/doclens/engine/internal/models"
	"github.com/doclens/engine/internal/retriever"
	"github.com/doclens/engine/pkg/cache"
)

type mockRetriever struct {
	searchFunc func(ctx context.Context, collections []string, query *models.TokenMatrix) (*retriever.Output, error)
}

func (m *mockRetriever) Search(ctx context.Context, collections []string, query *models.TokenMatrix) (*retriever.Output, error) {
	return m.searchFunc(ctx, collections, query)
}

func fixedOutput(scores map[string]float64) *retriever.Output {
	out := &retriever.Output{}

	cr := models.CollectionResults{Collection: "docs"}
	for id, score := range scores {
		cr.Results = append(cr.Results, models.ScoredResult{ID: id, Collection: "docs", Score: score})
	}

	out.PerCollection = append(out.PerCollection, cr)

	return out
}

func newTestSearchService(t *testing.T, r Retriever) *SearchService {
	t.Helper()

	s, err := NewSearchService(SearchServiceParams{
		EmbeddingClient: embeddings.NewMockClient(16),
		Retriever:       r,
		Collections:     []string{"docs", "visual"},
	})
	require.NoError(t, err)

	return s
}

func TestSearchServiceSearch(t *testing.T) {
	var gotCollections []string

	r := &mockRetriever{
		searchFunc: func(_ context.Context, collections []string, query *models.TokenMatrix) (*retriever.Output, error) {
			gotCollections = collections

			require.NotNil(t, query)
			assert.Greater(t, query.Rows, 0)

			return fixedOutput(map[string]float64{"a": 0.9}), nil
		},
	}

	s := newTestSearchService(t, r)

	resp, err := s.Search(context.Background(), SearchRequest{Query: "billing policy"})
	require.NoError(t, err)
	assert.False(t, resp.Partial)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "a", resp.Results[0].ID)
	assert.Equal(t, 0, resp.Results[0].Rank)

	// No collections in the request means all configured collections.
	assert.Equal(t, []string{"docs", "visual"}, gotCollections)
}

func TestSearchServiceEmptyQuery(t *testing.T) {
	s := newTestSearchService(t, &mockRetriever{})

	_, err := s.Search(context.Background(), SearchRequest{Query: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestSearchServiceUnknownCollection(t *testing.T) {
	s := newTestSearchService(t, &mockRetriever{})

	_, err := s.Search(context.Background(), SearchRequest{
		Query:       "anything",
		Collections: []string{"docs", "nope"},
	})
	assert.ErrorIs(t, err, ErrUnknownCollection)
}

func TestSearchServicePartialResults(t *testing.T) {
	r := &mockRetriever{
		searchFunc: func(_ context.Context, _ []string, _ *models.TokenMatrix) (*retriever.Output, error) {
			out := fixedOutput(map[string]float64{"a": 0.9})
			out.Partial = true

			return out, enginerrors.NewDeadlineExceededError("stage2")
		},
	}

	s := newTestSearchService(t, r)

	resp, err := s.Search(context.Background(), SearchRequest{Query: "anything"})
	require.NoError(t, err)
	assert.True(t, resp.Partial)
	assert.Len(t, resp.Results, 1)
}

func TestSearchServiceRetrievalError(t *testing.T) {
	r := &mockRetriever{
		searchFunc: func(_ context.Context, _ []string, _ *models.TokenMatrix) (*retriever.Output, error) {
			return nil, enginerrors.NewDecodeError("bad blob")
		},
	}

	s := newTestSearchService(t, r)

	_, err := s.Search(context.Background(), SearchRequest{Query: "anything"})
	assert.ErrorIs(t, err, enginerrors.ErrDecode)
}

func TestSearchServiceAppliesWeightsAndTopN(t *testing.T) {
	r := &mockRetriever{
		searchFunc: func(_ context.Context, _ []string, _ *models.TokenMatrix) (*retriever.Output, error) {
			return &retriever.Output{PerCollection: []models.CollectionResults{
				{Collection: "docs", Results: []models.ScoredResult{
					{ID: "d1", Collection: "docs", Score: 0.6},
				}},
				{Collection: "visual", Results: []models.ScoredResult{
					{ID: "v1", Collection: "visual", Score: 0.5},
					{ID: "v2", Collection: "visual", Score: 0.1},
				}},
			}}, nil
		},
	}

	s, err := NewSearchService(SearchServiceParams{
		EmbeddingClient: embeddings.NewMockClient(16),
		Retriever:       r,
		Collections:     []string{"docs", "visual"},
		Weights:         map[string]float64{"visual": 2.0},
	})
	require.NoError(t, err)

	resp, err := s.Search(context.Background(), SearchRequest{Query: "anything", TopN: 2})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)

	// visual's weight doubles v1 past d1.
	assert.Equal(t, "v1", resp.Results[0].ID)
	assert.Equal(t, "d1", resp.Results[1].ID)
}

func TestSearchServiceQueryCache(t *testing.T) {
	var embeds atomic.Int64

	countingClient := &countingEmbedder{inner: embeddings.NewMockClient(16), calls: &embeds}

	queryCache, err := cache.New[string, *models.TokenMatrix](8, nil)
	require.NoError(t, err)

	r := &mockRetriever{
		searchFunc: func(_ context.Context, _ []string, _ *models.TokenMatrix) (*retriever.Output, error) {
			return fixedOutput(nil), nil
		},
	}

	s, err := NewSearchService(SearchServiceParams{
		EmbeddingClient: countingClient,
		Retriever:       r,
		Collections:     []string{"docs"},
		QueryCache:      queryCache,
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := s.Search(context.Background(), SearchRequest{Query: "repeated query"})
		require.NoError(t, err)
	}

	assert.Equal(t, int64(1), embeds.Load())
}

type countingEmbedder struct {
	inner embeddings.Client
	calls *atomic.Int64
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) (*models.TokenMatrix, error) {
	c.calls.Add(1)
	return c.inner.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]*models.TokenMatrix, error) {
	return c.inner.EmbedBatch(ctx, texts)
}

func (c *countingEmbedder) Dimensions() int { return c.inner.Dimensions() }
