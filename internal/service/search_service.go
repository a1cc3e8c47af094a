package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/doclens/engine/internal/embeddings"
	enginerrors "github.com/doclens/engine/internal/errors"
	"github.com/doclens/engine/internal/models"
	"github.com/doclens/engine/internal/observability"
	"github.com/doclens/engine/internal/ranker"
	"github.com/doclens/engine/internal/retriever"
	"github.com/doclens/engine/pkg/cache"
)

const (
	queryEmbeddingCacheName = "query_embedding"
	defaultTopN             = 10
)

// Sentinel errors for search (used by handlers for status mapping).
var (
	ErrEmptyQuery        = errors.New("query is required and must be non-empty")
	ErrUnknownCollection = errors.New("unknown collection")
)

// Retriever runs the two-stage pipeline for SearchService.
type Retriever interface {
	Search(ctx context.Context, collections []string, query *models.TokenMatrix) (*retriever.Output, error)
}

// SearchService embeds queries and turns retrieval output into a ranked
// cross-collection result list.
type SearchService struct {
	embeddingClient embeddings.Client
	retriever       Retriever
	collections     []string
	weights         map[string]float64
	timeout         time.Duration
	queryCache      *cache.LoaderCache[string, *models.TokenMatrix]
	cacheMetrics    observability.CacheMetrics
	searchMetrics   observability.SearchMetrics
	logger          *slog.Logger
}

// SearchServiceParams configures SearchService. QueryCache, CacheMetrics and
// SearchMetrics may be nil (no caching, no metrics).
type SearchServiceParams struct {
	EmbeddingClient embeddings.Client
	Retriever       Retriever
	Collections     []string           // collections searched when a request names none
	Weights         map[string]float64 // per-collection merge weights, absent means 1.0
	Timeout         time.Duration      // per-query budget, 0 disables the deadline
	QueryCache      *cache.LoaderCache[string, *models.TokenMatrix]
	CacheMetrics    observability.CacheMetrics
	SearchMetrics   observability.SearchMetrics
	Logger          *slog.Logger
}

// NewSearchService creates a SearchService.
func NewSearchService(p SearchServiceParams) (*SearchService, error) {
	if p.EmbeddingClient == nil {
		return nil, fmt.Errorf("search service: embedding client is required")
	}

	if p.Retriever == nil {
		return nil, fmt.Errorf("search service: retriever is required")
	}

	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &SearchService{
		embeddingClient: p.EmbeddingClient,
		retriever:       p.Retriever,
		collections:     p.Collections,
		weights:         p.Weights,
		timeout:         p.Timeout,
		queryCache:      p.QueryCache,
		cacheMetrics:    p.CacheMetrics,
		searchMetrics:   p.SearchMetrics,
		logger:          logger,
	}, nil
}

// SearchRequest is one search query. Empty Collections means all configured
// collections; TopN <= 0 means the default page size.
type SearchRequest struct {
	Query       string
	Collections []string
	TopN        int
}

// SearchResponse is the ranked result list. Partial is set when the query
// deadline cut Stage 2 short; the results are valid but may miss candidates
// that were never scored.
type SearchResponse struct {
	Results []models.RankedResult
	Partial bool
}

// Search embeds the query, retrieves and re-scores per collection, then
// merges into one ranked list.
func (s *SearchService) Search(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	out := SearchResponse{}
	start := time.Now()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return out, ErrEmptyQuery
	}

	collections := req.Collections
	if len(collections) == 0 {
		collections = s.collections
	}

	for _, collection := range collections {
		if !s.knownCollection(collection) {
			return out, fmt.Errorf("%w: %q", ErrUnknownCollection, collection)
		}
	}

	topN := req.TopN
	if topN <= 0 {
		topN = defaultTopN
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	queryMatrix, err := s.embedQuery(ctx, query)
	if err != nil {
		s.recordQuery(ctx, "error", start)
		s.logger.Error("search: embed query failed", "error", err)

		return out, fmt.Errorf("embed query: %w", err)
	}

	retrieved, err := s.retriever.Search(ctx, collections, queryMatrix)

	switch {
	case err == nil:
	case errors.Is(err, enginerrors.ErrDeadlineExceeded) && retrieved != nil:
		// Deadline hit mid-pipeline with safely final partial results.
		out.Partial = true

		s.logger.Warn("search: deadline exceeded, returning partial results",
			"collections", collections,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	default:
		s.recordQuery(ctx, "error", start)
		s.logger.Error("search: retrieval failed", "collections", collections, "error", err)

		return SearchResponse{}, fmt.Errorf("retrieve: %w", err)
	}

	out.Results = ranker.Merge(retrieved.PerCollection, s.weights, topN)

	status := "ok"
	if out.Partial {
		status = "partial"
	}

	s.recordQuery(ctx, status, start)

	return out, nil
}

func (s *SearchService) knownCollection(name string) bool {
	for _, c := range s.collections {
		if c == name {
			return true
		}
	}

	return false
}

func (s *SearchService) embedQuery(ctx context.Context, query string) (*models.TokenMatrix, error) {
	if s.queryCache == nil {
		return s.embeddingClient.Embed(ctx, query)
	}

	matrix, hit, err := s.queryCache.Get(ctx, query, func(ctx context.Context, q string) (*models.TokenMatrix, error) {
		return s.embeddingClient.Embed(ctx, q)
	})
	if err != nil {
		return nil, err
	}

	if s.cacheMetrics != nil {
		if hit {
			s.cacheMetrics.RecordHit(ctx, queryEmbeddingCacheName)
		} else {
			s.cacheMetrics.RecordMiss(ctx, queryEmbeddingCacheName)
		}
	}

	return matrix, nil
}

func (s *SearchService) recordQuery(ctx context.Context, status string, start time.Time) {
	if s.searchMetrics != nil {
		s.searchMetrics.RecordQuery(ctx, status, time.Since(start))
	}
}
