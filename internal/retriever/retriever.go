// Package retriever runs the two-stage retrieval pipeline: an approximate
// pass over summary vectors per collection, then exact late-interaction
// re-scoring of the surviving candidates from their full token matrices.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	enginerrors "github.com/doclens/engine/internal/errors"
	"github.com/doclens/engine/internal/models"
	"github.com/doclens/engine/internal/observability"
	"github.com/doclens/engine/internal/scorer"
)

const (
	defaultStage1K             = 100
	defaultStage2K             = 20
	defaultMaxConcurrentScores = 8
)

// Store is the slice of the embedding store the retriever needs.
type Store interface {
	ANNSearch(ctx context.Context, collection string, querySummary []float32, k int) ([]models.Candidate, error)
	GetFullMatrix(ctx context.Context, collection, id string) (*models.TokenMatrix, models.Metadata, error)
}

// Params holds dependencies and tunables for NewRetriever.
type Params struct {
	Store   Store
	Metrics observability.SearchMetrics // optional

	// Stage1K is how many approximate candidates to pull per collection.
	// Stage2K is how many of those, per collection, get exact re-scoring.
	Stage1K int
	Stage2K int

	// MaxConcurrentScores bounds simultaneous Stage 2 fetch+score tasks.
	// Each task decompresses a full token matrix, so this caps peak memory.
	MaxConcurrentScores int
}

// Retriever orchestrates Stage 1 and Stage 2 for a single query at a time of
// calling; it is stateless across queries and safe for concurrent use.
type Retriever struct {
	store   Store
	metrics observability.SearchMetrics

	stage1K int
	stage2K int
	sem     chan struct{}
}

// NewRetriever creates a Retriever. Zero tunables fall back to defaults.
func NewRetriever(params Params) (*Retriever, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("retriever: store is required")
	}

	stage1K := params.Stage1K
	if stage1K <= 0 {
		stage1K = defaultStage1K
	}

	stage2K := params.Stage2K
	if stage2K <= 0 {
		stage2K = defaultStage2K
	}

	maxConcurrent := params.MaxConcurrentScores
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrentScores
	}

	return &Retriever{
		store:   params.Store,
		metrics: params.Metrics,
		stage1K: stage1K,
		stage2K: stage2K,
		sem:     make(chan struct{}, maxConcurrent),
	}, nil
}

// Output carries per-collection scored results. Results within a collection
// are unsorted; ordering is the merger's job. Partial is set when a deadline
// interrupted Stage 2 and only some candidates got scored.
type Output struct {
	PerCollection []models.CollectionResults
	Partial       bool
}

// Search runs the full pipeline for query against the named collections.
// The caller's ctx carries the query deadline; on deadline mid-Stage-2 the
// completed scores are returned alongside a DeadlineExceededError rather
// than discarded.
func (r *Retriever) Search(ctx context.Context, collections []string, query *models.TokenMatrix) (*Output, error) {
	if query == nil || query.Rows == 0 {
		return nil, enginerrors.NewEmptyMatrixError("query")
	}

	if len(collections) == 0 {
		return &Output{}, nil
	}

	if ctx.Err() != nil {
		return nil, enginerrors.NewDeadlineExceededError("stage1")
	}

	candidates, err := r.stage1(ctx, collections, query.SummaryVector())
	if err != nil {
		return nil, err
	}

	if ctx.Err() != nil {
		return nil, enginerrors.NewDeadlineExceededError("stage2")
	}

	return r.stage2(ctx, collections, query, candidates)
}

// stage1 fans out one approximate search per collection. Collections are
// independent, so a failure in any of them fails the query.
func (r *Retriever) stage1(ctx context.Context, collections []string, querySummary []float32) ([][]models.Candidate, error) {
	start := time.Now()

	candidates := make([][]models.Candidate, len(collections))

	g, gctx := errgroup.WithContext(ctx)

	for i, collection := range collections {
		g.Go(func() error {
			found, err := r.store.ANNSearch(gctx, collection, querySummary, r.stage1K)
			if err != nil {
				return fmt.Errorf("stage 1 search in %q: %w", collection, err)
			}

			candidates[i] = found

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, enginerrors.NewDeadlineExceededError("stage1")
		}

		return nil, err
	}

	if r.metrics != nil {
		r.metrics.RecordStageDuration(ctx, "stage1", time.Since(start))
	}

	return candidates, nil
}

// stage2 re-scores the top stage2K candidates of each collection from their
// full matrices. Truncation is per collection rather than global so that one
// collection's score scale cannot starve another's candidates.
func (r *Retriever) stage2(ctx context.Context, collections []string, query *models.TokenMatrix, candidates [][]models.Candidate) (*Output, error) {
	start := time.Now()

	scored := make([][]models.ScoredResult, len(collections))

	scoreCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu          sync.Mutex
		wg          sync.WaitGroup
		systemicErr error
	)

	fail := func(err error) {
		mu.Lock()
		if systemicErr == nil {
			systemicErr = err
			cancel()
		}
		mu.Unlock()
	}

	deadlineHit := false

launch:
	for i, collectionCandidates := range candidates {
		selected := collectionCandidates
		if len(selected) > r.stage2K {
			// ANNSearch returns candidates in descending summary score,
			// so the prefix is the per-collection top stage2K.
			selected = selected[:r.stage2K]
		}

		if r.metrics != nil {
			r.metrics.RecordStage2Candidates(ctx, collections[i], int64(len(selected)))
		}

		for _, candidate := range selected {
			// Check remaining budget before committing to each
			// fetch+score rather than only at stage boundaries.
			if ctx.Err() != nil {
				deadlineHit = true
				break launch
			}

			mu.Lock()
			failed := systemicErr != nil
			mu.Unlock()

			if failed {
				break launch
			}

			r.sem <- struct{}{}
			wg.Add(1)

			go func(i int, candidate models.Candidate) {
				defer wg.Done()
				defer func() { <-r.sem }()

				if scoreCtx.Err() != nil {
					return
				}

				matrix, metadata, err := r.store.GetFullMatrix(scoreCtx, candidate.Collection, candidate.ID)
				if err != nil {
					if errors.Is(err, enginerrors.ErrNotFound) {
						// Deleted between stages. A race under the
						// store's consistency model, not a failure.
						slog.Debug("dropping candidate deleted between stages",
							"collection", candidate.Collection,
							"id", candidate.ID,
						)

						if r.metrics != nil {
							r.metrics.RecordDroppedCandidate(scoreCtx, candidate.Collection)
						}

						return
					}

					if scoreCtx.Err() != nil {
						return
					}

					fail(fmt.Errorf("stage 2 fetch %q in %q: %w", candidate.ID, candidate.Collection, err))

					return
				}

				score, err := scorer.Score(query, matrix)
				if err != nil {
					fail(fmt.Errorf("stage 2 score %q in %q: %w", candidate.ID, candidate.Collection, err))

					return
				}

				mu.Lock()
				scored[i] = append(scored[i], models.ScoredResult{
					ID:         candidate.ID,
					Collection: candidate.Collection,
					Score:      score,
					Metadata:   metadata,
				})
				mu.Unlock()
			}(i, candidate)
		}
	}

	wg.Wait()

	if systemicErr != nil {
		return nil, systemicErr
	}

	// The deadline may also fire while tasks are in flight, in which case
	// they bail out early. That is still a partial result, never a silent
	// truncation.
	if ctx.Err() != nil {
		deadlineHit = true
	}

	if r.metrics != nil {
		r.metrics.RecordStageDuration(ctx, "stage2", time.Since(start))
	}

	output := &Output{
		PerCollection: make([]models.CollectionResults, len(collections)),
		Partial:       deadlineHit,
	}

	for i, collection := range collections {
		output.PerCollection[i] = models.CollectionResults{
			Collection: collection,
			Results:    scored[i],
		}
	}

	if deadlineHit {
		return output, enginerrors.NewDeadlineExceededError("stage2")
	}

	return output, nil
}
