// Package workers provides River job workers (object embedding).
package workers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/riverqueue/river"

	"github.com/doclens/engine/internal/embeddings"
	enginerrors "github.com/doclens/engine/internal/errors"
	"github.com/doclens/engine/internal/models"
	"github.com/doclens/engine/internal/observability"
	"github.com/doclens/engine/internal/service"
)

// embeddingStore is the minimal store interface needed by the worker.
type embeddingStore interface {
	Insert(ctx context.Context, collection, id string, summary []float32, fullMatrix *models.TokenMatrix, metadata models.Metadata) error
}

// ObjectEmbeddingWorker embeds submitted objects and stores their token
// matrices.
type ObjectEmbeddingWorker struct {
	river.WorkerDefaults[service.ObjectEmbeddingArgs]

	embeddingClient embeddings.Client
	store           embeddingStore
	metrics         observability.IngestMetrics
}

// NewObjectEmbeddingWorker creates a worker that calls the embedding model
// and inserts the result. metrics may be nil when metrics are disabled.
func NewObjectEmbeddingWorker(
	embeddingClient embeddings.Client,
	store embeddingStore,
	metrics observability.IngestMetrics,
) *ObjectEmbeddingWorker {
	return &ObjectEmbeddingWorker{
		embeddingClient: embeddingClient,
		store:           store,
		metrics:         metrics,
	}
}

const objectEmbeddingTimeout = 60 * time.Second

// Timeout limits how long a single embedding job can run.
func (w *ObjectEmbeddingWorker) Timeout(*river.Job[service.ObjectEmbeddingArgs]) time.Duration {
	return objectEmbeddingTimeout
}

// Work embeds the object's text and inserts the matrix into its collection.
func (w *ObjectEmbeddingWorker) Work(ctx context.Context, job *river.Job[service.ObjectEmbeddingArgs]) error {
	args := job.Args
	start := time.Now()

	matrix, err := w.embeddingClient.Embed(ctx, args.Text)
	if err != nil {
		isLastAttempt := job.Attempt >= job.MaxAttempts

		if isLastAttempt {
			w.recordOutcome(ctx, "failed_final", start)
			slog.Error("embedding: model call failed (final attempt)",
				"collection", args.Collection,
				"object_id", args.ObjectID,
				"error", err,
			)

			return nil
		}

		w.recordOutcome(ctx, "retry", start)
		slog.Warn("embedding: model call failed, will retry",
			"collection", args.Collection,
			"object_id", args.ObjectID,
			"attempt", job.Attempt,
			"error", err,
		)

		return err
	}

	err = w.store.Insert(ctx, args.Collection, args.ObjectID, matrix.SummaryVector(), matrix, args.Metadata)

	switch {
	case err == nil:
		w.recordOutcome(ctx, "inserted", start)

		slog.Debug("embedding: object stored",
			"collection", args.Collection,
			"object_id", args.ObjectID,
			"rows", matrix.Rows,
		)

		return nil
	case errors.Is(err, enginerrors.ErrDuplicateID):
		// A retried or duplicate job raced an earlier success. The
		// record is present, so the job's goal is met.
		w.recordOutcome(ctx, "skipped", start)

		slog.Debug("embedding: object already stored",
			"collection", args.Collection,
			"object_id", args.ObjectID,
		)

		return nil
	case errors.Is(err, enginerrors.ErrNotFound), errors.Is(err, enginerrors.ErrDimensionMismatch):
		// Unknown collection or a model/collection dimension mismatch
		// will not heal on retry.
		w.recordOutcome(ctx, "failed_final", start)

		slog.Error("embedding: insert rejected",
			"collection", args.Collection,
			"object_id", args.ObjectID,
			"error", err,
		)

		return nil
	default:
		isLastAttempt := job.Attempt >= job.MaxAttempts
		outcome := "retry"

		if isLastAttempt {
			outcome = "failed_final"
		}

		w.recordOutcome(ctx, outcome, start)

		slog.Error("embedding: insert failed",
			"collection", args.Collection,
			"object_id", args.ObjectID,
			"attempt", job.Attempt,
			"error", err,
		)

		if isLastAttempt {
			return nil
		}

		return err
	}
}

func (w *ObjectEmbeddingWorker) recordOutcome(ctx context.Context, outcome string, start time.Time) {
	if w.metrics != nil {
		w.metrics.RecordOutcome(ctx, outcome)
		w.metrics.RecordDuration(ctx, time.Since(start), outcome)
	}
}
