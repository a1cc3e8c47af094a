// Package store persists embedding records partitioned by collection: a
// summary vector indexed for approximate search plus a compressed full
// token matrix fetched for exact re-scoring.
//
// Consistency model: within a collection, writes are serialized
// (single-writer) while ANNSearch and GetFullMatrix may run concurrently
// with each other and with writes, observing either the pre- or post-write
// state. A record's index entry and blob become visible atomically; readers
// never see a torn record.
package store

import (
	"context"

	"github.com/doclens/engine/internal/models"
)

// Store is the embedding store abstraction. The postgres backend is the
// durable implementation; the memory backend serves tests and embedded use.
type Store interface {
	// CreateCollection registers a collection with a fixed dimension and
	// summary metric. Creating an existing collection with the same
	// configuration is a no-op; with a different one it fails.
	CreateCollection(ctx context.Context, cfg models.CollectionConfig) error

	// Insert encodes fullMatrix and writes the record. Fails with
	// DuplicateIDError when id already exists in collection (no implicit
	// upsert: replacing requires an explicit delete so index entries are
	// never silently orphaned) and with DimensionMismatchError when the
	// summary vector disagrees with the collection's dimension.
	Insert(ctx context.Context, collection, id string, summary []float32, fullMatrix *models.TokenMatrix, metadata models.Metadata) error

	// Delete removes the record and its index entry. Fails with
	// NotFoundError when absent so cleanup bugs surface instead of being
	// swallowed by an idempotent no-op.
	Delete(ctx context.Context, collection, id string) error

	// ANNSearch returns at most k candidates ordered by descending
	// summary-level similarity. The index is approximate: recall is not
	// guaranteed, which is why Stage 2 re-scoring exists.
	ANNSearch(ctx context.Context, collection string, querySummary []float32, k int) ([]models.Candidate, error)

	// GetFullMatrix decodes and returns the record's full token matrix
	// together with its metadata. Fails with NotFoundError when absent.
	GetFullMatrix(ctx context.Context, collection, id string) (*models.TokenMatrix, models.Metadata, error)

	// CollectionSize returns the count of live records.
	CollectionSize(ctx context.Context, collection string) (int, error)
}
