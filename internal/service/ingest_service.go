package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/riverqueue/river"

	"github.com/doclens/engine/internal/models"
	"github.com/doclens/engine/internal/observability"
)

// Sentinel errors for ingest (used by handlers for status mapping).
var (
	ErrEmptyObjectID = errors.New("object id is required")
	ErrEmptyText     = errors.New("text is required and must be non-empty")
)

// IngestStore is the slice of the embedding store the ingest flow needs
// directly; inserts happen in the embedding worker, not here.
type IngestStore interface {
	Delete(ctx context.Context, collection, id string) error
	CollectionSize(ctx context.Context, collection string) (int, error)
}

// IngestService accepts objects for indexing and deletes them. Indexing is
// asynchronous: the service enqueues a durable job and the embedding worker
// does the model call and store insert, so slow providers never block the
// submit path.
type IngestService struct {
	store    IngestStore
	inserter ObjectEmbeddingInserter
	metrics  observability.IngestMetrics
	logger   *slog.Logger
}

// IngestServiceParams configures IngestService. Metrics may be nil.
type IngestServiceParams struct {
	Store    IngestStore
	Inserter ObjectEmbeddingInserter
	Metrics  observability.IngestMetrics
	Logger   *slog.Logger
}

// NewIngestService creates an IngestService.
func NewIngestService(p IngestServiceParams) (*IngestService, error) {
	if p.Store == nil {
		return nil, fmt.Errorf("ingest service: store is required")
	}

	if p.Inserter == nil {
		return nil, fmt.Errorf("ingest service: job inserter is required")
	}

	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &IngestService{
		store:    p.Store,
		inserter: p.Inserter,
		metrics:  p.Metrics,
		logger:   logger,
	}, nil
}

// SubmitObject enqueues an embedding job for one object. Replacement of an
// existing object is delete-then-submit; the store rejects duplicate ids.
func (s *IngestService) SubmitObject(ctx context.Context, collection, id, text string, metadata models.Metadata) error {
	if id == "" {
		return ErrEmptyObjectID
	}

	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}

	if err := metadata.Validate(); err != nil {
		return fmt.Errorf("submit %q: %w", id, err)
	}

	_, err := s.inserter.Insert(ctx, ObjectEmbeddingArgs{
		Collection: collection,
		ObjectID:   id,
		Text:       text,
		Metadata:   metadata,
	}, &river.InsertOpts{Queue: EmbeddingsQueueName})
	if err != nil {
		return fmt.Errorf("enqueue embedding job for %q: %w", id, err)
	}

	if s.metrics != nil {
		s.metrics.RecordJobsEnqueued(ctx, 1)
	}

	s.logger.Debug("enqueued embedding job", "collection", collection, "object_id", id)

	return nil
}

// DeleteObject removes an object from its collection.
func (s *IngestService) DeleteObject(ctx context.Context, collection, id string) error {
	if id == "" {
		return ErrEmptyObjectID
	}

	if err := s.store.Delete(ctx, collection, id); err != nil {
		return err
	}

	s.logger.Debug("deleted object", "collection", collection, "object_id", id)

	return nil
}

// CollectionSize reports the live record count, for capacity and health
// reporting.
func (s *IngestService) CollectionSize(ctx context.Context, collection string) (int, error) {
	return s.store.CollectionSize(ctx, collection)
}
