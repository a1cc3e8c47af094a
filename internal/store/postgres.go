package store

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/doclens/engine/internal/codec"
	enginerrors "github.com/doclens/engine/internal/errors"
	"github.com/doclens/engine/internal/models"
	"github.com/doclens/engine/internal/observability"
)

// PostgresStore is the durable Store backed by Postgres with pgvector.
// Each collection gets its own records table: pgvector columns carry a
// fixed dimension and one HNSW index, and collections may differ in both.
//
// HNSW gives the approximate Stage 1 index; exactness is restored by the
// retriever's Stage 2 re-scoring. A record's summary vector and blob live
// in one row, so its index entry and payload become visible atomically.
type PostgresStore struct {
	db      *pgxpool.Pool
	codec   *codec.Codec
	metrics observability.StoreMetrics

	mu      sync.RWMutex
	configs map[string]models.CollectionConfig
}

// Collection names become table identifiers; restrict them accordingly.
var collectionNameRe = regexp.MustCompile(`^[a-z][a-z0-9_]{0,47}$`)

// NewPostgresStore creates a store over db. metrics may be nil.
// Call EnsureSchema before first use.
func NewPostgresStore(db *pgxpool.Pool, c *codec.Codec, metrics observability.StoreMetrics) *PostgresStore {
	return &PostgresStore{
		db:      db,
		codec:   c,
		metrics: metrics,
		configs: make(map[string]models.CollectionConfig),
	}
}

// EnsureSchema creates the pgvector extension and the collections registry.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`)
	if err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS collections (
			name       text PRIMARY KEY,
			dim        integer NOT NULL,
			metric     text NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("create collections table: %w", err)
	}

	return nil
}

func recordsTable(collection string) string {
	return "records_" + collection
}

// CreateCollection implements Store. The records table and its HNSW index
// are created in the same transaction as the registry row.
func (s *PostgresStore) CreateCollection(ctx context.Context, cfg models.CollectionConfig) error {
	if !collectionNameRe.MatchString(cfg.Name) {
		return fmt.Errorf("collection name %q: must match %s", cfg.Name, collectionNameRe)
	}

	if cfg.Dim <= 0 {
		return fmt.Errorf("collection %q: dimension must be positive", cfg.Name)
	}

	if !cfg.Metric.Valid() {
		return fmt.Errorf("collection %q: unknown metric %q", cfg.Name, cfg.Metric)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create collection: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	var (
		existingDim    int
		existingMetric string
	)

	err = tx.QueryRow(ctx,
		`SELECT dim, metric FROM collections WHERE name = $1`, cfg.Name,
	).Scan(&existingDim, &existingMetric)

	switch {
	case err == nil:
		if existingDim != cfg.Dim || existingMetric != string(cfg.Metric) {
			return fmt.Errorf("collection %q already exists with different configuration", cfg.Name)
		}

		return nil
	case err != pgx.ErrNoRows:
		return fmt.Errorf("lookup collection %q: %w", cfg.Name, err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO collections (name, dim, metric) VALUES ($1, $2, $3)`,
		cfg.Name, cfg.Dim, string(cfg.Metric),
	); err != nil {
		return fmt.Errorf("register collection %q: %w", cfg.Name, err)
	}

	// Identifiers can't be bound parameters; cfg.Name is validated above.
	table := recordsTable(cfg.Name)

	if _, err := tx.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE %s (
			id             text PRIMARY KEY,
			summary_vector vector(%d) NOT NULL,
			blob           bytea NOT NULL,
			metadata       jsonb,
			created_at     timestamptz NOT NULL DEFAULT now()
		)`, table, cfg.Dim),
	); err != nil {
		return fmt.Errorf("create records table for %q: %w", cfg.Name, err)
	}

	ops := "vector_cosine_ops"
	if cfg.Metric == models.MetricInnerProduct {
		ops = "vector_ip_ops"
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf(
		`CREATE INDEX idx_%s_summary ON %s USING hnsw (summary_vector %s)`,
		table, table, ops,
	)); err != nil {
		return fmt.Errorf("create summary index for %q: %w", cfg.Name, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create collection %q: %w", cfg.Name, err)
	}

	s.mu.Lock()
	s.configs[cfg.Name] = cfg
	s.mu.Unlock()

	return nil
}

// config returns the collection configuration, loading and caching it from
// the registry on first use.
func (s *PostgresStore) config(ctx context.Context, collection string) (models.CollectionConfig, error) {
	s.mu.RLock()
	cfg, ok := s.configs[collection]
	s.mu.RUnlock()

	if ok {
		return cfg, nil
	}

	if !collectionNameRe.MatchString(collection) {
		return models.CollectionConfig{}, &enginerrors.NotFoundError{
			Message: fmt.Sprintf("collection %q not found", collection),
		}
	}

	var (
		dim    int
		metric string
	)

	err := s.db.QueryRow(ctx,
		`SELECT dim, metric FROM collections WHERE name = $1`, collection,
	).Scan(&dim, &metric)
	if err != nil {
		if err == pgx.ErrNoRows {
			return models.CollectionConfig{}, &enginerrors.NotFoundError{
				Message: fmt.Sprintf("collection %q not found", collection),
			}
		}

		return models.CollectionConfig{}, fmt.Errorf("lookup collection %q: %w", collection, err)
	}

	cfg = models.CollectionConfig{Name: collection, Dim: dim, Metric: models.Metric(metric)}

	s.mu.Lock()
	s.configs[collection] = cfg
	s.mu.Unlock()

	return cfg, nil
}

// Insert implements Store.
func (s *PostgresStore) Insert(ctx context.Context, collection, id string, summary []float32, fullMatrix *models.TokenMatrix, metadata models.Metadata) error {
	cfg, err := s.config(ctx, collection)
	if err != nil {
		return err
	}

	if len(summary) != cfg.Dim {
		return enginerrors.NewDimensionMismatchError(collection, cfg.Dim, len(summary))
	}

	if err := metadata.Validate(); err != nil {
		return fmt.Errorf("insert %q: %w", id, err)
	}

	blob, stats, err := s.codec.Encode(fullMatrix)
	if err != nil {
		return fmt.Errorf("encode matrix for %q: %w", id, err)
	}

	tag, err := s.db.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, summary_vector, blob, metadata)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`, recordsTable(collection)),
		id, pgvector.NewVector(summary), blob, map[string]any(metadata),
	)
	if err != nil {
		return fmt.Errorf("insert record %q: %w", id, err)
	}

	if tag.RowsAffected() == 0 {
		return enginerrors.NewDuplicateIDError(collection, id)
	}

	if s.metrics != nil {
		s.metrics.RecordCompressionRatio(ctx, collection, stats.Ratio())
		s.metrics.RecordOperation(ctx, collection, "insert")
	}

	return nil
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.config(ctx, collection); err != nil {
		return err
	}

	tag, err := s.db.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, recordsTable(collection)), id)
	if err != nil {
		return fmt.Errorf("delete record %q: %w", id, err)
	}

	if tag.RowsAffected() == 0 {
		return enginerrors.NewNotFoundError(collection, id)
	}

	if s.metrics != nil {
		s.metrics.RecordOperation(ctx, collection, "delete")
	}

	return nil
}

// ANNSearch implements Store using the collection's HNSW index. Scores are
// similarities: cosine queries return 1 - cosine distance, inner-product
// queries negate pgvector's negated inner product.
func (s *PostgresStore) ANNSearch(ctx context.Context, collection string, querySummary []float32, k int) ([]models.Candidate, error) {
	cfg, err := s.config(ctx, collection)
	if err != nil {
		return nil, err
	}

	if len(querySummary) != cfg.Dim {
		return nil, enginerrors.NewDimensionMismatchError(collection, cfg.Dim, len(querySummary))
	}

	if k <= 0 {
		return nil, nil
	}

	var query string

	switch cfg.Metric {
	case models.MetricInnerProduct:
		query = fmt.Sprintf(`
			SELECT id, -(summary_vector <#> $1) AS score
			FROM %s
			ORDER BY summary_vector <#> $1
			LIMIT $2`, recordsTable(collection))
	default:
		query = fmt.Sprintf(`
			SELECT id, 1 - (summary_vector <=> $1) AS score
			FROM %s
			ORDER BY summary_vector <=> $1
			LIMIT $2`, recordsTable(collection))
	}

	rows, err := s.db.Query(ctx, query, pgvector.NewVector(querySummary), k)
	if err != nil {
		return nil, fmt.Errorf("ann search in %q: %w", collection, err)
	}
	defer rows.Close()

	var candidates []models.Candidate

	for rows.Next() {
		c := models.Candidate{Collection: collection}
		if err := rows.Scan(&c.ID, &c.SummaryScore); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}

		candidates = append(candidates, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating candidates: %w", err)
	}

	return candidates, nil
}

// GetFullMatrix implements Store.
func (s *PostgresStore) GetFullMatrix(ctx context.Context, collection, id string) (*models.TokenMatrix, models.Metadata, error) {
	if _, err := s.config(ctx, collection); err != nil {
		return nil, nil, err
	}

	var (
		blob     []byte
		metadata map[string]any
	)

	err := s.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT blob, metadata FROM %s WHERE id = $1`, recordsTable(collection)), id,
	).Scan(&blob, &metadata)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil, enginerrors.NewNotFoundError(collection, id)
		}

		return nil, nil, fmt.Errorf("get record %q: %w", id, err)
	}

	matrix, err := s.codec.Decode(blob)
	if err != nil {
		return nil, nil, fmt.Errorf("decode matrix for %q: %w", id, err)
	}

	return matrix, models.Metadata(metadata), nil
}

// CollectionSize implements Store.
func (s *PostgresStore) CollectionSize(ctx context.Context, collection string) (int, error) {
	if _, err := s.config(ctx, collection); err != nil {
		return 0, err
	}

	var count int

	err := s.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT count(*) FROM %s`, recordsTable(collection)),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count records in %q: %w", collection, err)
	}

	return count, nil
}

var _ Store = (*PostgresStore)(nil)
