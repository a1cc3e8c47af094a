// Package tests holds integration tests that run against a real Postgres
// with the pgvector extension, started via testcontainers.
package tests

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/doclens/engine/internal/embeddings"
	"github.com/doclens/engine/internal/models"
	"github.com/doclens/engine/internal/store"
)

// createCollection registers a collection and removes its records when the
// test finishes so collections can be reused across test runs.
func createCollection(t *testing.T, s *store.PostgresStore, cfg models.CollectionConfig) {
	t.Helper()

	ctx := context.Background()

	require.NoError(t, s.CreateCollection(ctx, cfg))

	t.Cleanup(func() {
		_, err := testPool.Exec(context.Background(), "DELETE FROM records_"+cfg.Name)
		require.NoError(t, err)
	})
}

// insertText embeds text with the deterministic mock client and inserts the
// resulting matrix, mirroring what the embedding worker does.
func insertText(t *testing.T, s *store.PostgresStore, client *embeddings.MockClient, collection, id, text string, metadata models.Metadata) {
	t.Helper()

	ctx := context.Background()

	matrix, err := client.Embed(ctx, text)
	require.NoError(t, err)

	require.NoError(t, s.Insert(ctx, collection, id, matrix.SummaryVector(), matrix, metadata))
}
