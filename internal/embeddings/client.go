// Package embeddings wraps the external multi-vector embedding models.
// Every provider, single-vector or not, is exposed through one interface
// that yields token matrices: row 0 carries the pooled summary vector used
// for approximate search, later rows carry per-token vectors.
package embeddings

import (
	"context"
	"errors"

	"github.com/doclens/engine/internal/models"
)

var (
	// ErrEmptyInput is returned when Embed is called with empty input.
	ErrEmptyInput = errors.New("embeddings: input text is empty")
	// ErrNoEmbeddingInResponse is returned when the provider response contains no embedding data.
	ErrNoEmbeddingInResponse = errors.New("embeddings: no embedding in response")
	// ErrDimensionMismatch is returned when the response embedding width does not match configured dimensions.
	ErrDimensionMismatch = errors.New("embeddings: embedding dimension mismatch")
)

// Client defines the interface for generating token-matrix embeddings.
type Client interface {
	// Embed generates the token matrix for the given text. The matrix
	// always has at least one row (the summary vector).
	Embed(ctx context.Context, text string) (*models.TokenMatrix, error)

	// EmbedBatch generates token matrices for multiple texts in a batch.
	// More efficient than calling Embed repeatedly for providers with
	// batch endpoints.
	EmbedBatch(ctx context.Context, texts []string) ([]*models.TokenMatrix, error)

	// Dimensions reports the per-token vector width this client produces.
	Dimensions() int
}
