package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"strings"

	"github.com/doclens/engine/internal/models"
	"github.com/doclens/engine/pkg/vectormath"
)

// mockMaxTokens caps rows per matrix so pathological inputs stay cheap.
const mockMaxTokens = 64

// MockClient implements the Client interface for testing and local
// development without a model server. It generates deterministic token
// matrices from input hashes: identical text always embeds identically,
// and texts sharing tokens produce rows that MaxSim matches exactly.
type MockClient struct {
	dimensions int
}

// NewMockClient creates a mock embedding client with the given per-token
// vector width.
func NewMockClient(dimensions int) *MockClient {
	if dimensions <= 0 {
		dimensions = 768
	}

	return &MockClient{dimensions: dimensions}
}

// Embed generates a deterministic token matrix: row 0 from the whole text,
// one row per whitespace-separated token after that.
func (c *MockClient) Embed(_ context.Context, text string) (*models.TokenMatrix, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	tokens := strings.Fields(text)
	if len(tokens) > mockMaxTokens {
		tokens = tokens[:mockMaxTokens]
	}

	m := models.NewTokenMatrix(1+len(tokens), c.dimensions)
	c.fillRow(m.Row(0), text)

	for i, token := range tokens {
		c.fillRow(m.Row(i+1), token)
	}

	return m, nil
}

// EmbedBatch generates token matrices for multiple texts.
// Returns an error if any text is empty.
func (c *MockClient) EmbedBatch(ctx context.Context, texts []string) ([]*models.TokenMatrix, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	matrices := make([]*models.TokenMatrix, len(texts))

	for i, text := range texts {
		m, err := c.Embed(ctx, text)
		if err != nil {
			return nil, err
		}

		matrices[i] = m
	}

	return matrices, nil
}

// Dimensions implements Client.
func (c *MockClient) Dimensions() int {
	return c.dimensions
}

// fillRow writes a unit-length deterministic vector derived from s into row.
// Hash blocks are chained so rows are pseudo-random across their full width
// rather than repeating a 32-byte cycle.
func (c *MockClient) fillRow(row []float32, s string) {
	block := sha256.Sum256([]byte(s))

	for i := range row {
		idx := i % sha256.Size
		if i > 0 && idx == 0 {
			block = sha256.Sum256(block[:])
		}

		// Map the byte into [-1, 1].
		row[i] = (float32(block[idx]) / 127.5) - 1.0
	}

	// Perturb by length so "a" and "a a" differ even after truncation.
	if len(row) >= 4 {
		var tail [4]byte
		binary.LittleEndian.PutUint32(tail[:], uint32(len(s)))
		row[len(row)-1] += float32(tail[0]) / 255.0
	}

	vectormath.NormalizeL2(row)
}

// Ensure MockClient implements Client interface
var _ Client = (*MockClient)(nil)
