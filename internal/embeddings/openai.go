package embeddings

import (
	"context"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"

	"github.com/doclens/engine/internal/models"
)

// OpenAIClient implements the Client interface via the official OpenAI SDK.
// OpenAI's embedding models are single-vector, so every matrix has exactly
// one row and summary search and exact re-scoring see the same vector.
type OpenAIClient struct {
	sdk        openaisdk.Client
	model      openaisdk.EmbeddingModel
	dimensions int
}

// NewOpenAIClient creates an OpenAI embedding client.
// An empty model falls back to text-embedding-3-small.
func NewOpenAIClient(apiKey, model string, dimensions int) *OpenAIClient {
	embeddingModel := openaisdk.EmbeddingModelTextEmbedding3Small
	if model != "" {
		embeddingModel = openaisdk.EmbeddingModel(model)
	}

	if dimensions <= 0 {
		dimensions = 1536
	}

	return &OpenAIClient{
		sdk:        openaisdk.NewClient(option.WithAPIKey(apiKey)),
		model:      embeddingModel,
		dimensions: dimensions,
	}
}

// Embed implements Client.
func (c *OpenAIClient) Embed(ctx context.Context, text string) (*models.TokenMatrix, error) {
	matrices, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	return matrices[0], nil
}

// EmbedBatch implements Client.
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([]*models.TokenMatrix, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, ErrEmptyInput
		}
	}

	resp, err := c.sdk.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model:      c.model,
		Dimensions: param.NewOpt(int64(c.dimensions)),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", ErrNoEmbeddingInResponse, len(resp.Data), len(texts))
	}

	matrices := make([]*models.TokenMatrix, len(resp.Data))

	for i, data := range resp.Data {
		if len(data.Embedding) != c.dimensions {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(data.Embedding), c.dimensions)
		}

		m := models.NewTokenMatrix(1, c.dimensions)
		for j, v := range data.Embedding {
			m.Data[j] = float32(v)
		}

		matrices[i] = m
	}

	return matrices, nil
}

// Dimensions implements Client.
func (c *OpenAIClient) Dimensions() int {
	return c.dimensions
}

var _ Client = (*OpenAIClient)(nil)
