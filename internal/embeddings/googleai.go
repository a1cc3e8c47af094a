package embeddings

import (
	"context"
	"fmt"
	"math"
	"strings"

	"google.golang.org/genai"

	"github.com/doclens/engine/internal/models"
)

const defaultGeminiModel = "gemini-embedding-001"

// GoogleAIClient implements the Client interface via the Google Gen AI SDK
// (Gemini API). Like OpenAI, Gemini embeds to a single pooled vector, so
// matrices have one row.
type GoogleAIClient struct {
	client     *genai.Client
	model      string
	dimensions int
}

// NewGoogleAIClient creates a Gemini embedding client.
// An empty model falls back to gemini-embedding-001.
func NewGoogleAIClient(ctx context.Context, apiKey, model string, dimensions int) (*GoogleAIClient, error) {
	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("googleai client: %w", err)
	}

	if model == "" {
		model = defaultGeminiModel
	}

	if dimensions <= 0 || dimensions > math.MaxInt32 {
		return nil, fmt.Errorf("embeddings: googleai dimensions out of range: %d", dimensions)
	}

	return &GoogleAIClient{
		client:     genaiClient,
		model:      model,
		dimensions: dimensions,
	}, nil
}

// Embed implements Client.
func (c *GoogleAIClient) Embed(ctx context.Context, text string) (*models.TokenMatrix, error) {
	matrices, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	return matrices[0], nil
}

// EmbedBatch implements Client.
func (c *GoogleAIClient) EmbedBatch(ctx context.Context, texts []string) ([]*models.TokenMatrix, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	contents := make([]*genai.Content, len(texts))

	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, ErrEmptyInput
		}

		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	//nolint:gosec // G115: dimensions is bounded above by math.MaxInt32
	dimInt32 := int32(c.dimensions)

	resp, err := c.client.Models.EmbedContent(ctx, c.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &dimInt32,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embedding: %w", err)
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", ErrNoEmbeddingInResponse, len(resp.Embeddings), len(texts))
	}

	matrices := make([]*models.TokenMatrix, len(resp.Embeddings))

	for i, embedding := range resp.Embeddings {
		if len(embedding.Values) != c.dimensions {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(embedding.Values), c.dimensions)
		}

		m := models.NewTokenMatrix(1, c.dimensions)
		copy(m.Data, embedding.Values)

		matrices[i] = m
	}

	return matrices, nil
}

// Dimensions implements Client.
func (c *GoogleAIClient) Dimensions() int {
	return c.dimensions
}

var _ Client = (*GoogleAIClient)(nil)
