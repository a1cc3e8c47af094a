package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/doclens/engine/internal/models"
)

// RemoteClient calls a self-hosted multi-vector model server (late
// interaction models like ColBERT or ColPali behind a small HTTP shim).
// It is the only provider that returns genuinely multi-row matrices;
// the hosted-API providers embed to a single pooled vector.
type RemoteClient struct {
	httpClient *http.Client
	endpoint   string
	model      string
	dimensions int
}

// RemoteClientConfig holds configuration for NewRemoteClient.
type RemoteClientConfig struct {
	Endpoint   string // base URL of the model server
	Model      string // model identifier passed through to the server
	Dimensions int    // expected per-token vector width
	APIKey     string // optional bearer token
	Timeout    time.Duration
}

type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+t.token)

	return t.base.RoundTrip(req)
}

// NewRemoteClient creates a client for the model server at cfg.Endpoint.
func NewRemoteClient(cfg RemoteClientConfig) (*RemoteClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("embeddings: remote endpoint is required")
	}

	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("embeddings: remote dimensions must be positive")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Timeout = timeout
	retryClient.RetryMax = 3
	retryClient.Logger = nil // disable retryablehttp's default logger; callers log failures

	if cfg.APIKey != "" {
		retryClient.HTTPClient.Transport = &bearerTransport{
			token: cfg.APIKey,
			base:  retryClient.HTTPClient.Transport,
		}
	}

	return &RemoteClient{
		httpClient: retryClient.StandardClient(),
		endpoint:   cfg.Endpoint,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}, nil
}

type embedRequest struct {
	Model  string   `json:"model,omitempty"`
	Inputs []string `json:"inputs"`
}

// embedResponse carries one matrix per input, each a list of token vectors.
// The first vector of each matrix is the model's pooled summary vector.
type embedResponse struct {
	Embeddings [][][]float32 `json:"embeddings"`
}

// Embed implements Client.
func (c *RemoteClient) Embed(ctx context.Context, text string) (*models.TokenMatrix, error) {
	matrices, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	return matrices[0], nil
}

// EmbedBatch implements Client.
func (c *RemoteClient) EmbedBatch(ctx context.Context, texts []string) ([]*models.TokenMatrix, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	for _, text := range texts {
		if text == "" {
			return nil, ErrEmptyInput
		}
	}

	body, err := json.Marshal(embedRequest{Model: c.model, Inputs: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call model server: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("model server returned %d: %s", resp.StatusCode, snippet)
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}

	if len(parsed.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d matrices for %d inputs", ErrNoEmbeddingInResponse, len(parsed.Embeddings), len(texts))
	}

	matrices := make([]*models.TokenMatrix, len(parsed.Embeddings))

	for i, vectors := range parsed.Embeddings {
		m, err := c.toMatrix(vectors)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}

		matrices[i] = m
	}

	return matrices, nil
}

// Dimensions implements Client.
func (c *RemoteClient) Dimensions() int {
	return c.dimensions
}

func (c *RemoteClient) toMatrix(vectors [][]float32) (*models.TokenMatrix, error) {
	if len(vectors) == 0 {
		return nil, ErrNoEmbeddingInResponse
	}

	m := models.NewTokenMatrix(len(vectors), c.dimensions)

	for i, vector := range vectors {
		if len(vector) != c.dimensions {
			return nil, fmt.Errorf("%w: row %d has width %d, want %d", ErrDimensionMismatch, i, len(vector), c.dimensions)
		}

		copy(m.Row(i), vector)
	}

	return m, nil
}

var _ Client = (*RemoteClient)(nil)
