package embeddings

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/doclens/engine/internal/models"
)

// RateLimitedClient wraps a Client and throttles model calls. Providers
// enforce per-account request budgets, so the limit applies across ingest
// workers and query embedding alike.
type RateLimitedClient struct {
	inner   Client
	limiter *rate.Limiter
}

// NewRateLimitedClient wraps inner with a requests-per-second limit.
// requestsPerSecond must be positive; use the inner client directly when no
// limit is wanted.
func NewRateLimitedClient(inner Client, requestsPerSecond float64) (*RateLimitedClient, error) {
	if inner == nil {
		return nil, fmt.Errorf("rate limited client: inner client is required")
	}

	if requestsPerSecond <= 0 {
		return nil, fmt.Errorf("rate limited client: requests per second must be positive, got %v", requestsPerSecond)
	}

	return &RateLimitedClient{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}, nil
}

func (c *RateLimitedClient) Embed(ctx context.Context, text string) (*models.TokenMatrix, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	return c.inner.Embed(ctx, text)
}

func (c *RateLimitedClient) EmbedBatch(ctx context.Context, texts []string) ([]*models.TokenMatrix, error) {
	// One batch call counts as one provider request.
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	return c.inner.EmbedBatch(ctx, texts)
}

func (c *RateLimitedClient) Dimensions() int {
	return c.inner.Dimensions()
}

var _ Client = (*RateLimitedClient)(nil)
