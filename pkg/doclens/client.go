// Package doclens is a small Go client for the engine HTTP API. It covers
// document submission, deletion, collection stats, and search.
package doclens

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const defaultTimeout = 30 * time.Second

// APIError is a non-2xx response from the engine, carrying the RFC 7807
// problem fields the server returns.
type APIError struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("doclens: %d %s: %s", e.Status, e.Title, e.Detail)
	}

	return fmt.Sprintf("doclens: %d %s", e.Status, e.Title)
}

// Client calls the engine API. Create with NewClient.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default retrying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a client for the engine at baseURL, authenticating every
// request with apiKey. Transient failures are retried with backoff.
func NewClient(baseURL, apiKey string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("doclens: base URL is required")
	}

	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("doclens: invalid base URL: %w", err)
	}

	retry := retryablehttp.NewClient()
	retry.RetryMax = 3
	retry.Logger = nil

	httpClient := retry.StandardClient()
	httpClient.Timeout = defaultTimeout

	c := &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: httpClient,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Document is submitted for asynchronous embedding and indexing.
type Document struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SubmitAck acknowledges an accepted document.
type SubmitAck struct {
	ID         string `json:"id"`
	Collection string `json:"collection"`
	Status     string `json:"status"`
}

// SearchRequest is the body for Search.
type SearchRequest struct {
	Query       string   `json:"query"`
	Collections []string `json:"collections,omitempty"`
	TopN        int      `json:"topN,omitempty"` //nolint:tagliatelle // API contract
}

// SearchResult is one ranked hit.
type SearchResult struct {
	ID         string         `json:"id"`
	Collection string         `json:"collection"`
	Score      float64        `json:"score"`
	Rank       int            `json:"rank"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// SearchResponse is the ranked result list. Partial is true when the query
// deadline cut re-scoring short and results cover only part of the candidates.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
	Partial bool           `json:"partial"`
}

// CollectionStats reports the live record count of a collection.
type CollectionStats struct {
	Collection string `json:"collection"`
	Size       int    `json:"size"`
}

// SubmitDocument enqueues doc for embedding into collection. The engine
// returns before the document is searchable.
func (c *Client) SubmitDocument(ctx context.Context, collection string, doc Document) (*SubmitAck, error) {
	path := fmt.Sprintf("/v1/collections/%s/documents", url.PathEscape(collection))

	var ack SubmitAck
	if err := c.do(ctx, http.MethodPost, path, doc, &ack); err != nil {
		return nil, err
	}

	return &ack, nil
}

// DeleteDocument removes a document from a collection.
func (c *Client) DeleteDocument(ctx context.Context, collection, id string) error {
	path := fmt.Sprintf("/v1/collections/%s/documents/%s", url.PathEscape(collection), url.PathEscape(id))

	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// Stats returns the record count of a collection.
func (c *Client) Stats(ctx context.Context, collection string) (*CollectionStats, error) {
	path := fmt.Sprintf("/v1/collections/%s/stats", url.PathEscape(collection))

	var stats CollectionStats
	if err := c.do(ctx, http.MethodGet, path, nil, &stats); err != nil {
		return nil, err
	}

	return &stats, nil
}

// Search runs a ranked cross-collection search.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	var resp SearchResponse
	if err := c.do(ctx, http.MethodPost, "/v1/search", req, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader

	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("doclens: encode request: %w", err)
		}

		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("doclens: build request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("doclens: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Title: http.StatusText(resp.StatusCode)}

		// Problem body is best effort; the status line already identifies the failure.
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(apiErr)

		return apiErr
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("doclens: decode response: %w", err)
	}

	return nil
}
