// Package handlers implements the HTTP handlers for the engine API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/doclens/engine/internal/api/response"
	enginerrors "github.com/doclens/engine/internal/errors"
	"github.com/doclens/engine/internal/models"
	"github.com/doclens/engine/internal/service"
)

// SearchService defines the interface for ranked cross-collection search.
type SearchService interface {
	Search(ctx context.Context, req service.SearchRequest) (service.SearchResponse, error)
}

// SearchHandler handles HTTP requests for search.
type SearchHandler struct {
	service SearchService
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(service SearchService) *SearchHandler {
	return &SearchHandler{service: service}
}

// SearchRequest is the body for POST /v1/search. API contract uses
// camelCase (topN).
type SearchRequest struct {
	Query       string   `json:"query"`
	Collections []string `json:"collections,omitempty"`
	TopN        int      `json:"topN,omitempty"` //nolint:tagliatelle // API contract
}

// SearchResponse is the response for POST /v1/search.
type SearchResponse struct {
	Results []SearchResultItem `json:"results"`
	Partial bool               `json:"partial"`
}

// SearchResultItem is one ranked result.
type SearchResultItem struct {
	ID         string          `json:"id"`
	Collection string          `json:"collection"`
	Score      float64         `json:"score"`
	Rank       int             `json:"rank"`
	Metadata   models.Metadata `json:"metadata,omitempty"`
}

// Search handles POST /v1/search.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.RespondBadRequest(w, "invalid JSON body")
		return
	}

	result, err := h.service.Search(r.Context(), service.SearchRequest{
		Query:       req.Query,
		Collections: req.Collections,
		TopN:        req.TopN,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyQuery), errors.Is(err, service.ErrUnknownCollection):
			response.RespondBadRequest(w, err.Error())
		case errors.Is(err, enginerrors.ErrDeadlineExceeded):
			response.RespondError(w, http.StatusGatewayTimeout, "Gateway Timeout",
				"query deadline exceeded before any results were final")
		default:
			slog.Error("search failed", "error", err)
			response.RespondInternalServerError(w, "search failed")
		}

		return
	}

	items := make([]SearchResultItem, len(result.Results))
	for i, ranked := range result.Results {
		items[i] = SearchResultItem{
			ID:         ranked.ID,
			Collection: ranked.Collection,
			Score:      ranked.Score,
			Rank:       ranked.Rank,
			Metadata:   ranked.Metadata,
		}
	}

	response.RespondJSON(w, http.StatusOK, SearchResponse{
		Results: items,
		Partial: result.Partial,
	})
}
