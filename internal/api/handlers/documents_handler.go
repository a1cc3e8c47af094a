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

// IngestService defines the interface for document submission and removal.
type IngestService interface {
	SubmitObject(ctx context.Context, collection, id, text string, metadata models.Metadata) error
	DeleteObject(ctx context.Context, collection, id string) error
	CollectionSize(ctx context.Context, collection string) (int, error)
}

// DocumentsHandler handles HTTP requests for document ingest and deletion.
type DocumentsHandler struct {
	service IngestService
}

// NewDocumentsHandler creates a new documents handler.
func NewDocumentsHandler(service IngestService) *DocumentsHandler {
	return &DocumentsHandler{service: service}
}

// SubmitDocumentRequest is the body for POST /v1/collections/{collection}/documents.
type SubmitDocumentRequest struct {
	ID       string          `json:"id"`
	Text     string          `json:"text"`
	Metadata models.Metadata `json:"metadata,omitempty"`
}

// SubmitDocumentResponse acknowledges an accepted document.
type SubmitDocumentResponse struct {
	ID         string `json:"id"`
	Collection string `json:"collection"`
	Status     string `json:"status"`
}

// Submit handles POST /v1/collections/{collection}/documents. Embedding is
// asynchronous, so success is 202 Accepted rather than 201 Created.
func (h *DocumentsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("collection")

	var req SubmitDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.RespondBadRequest(w, "invalid JSON body")
		return
	}

	err := h.service.SubmitObject(r.Context(), collection, req.ID, req.Text, req.Metadata)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyObjectID), errors.Is(err, service.ErrEmptyText):
			response.RespondBadRequest(w, err.Error())
		case errors.Is(err, enginerrors.ErrNotFound):
			response.RespondNotFound(w, err.Error())
		default:
			slog.Error("submit document failed", "collection", collection, "document_id", req.ID, "error", err)
			response.RespondInternalServerError(w, "failed to accept document")
		}

		return
	}

	response.RespondJSON(w, http.StatusAccepted, SubmitDocumentResponse{
		ID:         req.ID,
		Collection: collection,
		Status:     "accepted",
	})
}

// Delete handles DELETE /v1/collections/{collection}/documents/{id}.
func (h *DocumentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("collection")
	id := r.PathValue("id")

	err := h.service.DeleteObject(r.Context(), collection, id)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyObjectID):
			response.RespondBadRequest(w, err.Error())
		case errors.Is(err, enginerrors.ErrNotFound):
			response.RespondNotFound(w, err.Error())
		default:
			slog.Error("delete document failed", "collection", collection, "document_id", id, "error", err)
			response.RespondInternalServerError(w, "failed to delete document")
		}

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CollectionStatsResponse reports the live record count of one collection.
type CollectionStatsResponse struct {
	Collection string `json:"collection"`
	Size       int    `json:"size"`
}

// Stats handles GET /v1/collections/{collection}/stats.
func (h *DocumentsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("collection")

	size, err := h.service.CollectionSize(r.Context(), collection)
	if err != nil {
		if errors.Is(err, enginerrors.ErrNotFound) {
			response.RespondNotFound(w, err.Error())
			return
		}

		slog.Error("collection stats failed", "collection", collection, "error", err)
		response.RespondInternalServerError(w, "failed to read collection stats")

		return
	}

	response.RespondJSON(w, http.StatusOK, CollectionStatsResponse{
		Collection: collection,
		Size:       size,
	})
}
