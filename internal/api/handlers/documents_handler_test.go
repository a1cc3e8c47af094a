package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	enginerrors "github.com/doclens/engine/internal/errors"
	"github.com/doclens/engine/internal/models"
	"github.com/doclens/engine/internal/service"
)

type mockIngestService struct {
	submitFunc func(ctx context.Context, collection, id, text string, metadata models.Metadata) error
	deleteFunc func(ctx context.Context, collection, id string) error
	sizeFunc   func(ctx context.Context, collection string) (int, error)
}

func (m *mockIngestService) SubmitObject(ctx context.Context, collection, id, text string, metadata models.Metadata) error {
	return m.submitFunc(ctx, collection, id, text, metadata)
}

func (m *mockIngestService) DeleteObject(ctx context.Context, collection, id string) error {
	return m.deleteFunc(ctx, collection, id)
}

func (m *mockIngestService) CollectionSize(ctx context.Context, collection string) (int, error) {
	return m.sizeFunc(ctx, collection)
}

// documentsMux routes through a ServeMux so r.PathValue works.
func documentsMux(svc IngestService) *http.ServeMux {
	handler := NewDocumentsHandler(svc)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/collections/{collection}/documents", handler.Submit)
	mux.HandleFunc("DELETE /v1/collections/{collection}/documents/{id}", handler.Delete)
	mux.HandleFunc("GET /v1/collections/{collection}/stats", handler.Stats)

	return mux
}

func TestDocumentsHandlerSubmit(t *testing.T) {
	var (
		gotCollection string
		gotID         string
		gotText       string
		gotMetadata   models.Metadata
	)

	svc := &mockIngestService{
		submitFunc: func(_ context.Context, collection, id, text string, metadata models.Metadata) error {
			gotCollection, gotID, gotText, gotMetadata = collection, id, text, metadata
			return nil
		},
	}

	body := `{"id":"doc-1","text":"quarterly report","metadata":{"page":7}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/collections/docs/documents", strings.NewReader(body))
	rec := httptest.NewRecorder()
	documentsMux(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "docs", gotCollection)
	assert.Equal(t, "doc-1", gotID)
	assert.Equal(t, "quarterly report", gotText)
	assert.Equal(t, float64(7), gotMetadata["page"])

	var resp SubmitDocumentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "accepted", resp.Status)
}

func TestDocumentsHandlerSubmitErrors(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"empty id", service.ErrEmptyObjectID, http.StatusBadRequest},
		{"empty text", service.ErrEmptyText, http.StatusBadRequest},
		{"unknown collection", enginerrors.NewNotFoundError("nope", ""), http.StatusNotFound},
		{"queue down", context.DeadlineExceeded, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockIngestService{
				submitFunc: func(context.Context, string, string, string, models.Metadata) error {
					return tc.err
				},
			}

			req := httptest.NewRequest(http.MethodPost, "/v1/collections/docs/documents",
				strings.NewReader(`{"id":"doc-1","text":"x"}`))
			rec := httptest.NewRecorder()
			documentsMux(svc).ServeHTTP(rec, req)

			assert.Equal(t, tc.wantStatus, rec.Code)
		})
	}
}

func TestDocumentsHandlerDelete(t *testing.T) {
	var deleted string

	svc := &mockIngestService{
		deleteFunc: func(_ context.Context, collection, id string) error {
			deleted = collection + "/" + id
			return nil
		},
	}

	req := httptest.NewRequest(http.MethodDelete, "/v1/collections/docs/documents/doc-1", nil)
	rec := httptest.NewRecorder()
	documentsMux(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "docs/doc-1", deleted)
}

func TestDocumentsHandlerDeleteNotFound(t *testing.T) {
	svc := &mockIngestService{
		deleteFunc: func(_ context.Context, collection, id string) error {
			return enginerrors.NewNotFoundError(collection, id)
		},
	}

	req := httptest.NewRequest(http.MethodDelete, "/v1/collections/docs/documents/ghost", nil)
	rec := httptest.NewRecorder()
	documentsMux(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDocumentsHandlerStats(t *testing.T) {
	svc := &mockIngestService{
		sizeFunc: func(_ context.Context, collection string) (int, error) {
			assert.Equal(t, "docs", collection)
			return 42, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/collections/docs/stats", nil)
	rec := httptest.NewRecorder()
	documentsMux(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp CollectionStatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 42, resp.Size)
}
