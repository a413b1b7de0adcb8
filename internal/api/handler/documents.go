package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openrag/opsconsole/internal/api/response"
)

// DocumentsHandler serves the documents and query-history listers.
type DocumentsHandler struct {
	shell WorkspaceProvider
}

// NewDocumentsHandler creates a new DocumentsHandler.
func NewDocumentsHandler(shell WorkspaceProvider) *DocumentsHandler {
	return &DocumentsHandler{shell: shell}
}

// ListDocuments handles GET /v1/documents. A fetch failure is reported in the
// view's error field with the previous rows, not as an error status.
func (h *DocumentsHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspace(w, r, h.shell)
	if !ok {
		return
	}
	nav, ok := navigation(r, true)
	if !ok {
		response.BadRequest(w, r, "page and size must be integers", nil)
		return
	}

	view, err := ws.Documents.Navigate(r.Context(), nav)
	if err != nil {
		response.Error(w, r, err, "failed to load documents")
		return
	}
	response.JSON(w, r, http.StatusOK, view)
}

// DeleteDocument handles DELETE /v1/documents/{id}?confirm=true.
func (h *DocumentsHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspace(w, r, h.shell)
	if !ok {
		return
	}

	view, err := ws.DocumentAdmin.Delete(r.Context(), chi.URLParam(r, "id"), confirmed(r))
	if err != nil {
		response.Error(w, r, err, "failed to delete document")
		return
	}
	response.JSON(w, r, http.StatusOK, view)
}

// ListHistory handles GET /v1/history.
func (h *DocumentsHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspace(w, r, h.shell)
	if !ok {
		return
	}
	nav, ok := navigation(r, false)
	if !ok {
		response.BadRequest(w, r, "page and size must be integers", nil)
		return
	}

	view, err := ws.History.Navigate(r.Context(), nav)
	if err != nil {
		response.Error(w, r, err, "failed to load history")
		return
	}
	response.JSON(w, r, http.StatusOK, view)
}
