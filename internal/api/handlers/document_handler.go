package handlers

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	middleware "github.com/docurag/docurag/internal/api/middlewares"
	"github.com/docurag/docurag/internal/core"
	"github.com/docurag/docurag/internal/models"
	"github.com/docurag/docurag/internal/services"
)

type DocumentHandler struct {
	documents *services.DocumentService
	maxBytes  int64
}

func NewDocumentHandler(documents *services.DocumentService, maxBytes int64) *DocumentHandler {
	return &DocumentHandler{documents: documents, maxBytes: maxBytes}
}

// Upload handles POST /api/upload?scope_type=&scope_id= with a multipart
// "file" part. Deduplicated content returns the existing document with
// is_new=false; ingestion is enqueued only for first-ever content.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, core.ErrUnauthorized)
		return
	}

	scopeType := models.ScopeType(r.URL.Query().Get("scope_type"))
	scopeID := r.URL.Query().Get("scope_id")
	if !scopeType.Valid() || scopeID == "" {
		http.Error(w, "scope_type must be 'chat' or 'project'", http.StatusBadRequest)
		return
	}

	// One byte past the limit is enough to distinguish "too large".
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+1)
	if err := r.ParseMultipartForm(h.maxBytes + 1); err != nil {
		writeError(w, core.ErrFileTooLarge)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "invalid file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "read file", http.StatusBadRequest)
		return
	}

	res, err := h.documents.Upload(r.Context(), userID, scopeType, scopeID, header.Filename, data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// List handles GET /api/documents?scope_type=&scope_id=&include_inherited=.
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, core.ErrUnauthorized)
		return
	}

	scopeType := models.ScopeType(r.URL.Query().Get("scope_type"))
	scopeID := r.URL.Query().Get("scope_id")
	if !scopeType.Valid() || scopeID == "" {
		http.Error(w, "scope_type must be 'chat' or 'project'", http.StatusBadRequest)
		return
	}
	includeInherited := r.URL.Query().Get("include_inherited") == "true"

	docs, err := h.documents.ListDocuments(r.Context(), userID, scopeType, scopeID, includeInherited)
	if err != nil {
		writeError(w, err)
		return
	}
	if docs == nil {
		docs = []models.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

// Remove handles DELETE /api/documents/{document_id}?scope_type=&scope_id=.
// Scope params unlink from one scope; without them the document is
// unlinked from every scope the caller owns.
func (h *DocumentHandler) Remove(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, core.ErrUnauthorized)
		return
	}

	docID := chi.URLParam(r, "document_id")
	scopeType := models.ScopeType(r.URL.Query().Get("scope_type"))
	scopeID := r.URL.Query().Get("scope_id")
	if scopeType != "" && (!scopeType.Valid() || scopeID == "") {
		http.Error(w, "scope_type must be 'chat' or 'project'", http.StatusBadRequest)
		return
	}

	if err := h.documents.Remove(r.Context(), userID, docID, scopeType, scopeID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// Status handles GET /api/documents/{document_id}/status for ingestion
// polling.
func (h *DocumentHandler) Status(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.UserID(r.Context()); !ok {
		writeError(w, core.ErrUnauthorized)
		return
	}

	status, err := h.documents.GetStatus(r.Context(), chi.URLParam(r, "document_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]models.DocumentStatus{"status": status})
}
