package document

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"ragstore/internal/middleware"
)

type Handler struct {
	service        *Service
	maxUploadBytes int64
}

func NewHandler(service *Service, maxUploadBytes int64) *Handler {
	return &Handler{service: service, maxUploadBytes: maxUploadBytes}
}

// Upload handles POST /documents. The multipart form carries the file under
// "file" and the collection under "scope_id". Accepted uploads return 202
// with the pending document; processing happens asynchronously.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	// Leave headroom for the non-file form fields.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		h.writeError(r, w, "VALIDATION_ERROR", "failed to parse multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(r, w, "VALIDATION_ERROR", "file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	scopeID := r.FormValue("scope_id")

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(r, w, "INTERNAL_ERROR", "failed to read upload", http.StatusInternalServerError)
		return
	}

	contentType := header.Header.Get("Content-Type")
	doc, err := h.service.Upload(r.Context(), data, header.Filename, contentType, scopeID)
	if err != nil {
		var vErr *ValidationError
		if errors.As(err, &vErr) {
			h.writeError(r, w, "VALIDATION_ERROR", vErr.Reason, http.StatusBadRequest)
			return
		}
		slog.ErrorContext(r.Context(), "failed to accept upload", "error", err)
		h.writeError(r, w, "INTERNAL_ERROR", "failed to accept upload", http.StatusInternalServerError)
		return
	}

	status := http.StatusAccepted
	if doc.Status != StatusPending {
		// Duplicate resolved to an existing document.
		status = http.StatusOK
	}
	h.writeData(w, status, doc)
}

// List handles GET /documents?scope_id=...
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	scopeID := r.URL.Query().Get("scope_id")
	if scopeID == "" {
		h.writeError(r, w, "VALIDATION_ERROR", "scope_id is required", http.StatusBadRequest)
		return
	}

	docs, err := h.service.List(r.Context(), scopeID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list documents", "error", err)
		h.writeError(r, w, "INTERNAL_ERROR", "failed to list documents", http.StatusInternalServerError)
		return
	}
	if docs == nil {
		docs = []Document{}
	}
	h.writeData(w, http.StatusOK, docs)
}

// Get handles GET /documents/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeLookupError(r, w, err, "failed to get document")
		return
	}
	h.writeData(w, http.StatusOK, doc)
}

// Delete handles DELETE /documents/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeLookupError(r, w, err, "failed to delete document")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetContent handles GET /documents/{id}/content, returning the
// reconstructed normalized text of a completed document.
func (h *Handler) GetContent(w http.ResponseWriter, r *http.Request) {
	content, err := h.service.GetContent(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.writeError(r, w, "NOT_FOUND", "document not found", http.StatusNotFound)
			return
		}
		h.writeError(r, w, "CONFLICT", err.Error(), http.StatusConflict)
		return
	}
	h.writeData(w, http.StatusOK, map[string]string{"content": content})
}

// Reprocess handles POST /documents/{id}/reprocess.
func (h *Handler) Reprocess(w http.ResponseWriter, r *http.Request) {
	err := h.service.Reprocess(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.writeError(r, w, "NOT_FOUND", "document not found", http.StatusNotFound)
			return
		}
		if errors.Is(err, ErrInvalidTransition) {
			h.writeError(r, w, "CONFLICT", err.Error(), http.StatusConflict)
			return
		}
		slog.ErrorContext(r.Context(), "failed to reprocess document", "error", err)
		h.writeError(r, w, "INTERNAL_ERROR", "failed to reprocess document", http.StatusInternalServerError)
		return
	}
	h.writeData(w, http.StatusAccepted, map[string]string{"status": "reprocessing"})
}

func (h *Handler) writeLookupError(r *http.Request, w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, ErrNotFound) {
		h.writeError(r, w, "NOT_FOUND", "document not found", http.StatusNotFound)
		return
	}
	slog.ErrorContext(r.Context(), msg, "error", err)
	h.writeError(r, w, "INTERNAL_ERROR", msg, http.StatusInternalServerError)
}

func (h *Handler) writeData(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": v}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(r *http.Request, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(r.Context()),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
