package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"ragstore/features/document"
	"ragstore/internal/embedding"
	"ragstore/internal/middleware"
)

type DocumentCounter interface {
	CountByStatus(ctx context.Context) (map[document.Status]int, error)
}

type FragmentCounter interface {
	Count(ctx context.Context) (int, error)
}

type EmbeddingStats interface {
	CacheStats() embedding.Stats
	Dimension() int
}

// Handler reports pipeline health: documents per status, fragment total,
// and embedding cache effectiveness.
type Handler struct {
	docs      DocumentCounter
	fragments FragmentCounter
	embedder  EmbeddingStats
}

func NewHandler(docs DocumentCounter, fragments FragmentCounter, embedder EmbeddingStats) *Handler {
	return &Handler{docs: docs, fragments: fragments, embedder: embedder}
}

type response struct {
	Documents struct {
		Pending    int `json:"pending"`
		Processing int `json:"processing"`
		Completed  int `json:"completed"`
		Failed     int `json:"failed"`
		Total      int `json:"total"`
	} `json:"documents"`
	Fragments struct {
		Total int `json:"total"`
	} `json:"fragments"`
	Embedding struct {
		Requests  int64 `json:"requests"`
		CacheHits int64 `json:"cache_hits"`
		APICalls  int64 `json:"api_calls"`
		APIErrors int64 `json:"api_errors"`
		CacheSize int   `json:"cache_size"`
		Dimension int   `json:"dimension"`
	} `json:"embedding"`
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	counts, err := h.docs.CountByStatus(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to count documents", "error", err)
		h.writeError(r, w, "INTERNAL_ERROR", "failed to gather stats", http.StatusInternalServerError)
		return
	}
	fragmentTotal, err := h.fragments.Count(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to count fragments", "error", err)
		h.writeError(r, w, "INTERNAL_ERROR", "failed to gather stats", http.StatusInternalServerError)
		return
	}

	var resp response
	resp.Documents.Pending = counts[document.StatusPending]
	resp.Documents.Processing = counts[document.StatusProcessing]
	resp.Documents.Completed = counts[document.StatusCompleted]
	resp.Documents.Failed = counts[document.StatusFailed]
	for _, n := range counts {
		resp.Documents.Total += n
	}
	resp.Fragments.Total = fragmentTotal

	es := h.embedder.CacheStats()
	resp.Embedding.Requests = es.Requests
	resp.Embedding.CacheHits = es.CacheHits
	resp.Embedding.APICalls = es.APICalls
	resp.Embedding.APIErrors = es.APIErrors
	resp.Embedding.CacheSize = es.CacheSize
	resp.Embedding.Dimension = h.embedder.Dimension()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
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
