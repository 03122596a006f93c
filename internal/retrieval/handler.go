package retrieval

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"ragstore/internal/middleware"
)

// Handler exposes retrieval over HTTP. The response carries exactly what
// the downstream generation consumer needs: the context string and the
// aligned citations.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type queryRequest struct {
	Query   string `json:"query"`
	ScopeID string `json:"scope_id"`
}

type queryResponse struct {
	Context   string              `json:"context"`
	Citations []Citation          `json:"citations"`
	Fragments []RetrievedFragment `json:"fragments"`
}

func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		h.writeError(r, w, "VALIDATION_ERROR", "query is required", http.StatusBadRequest)
		return
	}
	if req.ScopeID == "" {
		h.writeError(r, w, "VALIDATION_ERROR", "scope_id is required", http.StatusBadRequest)
		return
	}

	fragments := h.service.FindRelevant(r.Context(), req.Query, req.ScopeID)
	if fragments == nil {
		fragments = []RetrievedFragment{}
	}

	resp := queryResponse{
		Context:   BuildContext(fragments),
		Citations: BuildCitations(fragments),
		Fragments: fragments,
	}

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
