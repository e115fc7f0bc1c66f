package query

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"docquery/internal/middleware"
	"docquery/internal/retrieval"
	"docquery/internal/vector"
)

type Retriever interface {
	Query(ctx context.Context, question string, topK int) ([]retrieval.ChunkResult, error)
}

type Handler struct {
	retriever Retriever
}

func NewHandler(retriever Retriever) *Handler {
	return &Handler{retriever: retriever}
}

// Query answers POST /query. A vector store outage maps to 503 so clients
// can tell a degraded backend from a bad request.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
		TopK     int    `json:"top_k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	results, err := h.retriever.Query(r.Context(), req.Question, req.TopK)
	if err != nil {
		if errors.Is(err, retrieval.ErrEmptyQuery) {
			h.writeError(r.Context(), w, "VALIDATION_ERROR", "Question is required", http.StatusBadRequest)
			return
		}
		if errors.Is(err, vector.ErrUnavailable) {
			h.writeError(r.Context(), w, "STORE_UNAVAILABLE", "Vector store unavailable", http.StatusServiceUnavailable)
			return
		}
		slog.Error("query failed", "error", err)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if results == nil {
		results = []retrieval.ChunkResult{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"data": results,
		"meta": map[string]int{"count": len(results)},
	}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
