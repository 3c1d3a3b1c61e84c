package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/meridianmed/insight-engine/pkg/apperrors"
	"github.com/meridianmed/insight-engine/pkg/services"
)

// QueryHandler exposes the natural-language query pipeline.
type QueryHandler struct {
	queries services.QueryService
	logger  *zap.Logger
}

// NewQueryHandler creates a new QueryHandler.
func NewQueryHandler(queries services.QueryService, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{queries: queries, logger: logger}
}

// RegisterRoutes registers the query route on the given mux.
func (h *QueryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /query", h.Query)
}

// Query handles POST /query: run a question through the pipeline.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req services.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return
	}

	resp, err := h.queries.Query(r.Context(), req)
	if err != nil {
		// A response with a resolution still reaches the client so the
		// suggestions render; bare errors become plain error JSON.
		if resp != nil && resp.Resolution != nil {
			appErr := apperrors.AsError(err)
			if writeErr := WriteJSON(w, statusForKind(appErr.Kind), resp); writeErr != nil {
				h.logger.Error("Failed to encode query failure response", zap.Error(writeErr))
			}
			return
		}
		_ = WriteError(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode query response", zap.Error(err))
	}
}
