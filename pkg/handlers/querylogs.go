package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/meridianmed/insight-engine/pkg/models"
	"github.com/meridianmed/insight-engine/pkg/querylog"
)

// QueryLogResponse wraps a page of execution records.
type QueryLogResponse struct {
	Queries []models.QueryExecutionRecord `json:"queries"`
	Count   int                           `json:"count"`
}

// QueryLogHandler exposes the in-process execution log.
type QueryLogHandler struct {
	log    *querylog.Ring
	logger *zap.Logger
}

// NewQueryLogHandler creates a new QueryLogHandler.
func NewQueryLogHandler(log *querylog.Ring, logger *zap.Logger) *QueryLogHandler {
	return &QueryLogHandler{log: log, logger: logger}
}

// RegisterRoutes registers the query log routes on the given mux.
func (h *QueryLogHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /query-logs", h.List)
	mux.HandleFunc("DELETE /query-logs", h.Clear)
}

// List handles GET /query-logs?offset=&limit=&mode=.
func (h *QueryLogHandler) List(w http.ResponseWriter, r *http.Request) {
	mode := models.QueryMode(r.URL.Query().Get("mode"))
	if mode != "" && !mode.Valid() {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "unknown mode filter")
		return
	}

	records := h.log.List(intParam(r, "offset", 0), intParam(r, "limit", 100), mode)
	if err := WriteJSON(w, http.StatusOK, QueryLogResponse{Queries: records, Count: len(records)}); err != nil {
		h.logger.Error("Failed to encode query log response", zap.Error(err))
	}
}

// Clear handles DELETE /query-logs.
func (h *QueryLogHandler) Clear(w http.ResponseWriter, r *http.Request) {
	h.log.Clear()
	w.WriteHeader(http.StatusNoContent)
}
