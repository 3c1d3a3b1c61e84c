package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/meridianmed/insight-engine/pkg/models"
	"github.com/meridianmed/insight-engine/pkg/repositories"
	"github.com/meridianmed/insight-engine/pkg/services"
)

// StartConversationRequest creates a new conversation.
type StartConversationRequest struct {
	UserID string `json:"user_id"`
	Title  string `json:"title,omitempty"`
}

// AppendMessageRequest adds one message to a conversation. Role defaults
// to user; assistant messages may carry SQL.
type AppendMessageRequest struct {
	UserID  string `json:"user_id,omitempty"`
	Role    string `json:"role,omitempty"`
	Content string `json:"content"`
	SQL     string `json:"sql,omitempty"`
}

// ConversationListResponse wraps a page of conversation summaries.
type ConversationListResponse struct {
	Conversations []repositories.ConversationSummary `json:"conversations"`
	Count         int                                `json:"count"`
}

// ConversationHandler exposes conversation CRUD and search.
type ConversationHandler struct {
	conversations services.ConversationService
	logger        *zap.Logger
}

// NewConversationHandler creates a new ConversationHandler.
func NewConversationHandler(conversations services.ConversationService, logger *zap.Logger) *ConversationHandler {
	return &ConversationHandler{conversations: conversations, logger: logger}
}

// RegisterRoutes registers the conversation routes on the given mux.
func (h *ConversationHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /conversations", h.Start)
	mux.HandleFunc("GET /conversations", h.List)
	mux.HandleFunc("GET /conversations/search", h.Search)
	mux.HandleFunc("GET /conversations/{id}", h.Get)
	mux.HandleFunc("POST /conversations/{id}/messages", h.AppendMessage)
	mux.HandleFunc("DELETE /conversations/{id}", h.Delete)
}

// Start handles POST /conversations.
func (h *ConversationHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return
	}

	conv, err := h.conversations.Start(r.Context(), req.UserID, req.Title)
	if err != nil {
		_ = WriteError(w, err)
		return
	}
	if err := WriteJSON(w, http.StatusCreated, conv); err != nil {
		h.logger.Error("Failed to encode conversation response", zap.Error(err))
	}
}

// Get handles GET /conversations/{id}.
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	conv, err := h.conversations.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			_ = ErrorResponse(w, http.StatusNotFound, "not_found", "conversation not found")
			return
		}
		_ = WriteError(w, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, conv); err != nil {
		h.logger.Error("Failed to encode conversation response", zap.Error(err))
	}
}

// AppendMessage handles POST /conversations/{id}/messages. Appending to an
// unknown conversation creates it, so the first turn needs no prior Start.
func (h *ConversationHandler) AppendMessage(w http.ResponseWriter, r *http.Request) {
	var req AppendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return
	}
	if strings.TrimSpace(req.Content) == "" && req.SQL == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "content is required")
		return
	}

	id := r.PathValue("id")
	var (
		conv *models.Conversation
		err  error
	)
	switch models.MessageRole(req.Role) {
	case "", models.RoleUser:
		conv, err = h.conversations.AppendUserMessage(r.Context(), id, req.UserID, req.Content)
	case models.RoleAssistant:
		conv, err = h.conversations.AppendAssistantMessage(r.Context(), id, req.UserID,
			models.Message{Content: req.Content, SQL: req.SQL})
	default:
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "role must be user or assistant")
		return
	}
	if err != nil {
		_ = WriteError(w, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, conv); err != nil {
		h.logger.Error("Failed to encode conversation response", zap.Error(err))
	}
}

// List handles GET /conversations?user=&offset=&limit=.
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "user parameter is required")
		return
	}
	offset := intParam(r, "offset", 0)
	limit := intParam(r, "limit", 50)

	summaries, err := h.conversations.List(r.Context(), userID, offset, limit)
	if err != nil {
		_ = WriteError(w, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, ConversationListResponse{Conversations: summaries, Count: len(summaries)}); err != nil {
		h.logger.Error("Failed to encode conversation list response", zap.Error(err))
	}
}

// Search handles GET /conversations/search?user=&q=.
func (h *ConversationHandler) Search(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	text := r.URL.Query().Get("q")
	if userID == "" || text == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "user and q parameters are required")
		return
	}

	summaries, err := h.conversations.Search(r.Context(), userID, text, intParam(r, "limit", 20))
	if err != nil {
		_ = WriteError(w, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, ConversationListResponse{Conversations: summaries, Count: len(summaries)}); err != nil {
		h.logger.Error("Failed to encode conversation search response", zap.Error(err))
	}
}

// Delete handles DELETE /conversations/{id}.
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.conversations.Delete(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			_ = ErrorResponse(w, http.StatusNotFound, "not_found", "conversation not found")
			return
		}
		_ = WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func intParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
