// Package repositories persists conversations and query history in the
// engine store. Each repository has a Postgres implementation and an
// in-memory one for tests and storeless deployments.
package repositories

import (
	"context"
	"errors"

	"github.com/meridianmed/insight-engine/pkg/models"
)

// ErrNotFound reports a missing conversation.
var ErrNotFound = errors.New("conversation not found")

// ConversationSummary is a listing row without the message bodies.
type ConversationSummary struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id,omitempty"`
	Title          string `json:"title"`
	MessageCount   int    `json:"message_count"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// ConversationRepository stores conversations. Append creates the
// conversation implicitly when the id is new, deriving the title from the
// first user message.
type ConversationRepository interface {
	Create(ctx context.Context, conv *models.Conversation) error
	Get(ctx context.Context, conversationID string) (*models.Conversation, error)
	Append(ctx context.Context, conversationID, userID string, msg models.Message) (*models.Conversation, error)
	List(ctx context.Context, userID string, offset, limit int) ([]ConversationSummary, error)
	Search(ctx context.Context, userID, text string, limit int) ([]ConversationSummary, error)
	Delete(ctx context.Context, conversationID string) error
}

// QueryHistoryRepository stores finished execution records durably.
type QueryHistoryRepository interface {
	Save(ctx context.Context, rec *models.QueryExecutionRecord) error
	Recent(ctx context.Context, limit int) ([]models.QueryExecutionRecord, error)
}
