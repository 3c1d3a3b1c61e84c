package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/meridianmed/insight-engine/pkg/database"
	"github.com/meridianmed/insight-engine/pkg/models"
)

// PgConversationRepository stores conversations in engine_conversations
// with the message list as a jsonb document.
type PgConversationRepository struct {
	db     *database.DB
	logger *zap.Logger
}

var _ ConversationRepository = (*PgConversationRepository)(nil)

// NewPgConversationRepository creates a Postgres-backed repository.
func NewPgConversationRepository(db *database.DB, logger *zap.Logger) *PgConversationRepository {
	return &PgConversationRepository{db: db, logger: logger.Named("conversations")}
}

func (r *PgConversationRepository) Create(ctx context.Context, conv *models.Conversation) error {
	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now
	conv.MessageCount = len(conv.Messages)

	messages, err := json.Marshal(conv.Messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO engine_conversations
			(conversation_id, user_id, title, messages, message_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		conv.ConversationID, conv.UserID, conv.Title, messages,
		conv.MessageCount, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

func (r *PgConversationRepository) Get(ctx context.Context, conversationID string) (*models.Conversation, error) {
	var conv models.Conversation
	var messages []byte

	err := r.db.QueryRow(ctx, `
		SELECT conversation_id, user_id, title, messages, message_count, created_at, updated_at
		FROM engine_conversations
		WHERE conversation_id = $1`,
		conversationID).Scan(
		&conv.ConversationID, &conv.UserID, &conv.Title, &messages,
		&conv.MessageCount, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select conversation: %w", err)
	}

	if err := json.Unmarshal(messages, &conv.Messages); err != nil {
		return nil, fmt.Errorf("unmarshal messages: %w", err)
	}
	return &conv, nil
}

// Append adds a message, creating the conversation when the id is new.
// The title comes from the first user message.
func (r *PgConversationRepository) Append(ctx context.Context, conversationID, userID string, msg models.Message) (*models.Conversation, error) {
	conv, err := r.Get(ctx, conversationID)
	if errors.Is(err, ErrNotFound) {
		title := ""
		if msg.Role == models.RoleUser {
			title = models.DeriveTitle(msg.Content)
		}
		conv = &models.Conversation{
			ConversationID: conversationID,
			UserID:         userID,
			Title:          title,
			Messages:       []models.Message{msg},
		}
		if err := r.Create(ctx, conv); err != nil {
			return nil, err
		}
		return conv, nil
	}
	if err != nil {
		return nil, err
	}

	conv.Messages = append(conv.Messages, msg)
	conv.MessageCount = len(conv.Messages)
	conv.UpdatedAt = time.Now().UTC()
	if conv.Title == "" && msg.Role == models.RoleUser {
		conv.Title = models.DeriveTitle(msg.Content)
	}

	messages, err := json.Marshal(conv.Messages)
	if err != nil {
		return nil, fmt.Errorf("marshal messages: %w", err)
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE engine_conversations
		SET messages = $2, message_count = $3, title = $4, updated_at = $5
		WHERE conversation_id = $1`,
		conv.ConversationID, messages, conv.MessageCount, conv.Title, conv.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return conv, nil
}

func (r *PgConversationRepository) List(ctx context.Context, userID string, offset, limit int) ([]ConversationSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
		SELECT conversation_id, user_id, title, message_count, created_at, updated_at
		FROM engine_conversations
		WHERE user_id = $1
		ORDER BY updated_at DESC
		OFFSET $2 LIMIT $3`,
		userID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()
	return scanSummaries(rows)
}

// Search matches on the title and message bodies using the indexed
// tsvector expression from the migration.
func (r *PgConversationRepository) Search(ctx context.Context, userID, text string, limit int) ([]ConversationSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(ctx, `
		SELECT conversation_id, user_id, title, message_count, created_at, updated_at
		FROM engine_conversations
		WHERE user_id = $1
		  AND to_tsvector('english', coalesce(title, '') || ' ' || messages::text)
		      @@ plainto_tsquery('english', $2)
		ORDER BY updated_at DESC
		LIMIT $3`,
		userID, text, limit)
	if err != nil {
		return nil, fmt.Errorf("search conversations: %w", err)
	}
	defer rows.Close()
	return scanSummaries(rows)
}

func (r *PgConversationRepository) Delete(ctx context.Context, conversationID string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM engine_conversations WHERE conversation_id = $1`, conversationID)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSummaries(rows pgx.Rows) ([]ConversationSummary, error) {
	summaries := []ConversationSummary{}
	for rows.Next() {
		var s ConversationSummary
		var createdAt, updatedAt time.Time
		if err := rows.Scan(&s.ConversationID, &s.UserID, &s.Title,
			&s.MessageCount, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}
		s.CreatedAt = createdAt.UTC().Format(time.RFC3339)
		s.UpdatedAt = updatedAt.UTC().Format(time.RFC3339)
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}
