package models

import (
	"strings"
	"time"
)

// MessageRole identifies who produced a conversation message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is a single turn in a conversation. Assistant turns carry the
// generated SQL; result rows are stored for the UI but are never fed back
// into prompts.
type Message struct {
	ID        string         `json:"id"`
	Role      MessageRole    `json:"role"`
	Content   string         `json:"content"`
	SQL       string         `json:"sql,omitempty"`
	Results   []map[string]any `json:"results,omitempty"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Conversation is an append-only sequence of user/assistant turns.
type Conversation struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id,omitempty"`
	Title          string    `json:"title,omitempty"`
	Messages       []Message `json:"messages"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	MessageCount   int       `json:"message_count"`
}

// DeriveTitle produces a conversation title from the first user message.
// Titles longer than 60 runes are truncated on a word boundary.
func DeriveTitle(firstUserMessage string) string {
	title := strings.TrimSpace(firstUserMessage)
	if title == "" {
		return "New conversation"
	}
	runes := []rune(title)
	if len(runes) <= 60 {
		return title
	}
	truncated := string(runes[:60])
	if idx := strings.LastIndex(truncated, " "); idx > 20 {
		truncated = truncated[:idx]
	}
	return truncated + "..."
}
