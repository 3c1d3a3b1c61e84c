package repositories

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/meridianmed/insight-engine/pkg/models"
)

// MemoryConversationRepository keeps conversations in process memory. It
// backs tests and deployments that run without an engine store.
type MemoryConversationRepository struct {
	mu            sync.RWMutex
	conversations map[string]*models.Conversation
	now           func() time.Time
}

var _ ConversationRepository = (*MemoryConversationRepository)(nil)

// NewMemoryConversationRepository creates an empty repository.
func NewMemoryConversationRepository() *MemoryConversationRepository {
	return &MemoryConversationRepository{
		conversations: make(map[string]*models.Conversation),
		now:           time.Now,
	}
}

func (r *MemoryConversationRepository) Create(_ context.Context, conv *models.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.tick(conv.UpdatedAt)
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now
	conv.MessageCount = len(conv.Messages)

	stored := cloneConversation(conv)
	r.conversations[conv.ConversationID] = stored
	return nil
}

func (r *MemoryConversationRepository) Get(_ context.Context, conversationID string) (*models.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conv, ok := r.conversations[conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneConversation(conv), nil
}

func (r *MemoryConversationRepository) Append(_ context.Context, conversationID, userID string, msg models.Message) (*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.conversations[conversationID]
	if !ok {
		title := ""
		if msg.Role == models.RoleUser {
			title = models.DeriveTitle(msg.Content)
		}
		now := r.tick(time.Time{})
		conv = &models.Conversation{
			ConversationID: conversationID,
			UserID:         userID,
			Title:          title,
			Messages:       []models.Message{msg},
			MessageCount:   1,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		r.conversations[conversationID] = conv
		return cloneConversation(conv), nil
	}

	conv.Messages = append(conv.Messages, msg)
	conv.MessageCount = len(conv.Messages)
	conv.UpdatedAt = r.tick(conv.UpdatedAt)
	if conv.Title == "" && msg.Role == models.RoleUser {
		conv.Title = models.DeriveTitle(msg.Content)
	}
	return cloneConversation(conv), nil
}

func (r *MemoryConversationRepository) List(_ context.Context, userID string, offset, limit int) ([]ConversationSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	r.mu.RLock()
	var matched []*models.Conversation
	for _, conv := range r.conversations {
		if conv.UserID == userID {
			matched = append(matched, conv)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})

	if offset >= len(matched) {
		return []ConversationSummary{}, nil
	}
	matched = matched[offset:]
	if limit < len(matched) {
		matched = matched[:limit]
	}
	return summarize(matched), nil
}

func (r *MemoryConversationRepository) Search(_ context.Context, userID, text string, limit int) ([]ConversationSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	needle := strings.ToLower(text)

	r.mu.RLock()
	var matched []*models.Conversation
	for _, conv := range r.conversations {
		if conv.UserID != userID {
			continue
		}
		if conversationMatches(conv, needle) {
			matched = append(matched, conv)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})
	if limit < len(matched) {
		matched = matched[:limit]
	}
	return summarize(matched), nil
}

func (r *MemoryConversationRepository) Delete(_ context.Context, conversationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conversations[conversationID]; !ok {
		return ErrNotFound
	}
	delete(r.conversations, conversationID)
	return nil
}

// tick guarantees UpdatedAt advances monotonically even when the clock
// resolution makes two appends share a timestamp.
func (r *MemoryConversationRepository) tick(previous time.Time) time.Time {
	now := r.now().UTC()
	if !now.After(previous) {
		now = previous.Add(time.Microsecond)
	}
	return now
}

func conversationMatches(conv *models.Conversation, needle string) bool {
	if strings.Contains(strings.ToLower(conv.Title), needle) {
		return true
	}
	for _, msg := range conv.Messages {
		if strings.Contains(strings.ToLower(msg.Content), needle) {
			return true
		}
	}
	return false
}

func summarize(convs []*models.Conversation) []ConversationSummary {
	summaries := make([]ConversationSummary, len(convs))
	for i, conv := range convs {
		summaries[i] = ConversationSummary{
			ConversationID: conv.ConversationID,
			UserID:         conv.UserID,
			Title:          conv.Title,
			MessageCount:   conv.MessageCount,
			CreatedAt:      conv.CreatedAt.Format(time.RFC3339),
			UpdatedAt:      conv.UpdatedAt.Format(time.RFC3339),
		}
	}
	return summaries
}

func cloneConversation(conv *models.Conversation) *models.Conversation {
	out := *conv
	out.Messages = make([]models.Message, len(conv.Messages))
	copy(out.Messages, conv.Messages)
	return &out
}
