// Package services holds the engine's business logic: conversation
// management and the question-to-results pipeline.
package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridianmed/insight-engine/pkg/models"
	"github.com/meridianmed/insight-engine/pkg/repositories"
)

// ConversationService manages conversation lifecycle and assembles the
// context window the prompt composer sees.
type ConversationService interface {
	Start(ctx context.Context, userID, title string) (*models.Conversation, error)
	Get(ctx context.Context, conversationID string) (*models.Conversation, error)
	AppendUserMessage(ctx context.Context, conversationID, userID, content string) (*models.Conversation, error)
	AppendAssistantMessage(ctx context.Context, conversationID, userID string, msg models.Message) (*models.Conversation, error)
	ContextWindow(ctx context.Context, conversationID string) ([]models.Message, error)
	List(ctx context.Context, userID string, offset, limit int) ([]repositories.ConversationSummary, error)
	Search(ctx context.Context, userID, text string, limit int) ([]repositories.ConversationSummary, error)
	Delete(ctx context.Context, conversationID string) error
}

type conversationService struct {
	repo         repositories.ConversationRepository
	contextTurns int
	logger       *zap.Logger

	// Per-conversation locks serialize appends so two concurrent turns on
	// the same conversation cannot interleave their read-modify-write.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

var _ ConversationService = (*conversationService)(nil)

// NewConversationService creates the service. contextTurns bounds how many
// trailing messages feed back into prompts.
func NewConversationService(repo repositories.ConversationRepository, contextTurns int, logger *zap.Logger) ConversationService {
	if contextTurns <= 0 {
		contextTurns = 6
	}
	return &conversationService{
		repo:         repo,
		contextTurns: contextTurns,
		logger:       logger.Named("conversations"),
		locks:        make(map[string]*sync.Mutex),
	}
}

func (s *conversationService) Start(ctx context.Context, userID, title string) (*models.Conversation, error) {
	conv := &models.Conversation{
		ConversationID: uuid.NewString(),
		UserID:         userID,
		Title:          title,
		Messages:       []models.Message{},
	}
	if err := s.repo.Create(ctx, conv); err != nil {
		return nil, err
	}
	s.logger.Info("conversation started",
		zap.String("conversation_id", conv.ConversationID),
		zap.String("user_id", userID))
	return conv, nil
}

func (s *conversationService) Get(ctx context.Context, conversationID string) (*models.Conversation, error) {
	return s.repo.Get(ctx, conversationID)
}

func (s *conversationService) AppendUserMessage(ctx context.Context, conversationID, userID, content string) (*models.Conversation, error) {
	return s.append(ctx, conversationID, userID, models.Message{
		ID:        uuid.NewString(),
		Role:      models.RoleUser,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
}

func (s *conversationService) AppendAssistantMessage(ctx context.Context, conversationID, userID string, msg models.Message) (*models.Conversation, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Role = models.RoleAssistant
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	return s.append(ctx, conversationID, userID, msg)
}

func (s *conversationService) append(ctx context.Context, conversationID, userID string, msg models.Message) (*models.Conversation, error) {
	lock := s.lockFor(conversationID)
	lock.Lock()
	defer lock.Unlock()
	return s.repo.Append(ctx, conversationID, userID, msg)
}

// ContextWindow returns the trailing messages for prompt composition.
// Assistant turns are reduced to their SQL; result rows and prose never
// re-enter the prompt.
func (s *conversationService) ContextWindow(ctx context.Context, conversationID string) ([]models.Message, error) {
	conv, err := s.repo.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	msgs := conv.Messages
	if len(msgs) > s.contextTurns {
		msgs = msgs[len(msgs)-s.contextTurns:]
	}

	window := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case models.RoleUser:
			window = append(window, models.Message{Role: models.RoleUser, Content: m.Content})
		case models.RoleAssistant:
			if m.SQL != "" {
				window = append(window, models.Message{Role: models.RoleAssistant, SQL: m.SQL})
			}
		}
	}
	return window, nil
}

func (s *conversationService) List(ctx context.Context, userID string, offset, limit int) ([]repositories.ConversationSummary, error) {
	return s.repo.List(ctx, userID, offset, limit)
}

func (s *conversationService) Search(ctx context.Context, userID, text string, limit int) ([]repositories.ConversationSummary, error) {
	return s.repo.Search(ctx, userID, text, limit)
}

func (s *conversationService) Delete(ctx context.Context, conversationID string) error {
	lock := s.lockFor(conversationID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.repo.Delete(ctx, conversationID); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.locks, conversationID)
	s.mu.Unlock()
	return nil
}

func (s *conversationService) lockFor(conversationID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[conversationID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[conversationID] = lock
	}
	return lock
}
