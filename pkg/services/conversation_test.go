package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meridianmed/insight-engine/pkg/models"
	"github.com/meridianmed/insight-engine/pkg/repositories"
)

func newConversationService(contextTurns int) ConversationService {
	return NewConversationService(repositories.NewMemoryConversationRepository(), contextTurns, zap.NewNop())
}

func TestConversationService_StartAssignsID(t *testing.T) {
	svc := newConversationService(6)

	conv, err := svc.Start(context.Background(), "u1", "Q3 revenue review")
	require.NoError(t, err)
	assert.NotEmpty(t, conv.ConversationID)
	assert.Equal(t, "Q3 revenue review", conv.Title)
}

func TestConversationService_ContextWindowTruncates(t *testing.T) {
	svc := newConversationService(2)
	ctx := context.Background()

	conv, err := svc.Start(ctx, "u1", "")
	require.NoError(t, err)

	for _, q := range []string{"one", "two", "three"} {
		_, err := svc.AppendUserMessage(ctx, conv.ConversationID, "u1", q)
		require.NoError(t, err)
	}

	window, err := svc.ContextWindow(ctx, conv.ConversationID)
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, "two", window[0].Content)
	assert.Equal(t, "three", window[1].Content)
}

func TestConversationService_ContextWindowExposesSQLOnly(t *testing.T) {
	svc := newConversationService(6)
	ctx := context.Background()

	conv, err := svc.Start(ctx, "u1", "")
	require.NoError(t, err)

	_, err = svc.AppendUserMessage(ctx, conv.ConversationID, "u1", "top distributors")
	require.NoError(t, err)
	_, err = svc.AppendAssistantMessage(ctx, conv.ConversationID, "u1", models.Message{
		Content: "Here are the results",
		SQL:     "SELECT distributor_name FROM distributors",
		Results: []map[string]any{{"distributor_name": "Apex Medical"}},
	})
	require.NoError(t, err)

	window, err := svc.ContextWindow(ctx, conv.ConversationID)
	require.NoError(t, err)
	require.Len(t, window, 2)

	assistant := window[1]
	assert.Equal(t, models.RoleAssistant, assistant.Role)
	assert.Equal(t, "SELECT distributor_name FROM distributors", assistant.SQL)
	assert.Empty(t, assistant.Content)
	assert.Nil(t, assistant.Results)
}

func TestConversationService_AssistantTurnsWithoutSQLAreSkipped(t *testing.T) {
	svc := newConversationService(6)
	ctx := context.Background()

	conv, err := svc.Start(ctx, "u1", "")
	require.NoError(t, err)

	_, err = svc.AppendUserMessage(ctx, conv.ConversationID, "u1", "hello")
	require.NoError(t, err)
	_, err = svc.AppendAssistantMessage(ctx, conv.ConversationID, "u1", models.Message{
		Content: "The query failed validation",
		Error:   "scan limit exceeded",
	})
	require.NoError(t, err)

	window, err := svc.ContextWindow(ctx, conv.ConversationID)
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, models.RoleUser, window[0].Role)
}

func TestConversationService_Delete(t *testing.T) {
	svc := newConversationService(6)
	ctx := context.Background()

	conv, err := svc.Start(ctx, "u1", "")
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, conv.ConversationID))

	_, err = svc.Get(ctx, conv.ConversationID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}
