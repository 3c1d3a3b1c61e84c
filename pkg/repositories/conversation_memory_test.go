package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianmed/insight-engine/pkg/models"
)

func userMsg(content string) models.Message {
	return models.Message{Role: models.RoleUser, Content: content, Timestamp: time.Now().UTC()}
}

func TestMemoryRepo_AppendCreatesImplicitly(t *testing.T) {
	repo := NewMemoryConversationRepository()
	ctx := context.Background()

	conv, err := repo.Append(ctx, "c1", "u1", userMsg("top distributors by revenue please"))
	require.NoError(t, err)

	assert.Equal(t, "c1", conv.ConversationID)
	assert.Equal(t, 1, conv.MessageCount)
	assert.Equal(t, "top distributors by revenue please", conv.Title)
	assert.False(t, conv.CreatedAt.IsZero())
}

func TestMemoryRepo_TitleDerivedFromFirstUserMessage(t *testing.T) {
	repo := NewMemoryConversationRepository()
	ctx := context.Background()

	long := "Show me the complete gross margin breakdown for every surgeon at every facility this fiscal year"
	conv, err := repo.Append(ctx, "c1", "u1", userMsg(long))
	require.NoError(t, err)

	assert.LessOrEqual(t, len([]rune(conv.Title)), 64)
	assert.Contains(t, conv.Title, "...")
}

func TestMemoryRepo_UpdatedAtMonotonic(t *testing.T) {
	repo := NewMemoryConversationRepository()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }
	ctx := context.Background()

	first, err := repo.Append(ctx, "c1", "u1", userMsg("one"))
	require.NoError(t, err)
	second, err := repo.Append(ctx, "c1", "u1", userMsg("two"))
	require.NoError(t, err)

	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))
}

func TestMemoryRepo_GetReturnsCopy(t *testing.T) {
	repo := NewMemoryConversationRepository()
	ctx := context.Background()

	_, err := repo.Append(ctx, "c1", "u1", userMsg("hello"))
	require.NoError(t, err)

	conv, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	conv.Messages[0].Content = "mutated"

	again, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "hello", again.Messages[0].Content)
}

func TestMemoryRepo_GetMissing(t *testing.T) {
	repo := NewMemoryConversationRepository()
	_, err := repo.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRepo_ListOrdersByUpdatedAtDesc(t *testing.T) {
	repo := NewMemoryConversationRepository()
	ctx := context.Background()

	_, err := repo.Append(ctx, "older", "u1", userMsg("first"))
	require.NoError(t, err)
	_, err = repo.Append(ctx, "newer", "u1", userMsg("second"))
	require.NoError(t, err)
	_, err = repo.Append(ctx, "other-user", "u2", userMsg("third"))
	require.NoError(t, err)

	summaries, err := repo.List(ctx, "u1", 0, 10)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "newer", summaries[0].ConversationID)
	assert.Equal(t, "older", summaries[1].ConversationID)
}

func TestMemoryRepo_SearchMatchesTitleAndBody(t *testing.T) {
	repo := NewMemoryConversationRepository()
	ctx := context.Background()

	_, err := repo.Append(ctx, "c1", "u1", userMsg("duplicate invoice hunt"))
	require.NoError(t, err)
	_, err = repo.Append(ctx, "c2", "u1", userMsg("inventory levels"))
	require.NoError(t, err)

	found, err := repo.Search(ctx, "u1", "invoice", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "c1", found[0].ConversationID)

	none, err := repo.Search(ctx, "u2", "invoice", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryRepo_Delete(t *testing.T) {
	repo := NewMemoryConversationRepository()
	ctx := context.Background()

	_, err := repo.Append(ctx, "c1", "u1", userMsg("hello"))
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, "c1"))
	_, err = repo.Get(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, "c1"), ErrNotFound)
}
