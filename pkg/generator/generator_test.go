package generator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meridianmed/insight-engine/pkg/apperrors"
	"github.com/meridianmed/insight-engine/pkg/entity"
	"github.com/meridianmed/insight-engine/pkg/llm"
	"github.com/meridianmed/insight-engine/pkg/prompts"
	"github.com/meridianmed/insight-engine/pkg/registry"
)

func testGenerator(t *testing.T, client *llm.MockClient) *Generator {
	t.Helper()
	reg, err := registry.Load()
	require.NoError(t, err)
	composer := prompts.NewComposer(reg, entity.NewResolver(zap.NewNop()), "", "public", "postgres")
	return New(client, composer, nil, "public", 15*time.Minute, zap.NewNop())
}

func completionWith(sql string) func(context.Context, string, string, float64) (*llm.CompletionResult, error) {
	return func(context.Context, string, string, float64) (*llm.CompletionResult, error) {
		return &llm.CompletionResult{
			Content: "Here is the query:\n```sql\n" + sql + "\n```\nIt sums revenue per distributor.",
		}, nil
	}
}

func TestGenerate_ExtractsSQLAndTables(t *testing.T) {
	client := llm.NewMockClient()
	client.CompleteFunc = completionWith(
		"SELECT d.distributor_name, SUM(t.revenue) AS total_revenue\n" +
			"FROM sales_transactions t JOIN distributors d ON d.distributor_id = t.distributor_id\n" +
			"GROUP BY d.distributor_name")
	g := testGenerator(t, client)

	result, err := g.Generate(context.Background(), prompts.Input{Question: "top distributors"}, false)
	require.NoError(t, err)

	assert.Contains(t, result.SQL, "SELECT d.distributor_name")
	assert.Equal(t, []string{"distributors", "sales_transactions"}, result.TablesUsed)
	assert.Contains(t, result.Explanation, "sums revenue")
	assert.False(t, result.FromCache)
}

func TestGenerate_CacheHitIsByteIdentical(t *testing.T) {
	client := llm.NewMockClient()
	client.CompleteFunc = completionWith("SELECT 1 FROM products")
	g := testGenerator(t, client)
	ctx := context.Background()

	first, err := g.Generate(ctx, prompts.Input{Question: "How many products?"}, false)
	require.NoError(t, err)

	// Same question with different whitespace and casing hits the cache.
	second, err := g.Generate(ctx, prompts.Input{Question: "  how MANY   products? "}, false)
	require.NoError(t, err)

	assert.Equal(t, first.SQL, second.SQL)
	assert.True(t, second.FromCache)
	assert.Equal(t, 1, client.CompleteCalls)
}

func TestGenerate_SkipCacheBypassesLookup(t *testing.T) {
	client := llm.NewMockClient()
	client.CompleteFunc = completionWith("SELECT 1 FROM products")
	g := testGenerator(t, client)
	ctx := context.Background()

	_, err := g.Generate(ctx, prompts.Input{Question: "q"}, false)
	require.NoError(t, err)
	_, err = g.Generate(ctx, prompts.Input{Question: "q"}, true)
	require.NoError(t, err)

	assert.Equal(t, 2, client.CompleteCalls)
}

func TestGenerate_ContextualInputsAreNotCached(t *testing.T) {
	client := llm.NewMockClient()
	client.CompleteFunc = completionWith("SELECT 1 FROM products")
	g := testGenerator(t, client)
	ctx := context.Background()

	in := prompts.Input{Question: "q", Feedback: "fix the syntax"}
	_, err := g.Generate(ctx, in, false)
	require.NoError(t, err)
	_, err = g.Generate(ctx, in, false)
	require.NoError(t, err)

	assert.Equal(t, 2, client.CompleteCalls)
}

func TestGenerate_NoSQLProduced(t *testing.T) {
	client := llm.NewMockClient()
	client.CompleteFunc = func(context.Context, string, string, float64) (*llm.CompletionResult, error) {
		return &llm.CompletionResult{Content: "I cannot answer that question."}, nil
	}
	g := testGenerator(t, client)

	_, err := g.Generate(context.Background(), prompts.Input{Question: "q"}, false)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestMemoryCache_TTLExpiry(t *testing.T) {
	c := newMemoryCache(time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set(context.Background(), "k", &Result{SQL: "SELECT 1"})
	_, ok := c.Get(context.Background(), "k")
	assert.True(t, ok)

	c.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, ok = c.Get(context.Background(), "k")
	assert.False(t, ok)
}
