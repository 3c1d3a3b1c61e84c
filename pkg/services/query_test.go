package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meridianmed/insight-engine/pkg/apperrors"
	"github.com/meridianmed/insight-engine/pkg/catalog"
	"github.com/meridianmed/insight-engine/pkg/config"
	"github.com/meridianmed/insight-engine/pkg/embedding"
	"github.com/meridianmed/insight-engine/pkg/entity"
	"github.com/meridianmed/insight-engine/pkg/examples"
	"github.com/meridianmed/insight-engine/pkg/generator"
	"github.com/meridianmed/insight-engine/pkg/llm"
	"github.com/meridianmed/insight-engine/pkg/models"
	"github.com/meridianmed/insight-engine/pkg/prompts"
	"github.com/meridianmed/insight-engine/pkg/querylog"
	"github.com/meridianmed/insight-engine/pkg/registry"
	"github.com/meridianmed/insight-engine/pkg/repositories"
	"github.com/meridianmed/insight-engine/pkg/vecindex"
	"github.com/meridianmed/insight-engine/pkg/warehouse"
)

// scriptedWarehouse returns canned introspection data and scripted
// dry-run/execute outcomes.
type scriptedWarehouse struct {
	descriptors map[string]*models.TableDescriptor

	dryRunFunc  func(call int, sql string) (*warehouse.DryRunStats, error)
	executeFunc func(call int, sql string) (*warehouse.QueryResult, error)

	dryRunCalls  int
	executeCalls int
	executedSQL  []string
}

func (w *scriptedWarehouse) ListTables(context.Context) ([]models.TableDescriptor, error) {
	out := make([]models.TableDescriptor, 0, len(w.descriptors))
	for _, d := range w.descriptors {
		out = append(out, models.TableDescriptor{TableName: d.TableName})
	}
	return out, nil
}

func (w *scriptedWarehouse) DescribeTable(_ context.Context, name string) (*models.TableDescriptor, error) {
	d, ok := w.descriptors[name]
	if !ok {
		return nil, apperrors.New(apperrors.KindNotFound, "table not found")
	}
	return d, nil
}

func (w *scriptedWarehouse) DryRun(_ context.Context, sql string) (*warehouse.DryRunStats, error) {
	w.dryRunCalls++
	if w.dryRunFunc != nil {
		return w.dryRunFunc(w.dryRunCalls, sql)
	}
	return &warehouse.DryRunStats{BytesProcessed: 1024}, nil
}

func (w *scriptedWarehouse) Execute(_ context.Context, sql string, _ int) (*warehouse.QueryResult, error) {
	w.executeCalls++
	w.executedSQL = append(w.executedSQL, sql)
	if w.executeFunc != nil {
		return w.executeFunc(w.executeCalls, sql)
	}
	return &warehouse.QueryResult{
		Columns: []string{"distributor_name", "total_revenue"},
		Rows: []map[string]any{
			{"distributor_name": "Apex Medical", "total_revenue": 1500000.0},
		},
		RowCount: 1,
	}, nil
}

func (w *scriptedWarehouse) Dialect() string { return "postgres" }
func (w *scriptedWarehouse) Close()          {}

var _ warehouse.Warehouse = (*scriptedWarehouse)(nil)

type pipeline struct {
	svc           QueryService
	warehouse     *scriptedWarehouse
	client        *llm.MockClient
	log           *querylog.Ring
	conversations ConversationService
}

func newPipeline(t *testing.T, wh *scriptedWarehouse, client *llm.MockClient) *pipeline {
	t.Helper()
	logger := zap.NewNop()

	if wh.descriptors == nil {
		wh.descriptors = map[string]*models.TableDescriptor{
			"sales_transactions": {
				TableName:   "sales_transactions",
				Description: "one row per line item sold",
				Columns: []models.ColumnDescriptor{
					{Name: "revenue", Type: "numeric"},
					{Name: "distributor_id", Type: "integer"},
					{Name: "transaction_date", Type: "date"},
				},
			},
			"distributors": {
				TableName:   "distributors",
				Description: "distributor master data",
				Columns: []models.ColumnDescriptor{
					{Name: "distributor_id", Type: "integer"},
					{Name: "distributor_name", Type: "text"},
				},
			},
		}
	}

	cat := catalog.New(wh, logger)
	require.NoError(t, cat.Refresh(context.Background()))

	embedder := embedding.NewHashProvider(embedding.DefaultHashDimension)
	index := vecindex.New(embedder.Dimension())
	for _, desc := range cat.DescribeAll() {
		vec, err := embedder.Embed(context.Background(), desc.CombinedText())
		require.NoError(t, err)
		require.NoError(t, index.Index(desc, vec))
	}

	reg, err := registry.Load()
	require.NoError(t, err)
	library, err := examples.Load()
	require.NoError(t, err)

	composer := prompts.NewComposer(reg, entity.NewResolver(logger), "", "public", "postgres")
	gen := generator.New(client, composer, nil, "public", 15*time.Minute, logger)

	conversations := NewConversationService(repositories.NewMemoryConversationRepository(), 6, logger)
	log := querylog.NewRing(100)

	svc := NewQueryService(QueryServiceDeps{
		Catalog:       cat,
		Embedder:      embedder,
		Index:         index,
		Registry:      reg,
		Examples:      library,
		Composer:      composer,
		Generator:     gen,
		Warehouse:     wh,
		Errors:        apperrors.NewHandler(logger),
		Conversations: conversations,
		History:       repositories.NoopQueryHistoryRepository{},
		Log:           log,
		Limits: config.LimitsConfig{
			MaxTables:            5,
			MaxExamples:          4,
			RequestBudgetSeconds: 30,
			ByteScanLimit:        1 << 30,
			RowCap:               1000,
			ConcurrencyCeiling:   4,
		},
		Dataset: "public",
		Logger:  logger,
	})

	return &pipeline{svc: svc, warehouse: wh, client: client, log: log, conversations: conversations}
}

func sqlCompletion(sql string) func(context.Context, string, string, float64) (*llm.CompletionResult, error) {
	return func(context.Context, string, string, float64) (*llm.CompletionResult, error) {
		return &llm.CompletionResult{Content: "```sql\n" + sql + "\n```\nSums revenue per distributor."}, nil
	}
}

const topDistributorsSQL = "SELECT d.distributor_name, SUM(t.revenue) AS total_revenue " +
	"FROM sales_transactions t JOIN distributors d ON d.distributor_id = t.distributor_id " +
	"GROUP BY d.distributor_name ORDER BY total_revenue DESC LIMIT 5"

func TestQuery_HappyPath(t *testing.T) {
	client := llm.NewMockClient()
	client.CompleteFunc = sqlCompletion(topDistributorsSQL)
	p := newPipeline(t, &scriptedWarehouse{}, client)

	resp, err := p.svc.Query(context.Background(), QueryRequest{
		Question: "Who are the top 5 distributors by revenue?",
	})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, "public", resp.Dataset)
	assert.Equal(t, topDistributorsSQL, resp.SQL)
	assert.Equal(t, 1, resp.RowCount)
	assert.Equal(t, "$1,500,000.00", resp.Rows[0]["total_revenue"])
	assert.Equal(t, []string{"distributors", "sales_transactions"}, resp.TablesUsed)
	assert.Equal(t, 0, resp.RetryCount)
	assert.NotEmpty(t, resp.ExecutionID)

	records := p.log.List(0, 0, "")
	require.Len(t, records, 1)
	assert.Equal(t, models.StatusCompleted, records[0].Status)
	assert.Equal(t, 0, records[0].Metadata["retry_count"])
}

func TestQuery_EmptyQuestionRejected(t *testing.T) {
	p := newPipeline(t, &scriptedWarehouse{}, llm.NewMockClient())

	_, err := p.svc.Query(context.Background(), QueryRequest{Question: "   "})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestQuery_InvalidModeRejected(t *testing.T) {
	p := newPipeline(t, &scriptedWarehouse{}, llm.NewMockClient())

	_, err := p.svc.Query(context.Background(), QueryRequest{Question: "q", Mode: "turbo"})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestQuery_ByteScanLimitBlocksExecution(t *testing.T) {
	client := llm.NewMockClient()
	client.CompleteFunc = sqlCompletion("SELECT * FROM sales_transactions")
	wh := &scriptedWarehouse{
		dryRunFunc: func(int, string) (*warehouse.DryRunStats, error) {
			return &warehouse.DryRunStats{BytesProcessed: 50 << 30}, nil
		},
	}
	p := newPipeline(t, wh, client)

	resp, err := p.svc.Query(context.Background(), QueryRequest{Question: "dump everything"})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	// The oversized query never executed.
	assert.Equal(t, 0, wh.executeCalls)
	require.NotNil(t, resp)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Resolution)
	assert.False(t, resp.Resolution.Retryable)
	assert.Equal(t, int64(50<<30), resp.BytesProcessed)

	records := p.log.List(0, 0, "")
	require.Len(t, records, 1)
	assert.Equal(t, models.StatusFailed, records[0].Status)
}

func TestQuery_GeneratedDMLRefused(t *testing.T) {
	client := llm.NewMockClient()
	client.CompleteFunc = sqlCompletion("DELETE FROM sales_transactions")
	wh := &scriptedWarehouse{}
	p := newPipeline(t, wh, client)

	_, err := p.svc.Query(context.Background(), QueryRequest{Question: "clean up the sales table"})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
	assert.Equal(t, 0, wh.dryRunCalls)
	assert.Equal(t, 0, wh.executeCalls)
}

func TestQuery_SemanticErrorRetriedWithFeedback(t *testing.T) {
	badSQL := "SELECT d.distributor_name, SUM(t.revnue) AS total_revenue FROM sales_transactions t JOIN distributors d ON d.distributor_id = t.distributor_id GROUP BY d.distributor_name"

	client := llm.NewMockClient()
	call := 0
	client.CompleteFunc = func(ctx context.Context, prompt, system string, temp float64) (*llm.CompletionResult, error) {
		call++
		if call == 1 {
			return &llm.CompletionResult{Content: "```sql\n" + badSQL + "\n```"}, nil
		}
		return &llm.CompletionResult{Content: "```sql\n" + topDistributorsSQL + "\n```"}, nil
	}

	wh := &scriptedWarehouse{
		dryRunFunc: func(call int, sql string) (*warehouse.DryRunStats, error) {
			if strings.Contains(sql, "revnue") {
				return nil, apperrors.New(apperrors.KindSemantic, `column "revnue" does not exist`)
			}
			return &warehouse.DryRunStats{BytesProcessed: 2048}, nil
		},
	}
	p := newPipeline(t, wh, client)

	resp, err := p.svc.Query(context.Background(), QueryRequest{
		Question: "Who are the top distributors by revenue?",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, resp.RetryCount)
	assert.Equal(t, 2, client.CompleteCalls)

	// The retry prompt carried the database error back to the model.
	require.Len(t, client.Prompts, 2)
	assert.Contains(t, client.Prompts[1], `column "revnue" does not exist`)
	assert.NotContains(t, client.Prompts[0], "Previous attempt failed")

	records := p.log.List(0, 0, "")
	require.Len(t, records, 1)
	assert.Equal(t, models.StatusCompleted, records[0].Status)
	assert.Equal(t, 1, records[0].Metadata["retry_count"])
}

func TestQuery_PermissionErrorNotRetried(t *testing.T) {
	client := llm.NewMockClient()
	client.CompleteFunc = sqlCompletion(topDistributorsSQL)
	wh := &scriptedWarehouse{
		executeFunc: func(int, string) (*warehouse.QueryResult, error) {
			return nil, apperrors.New(apperrors.KindPermission, "permission denied for table sales_transactions")
		},
	}
	p := newPipeline(t, wh, client)

	resp, err := p.svc.Query(context.Background(), QueryRequest{Question: "top distributors"})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindPermission, apperrors.KindOf(err))
	assert.Equal(t, 1, wh.executeCalls)
	require.NotNil(t, resp.Resolution)
	assert.False(t, resp.Resolution.Retryable)
}

func TestQuery_ConversationFollowUpSeesPriorSQL(t *testing.T) {
	client := llm.NewMockClient()
	client.CompleteFunc = sqlCompletion(topDistributorsSQL)
	p := newPipeline(t, &scriptedWarehouse{}, client)
	ctx := context.Background()

	conv, err := p.conversations.Start(ctx, "u1", "")
	require.NoError(t, err)

	_, err = p.svc.Query(ctx, QueryRequest{
		Question:       "Who are the top distributors by revenue?",
		ConversationID: conv.ConversationID,
		UserID:         "u1",
	})
	require.NoError(t, err)

	_, err = p.svc.Query(ctx, QueryRequest{
		Question:       "And just for the west region?",
		ConversationID: conv.ConversationID,
		UserID:         "u1",
	})
	require.NoError(t, err)

	require.Len(t, client.Prompts, 2)
	assert.Contains(t, client.Prompts[1], "Earlier in this conversation:")
	assert.Contains(t, client.Prompts[1], topDistributorsSQL)

	stored, err := p.conversations.Get(ctx, conv.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, 4, stored.MessageCount)
}

func TestQuery_DirectModeSkipsContext(t *testing.T) {
	client := llm.NewMockClient()
	client.CompleteFunc = sqlCompletion(topDistributorsSQL)
	p := newPipeline(t, &scriptedWarehouse{}, client)
	ctx := context.Background()

	conv, err := p.conversations.Start(ctx, "u1", "")
	require.NoError(t, err)

	_, err = p.svc.Query(ctx, QueryRequest{
		Question:       "top distributors",
		ConversationID: conv.ConversationID,
		UserID:         "u1",
	})
	require.NoError(t, err)

	_, err = p.svc.Query(ctx, QueryRequest{
		Question:       "top distributors again",
		ConversationID: conv.ConversationID,
		UserID:         "u1",
		Mode:           models.ModeDirect,
	})
	require.NoError(t, err)

	require.Len(t, client.Prompts, 2)
	assert.NotContains(t, client.Prompts[1], "Earlier in this conversation:")
}

func TestQuery_ResearchModeBypassesCache(t *testing.T) {
	client := llm.NewMockClient()
	client.CompleteFunc = sqlCompletion(topDistributorsSQL)
	p := newPipeline(t, &scriptedWarehouse{}, client)
	ctx := context.Background()

	_, err := p.svc.Query(ctx, QueryRequest{Question: "top distributors", Mode: models.ModeResearch})
	require.NoError(t, err)
	_, err = p.svc.Query(ctx, QueryRequest{Question: "top distributors", Mode: models.ModeResearch})
	require.NoError(t, err)

	assert.Equal(t, 2, client.CompleteCalls)
}

func TestQuery_UnknownDatasetNotFound(t *testing.T) {
	client := llm.NewMockClient()
	client.CompleteFunc = sqlCompletion(topDistributorsSQL)
	p := newPipeline(t, &scriptedWarehouse{}, client)

	_, err := p.svc.Query(context.Background(), QueryRequest{
		Question: "top distributors",
		Dataset:  "marketing",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
	// The unknown dataset is rejected before any stage runs.
	assert.Equal(t, 0, client.CompleteCalls)

	resp, err := p.svc.Query(context.Background(), QueryRequest{
		Question: "top distributors",
		Dataset:  "PUBLIC",
	})
	require.NoError(t, err)
	assert.Equal(t, "public", resp.Dataset)
}

func TestQuery_ExecuteFalseStopsAfterValidation(t *testing.T) {
	client := llm.NewMockClient()
	client.CompleteFunc = sqlCompletion(topDistributorsSQL)
	wh := &scriptedWarehouse{
		dryRunFunc: func(int, string) (*warehouse.DryRunStats, error) {
			return &warehouse.DryRunStats{BytesProcessed: 4096, EstimatedCost: 0.25}, nil
		},
	}
	p := newPipeline(t, wh, client)

	noExec := false
	resp, err := p.svc.Query(context.Background(), QueryRequest{
		Question: "top distributors by revenue",
		Options:  &QueryOptions{Execute: &noExec},
	})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, topDistributorsSQL, resp.SQL)
	assert.Equal(t, int64(4096), resp.BytesProcessed)
	assert.Equal(t, 0.25, resp.CostEstimate)
	assert.Empty(t, resp.Rows)
	assert.Equal(t, 1, wh.dryRunCalls)
	assert.Equal(t, 0, wh.executeCalls)
}

func TestQuery_OptionsMaxTablesBoundsSchema(t *testing.T) {
	client := llm.NewMockClient()
	client.CompleteFunc = sqlCompletion(topDistributorsSQL)
	p := newPipeline(t, &scriptedWarehouse{}, client)

	_, err := p.svc.Query(context.Background(), QueryRequest{
		Question: "who sold the most units",
		Options:  &QueryOptions{MaxTables: 1},
	})
	require.NoError(t, err)

	require.Len(t, client.Prompts, 1)
	assert.Equal(t, 1, strings.Count(client.Prompts[0], "Table "))
}

func TestQuery_OptionsModeApplies(t *testing.T) {
	client := llm.NewMockClient()
	client.CompleteFunc = sqlCompletion(topDistributorsSQL)
	p := newPipeline(t, &scriptedWarehouse{}, client)
	ctx := context.Background()

	// Research mode set through options bypasses the cache like the
	// top-level field does.
	_, err := p.svc.Query(ctx, QueryRequest{
		Question: "top distributors",
		Options:  &QueryOptions{Mode: models.ModeResearch},
	})
	require.NoError(t, err)
	_, err = p.svc.Query(ctx, QueryRequest{
		Question: "top distributors",
		Options:  &QueryOptions{Mode: models.ModeResearch},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, client.CompleteCalls)
}

func TestQuery_CacheHitSkipsSecondGeneration(t *testing.T) {
	client := llm.NewMockClient()
	client.CompleteFunc = sqlCompletion(topDistributorsSQL)
	p := newPipeline(t, &scriptedWarehouse{}, client)
	ctx := context.Background()

	first, err := p.svc.Query(ctx, QueryRequest{Question: "Top distributors by revenue"})
	require.NoError(t, err)
	second, err := p.svc.Query(ctx, QueryRequest{Question: "top distributors   by revenue"})
	require.NoError(t, err)

	assert.Equal(t, 1, client.CompleteCalls)
	assert.Equal(t, first.SQL, second.SQL)
	assert.True(t, second.FromCache)
	// Cached SQL still dry-runs and executes.
	assert.Equal(t, 2, p.warehouse.executeCalls)
}
