package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridianmed/insight-engine/pkg/apperrors"
	"github.com/meridianmed/insight-engine/pkg/catalog"
	"github.com/meridianmed/insight-engine/pkg/config"
	"github.com/meridianmed/insight-engine/pkg/embedding"
	"github.com/meridianmed/insight-engine/pkg/format"
	"github.com/meridianmed/insight-engine/pkg/generator"
	"github.com/meridianmed/insight-engine/pkg/models"
	"github.com/meridianmed/insight-engine/pkg/prompts"
	"github.com/meridianmed/insight-engine/pkg/querylog"
	"github.com/meridianmed/insight-engine/pkg/registry"
	"github.com/meridianmed/insight-engine/pkg/repositories"
	sqlutil "github.com/meridianmed/insight-engine/pkg/sql"
	"github.com/meridianmed/insight-engine/pkg/vecindex"
	"github.com/meridianmed/insight-engine/pkg/warehouse"

	exampleslib "github.com/meridianmed/insight-engine/pkg/examples"
)

// Per-stage deadlines inside the overall request budget.
const (
	embedTimeout    = 5 * time.Second
	generateTimeout = 60 * time.Second
	validateTimeout = 10 * time.Second
	executeTimeout  = 120 * time.Second
)

// researchMaxTables widens schema retrieval in research mode.
const researchMaxTables = 10

// QueryRequest is one question entering the pipeline.
type QueryRequest struct {
	Question       string           `json:"question"`
	Dataset        string           `json:"dataset,omitempty"`
	ConversationID string           `json:"conversation_id,omitempty"`
	UserID         string           `json:"user_id,omitempty"`
	Mode           models.QueryMode `json:"mode,omitempty"`
	Options        *QueryOptions    `json:"options,omitempty"`
}

// QueryOptions tunes a single request. A nil Execute means true; false
// stops the pipeline after validation so callers get the SQL and cost
// estimate without running anything.
type QueryOptions struct {
	MaxTables int              `json:"max_tables,omitempty"`
	Execute   *bool            `json:"execute,omitempty"`
	Mode      models.QueryMode `json:"mode,omitempty"`
}

func (r *QueryRequest) shouldExecute() bool {
	return r.Options == nil || r.Options.Execute == nil || *r.Options.Execute
}

// QueryResponse is the pipeline's answer, successful or not.
type QueryResponse struct {
	Success        bool                   `json:"success"`
	Dataset        string                 `json:"dataset,omitempty"`
	ExecutionID    string                 `json:"execution_id"`
	ConversationID string                 `json:"conversation_id,omitempty"`
	SQL            string                 `json:"sql,omitempty"`
	Explanation    string                 `json:"explanation,omitempty"`
	Columns        []string               `json:"columns,omitempty"`
	Rows           []map[string]any       `json:"rows,omitempty"`
	RowCount       int                    `json:"row_count"`
	BytesProcessed int64                  `json:"bytes_processed,omitempty"`
	CostEstimate   float64                `json:"cost_estimate,omitempty"`
	TablesUsed     []string               `json:"tables_used,omitempty"`
	FromCache      bool                   `json:"from_cache,omitempty"`
	RetryCount     int                    `json:"retry_count,omitempty"`
	Resolution     *apperrors.Resolution  `json:"resolution,omitempty"`
	Metadata       map[string]any         `json:"metadata,omitempty"`
}

// QueryService answers natural-language questions with executed SQL.
type QueryService interface {
	Query(ctx context.Context, req QueryRequest) (*QueryResponse, error)
}

type queryService struct {
	catalog       *catalog.Catalog
	embedder      embedding.Provider
	index         *vecindex.Index
	registry      *registry.Registry
	examples      *exampleslib.Library
	composer      *prompts.Composer
	generator     *generator.Generator
	warehouse     warehouse.Warehouse
	errors        *apperrors.Handler
	conversations ConversationService
	history       repositories.QueryHistoryRepository
	log           *querylog.Ring
	limits        config.LimitsConfig
	dataset       string
	logger        *zap.Logger

	// semaphore bounds in-flight pipelines at the concurrency ceiling.
	semaphore chan struct{}
	sleep     func(ctx context.Context, d time.Duration) error
}

var _ QueryService = (*queryService)(nil)

// QueryServiceDeps collects the pipeline's collaborators.
type QueryServiceDeps struct {
	Catalog       *catalog.Catalog
	Embedder      embedding.Provider
	Index         *vecindex.Index
	Registry      *registry.Registry
	Examples      *exampleslib.Library
	Composer      *prompts.Composer
	Generator     *generator.Generator
	Warehouse     warehouse.Warehouse
	Errors        *apperrors.Handler
	Conversations ConversationService
	History       repositories.QueryHistoryRepository
	Log           *querylog.Ring
	Limits        config.LimitsConfig
	Dataset       string
	Logger        *zap.Logger
}

// NewQueryService wires the pipeline.
func NewQueryService(deps QueryServiceDeps) QueryService {
	ceiling := deps.Limits.ConcurrencyCeiling
	if ceiling <= 0 {
		ceiling = 16
	}
	return &queryService{
		catalog:       deps.Catalog,
		embedder:      deps.Embedder,
		index:         deps.Index,
		registry:      deps.Registry,
		examples:      deps.Examples,
		composer:      deps.Composer,
		generator:     deps.Generator,
		warehouse:     deps.Warehouse,
		errors:        deps.Errors,
		conversations: deps.Conversations,
		history:       deps.History,
		log:           deps.Log,
		limits:        deps.Limits,
		dataset:       deps.Dataset,
		logger:        deps.Logger.Named("query"),
		semaphore:     make(chan struct{}, ceiling),
		sleep:         sleepCtx,
	}
}

// Query runs the full pipeline for one question. Transient failures are
// retried inside the request budget per the error handler's policy; the
// final resolution rides back on the response instead of an error so the
// transport layer can render suggestions.
func (s *queryService) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, apperrors.New(apperrors.KindValidation, "question must not be empty")
	}
	if req.Mode == "" && req.Options != nil {
		req.Mode = req.Options.Mode
	}
	if req.Mode == "" {
		req.Mode = models.ModeChat
	}
	if !req.Mode.Valid() {
		return nil, apperrors.New(apperrors.KindValidation,
			fmt.Sprintf("unknown mode %q", req.Mode))
	}
	// One warehouse connection serves one dataset; anything else is unknown.
	if req.Dataset != "" && !strings.EqualFold(req.Dataset, s.dataset) {
		return nil, apperrors.New(apperrors.KindNotFound,
			fmt.Sprintf("dataset %q not found", req.Dataset))
	}

	select {
	case s.semaphore <- struct{}{}:
		defer func() { <-s.semaphore }()
	case <-ctx.Done():
		return nil, apperrors.Classify(ctx.Err())
	}

	budget := time.Duration(s.limits.RequestBudgetSeconds) * time.Second
	if budget <= 0 {
		budget = 180 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	rec := models.QueryExecutionRecord{
		ExecutionID:    uuid.NewString(),
		ConversationID: req.ConversationID,
		Question:       req.Question,
		Mode:           req.Mode,
		Status:         models.StatusPending,
		StartedAt:      time.Now().UTC(),
		Metadata:       map[string]any{},
	}

	contextWindow := s.loadContext(ctx, req)

	if req.ConversationID != "" && s.conversations != nil {
		if _, err := s.conversations.AppendUserMessage(ctx, req.ConversationID, req.UserID, req.Question); err != nil {
			s.logger.Warn("conversation append failed, continuing",
				zap.String("conversation_id", req.ConversationID), zap.Error(err))
		}
	}

	tables, err := s.retrieveTables(ctx, req)
	if err != nil {
		return s.finish(ctx, &rec, nil, err, 0)
	}

	feedback := ""
	retryCount := 0
	for {
		resp, err := s.attempt(ctx, req, &rec, tables, contextWindow, feedback, retryCount)
		if err == nil {
			return s.finish(ctx, &rec, resp, nil, retryCount)
		}

		classified := apperrors.Classify(err)
		resolution := s.errors.Handle(classified,
			apperrors.NewContext(classified, req.Question, retryCount), retryCount)
		if !resolution.Retryable || ctx.Err() != nil {
			return s.finishWithResolution(ctx, &rec, classified, resolution, retryCount)
		}

		if resolution.BackoffSeconds > 0 {
			if err := s.sleep(ctx, time.Duration(resolution.BackoffSeconds)*time.Second); err != nil {
				return s.finishWithResolution(ctx, &rec, classified, resolution, retryCount)
			}
		}
		feedback = retryFeedback(classified, resolution)
		retryCount++
	}
}

// attempt runs generation through execution once.
func (s *queryService) attempt(ctx context.Context, req QueryRequest, rec *models.QueryExecutionRecord, tables []*models.TableDescriptor, contextWindow []models.Message, feedback string, retryCount int) (*QueryResponse, error) {
	in := prompts.Input{
		Question: req.Question,
		Tables:   tables,
		Examples: s.examples.SelectForDomains(req.Question, s.questionDomains(req.Question), s.maxExamples()),
		Context:  contextWindow,
		Feedback: feedback,
	}

	genCtx, cancel := context.WithTimeout(ctx, generateTimeout)
	skipCache := req.Mode == models.ModeResearch || retryCount > 0
	gen, err := s.generator.Generate(genCtx, in, skipCache)
	cancel()
	if err != nil {
		return nil, wrapStage(err, "generate")
	}

	rec.SQL = gen.SQL
	rec.TablesUsed = gen.TablesUsed

	validated := sqlutil.ValidateAndNormalize(gen.SQL)
	if validated.Error != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, validated.Error.Error(), validated.Error).WithStage("validate")
	}
	sql := validated.NormalizedSQL

	if hits := sqlutil.CheckLiterals(sql); len(hits) > 0 {
		return nil, apperrors.New(apperrors.KindValidation,
			fmt.Sprintf("string literal %q failed injection screening", hits[0].Value)).WithStage("validate")
	}

	dryCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	stats, err := s.warehouse.DryRun(dryCtx, sql)
	cancel()
	if err != nil {
		return nil, wrapStage(err, "validate")
	}
	rec.BytesProcessed = stats.BytesProcessed
	rec.CostEstimate = stats.EstimatedCost

	if s.limits.ByteScanLimit > 0 && stats.BytesProcessed > s.limits.ByteScanLimit {
		appErr := apperrors.New(apperrors.KindValidation,
			fmt.Sprintf("query would scan %d bytes, over the %d byte limit",
				stats.BytesProcessed, s.limits.ByteScanLimit)).WithStage("validate")
		appErr.BytesProcessed = stats.BytesProcessed
		return nil, appErr
	}

	if !req.shouldExecute() {
		// Validation-only request: the SQL passed every check, so hand it
		// back with the cost estimate and stop short of the warehouse.
		return &QueryResponse{
			ExecutionID:    rec.ExecutionID,
			ConversationID: req.ConversationID,
			SQL:            sql,
			Explanation:    gen.Explanation,
			BytesProcessed: rec.BytesProcessed,
			CostEstimate:   rec.CostEstimate,
			TablesUsed:     gen.TablesUsed,
			FromCache:      gen.FromCache,
		}, nil
	}

	rec.Status = models.StatusExecuting
	execCtx, cancel := context.WithTimeout(ctx, executeTimeout)
	result, err := s.warehouse.Execute(execCtx, sql, s.limits.RowCap)
	cancel()
	if err != nil {
		return nil, wrapStage(err, "execute")
	}

	format.ApplyToRows(result.Columns, result.Rows)
	if result.BytesProcessed > 0 {
		rec.BytesProcessed = result.BytesProcessed
	}

	return &QueryResponse{
		ExecutionID:    rec.ExecutionID,
		ConversationID: req.ConversationID,
		SQL:            sql,
		Explanation:    gen.Explanation,
		Columns:        result.Columns,
		Rows:           result.Rows,
		RowCount:       result.RowCount,
		BytesProcessed: rec.BytesProcessed,
		CostEstimate:   rec.CostEstimate,
		TablesUsed:     gen.TablesUsed,
		FromCache:      gen.FromCache,
	}, nil
}

// retrieveTables embeds the question, searches the vector index, expands
// one hop through the join graph, and describes the winners.
func (s *queryService) retrieveTables(ctx context.Context, req QueryRequest) ([]*models.TableDescriptor, error) {
	maxTables := s.limits.MaxTables
	if maxTables <= 0 {
		maxTables = 5
	}
	if req.Mode == models.ModeResearch {
		maxTables = researchMaxTables
	}
	if req.Options != nil && req.Options.MaxTables > 0 {
		maxTables = req.Options.MaxTables
	}

	embedCtx, cancel := context.WithTimeout(ctx, embedTimeout)
	vector, err := s.embedder.Embed(embedCtx, req.Question)
	cancel()
	if err != nil {
		return nil, wrapStage(err, "embed")
	}

	results := s.index.Search(vector, maxTables)
	if len(results) == 0 {
		return nil, apperrors.New(apperrors.KindNotFound,
			"no tables indexed; the schema catalog may still be warming up").WithStage("search")
	}

	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, r.Descriptor.TableName)
	}
	expanded := s.registry.Expand(names)

	// Retrieved tables keep their ranking; join-graph additions follow in
	// name order, and the total stays within the table budget.
	ordered := names
	extra := make([]string, 0, len(expanded))
	for _, name := range expanded {
		if !containsFold(ordered, name) {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	ordered = append(ordered, extra...)
	if len(ordered) > maxTables {
		ordered = ordered[:maxTables]
	}

	tables := make([]*models.TableDescriptor, 0, len(ordered))
	for _, name := range ordered {
		desc, err := s.catalog.Describe(name)
		if err != nil {
			s.logger.Warn("retrieved table missing from catalog",
				zap.String("table", name), zap.Error(err))
			continue
		}
		tables = append(tables, desc)
	}
	if len(tables) == 0 {
		return nil, apperrors.New(apperrors.KindNotFound,
			"none of the retrieved tables exist in the catalog").WithStage("search")
	}
	return tables, nil
}

func (s *queryService) loadContext(ctx context.Context, req QueryRequest) []models.Message {
	if req.Mode == models.ModeDirect || req.ConversationID == "" || s.conversations == nil {
		return nil
	}
	window, err := s.conversations.ContextWindow(ctx, req.ConversationID)
	if err != nil {
		s.logger.Warn("context window unavailable, answering without it",
			zap.String("conversation_id", req.ConversationID), zap.Error(err))
		return nil
	}
	return window
}

// finish closes out a successful execution: the record lands in the ring,
// the durable history, and the conversation.
func (s *queryService) finish(ctx context.Context, rec *models.QueryExecutionRecord, resp *QueryResponse, err error, retryCount int) (*QueryResponse, error) {
	rec.EndedAt = time.Now().UTC()
	rec.Metadata["retry_count"] = retryCount

	if err != nil {
		classified := apperrors.Classify(err)
		resolution := s.errors.Handle(classified,
			apperrors.NewContext(classified, rec.Question, retryCount), retryCount)
		return s.finishWithResolution(ctx, rec, classified, resolution, retryCount)
	}

	rec.Status = models.StatusCompleted
	rec.RowCount = resp.RowCount
	resp.Success = true
	resp.Dataset = s.dataset
	resp.RetryCount = retryCount
	resp.Metadata = rec.Metadata
	s.persist(ctx, rec)

	if rec.ConversationID != "" && s.conversations != nil {
		msg := models.Message{
			Content: resp.Explanation,
			SQL:     resp.SQL,
			Results: resp.Rows,
			Metadata: map[string]any{
				"execution_id": rec.ExecutionID,
				"row_count":    resp.RowCount,
			},
		}
		if _, err := s.conversations.AppendAssistantMessage(ctx, rec.ConversationID, "", msg); err != nil {
			s.logger.Warn("assistant message append failed",
				zap.String("conversation_id", rec.ConversationID), zap.Error(err))
		}
	}

	s.logger.Info("query completed",
		zap.String("execution_id", rec.ExecutionID),
		zap.String("mode", string(rec.Mode)),
		zap.Int("row_count", resp.RowCount),
		zap.Int("retry_count", retryCount),
		zap.Bool("from_cache", resp.FromCache),
		zap.Int64("bytes_processed", rec.BytesProcessed))
	return resp, nil
}

// finishWithResolution records a terminal failure and returns the
// resolution to the caller instead of a bare error.
func (s *queryService) finishWithResolution(ctx context.Context, rec *models.QueryExecutionRecord, err *apperrors.Error, resolution apperrors.Resolution, retryCount int) (*QueryResponse, error) {
	rec.EndedAt = time.Now().UTC()
	rec.Status = models.StatusFailed
	rec.Error = err.Message
	rec.Metadata["retry_count"] = retryCount
	rec.Metadata["error_kind"] = string(err.Kind)
	s.persist(ctx, rec)

	if rec.ConversationID != "" && s.conversations != nil {
		msg := models.Message{
			Content: resolution.UserMessage,
			SQL:     rec.SQL,
			Error:   err.Message,
		}
		if _, appendErr := s.conversations.AppendAssistantMessage(ctx, rec.ConversationID, "", msg); appendErr != nil {
			s.logger.Warn("assistant message append failed",
				zap.String("conversation_id", rec.ConversationID), zap.Error(appendErr))
		}
	}

	resp := &QueryResponse{
		Success:        false,
		Dataset:        s.dataset,
		ExecutionID:    rec.ExecutionID,
		ConversationID: rec.ConversationID,
		SQL:            rec.SQL,
		TablesUsed:     rec.TablesUsed,
		BytesProcessed: rec.BytesProcessed,
		RetryCount:     retryCount,
		Resolution:     &resolution,
		Metadata:       rec.Metadata,
	}
	return resp, err
}

func (s *queryService) persist(ctx context.Context, rec *models.QueryExecutionRecord) {
	s.log.Append(*rec)
	if s.history == nil {
		return
	}
	if err := s.history.Save(ctx, rec); err != nil {
		s.logger.Warn("query history save failed",
			zap.String("execution_id", rec.ExecutionID), zap.Error(err))
	}
}

// questionDomains returns the registry domains the question touches, as
// plain strings for the example library.
func (s *queryService) questionDomains(question string) []string {
	domains := s.registry.DomainsForQuestion(question)
	out := make([]string, len(domains))
	for i, d := range domains {
		out[i] = string(d)
	}
	return out
}

func (s *queryService) maxExamples() int {
	if s.limits.MaxExamples > 0 {
		return s.limits.MaxExamples
	}
	return exampleslib.DefaultMaxExamples
}

// retryFeedback builds the repair instruction for the next attempt.
func retryFeedback(err *apperrors.Error, resolution apperrors.Resolution) string {
	if resolution.FeedbackForPrompt != "" {
		return fmt.Sprintf("The database rejected the SQL with: %s. Correct the statement.",
			resolution.FeedbackForPrompt)
	}
	if err.Kind == apperrors.KindTimeout {
		return "The query timed out. Regenerate it with a tighter filter or an explicit LIMIT."
	}
	return ""
}

func wrapStage(err error, stage string) error {
	return apperrors.Classify(err).WithStage(stage)
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
