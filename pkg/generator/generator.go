// Package generator turns composed prompts into validated SQL text via
// the LLM, with a content-addressed cache in front of the provider call.
package generator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/meridianmed/insight-engine/pkg/apperrors"
	"github.com/meridianmed/insight-engine/pkg/llm"
	"github.com/meridianmed/insight-engine/pkg/prompts"
	sqlutil "github.com/meridianmed/insight-engine/pkg/sql"
)

// promptVersion participates in the cache key so a prompt change never
// serves SQL generated under the old prompt. Bump it whenever the
// composer's block content changes materially.
const promptVersion = "v3"

const generationTemperature = 0.0

// Result is one finished generation.
type Result struct {
	SQL         string   `json:"sql"`
	Explanation string   `json:"explanation"`
	TablesUsed  []string `json:"tables_used"`
	FromCache   bool     `json:"-"`
}

// Generator calls the LLM and caches successful generations.
type Generator struct {
	client   llm.Client
	composer *prompts.Composer
	cache    cache
	dataset  string
	logger   *zap.Logger
}

// New builds a Generator. redisClient may be nil; the cache then lives
// in process memory.
func New(client llm.Client, composer *prompts.Composer, redisClient *redis.Client, dataset string, ttl time.Duration, logger *zap.Logger) *Generator {
	log := logger.Named("generator")
	var c cache
	if redisClient != nil {
		c = newRedisCache(redisClient, ttl, log)
	} else {
		c = newMemoryCache(ttl)
	}
	return &Generator{
		client:   client,
		composer: composer,
		cache:    c,
		dataset:  dataset,
		logger:   log,
	}
}

// Generate produces SQL for the input. Cache lookups only happen for
// context-free, feedback-free inputs when skipCache is false; a repair
// attempt or a conversational follow-up is never cacheable.
func (g *Generator) Generate(ctx context.Context, in prompts.Input, skipCache bool) (*Result, error) {
	cacheable := !skipCache && len(in.Context) == 0 && in.Feedback == ""
	key := g.cacheKey(in.Question)

	if cacheable {
		if cached, ok := g.cache.Get(ctx, key); ok {
			cached.FromCache = true
			g.logger.Debug("sql cache hit", zap.String("key", key))
			return cached, nil
		}
	}

	prompt := g.composer.Compose(in)
	completion, err := g.client.Complete(ctx, prompt, g.composer.SystemMessage(), generationTemperature)
	if err != nil {
		return nil, err
	}

	sql := llm.ExtractSQL(completion.Content)
	if sql == "" {
		return nil, apperrors.New(apperrors.KindValidation, "no SQL produced for the question")
	}

	result := &Result{
		SQL:         sql,
		Explanation: llm.ExtractExplanation(completion.Content),
		TablesUsed:  sqlutil.ExtractTables(sql),
	}

	g.logger.Info("sql generated",
		zap.String("model", g.client.Model()),
		zap.Int("prompt_tokens", completion.PromptTokens),
		zap.Int("completion_tokens", completion.CompletionTokens),
		zap.Strings("tables_used", result.TablesUsed))

	if cacheable {
		g.cache.Set(ctx, key, result)
	}
	return result, nil
}

// cacheKey hashes the normalized question with the dataset and prompt
// version, so the same question re-asked within the TTL returns
// byte-identical SQL.
func (g *Generator) cacheKey(question string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(question))), " ")
	sum := sha256.Sum256([]byte(normalized + "|" + g.dataset + "|" + promptVersion))
	return "sqlgen:" + hex.EncodeToString(sum[:])
}
