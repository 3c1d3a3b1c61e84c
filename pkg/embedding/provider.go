// Package embedding maps text to fixed-dimension vectors. Two providers
// implement the same capability: a remote embedding API and a deterministic
// hash fallback for offline operation.
package embedding

import (
	"context"

	"go.uber.org/zap"

	"github.com/meridianmed/insight-engine/pkg/config"
	"github.com/meridianmed/insight-engine/pkg/llm"
)

// Provider is the embedding capability consumers depend on. Embeddings are
// deterministic for identical inputs within one provider session.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// NewFromConfig selects the provider. An explicit "hash" provider or a
// missing API key selects the deterministic fallback; index builds must not
// crash offline, they just retrieve worse.
func NewFromConfig(cfg *config.Config, client llm.Client, logger *zap.Logger) Provider {
	if cfg.Embedding.Provider == "hash" || cfg.EmbeddingAPIKey() == "" {
		logger.Warn("embedding API not configured, using deterministic hash fallback",
			zap.String("provider", cfg.Embedding.Provider))
		return NewHashProvider(DefaultHashDimension)
	}
	return NewRemoteProvider(client, cfg.Embedding.Model, logger)
}

var (
	_ Provider = (*RemoteProvider)(nil)
	_ Provider = (*HashProvider)(nil)
)
