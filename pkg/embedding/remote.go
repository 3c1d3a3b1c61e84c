package embedding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/meridianmed/insight-engine/pkg/apperrors"
	"github.com/meridianmed/insight-engine/pkg/llm"
	"github.com/meridianmed/insight-engine/pkg/retry"
)

// modelDimensions maps known embedding models to their vector dimension.
var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// RemoteProvider embeds text through the configured embedding API.
// Transient API failures are retried with backoff; classification decides
// which failures count as transient.
type RemoteProvider struct {
	client llm.Client
	model  string
	dim    int
	retry  *retry.Config
	logger *zap.Logger
}

// NewRemoteProvider creates a provider backed by the embedding endpoint.
// Unknown models default to 1536 dimensions; the index validates every
// stored vector against Dimension() so a mismatch fails loudly at insert.
func NewRemoteProvider(client llm.Client, model string, logger *zap.Logger) *RemoteProvider {
	dim, ok := modelDimensions[model]
	if !ok {
		dim = 1536
	}
	return &RemoteProvider{
		client: client,
		model:  model,
		dim:    dim,
		retry:  retry.DefaultConfig(),
		logger: logger.Named("embedding"),
	}
}

// Embed returns the vector for one text.
func (p *RemoteProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := retry.DoWithResult(ctx, p.retry, func() ([]float32, error) {
		v, err := p.client.CreateEmbedding(ctx, text, p.model)
		if err != nil {
			return nil, apperrors.Classify(err)
		}
		return v, nil
	})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(vec) != p.dim {
		// Keep the advertised dimension honest for the index.
		p.dim = len(vec)
	}
	return vec, nil
}

// EmbedBatch embeds multiple texts in a single API call.
func (p *RemoteProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) == 1 {
		vec, err := p.Embed(ctx, texts[0])
		if err != nil {
			return nil, err
		}
		return [][]float32{vec}, nil
	}

	vecs, err := retry.DoWithResult(ctx, p.retry, func() ([][]float32, error) {
		v, err := p.client.CreateEmbeddings(ctx, texts, p.model)
		if err != nil {
			return nil, apperrors.Classify(err)
		}
		return v, nil
	})
	if err != nil {
		return nil, fmt.Errorf("embed batch: %w", err)
	}
	if len(vecs) > 0 && len(vecs[0]) != p.dim {
		p.dim = len(vecs[0])
	}
	return vecs, nil
}

// Dimension returns the provider's vector dimension.
func (p *RemoteProvider) Dimension() int { return p.dim }
