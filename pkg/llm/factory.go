package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/meridianmed/insight-engine/pkg/config"
)

// NewFromConfig creates the completion client named by the configuration.
func NewFromConfig(cfg *config.LLMConfig, logger *zap.Logger) (Client, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(&Config{
			Endpoint: cfg.Endpoint,
			Model:    cfg.Model,
			APIKey:   cfg.APIKey,
		}, logger)
	case "anthropic":
		return NewAnthropicClient(&Config{
			Model:  cfg.Model,
			APIKey: cfg.APIKey,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

// NewEmbeddingFromConfig creates the client used for embedding calls. This
// is always the OpenAI-compatible client; the Anthropic provider has no
// embeddings endpoint.
func NewEmbeddingFromConfig(cfg *config.EmbeddingConfig, apiKey string, logger *zap.Logger) (Client, error) {
	return NewOpenAIClient(&Config{
		Endpoint: cfg.Endpoint,
		Model:    cfg.Model,
		APIKey:   apiKey,
	}, logger)
}
