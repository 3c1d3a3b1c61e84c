package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

// AnthropicClient generates completions through the Anthropic Messages API.
// Anthropic has no embeddings endpoint, so embedding calls fail; wire the
// embedding service to the OpenAI provider or the hash fallback instead.
type AnthropicClient struct {
	client *anthropic.Client
	model  string
	logger *zap.Logger
}

// NewAnthropicClient creates an Anthropic messages client.
func NewAnthropicClient(cfg *Config, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	return &AnthropicClient{
		client: anthropic.NewClient(cfg.APIKey),
		model:  cfg.Model,
		logger: logger.Named("llm"),
	}, nil
}

// Complete generates a single message completion.
func (c *AnthropicClient) Complete(ctx context.Context, prompt, systemMessage string, temperature float64) (*CompletionResult, error) {
	c.logger.Debug("LLM request",
		zap.String("model", c.model),
		zap.Int("prompt_len", len(prompt)),
		zap.Float64("temperature", temperature))

	start := time.Now()
	temp := float32(temperature)

	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(c.model),
		System:      systemMessage,
		MaxTokens:   4096,
		Temperature: &temp,
		Messages: []anthropic.Message{
			anthropic.NewUserTextMessage(prompt),
		},
	})
	if err != nil {
		c.logger.Error("LLM request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, ClassifyProviderError(err)
	}

	content := resp.GetFirstContentText()
	if content == "" {
		return nil, fmt.Errorf("no content in response")
	}

	c.logger.Info("LLM request completed",
		zap.Int("prompt_tokens", resp.Usage.InputTokens),
		zap.Int("completion_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))

	return &CompletionResult{
		Content:          content,
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
		TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}, nil
}

// CreateEmbedding is unsupported on Anthropic.
func (c *AnthropicClient) CreateEmbedding(ctx context.Context, input string, model string) ([]float32, error) {
	return nil, fmt.Errorf("anthropic provider does not support embeddings")
}

// CreateEmbeddings is unsupported on Anthropic.
func (c *AnthropicClient) CreateEmbeddings(ctx context.Context, inputs []string, model string) ([][]float32, error) {
	return nil, fmt.Errorf("anthropic provider does not support embeddings")
}

// Model returns the configured model name.
func (c *AnthropicClient) Model() string { return c.model }
