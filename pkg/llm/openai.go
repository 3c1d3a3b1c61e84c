package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIClient talks to any OpenAI-compatible endpoint.
type OpenAIClient struct {
	client   *openai.Client
	endpoint string
	model    string
	logger   *zap.Logger
}

// Config holds settings for creating a provider client.
type Config struct {
	Endpoint string // base URL, e.g. "https://api.openai.com/v1"
	Model    string
	APIKey   string // optional for local endpoints
}

// NewOpenAIClient creates a client for an OpenAI-compatible endpoint.
func NewOpenAIClient(cfg *Config, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")

	return &OpenAIClient{
		client:   openai.NewClientWithConfig(clientConfig),
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		logger:   logger.Named("llm"),
	}, nil
}

// Complete generates a chat completion.
func (c *OpenAIClient) Complete(ctx context.Context, prompt, systemMessage string, temperature float64) (*CompletionResult, error) {
	c.logger.Debug("LLM request",
		zap.String("model", c.model),
		zap.Int("prompt_len", len(prompt)),
		zap.Float64("temperature", temperature))

	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemMessage},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: float32(temperature),
	})
	if err != nil {
		c.logger.Error("LLM request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, ClassifyProviderError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	c.logger.Info("LLM request completed",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))

	return &CompletionResult{
		Content:          resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}, nil
}

// CreateEmbedding generates an embedding vector for the input text.
func (c *OpenAIClient) CreateEmbedding(ctx context.Context, input string, model string) ([]float32, error) {
	if model == "" {
		model = "text-embedding-3-small"
	}

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(model),
		Input: []string{input},
	})
	if err != nil {
		return nil, ClassifyProviderError(fmt.Errorf("create embedding: %w", err))
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("no embedding in response")
	}

	return resp.Data[0].Embedding, nil
}

// CreateEmbeddings generates embeddings for multiple inputs.
func (c *OpenAIClient) CreateEmbeddings(ctx context.Context, inputs []string, model string) ([][]float32, error) {
	if model == "" {
		model = "text-embedding-3-small"
	}

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(model),
		Input: inputs,
	})
	if err != nil {
		return nil, ClassifyProviderError(fmt.Errorf("create embeddings: %w", err))
	}

	embeddings := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		embeddings[i] = d.Embedding
	}
	return embeddings, nil
}

// Model returns the configured model name.
func (c *OpenAIClient) Model() string { return c.model }
