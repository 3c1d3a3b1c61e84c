// Package llm provides provider-neutral access to chat-completion and
// embedding endpoints.
package llm

import "context"

// CompletionResult is the content and usage of one chat completion.
type CompletionResult struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Client is the capability the rest of the engine depends on. Use this
// interface for dependency injection so tests can substitute MockClient.
type Client interface {
	// Complete generates a single chat completion.
	Complete(ctx context.Context, prompt, systemMessage string, temperature float64) (*CompletionResult, error)

	// CreateEmbedding generates an embedding vector for the input text.
	CreateEmbedding(ctx context.Context, input string, model string) ([]float32, error)

	// CreateEmbeddings generates embeddings for multiple inputs in one call.
	CreateEmbeddings(ctx context.Context, inputs []string, model string) ([][]float32, error)

	// Model returns the configured model name.
	Model() string
}

// Compile-time interface checks.
var (
	_ Client = (*OpenAIClient)(nil)
	_ Client = (*AnthropicClient)(nil)
	_ Client = (*MockClient)(nil)
)
