package llm

import "context"

// MockClient is a configurable mock for testing. Set the function fields to
// control behavior; unset fields return zero values.
type MockClient struct {
	CompleteFunc         func(ctx context.Context, prompt, systemMessage string, temperature float64) (*CompletionResult, error)
	CreateEmbeddingFunc  func(ctx context.Context, input string, model string) ([]float32, error)
	CreateEmbeddingsFunc func(ctx context.Context, inputs []string, model string) ([][]float32, error)

	// ModelName is returned by Model. Defaults to "mock-model".
	ModelName string

	// Call tracking for verification.
	CompleteCalls         int
	CreateEmbeddingCalls  int
	CreateEmbeddingsCalls int

	// Prompts records each prompt passed to Complete, for assertions on
	// prompt content.
	Prompts []string
}

// NewMockClient creates a mock with defaults.
func NewMockClient() *MockClient {
	return &MockClient{ModelName: "mock-model"}
}

// Complete implements Client.
func (m *MockClient) Complete(ctx context.Context, prompt, systemMessage string, temperature float64) (*CompletionResult, error) {
	m.CompleteCalls++
	m.Prompts = append(m.Prompts, prompt)
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, prompt, systemMessage, temperature)
	}
	return &CompletionResult{}, nil
}

// CreateEmbedding implements Client.
func (m *MockClient) CreateEmbedding(ctx context.Context, input string, model string) ([]float32, error) {
	m.CreateEmbeddingCalls++
	if m.CreateEmbeddingFunc != nil {
		return m.CreateEmbeddingFunc(ctx, input, model)
	}
	return nil, nil
}

// CreateEmbeddings implements Client.
func (m *MockClient) CreateEmbeddings(ctx context.Context, inputs []string, model string) ([][]float32, error) {
	m.CreateEmbeddingsCalls++
	if m.CreateEmbeddingsFunc != nil {
		return m.CreateEmbeddingsFunc(ctx, inputs, model)
	}
	return nil, nil
}

// Model implements Client.
func (m *MockClient) Model() string {
	if m.ModelName == "" {
		return "mock-model"
	}
	return m.ModelName
}
