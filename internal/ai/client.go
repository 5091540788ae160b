package ai

import (
	"context"
	"errors"
	"strings"
)

// Client provides embedding, answer synthesis and structured extraction.
type Client interface {
	Embed(text string) ([]float32, error)
	Answer(ctx context.Context, question string, contexts []string) (string, error)
	Extract(ctx context.Context, contractText string) (string, error)
	Dim() int
}

// Provider is enumeration of supported AI providers
type Provider string

const (
	ProviderOpenAI   Provider = "openai"
	ProviderVertexAI Provider = "vertexai"
	ProviderStub     Provider = "stub"
)

// ClientConfig holds configuration for AI clients
type ClientConfig struct {
	APIKey      string
	EmbedModel  string
	AnswerModel string
	Dim         int
	ProjectID   string
	Provider    Provider
	Location    string
}

// NewClient creates a new AI client based on configuration
func NewClient(config *ClientConfig) (Client, error) {
	if config == nil {
		return nil, errors.New("client config is required")
	}

	ctx := context.Background()
	switch config.Provider {
	case ProviderOpenAI:
		return NewOpenAIClient(config), nil
	case ProviderVertexAI:
		return NewVertexAIClient(ctx, config)
	case ProviderStub:
		return NewStubClient(config.Dim), nil
	default:
		return nil, errors.New("unsupported provider: " + string(config.Provider))
	}
}

// StubClient is a stub implementation of the Client interface for testing
// and for running the service without any model provider. Extraction is not
// supported so callers fall back to rule-based extraction.
type StubClient struct {
	dim int
}

// NewStubClient creates a new StubClient
func NewStubClient(dim int) *StubClient {
	return &StubClient{dim: dim}
}

// Embed returns a zero vector of the configured dimensionality.
func (s *StubClient) Embed(text string) ([]float32, error) {
	return make([]float32, s.dim), nil
}

// Answer returns the first context verbatim as a degraded answer.
func (s *StubClient) Answer(ctx context.Context, question string, contexts []string) (string, error) {
	if len(contexts) == 0 {
		return "I cannot find this information in the provided contracts.", nil
	}
	first := strings.TrimSpace(contexts[0])
	if len(first) > 240 {
		first = first[:240]
	}
	return first, nil
}

// Extract is unsupported by the stub.
func (s *StubClient) Extract(ctx context.Context, contractText string) (string, error) {
	return "", errors.New("extraction not supported by stub provider")
}

// Dim returns the embedding dimension
func (s *StubClient) Dim() int {
	return s.dim
}
