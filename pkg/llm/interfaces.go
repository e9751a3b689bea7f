// Package llm provides LLM client functionality for prompt-driven enrichment.
// The engine treats providers as opaque text-in/JSON-out services; every
// caller carries a deterministic fallback for when no client is configured.
package llm

import "context"

// Client is the interface for LLM completions.
// Use this interface for dependency injection to enable mocking in tests.
type Client interface {
	// GenerateResponse generates a chat completion for the prompt.
	GenerateResponse(ctx context.Context, prompt string, systemMessage string) (string, error)

	// Model returns the configured model name.
	Model() string
}

// Ensure implementations satisfy Client at compile time.
var (
	_ Client = (*OpenAIClient)(nil)
	_ Client = (*AnthropicClient)(nil)
	_ Client = (*MockClient)(nil)
)
