package llm

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// NewClient creates an LLM client for the given provider name.
// Supported providers: "openai" (any OpenAI-compatible endpoint), "anthropic".
func NewClient(provider string, cfg *Config, logger *zap.Logger) (Client, error) {
	switch strings.ToLower(provider) {
	case "openai", "":
		return NewOpenAIClient(cfg, logger)
	case "anthropic":
		return NewAnthropicClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
}
