package llm

import (
	"context"
	"fmt"
	"strings"
)

// NewProvider builds a provider by name. The model name may be empty, in
// which case each provider falls back to its default.
func NewProvider(ctx context.Context, providerName, apiKey, modelName string) (Provider, error) {
	switch providerName {
	case "gemini":
		return NewGeminiProvider(ctx, apiKey, modelName)
	case "openai":
		return NewOpenAIProvider(apiKey, modelName), nil
	case "anthropic":
		return NewAnthropicProvider(apiKey, modelName), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", providerName)
	}
}

// ProviderForModel guesses the provider from a model name, so the CLI
// `--model` flag alone is enough to pick a backend.
func ProviderForModel(modelName string) string {
	name := strings.ToLower(modelName)
	switch {
	case strings.HasPrefix(name, "claude-"):
		return "anthropic"
	case strings.HasPrefix(name, "gemini-"):
		return "gemini"
	default:
		return "openai"
	}
}
