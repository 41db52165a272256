package llm

import "context"

// Message is one chat turn sent to a provider.
type Message struct {
	Role    string // "user", "model", "system"
	Content string
}

// Provider abstracts the language-model backend. The pipeline only needs
// plain completion and model discovery; tool orchestration stays with the
// caller.
type Provider interface {
	Generate(ctx context.Context, messages []Message) (string, error)
	ListModels(ctx context.Context) ([]string, error)
}
