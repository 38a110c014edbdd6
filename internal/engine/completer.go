package engine

import "context"

// Completer sends a prompt to a language model and returns the raw text it
// produced. Implementations report transport failures as TRANSPORT_ERROR.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	return f(ctx, prompt, maxTokens, temperature)
}
