package llm

import "context"

// Completer produces a single text completion for a prompt.
type Completer interface {
	Name() string
	Complete(ctx context.Context, system, prompt string) (string, error)
}
