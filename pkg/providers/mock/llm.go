package mock

import (
	"context"
	"sync"

	"github.com/harunnryd/jarvis/pkg/llm"
)

// Completer returns a fixed answer, or the result of Respond when set.
type Completer struct {
	Response string
	Err      error
	Respond  func(system, prompt string) (string, error)

	mu      sync.Mutex
	prompts []string
}

func NewCompleter(response string) *Completer {
	if response == "" {
		response = "mock response"
	}
	return &Completer{Response: response}
}

func (c *Completer) Name() string { return "mock" }

func (c *Completer) Complete(_ context.Context, system, prompt string) (string, error) {
	c.mu.Lock()
	c.prompts = append(c.prompts, prompt)
	c.mu.Unlock()
	if c.Respond != nil {
		return c.Respond(system, prompt)
	}
	return c.Response, c.Err
}

// Prompts returns every prompt seen so far.
func (c *Completer) Prompts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.prompts...)
}

var _ llm.Completer = (*Completer)(nil)
