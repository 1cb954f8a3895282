package openai

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/harunnryd/jarvis/pkg/errorsx"
	"github.com/harunnryd/jarvis/pkg/llm"
	"github.com/harunnryd/jarvis/pkg/logging"
	"github.com/openai/openai-go/v3"
)

// Completer answers prompts with the chat completions API.
type Completer struct {
	cfg    Config
	client openai.Client
	logger *slog.Logger
}

func NewCompleter(cfg Config) *Completer {
	if cfg.Model == "" {
		cfg.Model = string(openai.ChatModelGPT4oMini)
	}
	return &Completer{
		cfg:    cfg,
		client: newClient(cfg),
		logger: logging.NewComponentLogger(cfg.Logger, "openai_llm"),
	}
}

func (c *Completer) Name() string { return "openai" }

func (c *Completer) Complete(ctx context.Context, system, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", errors.New("empty prompt")
	}
	var msgs []openai.ChatCompletionMessageParamUnion
	if system != "" {
		msgs = append(msgs, openai.SystemMessage(system))
	}
	msgs = append(msgs, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Messages: msgs,
		Model:    openai.ChatModel(c.cfg.Model),
	}
	if c.cfg.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(c.cfg.MaxTokens))
	}
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", errorsx.Wrap(classify(err), errorsx.ReasonLLMGenerate)
	}
	if len(resp.Choices) == 0 {
		return "", errorsx.New(errorsx.ReasonLLMGenerate, "openai returned no choices")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	c.logger.Debug("completion_done", "model", c.cfg.Model, "chars", len(text))
	return text, nil
}

var _ llm.Completer = (*Completer)(nil)
