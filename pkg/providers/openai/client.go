package openai

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/harunnryd/jarvis/pkg/resilience"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

type Config struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxTokens caps spoken answers.
	MaxTokens int          `mapstructure:"max_tokens"`
	Logger    *slog.Logger `mapstructure:"-"`
}

func newClient(cfg Config) openai.Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}
	return openai.NewClient(opts...)
}

// kindError carries a resilience kind derived from an API status code.
type kindError struct {
	err  error
	kind resilience.ErrorKind
}

func (e kindError) Error() string              { return e.err.Error() }
func (e kindError) Unwrap() error              { return e.err }
func (e kindError) Kind() resilience.ErrorKind { return e.kind }

func classify(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	switch {
	case apiErr.StatusCode == http.StatusTooManyRequests:
		return resilience.RateLimitError{Provider: "openai", Message: apiErr.Error()}
	case apiErr.StatusCode >= 500:
		return kindError{err: err, kind: resilience.KindServer}
	default:
		return kindError{err: err, kind: resilience.KindClient}
	}
}
