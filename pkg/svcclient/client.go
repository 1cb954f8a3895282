package svcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/harunnryd/jarvis/pkg/errorsx"
	"github.com/harunnryd/jarvis/pkg/logging"
	"github.com/harunnryd/jarvis/pkg/metrics"
	"github.com/harunnryd/jarvis/pkg/resilience"
)

const (
	DefaultTimeout = 10 * time.Second
	maxBody        = 64 << 20
)

// DefaultSingleAttempt lists the features whose requests create something on
// the server, so a timed-out attempt may already have taken effect.
var DefaultSingleAttempt = []string{"schedule", "attendance_store", "attendance_update", "form"}

type Options struct {
	// Endpoints maps a feature name to its URL.
	Endpoints map[string]string
	// Timeout applies to each attempt.
	Timeout time.Duration
	Retry   resilience.RetryPolicy
	// SingleAttempt names features that are never retried. Nil means
	// DefaultSingleAttempt.
	SingleAttempt []string
	// BreakerThreshold and BreakerCooldown configure the per-feature breaker.
	BreakerThreshold int
	BreakerCooldown  time.Duration
	HTTPClient       *http.Client
	Logger           *slog.Logger
	Metrics          *metrics.Metrics
}

// Client calls the local feature services.
type Client struct {
	opts   Options
	http   *http.Client
	logger *slog.Logger

	once map[string]bool

	mu       sync.Mutex
	breakers map[string]*resilience.CircuitBreaker
}

func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = resilience.DefaultRetryPolicy()
	}
	if opts.SingleAttempt == nil {
		opts.SingleAttempt = DefaultSingleAttempt
	}
	once := make(map[string]bool, len(opts.SingleAttempt))
	for _, f := range opts.SingleAttempt {
		once[f] = true
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		opts:     opts,
		http:     hc,
		logger:   logging.NewComponentLogger(opts.Logger, "svcclient"),
		once:     once,
		breakers: make(map[string]*resilience.CircuitBreaker),
	}
}

// Has reports whether feature has an endpoint.
func (c *Client) Has(feature string) bool {
	_, ok := c.opts.Endpoints[feature]
	return ok
}

// Call posts req to the feature's endpoint and decodes the uniform response.
func (c *Client) Call(ctx context.Context, feature string, req Request) (Response, error) {
	url, ok := c.opts.Endpoints[feature]
	if !ok || url == "" {
		return Response{}, fmt.Errorf("%w: %s", ErrUnknownFeature, feature)
	}
	cb := c.breaker(feature)
	if !cb.Allow() {
		c.opts.Metrics.ServiceRequest(feature, "circuit_open")
		return Response{}, fmt.Errorf("%w: %s", ErrCircuitOpen, feature)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("encode %s request: %w", feature, err)
	}

	policy := c.opts.Retry
	if c.once[feature] {
		policy.MaxAttempts = 1
	}
	var out Response
	started := time.Now()
	err = policy.Do(ctx, func(ctx context.Context) error {
		out = Response{}
		return c.do(ctx, feature, http.MethodPost, url, body, &out)
	})
	if err == nil && out.Error != "" {
		err = &ServiceError{Feature: feature, Status: http.StatusOK, Message: out.Error}
	}
	if err != nil {
		cb.OnError(err)
		c.opts.Metrics.ServiceRequest(feature, "error")
		c.logger.Warn("service_call_failed",
			"feature", feature,
			"kind", resilience.Classify(err),
			"duration_ms", time.Since(started).Milliseconds(),
			"error", err)
		return out, wrapReason(err)
	}
	cb.OnSuccess()
	c.opts.Metrics.ServiceRequest(feature, "ok")
	c.logger.Debug("service_call_ok", "feature", feature, "duration_ms", time.Since(started).Milliseconds())
	return out, nil
}

// GetJSON fetches url and decodes the JSON body into out, with the same
// timeout and retry policy as Call.
func (c *Client) GetJSON(ctx context.Context, url string, out any) error {
	err := c.opts.Retry.Do(ctx, func(ctx context.Context) error {
		return c.do(ctx, "get", http.MethodGet, url, nil, out)
	})
	if err != nil {
		c.opts.Metrics.ServiceRequest("get", "error")
		return wrapReason(err)
	}
	c.opts.Metrics.ServiceRequest("get", "ok")
	return nil
}

func (c *Client) do(ctx context.Context, feature, method, url string, body []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonServiceHTTP)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ServiceError{Feature: feature, Status: resp.StatusCode, Message: errorMessage(raw)}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errorsx.Wrapf(err, errorsx.ReasonServiceDecode, "decode %s response", feature)
	}
	return nil
}

func (c *Client) breaker(feature string) *resilience.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	cb, ok := c.breakers[feature]
	if !ok {
		cb = resilience.NewCircuitBreaker(c.opts.BreakerThreshold, c.opts.BreakerCooldown)
		c.breakers[feature] = cb
	}
	return cb
}

func errorMessage(raw []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		return body.Error
	}
	msg := string(bytes.TrimSpace(raw))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

func wrapReason(err error) error {
	switch resilience.Classify(err) {
	case resilience.KindTimeout:
		return errorsx.Wrap(err, errorsx.ReasonServiceTimeout)
	default:
		return errorsx.Wrap(err, errorsx.ReasonServiceHTTP)
	}
}
