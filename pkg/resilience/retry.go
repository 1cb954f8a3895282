package resilience

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy is the retry configuration handed to each external call site.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
	Retryable   []ErrorKind
	// Sleep waits between attempts; tests replace it to run without delay.
	Sleep func(ctx context.Context, d time.Duration) error
}

// ExhaustedError is returned when every attempt failed.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// DefaultRetryPolicy retries transport and server failures three times.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     200 * time.Millisecond,
		MaxBackoff:  2 * time.Second,
		Retryable:   []ErrorKind{KindNetwork, KindTimeout, KindServer, KindRateLimit},
	}
}

// NewRetryPolicy builds a policy with the default retryable kinds.
func NewRetryPolicy(maxAttempts int, backoff time.Duration) RetryPolicy {
	p := DefaultRetryPolicy()
	if maxAttempts > 0 {
		p.MaxAttempts = maxAttempts
	}
	if backoff > 0 {
		p.Backoff = backoff
	}
	return p
}

// IsRetryable reports whether err belongs to one of the policy's kinds.
func (r RetryPolicy) IsRetryable(err error) bool {
	kind := Classify(err)
	for _, k := range r.Retryable {
		if k == kind {
			return true
		}
	}
	return false
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the
// attempts run out.
func (r RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	attempts := r.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := r.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !r.IsRetryable(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		if err := sleep(ctx, r.delay(i)); err != nil {
			return err
		}
	}
	return &ExhaustedError{Attempts: attempts, Last: lastErr}
}

func (r RetryPolicy) delay(attempt int) time.Duration {
	d := r.Backoff << attempt
	if r.MaxBackoff > 0 && (d > r.MaxBackoff || d <= 0) {
		d = r.MaxBackoff
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
