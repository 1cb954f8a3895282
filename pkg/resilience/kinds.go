package resilience

import (
	"context"
	"errors"
	"net"
)

// ErrorKind classifies a failure for retry decisions.
type ErrorKind string

const (
	KindUnknown   ErrorKind = "unknown"
	KindNetwork   ErrorKind = "network"
	KindTimeout   ErrorKind = "timeout"
	KindServer    ErrorKind = "server"
	KindRateLimit ErrorKind = "rate_limit"
	KindClient    ErrorKind = "client"
	KindCanceled  ErrorKind = "canceled"
)

// Kinded is implemented by errors that know their own kind.
type Kinded interface {
	Kind() ErrorKind
}

// RateLimitError represents a provider rate limit response.
type RateLimitError struct {
	Provider string
	Message  string
}

func (e RateLimitError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "rate limit"
}

func (RateLimitError) Kind() ErrorKind { return KindRateLimit }

// IsRateLimit returns true when the error is a RateLimitError.
func IsRateLimit(err error) bool {
	return Classify(err) == KindRateLimit
}

// Classify maps an error onto an ErrorKind.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var k Kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		if nerr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}
	return KindUnknown
}
