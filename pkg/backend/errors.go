package backend

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrEmptyResponse is returned when a provider answered with no text.
	ErrEmptyResponse = errors.New("empty response from model")
	// ErrUnsupportedProvider is returned for unknown provider names.
	ErrUnsupportedProvider = errors.New("unsupported provider")
	// ErrUnsupportedStrategy is returned for unknown strategy names.
	ErrUnsupportedStrategy = errors.New("unsupported strategy")
)

// IsRetryableError reports whether a provider error is worth retrying:
// network resets, rate limits and 5xx responses.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	errMsg := strings.ToLower(err.Error())

	for _, marker := range []string{
		"econnreset", "etimedout", "connection reset",
		"429", "rate limit", "resource_exhausted",
		"500", "502", "503", "504", "unavailable", "overloaded",
	} {
		if strings.Contains(errMsg, marker) {
			return true
		}
	}
	return false
}
