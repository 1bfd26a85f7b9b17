package tool

import (
	"context"
	"errors"
	"net"
	"strings"

	"secretary-ai/internal/domain"
)

// transientHints are lowercase fragments of upstream error text that mean
// the same call may succeed later. They cover errors that reach a tool
// without passing through a domain sentinel.
var transientHints = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"temporarily unavailable",
	"service unavailable",
	"backenderror",
	"ratelimitexceeded",
	"try again",
}

// transient reports whether a failed tool call is worth retrying. The answer
// reaches the model as Failure.Retryable.
func transient(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, domain.ErrAuthInvalid), errors.Is(err, domain.ErrInvalidInput):
		return false
	case errors.Is(err, domain.ErrTimeout),
		errors.Is(err, domain.ErrRateLimit),
		errors.Is(err, domain.ErrProviderError),
		errors.Is(err, context.DeadlineExceeded):
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") {
		return true
	}
	for _, hint := range transientHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}
