// Package enrich attaches externally computed artifacts (summaries, entity
// maps) to extracted text, with content-addressed caching, bounded retry,
// and cost accounting.
package enrich

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Retryable failure classes: they consume retry budget.
var (
	ErrTimeout     = errors.New("enrichment service timeout")
	ErrRateLimited = errors.New("enrichment service rate limited")
	ErrUnavailable = errors.New("enrichment service unavailable")
)

// Terminal failure classes: they fail fast after a single attempt.
var (
	ErrAuth             = errors.New("enrichment service authentication failed")
	ErrMalformedRequest = errors.New("enrichment request malformed")
	ErrQuotaExhausted   = errors.New("enrichment quota exhausted")
)

// Retryable reports whether err belongs to a retryable failure class.
func Retryable(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrUnavailable)
}

// Terminal reports whether err belongs to a terminal failure class.
func Terminal(err error) bool {
	return errors.Is(err, ErrAuth) ||
		errors.Is(err, ErrMalformedRequest) ||
		errors.Is(err, ErrQuotaExhausted)
}

// classify maps a raw client error onto the failure taxonomy. Unrecognized
// errors are treated as transient network failures (retryable), which is the
// safe default for a remote service.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if Retryable(err) || Terminal(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return wrap(ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return wrap(ErrTimeout, err)
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		return wrap(ErrRateLimited, err)
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") ||
		strings.Contains(msg, "unauthorized") || strings.Contains(msg, "invalid api key"):
		return wrap(ErrAuth, err)
	case strings.Contains(msg, "insufficient_quota") || strings.Contains(msg, "quota"):
		return wrap(ErrQuotaExhausted, err)
	case strings.Contains(msg, "400") || strings.Contains(msg, "invalid request") ||
		strings.Contains(msg, "context length"):
		return wrap(ErrMalformedRequest, err)
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return wrap(ErrTimeout, err)
	default:
		return wrap(ErrUnavailable, err)
	}
}

func wrap(class, err error) error {
	return &classifiedError{class: class, err: err}
}

type classifiedError struct {
	class error
	err   error
}

func (e *classifiedError) Error() string   { return e.class.Error() + ": " + e.err.Error() }
func (e *classifiedError) Unwrap() []error { return []error{e.class, e.err} }
