// Package services defines the error taxonomy shared by all upstream
// generative-service clients, and the single boundary classifier that maps
// raw vendor errors onto it. Nothing outside this package inspects error
// text.
package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

var (
	// ErrThrottled marks upstream overload signals. Retried with backoff.
	ErrThrottled = errors.New("throttled")
	// ErrInsufficientData marks extraction confidence below threshold.
	// Terminal: retrying the same input cannot fix it.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrContentPolicy marks generation refused by upstream safety filtering.
	// Terminal for the specific prompt.
	ErrContentPolicy = errors.New("content policy rejected")
	// ErrTransient marks network-level failures retried silently.
	ErrTransient = errors.New("transient failure")
	// ErrNotFound marks missing/expired remote state, treated as "regenerate".
	ErrNotFound = errors.New("not found")
)

// Kind is the closed classification of an upstream failure.
type Kind string

const (
	KindThrottled        Kind = "throttled"
	KindInsufficientData Kind = "insufficient_data"
	KindContentPolicy    Kind = "content_policy"
	KindTransient        Kind = "transient"
	KindNotFound         Kind = "not_found"
	KindTerminal         Kind = "terminal"
)

// Wrap tags err with the provided sentinel and operation context.
func Wrap(marker error, operation string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, operation, err)
	}
	return fmt.Errorf("%w: %s", marker, operation)
}

// Classify maps an error to its Kind. Sentinel-tagged errors classify
// directly; untagged errors fall back to status-code and message heuristics,
// since upstream throttling signals are not vendor-neutral.
func Classify(err error) Kind {
	if err == nil {
		return KindTerminal
	}
	switch {
	case errors.Is(err, ErrThrottled):
		return KindThrottled
	case errors.Is(err, ErrInsufficientData):
		return KindInsufficientData
	case errors.Is(err, ErrContentPolicy):
		return KindContentPolicy
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrTransient):
		return KindTransient
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == 429:
			return KindThrottled
		case statusErr.StatusCode == 404:
			return KindNotFound
		case statusErr.StatusCode >= 500:
			return KindTransient
		}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindTerminal
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return KindTransient
	}

	message := strings.ToLower(err.Error())
	switch {
	case strings.Contains(message, "rate limit"),
		strings.Contains(message, "quota exceeded"),
		strings.Contains(message, "resource exhausted"),
		strings.Contains(message, "429"):
		return KindThrottled
	case strings.Contains(message, "safety"),
		strings.Contains(message, "content policy"),
		strings.Contains(message, "blocked by"):
		return KindContentPolicy
	}
	return KindTerminal
}

// Retryable reports whether the governor may retry the failure.
func Retryable(err error) bool {
	switch Classify(err) {
	case KindThrottled, KindTransient:
		return true
	default:
		return false
	}
}

// StatusError carries an upstream HTTP status for classification.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}
