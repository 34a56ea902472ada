package services_test

import (
	"errors"
	"fmt"
	"testing"

	"postforge/internal/services"
)

func TestClassifySentinels(t *testing.T) {
	tests := []struct {
		err  error
		want services.Kind
	}{
		{services.Wrap(services.ErrThrottled, "image generate", nil), services.KindThrottled},
		{services.Wrap(services.ErrInsufficientData, "profile extract", nil), services.KindInsufficientData},
		{services.Wrap(services.ErrContentPolicy, "image generate", nil), services.KindContentPolicy},
		{services.Wrap(services.ErrNotFound, "operation poll", nil), services.KindNotFound},
		{services.Wrap(services.ErrTransient, "research", errors.New("conn reset")), services.KindTransient},
	}
	for _, tc := range tests {
		if got := services.Classify(tc.err); got != tc.want {
			t.Fatalf("Classify(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestClassifyStatusCodes(t *testing.T) {
	tests := []struct {
		code int
		want services.Kind
	}{
		{429, services.KindThrottled},
		{404, services.KindNotFound},
		{500, services.KindTransient},
		{503, services.KindTransient},
		{400, services.KindTerminal},
	}
	for _, tc := range tests {
		err := fmt.Errorf("request: %w", &services.StatusError{StatusCode: tc.code})
		if got := services.Classify(err); got != tc.want {
			t.Fatalf("Classify(status %d) = %q, want %q", tc.code, got, tc.want)
		}
	}
}

func TestClassifyRawText(t *testing.T) {
	tests := []struct {
		message string
		want    services.Kind
	}{
		{"vendor said: rate limit exceeded", services.KindThrottled},
		{"QUOTA EXCEEDED for project", services.KindThrottled},
		{"RESOURCE EXHAUSTED", services.KindThrottled},
		{"http 429 from edge", services.KindThrottled},
		{"prompt blocked by safety system", services.KindContentPolicy},
		{"invalid api key", services.KindTerminal},
	}
	for _, tc := range tests {
		if got := services.Classify(errors.New(tc.message)); got != tc.want {
			t.Fatalf("Classify(%q) = %q, want %q", tc.message, got, tc.want)
		}
	}
}

func TestRetryable(t *testing.T) {
	if !services.Retryable(errors.New("rate limit")) {
		t.Fatal("throttled errors must be retryable")
	}
	if services.Retryable(services.Wrap(services.ErrContentPolicy, "generate", nil)) {
		t.Fatal("content policy rejections must not be retryable")
	}
	if services.Retryable(nil) {
		t.Fatal("nil error must not be retryable")
	}
}
