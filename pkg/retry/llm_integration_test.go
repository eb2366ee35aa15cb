package retry_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ekaya-inc/ekaya-concierge/pkg/llm"
	"github.com/ekaya-inc/ekaya-concierge/pkg/retry"
)

func TestIsRetryable_WithLLMError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "retryable endpoint error",
			err:      llm.NewError(llm.ErrorTypeEndpoint, "server error", true, errors.New("HTTP 503")),
			expected: true,
		},
		{
			name:     "auth error is permanent",
			err:      llm.NewError(llm.ErrorTypeAuth, "authentication failed", false, errors.New("HTTP 401")),
			expected: false,
		},
		{
			name:     "open circuit is permanent",
			err:      llm.NewError(llm.ErrorTypeCircuit, "circuit breaker open", false, nil),
			expected: false,
		},
		{
			name:     "wrapped retryable error",
			err:      fmt.Errorf("complete: %w", llm.NewError(llm.ErrorTypeRateLimit, "rate limited", true, nil)),
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retry.IsRetryable(tt.err); got != tt.expected {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestDoIfRetryable_WithLLMError(t *testing.T) {
	cfg := &retry.Config{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}

	callCount := 0
	_, err := retry.DoIfRetryable(context.Background(), cfg, func() (string, error) {
		callCount++
		return "", llm.NewError(llm.ErrorTypeAuth, "authentication failed", false, nil)
	})

	if llm.GetErrorType(err) != llm.ErrorTypeAuth {
		t.Errorf("expected auth error, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("expected no retries for auth error, got %d calls", callCount)
	}
}
