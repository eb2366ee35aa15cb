package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error_WithStatusCodeAndProvider(t *testing.T) {
	err := &Error{
		Type:       ErrorTypeEndpoint,
		Message:    "server error",
		StatusCode: 503,
		Provider:   "openai",
		Model:      "gpt-4-turbo-preview",
	}

	result := err.Error()
	for _, want := range []string{"HTTP 503", "provider=openai", "model=gpt-4-turbo-preview", "server error"} {
		if !strings.Contains(result, want) {
			t.Errorf("expected error message to contain %q, got: %s", want, result)
		}
	}
}

func TestError_Error_WithCause(t *testing.T) {
	err := NewError(ErrorTypeUnknown, "llm error", false, errors.New("boom"))
	if got := err.Error(); got != "unknown llm error: boom" {
		t.Errorf("unexpected error string: %s", got)
	}
}

func TestClassifyError_ExtractsStatusCode(t *testing.T) {
	tests := []struct {
		name               string
		inputError         error
		expectedStatusCode int
		expectedType       ErrorType
		expectedRetryable  bool
	}{
		{"503 service unavailable", errors.New("HTTP 503 Service Unavailable"), 503, ErrorTypeEndpoint, true},
		{"429 rate limit", errors.New("HTTP 429 Too Many Requests"), 429, ErrorTypeRateLimit, true},
		{"500 internal server error", errors.New("HTTP 500 Internal Server Error"), 500, ErrorTypeEndpoint, true},
		{"401 unauthorized", errors.New("HTTP 401 Unauthorized"), 401, ErrorTypeAuth, false},
		{"404 not found", errors.New("HTTP 404 Not Found"), 404, ErrorTypeEndpoint, false},
		{"529 overloaded", errors.New("HTTP 529 overloaded_error"), 529, ErrorTypeEndpoint, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ClassifyError(tt.inputError)
			if result.StatusCode != tt.expectedStatusCode {
				t.Errorf("expected status code %d, got %d", tt.expectedStatusCode, result.StatusCode)
			}
			if result.Type != tt.expectedType {
				t.Errorf("expected type %s, got %s", tt.expectedType, result.Type)
			}
			if result.Retryable != tt.expectedRetryable {
				t.Errorf("expected retryable=%v, got %v", tt.expectedRetryable, result.Retryable)
			}
		})
	}
}

func TestClassifyError_ModelNotFound(t *testing.T) {
	result := ClassifyError(errors.New("the model `gpt-9` does not exist"))
	if result.Type != ErrorTypeModel {
		t.Errorf("expected type %s, got %s", ErrorTypeModel, result.Type)
	}
	if result.Retryable {
		t.Error("model errors should not be retryable")
	}
}

func TestClassifyError_DeadlineExceeded(t *testing.T) {
	result := ClassifyError(fmt.Errorf("complete: %w", context.DeadlineExceeded))
	if result.Type != ErrorTypeTimeout {
		t.Errorf("expected type %s, got %s", ErrorTypeTimeout, result.Type)
	}
	if !result.Retryable {
		t.Error("deadline exceeded should be retryable")
	}
}

func TestClassifyError_ContextCanceledNotRetryable(t *testing.T) {
	result := ClassifyError(context.Canceled)
	if result.Retryable {
		t.Error("context canceled should not be retryable")
	}
}

func TestClassifyError_PreservesExistingError(t *testing.T) {
	original := &Error{Type: ErrorTypeCircuit, Message: "circuit open"}
	wrapped := fmt.Errorf("complete: %w", original)

	if result := ClassifyError(wrapped); result != original {
		t.Error("expected ClassifyError to return the wrapped *Error instance")
	}
}

func TestClassifyError_Nil(t *testing.T) {
	if ClassifyError(nil) != nil {
		t.Error("expected nil for nil error")
	}
}

func TestIsRetryableAndGetErrorType(t *testing.T) {
	retryable := NewError(ErrorTypeRateLimit, "rate limited", true, nil)
	if !IsRetryable(retryable) {
		t.Error("expected retryable")
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("plain errors are not retryable")
	}
	if GetErrorType(retryable) != ErrorTypeRateLimit {
		t.Errorf("expected %s", ErrorTypeRateLimit)
	}
	if GetErrorType(errors.New("plain")) != ErrorTypeUnknown {
		t.Errorf("expected %s", ErrorTypeUnknown)
	}
}
