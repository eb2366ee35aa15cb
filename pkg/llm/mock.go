package llm

import (
	"context"
	"sync"
)

// MockCompletionProvider is a configurable mock for testing provider consumers.
// Set CompleteFunc to control behavior, or queue Responses to be returned in order.
type MockCompletionProvider struct {
	mu sync.Mutex

	// CompleteFunc is called when Complete is invoked. It takes priority over Responses.
	CompleteFunc func(ctx context.Context, req *CompletionRequest) (*CompletionResult, error)

	// Responses are returned one per call. When exhausted the last one repeats.
	Responses []*CompletionResult

	// ProviderName is returned by Name. Defaults to "mock".
	ProviderName string

	// Requests records every request received, for verification.
	Requests []*CompletionRequest
}

var _ CompletionProvider = (*MockCompletionProvider)(nil)

// NewMockCompletionProvider creates a mock that answers with the given results in order.
func NewMockCompletionProvider(responses ...*CompletionResult) *MockCompletionProvider {
	return &MockCompletionProvider{
		ProviderName: "mock",
		Responses:    responses,
	}
}

// Complete implements CompletionProvider.
func (m *MockCompletionProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	call := len(m.Requests)
	fn := m.CompleteFunc
	var resp *CompletionResult
	if len(m.Responses) > 0 {
		idx := call - 1
		if idx >= len(m.Responses) {
			idx = len(m.Responses) - 1
		}
		resp = m.Responses[idx]
	}
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if resp == nil {
		return &CompletionResult{}, nil
	}
	return resp, nil
}

// Name implements CompletionProvider.
func (m *MockCompletionProvider) Name() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

// Calls returns how many times Complete was invoked.
func (m *MockCompletionProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// Request returns the i-th recorded request.
func (m *MockCompletionProvider) Request(i int) *CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Requests[i]
}
