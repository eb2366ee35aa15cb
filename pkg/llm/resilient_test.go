package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-concierge/pkg/metrics"
	"github.com/ekaya-inc/ekaya-concierge/pkg/retry"
)

func fastResilience(maxRetries, threshold int) ResilienceConfig {
	return ResilienceConfig{
		Timeout: time.Second,
		Retry: &retry.Config{
			MaxRetries:   maxRetries,
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
			Multiplier:   2,
		},
		Breaker: CircuitBreakerConfig{Threshold: threshold, ResetAfter: time.Minute},
	}
}

func TestResilientProvider_RetriesTransientErrors(t *testing.T) {
	mock := NewMockCompletionProvider()
	mock.CompleteFunc = func(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
		if mock.Calls() < 3 {
			return nil, NewError(ErrorTypeEndpoint, "server error", true, errors.New("HTTP 503"))
		}
		return &CompletionResult{Content: "ok"}, nil
	}

	p := NewResilientProvider(mock, fastResilience(3, 10), metrics.New(), zap.NewNop())
	res, err := p.Complete(context.Background(), &CompletionRequest{})

	require.NoError(t, err)
	assert.Equal(t, "ok", res.Content)
	assert.Equal(t, 3, mock.Calls())
	assert.Equal(t, CircuitClosed, p.Breaker().State())
}

func TestResilientProvider_DoesNotRetryAuthErrors(t *testing.T) {
	mock := NewMockCompletionProvider()
	mock.CompleteFunc = func(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
		return nil, errors.New("error, status code: 401, message: invalid api key")
	}

	p := NewResilientProvider(mock, fastResilience(3, 10), nil, zap.NewNop())
	_, err := p.Complete(context.Background(), &CompletionRequest{})

	require.Error(t, err)
	assert.Equal(t, ErrorTypeAuth, GetErrorType(err))
	assert.Equal(t, 1, mock.Calls())
}

func TestResilientProvider_CircuitOpensAndFailsFast(t *testing.T) {
	mock := NewMockCompletionProvider()
	mock.CompleteFunc = func(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
		return nil, errors.New("llm error")
	}

	p := NewResilientProvider(mock, fastResilience(0, 2), nil, zap.NewNop())
	for i := 0; i < 2; i++ {
		_, err := p.Complete(context.Background(), &CompletionRequest{})
		require.Error(t, err)
	}
	assert.Equal(t, CircuitOpen, p.Breaker().State())

	_, err := p.Complete(context.Background(), &CompletionRequest{})
	require.Error(t, err)
	assert.Equal(t, ErrorTypeCircuit, GetErrorType(err))
	assert.Equal(t, 2, mock.Calls(), "open circuit must not reach the provider")
}

func TestResilientProvider_PerAttemptTimeout(t *testing.T) {
	mock := NewMockCompletionProvider()
	mock.CompleteFunc = func(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	cfg := fastResilience(0, 10)
	cfg.Timeout = 20 * time.Millisecond
	p := NewResilientProvider(mock, cfg, nil, zap.NewNop())

	start := time.Now()
	_, err := p.Complete(context.Background(), &CompletionRequest{})

	require.Error(t, err)
	assert.Equal(t, ErrorTypeTimeout, GetErrorType(err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestResilientProvider_Name(t *testing.T) {
	mock := NewMockCompletionProvider()
	mock.ProviderName = "openai"
	p := NewResilientProvider(mock, ResilienceConfig{}, nil, zap.NewNop())
	assert.Equal(t, "openai", p.Name())
}

func TestResilientProvider_PingReflectsCircuit(t *testing.T) {
	mock := NewMockCompletionProvider()
	mock.CompleteFunc = func(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
		return nil, NewError(ErrorTypeAuth, "authentication failed", false, nil)
	}
	p := NewResilientProvider(mock, ResilienceConfig{
		Retry:   &retry.Config{MaxRetries: 0},
		Breaker: CircuitBreakerConfig{Threshold: 1, ResetAfter: time.Minute},
	}, nil, zap.NewNop())

	require.NoError(t, p.Ping(context.Background()))

	_, err := p.Complete(context.Background(), &CompletionRequest{})
	require.Error(t, err)

	err = p.Ping(context.Background())
	require.Error(t, err)
	assert.Equal(t, ErrorTypeCircuit, GetErrorType(err))
	assert.Equal(t, CircuitOpen, p.Breaker().State(), "ping must not move the breaker to half-open")
}
