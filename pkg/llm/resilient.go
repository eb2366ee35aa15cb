package llm

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-concierge/pkg/metrics"
	"github.com/ekaya-inc/ekaya-concierge/pkg/retry"
)

// ResilienceConfig bounds each provider call.
type ResilienceConfig struct {
	Timeout time.Duration
	Retry   *retry.Config
	Breaker CircuitBreakerConfig
}

// ResilientProvider wraps a provider with a per-attempt timeout, retries of
// transient errors and a circuit breaker shared across requests.
type ResilientProvider struct {
	next    CompletionProvider
	breaker *CircuitBreaker
	retry   *retry.Config
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *zap.Logger
}

var _ CompletionProvider = (*ResilientProvider)(nil)

// NewResilientProvider wraps next. A nil metrics disables recording.
func NewResilientProvider(next CompletionProvider, cfg ResilienceConfig, m *metrics.Metrics, logger *zap.Logger) *ResilientProvider {
	retryCfg := cfg.Retry
	if retryCfg == nil {
		retryCfg = retry.ProviderConfig(0)
	}
	return &ResilientProvider{
		next:    next,
		breaker: NewCircuitBreaker(cfg.Breaker),
		retry:   retryCfg,
		timeout: cfg.Timeout,
		metrics: m,
		logger:  logger.Named("llm.resilient"),
	}
}

// Name implements CompletionProvider.
func (r *ResilientProvider) Name() string {
	return r.next.Name()
}

// Breaker exposes the circuit breaker.
func (r *ResilientProvider) Breaker() *CircuitBreaker {
	return r.breaker
}

// Ping fails while the circuit is open. It never calls the provider.
func (r *ResilientProvider) Ping(context.Context) error {
	return r.breaker.Check()
}

// Complete implements CompletionProvider. The returned error is always an *Error.
func (r *ResilientProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
	attempt := 0
	result, err := retry.DoIfRetryable(ctx, r.retry, func() (*CompletionResult, error) {
		attempt++
		if err := r.breaker.Allow(); err != nil {
			return nil, err
		}
		return r.attempt(ctx, req, attempt)
	})
	if err != nil {
		return nil, ClassifyError(err)
	}
	return result, nil
}

func (r *ResilientProvider) attempt(ctx context.Context, req *CompletionRequest, attempt int) (*CompletionResult, error) {
	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := r.next.Complete(callCtx, req)
	elapsed := time.Since(start)
	r.metrics.ProviderCall(r.next.Name(), elapsed, err)

	if err != nil {
		classified := ClassifyError(err)
		if ctx.Err() == nil {
			r.breaker.RecordFailure()
		}
		fields := append(contextFields(ctx),
			zap.String("provider", r.next.Name()),
			zap.Int("attempt", attempt),
			zap.String("error_type", string(classified.Type)),
			zap.Bool("retryable", classified.Retryable),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		r.logger.Warn("Provider call failed", fields...)
		return nil, classified
	}

	r.breaker.RecordSuccess()
	r.metrics.ProviderTokens(r.next.Name(), result.Usage.PromptTokens, result.Usage.CompletionTokens)
	return result, nil
}
