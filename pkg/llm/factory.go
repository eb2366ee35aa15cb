package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-concierge/pkg/config"
	"github.com/ekaya-inc/ekaya-concierge/pkg/metrics"
	"github.com/ekaya-inc/ekaya-concierge/pkg/retry"
)

// Provider names accepted in configuration.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

const defaultOpenAIEndpoint = "https://api.openai.com/v1"

// NewProvider builds the configured completion provider wrapped with
// timeouts, retries and the circuit breaker.
func NewProvider(cfg config.LLMConfig, m *metrics.Metrics, logger *zap.Logger) (CompletionProvider, error) {
	base, err := newBaseProvider(cfg, logger)
	if err != nil {
		return nil, err
	}

	return NewResilientProvider(base, ResilienceConfig{
		Timeout: cfg.Timeout,
		Retry:   retry.ProviderConfig(cfg.MaxRetries),
		Breaker: CircuitBreakerConfig{
			Threshold:  cfg.CircuitBreakerThreshold,
			ResetAfter: cfg.CircuitBreakerReset,
		},
	}, m, logger), nil
}

func newBaseProvider(cfg config.LLMConfig, logger *zap.Logger) (CompletionProvider, error) {
	switch cfg.Provider {
	case ProviderOpenAI, "":
		p, err := NewOpenAIProvider(&Config{
			Endpoint: cfg.Endpoint,
			Model:    cfg.Model,
			APIKey:   cfg.APIKey,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("create openai provider: %w", err)
		}
		return p, nil
	case ProviderAnthropic:
		endpoint := cfg.Endpoint
		if endpoint == defaultOpenAIEndpoint {
			endpoint = ""
		}
		p, err := NewAnthropicProvider(&Config{
			Endpoint: endpoint,
			Model:    cfg.Model,
			APIKey:   cfg.APIKey,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("create anthropic provider: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
