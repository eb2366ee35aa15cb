package llm

import (
	"fmt"
	"sync"
	"time"
)

// CircuitState is the breaker position.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	// CircuitHalfOpen lets a single trial call through after ResetAfter.
	CircuitHalfOpen
)

var circuitStateNames = map[CircuitState]string{
	CircuitClosed:   "closed",
	CircuitOpen:     "open",
	CircuitHalfOpen: "half-open",
}

func (s CircuitState) String() string {
	if name, ok := circuitStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// CircuitBreakerConfig configures a CircuitBreaker. Zero values fall back to
// DefaultCircuitBreakerConfig.
type CircuitBreakerConfig struct {
	Threshold  int
	ResetAfter time.Duration
	Now        func() time.Time
}

// DefaultCircuitBreakerConfig trips after 5 consecutive failures and allows a
// trial call after 30 seconds.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Threshold:  5,
		ResetAfter: 30 * time.Second,
	}
}

// CircuitBreaker is shared by every request that reaches the provider. While
// open, calls fail immediately with ErrorTypeCircuit.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu       sync.Mutex
	state    CircuitState
	failures int
	openedAt time.Time
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	defaults := DefaultCircuitBreakerConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaults.Threshold
	}
	if cfg.ResetAfter <= 0 {
		cfg.ResetAfter = defaults.ResetAfter
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{cfg: cfg}
}

// Allow reports whether a call may proceed.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		waited := cb.cfg.Now().Sub(cb.openedAt)
		if waited <= cb.cfg.ResetAfter {
			return cb.openError(waited)
		}
		cb.state = CircuitHalfOpen
		return nil
	case CircuitHalfOpen:
		return NewError(ErrorTypeCircuit, "circuit breaker half-open: waiting for trial call result", false, nil)
	default:
		return nil
	}
}

// Check returns the open-circuit error without moving the breaker to
// half-open. Used by health checks.
func (cb *CircuitBreaker) Check() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != CircuitOpen {
		return nil
	}
	return cb.openError(cb.cfg.Now().Sub(cb.openedAt))
}

func (cb *CircuitBreaker) openError(waited time.Duration) error {
	return NewError(ErrorTypeCircuit,
		fmt.Sprintf("circuit breaker open after %d consecutive failures (%v ago)",
			cb.failures, waited.Round(time.Second)),
		false, nil)
}

// RecordSuccess closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.state = CircuitClosed
}

// RecordFailure counts a failure. A failed trial call reopens the circuit at once.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	if cb.state == CircuitHalfOpen || cb.failures >= cb.cfg.Threshold {
		cb.state = CircuitOpen
		cb.openedAt = cb.cfg.Now()
	}
}

func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) ConsecutiveFailures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}
