package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/relabs-tech/pmpgw/core/config"
)

// CircuitState is one of Closed/Open/HalfOpen (spec §4.5).
type CircuitState int32

const (
	Closed CircuitState = iota
	Open
	HalfOpen
)

// CircuitBreaker guards one HTTP client. A nil *CircuitBreaker always
// permits -- clients without a configured breaker never reject.
type CircuitBreaker struct {
	mu                  sync.Mutex
	state               CircuitState
	consecutiveFailures int
	openedAt            time.Time
	threshold           int
	timeout             time.Duration
}

// NewCircuitBreaker builds a breaker from cfg, or returns nil if cfg is nil.
func NewCircuitBreaker(cfg *config.CircuitBreakerConfig) *CircuitBreaker {
	if cfg == nil {
		return nil
	}
	return &CircuitBreaker{
		threshold: cfg.FailureThreshold,
		timeout:   time.Duration(cfg.TimeoutSeconds) * time.Second,
	}
}

// permit reports whether a call may proceed, transitioning Open -> HalfOpen
// once timeout has elapsed since opening. time.Now()'s monotonic reading
// keeps this immune to wall-clock jumps (spec §9).
func (cb *CircuitBreaker) permit() bool {
	if cb == nil {
		return true
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case Open:
		if time.Since(cb.openedAt) < cb.timeout {
			return false
		}
		cb.state = HalfOpen
		return true
	case HalfOpen:
		// one probe in flight; further concurrent callers are rejected
		// until it resolves
		return false
	default:
		return true
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFailures = 0
	cb.state = Closed
}

func (cb *CircuitBreaker) recordFailure() {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFailures++
	if cb.state == HalfOpen {
		cb.state = Open
		cb.openedAt = time.Now()
		return
	}
	if cb.consecutiveFailures >= cb.threshold {
		cb.state = Open
		cb.openedAt = time.Now()
	}
}

// State reports the breaker's current state, for tests and introspection.
func (cb *CircuitBreaker) State() CircuitState {
	if cb == nil {
		return Closed
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Resilient composes retry-with-backoff and an optional circuit breaker
// around a backend attempt (spec §4.5): the retry loop asks the breaker
// before each attempt, and a Rejected error does not count against retries.
type Resilient struct {
	retry   *config.RetryConfig
	breaker *CircuitBreaker
}

// NewResilient wraps retry (nil means no retries) and breaker (nil means
// never trips) into one dispatcher.
func NewResilient(retry *config.RetryConfig, breaker *CircuitBreaker) *Resilient {
	return &Resilient{retry: retry, breaker: breaker}
}

// Do runs attempt, retrying retryable failures per the configured backoff
// and consulting the circuit breaker before every attempt including the
// first.
func (r *Resilient) Do(ctx context.Context, attempt func(context.Context) (SubrequestResult, *BackendError)) (SubrequestResult, *BackendError) {
	maxRetries := 0
	initial := 100 * time.Millisecond
	maxWait := 5000 * time.Millisecond
	if r.retry != nil {
		maxRetries = r.retry.MaxRetries
		if r.retry.InitialBackoffMs > 0 {
			initial = time.Duration(r.retry.InitialBackoffMs) * time.Millisecond
		}
		if r.retry.MaxBackoffMs > 0 {
			maxWait = time.Duration(r.retry.MaxBackoffMs) * time.Millisecond
		}
	}

	bo := &backoff.ExponentialBackOff{
		InitialInterval:     initial,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxWait,
		MaxElapsedTime:      0,
		Clock:               backoff.SystemClock,
		Stop:                backoff.Stop,
	}
	bo.Reset()

	for attemptN := 0; ; attemptN++ {
		if !r.breaker.permit() {
			return nil, rejectedError("circuit breaker open")
		}
		res, err := attempt(ctx)
		if err == nil {
			r.breaker.recordSuccess()
			return res, nil
		}
		r.breaker.recordFailure()
		if !err.Retryable || attemptN >= maxRetries {
			return nil, err
		}
		wait := bo.NextBackOff()
		select {
		case <-ctx.Done():
			return nil, timeoutError("context cancelled during retry backoff")
		case <-time.After(wait):
		}
	}
}
