package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/pmpgw/core/config"
)

func TestResilientRetryThenSuccess(t *testing.T) {
	retry := &config.RetryConfig{MaxRetries: 2, InitialBackoffMs: 10, MaxBackoffMs: 100}
	r := NewResilient(retry, nil)

	attempts := 0
	start := time.Now()
	res, err := r.Do(context.Background(), func(ctx context.Context) (SubrequestResult, *BackendError) {
		attempts++
		if attempts < 3 {
			return nil, transportError("boom")
		}
		return SubrequestResult{"ok": true}, nil
	})
	elapsed := time.Since(start)

	require.Nil(t, err)
	assert.Equal(t, 3, attempts)
	assert.GreaterOrEqual(t, elapsed.Milliseconds(), int64(10+20))
	assert.Equal(t, true, res["ok"])
}

func TestResilientNonRetryableFailsImmediately(t *testing.T) {
	retry := &config.RetryConfig{MaxRetries: 5, InitialBackoffMs: 10, MaxBackoffMs: 100}
	r := NewResilient(retry, nil)

	attempts := 0
	_, err := r.Do(context.Background(), func(ctx context.Context) (SubrequestResult, *BackendError) {
		attempts++
		return nil, protocolError("bad query")
	})
	assert.Equal(t, 1, attempts)
	require.NotNil(t, err)
	assert.Equal(t, ErrProtocol, err.Kind)
}

func TestCircuitBreakerOpensAfterThresholdAndHalfOpensAfterTimeout(t *testing.T) {
	cb := NewCircuitBreaker(&config.CircuitBreakerConfig{FailureThreshold: 3, TimeoutSeconds: 0})
	cb.timeout = 50 * time.Millisecond // exercise the timer without a 1s test

	r := NewResilient(&config.RetryConfig{MaxRetries: 0}, cb)
	failing := func(ctx context.Context) (SubrequestResult, *BackendError) {
		return nil, transportError("down")
	}

	for i := 0; i < 3; i++ {
		_, err := r.Do(context.Background(), failing)
		require.NotNil(t, err)
		assert.Equal(t, ErrTransport, err.Kind)
	}
	assert.Equal(t, Open, cb.State())

	// 4th call: rejected without touching "the network"
	_, err := r.Do(context.Background(), func(ctx context.Context) (SubrequestResult, *BackendError) {
		t.Fatal("breaker should have rejected before dispatch")
		return nil, nil
	})
	require.NotNil(t, err)
	assert.Equal(t, ErrRejected, err.Kind)

	time.Sleep(60 * time.Millisecond)

	// 5th call, the probe, is admitted and succeeds, closing the circuit
	_, err = r.Do(context.Background(), func(ctx context.Context) (SubrequestResult, *BackendError) {
		return SubrequestResult{"ok": true}, nil
	})
	require.Nil(t, err)
	assert.Equal(t, Closed, cb.State())
}
