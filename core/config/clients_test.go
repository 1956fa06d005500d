package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func decodeClient(t *testing.T, doc string) ClientDefinition {
	t.Helper()
	var c ClientDefinition
	require.NoError(t, yaml.Unmarshal([]byte(doc), &c))
	return c
}

func TestLoadBalanceStrategyAcceptsHyphenAndUnderscore(t *testing.T) {
	hyphen := decodeClient(t, "type: http\nbase_url: http://x\nload_balance: least-connections\n")
	assert.Equal(t, LeastConnections, hyphen.LoadBalance)

	underscore := decodeClient(t, "type: http\nbase_url: http://x\nload_balance: least_connections\n")
	assert.Equal(t, LeastConnections, underscore.LoadBalance)
}

func TestClientUnknownTypeRejected(t *testing.T) {
	var c ClientDefinition
	err := yaml.Unmarshal([]byte("type: carrier-pigeon\n"), &c)
	assert.Error(t, err)
}

func TestClientWithDefaultsFillsRetryAndCircuitBreaker(t *testing.T) {
	c := decodeClient(t, "type: http\nbase_url: http://x\nretry: {}\ncircuit_breaker: {}\n")
	c = c.withDefaults()
	require.NotNil(t, c.Retry)
	assert.Equal(t, 0, c.Retry.MaxRetries)
	assert.Equal(t, 100, c.Retry.InitialBackoffMs)
	assert.Equal(t, 5000, c.Retry.MaxBackoffMs)
	require.NotNil(t, c.CircuitBreaker)
	assert.Equal(t, 5, c.CircuitBreaker.FailureThreshold)
	assert.Equal(t, 30, c.CircuitBreaker.TimeoutSeconds)
}
