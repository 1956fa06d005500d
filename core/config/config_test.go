package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterpolateEnvWithDefault(t *testing.T) {
	os.Unsetenv("PMPGW_TEST_FOO")
	assert.Equal(t, "bar", interpolateEnv("${env:PMPGW_TEST_FOO:bar}"))

	os.Setenv("PMPGW_TEST_FOO", "x")
	defer os.Unsetenv("PMPGW_TEST_FOO")
	assert.Equal(t, "x", interpolateEnv("${env:PMPGW_TEST_FOO:bar}"))
}

func TestInterpolateEnvMissingNoDefaultLeavesLiteral(t *testing.T) {
	os.Unsetenv("PMPGW_TEST_MISSING")
	assert.Equal(t, "${env:PMPGW_TEST_MISSING}", interpolateEnv("${env:PMPGW_TEST_MISSING}"))
}

const validYAML = `
clients:
  svc:
    type: http
    base_url: http://localhost:9000
routes:
  - method: GET
    path: /x
    subrequests:
      - client_id: svc
        type: http
        uri: /ping
`

func TestParseValidConfig(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	require.NoError(t, err)
	assert.Len(t, cfg.Clients, 1)
	assert.Len(t, cfg.Routes, 1)
	assert.Equal(t, ExecutionParallel, cfg.Routes[0].ExecutionMode)
}

const danglingClientYAML = `
clients:
  svc:
    type: http
    base_url: http://localhost:9000
routes:
  - method: GET
    path: /x
    subrequests:
      - client_id: unknown
        type: http
        uri: /ping
`

func TestParseRejectsDanglingClientID(t *testing.T) {
	_, err := Parse([]byte(danglingClientYAML))
	require.Error(t, err)
}

const unknownKeyYAML = `
clients:
  svc:
    type: http
    base_url: http://localhost:9000
    bogus_field: true
routes: []
`

func TestParseRejectsUnknownKey(t *testing.T) {
	_, err := Parse([]byte(unknownKeyYAML))
	require.Error(t, err)
}

func TestUnusedClients(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	require.NoError(t, err)
	assert.Empty(t, cfg.UnusedClients())
}

func TestClientBreakdown(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.ClientBreakdown()["http"])
}
