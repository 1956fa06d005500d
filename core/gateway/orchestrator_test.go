package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/pmpgw/core/config"
)

type fakeClient struct {
	fn func(op config.BackendOp, ictx *InterpolationContext) (SubrequestResult, *BackendError)
}

func (f fakeClient) Execute(ctx context.Context, op config.BackendOp, ictx *InterpolationContext) (SubrequestResult, *BackendError) {
	return f.fn(op, ictx)
}
func (f fakeClient) Close() error { return nil }

func registryOf(clients map[string]Client) *Registry {
	return &Registry{clients: clients}
}

type stringOp struct{ v string }

func (stringOp) isBackendOp() {}

func TestOrchestratorOrderPreservationParallel(t *testing.T) {
	reg := registryOf(map[string]Client{
		"c1": fakeClient{fn: func(op config.BackendOp, ictx *InterpolationContext) (SubrequestResult, *BackendError) {
			return SubrequestResult{"client_id": "c1", "type": "http", "a": 1}, nil
		}},
		"c2": fakeClient{fn: func(op config.BackendOp, ictx *InterpolationContext) (SubrequestResult, *BackendError) {
			return SubrequestResult{"client_id": "c2", "type": "http", "b": 2}, nil
		}},
	})
	orch := NewOrchestrator(reg)

	route := &config.RouteDefinition{
		Method:        "GET",
		Path:          "/x",
		ExecutionMode: config.ExecutionParallel,
		Subrequests: []config.SubrequestDefinition{
			{ClientID: "c1", Condition: config.Condition{Kind: config.CondAlways}, Op: stringOp{}, Index: 0},
			{ClientID: "c2", Condition: config.Condition{Kind: config.CondAlways}, Op: stringOp{}, Index: 1},
		},
	}
	ictx := NewInterpolationContext("GET", nil, nil, nil, "")
	env, reqErr := orch.Execute(context.Background(), route, ictx)
	require.Nil(t, reqErr)
	assert.Equal(t, 2, env["count"])
	subs := env["subrequests"].([]interface{})
	require.Len(t, subs, 2)
	assert.Equal(t, "c1", subs[0].(map[string]interface{})["client_id"])
	assert.Equal(t, "c2", subs[1].(map[string]interface{})["client_id"])
}

func TestOrchestratorDependencyWaveVisibility(t *testing.T) {
	reg := registryOf(map[string]Client{
		"c1": fakeClient{fn: func(op config.BackendOp, ictx *InterpolationContext) (SubrequestResult, *BackendError) {
			return SubrequestResult{"client_id": "c1", "type": "sql", "id": "42"}, nil
		}},
		"c2": fakeClient{fn: func(op config.BackendOp, ictx *InterpolationContext) (SubrequestResult, *BackendError) {
			uri := Expand("/u/${subrequest.A.id}", ictx)
			return SubrequestResult{"client_id": "c2", "type": "http", "uri": uri}, nil
		}},
	})
	orch := NewOrchestrator(reg)

	route := &config.RouteDefinition{
		Method:        "GET",
		Path:          "/y",
		ExecutionMode: config.ExecutionParallel,
		Subrequests: []config.SubrequestDefinition{
			{Name: "A", ClientID: "c1", Condition: config.Condition{Kind: config.CondAlways}, Op: stringOp{}, Index: 0},
			{Name: "B", ClientID: "c2", Condition: config.Condition{Kind: config.CondAlways}, DependsOn: []string{"A"}, Op: stringOp{}, Index: 1},
		},
	}
	ictx := NewInterpolationContext("GET", nil, nil, nil, "")
	env, reqErr := orch.Execute(context.Background(), route, ictx)
	require.Nil(t, reqErr)
	subs := env["subrequests"].([]interface{})
	assert.Equal(t, "/u/42", subs[1].(map[string]interface{})["uri"])
}

func TestOrchestratorConditionalSkip(t *testing.T) {
	reg := registryOf(map[string]Client{
		"c1": fakeClient{fn: func(op config.BackendOp, ictx *InterpolationContext) (SubrequestResult, *BackendError) {
			t.Fatal("should have been skipped")
			return nil, nil
		}},
	})
	orch := NewOrchestrator(reg)
	route := &config.RouteDefinition{
		Method: "GET",
		Path:   "/z",
		Subrequests: []config.SubrequestDefinition{
			{ClientID: "c1", Condition: config.Condition{Kind: config.CondHeaderEquals, Header: "Authorization", Value: "Bearer t"}, Op: stringOp{}, Index: 0},
		},
	}
	ictx := NewInterpolationContext("GET", nil, nil, nil, "")
	env, reqErr := orch.Execute(context.Background(), route, ictx)
	require.Nil(t, reqErr)
	assert.Equal(t, 0, env["count"])
}

func TestOrchestratorCircularDependencyRejected(t *testing.T) {
	orch := NewOrchestrator(registryOf(nil))
	route := &config.RouteDefinition{
		Method:        "GET",
		Path:          "/cycle",
		ExecutionMode: config.ExecutionParallel,
		Subrequests: []config.SubrequestDefinition{
			{Name: "A", ClientID: "c1", DependsOn: []string{"B"}, Condition: config.Condition{Kind: config.CondAlways}, Op: stringOp{}, Index: 0},
			{Name: "B", ClientID: "c1", DependsOn: []string{"A"}, Condition: config.Condition{Kind: config.CondAlways}, Op: stringOp{}, Index: 1},
		},
	}
	ictx := NewInterpolationContext("GET", nil, nil, nil, "")
	_, reqErr := orch.Execute(context.Background(), route, ictx)
	require.NotNil(t, reqErr)
	assert.Equal(t, "CircularDependency", reqErr.Code)
}

func TestOrchestratorSubrequestFailurePropagates(t *testing.T) {
	reg := registryOf(map[string]Client{
		"c1": fakeClient{fn: func(op config.BackendOp, ictx *InterpolationContext) (SubrequestResult, *BackendError) {
			return nil, transportError("down")
		}},
	})
	orch := NewOrchestrator(reg)
	route := &config.RouteDefinition{
		Method: "GET",
		Path:   "/fail",
		Subrequests: []config.SubrequestDefinition{
			{ClientID: "c1", Condition: config.Condition{Kind: config.CondAlways}, Op: stringOp{}, Index: 0},
		},
	}
	ictx := NewInterpolationContext("GET", nil, nil, nil, "")
	_, reqErr := orch.Execute(context.Background(), route, ictx)
	require.NotNil(t, reqErr)
	assert.Equal(t, "SubrequestFailed", reqErr.Code)
}
