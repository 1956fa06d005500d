package gateway

import (
	"context"
	"sort"
	"sync"

	"github.com/relabs-tech/pmpgw/core/config"
)

// Orchestrator drives one request to completion (C6): it builds the
// execution plan, runs each wave, and folds results back into the
// InterpolationContext for downstream interpolation.
type Orchestrator struct {
	registry *Registry
}

// NewOrchestrator binds an orchestrator to a client registry.
func NewOrchestrator(registry *Registry) *Orchestrator {
	return &Orchestrator{registry: registry}
}

// Execute runs route against ictx and returns the aggregated envelope
// (spec §4.6 step 4), pre-shaping.
func (o *Orchestrator) Execute(ctx context.Context, route *config.RouteDefinition, ictx *InterpolationContext) (map[string]interface{}, *RequestError) {
	waves, reqErr := o.plan(route)
	if reqErr != nil {
		return nil, reqErr
	}

	var all []indexedResult
	for _, wave := range waves {
		select {
		case <-ctx.Done():
			return nil, errGlobalTimeout()
		default:
		}

		snapshot := ictx.Snapshot()
		results, reqErr := o.runWave(ctx, wave, snapshot)
		if reqErr != nil {
			return nil, reqErr
		}
		all = append(all, results...)

		nameByIndex := make(map[int]string, len(wave))
		for _, sr := range wave {
			if sr.Name != "" {
				nameByIndex[sr.Index] = sr.Name
			}
		}
		for _, ir := range results {
			if name, ok := nameByIndex[ir.index]; ok {
				ictx.setResult(name, map[string]interface{}(ir.result))
			}
		}
	}

	sort.Slice(all, func(i, j int) bool { return all[i].index < all[j].index })
	out := make([]interface{}, len(all))
	for i, ir := range all {
		out[i] = map[string]interface{}(ir.result)
	}
	return map[string]interface{}{"subrequests": out, "count": len(out)}, nil
}

// plan computes the wave schedule for route: definition order (one
// subrequest per wave) in sequential mode, dependency waves in parallel
// mode (spec §4.6 step 2).
func (o *Orchestrator) plan(route *config.RouteDefinition) ([][]config.SubrequestDefinition, *RequestError) {
	if route.ExecutionMode == config.ExecutionSequential {
		waves := make([][]config.SubrequestDefinition, len(route.Subrequests))
		for i, sr := range route.Subrequests {
			waves[i] = []config.SubrequestDefinition{sr}
		}
		return waves, nil
	}
	return o.dependencyWaves(route)
}

// dependencyWaves repeatedly selects every unscheduled subrequest whose
// depends_on is already satisfied, emitting it as the next wave. Unnamed
// subrequests are scheduled the moment they are emitted -- nothing can
// depend on a name that does not exist, so they never gate progress.
func (o *Orchestrator) dependencyWaves(route *config.RouteDefinition) ([][]config.SubrequestDefinition, *RequestError) {
	scheduled := map[string]bool{}
	remaining := append([]config.SubrequestDefinition(nil), route.Subrequests...)
	var waves [][]config.SubrequestDefinition

	for len(remaining) > 0 {
		var wave, next []config.SubrequestDefinition
		for _, sr := range remaining {
			ready := true
			for _, dep := range sr.DependsOn {
				if !scheduled[dep] {
					ready = false
					break
				}
			}
			if ready {
				wave = append(wave, sr)
			} else {
				next = append(next, sr)
			}
		}
		if len(wave) == 0 {
			return nil, errCircularDependency(route.Method + " " + route.Path)
		}
		for _, sr := range wave {
			if sr.Name != "" {
				scheduled[sr.Name] = true
			}
		}
		waves = append(waves, wave)
		remaining = next
	}
	return waves, nil
}

// runWave evaluates each candidate's Condition against snapshot, dispatches
// the surviving subrequests concurrently, and returns their results. On the
// first backend failure it cancels the remaining in-flight calls in this
// wave and reports SubrequestFailed (spec §4.6 step 3).
func (o *Orchestrator) runWave(ctx context.Context, wave []config.SubrequestDefinition, snapshot *InterpolationContext) ([]indexedResult, *RequestError) {
	var candidates []config.SubrequestDefinition
	var clients []Client
	for _, sr := range wave {
		if !Matches(sr.Condition, snapshot) {
			continue // skipped: no placeholder result inserted
		}
		client, ok := o.registry.Get(sr.ClientID)
		if !ok {
			return nil, errUnknownClient(sr.ClientID)
		}
		candidates = append(candidates, sr)
		clients = append(clients, client)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	waveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		idx    int
		result SubrequestResult
		err    *BackendError
	}
	outcomes := make(chan outcome, len(candidates))
	var wg sync.WaitGroup
	for i, sr := range candidates {
		sr, client := sr, clients[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := client.Execute(waveCtx, sr.Op, snapshot)
			outcomes <- outcome{idx: sr.Index, result: res, err: err}
		}()
	}
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	var results []indexedResult
	var failure *BackendError
	for oc := range outcomes {
		if oc.err != nil {
			if failure == nil {
				failure = oc.err
				cancel()
			}
			continue
		}
		results = append(results, indexedResult{index: oc.idx, result: oc.result})
	}
	if failure != nil {
		return nil, errSubrequestFailed(failure.Message)
	}
	return results, nil
}
