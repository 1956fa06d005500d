package gateway

import "sync"

// InterpolationContext is per-request state owned by the Orchestrator (spec
// §3). It is mutated only by appending entries to results as subrequests
// complete, and never shared across requests.
type InterpolationContext struct {
	Method  string
	Headers map[string][]string // keys already canonicalized
	Path    map[string]string
	Query   map[string]string // last value wins on duplicates
	Body    string

	mu      sync.RWMutex
	results map[string]interface{} // subrequest name -> decoded JSON result
}

// NewInterpolationContext builds an empty context for one inbound request.
func NewInterpolationContext(method string, headers map[string][]string, path, query map[string]string, body string) *InterpolationContext {
	return &InterpolationContext{
		Method:  method,
		Headers: headers,
		Path:    path,
		Query:   query,
		Body:    body,
		results: make(map[string]interface{}),
	}
}

// Header looks up a header case-insensitively, returning "" if absent.
func (c *InterpolationContext) Header(name string) string {
	for k, vs := range c.Headers {
		if equalFold(k, name) && len(vs) > 0 {
			return vs[len(vs)-1]
		}
	}
	return ""
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// Result returns the decoded result for a named subrequest, and whether it
// is present -- absence and a prior false Condition are indistinguishable
// from here, by design.
func (c *InterpolationContext) Result(name string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.results[name]
	return v, ok
}

// setResult records subrequest name's result. Called only by the
// orchestrator after a wave completes, never concurrently with a snapshot's
// readers within that same wave (spec §5).
func (c *InterpolationContext) setResult(name string, value interface{}) {
	if name == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[name] = value
}

// Snapshot returns a read-only clone of the context as seen at wave start:
// subrequests within a wave must not observe each other's results, only
// those merged from strictly earlier waves (spec §4.6 step 3.2).
func (c *InterpolationContext) Snapshot() *InterpolationContext {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cloned := make(map[string]interface{}, len(c.results))
	for k, v := range c.results {
		cloned[k] = v
	}
	return &InterpolationContext{
		Method:  c.Method,
		Headers: c.Headers,
		Path:    c.Path,
		Query:   c.Query,
		Body:    c.Body,
		results: cloned,
	}
}
