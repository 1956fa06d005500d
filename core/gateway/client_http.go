package gateway

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/relabs-tech/pmpgw/core/config"
)

// httpClient is the C3 adapter for the "http" client kind, load-balanced
// across its backend URLs (C4) and wrapped in retry/circuit-breaker
// resilience (C5).
type httpClient struct {
	id      string
	def     config.ClientDefinition
	urls    []string
	lb      LoadBalancer
	http    *http.Client
	resil   *Resilient
}

func newHTTPClient(id string, def config.ClientDefinition) (Client, error) {
	urls := def.URLs()
	var lb LoadBalancer
	if len(urls) > 1 {
		lb = NewLoadBalancer(def.LoadBalance, len(urls))
	}
	return &httpClient{
		id:   id,
		def:  def,
		urls: urls,
		lb:   lb,
		http: &http.Client{Timeout: time.Duration(def.TimeoutSeconds) * time.Second},
		resil: NewResilient(def.Retry, NewCircuitBreaker(def.CircuitBreaker)),
	}, nil
}

func (c *httpClient) Close() error { return nil }

func (c *httpClient) Execute(ctx context.Context, op config.BackendOp, ictx *InterpolationContext) (SubrequestResult, *BackendError) {
	httpOp, ok := op.(config.HTTPOp)
	if !ok {
		return nil, protocolError("http client received non-http op")
	}

	uri := Expand(httpOp.URI, ictx)
	method := httpOp.Method
	if method == "" {
		method = http.MethodGet
	}
	var body string
	if httpOp.Body != nil {
		body = Expand(*httpOp.Body, ictx)
	}
	headers := make(map[string]string, len(c.def.Headers)+len(httpOp.Headers))
	for k, v := range c.def.Headers {
		headers[k] = v
	}
	for k, v := range httpOp.Headers {
		headers[k] = Expand(v, ictx) // per-subrequest headers win on duplicates
	}

	idx := -1
	if c.lb != nil {
		idx = c.lb.Pick()
		defer c.lb.Release(idx)
	}
	base := c.baseURL(idx)

	return c.resil.Do(ctx, func(ctx context.Context) (SubrequestResult, *BackendError) {
		return c.dispatch(ctx, base, method, uri, headers, body, httpOp.Query, ictx)
	})
}

func (c *httpClient) baseURL(idx int) string {
	if idx >= 0 {
		return c.urls[idx]
	}
	if len(c.urls) > 0 {
		return c.urls[0]
	}
	return ""
}

func (c *httpClient) dispatch(ctx context.Context, base, method, uri string, headers map[string]string, body string, query map[string]string, ictx *InterpolationContext) (SubrequestResult, *BackendError) {
	req, err := http.NewRequestWithContext(ctx, method, base+uri, bytes.NewBufferString(body))
	if err != nil {
		return nil, protocolError(err.Error())
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	q := req.URL.Query()
	for k, v := range query {
		q.Add(k, Expand(v, ictx))
	}
	req.URL.RawQuery = q.Encode()

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, timeoutError(err.Error())
		}
		return nil, transportError(err.Error())
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(err.Error())
	}

	respHeaders := map[string]string{}
	for k := range resp.Header {
		respHeaders[k] = resp.Header.Get(k)
	}

	// HTTP status alone is never an error at this layer: 4xx/5xx both
	// succeed at the protocol level (spec §4.3).
	result := newResult(c.id, "http")
	result["status"] = resp.StatusCode
	result["headers"] = respHeaders
	result["body"] = string(respBody)
	return result, nil
}
