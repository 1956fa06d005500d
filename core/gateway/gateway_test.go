package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/pmpgw/core/config"
)

func newTestGateway(t *testing.T, yamlDoc string) *Gateway {
	t.Helper()
	cfg, err := config.Parse([]byte(yamlDoc))
	require.NoError(t, err)
	router := mux.NewRouter()
	gw, err := New(&Builder{Config: cfg, Router: router})
	require.NoError(t, err)
	t.Cleanup(func() { gw.Close() })
	return gw
}

func (g *Gateway) testServer() *httptest.Server {
	return httptest.NewServer(g.router)
}

func TestGatewayEndToEndSingleSubrequest(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"name":"ada"}`))
	}))
	defer backend.Close()

	doc := `
clients:
  users:
    type: http
    base_url: ` + backend.URL + `
routes:
  - method: GET
    path: /profile
    subrequests:
      - name: user
        client_id: users
        type: http
        uri: /users/1
`
	gw := newTestGateway(t, doc)
	srv := gw.testServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/profile")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, float64(1), out["count"])
}

func TestGatewayEndToEndResponseTemplate(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id":7}`))
	}))
	defer backend.Close()

	doc := `
clients:
  users:
    type: http
    base_url: ` + backend.URL + `
routes:
  - method: GET
    path: /welcome
    subrequests:
      - name: user
        client_id: users
        type: http
        uri: /users/1
    response_transform:
      template: '{"hello": "${response.subrequests.0.status}"}'
`
	gw := newTestGateway(t, doc)
	srv := gw.testServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/welcome")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "200", out["hello"])
}

func TestGatewayRouteNotFound(t *testing.T) {
	doc := `
clients: {}
routes: []
`
	gw := newTestGateway(t, doc)
	srv := gw.testServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGatewayConditionalSubrequestSkippedWhenHeaderAbsent(t *testing.T) {
	hit := false
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	doc := `
clients:
  svc:
    type: http
    base_url: ` + backend.URL + `
routes:
  - method: GET
    path: /maybe
    subrequests:
      - name: extra
        client_id: svc
        type: http
        uri: /x
        condition:
          type: headerexists
          header: X-Feature
`
	gw := newTestGateway(t, doc)
	srv := gw.testServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/maybe")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, hit)

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, float64(0), out["count"])
}
