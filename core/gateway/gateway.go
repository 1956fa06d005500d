// Package gateway implements the request-orchestration engine: template
// interpolation, conditional subrequest gating, dependency-wave scheduling,
// heterogeneous backend dispatch and response shaping.
package gateway

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	json "github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/relabs-tech/pmpgw/core/config"
)

// Gateway wires a loaded Config into a mux.Router, one handler per
// RouteDefinition registered under its exact (method, path) -- no
// first-route-wins fallback.
type Gateway struct {
	cfg      *config.Config
	registry *Registry
	orch     *Orchestrator
	router   *mux.Router
	log      *logrus.Entry
}

// Builder is the construction parameters for a Gateway.
type Builder struct {
	// Config is the loaded, validated gateway configuration. Mandatory.
	Config *config.Config
	// Router is a mux router to register routes onto. Mandatory.
	Router *mux.Router
	// Log receives structured access and error logs. Defaults to the
	// standard logrus logger.
	Log *logrus.Entry
}

// New realizes the gateway: builds the client registry and registers one
// route handler per configured RouteDefinition.
func New(bb *Builder) (*Gateway, error) {
	if bb.Config == nil {
		panic("Config is missing")
	}
	if bb.Router == nil {
		panic("Router is missing")
	}
	log := bb.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	registry, err := NewRegistry(bb.Config.Clients)
	if err != nil {
		return nil, errors.Wrap(err, "gateway: build client registry")
	}

	g := &Gateway{
		cfg:      bb.Config,
		registry: registry,
		orch:     NewOrchestrator(registry),
		router:   bb.Router,
		log:      log,
	}

	notFound := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.writeError(w, errRouteNotFound())
	})
	g.router.NotFoundHandler = notFound
	g.router.MethodNotAllowedHandler = notFound

	for i := range bb.Config.Routes {
		route := &bb.Config.Routes[i]
		g.router.HandleFunc(route.Path, g.handlerFor(route)).Methods(route.Method)
	}
	return g, nil
}

// Close releases every backend client's held resources (pools, sessions).
func (g *Gateway) Close() error {
	return g.registry.Close()
}

func (g *Gateway) handlerFor(route *config.RouteDefinition) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g.serveRoute(w, r, route)
	}
}

func (g *Gateway) serveRoute(w http.ResponseWriter, r *http.Request, route *config.RouteDefinition) {
	ctx := r.Context()
	if g.cfg.Server.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(g.cfg.Server.Timeout)*time.Second)
		defer cancel()
	}

	bodyLimit := g.cfg.Server.MaxBodySize
	if bodyLimit <= 0 {
		bodyLimit = 10 * 1024 * 1024
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, bodyLimit+1))
	if err != nil {
		g.writeError(w, errBadRequest("cannot read request body"))
		return
	}
	if int64(len(body)) > bodyLimit {
		g.writeError(w, errBadRequest("request body too large"))
		return
	}

	pathVars := mux.Vars(r)
	query := map[string]string{}
	for k, vs := range r.URL.Query() {
		if len(vs) > 0 {
			query[k] = vs[len(vs)-1] // duplicates: last value wins
		}
	}

	activeRoute := route
	if route.TrafficSplit != nil {
		if variant, ok, setSticky := SelectVariant(route.TrafficSplit, r); ok {
			cloned := *route
			cloned.Subrequests = variant.Subrequests
			if variant.ExecutionMode != "" {
				cloned.ExecutionMode = variant.ExecutionMode
			}
			activeRoute = &cloned
			if setSticky {
				http.SetCookie(w, &http.Cookie{
					Name:  route.TrafficSplit.StickyCookie,
					Value: variant.Name,
					Path:  "/",
				})
			}
		}
	}
	if route.TrafficMirror != nil {
		Mirror(route.TrafficMirror, g.registry, r.Method, body, g.log)
	}

	ictx := NewInterpolationContext(r.Method, r.Header, pathVars, query, string(body))

	envelope, reqErr := g.orch.Execute(ctx, activeRoute, ictx)
	if reqErr != nil {
		g.writeError(w, reqErr)
		return
	}

	shaped, err := Shape(envelope, route.ResponseTransform, ictx)
	if err != nil {
		g.writeError(w, errBadRequest(err.Error()))
		return
	}
	g.writeJSON(w, http.StatusOK, shaped)
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		g.log.WithError(err).Error("gateway: marshal response failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}

func (g *Gateway) writeError(w http.ResponseWriter, reqErr *RequestError) {
	g.log.WithField("code", reqErr.Code).Warn(reqErr.Message)
	g.writeJSON(w, reqErr.Status, map[string]string{"error": reqErr.Code, "message": reqErr.Message})
}
