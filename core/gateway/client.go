package gateway

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/relabs-tech/pmpgw/core/config"
)

// Client is the uniform shape every backend adapter presents (spec §4.3).
// op is the subrequest's type-specific operation as configured; each
// adapter expands its templated fields against ictx before dispatch.
type Client interface {
	Execute(ctx context.Context, op config.BackendOp, ictx *InterpolationContext) (SubrequestResult, *BackendError)
	Close() error
}

// Registry builds and holds one Client per configured client_id, keyed by
// shared reference for the lifetime of a Config generation (spec §3's
// ClientDefinition lifecycle).
type Registry struct {
	clients map[string]Client
}

// NewRegistry constructs a Client for every entry in defs. SQL clients of
// the same kind share the database/sql connection-pooling model; Mongo and
// Redis clients own their native driver handles.
func NewRegistry(defs map[string]config.ClientDefinition) (*Registry, error) {
	reg := &Registry{clients: make(map[string]Client, len(defs))}
	for id, def := range defs {
		c, err := newClient(id, def)
		if err != nil {
			reg.closeAll()
			return nil, fmt.Errorf("client %q: %w", id, err)
		}
		reg.clients[id] = c
	}
	return reg, nil
}

func newClient(id string, def config.ClientDefinition) (Client, error) {
	switch def.Kind {
	case config.KindHTTP:
		return newHTTPClient(id, def)
	case config.KindPostgres:
		return newSQLClient(id, def, "postgres", def.ConnectionString)
	case config.KindMySQL:
		return newSQLClient(id, def, "mysql", def.ConnectionString)
	case config.KindSQLite:
		return newSQLClient(id, def, "sqlite", def.DatabasePath)
	case config.KindMongoDB:
		return newMongoClient(id, def)
	case config.KindRedis:
		return newKVClient(id, def)
	default:
		return nil, fmt.Errorf("unknown client kind %q", def.Kind)
	}
}

// Get looks up a client by id, returning ok=false for an unconfigured id
// (mapped to RequestError CircularDependency's sibling, UnknownClient, by
// the orchestrator).
func (r *Registry) Get(id string) (Client, bool) {
	c, ok := r.clients[id]
	return c, ok
}

// Close releases every held connection (database pools, mongo sessions,
// redis clients) -- called when a config generation is retired.
func (r *Registry) Close() error {
	return r.closeAll()
}

func (r *Registry) closeAll() error {
	var firstErr error
	for _, c := range r.clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// openSQLPool is shared plumbing between the three SQL dialects: a single
// *sql.DB pool per client, sized from the client's min/max connections.
func openSQLPool(driverName, dsn string, def config.ClientDefinition) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(def.MaxConnections)
	db.SetMaxIdleConns(def.MinConnections)
	return db, nil
}
