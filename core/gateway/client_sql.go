package gateway

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/relabs-tech/pmpgw/core/config"
)

// sqlClient is the shared C3 adapter for postgres, mysql and sqlite: the
// three dialects differ only in driver name and DSN, never in row
// projection or parameter binding (spec §4.3).
type sqlClient struct {
	id      string
	dialect string
	db      *sql.DB
	timeout time.Duration
	resil   *Resilient
}

func newSQLClient(id string, def config.ClientDefinition, driverName, dsn string) (Client, error) {
	db, err := openSQLPool(driverName, dsn, def)
	if err != nil {
		return nil, err
	}
	return &sqlClient{
		id:      id,
		dialect: driverName,
		db:      db,
		timeout: time.Duration(def.TimeoutSeconds) * time.Second,
		resil:   NewResilient(def.Retry, nil), // circuit breaker is HTTP-only per spec §4.5
	}, nil
}

func (c *sqlClient) Close() error { return c.db.Close() }

func (c *sqlClient) Execute(ctx context.Context, op config.BackendOp, ictx *InterpolationContext) (SubrequestResult, *BackendError) {
	sqlOp, ok := op.(config.SQLOp)
	if !ok {
		return nil, protocolError("sql client received non-sql op")
	}
	query := Expand(sqlOp.Query, ictx)
	args := make([]interface{}, len(sqlOp.Params))
	for i, p := range sqlOp.Params {
		args[i] = Expand(p, ictx)
	}

	return c.resil.Do(ctx, func(ctx context.Context) (SubrequestResult, *BackendError) {
		return c.dispatch(ctx, query, args)
	})
}

func (c *sqlClient) dispatch(ctx context.Context, query string, args []interface{}) (SubrequestResult, *BackendError) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifySQLError(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, protocolError(err.Error())
	}

	var out []interface{}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, protocolError(err.Error())
		}
		obj := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			obj[col] = convertSQLValue(values[i])
		}
		out = append(out, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, classifySQLError(err)
	}

	result := newResult(c.id, "sql")
	result["rows"] = out
	result["row_count"] = len(out)
	return result, nil
}

// convertSQLValue maps a database/sql driver value to its JSON counterpart
// (spec §4.3): integer -> number, boolean -> bool, text -> string, null ->
// null, everything else -> attempt-string-then-null.
func convertSQLValue(v interface{}) interface{} {
	switch t := v.(type) {
	case nil:
		return nil
	case bool:
		return t
	case int64:
		return t
	case float64:
		return t
	case []byte:
		return string(t)
	case string:
		return t
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		if s, ok := v.(fmt.Stringer); ok {
			return s.String()
		}
		return nil
	}
}

// classifySQLError distinguishes a retryable connection failure from a
// non-retryable SQL semantic error (spec §4.3).
func classifySQLError(err error) *BackendError {
	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.As(err, &netErr) {
		return transportError(err.Error())
	}
	return protocolError(err.Error())
}
