package gateway

import (
	"context"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/pmpgw/core/config"
)

func TestSQLClientQueriesSQLiteAndProjectsColumns(t *testing.T) {
	def := config.ClientDefinition{Kind: config.KindSQLite, DatabasePath: "file::memory:?cache=shared"}
	c, err := newSQLClient("db", def, "sqlite", def.DatabasePath)
	require.NoError(t, err)
	defer c.Close()

	sc := c.(*sqlClient)
	_, execErr := sc.db.Exec(`CREATE TABLE users (id INTEGER, name TEXT)`)
	require.NoError(t, execErr)
	_, execErr = sc.db.Exec(`INSERT INTO users (id, name) VALUES (1, 'ada'), (2, 'grace')`)
	require.NoError(t, execErr)

	op := config.SQLOp{Query: "SELECT id, name FROM users WHERE id = ?", Params: []string{"1"}}
	ictx := NewInterpolationContext("GET", nil, nil, nil, "")
	res, berr := c.Execute(context.Background(), op, ictx)
	require.Nil(t, berr)
	assert.Equal(t, 1, res["row_count"])
	rows := res["rows"].([]interface{})
	row := rows[0].(map[string]interface{})
	assert.Equal(t, "ada", row["name"])
}

func TestSQLClientBadQueryIsProtocolError(t *testing.T) {
	def := config.ClientDefinition{Kind: config.KindSQLite, DatabasePath: "file::memory:?cache=shared&mode=rwc"}
	c, err := newSQLClient("db", def, "sqlite", def.DatabasePath)
	require.NoError(t, err)
	defer c.Close()

	op := config.SQLOp{Query: "SELECT * FROM nonexistent_table"}
	ictx := NewInterpolationContext("GET", nil, nil, nil, "")
	_, berr := c.Execute(context.Background(), op, ictx)
	require.NotNil(t, berr)
	assert.Equal(t, ErrProtocol, berr.Kind)
}
