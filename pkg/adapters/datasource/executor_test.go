package datasource

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/reconlab/recon-engine/pkg/apperrors"
	"github.com/reconlab/recon-engine/pkg/sqlgen"
)

// fakedb is a scripted database/sql driver. Scripts are keyed by DSN so each
// test gets an isolated backend.
type fakeDriver struct {
	mu      sync.Mutex
	scripts map[string]*fakeScript
}

type fakeScript struct {
	pingErr  error
	queryErr error
	columns  []string
	rows     [][]driver.Value
	rowErr   error // surfaced through rows.Err after the last row
}

var (
	fakeDB    = &fakeDriver{scripts: make(map[string]*fakeScript)}
	scriptSeq atomic.Int64
)

func init() { sql.Register("fakedb", fakeDB) }

func (d *fakeDriver) install(dsn string, script *fakeScript) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scripts[dsn] = script
}

func (d *fakeDriver) Open(dsn string) (driver.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	script, ok := d.scripts[dsn]
	if !ok {
		return nil, fmt.Errorf("no script for dsn %s", dsn)
	}
	return &fakeConn{script: script}, nil
}

type fakeConn struct {
	script *fakeScript
}

var (
	_ driver.Conn           = (*fakeConn)(nil)
	_ driver.Pinger         = (*fakeConn)(nil)
	_ driver.QueryerContext = (*fakeConn)(nil)
)

func (c *fakeConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepare not supported")
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) Begin() (driver.Tx, error) {
	return nil, errors.New("transactions not supported")
}

func (c *fakeConn) Ping(context.Context) error { return c.script.pingErr }

func (c *fakeConn) QueryContext(context.Context, string, []driver.NamedValue) (driver.Rows, error) {
	if c.script.queryErr != nil {
		return nil, c.script.queryErr
	}
	return &fakeRows{script: c.script}, nil
}

type fakeRows struct {
	script *fakeScript
	idx    int
}

func (r *fakeRows) Columns() []string { return r.script.columns }

func (r *fakeRows) Close() error { return nil }

func (r *fakeRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.script.rows) {
		if r.script.rowErr != nil {
			return r.script.rowErr
		}
		return io.EOF
	}
	copy(dest, r.script.rows[r.idx])
	r.idx++
	return nil
}

func openScripted(t *testing.T, script *fakeScript) *SQLExecutor {
	t.Helper()
	dsn := fmt.Sprintf("%s-%d", t.Name(), scriptSeq.Add(1))
	fakeDB.install(dsn, script)

	exec, err := Open(context.Background(), "fakedb", dsn, sqlgen.DialectMySQL, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { exec.Close() })
	return exec
}

func materialRows(n int) [][]driver.Value {
	rows := make([][]driver.Value, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, []driver.Value{int64(i), []byte(fmt.Sprintf("MAT-%04d", i))})
	}
	return rows
}

func TestOpenPingFailure(t *testing.T) {
	dsn := fmt.Sprintf("%s-%d", t.Name(), scriptSeq.Add(1))
	fakeDB.install(dsn, &fakeScript{pingErr: errors.New("connection refused")})

	_, err := Open(context.Background(), "fakedb", dsn, sqlgen.DialectMySQL, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping")
}

func TestQueryCapsRowsKeepsFullCount(t *testing.T) {
	exec := openScripted(t, &fakeScript{
		columns: []string{"id", "material_id"},
		rows:    materialRows(2500),
	})

	result, err := exec.Query(context.Background(), "SELECT id, material_id FROM brz_orders", 100)
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "material_id"}, result.Columns)
	assert.Equal(t, 2500, result.RowCount)
	require.Len(t, result.Rows, 100)

	// Byte slices come back as strings, numerics keep their driver type.
	assert.Equal(t, "MAT-0000", result.Rows[0]["material_id"])
	assert.Equal(t, int64(0), result.Rows[0]["id"])
	assert.Equal(t, "MAT-0099", result.Rows[99]["material_id"])
}

func TestQueryDefaultsToMaxLimit(t *testing.T) {
	exec := openScripted(t, &fakeScript{
		columns: []string{"id", "material_id"},
		rows:    materialRows(MaxQueryLimit + 500),
	})

	result, err := exec.Query(context.Background(), "SELECT id, material_id FROM brz_orders", 0)
	require.NoError(t, err)

	assert.Len(t, result.Rows, MaxQueryLimit)
	assert.Equal(t, MaxQueryLimit+500, result.RowCount)
}

func TestStreamQueryChunks(t *testing.T) {
	exec := openScripted(t, &fakeScript{
		columns: []string{"id", "material_id"},
		rows:    materialRows(2500),
	})

	var chunkSizes []int
	columns, total, err := exec.StreamQuery(context.Background(), "SELECT id, material_id FROM brz_orders", 1000,
		func(chunk []map[string]any) error {
			chunkSizes = append(chunkSizes, len(chunk))
			return nil
		})
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "material_id"}, columns)
	assert.Equal(t, 2500, total)
	assert.Equal(t, []int{1000, 1000, 500}, chunkSizes)
}

func TestStreamQuerySinkErrorAborts(t *testing.T) {
	exec := openScripted(t, &fakeScript{
		columns: []string{"id", "material_id"},
		rows:    materialRows(2500),
	})

	sinkErr := errors.New("downstream full")
	_, total, err := exec.StreamQuery(context.Background(), "SELECT id, material_id FROM brz_orders", 1000,
		func([]map[string]any) error { return sinkErr })

	require.ErrorIs(t, err, sinkErr)
	assert.Equal(t, 1000, total)
}

func TestQueryClassifiesUnknownObject(t *testing.T) {
	exec := openScripted(t, &fakeScript{
		queryErr: errors.New("Error 1146: Table 'bronze.brz_orders' doesn't exist"),
	})

	_, err := exec.Query(context.Background(), "SELECT 1 FROM bronze.brz_orders", 10)
	assert.ErrorIs(t, err, apperrors.ErrSchemaObjectNotFound)
}

func TestQueryClassifiesExecutionError(t *testing.T) {
	exec := openScripted(t, &fakeScript{
		queryErr: errors.New("syntax error at or near \"SELEC\""),
	})

	_, err := exec.Query(context.Background(), "SELEC 1", 10)
	assert.ErrorIs(t, err, apperrors.ErrExecution)
	assert.NotErrorIs(t, err, apperrors.ErrSchemaObjectNotFound)
}

func TestQueryClassifiesRowIterationError(t *testing.T) {
	exec := openScripted(t, &fakeScript{
		columns: []string{"id", "material_id"},
		rows:    materialRows(3),
		rowErr:  errors.New("read tcp: connection reset by peer"),
	})

	_, err := exec.Query(context.Background(), "SELECT id, material_id FROM brz_orders", 10)
	assert.ErrorIs(t, err, apperrors.ErrExecution)
}

func TestQuoteIdentifierUsesDialect(t *testing.T) {
	exec := openScripted(t, &fakeScript{columns: []string{"id"}})

	assert.Equal(t, "`brz_orders`", exec.QuoteIdentifier("brz_orders"))
}
