// Package datasource provides read-only SQL execution against the source and
// target reconciliation databases over database/sql.
package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/reconlab/recon-engine/pkg/apperrors"
	"github.com/reconlab/recon-engine/pkg/logging"
	"github.com/reconlab/recon-engine/pkg/sqlgen"
)

// MaxQueryLimit is the hard cap on rows retained by Query.
const MaxQueryLimit = 1000

// DefaultChunkSize is the number of rows handed to a StreamQuery sink at a
// time.
const DefaultChunkSize = 1000

// Connection pool defaults per destination.
const (
	defaultMaxOpenConns = 8
	defaultConnLifetime = 5 * time.Minute
)

// QueryExecutor executes SQL against a reconciliation datasource. Each
// implementation owns its connection and must be closed when done.
type QueryExecutor interface {
	// Query runs a SELECT and returns rows as column→value maps. Rows is
	// capped at limit (MaxQueryLimit when limit <= 0 or larger); RowCount is
	// the total number of rows the statement produced, which may exceed the
	// cap.
	Query(ctx context.Context, sqlQuery string, limit int) (*QueryExecutionResult, error)

	// QuoteIdentifier quotes a table, column, or schema name for the
	// executor's dialect.
	QuoteIdentifier(name string) string

	// Close releases the connection pool.
	Close() error
}

// QueryExecutionResult holds the rows from one query. RowCount counts every
// row the statement produced even when Rows was truncated at the retention
// cap.
type QueryExecutionResult struct {
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
}

// SQLExecutor is the database/sql backed QueryExecutor used for mysql,
// postgresql, sqlserver, and oracle backends.
type SQLExecutor struct {
	db      *sql.DB
	dialect sqlgen.Dialect
	logger  *zap.Logger
}

var _ QueryExecutor = (*SQLExecutor)(nil)

// Open creates an executor over a registered database/sql driver. The
// connection is verified with a ping bound to ctx.
func Open(ctx context.Context, driverName, dsn string, dialect sqlgen.Dialect, logger *zap.Logger) (*SQLExecutor, error) {
	logger.Debug("opening datasource",
		zap.String("driver", driverName),
		zap.String("dsn", logging.RedactURL(dsn)))

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s connection: %w", driverName, err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetConnMaxLifetime(defaultConnLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s backend: %s", driverName, logging.RedactError(err))
	}

	return &SQLExecutor{
		db:      db,
		dialect: dialect,
		logger:  logger.Named("datasource"),
	}, nil
}

func (e *SQLExecutor) Query(ctx context.Context, sqlQuery string, limit int) (*QueryExecutionResult, error) {
	if limit <= 0 || limit > MaxQueryLimit {
		limit = MaxQueryLimit
	}

	start := time.Now()
	result := &QueryExecutionResult{}
	columns, total, err := e.StreamQuery(ctx, sqlQuery, DefaultChunkSize, func(chunk []map[string]any) error {
		for _, row := range chunk {
			if len(result.Rows) >= limit {
				return nil
			}
			result.Rows = append(result.Rows, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.Columns = columns
	result.RowCount = total

	e.logger.Info("query executed",
		zap.Int("rows", result.RowCount),
		zap.Int("retained", len(result.Rows)),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()))
	return result, nil
}

// StreamQuery runs a SELECT and feeds rows to sink in chunks of chunkSize
// (DefaultChunkSize when chunkSize <= 0), so arbitrarily large results are
// scanned without holding them all in memory. It returns the result columns
// and the total number of rows scanned. A sink error aborts the scan and is
// returned unchanged.
func (e *SQLExecutor) StreamQuery(ctx context.Context, sqlQuery string, chunkSize int, sink func(chunk []map[string]any) error) ([]string, int, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	rows, err := e.db.QueryContext(ctx, sqlQuery)
	if err != nil {
		return nil, 0, classifyQueryError(err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, 0, fmt.Errorf("read result columns: %w", err)
	}

	values := make([]any, len(columns))
	pointers := make([]any, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}

	total := 0
	chunk := make([]map[string]any, 0, chunkSize)
	for rows.Next() {
		if err := rows.Scan(pointers...); err != nil {
			return columns, total, fmt.Errorf("scan row: %w", err)
		}
		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			val := values[i]
			if b, ok := val.([]byte); ok {
				val = string(b)
			}
			rowMap[col] = val
		}
		chunk = append(chunk, rowMap)
		total++
		if len(chunk) == chunkSize {
			if err := sink(chunk); err != nil {
				return columns, total, err
			}
			chunk = make([]map[string]any, 0, chunkSize)
		}
	}
	if err := rows.Err(); err != nil {
		return columns, total, classifyQueryError(err)
	}
	if len(chunk) > 0 {
		if err := sink(chunk); err != nil {
			return columns, total, err
		}
	}
	return columns, total, nil
}

func (e *SQLExecutor) QuoteIdentifier(name string) string {
	return e.dialect.Quote(name)
}

func (e *SQLExecutor) Close() error {
	return e.db.Close()
}

// classifyQueryError maps backend failures onto the error taxonomy so the
// executor can decide on the schema-prefix fallback.
func classifyQueryError(err error) error {
	if isUnknownObjectError(err) {
		return fmt.Errorf("%w: %v", apperrors.ErrSchemaObjectNotFound, err)
	}
	return fmt.Errorf("%w: %v", apperrors.ErrExecution, err)
}
