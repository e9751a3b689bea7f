package executor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/reconlab/recon-engine/pkg/models"
)

// ExecuteQuery runs one NL-derived SQL statement. Failures are captured in
// the result's Error field, never returned: per-item errors do not fail a
// batch.
func (e *Executor) ExecuteQuery(ctx context.Context, intent models.QueryIntent, sqlText string, backend Backend, limit int) *models.QueryResult {
	result := &models.QueryResult{
		Definition:  intent.OriginalText,
		QueryType:   intent.QueryType,
		Operation:   intent.Operation,
		SQL:         sqlText,
		JoinColumns: intent.JoinColumns,
		Filters:     intent.Filters,
		SourceTable: intent.SourceTable,
		TargetTable: intent.TargetTable,
		Confidence:  intent.Confidence,
	}

	e.logAttempt("FIRST", intent.QueryType, intent.OriginalText, sqlText)

	start := time.Now()
	res, err := backend.Conn.Query(ctx, sqlText, limit)
	result.ExecutionTimeMs = time.Since(start).Milliseconds()

	if err != nil {
		e.logger.Error("NL query failed",
			zap.String("definition", intent.OriginalText),
			zap.Error(err))
		result.Error = err.Error()
		return result
	}

	result.Records = filterExcludedColumns(res.Rows)
	result.RecordCount = len(result.Records)

	e.logger.Info("NL query executed",
		zap.String("query_type", intent.QueryType),
		zap.Int("rows", result.RecordCount),
		zap.Int64("elapsed_ms", result.ExecutionTimeMs))
	return result
}
