package executor

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/reconlab/recon-engine/pkg/adapters/datasource"
	"github.com/reconlab/recon-engine/pkg/apperrors"
	"github.com/reconlab/recon-engine/pkg/models"
	"github.com/reconlab/recon-engine/pkg/sqlgen"
	"github.com/reconlab/recon-engine/pkg/workqueue"
)

// fakeConn is a scripted QueryExecutor: QueryFunc decides per statement.
type fakeConn struct {
	QueryFunc func(sqlQuery string) (*datasource.QueryExecutionResult, error)
	queries   []string
}

func (f *fakeConn) Query(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryExecutionResult, error) {
	f.queries = append(f.queries, sqlQuery)
	if f.QueryFunc != nil {
		return f.QueryFunc(sqlQuery)
	}
	return &datasource.QueryExecutionResult{}, nil
}

func (f *fakeConn) QuoteIdentifier(name string) string { return name }
func (f *fakeConn) Close() error                       { return nil }

func rowsResult(rows ...map[string]any) *datasource.QueryExecutionResult {
	return &datasource.QueryExecutionResult{Rows: rows, RowCount: len(rows)}
}

func execRule() models.ReconciliationRule {
	return models.ReconciliationRule{
		RuleID:        "RULE_11111111",
		RuleName:      "GPU to master",
		SourceSchema:  "bronze",
		SourceTable:   "brz_lnd_RBP_GPU",
		SourceColumns: []string{"material_id"},
		TargetSchema:  "hana",
		TargetTable:   "hana_material_master",
		TargetColumns: []string{"id"},
		MatchType:     models.MatchTypeExact,
	}
}

func execRuleset(rules ...models.ReconciliationRule) *models.Ruleset {
	return &models.Ruleset{RulesetID: "RECON_11111111", Rules: rules}
}

func newExecutor() *Executor {
	return New(workqueue.NewPool(2, zap.NewNop()), zap.NewNop())
}

func backendFor(conn *fakeConn, dialect sqlgen.Dialect) Backend {
	return Backend{Conn: conn, Gen: sqlgen.NewGenerator(dialect, zap.NewNop())}
}

func TestExecuteRuleset(t *testing.T) {
	sourceConn := &fakeConn{QueryFunc: func(sqlQuery string) (*datasource.QueryExecutionResult, error) {
		if strings.Contains(sqlQuery, "IS NULL") {
			return rowsResult(map[string]any{"material_id": "M2"}), nil
		}
		return rowsResult(
			map[string]any{"material_id": "M1"},
			map[string]any{"material_id": "M3"},
		), nil
	}}
	targetConn := &fakeConn{QueryFunc: func(sqlQuery string) (*datasource.QueryExecutionResult, error) {
		return rowsResult(map[string]any{"id": "X9"}), nil
	}}

	outcome, err := newExecutor().ExecuteRuleset(context.Background(), execRuleset(execRule()),
		backendFor(sourceConn, sqlgen.DialectMySQL), backendFor(targetConn, sqlgen.DialectMySQL), 100)
	require.NoError(t, err)

	assert.Equal(t, 2, outcome.MatchedCount)
	assert.Equal(t, 1, outcome.UnmatchedSourceCount)
	assert.Equal(t, 1, outcome.UnmatchedTargetCount)
	assert.Empty(t, outcome.RuleErrors)
	require.Len(t, outcome.GeneratedSQL, 3)
	assert.Equal(t, models.QueryModeMatched, outcome.GeneratedSQL[0].QueryType)
	assert.Equal(t, models.QueryModeUnmatchedSource, outcome.GeneratedSQL[1].QueryType)
	assert.Equal(t, models.QueryModeUnmatchedTarget, outcome.GeneratedSQL[2].QueryType)

	// Matched and unmatched_source run on the source backend, unmatched_target
	// on the target backend.
	assert.Len(t, sourceConn.queries, 2)
	assert.Len(t, targetConn.queries, 1)
}

func TestExecuteRulesetSchemaPrefixFallback(t *testing.T) {
	var attempts []string
	sourceConn := &fakeConn{QueryFunc: func(sqlQuery string) (*datasource.QueryExecutionResult, error) {
		attempts = append(attempts, sqlQuery)
		if strings.Contains(sqlQuery, "`bronze`.") {
			return nil, fmt.Errorf("%w: Table 'bronze.brz_lnd_RBP_GPU' doesn't exist", apperrors.ErrSchemaObjectNotFound)
		}
		return rowsResult(map[string]any{"material_id": "M1"}), nil
	}}
	targetConn := &fakeConn{QueryFunc: func(sqlQuery string) (*datasource.QueryExecutionResult, error) {
		if strings.Contains(sqlQuery, "`hana`.") {
			return nil, fmt.Errorf("%w: unknown table", apperrors.ErrSchemaObjectNotFound)
		}
		return rowsResult(), nil
	}}

	outcome, err := newExecutor().ExecuteRuleset(context.Background(), execRuleset(execRule()),
		backendFor(sourceConn, sqlgen.DialectMySQL), backendFor(targetConn, sqlgen.DialectMySQL), 100)
	require.NoError(t, err)

	assert.Empty(t, outcome.RuleErrors)
	assert.Equal(t, 2, outcome.MatchedCount+outcome.UnmatchedSourceCount)

	// Each mode retried once without the prefix; the recorded SQL is the
	// unprefixed retry.
	assert.Len(t, sourceConn.queries, 4)
	for _, g := range outcome.GeneratedSQL {
		assert.NotContains(t, g.SourceSQL, "`bronze`.")
		assert.NotContains(t, g.SourceSQL, "`hana`.")
	}
}

func TestExecuteRulesetNoRetryWithoutSchemaNames(t *testing.T) {
	rule := execRule()
	rule.SourceSchema = ""
	rule.TargetSchema = ""
	conn := &fakeConn{QueryFunc: func(sqlQuery string) (*datasource.QueryExecutionResult, error) {
		return nil, fmt.Errorf("%w: no such table", apperrors.ErrSchemaObjectNotFound)
	}}

	outcome, err := newExecutor().ExecuteRuleset(context.Background(), execRuleset(rule),
		backendFor(conn, sqlgen.DialectMySQL), backendFor(conn, sqlgen.DialectMySQL), 100)
	require.NoError(t, err)

	// Prefixed and unprefixed SQL are identical, so there is nothing to retry.
	require.Len(t, outcome.RuleErrors, 1)
	assert.Len(t, conn.queries, 1)
}

func TestExecuteRulesetCapturesRuleErrors(t *testing.T) {
	good := execRule()
	bad := execRule()
	bad.RuleID = "RULE_22222222"
	bad.RuleName = "broken rule"
	bad.SourceTable = "missing_table"

	conn := &fakeConn{QueryFunc: func(sqlQuery string) (*datasource.QueryExecutionResult, error) {
		if strings.Contains(sqlQuery, "missing_table") {
			return nil, fmt.Errorf("%w: connection reset", apperrors.ErrExecution)
		}
		return rowsResult(map[string]any{"material_id": "M1"}), nil
	}}
	backend := backendFor(conn, sqlgen.DialectMySQL)

	outcome, err := newExecutor().ExecuteRuleset(context.Background(), execRuleset(good, bad), backend, backend, 100)
	require.NoError(t, err)

	require.Len(t, outcome.RuleErrors, 1)
	assert.Equal(t, "RULE_22222222", outcome.RuleErrors[0].RuleID)
	assert.Contains(t, outcome.RuleErrors[0].Message, "connection reset")
	// The healthy rule still produced its three statements.
	assert.Len(t, outcome.GeneratedSQL, 3)
	assert.Equal(t, 1, outcome.MatchedCount)
}

func TestExecuteRulesetFiltersExcludedColumns(t *testing.T) {
	conn := &fakeConn{QueryFunc: func(sqlQuery string) (*datasource.QueryExecutionResult, error) {
		return rowsResult(map[string]any{
			"material_id":   "M1",
			"Product_Line":  "Gaming",
			"Business Unit": "Compute",
		}), nil
	}}
	backend := backendFor(conn, sqlgen.DialectMySQL)

	outcome, err := newExecutor().ExecuteRuleset(context.Background(), execRuleset(execRule()), backend, backend, 100)
	require.NoError(t, err)

	require.NotEmpty(t, outcome.MatchedRecords)
	row := outcome.MatchedRecords[0]
	assert.NotContains(t, row, "Product_Line")
	assert.NotContains(t, row, "Business Unit")
	assert.Contains(t, row, "material_id")
}

func TestExecuteRulesetCapsAggregatedRecords(t *testing.T) {
	conn := &fakeConn{QueryFunc: func(sqlQuery string) (*datasource.QueryExecutionResult, error) {
		return rowsResult(
			map[string]any{"material_id": "M1"},
			map[string]any{"material_id": "M2"},
			map[string]any{"material_id": "M3"},
		), nil
	}}
	backend := backendFor(conn, sqlgen.DialectMySQL)

	outcome, err := newExecutor().ExecuteRuleset(context.Background(), execRuleset(execRule()), backend, backend, 2)
	require.NoError(t, err)

	// Counts reflect everything returned; record payloads are capped.
	assert.Equal(t, 3, outcome.MatchedCount)
	assert.Len(t, outcome.MatchedRecords, 2)
}

func TestExecuteRulesetCountsBeyondRetainedRows(t *testing.T) {
	conn := &fakeConn{QueryFunc: func(sqlQuery string) (*datasource.QueryExecutionResult, error) {
		return &datasource.QueryExecutionResult{
			Rows:     []map[string]any{{"material_id": "M1"}},
			RowCount: 1247,
		}, nil
	}}
	backend := backendFor(conn, sqlgen.DialectMySQL)

	outcome, err := newExecutor().ExecuteRuleset(context.Background(), execRuleset(execRule()), backend, backend, 100)
	require.NoError(t, err)

	// The scan total survives even when the record payload was truncated at
	// the retention cap.
	assert.Equal(t, 1247, outcome.MatchedCount)
	assert.Len(t, outcome.MatchedRecords, 1)
}

func TestExecuteQuery(t *testing.T) {
	conn := &fakeConn{QueryFunc: func(sqlQuery string) (*datasource.QueryExecutionResult, error) {
		return rowsResult(map[string]any{"material_id": "M1", "Product Type": "GPU"}), nil
	}}

	intent := models.QueryIntent{
		QueryType:    models.QueryTypeComparison,
		Operation:    models.OperationNotIn,
		SourceTable:  "brz_lnd_RBP_GPU",
		TargetTable:  "hana_material_master",
		OriginalText: "GPU records not in master",
		Confidence:   0.8,
	}
	result := newExecutor().ExecuteQuery(context.Background(), intent, "SELECT 1",
		backendFor(conn, sqlgen.DialectMySQL), 100)

	assert.Empty(t, result.Error)
	assert.Equal(t, 1, result.RecordCount)
	assert.NotContains(t, result.Records[0], "Product Type")
	assert.Equal(t, "GPU records not in master", result.Definition)
	assert.Equal(t, "SELECT 1", result.SQL)
}

func TestExecuteQueryErrorInResult(t *testing.T) {
	conn := &fakeConn{QueryFunc: func(sqlQuery string) (*datasource.QueryExecutionResult, error) {
		return nil, fmt.Errorf("%w: timeout", apperrors.ErrExecution)
	}}

	result := newExecutor().ExecuteQuery(context.Background(), models.QueryIntent{OriginalText: "x"},
		"SELECT 1", backendFor(conn, sqlgen.DialectMySQL), 100)

	assert.Contains(t, result.Error, "timeout")
	assert.Equal(t, 0, result.RecordCount)
}
