// Package executor runs reconciliation rules and NL queries against the
// source and target backends, with a schema-prefix fallback and bounded
// per-rule fan-out.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/reconlab/recon-engine/pkg/adapters/datasource"
	"github.com/reconlab/recon-engine/pkg/apperrors"
	"github.com/reconlab/recon-engine/pkg/models"
	"github.com/reconlab/recon-engine/pkg/sqlgen"
	"github.com/reconlab/recon-engine/pkg/workqueue"
)

// Backend pairs a query connection with the SQL generator for its dialect.
type Backend struct {
	Conn datasource.QueryExecutor
	Gen  *sqlgen.Generator
}

// Executor runs rulesets and single NL queries.
type Executor struct {
	pool   *workqueue.Pool
	logger *zap.Logger
}

// New creates an executor over the shared worker pool.
func New(pool *workqueue.Pool, logger *zap.Logger) *Executor {
	return &Executor{
		pool:   pool,
		logger: logger.Named("executor"),
	}
}

// ruleOutcome is the result of running one rule's three query modes. Counts
// cover the full result of each query; the record slices are capped at the
// retention limit.
type ruleOutcome struct {
	matched              []map[string]any
	unmatchedSource      []map[string]any
	unmatchedTarget      []map[string]any
	matchedCount         int
	unmatchedSourceCount int
	unmatchedTargetCount int
	generatedSQL         []models.GeneratedSQL
	ruleError            *models.RuleError
}

// ExecuteRuleset runs matched, unmatched_source, and unmatched_target queries
// for every rule, fanning out across the pool and reassembling results in
// rule order. Per-rule failures land in RuleErrors; other rules proceed.
func (e *Executor) ExecuteRuleset(ctx context.Context, ruleset *models.Ruleset, source, target Backend, limit int) (*models.ExecutionOutcome, error) {
	start := time.Now()

	items := make([]workqueue.Item[ruleOutcome], len(ruleset.Rules))
	for i, rule := range ruleset.Rules {
		rule := rule
		items[i] = workqueue.Item[ruleOutcome]{
			ID: rule.RuleID,
			Execute: func(ctx context.Context) (ruleOutcome, error) {
				return e.runRule(ctx, rule, source, target, limit), nil
			},
		}
	}

	results, err := workqueue.Run(ctx, e.pool, items)
	if err != nil {
		return nil, err
	}

	outcome := &models.ExecutionOutcome{}
	for _, res := range results {
		if res.Err != nil {
			// Only context cancellation surfaces here.
			return nil, res.Err
		}
		ro := res.Value
		outcome.MatchedRecords = appendCapped(outcome.MatchedRecords, ro.matched, limit)
		outcome.UnmatchedSource = appendCapped(outcome.UnmatchedSource, ro.unmatchedSource, limit)
		outcome.UnmatchedTarget = appendCapped(outcome.UnmatchedTarget, ro.unmatchedTarget, limit)
		outcome.MatchedCount += ro.matchedCount
		outcome.UnmatchedSourceCount += ro.unmatchedSourceCount
		outcome.UnmatchedTargetCount += ro.unmatchedTargetCount
		outcome.GeneratedSQL = append(outcome.GeneratedSQL, ro.generatedSQL...)
		if ro.ruleError != nil {
			outcome.RuleErrors = append(outcome.RuleErrors, *ro.ruleError)
		}
	}
	outcome.ExecutionTimeMs = time.Since(start).Milliseconds()

	e.logger.Info("ruleset executed",
		zap.String("ruleset_id", ruleset.RulesetID),
		zap.Int("rules", len(ruleset.Rules)),
		zap.Int("matched", outcome.MatchedCount),
		zap.Int("unmatched_source", outcome.UnmatchedSourceCount),
		zap.Int("unmatched_target", outcome.UnmatchedTargetCount),
		zap.Int("rule_errors", len(outcome.RuleErrors)),
		zap.Int64("elapsed_ms", outcome.ExecutionTimeMs))
	return outcome, nil
}

// runRule executes the three query modes for one rule. Matched and
// unmatched_source run against the source backend; unmatched_target runs
// against the target backend.
func (e *Executor) runRule(ctx context.Context, rule models.ReconciliationRule, source, target Backend, limit int) ruleOutcome {
	var out ruleOutcome

	modes := []struct {
		mode    string
		backend Backend
		rows    *[]map[string]any
		count   *int
	}{
		{models.QueryModeMatched, source, &out.matched, &out.matchedCount},
		{models.QueryModeUnmatchedSource, source, &out.unmatchedSource, &out.unmatchedSourceCount},
		{models.QueryModeUnmatchedTarget, target, &out.unmatchedTarget, &out.unmatchedTargetCount},
	}

	for _, m := range modes {
		result, finalSQL, err := e.runModeWithFallback(ctx, m.backend, rule, m.mode, limit)
		if err != nil {
			e.logger.Error("rule query failed",
				zap.String("rule_id", rule.RuleID),
				zap.String("mode", m.mode),
				zap.Error(err))
			out.ruleError = &models.RuleError{
				RuleID:   rule.RuleID,
				RuleName: rule.RuleName,
				Message:  err.Error(),
				SQL:      finalSQL,
			}
			return out
		}
		*m.rows = filterExcludedColumns(result.Rows)
		*m.count = result.RowCount
		out.generatedSQL = append(out.generatedSQL, models.GeneratedSQL{
			RuleID:      rule.RuleID,
			RuleName:    rule.RuleName,
			QueryType:   m.mode,
			SourceSQL:   finalSQL,
			Description: fmt.Sprintf("%s records for %s.%s vs %s.%s", m.mode, rule.SourceTable, strings.Join(rule.SourceColumns, ","), rule.TargetTable, strings.Join(rule.TargetColumns, ",")),
		})
	}
	return out
}

// runModeWithFallback attempts the schema-prefixed query first. On an
// unknown-object failure it rebuilds without the prefix and retries exactly
// once. The returned SQL is the statement of the last attempt.
func (e *Executor) runModeWithFallback(ctx context.Context, backend Backend, rule models.ReconciliationRule, mode string, limit int) (*datasource.QueryExecutionResult, string, error) {
	prefixedSQL, err := backend.Gen.ForRule(rule, mode, true)
	if err != nil {
		return nil, "", err
	}

	e.logAttempt("FIRST", mode, rule.RuleName, prefixedSQL)
	result, err := backend.Conn.Query(ctx, prefixedSQL, limit)
	if err == nil {
		e.logResult(mode, rule.RuleName, result)
		return result, prefixedSQL, nil
	}
	if !errors.Is(err, apperrors.ErrSchemaObjectNotFound) {
		return nil, prefixedSQL, err
	}

	plainSQL, genErr := backend.Gen.ForRule(rule, mode, false)
	if genErr != nil {
		return nil, prefixedSQL, genErr
	}
	if plainSQL == prefixedSQL {
		// The rule carried no schema names; there is nothing to strip.
		return nil, prefixedSQL, err
	}

	e.logger.Warn("schema-prefixed query failed, retrying without prefix",
		zap.String("rule_name", rule.RuleName),
		zap.String("mode", mode),
		zap.Error(err))

	e.logAttempt("RETRY", mode, rule.RuleName, plainSQL)
	result, err = backend.Conn.Query(ctx, plainSQL, limit)
	if err != nil {
		return nil, plainSQL, fmt.Errorf("%w: retry without schema prefix failed: %v", apperrors.ErrExecution, err)
	}
	e.logResult(mode, rule.RuleName, result)
	return result, plainSQL, nil
}

// logAttempt emits the framed SQL record for one attempt.
func (e *Executor) logAttempt(attempt, mode, ruleName, sql string) {
	e.logger.Info(fmt.Sprintf("==== [%s] %s QUERY - Rule: %s ====\nSQL:\n%s\n====",
		attempt, strings.ToUpper(mode), ruleName, sql))
}

func (e *Executor) logResult(mode, ruleName string, result *datasource.QueryExecutionResult) {
	e.logger.Info("query returned",
		zap.String("rule_name", ruleName),
		zap.String("mode", mode),
		zap.Int("rows", result.RowCount))
}

// filterExcludedColumns strips excluded fields from result rows; SELECT s.*
// expansions cannot drop them at SQL level.
func filterExcludedColumns(rows []map[string]any) []map[string]any {
	for _, row := range rows {
		for col := range row {
			if models.IsExcluded(col) {
				delete(row, col)
			}
		}
	}
	return rows
}

func appendCapped(dst, src []map[string]any, limit int) []map[string]any {
	if limit <= 0 {
		limit = datasource.MaxQueryLimit
	}
	for _, row := range src {
		if len(dst) >= limit {
			break
		}
		dst = append(dst, row)
	}
	return dst
}
