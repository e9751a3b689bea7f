package models

import "time"

// Query modes run per rule by the reconciliation executor.
const (
	QueryModeMatched         = "matched"
	QueryModeUnmatchedSource = "unmatched_source"
	QueryModeUnmatchedTarget = "unmatched_target"
)

// GeneratedSQL records one SQL statement emitted during execution, for the
// persisted result document and drill-down evidence.
type GeneratedSQL struct {
	RuleID      string  `json:"rule_id"`
	RuleName    string  `json:"rule_name"`
	QueryType   string  `json:"query_type"` // matched | unmatched_source | unmatched_target
	SourceSQL   string  `json:"source_sql"`
	TargetSQL   *string `json:"target_sql"`
	Description string  `json:"description,omitempty"`
}

// RuleError captures a per-rule failure; other rules proceed.
type RuleError struct {
	RuleID   string `json:"rule_id"`
	RuleName string `json:"rule_name"`
	Message  string `json:"message"`
	SQL      string `json:"sql,omitempty"`
}

// ExecutionOutcome aggregates the matched/unmatched sets for a ruleset run.
type ExecutionOutcome struct {
	MatchedCount         int              `json:"matched_count"`
	UnmatchedSourceCount int              `json:"unmatched_source_count"`
	UnmatchedTargetCount int              `json:"unmatched_target_count"`
	MatchedRecords       []map[string]any `json:"matched_records,omitempty"`
	UnmatchedSource      []map[string]any `json:"unmatched_source,omitempty"`
	UnmatchedTarget      []map[string]any `json:"unmatched_target,omitempty"`
	ExecutionTimeMs      int64            `json:"execution_time_ms"`
	GeneratedSQL         []GeneratedSQL   `json:"generated_sql"`
	RuleErrors           []RuleError      `json:"rule_errors"`
}

// ReconciliationResult is the persisted result document for one execution.
// Written once, never mutated.
type ReconciliationResult struct {
	RulesetID            string         `json:"ruleset_id"`
	ExecutionID          string         `json:"execution_id"`
	ExecutionTimestamp   time.Time      `json:"execution_timestamp"`
	MatchedCount         int            `json:"matched_count"`
	UnmatchedSourceCount int            `json:"unmatched_source_count"`
	UnmatchedTargetCount int            `json:"unmatched_target_count"`
	ExecutionTimeMs      int64          `json:"execution_time_ms"`
	GeneratedSQL         []GeneratedSQL `json:"generated_sql"`
	RuleErrors           []RuleError    `json:"rule_errors"`
}
