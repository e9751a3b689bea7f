package models

// Query types produced by classification.
const (
	QueryTypeComparison   = "comparison_query"
	QueryTypeFilter       = "filter_query"
	QueryTypeAggregation  = "aggregation_query"
	QueryTypeData         = "data_query"
	QueryTypeRelationship = "relationship"
)

// Operations extracted from definitions.
const (
	OperationIn        = "IN"
	OperationNotIn     = "NOT_IN"
	OperationEquals    = "EQUALS"
	OperationContains  = "CONTAINS"
	OperationCount     = "COUNT"
	OperationSum       = "SUM"
	OperationAvg       = "AVG"
	OperationAggregate = "AGGREGATE"
)

// JoinColumnPair is one (source column, target column) join equality.
type JoinColumnPair struct {
	SourceColumn string `json:"source_column"`
	TargetColumn string `json:"target_column"`
}

// Filter is one WHERE predicate extracted from a definition.
// TableHint names the side the predicate attaches to; for comparison queries
// it is the target table so SQL attaches it to the joined side.
type Filter struct {
	Column     string `json:"column"`
	Value      string `json:"value"`
	TableHint  string `json:"table_hint,omitempty"`
	Comparator string `json:"comparator,omitempty"` // defaults to "="
}

// AdditionalColumn is an extra projected column requested via
// "include <col> from <table>". JoinPath is the pre-computed table path from
// the query's source table; an empty path means the projection is dropped.
type AdditionalColumn struct {
	Table      string   `json:"table"`
	ColumnName string   `json:"column_name"`
	Alias      string   `json:"alias,omitempty"`
	JoinPath   []string `json:"join_path,omitempty"`
}

// QueryIntent is the typed result of NL parsing, fed to the SQL generator.
// It is passed by value and never mutated after parsing.
type QueryIntent struct {
	QueryType         string             `json:"query_type"`
	Operation         string             `json:"operation,omitempty"`
	SourceTable       string             `json:"source_table"`
	TargetTable       string             `json:"target_table,omitempty"`
	JoinColumns       []JoinColumnPair   `json:"join_columns,omitempty"`
	Filters           []Filter           `json:"filters,omitempty"`
	AdditionalColumns []AdditionalColumn `json:"additional_columns,omitempty"`
	Limit             int                `json:"limit,omitempty"`
	Confidence        float64            `json:"confidence"`
	OriginalText      string             `json:"original_text"`
}

// QueryResult is the executed outcome of one NL definition.
type QueryResult struct {
	Definition      string           `json:"definition"`
	QueryType       string           `json:"query_type"`
	Operation       string           `json:"operation,omitempty"`
	SQL             string           `json:"sql"`
	RecordCount     int              `json:"record_count"`
	Records         []map[string]any `json:"records"`
	JoinColumns     []JoinColumnPair `json:"join_columns,omitempty"`
	Filters         []Filter         `json:"filters,omitempty"`
	SourceTable     string           `json:"source_table"`
	TargetTable     string           `json:"target_table,omitempty"`
	Confidence      float64          `json:"confidence"`
	ExecutionTimeMs int64            `json:"execution_time_ms"`
	Error           string           `json:"error,omitempty"`
}
