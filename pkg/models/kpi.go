package models

import "time"

// KPI types.
const (
	KPITypeRCR  = "rcr"
	KPITypeDQCS = "dqcs"
	KPITypeREI  = "rei"
)

// RCR statuses.
const (
	RCRStatusHealthy  = "HEALTHY"
	RCRStatusWarning  = "WARNING"
	RCRStatusCritical = "CRITICAL"
)

// DQCS statuses.
const (
	DQCSStatusGood       = "GOOD"
	DQCSStatusAcceptable = "ACCEPTABLE"
	DQCSStatusPoor       = "POOR"
)

// KPILineage ties a KPI document to its execution.
type KPILineage struct {
	RulesetID   string    `json:"ruleset_id"`
	ExecutionID string    `json:"execution_id"`
	Timestamp   time.Time `json:"timestamp"`
	Lineage     string    `json:"lineage,omitempty"`
}

// RCR is the Reconciliation Coverage Rate document.
type RCR struct {
	KPILineage
	CoverageRate     float64 `json:"coverage_rate"`
	MatchedCount     int     `json:"matched_count"`
	TotalSourceCount int     `json:"total_source_count"`
	Status           string  `json:"status"`
}

// DQCS is the Data Quality Confidence Score document.
type DQCS struct {
	KPILineage
	OverallConfidenceScore float64 `json:"overall_confidence_score"`
	HighConfidenceCount    int     `json:"high_confidence_count"`   // >= 0.9
	MediumConfidenceCount  int     `json:"medium_confidence_count"` // [0.8, 0.9)
	LowConfidenceCount     int     `json:"low_confidence_count"`    // < 0.8
	Status                 string  `json:"status"`
}

// REI is the Reconciliation Efficiency Index document.
type REI struct {
	KPILineage
	EfficiencyIndex  float64 `json:"efficiency_index"`
	MatchSuccessRate float64 `json:"match_success_rate"`
	RuleUtilization  float64 `json:"rule_utilization"`
	SpeedFactor      float64 `json:"speed_factor"`
}

// KPIConfig is a configured KPI definition persisted under kpi_configs/.
type KPIConfig struct {
	KPIID       string         `json:"kpi_id"`
	Name        string         `json:"name"`
	KPIType     string         `json:"kpi_type"` // rcr | dqcs | rei
	RulesetID   string         `json:"ruleset_id"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	Description string         `json:"description,omitempty"`
}
