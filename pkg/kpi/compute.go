// Package kpi computes the reconciliation KPIs (coverage rate, data quality
// confidence, efficiency index) and persists their documents. All inputs are
// supplied by the caller; no database is consulted.
package kpi

import (
	"time"

	"github.com/reconlab/recon-engine/pkg/models"
)

// Status thresholds.
const (
	rcrHealthyMin = 90.0
	rcrWarningMin = 80.0
	dqcsGoodMin   = 0.85
	dqcsAcceptMin = 0.70
	dqcsHighMin   = 0.90
	dqcsMediumMin = 0.80
)

// Inputs carries everything the KPI formulas need.
type Inputs struct {
	RulesetID        string
	ExecutionID      string
	MatchedCount     int
	TotalSourceCount int
	MatchConfidences []float64 // one per matched record
	ActiveRules      int
	TotalRules       int
	ExecutionTimeMs  int64
	Timestamp        time.Time
}

func (in Inputs) lineage(kind string) models.KPILineage {
	ts := in.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return models.KPILineage{
		RulesetID:   in.RulesetID,
		ExecutionID: in.ExecutionID,
		Timestamp:   ts,
		Lineage:     kind,
	}
}

// ComputeRCR is matched over total as a percentage, zero when the denominator
// (or the matched count) is zero.
func ComputeRCR(in Inputs) models.RCR {
	rate := 0.0
	if in.TotalSourceCount > 0 && in.MatchedCount > 0 {
		rate = float64(in.MatchedCount) / float64(in.TotalSourceCount) * 100
	}

	status := models.RCRStatusCritical
	switch {
	case rate >= rcrHealthyMin:
		status = models.RCRStatusHealthy
	case rate >= rcrWarningMin:
		status = models.RCRStatusWarning
	}

	return models.RCR{
		KPILineage:       in.lineage("rcr"),
		CoverageRate:     rate,
		MatchedCount:     in.MatchedCount,
		TotalSourceCount: in.TotalSourceCount,
		Status:           status,
	}
}

// ComputeDQCS is the mean match confidence with high/medium/low counts. No
// matches means a zero score.
func ComputeDQCS(in Inputs) models.DQCS {
	doc := models.DQCS{KPILineage: in.lineage("dqcs")}

	if in.MatchedCount == 0 || len(in.MatchConfidences) == 0 {
		doc.Status = models.DQCSStatusPoor
		return doc
	}

	var sum float64
	for _, c := range in.MatchConfidences {
		sum += c
		switch {
		case c >= dqcsHighMin:
			doc.HighConfidenceCount++
		case c >= dqcsMediumMin:
			doc.MediumConfidenceCount++
		default:
			doc.LowConfidenceCount++
		}
	}
	doc.OverallConfidenceScore = sum / float64(len(in.MatchConfidences))

	switch {
	case doc.OverallConfidenceScore >= dqcsGoodMin:
		doc.Status = models.DQCSStatusGood
	case doc.OverallConfidenceScore >= dqcsAcceptMin:
		doc.Status = models.DQCSStatusAcceptable
	default:
		doc.Status = models.DQCSStatusPoor
	}
	return doc
}

// ComputeREI combines success rate, rule utilization, and a speed factor
// against a 1ms-per-1000-rows target. The index is clamped to [0, 100].
func ComputeREI(in Inputs) models.REI {
	doc := models.REI{KPILineage: in.lineage("rei")}

	if in.TotalSourceCount > 0 {
		doc.MatchSuccessRate = float64(in.MatchedCount) / float64(in.TotalSourceCount) * 100
	}
	if in.TotalRules > 0 {
		doc.RuleUtilization = float64(in.ActiveRules) / float64(in.TotalRules) * 100
	}
	if in.ExecutionTimeMs > 0 {
		targetTimeMs := float64(in.TotalSourceCount) / 1000 * 1000
		doc.SpeedFactor = targetTimeMs / float64(in.ExecutionTimeMs) * 100
	}

	doc.EfficiencyIndex = doc.MatchSuccessRate * doc.RuleUtilization * doc.SpeedFactor / 10000
	if doc.EfficiencyIndex < 0 {
		doc.EfficiencyIndex = 0
	}
	if doc.EfficiencyIndex > 100 {
		doc.EfficiencyIndex = 100
	}
	return doc
}
