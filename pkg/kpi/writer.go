package kpi

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/reconlab/recon-engine/pkg/apperrors"
	"github.com/reconlab/recon-engine/pkg/models"
	"github.com/reconlab/recon-engine/pkg/storage"
)

// Report bundles the three KPI documents computed from one execution. All
// share the same ruleset and execution ids.
type Report struct {
	RCR  models.RCR  `json:"rcr"`
	DQCS models.DQCS `json:"dqcs"`
	REI  models.REI  `json:"rei"`
}

// Writer computes KPI reports and persists execution artifacts.
type Writer struct {
	store  *storage.FileStore
	logger *zap.Logger
}

// NewWriter creates a writer over the file store.
func NewWriter(store *storage.FileStore, logger *zap.Logger) *Writer {
	return &Writer{
		store:  store,
		logger: logger.Named("kpi"),
	}
}

// Compute evaluates all three KPIs from one set of inputs.
func Compute(in Inputs) Report {
	return Report{
		RCR:  ComputeRCR(in),
		DQCS: ComputeDQCS(in),
		REI:  ComputeREI(in),
	}
}

// kpiDefinitions enumerates the three KPI types computed per ruleset, in
// the order their documents are written.
var kpiDefinitions = []struct {
	KPIType     string
	Name        string
	Description string
}{
	{models.KPITypeRCR, "Reconciliation Coverage Rate", "Share of source records matched by the ruleset."},
	{models.KPITypeDQCS, "Data Quality Confidence Score", "Confidence-weighted quality of the matched records."},
	{models.KPITypeREI, "Reconciliation Efficiency Index", "Composite of match success, rule utilization and execution speed."},
}

// EnsureConfigs loads or creates the KPI config document for each KPI type of
// a ruleset. Existing configs are kept as-is so user edits to names and
// parameters survive re-execution. Returned map is keyed by KPI type.
func (w *Writer) EnsureConfigs(rulesetID string, at time.Time) (map[string]*models.KPIConfig, error) {
	configs := make(map[string]*models.KPIConfig, len(kpiDefinitions))
	for _, def := range kpiDefinitions {
		kpiID := rulesetID + "_" + def.KPIType
		existing, err := w.store.LoadKPIConfig(kpiID)
		if err == nil {
			configs[def.KPIType] = existing
			continue
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, err
		}
		cfg := &models.KPIConfig{
			KPIID:       kpiID,
			Name:        def.Name,
			KPIType:     def.KPIType,
			RulesetID:   rulesetID,
			CreatedAt:   at,
			Description: def.Description,
		}
		if err := w.store.SaveKPIConfig(cfg); err != nil {
			return nil, err
		}
		w.logger.Info("created KPI config",
			zap.String("kpi_id", kpiID),
			zap.String("kpi_type", def.KPIType))
		configs[def.KPIType] = cfg
	}
	return configs, nil
}

// WriteExecution persists the reconciliation result document and returns its
// path.
func (w *Writer) WriteExecution(outcome *models.ExecutionOutcome, rulesetID, executionID string, at time.Time) (string, error) {
	result := &models.ReconciliationResult{
		RulesetID:            rulesetID,
		ExecutionID:          executionID,
		ExecutionTimestamp:   at,
		MatchedCount:         outcome.MatchedCount,
		UnmatchedSourceCount: outcome.UnmatchedSourceCount,
		UnmatchedTargetCount: outcome.UnmatchedTargetCount,
		ExecutionTimeMs:      outcome.ExecutionTimeMs,
		GeneratedSQL:         outcome.GeneratedSQL,
		RuleErrors:           outcome.RuleErrors,
	}
	path, err := w.store.SaveReconciliationResult(result)
	if err != nil {
		return "", err
	}
	w.logger.Info("persisted reconciliation result",
		zap.String("ruleset_id", rulesetID),
		zap.String("execution_id", executionID),
		zap.String("path", path))
	return path, nil
}

// WriteReport persists each KPI document separately under kpi_results/ plus a
// drill-down evidence file under kpi_evidence/ carrying the full report and
// the generated SQL.
func (w *Writer) WriteReport(kpiID string, report Report, outcome *models.ExecutionOutcome, at time.Time) error {
	for _, doc := range []struct {
		suffix string
		value  any
	}{
		{models.KPITypeRCR, report.RCR},
		{models.KPITypeDQCS, report.DQCS},
		{models.KPITypeREI, report.REI},
	} {
		if _, err := w.store.SaveKPIResult(kpiID+"_"+doc.suffix, at, doc.value); err != nil {
			return err
		}
	}

	evidence := map[string]any{
		"kpi_id":        kpiID,
		"report":        report,
		"generated_sql": outcome.GeneratedSQL,
		"rule_errors":   outcome.RuleErrors,
	}
	if _, err := w.store.SaveKPIEvidence(kpiID, at, evidence); err != nil {
		return err
	}

	w.logger.Info("persisted KPI report",
		zap.String("kpi_id", kpiID),
		zap.Float64("rcr", report.RCR.CoverageRate),
		zap.Float64("dqcs", report.DQCS.OverallConfidenceScore),
		zap.Float64("rei", report.REI.EfficiencyIndex))
	return nil
}
