// Package storage implements the file-based JSON document store used for KG
// metadata, rulesets, execution results, and KPI artifacts.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/reconlab/recon-engine/pkg/apperrors"
	"github.com/reconlab/recon-engine/pkg/models"
)

// Layout names the directories under the application root. Zero values fall
// back to the conventional defaults.
type Layout struct {
	Root         string
	KGDir        string // kg_storage
	RulesDir     string // data/reconciliation_rules
	ResultsDir   string // results
	KPIConfigDir string // kpi_configs
	KPIResultDir string // kpi_results
	EvidenceDir  string // kpi_evidence
}

func (l *Layout) applyDefaults() {
	if l.KGDir == "" {
		l.KGDir = "kg_storage"
	}
	if l.RulesDir == "" {
		l.RulesDir = filepath.Join("data", "reconciliation_rules")
	}
	if l.ResultsDir == "" {
		l.ResultsDir = "results"
	}
	if l.KPIConfigDir == "" {
		l.KPIConfigDir = "kpi_configs"
	}
	if l.KPIResultDir == "" {
		l.KPIResultDir = "kpi_results"
	}
	if l.EvidenceDir == "" {
		l.EvidenceDir = "kpi_evidence"
	}
}

// FileStore persists engine artifacts as JSON documents on disk.
// Missing directories are created on first write; writes are atomic
// (write to temp file, then rename).
type FileStore struct {
	layout Layout
	logger *zap.Logger
}

// NewFileStore creates a store rooted at layout.Root.
func NewFileStore(layout Layout, logger *zap.Logger) *FileStore {
	layout.applyDefaults()
	return &FileStore{
		layout: layout,
		logger: logger.Named("storage"),
	}
}

// WriteJSON marshals v and writes it atomically to path (relative to root).
func (s *FileStore) WriteJSON(relPath string, v any) error {
	path := filepath.Join(s.layout.Root, relPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", relPath, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename into place: %w", err)
	}

	s.logger.Debug("wrote document", zap.String("path", path), zap.Int("bytes", len(data)))
	return nil
}

// ReadJSON reads a JSON document into v. Returns apperrors.ErrNotFound for a
// missing file.
func (s *FileStore) ReadJSON(relPath string, v any) error {
	path := filepath.Join(s.layout.Root, relPath)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", relPath, apperrors.ErrNotFound)
		}
		return fmt.Errorf("read %s: %w", relPath, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", relPath, err)
	}
	return nil
}

// timestampSuffix formats a time for result file names.
func timestampSuffix(t time.Time) string {
	return t.Format("20060102_150405")
}

// SaveKG persists a knowledge graph (including table aliases) under
// kg_storage/<name>/metadata.json.
func (s *FileStore) SaveKG(kg *models.KnowledgeGraph) error {
	return s.WriteJSON(filepath.Join(s.layout.KGDir, kg.Metadata.Name, "metadata.json"), kg)
}

// LoadKG reads a knowledge graph by name.
func (s *FileStore) LoadKG(name string) (*models.KnowledgeGraph, error) {
	var kg models.KnowledgeGraph
	if err := s.ReadJSON(filepath.Join(s.layout.KGDir, name, "metadata.json"), &kg); err != nil {
		return nil, err
	}
	return &kg, nil
}

// DeleteKG removes a knowledge graph's storage directory.
func (s *FileStore) DeleteKG(name string) error {
	path := filepath.Join(s.layout.Root, s.layout.KGDir, name)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("kg %s: %w", name, apperrors.ErrNotFound)
	}
	return os.RemoveAll(path)
}

// SaveRuleset persists a ruleset under data/reconciliation_rules/<id>.json.
func (s *FileStore) SaveRuleset(rs *models.Ruleset) error {
	return s.WriteJSON(filepath.Join(s.layout.RulesDir, rs.RulesetID+".json"), rs)
}

// LoadRuleset reads a ruleset by id.
func (s *FileStore) LoadRuleset(rulesetID string) (*models.Ruleset, error) {
	var rs models.Ruleset
	if err := s.ReadJSON(filepath.Join(s.layout.RulesDir, rulesetID+".json"), &rs); err != nil {
		return nil, err
	}
	return &rs, nil
}

// SaveReconciliationResult writes the execution result document as
// results/reconciliation_result_<rulesetID>_<YYYYMMDD_HHMMSS>.json and
// returns the relative path.
func (s *FileStore) SaveReconciliationResult(result *models.ReconciliationResult) (string, error) {
	name := fmt.Sprintf("reconciliation_result_%s_%s.json",
		result.RulesetID, timestampSuffix(result.ExecutionTimestamp))
	rel := filepath.Join(s.layout.ResultsDir, name)
	if err := s.WriteJSON(rel, result); err != nil {
		return "", err
	}
	return rel, nil
}

// SaveKPIConfig writes a KPI configuration document.
func (s *FileStore) SaveKPIConfig(cfg *models.KPIConfig) error {
	name := fmt.Sprintf("kpi_config_%s.json", cfg.KPIID)
	return s.WriteJSON(filepath.Join(s.layout.KPIConfigDir, name), cfg)
}

// LoadKPIConfig reads a KPI configuration by id.
func (s *FileStore) LoadKPIConfig(kpiID string) (*models.KPIConfig, error) {
	var cfg models.KPIConfig
	name := fmt.Sprintf("kpi_config_%s.json", kpiID)
	if err := s.ReadJSON(filepath.Join(s.layout.KPIConfigDir, name), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveKPIResult writes a computed KPI outcome document.
func (s *FileStore) SaveKPIResult(kpiID string, at time.Time, v any) (string, error) {
	name := fmt.Sprintf("kpi_result_%s_%s.json", kpiID, timestampSuffix(at))
	rel := filepath.Join(s.layout.KPIResultDir, name)
	if err := s.WriteJSON(rel, v); err != nil {
		return "", err
	}
	return rel, nil
}

// SaveKPIEvidence writes a drill-down evidence document.
func (s *FileStore) SaveKPIEvidence(kpiID string, at time.Time, v any) (string, error) {
	name := fmt.Sprintf("kpi_evidence_%s_%s.json", kpiID, timestampSuffix(at))
	rel := filepath.Join(s.layout.EvidenceDir, name)
	if err := s.WriteJSON(rel, v); err != nil {
		return "", err
	}
	return rel, nil
}
