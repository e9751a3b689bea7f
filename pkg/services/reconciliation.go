package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/reconlab/recon-engine/pkg/adapters/datasource"
	"github.com/reconlab/recon-engine/pkg/apperrors"
	"github.com/reconlab/recon-engine/pkg/config"
	"github.com/reconlab/recon-engine/pkg/executor"
	"github.com/reconlab/recon-engine/pkg/kg"
	"github.com/reconlab/recon-engine/pkg/kpi"
	"github.com/reconlab/recon-engine/pkg/models"
	"github.com/reconlab/recon-engine/pkg/retry"
	"github.com/reconlab/recon-engine/pkg/schemastore"
	"github.com/reconlab/recon-engine/pkg/sqlgen"
)

// Defaults applied when a request leaves the field unset.
const (
	DefaultKGName        = "default"
	DefaultMinConfidence = 0.5
)

// CreateKGRequest names the schemas to merge into one knowledge graph.
type CreateKGRequest struct {
	KGName      string   `json:"kg_name"`
	SchemaNames []string `json:"schema_names"`
	UseLLM      bool     `json:"use_llm"`
}

// AddRelationshipsRequest carries a free-form relationship statement to fold
// into an existing graph.
type AddRelationshipsRequest struct {
	KGName        string  `json:"kg_name"`
	Statement     string  `json:"statement"`
	Strategy      string  `json:"strategy"` // union | deduplicate | high_confidence
	UseLLM        bool    `json:"use_llm"`
	MinConfidence float64 `json:"min_confidence"`
}

// RelearnAliasesRequest asks for a fresh alias set for one table.
type RelearnAliasesRequest struct {
	KGName    string `json:"kg_name"`
	TableName string `json:"table_name"`
	UseLLM    bool   `json:"use_llm"`
}

// AliasUpdate reports the outcome of an alias relearn. Applied is false when
// the graph already holds a higher-confidence set for the table.
type AliasUpdate struct {
	Table      string   `json:"table"`
	Aliases    []string `json:"aliases"`
	Confidence float64  `json:"confidence"`
	Applied    bool     `json:"applied"`
}

// GenerateRulesRequest drives rule generation over a graph. SchemaNames
// defaults to the schemas the graph was merged from.
type GenerateRulesRequest struct {
	KGName           string                  `json:"kg_name"`
	SchemaNames      []string                `json:"schema_names,omitempty"`
	RulesetName      string                  `json:"ruleset_name,omitempty"`
	UseLLM           bool                    `json:"use_llm"`
	MinConfidence    float64                 `json:"min_confidence"`
	FieldPreferences *models.FieldPreference `json:"field_preferences,omitempty"`
}

// ExecuteRulesetRequest runs a persisted ruleset. A nil SourceDB or TargetDB
// falls back to the environment-sourced config when USE_ENV_DB_CONFIGS is on;
// otherwise the request is invalid.
type ExecuteRulesetRequest struct {
	RulesetID string           `json:"ruleset_id"`
	SourceDB  *config.DBConfig `json:"source_db,omitempty"`
	TargetDB  *config.DBConfig `json:"target_db,omitempty"`
	Limit     int              `json:"limit"`
}

// ExecutionReport is the full outcome of one ruleset execution: counts and
// capped records, the derived KPIs, and where the result document landed.
type ExecutionReport struct {
	ExecutionID string                   `json:"execution_id"`
	Outcome     *models.ExecutionOutcome `json:"outcome"`
	Report      kpi.Report               `json:"report"`
	ResultPath  string                   `json:"result_path"`
}

// DefinitionsRequest runs a batch of NL definitions against the source
// backend.
type DefinitionsRequest struct {
	KGName      string           `json:"kg_name"`
	Definitions []string         `json:"definitions"`
	SourceDB    *config.DBConfig `json:"source_db,omitempty"`
	UseLLM      bool             `json:"use_llm"`
	Limit       int              `json:"limit"`
}

// ReconciliationService is the engine's single entry surface: schema
// ingestion into knowledge graphs, NL relationship and alias integration,
// rule generation, ruleset execution with KPI persistence, and NL definition
// runs.
type ReconciliationService interface {
	CreateKnowledgeGraph(ctx context.Context, req CreateKGRequest) (*models.KnowledgeGraph, error)
	AddRelationships(ctx context.Context, req AddRelationshipsRequest) (*models.KGStatistics, error)
	RelearnAliases(ctx context.Context, req RelearnAliasesRequest) (*AliasUpdate, error)
	GenerateRules(ctx context.Context, req GenerateRulesRequest) (*models.Ruleset, error)
	ExecuteRuleset(ctx context.Context, req ExecuteRulesetRequest) (*ExecutionReport, error)
	RunDefinitions(ctx context.Context, req DefinitionsRequest) ([]models.QueryResult, error)
	GraphView(kgName string) (*kg.GraphView, error)
	DeleteKnowledgeGraph(kgName string) error
}

// RulesetStore persists and recalls rulesets. *storage.FileStore satisfies
// it.
type RulesetStore interface {
	SaveRuleset(rs *models.Ruleset) error
	LoadRuleset(rulesetID string) (*models.Ruleset, error)
}

// BackendOpener opens a query backend for one database config. Injectable so
// tests run against fakes instead of live connections.
type BackendOpener func(ctx context.Context, db *config.DBConfig) (executor.Backend, error)

// OpenBackend returns the production opener: a database/sql pool paired with
// the SQL generator for the config's dialect. Transient connect failures are
// retried with backoff.
func OpenBackend(logger *zap.Logger) BackendOpener {
	return func(ctx context.Context, db *config.DBConfig) (executor.Backend, error) {
		driver, dsn, err := db.DSN()
		if err != nil {
			return executor.Backend{}, err
		}
		dialect, err := sqlgen.ParseDialect(db.Type)
		if err != nil {
			return executor.Backend{}, err
		}
		conn, err := retry.DoWithResult(ctx, nil, func() (*datasource.SQLExecutor, error) {
			return datasource.Open(ctx, driver, dsn, dialect, logger)
		})
		if err != nil {
			return executor.Backend{}, err
		}
		return executor.Backend{
			Conn: conn,
			Gen:  sqlgen.NewGenerator(dialect, logger),
		}, nil
	}
}

type reconciliationService struct {
	cfg *config.Config

	// graph layer
	schemas    *schemastore.Store
	kgStore    *kg.Store
	assembler  *kg.Assembler
	integrator *kg.Integrator
	aliases    *kg.AliasLearner

	// pipeline stages
	relParser RelationshipParser
	ruleGen   RuleGenerator
	nlq       NLQueryService

	// execution and persistence
	exec     *executor.Executor
	rulesets RulesetStore
	writer   *kpi.Writer
	open     BackendOpener

	logger *zap.Logger
}

var _ ReconciliationService = (*reconciliationService)(nil)

// NewReconciliationService wires the full engine behind one interface.
func NewReconciliationService(
	cfg *config.Config,
	schemas *schemastore.Store,
	kgStore *kg.Store,
	assembler *kg.Assembler,
	integrator *kg.Integrator,
	aliases *kg.AliasLearner,
	relParser RelationshipParser,
	ruleGen RuleGenerator,
	nlq NLQueryService,
	exec *executor.Executor,
	rulesets RulesetStore,
	writer *kpi.Writer,
	open BackendOpener,
	logger *zap.Logger,
) ReconciliationService {
	return &reconciliationService{
		cfg:        cfg,
		schemas:    schemas,
		kgStore:    kgStore,
		assembler:  assembler,
		integrator: integrator,
		aliases:    aliases,
		relParser:  relParser,
		ruleGen:    ruleGen,
		nlq:        nlq,
		exec:       exec,
		rulesets:   rulesets,
		writer:     writer,
		open:       open,
		logger:     logger.Named("reconciliation"),
	}
}

func (s *reconciliationService) CreateKnowledgeGraph(ctx context.Context, req CreateKGRequest) (*models.KnowledgeGraph, error) {
	if len(req.SchemaNames) == 0 {
		return nil, fmt.Errorf("schema_names is required: %w", apperrors.ErrInvalidRequest)
	}
	kgName := orDefaultKG(req.KGName)

	schemas, err := s.schemas.LoadAll(req.SchemaNames)
	if err != nil {
		return nil, err
	}
	graph, err := s.assembler.BuildMerged(ctx, schemas, kgName, req.UseLLM)
	if err != nil {
		return nil, err
	}
	if err := s.kgStore.Put(graph); err != nil {
		return nil, err
	}

	s.logger.Info("knowledge graph created",
		zap.String("kg_name", kgName),
		zap.Int("schemas", len(schemas)),
		zap.Int("nodes", len(graph.Nodes)),
		zap.Int("edges", len(graph.Relationships)))
	return s.kgStore.Snapshot(kgName)
}

func (s *reconciliationService) AddRelationships(ctx context.Context, req AddRelationshipsRequest) (*models.KGStatistics, error) {
	if strings.TrimSpace(req.Statement) == "" {
		return nil, fmt.Errorf("statement is required: %w", apperrors.ErrInvalidRequest)
	}
	kgName := orDefaultKG(req.KGName)

	schemas, err := s.schemasFor(kgName, nil)
	if err != nil {
		return nil, err
	}
	edges, err := s.relParser.Parse(ctx, req.Statement, schemas, req.UseLLM, orDefaultConfidence(req.MinConfidence))
	if err != nil {
		return nil, err
	}
	return s.integrator.AddNLRelationships(kgName, edges, req.Strategy)
}

func (s *reconciliationService) RelearnAliases(ctx context.Context, req RelearnAliasesRequest) (*AliasUpdate, error) {
	if req.TableName == "" {
		return nil, fmt.Errorf("table_name is required: %w", apperrors.ErrInvalidRequest)
	}
	kgName := orDefaultKG(req.KGName)

	schemas, err := s.schemasFor(kgName, nil)
	if err != nil {
		return nil, err
	}
	table := findTableLabel(schemas, req.TableName)
	if table == nil {
		return nil, fmt.Errorf("table %s not in the schemas of kg %s: %w", req.TableName, kgName, apperrors.ErrNotFound)
	}

	var (
		aliases    []string
		confidence float64
	)
	if req.UseLLM {
		aliases, confidence, err = s.aliases.Learn(ctx, table)
		if err != nil {
			return nil, err
		}
	} else {
		aliases, confidence = kg.HeuristicAliases(table.Name), kg.AliasConfidenceHeuristic
	}

	applied, err := s.kgStore.UpdateAliases(kgName, table.Name, aliases, confidence)
	if err != nil {
		return nil, err
	}
	s.logger.Info("alias relearn finished",
		zap.String("kg_name", kgName),
		zap.String("table", table.Name),
		zap.Float64("confidence", confidence),
		zap.Bool("applied", applied))
	return &AliasUpdate{
		Table:      table.Name,
		Aliases:    aliases,
		Confidence: confidence,
		Applied:    applied,
	}, nil
}

func (s *reconciliationService) GenerateRules(ctx context.Context, req GenerateRulesRequest) (*models.Ruleset, error) {
	kgName := orDefaultKG(req.KGName)

	schemas, err := s.schemasFor(kgName, req.SchemaNames)
	if err != nil {
		return nil, err
	}
	ruleset, err := s.ruleGen.Generate(ctx, kgName, schemas, req.UseLLM, orDefaultConfidence(req.MinConfidence), req.FieldPreferences)
	if err != nil {
		return nil, err
	}
	if req.RulesetName != "" {
		ruleset.Name = req.RulesetName
	}
	if err := s.rulesets.SaveRuleset(ruleset); err != nil {
		return nil, err
	}
	return ruleset, nil
}

func (s *reconciliationService) ExecuteRuleset(ctx context.Context, req ExecuteRulesetRequest) (*ExecutionReport, error) {
	if req.RulesetID == "" {
		return nil, fmt.Errorf("ruleset_id is required: %w", apperrors.ErrInvalidRequest)
	}
	ruleset, err := s.rulesets.LoadRuleset(req.RulesetID)
	if err != nil {
		return nil, err
	}

	sourceCfg, err := s.dbConfig(req.SourceDB, &s.cfg.SourceDB, "source")
	if err != nil {
		return nil, err
	}
	targetCfg, err := s.dbConfig(req.TargetDB, &s.cfg.TargetDB, "target")
	if err != nil {
		return nil, err
	}

	source, err := s.open(ctx, sourceCfg)
	if err != nil {
		return nil, err
	}
	defer source.Conn.Close()
	target, err := s.open(ctx, targetCfg)
	if err != nil {
		return nil, err
	}
	defer target.Conn.Close()

	outcome, err := s.exec.ExecuteRuleset(ctx, ruleset, source, target, req.Limit)
	if err != nil {
		return nil, err
	}

	executionID := models.NewID("EXEC")
	now := time.Now().UTC()
	resultPath, err := s.writer.WriteExecution(outcome, ruleset.RulesetID, executionID, now)
	if err != nil {
		return nil, err
	}
	if _, err := s.writer.EnsureConfigs(ruleset.RulesetID, now); err != nil {
		return nil, err
	}

	confidences := make([]float64, 0, len(outcome.MatchedRecords))
	for range outcome.MatchedRecords {
		confidences = append(confidences, rulesetMeanConfidence(ruleset))
	}
	report := kpi.Compute(kpi.Inputs{
		RulesetID:        ruleset.RulesetID,
		ExecutionID:      executionID,
		MatchedCount:     outcome.MatchedCount,
		TotalSourceCount: outcome.MatchedCount + outcome.UnmatchedSourceCount,
		MatchConfidences: confidences,
		ActiveRules:      len(ruleset.Rules) - len(outcome.RuleErrors),
		TotalRules:       len(ruleset.Rules),
		ExecutionTimeMs:  outcome.ExecutionTimeMs,
		Timestamp:        now,
	})
	if err := s.writer.WriteReport(ruleset.RulesetID, report, outcome, now); err != nil {
		return nil, err
	}

	return &ExecutionReport{
		ExecutionID: executionID,
		Outcome:     outcome,
		Report:      report,
		ResultPath:  resultPath,
	}, nil
}

func (s *reconciliationService) RunDefinitions(ctx context.Context, req DefinitionsRequest) ([]models.QueryResult, error) {
	if len(req.Definitions) == 0 {
		return nil, fmt.Errorf("definitions are required: %w", apperrors.ErrInvalidRequest)
	}
	kgName := orDefaultKG(req.KGName)

	dbCfg, err := s.dbConfig(req.SourceDB, &s.cfg.SourceDB, "source")
	if err != nil {
		return nil, err
	}
	backend, err := s.open(ctx, dbCfg)
	if err != nil {
		return nil, err
	}
	defer backend.Conn.Close()

	return s.nlq.ExecuteDefinitions(ctx, req.Definitions, kgName, backend, req.UseLLM, req.Limit)
}

func (s *reconciliationService) GraphView(kgName string) (*kg.GraphView, error) {
	graph, err := s.kgStore.Snapshot(orDefaultKG(kgName))
	if err != nil {
		return nil, err
	}
	return kg.BuildGraphView(graph, s.logger), nil
}

func (s *reconciliationService) DeleteKnowledgeGraph(kgName string) error {
	return s.kgStore.Delete(orDefaultKG(kgName))
}

// schemasFor loads the named schemas, defaulting to the set the graph was
// merged from.
func (s *reconciliationService) schemasFor(kgName string, names []string) ([]*models.Schema, error) {
	if len(names) == 0 {
		graph, err := s.kgStore.Snapshot(kgName)
		if err != nil {
			return nil, err
		}
		names = graph.Metadata.SchemasMerged
	}
	return s.schemas.LoadAll(names)
}

// dbConfig resolves a request-level database config, falling back to the
// environment-sourced one when USE_ENV_DB_CONFIGS is on.
func (s *reconciliationService) dbConfig(req, env *config.DBConfig, role string) (*config.DBConfig, error) {
	if req != nil {
		return req, nil
	}
	if s.cfg.UseEnvDBConfigs {
		return env, nil
	}
	return nil, fmt.Errorf("%s database config missing and USE_ENV_DB_CONFIGS is off: %w", role, apperrors.ErrInvalidRequest)
}

// rulesetMeanConfidence approximates per-record match confidence from the
// rules that produced the matches.
func rulesetMeanConfidence(ruleset *models.Ruleset) float64 {
	if len(ruleset.Rules) == 0 {
		return 0
	}
	var sum float64
	for _, r := range ruleset.Rules {
		sum += r.Confidence
	}
	return sum / float64(len(ruleset.Rules))
}

func orDefaultKG(name string) string {
	if name == "" {
		return DefaultKGName
	}
	return name
}

func orDefaultConfidence(c float64) float64 {
	if c <= 0 {
		return DefaultMinConfidence
	}
	return c
}
