package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/reconlab/recon-engine/pkg/kg"
	"github.com/reconlab/recon-engine/pkg/llm"
	"github.com/reconlab/recon-engine/pkg/models"
	"github.com/reconlab/recon-engine/pkg/prompts"
)

// Rule generation confidence floors.
const (
	patternRuleConfidence = 0.75
	fieldHintConfidence   = 0.90
)

// RuleGenerator produces reconciliation rulesets from a stored KG and the
// schemas it was built over.
type RuleGenerator interface {
	// Generate builds a ruleset. LLM failure is non-fatal: pattern rules are
	// returned with a warning. Empty input yields an empty ruleset.
	Generate(ctx context.Context, kgName string, schemas []*models.Schema, useLLM bool, minConfidence float64, prefs *models.FieldPreference) (*models.Ruleset, error)
}

type ruleGenerator struct {
	kgStore *kg.Store
	client  llm.Client
	logger  *zap.Logger
}

var _ RuleGenerator = (*ruleGenerator)(nil)

// NewRuleGenerator creates a generator. client may be nil.
func NewRuleGenerator(kgStore *kg.Store, client llm.Client, logger *zap.Logger) RuleGenerator {
	return &ruleGenerator{
		kgStore: kgStore,
		client:  client,
		logger:  logger.Named("rule_generator"),
	}
}

// ruleCandidate is the wire shape of one LLM-proposed rule.
type ruleCandidate struct {
	RuleName      string   `json:"rule_name"`
	SourceSchema  string   `json:"source_schema"`
	SourceTable   string   `json:"source_table"`
	SourceColumns []string `json:"source_columns"`
	TargetSchema  string   `json:"target_schema"`
	TargetTable   string   `json:"target_table"`
	TargetColumns []string `json:"target_columns"`
	MatchType     string   `json:"match_type"`
	Confidence    float64  `json:"confidence"`
	Reasoning     string   `json:"reasoning"`
}

type ruleResponse struct {
	Rules []ruleCandidate `json:"rules"`
}

func (g *ruleGenerator) Generate(ctx context.Context, kgName string, schemas []*models.Schema, useLLM bool, minConfidence float64, prefs *models.FieldPreference) (*models.Ruleset, error) {
	graph, err := g.kgStore.Snapshot(kgName)
	if err != nil {
		return nil, err
	}

	edges := edgesForSchemas(graph, schemas)

	rules := g.patternRules(edges, schemas, prefs)

	if useLLM && g.client != nil {
		llmRules, err := g.llmRules(ctx, schemas, edges, prefs)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			g.logger.Warn("LLM rule generation failed, returning pattern rules only",
				zap.Error(err))
		} else {
			rules = append(rules, llmRules...)
		}
	}

	rules = append(rules, g.fieldHintRules(schemas, prefs)...)

	rules = g.finalize(rules, prefs, minConfidence)

	ruleset := &models.Ruleset{
		RulesetID: models.NewID("RECON"),
		Name:      fmt.Sprintf("Reconciliation rules for %s", kgName),
		KGName:    kgName,
		Schemas:   schemaNames(schemas),
		Rules:     rules,
		CreatedAt: time.Now().UTC(),
	}

	g.logger.Info("generated ruleset",
		zap.String("ruleset_id", ruleset.RulesetID),
		zap.String("kg", kgName),
		zap.Int("rules", len(rules)))
	return ruleset, nil
}

// edgesForSchemas keeps edges whose endpoints are both tables of the given
// schemas and which carry join columns.
func edgesForSchemas(graph *models.KnowledgeGraph, schemas []*models.Schema) []models.Relationship {
	known := make(map[string]struct{})
	for _, schema := range schemas {
		for _, table := range schema.Tables {
			known[models.TableNodeID(table.Name)] = struct{}{}
		}
	}
	var out []models.Relationship
	for _, edge := range graph.Relationships {
		if _, ok := known[edge.SourceID]; !ok {
			continue
		}
		if _, ok := known[edge.TargetID]; !ok {
			continue
		}
		if edge.SourceColumn == "" || edge.TargetColumn == "" {
			continue
		}
		out = append(out, edge)
	}
	return out
}

// patternRules emits one exact-match rule per KG edge. Rule confidence is the
// pattern floor or the edge's own confidence, whichever is higher. Candidates
// are ordered priority-first, then alphabetically.
func (g *ruleGenerator) patternRules(edges []models.Relationship, schemas []*models.Schema, prefs *models.FieldPreference) []models.ReconciliationRule {
	sorted := append([]models.Relationship(nil), edges...)
	sort.SliceStable(sorted, func(i, j int) bool {
		pi := isPriorityEdge(sorted[i], prefs)
		pj := isPriorityEdge(sorted[j], prefs)
		if pi != pj {
			return pi
		}
		ki := sorted[i].SourceID + "|" + sorted[i].SourceColumn
		kj := sorted[j].SourceID + "|" + sorted[j].SourceColumn
		return ki < kj
	})

	rules := make([]models.ReconciliationRule, 0, len(sorted))
	for _, edge := range sorted {
		sourceTable := findTableLabel(schemas, strings.TrimPrefix(edge.SourceID, "table_"))
		targetTable := findTableLabel(schemas, strings.TrimPrefix(edge.TargetID, "table_"))
		if sourceTable == nil || targetTable == nil {
			continue
		}
		confidence := patternRuleConfidence
		if edge.Confidence > confidence {
			confidence = edge.Confidence
		}
		rules = append(rules, models.ReconciliationRule{
			RuleName:      fmt.Sprintf("%s.%s matches %s.%s", sourceTable.Name, edge.SourceColumn, targetTable.Name, edge.TargetColumn),
			SourceSchema:  schemaOf(schemas, sourceTable.Name),
			SourceTable:   sourceTable.Name,
			SourceColumns: []string{edge.SourceColumn},
			TargetSchema:  schemaOf(schemas, targetTable.Name),
			TargetTable:   targetTable.Name,
			TargetColumns: []string{edge.TargetColumn},
			MatchType:     models.MatchTypeExact,
			Confidence:    confidence,
			Reasoning:     fmt.Sprintf("derived from %s edge", edge.RelationshipType),
			LLMGenerated:  false,
		})
	}
	return rules
}

func isPriorityEdge(edge models.Relationship, prefs *models.FieldPreference) bool {
	if prefs == nil {
		return false
	}
	table := strings.TrimPrefix(edge.SourceID, "table_")
	for _, f := range prefs.PriorityFields[table] {
		if strings.EqualFold(f, edge.SourceColumn) {
			return true
		}
	}
	return false
}

func (g *ruleGenerator) llmRules(ctx context.Context, schemas []*models.Schema, edges []models.Relationship, prefs *models.FieldPreference) ([]models.ReconciliationRule, error) {
	prompt := prompts.BuildRulePrompt(schemas, edges, prefs)
	response, err := g.client.GenerateResponse(ctx, prompt, prompts.RuleSystemMessage)
	if err != nil {
		return nil, err
	}
	parsed, err := llm.ParseJSONResponse[ruleResponse](response)
	if err != nil {
		return nil, err
	}

	rules := make([]models.ReconciliationRule, 0, len(parsed.Rules))
	for _, c := range parsed.Rules {
		rule, ok := g.validateCandidate(c, schemas)
		if !ok {
			continue
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// validateCandidate drops malformed LLM entries: unknown tables, unknown
// columns, empty column lists, invalid match types.
func (g *ruleGenerator) validateCandidate(c ruleCandidate, schemas []*models.Schema) (models.ReconciliationRule, bool) {
	sourceTable := findTableLabel(schemas, c.SourceTable)
	targetTable := findTableLabel(schemas, c.TargetTable)
	if sourceTable == nil || targetTable == nil {
		g.logger.Warn("dropping rule with unknown table",
			zap.String("source_table", c.SourceTable),
			zap.String("target_table", c.TargetTable))
		return models.ReconciliationRule{}, false
	}
	if len(c.SourceColumns) == 0 || len(c.SourceColumns) != len(c.TargetColumns) {
		return models.ReconciliationRule{}, false
	}
	for _, col := range c.SourceColumns {
		if sourceTable.FindColumn(col) == nil {
			return models.ReconciliationRule{}, false
		}
	}
	for _, col := range c.TargetColumns {
		if targetTable.FindColumn(col) == nil {
			return models.ReconciliationRule{}, false
		}
	}
	matchType := c.MatchType
	if matchType == "" {
		matchType = models.MatchTypeExact
	}
	if !models.IsValidMatchType(matchType) {
		return models.ReconciliationRule{}, false
	}

	name := c.RuleName
	if name == "" {
		name = fmt.Sprintf("%s to %s", sourceTable.Name, targetTable.Name)
	}
	return models.ReconciliationRule{
		RuleName:      name,
		SourceSchema:  schemaOf(schemas, sourceTable.Name),
		SourceTable:   sourceTable.Name,
		SourceColumns: c.SourceColumns,
		TargetSchema:  schemaOf(schemas, targetTable.Name),
		TargetTable:   targetTable.Name,
		TargetColumns: c.TargetColumns,
		MatchType:     matchType,
		Confidence:    c.Confidence,
		Reasoning:     c.Reasoning,
		LLMGenerated:  true,
	}, true
}

// fieldHintRules converts user hints into high-confidence seed rules after
// validating both columns exist. A hint value is either "column" (search
// other tables for it) or "table.column".
func (g *ruleGenerator) fieldHintRules(schemas []*models.Schema, prefs *models.FieldPreference) []models.ReconciliationRule {
	if prefs == nil || len(prefs.FieldHints) == 0 {
		return nil
	}

	var rules []models.ReconciliationRule
	tables := make([]string, 0, len(prefs.FieldHints))
	for t := range prefs.FieldHints {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	for _, tableName := range tables {
		sourceTable := findTableLabel(schemas, tableName)
		if sourceTable == nil {
			continue
		}
		hints := prefs.FieldHints[tableName]
		srcCols := make([]string, 0, len(hints))
		for c := range hints {
			srcCols = append(srcCols, c)
		}
		sort.Strings(srcCols)

		for _, srcCol := range srcCols {
			if sourceTable.FindColumn(srcCol) == nil {
				g.logger.Warn("dropping field hint with unknown source column",
					zap.String("table", tableName),
					zap.String("column", srcCol))
				continue
			}
			targetTable, tgtCol := resolveHintTarget(schemas, sourceTable.Name, hints[srcCol])
			if targetTable == nil {
				g.logger.Warn("dropping field hint with unresolvable target",
					zap.String("table", tableName),
					zap.String("hint", hints[srcCol]))
				continue
			}
			rules = append(rules, models.ReconciliationRule{
				RuleName:      fmt.Sprintf("Hint: %s.%s matches %s.%s", sourceTable.Name, srcCol, targetTable.Name, tgtCol),
				SourceSchema:  schemaOf(schemas, sourceTable.Name),
				SourceTable:   sourceTable.Name,
				SourceColumns: []string{srcCol},
				TargetSchema:  schemaOf(schemas, targetTable.Name),
				TargetTable:   targetTable.Name,
				TargetColumns: []string{tgtCol},
				MatchType:     models.MatchTypeExact,
				Confidence:    fieldHintConfidence,
				Reasoning:     "user-provided field hint",
				LLMGenerated:  false,
			})
		}
	}
	return rules
}

// resolveHintTarget interprets a hint value: "table.column" names the target
// directly; a bare column name is searched across the other tables in
// alphabetical order.
func resolveHintTarget(schemas []*models.Schema, sourceTable, hint string) (*models.Table, string) {
	if table, col, ok := strings.Cut(hint, "."); ok {
		t := findTableLabel(schemas, table)
		if t == nil || t.FindColumn(col) == nil {
			return nil, ""
		}
		return t, t.FindColumn(col).Name
	}

	var names []string
	byName := make(map[string]*models.Table)
	for _, schema := range schemas {
		for i := range schema.Tables {
			t := &schema.Tables[i]
			if strings.EqualFold(t.Name, sourceTable) {
				continue
			}
			names = append(names, t.Name)
			byName[t.Name] = t
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if c := byName[name].FindColumn(hint); c != nil {
			return byName[name], c.Name
		}
	}
	return nil, ""
}

// finalize applies the excluded-field policy, user exclusions, the confidence
// floor, deduplication, validation status, and rule ids.
func (g *ruleGenerator) finalize(rules []models.ReconciliationRule, prefs *models.FieldPreference, minConfidence float64) []models.ReconciliationRule {
	byKey := make(map[string]int)
	out := make([]models.ReconciliationRule, 0, len(rules))

	for _, rule := range rules {
		if rule.Confidence < minConfidence {
			continue
		}
		if hasExcludedColumn(rule, prefs) {
			g.logger.Info("dropping rule referencing excluded field",
				zap.String("rule_name", rule.RuleName))
			continue
		}

		key := rule.DedupKey()
		if i, ok := byKey[key]; ok {
			if rule.Confidence > out[i].Confidence {
				rule.RuleID = out[i].RuleID
				rule.CreatedAt = out[i].CreatedAt
				rule.ValidationStatus = validationStatus(rule.Confidence)
				out[i] = rule
			}
			continue
		}

		rule.RuleID = models.NewID("RULE")
		rule.ValidationStatus = validationStatus(rule.Confidence)
		rule.CreatedAt = time.Now().UTC()
		byKey[key] = len(out)
		out = append(out, rule)
	}
	return out
}

func hasExcludedColumn(rule models.ReconciliationRule, prefs *models.FieldPreference) bool {
	for _, c := range rule.SourceColumns {
		if models.IsExcluded(c) || prefs.IsExcludedForTable(rule.SourceTable, c) {
			return true
		}
	}
	for _, c := range rule.TargetColumns {
		if models.IsExcluded(c) || prefs.IsExcludedForTable(rule.TargetTable, c) {
			return true
		}
	}
	return false
}

func validationStatus(confidence float64) string {
	switch {
	case confidence >= 0.9:
		return models.ValidationValid
	case confidence >= patternRuleConfidence:
		return models.ValidationLikely
	default:
		return models.ValidationUncertain
	}
}

func schemaOf(schemas []*models.Schema, tableName string) string {
	for _, schema := range schemas {
		if schema.FindTable(tableName) != nil {
			return schema.Name
		}
	}
	return ""
}

func schemaNames(schemas []*models.Schema) []string {
	names := make([]string, 0, len(schemas))
	for _, s := range schemas {
		names = append(names, s.Name)
	}
	return names
}
