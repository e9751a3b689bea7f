package services

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/reconlab/recon-engine/pkg/kg"
	"github.com/reconlab/recon-engine/pkg/llm"
	"github.com/reconlab/recon-engine/pkg/models"
	"github.com/reconlab/recon-engine/pkg/prompts"
)

// Confidence model for parsed intents.
const (
	confidenceBase      = 0.60
	confidenceLLMBonus  = 0.15
	confidenceEndpoint  = 0.05
	confidenceJoinPath  = 0.10
	confidenceCap       = 0.95
	maxTableMatchWindow = 4 // tokens per candidate table phrase
)

// QueryParser turns NL definitions into structured query intents over a KG
// snapshot.
type QueryParser interface {
	Parse(ctx context.Context, definition string, graph *models.KnowledgeGraph, useLLM bool) (*models.QueryIntent, error)
}

type queryParser struct {
	classifier QueryClassifier
	client     llm.Client
	logger     *zap.Logger
}

var _ QueryParser = (*queryParser)(nil)

// NewQueryParser creates a parser. client may be nil (heuristic-only).
func NewQueryParser(classifier QueryClassifier, client llm.Client, logger *zap.Logger) QueryParser {
	return &queryParser{
		classifier: classifier,
		client:     client,
		logger:     logger.Named("query_parser"),
	}
}

// llmIntent is the wire shape of the LLM query parsing response.
type llmIntent struct {
	QueryType         string           `json:"query_type"`
	Operation         string           `json:"operation"`
	SourceTable       string           `json:"source_table"`
	TargetTable       string           `json:"target_table"`
	Filters           []models.Filter  `json:"filters"`
	AdditionalColumns []llmExtraColumn `json:"additional_columns"`
	Confidence        float64          `json:"confidence"`
}

type llmExtraColumn struct {
	Table      string `json:"table"`
	ColumnName string `json:"column_name"`
}

func (p *queryParser) Parse(ctx context.Context, definition string, graph *models.KnowledgeGraph, useLLM bool) (*models.QueryIntent, error) {
	queryType, operation := p.classifier.Classify(definition)
	resolver := kg.NewAliasResolver(graph)
	planner := kg.NewJoinPlanner(graph)

	intent := &models.QueryIntent{
		QueryType:    queryType,
		Operation:    operation,
		OriginalText: definition,
	}

	llmUsed := false
	var sourceCandidate, targetCandidate string
	var llmFilters []models.Filter
	var llmExtras []models.AdditionalColumn

	if useLLM && p.client != nil {
		parsed, err := p.parseWithLLM(ctx, definition, graph)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.logger.Warn("LLM query parsing failed, using heuristic extractor",
				zap.Error(err))
		} else {
			llmUsed = true
			sourceCandidate = parsed.SourceTable
			targetCandidate = parsed.TargetTable
			llmFilters = parsed.Filters
			for _, ac := range parsed.AdditionalColumns {
				llmExtras = append(llmExtras, models.AdditionalColumn{Table: ac.Table, ColumnName: ac.ColumnName})
			}
			// Keep the rule-based classification unless it defaulted.
			if intent.QueryType == models.QueryTypeData && parsed.QueryType != "" {
				intent.QueryType = parsed.QueryType
				intent.Operation = parsed.Operation
			}
		}
	}

	if sourceCandidate == "" {
		sourceCandidate, targetCandidate = heuristicTables(definition, resolver)
	}

	// Unresolvable candidates are discarded, never guessed.
	if label := resolver.Resolve(sourceCandidate); label != "" {
		intent.SourceTable = label
	}
	if label := resolver.Resolve(targetCandidate); label != "" && !strings.EqualFold(label, intent.SourceTable) {
		intent.TargetTable = label
	}

	intent.Filters = p.extractFilters(definition, llmFilters, intent)

	intent.AdditionalColumns = p.extractAdditionalColumns(definition, llmExtras, resolver, planner, intent.SourceTable)

	joinFound := false
	if intent.SourceTable != "" && intent.TargetTable != "" {
		if srcCol, tgtCol, ok := planner.JoinCondition(intent.SourceTable, intent.TargetTable); ok {
			intent.JoinColumns = []models.JoinColumnPair{{SourceColumn: srcCol, TargetColumn: tgtCol}}
			joinFound = true
		}
	}

	intent.Confidence = p.score(llmUsed, intent, joinFound)

	p.logger.Debug("parsed query intent",
		zap.String("query_type", intent.QueryType),
		zap.String("operation", intent.Operation),
		zap.String("source_table", intent.SourceTable),
		zap.String("target_table", intent.TargetTable),
		zap.Float64("confidence", intent.Confidence))
	return intent, nil
}

func (p *queryParser) parseWithLLM(ctx context.Context, definition string, graph *models.KnowledgeGraph) (*llmIntent, error) {
	vocabulary := make([]prompts.TableVocabulary, 0, len(graph.Nodes))
	for _, label := range graph.TableLabels() {
		vocabulary = append(vocabulary, prompts.TableVocabulary{
			Label:   label,
			Aliases: graph.TableAliases[label],
		})
	}

	prompt := prompts.BuildQueryPrompt(definition, vocabulary, StopWords())
	response, err := p.client.GenerateResponse(ctx, prompt, prompts.QuerySystemMessage)
	if err != nil {
		return nil, err
	}
	return llm.ParseJSONResponse[*llmIntent](response)
}

// heuristicTables scans the definition for phrases resolvable to table
// labels, longest phrase first, skipping common words. The first two distinct
// resolutions become source and target.
func heuristicTables(definition string, resolver *kg.AliasResolver) (string, string) {
	tokens := strings.Fields(definition)

	var resolved []string
	i := 0
	for i < len(tokens) {
		matched := 0
		for window := maxTableMatchWindow; window >= 1; window-- {
			if i+window > len(tokens) {
				continue
			}
			phrase := cleanPhrase(tokens[i : i+window])
			if phrase == "" || IsCommonWord(phrase) {
				continue
			}
			if label := resolver.Resolve(phrase); label != "" {
				if len(resolved) == 0 || !strings.EqualFold(resolved[len(resolved)-1], label) {
					resolved = append(resolved, label)
				}
				matched = window
				break
			}
		}
		if matched > 0 {
			i += matched
		} else {
			i++
		}
	}

	switch len(resolved) {
	case 0:
		return "", ""
	case 1:
		return resolved[0], ""
	default:
		return resolved[0], resolved[1]
	}
}

var punctTrim = regexp.MustCompile(`^[^\w\[\]]+|[^\w\[\]]+$`)

func cleanPhrase(tokens []string) string {
	parts := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		tok = punctTrim.ReplaceAllString(tok, "")
		if tok == "" {
			return ""
		}
		parts = append(parts, tok)
	}
	// Single common-word tokens never form a candidate; multi-word phrases may
	// contain them ("OPS Excel" keeps "Excel").
	if len(parts) == 1 && IsCommonWord(parts[0]) {
		return ""
	}
	return strings.Join(parts, " ")
}

var (
	explicitFilterPattern = regexp.MustCompile(`(?i)([\w.]+)\s*(=|!=|>=|<=|>|<)\s*'([^']*)'`)
	containsFilterPattern = regexp.MustCompile(`(?i)([\w.]+)\s+contains\s+'([^']*)'`)
)

// extractFilters prefers explicit column = 'value' patterns, then
// column contains 'value' substring filters, then the active/inactive
// shorthand, then LLM-proposed filters not already covered. For comparison
// queries the table hint is the target table.
func (p *queryParser) extractFilters(definition string, llmFilters []models.Filter, intent *models.QueryIntent) []models.Filter {
	var filters []models.Filter
	seen := make(map[string]struct{})

	add := func(f models.Filter) {
		key := strings.ToLower(f.Column) + "|" + strings.ToLower(f.Value)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		if f.Comparator == "" {
			f.Comparator = "="
		}
		if intent.QueryType == models.QueryTypeComparison && f.TableHint == "" {
			f.TableHint = intent.TargetTable
		}
		filters = append(filters, f)
	}

	for _, m := range explicitFilterPattern.FindAllStringSubmatch(definition, -1) {
		column := m[1]
		if i := strings.LastIndex(column, "."); i >= 0 {
			column = column[i+1:]
		}
		add(models.Filter{Column: column, Value: m[3], Comparator: m[2]})
	}

	for _, m := range containsFilterPattern.FindAllStringSubmatch(definition, -1) {
		column := m[1]
		if i := strings.LastIndex(column, "."); i >= 0 {
			column = column[i+1:]
		}
		add(models.Filter{Column: column, Value: "%" + m[2] + "%", Comparator: "LIKE"})
	}

	lower := strings.ToLower(definition)
	tokens := tokenPattern.FindAllString(lower, -1)
	for _, tok := range tokens {
		switch tok {
		case "active":
			add(models.Filter{Column: "Active_Inactive", Value: "Active"})
		case "inactive":
			add(models.Filter{Column: "Active_Inactive", Value: "Inactive"})
		}
	}

	for _, f := range llmFilters {
		add(f)
	}
	return filters
}

var includePattern = regexp.MustCompile(`(?i)include\s+([\w\[\]]+)\s+from\s+([\w\[\] ]+?)(?:\s*(?:,|;|\.|$|\band\b))`)

// extractAdditionalColumns handles "include <col> from <table>" requests:
// each table resolves through aliases and gets a join path from the source
// table. Unresolvable tables or missing paths drop the projection with a
// warning.
func (p *queryParser) extractAdditionalColumns(definition string, llmExtras []models.AdditionalColumn, resolver *kg.AliasResolver, planner *kg.JoinPlanner, sourceTable string) []models.AdditionalColumn {
	type request struct {
		table  string
		column string
	}
	var requests []request
	for _, m := range includePattern.FindAllStringSubmatch(definition, -1) {
		requests = append(requests, request{table: strings.TrimSpace(m[2]), column: m[1]})
	}
	for _, extra := range llmExtras {
		requests = append(requests, request{table: extra.Table, column: extra.ColumnName})
	}

	var out []models.AdditionalColumn
	seen := make(map[string]struct{})
	for _, req := range requests {
		label := resolver.Resolve(req.table)
		if label == "" {
			p.logger.Warn("dropping additional column with unresolvable table",
				zap.String("table", req.table),
				zap.String("column", req.column))
			continue
		}
		key := strings.ToLower(label) + "|" + strings.ToLower(req.column)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		var joinPath []string
		if sourceTable != "" {
			joinPath = planner.FindJoinPath(sourceTable, label)
		}
		if len(joinPath) == 0 {
			p.logger.Warn("no join path for additional column table",
				zap.String("source_table", sourceTable),
				zap.String("table", label))
		}
		out = append(out, models.AdditionalColumn{
			Table:      label,
			ColumnName: req.column,
			JoinPath:   joinPath,
		})
	}
	return out
}

func (p *queryParser) score(llmUsed bool, intent *models.QueryIntent, joinFound bool) float64 {
	confidence := confidenceBase
	if llmUsed {
		confidence += confidenceLLMBonus
	}
	if intent.SourceTable != "" {
		confidence += confidenceEndpoint
	}
	if intent.TargetTable != "" {
		confidence += confidenceEndpoint
	}
	if joinFound {
		confidence += confidenceJoinPath
	}
	if confidence > confidenceCap {
		confidence = confidenceCap
	}
	return confidence
}
