package services

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/reconlab/recon-engine/pkg/llm"
	"github.com/reconlab/recon-engine/pkg/models"
	"github.com/reconlab/recon-engine/pkg/prompts"
)

// heuristicConfidenceCap bounds confidence on the deterministic fallback path.
const heuristicConfidenceCap = 0.75

// RelationshipParser extracts table relationships from natural language
// statements.
type RelationshipParser interface {
	// Parse returns edges for the statement, restricted to tables present in
	// schemas and filtered by minConfidence. Malformed LLM output degrades to
	// the deterministic parser, never an error.
	Parse(ctx context.Context, statement string, schemas []*models.Schema, useLLM bool, minConfidence float64) ([]models.Relationship, error)
}

type relationshipParser struct {
	client llm.Client
	logger *zap.Logger
}

var _ RelationshipParser = (*relationshipParser)(nil)

// NewRelationshipParser creates a parser. client may be nil (heuristic-only).
func NewRelationshipParser(client llm.Client, logger *zap.Logger) RelationshipParser {
	return &relationshipParser{
		client: client,
		logger: logger.Named("relationship_parser"),
	}
}

// relationshipCandidate is the wire shape of one LLM-proposed relationship.
type relationshipCandidate struct {
	SourceTable  string  `json:"source_table"`
	SourceColumn string  `json:"source_column"`
	TargetTable  string  `json:"target_table"`
	TargetColumn string  `json:"target_column"`
	Cardinality  string  `json:"cardinality"`
	Confidence   float64 `json:"confidence"`
	Reasoning    string  `json:"reasoning"`
}

type relationshipResponse struct {
	Relationships []relationshipCandidate `json:"relationships"`
}

func (p *relationshipParser) Parse(ctx context.Context, statement string, schemas []*models.Schema, useLLM bool, minConfidence float64) ([]models.Relationship, error) {
	var candidates []relationshipCandidate

	if useLLM && p.client != nil {
		parsed, err := p.parseWithLLM(ctx, statement, schemas)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.logger.Warn("LLM relationship parsing failed, using deterministic parser",
				zap.Error(err))
			candidates = parseHeuristic(statement, schemas)
		} else {
			candidates = parsed
		}
	} else {
		candidates = parseHeuristic(statement, schemas)
	}

	edges := make([]models.Relationship, 0, len(candidates))
	for _, c := range candidates {
		edge, ok := p.validate(c, schemas, minConfidence)
		if !ok {
			continue
		}
		edges = append(edges, edge)
	}

	p.logger.Info("parsed NL relationships",
		zap.Int("candidates", len(candidates)),
		zap.Int("accepted", len(edges)))
	return edges, nil
}

func (p *relationshipParser) parseWithLLM(ctx context.Context, statement string, schemas []*models.Schema) ([]relationshipCandidate, error) {
	prompt := prompts.BuildRelationshipPrompt(statement, schemas, StopWords())
	response, err := p.client.GenerateResponse(ctx, prompt, prompts.RelationshipSystemMessage)
	if err != nil {
		return nil, err
	}
	parsed, err := llm.ParseJSONResponse[relationshipResponse](response)
	if err != nil {
		return nil, err
	}
	return parsed.Relationships, nil
}

// validate canonicalizes table labels against the schemas, checks columns
// exist, applies the excluded-field policy, and enforces minConfidence.
func (p *relationshipParser) validate(c relationshipCandidate, schemas []*models.Schema, minConfidence float64) (models.Relationship, bool) {
	sourceTable := findTableLabel(schemas, c.SourceTable)
	targetTable := findTableLabel(schemas, c.TargetTable)
	if sourceTable == nil || targetTable == nil {
		p.logger.Warn("dropping relationship with unknown table",
			zap.String("source_table", c.SourceTable),
			zap.String("target_table", c.TargetTable))
		return models.Relationship{}, false
	}
	if c.SourceColumn != "" && sourceTable.FindColumn(c.SourceColumn) == nil {
		return models.Relationship{}, false
	}
	if c.TargetColumn != "" && targetTable.FindColumn(c.TargetColumn) == nil {
		return models.Relationship{}, false
	}
	if models.IsExcluded(c.SourceColumn) || models.IsExcluded(c.TargetColumn) {
		p.logger.Info("dropping relationship referencing excluded field",
			zap.String("source_column", c.SourceColumn),
			zap.String("target_column", c.TargetColumn))
		return models.Relationship{}, false
	}
	if c.Confidence < minConfidence {
		return models.Relationship{}, false
	}

	relType := models.RelTypeRelatedTo
	if c.SourceColumn != "" && c.TargetColumn != "" {
		relType = models.RelTypeReferences
	}
	return models.Relationship{
		SourceID:         models.TableNodeID(sourceTable.Name),
		TargetID:         models.TableNodeID(targetTable.Name),
		RelationshipType: relType,
		SourceColumn:     c.SourceColumn,
		TargetColumn:     c.TargetColumn,
		Confidence:       c.Confidence,
		Origin:           models.OriginNaturalLanguage,
		Cardinality:      normalizeCardinality(c.Cardinality),
		Reasoning:        c.Reasoning,
	}, true
}

// findTableLabel returns the table whose name matches case-insensitively, in
// any schema.
func findTableLabel(schemas []*models.Schema, name string) *models.Table {
	if name == "" {
		return nil
	}
	for _, schema := range schemas {
		if t := schema.FindTable(name); t != nil {
			return t
		}
	}
	return nil
}

var cardinalityWords = map[string]string{
	"one-to-one":   models.Cardinality1To1,
	"1:1":          models.Cardinality1To1,
	"one-to-many":  models.Cardinality1ToN,
	"1:n":          models.Cardinality1ToN,
	"many-to-one":  models.CardinalityNTo1,
	"n:1":          models.CardinalityNTo1,
	"many-to-many": models.CardinalityNToM,
	"n:m":          models.CardinalityNToM,
}

func normalizeCardinality(raw string) string {
	if c, ok := cardinalityWords[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return c
	}
	return ""
}

var (
	clausePattern      = regexp.MustCompile(`(?i)\s*(?:,|;| and also | and )\s*`)
	columnRefPattern   = regexp.MustCompile(`([A-Za-z_][\w]*)\.([A-Za-z_][\w]*)`)
	cardinalityPattern = regexp.MustCompile(`(?i)(one-to-one|one-to-many|many-to-one|many-to-many)`)
)

// parseHeuristic is the deterministic fallback: split the statement on
// connectives, look for table.column pairs, and match bare tokens against
// known table labels. Confidence is capped at 0.75.
func parseHeuristic(statement string, schemas []*models.Schema) []relationshipCandidate {
	var out []relationshipCandidate

	for _, clause := range clausePattern.Split(statement, -1) {
		if strings.TrimSpace(clause) == "" {
			continue
		}

		cardinality := ""
		if m := cardinalityPattern.FindString(clause); m != "" {
			cardinality = strings.ToLower(m)
		}

		// Explicit table.column pairs are the strongest signal.
		refs := columnRefPattern.FindAllStringSubmatch(clause, -1)
		var qualified []relationshipCandidate
		for i := 0; i+1 < len(refs); i += 2 {
			if findTableLabel(schemas, refs[i][1]) == nil || findTableLabel(schemas, refs[i+1][1]) == nil {
				continue
			}
			qualified = append(qualified, relationshipCandidate{
				SourceTable:  refs[i][1],
				SourceColumn: refs[i][2],
				TargetTable:  refs[i+1][1],
				TargetColumn: refs[i+1][2],
				Cardinality:  cardinality,
				Confidence:   heuristicConfidenceCap,
				Reasoning:    "explicit table.column pair in statement",
			})
		}
		if len(qualified) > 0 {
			out = append(out, qualified...)
			continue
		}

		// Otherwise pair the first two known table labels mentioned.
		mentioned := mentionedTables(clause, schemas)
		if len(mentioned) >= 2 {
			out = append(out, relationshipCandidate{
				SourceTable: mentioned[0],
				TargetTable: mentioned[1],
				Cardinality: cardinality,
				Confidence:  0.6,
				Reasoning:   "tables co-mentioned in statement",
			})
		}
	}
	return out
}

// mentionedTables returns known table labels appearing in the clause, in
// order of appearance, skipping common words.
func mentionedTables(clause string, schemas []*models.Schema) []string {
	lower := strings.ToLower(clause)
	var found []string
	seen := make(map[string]struct{})
	type hit struct {
		pos   int
		label string
	}
	var hits []hit
	for _, schema := range schemas {
		for _, table := range schema.Tables {
			name := strings.ToLower(table.Name)
			if IsCommonWord(name) {
				continue
			}
			if pos := strings.Index(lower, name); pos >= 0 {
				if _, dup := seen[name]; !dup {
					seen[name] = struct{}{}
					hits = append(hits, hit{pos: pos, label: table.Name})
				}
			}
		}
	}
	for i := range hits {
		for j := i + 1; j < len(hits); j++ {
			if hits[j].pos < hits[i].pos {
				hits[i], hits[j] = hits[j], hits[i]
			}
		}
	}
	for _, h := range hits {
		found = append(found, h.label)
	}
	return found
}
