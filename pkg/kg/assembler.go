package kg

import (
	"context"
	"strings"
	"time"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/reconlab/recon-engine/pkg/models"
)

// Cross-schema inference confidence by match strength.
const (
	confidenceIDSuffix   = 0.85 // <table>_id
	confidenceUIDSuffix  = 0.80 // <table>_uid
	confidenceCodeSuffix = 0.70 // <table>_code
	confidenceBareName   = 0.60 // column named exactly like a table
)

// referenceSuffixes are scanned in order; the first match wins.
var referenceSuffixes = []struct {
	suffix     string
	confidence float64
}{
	{"_id", confidenceIDSuffix},
	{"_uid", confidenceUIDSuffix},
	{"_code", confidenceCodeSuffix},
}

// Assembler builds merged knowledge graphs from schema descriptors.
type Assembler struct {
	aliases *AliasLearner // optional; nil disables alias learning
	logger  *zap.Logger
}

// NewAssembler creates an assembler. aliases may be nil.
func NewAssembler(aliases *AliasLearner, logger *zap.Logger) *Assembler {
	return &Assembler{
		aliases: aliases,
		logger:  logger.Named("assembler"),
	}
}

// BuildMerged builds one graph over all schemas: a table node per table,
// REFERENCES edges from declared foreign keys, inferred CROSS_SCHEMA_REFERENCE
// edges from column naming patterns, and (when useLLM is set) learned table
// aliases. Alias failures produce warnings, never an error.
func (a *Assembler) BuildMerged(ctx context.Context, schemas []*models.Schema, kgName string, useLLM bool) (*models.KnowledgeGraph, error) {
	kg := &models.KnowledgeGraph{
		TableAliases:    make(map[string][]string),
		AliasConfidence: make(map[string]float64),
		Metadata: models.KGMetadata{
			Name:      kgName,
			CreatedAt: time.Now().UTC(),
		},
	}

	// Phase 1: table nodes, deduplicated by canonical id.
	seenNodes := make(map[string]struct{})
	tableSchema := make(map[string]string) // node id -> schema name
	for _, schema := range schemas {
		kg.Metadata.SchemasMerged = append(kg.Metadata.SchemasMerged, schema.Name)
		for _, table := range schema.Tables {
			id := models.TableNodeID(table.Name)
			if _, ok := seenNodes[id]; ok {
				continue
			}
			seenNodes[id] = struct{}{}
			tableSchema[id] = schema.Name
			kg.Nodes = append(kg.Nodes, models.Node{
				ID:    id,
				Label: table.Name,
				Kind:  models.NodeKindTable,
				Properties: map[string]any{
					"schema":      schema.Name,
					"description": table.Description,
					"columns":     table.ColumnNames(),
				},
			})
		}
	}

	// Phase 2: intra-schema REFERENCES edges from declared foreign keys.
	// edgeSet keeps insertion order so repeated builds yield identical graphs.
	edges := newEdgeSet()
	for _, schema := range schemas {
		for _, table := range schema.Tables {
			for _, col := range table.Columns {
				if col.ForeignKey == nil {
					continue
				}
				a.addEdge(edges, models.Relationship{
					SourceID:         models.TableNodeID(table.Name),
					TargetID:         models.TableNodeID(col.ForeignKey.TargetTable),
					RelationshipType: models.RelTypeReferences,
					SourceColumn:     col.Name,
					TargetColumn:     col.ForeignKey.TargetColumn,
					Confidence:       1.0,
					Origin:           models.OriginAutoDetected,
					Properties:       map[string]any{"schema": schema.Name},
				})
			}
		}
	}

	// Phase 3: inferred cross-schema references from column naming patterns.
	for _, schema := range schemas {
		for _, table := range schema.Tables {
			for _, col := range table.Columns {
				ref := a.inferCrossSchemaReference(schemas, schema, &table, &col)
				if ref == nil {
					continue
				}
				a.addEdge(edges, *ref)
			}
		}
	}

	kg.Relationships = edges.ordered()

	// Phase 4: learned aliases (optional, non-fatal).
	if useLLM && a.aliases != nil {
		for _, schema := range schemas {
			for _, table := range schema.Tables {
				aliases, confidence, err := a.aliases.Learn(ctx, &table)
				if err != nil {
					a.logger.Warn("alias learning failed, continuing",
						zap.String("table", table.Name),
						zap.Error(err))
					continue
				}
				if len(aliases) > 0 {
					kg.TableAliases[table.Name] = aliases
					kg.AliasConfidence[table.Name] = confidence
				}
			}
		}
	}

	a.logger.Info("built merged knowledge graph",
		zap.String("kg", kgName),
		zap.Int("schemas", len(schemas)),
		zap.Int("nodes", len(kg.Nodes)),
		zap.Int("relationships", len(kg.Relationships)))

	return kg, nil
}

// edgeSet deduplicates edges by (source_id, target_id, relationship_type)
// while preserving first-insertion order. A duplicate key keeps the higher
// confidence edge in its original position.
type edgeSet struct {
	index map[string]int
	list  []models.Relationship
}

func newEdgeSet() *edgeSet {
	return &edgeSet{index: make(map[string]int)}
}

func (es *edgeSet) add(rel models.Relationship) {
	key := rel.DedupKey()
	if i, ok := es.index[key]; ok {
		if rel.Confidence > es.list[i].Confidence {
			es.list[i] = rel
		}
		return
	}
	es.index[key] = len(es.list)
	es.list = append(es.list, rel)
}

func (es *edgeSet) ordered() []models.Relationship {
	return es.list
}

// addEdge inserts an edge unless it references an excluded column.
func (a *Assembler) addEdge(edges *edgeSet, rel models.Relationship) {
	if models.IsExcluded(rel.SourceColumn) || models.IsExcluded(rel.TargetColumn) {
		a.logger.Info("dropping edge referencing excluded field",
			zap.String("source_column", rel.SourceColumn),
			zap.String("target_column", rel.TargetColumn))
		return
	}
	edges.add(rel)
}

// inferCrossSchemaReference detects a referential naming pattern on col that
// points at a table in a different schema. Patterns: <X>_id, <X>_uid,
// <X>_code, or a bare <X> where table <X> exists elsewhere (singular or
// plural form, case-insensitive).
func (a *Assembler) inferCrossSchemaReference(schemas []*models.Schema, owner *models.Schema, table *models.Table, col *models.Column) *models.Relationship {
	name := strings.ToLower(col.Name)

	for _, pattern := range referenceSuffixes {
		if !strings.HasSuffix(name, pattern.suffix) {
			continue
		}
		base := strings.TrimSuffix(name, pattern.suffix)
		if base == "" {
			continue
		}
		targetSchema, targetTable := findForeignTable(schemas, owner, base)
		if targetTable == nil {
			continue
		}
		targetColumn := pickTargetColumn(targetTable, strings.TrimPrefix(pattern.suffix, "_"))
		if targetColumn == "" {
			continue
		}
		return a.buildInferredEdge(owner, table, col, targetSchema, targetTable, targetColumn, pattern.confidence)
	}

	// Bare table-name column, weakest signal.
	targetSchema, targetTable := findForeignTable(schemas, owner, name)
	if targetTable == nil {
		return nil
	}
	targetColumn := pickTargetColumn(targetTable, "id")
	if targetColumn == "" {
		return nil
	}
	return a.buildInferredEdge(owner, table, col, targetSchema, targetTable, targetColumn, confidenceBareName)
}

func (a *Assembler) buildInferredEdge(owner *models.Schema, table *models.Table, col *models.Column,
	targetSchema *models.Schema, targetTable *models.Table, targetColumn string, confidence float64) *models.Relationship {
	return &models.Relationship{
		SourceID:         models.TableNodeID(table.Name),
		TargetID:         models.TableNodeID(targetTable.Name),
		RelationshipType: models.RelTypeCrossSchemaReference,
		SourceColumn:     col.Name,
		TargetColumn:     targetColumn,
		Confidence:       confidence,
		Origin:           models.OriginAutoDetected,
		Properties: map[string]any{
			"inferred":      true,
			"source_schema": owner.Name,
			"target_schema": targetSchema.Name,
		},
	}
}

// findForeignTable looks for a table named base (or its singular/plural form)
// in any schema other than owner.
func findForeignTable(schemas []*models.Schema, owner *models.Schema, base string) (*models.Schema, *models.Table) {
	candidates := []string{base, inflection.Plural(base), inflection.Singular(base)}
	for _, schema := range schemas {
		if schema.Name == owner.Name {
			continue
		}
		for _, candidate := range candidates {
			if t := schema.FindTable(candidate); t != nil {
				return schema, t
			}
		}
	}
	return nil, nil
}

// pickTargetColumn chooses the referenced column: the suffix token itself if
// the target table carries it (vendor_uid -> vendor.uid), else the target's
// primary key, else empty (no edge).
func pickTargetColumn(table *models.Table, suffixToken string) string {
	if c := table.FindColumn(suffixToken); c != nil {
		return c.Name
	}
	for _, c := range table.Columns {
		if c.PrimaryKey {
			return c.Name
		}
	}
	return ""
}
