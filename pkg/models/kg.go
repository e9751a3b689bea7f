package models

import (
	"strings"
	"time"
)

// Node kinds.
const (
	NodeKindTable  = "table"
	NodeKindColumn = "column"
)

// Relationship origins.
const (
	OriginAutoDetected    = "auto_detected"
	OriginNaturalLanguage = "natural_language"
)

// Relationship types emitted by the assembler and NL parser.
const (
	RelTypeReferences           = "REFERENCES"
	RelTypeCrossSchemaReference = "CROSS_SCHEMA_REFERENCE"
	RelTypeRelatedTo            = "RELATED_TO"
)

// Cardinality values.
const (
	Cardinality1To1    = "1:1"
	Cardinality1ToN    = "1:N"
	CardinalityNTo1    = "N:1"
	CardinalityNToM    = "N:M"
	CardinalityUnknown = "unknown"
)

// ValidCardinalities contains all valid cardinality values.
var ValidCardinalities = []string{
	Cardinality1To1,
	Cardinality1ToN,
	CardinalityNTo1,
	CardinalityNToM,
	CardinalityUnknown,
}

// IsValidCardinality checks if the given cardinality is valid.
func IsValidCardinality(c string) bool {
	for _, v := range ValidCardinalities {
		if v == c {
			return true
		}
	}
	return false
}

// TableNodeID returns the canonical node id for a table label.
// Ids are case-insensitive; labels keep the original case.
func TableNodeID(label string) string {
	return "table_" + strings.ToLower(label)
}

// Node is a knowledge graph node. Table node ids carry a "table_" prefix over
// the lowercased label so that ids are stable across schemas while the label
// round-trips the original case.
type Node struct {
	ID         string         `json:"id"`
	Label      string         `json:"label"`
	Kind       string         `json:"kind"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Relationship is a directed, typed edge between two nodes. Column references
// are column names recorded on the edge, not column node ids.
type Relationship struct {
	SourceID         string         `json:"source_id"`
	TargetID         string         `json:"target_id"`
	RelationshipType string         `json:"relationship_type"`
	Properties       map[string]any `json:"properties,omitempty"`
	SourceColumn     string         `json:"source_column,omitempty"`
	TargetColumn     string         `json:"target_column,omitempty"`
	Confidence       float64        `json:"confidence"`
	Origin           string         `json:"origin"`
	Cardinality      string         `json:"cardinality,omitempty"`
	Reasoning        string         `json:"reasoning,omitempty"`
}

// DedupKey identifies an edge for duplicate suppression.
func (r *Relationship) DedupKey() string {
	return r.SourceID + "|" + r.TargetID + "|" + r.RelationshipType
}

// KGMetadata carries bookkeeping for a knowledge graph.
type KGMetadata struct {
	Name          string         `json:"name"`
	CreatedAt     time.Time      `json:"created_at"`
	SchemasMerged []string       `json:"schemas_merged"`
	Statistics    *KGStatistics  `json:"statistics,omitempty"`
	Extra         map[string]any `json:"extra,omitempty"`
}

// KnowledgeGraph is the merged property graph over one or more schemas.
// AliasConfidence records, per table label, the confidence of the alias set in
// TableAliases; relearning only overwrites at equal or higher confidence.
type KnowledgeGraph struct {
	Nodes           []Node              `json:"nodes"`
	Relationships   []Relationship      `json:"relationships"`
	TableAliases    map[string][]string `json:"table_aliases,omitempty"`
	AliasConfidence map[string]float64  `json:"alias_confidence,omitempty"`
	Metadata        KGMetadata          `json:"metadata"`
}

// KGStatistics summarizes the relationship population of a graph.
// Computable in a single pass over the edges.
type KGStatistics struct {
	TotalRelationships int            `json:"total_relationships"`
	ByOrigin           map[string]int `json:"by_origin"`
	ByType             map[string]int `json:"by_type"`
	UniqueSourceTables int            `json:"unique_source_tables"`
	AverageConfidence  float64        `json:"average_confidence"`
	HighConfidence     int            `json:"high_confidence"` // confidence >= 0.7
}

// FindNode returns the node with the given id, or nil.
func (kg *KnowledgeGraph) FindNode(id string) *Node {
	for i := range kg.Nodes {
		if kg.Nodes[i].ID == id {
			return &kg.Nodes[i]
		}
	}
	return nil
}

// FindTableNode returns the table node whose label matches case-insensitively.
func (kg *KnowledgeGraph) FindTableNode(label string) *Node {
	id := TableNodeID(label)
	for i := range kg.Nodes {
		if kg.Nodes[i].Kind == NodeKindTable && kg.Nodes[i].ID == id {
			return &kg.Nodes[i]
		}
	}
	return nil
}

// TableLabels returns the original-case labels of all table nodes.
func (kg *KnowledgeGraph) TableLabels() []string {
	labels := make([]string, 0, len(kg.Nodes))
	for _, n := range kg.Nodes {
		if n.Kind == NodeKindTable {
			labels = append(labels, n.Label)
		}
	}
	return labels
}

// HasNode reports whether a node with the given id exists.
func (kg *KnowledgeGraph) HasNode(id string) bool {
	return kg.FindNode(id) != nil
}

// DropOrphanEdges removes relationships whose endpoints are not present in
// Nodes. Rendering layers must never see an edge pointing at a missing node.
// Returns the number of edges dropped.
func (kg *KnowledgeGraph) DropOrphanEdges() int {
	ids := make(map[string]struct{}, len(kg.Nodes))
	for _, n := range kg.Nodes {
		ids[n.ID] = struct{}{}
	}
	kept := kg.Relationships[:0]
	dropped := 0
	for _, r := range kg.Relationships {
		if _, ok := ids[r.SourceID]; !ok {
			dropped++
			continue
		}
		if _, ok := ids[r.TargetID]; !ok {
			dropped++
			continue
		}
		kept = append(kept, r)
	}
	kg.Relationships = kept
	return dropped
}
