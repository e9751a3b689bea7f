package kg

import (
	"sort"

	"go.uber.org/zap"

	"github.com/reconlab/recon-engine/pkg/models"
)

// ViewNode is one node in the rendering payload.
type ViewNode struct {
	ID      string   `json:"id"`
	Label   string   `json:"label"`
	Kind    string   `json:"kind"`
	Schema  string   `json:"schema,omitempty"`
	Columns []string `json:"columns,omitempty"`
	Aliases []string `json:"aliases,omitempty"`
}

// ViewEdge is one relationship in the rendering payload. Endpoints are node
// ids that are guaranteed to exist in Nodes.
type ViewEdge struct {
	Source       string  `json:"source"`
	Target       string  `json:"target"`
	Type         string  `json:"type"`
	SourceColumn string  `json:"source_column,omitempty"`
	TargetColumn string  `json:"target_column,omitempty"`
	Confidence   float64 `json:"confidence"`
	Origin       string  `json:"origin"`
}

// GraphView is the flattened form of a knowledge graph handed to rendering
// layers. Clusters group connected table labels (largest first); Islands are
// tables with no surviving edges. DroppedEdges counts relationships removed
// by the orphan guard.
type GraphView struct {
	Nodes        []ViewNode `json:"nodes"`
	Edges        []ViewEdge `json:"edges"`
	Clusters     [][]string `json:"clusters,omitempty"`
	Islands      []string   `json:"islands,omitempty"`
	DroppedEdges int        `json:"dropped_edges,omitempty"`
}

// BuildGraphView flattens a graph snapshot into the rendering payload. A
// relationship pointing at an unknown node is dropped with a warning; a
// malformed edge must never surface as an error to the caller.
func BuildGraphView(kg *models.KnowledgeGraph, logger *zap.Logger) *GraphView {
	view := &GraphView{}
	labelByID := make(map[string]string, len(kg.Nodes))

	for _, n := range kg.Nodes {
		labelByID[n.ID] = n.Label
		vn := ViewNode{
			ID:      n.ID,
			Label:   n.Label,
			Kind:    n.Kind,
			Aliases: kg.TableAliases[n.Label],
		}
		if schema, ok := n.Properties["schema"].(string); ok {
			vn.Schema = schema
		}
		switch cols := n.Properties["columns"].(type) {
		case []string:
			vn.Columns = cols
		case []any:
			for _, c := range cols {
				if s, ok := c.(string); ok {
					vn.Columns = append(vn.Columns, s)
				}
			}
		}
		view.Nodes = append(view.Nodes, vn)
	}

	adjacency := make(map[string][]string)
	for _, rel := range kg.Relationships {
		if _, ok := labelByID[rel.SourceID]; !ok {
			view.DroppedEdges++
			logger.Warn("dropping edge with unknown source node",
				zap.String("source_id", rel.SourceID),
				zap.String("target_id", rel.TargetID),
				zap.String("type", rel.RelationshipType))
			continue
		}
		if _, ok := labelByID[rel.TargetID]; !ok {
			view.DroppedEdges++
			logger.Warn("dropping edge with unknown target node",
				zap.String("source_id", rel.SourceID),
				zap.String("target_id", rel.TargetID),
				zap.String("type", rel.RelationshipType))
			continue
		}
		view.Edges = append(view.Edges, ViewEdge{
			Source:       rel.SourceID,
			Target:       rel.TargetID,
			Type:         rel.RelationshipType,
			SourceColumn: rel.SourceColumn,
			TargetColumn: rel.TargetColumn,
			Confidence:   rel.Confidence,
			Origin:       rel.Origin,
		})
		adjacency[rel.SourceID] = append(adjacency[rel.SourceID], rel.TargetID)
		adjacency[rel.TargetID] = append(adjacency[rel.TargetID], rel.SourceID)
	}

	view.Clusters, view.Islands = connectedTables(kg, adjacency, labelByID)
	return view
}

// connectedTables groups table labels into connected components over the
// surviving edges. Components are sorted largest first; single-table
// components come back as islands.
func connectedTables(kg *models.KnowledgeGraph, adjacency map[string][]string, labelByID map[string]string) ([][]string, []string) {
	var tableIDs []string
	for _, n := range kg.Nodes {
		if n.Kind == models.NodeKindTable {
			tableIDs = append(tableIDs, n.ID)
		}
	}
	sort.Strings(tableIDs)

	visited := make(map[string]bool, len(tableIDs))
	var clusters [][]string
	var islands []string

	for _, start := range tableIDs {
		if visited[start] {
			continue
		}
		component := walkComponent(start, adjacency, visited)

		labels := make([]string, 0, len(component))
		for _, id := range component {
			labels = append(labels, labelByID[id])
		}
		sort.Strings(labels)

		if len(labels) == 1 {
			islands = append(islands, labels[0])
			continue
		}
		clusters = append(clusters, labels)
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		return len(clusters[i]) > len(clusters[j])
	})
	sort.Strings(islands)
	return clusters, islands
}

// walkComponent is an iterative DFS from start over the adjacency list.
func walkComponent(start string, adjacency map[string][]string, visited map[string]bool) []string {
	var component []string
	stack := []string{start}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[current] {
			continue
		}
		visited[current] = true
		component = append(component, current)
		for _, neighbor := range adjacency[current] {
			if !visited[neighbor] {
				stack = append(stack, neighbor)
			}
		}
	}
	return component
}
