package kg

import (
	"sort"
	"strings"

	"github.com/reconlab/recon-engine/pkg/models"
)

// JoinPlanner answers connectivity questions over a KG snapshot: ordered join
// paths between tables and the concrete column pair for one hop.
type JoinPlanner struct {
	kg *models.KnowledgeGraph

	labels    map[string]string   // node id -> original label
	adjacency map[string][]string // node id -> sorted neighbor ids
}

// NewJoinPlanner indexes a graph snapshot for path queries.
func NewJoinPlanner(kg *models.KnowledgeGraph) *JoinPlanner {
	p := &JoinPlanner{
		kg:        kg,
		labels:    make(map[string]string, len(kg.Nodes)),
		adjacency: make(map[string][]string),
	}
	for _, node := range kg.Nodes {
		if node.Kind == models.NodeKindTable {
			p.labels[node.ID] = node.Label
		}
	}

	seen := make(map[string]struct{})
	addNeighbor := func(from, to string) {
		key := from + "|" + to
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		p.adjacency[from] = append(p.adjacency[from], to)
	}
	for _, rel := range kg.Relationships {
		if _, ok := p.labels[rel.SourceID]; !ok {
			continue
		}
		if _, ok := p.labels[rel.TargetID]; !ok {
			continue
		}
		addNeighbor(rel.SourceID, rel.TargetID)
		addNeighbor(rel.TargetID, rel.SourceID)
	}
	// Sorted neighbor order keeps BFS deterministic across builds.
	for id := range p.adjacency {
		sort.Strings(p.adjacency[id])
	}
	return p
}

// FindJoinPath returns the ordered table labels connecting source to target
// (inclusive of both endpoints), or nil when no path exists. Edges are
// traversed undirected. Among minimum-hop paths, higher average edge
// confidence wins, then paths using NL-originated edges. Consecutive
// duplicate labels are collapsed.
func (p *JoinPlanner) FindJoinPath(sourceLabel, targetLabel string) []string {
	sourceID := models.TableNodeID(sourceLabel)
	targetID := models.TableNodeID(targetLabel)
	if _, ok := p.labels[sourceID]; !ok {
		return nil
	}
	if _, ok := p.labels[targetID]; !ok {
		return nil
	}
	if sourceID == targetID {
		return []string{p.labels[sourceID]}
	}

	paths := p.shortestPaths(sourceID, targetID)
	if len(paths) == 0 {
		return nil
	}

	best := paths[0]
	bestConf, bestNL := p.scorePath(best)
	for _, candidate := range paths[1:] {
		conf, nl := p.scorePath(candidate)
		if conf > bestConf || (conf == bestConf && nl > bestNL) {
			best, bestConf, bestNL = candidate, conf, nl
		}
	}

	labels := make([]string, 0, len(best))
	for _, id := range best {
		label := p.labels[id]
		if n := len(labels); n > 0 && strings.EqualFold(labels[n-1], label) {
			continue
		}
		labels = append(labels, label)
	}
	return labels
}

// shortestPaths collects every minimum-hop path from source to target via a
// level-by-level BFS.
func (p *JoinPlanner) shortestPaths(sourceID, targetID string) [][]string {
	depth := map[string]int{sourceID: 0}
	frontier := [][]string{{sourceID}}
	var found [][]string

	for len(frontier) > 0 && len(found) == 0 {
		var next [][]string
		levelDepth := len(frontier[0])
		for _, path := range frontier {
			last := path[len(path)-1]
			for _, neighbor := range p.adjacency[last] {
				if d, ok := depth[neighbor]; ok && d < levelDepth {
					continue
				}
				depth[neighbor] = levelDepth
				extended := append(append([]string(nil), path...), neighbor)
				if neighbor == targetID {
					found = append(found, extended)
					continue
				}
				next = append(next, extended)
			}
		}
		frontier = next
	}
	return found
}

// scorePath returns the average edge confidence along the path and the count
// of NL-originated hops, used for tie-breaking.
func (p *JoinPlanner) scorePath(path []string) (float64, int) {
	if len(path) < 2 {
		return 0, 0
	}
	var sum float64
	nlHops := 0
	for i := 1; i < len(path); i++ {
		edge := p.edgeBetween(path[i-1], path[i])
		if edge == nil {
			continue
		}
		sum += edge.Confidence
		if edge.Origin == models.OriginNaturalLanguage {
			nlHops++
		}
	}
	return sum / float64(len(path)-1), nlHops
}

// edgeBetween finds the highest-confidence edge linking two node ids in
// either direction.
func (p *JoinPlanner) edgeBetween(idA, idB string) *models.Relationship {
	var best *models.Relationship
	for i := range p.kg.Relationships {
		rel := &p.kg.Relationships[i]
		forward := rel.SourceID == idA && rel.TargetID == idB
		reverse := rel.SourceID == idB && rel.TargetID == idA
		if !forward && !reverse {
			continue
		}
		if best == nil || rel.Confidence > best.Confidence {
			best = rel
		}
	}
	return best
}

// JoinCondition returns the join column pair for two table labels, scanning
// edges in either direction and swapping columns when the edge points from
// table2 to table1. ok is false when no edge links the tables; callers must
// fail the query rather than fabricate a join.
func (p *JoinPlanner) JoinCondition(table1, table2 string) (string, string, bool) {
	if strings.EqualFold(table1, table2) {
		return "", "", false
	}
	id1 := models.TableNodeID(table1)
	id2 := models.TableNodeID(table2)

	var best *models.Relationship
	swapped := false
	for i := range p.kg.Relationships {
		rel := &p.kg.Relationships[i]
		if rel.SourceColumn == "" || rel.TargetColumn == "" {
			continue
		}
		switch {
		case rel.SourceID == id1 && rel.TargetID == id2:
			if best == nil || rel.Confidence > best.Confidence {
				best, swapped = rel, false
			}
		case rel.SourceID == id2 && rel.TargetID == id1:
			if best == nil || rel.Confidence > best.Confidence {
				best, swapped = rel, true
			}
		}
	}
	if best == nil {
		return "", "", false
	}
	if swapped {
		return best.TargetColumn, best.SourceColumn, true
	}
	return best.SourceColumn, best.TargetColumn, true
}
