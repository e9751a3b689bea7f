package kg

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/reconlab/recon-engine/pkg/apperrors"
	"github.com/reconlab/recon-engine/pkg/models"
)

// Merge strategies for integrating NL relationships.
const (
	StrategyUnion          = "union"
	StrategyDeduplicate    = "deduplicate"
	StrategyHighConfidence = "high_confidence"
)

// highConfidenceThreshold is the cut applied by the high_confidence strategy
// and counted by Statistics.
const highConfidenceThreshold = 0.7

// Integrator merges NL-derived edges into a stored knowledge graph and
// computes graph statistics.
type Integrator struct {
	store  *Store
	logger *zap.Logger
}

// NewIntegrator creates an integrator over the given store.
func NewIntegrator(store *Store, logger *zap.Logger) *Integrator {
	return &Integrator{
		store:  store,
		logger: logger.Named("integrator"),
	}
}

// AddNLRelationships merges edges into the named graph under the strategy,
// refreshes statistics, and persists the result (including table aliases).
// Edges referencing unknown nodes are dropped with a warning, never surfaced
// as errors.
func (in *Integrator) AddNLRelationships(kgName string, edges []models.Relationship, strategy string) (*models.KGStatistics, error) {
	var stats *models.KGStatistics
	err := in.store.Update(kgName, func(kg *models.KnowledgeGraph) error {
		if err := in.merge(kg, edges, strategy); err != nil {
			return err
		}
		stats = Statistics(kg)
		kg.Metadata.Statistics = stats
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// merge applies the strategy in place. Dedup by (source, target, type) is
// applied regardless of strategy; union simply keeps lower-confidence edges
// eligible (the higher confidence still wins on an exact duplicate key).
func (in *Integrator) merge(kg *models.KnowledgeGraph, edges []models.Relationship, strategy string) error {
	switch strategy {
	case StrategyUnion, StrategyDeduplicate, StrategyHighConfidence, "":
	default:
		return fmt.Errorf("unknown merge strategy %q: %w", strategy, apperrors.ErrInvalidRequest)
	}

	set := newEdgeSet()
	for _, existing := range kg.Relationships {
		set.add(existing)
	}

	for _, edge := range edges {
		if !kg.HasNode(edge.SourceID) || !kg.HasNode(edge.TargetID) {
			in.logger.Warn("dropping relationship with unknown endpoint",
				zap.String("source_id", edge.SourceID),
				zap.String("target_id", edge.TargetID),
				zap.String("type", edge.RelationshipType))
			continue
		}
		if edge.Origin == "" {
			edge.Origin = models.OriginNaturalLanguage
		}
		set.add(edge)
	}

	merged := set.ordered()

	if strategy == StrategyHighConfidence {
		kept := merged[:0]
		for _, edge := range merged {
			if edge.Confidence >= highConfidenceThreshold {
				kept = append(kept, edge)
			}
		}
		merged = kept
	}

	added := len(merged) - len(kg.Relationships)
	kg.Relationships = merged

	in.logger.Info("merged NL relationships",
		zap.String("kg", kg.Metadata.Name),
		zap.String("strategy", strategy),
		zap.Int("candidates", len(edges)),
		zap.Int("net_added", added))
	return nil
}

// Statistics computes relationship statistics in one pass over the edges.
func Statistics(kg *models.KnowledgeGraph) *models.KGStatistics {
	stats := &models.KGStatistics{
		ByOrigin: make(map[string]int),
		ByType:   make(map[string]int),
	}

	sources := make(map[string]struct{})
	var confidenceSum float64

	for _, rel := range kg.Relationships {
		stats.TotalRelationships++
		stats.ByOrigin[rel.Origin]++
		stats.ByType[rel.RelationshipType]++
		sources[rel.SourceID] = struct{}{}
		confidenceSum += rel.Confidence
		if rel.Confidence >= highConfidenceThreshold {
			stats.HighConfidence++
		}
	}

	stats.UniqueSourceTables = len(sources)
	if stats.TotalRelationships > 0 {
		stats.AverageConfidence = confidenceSum / float64(stats.TotalRelationships)
	}
	return stats
}
