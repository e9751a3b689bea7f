// Package kg builds and maintains the merged schema knowledge graph: node and
// edge assembly, NL edge integration, table aliases, and join path planning.
package kg

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/reconlab/recon-engine/pkg/apperrors"
	"github.com/reconlab/recon-engine/pkg/models"
)

// Persister writes graphs through to durable storage. Implemented by
// storage.FileStore.
type Persister interface {
	SaveKG(kg *models.KnowledgeGraph) error
	LoadKG(name string) (*models.KnowledgeGraph, error)
	DeleteKG(name string) error
}

// Store holds knowledge graphs in memory with write-through persistence.
// Writes to a single KG are serialized under a per-KG mutex; reads return a
// deep-copied snapshot and take no lock on the graph itself.
type Store struct {
	persister Persister
	logger    *zap.Logger

	mu     sync.Mutex
	graphs map[string]*kgEntry
}

type kgEntry struct {
	mu sync.Mutex
	kg *models.KnowledgeGraph
}

// NewStore creates an empty store. persister may be nil for tests.
func NewStore(persister Persister, logger *zap.Logger) *Store {
	return &Store{
		persister: persister,
		logger:    logger.Named("kgstore"),
		graphs:    make(map[string]*kgEntry),
	}
}

// Put registers (or replaces) a graph and persists it.
func (s *Store) Put(kg *models.KnowledgeGraph) error {
	if kg.Metadata.Name == "" {
		return fmt.Errorf("knowledge graph has no name: %w", apperrors.ErrInvalidRequest)
	}

	s.mu.Lock()
	entry, ok := s.graphs[kg.Metadata.Name]
	if !ok {
		entry = &kgEntry{}
		s.graphs[kg.Metadata.Name] = entry
	}
	s.mu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.kg = kg

	return s.persistLocked(kg)
}

// Snapshot returns a deep copy of the named graph, loading it from the
// persister if it is not in memory. The copy is safe to read without locks.
func (s *Store) Snapshot(name string) (*models.KnowledgeGraph, error) {
	entry, err := s.entryFor(name)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return copyGraph(entry.kg), nil
}

// Update applies fn to the named graph under its mutex and persists the
// result. fn sees the live graph and may mutate it in place.
func (s *Store) Update(name string, fn func(kg *models.KnowledgeGraph) error) error {
	entry, err := s.entryFor(name)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if err := fn(entry.kg); err != nil {
		return err
	}
	return s.persistLocked(entry.kg)
}

// UpdateAliases replaces the alias set for one table label, unless the set
// already recorded carries strictly higher confidence. Returns whether the
// update was applied.
func (s *Store) UpdateAliases(name, table string, aliases []string, confidence float64) (bool, error) {
	applied := false
	err := s.Update(name, func(kg *models.KnowledgeGraph) error {
		if kg.FindTableNode(table) == nil {
			return fmt.Errorf("table %s not in kg %s: %w", table, name, apperrors.ErrNotFound)
		}
		if existing, ok := kg.AliasConfidence[table]; ok && confidence < existing {
			s.logger.Debug("keeping higher-confidence aliases",
				zap.String("kg", name),
				zap.String("table", table),
				zap.Float64("existing", existing),
				zap.Float64("offered", confidence))
			return nil
		}
		if kg.TableAliases == nil {
			kg.TableAliases = make(map[string][]string)
		}
		if kg.AliasConfidence == nil {
			kg.AliasConfidence = make(map[string]float64)
		}
		kg.TableAliases[table] = append([]string(nil), aliases...)
		kg.AliasConfidence[table] = confidence
		applied = true
		return nil
	})
	return applied, err
}

// Delete removes the named graph from memory and storage.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	delete(s.graphs, name)
	s.mu.Unlock()

	if s.persister == nil {
		return nil
	}
	return s.persister.DeleteKG(name)
}

func (s *Store) entryFor(name string) (*kgEntry, error) {
	s.mu.Lock()
	entry, ok := s.graphs[name]
	s.mu.Unlock()
	if ok {
		return entry, nil
	}

	if s.persister == nil {
		return nil, fmt.Errorf("kg %s: %w", name, apperrors.ErrNotFound)
	}

	kg, err := s.persister.LoadKG(name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Another goroutine may have loaded it while we read the file.
	if existing, ok := s.graphs[name]; ok {
		return existing, nil
	}
	entry = &kgEntry{kg: kg}
	s.graphs[name] = entry
	return entry, nil
}

func (s *Store) persistLocked(kg *models.KnowledgeGraph) error {
	if s.persister == nil {
		return nil
	}
	if err := s.persister.SaveKG(kg); err != nil {
		return fmt.Errorf("persist kg %s: %w", kg.Metadata.Name, err)
	}
	s.logger.Debug("persisted knowledge graph",
		zap.String("kg", kg.Metadata.Name),
		zap.Int("nodes", len(kg.Nodes)),
		zap.Int("relationships", len(kg.Relationships)))
	return nil
}

// copyGraph deep-copies a graph so snapshot readers never observe writes.
func copyGraph(kg *models.KnowledgeGraph) *models.KnowledgeGraph {
	out := &models.KnowledgeGraph{
		Nodes:         make([]models.Node, len(kg.Nodes)),
		Relationships: make([]models.Relationship, len(kg.Relationships)),
		Metadata:      kg.Metadata,
	}
	for i, n := range kg.Nodes {
		out.Nodes[i] = n
		out.Nodes[i].Properties = copyMap(n.Properties)
	}
	for i, r := range kg.Relationships {
		out.Relationships[i] = r
		out.Relationships[i].Properties = copyMap(r.Properties)
	}
	if kg.TableAliases != nil {
		out.TableAliases = make(map[string][]string, len(kg.TableAliases))
		for k, v := range kg.TableAliases {
			out.TableAliases[k] = append([]string(nil), v...)
		}
	}
	if kg.AliasConfidence != nil {
		out.AliasConfidence = make(map[string]float64, len(kg.AliasConfidence))
		for k, v := range kg.AliasConfidence {
			out.AliasConfidence[k] = v
		}
	}
	if kg.Metadata.Statistics != nil {
		stats := *kg.Metadata.Statistics
		out.Metadata.Statistics = &stats
	}
	out.Metadata.SchemasMerged = append([]string(nil), kg.Metadata.SchemasMerged...)
	return out
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
