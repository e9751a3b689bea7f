// Package schemastore loads named schema descriptors from disk or an injected
// provider and caches them for the life of the process.
package schemastore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/reconlab/recon-engine/pkg/apperrors"
	"github.com/reconlab/recon-engine/pkg/models"
)

// Provider supplies raw schema descriptors by name. The default provider
// reads <dir>/<name>.json or <dir>/<name>.yaml.
type Provider interface {
	Fetch(name string) (*models.Schema, error)
}

// Store loads and caches schema descriptors by name.
type Store struct {
	provider Provider
	logger   *zap.Logger

	mu    sync.RWMutex
	cache map[string]*models.Schema
}

// New creates a store backed by the given provider.
func New(provider Provider, logger *zap.Logger) *Store {
	return &Store{
		provider: provider,
		logger:   logger.Named("schemastore"),
		cache:    make(map[string]*models.Schema),
	}
}

// NewFromDir creates a store that reads descriptor files from dir.
func NewFromDir(dir string, logger *zap.Logger) *Store {
	return New(&fileProvider{dir: dir}, logger)
}

// Load returns the schema with the given name, loading it through the
// provider on first use. Returns apperrors.ErrSchemaNotFound when absent.
func (s *Store) Load(name string) (*models.Schema, error) {
	s.mu.RLock()
	cached, ok := s.cache[name]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	schema, err := s.provider.Fetch(name)
	if err != nil {
		return nil, err
	}
	if schema.Name == "" {
		schema.Name = name
	}

	s.mu.Lock()
	s.cache[name] = schema
	s.mu.Unlock()

	s.logger.Debug("loaded schema",
		zap.String("schema", name),
		zap.Int("tables", len(schema.Tables)))
	return schema, nil
}

// LoadAll loads every named schema, failing on the first missing one.
func (s *Store) LoadAll(names []string) ([]*models.Schema, error) {
	schemas := make([]*models.Schema, 0, len(names))
	for _, name := range names {
		schema, err := s.Load(name)
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, schema)
	}
	return schemas, nil
}

// fileProvider reads <dir>/<name>.json, falling back to .yaml / .yml.
type fileProvider struct {
	dir string
}

func (p *fileProvider) Fetch(name string) (*models.Schema, error) {
	for _, ext := range []string{".json", ".yaml", ".yml"} {
		path := filepath.Join(p.dir, name+ext)
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read schema %s: %w", name, err)
		}

		var schema models.Schema
		if ext == ".json" {
			err = json.Unmarshal(data, &schema)
		} else {
			err = yaml.Unmarshal(data, &schema)
		}
		if err != nil {
			return nil, fmt.Errorf("parse schema %s: %w", name, err)
		}
		return &schema, nil
	}
	return nil, fmt.Errorf("schema %q: %w", name, apperrors.ErrSchemaNotFound)
}
