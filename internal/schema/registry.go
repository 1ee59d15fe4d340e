package schema

import (
	"embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed *.yaml
var builtinFS embed.FS

// Registry resolves (docType, version) to an immutable Schema. Built-in
// rule sets are loaded from the embedded YAML files; custom ones can be
// registered from disk.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*Schema // keyed by doc type; one active version each
}

// NewRegistry returns a registry preloaded with the embedded rule sets.
func NewRegistry() (*Registry, error) {
	r := &Registry{schemas: make(map[string]*Schema)}
	entries, err := builtinFS.ReadDir(".")
	if err != nil {
		return nil, fmt.Errorf("read embedded schemas: %w", err)
	}
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		data, err := builtinFS.ReadFile(e.Name())
		if err != nil {
			return nil, fmt.Errorf("read embedded schema %s: %w", e.Name(), err)
		}
		s, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("embedded schema %s: %w", e.Name(), err)
		}
		r.schemas[s.DocType] = s
	}
	return r, nil
}

// Parse decodes and validates a YAML rule set.
func Parse(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse schema yaml: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// RegisterFile loads a rule set from disk, replacing any registered schema
// for the same doc type.
func (r *Registry) RegisterFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.schemas[s.DocType] = s
	r.mu.Unlock()
	return s, nil
}

// Load resolves a doc type at a specific version. An unknown doc type is
// ErrSchemaNotFound; a known type at a different version is
// ErrSchemaVersionMismatch. version 0 means "whatever is registered".
func (r *Registry) Load(docType string, version int) (*Schema, error) {
	r.mu.RLock()
	s, ok := r.schemas[docType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("doc type %q (available: %s): %w",
			docType, strings.Join(r.DocTypes(), ", "), ErrSchemaNotFound)
	}
	if version != 0 && s.Version != version {
		return nil, fmt.Errorf("doc type %q: registered v%d, requested v%d: %w",
			docType, s.Version, version, ErrSchemaVersionMismatch)
	}
	return s, nil
}

// DocTypes returns the registered doc type names, sorted.
func (r *Registry) DocTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for name := range r.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
