// Package models resolves model identifiers requested over RPC into the
// engine and parameters used to load them.
package models

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

var (
	// ErrModelEmpty indicates an empty model identifier.
	ErrModelEmpty = errors.New("model name cannot be empty")
	// ErrInvalidModelName indicates an identifier with whitespace or path traversal.
	ErrInvalidModelName = errors.New("invalid model name")
	// ErrDuplicateModel indicates two entries with the same name in a model file.
	ErrDuplicateModel = errors.New("duplicate model entry")
	// ErrUnknownEngine indicates an entry naming an engine that is not available.
	ErrUnknownEngine = errors.New("unknown engine")
)

// Entry describes how a named model is loaded.
type Entry struct {
	Name        string `yaml:"name"`
	Model       string `yaml:"model"`
	ModelFile   string `yaml:"model_file,omitempty"`
	Engine      string `yaml:"engine,omitempty"`
	Voice       string `yaml:"voice,omitempty"`
	Language    string `yaml:"language,omitempty"`
	Description string `yaml:"description,omitempty"`
}

type file struct {
	Models []Entry `yaml:"models"`
}

// Registry maps model names to entries. Names not listed resolve to an
// entry for the default engine that passes the name through unchanged.
type Registry struct {
	defaultEngine string
	entries       map[string]Entry
}

// NewRegistry creates an empty registry.
func NewRegistry(defaultEngine string) *Registry {
	return &Registry{
		defaultEngine: defaultEngine,
		entries:       make(map[string]Entry),
	}
}

// LoadFile reads a YAML model file into a new registry.
func LoadFile(path, defaultEngine string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file '%s': %w", path, err)
	}

	registry, err := Parse(data, defaultEngine)
	if err != nil {
		return nil, fmt.Errorf("failed to parse model file '%s': %w", path, err)
	}

	return registry, nil
}

// Parse decodes YAML model definitions.
func Parse(data []byte, defaultEngine string) (*Registry, error) {
	var decoded file

	err := yaml.Unmarshal(data, &decoded)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	registry := NewRegistry(defaultEngine)

	for _, entry := range decoded.Models {
		addErr := registry.Add(entry)
		if addErr != nil {
			return nil, addErr
		}
	}

	return registry, nil
}

// Add registers an entry. Model defaults to Name and Engine to the default engine.
func (r *Registry) Add(entry Entry) error {
	err := ValidateName(entry.Name)
	if err != nil {
		return err
	}

	if _, exists := r.entries[entry.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateModel, entry.Name)
	}

	if entry.Model == "" {
		entry.Model = entry.Name
	}

	if entry.Engine == "" {
		entry.Engine = r.defaultEngine
	}

	r.entries[entry.Name] = entry

	return nil
}

// Resolve returns the entry for name.
func (r *Registry) Resolve(name string) (Entry, error) {
	err := ValidateName(name)
	if err != nil {
		return Entry{}, err
	}

	if entry, ok := r.entries[name]; ok {
		return entry, nil
	}

	return Entry{Name: name, Model: name, Engine: r.defaultEngine}, nil
}

// Names lists the registered model names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}

	return names
}

// CheckEngines verifies every entry names one of the available engines.
func (r *Registry) CheckEngines(available func(string) bool) error {
	if !available(r.defaultEngine) {
		return fmt.Errorf("%w: %q (default)", ErrUnknownEngine, r.defaultEngine)
	}

	for name, entry := range r.entries {
		if !available(entry.Engine) {
			return fmt.Errorf("%w: %q for model %s", ErrUnknownEngine, entry.Engine, name)
		}
	}

	return nil
}

// ValidateName rejects empty identifiers, whitespace and ".." segments.
func ValidateName(name string) error {
	if name == "" {
		return ErrModelEmpty
	}

	if strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: %q contains whitespace", ErrInvalidModelName, name)
	}

	for _, segment := range strings.Split(name, "/") {
		if segment == ".." {
			return fmt.Errorf("%w: %q contains a parent directory segment", ErrInvalidModelName, name)
		}
	}

	return nil
}
