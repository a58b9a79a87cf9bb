// Package registry holds the static form definitions of the supported
// ad-network providers: which credential fields each form shows and which
// dimensions and metrics can be requested.
package registry

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed providers.yaml
var defaultProviders []byte

// ErrUnknownProvider is returned by Get for ids outside the registry.
var ErrUnknownProvider = errors.New("unknown provider")

// Role is the semantic role of a form field.
type Role string

const (
	RoleText      Role = "text"
	RoleSecret    Role = "secret"
	RoleSelect    Role = "select"
	RoleStartDate Role = "start_date"
	RoleEndDate   Role = "end_date"
)

// IsDate reports whether the role marks a date input.
func (r Role) IsDate() bool {
	return r == RoleStartDate || r == RoleEndDate
}

// Reserved payload keys; fields may not use them.
const (
	KeyDimensions = "dimensions"
	KeyMetrics    = "metrics"
)

// Field describes a single non-checkbox input of a provider form.
type Field struct {
	Key         string   `json:"key" yaml:"key"`
	Label       string   `json:"label" yaml:"label"`
	Role        Role     `json:"role" yaml:"role"`
	Options     []string `json:"options,omitempty" yaml:"options"`
	Required    bool     `json:"required" yaml:"required"`
	Placeholder string   `json:"placeholder,omitempty" yaml:"placeholder"`
}

// ProviderSchema is the form definition of one provider.
type ProviderSchema struct {
	ID         string   `json:"id" yaml:"id"`
	Title      string   `json:"title" yaml:"title"`
	Endpoint   string   `json:"endpoint" yaml:"endpoint"`
	Notes      string   `json:"notes,omitempty" yaml:"notes"`
	Fields     []Field  `json:"fields" yaml:"fields"`
	Dimensions []string `json:"dimensions" yaml:"dimensions"`
	Metrics    []string `json:"metrics" yaml:"metrics"`
}

// HasDimension reports whether name is one of the schema's dimensions.
func (s ProviderSchema) HasDimension(name string) bool {
	return slices.Contains(s.Dimensions, name)
}

// HasMetric reports whether name is one of the schema's metrics.
func (s ProviderSchema) HasMetric(name string) bool {
	return slices.Contains(s.Metrics, name)
}

// Field returns the field with the given key.
func (s ProviderSchema) Field(key string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}

func (s ProviderSchema) clone() ProviderSchema {
	out := s
	out.Fields = make([]Field, len(s.Fields))
	for i, f := range s.Fields {
		f.Options = slices.Clone(f.Options)
		out.Fields[i] = f
	}
	out.Dimensions = append([]string{}, s.Dimensions...)
	out.Metrics = append([]string{}, s.Metrics...)
	return out
}

// Registry maps provider ids to their schemas. It is immutable once built
// and safe for concurrent use.
type Registry struct {
	order     []string
	providers map[string]ProviderSchema
}

// New builds a registry from the given schemas, preserving their order.
func New(schemas ...ProviderSchema) (*Registry, error) {
	r := &Registry{
		order:     make([]string, 0, len(schemas)),
		providers: make(map[string]ProviderSchema, len(schemas)),
	}
	for _, s := range schemas {
		s.ID = strings.TrimSpace(s.ID)
		if err := validate(s); err != nil {
			return nil, err
		}
		if _, exists := r.providers[s.ID]; exists {
			return nil, fmt.Errorf("registry: duplicate provider %q", s.ID)
		}
		if s.Title == "" {
			s.Title = s.ID
		}
		r.providers[s.ID] = s.clone()
		r.order = append(r.order, s.ID)
	}
	return r, nil
}

type document struct {
	Providers []ProviderSchema `json:"providers" yaml:"providers"`
}

// Parse reads a JSON or YAML document with a top-level "providers" list.
func Parse(data []byte) (*Registry, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errors.New("registry: empty provider document")
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		doc = document{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("registry: parse providers: %w", err)
		}
	}
	if len(doc.Providers) == 0 {
		return nil, errors.New("registry: document defines no providers")
	}
	return New(doc.Providers...)
}

// LoadFile parses the provider document at path.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: read %s: %w", path, err)
	}
	return Parse(data)
}

// Default returns the built-in provider set.
func Default() (*Registry, error) {
	return Parse(defaultProviders)
}

// Lookup returns the schema for id.
func (r *Registry) Lookup(id string) (ProviderSchema, bool) {
	if r == nil {
		return ProviderSchema{}, false
	}
	s, ok := r.providers[id]
	if !ok {
		return ProviderSchema{}, false
	}
	return s.clone(), true
}

// Get is Lookup for callers that treat an unknown id as a configuration error.
func (r *Registry) Get(id string) (ProviderSchema, error) {
	s, ok := r.Lookup(id)
	if !ok {
		return ProviderSchema{}, fmt.Errorf("%w: %q", ErrUnknownProvider, id)
	}
	return s, nil
}

// IDs returns the provider ids in declaration order.
func (r *Registry) IDs() []string {
	if r == nil {
		return nil
	}
	return slices.Clone(r.order)
}

// Schemas returns all schemas in declaration order.
func (r *Registry) Schemas() []ProviderSchema {
	if r == nil {
		return nil
	}
	out := make([]ProviderSchema, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.providers[id].clone())
	}
	return out
}

// Len returns the number of providers.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}

func validate(s ProviderSchema) error {
	if s.ID == "" {
		return errors.New("registry: provider with empty id")
	}
	if strings.TrimSpace(s.Endpoint) == "" {
		return fmt.Errorf("registry: provider %q has no endpoint", s.ID)
	}

	keys := make(map[string]struct{}, len(s.Fields))
	var starts, ends int
	for _, f := range s.Fields {
		if f.Key == "" {
			return fmt.Errorf("registry: provider %q has a field with empty key", s.ID)
		}
		if f.Key == KeyDimensions || f.Key == KeyMetrics {
			return fmt.Errorf("registry: provider %q field key %q is reserved", s.ID, f.Key)
		}
		if _, dup := keys[f.Key]; dup {
			return fmt.Errorf("registry: provider %q has duplicate field %q", s.ID, f.Key)
		}
		keys[f.Key] = struct{}{}

		switch f.Role {
		case RoleText, RoleSecret:
		case RoleSelect:
			if len(f.Options) == 0 {
				return fmt.Errorf("registry: provider %q select field %q has no options", s.ID, f.Key)
			}
		case RoleStartDate:
			starts++
		case RoleEndDate:
			ends++
		default:
			return fmt.Errorf("registry: provider %q field %q has invalid role %q", s.ID, f.Key, f.Role)
		}
	}
	if starts > 1 || ends > 1 {
		return fmt.Errorf("registry: provider %q declares more than one start or end date", s.ID)
	}

	if err := uniqueNames(s.ID, "dimension", s.Dimensions); err != nil {
		return err
	}
	return uniqueNames(s.ID, "metric", s.Metrics)
}

func uniqueNames(provider, kind string, names []string) error {
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			return fmt.Errorf("registry: provider %q has an empty %s name", provider, kind)
		}
		if _, dup := seen[n]; dup {
			return fmt.Errorf("registry: provider %q has duplicate %s %q", provider, kind, n)
		}
		seen[n] = struct{}{}
	}
	return nil
}
