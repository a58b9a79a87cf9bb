package form

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"manual-polling-tool/internal/registry"
)

// ErrMissingField is returned when a required field is empty.
var ErrMissingField = errors.New("missing required field")

// Payload is the JSON body sent to the polling backend. It marshals flat:
// one string per declared field plus the dimensions and metrics arrays.
type Payload struct {
	Fields     map[string]string
	Dimensions []string
	Metrics    []string
}

// BuildPayload assembles the payload for schema from st. Only declared
// fields are sent; undeclared keys in st are dropped. Selections are
// filtered to the schema's names and keep schema order.
func BuildPayload(schema registry.ProviderSchema, st FormState) (Payload, error) {
	p := Payload{
		Fields:     make(map[string]string, len(schema.Fields)),
		Dimensions: filterNames(schema.Dimensions, st.Dimensions),
		Metrics:    filterNames(schema.Metrics, st.Metrics),
	}
	for _, f := range schema.Fields {
		v := st.Values[f.Key]
		if f.Required && strings.TrimSpace(v) == "" {
			label := f.Label
			if label == "" {
				label = f.Key
			}
			return Payload{}, fmt.Errorf("%w: %s", ErrMissingField, label)
		}
		p.Fields[f.Key] = v
	}
	return p, nil
}

func filterNames(allowed, selected []string) []string {
	picked := make(map[string]bool, len(selected))
	for _, s := range selected {
		picked[s] = true
	}
	out := []string{}
	for _, name := range allowed {
		if picked[name] {
			out = append(out, name)
		}
	}
	return out
}

// MarshalJSON implements json.Marshaler.
func (p Payload) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(p.Fields)+2)
	for k, v := range p.Fields {
		m[k] = v
	}
	dims, metrics := p.Dimensions, p.Metrics
	if dims == nil {
		dims = []string{}
	}
	if metrics == nil {
		metrics = []string{}
	}
	m[registry.KeyDimensions] = dims
	m[registry.KeyMetrics] = metrics
	return json.Marshal(m)
}
