package form

import (
	"net/url"
	"strings"

	"manual-polling-tool/internal/registry"
)

// FormState is what a user entered into one provider form.
type FormState struct {
	Values     map[string]string `json:"values"`
	Dimensions []string          `json:"dimensions"`
	Metrics    []string          `json:"metrics"`
}

// InputID is the HTML name of a provider field: the provider id and field
// key joined by a dash, with underscores turned into dashes.
func InputID(provider, key string) string {
	return provider + "-" + strings.ReplaceAll(key, "_", "-")
}

// FieldKey maps an input id back to the schema field key.
func FieldKey(schema registry.ProviderSchema, id string) (string, bool) {
	for _, f := range schema.Fields {
		if InputID(schema.ID, f.Key) == id {
			return f.Key, true
		}
	}
	return "", false
}

// StateFromValues reads a posted provider form. Inputs that belong to
// other providers or are not declared by the schema are ignored.
func StateFromValues(schema registry.ProviderSchema, values url.Values) FormState {
	st := FormState{
		Values:     make(map[string]string, len(schema.Fields)),
		Dimensions: []string{},
		Metrics:    []string{},
	}
	for name, vs := range values {
		if len(vs) == 0 {
			continue
		}
		if key, ok := FieldKey(schema, name); ok {
			st.Values[key] = vs[0]
		}
	}
	st.Dimensions = append(st.Dimensions, values[InputID(schema.ID, registry.KeyDimensions)]...)
	st.Metrics = append(st.Metrics, values[InputID(schema.ID, registry.KeyMetrics)]...)
	return st
}

// Input is one non-checkbox form input.
type Input struct {
	Field registry.Field
	ID    string
	Value string

	touched bool
}

// Set records a user-entered value. Seeding never overwrites it afterwards.
func (in *Input) Set(v string) {
	in.Value = v
	in.touched = true
}

// Touched reports whether the user set the value.
func (in *Input) Touched() bool {
	return in.touched
}

// Form is the rendered state of one provider panel.
type Form struct {
	Schema     registry.ProviderSchema
	Inputs     []*Input
	Dimensions *CheckboxGroup
	Metrics    *CheckboxGroup
}

// NewForm renders the panel for schema: every checkbox checked, selects
// on their first option and dates seeded.
func NewForm(schema registry.ProviderSchema, seeder *DateSeeder) *Form {
	f := &Form{
		Schema:     schema,
		Inputs:     make([]*Input, 0, len(schema.Fields)),
		Dimensions: &CheckboxGroup{},
		Metrics:    &CheckboxGroup{},
	}
	for _, field := range schema.Fields {
		in := &Input{Field: field, ID: InputID(schema.ID, field.Key)}
		if field.Role == registry.RoleSelect && len(field.Options) > 0 {
			in.Value = field.Options[0]
		}
		f.Inputs = append(f.Inputs, in)
	}
	f.Dimensions.Render(schema.Dimensions)
	f.Metrics.Render(schema.Metrics)
	seeder.Seed(f.Inputs)
	return f
}

// Input returns the input for a field key.
func (f *Form) Input(key string) (*Input, bool) {
	for _, in := range f.Inputs {
		if in.Field.Key == key {
			return in, true
		}
	}
	return nil, false
}

// Apply copies a submitted state into the form so it re-renders with the
// user's selections.
func (f *Form) Apply(st FormState) {
	for key, v := range st.Values {
		if in, ok := f.Input(key); ok {
			in.Set(v)
		}
	}
	f.Dimensions.Select(st.Dimensions)
	f.Metrics.Select(st.Metrics)
}

// State reads the current form contents.
func (f *Form) State() FormState {
	st := FormState{
		Values:     make(map[string]string, len(f.Inputs)),
		Dimensions: f.Dimensions.Checked(),
		Metrics:    f.Metrics.Checked(),
	}
	for _, in := range f.Inputs {
		st.Values[in.Field.Key] = in.Value
	}
	return st
}
