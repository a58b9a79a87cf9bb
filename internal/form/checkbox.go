package form

import "strings"

// Checkbox is one rendered dimension or metric option.
type Checkbox struct {
	Value   string `json:"value"`
	Label   string `json:"label"`
	Checked bool   `json:"checked"`
}

// CheckboxGroup is the checkbox list of one provider panel. A nil group
// stands for a missing target: every method is a no-op on it.
type CheckboxGroup struct {
	items []Checkbox
}

// Label turns a field name into its display text.
func Label(name string) string {
	return strings.ReplaceAll(name, "_", " ")
}

// Render clears the group and adds one checked box per name, in order.
func (g *CheckboxGroup) Render(names []string) {
	if g == nil {
		return
	}
	g.items = make([]Checkbox, 0, len(names))
	for _, n := range names {
		g.items = append(g.items, Checkbox{Value: n, Label: Label(n), Checked: true})
	}
}

// Items returns a copy of the rendered checkboxes.
func (g *CheckboxGroup) Items() []Checkbox {
	if g == nil {
		return nil
	}
	return append([]Checkbox(nil), g.items...)
}

// Len returns the number of rendered checkboxes.
func (g *CheckboxGroup) Len() int {
	if g == nil {
		return 0
	}
	return len(g.items)
}

// Select checks exactly the given values. Values not in the group are ignored.
func (g *CheckboxGroup) Select(values []string) {
	if g == nil {
		return
	}
	want := make(map[string]bool, len(values))
	for _, v := range values {
		want[v] = true
	}
	for i := range g.items {
		g.items[i].Checked = want[g.items[i].Value]
	}
}

// SetChecked toggles a single box and reports whether it exists.
func (g *CheckboxGroup) SetChecked(value string, checked bool) bool {
	if g == nil {
		return false
	}
	for i := range g.items {
		if g.items[i].Value == value {
			g.items[i].Checked = checked
			return true
		}
	}
	return false
}

// Checked returns the checked values in render order, never nil.
func (g *CheckboxGroup) Checked() []string {
	out := []string{}
	if g == nil {
		return out
	}
	for _, it := range g.items {
		if it.Checked {
			out = append(out, it.Value)
		}
	}
	return out
}
