// Package form holds the provider forms of the polling console: checkbox
// lists, seeded dates, tab state and the submission pipeline that POSTs a
// form to the backend and keeps the panel's status and report.
package form

import (
	"manual-polling-tool/internal/registry"
)

// Board owns one Controller per registry provider, built up front.
type Board struct {
	reg         *registry.Registry
	seeder      *DateSeeder
	order       []string
	controllers map[string]*Controller
}

// NewBoard wires a controller for every provider in reg.
func NewBoard(reg *registry.Registry, client Poller, seeder *DateSeeder, opts Options) *Board {
	b := &Board{
		reg:         reg,
		seeder:      seeder,
		order:       reg.IDs(),
		controllers: make(map[string]*Controller, reg.Len()),
	}
	for _, schema := range reg.Schemas() {
		b.controllers[schema.ID] = NewController(schema, client, opts)
	}
	return b
}

// Registry returns the provider registry.
func (b *Board) Registry() *registry.Registry {
	return b.reg
}

// Seeder returns the date seeder used for new forms.
func (b *Board) Seeder() *DateSeeder {
	return b.seeder
}

// Controller returns the controller for provider id.
func (b *Board) Controller(id string) (*Controller, bool) {
	c, ok := b.controllers[id]
	return c, ok
}

// Controllers returns every controller in registry order.
func (b *Board) Controllers() []*Controller {
	out := make([]*Controller, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.controllers[id])
	}
	return out
}

// NewForm renders a fresh form for provider id.
func (b *Board) NewForm(id string) (*Form, bool) {
	c, ok := b.controllers[id]
	if !ok {
		return nil, false
	}
	return NewForm(c.schema, b.seeder), true
}

// Tabs returns a tab set over all providers with active selected. An
// unknown active id falls back to the first provider.
func (b *Board) Tabs(active string) (*TabSet, error) {
	ts, err := NewTabSet(b.order, "")
	if err != nil {
		return nil, err
	}
	ts.Click(active)
	return ts, nil
}
