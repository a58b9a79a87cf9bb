package form

import (
	"errors"
	"fmt"
	"slices"
)

// TabSet keeps exactly one of a fixed set of panels active.
type TabSet struct {
	tabs   []string
	active int
}

// NewTabSet builds a tab set over panels with initial active. An empty
// initial selects the first panel.
func NewTabSet(panels []string, initial string) (*TabSet, error) {
	if len(panels) == 0 {
		return nil, errors.New("tabs: no panels")
	}
	seen := make(map[string]struct{}, len(panels))
	for _, p := range panels {
		if p == "" {
			return nil, errors.New("tabs: empty panel id")
		}
		if _, dup := seen[p]; dup {
			return nil, fmt.Errorf("tabs: duplicate panel %q", p)
		}
		seen[p] = struct{}{}
	}

	ts := &TabSet{tabs: slices.Clone(panels)}
	if initial != "" {
		idx := slices.Index(ts.tabs, initial)
		if idx < 0 {
			return nil, fmt.Errorf("tabs: initial panel %q is not a tab", initial)
		}
		ts.active = idx
	}
	return ts, nil
}

// Click activates id. Unknown ids leave the state unchanged and return false.
func (t *TabSet) Click(id string) bool {
	idx := slices.Index(t.tabs, id)
	if idx < 0 {
		return false
	}
	t.active = idx
	return true
}

// Active returns the active panel id.
func (t *TabSet) Active() string {
	return t.tabs[t.active]
}

// IsActive reports whether id is the active panel.
func (t *TabSet) IsActive(id string) bool {
	return t.tabs[t.active] == id
}

// Tabs returns the panel ids in order.
func (t *TabSet) Tabs() []string {
	return slices.Clone(t.tabs)
}
