package widget

import (
	"bytes"
	"fmt"
	"os"
	"slices"
	"sort"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// Overrides adjusts built-in widgets without a rebuild. Example:
//
//	widgets:
//	  notes:
//	    title: Scratchpad
//	    layouts:
//	      lg: {w: 8, h: 5}
//	  storyDeck:
//	    editableModes: [live, prep]
type Overrides struct {
	Widgets map[string]WidgetOverride `yaml:"widgets"`
}

// WidgetOverride overrides one widget. Unset fields keep their default.
type WidgetOverride struct {
	Title         string                  `yaml:"title,omitempty"`
	EditableModes []string                `yaml:"editableModes,omitempty"`
	Layouts       map[string]RectOverride `yaml:"layouts,omitempty"`
}

// RectOverride overrides some fields of a default layout rectangle.
type RectOverride struct {
	X *int `yaml:"x,omitempty"`
	Y *int `yaml:"y,omitempty"`
	W *int `yaml:"w,omitempty"`
	H *int `yaml:"h,omitempty"`
}

// ParseOverrides decodes an overrides document. Unknown keys are rejected.
func ParseOverrides(data []byte) (*Overrides, error) {
	var o Overrides
	if len(bytes.TrimSpace(data)) == 0 {
		return &o, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&o); err != nil {
		return nil, fmt.Errorf("failed to parse widget overrides: %w", err)
	}
	return &o, nil
}

// LoadOverrides reads and parses an overrides file.
func LoadOverrides(path string) (*Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read widget overrides %s: %w", path, err)
	}
	return ParseOverrides(data)
}

// WithOverrides returns a new registry with o applied. Overrides for
// widgets that are not registered are skipped and reported as warnings.
// Invalid values (unknown breakpoint or mode, non-positive size, negative
// position) are errors.
func (r *Registry) WithOverrides(o *Overrides) (*Registry, []string, error) {
	if o == nil || len(o.Widgets) == 0 {
		return r, nil, nil
	}

	var warnings []string
	names := make([]string, 0, len(o.Widgets))
	for name := range o.Widgets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !r.Has(WidgetID(name)) {
			warnings = append(warnings, fmt.Sprintf("override for unknown widget %q ignored", name))
		}
	}

	descs := make([]Descriptor, 0, len(r.order))
	for _, d := range r.Descriptors() {
		nd := *d
		nd.Layouts = make(map[Breakpoint]LayoutItem, len(d.Layouts))
		for bp, item := range d.Layouts {
			nd.Layouts[bp] = item
		}
		nd.EditableModes = slices.Clone(d.EditableModes)

		ov, ok := o.Widgets[string(d.ID)]
		if ok {
			if err := applyOverride(&nd, ov); err != nil {
				return nil, warnings, fmt.Errorf("widget %s: %w", d.ID, err)
			}
		}
		descs = append(descs, nd)
	}

	next, err := NewRegistry(descs...)
	if err != nil {
		return nil, warnings, err
	}
	return next, warnings, nil
}

func applyOverride(d *Descriptor, ov WidgetOverride) error {
	if ov.Title != "" {
		d.Title = ov.Title
	}
	if ov.EditableModes != nil {
		modes := make([]Mode, 0, len(ov.EditableModes))
		for _, s := range ov.EditableModes {
			m, ok := ParseMode(s)
			if !ok {
				return fmt.Errorf("unknown mode %q", s)
			}
			modes = append(modes, m)
		}
		d.EditableModes = modes
	}
	for name, rect := range ov.Layouts {
		bp, ok := ParseBreakpoint(name)
		if !ok {
			return fmt.Errorf("unknown breakpoint %q", name)
		}
		item := d.Layouts[bp]
		for _, f := range []struct {
			v   *int
			min int
			dst *int
		}{{rect.X, 0, &item.X}, {rect.Y, 0, &item.Y}, {rect.W, 1, &item.W}, {rect.H, 1, &item.H}} {
			if f.v == nil {
				continue
			}
			if *f.v < f.min {
				return fmt.Errorf("%s layout value %d below %d", bp, *f.v, f.min)
			}
			*f.dst = *f.v
		}
		d.Layouts[bp] = item
	}
	return nil
}

// RegistryHolder publishes the current registry to concurrent readers.
type RegistryHolder struct {
	p atomic.Pointer[Registry]
}

// NewRegistryHolder returns a holder serving r.
func NewRegistryHolder(r *Registry) *RegistryHolder {
	h := &RegistryHolder{}
	h.p.Store(r)
	return h
}

// Load returns the current registry.
func (h *RegistryHolder) Load() *Registry { return h.p.Load() }

// Store replaces the current registry.
func (h *RegistryHolder) Store(r *Registry) { h.p.Store(r) }
