// Package widget implements the interview co-pilot's widget grid: the
// registry of widgets, merging persisted layouts with registry defaults,
// collapse heights, hydrating per-widget state from context and persisted
// data, and serializing it back for storage.
package widget

import (
	"encoding/json"
	"fmt"
	"slices"
)

// WidgetID identifies a widget. The set is fixed by the registry.
type WidgetID string

const (
	Notes            WidgetID = "notes"
	JobCheatSheet    WidgetID = "jobCheatSheet"
	LiveChecklist    WidgetID = "liveChecklist"
	StoryDeck        WidgetID = "storyDeck"
	PrepOutline      WidgetID = "prepOutline"
	StrategicOpening WidgetID = "strategicOpening"
	QuestionsToAsk   WidgetID = "questionsToAsk"
)

// Breakpoint is a responsive layout tier.
type Breakpoint string

const (
	LG Breakpoint = "lg"
	MD Breakpoint = "md"
	SM Breakpoint = "sm"
)

// Breakpoints lists every breakpoint, widest first.
var Breakpoints = []Breakpoint{LG, MD, SM}

// ParseBreakpoint returns the breakpoint named s.
func ParseBreakpoint(s string) (Breakpoint, bool) {
	bp := Breakpoint(s)
	return bp, slices.Contains(Breakpoints, bp)
}

// Mode is the co-pilot display mode.
type Mode string

const (
	ModeLive Mode = "live"
	ModePrep Mode = "prep"
)

// ParseMode returns the mode named s.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeLive, ModePrep:
		return Mode(s), true
	}
	return "", false
}

// DefaultStateFunc computes a widget's baseline data from context.
type DefaultStateFunc func(ctx *Context) any

// SerializeFunc turns a widget's data into fields of the interview save
// payload (for example {"strategicOpening": "..."}).
type SerializeFunc func(data json.RawMessage) (map[string]any, error)

// Descriptor declares one widget.
type Descriptor struct {
	ID            WidgetID
	Title         string
	Layouts       map[Breakpoint]LayoutItem
	DefaultState  DefaultStateFunc
	Serialize     SerializeFunc
	EditableModes []Mode

	// NewData returns a pointer to the widget's data type. Incoming edits
	// must decode into it.
	NewData func() any
}

// EditableIn reports whether the widget accepts edits in mode m.
func (d *Descriptor) EditableIn(m Mode) bool {
	return slices.Contains(d.EditableModes, m)
}

// ValidateData checks that data decodes into the widget's data type.
func (d *Descriptor) ValidateData(data json.RawMessage) error {
	if !json.Valid(data) {
		return fmt.Errorf("widget %s: data is not valid JSON", d.ID)
	}
	if d.NewData == nil {
		return nil
	}
	if err := json.Unmarshal(data, d.NewData()); err != nil {
		return fmt.Errorf("widget %s: %w", d.ID, err)
	}
	return nil
}

// Registry is an immutable, ordered set of widget descriptors.
type Registry struct {
	order []WidgetID
	byID  map[WidgetID]*Descriptor
}

// NewRegistry builds a registry. Every descriptor needs a unique ID, a
// default state function, and a default layout with positive size for
// every breakpoint.
func NewRegistry(descs ...Descriptor) (*Registry, error) {
	r := &Registry{byID: make(map[WidgetID]*Descriptor, len(descs))}
	for i := range descs {
		d := descs[i]
		if d.ID == "" {
			return nil, fmt.Errorf("widget descriptor %d has no id", i)
		}
		if _, dup := r.byID[d.ID]; dup {
			return nil, fmt.Errorf("duplicate widget id %q", d.ID)
		}
		if d.DefaultState == nil {
			return nil, fmt.Errorf("widget %q has no default state", d.ID)
		}
		layouts := make(map[Breakpoint]LayoutItem, len(Breakpoints))
		for _, bp := range Breakpoints {
			item, ok := d.Layouts[bp]
			if !ok {
				return nil, fmt.Errorf("widget %q has no default layout for %s", d.ID, bp)
			}
			if item.W < 1 || item.H < 1 || item.X < 0 || item.Y < 0 {
				return nil, fmt.Errorf("widget %q has an invalid default layout for %s", d.ID, bp)
			}
			item.I = d.ID
			layouts[bp] = item
		}
		d.Layouts = layouts
		d.EditableModes = slices.Clone(d.EditableModes)
		r.order = append(r.order, d.ID)
		r.byID[d.ID] = &d
	}
	return r, nil
}

// MustRegistry is NewRegistry that panics on error.
func MustRegistry(descs ...Descriptor) *Registry {
	r, err := NewRegistry(descs...)
	if err != nil {
		panic(err)
	}
	return r
}

// IDs returns the widget IDs in registry order.
func (r *Registry) IDs() []WidgetID {
	return slices.Clone(r.order)
}

// Len returns the number of widgets.
func (r *Registry) Len() int { return len(r.order) }

// Has reports whether id is registered.
func (r *Registry) Has(id WidgetID) bool {
	_, ok := r.byID[id]
	return ok
}

// Get returns the descriptor for id.
func (r *Registry) Get(id WidgetID) (*Descriptor, bool) {
	d, ok := r.byID[id]
	return d, ok
}

// Descriptors returns the descriptors in registry order.
func (r *Registry) Descriptors() []*Descriptor {
	out := make([]*Descriptor, len(r.order))
	for i, id := range r.order {
		out[i] = r.byID[id]
	}
	return out
}

// DefaultItem returns the default layout entry for id at bp.
func (r *Registry) DefaultItem(id WidgetID, bp Breakpoint) (LayoutItem, bool) {
	d, ok := r.byID[id]
	if !ok {
		return LayoutItem{}, false
	}
	item, ok := d.Layouts[bp]
	return item, ok
}

// DefaultHeight returns the default height for id at bp.
func (r *Registry) DefaultHeight(id WidgetID, bp Breakpoint) (int, bool) {
	item, ok := r.DefaultItem(id, bp)
	return item.H, ok
}

// DefaultLayouts returns the registry's default grid layout.
func (r *Registry) DefaultLayouts() GridLayout {
	layout := make(GridLayout, len(Breakpoints))
	for _, bp := range Breakpoints {
		items := make([]LayoutItem, 0, len(r.order))
		for _, id := range r.order {
			items = append(items, r.byID[id].Layouts[bp])
		}
		layout[bp] = items
	}
	return layout
}

// Info is the JSON-friendly description of a registered widget.
type Info struct {
	ID            WidgetID                  `json:"id"`
	Title         string                    `json:"title"`
	Layouts       map[Breakpoint]LayoutItem `json:"layouts"`
	EditableModes []Mode                    `json:"editableModes"`
}

// Info describes every widget in registry order.
func (r *Registry) Info() []Info {
	out := make([]Info, 0, len(r.order))
	for _, d := range r.Descriptors() {
		out = append(out, Info{
			ID:            d.ID,
			Title:         d.Title,
			Layouts:       d.Layouts,
			EditableModes: d.EditableModes,
		})
	}
	return out
}
