package widget

import (
	"encoding/json"
	"sort"
)

// LayoutItem is one widget's rectangle on the grid.
type LayoutItem struct {
	I WidgetID `json:"i"`
	X int      `json:"x"`
	Y int      `json:"y"`
	W int      `json:"w"`
	H int      `json:"h"`
}

// GridLayout holds an ordered list of layout entries per breakpoint.
type GridLayout map[Breakpoint][]LayoutItem

// Clone returns a deep copy.
func (g GridLayout) Clone() GridLayout {
	if g == nil {
		return nil
	}
	out := make(GridLayout, len(g))
	for bp, items := range g {
		cp := make([]LayoutItem, len(items))
		copy(cp, items)
		out[bp] = cp
	}
	return out
}

// Find returns the entry for id at bp.
func (g GridLayout) Find(bp Breakpoint, id WidgetID) (LayoutItem, bool) {
	for _, item := range g[bp] {
		if item.I == id {
			return item, true
		}
	}
	return LayoutItem{}, false
}

// Persisted converts the layout to its persisted form.
func (g GridLayout) Persisted() PersistedLayout {
	out := make(PersistedLayout, len(g))
	for bp, items := range g {
		list := make([]PersistedLayoutItem, len(items))
		for i, item := range items {
			list[i] = PersistedLayoutItem{
				I: string(item.I),
				X: intPtr(item.X),
				Y: intPtr(item.Y),
				W: intPtr(item.W),
				H: intPtr(item.H),
			}
		}
		out[string(bp)] = list
	}
	return out
}

// PersistedLayoutItem is a layout entry as stored. Any field may be absent.
type PersistedLayoutItem struct {
	I string `json:"i"`
	X *int   `json:"x,omitempty"`
	Y *int   `json:"y,omitempty"`
	W *int   `json:"w,omitempty"`
	H *int   `json:"h,omitempty"`
}

// PersistedLayout is a stored layout keyed by breakpoint name. Breakpoint
// names are not validated until merge.
type PersistedLayout map[string][]PersistedLayoutItem

// MergeReport describes what MergeLayouts had to repair.
type MergeReport struct {
	UsedDefaults       bool     `json:"usedDefaults"`
	DroppedUnknown     int      `json:"droppedUnknown"`
	DroppedDuplicates  int      `json:"droppedDuplicates"`
	DroppedBreakpoints []string `json:"droppedBreakpoints,omitempty"`
	BackfilledFields   int      `json:"backfilledFields"`
	AppendedDefaults   int      `json:"appendedDefaults"`
}

// MergeResult is a merged layout together with its repair report.
type MergeResult struct {
	Layout GridLayout  `json:"layout"`
	Report MergeReport `json:"report"`
}

// Repaired reports whether the persisted layout needed any change.
func (m MergeReport) Repaired() bool {
	return m.DroppedUnknown > 0 || m.DroppedDuplicates > 0 || len(m.DroppedBreakpoints) > 0 ||
		m.BackfilledFields > 0 || m.AppendedDefaults > 0
}

// MergeLayouts reconciles a persisted layout with the registry defaults.
// The result has exactly one entry per registered widget per breakpoint.
//
// Per breakpoint, persisted entries keep their order. An entry whose
// identifier is not registered is dropped; so is any repeat of an
// identifier already seen. Missing or out-of-range fields of a kept entry
// are taken from that widget's default entry. Registered widgets with no
// persisted entry get their default entry appended, in registry order.
// Persisted breakpoints other than lg, md and sm are dropped.
func MergeLayouts(reg *Registry, persisted PersistedLayout) (GridLayout, MergeReport) {
	var report MergeReport
	if len(persisted) == 0 {
		report.UsedDefaults = true
		return reg.DefaultLayouts(), report
	}

	merged := make(GridLayout, len(Breakpoints))
	for _, bp := range Breakpoints {
		seen := make(map[WidgetID]bool, reg.Len())
		items := make([]LayoutItem, 0, reg.Len())

		for _, p := range persisted[string(bp)] {
			id := WidgetID(p.I)
			def, known := reg.DefaultItem(id, bp)
			switch {
			case !known:
				report.DroppedUnknown++
				continue
			case seen[id]:
				report.DroppedDuplicates++
				continue
			}
			seen[id] = true

			item, filled := backfill(p, def)
			report.BackfilledFields += filled
			items = append(items, item)
		}

		for _, id := range reg.order {
			if !seen[id] {
				items = append(items, reg.byID[id].Layouts[bp])
				report.AppendedDefaults++
			}
		}
		merged[bp] = items
	}

	for name := range persisted {
		if _, ok := ParseBreakpoint(name); !ok {
			report.DroppedBreakpoints = append(report.DroppedBreakpoints, name)
		}
	}
	sort.Strings(report.DroppedBreakpoints)

	return merged, report
}

// backfill completes p from def. Negative positions and non-positive
// sizes count as missing.
func backfill(p PersistedLayoutItem, def LayoutItem) (LayoutItem, int) {
	item := def
	filled := 0

	pick := func(v *int, min int, dst *int) {
		if v == nil || *v < min {
			filled++
			return
		}
		*dst = *v
	}
	pick(p.X, 0, &item.X)
	pick(p.Y, 0, &item.Y)
	pick(p.W, 1, &item.W)
	pick(p.H, 1, &item.H)

	return item, filled
}

// ParsePersistedLayout decodes a stored layout. Entries that are not
// objects or carry non-integer fields are skipped and reported in the
// returned count; the merge then restores their widgets from defaults.
func ParsePersistedLayout(raw json.RawMessage) (PersistedLayout, int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, 0, nil
	}

	var byBreakpoint map[string][]json.RawMessage
	if err := json.Unmarshal(raw, &byBreakpoint); err != nil {
		return nil, 0, err
	}

	skipped := 0
	out := make(PersistedLayout, len(byBreakpoint))
	for bp, entries := range byBreakpoint {
		items := make([]PersistedLayoutItem, 0, len(entries))
		for _, entry := range entries {
			var item PersistedLayoutItem
			if err := json.Unmarshal(entry, &item); err != nil || item.I == "" {
				skipped++
				continue
			}
			items = append(items, item)
		}
		out[bp] = items
	}
	return out, skipped, nil
}

func intPtr(v int) *int { return &v }
