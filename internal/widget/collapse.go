package widget

// CollapsedHeight is the grid height of a collapsed widget.
const CollapsedHeight = 2

// ApplyCollapsedState returns a copy of layout with heights resolved
// against the collapsed flags. For each entry, in order:
//
//	collapsed                                  -> CollapsedHeight
//	stored height set and not CollapsedHeight  -> keep it
//	stored height is CollapsedHeight           -> registry default
//	no usable stored height                    -> registry default
//	no registry default                        -> unchanged
//
// A height of zero or less counts as not stored. The input is not mutated.
func ApplyCollapsedState(reg *Registry, layout GridLayout, collapsed map[WidgetID]bool) GridLayout {
	out := layout.Clone()
	for bp, items := range out {
		for i := range items {
			items[i].H = resolveHeight(reg, bp, items[i], collapsed[items[i].I])
		}
	}
	return out
}

func resolveHeight(reg *Registry, bp Breakpoint, item LayoutItem, collapsed bool) int {
	if collapsed {
		return CollapsedHeight
	}
	if item.H > 0 && item.H != CollapsedHeight {
		return item.H
	}
	if h, ok := reg.DefaultHeight(item.I, bp); ok {
		return h
	}
	return item.H
}

// CollapsedFlags extracts the explicit collapsed flags from states.
// Widgets whose flag was never set are absent.
func CollapsedFlags(states StateMap) map[WidgetID]bool {
	flags := make(map[WidgetID]bool, len(states))
	for id, st := range states {
		if st.Collapsed != nil {
			flags[id] = *st.Collapsed
		}
	}
	return flags
}
