package widget

import (
	"encoding/json"
	"time"

	"github.com/dustin/go-humanize"
)

// Panel is one rendered widget.
type Panel struct {
	ID         WidgetID        `json:"id"`
	Title      string          `json:"title"`
	Layout     LayoutItem      `json:"layout"`
	Collapsed  bool            `json:"collapsed"`
	Editable   bool            `json:"editable"`
	UpdatedAt  string          `json:"updatedAt,omitempty"`
	UpdatedAgo string          `json:"updatedAgo,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// View is the co-pilot grid for one breakpoint and mode.
type View struct {
	Mode        Mode       `json:"mode"`
	Breakpoint  Breakpoint `json:"breakpoint"`
	Panels      []Panel    `json:"panels"`
	GeneratedAt time.Time  `json:"generatedAt"`
}

// BuildView renders one panel per entry of layout[bp], in layout order.
// Collapsed panels carry no data. Widgets missing from the registry are
// skipped.
func BuildView(reg *Registry, states StateMap, layout GridLayout, bp Breakpoint, mode Mode, now time.Time) View {
	v := View{
		Mode:        mode,
		Breakpoint:  bp,
		Panels:      make([]Panel, 0, len(layout[bp])),
		GeneratedAt: now.UTC(),
	}

	for _, item := range layout[bp] {
		d, ok := reg.Get(item.I)
		if !ok {
			continue
		}
		st := states[item.I]
		p := Panel{
			ID:        item.I,
			Title:     d.Title,
			Layout:    item,
			Collapsed: st.IsCollapsed(),
			Editable:  d.EditableIn(mode),
		}
		p.UpdatedAt, p.UpdatedAgo = stamps(st.LastUpdated, now)
		if !p.Collapsed {
			p.Data = st.Data
		}
		v.Panels = append(v.Panels, p)
	}
	return v
}

// stamps normalizes a stored timestamp to RFC 3339 and renders it
// relative to now. Unparseable stamps are returned as they are.
func stamps(raw string, now time.Time) (string, string) {
	if raw == "" {
		return "", ""
	}
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC().Format(time.RFC3339), humanize.RelTime(t, now, "ago", "from now")
		}
	}
	return raw, ""
}
