package widget

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"jobcoach/internal/types"
)

// ErrUnknownWidget is returned for widget IDs the registry does not know.
var ErrUnknownWidget = errors.New("unknown widget")

func unknownWidget(id WidgetID) error {
	return fmt.Errorf("%w: %q", ErrUnknownWidget, id)
}

// WidgetState is one widget's working state.
type WidgetState struct {
	Data        json.RawMessage `json:"data"`
	Collapsed   *bool           `json:"collapsed,omitempty"`
	LastUpdated string          `json:"lastUpdated,omitempty"`
}

// IsCollapsed reports whether the widget is explicitly collapsed.
func (w WidgetState) IsCollapsed() bool {
	return w.Collapsed != nil && *w.Collapsed
}

// StateMap holds the state of every registered widget.
type StateMap map[WidgetID]WidgetState

// Clone returns a copy that shares no mutable data with s.
func (s StateMap) Clone() StateMap {
	out := make(StateMap, len(s))
	for id, st := range s {
		st.Data = bytes.Clone(st.Data)
		if st.Collapsed != nil {
			v := *st.Collapsed
			st.Collapsed = &v
		}
		out[id] = st
	}
	return out
}

// PersistedWidgetData is a stored widget data container. Decoding is
// lenient: a container that is not an object, a null data property, or a
// lastUpdated that is not a string all decode as absent.
type PersistedWidgetData struct {
	Data        json.RawMessage `json:"data"`
	LastUpdated *string         `json:"lastUpdated,omitempty"`
}

func (p *PersistedWidgetData) UnmarshalJSON(b []byte) error {
	*p = PersistedWidgetData{}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil
	}
	if data, ok := fields["data"]; ok && !isNull(data) {
		p.Data = bytes.Clone(data)
	}
	if raw, ok := fields["lastUpdated"]; ok {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			p.LastUpdated = &s
		}
	}
	return nil
}

// PersistedWidgetMeta is a stored widget metadata container. A collapsed
// value that is not a boolean decodes as absent.
type PersistedWidgetMeta struct {
	Collapsed *bool `json:"collapsed,omitempty"`
}

func (p *PersistedWidgetMeta) UnmarshalJSON(b []byte) error {
	*p = PersistedWidgetMeta{}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil
	}
	if raw, ok := fields["collapsed"]; ok {
		var v bool
		if json.Unmarshal(raw, &v) == nil {
			p.Collapsed = &v
		}
	}
	return nil
}

// PersistedSession is the stored co-pilot session.
type PersistedSession struct {
	Layout         PersistedLayout                `json:"layout,omitempty"`
	WidgetData     map[string]PersistedWidgetData `json:"widgetData,omitempty"`
	WidgetMetadata map[string]PersistedWidgetMeta `json:"widgetMetadata,omitempty"`

	// SkippedLayoutEntries counts stored layout entries that could not be
	// decoded at all.
	SkippedLayoutEntries int `json:"-"`
}

// ParsePersisted decodes the co-pilot state stored on an interview. It
// always returns a usable session; the error describes the parts that
// were ignored.
func ParsePersisted(state types.CopilotState) (*PersistedSession, error) {
	ps := &PersistedSession{
		WidgetData:     make(map[string]PersistedWidgetData, len(state.WidgetData)),
		WidgetMetadata: make(map[string]PersistedWidgetMeta, len(state.WidgetMetadata)),
	}

	var errs []error
	layout, skipped, err := ParsePersistedLayout(state.Layout)
	if err != nil {
		errs = append(errs, fmt.Errorf("layout: %w", err))
	}
	ps.Layout = layout
	ps.SkippedLayoutEntries = skipped

	for id, raw := range state.WidgetData {
		var pd PersistedWidgetData
		_ = json.Unmarshal(raw, &pd)
		ps.WidgetData[id] = pd
	}
	for id, raw := range state.WidgetMetadata {
		var pm PersistedWidgetMeta
		_ = json.Unmarshal(raw, &pm)
		ps.WidgetMetadata[id] = pm
	}

	return ps, errors.Join(errs...)
}

// Hydrate computes the state of every registered widget: the default
// from ctx, then persisted data, lastUpdated and collapsed on top, then
// the interview date as a fallback stamp. Persisted data that does not
// fit the widget's data type is ignored. Finally the live checklist is
// re-derived from the resulting cheat sheet.
//
// The returned map is always complete; err lists what was ignored.
func Hydrate(reg *Registry, ctx *Context, persisted *PersistedSession) (StateMap, error) {
	if ctx == nil {
		ctx = &Context{}
	}
	if persisted == nil {
		persisted = &PersistedSession{}
	}

	var errs []error
	states := make(StateMap, reg.Len())
	for _, d := range reg.Descriptors() {
		baseline, err := json.Marshal(d.DefaultState(ctx))
		if err != nil {
			errs = append(errs, fmt.Errorf("widget %s default state: %w", d.ID, err))
			baseline = json.RawMessage("null")
		}
		st := WidgetState{Data: baseline}

		if pd, ok := persisted.WidgetData[string(d.ID)]; ok {
			if pd.Data != nil {
				if err := d.ValidateData(pd.Data); err != nil {
					errs = append(errs, fmt.Errorf("persisted data ignored: %w", err))
				} else {
					st.Data = bytes.Clone(pd.Data)
				}
			}
			if pd.LastUpdated != nil {
				st.LastUpdated = *pd.LastUpdated
			}
		}
		if pm, ok := persisted.WidgetMetadata[string(d.ID)]; ok && pm.Collapsed != nil {
			v := *pm.Collapsed
			st.Collapsed = &v
		}
		if st.LastUpdated == "" && ctx.Interview != nil {
			st.LastUpdated = ctx.Interview.Date
		}
		states[d.ID] = st
	}

	if reg.Has(JobCheatSheet) && reg.Has(LiveChecklist) {
		if _, err := states.syncChecklist(); err != nil {
			errs = append(errs, fmt.Errorf("live checklist: %w", err))
		}
	}

	return states, errors.Join(errs...)
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// jsonEqual compares two JSON documents by value.
func jsonEqual(a, b json.RawMessage) bool {
	if len(a) == 0 || len(b) == 0 {
		return len(a) == len(b)
	}
	var va, vb any
	if json.Unmarshal(a, &va) != nil || json.Unmarshal(b, &vb) != nil {
		return bytes.Equal(a, b)
	}
	return reflect.DeepEqual(va, vb)
}
