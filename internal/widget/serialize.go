package widget

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"

	"jobcoach/internal/types"
)

// SessionPayload is what a full co-pilot save writes.
type SessionPayload struct {
	Session PersistedSession `json:"session"`

	// Fields are interview fields contributed by widget serializers, such
	// as notes, strategicOpening and prepOutline.
	Fields map[string]any `json:"fields,omitempty"`
}

// Serialize builds the save payload from widget states and a layout.
// Layout entries are copied as they are. Every registered widget gets a
// data container, with lastUpdated only when set; metadata is written only
// for widgets with an explicit collapsed flag. Serializer fields are
// merged in registry order: when two widgets write the same key and both
// values are objects, their keys are merged; otherwise the later value
// wins.
func Serialize(reg *Registry, states StateMap, layout GridLayout) (SessionPayload, error) {
	payload := newPayload(reg.Len())
	payload.Session.Layout = layout.Persisted()

	for _, d := range reg.Descriptors() {
		if err := payload.add(d, states); err != nil {
			return SessionPayload{}, err
		}
	}
	return payload, nil
}

// SerializeWidgets is Serialize restricted to the named widgets, without
// a layout. It backs single-widget edits, which must not overwrite other
// widgets' stored state.
func SerializeWidgets(reg *Registry, states StateMap, ids ...WidgetID) (SessionPayload, error) {
	payload := newPayload(len(ids))
	for _, id := range ids {
		d, ok := reg.Get(id)
		if !ok {
			return SessionPayload{}, unknownWidget(id)
		}
		if err := payload.add(d, states); err != nil {
			return SessionPayload{}, err
		}
	}
	return payload, nil
}

func newPayload(n int) SessionPayload {
	return SessionPayload{
		Session: PersistedSession{
			WidgetData:     make(map[string]PersistedWidgetData, n),
			WidgetMetadata: make(map[string]PersistedWidgetMeta),
		},
		Fields: make(map[string]any),
	}
}

func (p *SessionPayload) add(d *Descriptor, states StateMap) error {
	st, ok := states[d.ID]
	data := st.Data
	if !ok || len(data) == 0 {
		data = json.RawMessage("null")
	}

	pd := PersistedWidgetData{Data: bytes.Clone(data)}
	if st.LastUpdated != "" {
		stamp := st.LastUpdated
		pd.LastUpdated = &stamp
	}
	p.Session.WidgetData[string(d.ID)] = pd

	if st.Collapsed != nil {
		v := *st.Collapsed
		p.Session.WidgetMetadata[string(d.ID)] = PersistedWidgetMeta{Collapsed: &v}
	}

	if d.Serialize == nil || !ok {
		return nil
	}
	fields, err := d.Serialize(data)
	if err != nil {
		return fmt.Errorf("serialize widget %s: %w", d.ID, err)
	}
	mergeFields(p.Fields, fields)
	return nil
}

func mergeFields(dst, src map[string]any) {
	for key, val := range src {
		existing, ok := dst[key].(map[string]any)
		incoming, isMap := val.(map[string]any)
		if ok && isMap {
			merged := maps.Clone(existing)
			maps.Copy(merged, incoming)
			dst[key] = merged
			continue
		}
		if isMap {
			val = maps.Clone(incoming)
		}
		dst[key] = val
	}
}

// CopilotState converts the persisted session into the form stored on an
// interview. A nil layout stays absent.
func (p PersistedSession) CopilotState() (types.CopilotState, error) {
	var state types.CopilotState

	if p.Layout != nil {
		layout, err := json.Marshal(p.Layout)
		if err != nil {
			return state, fmt.Errorf("marshal layout: %w", err)
		}
		state.Layout = layout
	}

	state.WidgetData = make(map[string]json.RawMessage, len(p.WidgetData))
	for id, pd := range p.WidgetData {
		raw, err := json.Marshal(pd)
		if err != nil {
			return state, fmt.Errorf("marshal widget data %s: %w", id, err)
		}
		state.WidgetData[id] = raw
	}

	state.WidgetMetadata = make(map[string]json.RawMessage, len(p.WidgetMetadata))
	for id, pm := range p.WidgetMetadata {
		raw, err := json.Marshal(pm)
		if err != nil {
			return state, fmt.Errorf("marshal widget metadata %s: %w", id, err)
		}
		state.WidgetMetadata[id] = raw
	}
	return state, nil
}

// Patch converts the payload into an interview patch. Serializer fields
// other than notes, strategicOpening and prepOutline are rejected.
func (p SessionPayload) Patch() (types.InterviewPatch, error) {
	state, err := p.Session.CopilotState()
	if err != nil {
		return types.InterviewPatch{}, err
	}
	patch := types.InterviewPatch{
		Layout:         state.Layout,
		WidgetData:     state.WidgetData,
		WidgetMetadata: state.WidgetMetadata,
	}

	for key, val := range p.Fields {
		switch key {
		case "notes", "strategicOpening":
			s, ok := val.(string)
			if !ok {
				return types.InterviewPatch{}, fmt.Errorf("field %s: expected string, got %T", key, val)
			}
			if key == "notes" {
				patch.Notes = &s
			} else {
				patch.StrategicOpening = &s
			}
		case "prepOutline":
			m, ok := val.(map[string]any)
			if !ok {
				return types.InterviewPatch{}, fmt.Errorf("field prepOutline: expected object, got %T", val)
			}
			patch.PrepOutline = maps.Clone(m)
		default:
			return types.InterviewPatch{}, fmt.Errorf("unsupported interview field %q", key)
		}
	}
	return patch, nil
}
