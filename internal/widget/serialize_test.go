package widget

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"jobcoach/internal/types"
)

func TestSerialize(t *testing.T) {
	reg := DefaultRegistry()
	states, err := Hydrate(reg, sampleContext(), nil)
	require.NoError(t, err)

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, states.SetData(reg, QuestionsToAsk, json.RawMessage(`{"questions":["What does success look like?"]}`), now))
	require.NoError(t, states.SetData(reg, StrategicOpening, json.RawMessage(`{"text":"Open with the migration"}`), now))
	require.NoError(t, states.SetCollapsed(reg, StoryDeck, false))

	layout := reg.DefaultLayouts()
	payload, err := Serialize(reg, states, layout)
	require.NoError(t, err)

	assert.Len(t, payload.Session.WidgetData, reg.Len())
	assert.Equal(t, "2026-03-02T09:00:00Z", *payload.Session.WidgetData["questionsToAsk"].LastUpdated)
	require.Len(t, payload.Session.WidgetMetadata, 1)
	assert.False(t, *payload.Session.WidgetMetadata["storyDeck"].Collapsed)
	assert.Equal(t, layout.Persisted(), payload.Session.Layout)

	assert.Equal(t, "Ask about on-call", payload.Fields["notes"])
	assert.Equal(t, "Open with the migration", payload.Fields["strategicOpening"])

	outline, ok := payload.Fields["prepOutline"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []string{"What does success look like?"}, outline["questionsToAsk"])
	assert.Equal(t, "Platform engineer who ships reliability", outline["positioning"])
	assert.Contains(t, outline, "keyStories")

	patch, err := payload.Patch()
	require.NoError(t, err)
	assert.Equal(t, "Ask about on-call", *patch.Notes)
	assert.Equal(t, "Open with the migration", *patch.StrategicOpening)
	assert.Contains(t, patch.PrepOutline, "questionsToAsk")
	assert.JSONEq(t, `{"collapsed":false}`, string(patch.WidgetMetadata["storyDeck"]))
	assert.NotContains(t, patch.WidgetMetadata, "notes")
}

func TestMergeFields(t *testing.T) {
	dst := map[string]any{}
	mergeFields(dst, map[string]any{"prepOutline": map[string]any{"opening": "a", "closing": "z"}})
	mergeFields(dst, map[string]any{"prepOutline": map[string]any{"opening": "b", "questionsToAsk": []string{"q"}}})
	mergeFields(dst, map[string]any{"notes": "first"})
	mergeFields(dst, map[string]any{"notes": "second"})

	assert.Equal(t, map[string]any{
		"prepOutline": map[string]any{"opening": "b", "closing": "z", "questionsToAsk": []string{"q"}},
		"notes":       "second",
	}, dst)
}

func TestPatchRejectsUnknownFields(t *testing.T) {
	_, err := SessionPayload{Fields: map[string]any{"salary": 1}}.Patch()
	assert.Error(t, err)

	_, err = SessionPayload{Fields: map[string]any{"notes": 5}}.Patch()
	assert.Error(t, err)
}

func TestSerializeHydrateRoundTrip(t *testing.T) {
	reg := DefaultRegistry()
	ctx := sampleContext()
	states, err := Hydrate(reg, ctx, nil)
	require.NoError(t, err)

	now := time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)
	require.NoError(t, states.SetData(reg, Notes, json.RawMessage(`{"text":"round trip"}`), now))
	require.NoError(t, states.SetCollapsed(reg, PrepOutline, true))
	require.NoError(t, states.SetCollapsed(reg, Notes, false))

	layout, _ := MergeLayouts(reg, nil)
	payload, err := Serialize(reg, states, layout)
	require.NoError(t, err)

	stored, err := payload.Session.CopilotState()
	require.NoError(t, err)
	persisted, err := ParsePersisted(stored)
	require.NoError(t, err)

	again, err := Hydrate(reg, ctx, persisted)
	require.NoError(t, err)

	for _, id := range reg.IDs() {
		assert.JSONEq(t, string(states[id].Data), string(again[id].Data), "widget %s", id)
		assert.Equal(t, states[id].LastUpdated, again[id].LastUpdated, "widget %s", id)
		assert.Equal(t, states[id].Collapsed, again[id].Collapsed, "widget %s", id)
	}

	merged, report := MergeLayouts(reg, persisted.Layout)
	assert.Equal(t, layout, merged)
	assert.False(t, report.Repaired())
}

func TestBuildView(t *testing.T) {
	reg := DefaultRegistry()
	states, err := Hydrate(reg, sampleContext(), nil)
	require.NoError(t, err)
	require.NoError(t, states.SetCollapsed(reg, JobCheatSheet, true))

	now := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	layout := GridLayout{SM: {
		{I: QuestionsToAsk, W: 6, H: 4},
		{I: JobCheatSheet, W: 6, H: 2},
		{I: "retired", W: 1, H: 1},
	}}

	view := BuildView(reg, states, layout, SM, ModeLive, now)
	require.Len(t, view.Panels, 2)

	first := view.Panels[0]
	assert.Equal(t, QuestionsToAsk, first.ID)
	assert.Equal(t, "Questions to Ask", first.Title)
	assert.True(t, first.Editable)
	assert.NotEmpty(t, first.Data)
	assert.Equal(t, "2026-03-02T00:00:00Z", first.UpdatedAt)
	assert.Equal(t, "3 days ago", first.UpdatedAgo)

	second := view.Panels[1]
	assert.True(t, second.Collapsed)
	assert.False(t, second.Editable, "cheat sheet is prep-only")
	assert.Nil(t, second.Data)

	prep := BuildView(reg, states, layout, SM, ModePrep, now)
	assert.True(t, prep.Panels[1].Editable)
}

func TestWithOverrides(t *testing.T) {
	reg := DefaultRegistry()
	o, err := ParseOverrides([]byte(`
widgets:
  notes:
    title: Scratchpad
    layouts:
      lg: {w: 8, h: 5}
  storyDeck:
    editableModes: [live, prep]
  retired:
    title: Gone
`))
	require.NoError(t, err)

	next, warnings, err := reg.WithOverrides(o)
	require.NoError(t, err)
	assert.Len(t, warnings, 1)

	notes, _ := next.Get(Notes)
	assert.Equal(t, "Scratchpad", notes.Title)
	assert.Equal(t, LayoutItem{I: Notes, X: 0, Y: 0, W: 8, H: 5}, notes.Layouts[LG])
	deck, _ := next.Get(StoryDeck)
	assert.True(t, deck.EditableIn(ModeLive))

	original, _ := reg.Get(Notes)
	assert.Equal(t, "Notes", original.Title, "base registry is not modified")
	assert.Equal(t, 6, original.Layouts[LG].W)

	for _, bad := range []string{
		"widgets:\n  notes:\n    layouts:\n      xl: {w: 1}\n",
		"widgets:\n  notes:\n    layouts:\n      lg: {h: 0}\n",
		"widgets:\n  notes:\n    editableModes: [review]\n",
	} {
		o, err := ParseOverrides([]byte(bad))
		require.NoError(t, err)
		_, _, err = reg.WithOverrides(o)
		assert.Error(t, err, bad)
	}

	_, err = ParseOverrides([]byte("widget:\n  notes: {}\n"))
	assert.Error(t, err, "unknown top-level key")
}

func TestOverridesWatcherReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "widgets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("widgets:\n  notes:\n    title: Scratchpad\n"), 0o600))

	base := DefaultRegistry()
	holder := NewRegistryHolder(base)
	var (
		reloaded  *Registry
		reloadErr error
	)
	w := NewOverridesWatcher(path, base, holder, 0, func(r *Registry, err error) { reloaded, reloadErr = r, err }, nil)

	require.NoError(t, w.Reload())
	notes, _ := holder.Load().Get(Notes)
	assert.Equal(t, "Scratchpad", notes.Title)
	assert.Same(t, holder.Load(), reloaded)

	require.NoError(t, os.WriteFile(path, []byte("widgets: [broken"), 0o600))
	assert.Error(t, w.Reload())
	assert.Error(t, reloadErr)
	assert.Nil(t, reloaded)
	notes, _ = holder.Load().Get(Notes)
	assert.Equal(t, "Scratchpad", notes.Title, "failed reload keeps the current registry")

	require.NoError(t, w.Start())
	assert.True(t, w.IsRunning())
	assert.Error(t, w.Start())
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
	assert.False(t, w.IsRunning())
}

func TestFileChanged(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "widgets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("widgets: {}\n"), 0o600))
	first, err := os.Stat(path)
	require.NoError(t, err)

	same, err := os.Stat(path)
	require.NoError(t, err)
	assert.False(t, fileChanged(first, same))
	assert.True(t, fileChanged(nil, same))

	// An atomic replace with an older mtime and the same size.
	tmp := filepath.Join(dir, "widgets.yaml.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("widgets: []\n"), 0o600))
	older := first.ModTime().Add(-time.Hour)
	require.NoError(t, os.Chtimes(tmp, older, older))
	require.NoError(t, os.Rename(tmp, path))

	replaced, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, fileChanged(first, replaced))
}

func TestPatchFieldsFromNotesOnlyRegistry(t *testing.T) {
	reg := MustRegistry(DefaultDescriptors()[0])
	states := StateMap{Notes: {Data: json.RawMessage(`{"text":"only notes"}`)}}

	payload, err := Serialize(reg, states, reg.DefaultLayouts())
	require.NoError(t, err)
	patch, err := payload.Patch()
	require.NoError(t, err)

	assert.Equal(t, types.InterviewPatch{
		Layout:         patch.Layout,
		WidgetData:     patch.WidgetData,
		WidgetMetadata: map[string]json.RawMessage{},
		Notes:          patch.Notes,
	}, patch)
	assert.Equal(t, "only notes", *patch.Notes)
	assert.Nil(t, patch.PrepOutline)
}
