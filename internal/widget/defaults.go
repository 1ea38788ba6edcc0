package widget

import (
	"encoding/json"
	"slices"

	"jobcoach/internal/types"
)

// NotesData is the notes widget's data.
type NotesData struct {
	Text string `json:"text"`
}

// StoryDeckData is the story deck widget's data.
type StoryDeckData struct {
	Stories []StoryCard `json:"stories"`
}

// OutlineData is the prep outline widget's data. Questions to ask live in
// their own widget.
type OutlineData struct {
	Opening     string   `json:"opening"`
	Positioning string   `json:"positioning"`
	KeyStories  []string `json:"keyStories"`
	Risks       []string `json:"risks"`
	Closing     string   `json:"closing"`
}

// TextData is the data of single-text widgets.
type TextData struct {
	Text string `json:"text"`
}

// QuestionsData is the questions-to-ask widget's data.
type QuestionsData struct {
	Questions []string `json:"questions"`
}

func rect(x, y, w, h int) LayoutItem { return LayoutItem{X: x, Y: y, W: w, H: h} }

// DefaultDescriptors returns the built-in widgets in display order.
func DefaultDescriptors() []Descriptor {
	return []Descriptor{
		{
			ID:    Notes,
			Title: "Notes",
			Layouts: map[Breakpoint]LayoutItem{
				LG: rect(0, 0, 6, 4),
				MD: rect(0, 0, 5, 4),
				SM: rect(0, 0, 6, 4),
			},
			EditableModes: []Mode{ModeLive, ModePrep},
			NewData:       func() any { return &NotesData{} },
			DefaultState: func(ctx *Context) any {
				if ctx.Interview == nil {
					return NotesData{}
				}
				return NotesData{Text: ctx.Interview.Notes}
			},
			Serialize: decodeThen(func(d NotesData) map[string]any {
				return map[string]any{"notes": d.Text}
			}),
		},
		{
			ID:    JobCheatSheet,
			Title: "Job Cheat Sheet",
			Layouts: map[Breakpoint]LayoutItem{
				LG: rect(6, 0, 6, 6),
				MD: rect(5, 0, 5, 6),
				SM: rect(0, 4, 6, 6),
			},
			EditableModes: []Mode{ModePrep},
			NewData:       func() any { return &types.CheatSheet{} },
			DefaultState:  func(ctx *Context) any { return defaultCheatSheet(ctx) },
		},
		{
			ID:    LiveChecklist,
			Title: "Live Checklist",
			Layouts: map[Breakpoint]LayoutItem{
				LG: rect(0, 4, 6, 5),
				MD: rect(0, 4, 5, 5),
				SM: rect(0, 10, 6, 5),
			},
			EditableModes: []Mode{ModeLive},
			NewData:       func() any { return &ChecklistData{} },
			DefaultState: func(ctx *Context) any {
				return DeriveChecklist(defaultCheatSheet(ctx), ChecklistData{})
			},
		},
		{
			ID:    StoryDeck,
			Title: "Story Deck",
			Layouts: map[Breakpoint]LayoutItem{
				LG: rect(6, 6, 6, 6),
				MD: rect(5, 6, 5, 6),
				SM: rect(0, 15, 6, 6),
			},
			EditableModes: []Mode{ModePrep},
			NewData:       func() any { return &StoryDeckData{} },
			DefaultState: func(ctx *Context) any {
				return StoryDeckData{Stories: orEmptyCards(ctx.StoryDeck)}
			},
		},
		{
			ID:    PrepOutline,
			Title: "Prep Outline",
			Layouts: map[Breakpoint]LayoutItem{
				LG: rect(0, 9, 6, 6),
				MD: rect(0, 9, 5, 6),
				SM: rect(0, 21, 6, 6),
			},
			EditableModes: []Mode{ModePrep},
			NewData:       func() any { return &OutlineData{} },
			DefaultState: func(ctx *Context) any {
				o := ctx.PrepOutline
				return OutlineData{
					Opening:     o.Opening,
					Positioning: o.Positioning,
					KeyStories:  orEmpty(slices.Clone(o.KeyStories)),
					Risks:       orEmpty(slices.Clone(o.Risks)),
					Closing:     o.Closing,
				}
			},
			Serialize: decodeThen(func(d OutlineData) map[string]any {
				return map[string]any{"prepOutline": map[string]any{
					"opening":     d.Opening,
					"positioning": d.Positioning,
					"keyStories":  orEmpty(d.KeyStories),
					"risks":       orEmpty(d.Risks),
					"closing":     d.Closing,
				}}
			}),
		},
		{
			ID:    StrategicOpening,
			Title: "Strategic Opening",
			Layouts: map[Breakpoint]LayoutItem{
				LG: rect(0, 15, 6, 3),
				MD: rect(0, 15, 5, 3),
				SM: rect(0, 27, 6, 3),
			},
			EditableModes: []Mode{ModePrep},
			NewData:       func() any { return &TextData{} },
			DefaultState:  func(ctx *Context) any { return TextData{Text: defaultOpening(ctx)} },
			Serialize: decodeThen(func(d TextData) map[string]any {
				return map[string]any{"strategicOpening": d.Text}
			}),
		},
		{
			ID:    QuestionsToAsk,
			Title: "Questions to Ask",
			Layouts: map[Breakpoint]LayoutItem{
				LG: rect(6, 12, 6, 4),
				MD: rect(5, 12, 5, 4),
				SM: rect(0, 30, 6, 4),
			},
			EditableModes: []Mode{ModeLive, ModePrep},
			NewData:       func() any { return &QuestionsData{} },
			DefaultState: func(ctx *Context) any {
				return QuestionsData{Questions: orEmpty(slices.Clone(ctx.PrepOutline.QuestionsToAsk))}
			},
			Serialize: decodeThen(func(d QuestionsData) map[string]any {
				return map[string]any{"prepOutline": map[string]any{
					"questionsToAsk": orEmpty(d.Questions),
				}}
			}),
		},
	}
}

// DefaultRegistry returns a registry of the built-in widgets.
func DefaultRegistry() *Registry {
	return MustRegistry(DefaultDescriptors()...)
}

func defaultCheatSheet(ctx *Context) types.CheatSheet {
	ja := ctx.Analysis
	return types.CheatSheet{
		Summary:       ja.GuidanceSummary(),
		Keywords:      orEmpty(ja.Terms()),
		Metrics:       orEmpty(ja.Metrics()),
		Levers:        orEmpty(ja.Levers()),
		Blockers:      orEmpty(ja.Blockers()),
		TalkingPoints: orEmpty(ja.GuidanceBullets()),
	}
}

func defaultOpening(ctx *Context) string {
	switch {
	case ctx.Interview != nil && ctx.Interview.StrategicOpening != "":
		return ctx.Interview.StrategicOpening
	case ctx.PrepOutline.Opening != "":
		return ctx.PrepOutline.Opening
	case ctx.Narrative != nil:
		return ctx.Narrative.Positioning
	}
	return ""
}

func orEmptyCards(c []StoryCard) []StoryCard {
	if c == nil {
		return []StoryCard{}
	}
	return c
}

// decodeThen adapts a typed field builder into a SerializeFunc.
func decodeThen[T any](fn func(T) map[string]any) SerializeFunc {
	return func(data json.RawMessage) (map[string]any, error) {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return fn(v), nil
	}
}
