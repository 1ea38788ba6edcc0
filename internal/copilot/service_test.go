package copilot

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobcoach/internal/ai"
	"jobcoach/internal/errors"
	"jobcoach/internal/store"
	"jobcoach/internal/types"
	"jobcoach/internal/widget"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const analysisPayload = `{
	"keywords": {"technicalKeywords":[{"keyword":"Kubernetes"},{"keyword":"Go"}]},
	"problemAnalysis": {
		"coreProblems":[{"problem":"Slow deploys","leverage":"CI rebuild"}],
		"successMetrics":["Daily deploys"],
		"blockers":["Legacy monolith"]
	}
}`

type fakeGenerator struct {
	sheet   types.CheatSheet
	outline types.PrepOutline
	draft   types.AnswerDraft
	err     error

	answerInput  types.AnswerInput
	outlineInput types.OutlineInput
}

func (f *fakeGenerator) GenerateCheatSheet(_ context.Context, _ types.CheatSheetInput) (types.CheatSheet, *ai.TokenUsage, error) {
	return f.sheet, &ai.TokenUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}, f.err
}

func (f *fakeGenerator) GeneratePrepOutline(_ context.Context, in types.OutlineInput) (types.PrepOutline, *ai.TokenUsage, error) {
	f.outlineInput = in
	return f.outline, nil, f.err
}

func (f *fakeGenerator) DraftAnswer(_ context.Context, in types.AnswerInput) (types.AnswerDraft, *ai.TokenUsage, error) {
	f.answerInput = in
	return f.draft, nil, f.err
}

type fixture struct {
	svc   *Service
	store *store.Memory
	gen   *fakeGenerator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()

	require.NoError(t, mem.PutApplication(ctx, &types.Application{
		ID:             "app-1",
		Company:        types.Company{Name: "Acme"},
		Role:           "Staff Engineer",
		JobDescription: "Own the deploy pipeline.",
		JobAnalysis:    json.RawMessage(analysisPayload),
	}))
	require.NoError(t, mem.PutNarrative(ctx, &types.Narrative{
		ID:          "nar-1",
		Positioning: "Platform engineer who ships reliability",
		ImpactStories: []types.ImpactStory{
			{ID: "s1", Title: "Billing rewrite", Result: "Cut invoice errors 90%"},
			{ID: "s2", Title: "Cluster migration", Action: "Moved services to Kubernetes"},
		},
	}))
	require.NoError(t, mem.PutInterview(ctx, &types.Interview{
		ID:            "int-1",
		ApplicationID: "app-1",
		NarrativeID:   "nar-1",
		Stage:         "onsite",
		Date:          "2026-03-02",
		Notes:         "Ask about on-call",
	}))

	gen := &fakeGenerator{}
	svc, err := New(Config{
		Store:    mem,
		Registry: widget.NewRegistryHolder(widget.DefaultRegistry()),
		AI:       gen,
		Now:      func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return &fixture{svc: svc, store: mem, gen: gen}
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestNewRequiresStoreAndRegistry(t *testing.T) {
	_, err := New(Config{Registry: widget.NewRegistryHolder(widget.DefaultRegistry())})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = New(Config{Store: store.NewMemory()})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestOpenUsesDefaults(t *testing.T) {
	f := newFixture(t)

	sess, err := f.svc.Open(context.Background(), "int-1", ViewOptions{})
	require.NoError(t, err)

	assert.True(t, sess.Report.UsedDefaults)
	assert.Empty(t, sess.Warnings)
	assert.Equal(t, widget.ModeLive, sess.View.Mode)
	assert.Equal(t, widget.LG, sess.View.Breakpoint)
	assert.Len(t, sess.View.Panels, widget.DefaultRegistry().Len())

	notes := decode[widget.NotesData](t, sess.Widgets[widget.Notes].Data)
	assert.Equal(t, "Ask about on-call", notes.Text)
	assert.Equal(t, "2026-03-02", sess.Widgets[widget.Notes].LastUpdated)

	checklist := decode[widget.ChecklistData](t, sess.Widgets[widget.LiveChecklist].Data)
	assert.Equal(t, []string{"Legacy monolith"}, checklist.Blockers)
}

func TestOpenRepairsStoredLayout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.PatchInterview(ctx, "int-1", types.InterviewPatch{
		Layout: json.RawMessage(`{
			"lg": [{"i":"notes","x":0,"y":0,"w":4,"h":3},{"i":"ghost","x":1,"y":1,"w":1,"h":1},{"i":"notes","x":9,"y":9,"w":1,"h":1}],
			"xl": []
		}`),
	})
	require.NoError(t, err)

	sess, err := f.svc.Open(ctx, "int-1", ViewOptions{Mode: widget.ModePrep, Breakpoint: widget.MD})
	require.NoError(t, err)

	assert.Equal(t, 1, sess.Report.DroppedUnknown)
	assert.Equal(t, 1, sess.Report.DroppedDuplicates)
	assert.Equal(t, []string{"xl"}, sess.Report.DroppedBreakpoints)
	assert.Equal(t, widget.MD, sess.View.Breakpoint)

	item, ok := sess.Layout.Find(widget.LG, widget.Notes)
	require.True(t, ok)
	assert.Equal(t, 4, item.W)
	assert.Equal(t, 3, item.H)
	assert.Len(t, sess.Layout[widget.LG], widget.DefaultRegistry().Len())
}

func TestOpenWarnsOnMissingRelations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.PutInterview(ctx, &types.Interview{
		ID:            "int-2",
		ApplicationID: "missing-app",
		NarrativeID:   "missing-nar",
	}))

	sess, err := f.svc.Open(ctx, "int-2", ViewOptions{})
	require.NoError(t, err)
	assert.Len(t, sess.Warnings, 2)
	assert.Len(t, sess.View.Panels, widget.DefaultRegistry().Len())
}

func TestOpenErrors(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Open(context.Background(), "nope", ViewOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
	assert.True(t, stderrors.Is(err, store.ErrNotFound))

	_, err = f.svc.Open(context.Background(), "", ViewOptions{})
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestSavePersistsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	collapsed := true

	_, err := f.svc.Save(ctx, "int-1", SaveRequest{
		Layout: json.RawMessage(`{"lg":[{"i":"notes","x":0,"y":0,"w":8,"h":5},{"i":"unknown","x":0,"y":0,"w":1,"h":1}]}`),
		Widgets: map[string]widget.WidgetState{
			"notes":            {Data: json.RawMessage(`{"text":"Mention the SLO work"}`)},
			"strategicOpening": {Data: json.RawMessage(`{"text":"Open with the migration"}`), Collapsed: &collapsed},
		},
	}, ViewOptions{})
	require.NoError(t, err)

	iv, err := f.store.GetInterview(ctx, "int-1")
	require.NoError(t, err)
	assert.Equal(t, "Mention the SLO work", iv.Notes)
	assert.Equal(t, "Open with the migration", iv.StrategicOpening)
	assert.NotContains(t, string(iv.Copilot.Layout), "unknown")
	assert.Len(t, iv.Copilot.WidgetData, widget.DefaultRegistry().Len())

	reopened, err := f.svc.Open(ctx, "int-1", ViewOptions{})
	require.NoError(t, err)
	assert.False(t, reopened.Report.UsedDefaults)
	assert.Equal(t, fixedNow.Format(time.RFC3339), reopened.Widgets[widget.Notes].LastUpdated)
	assert.True(t, reopened.Widgets[widget.StrategicOpening].IsCollapsed())

	item, ok := reopened.Layout.Find(widget.LG, widget.StrategicOpening)
	require.True(t, ok)
	assert.Equal(t, widget.CollapsedHeight, item.H)
	notes, ok := reopened.Layout.Find(widget.LG, widget.Notes)
	require.True(t, ok)
	assert.Equal(t, 8, notes.W)
}

func TestSaveRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		req  SaveRequest
		code string
	}{
		{
			name: "unknown widget",
			req:  SaveRequest{Widgets: map[string]widget.WidgetState{"ghost": {Data: json.RawMessage(`{}`)}}},
			code: errors.ErrCodeUnknownWidget,
		},
		{
			name: "data of the wrong shape",
			req:  SaveRequest{Widgets: map[string]widget.WidgetState{"notes": {Data: json.RawMessage(`{"text":5}`)}}},
			code: errors.ErrCodeInvalidWidgetData,
		},
		{
			name: "layout that is not a map",
			req:  SaveRequest{Layout: json.RawMessage(`[1,2]`)},
			code: errors.ErrCodeInvalidLayout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Save(context.Background(), "int-1", tt.req, ViewOptions{})
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
			assert.Equal(t, tt.code, errors.CodeOf(err))

			iv, err := f.store.GetInterview(context.Background(), "int-1")
			require.NoError(t, err)
			assert.Empty(t, iv.Copilot.WidgetData)
		})
	}
}

func TestSaveNotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.SaveNotes(ctx, "int-1", "Follow up on team size"))

	iv, err := f.store.GetInterview(ctx, "int-1")
	require.NoError(t, err)
	assert.Equal(t, "Follow up on team size", iv.Notes)
	assert.Len(t, iv.Copilot.WidgetData, 1)
	assert.Empty(t, iv.Copilot.Layout)
}

func TestUpdateWidget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sheet := json.RawMessage(`{"summary":"Platform role","metrics":["p99 latency"],"levers":["Golden paths"],"blockers":[]}`)

	t.Run("read only in live mode", func(t *testing.T) {
		_, err := f.svc.UpdateWidget(ctx, "int-1", widget.JobCheatSheet, sheet, ViewOptions{Mode: widget.ModeLive})
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeWidgetReadOnly, errors.CodeOf(err))
	})

	t.Run("unknown widget", func(t *testing.T) {
		_, err := f.svc.UpdateWidget(ctx, "int-1", "ghost", sheet, ViewOptions{Mode: widget.ModePrep})
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
	})

	t.Run("cheat sheet edit derives checklist", func(t *testing.T) {
		sess, err := f.svc.UpdateWidget(ctx, "int-1", widget.JobCheatSheet, sheet, ViewOptions{Mode: widget.ModePrep})
		require.NoError(t, err)

		checklist := decode[widget.ChecklistData](t, sess.Widgets[widget.LiveChecklist].Data)
		assert.Equal(t, []string{"p99 latency"}, checklist.Metrics)

		iv, err := f.store.GetInterview(ctx, "int-1")
		require.NoError(t, err)
		assert.Len(t, iv.Copilot.WidgetData, 2)
		assert.Contains(t, iv.Copilot.WidgetData, string(widget.LiveChecklist))

		reopened, err := f.svc.Open(ctx, "int-1", ViewOptions{})
		require.NoError(t, err)
		stored := decode[types.CheatSheet](t, reopened.Widgets[widget.JobCheatSheet].Data)
		assert.Equal(t, "Platform role", stored.Summary)
	})
}

func TestSetCollapsed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.svc.SetCollapsed(ctx, "int-1", widget.StoryDeck, true, ViewOptions{})
	require.NoError(t, err)
	for _, p := range sess.View.Panels {
		if p.ID == widget.StoryDeck {
			assert.True(t, p.Collapsed)
			assert.Nil(t, p.Data)
		}
	}

	iv, err := f.store.GetInterview(ctx, "int-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"collapsed":true}`, string(iv.Copilot.WidgetMetadata[string(widget.StoryDeck)]))
	assert.NotContains(t, iv.Copilot.WidgetData, string(widget.StoryDeck), "collapsing stores no widget data")

	sess, err = f.svc.SetCollapsed(ctx, "int-1", widget.StoryDeck, false, ViewOptions{})
	require.NoError(t, err)
	item, ok := sess.Layout.Find(widget.SM, widget.StoryDeck)
	require.True(t, ok)
	def, _ := widget.DefaultRegistry().DefaultHeight(widget.StoryDeck, widget.SM)
	assert.Equal(t, def, item.H)
}

func TestSetCollapsedKeepsDerivedData(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SetCollapsed(ctx, "int-1", widget.JobCheatSheet, true, ViewOptions{})
	require.NoError(t, err)

	app, err := f.store.GetApplication(ctx, "app-1")
	require.NoError(t, err)
	app.JobAnalysis = json.RawMessage(strings.Replace(analysisPayload, "Legacy monolith", "Pager fatigue", 1))
	require.NoError(t, f.store.PutApplication(ctx, app))

	sess, err := f.svc.Open(ctx, "int-1", ViewOptions{})
	require.NoError(t, err)
	assert.True(t, sess.Widgets[widget.JobCheatSheet].IsCollapsed())
	sheet := decode[types.CheatSheet](t, sess.Widgets[widget.JobCheatSheet].Data)
	assert.Equal(t, []string{"Pager fatigue"}, sheet.Blockers)
}

func TestGenerateCheatSheet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gen.sheet = types.CheatSheet{Summary: "Generated", Metrics: []string{"MTTR"}, Levers: []string{"Paved road"}}

	sess, err := f.svc.GenerateCheatSheet(ctx, "int-1", ViewOptions{})
	require.NoError(t, err)

	checklist := decode[widget.ChecklistData](t, sess.Widgets[widget.LiveChecklist].Data)
	assert.Equal(t, []string{"MTTR"}, checklist.Metrics)

	iv, err := f.store.GetInterview(ctx, "int-1")
	require.NoError(t, err)
	assert.Contains(t, string(iv.Copilot.WidgetData[string(widget.JobCheatSheet)]), "Generated")
}

func TestGeneratePrepOutline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gen.outline = types.PrepOutline{
		Opening:        "Lead with reliability",
		KeyStories:     []string{"s2"},
		QuestionsToAsk: []string{"How is on-call staffed?"},
	}

	_, err := f.svc.GeneratePrepOutline(ctx, "int-1", ViewOptions{})
	require.NoError(t, err)
	assert.Equal(t, "onsite", f.gen.outlineInput.Stage)
	assert.Equal(t, "Acme", f.gen.outlineInput.Company)

	iv, err := f.store.GetInterview(ctx, "int-1")
	require.NoError(t, err)
	require.NotNil(t, iv.PrepOutline)
	assert.Equal(t, "Lead with reliability", iv.PrepOutline.Opening)
	assert.Equal(t, []string{"How is on-call staffed?"}, iv.PrepOutline.QuestionsToAsk)
}

func TestGenerationErrors(t *testing.T) {
	t.Run("no generator", func(t *testing.T) {
		f := newFixture(t)
		f.svc.ai = nil
		_, err := f.svc.GenerateCheatSheet(context.Background(), "int-1", ViewOptions{})
		assert.Equal(t, errors.ErrCodeAIUnavailable, errors.CodeOf(err))
	})

	t.Run("provider failure is returned and nothing stored", func(t *testing.T) {
		f := newFixture(t)
		f.gen.err = errors.NewAIError(errors.ErrCodeAIServiceFailed, "boom", nil)
		_, err := f.svc.GenerateCheatSheet(context.Background(), "int-1", ViewOptions{})
		assert.Equal(t, errors.ErrCodeAIServiceFailed, errors.CodeOf(err))

		iv, err := f.store.GetInterview(context.Background(), "int-1")
		require.NoError(t, err)
		assert.Empty(t, iv.Copilot.WidgetData)
	})

	t.Run("no application", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.store.PutInterview(context.Background(), &types.Interview{ID: "int-3"}))
		_, err := f.svc.GeneratePrepOutline(context.Background(), "int-3", ViewOptions{})
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	})
}

func TestDraftAnswer(t *testing.T) {
	f := newFixture(t)
	f.gen.draft = types.AnswerDraft{Answer: "I moved 40 services", StoryIDs: []string{"s2"}, Confidence: "high"}

	draft, err := f.svc.DraftAnswer(context.Background(), "int-1", "  Tell me about a migration  ", []string{"earlier"})
	require.NoError(t, err)
	assert.Equal(t, "high", draft.Confidence)

	in := f.gen.answerInput
	assert.Equal(t, "Tell me about a migration", in.Question)
	assert.Equal(t, []string{"earlier"}, in.PriorAnswers)
	require.Len(t, in.Stories, 2)
	assert.Equal(t, "s2", in.Stories[0].ID, "stories matching job keywords come first")

	_, err = f.svc.DraftAnswer(context.Background(), "int-1", " ", nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestRankedStoriesKeepsStoriesWithoutIDs(t *testing.T) {
	nar := &types.Narrative{ImpactStories: []types.ImpactStory{
		{Title: "untitled one"},
		{ID: "a", Title: "A"},
		{Title: "untitled two"},
	}}
	deck := widget.RankStories(nar, nil)

	got := RankedStories(nar, deck)
	assert.Len(t, got, 3)
}

func TestRankedStoriesSharedIDs(t *testing.T) {
	nar := &types.Narrative{ImpactStories: []types.ImpactStory{
		{ID: "dup", Title: "first"},
		{ID: "b", Title: "B"},
		{ID: "dup", Title: "second"},
	}}

	tests := []struct {
		name string
		deck []widget.StoryCard
		want []string
	}{
		{name: "deck order", deck: []widget.StoryCard{{ID: "b"}, {ID: "dup"}, {ID: "dup"}}, want: []string{"B", "first", "second"}},
		{name: "one card for a shared id", deck: []widget.StoryCard{{ID: "dup"}}, want: []string{"first", "B", "second"}},
		{name: "no deck", want: []string{"first", "B", "second"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var titles []string
			for _, st := range RankedStories(nar, tt.deck) {
				titles = append(titles, st.Title)
			}
			assert.Equal(t, tt.want, titles)
		})
	}
}
