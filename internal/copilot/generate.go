package copilot

import (
	"context"
	"encoding/json"
	"strings"

	"jobcoach/internal/ai"
	"jobcoach/internal/errors"
	"jobcoach/internal/observability"
	"jobcoach/internal/types"
	"jobcoach/internal/widget"
)

func (s *Service) generator() (Generator, error) {
	if s.ai == nil {
		return nil, errors.NewAIError(errors.ErrCodeAIUnavailable, "AI generation is not configured", nil)
	}
	return s.ai, nil
}

// generate runs fn under AI metrics and tracing.
func generate[T any](ctx context.Context, s *Service, operation string, fn func(context.Context) (T, *ai.TokenUsage, error)) (T, error) {
	var out T
	err := s.metrics.TrackAIOperationWithTokens(ctx, operation, func(ctx context.Context) *observability.AIOperationResult {
		result, usage, err := fn(ctx)
		out = result
		res := &observability.AIOperationResult{Error: err}
		if usage != nil {
			res.TokenUsage = &observability.TokenUsage{
				InputTokens:  usage.InputTokens,
				OutputTokens: usage.OutputTokens,
				TotalTokens:  usage.TotalTokens,
			}
		}
		return res
	})
	return out, err
}

func requireApplication(sess *session) (*types.Application, error) {
	app := sess.wctx.Application
	if app == nil {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidRequest,
			"interview has no application to generate from", nil).
			WithContext("interview_id", sess.interview.ID)
	}
	return app, nil
}

func narrativeOf(sess *session) types.Narrative {
	if sess.wctx.Narrative == nil {
		return types.Narrative{}
	}
	return *sess.wctx.Narrative
}

// GenerateCheatSheet drafts the job cheat sheet with AI and stores it
// along with the derived live checklist.
func (s *Service) GenerateCheatSheet(ctx context.Context, interviewID string, opts ViewOptions) (*Session, error) {
	var out *Session
	err := s.track(ctx, "generate_cheatsheet", func() error {
		gen, err := s.generator()
		if err != nil {
			return err
		}
		sess, err := s.load(ctx, interviewID)
		if err != nil {
			return err
		}
		app, err := requireApplication(sess)
		if err != nil {
			return err
		}

		sheet, err := generate(ctx, s, "cheatsheet", func(ctx context.Context) (types.CheatSheet, *ai.TokenUsage, error) {
			return gen.GenerateCheatSheet(ctx, types.CheatSheetInput{
				Company:        app.Company.Name,
				Role:           app.Role,
				JobDescription: app.JobDescription,
				Narrative:      narrativeOf(sess),
			})
		})
		if err != nil {
			return err
		}

		if err := s.setGenerated(sess, widget.JobCheatSheet, sheet); err != nil {
			return err
		}
		if err := s.persistWidgets(ctx, sess, withDependents(sess.reg, widget.JobCheatSheet)...); err != nil {
			return err
		}
		out = s.render(sess, opts)
		return nil
	})
	return out, err
}

// GeneratePrepOutline drafts the prep outline with AI, starting from the
// current outline, and stores it in the outline and questions widgets.
func (s *Service) GeneratePrepOutline(ctx context.Context, interviewID string, opts ViewOptions) (*Session, error) {
	var out *Session
	err := s.track(ctx, "generate_outline", func() error {
		gen, err := s.generator()
		if err != nil {
			return err
		}
		sess, err := s.load(ctx, interviewID)
		if err != nil {
			return err
		}
		app, err := requireApplication(sess)
		if err != nil {
			return err
		}

		current := sess.wctx.PrepOutline
		if sess.interview.PrepOutline != nil {
			current = *sess.interview.PrepOutline
		}

		outline, err := generate(ctx, s, "outline", func(ctx context.Context) (types.PrepOutline, *ai.TokenUsage, error) {
			return gen.GeneratePrepOutline(ctx, types.OutlineInput{
				Company:        app.Company.Name,
				Role:           app.Role,
				Stage:          sess.interview.Stage,
				JobDescription: app.JobDescription,
				Narrative:      narrativeOf(sess),
				Current:        current,
			})
		})
		if err != nil {
			return err
		}

		ids := make([]widget.WidgetID, 0, 2)
		if sess.reg.Has(widget.PrepOutline) {
			if err := s.setGenerated(sess, widget.PrepOutline, widget.OutlineData{
				Opening:     outline.Opening,
				Positioning: outline.Positioning,
				KeyStories:  nonNil(outline.KeyStories),
				Risks:       nonNil(outline.Risks),
				Closing:     outline.Closing,
			}); err != nil {
				return err
			}
			ids = append(ids, widget.PrepOutline)
		}
		if sess.reg.Has(widget.QuestionsToAsk) {
			if err := s.setGenerated(sess, widget.QuestionsToAsk, widget.QuestionsData{
				Questions: nonNil(outline.QuestionsToAsk),
			}); err != nil {
				return err
			}
			ids = append(ids, widget.QuestionsToAsk)
		}
		if err := s.persistWidgets(ctx, sess, ids...); err != nil {
			return err
		}
		out = s.render(sess, opts)
		return nil
	})
	return out, err
}

func (s *Service) setGenerated(sess *session, id widget.WidgetID, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.NewInternalError(errors.ErrCodeInvalidWidgetData, "failed to encode generated content", err)
	}
	if err := sess.states.SetData(sess.reg, id, data, s.now()); err != nil {
		return widgetErr(id, err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// DraftAnswer drafts an answer to an interview question from the
// narrative's stories. Nothing is stored.
func (s *Service) DraftAnswer(ctx context.Context, interviewID, question string, priorAnswers []string) (*types.AnswerDraft, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidRequest, "question is required", nil)
	}

	var out *types.AnswerDraft
	err := s.track(ctx, "draft_answer", func() error {
		gen, err := s.generator()
		if err != nil {
			return err
		}
		sess, err := s.load(ctx, interviewID)
		if err != nil {
			return err
		}

		input := types.AnswerInput{
			Question:     question,
			PriorAnswers: priorAnswers,
		}
		if app := sess.wctx.Application; app != nil {
			input.Company = app.Company.Name
			input.Role = app.Role
			input.JobDescription = app.JobDescription
		}
		if nar := sess.wctx.Narrative; nar != nil {
			input.Positioning = nar.Positioning
			input.Stories = RankedStories(nar, sess.wctx.StoryDeck)
		}

		draft, err := generate(ctx, s, "answer", func(ctx context.Context) (types.AnswerDraft, *ai.TokenUsage, error) {
			return gen.DraftAnswer(ctx, input)
		})
		if err != nil {
			return err
		}
		out = &draft
		return nil
	})
	return out, err
}

// RankedStories returns the narrative's stories in story deck order.
// Stories missing from the deck follow in narrative order. Each story is
// returned once; cards sharing an ID take the stories with that ID in
// narrative order.
func RankedStories(nar *types.Narrative, deck []widget.StoryCard) []types.ImpactStory {
	pending := make(map[string][]int, len(nar.ImpactStories))
	for i, st := range nar.ImpactStories {
		if st.ID != "" {
			pending[st.ID] = append(pending[st.ID], i)
		}
	}

	out := make([]types.ImpactStory, 0, len(nar.ImpactStories))
	used := make([]bool, len(nar.ImpactStories))
	for _, card := range deck {
		idx := pending[card.ID]
		if len(idx) == 0 {
			continue
		}
		pending[card.ID] = idx[1:]
		used[idx[0]] = true
		out = append(out, nar.ImpactStories[idx[0]])
	}
	for i, st := range nar.ImpactStories {
		if !used[i] {
			out = append(out, st)
		}
	}
	return out
}
