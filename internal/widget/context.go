package widget

import (
	"fmt"
	"sort"
	"strings"

	"jobcoach/internal/analysis"
	"jobcoach/internal/types"
)

const (
	outlineStoryCount    = 3
	outlineQuestionCount = 3
)

// Context is everything widget defaults are computed from. Application,
// Interview and Narrative may be nil.
type Context struct {
	Application *types.Application
	Interview   *types.Interview
	Narrative   *types.Narrative

	// PrepOutline is the interview's stored outline, or one derived from
	// the narrative and job analysis when none is stored.
	PrepOutline types.PrepOutline
	// StoryDeck holds the narrative's impact stories ranked by keyword
	// overlap with the job analysis.
	StoryDeck []StoryCard
	Analysis  *analysis.JobAnalysis

	// AnalysisErr is set when the stored job analysis could not be fully
	// decoded. The affected sections are left empty.
	AnalysisErr error
}

// StoryCard is an impact story as shown in the story deck.
type StoryCard struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Summary         string   `json:"summary,omitempty"`
	Metrics         []string `json:"metrics,omitempty"`
	MatchedKeywords []string `json:"matchedKeywords,omitempty"`
	Score           int      `json:"score"`
}

// BuildContext decodes the application's job analysis and derives the
// prep outline and story deck.
func BuildContext(app *types.Application, interview *types.Interview, narrative *types.Narrative) *Context {
	ctx := &Context{
		Application: app,
		Interview:   interview,
		Narrative:   narrative,
	}

	if app != nil {
		ja, err := analysis.DecodeJobAnalysis(app.JobAnalysis)
		if err != nil {
			ctx.AnalysisErr = err
		} else {
			ctx.Analysis = ja
			ctx.AnalysisErr = ja.Err()
		}
	}

	ctx.StoryDeck = RankStories(narrative, ctx.Analysis.Terms())

	if interview != nil && !interview.PrepOutline.IsZero() {
		ctx.PrepOutline = *interview.PrepOutline
	} else {
		ctx.PrepOutline = deriveOutline(narrative, ctx.Analysis, ctx.StoryDeck)
	}

	return ctx
}

// RankStories orders the narrative's stories by how many keywords each
// mentions. Ties keep narrative order.
func RankStories(narrative *types.Narrative, keywords []string) []StoryCard {
	if narrative == nil {
		return []StoryCard{}
	}

	cards := make([]StoryCard, 0, len(narrative.ImpactStories))
	for _, story := range narrative.ImpactStories {
		parts := []string{story.Title, story.Situation, story.Action, story.Result}
		parts = append(parts, story.Metrics...)
		parts = append(parts, story.Tags...)
		haystack := strings.ToLower(strings.Join(parts, " "))

		var matched []string
		for _, kw := range keywords {
			if strings.Contains(haystack, strings.ToLower(kw)) {
				matched = append(matched, kw)
			}
		}

		cards = append(cards, StoryCard{
			ID:              story.ID,
			Title:           story.Title,
			Summary:         storySummary(story),
			Metrics:         story.Metrics,
			MatchedKeywords: matched,
			Score:           len(matched),
		})
	}

	sort.SliceStable(cards, func(i, j int) bool {
		return cards[i].Score > cards[j].Score
	})
	return cards
}

func storySummary(s types.ImpactStory) string {
	for _, text := range []string{s.Result, s.Action, s.Situation} {
		if text = strings.TrimSpace(text); text != "" {
			return text
		}
	}
	return ""
}

func deriveOutline(narrative *types.Narrative, ja *analysis.JobAnalysis, deck []StoryCard) types.PrepOutline {
	var outline types.PrepOutline
	if narrative != nil {
		outline.Positioning = narrative.Positioning
	}

	for i := 0; i < len(deck) && i < outlineStoryCount; i++ {
		outline.KeyStories = append(outline.KeyStories, deck[i].Title)
	}

	problems := []string(nil)
	if ja != nil && ja.Problems != nil {
		problems = ja.Problems.Problems()
	}
	for i := 0; i < len(problems) && i < outlineQuestionCount; i++ {
		outline.QuestionsToAsk = append(outline.QuestionsToAsk,
			fmt.Sprintf("How is the team approaching %s today?", lowerFirst(problems[i])))
	}

	outline.Risks = ja.Blockers()
	return outline
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
