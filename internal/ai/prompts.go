package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"jobcoach/internal/types"
)

// SystemPrompts contains all system-level instructions for AI interactions
type SystemPrompts struct {
	CheatSheet  string
	PrepOutline string
	DraftAnswer string
}

// UserPrompts contains user-level prompts with placeholders for dynamic content
type UserPrompts struct {
	CheatSheet  string
	PrepOutline string
	DraftAnswer string
}

// DefaultSystemPrompts provides the default system instructions
var DefaultSystemPrompts = SystemPrompts{
	CheatSheet: `You are an interview coach who condenses job postings into a one-screen cheat sheet a candidate glances at during a live interview. Your core principles are:

- Only use facts present in the job description or the candidate's narrative
- Prefer short noun phrases over sentences
- Surface what the hiring team measures, what they can change and what stands in their way`,

	PrepOutline: `You are an interview coach helping a candidate prepare a structured plan for one interview. Your role is to:

- Build on the outline the candidate already has instead of replacing it
- Tie every key story to a need stated in the job description
- Name honest risks the interviewer is likely to probe
- Never invent experience the candidate's narrative does not contain`,

	DraftAnswer: `You are an interview coach drafting a concise spoken answer for a candidate. Your role is to:

- Answer in the candidate's voice, in under 200 words
- Ground the answer in one or two of the candidate's own stories and cite their ids
- Suggest follow-up questions the interviewer may ask next
- Rate your confidence low when the stories only loosely fit the question`,
}

// DefaultUserPrompts provides the default user prompt templates
var DefaultUserPrompts = UserPrompts{
	CheatSheet: `Create an interview cheat sheet for the role below.

**Tasks:**

1. **Summary**: one or two sentences on what this team needs from the hire.
2. **Keywords**: the terms the interviewers will listen for.
3. **Metrics**: what success is measured by in this role.
4. **Levers**: what the hire is expected to change or own.
5. **Blockers**: problems, constraints or risks the team is facing.
6. **Talking points**: short prompts linking the candidate's experience to the above.

**Company:** %s
**Role:** %s

**Job Description:**
%s

**Candidate Narrative:**
%s`,

	PrepOutline: `Update the preparation outline for the interview below.

**Company:** %s
**Role:** %s
**Stage:** %s

**Job Description:**
%s

**Candidate Narrative:**
%s

**Current Outline (JSON):**
%s

Return the full outline: opening, positioning, keyStories (story titles), questionsToAsk, risks and closing. Keep fields the candidate already wrote unless they contradict the job description.`,

	DraftAnswer: `Draft an answer to the interview question below.

**Question:** %s

**Company:** %s
**Role:** %s

**Job Description:**
%s

**Candidate Positioning:**
%s

**Candidate Stories:**
%s

**Answers Already Given In This Interview:**
%s`,
}

// formatNarrative renders a narrative as a compact prompt block.
func formatNarrative(n types.Narrative) string {
	var b strings.Builder
	if n.Positioning != "" {
		fmt.Fprintf(&b, "Positioning: %s\n", n.Positioning)
	}
	if len(n.Strengths) > 0 {
		fmt.Fprintf(&b, "Strengths: %s\n", strings.Join(n.Strengths, "; "))
	}
	if len(n.ImpactStories) > 0 {
		b.WriteString("Stories:\n")
		b.WriteString(formatStories(n.ImpactStories))
	}
	if b.Len() == 0 {
		return "(none provided)"
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatStories renders impact stories one per block, keyed by id.
func formatStories(stories []types.ImpactStory) string {
	if len(stories) == 0 {
		return "(none provided)"
	}
	var b strings.Builder
	for _, s := range stories {
		fmt.Fprintf(&b, "- [%s] %s\n", s.ID, s.Title)
		for _, part := range []struct{ label, text string }{
			{"Situation", s.Situation},
			{"Action", s.Action},
			{"Result", s.Result},
		} {
			if part.text != "" {
				fmt.Fprintf(&b, "  %s: %s\n", part.label, part.text)
			}
		}
		if len(s.Metrics) > 0 {
			fmt.Fprintf(&b, "  Metrics: %s\n", strings.Join(s.Metrics, "; "))
		}
	}
	return b.String()
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return "- " + strings.Join(items, "\n- ")
}

func formatOutline(o types.PrepOutline) string {
	raw, err := json.MarshalIndent(o, "", "  ")
	if err != nil || o.IsZero() {
		return "{}"
	}
	return string(raw)
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none provided)"
	}
	return s
}
