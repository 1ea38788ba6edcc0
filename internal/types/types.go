package types

import (
	"encoding/json"
	"time"
)

// Company is the employer behind an application.
type Company struct {
	Name     string `json:"name"`
	Website  string `json:"website,omitempty"`
	Industry string `json:"industry,omitempty"`
}

// Contact is a person at the company (recruiter, hiring manager, panelist).
type Contact struct {
	Name  string `json:"name"`
	Role  string `json:"role,omitempty"`
	Email string `json:"email,omitempty"`
}

// Application is a tracked job application.
type Application struct {
	ID             string    `json:"id"`
	Company        Company   `json:"company"`
	Role           string    `json:"role"`
	Status         string    `json:"status,omitempty"`
	JobDescription string    `json:"jobDescription,omitempty"`
	Contacts       []Contact `json:"contacts,omitempty"`

	// JobAnalysis is the AI analysis payload as stored, in whichever
	// version it was produced. See package analysis.
	JobAnalysis json.RawMessage `json:"jobAnalysis,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ImpactStory is one STAR-style story in a narrative.
type ImpactStory struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Situation string   `json:"situation,omitempty"`
	Action    string   `json:"action,omitempty"`
	Result    string   `json:"result,omitempty"`
	Metrics   []string `json:"metrics,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

// Narrative is a user-authored positioning profile.
type Narrative struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Positioning   string        `json:"positioning,omitempty"`
	Strengths     []string      `json:"strengths,omitempty"`
	ImpactStories []ImpactStory `json:"impactStories,omitempty"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// PrepOutline is the interview preparation plan stored on an interview.
type PrepOutline struct {
	Opening        string   `json:"opening,omitempty"`
	Positioning    string   `json:"positioning,omitempty"`
	KeyStories     []string `json:"keyStories,omitempty"`
	QuestionsToAsk []string `json:"questionsToAsk,omitempty"`
	Risks          []string `json:"risks,omitempty"`
	Closing        string   `json:"closing,omitempty"`
}

// IsZero reports whether no field of the outline is set.
func (p *PrepOutline) IsZero() bool {
	return p == nil || (p.Opening == "" && p.Positioning == "" && len(p.KeyStories) == 0 &&
		len(p.QuestionsToAsk) == 0 && len(p.Risks) == 0 && p.Closing == "")
}

// CopilotState is the persisted co-pilot screen state of an interview.
// Widget containers are kept as raw JSON so loading can tell an absent
// property from an empty one.
type CopilotState struct {
	Layout         json.RawMessage            `json:"layout,omitempty"`
	WidgetData     map[string]json.RawMessage `json:"widgetData,omitempty"`
	WidgetMetadata map[string]json.RawMessage `json:"widgetMetadata,omitempty"`
}

// Interview is one scheduled interview of an application.
type Interview struct {
	ID               string       `json:"id"`
	ApplicationID    string       `json:"applicationId"`
	NarrativeID      string       `json:"narrativeId,omitempty"`
	Stage            string       `json:"stage,omitempty"`
	Date             string       `json:"date,omitempty"` // RFC 3339 or YYYY-MM-DD
	Interviewers     []Contact    `json:"interviewers,omitempty"`
	Notes            string       `json:"notes,omitempty"`
	StrategicOpening string       `json:"strategicOpening,omitempty"`
	PrepOutline      *PrepOutline `json:"prepOutline,omitempty"`
	Copilot          CopilotState `json:"copilot"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

// InterviewPatch is a partial interview update. Nil or empty fields are
// left untouched; see store.ApplyPatch for the merge rules.
type InterviewPatch struct {
	Layout           json.RawMessage            `json:"layout,omitempty"`
	WidgetData       map[string]json.RawMessage `json:"widgetData,omitempty"`
	WidgetMetadata   map[string]json.RawMessage `json:"widgetMetadata,omitempty"`
	Notes            *string                    `json:"notes,omitempty"`
	StrategicOpening *string                    `json:"strategicOpening,omitempty"`
	PrepOutline      map[string]any             `json:"prepOutline,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p *InterviewPatch) IsEmpty() bool {
	return len(p.Layout) == 0 && len(p.WidgetData) == 0 && len(p.WidgetMetadata) == 0 &&
		p.Notes == nil && p.StrategicOpening == nil && len(p.PrepOutline) == 0
}

// CheatSheet is the condensed job cheat sheet shown during an interview.
type CheatSheet struct {
	Summary       string   `json:"summary,omitempty"`
	Keywords      []string `json:"keywords,omitempty"`
	Metrics       []string `json:"metrics,omitempty"`
	Levers        []string `json:"levers,omitempty"`
	Blockers      []string `json:"blockers,omitempty"`
	TalkingPoints []string `json:"talkingPoints,omitempty"`
}

// CheatSheetInput is what cheat sheet generation is given.
type CheatSheetInput struct {
	Company        string    `json:"company"`
	Role           string    `json:"role"`
	JobDescription string    `json:"jobDescription"`
	Narrative      Narrative `json:"narrative"`
}

// OutlineInput is what prep outline generation is given.
type OutlineInput struct {
	Company        string      `json:"company"`
	Role           string      `json:"role"`
	Stage          string      `json:"stage,omitempty"`
	JobDescription string      `json:"jobDescription"`
	Narrative      Narrative   `json:"narrative"`
	Current        PrepOutline `json:"current"`
}

// AnswerInput is what answer drafting is given.
type AnswerInput struct {
	Question       string        `json:"question"`
	Company        string        `json:"company"`
	Role           string        `json:"role"`
	JobDescription string        `json:"jobDescription,omitempty"`
	Positioning    string        `json:"positioning,omitempty"`
	Stories        []ImpactStory `json:"stories,omitempty"`
	PriorAnswers   []string      `json:"priorAnswers,omitempty"`
}

// AnswerDraft is an AI-drafted interview answer.
type AnswerDraft struct {
	Answer     string   `json:"answer"`
	StoryIDs   []string `json:"storyIds,omitempty"`
	FollowUps  []string `json:"followUps,omitempty"`
	Confidence string   `json:"confidence,omitempty"` // "low", "medium", "high"
}
