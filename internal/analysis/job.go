package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Section names inside a job analysis container.
const (
	SectionKeywords = "keywords"
	SectionGuidance = "guidance"
	SectionProblems = "problemAnalysis"
)

// JobAnalysis is a decoded job analysis container. A section that failed
// to decode is nil and its error is kept in SectionErrors; callers render
// nothing for it.
type JobAnalysis struct {
	Keywords      Keywords
	Guidance      Guidance
	Problems      ProblemAnalysis
	SectionErrors map[string]error
}

// DecodeJobAnalysis decodes {keywords, guidance, problemAnalysis}. Only a
// container that is not a JSON object is an error; empty input yields an
// empty analysis.
func DecodeJobAnalysis(raw json.RawMessage) (*JobAnalysis, error) {
	ja := &JobAnalysis{SectionErrors: map[string]error{}}

	if _, err := parse(raw); errors.Is(err, ErrEmptyPayload) {
		return ja, nil
	} else if err != nil {
		return nil, err
	}

	var sections map[string]json.RawMessage
	if err := json.Unmarshal(raw, &sections); err != nil {
		return nil, fmt.Errorf("%w: job analysis container: %v", ErrUnknownShape, err)
	}

	if data, ok := sections[SectionKeywords]; ok {
		if k, err := DecodeKeywords(data); err != nil {
			ja.SectionErrors[SectionKeywords] = err
		} else {
			ja.Keywords = k
		}
	}
	if data, ok := sections[SectionGuidance]; ok {
		if g, err := DecodeGuidance(data); err != nil {
			ja.SectionErrors[SectionGuidance] = err
		} else {
			ja.Guidance = g
		}
	}
	if data, ok := sections[SectionProblems]; ok {
		if p, err := DecodeProblemAnalysis(data); err != nil {
			ja.SectionErrors[SectionProblems] = err
		} else {
			ja.Problems = p
		}
	}

	return ja, nil
}

// Err joins the section errors in section-name order, or returns nil.
func (j *JobAnalysis) Err() error {
	if j == nil || len(j.SectionErrors) == 0 {
		return nil
	}
	names := make([]string, 0, len(j.SectionErrors))
	for name := range j.SectionErrors {
		names = append(names, name)
	}
	sort.Strings(names)

	errs := make([]error, 0, len(names))
	for _, name := range names {
		errs = append(errs, fmt.Errorf("%s: %w", name, j.SectionErrors[name]))
	}
	return errors.Join(errs...)
}

// Terms returns the keyword terms, or nil when keywords are missing.
func (j *JobAnalysis) Terms() []string {
	if j == nil || j.Keywords == nil {
		return nil
	}
	return j.Keywords.Terms()
}

// Metrics returns the success metrics, or nil.
func (j *JobAnalysis) Metrics() []string {
	if j == nil || j.Problems == nil {
		return nil
	}
	return j.Problems.Metrics()
}

// Levers returns the candidate levers, or nil.
func (j *JobAnalysis) Levers() []string {
	if j == nil || j.Problems == nil {
		return nil
	}
	return j.Problems.Levers()
}

// Blockers returns the blockers, or nil.
func (j *JobAnalysis) Blockers() []string {
	if j == nil || j.Problems == nil {
		return nil
	}
	return j.Problems.Blockers()
}

// GuidanceSummary returns the guidance summary, or "".
func (j *JobAnalysis) GuidanceSummary() string {
	if j == nil || j.Guidance == nil {
		return ""
	}
	return j.Guidance.Summary()
}

// GuidanceBullets returns the flattened guidance bullets, or nil.
func (j *JobAnalysis) GuidanceBullets() []string {
	if j == nil || j.Guidance == nil {
		return nil
	}
	return j.Guidance.Bullets()
}

// Summary is a version-independent view of a job analysis.
type Summary struct {
	KeywordsVersion Version           `json:"keywordsVersion,omitempty"`
	GuidanceVersion Version           `json:"guidanceVersion,omitempty"`
	ProblemsVersion Version           `json:"problemsVersion,omitempty"`
	Keywords        []string          `json:"keywords,omitempty"`
	Guidance        string            `json:"guidance,omitempty"`
	Tips            []string          `json:"tips,omitempty"`
	Problems        []string          `json:"problems,omitempty"`
	Metrics         []string          `json:"metrics,omitempty"`
	Levers          []string          `json:"levers,omitempty"`
	Blockers        []string          `json:"blockers,omitempty"`
	Errors          map[string]string `json:"errors,omitempty"`
}

// Summarize flattens the analysis into a Summary.
func (j *JobAnalysis) Summarize() Summary {
	s := Summary{
		Keywords: j.Terms(),
		Guidance: j.GuidanceSummary(),
		Tips:     j.GuidanceBullets(),
		Metrics:  j.Metrics(),
		Levers:   j.Levers(),
		Blockers: j.Blockers(),
	}
	if j == nil {
		return s
	}
	if j.Keywords != nil {
		s.KeywordsVersion = j.Keywords.Version()
	}
	if j.Guidance != nil {
		s.GuidanceVersion = j.Guidance.Version()
	}
	if j.Problems != nil {
		s.ProblemsVersion = j.Problems.Version()
		s.Problems = j.Problems.Problems()
	}
	if len(j.SectionErrors) > 0 {
		s.Errors = make(map[string]string, len(j.SectionErrors))
		for name, err := range j.SectionErrors {
			s.Errors[name] = err.Error()
		}
	}
	return s
}
