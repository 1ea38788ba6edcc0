package analysis

import (
	"encoding/json"
)

// ProblemAnalysis is the decoded "what problems is this hire meant to
// solve" payload, either *ProblemsV1 or *ProblemsV2.
type ProblemAnalysis interface {
	Version() Version
	Problems() []string
	Metrics() []string
	Levers() []string
	Blockers() []string
	isProblemAnalysis()
}

// ProblemsV1 is a flat problem list. It carries no metrics, levers or
// blockers.
type ProblemsV1 struct {
	ProblemList []string `json:"problems"`
}

func (*ProblemsV1) Version() Version   { return V1 }
func (*ProblemsV1) isProblemAnalysis() {}

func (p *ProblemsV1) Problems() []string { return dedupe(p.ProblemList) }
func (*ProblemsV1) Metrics() []string    { return nil }
func (*ProblemsV1) Levers() []string     { return nil }
func (*ProblemsV1) Blockers() []string   { return nil }

// CoreProblem is one problem with supporting evidence and the lever the
// candidate can pull on it.
type CoreProblem struct {
	Problem  string `json:"problem"`
	Evidence string `json:"evidence,omitempty"`
	Leverage string `json:"leverage,omitempty"`
}

// ProblemsV2 is structured problem analysis.
type ProblemsV2 struct {
	CoreProblems   []CoreProblem `json:"coreProblems"`
	SuccessMetrics []string      `json:"successMetrics,omitempty"`
	BlockerList    []string      `json:"blockers,omitempty"`
}

func (*ProblemsV2) Version() Version   { return V2 }
func (*ProblemsV2) isProblemAnalysis() {}

func (p *ProblemsV2) Problems() []string {
	out := make([]string, 0, len(p.CoreProblems))
	for _, cp := range p.CoreProblems {
		out = append(out, cp.Problem)
	}
	return dedupe(out)
}

func (p *ProblemsV2) Metrics() []string { return dedupe(p.SuccessMetrics) }

func (p *ProblemsV2) Levers() []string {
	out := make([]string, 0, len(p.CoreProblems))
	for _, cp := range p.CoreProblems {
		out = append(out, cp.Leverage)
	}
	return dedupe(out)
}

func (p *ProblemsV2) Blockers() []string { return dedupe(p.BlockerList) }

var problemMarkers = []marker{
	{version: V2, fields: []string{"coreProblems"}},
	{version: V1, fields: []string{"problems"}},
}

// DecodeProblemAnalysis decodes a problem analysis payload.
func DecodeProblemAnalysis(raw json.RawMessage) (ProblemAnalysis, error) {
	doc, err := parse(raw)
	if err != nil {
		return nil, err
	}

	var v1 ProblemsV1
	var v2 ProblemsV2
	v, err := decodeVariant("problems", doc, problemMarkers, func(v Version) any {
		if v == V2 {
			return &v2
		}
		return &v1
	})
	if err != nil {
		return nil, err
	}
	if v == V2 {
		return &v2, nil
	}
	return &v1, nil
}
