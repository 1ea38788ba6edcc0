package analysis

import (
	"encoding/json"
	"sort"
)

// Keywords is the decoded keyword payload. It is either *KeywordsV1 or
// *KeywordsV2.
type Keywords interface {
	Version() Version
	// Terms returns the keywords in display order, deduplicated.
	Terms() []string
	isKeywords()
}

// KeywordsV1 is a flat keyword list.
type KeywordsV1 struct {
	Keywords []string `json:"keywords"`
}

func (*KeywordsV1) Version() Version { return V1 }
func (*KeywordsV1) isKeywords()      {}

func (k *KeywordsV1) Terms() []string {
	return dedupe(k.Keywords)
}

// PrioritizedKeyword is a keyword with an optional priority.
type PrioritizedKeyword struct {
	Keyword  string `json:"keyword"`
	Priority string `json:"priority,omitempty"`
}

// KeywordsV2 splits keywords into technical and soft skills with priorities.
type KeywordsV2 struct {
	TechnicalKeywords []PrioritizedKeyword `json:"technicalKeywords,omitempty"`
	SoftSkillKeywords []PrioritizedKeyword `json:"softSkillKeywords,omitempty"`
}

func (*KeywordsV2) Version() Version { return V2 }
func (*KeywordsV2) isKeywords()      {}

// Terms lists technical keywords before soft skills, each group ordered by
// priority. Order within a priority is preserved.
func (k *KeywordsV2) Terms() []string {
	terms := append(byPriority(k.TechnicalKeywords), byPriority(k.SoftSkillKeywords)...)
	return dedupe(terms)
}

func priorityRank(p string) int {
	switch p {
	case "high":
		return 0
	case "medium":
		return 1
	case "low":
		return 2
	default:
		return 1
	}
}

func byPriority(in []PrioritizedKeyword) []string {
	sorted := make([]PrioritizedKeyword, len(in))
	copy(sorted, in)
	sort.SliceStable(sorted, func(i, j int) bool {
		return priorityRank(sorted[i].Priority) < priorityRank(sorted[j].Priority)
	})
	out := make([]string, len(sorted))
	for i, kw := range sorted {
		out[i] = kw.Keyword
	}
	return out
}

var keywordMarkers = []marker{
	{version: V2, fields: []string{"technicalKeywords", "softSkillKeywords"}},
	{version: V1, fields: []string{"keywords"}},
}

// DecodeKeywords decodes a keyword payload. A bare JSON array of strings is
// accepted as V1.
func DecodeKeywords(raw json.RawMessage) (Keywords, error) {
	doc, err := parse(raw)
	if err != nil {
		return nil, err
	}
	if list, ok := doc.([]any); ok {
		doc = map[string]any{"keywords": list}
	}

	var v1 KeywordsV1
	var v2 KeywordsV2
	v, err := decodeVariant("keywords", doc, keywordMarkers, func(v Version) any {
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
