package analysis

import (
	"encoding/json"
	"strings"
)

// Guidance is the decoded interview guidance payload, either *GuidanceV1
// or *GuidanceV2.
type Guidance interface {
	Version() Version
	Summary() string
	// Bullets flattens the guidance into a list of short points.
	Bullets() []string
	isGuidance()
}

// GuidanceV1 is free text plus tips.
type GuidanceV1 struct {
	Guidance string   `json:"guidance,omitempty"`
	Tips     []string `json:"tips,omitempty"`
}

func (*GuidanceV1) Version() Version { return V1 }
func (*GuidanceV1) isGuidance()      {}

func (g *GuidanceV1) Summary() string { return strings.TrimSpace(g.Guidance) }

func (g *GuidanceV1) Bullets() []string { return dedupe(g.Tips) }

// GuidanceSection is a titled group of bullets.
type GuidanceSection struct {
	Title   string   `json:"title"`
	Bullets []string `json:"bullets,omitempty"`
}

// GuidanceV2 is sectioned guidance with a summary.
type GuidanceV2 struct {
	SummaryText string            `json:"summary,omitempty"`
	Sections    []GuidanceSection `json:"sections"`
}

func (*GuidanceV2) Version() Version { return V2 }
func (*GuidanceV2) isGuidance()      {}

func (g *GuidanceV2) Summary() string { return strings.TrimSpace(g.SummaryText) }

func (g *GuidanceV2) Bullets() []string {
	var out []string
	for _, s := range g.Sections {
		out = append(out, s.Bullets...)
	}
	return dedupe(out)
}

var guidanceMarkers = []marker{
	{version: V2, fields: []string{"sections"}},
	{version: V1, fields: []string{"guidance", "tips"}},
}

// DecodeGuidance decodes a guidance payload. A bare JSON string is accepted
// as V1 guidance text.
func DecodeGuidance(raw json.RawMessage) (Guidance, error) {
	doc, err := parse(raw)
	if err != nil {
		return nil, err
	}
	if text, ok := doc.(string); ok {
		if strings.TrimSpace(text) == "" {
			return nil, ErrEmptyPayload
		}
		doc = map[string]any{"guidance": text}
	}

	var v1 GuidanceV1
	var v2 GuidanceV2
	v, err := decodeVariant("guidance", doc, guidanceMarkers, func(v Version) any {
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
