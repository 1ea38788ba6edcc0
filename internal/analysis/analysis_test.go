package analysis

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestDecodeKeywords(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantVersion Version
		wantTerms   []string
		wantErr     error
		wantSchema  bool
	}{
		{
			name:        "v1 object",
			input:       `{"keywords":["Go","Kubernetes","go"]}`,
			wantVersion: V1,
			wantTerms:   []string{"Go", "Kubernetes"},
		},
		{
			name:        "v1 bare array",
			input:       `["SQL"," ","Terraform"]`,
			wantVersion: V1,
			wantTerms:   []string{"SQL", "Terraform"},
		},
		{
			name: "v2 ordered by priority",
			input: `{"technicalKeywords":[{"keyword":"gRPC","priority":"low"},{"keyword":"Go","priority":"high"}],
				"softSkillKeywords":[{"keyword":"Mentoring"}]}`,
			wantVersion: V2,
			wantTerms:   []string{"Go", "gRPC", "Mentoring"},
		},
		{
			name:        "v2 wins when both markers present",
			input:       `{"keywords":["old"],"technicalKeywords":[{"keyword":"new"}]}`,
			wantVersion: V2,
			wantTerms:   []string{"new"},
		},
		{name: "empty input", input: ``, wantErr: ErrEmptyPayload},
		{name: "null", input: `null`, wantErr: ErrEmptyPayload},
		{name: "empty object", input: `{}`, wantErr: ErrEmptyPayload},
		{name: "no markers", input: `{"skills":["Go"]}`, wantErr: ErrUnknownShape},
		{name: "malformed", input: `{"keywords":`, wantErr: ErrMalformed},
		{name: "v1 wrong item type", input: `{"keywords":[1,2]}`, wantSchema: true},
		{name: "v2 bad priority", input: `{"technicalKeywords":[{"keyword":"Go","priority":"urgent"}]}`, wantSchema: true},
		{name: "v2 missing keyword", input: `{"softSkillKeywords":[{"priority":"high"}]}`, wantSchema: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeKeywords(json.RawMessage(tt.input))

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected error %v, got %v", tt.wantErr, err)
				}
				return
			}
			if tt.wantSchema {
				var schemaErr *SchemaError
				if !errors.As(err, &schemaErr) {
					t.Fatalf("Expected schema error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got.Version() != tt.wantVersion {
				t.Errorf("Expected version %s, got %s", tt.wantVersion, got.Version())
			}
			if !reflect.DeepEqual(got.Terms(), tt.wantTerms) {
				t.Errorf("Expected terms %v, got %v", tt.wantTerms, got.Terms())
			}
		})
	}
}

func TestDecodeGuidance(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantVersion Version
		wantSummary string
		wantBullets []string
		wantErr     bool
	}{
		{
			name:        "v1 text and tips",
			input:       `{"guidance":" Lead with impact. ","tips":["Quantify","Be brief"]}`,
			wantVersion: V1,
			wantSummary: "Lead with impact.",
			wantBullets: []string{"Quantify", "Be brief"},
		},
		{
			name:        "v1 bare string",
			input:       `"Talk about scale"`,
			wantVersion: V1,
			wantSummary: "Talk about scale",
			wantBullets: []string{},
		},
		{
			name:        "v2 sections flattened",
			input:       `{"summary":"Platform role","sections":[{"title":"Do","bullets":["Mention SLOs"]},{"title":"Avoid","bullets":["Jargon","mention slos"]}]}`,
			wantVersion: V2,
			wantSummary: "Platform role",
			wantBullets: []string{"Mention SLOs", "Jargon"},
		},
		{name: "blank string", input: `"   "`, wantErr: true},
		{name: "v2 section without title", input: `{"sections":[{"bullets":["x"]}]}`, wantErr: true},
		{name: "array is not guidance", input: `["tip"]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeGuidance(json.RawMessage(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Expected error, got variant %#v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got.Version() != tt.wantVersion {
				t.Errorf("Expected version %s, got %s", tt.wantVersion, got.Version())
			}
			if got.Summary() != tt.wantSummary {
				t.Errorf("Expected summary %q, got %q", tt.wantSummary, got.Summary())
			}
			if !reflect.DeepEqual(got.Bullets(), tt.wantBullets) {
				t.Errorf("Expected bullets %v, got %v", tt.wantBullets, got.Bullets())
			}
		})
	}
}

func TestDecodeProblemAnalysis(t *testing.T) {
	v2 := `{
		"coreProblems":[
			{"problem":"Slow deploys","evidence":"JD mentions weekly releases","leverage":"CI pipeline rebuild"},
			{"problem":"On-call fatigue","leverage":""}
		],
		"successMetrics":["Deploy daily","MTTR < 1h"],
		"blockers":["Legacy monolith"]
	}`

	got, err := DecodeProblemAnalysis(json.RawMessage(v2))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got.Version() != V2 {
		t.Fatalf("Expected v2, got %s", got.Version())
	}
	if want := []string{"Slow deploys", "On-call fatigue"}; !reflect.DeepEqual(got.Problems(), want) {
		t.Errorf("Expected problems %v, got %v", want, got.Problems())
	}
	if want := []string{"Deploy daily", "MTTR < 1h"}; !reflect.DeepEqual(got.Metrics(), want) {
		t.Errorf("Expected metrics %v, got %v", want, got.Metrics())
	}
	if want := []string{"CI pipeline rebuild"}; !reflect.DeepEqual(got.Levers(), want) {
		t.Errorf("Expected levers %v, got %v", want, got.Levers())
	}
	if want := []string{"Legacy monolith"}; !reflect.DeepEqual(got.Blockers(), want) {
		t.Errorf("Expected blockers %v, got %v", want, got.Blockers())
	}

	v1, err := DecodeProblemAnalysis(json.RawMessage(`{"problems":["Hiring"]}`))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if v1.Version() != V1 || v1.Metrics() != nil || v1.Levers() != nil {
		t.Errorf("Expected bare v1 analysis, got %#v", v1)
	}

	if _, err := DecodeProblemAnalysis(json.RawMessage(`{"coreProblems":[{"problem":""}]}`)); err == nil {
		t.Error("Expected schema error for empty problem")
	}
}

func TestDecodeJobAnalysis(t *testing.T) {
	t.Run("mixed versions with a broken section", func(t *testing.T) {
		raw := `{
			"keywords":{"keywords":["Go"]},
			"guidance":{"sections":"not-a-list"},
			"problemAnalysis":{"coreProblems":[{"problem":"Scale","leverage":"Sharding"}],"successMetrics":["p99 < 100ms"]}
		}`
		ja, err := DecodeJobAnalysis(json.RawMessage(raw))
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if ja.Keywords == nil || ja.Keywords.Version() != V1 {
			t.Errorf("Expected v1 keywords, got %#v", ja.Keywords)
		}
		if ja.Guidance != nil {
			t.Errorf("Expected broken guidance to be dropped, got %#v", ja.Guidance)
		}
		if _, ok := ja.SectionErrors[SectionGuidance]; !ok {
			t.Error("Expected guidance section error to be recorded")
		}
		if ja.Err() == nil {
			t.Error("Expected joined error")
		}
		if want := []string{"p99 < 100ms"}; !reflect.DeepEqual(ja.Metrics(), want) {
			t.Errorf("Expected metrics %v, got %v", want, ja.Metrics())
		}

		s := ja.Summarize()
		if s.KeywordsVersion != V1 || s.ProblemsVersion != V2 || s.GuidanceVersion != 0 {
			t.Errorf("Unexpected versions in summary: %+v", s)
		}
		if s.Errors[SectionGuidance] == "" {
			t.Error("Expected guidance error in summary")
		}
	})

	t.Run("empty container", func(t *testing.T) {
		ja, err := DecodeJobAnalysis(nil)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if ja.Terms() != nil || ja.Err() != nil {
			t.Errorf("Expected empty analysis, got %+v", ja)
		}
	})

	t.Run("non-object container", func(t *testing.T) {
		if _, err := DecodeJobAnalysis(json.RawMessage(`[1,2]`)); !errors.Is(err, ErrUnknownShape) {
			t.Errorf("Expected ErrUnknownShape, got %v", err)
		}
	})

	t.Run("nil analysis accessors", func(t *testing.T) {
		var ja *JobAnalysis
		if ja.Levers() != nil || ja.GuidanceSummary() != "" || ja.Err() != nil {
			t.Error("Expected nil-safe accessors")
		}
	})
}

func TestSchemasCompile(t *testing.T) {
	schemas, err := compiledSchemas()
	if err != nil {
		t.Fatalf("Failed to compile schemas: %v", err)
	}
	for _, name := range []string{"keywords.v1", "keywords.v2", "guidance.v1", "guidance.v2", "problems.v1", "problems.v2"} {
		if schemas[name] == nil {
			t.Errorf("Expected schema %s to be compiled", name)
		}
	}
}
