package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobcoach/internal/analysis"
	"jobcoach/internal/common"
	"jobcoach/internal/config"
	"jobcoach/internal/errors"
	"jobcoach/internal/widget"
)

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			DefaultFormat:    "json",
			SupportedFormats: []string{"json", "text", "markdown"},
		},
	}
}

// run executes the root command with args. Command flags are package
// globals, so they are reset first.
func run(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	layoutConfig, sessionConfig, analysisConfig = common.CommandConfig{}, common.CommandConfig{}, common.CommandConfig{}
	layoutCollapsed = nil
	sessionMode, sessionBreakpoint = "", ""
	analysisKind = "job"

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := Execute(context.Background(), cfg, errors.Discard())
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLayoutMerge(t *testing.T) {
	path := writeFile(t, "layout.json", `{
		"lg": [
			{"i": "notes", "x": 0, "y": 0, "w": 12, "h": 5},
			{"i": "weather", "x": 0, "y": 5, "w": 4, "h": 4},
			{"i": "notes", "x": 6, "y": 6, "w": 6, "h": 6}
		],
		"xl": []
	}`)

	out, err := run(t, testConfig(), "layout", "merge", path, "--format", "json", "--collapsed", "storyDeck")
	require.NoError(t, err)

	var result widget.MergeResult
	require.NoError(t, json.Unmarshal([]byte(out), &result), out)
	assert.Equal(t, 1, result.Report.DroppedUnknown)
	assert.Equal(t, 1, result.Report.DroppedDuplicates)
	assert.Equal(t, []string{"xl"}, result.Report.DroppedBreakpoints)

	reg := widget.DefaultRegistry()
	require.Len(t, result.Layout[widget.LG], reg.Len())
	notes, ok := result.Layout.Find(widget.LG, widget.Notes)
	require.True(t, ok)
	assert.Equal(t, 12, notes.W)
	deck, ok := result.Layout.Find(widget.LG, widget.StoryDeck)
	require.True(t, ok)
	assert.Equal(t, widget.CollapsedHeight, deck.H)
}

func TestLayoutMergeErrors(t *testing.T) {
	_, err := run(t, testConfig(), "layout", "merge", writeFile(t, "bad.json", `["lg"]`), "--format", "json")
	assert.Equal(t, errors.ErrCodeInvalidLayout, errors.CodeOf(err))

	_, err = run(t, testConfig(), "layout", "merge", writeFile(t, "ok.json", `{}`), "--format", "json", "--collapsed", "weather")
	assert.Equal(t, errors.ErrCodeUnknownWidget, errors.CodeOf(err))

	_, err = run(t, testConfig(), "layout", "merge", writeFile(t, "ok.json", `{}`), "--format", "yaml")
	assert.Error(t, err, "format not in supported formats")
}

func TestLayoutMergeWithOverrides(t *testing.T) {
	cfg := testConfig()
	cfg.Widgets.OverridesFile = writeFile(t, "widgets.yaml", `
widgets:
  notes:
    title: Scratchpad
    layouts:
      lg: {w: 8}
`)

	out, err := run(t, cfg, "layout", "merge", writeFile(t, "empty.json", `{}`), "--format", "json")
	require.NoError(t, err)

	var result widget.MergeResult
	require.NoError(t, json.Unmarshal([]byte(out), &result), out)
	assert.True(t, result.Report.UsedDefaults)
	notes, ok := result.Layout.Find(widget.LG, widget.Notes)
	require.True(t, ok)
	assert.Equal(t, 8, notes.W)
}

func TestAnalysisDecode(t *testing.T) {
	tests := []struct {
		name     string
		kind     string
		payload  string
		wantErr  string
		validate func(t *testing.T, s analysis.Summary)
	}{
		{
			name:    "job container",
			kind:    "job",
			payload: `{"keywords": {"keywords": ["Go", "Kubernetes"]}}`,
			validate: func(t *testing.T, s analysis.Summary) {
				assert.Equal(t, analysis.V1, s.KeywordsVersion)
				assert.Equal(t, []string{"Go", "Kubernetes"}, s.Keywords)
			},
		},
		{
			name:    "keywords section v2",
			kind:    "keywords",
			payload: `{"technicalKeywords": [{"keyword": "Go", "priority": "low"}, {"keyword": "SQL", "priority": "high"}]}`,
			validate: func(t *testing.T, s analysis.Summary) {
				assert.Equal(t, analysis.V2, s.KeywordsVersion)
				assert.Equal(t, []string{"SQL", "Go"}, s.Keywords)
			},
		},
		{
			name:    "unknown shape",
			kind:    "keywords",
			payload: `{"colour": "blue"}`,
			wantErr: errors.ErrCodeUnknownShape,
		},
		{
			name:    "unknown kind",
			kind:    "salary",
			payload: `{}`,
			wantErr: errors.ErrCodeInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "payload.json", tt.payload)
			out, err := run(t, testConfig(), "analysis", "decode", path, "--kind", tt.kind, "--format", "json")
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, errors.CodeOf(err))
				return
			}
			require.NoError(t, err)
			var s analysis.Summary
			require.NoError(t, json.Unmarshal([]byte(out), &s), out)
			tt.validate(t, s)
		})
	}
}

func TestSessionRender(t *testing.T) {
	contextFile := writeFile(t, "context.json", `{
		"application": {"company": {"name": "Acme"}, "role": "Staff Engineer"},
		"interview": {"id": "int-1", "notes": "Ask about on-call"},
		"narrative": {"positioning": "Platform builder", "impactStories": [{"id": "s1", "title": "Cut deploy time"}]}
	}`)
	sessionFile := writeFile(t, "session.json", `{
		"layout": {"lg": [{"i": "notes", "x": 0, "y": 0, "w": 12, "h": 3}]},
		"widgetMetadata": {"storyDeck": {"collapsed": true}}
	}`)

	out, err := run(t, testConfig(), "session", "render", contextFile, sessionFile, "--mode", "prep", "--breakpoint", "lg", "--format", "json")
	require.NoError(t, err)

	var sess struct {
		InterviewID string `json:"interviewId"`
		View        struct {
			Mode   string         `json:"mode"`
			Panels []widget.Panel `json:"panels"`
		} `json:"view"`
		Warnings []string `json:"warnings"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &sess), out)
	assert.Equal(t, "int-1", sess.InterviewID)
	assert.Equal(t, "prep", sess.View.Mode)
	assert.Empty(t, sess.Warnings)
	require.Len(t, sess.View.Panels, widget.DefaultRegistry().Len())

	for _, p := range sess.View.Panels {
		switch p.ID {
		case widget.Notes:
			assert.Equal(t, 12, p.Layout.W)
			assert.True(t, p.Editable)
			assert.Contains(t, string(p.Data), "Ask about on-call")
		case widget.StoryDeck:
			assert.True(t, p.Collapsed)
			assert.Equal(t, widget.CollapsedHeight, p.Layout.H)
		case widget.LiveChecklist:
			assert.False(t, p.Editable, "checklist is live-only")
		}
	}

	text, err := run(t, testConfig(), "session", "render", contextFile, "--format", "text")
	require.NoError(t, err)
	assert.Contains(t, text, "CO-PILOT")

	_, err = run(t, testConfig(), "session", "render", contextFile, "--mode", "review", "--format", "json")
	assert.Equal(t, errors.ErrCodeInvalidRequest, errors.CodeOf(err))

	_, err = run(t, testConfig(), "session", "render", writeFile(t, "empty.json", `{}`), "--format", "json")
	assert.Equal(t, errors.ErrCodeInvalidRequest, errors.CodeOf(err))
}

func TestJobTerms(t *testing.T) {
	got := jobTerms("We run Go services. Kubernetes, Go, and SQL; on-call (shared).")
	assert.Equal(t, []string{"services", "kubernetes", "on-call", "shared"}, got)
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, testConfig(), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "jobcoach version "+Version)
	assert.Contains(t, out, "Go: go")
}
