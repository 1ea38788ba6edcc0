package common

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobcoach/internal/errors"
	"jobcoach/internal/widget"
)

func TestFileProcessorRead(t *testing.T) {
	dir := t.TempDir()
	small := filepath.Join(dir, "layout.json")
	require.NoError(t, os.WriteFile(small, []byte(`{"lg": []}`), 0o600))

	tests := []struct {
		name     string
		filename string
		maxSize  int64
		wantCode string
	}{
		{name: "ok", filename: small},
		{name: "within limit", filename: small, maxSize: 64},
		{name: "too large", filename: small, maxSize: 4, wantCode: errors.ErrCodeFileTooLarge},
		{name: "missing", filename: filepath.Join(dir, "nope.json"), wantCode: errors.ErrCodeFileNotFound},
		{name: "directory", filename: dir, wantCode: "INVALID_INPUT_FILE"},
		{name: "empty name", filename: "", wantCode: "INVALID_INPUT_FILE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			contents, err := NewFileProcessor(nil).WithMaxSize(tt.maxSize).ValidateAndReadFiles(tt.filename)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, errors.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{`{"lg": []}`}, contents)
		})
	}
}

func TestFileProcessorReadJSON(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "state.json")
	bad := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"lg": [{"i": "notes", "w": 4}]}`), 0o600))
	require.NoError(t, os.WriteFile(bad, []byte(`{"lg": [`), 0o600))

	var layout widget.PersistedLayout
	require.NoError(t, NewFileProcessor(nil).ReadJSON(good, &layout))
	require.Len(t, layout["lg"], 1)
	assert.Equal(t, "notes", layout["lg"][0].I)
	assert.Equal(t, 4, *layout["lg"][0].W)

	err := NewFileProcessor(nil).ReadJSON(bad, &layout)
	assert.Equal(t, errors.ErrCodeInvalidFormat, errors.CodeOf(err))
}

func TestFileProcessorWriteFile(t *testing.T) {
	target := filepath.Join(t.TempDir(), "out", "session.md")
	fp := NewFileProcessor(nil)

	require.NoError(t, fp.WriteFile(target, "first"))
	require.NoError(t, fp.WriteFile(target, "second"))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Dir(target))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files are left behind")
}

func TestHandleOutput(t *testing.T) {
	view := widget.View{Mode: widget.ModeLive, Breakpoint: widget.LG}

	var buf bytes.Buffer
	err := NewOutputHandler(nil).HandleOutput(view, CommandConfig{OutputFormat: "json", Writer: &buf})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(buf.String(), "{"))
	assert.Contains(t, buf.String(), `"mode": "live"`)

	target := filepath.Join(t.TempDir(), "view.txt")
	err = NewOutputHandler(nil).HandleOutput(view, CommandConfig{OutputFormat: "text", OutputFile: target})
	require.NoError(t, err)
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), "CO-PILOT (live, lg)")

	err = NewOutputHandler(nil).HandleOutput(view, CommandConfig{OutputFormat: "csv", Writer: &buf})
	assert.Equal(t, errors.ErrCodeInvalidFormat, errors.CodeOf(err))
}
