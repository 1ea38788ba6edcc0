package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobcoach/internal/widget"
)

func TestValidateOutputFormat(t *testing.T) {
	configured := []string{"json", "text", "markdown"}

	tests := []struct {
		format    string
		supported []string
		wantErr   string
	}{
		{format: "json", supported: configured},
		{format: "markdown", supported: configured},
		{format: "yaml", supported: configured, wantErr: "unsupported output format 'yaml'. Supported formats: [json text markdown]"},
		{format: "JSON", supported: configured, wantErr: "unsupported output format 'JSON'. Supported formats: [json text markdown]"},
		{format: "", supported: configured, wantErr: "unsupported output format ''. Supported formats: [json text markdown]"},
		{format: "text", supported: []string{"json"}, wantErr: "unsupported output format 'text'. Supported formats: [json]"},
		{format: "anything", supported: nil},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			err := ValidateOutputFormat(tt.format, tt.supported)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestGetSupportedFormats(t *testing.T) {
	tests := []struct {
		name       string
		configured []string
		want       []string
	}{
		{name: "configured order kept", configured: []string{"markdown", "json"}, want: []string{"markdown", "json"}},
		{name: "nothing configured", want: []string{"json", "markdown", "text"}},
		{name: "unregistered dropped", configured: []string{"xml", "markdown", "csv"}, want: []string{"markdown"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetSupportedFormats(tt.configured))
		})
	}
}

func TestParseViewFlags(t *testing.T) {
	tests := []struct {
		name       string
		mode       string
		breakpoint string
		wantMode   widget.Mode
		wantBP     widget.Breakpoint
		wantErr    bool
	}{
		{name: "defaults", wantMode: widget.ModeLive, wantBP: widget.LG},
		{name: "explicit", mode: "prep", breakpoint: "sm", wantMode: widget.ModePrep, wantBP: widget.SM},
		{name: "mode only", mode: "prep", wantMode: widget.ModePrep, wantBP: widget.LG},
		{name: "bad mode", mode: "review", wantErr: true},
		{name: "bad breakpoint", breakpoint: "xl", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode, bp, err := ParseViewFlags(tt.mode, tt.breakpoint, widget.ModeLive, widget.LG)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMode, mode)
			assert.Equal(t, tt.wantBP, bp)
		})
	}
}
