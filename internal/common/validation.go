package common

import (
	"fmt"
	"slices"

	"jobcoach/internal/formatters"
	"jobcoach/internal/widget"
)

// ValidateOutputFormat validates format against configured supported formats
func ValidateOutputFormat(format string, supportedFormats []string) error {
	if len(supportedFormats) == 0 {
		return nil // No restrictions configured
	}

	if slices.Contains(supportedFormats, format) {
		return nil
	}

	return fmt.Errorf("unsupported output format '%s'. Supported formats: %v",
		format, supportedFormats)
}

// GetSupportedFormats returns the configured formats that have a
// formatter, in configured order. With nothing configured every
// registered format is returned.
func GetSupportedFormats(supportedFormats []string) []string {
	registered := formatters.GlobalRegistry.GetSupportedFormats()
	if len(supportedFormats) == 0 {
		return registered
	}
	out := make([]string, 0, len(supportedFormats))
	for _, f := range supportedFormats {
		if slices.Contains(registered, f) {
			out = append(out, f)
		}
	}
	return out
}

// ParseViewFlags validates --mode and --breakpoint values. Empty values
// fall back to the given defaults.
func ParseViewFlags(mode, breakpoint string, defaultMode widget.Mode, defaultBreakpoint widget.Breakpoint) (widget.Mode, widget.Breakpoint, error) {
	m, bp := defaultMode, defaultBreakpoint
	if mode != "" {
		var ok bool
		if m, ok = widget.ParseMode(mode); !ok {
			return "", "", fmt.Errorf("invalid mode '%s': must be 'live' or 'prep'", mode)
		}
	}
	if breakpoint != "" {
		var ok bool
		if bp, ok = widget.ParseBreakpoint(breakpoint); !ok {
			return "", "", fmt.Errorf("invalid breakpoint '%s': must be 'lg', 'md' or 'sm'", breakpoint)
		}
	}
	return m, bp, nil
}
