package formatters

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"jobcoach/internal/analysis"
	"jobcoach/internal/copilot"
	"jobcoach/internal/types"
	"jobcoach/internal/widget"
)

// Formatter interface for different output formats
type Formatter interface {
	Format(data any) (string, error)
	SupportedType() string
}

// FormatterRegistry manages all available formatters
type FormatterRegistry struct {
	formatters map[string]map[string]Formatter // format -> type -> formatter
}

// NewFormatterRegistry creates a new formatter registry with default formatters
func NewFormatterRegistry() *FormatterRegistry {
	registry := &FormatterRegistry{
		formatters: make(map[string]map[string]Formatter),
	}

	// Register default formatters
	registry.RegisterFormatter("json", "any", &JSONFormatter{})
	registry.RegisterFormatter("text", "View", &ViewTextFormatter{})
	registry.RegisterFormatter("markdown", "View", &ViewMarkdownFormatter{})
	registry.RegisterFormatter("text", "MergeResult", &MergeTextFormatter{})
	registry.RegisterFormatter("markdown", "MergeResult", &MergeMarkdownFormatter{})
	registry.RegisterFormatter("text", "CheatSheet", &CheatSheetTextFormatter{})
	registry.RegisterFormatter("markdown", "CheatSheet", &CheatSheetMarkdownFormatter{})
	registry.RegisterFormatter("text", "AnswerDraft", &AnswerTextFormatter{})
	registry.RegisterFormatter("markdown", "AnswerDraft", &AnswerMarkdownFormatter{})
	registry.RegisterFormatter("text", "AnalysisSummary", &AnalysisTextFormatter{})
	registry.RegisterFormatter("markdown", "AnalysisSummary", &AnalysisMarkdownFormatter{})

	return registry
}

// RegisterFormatter registers a new formatter for a specific format and data type
func (fr *FormatterRegistry) RegisterFormatter(format, dataType string, formatter Formatter) {
	if fr.formatters[format] == nil {
		fr.formatters[format] = make(map[string]Formatter)
	}
	fr.formatters[format][dataType] = formatter
}

// Format formats data using the appropriate formatter
func (fr *FormatterRegistry) Format(data any, format string) (string, error) {
	// A session renders as its view in the human-readable formats.
	if s, ok := data.(*copilot.Session); ok && format != "json" {
		return fr.formatSession(s, format)
	}

	dataType := getDataType(data)

	// Try specific formatter first
	if formatters, exists := fr.formatters[format]; exists {
		if formatter, exists := formatters[dataType]; exists {
			return formatter.Format(data)
		}
		// Fall back to generic formatter
		if formatter, exists := formatters["any"]; exists {
			return formatter.Format(data)
		}
	}

	return "", fmt.Errorf("no formatter found for format '%s' and type '%s'", format, dataType)
}

func (fr *FormatterRegistry) formatSession(s *copilot.Session, format string) (string, error) {
	out, err := fr.Format(s.View, format)
	if err != nil || len(s.Warnings) == 0 {
		return out, err
	}

	var b strings.Builder
	b.WriteString(out)
	if format == "markdown" {
		b.WriteString("\n## Warnings\n\n")
	} else {
		b.WriteString("\n=== WARNINGS ===\n")
	}
	writeBullets(&b, s.Warnings)
	return b.String(), nil
}

// GetSupportedFormats returns all supported formats
func (fr *FormatterRegistry) GetSupportedFormats() []string {
	formats := make([]string, 0, len(fr.formatters))
	for format := range fr.formatters {
		formats = append(formats, format)
	}
	sort.Strings(formats)
	return formats
}

func getDataType(data any) string {
	switch data.(type) {
	case widget.View:
		return "View"
	case widget.MergeResult:
		return "MergeResult"
	case types.CheatSheet:
		return "CheatSheet"
	case types.AnswerDraft:
		return "AnswerDraft"
	case analysis.Summary:
		return "AnalysisSummary"
	default:
		return "any"
	}
}

// JSONFormatter handles JSON formatting for any data type
type JSONFormatter struct{}

func (jf *JSONFormatter) Format(data any) (string, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", err
	}
	return string(jsonData), nil
}

func (jf *JSONFormatter) SupportedType() string {
	return "any"
}

// ViewTextFormatter renders a co-pilot view as plain text
type ViewTextFormatter struct{}

func (vtf *ViewTextFormatter) Format(data any) (string, error) {
	view, ok := data.(widget.View)
	if !ok {
		return "", fmt.Errorf("expected View, got %T", data)
	}

	var output strings.Builder
	output.WriteString(fmt.Sprintf("=== CO-PILOT (%s, %s) ===\n\n", view.Mode, view.Breakpoint))

	for _, p := range view.Panels {
		output.WriteString(fmt.Sprintf("[%s] %s  x=%d y=%d w=%d h=%d", p.ID, p.Title, p.Layout.X, p.Layout.Y, p.Layout.W, p.Layout.H))
		if p.Collapsed {
			output.WriteString("  (collapsed)")
		}
		if !p.Editable {
			output.WriteString("  (read-only)")
		}
		output.WriteString("\n")
		if p.UpdatedAgo != "" {
			output.WriteString(fmt.Sprintf("  updated %s\n", p.UpdatedAgo))
		}
		if len(p.Data) > 0 {
			if err := writeData(&output, p.Data, "  "); err != nil {
				return "", fmt.Errorf("panel %s: %w", p.ID, err)
			}
		}
		output.WriteString("\n")
	}

	return output.String(), nil
}

func (vtf *ViewTextFormatter) SupportedType() string {
	return "View"
}

// ViewMarkdownFormatter renders a co-pilot view as markdown
type ViewMarkdownFormatter struct{}

func (vmf *ViewMarkdownFormatter) Format(data any) (string, error) {
	view, ok := data.(widget.View)
	if !ok {
		return "", fmt.Errorf("expected View, got %T", data)
	}

	var output strings.Builder
	output.WriteString(fmt.Sprintf("# Interview Co-pilot (%s)\n\n", view.Mode))
	output.WriteString(fmt.Sprintf("_Breakpoint: %s_\n\n", view.Breakpoint))

	for _, p := range view.Panels {
		output.WriteString(fmt.Sprintf("## %s\n\n", p.Title))
		if p.Collapsed {
			output.WriteString("_Collapsed_\n\n")
			continue
		}
		if p.UpdatedAgo != "" {
			output.WriteString(fmt.Sprintf("_Updated %s_\n\n", p.UpdatedAgo))
		}
		if len(p.Data) > 0 {
			if err := writeData(&output, p.Data, ""); err != nil {
				return "", fmt.Errorf("panel %s: %w", p.ID, err)
			}
			output.WriteString("\n")
		}
	}

	return output.String(), nil
}

func (vmf *ViewMarkdownFormatter) SupportedType() string {
	return "View"
}

// writeData renders widget data: strings as lines, lists as bullets and
// objects field by field in key order. Empty values are skipped.
func writeData(b *strings.Builder, raw json.RawMessage, indent string) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	writeValue(b, v, indent)
	return nil
}

func writeValue(b *strings.Builder, v any, indent string) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if isEmpty(val[k]) {
				continue
			}
			switch val[k].(type) {
			case map[string]any, []any:
				b.WriteString(fmt.Sprintf("%s%s:\n", indent, k))
				writeValue(b, val[k], indent+"  ")
			default:
				b.WriteString(fmt.Sprintf("%s%s: %v\n", indent, k, val[k]))
			}
		}
	case []any:
		for _, item := range val {
			if obj, ok := item.(map[string]any); ok {
				b.WriteString(indent + "-\n")
				writeValue(b, obj, indent+"  ")
				continue
			}
			b.WriteString(fmt.Sprintf("%s- %v\n", indent, item))
		}
	case nil:
	default:
		b.WriteString(fmt.Sprintf("%s%v\n", indent, val))
	}
}

func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	}
	return false
}

func writeBullets(b *strings.Builder, items []string) {
	for _, item := range items {
		b.WriteString(fmt.Sprintf("- %s\n", item))
	}
}

// MergeTextFormatter renders a merged layout and its report as text
type MergeTextFormatter struct{}

func (mtf *MergeTextFormatter) Format(data any) (string, error) {
	result, ok := data.(widget.MergeResult)
	if !ok {
		return "", fmt.Errorf("expected MergeResult, got %T", data)
	}

	var output strings.Builder
	output.WriteString("=== MERGED LAYOUT ===\n\n")
	for _, bp := range widget.Breakpoints {
		output.WriteString(fmt.Sprintf("%s:\n", bp))
		for _, item := range result.Layout[bp] {
			output.WriteString(fmt.Sprintf("  %-18s x=%-2d y=%-2d w=%-2d h=%d\n", item.I, item.X, item.Y, item.W, item.H))
		}
	}

	output.WriteString("\n=== REPORT ===\n")
	writeReport(&output, result.Report)
	return output.String(), nil
}

func (mtf *MergeTextFormatter) SupportedType() string {
	return "MergeResult"
}

// MergeMarkdownFormatter renders a merged layout and its report as markdown
type MergeMarkdownFormatter struct{}

func (mmf *MergeMarkdownFormatter) Format(data any) (string, error) {
	result, ok := data.(widget.MergeResult)
	if !ok {
		return "", fmt.Errorf("expected MergeResult, got %T", data)
	}

	var output strings.Builder
	output.WriteString("# Merged Layout\n\n")
	for _, bp := range widget.Breakpoints {
		output.WriteString(fmt.Sprintf("## %s\n\n", bp))
		output.WriteString("| Widget | x | y | w | h |\n|---|---|---|---|---|\n")
		for _, item := range result.Layout[bp] {
			output.WriteString(fmt.Sprintf("| %s | %d | %d | %d | %d |\n", item.I, item.X, item.Y, item.W, item.H))
		}
		output.WriteString("\n")
	}

	output.WriteString("## Report\n\n")
	writeReport(&output, result.Report)
	return output.String(), nil
}

func (mmf *MergeMarkdownFormatter) SupportedType() string {
	return "MergeResult"
}

func writeReport(b *strings.Builder, r widget.MergeReport) {
	if r.UsedDefaults {
		b.WriteString("- No stored layout; registry defaults used\n")
		return
	}
	if !r.Repaired() {
		b.WriteString("- Stored layout used as is\n")
		return
	}
	b.WriteString(fmt.Sprintf("- Unknown entries dropped: %d\n", r.DroppedUnknown))
	b.WriteString(fmt.Sprintf("- Duplicate entries dropped: %d\n", r.DroppedDuplicates))
	if len(r.DroppedBreakpoints) > 0 {
		b.WriteString(fmt.Sprintf("- Breakpoints dropped: %s\n", strings.Join(r.DroppedBreakpoints, ", ")))
	}
	b.WriteString(fmt.Sprintf("- Fields backfilled: %d\n", r.BackfilledFields))
	b.WriteString(fmt.Sprintf("- Defaults appended: %d\n", r.AppendedDefaults))
}

// CheatSheetTextFormatter handles text formatting for cheat sheets
type CheatSheetTextFormatter struct{}

func (ctf *CheatSheetTextFormatter) Format(data any) (string, error) {
	sheet, ok := data.(types.CheatSheet)
	if !ok {
		return "", fmt.Errorf("expected CheatSheet, got %T", data)
	}

	var output strings.Builder
	output.WriteString("=== JOB CHEAT SHEET ===\n\n")
	if sheet.Summary != "" {
		output.WriteString(sheet.Summary)
		output.WriteString("\n\n")
	}
	for _, section := range cheatSheetSections(sheet) {
		if len(section.items) == 0 {
			continue
		}
		output.WriteString(section.title + ":\n")
		writeBullets(&output, section.items)
		output.WriteString("\n")
	}
	return output.String(), nil
}

func (ctf *CheatSheetTextFormatter) SupportedType() string {
	return "CheatSheet"
}

// CheatSheetMarkdownFormatter handles markdown formatting for cheat sheets
type CheatSheetMarkdownFormatter struct{}

func (cmf *CheatSheetMarkdownFormatter) Format(data any) (string, error) {
	sheet, ok := data.(types.CheatSheet)
	if !ok {
		return "", fmt.Errorf("expected CheatSheet, got %T", data)
	}

	var output strings.Builder
	output.WriteString("# Job Cheat Sheet\n\n")
	if sheet.Summary != "" {
		output.WriteString(sheet.Summary)
		output.WriteString("\n\n")
	}
	for _, section := range cheatSheetSections(sheet) {
		if len(section.items) == 0 {
			continue
		}
		output.WriteString(fmt.Sprintf("## %s\n\n", section.title))
		writeBullets(&output, section.items)
		output.WriteString("\n")
	}
	return output.String(), nil
}

func (cmf *CheatSheetMarkdownFormatter) SupportedType() string {
	return "CheatSheet"
}

type section struct {
	title string
	items []string
}

func cheatSheetSections(sheet types.CheatSheet) []section {
	return []section{
		{"Keywords", sheet.Keywords},
		{"Success Metrics", sheet.Metrics},
		{"Levers", sheet.Levers},
		{"Blockers", sheet.Blockers},
		{"Talking Points", sheet.TalkingPoints},
	}
}

// AnswerTextFormatter handles text formatting for drafted answers
type AnswerTextFormatter struct{}

func (atf *AnswerTextFormatter) Format(data any) (string, error) {
	draft, ok := data.(types.AnswerDraft)
	if !ok {
		return "", fmt.Errorf("expected AnswerDraft, got %T", data)
	}

	var output strings.Builder
	output.WriteString("=== DRAFT ANSWER ===\n\n")
	output.WriteString(draft.Answer)
	output.WriteString("\n\n")
	if draft.Confidence != "" {
		output.WriteString(fmt.Sprintf("Confidence: %s\n", draft.Confidence))
	}
	if len(draft.StoryIDs) > 0 {
		output.WriteString(fmt.Sprintf("Stories: %s\n", strings.Join(draft.StoryIDs, ", ")))
	}
	if len(draft.FollowUps) > 0 {
		output.WriteString("\nLikely follow-ups:\n")
		writeBullets(&output, draft.FollowUps)
	}
	return output.String(), nil
}

func (atf *AnswerTextFormatter) SupportedType() string {
	return "AnswerDraft"
}

// AnswerMarkdownFormatter handles markdown formatting for drafted answers
type AnswerMarkdownFormatter struct{}

func (amf *AnswerMarkdownFormatter) Format(data any) (string, error) {
	draft, ok := data.(types.AnswerDraft)
	if !ok {
		return "", fmt.Errorf("expected AnswerDraft, got %T", data)
	}

	var output strings.Builder
	output.WriteString("# Draft Answer\n\n")
	output.WriteString(draft.Answer)
	output.WriteString("\n\n")
	if draft.Confidence != "" {
		output.WriteString(fmt.Sprintf("**Confidence:** %s\n\n", draft.Confidence))
	}
	if len(draft.StoryIDs) > 0 {
		output.WriteString(fmt.Sprintf("**Stories:** %s\n\n", strings.Join(draft.StoryIDs, ", ")))
	}
	if len(draft.FollowUps) > 0 {
		output.WriteString("## Likely Follow-ups\n\n")
		writeBullets(&output, draft.FollowUps)
	}
	return output.String(), nil
}

func (amf *AnswerMarkdownFormatter) SupportedType() string {
	return "AnswerDraft"
}

// AnalysisTextFormatter handles text formatting for decoded job analyses
type AnalysisTextFormatter struct{}

func (atf *AnalysisTextFormatter) Format(data any) (string, error) {
	summary, ok := data.(analysis.Summary)
	if !ok {
		return "", fmt.Errorf("expected Summary, got %T", data)
	}

	var output strings.Builder
	output.WriteString("=== JOB ANALYSIS ===\n\n")
	output.WriteString(fmt.Sprintf("Versions: keywords=%s guidance=%s problems=%s\n\n",
		summary.KeywordsVersion, summary.GuidanceVersion, summary.ProblemsVersion))
	if summary.Guidance != "" {
		output.WriteString(summary.Guidance)
		output.WriteString("\n\n")
	}
	for _, section := range analysisSections(summary) {
		if len(section.items) == 0 {
			continue
		}
		output.WriteString(section.title + ":\n")
		writeBullets(&output, section.items)
		output.WriteString("\n")
	}
	if len(summary.Errors) > 0 {
		output.WriteString("Sections not decoded:\n")
		writeBullets(&output, sectionErrors(summary.Errors))
	}
	return output.String(), nil
}

func (atf *AnalysisTextFormatter) SupportedType() string {
	return "AnalysisSummary"
}

// AnalysisMarkdownFormatter handles markdown formatting for decoded job analyses
type AnalysisMarkdownFormatter struct{}

func (amf *AnalysisMarkdownFormatter) Format(data any) (string, error) {
	summary, ok := data.(analysis.Summary)
	if !ok {
		return "", fmt.Errorf("expected Summary, got %T", data)
	}

	var output strings.Builder
	output.WriteString("# Job Analysis\n\n")
	if summary.Guidance != "" {
		output.WriteString(summary.Guidance)
		output.WriteString("\n\n")
	}
	for _, section := range analysisSections(summary) {
		if len(section.items) == 0 {
			continue
		}
		output.WriteString(fmt.Sprintf("## %s\n\n", section.title))
		writeBullets(&output, section.items)
		output.WriteString("\n")
	}
	if len(summary.Errors) > 0 {
		output.WriteString("## Sections Not Decoded\n\n")
		writeBullets(&output, sectionErrors(summary.Errors))
	}
	return output.String(), nil
}

func (amf *AnalysisMarkdownFormatter) SupportedType() string {
	return "AnalysisSummary"
}

func analysisSections(s analysis.Summary) []section {
	return []section{
		{"Keywords", s.Keywords},
		{"Tips", s.Tips},
		{"Problems", s.Problems},
		{"Success Metrics", s.Metrics},
		{"Levers", s.Levers},
		{"Blockers", s.Blockers},
	}
}

func sectionErrors(errs map[string]string) []string {
	names := make([]string, 0, len(errs))
	for name := range errs {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, fmt.Sprintf("%s: %s", name, errs[name]))
	}
	return out
}

// Global formatter registry
var GlobalRegistry = NewFormatterRegistry()
