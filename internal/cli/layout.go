package cli

import (
	"encoding/json"
	"strings"

	"jobcoach/internal/common"
	"jobcoach/internal/errors"
	"jobcoach/internal/widget"

	"github.com/spf13/cobra"
)

var layoutCmd = &cobra.Command{
	Use:   "layout",
	Short: "Inspect co-pilot grid layouts",
}

var layoutMergeCmd = &cobra.Command{
	Use:   "merge [persisted-layout-file]",
	Short: "Merge a stored layout with the widget registry",
	Long: `Merge a stored layout (a JSON object keyed by breakpoint) with the
widget registry defaults and print the result together with a report of
every repair: unknown and duplicate widgets dropped, missing fields
backfilled, missing widgets appended.

Use --collapsed to apply collapsed heights to the listed widgets.`,
	Args: cobra.ExactArgs(1),
	RunE: runLayoutMerge,
}

var (
	layoutConfig    common.CommandConfig
	layoutCollapsed []string
)

func init() {
	addOutputFlags(layoutMergeCmd, &layoutConfig)
	layoutMergeCmd.Flags().StringSliceVar(&layoutCollapsed, "collapsed", nil, "Widgets to show collapsed (comma separated)")
	layoutCmd.AddCommand(layoutMergeCmd)
}

func runLayoutMerge(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())

	contents, err := layoutConfig.Files(logger).ValidateAndReadFiles(args[0])
	if err != nil {
		return err
	}

	persisted, skipped, err := widget.ParsePersistedLayout(json.RawMessage(contents[0]))
	if err != nil {
		return errors.NewValidationError(errors.ErrCodeInvalidLayout, "layout is not a breakpoint map", err).
			WithContext("file", args[0])
	}
	if skipped > 0 {
		logger.Warn("Skipped undecodable layout entries", "file", args[0], "count", skipped)
	}

	reg, err := loadRegistry(cfg, logger)
	if err != nil {
		return err
	}

	layout, report := widget.MergeLayouts(reg, persisted)
	if len(layoutCollapsed) > 0 {
		collapsed := make(map[widget.WidgetID]bool, len(layoutCollapsed))
		for _, name := range layoutCollapsed {
			id := widget.WidgetID(strings.TrimSpace(name))
			if !reg.Has(id) {
				return errors.NewValidationError(errors.ErrCodeUnknownWidget, "unknown widget in --collapsed", nil).
					WithContext("widget", name)
			}
			collapsed[id] = true
		}
		layout = widget.ApplyCollapsedState(reg, layout, collapsed)
	}

	logger.Info("Layout merged",
		"dropped_unknown", report.DroppedUnknown,
		"dropped_duplicates", report.DroppedDuplicates,
		"appended_defaults", report.AppendedDefaults)

	return common.NewOutputHandler(logger).HandleOutput(widget.MergeResult{Layout: layout, Report: report}, layoutConfig)
}
