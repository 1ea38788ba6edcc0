package cli

import (
	"context"
	"fmt"

	"jobcoach/internal/common"
	"jobcoach/internal/config"
	"jobcoach/internal/errors"
	"jobcoach/internal/widget"

	"github.com/spf13/cobra"
)

// Define custom private types for context keys.
type configKeyType struct{}
type loggerKeyType struct{}

// Use variables of these types as the keys.
var configKey = configKeyType{}
var loggerKey = loggerKeyType{}

var rootCmd = &cobra.Command{
	Use:   "jobcoach",
	Short: "Interview co-pilot backend and tools",
	Long: `jobcoach serves the interview co-pilot: a grid of widgets (notes, job
cheat sheet, live checklist, story deck, prep outline) whose layout and
contents are persisted per interview. The CLI also merges stored layouts,
renders sessions, decodes stored AI analysis payloads and generates cheat
sheets and answers with AI.`,
	SilenceUsage: true,
}

func Execute(ctx context.Context, cfg *config.Config, logger *errors.Logger) error {
	// Attach the config and logger to the context, making them available to all subcommands
	ctx = context.WithValue(ctx, configKey, cfg)
	ctx = context.WithValue(ctx, loggerKey, logger)
	rootCmd.SetContext(ctx)
	return rootCmd.Execute()
}

// getConfigFromContext is a helper function to get config from context
func getConfigFromContext(ctx context.Context) *config.Config {
	if cfg, ok := ctx.Value(configKey).(*config.Config); ok {
		return cfg
	}
	panic("config not found in context") // Should not happen if properly initialized
}

// getLoggerFromContext is a helper function to get logger from context
func getLoggerFromContext(ctx context.Context) *errors.Logger {
	if logger, ok := ctx.Value(loggerKey).(*errors.Logger); ok {
		return logger
	}
	panic("logger not found in context") // Should not happen if properly initialized
}

// addOutputFlags registers --output and --format on cmd and fills in the
// configured default format before the command runs.
func addOutputFlags(cmd *cobra.Command, out *common.CommandConfig) {
	cmd.Flags().StringVarP(&out.OutputFile, "output", "o", "", "Output file path (default: stdout)")
	cmd.Flags().StringVar(&out.OutputFormat, "format", "", "Output format: json, text, or markdown")

	_ = cmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		cfg := getConfigFromContext(cmd.Context())
		return common.GetSupportedFormats(cfg.App.SupportedFormats), cobra.ShellCompDirectiveNoFileComp
	})

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		cfg := getConfigFromContext(cmd.Context())
		// Apply default format if not specified
		if out.OutputFormat == "" {
			out.OutputFormat = cfg.App.DefaultFormat
		}
		out.Writer = cmd.OutOrStdout()
		out.MaxInputSize = cfg.App.MaxFileSize
		return common.ValidateOutputFormat(out.OutputFormat, cfg.App.SupportedFormats)
	}
}

// loadRegistry returns the built-in widget registry with the configured
// overrides file applied.
func loadRegistry(cfg *config.Config, logger *errors.Logger) (*widget.Registry, error) {
	reg := widget.DefaultRegistry()
	path := cfg.Widgets.OverridesFile
	if path == "" {
		return reg, nil
	}

	overrides, err := widget.LoadOverrides(path)
	if err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "failed to load widget overrides", err).
			WithContext("file", path)
	}
	reg, warnings, err := reg.WithOverrides(overrides)
	if err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, fmt.Sprintf("invalid widget overrides in %s", path), err)
	}
	for _, w := range warnings {
		logger.Warn("Widget override skipped", "file", path, "reason", w)
	}
	logger.Debug("Widget overrides applied", "file", path, "widgets", reg.Len())
	return reg, nil
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(layoutCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(analysisCmd)
	rootCmd.AddCommand(cheatSheetCmd)
	rootCmd.AddCommand(answerCmd)
}
