package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"jobcoach/internal/ai"
	"jobcoach/internal/common"
	"jobcoach/internal/config"
	"jobcoach/internal/types"

	"github.com/spf13/cobra"
)

var cheatSheetCmd = &cobra.Command{
	Use:   "cheatsheet [job-description-file] [narrative-file]",
	Short: "Generate a job cheat sheet with AI",
	Long: `Generate the job cheat sheet widget content (talking points, likely
questions, questions to ask, red flags) for a job description.

The optional narrative file is a JSON narrative (positioning, strengths,
impact stories) used to tailor the talking points.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCheatSheet,
}

var (
	cheatSheetConfig  common.CommandConfig
	cheatSheetCompany string
	cheatSheetRole    string
)

func init() {
	addOutputFlags(cheatSheetCmd, &cheatSheetConfig)
	cheatSheetCmd.Flags().StringVar(&cheatSheetCompany, "company", "", "Company name")
	cheatSheetCmd.Flags().StringVar(&cheatSheetRole, "role", "", "Role title")
}

func runCheatSheet(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())

	opCfg := cfg.GetCheatSheetConfig()
	aiService, err := ai.NewService(&opCfg, config.OpCheatSheet, logger)
	if err != nil {
		return fmt.Errorf("failed to create AI service: %w", err)
	}
	defer func() {
		if err := aiService.Provider.Close(); err != nil {
			logger.LogError(err, "Failed to close AI provider")
		}
	}()

	createInput := func(contents []string) (types.CheatSheetInput, error) {
		input := types.CheatSheetInput{
			Company:        cheatSheetCompany,
			Role:           cheatSheetRole,
			JobDescription: contents[0],
		}
		if len(contents) == 2 {
			if err := json.Unmarshal([]byte(contents[1]), &input.Narrative); err != nil {
				return input, fmt.Errorf("invalid narrative JSON: %w", err)
			}
		}
		return input, nil
	}

	logDetails := func(input types.CheatSheetInput, cfg common.CommandConfig) {
		logger.Info("Starting cheat sheet generation",
			"company", input.Company,
			"job_chars", len(input.JobDescription),
			"stories", len(input.Narrative.ImpactStories),
			"output_format", cfg.OutputFormat)
	}

	operation := func(ctx context.Context, input types.CheatSheetInput) (types.CheatSheet, *ai.TokenUsage, error) {
		return aiService.Provider.GenerateCheatSheet(ctx, input)
	}

	err = common.RunAICommand(cmd.Context(), logger, cheatSheetConfig, args, createInput, operation, logDetails)
	if err != nil {
		return fmt.Errorf("failed to generate cheat sheet: %w", err)
	}
	logger.Info("Cheat sheet generation completed successfully")
	return nil
}
