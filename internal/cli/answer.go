package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"jobcoach/internal/ai"
	"jobcoach/internal/common"
	"jobcoach/internal/config"
	"jobcoach/internal/copilot"
	"jobcoach/internal/errors"
	"jobcoach/internal/types"
	"jobcoach/internal/widget"

	"github.com/spf13/cobra"
)

var answerCmd = &cobra.Command{
	Use:   "answer [narrative-file] [job-description-file]",
	Short: "Draft an interview answer with AI",
	Long: `Draft an answer to an interview question from a narrative's impact
stories. Stories are ranked by their overlap with the job description
before they are given to the model. Drafts are printed, not stored.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runAnswer,
}

var (
	answerConfig   common.CommandConfig
	answerQuestion string
	answerCompany  string
	answerRole     string
)

func init() {
	addOutputFlags(answerCmd, &answerConfig)
	answerCmd.Flags().StringVarP(&answerQuestion, "question", "q", "", "Interview question to answer")
	answerCmd.Flags().StringVar(&answerCompany, "company", "", "Company name")
	answerCmd.Flags().StringVar(&answerRole, "role", "", "Role title")

	// Check the question before the output flags.
	outputPreRun := answerCmd.PreRunE
	answerCmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(answerQuestion) == "" {
			return errors.NewValidationError(errors.ErrCodeInvalidRequest, "--question is required", nil)
		}
		return outputPreRun(cmd, args)
	}
}

func runAnswer(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())

	opCfg := cfg.GetAnswerConfig()
	aiService, err := ai.NewService(&opCfg, config.OpAnswer, logger)
	if err != nil {
		return fmt.Errorf("failed to create AI service: %w", err)
	}
	defer func() {
		if err := aiService.Provider.Close(); err != nil {
			logger.LogError(err, "Failed to close AI provider")
		}
	}()

	createInput := func(contents []string) (types.AnswerInput, error) {
		var narrative types.Narrative
		if err := json.Unmarshal([]byte(contents[0]), &narrative); err != nil {
			return types.AnswerInput{}, fmt.Errorf("invalid narrative JSON: %w", err)
		}
		input := types.AnswerInput{
			Question:    strings.TrimSpace(answerQuestion),
			Company:     answerCompany,
			Role:        answerRole,
			Positioning: narrative.Positioning,
		}
		if len(contents) == 2 {
			input.JobDescription = contents[1]
		}
		deck := widget.RankStories(&narrative, jobTerms(input.JobDescription))
		input.Stories = copilot.RankedStories(&narrative, deck)
		return input, nil
	}

	logDetails := func(input types.AnswerInput, cfg common.CommandConfig) {
		logger.Info("Starting answer draft",
			"question_chars", len(input.Question),
			"stories", len(input.Stories),
			"output_format", cfg.OutputFormat)
	}

	operation := func(ctx context.Context, input types.AnswerInput) (types.AnswerDraft, *ai.TokenUsage, error) {
		return aiService.Provider.DraftAnswer(ctx, input)
	}

	err = common.RunAICommand(cmd.Context(), logger, answerConfig, args, createInput, operation, logDetails)
	if err != nil {
		return fmt.Errorf("failed to draft answer: %w", err)
	}
	return nil
}

// jobTerms returns the distinct words of at least four letters in a job
// description, used as ranking keywords when no analysis is available.
func jobTerms(jobDescription string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, word := range strings.Fields(strings.ToLower(jobDescription)) {
		word = strings.TrimFunc(word, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
		if len(word) < 4 || seen[word] {
			continue
		}
		seen[word] = true
		terms = append(terms, word)
	}
	return terms
}
