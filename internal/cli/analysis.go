package cli

import (
	"encoding/json"
	stderrors "errors"
	"fmt"

	"jobcoach/internal/analysis"
	"jobcoach/internal/common"
	"jobcoach/internal/errors"

	"github.com/spf13/cobra"
)

var analysisCmd = &cobra.Command{
	Use:   "analysis",
	Short: "Inspect stored AI analysis payloads",
}

var analysisDecodeCmd = &cobra.Command{
	Use:   "decode [payload-file]",
	Short: "Decode a V1 or V2 analysis payload",
	Long: `Decode a stored AI analysis payload and print its summary.

--kind selects what the file holds: a whole job analysis container
({keywords, guidance, problemAnalysis}, the default) or a single keywords,
guidance or problems section. The version of each section is detected
from its marker fields.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalysisDecode,
}

var (
	analysisConfig common.CommandConfig
	analysisKind   string
)

func init() {
	addOutputFlags(analysisDecodeCmd, &analysisConfig)
	analysisDecodeCmd.Flags().StringVar(&analysisKind, "kind", "job", "Payload kind: job, keywords, guidance or problems")
	_ = analysisDecodeCmd.RegisterFlagCompletionFunc("kind", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"job", "keywords", "guidance", "problems"}, cobra.ShellCompDirectiveNoFileComp
	})
	analysisCmd.AddCommand(analysisDecodeCmd)
}

func runAnalysisDecode(cmd *cobra.Command, args []string) error {
	logger := getLoggerFromContext(cmd.Context())

	contents, err := analysisConfig.Files(logger).ValidateAndReadFiles(args[0])
	if err != nil {
		return err
	}

	ja, err := decodeAnalysis(analysisKind, json.RawMessage(contents[0]))
	if err != nil {
		return err
	}

	summary := ja.Summarize()
	for section, msg := range summary.Errors {
		logger.Warn("Analysis section could not be decoded", "section", section, "error", msg)
	}
	return common.NewOutputHandler(logger).HandleOutput(summary, analysisConfig)
}

// decodeAnalysis decodes raw as the given kind. A single section is
// returned as a job analysis holding only that section.
func decodeAnalysis(kind string, raw json.RawMessage) (*analysis.JobAnalysis, error) {
	ja := &analysis.JobAnalysis{SectionErrors: map[string]error{}}
	var err error
	switch kind {
	case "", "job":
		ja, err = analysis.DecodeJobAnalysis(raw)
	case "keywords":
		ja.Keywords, err = analysis.DecodeKeywords(raw)
	case "guidance":
		ja.Guidance, err = analysis.DecodeGuidance(raw)
	case "problems":
		ja.Problems, err = analysis.DecodeProblemAnalysis(raw)
	default:
		return nil, errors.NewValidationError(errors.ErrCodeInvalidRequest,
			fmt.Sprintf("unknown analysis kind '%s': must be job, keywords, guidance or problems", kind), nil)
	}
	if err != nil {
		code := errors.ErrCodeInvalidFormat
		if stderrors.Is(err, analysis.ErrUnknownShape) {
			code = errors.ErrCodeUnknownShape
		}
		return nil, errors.NewValidationError(code, "analysis payload could not be decoded", err).
			WithContext("kind", kind)
	}
	return ja, nil
}
