package common

import (
	"fmt"
	"io"
	"os"

	"jobcoach/internal/errors"
	"jobcoach/internal/formatters"
	"jobcoach/internal/utils"

	"github.com/dustin/go-humanize"
)

// CommandConfig holds the output settings shared by CLI commands.
type CommandConfig struct {
	OutputFile   string
	OutputFormat string

	// Writer receives output when OutputFile is empty. Nil means stdout.
	Writer io.Writer

	// MaxInputSize limits input files in bytes; 0 means no limit.
	MaxInputSize int64
}

// Files returns a file processor honouring the configured input limit.
func (c CommandConfig) Files(logger *errors.Logger) *FileProcessor {
	return NewFileProcessor(logger).WithMaxSize(c.MaxInputSize)
}

// OutputHandler formats command results and writes them out.
type OutputHandler struct {
	fileProcessor *FileProcessor
	registry      *formatters.FormatterRegistry
	logger        *errors.Logger
}

func NewOutputHandler(logger *errors.Logger) *OutputHandler {
	if logger == nil {
		logger = errors.Discard()
	}
	return &OutputHandler{
		fileProcessor: NewFileProcessor(logger),
		registry:      formatters.GlobalRegistry,
		logger:        logger,
	}
}

// HandleOutput formats data as config.OutputFormat and writes it to
// config.OutputFile, or to config.Writer when no file is set.
func (oh *OutputHandler) HandleOutput(data any, config CommandConfig) error {
	if err := oh.fileProcessor.ValidateOutputFile(config.OutputFile); err != nil {
		return err
	}

	output, err := oh.registry.Format(data, config.OutputFormat)
	if err != nil {
		return errors.NewValidationError(errors.ErrCodeInvalidFormat,
			fmt.Sprintf("Failed to format output as %s", config.OutputFormat), err)
	}

	if config.OutputFile == "" {
		var w io.Writer = os.Stdout
		if config.Writer != nil {
			w = config.Writer
		}
		if _, err := fmt.Fprintln(w, output); err != nil {
			return errors.NewIOError("OUTPUT_WRITE_FAILED", "Cannot write output", err)
		}
		return nil
	}

	if kind := utils.KindOf(config.OutputFile); kind == utils.KindJSON && config.OutputFormat != "json" {
		oh.logger.Warn("Output file extension does not match format",
			"file", config.OutputFile, "format", config.OutputFormat)
	}
	if err := oh.fileProcessor.WriteFile(config.OutputFile, output); err != nil {
		return err
	}
	oh.logger.Info("Output written",
		"file", config.OutputFile,
		"format", config.OutputFormat,
		"size", humanize.Bytes(uint64(len(output))))
	return nil
}

// GetSupportedFormats returns all registered output formats.
func (oh *OutputHandler) GetSupportedFormats() []string {
	return oh.registry.GetSupportedFormats()
}
