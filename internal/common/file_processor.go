package common

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"

	"jobcoach/internal/errors"
	"jobcoach/internal/utils"
)

// FileProcessor reads CLI inputs and writes CLI outputs.
type FileProcessor struct {
	logger  *errors.Logger
	maxSize int64
}

// NewFileProcessor returns a processor without an input size limit.
func NewFileProcessor(logger *errors.Logger) *FileProcessor {
	if logger == nil {
		logger = errors.Discard()
	}
	return &FileProcessor{logger: logger}
}

// WithMaxSize limits input files to n bytes. n <= 0 means no limit.
func (fp *FileProcessor) WithMaxSize(n int64) *FileProcessor {
	fp.maxSize = n
	return fp
}

// inputError maps a file check or read failure to an AppError.
func inputError(filename string, err error) error {
	switch {
	case stderrors.Is(err, fs.ErrNotExist):
		return errors.NewIOError(errors.ErrCodeFileNotFound,
			fmt.Sprintf("File not found: %s", filename), err)
	case stderrors.Is(err, utils.ErrTooLarge):
		return errors.NewValidationError(errors.ErrCodeFileTooLarge,
			fmt.Sprintf("File too large: %s", filename), err)
	case stderrors.Is(err, utils.ErrEmptyPath), stderrors.Is(err, utils.ErrIsDirectory):
		return errors.NewValidationError("INVALID_INPUT_FILE",
			fmt.Sprintf("Invalid file %s", filename), err)
	}
	return errors.NewIOError(errors.ErrCodeFileNotReadable,
		fmt.Sprintf("Cannot read file: %s", filename), err)
}

// ReadFile checks and reads one input file.
func (fp *FileProcessor) ReadFile(filename string) (string, error) {
	if _, err := utils.CheckInputFile(filename, fp.maxSize); err != nil {
		return "", inputError(filename, err)
	}
	content, err := os.ReadFile(filename)
	if err != nil {
		return "", inputError(filename, err)
	}
	return string(content), nil
}

// ValidateAndReadFiles reads every file in order. Files with an
// unrecognised extension are read anyway with a warning.
func (fp *FileProcessor) ValidateAndReadFiles(filenames ...string) ([]string, error) {
	contents := make([]string, len(filenames))
	for i, filename := range filenames {
		if utils.KindOf(filename) == utils.KindUnknown {
			fp.logger.Warn("File may not be a text file", "filename", filename)
		}
		content, err := fp.ReadFile(filename)
		if err != nil {
			return nil, err
		}
		contents[i] = content
	}
	return contents, nil
}

// ReadJSON reads filename and decodes its JSON content into v.
func (fp *FileProcessor) ReadJSON(filename string, v any) error {
	if kind := utils.KindOf(filename); kind != utils.KindJSON && kind != utils.KindUnknown {
		fp.logger.Warn("Decoding non-JSON file as JSON", "filename", filename, "kind", kind.String())
	}
	content, err := fp.ReadFile(filename)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(content), v); err != nil {
		return errors.NewValidationError(errors.ErrCodeInvalidFormat,
			fmt.Sprintf("Invalid JSON in %s", filename), err)
	}
	return nil
}

// WriteFile replaces filename with content atomically, creating parent
// directories as needed.
func (fp *FileProcessor) WriteFile(filename, content string) error {
	if err := utils.WriteFileAtomic(filename, []byte(content)); err != nil {
		return errors.NewIOError("FILE_WRITE_FAILED",
			fmt.Sprintf("Cannot write file: %s", filename), err)
	}
	return nil
}

// ValidateOutputFile makes sure the directory of filename exists. An empty
// filename means stdout.
func (fp *FileProcessor) ValidateOutputFile(filename string) error {
	if filename == "" {
		return nil
	}
	if err := utils.EnsureParentDir(filename); err != nil {
		return errors.NewValidationError("INVALID_OUTPUT_FILE",
			fmt.Sprintf("Invalid output file: %s", filename), err)
	}
	return nil
}
