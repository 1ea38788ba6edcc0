package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// InputKind classifies CLI input files by extension.
type InputKind int

const (
	KindUnknown InputKind = iota
	KindText              // job descriptions, notes
	KindJSON              // records, layouts, sessions, analysis payloads
	KindYAML              // widget overrides, config
)

func (k InputKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindJSON:
		return "json"
	case KindYAML:
		return "yaml"
	}
	return "unknown"
}

var kindsByExt = map[string]InputKind{
	".txt":      KindText,
	".text":     KindText,
	".md":       KindText,
	".markdown": KindText,
	".json":     KindJSON,
	".yaml":     KindYAML,
	".yml":      KindYAML,
}

// KindOf returns the input kind of filename from its extension.
func KindOf(filename string) InputKind {
	return kindsByExt[strings.ToLower(filepath.Ext(filename))]
}

var (
	ErrEmptyPath   = errors.New("filename cannot be empty")
	ErrIsDirectory = errors.New("path is a directory, not a file")
	ErrTooLarge    = errors.New("file exceeds the size limit")
)

// CheckInputFile checks that filename is a regular readable file of at
// most maxSize bytes. maxSize <= 0 disables the size check. Missing files
// wrap fs.ErrNotExist.
func CheckInputFile(filename string, maxSize int64) (fs.FileInfo, error) {
	if filename == "" {
		return nil, ErrEmptyPath
	}

	info, err := os.Stat(filename)
	if err != nil {
		return nil, fmt.Errorf("cannot access %s: %w", filename, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrIsDirectory, filename)
	}
	if maxSize > 0 && info.Size() > maxSize {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrTooLarge, filename, info.Size(), maxSize)
	}

	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", filename, err)
	}
	return info, f.Close()
}

// EnsureParentDir creates the directory that will hold filename.
func EnsureParentDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("cannot create directory %s: %w", dir, err)
	}
	return nil
}

// WriteFileAtomic writes data to a temporary file next to filename and
// renames it into place, so readers never see a partial session or layout.
func WriteFileAtomic(filename string, data []byte) error {
	if err := EnsureParentDir(filename); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(filename), "."+filepath.Base(filename)+".*")
	if err != nil {
		return fmt.Errorf("cannot create temporary file for %s: %w", filename, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("cannot write %s: %w", tmpName, err)
	}
	if err := tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, filename)
}
