package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// loadPromptsFromFiles reads every configured prompt file into the
// loaded-prompts table, replacing whatever a previous load left there.
func (c *Config) loadPromptsFromFiles() error {
	resetLoadedPrompts()

	loaded := 0
	for _, op := range sortedOperations(c) {
		prompts := c.operationConfigs()[op].Prompts
		var p LoadedPrompts

		if prompts.SystemFile != "" {
			content, err := loadPromptFromFile(prompts.SystemFile, "system", op)
			if err != nil {
				return err
			}
			p.System = content
			loaded++
		}
		if prompts.UserFile != "" {
			content, err := loadPromptFromFile(prompts.UserFile, "user", op)
			if err != nil {
				return err
			}
			p.User = content
			loaded++
		}

		if p.System != "" || p.User != "" {
			setLoadedPrompts(op, p)
		}
	}

	if loaded == 0 {
		log.Println("[CONFIG] No custom prompt files - using built-in prompts")
	} else {
		log.Printf("[CONFIG] Loaded %d custom prompt file(s)", loaded)
	}
	return nil
}

// loadPromptFromFile reads and trims a prompt file. Empty files are an error.
func loadPromptFromFile(filePath, promptType, operation string) (string, error) {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path for %s %s prompt file '%s': %w", operation, promptType, filePath, err)
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s %s prompt file not found: %s", operation, promptType, absPath)
		}
		return "", fmt.Errorf("failed to read %s %s prompt file '%s': %w", operation, promptType, absPath, err)
	}

	trimmed := strings.TrimSpace(string(content))
	if trimmed == "" {
		return "", fmt.Errorf("%s %s prompt file '%s' is empty", operation, promptType, absPath)
	}

	log.Printf("[CONFIG] Loaded %s %s prompt from %s (%d characters)", operation, promptType, absPath, len(trimmed))
	return trimmed, nil
}

// validatePromptFiles reports every missing prompt file at once.
func (c *Config) validatePromptFiles() error {
	var problems []string

	check := func(filePath, promptType, op string) {
		if filePath == "" {
			return
		}
		absPath, err := filepath.Abs(filePath)
		if err != nil {
			problems = append(problems, fmt.Sprintf("invalid path for %s %s prompt: %s", op, promptType, filePath))
			return
		}
		if _, err := os.Stat(absPath); os.IsNotExist(err) {
			problems = append(problems, fmt.Sprintf("%s %s prompt file not found: %s", op, promptType, absPath))
		}
	}

	for _, op := range sortedOperations(c) {
		prompts := c.operationConfigs()[op].Prompts
		check(prompts.SystemFile, "system", op)
		check(prompts.UserFile, "user", op)
	}

	if len(problems) > 0 {
		return fmt.Errorf("prompt file validation failed:\n%s", strings.Join(problems, "\n"))
	}
	return nil
}

func sortedOperations(c *Config) []string {
	ops := make([]string, 0, 3)
	for op := range c.operationConfigs() {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}
