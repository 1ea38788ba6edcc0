package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfigFileDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "app:\n  logLevel: warn\n")

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.App.LogLevel)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "lg", cfg.App.DefaultBreakpoint)
	assert.Equal(t, "live", cfg.App.DefaultMode)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "disabled", cfg.Server.TLS.Mode)
	assert.Equal(t, 500*time.Millisecond, cfg.Widgets.DebounceDelay)
	require.NotNil(t, cfg.AI.CheatSheet.Timeout)
	assert.Equal(t, 90*time.Second, *cfg.AI.CheatSheet.Timeout)
	assert.True(t, cfg.AI.Answer.CircuitBreaker.Enabled)
	assert.Equal(t, 10*time.Minute, cfg.Server.RateLimit.Window)
	assert.Equal(t, 5, cfg.Server.RateLimit.AICost)
}

func TestLoadConfigFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
storage:
  driver: sqlite
  path: /tmp/jobcoach-test.db
widgets:
  overridesFile: widgets.yaml
  watch: true
ai:
  model: gemini-2.5-pro
  answer:
    temperature: 0.9
`)

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "/tmp/jobcoach-test.db", cfg.Storage.Path)
	assert.True(t, cfg.Widgets.Watch)

	answer := cfg.GetAnswerConfig()
	assert.Equal(t, "gemini-2.5-pro", answer.Model)
	require.NotNil(t, answer.Temperature)
	assert.InDelta(t, 0.9, float64(*answer.Temperature), 0.0001)
}

func TestLoadConfigFileMissing(t *testing.T) {
	_, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func validConfig() *Config {
	return &Config{
		AI:     AIConfig{Timeout: time.Second},
		Server: ServerConfig{Port: "8080", TLS: TLSConfig{Mode: "disabled"}},
		App: AppConfig{
			DefaultFormat:     "json",
			SupportedFormats:  []string{"json", "text"},
			DefaultBreakpoint: "lg",
			DefaultMode:       "live",
		},
		Storage: StorageConfig{Driver: "memory"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing api key is allowed", mutate: func(c *Config) { c.AI.APIKey = "" }},
		{name: "zero timeout", mutate: func(c *Config) { c.AI.Timeout = 0 }, expectError: true},
		{name: "missing port", mutate: func(c *Config) { c.Server.Port = "" }, expectError: true},
		{name: "unsupported format", mutate: func(c *Config) { c.App.DefaultFormat = "pdf" }, expectError: true},
		{name: "bad breakpoint", mutate: func(c *Config) { c.App.DefaultBreakpoint = "xl" }, expectError: true},
		{name: "bad mode", mutate: func(c *Config) { c.App.DefaultMode = "review" }, expectError: true},
		{name: "unknown driver", mutate: func(c *Config) { c.Storage.Driver = "postgres" }, expectError: true},
		{name: "sqlite without path", mutate: func(c *Config) { c.Storage.Driver = "sqlite" }, expectError: true},
		{name: "sqlite with path", mutate: func(c *Config) { c.Storage = StorageConfig{Driver: "sqlite", Path: "x.db"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateTLSConfig(t *testing.T) {
	tests := []struct {
		name        string
		tls         TLSConfig
		expectError bool
	}{
		{name: "disabled", tls: TLSConfig{Mode: "disabled"}},
		{name: "invalid mode", tls: TLSConfig{Mode: "sometimes"}, expectError: true},
		{name: "server with files", tls: TLSConfig{Mode: "server", CertFile: "c.pem", KeyFile: "k.pem"}},
		{name: "server with content", tls: TLSConfig{Mode: "server", CertContent: "C", KeyContent: "K"}},
		{name: "server missing key", tls: TLSConfig{Mode: "server", CertFile: "c.pem"}, expectError: true},
		{name: "server duplicate cert", tls: TLSConfig{Mode: "server", CertFile: "c.pem", CertContent: "C", KeyFile: "k.pem"}, expectError: true},
		{name: "mutual without CA", tls: TLSConfig{Mode: "mutual", CertFile: "c.pem", KeyFile: "k.pem"}, expectError: true},
		{name: "mutual with CA", tls: TLSConfig{Mode: "mutual", CertFile: "c.pem", KeyFile: "k.pem", CAFile: "ca.pem"}},
		{name: "mutual duplicate CA", tls: TLSConfig{Mode: "mutual", CertFile: "c.pem", KeyFile: "k.pem", CAFile: "ca.pem", CAContent: "CA"}, expectError: true},
		{name: "mutual bad policy", tls: TLSConfig{Mode: "mutual", CertFile: "c.pem", KeyFile: "k.pem", CAFile: "ca.pem", ClientAuthPolicy: "maybe"}, expectError: true},
		{name: "bad min version", tls: TLSConfig{Mode: "server", CertFile: "c.pem", KeyFile: "k.pem", MinVersion: "1.0"}, expectError: true},
		{name: "tls 1.3", tls: TLSConfig{Mode: "server", CertFile: "c.pem", KeyFile: "k.pem", MinVersion: "1.3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Server: ServerConfig{TLS: tt.tls}}
			err := cfg.ValidateTLSConfig()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGetOperationConfigFallbacks(t *testing.T) {
	opTimeout := 5 * time.Second
	cfg := &Config{AI: AIConfig{
		Provider:         "gemini",
		Model:            "global-model",
		Timeout:          30 * time.Second,
		APIKey:           "global-key",
		MaxRetries:       4,
		Temperature:      0.5,
		UseSystemPrompts: true,
		Outline:          OperationAIConfig{Model: "outline-model", Timeout: &opTimeout},
	}}

	outline := cfg.GetOutlineConfig()
	assert.Equal(t, "outline-model", outline.Model)
	assert.Equal(t, opTimeout, *outline.Timeout)
	assert.Equal(t, "global-key", outline.APIKey)
	assert.Equal(t, 4, *outline.MaxRetries)

	cheat := cfg.GetCheatSheetConfig()
	assert.Equal(t, "global-model", cheat.Model)
	assert.Equal(t, 30*time.Second, *cheat.Timeout)

	// Resolved pointers must not alias the global block.
	*cheat.MaxRetries = 99
	assert.Equal(t, 4, cfg.AI.MaxRetries)
}

func TestPromptFiles(t *testing.T) {
	dir := t.TempDir()
	system := writeFile(t, dir, "system.md", "  You are an interview coach.  \n")
	user := writeFile(t, dir, "user.md", "Job: %s")
	empty := writeFile(t, dir, "empty.md", "   \n")

	t.Run("loads into operation config", func(t *testing.T) {
		cfg := &Config{AI: AIConfig{CheatSheet: OperationAIConfig{Prompts: PromptConfig{
			System:     "inline system",
			SystemFile: system,
			UserFile:   user,
		}}}}
		require.NoError(t, cfg.validatePromptFiles())
		require.NoError(t, cfg.loadPromptsFromFiles())

		resolved := cfg.GetCheatSheetConfig()
		assert.Equal(t, "You are an interview coach.", resolved.Prompts.System)
		assert.Equal(t, "Job: %s", resolved.Prompts.User)
		assert.Empty(t, GetPromptsForOperation(OpAnswer).System)
	})

	t.Run("missing file fails validation", func(t *testing.T) {
		cfg := &Config{AI: AIConfig{Answer: OperationAIConfig{Prompts: PromptConfig{UserFile: filepath.Join(dir, "nope.md")}}}}
		err := cfg.validatePromptFiles()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "answer user prompt file not found")
	})

	t.Run("empty file fails loading", func(t *testing.T) {
		cfg := &Config{AI: AIConfig{Outline: OperationAIConfig{Prompts: PromptConfig{SystemFile: empty}}}}
		err := cfg.loadPromptsFromFiles()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "is empty")
	})
}

func TestSplitAndTrim(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitAndTrim(" a , ,b "))
	assert.Empty(t, splitAndTrim(""))
}
