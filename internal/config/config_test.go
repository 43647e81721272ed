package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8085, cfg.Server.Port)

	assert.Equal(t, 5, cfg.Investigation.MaxIterations)
	assert.Equal(t, 0.8, cfg.Investigation.ConfidenceThreshold)
	assert.Equal(t, 30, cfg.Investigation.CommandTimeoutSeconds)

	// Writes locked down by default
	assert.False(t, cfg.Safety.AllowDelete)
	assert.False(t, cfg.Safety.AllowCreate)
	assert.False(t, cfg.Safety.AllowUpdate)
	assert.True(t, cfg.Safety.ReadOnlyMode)

	assert.True(t, cfg.Ollama.Enabled)
	assert.Equal(t, "http://localhost:11434", cfg.Ollama.BaseURL)
	assert.Equal(t, "llama3.1:8b", cfg.Ollama.Model)

	assert.Equal(t, "devdebug.db", cfg.Database.SQLitePath)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadWithoutConfigFile(t *testing.T) {
	mgr := NewManager(filepath.Join(t.TempDir(), "missing.yaml"))

	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))

	cfg := mgr.Get(ctx)
	assert.Equal(t, 5, cfg.Investigation.MaxIterations)
	assert.True(t, cfg.Safety.ReadOnlyMode)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devdebug.yaml")
	content := `
server:
  port: 9090
investigation:
  max_iterations: 8
  confidence_threshold: 0.75
safety:
  read_only_mode: false
  allow_delete: true
  forbidden_substrings:
    - "rm -rf"
    - "mkfs"
ollama:
  model: "mistral:7b"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	mgr := NewManager(path)
	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))

	cfg := mgr.Get(ctx)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Investigation.MaxIterations)
	assert.Equal(t, 0.75, cfg.Investigation.ConfidenceThreshold)
	assert.False(t, cfg.Safety.ReadOnlyMode)
	assert.True(t, cfg.Safety.AllowDelete)
	assert.Equal(t, []string{"rm -rf", "mkfs"}, cfg.Safety.ForbiddenSubstrings)
	assert.Equal(t, "mistral:7b", cfg.Ollama.Model)

	// Untouched sections keep defaults
	assert.Equal(t, 30, cfg.Investigation.CommandTimeoutSeconds)
	assert.Equal(t, "http://localhost:11434", cfg.Ollama.BaseURL)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DEVDEBUG_INVESTIGATION_MAX_ITERATIONS", "3")
	t.Setenv("OLLAMA_BASE_URL", "http://ollama.internal:11434")

	mgr := NewManager(filepath.Join(t.TempDir(), "missing.yaml"))
	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))

	cfg := mgr.Get(ctx)
	assert.Equal(t, 3, cfg.Investigation.MaxIterations)
	assert.Equal(t, "http://ollama.internal:11434", cfg.Ollama.BaseURL)
}

func TestValidateDefaults(t *testing.T) {
	assert.Empty(t, DefaultConfig().Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"zero iterations", func(c *Config) { c.Investigation.MaxIterations = 0 }, "investigation.max_iterations"},
		{"threshold above one", func(c *Config) { c.Investigation.ConfidenceThreshold = 1.5 }, "investigation.confidence_threshold"},
		{"zero timeout", func(c *Config) { c.Investigation.CommandTimeoutSeconds = 0 }, "investigation.command_timeout_seconds"},
		{"bad ollama url", func(c *Config) { c.Ollama.BaseURL = "not a url" }, "ollama.base_url"},
		{"empty model", func(c *Config) { c.Ollama.Model = "" }, "ollama.model"},
		{"empty db path", func(c *Config) { c.Database.SQLitePath = "" }, "database.sqlite_path"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			errs := cfg.Validate()
			require.NotEmpty(t, errs)

			found := false
			for _, err := range errs {
				if ve, ok := err.(*ValidationError); ok && ve.Field == tt.field {
					found = true
				}
			}
			assert.True(t, found, "expected a validation error for %s, got %v", tt.field, errs)
		})
	}
}

func TestValidateSkipsOllamaWhenDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Ollama.Enabled = false
	cfg.Ollama.BaseURL = ""
	cfg.Ollama.Model = ""

	assert.Empty(t, cfg.Validate())
}

func TestReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devdebug.yaml")
	require.NoError(t, os.WriteFile(path, []byte("investigation:\n  max_iterations: 4\n"), 0o644))

	mgr := NewManager(path)
	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))
	assert.Equal(t, 4, mgr.Get(ctx).Investigation.MaxIterations)

	require.NoError(t, os.WriteFile(path, []byte("investigation:\n  max_iterations: 7\n"), 0o644))
	require.NoError(t, mgr.Reload(ctx))
	assert.Equal(t, 7, mgr.Get(ctx).Investigation.MaxIterations)
}
