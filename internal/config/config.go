// Package config loads and validates the devdebug configuration.
//
// Sources, in priority order: environment variables (DEVDEBUG_* prefix),
// a YAML config file (default: devdebug.yaml in the working directory),
// then built-in defaults. The config file is optional; a missing file
// falls back to defaults plus whatever the environment sets.
package config

import "context"

// Config contains every tunable the engine consumes.
type Config struct {
	// Server configuration
	Server struct {
		Port int
		// AllowedOrigins is the list of origins permitted to open
		// WebSocket connections. Use ["*"] to allow any origin
		// (development only).
		AllowedOrigins []string
		// RateLimitPerMinute caps API requests per client per minute.
		// Zero disables rate limiting.
		RateLimitPerMinute int
	}

	// Investigation loop configuration
	Investigation struct {
		// MaxIterations bounds the number of evidence-gathering rounds.
		MaxIterations int
		// ConfidenceThreshold is the analyzer confidence at which the
		// loop concludes.
		ConfidenceThreshold float64
		// CommandTimeoutSeconds bounds each kubectl execution.
		CommandTimeoutSeconds int
	}

	// Safety configuration. Everything defaults closed: write
	// operations require explicit opt-in.
	Safety struct {
		AllowDelete  bool
		AllowCreate  bool
		AllowUpdate  bool
		ReadOnlyMode bool
		// ForbiddenSubstrings always block, regardless of flags.
		// Empty means the built-in denylist.
		ForbiddenSubstrings []string
	}

	// Extractor configuration
	Extractor struct {
		// StatusVocabulary lists Kubernetes status words that look
		// like placeholders but are legitimate literal arguments.
		// Empty means the built-in vocabulary.
		StatusVocabulary []string
	}

	// Ollama inference backend
	Ollama struct {
		Enabled     bool
		BaseURL     string
		Model       string
		Temperature float64
		MaxTokens   int
		// CacheTTLMinutes keeps identical completions cached so a
		// repeated investigation context does not hit the backend
		// twice. Zero disables the cache.
		CacheTTLMinutes int
	}

	// Database configuration
	Database struct {
		SQLitePath string
	}

	// Docs configuration
	Docs struct {
		// Path is the directory of reference documents searched for
		// context snippets. Empty disables retrieval.
		Path string
	}

	// Logging configuration
	Logging struct {
		Level        string
		AppLogPath   string
		AuditLogPath string
		MaxSizeMB    int
		MaxBackups   int
		MaxAgeDays   int
		Compress     bool
	}
}

// Manager defines the interface for configuration access.
type Manager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate checks the loaded configuration is usable.
	Validate(ctx context.Context) error

	// Watch emits updated configurations when the config file changes.
	Watch(ctx context.Context) <-chan Config

	// Reload re-reads configuration from sources.
	Reload(ctx context.Context) error
}

// NewManager creates a configuration manager reading from configPath.
func NewManager(configPath string) Manager {
	return &viperManager{
		configPath: configPath,
		config:     DefaultConfig(),
		watchChan:  make(chan Config, 1),
	}
}

// NewManagerWithDefaults creates a manager with the default config path.
func NewManagerWithDefaults() Manager {
	return NewManager("devdebug.yaml")
}
