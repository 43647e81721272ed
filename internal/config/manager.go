package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// viperManager implements Manager using Viper.
type viperManager struct {
	configPath string
	config     *Config
	viper      *viper.Viper
	watchChan  chan Config
}

func (m *viperManager) Load(ctx context.Context) error {
	m.viper = viper.New()
	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType("yaml")

	m.viper.SetEnvPrefix("DEVDEBUG")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	m.setDefaults()

	// The config file is optional; defaults plus env vars suffice.
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// no file, use defaults
		} else if os.IsNotExist(err) {
			// same, reported through the os layer
		} else {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	m.unmarshalConfig()
	m.applyEnvOverrides()
	return nil
}

func (m *viperManager) Get(ctx context.Context) *Config {
	return m.config
}

func (m *viperManager) Validate(ctx context.Context) error {
	errs := m.config.Validate()
	if len(errs) > 0 {
		var msgs []string
		for _, err := range errs {
			msgs = append(msgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
	}
	return nil
}

func (m *viperManager) Watch(ctx context.Context) <-chan Config {
	m.viper.WatchConfig()
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		m.unmarshalConfig()
		select {
		case m.watchChan <- *m.config:
		default:
			// channel full, drop this update
		}
	})
	return m.watchChan
}

func (m *viperManager) Reload(ctx context.Context) error {
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	m.unmarshalConfig()
	m.applyEnvOverrides()
	return nil
}

func (m *viperManager) setDefaults() {
	defaults := DefaultConfig()

	m.viper.SetDefault("server.port", defaults.Server.Port)
	m.viper.SetDefault("server.allowed_origins", defaults.Server.AllowedOrigins)
	m.viper.SetDefault("server.rate_limit_per_minute", defaults.Server.RateLimitPerMinute)

	m.viper.SetDefault("investigation.max_iterations", defaults.Investigation.MaxIterations)
	m.viper.SetDefault("investigation.confidence_threshold", defaults.Investigation.ConfidenceThreshold)
	m.viper.SetDefault("investigation.command_timeout_seconds", defaults.Investigation.CommandTimeoutSeconds)

	m.viper.SetDefault("safety.allow_delete", defaults.Safety.AllowDelete)
	m.viper.SetDefault("safety.allow_create", defaults.Safety.AllowCreate)
	m.viper.SetDefault("safety.allow_update", defaults.Safety.AllowUpdate)
	m.viper.SetDefault("safety.read_only_mode", defaults.Safety.ReadOnlyMode)
	m.viper.SetDefault("safety.forbidden_substrings", defaults.Safety.ForbiddenSubstrings)

	m.viper.SetDefault("extractor.status_vocabulary", defaults.Extractor.StatusVocabulary)

	m.viper.SetDefault("ollama.enabled", defaults.Ollama.Enabled)
	m.viper.SetDefault("ollama.base_url", defaults.Ollama.BaseURL)
	m.viper.SetDefault("ollama.model", defaults.Ollama.Model)
	m.viper.SetDefault("ollama.temperature", defaults.Ollama.Temperature)
	m.viper.SetDefault("ollama.max_tokens", defaults.Ollama.MaxTokens)
	m.viper.SetDefault("ollama.cache_ttl_minutes", defaults.Ollama.CacheTTLMinutes)

	m.viper.SetDefault("database.sqlite_path", defaults.Database.SQLitePath)

	m.viper.SetDefault("docs.path", defaults.Docs.Path)

	m.viper.SetDefault("logging.level", defaults.Logging.Level)
	m.viper.SetDefault("logging.app_log_path", defaults.Logging.AppLogPath)
	m.viper.SetDefault("logging.audit_log_path", defaults.Logging.AuditLogPath)
	m.viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	m.viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	m.viper.SetDefault("logging.max_age_days", defaults.Logging.MaxAgeDays)
	m.viper.SetDefault("logging.compress", defaults.Logging.Compress)
}

func (m *viperManager) unmarshalConfig() {
	cfg := &Config{}

	cfg.Server.Port = m.viper.GetInt("server.port")
	cfg.Server.AllowedOrigins = m.viper.GetStringSlice("server.allowed_origins")
	cfg.Server.RateLimitPerMinute = m.viper.GetInt("server.rate_limit_per_minute")

	cfg.Investigation.MaxIterations = m.viper.GetInt("investigation.max_iterations")
	cfg.Investigation.ConfidenceThreshold = m.viper.GetFloat64("investigation.confidence_threshold")
	cfg.Investigation.CommandTimeoutSeconds = m.viper.GetInt("investigation.command_timeout_seconds")

	cfg.Safety.AllowDelete = m.viper.GetBool("safety.allow_delete")
	cfg.Safety.AllowCreate = m.viper.GetBool("safety.allow_create")
	cfg.Safety.AllowUpdate = m.viper.GetBool("safety.allow_update")
	cfg.Safety.ReadOnlyMode = m.viper.GetBool("safety.read_only_mode")
	cfg.Safety.ForbiddenSubstrings = m.viper.GetStringSlice("safety.forbidden_substrings")

	cfg.Extractor.StatusVocabulary = m.viper.GetStringSlice("extractor.status_vocabulary")

	cfg.Ollama.Enabled = m.viper.GetBool("ollama.enabled")
	cfg.Ollama.BaseURL = m.viper.GetString("ollama.base_url")
	cfg.Ollama.Model = m.viper.GetString("ollama.model")
	cfg.Ollama.Temperature = m.viper.GetFloat64("ollama.temperature")
	cfg.Ollama.MaxTokens = m.viper.GetInt("ollama.max_tokens")
	cfg.Ollama.CacheTTLMinutes = m.viper.GetInt("ollama.cache_ttl_minutes")

	cfg.Database.SQLitePath = m.viper.GetString("database.sqlite_path")

	cfg.Docs.Path = m.viper.GetString("docs.path")

	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.AppLogPath = m.viper.GetString("logging.app_log_path")
	cfg.Logging.AuditLogPath = m.viper.GetString("logging.audit_log_path")
	cfg.Logging.MaxSizeMB = m.viper.GetInt("logging.max_size_mb")
	cfg.Logging.MaxBackups = m.viper.GetInt("logging.max_backups")
	cfg.Logging.MaxAgeDays = m.viper.GetInt("logging.max_age_days")
	cfg.Logging.Compress = m.viper.GetBool("logging.compress")

	m.config = cfg
}

// applyEnvOverrides handles the env vars that do not follow the
// DEVDEBUG_SECTION_KEY convention.
func (m *viperManager) applyEnvOverrides() {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		m.config.Ollama.BaseURL = baseURL
	}
	if model := os.Getenv("OLLAMA_MODEL"); model != "" {
		m.config.Ollama.Model = model
	}
}
