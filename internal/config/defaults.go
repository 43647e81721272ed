package config

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Server defaults
	cfg.Server.Port = 8085
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	cfg.Server.RateLimitPerMinute = 120

	// Investigation defaults
	cfg.Investigation.MaxIterations = 5
	cfg.Investigation.ConfidenceThreshold = 0.8
	cfg.Investigation.CommandTimeoutSeconds = 30

	// Safety defaults: read-only, nothing destructive permitted
	cfg.Safety.AllowDelete = false
	cfg.Safety.AllowCreate = false
	cfg.Safety.AllowUpdate = false
	cfg.Safety.ReadOnlyMode = true
	cfg.Safety.ForbiddenSubstrings = nil

	// Extractor defaults: nil means the built-in vocabulary
	cfg.Extractor.StatusVocabulary = nil

	// Ollama defaults
	cfg.Ollama.Enabled = true
	cfg.Ollama.BaseURL = "http://localhost:11434"
	cfg.Ollama.Model = "llama3.1:8b"
	cfg.Ollama.Temperature = 0.7
	cfg.Ollama.MaxTokens = 1000
	cfg.Ollama.CacheTTLMinutes = 60

	// Database defaults
	cfg.Database.SQLitePath = "devdebug.db"

	// Docs defaults
	cfg.Docs.Path = ""

	// Logging defaults
	cfg.Logging.Level = "info"
	cfg.Logging.AppLogPath = "logs/app.log"
	cfg.Logging.AuditLogPath = "logs/audit.log"
	cfg.Logging.MaxSizeMB = 100
	cfg.Logging.MaxBackups = 10
	cfg.Logging.MaxAgeDays = 30
	cfg.Logging.Compress = true

	return cfg
}
