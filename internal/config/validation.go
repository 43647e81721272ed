package config

import (
	"fmt"
	"net/url"
)

// ValidationError describes one invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate checks the configuration and returns every violation found.
func (c *Config) Validate() []error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", c.Server.Port),
		})
	}

	if c.Server.RateLimitPerMinute < 0 {
		errs = append(errs, &ValidationError{
			Field:   "server.rate_limit_per_minute",
			Message: fmt.Sprintf("rate_limit_per_minute must not be negative, got %d", c.Server.RateLimitPerMinute),
		})
	}

	if c.Investigation.MaxIterations < 1 {
		errs = append(errs, &ValidationError{
			Field:   "investigation.max_iterations",
			Message: fmt.Sprintf("max_iterations must be at least 1, got %d", c.Investigation.MaxIterations),
		})
	}

	if c.Investigation.ConfidenceThreshold <= 0 || c.Investigation.ConfidenceThreshold > 1 {
		errs = append(errs, &ValidationError{
			Field:   "investigation.confidence_threshold",
			Message: fmt.Sprintf("confidence_threshold must be in (0, 1], got %g", c.Investigation.ConfidenceThreshold),
		})
	}

	if c.Investigation.CommandTimeoutSeconds < 1 {
		errs = append(errs, &ValidationError{
			Field:   "investigation.command_timeout_seconds",
			Message: fmt.Sprintf("command_timeout_seconds must be at least 1, got %d", c.Investigation.CommandTimeoutSeconds),
		})
	}

	if c.Ollama.Enabled {
		if c.Ollama.BaseURL == "" {
			errs = append(errs, &ValidationError{
				Field:   "ollama.base_url",
				Message: "base_url is required when ollama is enabled",
			})
		} else if u, err := url.Parse(c.Ollama.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, &ValidationError{
				Field:   "ollama.base_url",
				Message: fmt.Sprintf("base_url must be a valid URL, got %q", c.Ollama.BaseURL),
			})
		}
		if c.Ollama.Model == "" {
			errs = append(errs, &ValidationError{
				Field:   "ollama.model",
				Message: "model is required when ollama is enabled",
			})
		}
		if c.Ollama.Temperature < 0 || c.Ollama.Temperature > 2 {
			errs = append(errs, &ValidationError{
				Field:   "ollama.temperature",
				Message: fmt.Sprintf("temperature must be in [0, 2], got %g", c.Ollama.Temperature),
			})
		}
		if c.Ollama.MaxTokens < 1 {
			errs = append(errs, &ValidationError{
				Field:   "ollama.max_tokens",
				Message: fmt.Sprintf("max_tokens must be at least 1, got %d", c.Ollama.MaxTokens),
			})
		}
		if c.Ollama.CacheTTLMinutes < 0 {
			errs = append(errs, &ValidationError{
				Field:   "ollama.cache_ttl_minutes",
				Message: fmt.Sprintf("cache_ttl_minutes must not be negative, got %d", c.Ollama.CacheTTLMinutes),
			})
		}
	}

	if c.Database.SQLitePath == "" {
		errs = append(errs, &ValidationError{
			Field:   "database.sqlite_path",
			Message: "sqlite_path is required",
		})
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("level must be one of debug, info, warn, error; got %q", c.Logging.Level),
		})
	}

	return errs
}
