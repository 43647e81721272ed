package main

// Entry point for the devdebug server.
//
// Responsibilities:
//   - Load and validate configuration from YAML and environment variables
//   - Open the SQLite store for sessions, steps, and learned patterns
//   - Wire the investigation controller: analyzer, planner, safety gate,
//     executor, audit trail, docs retriever, optional Ollama backend
//   - Serve the REST API, WebSocket event streams, and Prometheus metrics
//   - Shut down gracefully on SIGINT/SIGTERM, flushing the audit log
//
// With -query the process runs a single investigation instead of
// serving, printing the final report as JSON.

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/devdebug/devdebug-ai/internal/audit"
	"github.com/devdebug/devdebug-ai/internal/cache"
	"github.com/devdebug/devdebug-ai/internal/config"
	"github.com/devdebug/devdebug-ai/internal/db"
	"github.com/devdebug/devdebug-ai/internal/docs"
	"github.com/devdebug/devdebug-ai/internal/executor"
	"github.com/devdebug/devdebug-ai/internal/extract"
	"github.com/devdebug/devdebug-ai/internal/investigation"
	"github.com/devdebug/devdebug-ai/internal/llm"
	"github.com/devdebug/devdebug-ai/internal/llm/ollama"
	"github.com/devdebug/devdebug-ai/internal/patterns"
	"github.com/devdebug/devdebug-ai/internal/safety"
	"github.com/devdebug/devdebug-ai/internal/server"
)

func main() {
	configPath := flag.String("config", "devdebug.yaml", "path to configuration file")
	query := flag.String("query", "", "run a single investigation and print the report instead of serving")
	namespace := flag.String("namespace", "", "namespace for -query mode")
	flag.Parse()

	if err := run(*configPath, *query, *namespace); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(configPath, query, namespace string) error {
	ctx := context.Background()

	manager := config.NewManager(configPath)
	if err := manager.Load(ctx); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := manager.Validate(ctx); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	cfg := manager.Get(ctx)

	auditLog, err := audit.NewLogger(&audit.Config{
		AuditLogPath: cfg.Logging.AuditLogPath,
		AppLogPath:   cfg.Logging.AppLogPath,
		MaxSize:      cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAge:       cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		LogLevel:     cfg.Logging.Level,
	})
	if err != nil {
		return fmt.Errorf("failed to open logs: %w", err)
	}
	defer auditLog.Close()
	logger := auditLog.App()

	store, err := db.NewSQLiteStore(cfg.Database.SQLitePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	var model llm.Client = llm.Disabled{}
	if cfg.Ollama.Enabled {
		model = ollama.New(cfg.Ollama.BaseURL, cfg.Ollama.Model, cfg.Ollama.Temperature, cfg.Ollama.MaxTokens)
		if cfg.Ollama.CacheTTLMinutes > 0 {
			ttl := time.Duration(cfg.Ollama.CacheTTLMinutes) * time.Minute
			model = llm.NewCached(model, cache.New(ttl, 0))
		}
		if model.Available(ctx) {
			logger.Info("inference backend ready",
				zap.String("base_url", cfg.Ollama.BaseURL),
				zap.String("model", cfg.Ollama.Model))
		} else {
			logger.Warn("inference backend unreachable, running on deterministic fallbacks",
				zap.String("base_url", cfg.Ollama.BaseURL))
		}
	}

	retriever := docs.Retriever(docs.None{})
	if cfg.Docs.Path != "" {
		r, err := docs.NewFSRetriever(cfg.Docs.Path)
		if err != nil {
			logger.Warn("docs retrieval disabled", zap.Error(err))
		} else {
			retriever = r
		}
	}

	gate := safety.NewGate(safety.Policy{
		AllowDelete:         cfg.Safety.AllowDelete,
		AllowCreate:         cfg.Safety.AllowCreate,
		AllowUpdate:         cfg.Safety.AllowUpdate,
		ReadOnlyMode:        cfg.Safety.ReadOnlyMode,
		ForbiddenSubstrings: cfg.Safety.ForbiddenSubstrings,
	}, model)

	learned := patterns.NewStore(store)
	screener := extract.NewScreener(cfg.Extractor.StatusVocabulary)

	controller := investigation.NewController(investigation.Deps{
		Analyzer:            investigation.NewAnalyzer(model, cfg.Investigation.ConfidenceThreshold, logger),
		Planner:             investigation.NewPlanner(model, screener, learned, logger),
		Gate:                gate,
		Runner:              executor.NewRunner(),
		Store:               store,
		Learned:             learned,
		Docs:                retriever,
		Model:               model,
		Audit:               auditLog,
		Logger:              logger,
		MaxIterations:       cfg.Investigation.MaxIterations,
		ConfidenceThreshold: cfg.Investigation.ConfidenceThreshold,
		CommandTimeout:      time.Duration(cfg.Investigation.CommandTimeoutSeconds) * time.Second,
	})

	if query != "" {
		return runOnce(ctx, controller, query, namespace)
	}

	srv, err := server.NewServer(cfg, controller, store, model, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutdown signal received")

	return srv.Stop()
}

// runOnce drives one synchronous investigation and prints the report.
func runOnce(ctx context.Context, controller *investigation.Controller, query, namespace string) error {
	report, err := controller.Run(ctx, query, namespace, "")
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
