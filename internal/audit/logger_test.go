package audit

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/devdebug/devdebug-ai/internal/executor"
)

func newTestLogger(t *testing.T) (Logger, string) {
	t.Helper()
	tmpDir := t.TempDir()

	config := &Config{
		AuditLogPath: filepath.Join(tmpDir, "audit.log"),
		AppLogPath:   filepath.Join(tmpDir, "app.log"),
		MaxSize:      10,
		MaxBackups:   3,
		MaxAge:       7,
		LogLevel:     "info",
	}

	logger, err := NewLogger(config)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	t.Cleanup(func() { logger.Close() })

	return logger, config.AuditLogPath
}

// readTrail syncs and parses the audit log into events.
func readTrail(t *testing.T, logger Logger, path string) []Event {
	t.Helper()
	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading audit log: %v", err)
	}

	var events []Event
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		// Each line is a zap record whose message is the event JSON.
		var record struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			t.Fatalf("parsing log line: %v", err)
		}
		var event Event
		if err := json.Unmarshal([]byte(record.Message), &event); err != nil {
			t.Fatalf("parsing event: %v", err)
		}
		events = append(events, event)
	}
	return events
}

func TestNewLoggerInvalidLevel(t *testing.T) {
	tmpDir := t.TempDir()
	_, err := NewLogger(&Config{
		AuditLogPath: filepath.Join(tmpDir, "audit.log"),
		AppLogPath:   filepath.Join(tmpDir, "app.log"),
		LogLevel:     "chatty",
	})
	if err == nil {
		t.Fatal("expected error for invalid log level")
	}
	if !strings.Contains(err.Error(), "invalid log level") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSessionLifecycleEvents(t *testing.T) {
	logger, path := newTestLogger(t)
	ctx := context.Background()

	if err := logger.LogSessionStarted(ctx, "sess-1", "pods crashing in production"); err != nil {
		t.Fatalf("LogSessionStarted: %v", err)
	}
	if err := logger.LogSessionConcluded(ctx, "sess-1", 3, 0.9, 42*time.Second); err != nil {
		t.Fatalf("LogSessionConcluded: %v", err)
	}
	if err := logger.LogSessionFailed(ctx, "sess-2", errors.New("query must not be empty")); err != nil {
		t.Fatalf("LogSessionFailed: %v", err)
	}

	events := readTrail(t, logger, path)
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}

	if events[0].EventType != EventSessionStarted || events[0].SessionID != "sess-1" {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	if events[1].Confidence != 0.9 || events[1].DurationMs != 42000 {
		t.Errorf("concluded event missing details: %+v", events[1])
	}
	if events[2].Result != ResultFailure || events[2].Error == "" {
		t.Errorf("failed event not marked failure: %+v", events[2])
	}
}

func TestCommandEvents(t *testing.T) {
	logger, path := newTestLogger(t)
	ctx := context.Background()

	code := 0
	ok := executor.CommandResult{
		Command:  "kubectl get pods",
		ExitCode: &code,
		Duration: 120 * time.Millisecond,
	}
	timedOut := executor.CommandResult{
		Command:  "kubectl logs huge-pod",
		TimedOut: true,
		Duration: 30 * time.Second,
	}

	if err := logger.LogCommandExecuted(ctx, "sess-1", 1, ok); err != nil {
		t.Fatalf("LogCommandExecuted: %v", err)
	}
	if err := logger.LogCommandExecuted(ctx, "sess-1", 2, timedOut); err != nil {
		t.Fatalf("LogCommandExecuted: %v", err)
	}
	if err := logger.LogCommandBlocked(ctx, "sess-1", 2, "kubectl delete pod web", "delete operation not permitted"); err != nil {
		t.Fatalf("LogCommandBlocked: %v", err)
	}

	events := readTrail(t, logger, path)
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}

	if events[0].EventType != EventCommandExecuted || events[0].ExitCode == nil || *events[0].ExitCode != 0 {
		t.Errorf("unexpected executed event: %+v", events[0])
	}
	if events[1].EventType != EventCommandTimeout || events[1].Result != ResultFailure {
		t.Errorf("timeout not recorded: %+v", events[1])
	}
	if events[2].EventType != EventCommandBlocked || events[2].Result != ResultDenied {
		t.Errorf("block not recorded: %+v", events[2])
	}
	if events[2].Description != "delete operation not permitted" {
		t.Errorf("block reason lost: %q", events[2].Description)
	}
}

func TestEventBuilder(t *testing.T) {
	e := NewEvent(EventAnalysisCompleted).
		WithSession("sess-9").
		WithCommand("kubectl describe pod x", 2).
		WithMetadata("strategy", "pattern")

	if e.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
	if e.Result != ResultSuccess {
		t.Errorf("default result = %q, want success", e.Result)
	}
	if e.Iteration != 2 || e.Metadata["strategy"] != "pattern" {
		t.Errorf("builder fields lost: %+v", e)
	}
}

func TestCloseFlushesBuffer(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "audit.log")
	logger, err := NewLogger(&Config{
		AuditLogPath: path,
		AppLogPath:   filepath.Join(tmpDir, "app.log"),
		LogLevel:     "info",
	})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	if err := logger.LogSessionStarted(context.Background(), "sess-1", "q"); err != nil {
		t.Fatalf("LogSessionStarted: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading audit log: %v", err)
	}
	if !strings.Contains(string(data), string(EventSessionStarted)) {
		t.Error("buffered event not flushed on Close")
	}
}
