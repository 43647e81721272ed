// Package audit provides append-only audit logging for investigation
// sessions alongside a structured application logger. Both sinks rotate
// via lumberjack; audit events are JSON lines, one per event.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/devdebug/devdebug-ai/internal/executor"
)

// Logger records audit events and exposes the application logger.
type Logger interface {
	// Log records a single audit event.
	Log(ctx context.Context, event *Event) error

	// Session lifecycle
	LogSessionStarted(ctx context.Context, sessionID, query string) error
	LogSessionConcluded(ctx context.Context, sessionID string, iterations int, confidence float64, duration time.Duration) error
	LogSessionFailed(ctx context.Context, sessionID string, err error) error

	// Command lifecycle
	LogCommandExecuted(ctx context.Context, sessionID string, iteration int, result executor.CommandResult) error
	LogCommandBlocked(ctx context.Context, sessionID string, iteration int, command, reason string) error

	// App returns the application logger for regular structured logging.
	App() *zap.Logger

	// Sync flushes buffered entries.
	Sync() error

	// Close flushes and stops the logger.
	Close() error
}

// Config controls log destinations and rotation.
type Config struct {
	// AuditLogPath is the append-only audit trail.
	AuditLogPath string

	// AppLogPath is the application log.
	AppLogPath string

	// MaxSize is the maximum size in megabytes before rotation.
	MaxSize int

	// MaxBackups is the number of rotated files to retain.
	MaxBackups int

	// MaxAge is the retention in days for rotated files.
	MaxAge int

	// Compress gzips rotated files.
	Compress bool

	// LogLevel is the minimum application log level (debug, info, warn, error).
	LogLevel string
}

// DefaultConfig returns the standard log locations and retention.
func DefaultConfig() *Config {
	return &Config{
		AuditLogPath: "logs/audit.log",
		AppLogPath:   "logs/app.log",
		MaxSize:      100,
		MaxBackups:   10,
		MaxAge:       30,
		Compress:     true,
		LogLevel:     "info",
	}
}

type auditLogger struct {
	app   *zap.Logger
	trail *zap.Logger

	mu          sync.Mutex
	buffer      []*Event
	flushTicker *time.Ticker
	stopCh      chan struct{}
	stopOnce    sync.Once
}

const flushThreshold = 100

// NewLogger opens both log sinks. A nil config gets DefaultConfig.
func NewLogger(config *Config) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	level, err := zapcore.ParseLevel(config.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", config.LogLevel, err)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	appCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(&lumberjack.Logger{
			Filename:   config.AppLogPath,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		}),
		level,
	)
	app := zap.New(appCore, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	// The audit trail is always written, independent of the app level.
	trailCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(&lumberjack.Logger{
			Filename:   config.AuditLogPath,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		}),
		zapcore.InfoLevel,
	)
	trail := zap.New(trailCore)

	l := &auditLogger{
		app:         app,
		trail:       trail,
		buffer:      make([]*Event, 0, flushThreshold),
		flushTicker: time.NewTicker(1 * time.Second),
		stopCh:      make(chan struct{}),
	}
	go l.autoFlush()

	return l, nil
}

func (l *auditLogger) Log(ctx context.Context, event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buffer = append(l.buffer, event)
	if len(l.buffer) >= flushThreshold {
		return l.flushLocked()
	}
	return nil
}

// flushLocked writes out every buffered event. Caller holds l.mu.
func (l *auditLogger) flushLocked() error {
	if len(l.buffer) == 0 {
		return nil
	}

	for _, event := range l.buffer {
		line, err := json.Marshal(event)
		if err != nil {
			l.app.Error("failed to marshal audit event",
				zap.Error(err),
				zap.String("event_type", string(event.EventType)),
			)
			continue
		}
		l.trail.Info(string(line),
			zap.String("session_id", event.SessionID),
			zap.String("event_type", string(event.EventType)),
			zap.String("result", string(event.Result)),
		)
	}

	l.buffer = l.buffer[:0]
	return nil
}

func (l *auditLogger) autoFlush() {
	for {
		select {
		case <-l.flushTicker.C:
			l.mu.Lock()
			_ = l.flushLocked()
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}

func (l *auditLogger) LogSessionStarted(ctx context.Context, sessionID, query string) error {
	event := NewEvent(EventSessionStarted).
		WithSession(sessionID).
		WithDescription(query)
	return l.Log(ctx, event)
}

func (l *auditLogger) LogSessionConcluded(ctx context.Context, sessionID string, iterations int, confidence float64, duration time.Duration) error {
	event := NewEvent(EventSessionConcluded).
		WithSession(sessionID).
		WithDuration(duration).
		WithMetadata("iterations", iterations).
		WithDescription(fmt.Sprintf("session %s concluded after %d iterations", sessionID, iterations))
	event.Confidence = confidence
	return l.Log(ctx, event)
}

func (l *auditLogger) LogSessionFailed(ctx context.Context, sessionID string, err error) error {
	event := NewEvent(EventSessionFailed).
		WithSession(sessionID).
		WithError(err).
		WithDescription(fmt.Sprintf("session %s failed", sessionID))
	return l.Log(ctx, event)
}

func (l *auditLogger) LogCommandExecuted(ctx context.Context, sessionID string, iteration int, result executor.CommandResult) error {
	eventType := EventCommandExecuted
	if result.TimedOut {
		eventType = EventCommandTimeout
	}
	event := NewEvent(eventType).
		WithSession(sessionID).
		WithCommand(result.Command, iteration).
		WithDuration(result.Duration)
	event.ExitCode = result.ExitCode
	if result.Failed() {
		event.Result = ResultFailure
	}
	return l.Log(ctx, event)
}

func (l *auditLogger) LogCommandBlocked(ctx context.Context, sessionID string, iteration int, command, reason string) error {
	event := NewEvent(EventCommandBlocked).
		WithSession(sessionID).
		WithCommand(command, iteration).
		WithResult(ResultDenied).
		WithDescription(reason)
	return l.Log(ctx, event)
}

func (l *auditLogger) App() *zap.Logger {
	return l.app
}

func (l *auditLogger) Sync() error {
	l.mu.Lock()
	err := l.flushLocked()
	l.mu.Unlock()
	if err != nil {
		return err
	}
	_ = l.app.Sync()
	return l.trail.Sync()
}

func (l *auditLogger) Close() error {
	l.stopOnce.Do(func() {
		l.flushTicker.Stop()
		close(l.stopCh)
	})
	return l.Sync()
}
