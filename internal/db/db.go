// Package db persists investigation sessions, their executed steps, and
// learned failure patterns in a local SQLite database.
package db

import (
	"context"
	"time"
)

// Store is the persistence interface for the engine.
type Store interface {
	SessionStore
	StepStore
	PatternStore

	// Close releases database resources.
	Close() error

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error
}

// SessionRecord is a persisted investigation session.
type SessionRecord struct {
	ID         string    `json:"id"`
	Query      string    `json:"query"`
	Intent     string    `json:"intent"`
	State      string    `json:"state"`
	RootCause  string    `json:"root_cause"`
	Confidence float64   `json:"confidence"`
	Iterations int       `json:"iterations"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SessionStore persists session lifecycle state.
type SessionStore interface {
	// SaveSession inserts or updates a session row.
	SaveSession(ctx context.Context, rec *SessionRecord) error

	// GetSession reads one session. Returns nil, nil when absent.
	GetSession(ctx context.Context, id string) (*SessionRecord, error)

	// ListSessions returns the most recent sessions, newest first.
	ListSessions(ctx context.Context, limit int) ([]*SessionRecord, error)
}

// StepRecord is one executed command within a session round.
type StepRecord struct {
	ID             int64     `json:"id"`
	SessionID      string    `json:"session_id"`
	Iteration      int       `json:"iteration"`
	Command        string    `json:"command"`
	Stdout         string    `json:"stdout"`
	Stderr         string    `json:"stderr"`
	ExitCode       *int      `json:"exit_code,omitempty"`
	TimedOut       bool      `json:"timed_out"`
	ExecutionError string    `json:"execution_error,omitempty"`
	DurationMs     int64     `json:"duration_ms"`
	Timestamp      time.Time `json:"timestamp"`
}

// StepStore persists the append-only step history of each session.
type StepStore interface {
	// AppendStep writes one step record and fills in its ID.
	AppendStep(ctx context.Context, rec *StepRecord) error

	// GetSteps returns all steps for a session in execution order.
	GetSteps(ctx context.Context, sessionID string) ([]*StepRecord, error)
}

// PatternRecord is a learned mapping from a failure signature to the
// root cause it indicated, with usage statistics.
type PatternRecord struct {
	Signature  string    `json:"signature"`
	RootCause  string    `json:"root_cause"`
	Confidence float64   `json:"confidence"`
	HitCount   int       `json:"hit_count"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
}

// PatternStore persists learned failure patterns across sessions.
type PatternStore interface {
	// UpsertPattern records an observation of signature resolving to
	// rootCause, incrementing the hit count on repeat observations.
	UpsertPattern(ctx context.Context, signature, rootCause string, confidence float64) error

	// LookupPattern returns the stored pattern for a signature.
	// Returns nil, nil when the signature has never been seen.
	LookupPattern(ctx context.Context, signature string) (*PatternRecord, error)

	// ListPatterns returns all patterns ordered by hit count descending.
	ListPatterns(ctx context.Context, limit int) ([]*PatternRecord, error)
}
