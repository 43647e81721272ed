package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)
)

// Schema version is tracked in the schema_versions table; migrations are
// applied in order on open.
var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_versions (
    version     INTEGER PRIMARY KEY,
    applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS sessions (
    id          TEXT PRIMARY KEY,
    query       TEXT NOT NULL,
    intent      TEXT NOT NULL DEFAULT '',
    state       TEXT NOT NULL DEFAULT 'gathering',
    root_cause  TEXT NOT NULL DEFAULT '',
    confidence  REAL NOT NULL DEFAULT 0.0,
    iterations  INTEGER NOT NULL DEFAULT 0,
    created_at  DATETIME NOT NULL,
    updated_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_state ON sessions(state);
CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at DESC);

CREATE TABLE IF NOT EXISTS session_steps (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id      TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    iteration       INTEGER NOT NULL,
    command         TEXT NOT NULL,
    stdout          TEXT NOT NULL DEFAULT '',
    stderr          TEXT NOT NULL DEFAULT '',
    exit_code       INTEGER,
    timed_out       BOOLEAN NOT NULL DEFAULT 0,
    execution_error TEXT NOT NULL DEFAULT '',
    duration_ms     INTEGER NOT NULL DEFAULT 0,
    timestamp       DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_steps_session ON session_steps(session_id, id ASC);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS patterns (
    signature   TEXT PRIMARY KEY,
    root_cause  TEXT NOT NULL,
    confidence  REAL NOT NULL DEFAULT 0.0,
    hit_count   INTEGER NOT NULL DEFAULT 1,
    first_seen  DATETIME NOT NULL,
    last_seen   DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_patterns_hits ON patterns(hit_count DESC);
`,
	},
}

// sqliteStore is the SQLite-backed implementation of Store.
type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path
// and runs all pending schema migrations. Pass ":memory:" for an
// in-memory store.
func NewSQLiteStore(path string) (Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &sqliteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// migrate applies any unapplied migrations in order.
func (s *sqliteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue // already applied
		}

		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := s.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// ─── Sessions ─────────────────────────────────────────────────────────────────

func (s *sqliteStore) SaveSession(ctx context.Context, rec *SessionRecord) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
        INSERT INTO sessions(id, query, intent, state, root_cause, confidence, iterations, created_at, updated_at)
        VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            intent     = excluded.intent,
            state      = excluded.state,
            root_cause = excluded.root_cause,
            confidence = excluded.confidence,
            iterations = excluded.iterations,
            updated_at = excluded.updated_at`,
		rec.ID, rec.Query, rec.Intent, rec.State, rec.RootCause, rec.Confidence, rec.Iterations,
		rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save session %s: %w", rec.ID, err)
	}
	return nil
}

func (s *sqliteStore) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	rec := &SessionRecord{}
	err := s.db.QueryRowContext(ctx, `
        SELECT id, query, intent, state, root_cause, confidence, iterations, created_at, updated_at
        FROM sessions WHERE id = ?`, id).
		Scan(&rec.ID, &rec.Query, &rec.Intent, &rec.State, &rec.RootCause, &rec.Confidence,
			&rec.Iterations, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return rec, nil
}

func (s *sqliteStore) ListSessions(ctx context.Context, limit int) ([]*SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, query, intent, state, root_cause, confidence, iterations, created_at, updated_at
        FROM sessions ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var recs []*SessionRecord
	for rows.Next() {
		rec := &SessionRecord{}
		if err := rows.Scan(&rec.ID, &rec.Query, &rec.Intent, &rec.State, &rec.RootCause,
			&rec.Confidence, &rec.Iterations, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// ─── Steps ────────────────────────────────────────────────────────────────────

func (s *sqliteStore) AppendStep(ctx context.Context, rec *StepRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
        INSERT INTO session_steps(session_id, iteration, command, stdout, stderr, exit_code, timed_out, execution_error, duration_ms, timestamp)
        VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.Iteration, rec.Command, rec.Stdout, rec.Stderr, rec.ExitCode,
		rec.TimedOut, rec.ExecutionError, rec.DurationMs, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("append step for session %s: %w", rec.SessionID, err)
	}
	rec.ID, _ = res.LastInsertId()
	return nil
}

func (s *sqliteStore) GetSteps(ctx context.Context, sessionID string) ([]*StepRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, session_id, iteration, command, stdout, stderr, exit_code, timed_out, execution_error, duration_ms, timestamp
        FROM session_steps WHERE session_id = ? ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get steps for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var recs []*StepRecord
	for rows.Next() {
		rec := &StepRecord{}
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Iteration, &rec.Command, &rec.Stdout,
			&rec.Stderr, &rec.ExitCode, &rec.TimedOut, &rec.ExecutionError, &rec.DurationMs,
			&rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// ─── Patterns ─────────────────────────────────────────────────────────────────

func (s *sqliteStore) UpsertPattern(ctx context.Context, signature, rootCause string, confidence float64) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO patterns(signature, root_cause, confidence, hit_count, first_seen, last_seen)
        VALUES(?, ?, ?, 1, ?, ?)
        ON CONFLICT(signature) DO UPDATE SET
            root_cause = excluded.root_cause,
            confidence = excluded.confidence,
            hit_count  = hit_count + 1,
            last_seen  = excluded.last_seen`,
		signature, rootCause, confidence, now, now)
	if err != nil {
		return fmt.Errorf("upsert pattern %q: %w", signature, err)
	}
	return nil
}

func (s *sqliteStore) LookupPattern(ctx context.Context, signature string) (*PatternRecord, error) {
	rec := &PatternRecord{}
	err := s.db.QueryRowContext(ctx, `
        SELECT signature, root_cause, confidence, hit_count, first_seen, last_seen
        FROM patterns WHERE signature = ?`, signature).
		Scan(&rec.Signature, &rec.RootCause, &rec.Confidence, &rec.HitCount, &rec.FirstSeen, &rec.LastSeen)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup pattern %q: %w", signature, err)
	}
	return rec, nil
}

func (s *sqliteStore) ListPatterns(ctx context.Context, limit int) ([]*PatternRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT signature, root_cause, confidence, hit_count, first_seen, last_seen
        FROM patterns ORDER BY hit_count DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list patterns: %w", err)
	}
	defer rows.Close()

	var recs []*PatternRecord
	for rows.Next() {
		rec := &PatternRecord{}
		if err := rows.Scan(&rec.Signature, &rec.RootCause, &rec.Confidence, &rec.HitCount,
			&rec.FirstSeen, &rec.LastSeen); err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
