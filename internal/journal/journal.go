// Package journal records one row per tool invocation in a local SQLite file.
// Response bodies are never stored.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

// DefaultRetention bounds how long entries survive before Open prunes them.
const DefaultRetention = 30 * 24 * time.Hour

type Entry struct {
	RequestID  string        `json:"request_id"`
	Resource   string        `json:"resource"`
	Action     string        `json:"action"`
	Executor   string        `json:"executor"`
	Status     int           `json:"status"`
	ErrorType  string        `json:"error_type,omitempty"`
	Latency    time.Duration `json:"-"`
	LatencyMS  int64         `json:"latency_ms"`
	RecordedAt time.Time     `json:"recorded_at"`
}

type Store struct {
	db        *sql.DB
	mu        sync.Mutex // writers in this process; lock only excludes other processes
	lock      *flock.Flock
	retention time.Duration
	now       func() time.Time
}

func Open(path, lockPath string, retention time.Duration) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite journal: %w", err)
	}
	db.SetMaxOpenConns(1)

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		`CREATE TABLE IF NOT EXISTS invocations (
			request_id TEXT PRIMARY KEY,
			resource TEXT NOT NULL,
			action TEXT NOT NULL,
			executor TEXT NOT NULL,
			status INTEGER NOT NULL,
			error_type TEXT NOT NULL DEFAULT '',
			latency_ms INTEGER NOT NULL,
			recorded_at INTEGER NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS invocations_recorded_at ON invocations (recorded_at);",
	}
	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init journal schema: %w", err)
		}
	}

	if retention <= 0 {
		retention = DefaultRetention
	}
	store := &Store{db: db, lock: flock.New(lockPath), retention: retention, now: time.Now}
	_ = store.Prune()
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Prune deletes entries older than the retention window.
func (s *Store) Prune() error {
	if s == nil || s.db == nil {
		return nil
	}
	cutoff := s.now().Add(-s.retention).UTC().UnixMilli()
	if _, err := s.db.Exec("DELETE FROM invocations WHERE recorded_at < ?", cutoff); err != nil {
		return fmt.Errorf("prune journal: %w", err)
	}
	return nil
}

// Record appends one entry. Writers across processes serialize on the lock file.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if s == nil || s.db == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	locked, err := s.lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock journal: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock journal: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	recorded := e.RecordedAt
	if recorded.IsZero() {
		recorded = s.now()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO invocations (request_id, resource, action, executor, status, error_type, latency_ms, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(request_id) DO NOTHING
	`, e.RequestID, e.Resource, e.Action, e.Executor, e.Status, e.ErrorType, e.Latency.Milliseconds(), recorded.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("journal write: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT request_id, resource, action, executor, status, error_type, latency_ms, recorded_at
		FROM invocations ORDER BY recorded_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal read: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var recordedMS int64
		if err := rows.Scan(&e.RequestID, &e.Resource, &e.Action, &e.Executor, &e.Status, &e.ErrorType, &e.LatencyMS, &recordedMS); err != nil {
			return nil, fmt.Errorf("journal scan: %w", err)
		}
		e.Latency = time.Duration(e.LatencyMS) * time.Millisecond
		e.RecordedAt = time.UnixMilli(recordedMS).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
