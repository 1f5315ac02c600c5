package tracestore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/mpst-tools/dmst/obs"
)

// SQLiteStore is a single-file SQLite-backed Store, for local persistence
// across process restarts without a database server: WAL mode,
// busy-timeout, auto-migration on first use.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore opens (creating if necessary) the database at path and
// ensures its schema exists. Pass ":memory:" for an in-process database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("tracestore: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("tracestore: %s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS run_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			role TEXT NOT NULL,
			seq INTEGER NOT NULL,
			event_data TEXT NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("tracestore: create run_events table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_run_events_run_id ON run_events(run_id, seq)"); err != nil {
		return fmt.Errorf("tracestore: create run_events index: %w", err)
	}
	return nil
}

// AppendEvents implements Store.
func (s *SQLiteStore) AppendEvents(ctx context.Context, runID string, evs []obs.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("tracestore: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var maxSeq int
	if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(seq), -1) FROM run_events WHERE run_id = ?", runID).Scan(&maxSeq); err != nil {
		return fmt.Errorf("tracestore: query max seq: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO run_events (run_id, role, seq, event_data) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("tracestore: prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, ev := range evs {
		data, err := encodeEvent(ev)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, runID, ev.Role, maxSeq+1+i, data); err != nil {
			return fmt.Errorf("tracestore: insert event: %w", err)
		}
	}

	return tx.Commit()
}

// LoadTrace implements Store.
func (s *SQLiteStore) LoadTrace(ctx context.Context, runID string) ([]obs.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT role, event_data FROM run_events WHERE run_id = ? ORDER BY seq ASC", runID)
	if err != nil {
		return nil, fmt.Errorf("tracestore: query trace: %w", err)
	}
	defer rows.Close()

	var out []obs.Event
	for rows.Next() {
		var role, data string
		if err := rows.Scan(&role, &data); err != nil {
			return nil, fmt.Errorf("tracestore: scan event: %w", err)
		}
		ev, err := decodeEvent(runID, role, data)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

// ListRuns implements Store.
func (s *SQLiteStore) ListRuns(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT run_id FROM run_events GROUP BY run_id ORDER BY MIN(id) ASC")
	if err != nil {
		return nil, fmt.Errorf("tracestore: query runs: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var runID string
		if err := rows.Scan(&runID); err != nil {
			return nil, fmt.Errorf("tracestore: scan run id: %w", err)
		}
		out = append(out, runID)
	}
	return out, rows.Err()
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
