package tracestore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/mpst-tools/dmst/obs"
)

// MySQLStore is a MySQL/MariaDB-backed Store, for production deployments
// that need traces to survive process restarts and be queryable from
// multiple workers.
type MySQLStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLStore opens a connection pool against dsn and ensures the
// run_events table exists. dsn follows the go-sql-driver/mysql format,
// e.g. "user:pass@tcp(localhost:3306)/dbname?parseTime=true".
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("tracestore: open mysql: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("tracestore: ping mysql: %w", err)
	}

	s := &MySQLStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *MySQLStore) createTables(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS run_events (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			run_id VARCHAR(255) NOT NULL,
			role VARCHAR(255) NOT NULL,
			seq INT NOT NULL,
			event_data TEXT NOT NULL,
			INDEX idx_run_events_run_id (run_id, seq)
		) ENGINE=InnoDB
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("tracestore: create run_events table: %w", err)
	}
	return nil
}

// AppendEvents implements Store.
func (s *MySQLStore) AppendEvents(ctx context.Context, runID string, evs []obs.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("tracestore: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var maxSeq sql.NullInt64
	if err := tx.QueryRowContext(ctx, "SELECT MAX(seq) FROM run_events WHERE run_id = ?", runID).Scan(&maxSeq); err != nil {
		return fmt.Errorf("tracestore: query max seq: %w", err)
	}
	next := 0
	if maxSeq.Valid {
		next = int(maxSeq.Int64) + 1
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
		if _, err := stmt.ExecContext(ctx, runID, ev.Role, next+i, data); err != nil {
			return fmt.Errorf("tracestore: insert event: %w", err)
		}
	}

	return tx.Commit()
}

// LoadTrace implements Store.
func (s *MySQLStore) LoadTrace(ctx context.Context, runID string) ([]obs.Event, error) {
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
func (s *MySQLStore) ListRuns(ctx context.Context) ([]string, error) {
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
func (s *MySQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
