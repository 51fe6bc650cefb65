package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite implementation of Store.
//
// It keeps the step journal in a single-file database and needs no setup,
// which makes it the default persistent journal of the research CLI.
//
// Features:
//   - Single file database (e.g., "./runs.db")
//   - Auto-migration on first use
//   - WAL mode for concurrent reads
//
// Schema:
//   - step_journal: one row per (run_id, step)
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// NewSQLiteStore creates a new SQLite-backed store.
//
// The path parameter specifies the database file location:
//   - "./runs.db" - file in current directory
//   - ":memory:" - in-memory database (data lost on close)
//
// Example:
//
//	journal, err := store.NewSQLiteStore("./runs.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer journal.Close()
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite supports one writer at a time
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	journalTable := `
		CREATE TABLE IF NOT EXISTS step_journal (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			nodes TEXT NOT NULL,
			state TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			UNIQUE(run_id, step)
		)
	`
	if _, err := s.db.ExecContext(ctx, journalTable); err != nil {
		return fmt.Errorf("failed to create step_journal table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_journal_run_step ON step_journal(run_id, step)"); err != nil {
		return fmt.Errorf("failed to create idx_journal_run_step: %w", err)
	}
	return nil
}

func (s *SQLiteStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// SaveStep inserts rec, replacing any earlier record for the same run and step.
func (s *SQLiteStore) SaveStep(ctx context.Context, rec StepRecord) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	nodesJSON, err := json.Marshal(rec.Nodes)
	if err != nil {
		return fmt.Errorf("failed to marshal nodes: %w", err)
	}

	query := `
		INSERT INTO step_journal (run_id, step, nodes, state, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, step) DO UPDATE SET
			nodes = excluded.nodes,
			state = excluded.state,
			created_at = excluded.created_at
	`
	if _, err := s.db.ExecContext(ctx, query, rec.RunID, rec.Step, string(nodesJSON), string(stateOrNull(rec.State)), rec.CreatedAt.UnixNano()); err != nil {
		return fmt.Errorf("failed to save step: %w", err)
	}
	return nil
}

// LoadLatest returns the highest-numbered step of runID.
func (s *SQLiteStore) LoadLatest(ctx context.Context, runID string) (StepRecord, error) {
	if err := s.checkOpen(); err != nil {
		return StepRecord{}, err
	}

	query := `
		SELECT run_id, step, nodes, state, created_at
		FROM step_journal
		WHERE run_id = ?
		ORDER BY step DESC
		LIMIT 1
	`
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return StepRecord{}, ErrNotFound
	}
	if err != nil {
		return StepRecord{}, fmt.Errorf("failed to load latest step: %w", err)
	}
	return rec, nil
}

// History returns every step of runID in ascending order.
func (s *SQLiteStore) History(ctx context.Context, runID string) ([]StepRecord, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	query := `
		SELECT run_id, step, nodes, state, created_at
		FROM step_journal
		WHERE run_id = ?
		ORDER BY step ASC
	`
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectRecords(rows)
}

// Close closes the database. Calling Close multiple times is safe.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (StepRecord, error) {
	var (
		rec       StepRecord
		nodesJSON []byte
		stateJSON []byte
		createdNs int64
	)
	if err := row.Scan(&rec.RunID, &rec.Step, &nodesJSON, &stateJSON, &createdNs); err != nil {
		return StepRecord{}, err
	}
	if err := json.Unmarshal(nodesJSON, &rec.Nodes); err != nil {
		return StepRecord{}, fmt.Errorf("failed to unmarshal nodes: %w", err)
	}
	rec.State = json.RawMessage(stateJSON)
	rec.CreatedAt = time.Unix(0, createdNs).UTC()
	return rec, nil
}

func collectRecords(rows *sql.Rows) ([]StepRecord, error) {
	var out []StepRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

func stateOrNull(state json.RawMessage) json.RawMessage {
	if len(state) == 0 {
		return json.RawMessage("null")
	}
	return state
}
