package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB implementation of Store.
//
// Designed for:
//   - Servers where several processes share one journal
//   - Audit trails that must outlive the process
//
// Schema:
//   - step_journal: one row per (run_id, step)
type MySQLStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLStore creates a new MySQL-backed store.
//
// The DSN (Data Source Name) format is:
//
//	[username[:password]@][protocol[(address)]]/dbname[?param1=value1&...&paramN=valueN]
//
// Security Warning:
//
//	NEVER hardcode credentials in your source code. The researchgraph config
//	file may reference an environment variable instead: dsn: ${MYSQL_DSN}.
//
// Example:
//
//	journal, err := store.NewMySQLStore("user:pass@tcp(localhost:3306)/stategraph")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer journal.Close()
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute) // prevent stale connections
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	m := &MySQLStore{db: db}
	if err := m.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return m, nil
}

func (m *MySQLStore) createTables(ctx context.Context) error {
	journalTable := `
		CREATE TABLE IF NOT EXISTS step_journal (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			run_id VARCHAR(255) NOT NULL,
			step INT NOT NULL,
			nodes JSON NOT NULL,
			state JSON NOT NULL,
			created_at BIGINT NOT NULL,
			INDEX idx_run_step (run_id, step),
			UNIQUE KEY unique_run_step (run_id, step)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`
	if _, err := m.db.ExecContext(ctx, journalTable); err != nil {
		return fmt.Errorf("failed to create step_journal table: %w", err)
	}
	return nil
}

func (m *MySQLStore) checkOpen() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

// SaveStep inserts rec, replacing any earlier record for the same run and step.
func (m *MySQLStore) SaveStep(ctx context.Context, rec StepRecord) error {
	if err := m.checkOpen(); err != nil {
		return err
	}

	nodesJSON, err := json.Marshal(rec.Nodes)
	if err != nil {
		return fmt.Errorf("failed to marshal nodes: %w", err)
	}

	query := `
		INSERT INTO step_journal (run_id, step, nodes, state, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			nodes = VALUES(nodes),
			state = VALUES(state),
			created_at = VALUES(created_at)
	`
	if _, err := m.db.ExecContext(ctx, query, rec.RunID, rec.Step, nodesJSON, []byte(stateOrNull(rec.State)), rec.CreatedAt.UnixNano()); err != nil {
		return fmt.Errorf("failed to save step: %w", err)
	}
	return nil
}

// LoadLatest returns the highest-numbered step of runID.
func (m *MySQLStore) LoadLatest(ctx context.Context, runID string) (StepRecord, error) {
	if err := m.checkOpen(); err != nil {
		return StepRecord{}, err
	}

	query := `
		SELECT run_id, step, nodes, state, created_at
		FROM step_journal
		WHERE run_id = ?
		ORDER BY step DESC
		LIMIT 1
	`
	rec, err := scanRecord(m.db.QueryRowContext(ctx, query, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return StepRecord{}, ErrNotFound
	}
	if err != nil {
		return StepRecord{}, fmt.Errorf("failed to load latest step: %w", err)
	}
	return rec, nil
}

// History returns every step of runID in ascending order.
func (m *MySQLStore) History(ctx context.Context, runID string) ([]StepRecord, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	query := `
		SELECT run_id, step, nodes, state, created_at
		FROM step_journal
		WHERE run_id = ?
		ORDER BY step ASC
	`
	rows, err := m.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectRecords(rows)
}

// Close closes the connection pool. Calling Close multiple times is safe.
func (m *MySQLStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	return m.db.Close()
}

// Ping verifies the database connection is alive.
func (m *MySQLStore) Ping(ctx context.Context) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	return m.db.PingContext(ctx)
}
