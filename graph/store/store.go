// Package store provides persistence implementations for the executor's step journal.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested run ID has no journaled steps.
var ErrNotFound = errors.New("not found")

// ErrClosed is returned by operations on a store after Close.
var ErrClosed = errors.New("store is closed")

// Store persists the committed state of every executor step.
//
// The journal is written once per step, after the step's merge has been
// validated and committed. It is meant for post-mortem inspection and audit
// trails: which nodes ran at each step and what the shared state looked like
// afterwards. The executor never reads it back to resume a run.
//
// Implementations:
//   - MemStore: in-memory, for tests and single-process use
//   - SQLiteStore: single-file database via modernc.org/sqlite
//   - MySQLStore: MySQL/MariaDB via go-sql-driver/mysql
//   - redisstore.Store: Redis sorted sets via go-redis
type Store interface {
	// SaveStep appends one committed step to the run's journal.
	// Saving the same (RunID, Step) twice replaces the earlier record.
	SaveStep(ctx context.Context, rec StepRecord) error

	// LoadLatest returns the highest-numbered step of a run.
	// Returns ErrNotFound if the run has no steps.
	LoadLatest(ctx context.Context, runID string) (StepRecord, error)

	// History returns every step of a run in ascending step order.
	// Returns ErrNotFound if the run has no steps.
	History(ctx context.Context, runID string) ([]StepRecord, error)
}

// StepRecord is one journaled executor step.
type StepRecord struct {
	// RunID identifies the workflow execution.
	RunID string `json:"run_id"`

	// Step is the executor step number (1-indexed).
	Step int `json:"step"`

	// Nodes lists the node invoked by each branch of the step, in spawn order.
	Nodes []string `json:"nodes"`

	// State is the JSON encoding of the committed state after the step.
	State json.RawMessage `json:"state"`

	// CreatedAt is when the step was committed.
	CreatedAt time.Time `json:"created_at"`
}

// Branches returns the number of branches that ran in the step.
func (r StepRecord) Branches() int {
	return len(r.Nodes)
}
