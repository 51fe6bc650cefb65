// Package redisstore implements the step journal on Redis.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/dshills/stategraph/graph/store"
	backend "github.com/redis/go-redis/v9"
)

// Store implements store.Store using one sorted set per run.
//
// Each journaled step is a JSON member scored by its step number, so history
// reads are a single ZRANGE. Run IDs are indexed in a second sorted set
// scored by the time of their latest step.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

var _ store.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithTTL sets the expiration of each run's journal, refreshed on every step.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: "stategraph:journal:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(runID string) string {
	return s.prefix + runID
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// SaveStep replaces any member scored rec.Step and adds rec, atomically.
func (s *Store) SaveStep(ctx context.Context, rec store.StepRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal step: %w", err)
	}

	step := strconv.Itoa(rec.Step)
	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, s.key(rec.RunID), step, step)
	pipe.ZAdd(ctx, s.key(rec.RunID), backend.Z{Score: float64(rec.Step), Member: data})
	if s.ttl > 0 {
		pipe.Expire(ctx, s.key(rec.RunID), s.ttl)
	}
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: float64(rec.CreatedAt.Unix()), Member: rec.RunID})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// LoadLatest returns the highest-scored step of runID.
func (s *Store) LoadLatest(ctx context.Context, runID string) (store.StepRecord, error) {
	vals, err := s.client.ZRevRange(ctx, s.key(runID), 0, 0).Result()
	if err != nil {
		return store.StepRecord{}, fmt.Errorf("failed to read from redis: %w", err)
	}
	if len(vals) == 0 {
		return store.StepRecord{}, store.ErrNotFound
	}
	return decode(vals[0])
}

// History returns every step of runID in ascending order.
func (s *Store) History(ctx context.Context, runID string) ([]store.StepRecord, error) {
	vals, err := s.client.ZRange(ctx, s.key(runID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read from redis: %w", err)
	}
	if len(vals) == 0 {
		return nil, store.ErrNotFound
	}

	out := make([]store.StepRecord, 0, len(vals))
	for _, v := range vals {
		rec, err := decode(v)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Runs returns the journaled run IDs, most recently active first.
func (s *Store) Runs(ctx context.Context) ([]string, error) {
	runs, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// Delete removes the journal of runID.
func (s *Store) Delete(ctx context.Context, runID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(runID))
	pipe.ZRem(ctx, s.indexKey(), runID)
	_, err := pipe.Exec(ctx)
	return err
}

// Ping checks the connection to Redis.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func decode(val string) (store.StepRecord, error) {
	var rec store.StepRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return store.StepRecord{}, fmt.Errorf("failed to unmarshal step: %w", err)
	}
	return rec, nil
}
