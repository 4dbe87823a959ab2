// Package sqlite provides a durable syncer.Store backed by a single SQLite
// database file. Values are stored JSON-encoded; change notifications are
// in-process via the shared store fan-out hub.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure-Go sqlite driver

	"github.com/cachebound/cachebound/pkg/store"
	"github.com/cachebound/cachebound/pkg/syncer"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at INTEGER NOT NULL
);`

const upsertSQL = `
INSERT INTO records (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

// Store is a SQLite-backed implementation of syncer.Store keyed by string.
type Store[V any] struct {
	db  *sql.DB
	hub *store.Hub[string, V]

	// mu serializes committed writes with subscription setup so a new
	// subscriber's initial snapshot cannot miss a concurrent write.
	mu sync.Mutex
}

// Open opens (or creates) the database at path and ensures the schema.
func Open[V any](path string) (*Store[V], error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store[V]{
		db:  db,
		hub: store.NewHub[string, V](),
	}, nil
}

// Read returns the current record for key, or (nil, nil) when absent.
func (s *Store[V]) Read(ctx context.Context, key string) (*syncer.Record[V], error) {
	row := s.db.QueryRowContext(ctx, `SELECT value, updated_at FROM records WHERE key = ?`, key)

	var raw []byte
	var updatedAt int64
	if err := row.Scan(&raw, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read record: %w", err)
	}

	var value V
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("failed to decode record value: %w", err)
	}

	return &syncer.Record[V]{
		Value:     value,
		UpdatedAt: time.Unix(0, updatedAt),
	}, nil
}

// Write upserts the record for key and notifies subscribers after commit.
func (s *Store[V]) Write(ctx context.Context, key string, rec syncer.Record[V]) error {
	raw, err := json.Marshal(rec.Value)
	if err != nil {
		return fmt.Errorf("failed to encode record value: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, upsertSQL, key, raw, rec.UpdatedAt.UnixNano()); err != nil {
		return fmt.Errorf("failed to upsert record: %w", err)
	}

	s.hub.Publish(key, &rec)
	return nil
}

// WriteBatch upserts all records in one transaction. Either every record
// becomes visible or, on failure, none does.
func (s *Store[V]) WriteBatch(ctx context.Context, recs map[string]syncer.Record[V]) error {
	if len(recs) == 0 {
		return nil
	}

	encoded := make(map[string][]byte, len(recs))
	for key, rec := range recs {
		raw, err := json.Marshal(rec.Value)
		if err != nil {
			return fmt.Errorf("failed to encode record value for %q: %w", key, err)
		}
		encoded[key] = raw
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	for key, rec := range recs {
		if _, err := tx.ExecContext(ctx, upsertSQL, key, encoded[key], rec.UpdatedAt.UnixNano()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to upsert record %q: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}

	for key, rec := range recs {
		r := rec
		s.hub.Publish(key, &r)
	}
	return nil
}

// Subscribe returns a live subscription for key, seeded with the current
// value.
func (s *Store[V]) Subscribe(ctx context.Context, key string) (syncer.StoreSubscription[V], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	initial, err := s.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.hub.Subscribe(key, initial), nil
}

// Close releases all subscriptions and closes the database.
func (s *Store[V]) Close() error {
	s.hub.Close()
	return s.db.Close()
}
