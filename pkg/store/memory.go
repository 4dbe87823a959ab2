package store

import (
	"context"
	"sync"

	"github.com/cachebound/cachebound/pkg/syncer"
)

// Memory is an in-memory implementation of syncer.Store. Records are copied
// on read so callers cannot mutate stored state.
type Memory[K comparable, V any] struct {
	mu   sync.RWMutex
	recs map[K]syncer.Record[V]
	hub  *Hub[K, V]
}

// NewMemory creates an empty in-memory store.
func NewMemory[K comparable, V any]() *Memory[K, V] {
	return &Memory[K, V]{
		recs: make(map[K]syncer.Record[V]),
		hub:  NewHub[K, V](),
	}
}

// Read returns the current record for key, or (nil, nil) when absent.
func (m *Memory[K, V]) Read(_ context.Context, key K) (*syncer.Record[V], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.recs[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// Write upserts the record for key and notifies subscribers. The
// notification happens under the store lock so emissions for a key are
// ordered consistently with the writes that produced them.
func (m *Memory[K, V]) Write(_ context.Context, key K, rec syncer.Record[V]) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[key] = rec
	m.hub.Publish(key, &rec)
	return nil
}

// WriteBatch upserts all records under one lock and notifies subscribers of
// every key.
func (m *Memory[K, V]) WriteBatch(_ context.Context, recs map[K]syncer.Record[V]) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, rec := range recs {
		r := rec
		m.recs[key] = r
		m.hub.Publish(key, &r)
	}
	return nil
}

// Subscribe returns a live subscription for key, seeded with the current
// value.
func (m *Memory[K, V]) Subscribe(_ context.Context, key K) (syncer.StoreSubscription[V], error) {
	// Snapshot and register under the write lock so the initial emission is
	// ordered consistently with concurrent writes.
	m.mu.Lock()
	defer m.mu.Unlock()
	var initial *syncer.Record[V]
	if rec, ok := m.recs[key]; ok {
		initial = &rec
	}
	return m.hub.Subscribe(key, initial), nil
}

// Close releases all subscriptions.
func (m *Memory[K, V]) Close() {
	m.hub.Close()
}
