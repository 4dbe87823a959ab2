package store

import (
	"context"

	"github.com/cachebound/cachebound/pkg/syncer"
)

// Namespaced wraps a string-keyed store, prefixing every key so multiple
// resource classes can share one backend without colliding.
type Namespaced[V any] struct {
	inner  syncer.Store[string, V]
	prefix string
}

// NewNamespaced creates a namespaced view of inner. Keys are stored as
// "<namespace>/<key>".
func NewNamespaced[V any](inner syncer.Store[string, V], namespace string) *Namespaced[V] {
	return &Namespaced[V]{inner: inner, prefix: namespace + "/"}
}

// Read returns the record for key within the namespace.
func (n *Namespaced[V]) Read(ctx context.Context, key string) (*syncer.Record[V], error) {
	return n.inner.Read(ctx, n.prefix+key)
}

// Write upserts the record for key within the namespace.
func (n *Namespaced[V]) Write(ctx context.Context, key string, rec syncer.Record[V]) error {
	return n.inner.Write(ctx, n.prefix+key, rec)
}

// WriteBatch upserts all records atomically within the namespace.
func (n *Namespaced[V]) WriteBatch(ctx context.Context, recs map[string]syncer.Record[V]) error {
	prefixed := make(map[string]syncer.Record[V], len(recs))
	for key, rec := range recs {
		prefixed[n.prefix+key] = rec
	}
	return n.inner.WriteBatch(ctx, prefixed)
}

// Subscribe returns a live subscription for key within the namespace.
func (n *Namespaced[V]) Subscribe(ctx context.Context, key string) (syncer.StoreSubscription[V], error) {
	return n.inner.Subscribe(ctx, n.prefix+key)
}
