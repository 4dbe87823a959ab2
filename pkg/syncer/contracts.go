package syncer

import "context"

// Store is the durable local half of the capability pair consumed by the
// Coordinator. Implementations must be safe for concurrent use across keys;
// the Coordinator serializes writes per key but not across keys.
type Store[K comparable, V any] interface {
	// Read returns the current record for key, or (nil, nil) when the key
	// is absent. Absence is a valid empty result, not an error.
	Read(ctx context.Context, key K) (*Record[V], error)

	// Write upserts the record for key.
	Write(ctx context.Context, key K, rec Record[V]) error

	// WriteBatch upserts all records in one atomic operation. Either every
	// record becomes visible or none does.
	WriteBatch(ctx context.Context, recs map[K]Record[V]) error

	// Subscribe returns a live subscription for key. The subscription must
	// emit the current value (nil when absent) shortly after creation and
	// again after every write to the key. Subscribe must not block; the
	// initial emission is delivered asynchronously.
	Subscribe(ctx context.Context, key K) (StoreSubscription[V], error)
}

// StoreSubscription is a live sequence of current values for one key.
type StoreSubscription[V any] interface {
	// Updates delivers the current value on subscribe, then the new value
	// after every write. A nil record means the key is absent.
	Updates() <-chan *Record[V]

	// Close releases the subscription. Updates is closed afterwards.
	Close()
}

// Source is the remote half of the capability pair: one blocking fetch per
// key. The Coordinator does not retry failed fetches; transport-level
// retries belong to the Source implementation.
type Source[K comparable, V any] interface {
	Fetch(ctx context.Context, key K) (Record[V], error)
}

// Metrics receives instrumentation callbacks from the Coordinator. A nil
// Metrics disables instrumentation.
type Metrics interface {
	// RecordFetch records one completed fetch attempt with its outcome
	// label ("fresh", "failed", "skipped") and duration.
	RecordFetch(ctx context.Context, outcome string, seconds float64)

	// AddSubscriptions adjusts the active subscription gauge.
	AddSubscriptions(ctx context.Context, delta int64)
}
