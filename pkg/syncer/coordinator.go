package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// SpreadFunc derives additional records from a fetched record, e.g. the
// individual items of a fetched collection so they become visible under
// their own keys. The derived records are written together with the primary
// record in one atomic batch.
type SpreadFunc[K comparable, V any] func(key K, rec Record[V]) map[K]Record[V]

// AcceptFunc decides whether a fetched record may replace the cached one.
// Returning false discards the fetched record while still counting the
// attempt as a successful upstream check.
type AcceptFunc[V any] func(cached *Record[V], fetched Record[V]) bool

// Coordinator reconciles a Store with a Source for any number of keys.
// For each key it decides whether to serve cache-only or cache-plus-refresh,
// guarantees at most one in-flight fetch, and merges outcomes back into the
// store. It is safe for concurrent use.
type Coordinator[K comparable, V any] struct {
	store   Store[K, V]
	source  Source[K, V]
	policy  Policy[V]
	clock   Clock
	keyFn   func(K) string
	spread  SpreadFunc[K, V]
	accept  AcceptFunc[V]
	metrics Metrics

	flight singleflight.Group

	// mu guards the states map only. Per-key state carries its own lock so
	// unrelated keys never serialize against each other.
	mu     sync.Mutex
	states map[K]*keyState[K, V]
}

// keyState is the per-key mutable state: bookkeeping, the shared upstream
// store subscription, and the attached consumer streams.
type keyState[K comparable, V any] struct {
	key K

	mu       sync.Mutex
	meta     Meta
	upstream StoreSubscription[V]
	stopFan  chan struct{}
	streams  map[uuid.UUID]*Stream[V]
	errs     map[uuid.UUID]*ErrStream
}

// Option configures a Coordinator.
type Option[K comparable, V any] func(*Coordinator[K, V])

// WithClock overrides the wall clock used for freshness decisions.
func WithClock[K comparable, V any](clock Clock) Option[K, V] {
	return func(c *Coordinator[K, V]) {
		c.clock = clock
	}
}

// WithKeyFunc overrides the key-to-string mapping used for single-flight
// coalescing and logging. The default uses fmt.Sprint.
func WithKeyFunc[K comparable, V any](fn func(K) string) Option[K, V] {
	return func(c *Coordinator[K, V]) {
		c.keyFn = fn
	}
}

// WithSpread sets a SpreadFunc applied to every successful fetch.
func WithSpread[K comparable, V any](fn SpreadFunc[K, V]) Option[K, V] {
	return func(c *Coordinator[K, V]) {
		c.spread = fn
	}
}

// WithAccept sets a gate applied to every successful fetch before
// write-back, e.g. to refuse replacing a cached record with an older
// payload version. A rejected fetch completes as OutcomeSkipped.
func WithAccept[K comparable, V any](fn AcceptFunc[V]) Option[K, V] {
	return func(c *Coordinator[K, V]) {
		c.accept = fn
	}
}

// WithMetrics sets the instrumentation sink.
func WithMetrics[K comparable, V any](m Metrics) Option[K, V] {
	return func(c *Coordinator[K, V]) {
		c.metrics = m
	}
}

// New creates a Coordinator from the store/source capability pair and a
// freshness policy.
func New[K comparable, V any](
	store Store[K, V],
	source Source[K, V],
	policy Policy[V],
	opts ...Option[K, V],
) (*Coordinator[K, V], error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if policy == nil {
		return nil, fmt.Errorf("policy is required")
	}

	c := &Coordinator[K, V]{
		store:  store,
		source: source,
		policy: policy,
		clock:  SystemClock{},
		keyFn:  func(k K) string { return fmt.Sprint(k) },
		states: make(map[K]*keyState[K, V]),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Observe returns a live, multi-consumer stream for key. It never blocks:
// the current store value is delivered asynchronously as the first emission
// (nil when absent), the freshness policy is evaluated off the calling
// goroutine, and any triggered fetch reaches the stream through the store
// subscription after write-back.
func (c *Coordinator[K, V]) Observe(ctx context.Context, key K) *Stream[V] {
	ks := c.state(key)
	st := newStream[V]()
	detachCtx := context.WithoutCancel(ctx)
	st.detach = func(id uuid.UUID) { c.release(detachCtx, ks, id) }

	ks.mu.Lock()
	ks.streams[st.id] = st
	var subErr error
	if ks.upstream == nil {
		sub, err := c.store.Subscribe(ctx, key)
		if err != nil {
			subErr = err
		} else {
			stop := make(chan struct{})
			ks.upstream = sub
			ks.stopFan = stop
			go c.fanout(ks, sub, stop)
		}
	}
	ks.mu.Unlock()

	if c.metrics != nil {
		c.metrics.AddSubscriptions(ctx, 1)
	}

	if subErr != nil {
		st.fail(&StoreError{Op: "subscribe", Err: subErr})
		return st
	}

	go c.seed(detachCtx, ks, st)
	return st
}

// RefreshNow bypasses the freshness policy and attempts a remote fetch,
// collapsing into an already-in-flight fetch for the same key instead of
// issuing a duplicate. The outcome is returned to the caller in addition to
// reaching subscribers through the store.
//
// Cancelling ctx detaches the caller only: the underlying fetch keeps
// running for other attached callers and for cache write-back.
func (c *Coordinator[K, V]) RefreshNow(ctx context.Context, key K) Outcome[V] {
	return c.refresh(ctx, key, true)
}

// RefreshIfStale attempts a remote fetch only when the freshness policy
// says the cached record warrants one, returning OutcomeSkipped otherwise.
func (c *Coordinator[K, V]) RefreshIfStale(ctx context.Context, key K) Outcome[V] {
	return c.refresh(ctx, key, false)
}

func (c *Coordinator[K, V]) refresh(ctx context.Context, key K, force bool) Outcome[V] {
	ks := c.state(key)

	if !force {
		ks.mu.Lock()
		meta := ks.meta
		ks.mu.Unlock()

		// An in-flight fetch always attaches; the policy check only applies
		// when nothing is running.
		if !meta.InFlight {
			rec, err := c.store.Read(ctx, key)
			if err != nil {
				return Outcome[V]{Kind: OutcomeFailed, Err: &StoreError{Op: "read", Err: err}}
			}
			if !c.policy.ShouldFetch(rec, meta, c.clock.Now()) {
				if c.metrics != nil {
					c.metrics.RecordFetch(ctx, OutcomeSkipped.String(), 0)
				}
				return Outcome[V]{Kind: OutcomeSkipped}
			}
		}
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(c.keyFn(key), func() (any, error) {
		return c.doFetch(fetchCtx, ks), nil
	})

	select {
	case res := <-ch:
		out, _ := res.Val.(Outcome[V])
		return out
	case <-ctx.Done():
		return Outcome[V]{Kind: OutcomeFailed, Err: ctx.Err()}
	}
}

// Invalidate clears the key's last-refresh time without touching the stored
// value, forcing the next policy evaluation to treat the key as stale.
func (c *Coordinator[K, V]) Invalidate(key K) {
	ks := c.state(key)
	ks.mu.Lock()
	ks.meta.LastRefresh = time.Time{}
	ks.mu.Unlock()
}

// Meta returns a snapshot of the key's bookkeeping.
func (c *Coordinator[K, V]) Meta(key K) Meta {
	ks := c.state(key)
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.meta
}

// WatchErrors returns the key's side channel of fetch failures. It holds no
// store subscription and does not trigger fetches.
func (c *Coordinator[K, V]) WatchErrors(key K) *ErrStream {
	ks := c.state(key)
	es := newErrStream()
	es.detach = func(id uuid.UUID) {
		ks.mu.Lock()
		delete(ks.errs, id)
		ks.mu.Unlock()
	}
	ks.mu.Lock()
	ks.errs[es.id] = es
	ks.mu.Unlock()
	return es
}

// Close terminates every active stream and releases all store
// subscriptions. Per-key bookkeeping is kept; the coordinator remains
// usable, Close is primarily a shutdown aid.
func (c *Coordinator[K, V]) Close() {
	c.mu.Lock()
	states := make([]*keyState[K, V], 0, len(c.states))
	for _, ks := range c.states {
		states = append(states, ks)
	}
	c.mu.Unlock()

	for _, ks := range states {
		ks.mu.Lock()
		streams := make([]*Stream[V], 0, len(ks.streams))
		for _, st := range ks.streams {
			streams = append(streams, st)
		}
		errs := make([]*ErrStream, 0, len(ks.errs))
		for _, es := range ks.errs {
			errs = append(errs, es)
		}
		ks.mu.Unlock()

		for _, st := range streams {
			st.Close()
		}
		for _, es := range errs {
			es.Close()
		}
	}
}

// state returns the per-key state, creating it on first use. State is never
// deleted so Meta survives periods with zero subscribers.
func (c *Coordinator[K, V]) state(key K) *keyState[K, V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	ks, ok := c.states[key]
	if !ok {
		ks = &keyState[K, V]{
			key:     key,
			streams: make(map[uuid.UUID]*Stream[V]),
			errs:    make(map[uuid.UUID]*ErrStream),
		}
		c.states[key] = ks
	}
	return ks
}

// seed delivers the current store value to a new stream and evaluates the
// freshness policy, triggering a single-flight fetch when warranted.
func (c *Coordinator[K, V]) seed(ctx context.Context, ks *keyState[K, V], st *Stream[V]) {
	rec, err := c.store.Read(ctx, ks.key)
	if err != nil {
		st.fail(&StoreError{Op: "read", Err: err})
		return
	}

	// Deliver the current value unless a fresher write emission already
	// reached the stream through the fan-out.
	ks.mu.Lock()
	if !st.seeded() {
		st.emit(rec)
	}
	meta := ks.meta
	ks.mu.Unlock()

	if meta.InFlight {
		// The running fetch's result reaches this stream via the store
		// subscription; nothing to start.
		return
	}

	if !c.policy.ShouldFetch(rec, meta, c.clock.Now()) {
		slog.Debug("Fetch suppressed by freshness policy", "key", c.keyFn(ks.key))
		if c.metrics != nil {
			c.metrics.RecordFetch(ctx, OutcomeSkipped.String(), 0)
		}
		return
	}

	// Fire and forget: the result reaches subscribers through the store
	// subscription after write-back.
	c.flight.DoChan(c.keyFn(ks.key), func() (any, error) {
		return c.doFetch(ctx, ks), nil
	})
}

// doFetch is the single-flight owner body: fetch, write back, update meta.
// Meta.LastRefresh moves only after the store write succeeded.
func (c *Coordinator[K, V]) doFetch(ctx context.Context, ks *keyState[K, V]) Outcome[V] {
	start := time.Now()

	ks.mu.Lock()
	ks.meta.InFlight = true
	ks.mu.Unlock()

	rec, err := c.source.Fetch(ctx, ks.key)
	if err != nil {
		return c.failFetch(ctx, ks, asRemote(err), start)
	}

	if c.accept != nil {
		cached, err := c.store.Read(ctx, ks.key)
		if err != nil {
			return c.failFetch(ctx, ks, &StoreError{Op: "read", Err: err}, start)
		}
		if !c.accept(cached, rec) {
			// Upstream answered but the payload does not supersede what we
			// have. The check still counts as a refresh.
			ks.mu.Lock()
			ks.meta.InFlight = false
			ks.meta.LastRefresh = c.clock.Now()
			ks.meta.LastError = nil
			ks.mu.Unlock()

			slog.Debug("Fetched record rejected by accept gate", "key", c.keyFn(ks.key))
			if c.metrics != nil {
				c.metrics.RecordFetch(ctx, OutcomeSkipped.String(), time.Since(start).Seconds())
			}
			return Outcome[V]{Kind: OutcomeSkipped}
		}
	}

	if err := c.writeBack(ctx, ks.key, rec); err != nil {
		return c.failFetch(ctx, ks, &StoreError{Op: "write", Err: err}, start)
	}

	ks.mu.Lock()
	ks.meta.InFlight = false
	ks.meta.LastRefresh = c.clock.Now()
	ks.meta.LastError = nil
	ks.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordFetch(ctx, OutcomeFresh.String(), time.Since(start).Seconds())
	}
	return Outcome[V]{Kind: OutcomeFresh, Record: &rec}
}

// failFetch records a failed attempt. LastRefresh stays untouched so a
// subsequent observe retries.
func (c *Coordinator[K, V]) failFetch(ctx context.Context, ks *keyState[K, V], cause error, start time.Time) Outcome[V] {
	ks.mu.Lock()
	ks.meta.InFlight = false
	ks.meta.LastError = cause
	watchers := make([]*ErrStream, 0, len(ks.errs))
	for _, es := range ks.errs {
		watchers = append(watchers, es)
	}
	ks.mu.Unlock()

	for _, es := range watchers {
		es.publish(cause)
	}

	slog.Warn("Fetch failed", "key", c.keyFn(ks.key), "error", cause)
	if c.metrics != nil {
		c.metrics.RecordFetch(ctx, OutcomeFailed.String(), time.Since(start).Seconds())
	}
	return Outcome[V]{Kind: OutcomeFailed, Err: cause}
}

// writeBack upserts the fetched record, applying the spread function (if
// configured) in one atomic batch.
func (c *Coordinator[K, V]) writeBack(ctx context.Context, key K, rec Record[V]) error {
	if c.spread != nil {
		derived := c.spread(key, rec)
		if len(derived) > 0 {
			batch := make(map[K]Record[V], len(derived)+1)
			for k, r := range derived {
				batch[k] = r
			}
			batch[key] = rec
			return c.store.WriteBatch(ctx, batch)
		}
	}
	return c.store.Write(ctx, key, rec)
}

// fanout relays store subscription emissions to every attached stream. The
// subscription's on-attach snapshot is discarded: each stream receives its
// initial value from seed, so the first subscriber does not see it twice.
func (c *Coordinator[K, V]) fanout(ks *keyState[K, V], sub StoreSubscription[V], stop chan struct{}) {
	snapshot := true
	for {
		select {
		case rec, ok := <-sub.Updates():
			if !ok {
				return
			}
			if snapshot {
				snapshot = false
				continue
			}
			ks.mu.Lock()
			for _, st := range ks.streams {
				st.emit(rec)
			}
			ks.mu.Unlock()
		case <-stop:
			return
		}
	}
}

// release detaches one consumer. The shared upstream subscription is closed
// only when the last value stream goes away; an in-flight fetch is left to
// run to completion for cache correctness.
func (c *Coordinator[K, V]) release(ctx context.Context, ks *keyState[K, V], id uuid.UUID) {
	ks.mu.Lock()
	if _, ok := ks.streams[id]; !ok {
		ks.mu.Unlock()
		return
	}
	delete(ks.streams, id)
	var sub StoreSubscription[V]
	if len(ks.streams) == 0 && ks.upstream != nil {
		sub = ks.upstream
		ks.upstream = nil
		close(ks.stopFan)
		ks.stopFan = nil
	}
	ks.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
	if c.metrics != nil {
		c.metrics.AddSubscriptions(ctx, -1)
	}
}
