package syncer_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cachebound/cachebound/pkg/store"
	"github.com/cachebound/cachebound/pkg/syncer"
)

const waitTimeout = 2 * time.Second

// fakeClock is a manually advanced Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// countingSource counts fetches and delegates to a configurable fetch
// function.
type countingSource struct {
	mu    sync.Mutex
	calls int
	fetch func(ctx context.Context, key string) (syncer.Record[string], error)
}

func (s *countingSource) Fetch(ctx context.Context, key string) (syncer.Record[string], error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.fetch(ctx, key)
}

func (s *countingSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func staticSource(value string) *countingSource {
	return &countingSource{
		fetch: func(_ context.Context, _ string) (syncer.Record[string], error) {
			return syncer.Record[string]{Value: value, UpdatedAt: time.Now()}, nil
		},
	}
}

func failingSource(err error) *countingSource {
	return &countingSource{
		fetch: func(_ context.Context, _ string) (syncer.Record[string], error) {
			return syncer.Record[string]{}, err
		},
	}
}

// flakyStore wraps the memory store with injectable failures.
type flakyStore struct {
	*store.Memory[string, string]
	failRead      bool
	failSubscribe bool
}

func (s *flakyStore) Read(ctx context.Context, key string) (*syncer.Record[string], error) {
	if s.failRead {
		return nil, errors.New("disk unavailable")
	}
	return s.Memory.Read(ctx, key)
}

func (s *flakyStore) Subscribe(ctx context.Context, key string) (syncer.StoreSubscription[string], error) {
	if s.failSubscribe {
		return nil, errors.New("disk unavailable")
	}
	return s.Memory.Subscribe(ctx, key)
}

func recvRecord(t *testing.T, ch <-chan *syncer.Record[string]) *syncer.Record[string] {
	t.Helper()
	select {
	case rec, ok := <-ch:
		require.True(t, ok, "stream closed unexpectedly")
		return rec
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for stream emission")
		return nil
	}
}

func recvError(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err, ok := <-ch:
		require.True(t, ok, "error stream closed unexpectedly")
		return err
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for error emission")
		return nil
	}
}

func TestObserveServesCachedValueWithoutFetching(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mem := store.NewMemory[string, string]()
	require.NoError(t, mem.Write(ctx, "k", syncer.Record[string]{Value: "v1", UpdatedAt: time.Now()}))

	src := staticSource("v2")
	c, err := syncer.New[string, string](mem, src, syncer.FetchIfAbsent[string]())
	require.NoError(t, err)
	defer c.Close()

	st := c.Observe(ctx, "k")
	defer st.Close()

	rec := recvRecord(t, st.Updates())
	require.NotNil(t, rec)
	assert.Equal(t, "v1", rec.Value)

	// FetchIfAbsent must not touch the source for a cached key.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, src.callCount())
}

func TestObserveFetchesAbsentKeyAndWritesBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mem := store.NewMemory[string, string]()
	src := staticSource("fetched")
	c, err := syncer.New[string, string](mem, src, syncer.FetchIfAbsent[string]())
	require.NoError(t, err)
	defer c.Close()

	st := c.Observe(ctx, "k")
	defer st.Close()

	// First emission reflects the empty cache, the second arrives through
	// the store subscription after write-back.
	first := recvRecord(t, st.Updates())
	assert.Nil(t, first)

	second := recvRecord(t, st.Updates())
	require.NotNil(t, second)
	assert.Equal(t, "fetched", second.Value)

	stored, err := mem.Read(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "fetched", stored.Value)
}

func TestFirstSubscriberSeesInitialValueOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mem := store.NewMemory[string, string]()
	require.NoError(t, mem.Write(ctx, "k", syncer.Record[string]{Value: "v1", UpdatedAt: time.Now()}))

	src := staticSource("v2")
	c, err := syncer.New[string, string](mem, src, syncer.FetchIfAbsent[string]())
	require.NoError(t, err)
	defer c.Close()

	st := c.Observe(ctx, "k")
	defer st.Close()

	rec := recvRecord(t, st.Updates())
	require.NotNil(t, rec)
	require.Equal(t, "v1", rec.Value)

	// The subscription's on-attach snapshot must not be delivered on top of
	// the seeded value.
	select {
	case dup := <-st.Updates():
		t.Fatalf("unexpected duplicate emission: %v", dup)
	case <-time.After(100 * time.Millisecond):
	}

	// Later writes still flow through.
	require.NoError(t, mem.Write(ctx, "k", syncer.Record[string]{Value: "v2", UpdatedAt: time.Now()}))
	rec = recvRecord(t, st.Updates())
	require.NotNil(t, rec)
	assert.Equal(t, "v2", rec.Value)
}

func TestConcurrentObservesShareOneFetch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	release := make(chan struct{})
	src := &countingSource{
		fetch: func(_ context.Context, _ string) (syncer.Record[string], error) {
			<-release
			return syncer.Record[string]{Value: "v", UpdatedAt: time.Now()}, nil
		},
	}

	mem := store.NewMemory[string, string]()
	c, err := syncer.New[string, string](mem, src, syncer.FetchIfAbsent[string]())
	require.NoError(t, err)
	defer c.Close()

	// Every observer of the absent key attaches to the one in-flight fetch.
	const observers = 5
	streams := make([]*syncer.Stream[string], 0, observers)
	for range observers {
		st := c.Observe(ctx, "k")
		defer st.Close()
		assert.Nil(t, recvRecord(t, st.Updates()))
		streams = append(streams, st)
	}

	close(release)

	for _, st := range streams {
		rec := recvRecord(t, st.Updates())
		require.NotNil(t, rec)
		assert.Equal(t, "v", rec.Value)
	}
	assert.Equal(t, 1, src.callCount())
}

func TestConcurrentRefreshesShareOneFetch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	release := make(chan struct{})
	src := &countingSource{
		fetch: func(_ context.Context, _ string) (syncer.Record[string], error) {
			<-release
			return syncer.Record[string]{Value: "v", UpdatedAt: time.Now()}, nil
		},
	}

	mem := store.NewMemory[string, string]()
	c, err := syncer.New[string, string](mem, src, syncer.AlwaysFetch[string]())
	require.NoError(t, err)
	defer c.Close()

	const callers = 5
	outcomes := make(chan syncer.Outcome[string], callers)
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes <- c.RefreshNow(ctx, "k")
		}()
	}

	// Let every caller attach to the in-flight fetch before releasing it.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()
	close(outcomes)

	for out := range outcomes {
		assert.Equal(t, syncer.OutcomeFresh, out.Kind)
		require.NotNil(t, out.Record)
		assert.Equal(t, "v", out.Record.Value)
	}
	assert.Equal(t, 1, src.callCount())
}

func TestFetchFailureKeepsCachedValueAvailable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mem := store.NewMemory[string, string]()
	require.NoError(t, mem.Write(ctx, "k", syncer.Record[string]{Value: "v1", UpdatedAt: time.Now()}))

	src := failingSource(errors.New("upstream down"))
	c, err := syncer.New[string, string](mem, src, syncer.AlwaysFetch[string]())
	require.NoError(t, err)
	defer c.Close()

	errStream := c.WatchErrors("k")
	defer errStream.Close()

	st := c.Observe(ctx, "k")
	defer st.Close()

	// The cached value is served despite the failing upstream.
	rec := recvRecord(t, st.Updates())
	require.NotNil(t, rec)
	assert.Equal(t, "v1", rec.Value)

	// The failure reaches the error side channel, typed as a remote error.
	failure := recvError(t, errStream.Failures())
	var remoteErr *syncer.RemoteError
	require.ErrorAs(t, failure, &remoteErr)
	assert.ErrorContains(t, failure, "upstream down")

	meta := c.Meta("k")
	assert.Error(t, meta.LastError)
	assert.True(t, meta.LastRefresh.IsZero())

	stored, err := mem.Read(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "v1", stored.Value)
}

func TestRefreshIfStaleHonorsTTL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	clock := newFakeClock()
	mem := store.NewMemory[string, string]()
	src := staticSource("v")

	policy, err := syncer.FetchIfStale[string](time.Minute)
	require.NoError(t, err)

	c, err := syncer.New[string, string](mem, src, policy,
		syncer.WithClock[string, string](clock))
	require.NoError(t, err)
	defer c.Close()

	out := c.RefreshNow(ctx, "k")
	require.Equal(t, syncer.OutcomeFresh, out.Kind)
	require.Equal(t, 1, src.callCount())

	// Within the TTL the policy suppresses the fetch.
	out = c.RefreshIfStale(ctx, "k")
	assert.Equal(t, syncer.OutcomeSkipped, out.Kind)
	assert.Equal(t, 1, src.callCount())

	clock.Advance(2 * time.Minute)

	out = c.RefreshIfStale(ctx, "k")
	assert.Equal(t, syncer.OutcomeFresh, out.Kind)
	assert.Equal(t, 2, src.callCount())
}

func TestInvalidateForcesNextRefresh(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	clock := newFakeClock()
	mem := store.NewMemory[string, string]()
	src := staticSource("v")

	policy, err := syncer.FetchIfStale[string](time.Hour)
	require.NoError(t, err)

	c, err := syncer.New[string, string](mem, src, policy,
		syncer.WithClock[string, string](clock))
	require.NoError(t, err)
	defer c.Close()

	require.Equal(t, syncer.OutcomeFresh, c.RefreshNow(ctx, "k").Kind)
	require.Equal(t, syncer.OutcomeSkipped, c.RefreshIfStale(ctx, "k").Kind)

	c.Invalidate("k")

	// The cached value survives invalidation; only freshness is reset.
	stored, err := mem.Read(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, stored)

	out := c.RefreshIfStale(ctx, "k")
	assert.Equal(t, syncer.OutcomeFresh, out.Kind)
	assert.Equal(t, 2, src.callCount())
}

func TestRefreshNowDetachesOnContextCancel(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	src := &countingSource{
		fetch: func(_ context.Context, _ string) (syncer.Record[string], error) {
			<-release
			return syncer.Record[string]{Value: "slow", UpdatedAt: time.Now()}, nil
		},
	}

	mem := store.NewMemory[string, string]()
	c, err := syncer.New[string, string](mem, src, syncer.AlwaysFetch[string]())
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	out := c.RefreshNow(ctx, "k")
	assert.Equal(t, syncer.OutcomeFailed, out.Kind)
	assert.ErrorIs(t, out.Err, context.Canceled)

	// The detached fetch still completes and lands in the cache.
	close(release)
	require.Eventually(t, func() bool {
		rec, err := mem.Read(context.Background(), "k")
		return err == nil && rec != nil && rec.Value == "slow"
	}, waitTimeout, 10*time.Millisecond)
}

func TestLateSubscriberSeesLatestValue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mem := store.NewMemory[string, string]()
	require.NoError(t, mem.Write(ctx, "k", syncer.Record[string]{Value: "v1", UpdatedAt: time.Now()}))

	src := staticSource("v2")
	c, err := syncer.New[string, string](mem, src, syncer.FetchIfAbsent[string]())
	require.NoError(t, err)
	defer c.Close()

	first := c.Observe(ctx, "k")
	defer first.Close()
	rec := recvRecord(t, first.Updates())
	require.NotNil(t, rec)
	require.Equal(t, "v1", rec.Value)

	require.Equal(t, syncer.OutcomeFresh, c.RefreshNow(ctx, "k").Kind)

	// A subscriber attaching after the refresh starts from the new value.
	late := c.Observe(ctx, "k")
	defer late.Close()
	rec = recvRecord(t, late.Updates())
	require.NotNil(t, rec)
	assert.Equal(t, "v2", rec.Value)
}

func TestAcceptGateDiscardsRejectedPayload(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mem := store.NewMemory[string, string]()
	require.NoError(t, mem.Write(ctx, "k", syncer.Record[string]{Value: "v1", UpdatedAt: time.Now()}))

	src := staticSource("v0")
	c, err := syncer.New[string, string](mem, src, syncer.AlwaysFetch[string](),
		syncer.WithAccept[string, string](func(cached *syncer.Record[string], _ syncer.Record[string]) bool {
			return cached == nil
		}))
	require.NoError(t, err)
	defer c.Close()

	out := c.RefreshNow(ctx, "k")
	assert.Equal(t, syncer.OutcomeSkipped, out.Kind)
	assert.Equal(t, 1, src.callCount())

	// The rejected payload never reaches the store, but the upstream check
	// still counts as a refresh.
	stored, err := mem.Read(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "v1", stored.Value)

	meta := c.Meta("k")
	assert.False(t, meta.LastRefresh.IsZero())
	assert.NoError(t, meta.LastError)
}

func TestSpreadWritesDerivedRecordsInOneBatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mem := store.NewMemory[string, string]()
	src := staticSource("a,b")

	spread := func(key string, rec syncer.Record[string]) map[string]syncer.Record[string] {
		out := make(map[string]syncer.Record[string])
		for i, part := range []string{"a", "b"} {
			out[fmt.Sprintf("%s/%d", key, i)] = syncer.Record[string]{Value: part, UpdatedAt: rec.UpdatedAt}
		}
		return out
	}

	c, err := syncer.New[string, string](mem, src, syncer.AlwaysFetch[string](),
		syncer.WithSpread[string, string](spread))
	require.NoError(t, err)
	defer c.Close()

	require.Equal(t, syncer.OutcomeFresh, c.RefreshNow(ctx, "parent").Kind)

	for key, want := range map[string]string{
		"parent":   "a,b",
		"parent/0": "a",
		"parent/1": "b",
	} {
		rec, err := mem.Read(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, rec, "missing record for %s", key)
		assert.Equal(t, want, rec.Value)
	}
}

func TestObserveFailsStreamOnStoreErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		store *flakyStore
		op    string
	}{
		{
			name:  "subscribe failure",
			store: &flakyStore{Memory: store.NewMemory[string, string](), failSubscribe: true},
			op:    "subscribe",
		},
		{
			name:  "read failure",
			store: &flakyStore{Memory: store.NewMemory[string, string](), failRead: true},
			op:    "read",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			src := staticSource("v")
			c, err := syncer.New[string, string](tt.store, src, syncer.FetchIfAbsent[string]())
			require.NoError(t, err)
			defer c.Close()

			st := c.Observe(context.Background(), "k")
			defer st.Close()

			select {
			case _, ok := <-st.Updates():
				require.False(t, ok, "expected closed stream")
			case <-time.After(waitTimeout):
				t.Fatal("timed out waiting for stream close")
			}

			var storeErr *syncer.StoreError
			require.ErrorAs(t, st.Err(), &storeErr)
			assert.Equal(t, tt.op, storeErr.Op)
		})
	}
}

func TestCloseTerminatesAllStreams(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mem := store.NewMemory[string, string]()
	src := staticSource("v")
	c, err := syncer.New[string, string](mem, src, syncer.FetchIfAbsent[string]())
	require.NoError(t, err)

	st := c.Observe(ctx, "k")
	errStream := c.WatchErrors("k")
	recvRecord(t, st.Updates())

	c.Close()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-st.Updates():
			return !ok
		default:
			return false
		}
	}, waitTimeout, 10*time.Millisecond)

	select {
	case _, ok := <-errStream.Failures():
		assert.False(t, ok)
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for error stream close")
	}
}

func TestNewValidatesCapabilityPair(t *testing.T) {
	t.Parallel()

	mem := store.NewMemory[string, string]()
	src := staticSource("v")
	policy := syncer.FetchIfAbsent[string]()

	_, err := syncer.New[string, string](nil, src, policy)
	assert.Error(t, err)

	_, err = syncer.New[string, string](mem, nil, policy)
	assert.Error(t, err)

	_, err = syncer.New[string, string](mem, src, nil)
	assert.Error(t, err)
}
