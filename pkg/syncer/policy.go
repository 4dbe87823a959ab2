package syncer

import "time"

// Policy is a pure freshness decision: given the cached record (nil when
// absent), the key's bookkeeping, and the current time, it reports whether a
// remote fetch is warranted. Implementations must be deterministic and free
// of side effects.
type Policy[V any] interface {
	ShouldFetch(cached *Record[V], meta Meta, now time.Time) bool
}

type fetchIfAbsent[V any] struct{}

// FetchIfAbsent returns a policy that fetches only when no cached record
// exists.
func FetchIfAbsent[V any]() Policy[V] { return fetchIfAbsent[V]{} }

// ShouldFetch reports true only for an absent cached record.
func (fetchIfAbsent[V]) ShouldFetch(cached *Record[V], _ Meta, _ time.Time) bool {
	return cached == nil
}

type fetchIfStale[V any] struct {
	ttl time.Duration
}

// FetchIfStale returns a policy that fetches when no cached record exists or
// when the last successful refresh is at least ttl in the past. A
// non-positive ttl is a PolicyError.
func FetchIfStale[V any](ttl time.Duration) (Policy[V], error) {
	if ttl <= 0 {
		return nil, &PolicyError{Reason: "ttl must be positive"}
	}
	return fetchIfStale[V]{ttl: ttl}, nil
}

// ShouldFetch reports true for absent or expired records. A zero
// LastRefresh (never refreshed, or invalidated) always counts as stale.
func (p fetchIfStale[V]) ShouldFetch(cached *Record[V], meta Meta, now time.Time) bool {
	if cached == nil || meta.LastRefresh.IsZero() {
		return true
	}
	return now.Sub(meta.LastRefresh) >= p.ttl
}

type alwaysFetch[V any] struct{}

// AlwaysFetch returns a policy that fetches unconditionally. Used for
// force-refresh semantics.
func AlwaysFetch[V any]() Policy[V] { return alwaysFetch[V]{} }

// ShouldFetch reports true unconditionally.
func (alwaysFetch[V]) ShouldFetch(*Record[V], Meta, time.Time) bool { return true }
