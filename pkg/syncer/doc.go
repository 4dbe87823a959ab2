// Package syncer provides a cache-coordinated synchronization engine that
// reconciles a durable local store with a remote data source and exposes a
// single consistent, reactive view of each key to any number of consumers.
//
// # Core Interfaces
//
//   - Store: the local persistence contract (point reads, upserts, bulk
//     upserts, and a live per-key subscription)
//   - Source: the remote fetch contract (one blocking fetch per key)
//   - Policy: pure freshness decision deciding whether a cached record
//     warrants a remote refresh
//
// # Coordinator
//
// The Coordinator orchestrates reads, staleness checks, remote fetches,
// cache write-back, and fan-out of results to subscribers. For any key at
// most one remote fetch is in flight at a time; concurrent Observe and
// RefreshNow calls for the same key attach to the existing fetch instead of
// issuing a duplicate (single-flight coalescing via golang.org/x/sync).
//
// Values delivered to consumers always originate from the Store, never from
// a raw Source response: a successful fetch is written back first, and the
// Store's own subscription mechanism re-emits to every subscriber. This
// write-then-read-back discipline guarantees that all consumers, old and
// new, see the same post-fetch state.
//
// # Failure Semantics
//
// Remote failures are recoverable and local to their key. They never
// terminate a value stream; the last known good value stays visible
// (stale-but-available) and the failure is published out of band on the
// key's error stream (WatchErrors). Only a local store read failure is
// terminal, and only for the subscription that hit it.
package syncer
