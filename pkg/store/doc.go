// Package store provides local store implementations for the syncer
// coordinator: an in-memory store for tests and single-process use, and a
// SQLite-backed durable store in the sqlite subpackage. Both share the Hub
// fan-out that implements the subscribe contract (current value first, then
// every write).
package store
