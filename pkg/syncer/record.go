package syncer

import "time"

// Record is the value associated with a key. Records are immutable once
// constructed; an update produces a new Record rather than mutating in place.
type Record[V any] struct {
	// Value is the domain value.
	Value V

	// UpdatedAt is when the record was produced by its source.
	UpdatedAt time.Time
}

// Meta is the per-key bookkeeping owned by the Coordinator. It is never
// persisted and resets on process restart.
type Meta struct {
	// LastRefresh is the time of the last successful fetch-and-write-back.
	// It is updated only after the store write succeeded, never before.
	LastRefresh time.Time

	// LastError is the error from the most recent failed fetch attempt,
	// cleared by the next successful one.
	LastError error

	// InFlight reports whether a remote fetch for the key is currently
	// running.
	InFlight bool
}

// OutcomeKind identifies the result of a remote fetch attempt.
type OutcomeKind int

const (
	// OutcomeFresh means the fetch succeeded and the record was written back.
	OutcomeFresh OutcomeKind = iota

	// OutcomeFailed means the fetch or its write-back failed.
	OutcomeFailed

	// OutcomeSkipped means no fetch was attempted because the freshness
	// policy suppressed it.
	OutcomeSkipped
)

// String returns the outcome kind as a lowercase label.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeFresh:
		return "fresh"
	case OutcomeFailed:
		return "failed"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Outcome is the tagged result of one remote fetch attempt.
type Outcome[V any] struct {
	// Kind tags the outcome.
	Kind OutcomeKind

	// Record is the fetched record. Set only when Kind is OutcomeFresh.
	Record *Record[V]

	// Err is the failure cause. Set only when Kind is OutcomeFailed.
	Err error
}

// Clock abstracts wall-clock time so freshness decisions are testable
// without sleeping.
type Clock interface {
	Now() time.Time
}

// SystemClock is the default Clock backed by time.Now.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }
