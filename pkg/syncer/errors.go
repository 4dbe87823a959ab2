package syncer

import (
	"errors"
	"fmt"
)

// RemoteError wraps a failure of the remote fetch (network, protocol,
// deserialization). Remote errors are recoverable: the cached value stays
// authoritative and the error is surfaced on the key's error stream.
type RemoteError struct {
	Err error
}

// Error returns the error message.
func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote fetch failed: %v", e.Err)
}

// Unwrap returns the underlying cause.
func (e *RemoteError) Unwrap() error { return e.Err }

// StoreError wraps a failure to read or write the local store. Op is the
// store operation that failed ("read", "write", "subscribe").
type StoreError struct {
	Op  string
	Err error
}

// Error returns the error message.
func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *StoreError) Unwrap() error { return e.Err }

// PolicyError reports an invalid policy construction, such as a
// non-positive TTL. It is returned at construction time, never at request
// time.
type PolicyError struct {
	Reason string
}

// Error returns the error message.
func (e *PolicyError) Error() string {
	return fmt.Sprintf("invalid freshness policy: %s", e.Reason)
}

// asRemote wraps err in a RemoteError unless it already is one.
func asRemote(err error) *RemoteError {
	var re *RemoteError
	if errors.As(err, &re) {
		return re
	}
	return &RemoteError{Err: err}
}
