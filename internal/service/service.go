// Package service provides the business logic layer between the HTTP API
// and the per-resource sync coordinators.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

//go:generate mockgen -destination=mocks/mock_service.go -package=mocks -source=service.go Service

var (
	// ErrResourceNotFound is returned when the named resource class is not
	// configured.
	ErrResourceNotFound = errors.New("resource not found")

	// ErrKeyNotFound is returned when no cached record exists for a key.
	ErrKeyNotFound = errors.New("key not found")
)

// Value is one cached record as served to API clients.
type Value struct {
	// Key is the record's key within its resource class.
	Key string `json:"key"`

	// Data is the cached JSON payload.
	Data json.RawMessage `json:"data"`

	// UpdatedAt is when the payload was produced upstream.
	UpdatedAt time.Time `json:"updated_at"`
}

// RefreshResult describes the outcome of an explicit refresh request.
type RefreshResult struct {
	// Outcome is "fresh", "failed", or "skipped".
	Outcome string `json:"outcome"`

	// Value is the freshly fetched record. Set only for outcome "fresh".
	Value *Value `json:"value,omitempty"`

	// Error describes the failure. Set only for outcome "failed".
	Error string `json:"error,omitempty"`
}

// KeyStatus is the sync bookkeeping for one key.
type KeyStatus struct {
	// Resource is the resource class name.
	Resource string `json:"resource"`

	// Key is the record key.
	Key string `json:"key"`

	// LastRefresh is when the last successful fetch was written back.
	// Zero when the key has never been refreshed.
	LastRefresh time.Time `json:"last_refresh,omitzero"`

	// LastError describes the most recent fetch failure, if any.
	LastError string `json:"last_error,omitempty"`

	// InFlight reports whether a fetch is currently running.
	InFlight bool `json:"in_flight"`
}

// ResourceInfo describes one configured resource class.
type ResourceInfo struct {
	// Name is the resource class name.
	Name string `json:"name"`

	// Policy is the freshness policy mode ("absent", "stale", "always").
	Policy string `json:"policy"`

	// Endpoint is the upstream URL template.
	Endpoint string `json:"endpoint"`
}

// Watch is a live view of one key: cached value updates plus the side
// channel of fetch failures. Callers must Close it when done.
type Watch interface {
	// Values delivers the current value on creation, then every post-write
	// value. A nil Value means the key is absent.
	Values() <-chan *Value

	// Failures delivers fetch failures without interrupting Values.
	Failures() <-chan error

	// Close releases the watch.
	Close()
}

// Service defines the operations the API exposes over the configured
// resource classes.
type Service interface {
	// ListResources returns the configured resource classes.
	ListResources(ctx context.Context) []ResourceInfo

	// GetValue returns the current cached value for a key. Observing the
	// key may trigger a background fetch per the resource's freshness
	// policy; the call itself never waits for the network.
	GetValue(ctx context.Context, resource, key string) (*Value, error)

	// Refresh fetches the key from upstream. When force is false the
	// resource's freshness policy may skip the fetch; when true the policy
	// is bypassed. Concurrent refreshes of the same key share one fetch.
	Refresh(ctx context.Context, resource, key string, force bool) (*RefreshResult, error)

	// Invalidate marks the key stale so the next observe or non-forced
	// refresh fetches again. The cached value stays readable meanwhile.
	Invalidate(ctx context.Context, resource, key string) error

	// KeyStatus returns the sync bookkeeping for a key.
	KeyStatus(ctx context.Context, resource, key string) (*KeyStatus, error)

	// WatchKey opens a live watch on a key.
	WatchKey(ctx context.Context, resource, key string) (Watch, error)
}
