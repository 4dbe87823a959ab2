package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/cachebound/cachebound/pkg/syncer"
)

// Resource binds a configured resource class to its coordinator.
type Resource struct {
	// Name is the resource class name.
	Name string

	// Policy is the freshness policy mode, for informational listing.
	Policy string

	// Endpoint is the upstream URL template, for informational listing.
	Endpoint string

	// Coordinator reconciles the resource's store with its upstream.
	Coordinator *syncer.Coordinator[string, json.RawMessage]
}

type defaultService struct {
	resources map[string]*Resource
}

// New creates a Service over the given resource classes.
func New(resources []Resource) (Service, error) {
	byName := make(map[string]*Resource, len(resources))
	for i := range resources {
		res := resources[i]
		if res.Name == "" {
			return nil, fmt.Errorf("resource name is required")
		}
		if res.Coordinator == nil {
			return nil, fmt.Errorf("resource %q: coordinator is required", res.Name)
		}
		if _, ok := byName[res.Name]; ok {
			return nil, fmt.Errorf("duplicate resource %q", res.Name)
		}
		byName[res.Name] = &res
	}
	return &defaultService{resources: byName}, nil
}

// ListResources returns the configured resource classes sorted by name.
func (s *defaultService) ListResources(_ context.Context) []ResourceInfo {
	infos := make([]ResourceInfo, 0, len(s.resources))
	for _, res := range s.resources {
		infos = append(infos, ResourceInfo{
			Name:     res.Name,
			Policy:   res.Policy,
			Endpoint: res.Endpoint,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// GetValue returns the current cached value for a key. It takes the first
// emission of a short-lived observation, so the resource's freshness policy
// runs but any triggered fetch completes in the background.
func (s *defaultService) GetValue(ctx context.Context, resource, key string) (*Value, error) {
	res, err := s.resource(resource)
	if err != nil {
		return nil, err
	}

	stream := res.Coordinator.Observe(ctx, key)
	defer stream.Close()

	select {
	case rec, ok := <-stream.Updates():
		if !ok {
			return nil, fmt.Errorf("failed to read %s/%s: %w", resource, key, stream.Err())
		}
		if rec == nil {
			return nil, ErrKeyNotFound
		}
		return &Value{Key: key, Data: rec.Value, UpdatedAt: rec.UpdatedAt}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Refresh fetches the key from upstream, honoring the freshness policy
// unless force is set.
func (s *defaultService) Refresh(ctx context.Context, resource, key string, force bool) (*RefreshResult, error) {
	res, err := s.resource(resource)
	if err != nil {
		return nil, err
	}

	var out syncer.Outcome[json.RawMessage]
	if force {
		out = res.Coordinator.RefreshNow(ctx, key)
	} else {
		out = res.Coordinator.RefreshIfStale(ctx, key)
	}

	result := &RefreshResult{Outcome: out.Kind.String()}
	switch out.Kind {
	case syncer.OutcomeFresh:
		if out.Record != nil {
			result.Value = &Value{Key: key, Data: out.Record.Value, UpdatedAt: out.Record.UpdatedAt}
		}
	case syncer.OutcomeFailed:
		if out.Err != nil {
			result.Error = out.Err.Error()
		}
	}
	return result, nil
}

// Invalidate marks the key stale without removing the cached value.
func (s *defaultService) Invalidate(_ context.Context, resource, key string) error {
	res, err := s.resource(resource)
	if err != nil {
		return err
	}
	res.Coordinator.Invalidate(key)
	return nil
}

// KeyStatus returns the sync bookkeeping for a key.
func (s *defaultService) KeyStatus(_ context.Context, resource, key string) (*KeyStatus, error) {
	res, err := s.resource(resource)
	if err != nil {
		return nil, err
	}

	meta := res.Coordinator.Meta(key)
	status := &KeyStatus{
		Resource:    resource,
		Key:         key,
		LastRefresh: meta.LastRefresh,
		InFlight:    meta.InFlight,
	}
	if meta.LastError != nil {
		status.LastError = meta.LastError.Error()
	}
	return status, nil
}

// WatchKey opens a live watch on a key.
func (s *defaultService) WatchKey(ctx context.Context, resource, key string) (Watch, error) {
	res, err := s.resource(resource)
	if err != nil {
		return nil, err
	}

	stream := res.Coordinator.Observe(ctx, key)
	errs := res.Coordinator.WatchErrors(key)

	w := &coordinatorWatch{
		key:    key,
		stream: stream,
		errs:   errs,
		values: make(chan *Value, 16),
		done:   make(chan struct{}),
	}
	go w.relay()
	return w, nil
}

func (s *defaultService) resource(name string) (*Resource, error) {
	res, ok := s.resources[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, name)
	}
	return res, nil
}

// coordinatorWatch adapts a coordinator stream pair to the Watch interface.
type coordinatorWatch struct {
	key    string
	stream *syncer.Stream[json.RawMessage]
	errs   *syncer.ErrStream
	values chan *Value
	done   chan struct{}
	once   sync.Once
}

func (w *coordinatorWatch) Values() <-chan *Value  { return w.values }
func (w *coordinatorWatch) Failures() <-chan error { return w.errs.Failures() }

func (w *coordinatorWatch) Close() {
	w.once.Do(func() { close(w.done) })
	w.stream.Close()
	w.errs.Close()
}

// relay converts record emissions into API values until the underlying
// stream closes. The send selects against done so Close unblocks a relay
// whose consumer stopped draining.
func (w *coordinatorWatch) relay() {
	defer close(w.values)
	for rec := range w.stream.Updates() {
		var value *Value
		if rec != nil {
			value = &Value{Key: w.key, Data: rec.Value, UpdatedAt: rec.UpdatedAt}
		}
		select {
		case w.values <- value:
		case <-w.done:
			return
		}
	}
}
