package store

import (
	"sync"

	"github.com/google/uuid"

	"github.com/cachebound/cachebound/pkg/syncer"
)

// subBuffer is the per-subscription channel capacity. Emissions never block
// a writer: once the buffer is full the oldest pending value is dropped in
// favor of the newest.
const subBuffer = 16

// Hub fans out per-key record emissions to registered subscriptions. Store
// implementations publish into it after every committed write.
type Hub[K comparable, V any] struct {
	mu   sync.Mutex
	subs map[K]map[uuid.UUID]*Sub[V]
}

// NewHub creates an empty Hub.
func NewHub[K comparable, V any]() *Hub[K, V] {
	return &Hub[K, V]{
		subs: make(map[K]map[uuid.UUID]*Sub[V]),
	}
}

// Subscribe registers a subscription for key and queues initial as its first
// emission.
func (h *Hub[K, V]) Subscribe(key K, initial *syncer.Record[V]) *Sub[V] {
	s := &Sub[V]{
		id: uuid.New(),
		ch: make(chan *syncer.Record[V], subBuffer),
	}
	s.remove = func() { h.remove(key, s.id) }

	h.mu.Lock()
	keySubs, ok := h.subs[key]
	if !ok {
		keySubs = make(map[uuid.UUID]*Sub[V])
		h.subs[key] = keySubs
	}
	keySubs[s.id] = s
	s.push(initial)
	h.mu.Unlock()

	return s
}

// Publish delivers rec to every subscription for key.
func (h *Hub[K, V]) Publish(key K, rec *syncer.Record[V]) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subs[key] {
		s.push(rec)
	}
}

// Close closes every subscription. Used on store shutdown.
func (h *Hub[K, V]) Close() {
	h.mu.Lock()
	subs := make([]*Sub[V], 0)
	for _, keySubs := range h.subs {
		for _, s := range keySubs {
			subs = append(subs, s)
		}
	}
	h.subs = make(map[K]map[uuid.UUID]*Sub[V])
	h.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
}

func (h *Hub[K, V]) remove(key K, id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	keySubs, ok := h.subs[key]
	if !ok {
		return
	}
	delete(keySubs, id)
	if len(keySubs) == 0 {
		delete(h.subs, key)
	}
}

// Sub is one live subscription produced by a Hub. It implements
// syncer.StoreSubscription.
type Sub[V any] struct {
	id     uuid.UUID
	ch     chan *syncer.Record[V]
	remove func()

	mu     sync.Mutex
	closed bool
}

// Updates returns the emission channel.
func (s *Sub[V]) Updates() <-chan *syncer.Record[V] { return s.ch }

// Close releases the subscription and closes Updates.
func (s *Sub[V]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.ch)
	s.mu.Unlock()

	if s.remove != nil {
		s.remove()
	}
}

// push queues rec, dropping the oldest pending value when the buffer is
// full.
func (s *Sub[V]) push(rec *syncer.Record[V]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- rec:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}
