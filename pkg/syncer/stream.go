package syncer

import (
	"sync"

	"github.com/google/uuid"
)

// streamBuffer is the per-subscriber channel capacity. A slow consumer does
// not block the fan-out: once the buffer is full the oldest pending value is
// dropped, keeping the latest visible (replay-latest semantics).
const streamBuffer = 16

// Stream is one consumer's live view of a key. It is created by
// Coordinator.Observe and delivers the current store value immediately,
// then every subsequent post-write value. A nil record means the key is
// absent from the store.
type Stream[V any] struct {
	id uuid.UUID
	ch chan *Record[V]

	mu      sync.Mutex
	err     error
	emitted bool
	closed  bool
	detach  func(id uuid.UUID)
}

func newStream[V any]() *Stream[V] {
	return &Stream[V]{
		id: uuid.New(),
		ch: make(chan *Record[V], streamBuffer),
	}
}

// Updates returns the value channel. It is closed when the stream is closed
// or hits a terminal store read error; check Err after it closes.
func (s *Stream[V]) Updates() <-chan *Record[V] { return s.ch }

// Err returns the terminal error, if any, after Updates has been closed.
// Remote fetch failures never appear here; they go to the key's error
// stream.
func (s *Stream[V]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close cancels this consumer's interest in the key. Other subscribers and
// any in-flight fetch are unaffected.
func (s *Stream[V]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.ch)
	detach := s.detach
	s.mu.Unlock()

	if detach != nil {
		detach(s.id)
	}
}

// emit delivers rec to the consumer, dropping the oldest pending value when
// the buffer is full.
func (s *Stream[V]) emit(rec *Record[V]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.emitted = true
	for {
		select {
		case s.ch <- rec:
			return
		default:
		}
		// Buffer full: drop the oldest pending value and retry.
		select {
		case <-s.ch:
		default:
		}
	}
}

// seeded reports whether the stream has already delivered at least one
// value. Used to skip the initial store read result when a fresher write
// emission raced ahead of it.
func (s *Stream[V]) seeded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emitted
}

// fail terminates the stream with err and closes Updates.
func (s *Stream[V]) fail(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.err = err
	s.closed = true
	close(s.ch)
	detach := s.detach
	s.mu.Unlock()

	if detach != nil {
		detach(s.id)
	}
}

// ErrStream is the per-key side channel of fetch failures, decoupled from
// the value stream so callers can observe transient errors without losing
// the last known good value.
type ErrStream struct {
	id uuid.UUID
	ch chan error

	mu     sync.Mutex
	closed bool
	detach func(id uuid.UUID)
}

func newErrStream() *ErrStream {
	return &ErrStream{
		id: uuid.New(),
		ch: make(chan error, streamBuffer),
	}
}

// Failures returns the channel of fetch failures for the key.
func (s *ErrStream) Failures() <-chan error { return s.ch }

// Close cancels this consumer's interest in the key's failures.
func (s *ErrStream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.ch)
	detach := s.detach
	s.mu.Unlock()

	if detach != nil {
		detach(s.id)
	}
}

// publish delivers a failure without blocking; when the consumer lags the
// failure is dropped, failures are informational.
func (s *ErrStream) publish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- err:
	default:
	}
}
