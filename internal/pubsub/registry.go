// Package pubsub provides an in-process listener registry keyed by subscription id.
package pubsub

import (
	"context"
	"sync"
)

const defaultBufferSize = 16

// Registry fans published messages out to every live subscriber.
//
// Cancelling a subscription is synchronous: once the cancel function returns the
// subscriber's channel is closed and no further message is delivered to it.
type Registry[T any] struct {
	mu          sync.RWMutex
	subscribers map[int64]*subscriber[T]
	nextID      int64
	bufferSize  int
}

type subscriber[T any] struct {
	id     int64
	mu     sync.Mutex
	closed bool
	stream chan T
	done   chan struct{}
}

// NewRegistry constructs a registry whose subscriber channels hold bufferSize messages.
// Messages published to a full subscriber are dropped for that subscriber.
func NewRegistry[T any](bufferSize int) *Registry[T] {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Registry[T]{
		subscribers: make(map[int64]*subscriber[T]),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers a listener. The returned cancel function is idempotent and is
// also invoked when ctx is done. Cancelling releases the goroutine watching ctx.
func (r *Registry[T]) Subscribe(ctx context.Context) (<-chan T, func()) {
	sub := &subscriber[T]{
		stream: make(chan T, r.bufferSize),
		done:   make(chan struct{}),
	}

	r.mu.Lock()
	r.nextID++
	sub.id = r.nextID
	r.subscribers[sub.id] = sub
	r.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.unregister(sub.id)
			sub.close()
		})
	}
	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				cancel()
			case <-sub.done:
			}
		}()
	}
	return sub.stream, cancel
}

// Publish delivers message to every subscriber and reports how many received it.
func (r *Registry[T]) Publish(message T) int {
	r.mu.RLock()
	copies := make([]*subscriber[T], 0, len(r.subscribers))
	for _, sub := range r.subscribers {
		copies = append(copies, sub)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, sub := range copies {
		if sub.deliver(message) {
			delivered++
		}
	}
	return delivered
}

// Len reports the number of live subscribers.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscribers)
}

func (r *Registry[T]) unregister(id int64) {
	r.mu.Lock()
	delete(r.subscribers, id)
	r.mu.Unlock()
}

func (s *subscriber[T]) deliver(message T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.stream <- message:
		return true
	default:
		return false
	}
}

func (s *subscriber[T]) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.stream)
	close(s.done)
}
