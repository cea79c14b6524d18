package comments

import (
	"context"
	"sync"
)

// Update is one feed emission: either the full ordered collection or the error that ended
// the feed. An error update is always the last one a subscription delivers.
type Update struct {
	Comments []Comment
	Err      error
}

// Subscription is a live, ordered view of the comments collection.
type Subscription struct {
	id      int64
	updates chan Update
	done    chan struct{}

	mu       sync.Mutex
	closed   bool
	released bool
	stop     func()
	cancel   context.CancelFunc
	onClose  func(id int64)
}

func newSubscription(id int64, cancel context.CancelFunc, onClose func(int64)) *Subscription {
	return &Subscription{
		id:      id,
		updates: make(chan Update, 1),
		done:    make(chan struct{}),
		cancel:  cancel,
		onClose: onClose,
	}
}

// ID returns the registry key of the subscription.
func (s *Subscription) ID() int64 {
	return s.id
}

// Updates streams emissions. The channel is closed after Close or after an error update.
// Only the newest undelivered emission is retained for a slow reader.
func (s *Subscription) Updates() <-chan Update {
	return s.updates
}

// Done is closed once the subscription has been torn down.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close tears the subscription down. When Close returns no further update will be
// delivered and the store watch has been released.
func (s *Subscription) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.updates)
	}
	s.mu.Unlock()
	s.release()
}

func (s *Subscription) deliver(update Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case <-s.updates:
	default:
	}
	s.updates <- update
}

// fail delivers a terminal error update and tears the subscription down.
func (s *Subscription) fail(err error) {
	s.mu.Lock()
	if !s.closed {
		select {
		case <-s.updates:
		default:
		}
		s.updates <- Update{Err: err}
		s.closed = true
		close(s.updates)
	}
	s.mu.Unlock()
	s.release()
}

// attach records the store's stop function. A subscription that was already torn down
// releases the watch immediately.
func (s *Subscription) attach(stop func()) {
	s.mu.Lock()
	if !s.released {
		s.stop = stop
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func (s *Subscription) release() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	stop := s.stop
	s.stop = nil
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.onClose != nil {
		s.onClose(s.id)
	}
	close(s.done)
}
