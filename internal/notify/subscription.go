package notify

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Subscription is the receiving endpoint of a bounded event queue.
// It is owned by the consumer; the hub holds only the sending side.
type Subscription struct {
	id  string
	cap int

	// mu serializes queue sends and close transitions. The receive path
	// (Next) deliberately does not take it, so consumers never block a
	// publisher beyond a single enqueue.
	mu     sync.Mutex
	ch     chan Envelope
	closed bool

	lagged    atomic.Bool
	dropped   atomic.Uint64
	delivered atomic.Uint64
}

func newSubscription(capacity int) *Subscription {
	if capacity < 1 {
		capacity = 1
	}
	return &Subscription{
		id:  uuid.New().String(),
		cap: capacity,
		ch:  make(chan Envelope, capacity),
	}
}

// ID returns the unique subscription identifier.
func (s *Subscription) ID() string {
	return s.id
}

// Capacity returns the queue bound.
func (s *Subscription) Capacity() int {
	return s.cap
}

// Next returns the next envelope, blocking until one arrives, the
// subscription closes, or ctx ends.
//
// After events were dropped, Next returns ErrLagged exactly once before
// resuming with the oldest retained envelope. After Close, Next drains any
// envelopes still queued by a terminal close, then returns ErrClosed.
func (s *Subscription) Next(ctx context.Context) (Envelope, error) {
	if s.lagged.CompareAndSwap(true, false) {
		return Envelope{}, ErrLagged
	}

	select {
	case env, ok := <-s.ch:
		if !ok {
			return Envelope{}, ErrClosed
		}
		return env, nil
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	}
}

// TryNext returns the next envelope without blocking.
// It returns ErrLagged once after drops, ErrNoPending when the queue is
// empty, and ErrClosed after close.
func (s *Subscription) TryNext() (Envelope, error) {
	if s.lagged.CompareAndSwap(true, false) {
		return Envelope{}, ErrLagged
	}

	select {
	case env, ok := <-s.ch:
		if !ok {
			return Envelope{}, ErrClosed
		}
		return env, nil
	default:
		return Envelope{}, ErrNoPending
	}
}

// Lagging reports whether events were dropped since the last lag marker
// was consumed.
func (s *Subscription) Lagging() bool {
	return s.lagged.Load()
}

// Dropped returns the total number of envelopes dropped from this queue.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Delivered returns the total number of envelopes enqueued successfully.
func (s *Subscription) Delivered() uint64 {
	return s.delivered.Load()
}

// IsClosed reports whether the subscription has been closed.
func (s *Subscription) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close cancels the subscription. Queued envelopes are discarded and no
// completion guarantee is made for them. The hub prunes the subscription
// on its next publish. Close is idempotent.
func (s *Subscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true

	// Discard anything still queued, then close so a blocked Next wakes.
	for {
		select {
		case <-s.ch:
		default:
			close(s.ch)
			return
		}
	}
}

// closeTerminal closes the subscription while keeping queued envelopes
// readable. Used when the event source itself goes away: consumers drain
// what was delivered, then see ErrClosed.
func (s *Subscription) closeTerminal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// push enqueues an envelope, dropping the oldest queued envelope when the
// queue is full. Reports whether the envelope was enqueued and whether the
// subscription is still open.
func (s *Subscription) push(env Envelope) (enqueued, open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, false
	}

	for {
		select {
		case s.ch <- env:
			s.delivered.Add(1)
			return true, true
		default:
		}

		// Queue full: drop the oldest and retry. A concurrent receiver
		// may win the race for the oldest envelope, which is fine; the
		// retry then succeeds.
		select {
		case <-s.ch:
			s.dropped.Add(1)
			s.lagged.Store(true)
		default:
		}
	}
}
