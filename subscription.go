package textstore

import (
	"context"
	"errors"

	"github.com/dshills/textstore/internal/notify"
)

// Subscription is the receiving end of one bounded change-event queue.
// It is owned by the subscriber; the fan-out side only pushes into it
// and detects abandonment lazily. Safe for concurrent use, though
// events are consumed in order by whoever calls Next.
type Subscription struct {
	inner *notify.Subscription
}

// Next returns the next change event, blocking until one arrives, the
// subscription ends, or ctx is done.
//
// If the queue overflowed since the last call, Next returns ErrLagged
// exactly once; the consumer should re-read content and version through
// the registry, after which Next resumes with the retained events. Once
// the subscription is closed and drained, Next returns
// ErrSubscriptionClosed.
func (s *Subscription) Next(ctx context.Context) (ChangeEvent, error) {
	for {
		env, err := s.inner.Next(ctx)
		if err != nil {
			return ChangeEvent{}, mapSubErr(err)
		}
		if ev, ok := env.Payload.(ChangeEvent); ok {
			return ev, nil
		}
	}
}

// TryNext is Next without blocking: ErrNoEvent when the queue is empty.
func (s *Subscription) TryNext() (ChangeEvent, error) {
	for {
		env, err := s.inner.TryNext()
		if err != nil {
			return ChangeEvent{}, mapSubErr(err)
		}
		if ev, ok := env.Payload.(ChangeEvent); ok {
			return ev, nil
		}
	}
}

// Lagging reports whether events have been dropped since the last lag
// marker was consumed.
func (s *Subscription) Lagging() bool { return s.inner.Lagging() }

// Dropped returns the total number of events this subscription lost to
// queue overflow.
func (s *Subscription) Dropped() uint64 { return s.inner.Dropped() }

// ID returns the subscription's unique identifier.
func (s *Subscription) ID() string { return s.inner.ID() }

// Close cancels the subscription. Events still queued are discarded and
// the fan-out prunes the subscription on its next publish. Idempotent.
func (s *Subscription) Close() { s.inner.Close() }

func mapSubErr(err error) error {
	switch {
	case errors.Is(err, notify.ErrLagged):
		return ErrLagged
	case errors.Is(err, notify.ErrClosed):
		return ErrSubscriptionClosed
	case errors.Is(err, notify.ErrNoPending):
		return ErrNoEvent
	default:
		return err
	}
}
