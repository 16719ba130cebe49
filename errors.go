package textstore

import (
	"errors"
	"fmt"
)

// Registry errors
var (
	// ErrNotFound indicates that no buffer exists with the given BufferID.
	ErrNotFound = errors.New("buffer not found")

	// ErrRegistryClosed indicates an operation on a registry after Close.
	ErrRegistryClosed = errors.New("registry closed")
)

// Edit errors
var (
	// ErrOutOfRange indicates that an offset or range falls outside the
	// buffer's current content. Returned wrapped in an *OffsetError.
	ErrOutOfRange = errors.New("offset out of range")

	// ErrInvalidUTF8 indicates that edit text is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("text is not valid UTF-8")
)

// Lock and lifecycle errors
var (
	// ErrLockTimeout indicates that a read or write gate was not acquired
	// within the configured timeout. No mutation has occurred.
	ErrLockTimeout = errors.New("lock acquisition timed out")

	// ErrCorrupted indicates a poisoned buffer: a prior mutation failed
	// partway through and the buffer must be explicitly Reset or Removed.
	ErrCorrupted = errors.New("buffer poisoned by failed mutation")

	// ErrBufferGone indicates an operation through a handle whose buffer
	// has been removed from the registry.
	ErrBufferGone = errors.New("buffer removed")
)

// Subscription errors
var (
	// ErrLagged indicates that the subscription's queue overflowed and
	// events were dropped. The consumer should re-read current content
	// and version; subsequent calls deliver the retained events.
	ErrLagged = errors.New("subscription lagged, events dropped")

	// ErrSubscriptionClosed indicates that the subscription was closed,
	// either explicitly or because its buffer was removed.
	ErrSubscriptionClosed = errors.New("subscription closed")

	// ErrNoEvent indicates that no event is pending on a non-blocking
	// receive.
	ErrNoEvent = errors.New("no event pending")
)

// OffsetError reports an edit or slice whose offsets do not fit the
// buffer's current content. It wraps ErrOutOfRange, so
// errors.Is(err, ErrOutOfRange) matches.
type OffsetError struct {
	Start  int // requested start, in runes
	End    int // requested end, in runes (== Start for point offsets)
	Length int // content length at validation time, in runes
}

func (e *OffsetError) Error() string {
	if e.Start == e.End {
		return fmt.Sprintf("offset %d out of range (length %d)", e.Start, e.Length)
	}
	return fmt.Sprintf("range [%d,%d) out of range (length %d)", e.Start, e.End, e.Length)
}

func (e *OffsetError) Unwrap() error { return ErrOutOfRange }
