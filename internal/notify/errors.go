package notify

import "errors"

// Sentinel errors for the notify package.
var (
	// ErrLagged is returned once by Next after the subscription dropped
	// events. Delivery resumes with the next retained envelope.
	ErrLagged = errors.New("subscription lagged, events dropped")

	// ErrClosed is returned by Next after the subscription is closed and
	// its queue is fully drained.
	ErrClosed = errors.New("subscription closed")

	// ErrNoPending is returned by TryNext when no envelope is queued.
	ErrNoPending = errors.New("no pending events")

	// ErrHubClosed is returned when subscribing to a closed hub.
	ErrHubClosed = errors.New("hub closed")
)
