package textstore

import "time"

// StoreMetrics receives operational measurements from a Registry.
// Implementations must be safe for concurrent use and must not block;
// the edit path calls these inside its critical section.
//
// The adapters/prometheus package provides a ready-made implementation.
type StoreMetrics interface {
	// BufferCreated and BufferRemoved track buffer lifecycle.
	BufferCreated()
	BufferRemoved()

	// EditApplied records a successful content change and how long the
	// apply took. Kind is "insert", "delete", "replace", or "reset".
	EditApplied(kind string, dur time.Duration)

	// EditRejected records a validation failure.
	EditRejected(kind string)

	// LockWait records a successful gate acquisition and how long the
	// caller waited. Mode is "read" or "write".
	LockWait(mode string, dur time.Duration)

	// LockTimeout records an acquisition that gave up.
	LockTimeout(mode string)

	// EventsPublished records one fan-out: how many subscription queues
	// accepted the event and how many old events were dropped to make
	// room.
	EventsPublished(enqueued, dropped int)
}

// nopMetrics discards all measurements. It is the default when no
// WithMetrics option is given.
type nopMetrics struct{}

func (nopMetrics) BufferCreated() {}
func (nopMetrics) BufferRemoved() {}
func (nopMetrics) EditApplied(string, time.Duration) {}
func (nopMetrics) EditRejected(string) {}
func (nopMetrics) LockWait(string, time.Duration) {}
func (nopMetrics) LockTimeout(string) {}
func (nopMetrics) EventsPublished(int, int) {}

// NopMetrics returns a StoreMetrics that discards everything.
func NopMetrics() StoreMetrics { return nopMetrics{} }
