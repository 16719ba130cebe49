// Package rwgate provides a context-aware read/write gate with fair
// admission.
//
// The gate is built on a weighted semaphore: readers acquire one unit,
// writers acquire the full weight. The semaphore admits waiters in FIFO
// order and a waiting writer's large request blocks readers that arrive
// after it, so a continuous stream of readers cannot starve a writer.
// Acquisition honors context cancellation and deadlines, which plain
// sync.RWMutex cannot offer.
package rwgate

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// DefaultMaxReaders is the reader capacity used by New.
// It is effectively unlimited for any realistic workload.
const DefaultMaxReaders = 1 << 20

// Gate is a single-writer, multi-reader lock.
// The zero value is not usable; construct with New or NewWithCapacity.
type Gate struct {
	sem *semaphore.Weighted
	max int64
}

// New creates a gate with DefaultMaxReaders reader capacity.
func New() *Gate {
	return NewWithCapacity(DefaultMaxReaders)
}

// NewWithCapacity creates a gate admitting at most maxReaders concurrent
// readers. maxReaders must be at least 1.
func NewWithCapacity(maxReaders int64) *Gate {
	if maxReaders < 1 {
		maxReaders = 1
	}
	return &Gate{
		sem: semaphore.NewWeighted(maxReaders),
		max: maxReaders,
	}
}

// RLock acquires shared access, blocking while a writer holds the gate or
// is queued ahead. Returns ctx.Err() if the context ends first.
func (g *Gate) RLock(ctx context.Context) error {
	return g.sem.Acquire(ctx, 1)
}

// RUnlock releases shared access.
func (g *Gate) RUnlock() {
	g.sem.Release(1)
}

// Lock acquires exclusive access, blocking until all readers and writers
// have released. Returns ctx.Err() if the context ends first; in that case
// the gate is untouched.
func (g *Gate) Lock(ctx context.Context) error {
	return g.sem.Acquire(ctx, g.max)
}

// Unlock releases exclusive access.
func (g *Gate) Unlock() {
	g.sem.Release(g.max)
}

// TryRLock attempts shared access without blocking.
// It fails when a writer holds the gate or any waiter is queued.
func (g *Gate) TryRLock() bool {
	return g.sem.TryAcquire(1)
}

// TryLock attempts exclusive access without blocking.
func (g *Gate) TryLock() bool {
	return g.sem.TryAcquire(g.max)
}
