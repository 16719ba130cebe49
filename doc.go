// Package textstore provides a concurrent, observable store of versioned
// text buffers.
//
// A Registry owns a set of text buffers. Each buffer pairs an immutable
// rope with a version counter that increases by exactly one per content
// change, so a version number identifies a content snapshot for the
// buffer's whole lifetime. Buffers are created, looked up, and removed
// through the Registry; everything else happens through per-buffer
// handles.
//
// # Architecture
//
//   - Registry: buffer identity and lifecycle, registry-wide event feed
//   - Handle: read/write access to one buffer via scoped guards
//   - EditOp: the insert/delete/replace protocol with rune offsets
//   - Subscription: bounded, non-blocking change-event delivery
//
// # Concurrency
//
// Every buffer has its own read/write gate: many concurrent readers or
// one writer. Waiters are admitted in FIFO order, so a writer is never
// starved by a stream of late-arriving readers. Acquisition honors
// context cancellation, and a registry-wide lock timeout can be set with
// WithLockTimeout; timed-out acquisitions return ErrLockTimeout and
// leave content untouched.
//
// The registry's own map is synchronized independently of buffer gates.
// Creating or removing one buffer never contends with an edit in
// progress on another.
//
// # Basic Usage
//
// Create a registry, a buffer, and apply an edit:
//
//	reg := textstore.New()
//	defer reg.Close()
//
//	id, _ := reg.Create("hello world")
//	h, _ := reg.Get(id)
//
//	g, err := h.Write(ctx)
//	if err != nil {
//	    return err
//	}
//	ver, ev, err := g.Apply(textstore.Replace(0, 5, "HI"))
//	g.Release()
//	// ver == 1, ev.Op.Kind == OpReplace, content "HI world"
//
// Read without blocking other readers:
//
//	g, err := h.Read(ctx)
//	if err != nil {
//	    return err
//	}
//	defer g.Release()
//	text := g.Text()
//	ver := g.Version()
//
// # Offsets
//
// All offsets and ranges in the public API count characters (runes),
// not bytes. Inserted text must be valid UTF-8; ErrInvalidUTF8 is
// returned otherwise. Ranges are half-open [start, end).
//
// # Change Events
//
// Subscribing to a buffer (or to the whole registry) yields change
// events from the current version forward; history is never replayed:
//
//	sub, _ := h.Subscribe()
//	defer sub.Close()
//
//	for {
//	    ev, err := sub.Next(ctx)
//	    if errors.Is(err, textstore.ErrLagged) {
//	        // events were dropped; re-read content and version
//	        continue
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    // ev.OldVersion, ev.NewVersion, ev.Op, ev.OldText
//	}
//
// Each subscription has a bounded queue. Publishing never blocks the
// writer: when a queue is full the oldest undelivered event is dropped
// and the subscription is marked lagging. The consumer sees a single
// ErrLagged from Next, after which delivery resumes with the retained
// events; it should resynchronize by re-reading current content and
// version through the Registry.
//
// # Failure and Recovery
//
// If an edit panics mid-apply the buffer is poisoned: every later
// acquisition returns ErrCorrupted until the caller explicitly calls
// Registry.Reset (empty the buffer, keep counting versions) or
// Registry.Remove. Recovery is never automatic.
//
// # Error Handling
//
// The package defines sentinel errors for every failure class:
//
//   - ErrNotFound: unknown BufferID
//   - ErrOutOfRange: edit or slice offsets outside current content
//   - ErrInvalidUTF8: edit text is not valid UTF-8
//   - ErrLockTimeout: gate not acquired within the configured timeout
//   - ErrCorrupted: buffer poisoned by a failed mutation
//   - ErrBufferGone: operation through a handle to a removed buffer
//   - ErrLagged: subscription dropped events
//   - ErrSubscriptionClosed: subscription terminated
//   - ErrRegistryClosed: registry has been shut down
package textstore
