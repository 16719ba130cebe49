package textstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"
	"golang.org/x/text/unicode/norm"

	"github.com/dshills/textstore/internal/notify"
	"github.com/dshills/textstore/internal/rope"
)

// Registry is the single authority over buffer identity and lifetime.
// It maps BufferIDs to buffers, issues handles, and carries the
// registry-wide change-event feed. All methods are safe for concurrent
// use.
//
// The registry's map has its own lock, independent of every buffer's
// read/write gate.
type Registry struct {
	mu      sync.RWMutex
	buffers map[BufferID]*buffer
	closed  bool

	nextID atomic.Uint64
	hub    *notify.Hub
	log    *slog.Logger

	metrics     StoreMetrics
	queueCap    int
	lockTimeout time.Duration
	maxReaders  int64
	norm        *norm.Form

	snapshots singleflight.Group

	created atomic.Uint64
	removed atomic.Uint64
	edits   atomic.Uint64
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		buffers:    make(map[BufferID]*buffer),
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics:    nopMetrics{},
		queueCap:   DefaultQueueCapacity,
		maxReaders: DefaultMaxReaders,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With(slog.String("component", "textstore"))
	r.hub = notify.NewHub(
		notify.WithName("registry"),
		notify.WithQueueCapacity(r.queueCap),
		notify.WithLogger(r.log),
	)
	return r
}

// Create allocates a new buffer holding text at version 0 and returns
// its id. The text must be valid UTF-8.
func (r *Registry) Create(text string) (BufferID, error) {
	if !utf8.ValidString(text) {
		return 0, ErrInvalidUTF8
	}
	if r.norm != nil {
		text = r.norm.String(text)
	}

	id := BufferID(r.nextID.Add(1))
	b := newBuffer(id, text, r.maxReaders,
		notify.WithName(id.String()),
		notify.WithQueueCapacity(r.queueCap),
		notify.WithLogger(r.log),
	)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return 0, ErrRegistryClosed
	}
	r.buffers[id] = b
	r.mu.Unlock()

	r.created.Add(1)
	r.metrics.BufferCreated()
	r.log.Debug("buffer created",
		slog.Uint64("id", uint64(id)),
		slog.Int("runes", b.content.Len()))
	return id, nil
}

// Get returns a handle to the buffer with the given id. The handle
// references the buffer; it never copies content.
func (r *Registry) Get(id BufferID) (*Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	b, ok := r.buffers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &Handle{reg: r, buf: b}, nil
}

// Remove detaches the buffer with the given id. Its subscribers drain
// any queued events and then see ErrSubscriptionClosed; operations
// through stale handles fail with ErrBufferGone. Remove never waits for
// an in-progress edit.
func (r *Registry) Remove(id BufferID) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRegistryClosed
	}
	b, ok := r.buffers[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	delete(r.buffers, id)
	r.mu.Unlock()

	b.markGone()
	r.removed.Add(1)
	r.metrics.BufferRemoved()
	r.log.Debug("buffer removed", slog.Uint64("id", uint64(id)))
	return nil
}

// List returns a snapshot of all buffer ids in ascending order. Buffers
// created after the call may be absent; the slice is stable once
// returned.
func (r *Registry) List() []BufferID {
	r.mu.RLock()
	ids := make([]BufferID, 0, len(r.buffers))
	for id := range r.buffers {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of live buffers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.buffers)
}

// Reset replaces the buffer's content with the empty string and clears
// any poisoning. The version keeps counting: a reset that discards
// content counts as one more change and emits one ChangeEvent. Reset is
// the recovery path for ErrCorrupted, so it acquires the write gate
// without the usual poison check.
func (r *Registry) Reset(ctx context.Context, id BufferID) error {
	r.mu.RLock()
	closed := r.closed
	b, ok := r.buffers[id]
	r.mu.RUnlock()
	if closed {
		return ErrRegistryClosed
	}
	if !ok {
		return ErrNotFound
	}

	ctx, cancel := r.lockCtx(ctx)
	if cancel != nil {
		defer cancel()
	}
	start := time.Now()
	if err := b.gate.Lock(ctx); err != nil {
		r.metrics.LockTimeout("write")
		return mapLockErr(err)
	}
	defer b.gate.Unlock()
	r.metrics.LockWait("write", time.Since(start))

	if b.gone.Load() {
		return ErrBufferGone
	}

	wasPoisoned := b.poisoned.Load()
	b.poisoned.Store(false)

	oldLen := b.content.Len()
	if oldLen == 0 {
		if wasPoisoned {
			r.log.Info("buffer reset", slog.Uint64("id", uint64(id)),
				slog.Bool("was_poisoned", true))
		}
		return nil
	}

	oldText := b.content.String()
	oldVersion := b.version
	b.content = rope.New()
	b.version++

	ev := ChangeEvent{
		BufferID:   id,
		OldVersion: oldVersion,
		NewVersion: b.version,
		Op:         Delete(0, oldLen),
		OldText:    oldText,
	}
	r.publish(b, ev)
	r.edits.Add(1)
	r.metrics.EditApplied("reset", time.Since(start))
	r.log.Info("buffer reset", slog.Uint64("id", uint64(id)),
		slog.Uint64("version", uint64(b.version)),
		slog.Bool("was_poisoned", wasPoisoned))
	return nil
}

// Snapshot acquires a read guard on the buffer and materializes a
// content snapshot. Concurrent snapshot requests for the same buffer
// version share one materialization.
func (r *Registry) Snapshot(ctx context.Context, id BufferID) (*Snapshot, error) {
	h, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	return h.Snapshot(ctx)
}

// Subscribe returns a subscription receiving every buffer's change
// events from now on. Events for one buffer arrive in mutation order;
// no order is guaranteed across buffers.
func (r *Registry) Subscribe(opts ...SubscribeOption) (*Subscription, error) {
	sub, err := r.subscribeHub(r.hub, opts)
	if errors.Is(err, notify.ErrHubClosed) {
		return nil, ErrRegistryClosed
	}
	return sub, err
}

// subscribeHub wires a notify subscription into the public Subscription
// type.
func (r *Registry) subscribeHub(h *notify.Hub, opts []SubscribeOption) (*Subscription, error) {
	cfg := subscribeConfig{capacity: r.queueCap}
	for _, opt := range opts {
		opt(&cfg)
	}
	inner, err := h.Subscribe(notify.WithCapacity(cfg.capacity))
	if err != nil {
		return nil, err
	}
	return &Subscription{inner: inner}, nil
}

// publish fans one event out to the buffer's subscribers and the
// registry-wide feed. Called with the buffer's write gate held so every
// subscription sees events in mutation order.
func (r *Registry) publish(b *buffer, ev ChangeEvent) {
	enq, dropped := b.hub.Publish(ev)
	e2, d2 := r.hub.Publish(ev)
	r.metrics.EventsPublished(enq+e2, dropped+d2)
}

// lockCtx applies the registry's lock timeout to ctx, if one is set.
func (r *Registry) lockCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.lockTimeout <= 0 {
		return ctx, nil
	}
	return context.WithTimeout(ctx, r.lockTimeout)
}

// mapLockErr converts a gate acquisition failure into the public error:
// a deadline becomes ErrLockTimeout, a caller cancellation passes
// through.
func mapLockErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrLockTimeout
	}
	return err
}

// RegistryStats is a point-in-time snapshot of registry activity.
type RegistryStats struct {
	Buffers         int
	Created         uint64
	Removed         uint64
	Edits           uint64
	EventsPublished uint64
	EventsDropped   uint64
	Subscriptions   int
}

// Stats returns current counters. Event counts aggregate the
// registry-wide feed and every buffer's own feed.
func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	bufs := make([]*buffer, 0, len(r.buffers))
	for _, b := range r.buffers {
		bufs = append(bufs, b)
	}
	r.mu.RUnlock()

	st := RegistryStats{
		Buffers: len(bufs),
		Created: r.created.Load(),
		Removed: r.removed.Load(),
		Edits:   r.edits.Load(),
	}
	hs := r.hub.Stats()
	st.EventsPublished = hs.Published
	st.EventsDropped = hs.Dropped
	st.Subscriptions = hs.Active
	for _, b := range bufs {
		bs := b.hub.Stats()
		st.EventsDropped += bs.Dropped
		st.Subscriptions += bs.Active
	}
	return st
}

// Close tears the registry down: every buffer is detached as if
// removed, all subscriptions terminate after draining, and subsequent
// registry calls fail with ErrRegistryClosed. Close is idempotent.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	bufs := make([]*buffer, 0, len(r.buffers))
	for _, b := range r.buffers {
		bufs = append(bufs, b)
	}
	r.buffers = make(map[BufferID]*buffer)
	r.mu.Unlock()

	for _, b := range bufs {
		b.markGone()
	}
	r.hub.CloseAll()
	r.log.Debug("registry closed", slog.Int("buffers", len(bufs)))
	return nil
}
