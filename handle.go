package textstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/dshills/textstore/internal/notify"
	"github.com/dshills/textstore/internal/rope"
)

// Handle references one buffer in a registry. Handles are cheap, may be
// copied freely, and stay valid until their buffer is removed; after
// that every operation fails with ErrBufferGone. All methods are safe
// for concurrent use.
type Handle struct {
	reg *Registry
	buf *buffer
}

// ID returns the buffer's id.
func (h *Handle) ID() BufferID { return h.buf.id }

// Read acquires the shared side of the buffer's gate and returns a
// guard over a consistent content/version pair. Many readers may hold
// guards at once; a writer excludes them all. Release the guard on
// every exit path:
//
//	g, err := h.Read(ctx)
//	if err != nil {
//	    return err
//	}
//	defer g.Release()
func (h *Handle) Read(ctx context.Context) (*ReadGuard, error) {
	b := h.buf
	if err := h.checkState(b); err != nil {
		return nil, err
	}

	ctx, cancel := h.reg.lockCtx(ctx)
	if cancel != nil {
		defer cancel()
	}
	start := time.Now()
	if err := b.gate.RLock(ctx); err != nil {
		h.reg.metrics.LockTimeout("read")
		return nil, mapLockErr(err)
	}
	h.reg.metrics.LockWait("read", time.Since(start))

	if err := h.checkState(b); err != nil {
		b.gate.RUnlock()
		return nil, err
	}
	return &ReadGuard{
		reg:     h.reg,
		buf:     b,
		content: b.content,
		version: b.version,
	}, nil
}

// Write acquires the exclusive side of the buffer's gate. Exactly one
// writer holds it at a time, and no reader overlaps it. Waiters are
// admitted in arrival order, so writers are not starved by a stream of
// new readers.
func (h *Handle) Write(ctx context.Context) (*WriteGuard, error) {
	b := h.buf
	if err := h.checkState(b); err != nil {
		return nil, err
	}

	ctx, cancel := h.reg.lockCtx(ctx)
	if cancel != nil {
		defer cancel()
	}
	start := time.Now()
	if err := b.gate.Lock(ctx); err != nil {
		h.reg.metrics.LockTimeout("write")
		return nil, mapLockErr(err)
	}
	h.reg.metrics.LockWait("write", time.Since(start))

	if err := h.checkState(b); err != nil {
		b.gate.Unlock()
		return nil, err
	}
	return &WriteGuard{reg: h.reg, buf: b}, nil
}

// checkState rejects removed and poisoned buffers. A removed buffer
// wins over a poisoned one.
func (h *Handle) checkState(b *buffer) error {
	if b.gone.Load() {
		return ErrBufferGone
	}
	if b.poisoned.Load() {
		return ErrCorrupted
	}
	return nil
}

// Subscribe returns a subscription to this buffer's change events, from
// the current version forward. History is never replayed.
func (h *Handle) Subscribe(opts ...SubscribeOption) (*Subscription, error) {
	sub, err := h.reg.subscribeHub(h.buf.hub, opts)
	if errors.Is(err, notify.ErrHubClosed) {
		return nil, ErrBufferGone
	}
	return sub, err
}

// Snapshot takes a read guard and materializes the buffer's current
// content. Concurrent calls for the same version share one
// materialization.
func (h *Handle) Snapshot(ctx context.Context) (*Snapshot, error) {
	g, err := h.Read(ctx)
	if err != nil {
		return nil, err
	}
	defer g.Release()
	return g.Snapshot(), nil
}

// ReadGuard is a shared guard over one buffer. It captures the
// content/version pair that was current at acquisition; accessors read
// that capture, so they stay consistent for the guard's whole lifetime.
type ReadGuard struct {
	reg      *Registry
	buf      *buffer
	content  rope.Rope
	version  Version
	released atomic.Bool
}

// Release gives the gate back. Idempotent.
func (g *ReadGuard) Release() {
	if g.released.CompareAndSwap(false, true) {
		g.buf.gate.RUnlock()
	}
}

// Text returns the full content as a string, copied by value.
func (g *ReadGuard) Text() string { return g.content.String() }

// Version returns the version the content corresponds to.
func (g *ReadGuard) Version() Version { return g.version }

// Len returns the content length in runes.
func (g *ReadGuard) Len() int { return g.content.Len() }

// ByteLen returns the content length in bytes.
func (g *ReadGuard) ByteLen() int { return g.content.ByteLen() }

// LineCount returns the number of lines. Empty content counts as one
// line.
func (g *ReadGuard) LineCount() uint32 { return g.content.LineCount() }

// Slice returns the text of the half-open rune range [start, end).
func (g *ReadGuard) Slice(start, end int) (string, error) {
	return sliceRope(g.content, start, end)
}

// Line returns the text of the given zero-based line, without its
// trailing newline.
func (g *ReadGuard) Line(line uint32) (string, error) {
	return lineFromRope(g.content, line)
}

// Snapshot materializes the guard's content into a Snapshot value.
func (g *ReadGuard) Snapshot() *Snapshot {
	return g.reg.materializeSnapshot(g.buf.id, g.version, g.content)
}

// WriteGuard is the exclusive guard over one buffer. Only its holder
// may mutate content, and no reader observes the buffer while it is
// held. Read accessors reflect mutations applied through the guard so
// far.
type WriteGuard struct {
	reg      *Registry
	buf      *buffer
	released atomic.Bool
}

// Release gives the gate back. Idempotent.
func (g *WriteGuard) Release() {
	if g.released.CompareAndSwap(false, true) {
		g.buf.gate.Unlock()
	}
}

// Apply validates op against the current content and, if it changes
// anything, applies it, increments the version by one, and fans out
// exactly one ChangeEvent. The new version and the event are returned
// synchronously; subscribers receive the event asynchronously.
//
// Edits that cannot change content (empty insert, empty delete, replace
// of a range by identical text) leave the version untouched, emit
// nothing, and return the current version with a zero ChangeEvent.
//
// Offsets are validated against the content as it is now, not as the
// caller last saw it: ErrOutOfRange (as *OffsetError) is returned for
// stale offsets, and nothing is modified on any error path.
func (g *WriteGuard) Apply(op EditOp) (Version, ChangeEvent, error) {
	if g.released.Load() {
		panic("textstore: Apply on released WriteGuard")
	}
	b := g.buf
	if b.gone.Load() {
		return b.version, ChangeEvent{}, ErrBufferGone
	}

	start := time.Now()
	reg := g.reg

	if op.Text != "" {
		if !utf8.ValidString(op.Text) {
			reg.metrics.EditRejected(op.Kind.String())
			return b.version, ChangeEvent{}, ErrInvalidUTF8
		}
		if reg.norm != nil {
			op.Text = reg.norm.String(op.Text)
		}
	}

	if err := op.validate(b.content.Len()); err != nil {
		reg.metrics.EditRejected(op.Kind.String())
		return b.version, ChangeEvent{}, err
	}
	if op.IsNoOp() {
		return b.version, ChangeEvent{}, nil
	}

	ver, ev, err := g.commit(op)
	if err != nil {
		return ver, ev, err
	}
	if ev.NewVersion == 0 {
		// Content came out unchanged (replace by identical text).
		return ver, ev, nil
	}

	reg.edits.Add(1)
	reg.metrics.EditApplied(op.Kind.String(), time.Since(start))
	return ver, ev, nil
}

// commit performs the mutation under a panic barrier. A panic inside
// the rope poisons the buffer and surfaces as ErrCorrupted; content
// keeps its last consistent value because the new rope is assigned only
// after it is fully built.
func (g *WriteGuard) commit(op EditOp) (ver Version, ev ChangeEvent, err error) {
	b := g.buf
	defer func() {
		if r := recover(); r != nil {
			b.poison()
			g.reg.log.Error("edit panicked, buffer poisoned",
				slog.Uint64("id", uint64(b.id)),
				slog.String("op", op.Kind.String()),
				slog.Any("panic", r))
			ver, ev, err = b.version, ChangeEvent{}, fmt.Errorf("%w: %v", ErrCorrupted, r)
		}
	}()

	var oldText string
	var next rope.Rope
	switch op.Kind {
	case OpInsert:
		next = b.content.Insert(op.Start, op.Text)
	case OpDelete:
		oldText = b.content.Slice(op.Start, op.End)
		next = b.content.Delete(op.Start, op.End)
	case OpReplace:
		oldText = b.content.Slice(op.Start, op.End)
		if oldText == op.Text {
			return b.version, ChangeEvent{}, nil
		}
		next = b.content.Replace(op.Start, op.End, op.Text)
	default:
		return b.version, ChangeEvent{}, fmt.Errorf("unknown edit kind %d", op.Kind)
	}

	oldVersion := b.version
	b.content = next
	b.version++

	ev = ChangeEvent{
		BufferID:   b.id,
		OldVersion: oldVersion,
		NewVersion: b.version,
		Op:         op,
		OldText:    oldText,
	}
	g.reg.publish(b, ev)
	return b.version, ev, nil
}

// Text returns the current content.
func (g *WriteGuard) Text() string { return g.buf.content.String() }

// Version returns the current version.
func (g *WriteGuard) Version() Version { return g.buf.version }

// Len returns the current content length in runes.
func (g *WriteGuard) Len() int { return g.buf.content.Len() }

// ByteLen returns the current content length in bytes.
func (g *WriteGuard) ByteLen() int { return g.buf.content.ByteLen() }

// LineCount returns the current number of lines.
func (g *WriteGuard) LineCount() uint32 { return g.buf.content.LineCount() }

// Slice returns the text of the half-open rune range [start, end).
func (g *WriteGuard) Slice(start, end int) (string, error) {
	return sliceRope(g.buf.content, start, end)
}

// Line returns the text of the given zero-based line.
func (g *WriteGuard) Line(line uint32) (string, error) {
	return lineFromRope(g.buf.content, line)
}

// Snapshot materializes the current content into a Snapshot value.
func (g *WriteGuard) Snapshot() *Snapshot {
	return g.reg.materializeSnapshot(g.buf.id, g.buf.version, g.buf.content)
}

func sliceRope(r rope.Rope, start, end int) (string, error) {
	if start < 0 || start > end || end > r.Len() {
		return "", &OffsetError{Start: start, End: end, Length: r.Len()}
	}
	return r.Slice(start, end), nil
}

func lineFromRope(r rope.Rope, line uint32) (string, error) {
	if count := r.LineCount(); line >= count {
		return "", fmt.Errorf("line %d out of range (%d lines): %w",
			line, count, ErrOutOfRange)
	}
	return r.LineText(line), nil
}
