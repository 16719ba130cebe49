package textstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"golang.org/x/text/unicode/norm"
)

func TestCreateAndGet(t *testing.T) {
	reg := New()
	defer reg.Close()

	id, err := reg.Create("hello")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id == 0 {
		t.Error("Create returned zero id")
	}

	h, err := reg.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if h.ID() != id {
		t.Errorf("handle ID = %v, want %v", h.ID(), id)
	}

	g, err := h.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	defer g.Release()
	if g.Text() != "hello" {
		t.Errorf("Text = %q, want %q", g.Text(), "hello")
	}
	if g.Version() != 0 {
		t.Errorf("new buffer version = %d, want 0", g.Version())
	}
}

func TestCreateInvalidUTF8(t *testing.T) {
	reg := New()
	defer reg.Close()

	if _, err := reg.Create("bad \xff bytes"); !errors.Is(err, ErrInvalidUTF8) {
		t.Errorf("Create with invalid UTF-8 = %v, want ErrInvalidUTF8", err)
	}
}

func TestGetNotFound(t *testing.T) {
	reg := New()
	defer reg.Close()

	if _, err := reg.Get(BufferID(42)); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get unknown id = %v, want ErrNotFound", err)
	}
}

func TestSequentialIDs(t *testing.T) {
	reg := New()
	defer reg.Close()

	for want := uint64(1); want <= 5; want++ {
		id, err := reg.Create("")
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if uint64(id) != want {
			t.Errorf("id = %d, want %d", id, want)
		}
	}
}

func TestConcurrentCreateUniqueIDs(t *testing.T) {
	reg := New()
	defer reg.Close()

	const n = 100
	ids := make(chan BufferID, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := reg.Create("x")
			if err != nil {
				t.Errorf("Create: %v", err)
				return
			}
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[BufferID]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %v", id)
		}
		seen[id] = true
	}
	if reg.Len() != n {
		t.Errorf("Len = %d, want %d", reg.Len(), n)
	}
}

func TestRemove(t *testing.T) {
	reg := New()
	defer reg.Close()

	id, _ := reg.Create("doomed")
	h, _ := reg.Get(id)

	if err := reg.Remove(id); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := reg.Get(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Remove = %v, want ErrNotFound", err)
	}
	if err := reg.Remove(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Remove = %v, want ErrNotFound", err)
	}

	// Stale handle operations fail.
	if _, err := h.Read(context.Background()); !errors.Is(err, ErrBufferGone) {
		t.Errorf("Read through stale handle = %v, want ErrBufferGone", err)
	}
	if _, err := h.Write(context.Background()); !errors.Is(err, ErrBufferGone) {
		t.Errorf("Write through stale handle = %v, want ErrBufferGone", err)
	}
	if _, err := h.Subscribe(); !errors.Is(err, ErrBufferGone) {
		t.Errorf("Subscribe through stale handle = %v, want ErrBufferGone", err)
	}
}

func TestRemoveDuringHeldWrite(t *testing.T) {
	reg := New()
	defer reg.Close()

	id, _ := reg.Create("content")
	h, _ := reg.Get(id)

	g, err := h.Write(context.Background())
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	// Remove never waits for the in-progress edit.
	done := make(chan error, 1)
	go func() { done <- reg.Remove(id) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Remove: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Remove blocked on a held write gate")
	}

	if _, _, err := g.Apply(Insert(0, "x")); !errors.Is(err, ErrBufferGone) {
		t.Errorf("Apply after removal = %v, want ErrBufferGone", err)
	}
	g.Release()
}

func TestList(t *testing.T) {
	reg := New()
	defer reg.Close()

	if got := reg.List(); len(got) != 0 {
		t.Errorf("List on empty registry = %v, want empty", got)
	}

	var want []BufferID
	for i := 0; i < 4; i++ {
		id, _ := reg.Create(fmt.Sprintf("buf %d", i))
		want = append(want, id)
	}
	reg.Remove(want[1])
	want = append(want[:1], want[2:]...)

	got := reg.List()
	if len(got) != len(want) {
		t.Fatalf("List returned %d ids, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List[%d] = %v, want %v (ascending order)", i, got[i], want[i])
		}
	}
}

func TestRegistryClose(t *testing.T) {
	reg := New()

	id, _ := reg.Create("alive")
	h, _ := reg.Get(id)
	sub, _ := h.Subscribe()

	if err := reg.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := reg.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if _, err := reg.Create("x"); !errors.Is(err, ErrRegistryClosed) {
		t.Errorf("Create after Close = %v, want ErrRegistryClosed", err)
	}
	if _, err := reg.Get(id); !errors.Is(err, ErrRegistryClosed) {
		t.Errorf("Get after Close = %v, want ErrRegistryClosed", err)
	}
	if err := reg.Remove(id); !errors.Is(err, ErrRegistryClosed) {
		t.Errorf("Remove after Close = %v, want ErrRegistryClosed", err)
	}
	if _, err := reg.Subscribe(); !errors.Is(err, ErrRegistryClosed) {
		t.Errorf("Subscribe after Close = %v, want ErrRegistryClosed", err)
	}
	if _, err := h.Read(context.Background()); !errors.Is(err, ErrBufferGone) {
		t.Errorf("Read after Close = %v, want ErrBufferGone", err)
	}
	if _, err := sub.Next(context.Background()); !errors.Is(err, ErrSubscriptionClosed) {
		t.Errorf("Next after Close = %v, want ErrSubscriptionClosed", err)
	}
}

func TestRegistryLocksIndependent(t *testing.T) {
	reg := New()
	defer reg.Close()

	busy, _ := reg.Create("busy buffer")
	h, _ := reg.Get(busy)

	g, err := h.Write(context.Background())
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	defer g.Release()

	// Registry operations proceed while the edit is in progress.
	done := make(chan struct{})
	go func() {
		defer close(done)
		id, err := reg.Create("other")
		if err != nil {
			t.Errorf("Create: %v", err)
			return
		}
		if err := reg.Remove(id); err != nil {
			t.Errorf("Remove: %v", err)
		}
		reg.List()
		reg.Len()
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("registry operations blocked behind a buffer's write gate")
	}
}

func TestReset(t *testing.T) {
	reg := New()
	defer reg.Close()
	ctx := context.Background()

	id, _ := reg.Create("old content")
	h, _ := reg.Get(id)
	sub, _ := h.Subscribe()

	if err := reg.Reset(ctx, id); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	g, err := h.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if g.Text() != "" {
		t.Errorf("Text after Reset = %q, want empty", g.Text())
	}
	if g.Version() != 1 {
		t.Errorf("Version after Reset = %d, want 1", g.Version())
	}
	g.Release()

	ev, err := sub.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if ev.Op.Kind != OpDelete || ev.Op.Start != 0 || ev.Op.End != len("old content") {
		t.Errorf("reset event op = %v, want Delete[0,%d)", ev.Op, len("old content"))
	}
	if ev.OldText != "old content" {
		t.Errorf("reset event OldText = %q, want original content", ev.OldText)
	}
	if ev.OldVersion != 0 || ev.NewVersion != 1 {
		t.Errorf("reset event versions = %d->%d, want 0->1", ev.OldVersion, ev.NewVersion)
	}
}

func TestResetEmptyBufferIsNoOp(t *testing.T) {
	reg := New()
	defer reg.Close()
	ctx := context.Background()

	id, _ := reg.Create("")
	h, _ := reg.Get(id)
	sub, _ := h.Subscribe()

	if err := reg.Reset(ctx, id); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	g, _ := h.Read(ctx)
	if g.Version() != 0 {
		t.Errorf("Version = %d, want 0 (no content change)", g.Version())
	}
	g.Release()

	if _, err := sub.TryNext(); !errors.Is(err, ErrNoEvent) {
		t.Errorf("TryNext = %v, want ErrNoEvent", err)
	}

	if err := reg.Reset(ctx, BufferID(99)); !errors.Is(err, ErrNotFound) {
		t.Errorf("Reset unknown id = %v, want ErrNotFound", err)
	}
}

func TestStats(t *testing.T) {
	reg := New()
	defer reg.Close()
	ctx := context.Background()

	a, _ := reg.Create("one")
	b, _ := reg.Create("two")
	reg.Remove(b)

	h, _ := reg.Get(a)
	h.Subscribe()
	g, _ := h.Write(ctx)
	g.Apply(Insert(3, "!"))
	g.Release()

	st := reg.Stats()
	if st.Buffers != 1 {
		t.Errorf("Buffers = %d, want 1", st.Buffers)
	}
	if st.Created != 2 {
		t.Errorf("Created = %d, want 2", st.Created)
	}
	if st.Removed != 1 {
		t.Errorf("Removed = %d, want 1", st.Removed)
	}
	if st.Edits != 1 {
		t.Errorf("Edits = %d, want 1", st.Edits)
	}
	if st.Subscriptions != 1 {
		t.Errorf("Subscriptions = %d, want 1", st.Subscriptions)
	}
}

func TestNormalizedInsert(t *testing.T) {
	// NFD "é" (e + combining acute) normalizes to a single NFC rune.
	reg := New(WithNormalizer(norm.NFC))
	defer reg.Close()
	ctx := context.Background()

	id, err := reg.Create("caf" + "é")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	h, _ := reg.Get(id)

	g, _ := h.Read(ctx)
	if g.Len() != 4 {
		t.Errorf("Len = %d, want 4 (normalized to NFC)", g.Len())
	}
	if g.Text() != "café" {
		t.Errorf("Text = %q, want %q", g.Text(), "café")
	}
	g.Release()

	w, _ := h.Write(ctx)
	if _, _, err := w.Apply(Insert(4, "é")); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if w.Len() != 5 {
		t.Errorf("Len after insert = %d, want 5", w.Len())
	}
	w.Release()
}
