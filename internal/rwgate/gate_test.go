package rwgate

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestConcurrentReaders(t *testing.T) {
	g := New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := g.RLock(ctx); err != nil {
			t.Fatalf("reader %d: %v", i, err)
		}
	}
	for i := 0; i < 3; i++ {
		g.RUnlock()
	}
}

func TestWriterExcludesReaders(t *testing.T) {
	g := New()
	ctx := context.Background()

	if err := g.Lock(ctx); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if g.TryRLock() {
		t.Error("TryRLock should fail while writer holds the gate")
	}
	if g.TryLock() {
		t.Error("TryLock should fail while writer holds the gate")
	}
	g.Unlock()

	if !g.TryRLock() {
		t.Error("TryRLock should succeed after writer releases")
	}
	g.RUnlock()
}

func TestWriterExcludedByReader(t *testing.T) {
	g := New()
	ctx := context.Background()

	if err := g.RLock(ctx); err != nil {
		t.Fatalf("RLock: %v", err)
	}
	if g.TryLock() {
		t.Error("TryLock should fail while a reader holds the gate")
	}
	g.RUnlock()

	if !g.TryLock() {
		t.Error("TryLock should succeed after the reader releases")
	}
	g.Unlock()
}

func TestLockTimeout(t *testing.T) {
	g := New()
	ctx := context.Background()

	if err := g.Lock(ctx); err != nil {
		t.Fatalf("Lock: %v", err)
	}

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()

	err := g.Lock(short)
	if err == nil {
		t.Fatal("second Lock should time out")
	}
	if err != context.DeadlineExceeded {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}

	g.Unlock()
	if !g.TryLock() {
		t.Error("gate should be free after timed-out waiter gave up")
	}
	g.Unlock()
}

func TestWaitingWriterBlocksNewReaders(t *testing.T) {
	g := New()
	ctx := context.Background()

	if err := g.RLock(ctx); err != nil {
		t.Fatalf("RLock: %v", err)
	}

	writerIn := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		close(writerIn)
		if err := g.Lock(ctx); err != nil {
			t.Errorf("writer Lock: %v", err)
		}
		g.Unlock()
		close(writerDone)
	}()

	<-writerIn
	// Once the writer is queued, new readers must queue behind it.
	deadline := time.Now().Add(time.Second)
	for g.TryRLock() {
		g.RUnlock()
		if time.Now().After(deadline) {
			t.Fatal("new readers kept acquiring ahead of a waiting writer")
		}
		time.Sleep(time.Millisecond)
	}

	g.RUnlock()
	select {
	case <-writerDone:
	case <-time.After(time.Second):
		t.Fatal("writer never acquired after readers released")
	}
}

func TestWriteExclusivity(t *testing.T) {
	g := New()
	ctx := context.Background()

	var active, peak int64
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if err := g.Lock(ctx); err != nil {
					t.Errorf("Lock: %v", err)
					return
				}
				cur := atomic.AddInt64(&active, 1)
				if cur > atomic.LoadInt64(&peak) {
					atomic.StoreInt64(&peak, cur)
				}
				atomic.AddInt64(&active, -1)
				g.Unlock()
			}
		}()
	}
	wg.Wait()

	if peak != 1 {
		t.Errorf("peak concurrent writers = %d, want 1", peak)
	}
}
