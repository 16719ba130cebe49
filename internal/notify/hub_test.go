package notify

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSubscribeAndReceive(t *testing.T) {
	h := NewHub(WithName("test"))
	sub, err := h.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	h.Publish("hello")

	env, err := sub.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if env.Payload != "hello" {
		t.Errorf("payload = %v, want hello", env.Payload)
	}
	if env.ID == "" {
		t.Error("envelope ID should not be empty")
	}
	if env.Seq != 1 {
		t.Errorf("seq = %d, want 1", env.Seq)
	}
	if env.Time.IsZero() {
		t.Error("envelope time should be set")
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	h := NewHub(WithQueueCapacity(1))
	if _, err := h.Subscribe(); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			h.Publish(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on an unconsumed subscription")
	}
}

func TestDropOldestAndLagMarker(t *testing.T) {
	h := NewHub()
	sub, err := h.Subscribe(WithCapacity(2))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	h.Publish(1)
	h.Publish(2)
	h.Publish(3) // overflows: event 1 is dropped

	if !sub.Lagging() {
		t.Error("Lagging() should be true after overflow")
	}
	if sub.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", sub.Dropped())
	}

	ctx := context.Background()

	_, err = sub.Next(ctx)
	if !errors.Is(err, ErrLagged) {
		t.Fatalf("first Next after overflow = %v, want ErrLagged", err)
	}
	if sub.Lagging() {
		t.Error("Lagging() should clear after the marker is consumed")
	}

	env, err := sub.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if env.Payload != 2 {
		t.Errorf("payload = %v, want 2 (oldest retained)", env.Payload)
	}

	env, err = sub.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if env.Payload != 3 {
		t.Errorf("payload = %v, want 3", env.Payload)
	}
}

func TestNewSubscriberSeesNoHistory(t *testing.T) {
	h := NewHub()
	h.Publish("before-1")
	h.Publish("before-2")

	sub, err := h.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	h.Publish("after")

	env, err := sub.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if env.Payload != "after" {
		t.Errorf("payload = %v, want only post-subscribe events", env.Payload)
	}
	if _, err := sub.TryNext(); !errors.Is(err, ErrNoPending) {
		t.Errorf("TryNext = %v, want ErrNoPending", err)
	}
}

func TestCloseDiscardsQueued(t *testing.T) {
	h := NewHub()
	sub, err := h.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	h.Publish(1)
	h.Publish(2)
	sub.Close()

	if _, err := sub.Next(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Next after Close = %v, want ErrClosed (queued events discarded)", err)
	}

	sub.Close() // idempotent
}

func TestTerminalCloseDrainsThenCloses(t *testing.T) {
	h := NewHub()
	sub, err := h.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	h.Publish("a")
	h.Publish("b")
	h.CloseAll()

	ctx := context.Background()
	for _, want := range []string{"a", "b"} {
		env, err := sub.Next(ctx)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if env.Payload != want {
			t.Errorf("payload = %v, want %v", env.Payload, want)
		}
	}

	if _, err := sub.Next(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Next after drain = %v, want ErrClosed", err)
	}
}

func TestClosedSubscriptionPrunedOnPublish(t *testing.T) {
	h := NewHub()
	sub, err := h.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	keep, err := h.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	sub.Close()
	if h.SubscriberCount() != 2 {
		t.Errorf("count before publish = %d, want 2 (pruning is lazy)", h.SubscriberCount())
	}

	h.Publish("x")
	if h.SubscriberCount() != 1 {
		t.Errorf("count after publish = %d, want 1", h.SubscriberCount())
	}

	env, err := keep.Next(context.Background())
	if err != nil || env.Payload != "x" {
		t.Errorf("surviving subscription should still receive, got %v %v", env.Payload, err)
	}
}

func TestSubscribeAfterCloseAll(t *testing.T) {
	h := NewHub()
	h.CloseAll()
	if _, err := h.Subscribe(); !errors.Is(err, ErrHubClosed) {
		t.Errorf("Subscribe on closed hub = %v, want ErrHubClosed", err)
	}
	h.CloseAll() // idempotent
}

func TestNextHonorsContext(t *testing.T) {
	h := NewHub()
	sub, err := h.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = sub.Next(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Next = %v, want context.DeadlineExceeded", err)
	}
}

func TestPerSubscriptionOrdering(t *testing.T) {
	h := NewHub()
	sub, err := h.Subscribe(WithCapacity(1000))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	const n = 500
	for i := 0; i < n; i++ {
		h.Publish(i)
	}

	ctx := context.Background()
	for i := 0; i < n; i++ {
		env, err := sub.Next(ctx)
		if err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}
		if env.Payload != i {
			t.Fatalf("payload = %v, want %d (order violated)", env.Payload, i)
		}
		if env.Seq != uint64(i+1) {
			t.Fatalf("seq = %d, want %d", env.Seq, i+1)
		}
	}
}

func TestIndependentQueues(t *testing.T) {
	h := NewHub()
	slow, err := h.Subscribe(WithCapacity(1))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	fast, err := h.Subscribe(WithCapacity(100))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	for i := 0; i < 10; i++ {
		h.Publish(i)
	}

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		env, err := fast.Next(ctx)
		if err != nil {
			t.Fatalf("fast Next: %v", err)
		}
		if env.Payload != i {
			t.Errorf("fast subscriber missed events: got %v, want %d", env.Payload, i)
		}
	}

	if !slow.Lagging() {
		t.Error("slow subscriber should be lagging")
	}
	if slow.Dropped() != 9 {
		t.Errorf("slow Dropped() = %d, want 9", slow.Dropped())
	}
}

func TestHubStats(t *testing.T) {
	h := NewHub()
	sub, err := h.Subscribe(WithCapacity(1))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	h.Publish(1)
	h.Publish(2)

	stats := h.Stats()
	if stats.Published != 2 {
		t.Errorf("Published = %d, want 2", stats.Published)
	}
	if stats.Enqueued != 2 {
		t.Errorf("Enqueued = %d, want 2", stats.Enqueued)
	}
	if stats.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", stats.Dropped)
	}
	if stats.Active != 1 {
		t.Errorf("Active = %d, want 1", stats.Active)
	}

	sub.Close()
	h.Publish(3)
	if got := h.Stats().Pruned; got != 1 {
		t.Errorf("Pruned = %d, want 1", got)
	}
}

func TestPublishAfterCloseAll(t *testing.T) {
	h := NewHub()
	h.CloseAll()
	enq, dropped := h.Publish("x")
	if enq != 0 || dropped != 0 {
		t.Errorf("Publish on closed hub = (%d, %d), want (0, 0)", enq, dropped)
	}
}
