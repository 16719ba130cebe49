package notify

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultQueueCapacity is the per-subscription queue bound used when no
// capacity option is given.
const DefaultQueueCapacity = 64

// Hub fans envelopes out to subscriptions.
// Publishing never blocks on consumers; each subscription absorbs its own
// backlog in a bounded queue with drop-oldest overflow.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]*Subscription
	closed bool

	name     string
	queueCap int
	log      *slog.Logger

	seq             atomic.Uint64
	eventsPublished atomic.Uint64
	eventsEnqueued  atomic.Uint64
	eventsDropped   atomic.Uint64
	subsPruned      atomic.Uint64
}

// Option configures a Hub.
type Option func(*Hub)

// WithName sets a name used in log records.
func WithName(name string) Option {
	return func(h *Hub) {
		h.name = name
	}
}

// WithQueueCapacity sets the default per-subscription queue bound.
func WithQueueCapacity(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queueCap = n
		}
	}
}

// WithLogger sets the hub logger.
func WithLogger(log *slog.Logger) Option {
	return func(h *Hub) {
		if log != nil {
			h.log = log
		}
	}
}

// SubscriptionOption configures a single subscription.
type SubscriptionOption func(*subConfig)

type subConfig struct {
	capacity int
}

// WithCapacity overrides the queue bound for one subscription.
func WithCapacity(n int) SubscriptionOption {
	return func(c *subConfig) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// NewHub creates a hub with the given options.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		subs:     make(map[string]*Subscription),
		queueCap: DefaultQueueCapacity,
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = h.log.With(slog.String("component", "notify"), slog.String("hub", h.name))
	return h
}

// Subscribe creates a subscription receiving envelopes published from now
// on. It never replays history.
func (h *Hub) Subscribe(opts ...SubscriptionOption) (*Subscription, error) {
	cfg := subConfig{capacity: h.queueCap}
	for _, opt := range opts {
		opt(&cfg)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}

	sub := newSubscription(cfg.capacity)
	h.subs[sub.id] = sub
	h.log.Debug("subscription created",
		slog.String("subscription", sub.id),
		slog.Int("capacity", sub.cap))
	return sub, nil
}

// Publish fans a payload out to every open subscription and returns the
// number of queues it reached and the number of envelopes dropped to make
// room. It never blocks on consumers. Closed subscriptions found along the
// way are pruned.
func (h *Hub) Publish(payload any) (enqueued, dropped int) {
	env := newEnvelope(h.seq.Add(1), payload)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return 0, 0
	}

	var pruned []string
	for id, sub := range h.subs {
		before := sub.dropped.Load()
		ok, open := sub.push(env)
		if !open {
			pruned = append(pruned, id)
			continue
		}
		if ok {
			enqueued++
		}
		dropped += int(sub.dropped.Load() - before)
	}
	for _, id := range pruned {
		delete(h.subs, id)
		h.subsPruned.Add(1)
	}
	h.mu.Unlock()

	h.eventsPublished.Add(1)
	h.eventsEnqueued.Add(uint64(enqueued))
	if dropped > 0 {
		h.eventsDropped.Add(uint64(dropped))
		h.log.Debug("subscriber queues overflowed",
			slog.Uint64("seq", env.Seq),
			slog.Int("dropped", dropped))
	}
	if len(pruned) > 0 {
		h.log.Debug("pruned closed subscriptions", slog.Int("count", len(pruned)))
	}
	return enqueued, dropped
}

// SubscriberCount returns the number of registered subscriptions,
// including closed ones not yet pruned.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// CloseAll terminally closes every subscription and the hub itself.
// Queued envelopes remain readable; after draining, consumers see
// ErrClosed. Further Subscribe calls fail with ErrHubClosed.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true

	for id, sub := range h.subs {
		sub.closeTerminal()
		delete(h.subs, id)
	}
	h.log.Debug("hub closed")
}

// IsClosed reports whether CloseAll has run.
func (h *Hub) IsClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Stats is a point-in-time snapshot of hub counters.
type Stats struct {
	// Published is the number of Publish calls that fanned out.
	Published uint64

	// Enqueued is the total envelopes placed on subscription queues.
	Enqueued uint64

	// Dropped is the total envelopes discarded due to full queues.
	Dropped uint64

	// Pruned is the number of closed subscriptions removed at publish.
	Pruned uint64

	// Active is the current subscription count.
	Active int
}

// Stats returns a snapshot of hub counters.
func (h *Hub) Stats() Stats {
	return Stats{
		Published: h.eventsPublished.Load(),
		Enqueued:  h.eventsEnqueued.Load(),
		Dropped:   h.eventsDropped.Load(),
		Pruned:    h.subsPruned.Load(),
		Active:    h.SubscriberCount(),
	}
}
