package textstore

import (
	"log/slog"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Default configuration values.
const (
	DefaultQueueCapacity = 64
	DefaultMaxReaders    = 1 << 20
)

// Option configures a Registry during creation.
type Option func(*Registry)

// WithLogger sets the logger for the registry and everything it owns.
// The default discards all output.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// WithQueueCapacity sets the default bounded-queue size for new
// subscriptions. Individual subscriptions may override it with
// WithCapacity.
func WithQueueCapacity(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.queueCap = n
		}
	}
}

// WithLockTimeout bounds every gate acquisition. Acquisitions that do
// not complete within d return ErrLockTimeout. Zero (the default) means
// acquisitions wait until the caller's context ends.
func WithLockTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.lockTimeout = d
		}
	}
}

// WithMetrics wires a StoreMetrics implementation into the registry.
func WithMetrics(m StoreMetrics) Option {
	return func(r *Registry) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithNormalizer applies a Unicode normalization form (typically
// norm.NFC) to initial and inserted text before rune offsets are
// computed. Without it, text is stored exactly as given.
func WithNormalizer(form norm.Form) Option {
	return func(r *Registry) {
		r.norm = &form
	}
}

// WithMaxReaders caps concurrent readers per buffer. The default is
// effectively unbounded.
func WithMaxReaders(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxReaders = int64(n)
		}
	}
}

// SubscribeOption configures a single subscription.
type SubscribeOption func(*subscribeConfig)

type subscribeConfig struct {
	capacity int
}

// WithCapacity overrides the registry's default queue capacity for this
// subscription.
func WithCapacity(n int) SubscribeOption {
	return func(c *subscribeConfig) {
		if n > 0 {
			c.capacity = n
		}
	}
}
