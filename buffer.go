package textstore

import (
	"sync/atomic"

	"github.com/dshills/textstore/internal/notify"
	"github.com/dshills/textstore/internal/rope"
	"github.com/dshills/textstore/internal/rwgate"
)

// buffer is one versioned text entity. Content and version are guarded
// by the gate; poisoned and gone are checked on paths that may run
// without it.
type buffer struct {
	id   BufferID
	gate *rwgate.Gate
	hub  *notify.Hub

	poisoned atomic.Bool
	gone     atomic.Bool

	// guarded by gate
	content rope.Rope
	version Version
}

func newBuffer(id BufferID, text string, maxReaders int64, hubOpts ...notify.Option) *buffer {
	return &buffer{
		id:      id,
		gate:    rwgate.NewWithCapacity(maxReaders),
		hub:     notify.NewHub(hubOpts...),
		content: rope.FromString(text),
	}
}

// markGone detaches the buffer: later gate acquisitions and in-flight
// applies fail with ErrBufferGone, and buffer subscriptions terminate
// after draining.
func (b *buffer) markGone() {
	b.gone.Store(true)
	b.hub.CloseAll()
}

// poison quarantines the buffer after a failed mutation. Only an
// explicit Registry.Reset or Registry.Remove clears it.
func (b *buffer) poison() {
	b.poisoned.Store(true)
}
