package notify

import (
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Envelope wraps a published payload with delivery metadata.
// Envelopes are copied by value to each subscription queue; subscribers
// never share a mutable event object.
type Envelope struct {
	// ID uniquely identifies this publish across the process.
	ID string

	// Seq is the hub-local publish sequence, starting at 1.
	Seq uint64

	// Time is when the envelope was published.
	Time time.Time

	// Payload is the published event value.
	Payload any
}

// newEnvelope stamps a payload with identity and ordering metadata.
func newEnvelope(seq uint64, payload any) Envelope {
	return Envelope{
		ID:      gonanoid.Must(12),
		Seq:     seq,
		Time:    time.Now(),
		Payload: payload,
	}
}
