package textstore

import (
	"encoding/hex"
	"strconv"

	"golang.org/x/crypto/blake2b"

	"github.com/dshills/textstore/internal/rope"
)

// Snapshot is an immutable copy of one buffer's content at one version,
// the hand-off value for persistence and transport layers. The hash
// lets a consumer detect identical content without comparing text.
type Snapshot struct {
	BufferID    BufferID
	Version     Version
	Text        string
	Bytes       int
	Runes       int
	Lines       uint32
	ContentHash [32]byte // BLAKE2b-256 of Text
}

// HashHex returns the content hash as a lowercase hex string.
func (s *Snapshot) HashHex() string {
	return hex.EncodeToString(s.ContentHash[:])
}

// materializeSnapshot turns a rope into a Snapshot. Concurrent calls
// for the same buffer version share one materialization through the
// registry's singleflight group; a version change uses a fresh key, so
// nothing stale is ever served.
func (r *Registry) materializeSnapshot(id BufferID, ver Version, content rope.Rope) *Snapshot {
	key := strconv.FormatUint(uint64(id), 10) + ":" + strconv.FormatUint(uint64(ver), 10)
	v, _, _ := r.snapshots.Do(key, func() (any, error) {
		text := content.String()
		return &Snapshot{
			BufferID:    id,
			Version:     ver,
			Text:        text,
			Bytes:       content.ByteLen(),
			Runes:       content.Len(),
			Lines:       content.LineCount(),
			ContentHash: blake2b.Sum256([]byte(text)),
		}, nil
	})
	return v.(*Snapshot)
}
