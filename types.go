package textstore

import "fmt"

// BufferID uniquely identifies one buffer within a registry. IDs are
// issued sequentially starting at 1, are immutable once assigned, and
// are never reused, even after the buffer is removed.
type BufferID uint64

// String returns a human-readable representation of the id.
func (id BufferID) String() string {
	return fmt.Sprintf("buffer-%d", uint64(id))
}

// Version counts the content changes of one buffer. A new buffer starts
// at version 0; every successful content-changing edit increments it by
// exactly one, so a version uniquely identifies a content snapshot
// within the buffer's lifetime. Versions never decrease and never reset
// while the buffer lives.
type Version uint64
