// Package rope provides an immutable rope for efficient text storage,
// addressed by character (rune) offsets.
//
// A rope is a B+ tree whose leaves hold bounded text chunks and whose
// internal nodes hold aggregated metrics (rune count, byte count, line
// count). Every operation that changes text returns a new Rope; the
// original is never modified, so any Rope value is a stable snapshot that
// is safe to read concurrently.
//
// Key properties:
//   - O(log n) insert, delete, split, and slice by rune offset
//   - Structural sharing between versions (copy-on-write)
//   - Line lookups resolved by summary descent, no separate line index
//
// Basic usage:
//
//	r := rope.FromString("héllo world")
//	r = r.Insert(5, ",")   // offsets count characters, not bytes
//	r = r.Delete(0, 6)
//	text := r.String()
package rope
