package rope

// Chunk size constants control the granularity of text storage.
const (
	// MinChunkSize is the minimum bytes per chunk (except for the last chunk).
	MinChunkSize = 128

	// MaxChunkSize is the maximum bytes per chunk before splitting.
	MaxChunkSize = 256

	// TargetChunkSize is the preferred chunk size when building.
	TargetChunkSize = (MinChunkSize + MaxChunkSize) / 2
)

// Chunk is a bounded immutable string stored in leaf nodes.
type Chunk struct {
	data    string
	summary Summary
}

// NewChunk creates a chunk from a string, computing its summary eagerly.
func NewChunk(s string) Chunk {
	return Chunk{
		data:    s,
		summary: Compute(s),
	}
}

// String returns the chunk's text.
func (c Chunk) String() string {
	return c.data
}

// Summary returns the chunk's precomputed metrics.
func (c Chunk) Summary() Summary {
	return c.summary
}

// Len returns the rune count of the chunk.
func (c Chunk) Len() int {
	return c.summary.Runes
}

// ByteLen returns the byte length of the chunk.
func (c Chunk) ByteLen() int {
	return len(c.data)
}

// IsEmpty reports whether the chunk contains no text.
func (c Chunk) IsEmpty() bool {
	return len(c.data) == 0
}

// runeToByte converts a rune offset within the chunk to a byte offset.
// ASCII chunks convert in constant time; others scan.
func (c Chunk) runeToByte(off int) int {
	if off <= 0 {
		return 0
	}
	if off >= c.summary.Runes {
		return len(c.data)
	}
	if c.summary.Flags&FlagASCII != 0 {
		return off
	}
	n := 0
	for i := range c.data {
		if n == off {
			return i
		}
		n++
	}
	return len(c.data)
}

// Split splits the chunk at a rune offset, returning two chunks.
func (c Chunk) Split(off int) (Chunk, Chunk) {
	if off <= 0 {
		return Chunk{}, c
	}
	if off >= c.summary.Runes {
		return c, Chunk{}
	}

	b := c.runeToByte(off)
	return NewChunk(c.data[:b]), NewChunk(c.data[b:])
}

// Slice returns the text between two rune offsets within the chunk.
func (c Chunk) Slice(start, end int) string {
	if start >= end {
		return ""
	}
	return c.data[c.runeToByte(start):c.runeToByte(end)]
}

// lineToRune returns the rune offset immediately after the line-th newline.
// line must be in [1, c.summary.Lines].
func (c Chunk) lineToRune(line uint32) int {
	var seen uint32
	n := 0
	for _, r := range c.data {
		n++
		if r == '\n' {
			seen++
			if seen == line {
				return n
			}
		}
	}
	return c.summary.Runes
}

// splitIntoChunks splits a string into chunks of appropriate byte size.
// Split points always fall on UTF-8 boundaries.
func splitIntoChunks(s string) []Chunk {
	if len(s) == 0 {
		return nil
	}
	if len(s) <= MaxChunkSize {
		return []Chunk{NewChunk(s)}
	}

	var chunks []Chunk
	remaining := s

	for len(remaining) > 0 {
		if len(remaining) <= MaxChunkSize {
			// Last chunk, take it all
			chunks = append(chunks, NewChunk(remaining))
			break
		}

		splitPoint := findSplitPoint(remaining, TargetChunkSize)
		chunks = append(chunks, NewChunk(remaining[:splitPoint]))
		remaining = remaining[splitPoint:]
	}

	return chunks
}

// findSplitPoint finds a valid UTF-8 boundary near the target byte position,
// preferring a position just after a newline when one exists nearby.
func findSplitPoint(s string, target int) int {
	if target >= len(s) {
		return len(s)
	}
	if target <= 0 {
		return 0
	}

	searchStart := target - MinChunkSize/4
	if searchStart < 0 {
		searchStart = 0
	}
	searchEnd := target + MinChunkSize/4
	if searchEnd > len(s) {
		searchEnd = len(s)
	}

	for i := target; i < searchEnd; i++ {
		if s[i] == '\n' {
			return i + 1
		}
	}
	for i := target - 1; i >= searchStart; i-- {
		if s[i] == '\n' {
			return i + 1
		}
	}

	// No newline nearby; settle for any UTF-8 boundary.
	pos := target
	for pos < len(s) && !isUTF8Start(s[pos]) {
		pos++
	}
	if pos > target+4 || pos >= len(s) {
		pos = target
		for pos > 0 && !isUTF8Start(s[pos]) {
			pos--
		}
	}

	return pos
}

// isUTF8Start reports whether the byte begins a UTF-8 sequence.
// Continuation bytes match 10xxxxxx; everything else starts a rune.
func isUTF8Start(b byte) bool {
	return b&0xC0 != 0x80
}
