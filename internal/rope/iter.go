package rope

import "unicode/utf8"

// chunkIterFrame is a position in the tree traversal for chunk iteration.
type chunkIterFrame struct {
	node     *Node
	childIdx int // Next child index to visit (for internal nodes)
	chunkIdx int // Next chunk index to visit (for leaf nodes)
	offset   int // Absolute rune offset at start of this node
}

// ChunkIterator iterates over chunks in a rope.
type ChunkIterator struct {
	rope       Rope
	stack      []chunkIterFrame
	started    bool
	chunk      Chunk
	chunkStart int
}

// Chunks returns an iterator over all chunks in the rope.
func (r Rope) Chunks() *ChunkIterator {
	return &ChunkIterator{
		rope:  r,
		stack: make([]chunkIterFrame, 0, 16),
	}
}

// Next advances to the next chunk.
// Returns true if there is a chunk, false when iteration is complete.
func (it *ChunkIterator) Next() bool {
	if !it.started {
		it.started = true
		if it.rope.root == nil {
			return false
		}
		it.stack = append(it.stack, chunkIterFrame{node: it.rope.root})
		return it.findNextChunk()
	}

	if len(it.stack) > 0 {
		frame := &it.stack[len(it.stack)-1]
		if frame.node.IsLeaf() {
			frame.chunkIdx++
		}
	}
	return it.findNextChunk()
}

// findNextChunk finds the next available chunk.
func (it *ChunkIterator) findNextChunk() bool {
	for len(it.stack) > 0 {
		frame := &it.stack[len(it.stack)-1]
		node := frame.node

		if node.IsLeaf() {
			if frame.chunkIdx < len(node.chunks) {
				chunkOffset := frame.offset
				for i := 0; i < frame.chunkIdx; i++ {
					chunkOffset += node.chunks[i].Len()
				}
				it.chunk = node.chunks[frame.chunkIdx]
				it.chunkStart = chunkOffset
				return true
			}
			it.stack = it.stack[:len(it.stack)-1]
			if len(it.stack) > 0 {
				it.stack[len(it.stack)-1].childIdx++
			}
			continue
		}

		if frame.childIdx < len(node.children) {
			childOffset := frame.offset
			for i := 0; i < frame.childIdx; i++ {
				childOffset += node.childSummaries[i].Runes
			}

			it.stack = append(it.stack, chunkIterFrame{
				node:   node.children[frame.childIdx],
				offset: childOffset,
			})
			continue
		}

		it.stack = it.stack[:len(it.stack)-1]
		if len(it.stack) > 0 {
			it.stack[len(it.stack)-1].childIdx++
		}
	}

	return false
}

// Chunk returns the current chunk.
func (it *ChunkIterator) Chunk() Chunk {
	return it.chunk
}

// Offset returns the rune offset of the start of the current chunk.
func (it *ChunkIterator) Offset() int {
	return it.chunkStart
}

// RuneIterator iterates over runes in a rope.
type RuneIterator struct {
	chunks  *ChunkIterator
	data    string
	byteIdx int
	offset  int
	current rune
	size    int
}

// Runes returns an iterator over all runes in the rope.
func (r Rope) Runes() *RuneIterator {
	return &RuneIterator{
		chunks: r.Chunks(),
		offset: -1,
	}
}

// Next advances to the next rune.
// Returns true if there is a rune, false when iteration is complete.
func (it *RuneIterator) Next() bool {
	for it.byteIdx >= len(it.data) {
		if !it.chunks.Next() {
			return false
		}
		it.data = it.chunks.Chunk().String()
		it.byteIdx = 0
	}

	it.current, it.size = utf8.DecodeRuneInString(it.data[it.byteIdx:])
	it.byteIdx += it.size
	it.offset++
	return true
}

// Rune returns the current rune.
func (it *RuneIterator) Rune() rune {
	return it.current
}

// Offset returns the rune offset of the current rune.
func (it *RuneIterator) Offset() int {
	return it.offset
}

// LineIterator iterates over lines in a rope.
type LineIterator struct {
	rope      Rope
	lineNum   uint32
	lineStart int
	lineEnd   int
	text      string
	started   bool
	done      bool
}

// Lines returns an iterator over all lines in the rope.
func (r Rope) Lines() *LineIterator {
	return &LineIterator{rope: r}
}

// Next advances to the next line.
// Returns true if there is a line, false when iteration is complete.
func (it *LineIterator) Next() bool {
	if it.done {
		return false
	}

	if !it.started {
		it.started = true
		if it.rope.IsEmpty() {
			it.text = ""
			it.done = true
			return true // an empty rope still has one empty line
		}
	} else {
		it.lineNum++
		if it.lineNum >= it.rope.LineCount() {
			it.done = true
			return false
		}
	}

	it.lineStart = it.rope.LineStart(it.lineNum)
	it.lineEnd = it.rope.LineEnd(it.lineNum)
	it.text = it.rope.Slice(it.lineStart, it.lineEnd)
	return true
}

// Text returns the text of the current line (without newline).
func (it *LineIterator) Text() string {
	return it.text
}

// Line returns the current line number (0-indexed).
func (it *LineIterator) Line() uint32 {
	return it.lineNum
}

// StartOffset returns the rune offset of the start of the current line.
func (it *LineIterator) StartOffset() int {
	return it.lineStart
}

// EndOffset returns the rune offset of the end of the current line.
func (it *LineIterator) EndOffset() int {
	return it.lineEnd
}
