package rope

import "unicode/utf8"

// Summary holds aggregated metrics for a span of text. It is the monoid
// accumulated up the tree: every node stores the summary of its subtree, so
// lookups by rune offset or line number descend without touching text.
type Summary struct {
	// Bytes is the UTF-8 encoded length.
	Bytes int

	// Runes is the character count. Rune offsets are the primary
	// coordinate for all rope operations.
	Runes int

	// Lines is the number of newline characters.
	Lines uint32

	// Flags record text properties used for fast paths.
	Flags Flags
}

// Flags indicate text properties for optimization fast paths.
type Flags uint8

const (
	// FlagASCII indicates every character is ASCII, so rune and byte
	// offsets coincide.
	FlagASCII Flags = 1 << iota
)

// Zero returns the identity element for the summary monoid.
func (Summary) Zero() Summary {
	return Summary{Flags: FlagASCII}
}

// IsZero reports whether this is the identity summary.
func (s Summary) IsZero() bool {
	return s.Bytes == 0
}

// Add combines two summaries. Called when concatenating rope sections.
func (s Summary) Add(other Summary) Summary {
	if s.Bytes == 0 {
		return other
	}
	if other.Bytes == 0 {
		return s
	}
	return Summary{
		Bytes: s.Bytes + other.Bytes,
		Runes: s.Runes + other.Runes,
		Lines: s.Lines + other.Lines,
		Flags: s.Flags & other.Flags,
	}
}

// Compute calculates the summary for a string in a single pass.
func Compute(s string) Summary {
	sum := Summary{Bytes: len(s), Flags: FlagASCII}
	for _, r := range s {
		sum.Runes++
		if r >= utf8.RuneSelf {
			sum.Flags &^= FlagASCII
		}
		if r == '\n' {
			sum.Lines++
		}
	}
	return sum
}
