package textstore

import (
	"fmt"
	"unicode/utf8"
)

// OpKind categorizes an edit operation.
type OpKind uint8

const (
	OpInsert  OpKind = iota // text spliced in at a point
	OpDelete                // half-open range removed
	OpReplace               // half-open range swapped for new text
)

// String returns a string representation of the kind.
func (k OpKind) String() string {
	switch k {
	case OpInsert:
		return "insert"
	case OpDelete:
		return "delete"
	case OpReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// EditOp describes a requested mutation of one buffer. Start and End are
// rune offsets into the content as of the version the edit is validated
// against; End is exclusive and equals Start for inserts.
type EditOp struct {
	Kind  OpKind
	Start int
	End   int
	Text  string
}

// Insert builds an EditOp that splices text in at the given rune offset.
func Insert(at int, text string) EditOp {
	return EditOp{Kind: OpInsert, Start: at, End: at, Text: text}
}

// Delete builds an EditOp that removes the half-open rune range [start, end).
func Delete(start, end int) EditOp {
	return EditOp{Kind: OpDelete, Start: start, End: end}
}

// Replace builds an EditOp that swaps the half-open rune range [start, end)
// for text, as a single atomic step.
func Replace(start, end int, text string) EditOp {
	return EditOp{Kind: OpReplace, Start: start, End: end, Text: text}
}

// String returns a human-readable representation of the edit.
func (op EditOp) String() string {
	switch op.Kind {
	case OpInsert:
		return fmt.Sprintf("Insert(%d, %q)", op.Start, op.Text)
	case OpDelete:
		return fmt.Sprintf("Delete[%d,%d)", op.Start, op.End)
	case OpReplace:
		return fmt.Sprintf("Replace[%d,%d) with %q", op.Start, op.End, op.Text)
	default:
		return fmt.Sprintf("EditOp(kind=%d)", op.Kind)
	}
}

// IsNoOp reports whether the edit cannot change content: an empty insert,
// an empty delete range, or an empty replace range with empty text.
// No-op edits never advance the version and never emit a ChangeEvent.
func (op EditOp) IsNoOp() bool {
	switch op.Kind {
	case OpInsert:
		return op.Text == ""
	case OpDelete:
		return op.Start == op.End
	case OpReplace:
		return op.Start == op.End && op.Text == ""
	default:
		return true
	}
}

// TextRunes returns the length of the edit's text in runes.
func (op EditOp) TextRunes() int {
	return utf8.RuneCountInString(op.Text)
}

// validate checks the edit's kind and offsets against a content length
// in runes.
func (op EditOp) validate(length int) error {
	switch op.Kind {
	case OpInsert, OpDelete, OpReplace:
	default:
		return fmt.Errorf("unknown edit kind %d", op.Kind)
	}
	if op.Start < 0 || op.Start > op.End || op.End > length {
		return &OffsetError{Start: op.Start, End: op.End, Length: length}
	}
	return nil
}

// ChangeEvent describes one successful mutation. Exactly one event is
// emitted per content change and fanned out by value to every
// subscription; Replace emits a single event, never a delete/insert pair.
//
// OldText carries the text the operation removed (empty for pure
// inserts), which makes every event invertible.
type ChangeEvent struct {
	BufferID   BufferID
	OldVersion Version
	NewVersion Version
	Op         EditOp
	OldText    string
}

// Invert returns the EditOp that would undo this event when applied to
// content at NewVersion.
func (ev ChangeEvent) Invert() EditOp {
	op := ev.Op
	switch op.Kind {
	case OpInsert:
		return Delete(op.Start, op.Start+op.TextRunes())
	case OpDelete:
		return Insert(op.Start, ev.OldText)
	case OpReplace:
		return Replace(op.Start, op.Start+op.TextRunes(), ev.OldText)
	default:
		return op
	}
}

// String returns a human-readable representation of the event.
func (ev ChangeEvent) String() string {
	return fmt.Sprintf("buffer %d v%d->v%d %s",
		ev.BufferID, ev.OldVersion, ev.NewVersion, ev.Op)
}
