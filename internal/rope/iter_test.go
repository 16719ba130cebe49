package rope

import (
	"strings"
	"testing"
)

func TestChunkIterator(t *testing.T) {
	input := strings.Repeat("chunk content 日本語 ", 100)
	r := FromString(input)

	var sb strings.Builder
	lastOffset := -1
	iter := r.Chunks()
	for iter.Next() {
		if iter.Offset() <= lastOffset {
			t.Errorf("chunk offsets not increasing: %d after %d", iter.Offset(), lastOffset)
		}
		lastOffset = iter.Offset()
		sb.WriteString(iter.Chunk().String())
	}

	if sb.String() != input {
		t.Error("chunk iteration does not reproduce content")
	}
}

func TestChunkIteratorEmpty(t *testing.T) {
	iter := New().Chunks()
	if iter.Next() {
		t.Error("empty rope should yield no chunks")
	}
}

func TestRuneIterator(t *testing.T) {
	input := "aé日\n🌍z"
	r := FromString(input)
	want := []rune(input)

	var got []rune
	iter := r.Runes()
	for iter.Next() {
		if iter.Offset() != len(got) {
			t.Errorf("rune offset = %d, want %d", iter.Offset(), len(got))
		}
		got = append(got, iter.Rune())
	}

	if string(got) != string(want) {
		t.Errorf("runes = %q, want %q", string(got), string(want))
	}
}

func TestRuneIteratorLarge(t *testing.T) {
	input := strings.Repeat("mixed 内容 here\n", 200)
	r := FromString(input)

	count := 0
	iter := r.Runes()
	for iter.Next() {
		count++
	}
	if count != r.Len() {
		t.Errorf("iterated %d runes, want %d", count, r.Len())
	}
}

func TestLineIterator(t *testing.T) {
	input := "one\ntwo\n\nfour 世界"
	r := FromString(input)
	want := strings.Split(input, "\n")

	var got []string
	iter := r.Lines()
	for iter.Next() {
		if int(iter.Line()) != len(got) {
			t.Errorf("line number = %d, want %d", iter.Line(), len(got))
		}
		got = append(got, iter.Text())
	}

	if len(got) != len(want) {
		t.Fatalf("got %d lines, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLineIteratorEmptyRope(t *testing.T) {
	iter := New().Lines()
	if !iter.Next() {
		t.Fatal("empty rope should yield one empty line")
	}
	if iter.Text() != "" {
		t.Errorf("line text = %q, want empty", iter.Text())
	}
	if iter.Next() {
		t.Error("empty rope should yield exactly one line")
	}
}
