package rope

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"
)

// generateText creates a string of the given byte size with realistic content.
func generateText(size int) string {
	var sb strings.Builder
	sb.Grow(size)

	words := []string{"the", "quick", "brown", "fox", "jumps", "over", "lazy", "dog", "héllo", "世界"}
	lineLen := 0

	for sb.Len() < size {
		word := words[rand.Intn(len(words))]
		if sb.Len()+len(word)+1 > size {
			break
		}

		if sb.Len() > 0 {
			if lineLen > 60 {
				sb.WriteByte('\n')
				lineLen = 0
			} else {
				sb.WriteByte(' ')
				lineLen++
			}
		}

		sb.WriteString(word)
		lineLen += len(word)
	}

	return sb.String()
}

func BenchmarkFromString(b *testing.B) {
	for _, size := range []int{1 << 10, 64 << 10, 1 << 20} {
		text := generateText(size)
		b.Run(fmt.Sprintf("%dKB", size/1024), func(b *testing.B) {
			b.SetBytes(int64(size))
			for i := 0; i < b.N; i++ {
				_ = FromString(text)
			}
		})
	}
}

func BenchmarkInsert(b *testing.B) {
	text := generateText(256 << 10)
	r := FromString(text)
	n := r.Len()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = r.Insert((i*7919)%n, "inserted")
	}
}

func BenchmarkDelete(b *testing.B) {
	text := generateText(256 << 10)
	r := FromString(text)
	n := r.Len()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		start := (i * 7919) % (n - 10)
		_ = r.Delete(start, start+10)
	}
}

func BenchmarkSlice(b *testing.B) {
	text := generateText(256 << 10)
	r := FromString(text)
	n := r.Len()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		start := (i * 7919) % (n - 100)
		_ = r.Slice(start, start+100)
	}
}

func BenchmarkLineStart(b *testing.B) {
	text := generateText(256 << 10)
	r := FromString(text)
	lines := r.LineCount()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = r.LineStart(uint32(i) % lines)
	}
}

func BenchmarkString(b *testing.B) {
	text := generateText(256 << 10)
	r := FromString(text)
	b.SetBytes(int64(len(text)))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = r.String()
	}
}
