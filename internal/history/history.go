package history

import (
	"fmt"
	"strings"
	"time"
)

// Entry is one recorded command line.
type Entry struct {
	ID        int64     `json:"id"`
	Line      string    `json:"line"`
	Timestamp time.Time `json:"timestamp"`
}

// Buffer holds the lines of an interactive session: the ones loaded at
// start plus the ones entered since, which are written back on Flush.
type Buffer struct {
	lines   []string
	pending []string
	limit   int
}

// NewBuffer creates a buffer keeping at most limit lines in memory.
func NewBuffer(limit int) *Buffer {
	if limit <= 0 {
		limit = MaxEntries
	}
	return &Buffer{limit: limit}
}

// Seed loads previously stored entries.
func (b *Buffer) Seed(entries []Entry) {
	for _, e := range entries {
		b.push(e.Line)
	}
}

// Add records a newly entered line. Blank lines and immediate repeats are
// ignored.
func (b *Buffer) Add(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	if n := len(b.lines); n > 0 && b.lines[n-1] == line {
		return
	}
	b.push(line)
	b.pending = append(b.pending, line)
}

// Last returns up to n of the most recent lines, oldest first. n <= 0
// returns all of them.
func (b *Buffer) Last(n int) []string {
	if n <= 0 || n > len(b.lines) {
		n = len(b.lines)
	}
	out := make([]string, n)
	copy(out, b.lines[len(b.lines)-n:])
	return out
}

// Len returns the number of lines held.
func (b *Buffer) Len() int { return len(b.lines) }

// At returns the idx-th most recent line; 0 is the last one entered. It
// panics when idx is out of range.
func (b *Buffer) At(idx int) string {
	if idx < 0 || idx >= len(b.lines) {
		panic(fmt.Sprintf("history: index %d out of range [0,%d)", idx, len(b.lines)))
	}
	return b.lines[len(b.lines)-1-idx]
}

// Flush writes the lines entered since the last flush to store.
func (b *Buffer) Flush(store *Store) error {
	if store == nil || len(b.pending) == 0 {
		return nil
	}
	if err := store.Append(b.pending...); err != nil {
		return err
	}
	b.pending = nil
	return nil
}

func (b *Buffer) push(line string) {
	b.lines = append(b.lines, line)
	if over := len(b.lines) - b.limit; over > 0 {
		b.lines = append(b.lines[:0], b.lines[over:]...)
	}
}
