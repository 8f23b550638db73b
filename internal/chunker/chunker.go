// Package chunker splits extracted document text into overlapping passages.
package chunker

import "strings"

const (
	// DefaultChunkSize is the maximum number of characters per chunk.
	DefaultChunkSize = 500

	// DefaultChunkOverlap is the number of characters shared by consecutive chunks.
	DefaultChunkOverlap = 50
)

// boundaryLevels lists cut-point separators from most to least preferred.
// Separators on the same level compete on position only.
var boundaryLevels = [][]string{
	{"\n\n"},
	{"\n"},
	{". ", "? ", "! "},
	{" ", "\t"},
}

// Chunker splits text into chunks of at most size characters where each chunk
// after the first repeats the last overlap characters of its predecessor.
type Chunker struct {
	size    int
	overlap int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithChunkSize sets the maximum chunk length in characters.
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.size = size
		}
	}
}

// WithOverlap sets the overlap between consecutive chunks in characters.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// New creates a Chunker with DefaultChunkSize and DefaultChunkOverlap unless overridden.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		size:    DefaultChunkSize,
		overlap: DefaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}

	// Cut points are searched in the second half of the window, so the overlap
	// must stay below half the size for the cursor to advance.
	if c.overlap*2 >= c.size {
		c.overlap = c.size / 4
	}
	return c
}

// Size returns the configured maximum chunk length.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap length.
func (c *Chunker) Overlap() int { return c.overlap }

// Split returns the chunks of text in document order.
// Empty or whitespace-only text yields no chunks.
func (c *Chunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	var chunks []string
	start := 0
	for {
		if len(runes)-start <= c.size {
			return append(chunks, string(runes[start:]))
		}
		end := c.cutPoint(runes, start)
		chunks = append(chunks, string(runes[start:end]))
		start = end - c.overlap
	}
}

// cutPoint picks the exclusive end of the chunk starting at start.
func (c *Chunker) cutPoint(runes []rune, start int) int {
	limit := start + c.size
	floor := start + c.size/2

	for _, level := range boundaryLevels {
		best := -1
		for _, sep := range level {
			if end := lastBoundary(runes, floor, limit, []rune(sep)); end > best {
				best = end
			}
		}
		if best > 0 {
			return best
		}
	}
	return limit
}

// lastBoundary returns the largest end in (floor, limit] where runes[:end] ends with sep, or -1.
func lastBoundary(runes []rune, floor, limit int, sep []rune) int {
	for end := limit; end > floor && end >= len(sep); end-- {
		if hasSuffixAt(runes, end, sep) {
			return end
		}
	}
	return -1
}

func hasSuffixAt(runes []rune, end int, sep []rune) bool {
	off := end - len(sep)
	for i, r := range sep {
		if runes[off+i] != r {
			return false
		}
	}
	return true
}
