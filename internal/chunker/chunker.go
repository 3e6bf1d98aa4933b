// Package chunker splits extracted document text into overlapping,
// size-bounded chunks. Sizes are measured in runes.
package chunker

import "unicode"

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// boundary levels, tried in order: paragraph, line, sentence, word
var boundaries = [][]string{
	{"\n\n"},
	{"\n"},
	{". ", "! ", "? ", ".\n", "!\n", "?\n"},
	{" ", "\t"},
}

// Span is a half-open rune range [Start, End) of the input text.
type Span struct {
	Start int
	End   int
}

type Chunker struct {
	chunkSize int
	overlap   int
}

type Option func(*Chunker)

// WithChunkSize sets the maximum chunk length. Non-positive values are ignored.
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithOverlap sets how many runes consecutive chunks share at most.
// Negative values are ignored.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

func New(opts ...Option) *Chunker {
	c := &Chunker{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.chunkSize {
		c.overlap = c.chunkSize / 4
	}
	return c
}

func (c *Chunker) ChunkSize() int { return c.chunkSize }
func (c *Chunker) Overlap() int   { return c.overlap }

// Split returns the chunks of text in order. Empty input yields no chunks;
// input no longer than the chunk size is returned as a single chunk.
func (c *Chunker) Split(text string) []string {
	runes := []rune(text)
	spans := c.spans(runes)
	if len(spans) == 0 {
		return nil
	}
	chunks := make([]string, len(spans))
	for i, s := range spans {
		chunks[i] = string(runes[s.Start:s.End])
	}
	return chunks
}

// Spans reports where each chunk of Split(text) sits in text.
// Consecutive spans overlap by at most the configured overlap, so
// text == chunk[0] + chunk[i][prev.End-cur.Start:] for every following chunk.
func (c *Chunker) Spans(text string) []Span {
	return c.spans([]rune(text))
}

func (c *Chunker) spans(runes []rune) []Span {
	n := len(runes)
	if n == 0 {
		return nil
	}
	if n <= c.chunkSize {
		return []Span{{0, n}}
	}

	spans := make([]Span, 0, n/(c.chunkSize-c.overlap)+1)
	start := 0
	for {
		end := start + c.chunkSize
		if end >= n {
			spans = append(spans, Span{start, n})
			return spans
		}
		cut := c.breakPoint(runes, start, end)
		spans = append(spans, Span{start, cut})
		start = c.nextStart(runes, start, cut)
	}
}

// breakPoint picks where the chunk starting at start should end, searching
// backwards from end for the strongest boundary. The cut never falls so early
// that the following chunk would fail to advance past start.
func (c *Chunker) breakPoint(runes []rune, start, end int) int {
	lo := start + max(c.overlap+1, c.chunkSize/2)
	for _, level := range boundaries {
		for p := end; p >= lo; p-- {
			for _, sep := range level {
				if endsWith(runes, start, p, sep) {
					return p
				}
			}
		}
	}
	return end
}

// nextStart backs up by the overlap from cut, then moves forward to the
// first word start so the shared region does not begin mid-word.
func (c *Chunker) nextStart(runes []rune, start, cut int) int {
	next := cut - c.overlap
	if next <= start {
		next = start + 1
	}
	for p := next; p < cut; p++ {
		if unicode.IsSpace(runes[p-1]) && !unicode.IsSpace(runes[p]) {
			return p
		}
	}
	return next
}

func endsWith(runes []rune, start, p int, sep string) bool {
	s := []rune(sep)
	if p-len(s) < start {
		return false
	}
	for i, r := range s {
		if runes[p-len(s)+i] != r {
			return false
		}
	}
	return true
}
