// Package chunker splits long text into overlapping, sentence-aligned chunks.
package chunker

import (
	"unicode"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 100

// Chunk is a contiguous span of the source text.
// Start and End are rune offsets; Overlap is the number of leading runes
// shared with the previous chunk.
type Chunk struct {
	Text    string
	Start   int
	End     int
	Overlap int
}

// Processor splits text at sentence boundaries into chunks of at most
// chunkSize runes, each repeating up to overlap runes of its predecessor.
type Processor struct {
	chunkSize int
	overlap   int
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}

	for _, opt := range opts {
		opt(p)
	}

	// Ensure overlap doesn't exceed chunk size
	if p.overlap >= p.chunkSize {
		p.overlap = p.chunkSize / 4
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// ChunkSize returns the configured chunk size.
func (p *Processor) ChunkSize() int { return p.chunkSize }

// Overlap returns the configured overlap.
func (p *Processor) Overlap() int { return p.overlap }

// NeedsChunking reports whether text is longer than one chunk.
func (p *Processor) NeedsChunking(text string) bool {
	n := 0
	for range text {
		n++
		if n > p.chunkSize {
			return true
		}
	}
	return false
}

// Split divides text into chunks. Sentences are accumulated greedily until
// the next one would overflow the chunk; a sentence longer than a whole
// chunk is cut at the last whitespace that fits. Text that fits in a single
// chunk is returned as one chunk.
func (p *Processor) Split(text string) []Chunk {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}
	if n <= p.chunkSize {
		return []Chunk{{Text: text, Start: 0, End: n}}
	}

	bounds := sentenceEnds(runes)
	chunks := make([]Chunk, 0, n/(p.chunkSize-p.overlap)+1)

	start, overlap, prevEnd := 0, 0, 0
	for start < n {
		limit := start + p.chunkSize
		end := prevEnd
		for _, b := range bounds {
			if b <= prevEnd {
				continue
			}
			if b > limit {
				break
			}
			end = b
		}
		if end == prevEnd {
			end = hardCut(runes, max(prevEnd, start+p.chunkSize/2), limit)
		}

		chunks = append(chunks, Chunk{
			Text:    string(runes[start:end]),
			Start:   start,
			End:     end,
			Overlap: overlap,
		})
		if end >= n {
			break
		}

		next := overlapStart(runes, start, end, p.overlap)
		overlap = end - next
		start, prevEnd = next, end
	}

	return chunks
}

// sentenceEnds returns the offsets just past each sentence, including the
// whitespace that follows its terminator. The final offset is len(runes).
func sentenceEnds(runes []rune) []int {
	var ends []int
	n := len(runes)
	for i := 0; i < n; i++ {
		if !isTerminator(runes[i]) {
			continue
		}
		j := i + 1
		for j < n && isTerminator(runes[j]) {
			j++
		}
		if j < n && !unicode.IsSpace(runes[j]) {
			i = j - 1
			continue
		}
		for j < n && unicode.IsSpace(runes[j]) {
			j++
		}
		ends = append(ends, j)
		i = j - 1
	}
	if len(ends) == 0 || ends[len(ends)-1] != n {
		ends = append(ends, n)
	}
	return ends
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '\n'
}

// hardCut ends a chunk inside an over-long sentence at the last whitespace
// after floor, or at limit when there is none.
func hardCut(runes []rune, floor, limit int) int {
	if limit >= len(runes) {
		return len(runes)
	}
	for i := limit; i > floor; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return limit
}

// overlapStart picks where the next chunk begins: at most overlap runes
// before end, moved forward to a word start so the shared context is not
// cut mid-word. It always makes progress past start.
func overlapStart(runes []rune, start, end, overlap int) int {
	if overlap <= 0 || end-start <= overlap {
		return end
	}
	next := end - overlap
	for next < end && next > 0 && !unicode.IsSpace(runes[next-1]) {
		next++
	}
	if next <= start {
		return end
	}
	return next
}
