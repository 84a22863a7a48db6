// Package chunking cuts extracted document text into the overlapping
// windows that get embedded for retrieval.
package chunking

import "iter"

const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200
)

// Splitter produces windows of size runes that advance by size-overlap, so
// neighbours share exactly overlap runes. Only the final window may be short.
type Splitter struct {
	size    int
	overlap int
}

// NewSplitter falls back to DefaultChunkSize for a non-positive size and
// shrinks an overlap that would stall the window to a quarter of the size.
func NewSplitter(size, overlap int) *Splitter {
	if size <= 0 {
		size = DefaultChunkSize
	}
	overlap = max(overlap, 0)
	if overlap >= size {
		overlap = size / 4
	}
	return &Splitter{size: size, overlap: overlap}
}

// Windows yields [start, end) rune offsets covering n runes.
func (s *Splitter) Windows(n int) iter.Seq2[int, int] {
	return func(yield func(int, int) bool) {
		stride := s.size - s.overlap
		for start := 0; start < n; start += stride {
			end := min(start+s.size, n)
			if !yield(start, end) || end == n {
				return
			}
		}
	}
}

// Split keeps chunk text untrimmed; trimming would break the overlap.
func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	var chunks []string
	for start, end := range s.Windows(len(runes)) {
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
