package chunker

import (
	"strings"

	"docchat-be/pkg/rag"
)

const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200
)

// Splitter cuts text into fixed-size rune windows. Consecutive windows share
// Overlap runes so a fact crossing a boundary survives in at least one chunk.
type Splitter struct {
	size    int
	overlap int
}

func New(size, overlap int) *Splitter {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return &Splitter{size: size, overlap: overlap}
}

func NewDefault() *Splitter {
	return New(DefaultChunkSize, DefaultOverlap)
}

func (s *Splitter) Stride() int {
	return s.size - s.overlap
}

// Split returns the ordered chunks of text. pages describe where each page
// sits inside text; a chunk takes the page that contributes most of its runes.
// Empty or whitespace-only text yields rag.ErrNoContent.
func (s *Splitter) Split(text string, pages []rag.PageBoundary) ([]rag.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, rag.ErrNoContent
	}

	runes := []rune(text)
	total := len(runes)
	step := s.Stride()

	var chunks []rag.Chunk
	for start := 0; start < total; start += step {
		end := start + s.size
		if end > total {
			end = total
		}

		chunks = append(chunks, rag.Chunk{
			Index: len(chunks),
			Text:  string(runes[start:end]),
			Page:  dominantPage(start, end, pages),
		})

		if end == total {
			break
		}
	}

	return chunks, nil
}

// dominantPage picks the page overlapping [start, end) the most. Ties go to
// the earlier page; no pages at all means page 1.
func dominantPage(start, end int, pages []rag.PageBoundary) int {
	best, bestOverlap := 1, 0
	for _, p := range pages {
		lo, hi := max(start, p.Start), min(end, p.End)
		if hi-lo > bestOverlap {
			best, bestOverlap = p.Page, hi-lo
		}
	}
	return best
}
