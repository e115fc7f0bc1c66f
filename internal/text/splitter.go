package text

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Splitter cuts a text into overlapping chunks of at most size characters,
// preferring to cut at a paragraph break, then a sentence end, then a word
// boundary, and hard-cutting only when the window contains none. Sizes are
// measured in Unicode code points, not bytes, so multi-byte scripts chunk
// the same as ASCII.
//
// Splitting is deterministic: the same input always yields the same chunks.
type Splitter struct {
	size    int
	overlap int
}

func NewSplitter(size, overlap int) *Splitter {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
		if overlap >= size {
			overlap = size / 5
		}
	}
	return &Splitter{size: size, overlap: overlap}
}

// Split returns the chunk texts for one text unit, trimmed of surrounding
// whitespace. Empty or all-whitespace input yields no chunks.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	runes := []rune(text)
	if len(runes) <= s.size {
		return []string{strings.TrimSpace(text)}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + s.size
		if end >= len(runes) {
			if c := strings.TrimSpace(string(runes[start:])); c != "" {
				chunks = append(chunks, c)
			}
			break
		}

		cut := s.cutPoint(runes, start, end)
		if c := strings.TrimSpace(string(runes[start:cut])); c != "" {
			chunks = append(chunks, c)
		}

		next := cut - s.overlap
		if next <= start {
			// Overlap would stall the window; drop it for this step.
			next = cut
		}
		start = next
	}
	return chunks
}

// cutPoint picks where to end the chunk starting at start, in character
// offsets. Boundaries are searched backwards from the window end, but never
// before the window's midpoint so a boundary-dense prefix cannot produce
// degenerate slivers. strings.LastIndex reports byte positions; those are
// mapped back to character counts, and the separators themselves are ASCII,
// so their byte and character lengths coincide.
func (s *Splitter) cutPoint(runes []rune, start, end int) int {
	floor := start + s.size/2
	window := string(runes[floor:end])

	if idx := strings.LastIndex(window, "\n\n"); idx >= 0 {
		return floor + utf8.RuneCountInString(window[:idx]) + 2
	}

	sentence := -1
	for _, sep := range []string{". ", "! ", "? ", "\n"} {
		if idx := strings.LastIndex(window, sep); idx >= 0 {
			if at := utf8.RuneCountInString(window[:idx]) + len(sep); at > sentence {
				sentence = at
			}
		}
	}
	if sentence >= 0 {
		return floor + sentence
	}

	if idx := strings.LastIndex(window, " "); idx >= 0 {
		return floor + utf8.RuneCountInString(window[:idx]) + 1
	}

	return end
}
