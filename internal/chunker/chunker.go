// Package chunker splits extracted document text into overlapping
// segments sized for embedding.
//
// Splitting prefers natural boundaries: paragraph breaks first, then
// line breaks, sentence-ending punctuation, clause punctuation, and
// finally plain spaces. Only when a span contains no separator at all
// does the splitter fall back to fixed-size slicing.
//
// The output is fully deterministic for a given input and parameters,
// which is what makes document re-ingestion idempotent.
package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Default splitting parameters, matching the ingestion pipeline's
// conventions.
const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
)

// ErrInvalidParameters indicates a chunk size or overlap that would
// make splitting nonsensical (size <= 0, negative overlap, or overlap
// that swallows the whole chunk).
var ErrInvalidParameters = errors.New("invalid chunk parameters")

// separators ordered from coarsest to finest granularity. The first
// one present in the text wins.
var separators = []string{"\n\n", "\n", ". ", "? ", "! ", "; ", ", ", " "}

// Split divides text into chunks of at most size characters with
// overlap characters shared between consecutive chunks.
//
// Empty or whitespace-only input yields no chunks. Input that already
// fits in one chunk is returned trimmed, as-is. Every returned chunk
// is non-empty after trimming.
func Split(text string, size, overlap int) ([]string, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size %d must be positive", ErrInvalidParameters, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrInvalidParameters, overlap, size)
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(text) <= size {
		return []string{trimmed}, nil
	}

	return recursiveSplit(text, separators, size, overlap), nil
}

// recursiveSplit splits text on the coarsest separator it contains,
// greedily packing parts into chunks of at most size characters. Parts
// that are themselves oversized recurse with the remaining, finer
// separators.
// Sizes are measured in runes throughout, so multibyte text is never
// cut mid-character.
func recursiveSplit(text string, seps []string, size, overlap int) []string {
	if utf8.RuneCountInString(text) <= size {
		if t := strings.TrimSpace(text); t != "" {
			return []string{t}
		}
		return nil
	}

	sepIdx := -1
	for i, sep := range seps {
		if strings.Contains(text, sep) {
			sepIdx = i
			break
		}
	}
	if sepIdx < 0 {
		// No separator anywhere: unbroken token, slice by size.
		return splitBySize(text, size, overlap)
	}

	sep := seps[sepIdx]
	parts := strings.Split(text, sep)

	var chunks []string
	current := ""

	for _, part := range parts {
		candidate := part
		if current != "" {
			candidate = current + sep + part
		}

		if utf8.RuneCountInString(candidate) <= size {
			current = candidate
			continue
		}

		if current != "" {
			if t := strings.TrimSpace(current); t != "" {
				chunks = append(chunks, t)
			}
		}

		if utf8.RuneCountInString(part) > size {
			// The part alone overflows a chunk: recurse using only
			// the finer separators after the current one.
			if rest := seps[sepIdx+1:]; len(rest) > 0 {
				chunks = append(chunks, recursiveSplit(part, rest, size, overlap)...)
			} else {
				chunks = append(chunks, splitBySize(part, size, overlap)...)
			}
			current = ""
		} else {
			current = part
		}
	}

	if t := strings.TrimSpace(current); t != "" {
		chunks = append(chunks, t)
	}

	if overlap > 0 && len(chunks) > 1 {
		return applyOverlap(chunks, overlap)
	}
	return chunks
}

// splitBySize cuts text at exactly size characters, advancing by
// size-overlap each step so consecutive slices share overlap
// characters. Whitespace-only slices are dropped.
func splitBySize(text string, size, overlap int) []string {
	runes := []rune(text)
	var out []string
	step := size - overlap
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// applyOverlap prepends the trailing overlap characters of each chunk
// to the start of the next one. The first chunk is left untouched.
func applyOverlap(chunks []string, overlap int) []string {
	out := make([]string, 0, len(chunks))
	out = append(out, chunks[0])
	for i := 1; i < len(chunks); i++ {
		tail := chunks[i-1]
		if runes := []rune(tail); len(runes) > overlap {
			tail = string(runes[len(runes)-overlap:])
		}
		out = append(out, tail+chunks[i])
	}
	return out
}
