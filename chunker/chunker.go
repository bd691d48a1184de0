// Package chunker splits normalized novel text into overlapping passages
// sized for embedding.
package chunker

import (
	"novelrag/types"
)

// Separators are tried in order when picking a cut point, so a chunk ends on
// a paragraph break when one is in reach, then a line break, then Chinese
// sentence and clause punctuation.
var defaultSeparators = []string{"\n\n", "\n", "。", "！", "？", "，", "、"}

type Chunker struct {
	size       int
	overlap    int
	separators []string
}

// New builds a chunker with size and overlap measured in runes. Overlap must
// be smaller than size, otherwise the scan could never advance.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, types.ConfigError{Field: "chunker.size", Reason: "must be positive"}
	}
	if overlap < 0 {
		return nil, types.ConfigError{Field: "chunker.overlap", Reason: "must not be negative"}
	}
	if overlap >= size {
		return nil, types.ConfigError{Field: "chunker.overlap", Reason: "must be smaller than chunker.size"}
	}
	return &Chunker{
		size:       size,
		overlap:    overlap,
		separators: defaultSeparators,
	}, nil
}

// Split covers the whole document with chunks of at most size runes where
// each chunk shares exactly overlap runes with its predecessor. A document
// shorter than size yields a single chunk. Output is deterministic: same
// text, same chunks, same ids.
func (c *Chunker) Split(doc types.Document) []types.Chunk {
	runes := []rune(doc.Text)
	if len(runes) == 0 {
		return nil
	}

	var chunks []types.Chunk
	start := 0
	for pos := 0; ; pos++ {
		if len(runes)-start <= c.size {
			chunks = append(chunks, newChunk(doc.BookID, pos, start, len(runes), runes))
			break
		}
		end := c.breakPoint(runes, start)
		chunks = append(chunks, newChunk(doc.BookID, pos, start, end, runes))
		start = end - c.overlap
	}
	return chunks
}

// breakPoint picks the cut for a chunk starting at start. It prefers the
// last separator occurrence inside the window and falls back to a hard cut
// at the window edge. The cut is kept past start+overlap so the next chunk
// always advances.
func (c *Chunker) breakPoint(runes []rune, start int) int {
	limit := start + c.size
	min := start + c.overlap + 1
	for _, sep := range c.separators {
		if end, ok := lastSeparatorEnd(runes, sep, min, limit); ok {
			return end
		}
	}
	return limit
}

// lastSeparatorEnd returns the largest end in [min, limit] where the runes
// just before end spell out sep.
func lastSeparatorEnd(runes []rune, sep string, min, limit int) (int, bool) {
	s := []rune(sep)
	for end := limit; end >= min; end-- {
		if end < len(s) {
			break
		}
		if equalRunes(runes[end-len(s):end], s) {
			return end, true
		}
	}
	return 0, false
}

func equalRunes(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func newChunk(bookID string, pos, start, end int, runes []rune) types.Chunk {
	return types.Chunk{
		ID:          types.NewChunkID(bookID, start, end),
		BookID:      bookID,
		Position:    pos,
		StartOffset: start,
		EndOffset:   end,
		Content:     string(runes[start:end]),
	}
}
