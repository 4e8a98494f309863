// Package textsplitter cuts normalized article text into overlapping chunks
// along a prioritized separator ladder tuned for Korean news prose.
package textsplitter

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/news2vector/newsrag/config"
	"github.com/news2vector/newsrag/schema"
)

// DefaultSeparators orders split points from strongest to weakest semantic
// boundary. The empty string means character-level slicing as last resort.
var DefaultSeparators = []string{
	"\n\n", // paragraph break
	"\n",   // line break
	"。",    // CJK period occasionally found in Korean wires
	".",
	"!",
	"?",
	"다.", // Korean sentence endings
	"요.",
	"니다.",
	",",
	" ",
	"",
}

// LengthFunc measures text in the unit the chunk budget is expressed in.
type LengthFunc func(string) int

// Splitter produces schema.NewsChunk sequences from one article at a time.
// Safe for concurrent use.
type Splitter struct {
	chunkSize  int
	overlap    int
	separators []string
	length     LengthFunc
}

// New builds a splitter from config. Provider "token" measures the chunk
// budget in tiktoken tokens; "character" in runes. Overlap is always taken as
// a run of characters from the preceding chunk's tail.
func New(cfg *config.SplitterConfig) (*Splitter, error) {
	length := runeLen
	if strings.EqualFold(cfg.Provider, "token") {
		enc, err := tiktoken.GetEncoding(cfg.Encoding)
		if err != nil {
			return nil, fmt.Errorf("load tiktoken encoding %q: %w", cfg.Encoding, err)
		}
		length = func(s string) int { return len(enc.Encode(s, nil, nil)) }
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", cfg.ChunkOverlap, cfg.ChunkSize)
	}
	return &Splitter{
		chunkSize:  cfg.ChunkSize,
		overlap:    cfg.ChunkOverlap,
		separators: DefaultSeparators,
		length:     length,
	}, nil
}

// Split cuts text into chunks carrying the article's provenance. Empty or
// whitespace-only text yields an empty slice, not an error. All returned
// chunks share TotalChunks and the source fields; ChunkIndex is zero-based
// and contiguous.
func (s *Splitter) Split(text, title, url, publishedAt string) []schema.NewsChunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	contents := s.chunkContents(text)
	chunks := make([]schema.NewsChunk, len(contents))
	for i, content := range contents {
		chunks[i] = schema.NewsChunk{
			Content:     content,
			ChunkIndex:  i,
			TotalChunks: len(contents),
			SourceTitle: title,
			SourceURL:   url,
			PublishedAt: publishedAt,
		}
	}
	return chunks
}

// chunkContents splits, merges, and applies overlap. Segments are capped at
// chunkSize-overlap so that prefixing the previous tail never pushes a chunk
// past chunkSize.
func (s *Splitter) chunkContents(text string) []string {
	limit := s.chunkSize - s.overlap
	segments := s.splitRecursive(text, s.separators, limit)

	// Greedy merge of adjacent segments up to the limit.
	var merged []string
	var current strings.Builder
	currentLen := 0
	for _, seg := range segments {
		segLen := s.length(seg)
		if currentLen > 0 && currentLen+segLen > limit {
			merged = append(merged, current.String())
			current.Reset()
			currentLen = 0
		}
		current.WriteString(seg)
		currentLen += segLen
	}
	if current.Len() > 0 {
		merged = append(merged, current.String())
	}

	if s.overlap == 0 || len(merged) <= 1 {
		return merged
	}
	out := make([]string, len(merged))
	out[0] = merged[0]
	for i := 1; i < len(merged); i++ {
		out[i] = tailRunes(out[i-1], s.overlap) + merged[i]
	}
	return out
}

// splitRecursive walks the separator ladder: segments exceeding the limit are
// retried with the next separator down, and sliced by characters only when
// every separator is exhausted.
func (s *Splitter) splitRecursive(text string, separators []string, limit int) []string {
	if s.length(text) <= limit {
		return []string{text}
	}
	if len(separators) == 0 {
		return sliceRunes(text, limit)
	}
	sep := separators[0]
	if sep == "" {
		return sliceRunes(text, limit)
	}

	parts := splitKeepSeparator(text, sep)
	if len(parts) == 1 {
		// Separator absent; descend without it.
		return s.splitRecursive(text, separators[1:], limit)
	}
	var out []string
	for _, part := range parts {
		if s.length(part) <= limit {
			out = append(out, part)
			continue
		}
		out = append(out, s.splitRecursive(part, separators[1:], limit)...)
	}
	return out
}

// splitKeepSeparator splits text on sep, keeping sep attached to the end of
// each piece so no characters are lost when pieces are re-merged.
func splitKeepSeparator(text, sep string) []string {
	raw := strings.Split(text, sep)
	out := make([]string, 0, len(raw))
	for i, piece := range raw {
		if i < len(raw)-1 {
			piece += sep
		}
		if piece == "" {
			continue
		}
		out = append(out, piece)
	}
	return out
}

func runeLen(s string) int { return len([]rune(s)) }

func tailRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

// sliceRunes cuts text into rune slices no longer than limit.
func sliceRunes(text string, limit int) []string {
	if limit <= 0 {
		limit = 1
	}
	r := []rune(text)
	var out []string
	for start := 0; start < len(r); start += limit {
		end := start + limit
		if end > len(r) {
			end = len(r)
		}
		out = append(out, string(r[start:end]))
	}
	return out
}
