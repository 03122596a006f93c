package text

import (
	"regexp"
	"strings"
)

// Fragment is a bounded slice of a document's text, the unit of embedding
// and retrieval. OrderIndex is zero-based and contiguous within a document.
type Fragment struct {
	OrderIndex int
	Content    string
	TokenCount int
}

// separators is ordered from coarsest to finest. When a segment produced by
// one separator still exceeds the size limit, the chunker recurses into the
// next one. Past the last entry it slices at the character level.
var separators = []string{"\n\n", "\n", ". ", "! ", "? ", "; ", ", ", " "}

var (
	spaceRunRe   = regexp.MustCompile(`[ \t]+`)
	newlineRunRe = regexp.MustCompile(`\n{3,}`)
)

type Chunker struct {
	size    int
	overlap int
}

// NewChunker returns a chunker producing fragments of at most size
// characters, consecutive fragments sharing an overlap-character
// suffix/prefix. An overlap that leaves no room for new content is clamped
// to zero.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return &Chunker{size: size, overlap: overlap}
}

// Chunk splits text into ordered fragments. Empty or whitespace-only input
// yields no fragments. Stripping the injected overlap from every fragment
// after the first and concatenating reconstructs the normalized input.
func (c *Chunker) Chunk(text string) []Fragment {
	norm := Normalize(text)
	if norm == "" {
		return nil
	}

	// Pieces are contiguous and non-overlapping; the overlap is layered on
	// afterwards so the size bound still holds once the seed is prepended.
	limit := c.size - c.overlap
	pieces := c.split(norm, 0, limit)

	fragments := make([]Fragment, 0, len(pieces))
	prev := ""
	for _, piece := range pieces {
		if strings.TrimSpace(piece) == "" {
			continue
		}
		content := piece
		if c.overlap > 0 && prev != "" {
			content = tail(prev, c.overlap) + piece
		}
		fragments = append(fragments, Fragment{
			OrderIndex: len(fragments),
			Content:    content,
			TokenCount: EstimateTokens(content),
		})
		prev = content
	}
	return fragments
}

// Normalize collapses runs of spaces and tabs to a single space, collapses
// three or more consecutive newlines to exactly one blank line, and trims
// surrounding whitespace.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = spaceRunRe.ReplaceAllString(text, " ")
	text = newlineRunRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// EstimateTokens approximates the token count as ceil(len/4).
func EstimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// split breaks text into pieces of at most limit characters using the
// separator at sepIdx, greedily merging adjacent segments. Segments that
// are atomic at this level recurse into the next finer separator.
func (c *Chunker) split(text string, sepIdx, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	if sepIdx >= len(separators) {
		return hardSplit(text, limit)
	}

	// SplitAfter keeps the separator attached to the preceding segment so
	// rejoining the pieces reproduces the input exactly.
	segs := strings.SplitAfter(text, separators[sepIdx])
	if len(segs) == 1 {
		return c.split(text, sepIdx+1, limit)
	}

	var pieces []string
	cur := ""
	for _, seg := range segs {
		if len(seg) > limit {
			if cur != "" {
				pieces = append(pieces, cur)
				cur = ""
			}
			pieces = append(pieces, c.split(seg, sepIdx+1, limit)...)
			continue
		}
		if len(cur)+len(seg) > limit {
			pieces = append(pieces, cur)
			cur = ""
		}
		cur += seg
	}
	if cur != "" {
		pieces = append(pieces, cur)
	}
	return pieces
}

func hardSplit(text string, limit int) []string {
	var pieces []string
	for len(text) > limit {
		pieces = append(pieces, text[:limit])
		text = text[limit:]
	}
	if text != "" {
		pieces = append(pieces, text)
	}
	return pieces
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
