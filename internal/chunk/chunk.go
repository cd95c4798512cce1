// Package chunk splits a raw transcript into ordered, bounded segments.
//
// Chunks are cut at the safest boundary available inside a window of
// maxChars characters: a paragraph break, then a sentence end, then any
// whitespace, and only as a last resort a hard cut. Whitespace found at a cut
// belongs to no chunk, so every chunk's Text is trimmed and the spans between
// chunks are whitespace only.
package chunk

import (
	"iter"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxChars is the chunk size used when none (or an invalid one) is given.
const DefaultMaxChars = 2000

// Chunk is a contiguous, trimmed slice of the raw transcript.
type Chunk struct {
	Index     int    // 0-based position in the sequence
	Text      string // raw[Start:End]
	Start     int    // byte offset in the raw transcript
	End       int    // byte offset, exclusive
	SizeLimit int    // max characters the chunk was produced under
}

// Len returns the chunk length in characters.
func (c Chunk) Len() int {
	return utf8.RuneCountInString(c.Text)
}

// Split returns all chunks of text. Empty or whitespace-only text yields nil.
func Split(text string, maxChars int) []Chunk {
	var chunks []Chunk
	for c := range All(text, maxChars) {
		chunks = append(chunks, c)
	}
	return chunks
}

// All returns a lazy sequence of the chunks of text. The sequence is
// restartable: ranging over it again scans text again from the start.
func All(text string, maxChars int) iter.Seq[Chunk] {
	if maxChars < 1 {
		maxChars = DefaultMaxChars
	}
	return func(yield func(Chunk) bool) {
		pos := skipSpace(text, 0)
		for index := 0; pos < len(text); index++ {
			cut := nextCut(text, pos, maxChars)
			end := pos + len(strings.TrimRightFunc(text[pos:cut], unicode.IsSpace))
			c := Chunk{
				Index:     index,
				Text:      text[pos:end],
				Start:     pos,
				End:       end,
				SizeLimit: maxChars,
			}
			if !yield(c) {
				return
			}
			pos = skipSpace(text, cut)
		}
	}
}

// nextCut returns the byte offset where the chunk starting at pos ends.
// text[pos] is never whitespace.
func nextCut(text string, pos, maxChars int) int {
	limit := advance(text, pos, maxChars)
	if limit == len(text) {
		return limit
	}
	window := text[pos:limit]

	// Boundaries in the first half of the window would produce tiny chunks.
	half := len(window) / 2

	if i := lastParagraphBreak(window); i > 0 && i >= half {
		return pos + i
	}
	if i := lastSentenceEnd(window); i > 0 && i >= half {
		return pos + i
	}
	if i := lastSpace(window); i > 0 {
		return pos + i
	}
	return limit
}

// lastParagraphBreak returns the offset of the last blank line in window,
// with LF or CRLF line endings, or -1.
func lastParagraphBreak(window string) int {
	return max(strings.LastIndex(window, "\n\n"), strings.LastIndex(window, "\r\n\r\n"))
}

// advance returns the byte offset n runes after pos, or len(text).
func advance(text string, pos, n int) int {
	for i := 0; i < n && pos < len(text); i++ {
		_, size := utf8.DecodeRuneInString(text[pos:])
		pos += size
	}
	return pos
}

// lastSentenceEnd returns the offset just after the last sentence-ending
// punctuation (and closing quotes or brackets) that is followed by whitespace.
// Returns -1 if none.
func lastSentenceEnd(window string) int {
	for i := len(window) - 1; i > 0; {
		r, size := utf8.DecodeLastRuneInString(window[:i+1])
		start := i + 1 - size
		if unicode.IsSpace(r) {
			end := start
			for end > 0 {
				p, psize := utf8.DecodeLastRuneInString(window[:end])
				if !isCloser(p) {
					break
				}
				end -= psize
			}
			if end > 0 {
				p, _ := utf8.DecodeLastRuneInString(window[:end])
				if isTerminal(p) {
					return start
				}
			}
		}
		i = start - 1
	}
	return -1
}

// lastSpace returns the offset of the last whitespace rune in window, or -1.
func lastSpace(window string) int {
	return strings.LastIndexFunc(window, unicode.IsSpace)
}

func isTerminal(r rune) bool {
	switch r {
	case '.', '!', '?', '…':
		return true
	}
	return false
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '»', '”', '’':
		return true
	}
	return false
}

// skipSpace returns the first offset >= pos that is not whitespace.
func skipSpace(text string, pos int) int {
	i := strings.IndexFunc(text[pos:], func(r rune) bool { return !unicode.IsSpace(r) })
	if i < 0 {
		return len(text)
	}
	return pos + i
}
