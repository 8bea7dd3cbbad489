package retrieval

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultChunkSize is the hard character limit per chunk.
	DefaultChunkSize = 1200

	// DefaultOverlap is how many trailing characters of one chunk are
	// carried into the next, so phrases spanning a boundary stay
	// retrievable.
	DefaultOverlap = 150
)

// splitChunks breaks adventure text into overlapping spans. Paragraph
// boundaries are preferred; a paragraph longer than maxLen is hard-split
// at the character limit. Offsets increase strictly in document order
// and are used for stable tie-breaking at query time.
func splitChunks(text string, maxLen, overlap int) []Chunk {
	if maxLen <= 0 {
		maxLen = DefaultChunkSize
	}
	if overlap < 0 || overlap >= maxLen {
		overlap = DefaultOverlap
	}

	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	paragraphs := strings.Split(normalized, "\n\n")

	var chunks []Chunk
	current := ""
	offset := 0

	// flush emits the accumulated chunk. With carry, the tail of the
	// emitted chunk seeds the next one.
	flush := func(carry bool) {
		body := strings.TrimSpace(current)
		if body == "" {
			current = ""
			return
		}
		chunks = append(chunks, Chunk{Offset: offset, Text: body})
		if carry && overlap > 0 && len(body) > overlap {
			cut := runeStart(body, len(body)-overlap)
			current = body[cut:]
			offset += cut
		} else {
			current = ""
			offset += len(body)
		}
	}

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		// Hard-split paragraphs that exceed the limit on their own.
		// The remainder keeps the overlap span, so no carry here.
		for len(para) > maxLen {
			flush(false)
			head := runeStart(para, maxLen)
			current = para[:head]
			adv := head - overlap
			if adv < 1 {
				adv = head
			}
			para = para[runeStart(para, adv):]
			flush(false)
		}

		if current != "" && len(current)+len(para)+2 > maxLen {
			flush(true)
		}
		if current != "" {
			current += "\n\n"
		}
		current += para
	}
	flush(false)

	return chunks
}

// runeStart backs i off to the nearest rune boundary in s, so slicing
// never splits a multi-byte rune. Backing off more than one full rune
// means the bytes are not valid UTF-8; i is then returned unchanged.
func runeStart(s string, i int) int {
	if i <= 0 {
		return 0
	}
	if i >= len(s) {
		return len(s)
	}
	for j := i; j >= 0 && i-j < utf8.UTFMax; j-- {
		if utf8.RuneStart(s[j]) {
			return j
		}
	}
	return i
}
