// Package segment splits newsletter text into bounded chunks for
// extraction. Splitting is deterministic: byte-exact units, source order,
// one-unit overlap between neighboring chunks for local context.
package segment

import (
	"strings"
	"unicode/utf8"

	"github.com/lueurxax/nutshell/internal/core/domain"
)

const paragraphSeparator = "\n\n"

// Split segments text into chunks of at most maxChars characters. Text
// that already fits comes back as a single chunk with no overhead.
// Larger text is packed greedily on paragraph boundaries; a paragraph
// that alone exceeds the budget is packed on sentence boundaries
// instead. A single sentence over the budget stays atomic, so only
// atomic units can produce an oversized chunk.
func Split(text string, maxChars int) []domain.Chunk {
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return []domain.Chunk{{Text: text, Index: 0, Total: 1}}
	}

	units := make([]string, 0)

	for _, paragraph := range splitParagraphs(text) {
		if utf8.RuneCountInString(paragraph) > maxChars {
			units = append(units, splitSentences(paragraph)...)
			continue
		}

		units = append(units, paragraph)
	}

	return pack(units, maxChars)
}

// pack greedily fills chunks from units, seeding each new chunk with the
// unit that closed the previous one when it leaves room for fresh content.
// Every unit lands in exactly one chunk as fresh content, which keeps the
// concatenation property intact.
func pack(units []string, maxChars int) []domain.Chunk {
	chunks := make([]domain.Chunk, 0, len(units))

	var (
		cur      strings.Builder
		curRunes int
		overlap  int
		prevUnit string
	)

	flush := func() {
		if cur.Len() == 0 {
			return
		}

		chunks = append(chunks, domain.Chunk{Text: cur.String(), Overlap: overlap})
		cur.Reset()

		curRunes = 0
		overlap = 0
	}

	for _, unit := range units {
		unitRunes := utf8.RuneCountInString(unit)

		if unitRunes > maxChars {
			// Atomic unit over budget gets a chunk of its own.
			flush()
			chunks = append(chunks, domain.Chunk{Text: unit})
			prevUnit = unit

			continue
		}

		if cur.Len() > 0 && curRunes+unitRunes > maxChars {
			flush()

			if seedRunes := utf8.RuneCountInString(prevUnit); prevUnit != "" && seedRunes+unitRunes <= maxChars {
				cur.WriteString(prevUnit)

				curRunes = seedRunes
				overlap = len(prevUnit)
			}
		}

		cur.WriteString(unit)

		curRunes += unitRunes
		prevUnit = unit
	}

	flush()

	for i := range chunks {
		chunks[i].Index = i
		chunks[i].Total = len(chunks)
	}

	return chunks
}

// splitParagraphs splits on blank lines, each piece keeping its trailing
// separator so concatenating the pieces reproduces the input byte for byte.
func splitParagraphs(text string) []string {
	parts := strings.SplitAfter(text, paragraphSeparator)

	paragraphs := parts[:0]

	for _, p := range parts {
		if p != "" {
			paragraphs = append(paragraphs, p)
		}
	}

	return paragraphs
}

// splitSentences splits after sentence terminators followed by whitespace,
// the whitespace run staying with the sentence it closes. Pieces
// concatenate back to the input byte for byte.
func splitSentences(text string) []string {
	var sentences []string

	start := 0

	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '.' && c != '!' && c != '?' {
			continue
		}

		end := i + 1
		for end < len(text) && (text[end] == ' ' || text[end] == '\n' || text[end] == '\t') {
			end++
		}

		if end == i+1 {
			// Terminator not followed by whitespace, e.g. "3.5" or "e.g.".
			continue
		}

		sentences = append(sentences, text[start:end])

		start = end
		i = end - 1
	}

	if start < len(text) {
		sentences = append(sentences, text[start:])
	}

	return sentences
}
