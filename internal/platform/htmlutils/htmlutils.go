// Package htmlutils converts newsletter HTML into plain text.
//
// The package handles:
//   - Tag stripping and entity decoding for small HTML fragments
//   - Full-document text extraction with block-level line breaks
package htmlutils

import (
	"html"
	"regexp"
	"strings"

	xhtml "golang.org/x/net/html"
)

var tagRegex = regexp.MustCompile(`<(/?)([a-zA-Z0-9-]+)([^>]*)>`)

// Elements whose text content never belongs in the extracted body.
var skipElements = map[string]bool{
	"script":   true,
	"style":    true,
	"head":     true,
	"title":    true,
	"noscript": true,
}

// Elements that end the current line in the extracted text.
var lineBreakElements = map[string]bool{
	"br": true,
	"li": true,
	"tr": true,
}

// Elements that end the current paragraph in the extracted text.
var paragraphElements = map[string]bool{
	"p":          true,
	"div":        true,
	"blockquote": true,
	"table":      true,
	"ul":         true,
	"ol":         true,
	"hr":         true,
	"section":    true,
	"article":    true,
	"h1":         true,
	"h2":         true,
	"h3":         true,
	"h4":         true,
	"h5":         true,
	"h6":         true,
}

// StripHTMLTags removes all HTML tags from text, keeping only the content.
func StripHTMLTags(text string) string {
	result := tagRegex.ReplaceAllString(text, "")
	result = html.UnescapeString(result)

	return strings.TrimSpace(result)
}

// ExtractText parses an HTML document and returns its visible text.
// Block-level elements become line breaks, paragraph-level elements become
// blank lines, and script/style content is dropped. Whitespace is collapsed
// to single spaces within lines.
func ExtractText(src string) string {
	doc, err := xhtml.Parse(strings.NewReader(src))
	if err != nil {
		return StripHTMLTags(src)
	}

	var sb strings.Builder

	var traverse func(*xhtml.Node)

	traverse = func(n *xhtml.Node) {
		if n.Type == xhtml.ElementNode && skipElements[n.Data] {
			return
		}

		if n.Type == xhtml.TextNode {
			sb.WriteString(n.Data)
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}

		if n.Type == xhtml.ElementNode {
			switch {
			case lineBreakElements[n.Data]:
				sb.WriteString("\n")
			case paragraphElements[n.Data]:
				sb.WriteString("\n\n")
			}
		}
	}

	traverse(doc)

	return normalizeWhitespace(sb.String())
}

// normalizeWhitespace collapses runs of spaces within lines and runs of
// blank lines down to a single blank line.
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := true

	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			if !blank {
				out = append(out, "")
				blank = true
			}

			continue
		}

		out = append(out, strings.Join(fields, " "))
		blank = false
	}

	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}

	return strings.Join(out, "\n")
}
