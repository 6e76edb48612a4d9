package filters

import (
	"strings"
	"unicode"
)

// footerMarkers open the subscription-management block that closes most
// newsletter emails.
var footerMarkers = []string{
	"unsubscribe",
	"manage your subscription",
	"manage preferences",
	"update your preferences",
	"view this email in your browser",
	"view in browser",
	"you are receiving this",
	"you received this email",
	"you're receiving this",
	"sent to ",
	"follow us",
	"share this",
	"forward this",
	"sponsored by",
	"brought to you by",
}

const (
	// maxFooterLines bounds the tail scan: footers run a handful of lines,
	// and a deeper cut risks eating real content.
	maxFooterLines = 12

	// furnitureMaxWords is the longest line still counted as footer
	// furniture: link rows, street addresses and social handles are short,
	// real prose is not.
	furnitureMaxWords = 6
)

// IsContentless reports whether the text has no letters or digits at all,
// for example an emoji-only or divider-only body.
func IsContentless(text string) bool {
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return false
		}
	}

	return true
}

// StripFooter cuts a trailing subscription block off the body. The scan
// walks the tail upward while lines still look like footer furniture and
// cuts at the highest marker found, so the links and postal address under
// an "unsubscribe" line go with it.
func StripFooter(text string) (string, bool) {
	lines := splitLines(text)

	cut := -1
	scanned := 0

	for i := len(lines) - 1; i >= 0 && scanned < maxFooterLines; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}

		scanned++

		if isFooterMarker(line) {
			cut = i

			continue
		}

		if !ridesAlong(line) {
			break
		}
	}

	// A cut at line zero would empty the body; that case belongs to
	// IsFooterOnly.
	if cut <= 0 {
		return text, false
	}

	cleaned := strings.TrimSpace(strings.Join(lines[:cut], "\n"))
	if cleaned == "" {
		return text, false
	}

	return cleaned, true
}

// IsFooterOnly reports whether the body is nothing but subscription
// boilerplate, so there is nothing worth extracting. A body that is a
// bare link does not count: the link may be the content.
func IsFooterOnly(text string) bool {
	sawMarker := false

	for _, line := range splitLines(text) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if isFooterMarker(line) {
			sawMarker = true

			continue
		}

		if !isFooterFurniture(line) {
			return false
		}
	}

	return sawMarker
}

func splitLines(text string) []string {
	return strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
}

func isFooterMarker(line string) bool {
	lower := strings.ToLower(line)
	for _, marker := range footerMarkers {
		if strings.HasPrefix(lower, marker) {
			return true
		}
	}

	return false
}

// isFooterFurniture matches lines that are unambiguous footer filler:
// links, dividers and legal lines.
func isFooterFurniture(line string) bool {
	if looksLikeURL(line) || isDivider(line) {
		return true
	}

	lower := strings.ToLower(line)

	return strings.Contains(lower, "©") || strings.HasPrefix(lower, "copyright")
}

// ridesAlong additionally lets short lines sit inside a footer block:
// street addresses, social handles and link rows are short, real prose
// is not. IsFooterOnly stays on the strict predicate so a terse body is
// never written off as boilerplate.
func ridesAlong(line string) bool {
	return isFooterFurniture(line) || len(strings.Fields(line)) <= furnitureMaxWords
}

func looksLikeURL(line string) bool {
	lower := strings.ToLower(line)

	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "mailto:")
}

// isDivider matches separator lines like ---- or ====.
func isDivider(line string) bool {
	if len(line) < 2 {
		return false
	}

	for _, r := range line {
		if !strings.ContainsRune("-_=*~–—", r) {
			return false
		}
	}

	return true
}
