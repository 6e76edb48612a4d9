// Package ingest receives newsletters over the inbound-email webhook and
// RSS/Atom feed mirrors, normalizes them into raw newsletter records, and
// enqueues them for asynchronous pipeline processing. It also serves the
// insights read API.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	readability "github.com/go-shiori/go-readability"

	"github.com/lueurxax/nutshell/internal/core/domain"
	"github.com/lueurxax/nutshell/internal/platform/htmlutils"
	"github.com/lueurxax/nutshell/internal/process/filters"
)

// Payload keys for the two inbound conventions: capitalized Postmark-style
// keys and the lowercase keys other providers normalize to.
var (
	textKeys      = []string{"TextBody", "body"}
	htmlKeys      = []string{"HtmlBody", "html_body"}
	senderKeys    = []string{"From", "from"}
	subjectKeys   = []string{"Subject", "subject"}
	dateKeys      = []string{"Date", "date"}
	messageIDKeys = []string{"MessageID", "id"}
)

const (
	defaultSender  = "unknown@unknown.com"
	defaultSubject = "No Subject"

	// Base URL handed to readability for resolving relative links in
	// HTML email bodies, which carry no real document URL.
	inboundBaseURL = "https://inbound.invalid/"
)

// ParseInbound normalizes a raw webhook payload into a RawNewsletter.
// When the payload carries no plain-text body, the HTML body is converted
// to text. Subscription footers are stripped before the content check.
// Returns ErrEmptyInput when no usable body text remains.
func ParseInbound(payload map[string]any, now time.Time) (*domain.RawNewsletter, error) {
	text := stringField(payload, textKeys...)
	if text == "" {
		if htmlBody := stringField(payload, htmlKeys...); htmlBody != "" {
			text = htmlToText(htmlBody)
		}
	}

	text, _ = filters.StripFooter(text)
	if filters.IsContentless(text) || filters.IsFooterOnly(text) {
		return nil, domain.ErrEmptyInput
	}

	sender := stringField(payload, senderKeys...)
	if sender == "" {
		sender = defaultSender
	}

	subject := stringField(payload, subjectKeys...)
	if subject == "" {
		subject = defaultSubject
	}

	date := parseDate(stringField(payload, dateKeys...))
	if date.IsZero() {
		date = now.UTC()
	}

	messageID := stringField(payload, messageIDKeys...)
	if messageID == "" {
		messageID = fingerprint(sender, subject, text)
	}

	return &domain.RawNewsletter{
		Text:      text,
		Sender:    sender,
		Subject:   subject,
		Date:      date,
		MessageID: messageID,
	}, nil
}

// stringField returns the first non-empty string value among keys.
func stringField(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := payload[key].(string); ok {
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				return trimmed
			}
		}
	}

	return ""
}

// htmlToText converts an HTML email body to plain text. Readability
// recovers the main content from heavily templated newsletters; plain
// DOM text extraction covers documents readability cannot handle.
func htmlToText(src string) string {
	u, _ := url.Parse(inboundBaseURL)

	article, err := readability.FromReader(strings.NewReader(src), u)
	if err == nil {
		if text := strings.TrimSpace(article.TextContent); text != "" {
			return text
		}
	}

	return htmlutils.ExtractText(src)
}

// fingerprint derives a stable message ID for payloads that carry none,
// so redelivered copies still collapse onto one queue row.
func fingerprint(sender, subject, text string) string {
	h := sha256.Sum256([]byte(sender + "\x00" + subject + "\x00" + text))

	return "sha256-" + hex.EncodeToString(h[:])
}

func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}

	t, err := dateparse.ParseAny(s)
	if err != nil {
		return time.Time{}
	}

	return t
}
