package ingest

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/lueurxax/nutshell/internal/core/domain"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func TestParseInbound_PostmarkKeys(t *testing.T) {
	payload := map[string]any{
		"TextBody":  "OpenAI released a new reasoning model today.",
		"From":      "news@aiweekly.example.com",
		"Subject":   "AI Weekly #42",
		"Date":      "Mon, 10 Mar 2025 09:30:00 +0000",
		"MessageID": "msg-123",
	}

	got, err := ParseInbound(payload, testNow)
	if err != nil {
		t.Fatalf("ParseInbound() error = %v", err)
	}

	if got.Text != "OpenAI released a new reasoning model today." {
		t.Errorf("Text = %q", got.Text)
	}

	if got.Sender != "news@aiweekly.example.com" {
		t.Errorf("Sender = %q", got.Sender)
	}

	if got.Subject != "AI Weekly #42" {
		t.Errorf("Subject = %q", got.Subject)
	}

	if got.MessageID != "msg-123" {
		t.Errorf("MessageID = %q", got.MessageID)
	}

	wantDate := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	if !got.Date.Equal(wantDate) {
		t.Errorf("Date = %v, want %v", got.Date, wantDate)
	}
}

func TestParseInbound_LowercaseKeys(t *testing.T) {
	payload := map[string]any{
		"body":    "Anthropic published a new interpretability paper.",
		"from":    "digest@ml.example.org",
		"subject": "ML Digest",
		"date":    "2025-03-09T18:00:00Z",
		"id":      "nylas-abc",
	}

	got, err := ParseInbound(payload, testNow)
	if err != nil {
		t.Fatalf("ParseInbound() error = %v", err)
	}

	if got.Sender != "digest@ml.example.org" {
		t.Errorf("Sender = %q", got.Sender)
	}

	if got.MessageID != "nylas-abc" {
		t.Errorf("MessageID = %q", got.MessageID)
	}

	wantDate := time.Date(2025, 3, 9, 18, 0, 0, 0, time.UTC)
	if !got.Date.Equal(wantDate) {
		t.Errorf("Date = %v, want %v", got.Date, wantDate)
	}
}

func TestParseInbound_CapitalizedKeysWin(t *testing.T) {
	payload := map[string]any{
		"TextBody": "Postmark body text here.",
		"body":     "provider body",
		"From":     "postmark@example.com",
		"from":     "provider@example.com",
	}

	got, err := ParseInbound(payload, testNow)
	if err != nil {
		t.Fatalf("ParseInbound() error = %v", err)
	}

	if got.Text != "Postmark body text here." {
		t.Errorf("Text = %q, want Postmark body", got.Text)
	}

	if got.Sender != "postmark@example.com" {
		t.Errorf("Sender = %q, want postmark@example.com", got.Sender)
	}
}

func TestParseInbound_HTMLBodyFallback(t *testing.T) {
	payload := map[string]any{
		"HtmlBody":  "<html><body><p>DeepMind open sourced a weather model.</p><p>It beats physics baselines.</p></body></html>",
		"From":      "news@example.com",
		"MessageID": "html-1",
	}

	got, err := ParseInbound(payload, testNow)
	if err != nil {
		t.Fatalf("ParseInbound() error = %v", err)
	}

	if !strings.Contains(got.Text, "DeepMind open sourced a weather model.") {
		t.Errorf("Text = %q, want HTML content extracted", got.Text)
	}

	if strings.Contains(got.Text, "<p>") {
		t.Errorf("Text = %q, want tags removed", got.Text)
	}
}

func TestParseInbound_Defaults(t *testing.T) {
	payload := map[string]any{
		"TextBody": "A single line of actual news content.",
	}

	got, err := ParseInbound(payload, testNow)
	if err != nil {
		t.Fatalf("ParseInbound() error = %v", err)
	}

	if got.Sender != defaultSender {
		t.Errorf("Sender = %q, want %q", got.Sender, defaultSender)
	}

	if got.Subject != defaultSubject {
		t.Errorf("Subject = %q, want %q", got.Subject, defaultSubject)
	}

	if !got.Date.Equal(testNow) {
		t.Errorf("Date = %v, want fallback %v", got.Date, testNow)
	}

	if !strings.HasPrefix(got.MessageID, "sha256-") {
		t.Errorf("MessageID = %q, want derived fingerprint", got.MessageID)
	}
}

func TestParseInbound_UnparseableDate(t *testing.T) {
	payload := map[string]any{
		"TextBody": "News body.",
		"Date":     "not a date at all",
	}

	got, err := ParseInbound(payload, testNow)
	if err != nil {
		t.Fatalf("ParseInbound() error = %v", err)
	}

	if !got.Date.Equal(testNow) {
		t.Errorf("Date = %v, want fallback %v", got.Date, testNow)
	}
}

func TestParseInbound_StripsFooter(t *testing.T) {
	payload := map[string]any{
		"TextBody":  "Nvidia shipped new inference hardware.\n\nUnsubscribe from this list\nhttps://list.example.com/unsub",
		"MessageID": "footer-1",
	}

	got, err := ParseInbound(payload, testNow)
	if err != nil {
		t.Fatalf("ParseInbound() error = %v", err)
	}

	if got.Text != "Nvidia shipped new inference hardware." {
		t.Errorf("Text = %q, want footer stripped", got.Text)
	}
}

func TestParseInbound_EmptyPayloads(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
	}{
		{
			name:    "no body keys",
			payload: map[string]any{"From": "a@b.c"},
		},
		{
			name:    "whitespace body",
			payload: map[string]any{"TextBody": "   \n  "},
		},
		{
			name:    "divider only body",
			payload: map[string]any{"TextBody": "----- ***** -----"},
		},
		{
			name:    "footer only body",
			payload: map[string]any{"TextBody": "Unsubscribe from this list\nhttps://list.example.com/unsub"},
		},
		{
			name:    "non-string body",
			payload: map[string]any{"TextBody": 42},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseInbound(tt.payload, testNow)
			if !errors.Is(err, domain.ErrEmptyInput) {
				t.Errorf("ParseInbound() error = %v, want ErrEmptyInput", err)
			}
		})
	}
}

func TestFingerprint(t *testing.T) {
	a := fingerprint("s@x.com", "Subject", "body text")
	b := fingerprint("s@x.com", "Subject", "body text")
	c := fingerprint("s@x.com", "Subject", "different body")

	if a != b {
		t.Errorf("fingerprint() not deterministic: %q != %q", a, b)
	}

	if a == c {
		t.Errorf("fingerprint() collision for different bodies: %q", a)
	}

	if !strings.HasPrefix(a, "sha256-") {
		t.Errorf("fingerprint() = %q, want sha256- prefix", a)
	}
}
