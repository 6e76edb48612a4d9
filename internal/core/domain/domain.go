// Package domain defines the core types flowing through the newsletter
// insight pipeline: the raw inbound newsletter, the chunked intermediate
// forms, the extracted digest, and the persisted insight record.
package domain

import "time"

// RawNewsletter is one inbound newsletter, normalized from the intake payload.
// It is immutable once constructed.
type RawNewsletter struct {
	Text      string
	Sender    string
	Subject   string
	Date      time.Time
	MessageID string
}

// SourceMetadata records one originating newsletter for a stored insight.
type SourceMetadata struct {
	Email   string    `json:"email"`
	Subject string    `json:"subject"`
	Date    time.Time `json:"date"`
}

// InsightCandidate is one structured news item extracted from a newsletter.
// Candidates are immutable once parsed; merging happens on StoredInsight.
type InsightCandidate struct {
	Headline           string   `json:"headline"`
	Summary            string   `json:"summary"`
	RelevanceScore     int      `json:"relevance_score"`
	Category           string   `json:"category"`
	Links              []string `json:"links"`
	Tags               []string `json:"tags"`
	CompaniesMentioned []string `json:"companies_mentioned"`
	KeyPeople          []string `json:"key_people"`
}

// NewsletterSource identifies the publication a digest was extracted from.
type NewsletterSource struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// NewsletterDigest is the set of insights extracted from one newsletter.
type NewsletterDigest struct {
	Source      NewsletterSource   `json:"source"`
	ProcessedAt time.Time          `json:"processed_at"`
	Insights    []InsightCandidate `json:"insights"`
}

// Empty reports whether the digest carries no insights.
func (d *NewsletterDigest) Empty() bool {
	return d == nil || len(d.Insights) == 0
}

// StoredInsight is the persisted record for one news item. It is created once
// and afterwards only patched; repeated mentions fold into the same record.
//
// Invariants: MentionCount == len(Sources); FirstSeen <= LastSeen; list fields
// hold no duplicates and preserve first-seen order; RelevanceScore never
// decreases across merges.
type StoredInsight struct {
	ID                 string
	Headline           string
	Summary            string
	RelevanceScore     int
	Category           string
	Links              []string
	Tags               []string
	CompaniesMentioned []string
	KeyPeople          []string
	Sources            []SourceMetadata
	MentionCount       int
	FirstSeen          time.Time
	LastSeen           time.Time
	OriginalSubject    string
}

// InsightPatch is the partial update computed on the merge path. Exactly these
// fields are written; anything else on the stored record stays untouched.
type InsightPatch struct {
	Links              []string
	Tags               []string
	CompaniesMentioned []string
	KeyPeople          []string
	Sources            []SourceMetadata
	MentionCount       int
	Summary            string
	Category           string
	RelevanceScore     int
	FirstSeen          time.Time
	LastSeen           time.Time
}
