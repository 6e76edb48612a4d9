package filters

import (
	"testing"

	"github.com/lueurxax/nutshell/internal/core/domain"
)

func TestQualityFilter_Excludes(t *testing.T) {
	tests := []struct {
		name         string
		minRelevance int
		insight      domain.InsightCandidate
		excluded     bool
		reason       string
	}{
		{
			name:         "keeps relevant insight",
			minRelevance: 5,
			insight:      domain.InsightCandidate{Headline: "OpenAI ships structured outputs", RelevanceScore: 8},
			excluded:     false,
		},
		{
			name:         "drops below floor",
			minRelevance: 5,
			insight:      domain.InsightCandidate{Headline: "Minor patch release notes", RelevanceScore: 4},
			excluded:     true,
			reason:       ReasonLowRelevance,
		},
		{
			name:         "keeps insight exactly at floor",
			minRelevance: 5,
			insight:      domain.InsightCandidate{Headline: "Minor patch release notes", RelevanceScore: 5},
			excluded:     false,
		},
		{
			name:         "drops sponsor headline despite high score",
			minRelevance: 5,
			insight:      domain.InsightCandidate{Headline: "Our Sponsor: CloudCo raises the bar", RelevanceScore: 10},
			excluded:     true,
			reason:       ReasonPromotional,
		},
		{
			name:         "promotional match is case-insensitive",
			minRelevance: 5,
			insight:      domain.InsightCandidate{Headline: "SUBSCRIBE now for premium picks", RelevanceScore: 9},
			excluded:     true,
			reason:       ReasonPromotional,
		},
		{
			name:         "relevance floor checked before vocabulary",
			minRelevance: 5,
			insight:      domain.InsightCandidate{Headline: "Sponsor spotlight", RelevanceScore: 2},
			excluded:     true,
			reason:       ReasonLowRelevance,
		},
		{
			name:         "multi word term matches",
			minRelevance: 5,
			insight:      domain.InsightCandidate{Headline: "Job Opening: senior platform engineer", RelevanceScore: 8},
			excluded:     true,
			reason:       ReasonPromotional,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.minRelevance, nil)

			excluded, reason := f.Excludes(tt.insight)
			if excluded != tt.excluded {
				t.Errorf("Excludes() = %v, want %v", excluded, tt.excluded)
			}

			if reason != tt.reason {
				t.Errorf("Excludes() reason = %q, want %q", reason, tt.reason)
			}
		})
	}
}

func TestQualityFilter_Apply(t *testing.T) {
	digest := &domain.NewsletterDigest{
		Source: domain.NewsletterSource{Name: "AI Weekly"},
		Insights: []domain.InsightCandidate{
			{Headline: "DeepMind open sources weather model", RelevanceScore: 9},
			{Headline: "Discount on GPU credits this week", RelevanceScore: 8},
			{Headline: "Postgres adds async IO support", RelevanceScore: 7},
			{Headline: "Community roundup", RelevanceScore: 3},
		},
	}

	f := New(5, nil)

	got := f.Apply(digest)

	want := []string{"DeepMind open sources weather model", "Postgres adds async IO support"}
	if len(got.Insights) != len(want) {
		t.Fatalf("Apply() kept %d insights, want %d", len(got.Insights), len(want))
	}

	for i, headline := range want {
		if got.Insights[i].Headline != headline {
			t.Errorf("Apply() insight %d = %q, want %q", i, got.Insights[i].Headline, headline)
		}
	}

	if len(digest.Insights) != 4 {
		t.Errorf("Apply() modified the input digest, now holds %d insights", len(digest.Insights))
	}
}

func TestQualityFilter_ApplyNil(t *testing.T) {
	f := New(5, nil)
	if got := f.Apply(nil); got != nil {
		t.Errorf("Apply(nil) = %v, want nil", got)
	}
}

func TestQualityFilter_CustomTerms(t *testing.T) {
	f := New(1, []string{"webinar"})

	excluded, reason := f.Excludes(domain.InsightCandidate{Headline: "Join our Webinar tomorrow", RelevanceScore: 9})
	if !excluded || reason != ReasonPromotional {
		t.Errorf("Excludes() = %v, %q, want true, %q", excluded, reason, ReasonPromotional)
	}

	excluded, _ = f.Excludes(domain.InsightCandidate{Headline: "Sponsor spotlight", RelevanceScore: 9})
	if excluded {
		t.Error("Excludes() dropped a headline outside the custom vocabulary")
	}
}
