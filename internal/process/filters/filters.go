// Package filters drops low-value insights from parsed digests before
// they reach the dedup engine: anything under the relevance floor and
// anything whose headline reads like promotion rather than news.
package filters

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/lueurxax/nutshell/internal/core/domain"
	"github.com/lueurxax/nutshell/internal/platform/observability"
)

// Drop reason codes.
const (
	ReasonLowRelevance = "filter_low_relevance"
	ReasonPromotional  = "filter_promotional"
)

// defaultPromotionalTerms flag headlines that sell rather than inform.
var defaultPromotionalTerms = []string{
	"sponsor",
	"advertisement",
	"subscribe",
	"discount",
	"affiliate",
	"job opening",
	"unsubscribe",
	"follow us",
}

// QualityFilter excludes insights by relevance floor and promotional
// headline vocabulary. Matching is case-insensitive substring.
type QualityFilter struct {
	minRelevance int
	terms        []string
	caser        cases.Caser
}

// New creates a filter with the given relevance floor. An empty term list
// falls back to the default promotional vocabulary.
func New(minRelevance int, terms []string) *QualityFilter {
	if len(terms) == 0 {
		terms = defaultPromotionalTerms
	}

	return &QualityFilter{
		minRelevance: minRelevance,
		terms:        terms,
		caser:        cases.Fold(),
	}
}

// Apply returns a digest holding only the surviving insights, in their
// original order. The input digest is not modified.
func (f *QualityFilter) Apply(digest *domain.NewsletterDigest) *domain.NewsletterDigest {
	if digest == nil {
		return nil
	}

	kept := make([]domain.InsightCandidate, 0, len(digest.Insights))

	for _, insight := range digest.Insights {
		if excluded, reason := f.Excludes(insight); excluded {
			observability.InsightsFiltered.WithLabelValues(reason).Inc()
			continue
		}

		kept = append(kept, insight)
	}

	filtered := *digest
	filtered.Insights = kept

	return &filtered
}

// Excludes reports whether the insight is dropped and the reason code.
func (f *QualityFilter) Excludes(insight domain.InsightCandidate) (bool, string) {
	if insight.RelevanceScore < f.minRelevance {
		return true, ReasonLowRelevance
	}

	folded := f.caser.String(insight.Headline)

	for _, term := range f.terms {
		if strings.Contains(folded, f.caser.String(term)) {
			return true, ReasonPromotional
		}
	}

	return false, ""
}
