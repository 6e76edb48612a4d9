package llm

import (
	"context"
	"strings"
	"time"

	"github.com/lueurxax/nutshell/internal/core/domain"
)

// Mock client constants.
const (
	mockRelevanceScore = 7
	mockHeadlineLimit  = 120
	mockSummaryLimit   = 400
	mockSourceName     = "Mock Newsletter"
)

// mockClient implements Client with deterministic responses derived from
// the input text, so the full pipeline runs without an API key.
type mockClient struct{}

// NewMock creates a mock LLM client.
func NewMock() Client {
	return &mockClient{}
}

// Complete returns a condensed version of the input, or the no-updates
// marker for empty input.
func (c *mockClient) Complete(_ context.Context, _, user string, _ float32, _ int) (string, error) {
	trimmed := strings.TrimSpace(user)
	if trimmed == "" {
		return NoUpdatesMarker, nil
	}

	return firstLine(trimmed, mockSummaryLimit), nil
}

// ParseDigest builds a single-insight digest keyed on the input's first
// line. Identical bodies yield identical headlines, which keeps duplicate
// detection reproducible in keyless runs.
func (c *mockClient) ParseDigest(_ context.Context, _, user string) (*domain.NewsletterDigest, error) {
	trimmed := strings.TrimSpace(user)
	if trimmed == "" {
		return &domain.NewsletterDigest{ProcessedAt: time.Now().UTC()}, nil
	}

	return &domain.NewsletterDigest{
		Source:      domain.NewsletterSource{Name: mockSourceName},
		ProcessedAt: time.Now().UTC(),
		Insights: []domain.InsightCandidate{
			{
				Headline:       firstLine(trimmed, mockHeadlineLimit),
				Summary:        firstLine(trimmed, mockSummaryLimit),
				RelevanceScore: mockRelevanceScore,
				Category:       "General",
				Tags:           []string{"mock"},
			},
		},
	}, nil
}

// firstLine returns the first line of text, truncated to limit runes.
func firstLine(text string, limit int) string {
	line := text
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		line = text[:idx]
	}

	line = strings.TrimSpace(line)

	runes := []rune(line)
	if len(runes) > limit {
		return string(runes[:limit])
	}

	return line
}

// Ensure mockClient implements Client interface.
var _ Client = (*mockClient)(nil)
