// Package compose turns one newsletter into a structured digest. Small
// texts go straight to a schema-constrained parse; large ones are
// segmented, extracted per chunk, and the surviving summaries parsed as
// one document.
package compose

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/nutshell/internal/core/domain"
	"github.com/lueurxax/nutshell/internal/core/llm"
	"github.com/lueurxax/nutshell/internal/platform/observability"
	"github.com/lueurxax/nutshell/internal/process/extract"
	"github.com/lueurxax/nutshell/internal/process/segment"
)

// summarySeparator joins chunk summaries into the document handed to the
// digest parse.
const summarySeparator = "\n\n---\n\n"

// Composer orchestrates segmentation, extraction, and the digest parse.
type Composer struct {
	client    llm.Client
	extractor *extract.Extractor
	maxChars  int
	logger    *zerolog.Logger
}

// New creates a composer with the given chunk budget.
func New(client llm.Client, extractor *extract.Extractor, maxChars int, logger *zerolog.Logger) *Composer {
	return &Composer{
		client:    client,
		extractor: extractor,
		maxChars:  maxChars,
		logger:    logger,
	}
}

// Compose produces the digest for one newsletter. Text within the chunk
// budget is parsed directly with zero extraction calls. A direct parse
// rejected for payload size falls back to the chunked strategy instead of
// failing the digest.
func (c *Composer) Compose(ctx context.Context, newsletter domain.RawNewsletter) (*domain.NewsletterDigest, error) {
	if strings.TrimSpace(newsletter.Text) == "" {
		return nil, domain.ErrEmptyInput
	}

	chunks := segment.Split(newsletter.Text, c.maxChars)

	if len(chunks) == 1 {
		digest, err := c.client.ParseDigest(ctx, llm.DigestSystemPrompt, newsletter.Text)
		if err == nil {
			return digest, nil
		}

		if !errors.Is(err, domain.ErrPayloadTooLarge) {
			return nil, fmt.Errorf("direct digest parse: %w", err)
		}

		observability.ComposeFallbacks.Inc()
		c.logger.Warn().
			Str("message_id", newsletter.MessageID).
			Msg("direct parse rejected for size, falling back to chunked extraction")
	}

	return c.composeChunked(ctx, chunks)
}

func (c *Composer) composeChunked(ctx context.Context, chunks []domain.Chunk) (*domain.NewsletterDigest, error) {
	summaries := c.extractor.ExtractAll(ctx, chunks)

	joined := JoinSummaries(summaries)
	if joined == "" {
		// Nothing survived extraction, so there is nothing to parse.
		return &domain.NewsletterDigest{ProcessedAt: time.Now().UTC()}, nil
	}

	digest, err := c.client.ParseDigest(ctx, llm.DigestSystemPrompt, joined)
	if err != nil {
		return nil, fmt.Errorf("chunked digest parse: %w", err)
	}

	return digest, nil
}

// JoinSummaries concatenates usable summaries in chunk order with an
// explicit separator, skipping empty and failed chunks.
func JoinSummaries(summaries []domain.ChunkSummary) string {
	parts := make([]string, 0, len(summaries))

	for _, s := range summaries {
		if s.Valid() {
			parts = append(parts, s.Text)
		}
	}

	return strings.Join(parts, summarySeparator)
}
