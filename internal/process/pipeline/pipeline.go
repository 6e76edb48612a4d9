// Package pipeline drains the newsletter queue: each claimed row is
// composed into a digest, quality filtered, and folded into the insight
// corpus by the merge engine. Every outcome is written back to the row,
// so the queue doubles as the processing audit trail.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lueurxax/nutshell/internal/core/domain"
	"github.com/lueurxax/nutshell/internal/platform/config"
	"github.com/lueurxax/nutshell/internal/platform/observability"
	"github.com/lueurxax/nutshell/internal/platform/worker"
	"github.com/lueurxax/nutshell/internal/process/compose"
	"github.com/lueurxax/nutshell/internal/process/dedup"
	"github.com/lueurxax/nutshell/internal/process/filters"
	db "github.com/lueurxax/nutshell/internal/storage"
)

// Repository is the queue surface the pipeline needs from storage.
type Repository interface {
	ClaimNextNewsletter(ctx context.Context) (*db.QueuedNewsletter, error)
	UpdateNewsletterStatus(ctx context.Context, id, status, errMsg string) error
	CountPendingNewsletters(ctx context.Context) (int, error)
	ReclaimStuckNewsletters(ctx context.Context, olderThan time.Duration, maxAttempts int) (int, error)
}

var _ Repository = (*db.DB)(nil)

// Composer turns one raw newsletter into a digest of insight candidates.
type Composer interface {
	Compose(ctx context.Context, newsletter domain.RawNewsletter) (*domain.NewsletterDigest, error)
}

var _ Composer = (*compose.Composer)(nil)

// Absorber folds digest insights into the stored corpus, deciding per
// insight between inserting a new record and merging into a neighbor.
type Absorber interface {
	Absorb(ctx context.Context, digest *domain.NewsletterDigest, source domain.SourceMetadata) (dedup.Result, error)
}

var _ Absorber = (*dedup.Engine)(nil)

// Pipeline claims queued newsletters and runs them to a terminal status.
type Pipeline struct {
	repo     Repository
	composer Composer
	filter   *filters.QualityFilter
	engine   Absorber

	pollInterval time.Duration
	batchSize    int

	logger *zerolog.Logger
}

// New wires a pipeline from its stages. Poll interval and batch size come
// from cfg, falling back to package defaults when unset.
func New(
	cfg *config.Config,
	repo Repository,
	composer Composer,
	filter *filters.QualityFilter,
	engine Absorber,
	logger *zerolog.Logger,
) *Pipeline {
	pollInterval := cfg.WorkerPollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	batchSize := cfg.WorkerBatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &Pipeline{
		repo:         repo,
		composer:     composer,
		filter:       filter,
		engine:       engine,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		logger:       logger,
	}
}

// ProcessNext claims and processes up to one batch of newsletters.
// It returns nil when the queue is empty; per-newsletter failures are
// recorded on the row and do not abort the batch.
func (p *Pipeline) ProcessNext(ctx context.Context) error {
	for i := 0; i < p.batchSize; i++ {
		claimed, err := p.repo.ClaimNextNewsletter(ctx)
		if err != nil {
			return fmt.Errorf("claim newsletter: %w", err)
		}

		if claimed == nil {
			return nil
		}

		p.processClaimed(ctx, claimed)
	}

	return nil
}

// processClaimed runs one newsletter to a terminal status and records it.
// A panic leaves the row at processing; the reclaim task requeues it.
func (p *Pipeline) processClaimed(ctx context.Context, claimed *db.QueuedNewsletter) {
	correlationID := uuid.New().String()
	logger := p.logger.With().
		Str(LogFieldCorrelationID, correlationID).
		Str(LogFieldMessageID, claimed.MessageID).
		Str(LogFieldSender, claimed.Sender).
		Logger()

	defer worker.Recover(&logger, "process newsletter")

	start := time.Now()
	status, errMsg := p.runNewsletter(ctx, &logger, claimed)
	elapsed := time.Since(start)

	observability.PipelineProcessed.WithLabelValues(status).Inc()
	observability.PipelineNewsletterDurationSeconds.Observe(elapsed.Seconds())

	if err := p.repo.UpdateNewsletterStatus(ctx, claimed.ID, status, truncateErrMsg(errMsg)); err != nil {
		logger.Error().Err(err).Msg("failed to update newsletter status")
	}

	logger.Info().
		Str(LogFieldStatus, status).
		Dur("duration", elapsed).
		Msg("Newsletter processed")
}

// runNewsletter executes the stage chain for one claimed row and returns
// the terminal status plus an error message for the failed case.
func (p *Pipeline) runNewsletter(ctx context.Context, logger *zerolog.Logger, claimed *db.QueuedNewsletter) (string, string) {
	newsletter := domain.RawNewsletter{
		Text:      claimed.Text,
		Sender:    claimed.Sender,
		Subject:   claimed.Subject,
		Date:      claimed.Date,
		MessageID: claimed.MessageID,
	}

	digest, err := p.composer.Compose(ctx, newsletter)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyInput) {
			logger.Info().Msg("newsletter body is empty, skipping")

			return StatusSkippedEmpty, "empty newsletter body"
		}

		logger.Error().Err(err).Msg("digest composition failed")

		return StatusFailed, err.Error()
	}

	digest = p.filter.Apply(digest)

	if digest.Empty() {
		// No surviving insights is a terminal outcome, not an error: the
		// newsletter simply carried no news worth keeping.
		logger.Info().Msg("no insights extracted")

		return StatusProcessed, ""
	}

	result, err := p.engine.Absorb(ctx, digest, sourceOf(claimed))
	if err != nil {
		logger.Warn().
			Err(err).
			Int("failed", result.Failed).
			Msg("some insights failed to absorb")
	}

	logger.Info().
		Int("extracted", len(digest.Insights)).
		Int("inserted", result.Inserted).
		Int("merged", result.Merged).
		Int("failed", result.Failed).
		Msg("Insights absorbed")

	// A partial failure still counts as processed: the landed insights
	// must not be duplicated by a retry. Only a total loss is retryable.
	if result.Failed > 0 && result.Inserted+result.Merged == 0 {
		return StatusFailed, fmt.Sprintf("all %d insights failed to absorb: %v", result.Failed, err)
	}

	if result.Failed > 0 {
		return StatusProcessed, fmt.Sprintf("%d of %d insights failed to absorb", result.Failed, len(digest.Insights))
	}

	return StatusProcessed, ""
}

// sourceOf builds the merge-engine source record for a claimed row.
// Rows enqueued without a date fall back to claim time so LastSeen
// never regresses to the zero time.
func sourceOf(claimed *db.QueuedNewsletter) domain.SourceMetadata {
	date := claimed.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}

	return domain.SourceMetadata{
		Email:   claimed.Sender,
		Subject: claimed.Subject,
		Date:    date,
	}
}

func truncateErrMsg(msg string) string {
	if len(msg) <= maxStoredErrorMsgChars {
		return msg
	}

	return msg[:maxStoredErrorMsgChars]
}
