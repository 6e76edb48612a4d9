package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"

	"github.com/lueurxax/nutshell/internal/core/domain"
	"github.com/lueurxax/nutshell/internal/platform/htmlutils"
	"github.com/lueurxax/nutshell/internal/platform/observability"
	"github.com/lueurxax/nutshell/internal/platform/worker"
	"github.com/lueurxax/nutshell/internal/process/filters"
)

const (
	feedFetchTimeout = 15 * time.Second
	feedUserAgent    = "nutshell/1.0 (+https://github.com/lueurxax/nutshell)"
	headerUserAgent  = "User-Agent"

	// Feed fetch metric statuses.
	fetchStatusOK    = "ok"
	fetchStatusError = "error"

	logFieldFeedURL = "feed_url"
)

// Static errors for err113 compliance.
var errFeedHTTPError = errors.New("HTTP error")

// Poller fetches configured RSS/Atom feeds and enqueues new entries as
// newsletters. Many publications mirror their email issues on a feed, so
// entries flow through the same normalization and queue as inbound mail.
type Poller struct {
	repo       Repository
	httpClient *http.Client
	feedParser *gofeed.Parser
	urls       []string
	interval   time.Duration
	fetchLimit int
	logger     *zerolog.Logger
}

// NewPoller creates a feed poller for the configured URLs.
func NewPoller(repo Repository, urls []string, interval time.Duration, fetchLimit int, logger *zerolog.Logger) *Poller {
	return &Poller{
		repo: repo,
		httpClient: &http.Client{
			Timeout: feedFetchTimeout,
		},
		feedParser: gofeed.NewParser(),
		urls:       urls,
		interval:   interval,
		fetchLimit: fetchLimit,
		logger:     logger,
	}
}

// Run polls all feeds on the configured interval until the context is
// canceled. The first poll happens immediately.
func (p *Poller) Run(ctx context.Context) error {
	if len(p.urls) == 0 {
		p.logger.Info().Msg("No feed URLs configured, feed poller idle")

		<-ctx.Done()

		return ctx.Err()
	}

	return worker.New("feed-poller", p.logger).Tick(ctx, p.interval, true, p.PollAll)
}

// PollAll fetches every configured feed once. Fetch failures are logged
// and counted; one broken feed does not block the others.
func (p *Poller) PollAll(ctx context.Context) {
	for _, feedURL := range p.urls {
		if err := p.pollFeed(ctx, feedURL); err != nil {
			observability.FeedFetches.WithLabelValues(fetchStatusError).Inc()
			p.logger.Warn().Err(err).Str(logFieldFeedURL, feedURL).Msg("Feed fetch failed")

			continue
		}

		observability.FeedFetches.WithLabelValues(fetchStatusOK).Inc()
	}
}

func (p *Poller) pollFeed(ctx context.Context, feedURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set(headerUserAgent, feedUserAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", errFeedHTTPError, resp.StatusCode)
	}

	feed, err := p.feedParser.Parse(resp.Body)
	if err != nil {
		return fmt.Errorf("parse feed: %w", err)
	}

	p.enqueueEntries(ctx, feed)

	return nil
}

// enqueueEntries maps feed items onto newsletter records and enqueues
// them. The unique message ID keeps repeated polls idempotent.
func (p *Poller) enqueueEntries(ctx context.Context, feed *gofeed.Feed) {
	for i, item := range feed.Items {
		if i >= p.fetchLimit {
			break
		}

		newsletter := NewsletterFromFeedItem(feed, item, time.Now())
		if newsletter == nil {
			continue
		}

		inserted, err := p.repo.EnqueueNewsletter(ctx, newsletter)
		if err != nil {
			p.logger.Error().Err(err).Str(logFieldMessageID, newsletter.MessageID).Msg("Failed to enqueue feed entry")

			continue
		}

		if !inserted {
			observability.NewslettersDuplicate.WithLabelValues(adapterFeed).Inc()

			continue
		}

		observability.NewslettersIngested.WithLabelValues(adapterFeed).Inc()
		p.logger.Info().
			Str(logFieldMessageID, newsletter.MessageID).
			Str(logFieldSender, newsletter.Sender).
			Msg("Feed entry queued for processing")
	}
}

// NewsletterFromFeedItem converts one feed entry into the normalized
// newsletter shape: the entry guid becomes the message ID, the feed title
// the sender, the entry title the subject. Returns nil for entries with
// no usable text.
func NewsletterFromFeedItem(feed *gofeed.Feed, item *gofeed.Item, now time.Time) *domain.RawNewsletter {
	body := item.Content
	if body == "" {
		body = item.Description
	}

	text := htmlutils.ExtractText(body)

	text, _ = filters.StripFooter(text)
	if filters.IsContentless(text) {
		return nil
	}

	sender := feed.Title
	if sender == "" {
		sender = defaultSender
	}

	subject := item.Title
	if subject == "" {
		subject = defaultSubject
	}

	var date time.Time

	switch {
	case item.PublishedParsed != nil:
		date = *item.PublishedParsed
	case item.UpdatedParsed != nil:
		date = *item.UpdatedParsed
	default:
		date = now.UTC()
	}

	messageID := item.GUID
	if messageID == "" {
		messageID = item.Link
	}

	if messageID == "" {
		messageID = fingerprint(sender, subject, text)
	}

	return &domain.RawNewsletter{
		Text:      text,
		Sender:    sender,
		Subject:   subject,
		Date:      date,
		MessageID: messageID,
	}
}
