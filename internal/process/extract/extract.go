// Package extract runs per-chunk model extraction behind a bounded
// concurrency gate. Failures never escape a chunk: every outcome is a
// tagged summary, so one bad chunk cannot abort the digest.
package extract

import (
	"context"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/lueurxax/nutshell/internal/core/domain"
	"github.com/lueurxax/nutshell/internal/core/llm"
	"github.com/lueurxax/nutshell/internal/platform/observability"
)

// Metric outcome labels.
const (
	outcomeOK    = "ok"
	outcomeEmpty = "empty"
	outcomeError = "error"
)

const logKeyChunk = "chunk"

// Config bounds the extraction calls.
type Config struct {
	Concurrency     int     // parallel model calls (gate width)
	Temperature     float32 // low for reproducibility
	MaxTokens       int     // output token bound per chunk
	MinSummaryChars int     // responses shorter than this map to empty
}

// Extractor turns chunks into summaries via the language model.
type Extractor struct {
	client llm.Client
	sem    *semaphore.Weighted
	cfg    Config
	logger *zerolog.Logger
}

// New creates an extractor. Concurrency below one is clamped to one.
func New(client llm.Client, cfg Config, logger *zerolog.Logger) *Extractor {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}

	return &Extractor{
		client: client,
		sem:    semaphore.NewWeighted(int64(cfg.Concurrency)),
		cfg:    cfg,
		logger: logger,
	}
}

// Extract runs one chunk through the model and classifies the response.
// A transport or service failure is recorded in the summary, not returned.
func (e *Extractor) Extract(ctx context.Context, chunk domain.Chunk) domain.ChunkSummary {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return e.record(domain.ErrorSummary(chunk.Index, err.Error()))
	}
	defer e.sem.Release(1)

	system := llm.BuildChunkPrompt(chunk.Index, chunk.Total)

	raw, err := e.client.Complete(ctx, system, chunk.Text, e.cfg.Temperature, e.cfg.MaxTokens)
	if err != nil {
		e.logger.Warn().
			Err(err).
			Int(logKeyChunk, chunk.Index).
			Msg("chunk extraction failed")

		return e.record(domain.ErrorSummary(chunk.Index, err.Error()))
	}

	return e.record(e.classify(chunk.Index, raw))
}

// ExtractAll processes every chunk and returns summaries ordered by chunk
// index regardless of completion order. The semaphore inside Extract keeps
// the number of in-flight model calls at the configured width.
func (e *Extractor) ExtractAll(ctx context.Context, chunks []domain.Chunk) []domain.ChunkSummary {
	summaries := make([]domain.ChunkSummary, len(chunks))

	var wg sync.WaitGroup

	for _, chunk := range chunks {
		wg.Add(1)

		go func(c domain.Chunk) {
			defer wg.Done()

			summaries[c.Index] = e.Extract(ctx, c)
		}(chunk)
	}

	wg.Wait()

	return summaries
}

// classify maps the raw response to a tagged summary: the no-updates
// marker or anything under the minimum length means the chunk held no news.
func (e *Extractor) classify(index int, raw string) domain.ChunkSummary {
	trimmed := strings.TrimSpace(raw)

	if strings.Contains(trimmed, llm.NoUpdatesMarker) {
		return domain.EmptySummary(index)
	}

	if utf8.RuneCountInString(trimmed) < e.cfg.MinSummaryChars {
		return domain.EmptySummary(index)
	}

	return domain.OKSummary(index, trimmed)
}

func (e *Extractor) record(summary domain.ChunkSummary) domain.ChunkSummary {
	switch summary.Kind {
	case domain.SummaryOK:
		observability.ChunksExtracted.WithLabelValues(outcomeOK).Inc()
	case domain.SummaryEmpty:
		observability.ChunksExtracted.WithLabelValues(outcomeEmpty).Inc()
	case domain.SummaryError:
		observability.ChunksExtracted.WithLabelValues(outcomeError).Inc()
	}

	return summary
}
