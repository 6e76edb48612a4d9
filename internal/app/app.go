// Package app provides the main application bootstrap and runtime orchestration.
//
// The App type wires together all dependencies and exposes methods to run
// different operational modes:
//
//   - Serve mode: HTTP intake for the inbound-email webhook and insight reads
//   - Worker mode: Queue pipeline for extraction, filtering, and dedup merge
//   - Feeds mode: RSS/Atom poller mirroring feed entries into the queue
//   - All mode: Every component in one process for small deployments
//
// Each mode can be run independently or combined based on deployment needs.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lueurxax/nutshell/internal/core/embeddings"
	"github.com/lueurxax/nutshell/internal/core/llm"
	"github.com/lueurxax/nutshell/internal/ingest"
	"github.com/lueurxax/nutshell/internal/platform/config"
	"github.com/lueurxax/nutshell/internal/platform/observability"
	"github.com/lueurxax/nutshell/internal/process/compose"
	"github.com/lueurxax/nutshell/internal/process/dedup"
	"github.com/lueurxax/nutshell/internal/process/extract"
	"github.com/lueurxax/nutshell/internal/process/filters"
	"github.com/lueurxax/nutshell/internal/process/pipeline"
	db "github.com/lueurxax/nutshell/internal/storage"
)

const (
	msgFeedPollerStopped = "feed poller stopped"
	logFieldComponent    = "component"
)

// App holds the application dependencies and provides methods to run different modes.
type App struct {
	cfg      *config.Config
	database *db.DB
	logger   *zerolog.Logger
}

// New creates a new App instance with the given dependencies.
func New(cfg *config.Config, database *db.DB, logger *zerolog.Logger) *App {
	return &App{
		cfg:      cfg,
		database: database,
		logger:   logger,
	}
}

// RunServe runs the HTTP intake mode: webhook ingestion, the insight read
// API, and the health endpoints share one listener.
func (a *App) RunServe(ctx context.Context) error {
	a.logger.Info().Msg("Starting serve mode")

	srv := a.newIntakeServer()

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("serve mode: %w", err)
	}

	return nil
}

// RunWorker runs the queue pipeline until the context is canceled.
func (a *App) RunWorker(ctx context.Context) error {
	a.logger.Info().Msg("Starting worker mode")

	p := a.newPipeline()

	if err := p.Run(ctx); err != nil {
		return fmt.Errorf("pipeline run: %w", err)
	}

	return nil
}

// RunFeeds runs the RSS/Atom poller until the context is canceled.
func (a *App) RunFeeds(ctx context.Context) error {
	a.logger.Info().Msg("Starting feeds mode")

	poller := ingest.NewPoller(a.database, a.cfg.FeedURLs, a.cfg.FeedPollInterval, a.cfg.FeedFetchLimit, a.logger)

	if err := poller.Run(ctx); err != nil {
		return fmt.Errorf("feed poller run: %w", err)
	}

	return nil
}

// RunAll runs intake, feeds, and the worker in one process. The feed
// poller and HTTP server run as sidecar goroutines; the pipeline error
// ends the run.
func (a *App) RunAll(ctx context.Context) error {
	a.logger.Info().Msg("Starting all-in-one mode")

	go a.runFeedsSidecar(ctx)

	srv := a.newIntakeServer()

	go func() {
		if err := srv.Start(ctx); err != nil {
			a.logger.Error().Err(err).Msg("http server error")
		}
	}()

	p := a.newPipeline()

	if err := p.Run(ctx); err != nil {
		return fmt.Errorf("pipeline run: %w", err)
	}

	return nil
}

// StartHealthServer starts the health check and metrics server. Worker and
// feeds deployments call this for liveness probes; serve mode mounts the
// intake routes on the same listener instead.
func (a *App) StartHealthServer(ctx context.Context) error {
	srv := observability.NewServer(a.database, a.cfg.HealthPort, a.logger)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("health server start: %w", err)
	}

	return nil
}

// newIntakeServer builds the shared listener with the intake routes
// mounted next to the health and metrics endpoints.
func (a *App) newIntakeServer() *observability.Server {
	srv := observability.NewServer(a.database, a.cfg.HealthPort, a.logger)
	srv.Mount("/", ingest.NewHandler(a.database, a.logger))

	return srv
}

func (a *App) runFeedsSidecar(ctx context.Context) {
	poller := ingest.NewPoller(a.database, a.cfg.FeedURLs, a.cfg.FeedPollInterval, a.cfg.FeedFetchLimit, a.logger)

	if err := poller.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			a.logger.Info().Msg(msgFeedPollerStopped)

			return
		}

		a.logger.Warn().Err(err).Msg(msgFeedPollerStopped)
	}
}

// newPipeline assembles the stage chain behind the queue worker.
func (a *App) newPipeline() *pipeline.Pipeline {
	llmClient := llm.New(a.cfg, a.logger)

	extractor := extract.New(llmClient, extract.Config{
		Concurrency:     a.cfg.ExtractConcurrency,
		Temperature:     a.cfg.LLMTemperature,
		MaxTokens:       a.cfg.ExtractMaxTokens,
		MinSummaryChars: a.cfg.MinSummaryChars,
	}, a.logger)

	composer := compose.New(llmClient, extractor, a.cfg.ChunkMaxChars, a.logger)
	filter := filters.New(a.cfg.MinRelevanceScore, nil)
	engine := dedup.NewEngine(a.database, a.newEmbeddingClient(), a.cfg.SimilarityThreshold, a.logger)

	return pipeline.New(a.cfg, a.database, composer, filter, engine, a.logger)
}

// newEmbeddingClient creates the embedding client for the dedup engine.
// The embedding key falls back to the LLM key so one credential can drive
// both services.
func (a *App) newEmbeddingClient() embeddings.Client {
	logger := a.logger.With().Str(logFieldComponent, "embeddings").Logger()

	apiKey := a.cfg.EmbeddingAPIKey
	if apiKey == "" {
		apiKey = a.cfg.LLMAPIKey
	}

	return embeddings.NewClient(embeddings.Config{
		APIKey:           apiKey,
		Model:            a.cfg.EmbeddingModel,
		Dimensions:       a.cfg.EmbeddingDimensions,
		RateLimitRPS:     a.cfg.RateLimitRPS,
		BreakerThreshold: a.cfg.EmbeddingCircuitThreshold,
		BreakerReset:     a.cfg.EmbeddingCircuitTimeout,
	}, &logger)
}
