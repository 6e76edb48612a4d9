package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/nutshell/internal/app"
	"github.com/lueurxax/nutshell/internal/platform/config"
	db "github.com/lueurxax/nutshell/internal/storage"
)

// Service modes. serve exposes the intake API, worker drains the queue,
// feeds polls RSS sources, and all runs the whole product in one process.
const (
	modeServe  = "serve"
	modeWorker = "worker"
	modeFeeds  = "feeds"
	modeAll    = "all"
)

func main() {
	mode := flag.String("mode", modeAll, "service mode: serve, worker, feeds or all")
	flag.Parse()

	if !validMode(*mode) {
		log.Fatalf("Usage: %s --mode=[serve|worker|feeds|all]", os.Args[0])
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(ctx, cfg.PostgresDSN, db.PoolOptions{
		MaxConns:          cfg.DBMaxConnections,
		MinConns:          cfg.DBMinConnections,
		MaxConnIdleTime:   cfg.DBMaxConnIdleTime,
		MaxConnLifetime:   cfg.DBMaxConnLifetime,
		HealthCheckPeriod: cfg.DBHealthCheckPeriod,
	}, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	if err = database.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	application := app.New(cfg, database, &logger)

	// Serve and all-in-one mount their routes on their own listener; the
	// headless modes get a bare health listener for probes.
	if *mode == modeWorker || *mode == modeFeeds {
		go func() {
			if err := application.StartHealthServer(ctx); err != nil {
				logger.Error().Err(err).Msg("health check server error")
			}
		}()
	}

	err = runMode(ctx, application, *mode)

	switch {
	case err == nil, errors.Is(err, context.Canceled):
		logger.Info().Str("mode", *mode).Msg("nutshell stopped")
	default:
		logger.Fatal().Err(err).Msg("nutshell crashed")
	}
}

// newLogger writes JSON in deployment and pretty console lines locally.
func newLogger(appEnv string) zerolog.Logger {
	var out io.Writer = os.Stderr
	if appEnv == "local" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).With().Timestamp().Logger()
}

func validMode(mode string) bool {
	switch mode {
	case modeServe, modeWorker, modeFeeds, modeAll:
		return true
	default:
		return false
	}
}

func runMode(ctx context.Context, application *app.App, mode string) error {
	switch mode {
	case modeServe:
		return application.RunServe(ctx)
	case modeWorker:
		return application.RunWorker(ctx)
	case modeFeeds:
		return application.RunFeeds(ctx)
	default:
		return application.RunAll(ctx)
	}
}
