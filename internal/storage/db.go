// Package db is the PostgreSQL layer behind the pipeline: the durable
// newsletter queue, the pgvector-backed insight index, and goose-managed
// migrations. Everything speaks pgx; similarity search goes through the
// pgvector cosine distance operator.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"github.com/lueurxax/nutshell/migrations"
)

// Connection retry schedule for startup, when Postgres may still be booting.
const (
	connectAttempts = 10
	connectBackoff  = 2 * time.Second
)

// Advisory lock key serializing migrations across replicas.
const migrateLockKey = 1000

// DB wraps the pgx pool shared by all repository methods.
type DB struct {
	Pool   *pgxpool.Pool
	Logger *zerolog.Logger
}

// PoolOptions tunes the connection pool. Zero fields keep the pgx defaults.
type PoolOptions struct {
	MaxConns          int32
	MinConns          int32
	MaxConnIdleTime   time.Duration
	MaxConnLifetime   time.Duration
	HealthCheckPeriod time.Duration
}

func (o PoolOptions) apply(cfg *pgxpool.Config) {
	if o.MaxConns > 0 {
		cfg.MaxConns = o.MaxConns
	}

	if o.MinConns > 0 {
		cfg.MinConns = o.MinConns
	}

	if o.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = o.MaxConnIdleTime
	}

	if o.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = o.MaxConnLifetime
	}

	if o.HealthCheckPeriod > 0 {
		cfg.HealthCheckPeriod = o.HealthCheckPeriod
	}
}

// Open connects to Postgres and verifies the connection with a ping. It
// retries for a while so a service starting alongside its database does
// not die before the database is ready.
func Open(ctx context.Context, dsn string, opts PoolOptions, logger *zerolog.Logger) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	opts.apply(cfg)

	for attempt := 1; ; attempt++ {
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return &DB{Pool: pool, Logger: logger}, nil
			}

			pool.Close()
		}

		if attempt >= connectAttempts {
			return nil, fmt.Errorf("connect to postgres after %d attempts: %w", attempt, err)
		}

		logger.Warn().Err(err).Int("attempt", attempt).Msg("postgres not ready, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(connectBackoff):
		}
	}
}

// Close releases the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}

// migrateLogger adapts zerolog to the logger goose expects.
type migrateLogger struct {
	logger *zerolog.Logger
}

func (l *migrateLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Fatal().Msgf(format, v...)
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Info().Msgf(format, v...)
}

// Migrate brings the schema up to date. A blocking advisory lock makes
// replicas starting at the same time queue up instead of racing goose.
func (db *DB) Migrate(ctx context.Context) error {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err = conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrateLockKey); err != nil {
		return fmt.Errorf("take migration lock: %w", err)
	}

	defer func() {
		//nolint:errcheck // session end releases the lock anyway
		_, _ = conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrateLockKey)
	}()

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(&migrateLogger{logger: db.Logger})

	if err = goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	sqlDB := stdlib.OpenDB(*db.Pool.Config().ConnConfig)

	defer func() {
		_ = sqlDB.Close()
	}()

	if err = goose.Up(sqlDB, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}
