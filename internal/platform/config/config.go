package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"local"`
	PostgresDSN string `env:"POSTGRES_DSN,required"`
	HealthPort  int    `env:"HEALTH_PORT" envDefault:"8080"`

	// Database pool
	DBMaxConnections    int32         `env:"DB_MAX_CONNECTIONS" envDefault:"25"`
	DBMinConnections    int32         `env:"DB_MIN_CONNECTIONS" envDefault:"5"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBHealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`

	// LLM service
	LLMAPIKey      string        `env:"LLM_API_KEY"`
	LLMBaseURL     string        `env:"LLM_BASE_URL"`
	LLMModel       string        `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	LLMTemperature float32       `env:"LLM_TEMPERATURE" envDefault:"0.1"`
	LLMTimeout     time.Duration `env:"LLM_TIMEOUT" envDefault:"60s"`
	RateLimitRPS   int           `env:"RATE_LIMIT_RPS" envDefault:"1"`

	// Embeddings
	EmbeddingAPIKey           string        `env:"EMBEDDING_API_KEY"`
	EmbeddingModel            string        `env:"EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	EmbeddingDimensions       int           `env:"EMBEDDING_DIMENSIONS" envDefault:"1536"`
	EmbeddingCircuitThreshold int           `env:"EMBEDDING_CIRCUIT_THRESHOLD" envDefault:"5"`
	EmbeddingCircuitTimeout   time.Duration `env:"EMBEDDING_CIRCUIT_TIMEOUT" envDefault:"1m"`

	// Extraction pipeline
	ChunkMaxChars       int     `env:"CHUNK_MAX_CHARS" envDefault:"6000"`
	MinSummaryChars     int     `env:"MIN_SUMMARY_CHARS" envDefault:"20"`
	ExtractConcurrency  int     `env:"EXTRACT_CONCURRENCY" envDefault:"1"`
	ExtractMaxTokens    int     `env:"EXTRACT_MAX_TOKENS" envDefault:"512"`
	MinRelevanceScore   int     `env:"MIN_RELEVANCE_SCORE" envDefault:"5"`
	SimilarityThreshold float32 `env:"SIMILARITY_THRESHOLD" envDefault:"0.85"`

	// Queue worker
	WorkerPollInterval time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"5s"`
	WorkerBatchSize    int           `env:"WORKER_BATCH_SIZE" envDefault:"1"`

	// Feed intake
	FeedURLs         []string      `env:"FEED_URLS" envSeparator:","`
	FeedPollInterval time.Duration `env:"FEED_POLL_INTERVAL" envDefault:"30m"`
	FeedFetchLimit   int           `env:"FEED_FETCH_LIMIT" envDefault:"20"`
}

func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional, error is expected when not present

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	return cfg, nil
}
