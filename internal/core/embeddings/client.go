// Package embeddings turns insight headlines into vectors for the
// semantic index.
//
// A client is a chain of providers tried in order, each gated by its own
// circuit breaker. Every returned vector is fitted to the width of the
// index's vector column. With no API key configured the chain holds only
// the deterministic mock provider; a mock vector is never used as a
// fallback behind a real provider, because vectors from different
// embedding spaces cannot be compared.
package embeddings

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Client generates embedding vectors. The dedup engine depends on this,
// never on a concrete provider.
type Client interface {
	// GetEmbedding embeds the given text. The returned vector always has
	// the configured width.
	GetEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Config holds the settings for building a client.
type Config struct {
	APIKey       string
	Model        string
	Dimensions   int // width of the index vector column
	RateLimitRPS int

	// Circuit breaker
	BreakerThreshold int
	BreakerReset     time.Duration
}

// NewClient builds the provider chain. Without a usable API key it falls
// back to the mock provider so keyless runs still produce stable vectors.
func NewClient(cfg Config, logger *zerolog.Logger) Client {
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}

	c := newChain(cfg.Dimensions, logger)

	if cfg.APIKey != "" && cfg.APIKey != mockAPIKey {
		c.add(newOpenAIProvider(cfg), cfg.BreakerThreshold, cfg.BreakerReset)

		return c
	}

	logger.Warn().Msg("no embedding API key configured, using mock embeddings")
	c.add(newMockProvider(cfg.Dimensions), cfg.BreakerThreshold, cfg.BreakerReset)

	return c
}
