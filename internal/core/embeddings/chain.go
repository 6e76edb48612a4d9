package embeddings

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/nutshell/internal/platform/observability"
)

// Chain errors.
var (
	// ErrNoProviders means the chain was built without any provider.
	ErrNoProviders = errors.New("no embedding providers configured")

	// ErrProvidersExhausted means every provider in the chain was tried
	// and failed.
	ErrProvidersExhausted = errors.New("all embedding providers failed")

	// ErrBreakerOpen means every provider was skipped on cooldown, so no
	// call was attempted at all.
	ErrBreakerOpen = errors.New("embedding providers in cooldown")
)

// DefaultDimensions matches the insights table vector column.
const DefaultDimensions = 1536

// API key value that forces the mock provider.
const mockAPIKey = "mock"

// provider is one embedding backend in the chain.
type provider interface {
	name() string
	model() string
	embed(ctx context.Context, text string) ([]float32, error)
}

// link pairs a provider with its circuit breaker.
type link struct {
	provider provider
	breaker  *breaker
}

// chain tries providers in registration order, skipping any whose breaker
// is open, and fits the first successful vector to the index width.
type chain struct {
	width  int
	links  []link
	logger *zerolog.Logger
}

func newChain(width int, logger *zerolog.Logger) *chain {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &chain{width: width, logger: logger}
}

func (c *chain) add(p provider, threshold int, reset time.Duration) {
	c.links = append(c.links, link{provider: p, breaker: newBreaker(threshold, reset)})

	setProviderUp(p.name(), true)
	c.logger.Info().
		Str("provider", p.name()).
		Str("model", p.model()).
		Int("dimensions", c.width).
		Msg("registered embedding provider")
}

// GetEmbedding walks the chain until one provider returns a vector.
func (c *chain) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	if len(c.links) == 0 {
		return nil, ErrNoProviders
	}

	var lastErr error

	for i, l := range c.links {
		name := l.provider.name()
		model := l.provider.model()

		if !l.breaker.allow() {
			setProviderUp(name, false)

			continue
		}

		start := time.Now()
		vec, err := l.provider.embed(ctx, text)
		observability.EmbeddingLatency.WithLabelValues(name, model).Observe(time.Since(start).Seconds())

		if err != nil {
			// A canceled caller is not a provider fault: surface it
			// without touching the breaker or trying the next provider.
			if ctx.Err() != nil {
				return nil, err
			}

			observability.EmbeddingRequests.WithLabelValues(name, model, "error").Inc()

			if l.breaker.observe(err) {
				c.logger.Warn().Str("provider", name).Msg("embedding circuit opened")
			}

			lastErr = err

			c.logger.Warn().Err(err).Str("provider", name).Msg("embedding provider failed")

			continue
		}

		l.breaker.observe(nil)
		observability.EmbeddingRequests.WithLabelValues(name, model, "success").Inc()
		setProviderUp(name, true)
		recordUsage(name, model, text)

		if i > 0 {
			primary := c.links[0].provider.name()
			observability.EmbeddingFallbacks.WithLabelValues(primary, name).Inc()
			c.logger.Info().
				Str("provider", name).
				Str("from_provider", primary).
				Msg("used fallback embedding provider")
		}

		return fitWidth(vec, c.width), nil
	}

	if lastErr != nil {
		return nil, errors.Join(ErrProvidersExhausted, lastErr)
	}

	return nil, ErrBreakerOpen
}

// fitWidth pads or truncates vec to width. Zero padding keeps cosine
// similarity intact between vectors from the same embedding space.
func fitWidth(vec []float32, width int) []float32 {
	switch {
	case len(vec) == width:
		return vec
	case len(vec) > width:
		return vec[:width]
	default:
		fitted := make([]float32, width)
		copy(fitted, vec)

		return fitted
	}
}

// Token and cost accounting. Token counts are estimated at roughly four
// characters per token; cost is tracked in millicents.
const (
	charsPerToken = 4

	costSmallPerMillion = 0.02 // USD, text-embedding-3-small
	costLargePerMillion = 0.13 // USD, text-embedding-3-large

	millicentsPerUSD = 100000.0
	tokensPerMillion = 1000000.0
)

func recordUsage(name, model, text string) {
	tokens := (len(text) + charsPerToken - 1) / charsPerToken
	if tokens == 0 {
		return
	}

	observability.EmbeddingTokens.WithLabelValues(name, model).Add(float64(tokens))

	perMillion := 0.0

	switch model {
	case ModelTextEmbedding3Small:
		perMillion = costSmallPerMillion
	case ModelTextEmbedding3Large:
		perMillion = costLargePerMillion
	}

	if perMillion > 0 {
		usd := float64(tokens) / tokensPerMillion * perMillion
		observability.EmbeddingEstimatedCost.WithLabelValues(name, model).Add(usd * millicentsPerUSD)
	}
}

func setProviderUp(name string, up bool) {
	v := 0.0
	if up {
		v = 1.0
	}

	observability.EmbeddingProviderAvailable.WithLabelValues(name).Set(v)
}
