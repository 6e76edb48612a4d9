// Package llm is the language-model boundary for digest extraction. It
// exposes a small client interface backed by an OpenAI-compatible API,
// with a deterministic mock for keyless runs and tests.
package llm

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/lueurxax/nutshell/internal/core/domain"
	"github.com/lueurxax/nutshell/internal/platform/config"
)

// llmAPIKeyMock is the sentinel key value that forces the mock client.
const llmAPIKeyMock = "mock"

type Client interface {
	// Complete runs a plain completion and returns the raw response text.
	Complete(ctx context.Context, system, user string, temperature float32, maxTokens int) (string, error)

	// ParseDigest runs a schema-constrained completion and parses the
	// response into a digest. A null or empty response yields an empty
	// digest, not an error. A request rejected for size is reported as
	// domain.ErrPayloadTooLarge so callers can switch strategy.
	ParseDigest(ctx context.Context, system, user string) (*domain.NewsletterDigest, error)
}

// New creates the LLM client. Without an API key it returns the mock client
// so the pipeline still runs end to end.
func New(cfg *config.Config, logger *zerolog.Logger) Client {
	if logger == nil {
		nopLogger := zerolog.Nop()
		logger = &nopLogger
	}

	if cfg.LLMAPIKey == "" || cfg.LLMAPIKey == llmAPIKeyMock {
		logger.Warn().Msg("no LLM API key configured, using mock client")

		return NewMock()
	}

	return NewOpenAI(cfg, logger)
}
