package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"golang.org/x/time/rate"

	"github.com/lueurxax/nutshell/internal/core/domain"
	"github.com/lueurxax/nutshell/internal/platform/config"
	"github.com/lueurxax/nutshell/internal/platform/observability"
)

const (
	// llmBreakerThreshold consecutive failures open the circuit for
	// llmBreakerCooldown.
	llmBreakerThreshold = 5
	llmBreakerCooldown  = time.Minute

	// llmBurst lets a chunked newsletter issue a few requests back to
	// back before the per-second limit takes over.
	llmBurst = 5
)

// Metric label values for the two request kinds.
const (
	taskChunk  = "extract_chunk"
	taskDigest = "parse_digest"

	statusOK     = "success"
	statusFailed = "error"
)

type openaiClient struct {
	client       *openai.Client
	model        string
	temperature  float32
	timeout      time.Duration
	logger       *zerolog.Logger
	rateLimiter  *rate.Limiter
	digestSchema *jsonschema.Definition

	// Circuit breaker state
	consecutiveFailures int
	circuitOpenUntil    time.Time
	mu                  sync.Mutex
}

// ErrCircuitBreakerOpen indicates the circuit breaker is open.
var ErrCircuitBreakerOpen = errors.New("circuit breaker is open")

// ErrEmptyCompletion indicates the API returned no choices.
var ErrEmptyCompletion = errors.New("empty completion response")

// parsedDigest mirrors the JSON document the model emits for a digest
// parse. ProcessedAt is stamped locally after parsing.
type parsedDigest struct {
	Source   parsedSource              `json:"source"`
	Insights []domain.InsightCandidate `json:"insights"`
}

// parsedSource keeps url non-optional so every property stays required
// under strict schema mode.
type parsedSource struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// NewOpenAI creates a client for any OpenAI-compatible chat completion
// endpoint (api.openai.com by default, overridable via LLM_BASE_URL).
func NewOpenAI(cfg *config.Config, logger *zerolog.Logger) Client {
	clientCfg := openai.DefaultConfig(cfg.LLMAPIKey)
	if cfg.LLMBaseURL != "" {
		clientCfg.BaseURL = cfg.LLMBaseURL
	}

	schema, err := jsonschema.GenerateSchemaForType(parsedDigest{})
	if err != nil {
		logger.Warn().Err(err).Msg("digest schema generation failed, falling back to json_object mode")

		schema = nil
	}

	return &openaiClient{
		client:       openai.NewClientWithConfig(clientCfg),
		model:        cfg.LLMModel,
		temperature:  cfg.LLMTemperature,
		timeout:      cfg.LLMTimeout,
		logger:       logger,
		rateLimiter:  rate.NewLimiter(rate.Limit(float64(cfg.RateLimitRPS)), llmBurst),
		digestSchema: schema,
	}
}

func (c *openaiClient) checkCircuit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Now().Before(c.circuitOpenUntil) {
		return fmt.Errorf("%w until %v", ErrCircuitBreakerOpen, c.circuitOpenUntil)
	}

	return nil
}

func (c *openaiClient) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutiveFailures = 0
}

func (c *openaiClient) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutiveFailures++
	if c.consecutiveFailures >= llmBreakerThreshold {
		c.circuitOpenUntil = time.Now().Add(llmBreakerCooldown)
		c.logger.Warn().
			Int("consecutive_failures", c.consecutiveFailures).
			Time("open_until", c.circuitOpenUntil).
			Msg("LLM circuit breaker opened")
	}
}

// recordRequest updates circuit breaker state and request metrics.
func (c *openaiClient) recordRequest(task string, start time.Time, err error) {
	observability.LLMRequestDuration.WithLabelValues(c.model, task).Observe(time.Since(start).Seconds())

	status := statusOK

	if err != nil {
		status = statusFailed

		c.recordFailure()
	} else {
		c.recordSuccess()
	}

	observability.LLMRequests.WithLabelValues(c.model, task, status).Inc()
}

func (c *openaiClient) Complete(ctx context.Context, system, user string, temperature float32, maxTokens int) (string, error) {
	if err := c.checkCircuit(); err != nil {
		return "", err
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: system,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: user,
			},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	c.recordRequest(taskChunk, start, err)

	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *openaiClient) ParseDigest(ctx context.Context, system, user string) (*domain.NewsletterDigest, error) {
	if err := c.checkCircuit(); err != nil {
		return nil, err
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: system,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: user,
			},
		},
		Temperature:    c.temperature,
		ResponseFormat: c.responseFormat(),
	})
	c.recordRequest(taskDigest, start, err)

	if err != nil {
		if isPayloadTooLarge(err) {
			return nil, errors.Join(domain.ErrPayloadTooLarge, err)
		}

		return nil, fmt.Errorf("openai chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, ErrEmptyCompletion
	}

	content := resp.Choices[0].Message.Content
	c.logger.Debug().
		Str("task", taskDigest).
		Str("model", c.model).
		Int("content_length", len(content)).
		Msg("LLM digest response")

	return decodeDigest(content)
}

func (c *openaiClient) responseFormat() *openai.ChatCompletionResponseFormat {
	if c.digestSchema == nil {
		return &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	return &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
		JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
			Name:   "newsletter_digest",
			Schema: c.digestSchema,
			Strict: true,
		},
	}
}

// decodeDigest converts raw model output into a digest. "null" and
// zero-insight documents are valid and map to an empty digest.
func decodeDigest(content string) (*domain.NewsletterDigest, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" || trimmed == "null" {
		return &domain.NewsletterDigest{ProcessedAt: time.Now().UTC()}, nil
	}

	var parsed parsedDigest
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return nil, fmt.Errorf("parse digest response: %w", err)
	}

	return &domain.NewsletterDigest{
		Source: domain.NewsletterSource{
			Name: parsed.Source.Name,
			URL:  parsed.Source.URL,
		},
		ProcessedAt: time.Now().UTC(),
		Insights:    parsed.Insights,
	}, nil
}

// isPayloadTooLarge reports whether the API rejected the request for size,
// either via HTTP 413 or a context-length error code.
func isPayloadTooLarge(err error) bool {
	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		return false
	}

	if apiErr.HTTPStatusCode == http.StatusRequestEntityTooLarge {
		return true
	}

	code, ok := apiErr.Code.(string)
	if !ok {
		return false
	}

	switch code {
	case "context_length_exceeded", "string_above_max_length", "tokens_limit_reached":
		return true
	default:
		return false
	}
}

// Ensure openaiClient implements Client interface.
var _ Client = (*openaiClient)(nil)
