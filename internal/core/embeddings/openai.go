package embeddings

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// OpenAI embedding models and their native output widths.
const (
	ModelTextEmbedding3Small = "text-embedding-3-small"
	ModelTextEmbedding3Large = "text-embedding-3-large"

	widthSmall = 1536
	widthLarge = 3072
)

const openaiBurst = 5

// ErrEmptyResponse means the API call succeeded but returned no vectors.
var ErrEmptyResponse = errors.New("empty embedding response")

type openaiProvider struct {
	api     *openai.Client
	m       string
	width   int
	limiter *rate.Limiter
}

func newOpenAIProvider(cfg Config) *openaiProvider {
	m := cfg.Model
	if m == "" {
		m = ModelTextEmbedding3Small
	}

	rps := cfg.RateLimitRPS
	if rps <= 0 {
		rps = 1
	}

	return &openaiProvider{
		api:     openai.NewClient(cfg.APIKey),
		m:       m,
		width:   cfg.Dimensions,
		limiter: rate.NewLimiter(rate.Limit(rps), openaiBurst),
	}
}

func (p *openaiProvider) name() string  { return "openai" }
func (p *openaiProvider) model() string { return p.m }

func (p *openaiProvider) embed(ctx context.Context, text string) ([]float32, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req := openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(p.m),
	}

	// The text-embedding-3 family can emit reduced widths natively, which
	// beats truncating client side.
	if p.width > 0 && p.width < nativeWidth(p.m) {
		req.Dimensions = p.width
	}

	resp, err := p.api.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, ErrEmptyResponse
	}

	return resp.Data[0].Embedding, nil
}

func nativeWidth(model string) int {
	if model == ModelTextEmbedding3Large {
		return widthLarge
	}

	return widthSmall
}
