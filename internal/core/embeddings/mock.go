package embeddings

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
)

// mockProvider derives a unit vector from the hash of the input text. The
// same headline always maps to the same vector, so duplicate detection
// behaves predictably in tests and keyless runs.
type mockProvider struct {
	width int
}

func newMockProvider(width int) *mockProvider {
	if width <= 0 {
		width = DefaultDimensions
	}

	return &mockProvider{width: width}
}

func (p *mockProvider) name() string  { return "mock" }
func (p *mockProvider) model() string { return "mock" }

func (p *mockProvider) embed(_ context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text)) // fnv.Write never fails

	//nolint:gosec // seeding wants the raw bit pattern, wraparound is fine
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	vec := make([]float32, p.width)
	for i := range vec {
		vec[i] = float32(rng.Float64()*2 - 1)
	}

	return unit(vec), nil
}

// unit scales the vector to unit length so mock similarities fall in the
// same range as real cosine scores.
func unit(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}

	if sum == 0 {
		return vec
	}

	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}

	return vec
}
