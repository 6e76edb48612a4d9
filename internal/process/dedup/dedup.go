// Package dedup folds extracted insights into the stored index. Each
// candidate headline is embedded and compared against the nearest stored
// record; a close enough match merges into it, anything else becomes a
// new record.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/lueurxax/nutshell/internal/core/domain"
	"github.com/lueurxax/nutshell/internal/platform/observability"
)

// DefaultThreshold is the cosine similarity above which a candidate
// headline is treated as a repeat mention of a stored insight.
const DefaultThreshold = 0.85

// Persistence path labels.
const (
	pathInserted = "inserted"
	pathMerged   = "merged"
)

// Log key constants.
const (
	logKeyHeadline  = "headline"
	logKeyInsightID = "insight_id"
)

// Embedder produces the vector for a candidate headline.
type Embedder interface {
	GetEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Index is the stored insight corpus. QueryNearest returns the single
// closest record with its similarity, or an empty id when the index holds
// nothing.
type Index interface {
	QueryNearest(ctx context.Context, embedding []float32) (string, float32, error)
	GetInsight(ctx context.Context, id string) (*domain.StoredInsight, error)
	InsertInsight(ctx context.Context, insight *domain.StoredInsight, embedding []float32) (string, error)
	PatchInsight(ctx context.Context, id string, patch *domain.InsightPatch) error
}

// Engine decides merge-or-insert per candidate. Candidates are processed
// strictly in order; the read-then-patch on a matched record is not safe
// against a second engine racing the same headline, serialization comes
// from the single-worker queue.
type Engine struct {
	index     Index
	embedder  Embedder
	threshold float32
	logger    *zerolog.Logger
}

// Result counts the outcome per digest.
type Result struct {
	Inserted int
	Merged   int
	Failed   int
}

func NewEngine(index Index, embedder Embedder, threshold float32, logger *zerolog.Logger) *Engine {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	return &Engine{
		index:     index,
		embedder:  embedder,
		threshold: threshold,
		logger:    logger,
	}
}

// Absorb folds every insight of the digest into the index. A failure on
// one insight does not block its siblings; the returned error joins every
// per-insight failure, alongside the counts of what did land.
func (e *Engine) Absorb(ctx context.Context, digest *domain.NewsletterDigest, source domain.SourceMetadata) (Result, error) {
	var (
		res  Result
		errs []error
	)

	if digest.Empty() {
		return res, nil
	}

	for i := range digest.Insights {
		incoming := digest.Insights[i]

		merged, err := e.absorbOne(ctx, incoming, source)
		if err != nil {
			res.Failed++

			errs = append(errs, fmt.Errorf("insight %q: %w", incoming.Headline, err))
			observability.InsightFailures.Inc()
			e.logger.Warn().
				Err(err).
				Str(logKeyHeadline, incoming.Headline).
				Msg("failed to absorb insight")

			continue
		}

		if merged {
			res.Merged++
		} else {
			res.Inserted++
		}
	}

	return res, errors.Join(errs...)
}

func (e *Engine) absorbOne(ctx context.Context, incoming domain.InsightCandidate, source domain.SourceMetadata) (bool, error) {
	vector, err := e.embedder.GetEmbedding(ctx, incoming.Headline)
	if err != nil {
		return false, fmt.Errorf("embed headline: %w", err)
	}

	id, similarity, err := e.index.QueryNearest(ctx, vector)
	if err != nil {
		return false, fmt.Errorf("query nearest: %w", err)
	}

	if id != "" && similarity >= e.threshold {
		if err := e.merge(ctx, id, incoming, source); err != nil {
			return false, err
		}

		return true, nil
	}

	if err := e.insert(ctx, incoming, source, vector); err != nil {
		return false, err
	}

	return false, nil
}

func (e *Engine) merge(ctx context.Context, id string, incoming domain.InsightCandidate, source domain.SourceMetadata) error {
	current, err := e.index.GetInsight(ctx, id)
	if err != nil {
		return fmt.Errorf("get insight: %w", err)
	}

	patch := BuildPatch(current, incoming, source)

	if err := e.index.PatchInsight(ctx, id, patch); err != nil {
		return fmt.Errorf("patch insight: %w", err)
	}

	observability.InsightsPersisted.WithLabelValues(pathMerged).Inc()
	e.logger.Info().
		Str(logKeyInsightID, id).
		Str(logKeyHeadline, incoming.Headline).
		Int("mention_count", patch.MentionCount).
		Int("relevance", patch.RelevanceScore).
		Msg("merged insight")

	return nil
}

func (e *Engine) insert(ctx context.Context, incoming domain.InsightCandidate, source domain.SourceMetadata, vector []float32) error {
	record := NewRecord(incoming, source)

	id, err := e.index.InsertInsight(ctx, record, vector)
	if err != nil {
		return fmt.Errorf("insert insight: %w", err)
	}

	observability.InsightsPersisted.WithLabelValues(pathInserted).Inc()
	e.logger.Info().
		Str(logKeyInsightID, id).
		Str(logKeyHeadline, incoming.Headline).
		Str("category", incoming.Category).
		Int("relevance", incoming.RelevanceScore).
		Msg("new insight")

	return nil
}

// NewRecord builds the stored record for a first-mention candidate.
func NewRecord(incoming domain.InsightCandidate, source domain.SourceMetadata) *domain.StoredInsight {
	return &domain.StoredInsight{
		Headline:           incoming.Headline,
		Summary:            incoming.Summary,
		RelevanceScore:     incoming.RelevanceScore,
		Category:           incoming.Category,
		Links:              incoming.Links,
		Tags:               incoming.Tags,
		CompaniesMentioned: incoming.CompaniesMentioned,
		KeyPeople:          incoming.KeyPeople,
		Sources:            []domain.SourceMetadata{source},
		MentionCount:       1,
		FirstSeen:          source.Date,
		LastSeen:           source.Date,
		OriginalSubject:    source.Subject,
	}
}

// BuildPatch computes the partial update that folds an incoming candidate
// into the stored record. Only the fields of the returned patch are
// written; everything else on the record stays as it was.
//
// List fields union existing-first with first-seen order. The source is
// appended only when no recorded source carries the same subject, so a
// redelivered newsletter cannot inflate the mention count. Summary and
// category take the incoming values, relevance keeps the maximum, and
// LastSeen always advances to the incoming date.
func BuildPatch(current *domain.StoredInsight, incoming domain.InsightCandidate, source domain.SourceMetadata) *domain.InsightPatch {
	sources := current.Sources
	if !hasSubject(sources, source.Subject) {
		sources = append(append([]domain.SourceMetadata(nil), current.Sources...), source)
	}

	firstSeen := current.FirstSeen
	if firstSeen.IsZero() {
		firstSeen = source.Date
	}

	return &domain.InsightPatch{
		Links:              unionStrings(current.Links, incoming.Links),
		Tags:               unionStrings(current.Tags, incoming.Tags),
		CompaniesMentioned: unionStrings(current.CompaniesMentioned, incoming.CompaniesMentioned),
		KeyPeople:          unionStrings(current.KeyPeople, incoming.KeyPeople),
		Sources:            sources,
		MentionCount:       len(sources),
		Summary:            incoming.Summary,
		Category:           incoming.Category,
		RelevanceScore:     max(current.RelevanceScore, incoming.RelevanceScore),
		FirstSeen:          firstSeen,
		LastSeen:           source.Date,
	}
}

func hasSubject(sources []domain.SourceMetadata, subject string) bool {
	for _, s := range sources {
		if s.Subject == subject {
			return true
		}
	}

	return false
}

// unionStrings merges two lists preserving first-seen order and dropping
// duplicates, existing entries first.
func unionStrings(existing, incoming []string) []string {
	merged := make([]string, 0, len(existing)+len(incoming))
	seen := make(map[string]struct{}, len(existing)+len(incoming))

	for _, list := range [][]string{existing, incoming} {
		for _, item := range list {
			if _, ok := seen[item]; ok {
				continue
			}

			seen[item] = struct{}{}

			merged = append(merged, item)
		}
	}

	return merged
}

// CosineSimilarity mirrors the ordering the index uses for QueryNearest.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float32

	for i := 0; i < len(a); i++ {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
}
