package dedup

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/nutshell/internal/core/domain"
)

var errEmbedding = errors.New("embedding service down")

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a        []float32
		b        []float32
		expected float32
	}{
		{
			name:     "identical vectors",
			a:        []float32{1, 0, 0},
			b:        []float32{1, 0, 0},
			expected: 1.0,
		},
		{
			name:     "orthogonal vectors",
			a:        []float32{1, 0, 0},
			b:        []float32{0, 1, 0},
			expected: 0.0,
		},
		{
			name:     "opposite vectors",
			a:        []float32{1, 0, 0},
			b:        []float32{-1, 0, 0},
			expected: -1.0,
		},
		{
			name:     "different lengths",
			a:        []float32{1, 0, 0},
			b:        []float32{1, 0},
			expected: 0.0,
		},
		{
			name:     "empty vectors",
			a:        []float32{},
			b:        []float32{},
			expected: 0.0,
		},
		{
			name:     "zero vectors",
			a:        []float32{0, 0, 0},
			b:        []float32{1, 1, 1},
			expected: 0.0,
		},
		{
			name:     "typical similarity",
			a:        []float32{1, 1, 0},
			b:        []float32{1, 0, 0},
			expected: float32(1.0 / math.Sqrt(2.0)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(float64(got-tt.expected)) > 1e-6 {
				t.Errorf("CosineSimilarity() = %v, want %v", got, tt.expected)
			}
		})
	}
}

// fakeEmbedder returns canned vectors per exact text. Unknown text is an
// error so a test cannot silently collide on a default vector.
type fakeEmbedder struct {
	vectors map[string][]float32
	failOn  string
}

func (f *fakeEmbedder) GetEmbedding(_ context.Context, text string) ([]float32, error) {
	if f.failOn != "" && text == f.failOn {
		return nil, errEmbedding
	}

	v, ok := f.vectors[text]
	if !ok {
		return nil, fmt.Errorf("no vector for %q", text)
	}

	return v, nil
}

// fakeIndex is an in-memory Index backed by brute-force cosine search.
type fakeIndex struct {
	records map[string]*domain.StoredInsight
	vectors map[string][]float32
	nextID  int

	queryErr  error
	insertErr error
	patchErr  error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{
		records: make(map[string]*domain.StoredInsight),
		vectors: make(map[string][]float32),
	}
}

func (f *fakeIndex) QueryNearest(_ context.Context, embedding []float32) (string, float32, error) {
	if f.queryErr != nil {
		return "", 0, f.queryErr
	}

	bestID := ""

	var bestSim float32

	for id, vec := range f.vectors {
		sim := CosineSimilarity(embedding, vec)
		if bestID == "" || sim > bestSim {
			bestID = id
			bestSim = sim
		}
	}

	return bestID, bestSim, nil
}

func (f *fakeIndex) GetInsight(_ context.Context, id string) (*domain.StoredInsight, error) {
	rec, ok := f.records[id]
	if !ok {
		return nil, fmt.Errorf("insight %s not found", id)
	}

	copied := *rec

	return &copied, nil
}

func (f *fakeIndex) InsertInsight(_ context.Context, insight *domain.StoredInsight, embedding []float32) (string, error) {
	if f.insertErr != nil {
		return "", f.insertErr
	}

	f.nextID++
	id := fmt.Sprintf("insight-%d", f.nextID)

	stored := *insight
	stored.ID = id
	f.records[id] = &stored
	f.vectors[id] = embedding

	return id, nil
}

func (f *fakeIndex) PatchInsight(_ context.Context, id string, patch *domain.InsightPatch) error {
	if f.patchErr != nil {
		return f.patchErr
	}

	rec, ok := f.records[id]
	if !ok {
		return fmt.Errorf("insight %s not found", id)
	}

	rec.Links = patch.Links
	rec.Tags = patch.Tags
	rec.CompaniesMentioned = patch.CompaniesMentioned
	rec.KeyPeople = patch.KeyPeople
	rec.Sources = patch.Sources
	rec.MentionCount = patch.MentionCount
	rec.Summary = patch.Summary
	rec.Category = patch.Category
	rec.RelevanceScore = patch.RelevanceScore
	rec.FirstSeen = patch.FirstSeen
	rec.LastSeen = patch.LastSeen

	return nil
}

func newTestEngine(index Index, embedder Embedder, threshold float32) *Engine {
	logger := zerolog.Nop()
	return NewEngine(index, embedder, threshold, &logger)
}

func TestBuildPatch(t *testing.T) {
	day1 := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	day2 := time.Date(2025, 3, 13, 8, 0, 0, 0, time.UTC)

	current := &domain.StoredInsight{
		ID:                 "insight-1",
		Headline:           "Vector databases go mainstream",
		Summary:            "Initial coverage",
		RelevanceScore:     8,
		Category:           "Infrastructure",
		Links:              []string{"https://a.example.com", "https://b.example.com"},
		Tags:               []string{"vectors", "databases"},
		CompaniesMentioned: []string{"Qdrant"},
		KeyPeople:          nil,
		Sources: []domain.SourceMetadata{
			{Email: "ai@weekly.com", Subject: "AI Weekly #1", Date: day1},
		},
		MentionCount: 1,
		FirstSeen:    day1,
		LastSeen:     day1,
	}

	incoming := domain.InsightCandidate{
		Headline:           "Vector DBs are everywhere now",
		Summary:            "Deeper analysis",
		RelevanceScore:     6,
		Category:           "Databases",
		Links:              []string{"https://b.example.com", "https://c.example.com"},
		Tags:               []string{"vectors", "search"},
		CompaniesMentioned: []string{"Qdrant", "Pinecone"},
		KeyPeople:          []string{"Andre Zayarni"},
	}

	source := domain.SourceMetadata{Email: "ml@digest.com", Subject: "ML Digest #7", Date: day2}

	patch := BuildPatch(current, incoming, source)

	wantLinks := []string{"https://a.example.com", "https://b.example.com", "https://c.example.com"}
	assertStrings(t, "Links", patch.Links, wantLinks)
	assertStrings(t, "Tags", patch.Tags, []string{"vectors", "databases", "search"})
	assertStrings(t, "CompaniesMentioned", patch.CompaniesMentioned, []string{"Qdrant", "Pinecone"})
	assertStrings(t, "KeyPeople", patch.KeyPeople, []string{"Andre Zayarni"})

	if len(patch.Sources) != 2 {
		t.Fatalf("BuildPatch() sources = %d, want 2", len(patch.Sources))
	}

	if patch.Sources[1].Subject != "ML Digest #7" {
		t.Errorf("BuildPatch() appended source subject = %q, want %q", patch.Sources[1].Subject, "ML Digest #7")
	}

	if patch.MentionCount != 2 {
		t.Errorf("BuildPatch() mention count = %d, want 2", patch.MentionCount)
	}

	if patch.RelevanceScore != 8 {
		t.Errorf("BuildPatch() relevance = %d, want max of 8 and 6", patch.RelevanceScore)
	}

	if patch.Summary != "Deeper analysis" {
		t.Errorf("BuildPatch() summary = %q, want incoming summary", patch.Summary)
	}

	if patch.Category != "Databases" {
		t.Errorf("BuildPatch() category = %q, want incoming category", patch.Category)
	}

	if !patch.FirstSeen.Equal(day1) {
		t.Errorf("BuildPatch() first seen = %v, want %v", patch.FirstSeen, day1)
	}

	if !patch.LastSeen.Equal(day2) {
		t.Errorf("BuildPatch() last seen = %v, want %v", patch.LastSeen, day2)
	}
}

func TestBuildPatch_RedeliveredSource(t *testing.T) {
	day1 := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	current := &domain.StoredInsight{
		Sources: []domain.SourceMetadata{
			{Email: "ai@weekly.com", Subject: "AI Weekly #1", Date: day1},
		},
		MentionCount: 1,
		FirstSeen:    day1,
		LastSeen:     day1,
	}

	redelivered := domain.SourceMetadata{Email: "ai@weekly.com", Subject: "AI Weekly #1", Date: day1.Add(2 * time.Hour)}

	patch := BuildPatch(current, domain.InsightCandidate{}, redelivered)

	if len(patch.Sources) != 1 {
		t.Errorf("BuildPatch() sources = %d, want 1 after redelivery", len(patch.Sources))
	}

	if patch.MentionCount != 1 {
		t.Errorf("BuildPatch() mention count = %d, want 1 after redelivery", patch.MentionCount)
	}

	if !patch.LastSeen.Equal(redelivered.Date) {
		t.Errorf("BuildPatch() last seen = %v, want %v", patch.LastSeen, redelivered.Date)
	}
}

func TestBuildPatch_ZeroFirstSeen(t *testing.T) {
	day := time.Date(2025, 3, 13, 8, 0, 0, 0, time.UTC)
	source := domain.SourceMetadata{Email: "ml@digest.com", Subject: "ML Digest #7", Date: day}

	patch := BuildPatch(&domain.StoredInsight{}, domain.InsightCandidate{}, source)

	if !patch.FirstSeen.Equal(day) {
		t.Errorf("BuildPatch() first seen = %v, want email date %v", patch.FirstSeen, day)
	}
}

func TestEngine_AbsorbInsertsNew(t *testing.T) {
	day := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	index := newFakeIndex()
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"New model sets coding benchmark record": {1, 0, 0},
	}}
	engine := newTestEngine(index, embedder, 0)

	digest := &domain.NewsletterDigest{
		Insights: []domain.InsightCandidate{{
			Headline:       "New model sets coding benchmark record",
			Summary:        "Tops the leaderboard by a wide margin",
			RelevanceScore: 9,
			Category:       "Models",
			Links:          []string{"https://example.com/benchmark"},
		}},
	}
	source := domain.SourceMetadata{Email: "ai@weekly.com", Subject: "AI Weekly #1", Date: day}

	res, err := engine.Absorb(context.Background(), digest, source)
	if err != nil {
		t.Fatalf("Absorb() error = %v", err)
	}

	if res.Inserted != 1 || res.Merged != 0 || res.Failed != 0 {
		t.Fatalf("Absorb() result = %+v, want one insert", res)
	}

	rec, ok := index.records["insight-1"]
	if !ok {
		t.Fatal("Absorb() did not store the record")
	}

	if rec.MentionCount != 1 || len(rec.Sources) != 1 {
		t.Errorf("stored record sources = %d mentions = %d, want 1 and 1", len(rec.Sources), rec.MentionCount)
	}

	if !rec.FirstSeen.Equal(day) || !rec.LastSeen.Equal(day) {
		t.Errorf("stored record first/last seen = %v/%v, want both %v", rec.FirstSeen, rec.LastSeen, day)
	}

	if rec.OriginalSubject != "AI Weekly #1" {
		t.Errorf("stored record original subject = %q, want %q", rec.OriginalSubject, "AI Weekly #1")
	}
}

func TestEngine_AbsorbMergesNearDuplicate(t *testing.T) {
	day1 := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	day2 := time.Date(2025, 3, 13, 8, 0, 0, 0, time.UTC)

	index := newFakeIndex()
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"OpenAI releases structured output mode": {1, 0, 0},
		"OpenAI ships structured outputs":        {0.9, 0.1, 0},
	}}
	engine := newTestEngine(index, embedder, 0)

	first := &domain.NewsletterDigest{
		Insights: []domain.InsightCandidate{{
			Headline:           "OpenAI releases structured output mode",
			Summary:            "Initial coverage",
			RelevanceScore:     8,
			Category:           "Models",
			Links:              []string{"https://a.example.com"},
			Tags:               []string{"llm"},
			CompaniesMentioned: []string{"OpenAI"},
		}},
	}

	if _, err := engine.Absorb(context.Background(), first, domain.SourceMetadata{
		Email: "ai@weekly.com", Subject: "AI Weekly #1", Date: day1,
	}); err != nil {
		t.Fatalf("Absorb() first error = %v", err)
	}

	second := &domain.NewsletterDigest{
		Insights: []domain.InsightCandidate{{
			Headline:           "OpenAI ships structured outputs",
			Summary:            "Deeper analysis with examples",
			RelevanceScore:     9,
			Category:           "Releases",
			Links:              []string{"https://b.example.com"},
			Tags:               []string{"llm", "release"},
			CompaniesMentioned: []string{"OpenAI"},
		}},
	}

	res, err := engine.Absorb(context.Background(), second, domain.SourceMetadata{
		Email: "ml@digest.com", Subject: "ML Digest #7", Date: day2,
	})
	if err != nil {
		t.Fatalf("Absorb() second error = %v", err)
	}

	if res.Merged != 1 || res.Inserted != 0 {
		t.Fatalf("Absorb() result = %+v, want one merge", res)
	}

	if len(index.records) != 1 {
		t.Fatalf("index holds %d records, want 1", len(index.records))
	}

	rec := index.records["insight-1"]

	if rec.Headline != "OpenAI releases structured output mode" {
		t.Errorf("merge changed headline to %q", rec.Headline)
	}

	if rec.Summary != "Deeper analysis with examples" {
		t.Errorf("merged summary = %q, want incoming summary", rec.Summary)
	}

	if rec.RelevanceScore != 9 {
		t.Errorf("merged relevance = %d, want 9", rec.RelevanceScore)
	}

	assertStrings(t, "Links", rec.Links, []string{"https://a.example.com", "https://b.example.com"})
	assertStrings(t, "Tags", rec.Tags, []string{"llm", "release"})

	if rec.MentionCount != 2 || len(rec.Sources) != 2 {
		t.Errorf("merged record sources = %d mentions = %d, want 2 and 2", len(rec.Sources), rec.MentionCount)
	}

	if !rec.FirstSeen.Equal(day1) || !rec.LastSeen.Equal(day2) {
		t.Errorf("merged first/last seen = %v/%v, want %v/%v", rec.FirstSeen, rec.LastSeen, day1, day2)
	}
}

func TestEngine_AbsorbDistinctInsightsBothStored(t *testing.T) {
	day := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	index := newFakeIndex()
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"GPU prices fall":          {1, 0, 0},
		"New robotics lab founded": {0, 1, 0},
	}}
	engine := newTestEngine(index, embedder, 0)

	digest := &domain.NewsletterDigest{
		Insights: []domain.InsightCandidate{
			{Headline: "GPU prices fall", RelevanceScore: 7},
			{Headline: "New robotics lab founded", RelevanceScore: 6},
		},
	}

	res, err := engine.Absorb(context.Background(), digest, domain.SourceMetadata{
		Email: "ai@weekly.com", Subject: "AI Weekly #1", Date: day,
	})
	if err != nil {
		t.Fatalf("Absorb() error = %v", err)
	}

	if res.Inserted != 2 || res.Merged != 0 {
		t.Errorf("Absorb() result = %+v, want two inserts", res)
	}

	if len(index.records) != 2 {
		t.Errorf("index holds %d records, want 2", len(index.records))
	}
}

func TestEngine_AbsorbSiblingDuplicateWithinDigest(t *testing.T) {
	day := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	index := newFakeIndex()
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"Anthropic launches agent platform": {1, 0, 0},
		"Agent platform launch by Anthropic": {0.95, 0.05, 0},
	}}
	engine := newTestEngine(index, embedder, 0)

	// The same story surfaces twice in one digest, e.g. in the intro and
	// again in the body.
	digest := &domain.NewsletterDigest{
		Insights: []domain.InsightCandidate{
			{Headline: "Anthropic launches agent platform", RelevanceScore: 8, Links: []string{"https://a.example.com"}},
			{Headline: "Agent platform launch by Anthropic", RelevanceScore: 6, Links: []string{"https://b.example.com"}},
		},
	}

	res, err := engine.Absorb(context.Background(), digest, domain.SourceMetadata{
		Email: "ai@weekly.com", Subject: "AI Weekly #1", Date: day,
	})
	if err != nil {
		t.Fatalf("Absorb() error = %v", err)
	}

	if res.Inserted != 1 || res.Merged != 1 {
		t.Fatalf("Absorb() result = %+v, want one insert then one merge", res)
	}

	rec := index.records["insight-1"]

	// Both mentions came from the same newsletter, so the source list and
	// mention count must not inflate.
	if rec.MentionCount != 1 || len(rec.Sources) != 1 {
		t.Errorf("sibling merge sources = %d mentions = %d, want 1 and 1", len(rec.Sources), rec.MentionCount)
	}

	if rec.RelevanceScore != 8 {
		t.Errorf("sibling merge relevance = %d, want 8", rec.RelevanceScore)
	}

	assertStrings(t, "Links", rec.Links, []string{"https://a.example.com", "https://b.example.com"})
}

func TestEngine_AbsorbFailureDoesNotBlockSiblings(t *testing.T) {
	day := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	index := newFakeIndex()
	embedder := &fakeEmbedder{
		failOn: "Broken headline",
		vectors: map[string][]float32{
			"Good headline": {1, 0, 0},
		},
	}
	engine := newTestEngine(index, embedder, 0)

	digest := &domain.NewsletterDigest{
		Insights: []domain.InsightCandidate{
			{Headline: "Broken headline", RelevanceScore: 7},
			{Headline: "Good headline", RelevanceScore: 8},
		},
	}

	res, err := engine.Absorb(context.Background(), digest, domain.SourceMetadata{
		Email: "ai@weekly.com", Subject: "AI Weekly #1", Date: day,
	})

	if err == nil {
		t.Fatal("Absorb() error = nil, want per-insight failure surfaced")
	}

	if !errors.Is(err, errEmbedding) {
		t.Errorf("Absorb() error = %v, want wrapped %v", err, errEmbedding)
	}

	if !strings.Contains(err.Error(), "Broken headline") {
		t.Errorf("Absorb() error = %v, want failing headline named", err)
	}

	if res.Failed != 1 || res.Inserted != 1 {
		t.Errorf("Absorb() result = %+v, want one failure and one insert", res)
	}

	if len(index.records) != 1 {
		t.Errorf("index holds %d records, want 1", len(index.records))
	}
}

func TestEngine_AbsorbEmptyDigest(t *testing.T) {
	engine := newTestEngine(newFakeIndex(), &fakeEmbedder{}, 0)

	res, err := engine.Absorb(context.Background(), &domain.NewsletterDigest{}, domain.SourceMetadata{})
	if err != nil {
		t.Fatalf("Absorb() error = %v", err)
	}

	if res.Inserted != 0 || res.Merged != 0 || res.Failed != 0 {
		t.Errorf("Absorb() result = %+v, want zeroes", res)
	}
}

func assertStrings(t *testing.T, field string, got, want []string) {
	t.Helper()

	if len(got) != len(want) {
		t.Errorf("%s = %v, want %v", field, got, want)
		return
	}

	for i := range want {
		if got[i] != want[i] {
			t.Errorf("%s[%d] = %q, want %q", field, i, got[i], want[i])
			return
		}
	}
}
