package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/lueurxax/nutshell/internal/core/domain"
)

// ErrInsightNotFound is returned when a referenced insight record does
// not exist.
var ErrInsightNotFound = errors.New("insight not found")

// InsertInsight stores a first-mention insight with its headline embedding
// and returns the generated record id.
func (db *DB) InsertInsight(ctx context.Context, insight *domain.StoredInsight, embedding []float32) (string, error) {
	sourcesJSON, err := json.Marshal(insight.Sources)
	if err != nil {
		return "", fmt.Errorf("marshal sources: %w", err)
	}

	var id uuid.UUID

	err = db.Pool.QueryRow(ctx, `
		INSERT INTO insights (headline, summary, relevance_score, category,
		                      links, tags, companies_mentioned, key_people,
		                      sources, mention_count, first_seen, last_seen,
		                      original_subject, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`, sanitizeUTF8(insight.Headline), sanitizeUTF8(insight.Summary), insight.RelevanceScore,
		sanitizeUTF8(insight.Category), insight.Links, insight.Tags, insight.CompaniesMentioned,
		insight.KeyPeople, sourcesJSON, insight.MentionCount, toTimestamptz(insight.FirstSeen),
		toTimestamptz(insight.LastSeen), sanitizeUTF8(insight.OriginalSubject),
		pgvector.NewVector(embedding)).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert insight: %w", err)
	}

	return id.String(), nil
}

// QueryNearest returns the stored insight closest to the embedding and its
// cosine similarity. An empty id means the index holds no records.
func (db *DB) QueryNearest(ctx context.Context, embedding []float32) (string, float32, error) {
	if len(embedding) == 0 {
		return "", 0, nil
	}

	var (
		id         uuid.UUID
		similarity float64
	)

	err := db.Pool.QueryRow(ctx, `
		SELECT id, 1 - (embedding <=> $1::vector) AS similarity
		FROM insights
		ORDER BY embedding <=> $1::vector
		LIMIT 1
	`, pgvector.NewVector(embedding)).Scan(&id, &similarity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", 0, nil
		}

		return "", 0, fmt.Errorf("query nearest insight: %w", err)
	}

	return id.String(), float32(similarity), nil
}

// GetInsight loads the full stored record for a merge.
func (db *DB) GetInsight(ctx context.Context, id string) (*domain.StoredInsight, error) {
	var (
		insight     domain.StoredInsight
		recordID    uuid.UUID
		sourcesJSON []byte
	)

	err := db.Pool.QueryRow(ctx, `
		SELECT id, headline, summary, relevance_score, category,
		       links, tags, companies_mentioned, key_people,
		       sources, mention_count, first_seen, last_seen, original_subject
		FROM insights
		WHERE id = $1
	`, toUUID(id)).Scan(
		&recordID, &insight.Headline, &insight.Summary, &insight.RelevanceScore, &insight.Category,
		&insight.Links, &insight.Tags, &insight.CompaniesMentioned, &insight.KeyPeople,
		&sourcesJSON, &insight.MentionCount, &insight.FirstSeen, &insight.LastSeen, &insight.OriginalSubject,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInsightNotFound
		}

		return nil, fmt.Errorf("get insight: %w", err)
	}

	insight.ID = recordID.String()

	if len(sourcesJSON) > 0 {
		if err := json.Unmarshal(sourcesJSON, &insight.Sources); err != nil {
			return nil, fmt.Errorf("unmarshal insight sources: %w", err)
		}
	}

	return &insight, nil
}

// PatchInsight applies the merge patch as a single update touching exactly
// the patched columns.
func (db *DB) PatchInsight(ctx context.Context, id string, patch *domain.InsightPatch) error {
	sourcesJSON, err := json.Marshal(patch.Sources)
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}

	tag, err := db.Pool.Exec(ctx, `
		UPDATE insights
		SET links = $2,
			tags = $3,
			companies_mentioned = $4,
			key_people = $5,
			sources = $6,
			mention_count = $7,
			summary = $8,
			category = $9,
			relevance_score = $10,
			first_seen = $11,
			last_seen = $12,
			updated_at = now()
		WHERE id = $1
	`, toUUID(id), patch.Links, patch.Tags, patch.CompaniesMentioned, patch.KeyPeople,
		sourcesJSON, patch.MentionCount, sanitizeUTF8(patch.Summary), sanitizeUTF8(patch.Category),
		patch.RelevanceScore, toTimestamptz(patch.FirstSeen), toTimestamptz(patch.LastSeen))
	if err != nil {
		return fmt.Errorf("patch insight: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrInsightNotFound
	}

	return nil
}

// ListInsights returns stored insights ordered by mention count then
// recency, optionally restricted to one category.
func (db *DB) ListInsights(ctx context.Context, category string, limit int) ([]domain.StoredInsight, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, headline, summary, relevance_score, category,
		       links, tags, companies_mentioned, key_people,
		       sources, mention_count, first_seen, last_seen, original_subject
		FROM insights
		WHERE ($1 = '' OR category = $1)
		ORDER BY mention_count DESC, last_seen DESC
		LIMIT $2
	`, category, limit)
	if err != nil {
		return nil, fmt.Errorf("list insights: %w", err)
	}
	defer rows.Close()

	insights := []domain.StoredInsight{}

	for rows.Next() {
		var (
			insight     domain.StoredInsight
			recordID    uuid.UUID
			sourcesJSON []byte
		)

		if err := rows.Scan(
			&recordID, &insight.Headline, &insight.Summary, &insight.RelevanceScore, &insight.Category,
			&insight.Links, &insight.Tags, &insight.CompaniesMentioned, &insight.KeyPeople,
			&sourcesJSON, &insight.MentionCount, &insight.FirstSeen, &insight.LastSeen, &insight.OriginalSubject,
		); err != nil {
			return nil, fmt.Errorf("scan insight: %w", err)
		}

		insight.ID = recordID.String()

		if len(sourcesJSON) > 0 {
			if err := json.Unmarshal(sourcesJSON, &insight.Sources); err != nil {
				return nil, fmt.Errorf("unmarshal insight sources: %w", err)
			}
		}

		insights = append(insights, insight)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate insights: %w", rows.Err())
	}

	return insights, nil
}

// CountInsights returns the number of stored insight records.
func (db *DB) CountInsights(ctx context.Context) (int, error) {
	var count int

	err := db.Pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM insights
	`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count insights: %w", err)
	}

	return count, nil
}
