package ingest

import (
	"context"

	"github.com/lueurxax/nutshell/internal/core/domain"
	db "github.com/lueurxax/nutshell/internal/storage"
)

// Repository defines the storage operations required by the intake surfaces.
type Repository interface {
	// Queue operations
	EnqueueNewsletter(ctx context.Context, n *domain.RawNewsletter) (bool, error)
	GetNewsletterQueueStats(ctx context.Context) ([]db.QueueStat, error)

	// Insight read model
	ListInsights(ctx context.Context, category string, limit int) ([]domain.StoredInsight, error)
	CountInsights(ctx context.Context) (int, error)
}

// Compile-time assertion that *db.DB implements Repository.
var _ Repository = (*db.DB)(nil)
