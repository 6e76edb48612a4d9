package pipeline

import (
	"context"

	"github.com/lueurxax/nutshell/internal/platform/observability"
	"github.com/lueurxax/nutshell/internal/platform/worker"
)

// Run polls the queue until ctx is canceled. Claim errors are logged and
// retried on the next tick; only context cancellation ends the loop.
func (p *Pipeline) Run(ctx context.Context) error {
	return worker.New("newsletter-pipeline", p.logger).
		Every(backlogGaugeInterval, "backlog-gauge", p.updateBacklogGauge).
		Every(reclaimInterval, "reclaim-stuck", p.reclaimStuck).
		Poll(ctx, p.pollInterval, p.ProcessNext)
}

// reclaimStuck requeues rows abandoned by a crashed worker.
func (p *Pipeline) reclaimStuck(ctx context.Context) {
	moved, err := p.repo.ReclaimStuckNewsletters(ctx, reclaimStuckAfter, reclaimMaxAttempts)
	if err != nil {
		p.logger.Warn().Err(err).Msg("failed to reclaim stuck newsletters")

		return
	}

	if moved > 0 {
		p.logger.Info().Int("count", moved).Msg("Reclaimed stuck newsletters")
	}
}

func (p *Pipeline) updateBacklogGauge(ctx context.Context) {
	pending, err := p.repo.CountPendingNewsletters(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("failed to count pending newsletters")

		return
	}

	observability.PipelineBacklog.Set(float64(pending))
}
