// Package worker drives the background loops behind the intake queue and
// the feed poller. A Runner owns one named loop, either poll-shaped with
// side jobs piggybacked on the iterations, or ticker-shaped for
// coarse-interval work.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Task is one unit of loop work. Implementations return quickly when
// there is nothing to do.
type Task func(ctx context.Context) error

// chore is a side job sharing the runner's loop. It fires when the loop
// passes its deadline, so the effective period is never shorter than the
// poll interval.
type chore struct {
	name string
	ival time.Duration
	run  func(ctx context.Context)
	due  time.Time
}

// Runner is a named background loop. Build with New, attach side jobs
// with Every, then hand it a context via Poll or Tick.
type Runner struct {
	name   string
	logger zerolog.Logger
	chores []chore
}

// New returns a runner whose log lines all carry the worker name.
// A nil logger disables logging.
func New(name string, logger *zerolog.Logger) *Runner {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Runner{
		name:   name,
		logger: logger.With().Str("worker", name).Logger(),
	}
}

// Every registers a side job that runs at most once per interval,
// checked on each loop iteration. Jobs with no interval or no func are
// ignored.
func (r *Runner) Every(interval time.Duration, name string, run func(ctx context.Context)) *Runner {
	if interval > 0 && run != nil {
		r.chores = append(r.chores, chore{name: name, ival: interval, run: run})
	}

	return r
}

// Poll runs task every interval until ctx is canceled. Task errors are
// logged and the next iteration proceeds; only cancellation ends the
// loop, with a wrapped ctx.Err().
func (r *Runner) Poll(ctx context.Context, interval time.Duration, task Task) error {
	r.logger.Info().Msg("worker started")
	defer r.logger.Info().Msg("worker stopped")

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("worker %s: %w", r.name, err)
		}

		r.runDueChores(ctx)

		if err := task(ctx); err != nil {
			r.logger.Error().Err(err).Msg("work iteration failed")
		}

		if err := Sleep(ctx, interval); err != nil {
			return fmt.Errorf("worker %s: %w", r.name, err)
		}
	}
}

// Tick runs fn on a fixed ticker until ctx is canceled. With immediate
// set, fn also runs once up front.
func (r *Runner) Tick(ctx context.Context, interval time.Duration, immediate bool, fn func(ctx context.Context)) error {
	r.logger.Info().Msg("worker started")
	defer r.logger.Info().Msg("worker stopped")

	if immediate {
		fn(ctx)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("worker %s: %w", r.name, ctx.Err())
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// runDueChores fires every side job whose deadline has passed. A zero
// deadline means the job has never run, so all jobs fire on the first
// iteration.
func (r *Runner) runDueChores(ctx context.Context) {
	now := time.Now()

	for i := range r.chores {
		c := &r.chores[i]
		if now.Before(c.due) {
			continue
		}

		r.logger.Debug().Str("job", c.name).Msg("running side job")
		c.run(ctx)
		c.due = now.Add(c.ival)
	}
}

// Sleep blocks for d or until ctx is canceled, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Recover logs a panic from a work item and swallows it, keeping the
// loop alive. Call it deferred around anything fed external data.
func Recover(logger *zerolog.Logger, op string) {
	v := recover()
	if v == nil {
		return
	}

	logger.Error().Str("operation", op).Interface("panic", v).Msg("panic recovered")
}
