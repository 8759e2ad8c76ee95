// Package retention prunes finished notification jobs on a cron schedule.
//
// Only delivered and failed jobs are removed. Queued and delivering jobs
// stay, so pruning never lets a pending delivery be sent twice.
package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/roach88/wot/internal/metrics"
)

// ErrNoSchedule is returned by Run on a Janitor created without a schedule.
var ErrNoSchedule = errors.New("no retention schedule")

// Pruner deletes finished jobs last updated before cutoff.
type Pruner interface {
	PruneJobs(ctx context.Context, cutoff time.Time) (int64, error)
}

// Janitor runs the prune on a schedule.
type Janitor struct {
	pruner   Pruner
	schedule string
	maxAge   time.Duration
	now      func() time.Time
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Option configures a Janitor.
type Option func(*Janitor)

// WithClock sets the time source for cutoffs.
func WithClock(now func() time.Time) Option {
	return func(j *Janitor) {
		j.now = now
	}
}

// WithMetrics counts pruned rows.
func WithMetrics(m *metrics.Metrics) Option {
	return func(j *Janitor) {
		j.metrics = m
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(j *Janitor) {
		j.logger = l
	}
}

// New creates a Janitor. Returns an error if the schedule expression is
// invalid. An empty schedule gives a Janitor that only prunes on PruneOnce.
func New(p Pruner, schedule string, maxAge time.Duration, opts ...Option) (*Janitor, error) {
	if schedule != "" {
		if _, err := cron.ParseStandard(schedule); err != nil {
			return nil, fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
		}
	}
	j := &Janitor{
		pruner:   p,
		schedule: schedule,
		maxAge:   maxAge,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// PruneOnce removes finished jobs older than the max age.
func (j *Janitor) PruneOnce(ctx context.Context) (int64, error) {
	cutoff := j.now().Add(-j.maxAge)
	n, err := j.pruner.PruneJobs(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune jobs before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	j.metrics.Pruned(n)
	return n, nil
}

// Run prunes on every schedule tick. Blocks until the context is cancelled.
func (j *Janitor) Run(ctx context.Context) error {
	if j.schedule == "" {
		return ErrNoSchedule
	}
	c := cron.New()

	_, err := c.AddFunc(j.schedule, func() {
		n, err := j.PruneOnce(ctx)
		if err != nil {
			j.logger.Error("retention prune failed", "error", err)
			return
		}
		j.logger.Info("retention prune", "removed", n, "max_age", j.maxAge)
	})
	if err != nil {
		return fmt.Errorf("adding cron job: %w", err)
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
