package sync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const spanRefresh = "placesync.refresh"

// ErrRefreshDisabled is returned by [Refresher.Run] when the interval is zero.
var ErrRefreshDisabled = errors.New("cache refresh disabled")

// RefreshStats summarises one refresh pass.
type RefreshStats struct {
	Locations  int
	Categories int
	Added      int
	Changed    int
	Removed    int
}

// Refresher reloads the reference collections (locations and categories) so
// that content edited elsewhere reaches a long-running process. Create one
// with [NewRefresher] and start it with [Refresher.Run].
type Refresher struct {
	locations  *Locations
	categories *Categories
	interval   time.Duration
	retry      retryPolicy
	log        *slog.Logger

	// Notify, when set, is called after every pass from the Run goroutine.
	Notify func(RefreshStats, error)

	tracer     trace.Tracer
	cntRuns    metric.Int64Counter
	cntAdded   metric.Int64Counter
	cntChanged metric.Int64Counter
	cntRemoved metric.Int64Counter
	cntErrors  metric.Int64Counter
}

// NewRefresher creates a Refresher for repo's reference collections.
func NewRefresher(repo *Repository, interval time.Duration, logger *slog.Logger) *Refresher {
	in := repo.inst
	return &Refresher{
		locations:  repo.Locations,
		categories: repo.Categories,
		interval:   interval,
		retry:      defaultRetry,
		log:        logger.With("component", "refresher"),

		tracer:     in.tracer,
		cntRuns:    in.counter(metricRefreshRuns, "Number of cache refresh passes"),
		cntAdded:   in.counter(metricRefreshAdded, "Number of locations added by refresh"),
		cntChanged: in.counter(metricRefreshChanged, "Number of locations changed by refresh"),
		cntRemoved: in.counter(metricRefreshRemoved, "Number of locations removed by refresh"),
		cntErrors:  in.counter(metricRefreshFailures, "Number of failed refresh passes"),
	}
}

// refresh runs one pass, recording a trace span and metrics. Transient
// failures of the reload are retried according to p.
func (r *Refresher) refresh(ctx context.Context, p retryPolicy) (RefreshStats, error) {
	ctx, span := r.tracer.Start(ctx, spanRefresh)
	defer span.End()

	stats, err := r.reload(ctx, p)

	r.cntRuns.Add(ctx, 1)
	if stats.Added > 0 {
		r.cntAdded.Add(ctx, int64(stats.Added))
	}
	if stats.Changed > 0 {
		r.cntChanged.Add(ctx, int64(stats.Changed))
	}
	if stats.Removed > 0 {
		r.cntRemoved.Add(ctx, int64(stats.Removed))
	}
	span.SetAttributes(
		attribute.Int("refresh.locations", stats.Locations),
		attribute.Int("refresh.categories", stats.Categories),
		attribute.Int("refresh.added", stats.Added),
		attribute.Int("refresh.changed", stats.Changed),
		attribute.Int("refresh.removed", stats.Removed),
	)
	if err != nil {
		r.cntErrors.Add(ctx, 1)
		span.RecordError(err)
	}
	return stats, err
}

func (r *Refresher) reload(ctx context.Context, p retryPolicy) (RefreshStats, error) {
	var stats RefreshStats

	// Hashes of the fresh snapshots held before the reload.
	before := make(map[string]string)
	for _, loc := range r.locations.c.cache.Values() {
		before[loc.ID] = loc.ContentHash()
	}

	r.locations.c.InvalidateAll()
	locs, err := retry(ctx, p, r.log, r.locations.All)
	if err != nil {
		return stats, err
	}
	stats.Locations = len(locs)
	for _, loc := range locs {
		prev, ok := before[loc.ID]
		switch {
		case !ok:
			stats.Added++
		case prev != loc.ContentHash():
			stats.Changed++
		}
		delete(before, loc.ID)
	}
	stats.Removed = len(before)

	r.categories.c.InvalidateAll()
	cats, err := retry(ctx, p, r.log, r.categories.All)
	if err != nil {
		return stats, err
	}
	stats.Categories = len(cats)
	return stats, nil
}

// RunOnce performs a single refresh pass and returns.
func (r *Refresher) RunOnce(ctx context.Context) (RefreshStats, error) {
	return r.refresh(ctx, noRetry)
}

// Run refreshes immediately and then every interval until ctx is cancelled.
// Within a pass, reloads failing with KindRemoteUnavailable are retried with
// backoff before the pass is reported as failed.
// A zero interval returns ErrRefreshDisabled.
func (r *Refresher) Run(ctx context.Context) error {
	if r.interval <= 0 {
		return ErrRefreshDisabled
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.pass(ctx, "initial refresh failed")
	for {
		select {
		case <-ctx.Done():
			r.log.Info("refresher shutting down")
			return ctx.Err()
		case <-ticker.C:
			r.pass(ctx, "refresh failed")
		}
	}
}

func (r *Refresher) pass(ctx context.Context, failMsg string) {
	stats, err := r.refresh(ctx, r.retry)
	if err != nil {
		r.log.Error(failMsg, "error", err)
	} else {
		r.log.Debug("cache refreshed", "locations", stats.Locations, "added", stats.Added,
			"changed", stats.Changed, "removed", stats.Removed)
	}
	if r.Notify != nil {
		r.Notify(stats, err)
	}
}
