package sync

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/njoerd114/placesync/internal/apperr"
)

const (
	otelScope = "placesync/sync"

	metricOperations      = "placesync.repo.operations"
	metricFailures        = "placesync.repo.failures"
	metricToggles         = "placesync.favorite.toggles"
	metricToggleRejected  = "placesync.favorite.rejected"
	metricRefreshRuns     = "placesync.refresh.runs"
	metricRefreshAdded    = "placesync.refresh.locations.added"
	metricRefreshChanged  = "placesync.refresh.locations.changed"
	metricRefreshRemoved  = "placesync.refresh.locations.removed"
	metricRefreshFailures = "placesync.refresh.failures"
)

// instruments holds the OTel handles shared by the repository surfaces.
// Always non-nil; no-op when telemetry is disabled.
type instruments struct {
	tracer   trace.Tracer
	meter    metric.Meter
	log      *slog.Logger
	ops      metric.Int64Counter
	failures metric.Int64Counter
}

func newInstruments(logger *slog.Logger) *instruments {
	in := &instruments{
		tracer: otel.Tracer(otelScope),
		meter:  otel.Meter(otelScope),
		log:    logger,
	}
	in.ops = in.counter(metricOperations, "Number of repository operations")
	in.failures = in.counter(metricFailures, "Number of failed repository operations")
	return in
}

func (in *instruments) counter(name, desc string) metric.Int64Counter {
	c, err := in.meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		in.log.Error("creating OTel counter", "name", name, "error", err)
		return noop.Int64Counter{}
	}
	return c
}

// start opens the span placesync.<kind>.<op>. The returned func ends it and
// records the operation counters; pass it the operation's error.
func (in *instruments) start(ctx context.Context, kind, op string) (context.Context, func(error)) {
	ctx, span := in.tracer.Start(ctx, "placesync."+kind+"."+op)
	return ctx, func(err error) {
		defer span.End()
		attrs := metric.WithAttributes(attribute.String("kind", kind), attribute.String("op", op))
		in.ops.Add(ctx, 1, attrs)
		if err == nil {
			return
		}
		in.failures.Add(ctx, 1, attrs, metric.WithAttributes(attribute.String("error", apperr.KindOf(err).String())))
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.KindOf(err).String())
	}
}
