// Package telemetry starts the optional OpenTelemetry trace, metric, and log
// pipelines of placesync. All three export over one gRPC connection to an
// OTLP collector.
//
// Call [Setup] once during startup, before building the repository, so the
// instruments created by package sync bind to the real providers. The
// returned [ShutdownFunc] flushes pending telemetry and must run before the
// process exits.
//
// Without Setup the global providers stay no-ops. [NewLogHandler] forwards
// slog records to the global log provider.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// DefaultServiceName is the service.name attribute used when none is configured.
const DefaultServiceName = "placesync"

// Config holds the collector settings from the telemetry block of the config
// file plus the process identity supplied by the caller.
type Config struct {
	// OTLPEndpoint is the gRPC host:port of the collector,
	// e.g. "localhost:4317".
	OTLPEndpoint string
	// Insecure disables TLS for the collector connection.
	Insecure bool
	// Headers is sent as gRPC metadata on every OTLP request, typically
	// {"Authorization": "Bearer <token>"}.
	Headers map[string]string

	// ServiceName overrides service.name. Defaults to DefaultServiceName.
	ServiceName string
	// ServiceVersion becomes service.version when set.
	ServiceVersion string
	// ProjectID is the document store project, recorded as
	// placesync.project_id so traces from different backends can be told
	// apart.
	ProjectID string
}

// ShutdownFunc flushes and closes all OTel providers. Call it with a fresh
// context: the main one may already be cancelled when shutdown runs.
type ShutdownFunc func(context.Context) error

// noopShutdown is returned on error so callers can always defer unconditionally.
func noopShutdown(_ context.Context) error { return nil }

// newResource describes this process to the collector.
func newResource(cfg Config) (*resource.Resource, error) {
	name := cfg.ServiceName
	if name == "" {
		name = DefaultServiceName
	}
	attrs := []attribute.KeyValue{semconv.ServiceName(name)}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}
	if cfg.ProjectID != "" {
		attrs = append(attrs, attribute.String("placesync.project_id", cfg.ProjectID))
	}
	// Schemaless: resource.Default() carries the SDK's semconv schema URL,
	// which differs from the one imported here.
	return resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
}

// shutdowns runs cleanup steps in reverse order of registration and joins
// their errors.
type shutdowns []func(context.Context) error

func (s *shutdowns) add(name string, fn func(context.Context) error) {
	*s = append(*s, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	})
}

func (s shutdowns) run(ctx context.Context) error {
	var errs []error
	for _, fn := range slices.Backward(s) {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Setup installs the global trace, meter, and logger providers. On error
// everything created so far is torn down and the returned ShutdownFunc is a
// no-op.
func Setup(ctx context.Context, cfg Config) (_ ShutdownFunc, err error) {
	if cfg.OTLPEndpoint == "" {
		return noopShutdown, errors.New("otlp endpoint is required")
	}
	res, err := newResource(cfg)
	if err != nil {
		return noopShutdown, fmt.Errorf("building OTel resource: %w", err)
	}

	var cleanup shutdowns
	defer func() {
		if err != nil {
			_ = cleanup.run(ctx)
		}
	}()

	creds := credentials.NewTLS(nil) // system root CAs
	if cfg.Insecure {
		creds = insecure.NewCredentials()
	}
	conn, err := grpc.NewClient(cfg.OTLPEndpoint, grpc.WithTransportCredentials(creds))
	if err != nil {
		return noopShutdown, fmt.Errorf("dialling OTLP collector at %q: %w", cfg.OTLPEndpoint, err)
	}
	cleanup.add("OTLP gRPC connection close", func(context.Context) error { return conn.Close() })
	headers := maps.Clone(cfg.Headers)

	// --- Traces ----------------------------------------------------------------

	traceExp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithGRPCConn(conn),
		otlptracegrpc.WithHeaders(headers),
	)
	if err != nil {
		return noopShutdown, fmt.Errorf("creating OTLP trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	cleanup.add("trace provider shutdown", tp.Shutdown)

	// --- Metrics ---------------------------------------------------------------

	metricExp, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithGRPCConn(conn),
		otlpmetricgrpc.WithHeaders(headers),
	)
	if err != nil {
		return noopShutdown, fmt.Errorf("creating OTLP metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	cleanup.add("metric provider shutdown", mp.Shutdown)

	// --- Logs ------------------------------------------------------------------

	logExp, err := otlploggrpc.New(ctx,
		otlploggrpc.WithGRPCConn(conn),
		otlploggrpc.WithHeaders(headers),
	)
	if err != nil {
		return noopShutdown, fmt.Errorf("creating OTLP log exporter: %w", err)
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
		sdklog.WithResource(res),
	)
	cleanup.add("log provider shutdown", lp.Shutdown)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	global.SetLoggerProvider(lp)

	return cleanup.run, nil
}
