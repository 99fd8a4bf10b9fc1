package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	coreconfig "github.com/tidemill/dedupe/pkg/dedupe/core/config"
	model "github.com/tidemill/dedupe/pkg/dedupe/core/domain/model"
	coremetrics "github.com/tidemill/dedupe/pkg/dedupe/core/metrics"
	"github.com/tidemill/dedupe/pkg/dedupe/support/util/logger"
)

// OpenTelemetryTracer is an implementation of metrics.Tracer that exports
// spans through an OTLP trace exporter. When tracing is disabled it records
// nothing and returns the context unchanged.
type OpenTelemetryTracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewOpenTelemetryTracer initializes the OTLP exporter and tracer provider
// from the tracing configuration.
func NewOpenTelemetryTracer(ctx context.Context, cfg coreconfig.TracingConfig) (*OpenTelemetryTracer, error) {
	if !cfg.Enabled {
		logger.Debugf("Tracing: disabled, spans will not be exported.")
		return &OpenTelemetryTracer{}, nil
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to build tracing resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(provider)

	logger.Infof("Tracing: OTLP exporter initialized (endpoint: %s, protocol: %s)", cfg.Endpoint, cfg.Protocol)
	return &OpenTelemetryTracer{
		provider: provider,
		tracer:   provider.Tracer(cfg.ServiceName),
	}, nil
}

func newExporter(ctx context.Context, cfg coreconfig.TracingConfig) (*otlptrace.Exporter, error) {
	switch cfg.Protocol {
	case "http":
		return otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(cfg.Endpoint),
			otlptracehttp.WithInsecure(),
		)
	case "", "grpc":
		return otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol '%s'", cfg.Protocol)
	}
}

// Shutdown flushes outstanding spans and stops the provider.
func (t *OpenTelemetryTracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// StartRunSpan starts a span covering the whole run.
func (t *OpenTelemetryTracer) StartRunSpan(ctx context.Context, result *model.RunResult) (context.Context, func()) {
	if t.tracer == nil {
		return ctx, func() {}
	}
	spanCtx, span := t.tracer.Start(ctx, "dedupe.run",
		trace.WithAttributes(
			attribute.String("dedupe.run_id", result.ID),
			attribute.String("dedupe.object_type", result.ObjectType),
			attribute.Bool("dedupe.dry_run", result.IsDryRun),
		))
	return spanCtx, func() {
		span.SetAttributes(
			attribute.String("dedupe.status", string(result.Status)),
			attribute.Int("dedupe.duplicates_found", result.DuplicatesFound),
			attribute.Int("dedupe.records_merged", result.RecordsMerged),
		)
		span.End()
	}
}

// StartGroupSpan starts a span for one group's merge.
func (t *OpenTelemetryTracer) StartGroupSpan(ctx context.Context, result *model.RunResult, fingerprint string) (context.Context, func()) {
	if t.tracer == nil {
		return ctx, func() {}
	}
	spanCtx, span := t.tracer.Start(ctx, "dedupe.merge_group",
		trace.WithAttributes(
			attribute.String("dedupe.run_id", result.ID),
			attribute.String("dedupe.fingerprint", fingerprint),
		))
	return spanCtx, func() { span.End() }
}

// RecordError records an error in the current span.
func (t *OpenTelemetryTracer) RecordError(ctx context.Context, module string, err error) {
	if t.tracer == nil || err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err, trace.WithAttributes(attribute.String("dedupe.module", module)))
	span.SetStatus(codes.Error, err.Error())
}

var _ coremetrics.Tracer = (*OpenTelemetryTracer)(nil)
