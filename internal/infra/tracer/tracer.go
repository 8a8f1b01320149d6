// Package tracer wires OpenTelemetry for frame routing and correlated
// calls. Spans carry the frame command, its correlation id and, on
// failure, the wire error code.
package tracer

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"medhelper/internal/domain"
	"medhelper/internal/infra/config"
)

const scope = "medhelper"

const (
	keyCommand       = attribute.Key("frame.command")
	keyCorrelationID = attribute.Key("frame.correlation_id")
	keyErrorCode     = attribute.Key("error.code")
)

// Setup installs the global TracerProvider and returns its shutdown
// function. Without an exporter to feed, a noop provider is installed.
func Setup(ctx context.Context, cfg config.TracerConfig) (func(context.Context) error, error) {
	exporter, err := newExporter(cfg)
	if err != nil {
		return nil, err
	}
	if exporter == nil {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return func(context.Context) error { return nil }, nil
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sampler(cfg.SampleRatio)),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", scope))),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// newExporter returns nil when tracing is off or exports nowhere.
func newExporter(cfg config.TracerConfig) (sdktrace.SpanExporter, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Exporter {
	case "noop", "":
		return nil, nil
	case "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
		return exp, nil
	default:
		return nil, fmt.Errorf("unsupported exporter: %s", cfg.Exporter)
	}
}

// sampler keeps child decisions consistent with their root. Ratios >= 1
// sample everything.
func sampler(ratio float64) sdktrace.Sampler {
	if ratio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// Start opens a span named name. command may be empty when it is not
// known yet; set it later with Command.
func Start(ctx context.Context, name, command string) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(scope).Start(ctx, name)
	if command != "" {
		Command(span, command)
	}
	return ctx, span
}

func Command(span trace.Span, command string) {
	span.SetAttributes(keyCommand.String(command))
}

func CorrelationID(span trace.Span, id uint64) {
	span.SetAttributes(keyCorrelationID.Int64(int64(id)))
}

// Fail marks span as failed with err and its error code.
func Fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetAttributes(keyErrorCode.String(string(domain.ErrorCodeOf(err))))
	span.SetStatus(codes.Error, domain.PublicMessage(err))
}

func OK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
