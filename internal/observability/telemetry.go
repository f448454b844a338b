// Package observability wires the invocation VM's OpenTelemetry tracer
// provider. It is deliberately tiny: the VM only ever needs one span per
// invocation and one child span per journal entry emission (§4.5), so
// there is no HTTP middleware here, unlike the control-plane's
// equivalent package — just enough to turn a Config into a real exporter
// (installing trace-context and baggage propagators alongside it), or a
// no-op one when tracing is disabled.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Config controls whether and where the VM exports invocation spans.
type Config struct {
	Enabled     bool
	Endpoint    string  // otlp/http endpoint, e.g. "localhost:4318"
	ServiceName string  // defaults to "durablevm" if empty
	SampleRate  float64 // 0.0..1.0; ignored when 0, treated as AlwaysSample
}

type provider struct {
	tp      *sdktrace.TracerProvider
	tracer  trace.Tracer
	enabled bool
}

var global = &provider{tracer: trace.NewNoopTracerProvider().Tracer("")}

// Init installs a real TracerProvider exporting to an OTLP/HTTP collector.
// Disabled configs (the default) leave the global tracer a no-op, so
// unit tests and an uninstrumented host never attempt a network dial.
func Init(ctx context.Context, cfg Config) error {
	if !cfg.Enabled {
		global = &provider{tracer: trace.NewNoopTracerProvider().Tracer("")}
		return nil
	}

	name := cfg.ServiceName
	if name == "" {
		name = "durablevm"
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(name),
	))
	if err != nil {
		return fmt.Errorf("observability: build resource: %w", err)
	}

	exp, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return fmt.Errorf("observability: create OTLP exporter: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRate > 0 && cfg.SampleRate < 1.0 {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	global = &provider{tp: tp, tracer: tp.Tracer(name), enabled: true}
	return nil
}

// Shutdown flushes and closes the exporter, if one was installed.
func Shutdown(ctx context.Context) error {
	if global.tp == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return global.tp.Shutdown(ctx)
}

// Tracer returns the process-wide tracer the invocation Machine starts its
// per-invocation span from.
func Tracer() trace.Tracer {
	return global.tracer
}

// Enabled reports whether a real exporter is installed.
func Enabled() bool {
	return global.enabled
}
