// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MentorHub Contributors

package observability

import (
	"context"
	"strings"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ShutdownFunc flushes and stops tracing.
type ShutdownFunc func(context.Context) error

// SetupTracing installs a global OTLP/HTTP tracer provider. Tracing is
// opt-in: an empty endpoint installs nothing and returns a no-op shutdown.
// endpoint is a URL ("http://collector:4318") or a bare host:port, which is
// exported to without TLS.
func SetupTracing(ctx context.Context, endpoint, service, version string) (ShutdownFunc, error) {
	noop := func(context.Context) error { return nil }
	if endpoint == "" {
		return noop, nil
	}

	opt := otlptracehttp.WithEndpointURL(endpoint)
	if !strings.Contains(endpoint, "://") {
		opt = otlptracehttp.WithEndpointURL("http://" + endpoint)
	}
	exporter, err := otlptracehttp.New(ctx, opt)
	if err != nil {
		return noop, oops.Code("TRACING_SETUP_FAILED").With("endpoint", endpoint).Wrap(err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(service),
		semconv.ServiceVersion(version),
	))
	if err != nil {
		return noop, oops.Code("TRACING_SETUP_FAILED").With("operation", "build resource").Wrap(err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}
