package tracer

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc/stats"
)

// Tracing bundles an OpenTelemetry provider with the grpc handlers using it
type Tracing struct {
	Provider *sdktrace.TracerProvider
	Client   stats.Handler
	Server   stats.Handler
}

// SetupTracing installs a tracer provider exporting spans as JSON to w and
// returns otelgrpc stats handlers bound to it. Spans are exported
// synchronously so they are visible as soon as an RPC ends.
func SetupTracing(serviceName string, w io.Writer) (*Tracing, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("create stdout exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", serviceName),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Tracing{
		Provider: tp,
		Client:   otelgrpc.NewClientHandler(otelgrpc.WithTracerProvider(tp)),
		Server:   otelgrpc.NewServerHandler(otelgrpc.WithTracerProvider(tp)),
	}, nil
}

// Shutdown flushes and stops the provider
func (t *Tracing) Shutdown(ctx context.Context) error {
	return t.Provider.Shutdown(ctx)
}
