package telemetry

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const EndpointEnv = "OTEL_EXPORTER_OTLP_ENDPOINT"

type Shutdown func(context.Context) error

// Setup installs a global tracer provider exporting over OTLP/HTTP. Without
// OTEL_EXPORTER_OTLP_ENDPOINT it leaves the no-op provider in place.
func Setup(ctx context.Context, serviceName string) (Shutdown, error) {
	endpoint := strings.TrimSpace(os.Getenv(EndpointEnv))
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
	)
	otel.SetTracerProvider(tp)
	log.Printf("telemetry tracing_enabled service=%s endpoint=%s", serviceName, endpoint)
	return tp.Shutdown, nil
}
