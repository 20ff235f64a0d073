// Package tracing installs the global OpenTelemetry tracer provider.
package tracing

import (
	"context"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/abhisek/instructoria/internal/logger"
)

type Config struct {
	Enabled     bool
	ServiceName string
	Environment string
	Version     string

	// Writer receives exported spans. Defaults to stderr.
	Writer io.Writer
}

// ShutdownFunc flushes pending spans.
type ShutdownFunc func(context.Context) error

// Setup installs a tracer provider exporting to cfg.Writer. When tracing
// is disabled the global no-op provider stays in place.
func Setup(cfg Config, log *logger.Logger) (ShutdownFunc, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "instructoria"
	}
	if cfg.Writer == nil {
		cfg.Writer = os.Stderr
	}

	exp, err := stdouttrace.New(stdouttrace.WithWriter(cfg.Writer))
	if err != nil {
		return nil, err
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.Version),
		attribute.String("deployment.environment", cfg.Environment),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if log != nil {
		log.Info("tracing.initialized", "service", cfg.ServiceName, "exporter", "stdout")
	}
	return tp.Shutdown, nil
}
