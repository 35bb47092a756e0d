// Package observability provides OpenTelemetry tracing for multisql jobs.
//
// Tracing is off unless InitTracing is called with Enabled set. While it is
// off the global no-op provider is used and spans cost nothing.
package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/ajitpratap0/multisql/pkg/models"
)

const instrumentationName = "github.com/ajitpratap0/multisql"

// TracingConfig contains tracing configuration
type TracingConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	// SamplingRate in [0, 1]; values >= 1 sample everything
	SamplingRate float64
	// Writer receives stdout exporter output. Defaults to os.Stderr so spans
	// never interleave with records written to stdout.
	Writer io.Writer
	// Exporter replaces the stdout exporter when set
	Exporter sdktrace.SpanExporter
}

// Shutdown flushes and stops the tracer provider.
type Shutdown func(ctx context.Context) error

// InitTracing installs a global tracer provider. When tracing is disabled
// it returns a no-op Shutdown and leaves the global provider untouched.
func InitTracing(cfg TracingConfig) (Shutdown, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "multisql"
	}
	if cfg.SamplingRate == 0 {
		cfg.SamplingRate = 1
	}

	exporter := cfg.Exporter
	if exporter == nil {
		w := cfg.Writer
		if w == nil {
			w = os.Stderr
		}
		var err error
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SamplingRate < 0:
		sampler = sdktrace.NeverSample()
	case cfg.SamplingRate >= 1:
		sampler = sdktrace.AlwaysSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SamplingRate)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(time.Second)),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// Tracer returns the multisql tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// UnitSpan traces one unit from first pull to close.
type UnitSpan struct {
	span   trace.Span
	rows   int64
	failed bool
}

// StartUnitSpan starts the span of a unit.
func StartUnitSpan(ctx context.Context, unitID, referenceName string) (context.Context, *UnitSpan) {
	ctx, span := Tracer().Start(ctx, "multisql.unit",
		trace.WithAttributes(
			attribute.String("unit.id", unitID),
			attribute.String("unit.reference", referenceName),
		))
	return ctx, &UnitSpan{span: span}
}

// Record accounts for a record emitted by the unit. Error records mark the
// span as failed.
func (s *UnitSpan) Record(rec *models.TaggedRecord) {
	if rec.IsRow() {
		s.rows++
		return
	}
	s.failed = true
	s.span.SetAttributes(attribute.String("unit.failure_class", rec.FailureClass))
	s.span.SetStatus(codes.Error, rec.Message)
}

// End ends the span.
func (s *UnitSpan) End() {
	s.span.SetAttributes(attribute.Int64("unit.rows", s.rows))
	if !s.failed {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}
