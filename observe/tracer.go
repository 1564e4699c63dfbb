// Package observe carries the tracing and metrics hooks the runtime
// exposes. Core packages depend only on the small Tracer contract; the
// OpenTelemetry adapter lives here so nothing else imports otel.
package observe

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attr is one span attribute.
type Attr struct {
	Key   string
	Value string
}

// Tracer opens spans around loop stages. The returned end function records
// the stage outcome.
type Tracer interface {
	StartSpan(ctx context.Context, name string, attrs ...Attr) (context.Context, func(error))
}

// NoopTracer discards all spans.
type NoopTracer struct{}

func (NoopTracer) StartSpan(ctx context.Context, name string, attrs ...Attr) (context.Context, func(error)) {
	return ctx, func(error) {}
}

// OTelTracer bridges the Tracer contract onto OpenTelemetry.
type OTelTracer struct {
	tracer trace.Tracer
}

// NewOTelTracer builds a tracer from the global otel provider.
func NewOTelTracer(name string) *OTelTracer {
	return &OTelTracer{tracer: otel.Tracer(name)}
}

func (t *OTelTracer) StartSpan(ctx context.Context, name string, attrs ...Attr) (context.Context, func(error)) {
	kvs := make([]attribute.KeyValue, len(attrs))
	for i, a := range attrs {
		kvs[i] = attribute.String(a.Key, a.Value)
	}
	ctx, span := t.tracer.Start(ctx, name, trace.WithAttributes(kvs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
