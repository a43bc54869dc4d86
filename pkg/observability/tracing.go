package observability

import (
	"context"
	"fmt"

	"github.com/ajitpratap0/formsync/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span wraps an OpenTelemetry span with formsync error recording
type Span struct {
	span trace.Span
}

// StartSpan starts a span on the installed tracer
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, *Span) {
	ctx, span := Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, &Span{span: span}
}

// SetAttribute adds an attribute to the span
func (s *Span) SetAttribute(key string, value interface{}) {
	var attr attribute.KeyValue
	switch v := value.(type) {
	case string:
		attr = attribute.String(key, v)
	case int:
		attr = attribute.Int(key, v)
	case int64:
		attr = attribute.Int64(key, v)
	case float64:
		attr = attribute.Float64(key, v)
	case bool:
		attr = attribute.Bool(key, v)
	default:
		attr = attribute.String(key, fmt.Sprintf("%v", v))
	}
	s.span.SetAttributes(attr)
}

// AddEvent records a named event
func (s *Span) AddEvent(name string, attrs ...attribute.KeyValue) {
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// End ends the span, marking it failed when err is non-nil
func (s *Span) End(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
		s.span.SetAttributes(attribute.String("error.kind", string(errors.KindOf(err))))
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}

// ProviderTracer names spans after one provider
type ProviderTracer struct {
	provider string
}

// NewProviderTracer creates a tracer for provider
func NewProviderTracer(provider string) *ProviderTracer {
	return &ProviderTracer{provider: provider}
}

// StartSpan starts "<prefix>.<operation>" tagged with the provider
func (pt *ProviderTracer) StartSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, *Span) {
	attrs = append(attrs, attribute.String("provider", pt.provider))
	return StartSpan(ctx, operation, attrs...)
}

// Trace runs fn inside a span and records its error
func (pt *ProviderTracer) Trace(ctx context.Context, operation string, fn func(context.Context) error) error {
	ctx, span := pt.StartSpan(ctx, operation)
	err := fn(ctx)
	span.End(err)
	return err
}
