// Package observability sets up OpenTelemetry tracing for formsync
package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ajitpratap0/formsync/pkg/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// InstrumentationName names the tracer every formsync component uses
const InstrumentationName = "github.com/ajitpratap0/formsync"

var (
	mu     sync.RWMutex
	tracer trace.Tracer = noop.NewTracerProvider().Tracer(InstrumentationName)
)

// Provider owns the tracer provider built by Init
type Provider struct {
	tp *sdktrace.TracerProvider
}

// Option configures Init
type Option func(*options)

type options struct {
	exporter sdktrace.SpanExporter
	writer   io.Writer
	syncer   bool
	version  string
}

// WithExporter replaces the stdout exporter
func WithExporter(exp sdktrace.SpanExporter) Option {
	return func(o *options) { o.exporter = exp }
}

// WithWriter sends stdout spans to w
func WithWriter(w io.Writer) Option {
	return func(o *options) { o.writer = w }
}

// WithSyncExport exports each span as it ends instead of batching
func WithSyncExport() Option {
	return func(o *options) { o.syncer = true }
}

// WithVersion sets the service.version resource attribute
func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// Init installs a tracer provider built from cfg as the global provider.
// When tracing is disabled spans are dropped and the returned Provider's
// Shutdown is a no-op.
func Init(ctx context.Context, cfg config.TracingConfig, opts ...Option) (*Provider, error) {
	if !cfg.Enabled {
		setTracer(noop.NewTracerProvider().Tracer(InstrumentationName))
		return &Provider{}, nil
	}

	o := &options{writer: os.Stdout}
	for _, opt := range opts {
		opt(o)
	}

	attrs := []attribute.KeyValue{semconv.ServiceNameKey.String(cfg.ServiceName)}
	if o.version != "" {
		attrs = append(attrs, semconv.ServiceVersionKey.String(o.version))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter := o.exporter
	if exporter == nil {
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(o.writer), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
	}

	var processor sdktrace.TracerProviderOption
	if o.syncer {
		processor = sdktrace.WithSyncer(exporter)
	} else {
		processor = sdktrace.WithBatcher(exporter)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SamplingRate)),
		processor,
	)
	otel.SetTracerProvider(tp)
	setTracer(tp.Tracer(InstrumentationName))

	return &Provider{tp: tp}, nil
}

// Shutdown flushes pending spans
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	if err := p.tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown tracer: %w", err)
	}
	return nil
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate <= 0:
		return sdktrace.NeverSample()
	case rate >= 1:
		return sdktrace.AlwaysSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

func setTracer(t trace.Tracer) {
	mu.Lock()
	tracer = t
	mu.Unlock()
}

// Tracer returns the tracer installed by Init
func Tracer() trace.Tracer {
	mu.RLock()
	defer mu.RUnlock()
	return tracer
}
