package observability

import (
	"bytes"
	"context"
	"testing"

	"github.com/ajitpratap0/formsync/pkg/config"
	"github.com/ajitpratap0/formsync/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func enabled() config.TracingConfig {
	return config.TracingConfig{Enabled: true, ServiceName: "formsync-test", SamplingRate: 1}
}

func TestInitDisabled(t *testing.T) {
	p, err := Init(context.Background(), config.TracingConfig{})
	require.NoError(t, err)
	assert.NoError(t, p.Shutdown(context.Background()))

	_, span := StartSpan(context.Background(), "noop")
	assert.False(t, span.span.SpanContext().IsValid())
	span.End(nil)
}

func TestProviderTracerRecordsErrors(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	p, err := Init(context.Background(), enabled(), WithExporter(exp), WithSyncExport())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = p.Shutdown(context.Background())
		_, _ = Init(context.Background(), config.TracingConfig{})
	})

	pt := NewProviderTracer("hubspot")
	require.NoError(t, pt.Trace(context.Background(), "pipeline.validate", func(context.Context) error { return nil }))
	failure := errors.New(errors.KindAuth, "rejected")
	assert.Same(t, failure, pt.Trace(context.Background(), "pipeline.upsert", func(context.Context) error { return failure }))

	spans := exp.GetSpans()
	require.Len(t, spans, 2)

	assert.Equal(t, "pipeline.validate", spans[0].Name)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
	assert.Contains(t, spans[0].Attributes, attribute.String("provider", "hubspot"))

	assert.Equal(t, "pipeline.upsert", spans[1].Name)
	assert.Equal(t, codes.Error, spans[1].Status.Code)
	assert.Contains(t, spans[1].Attributes, attribute.String("error.kind", string(errors.KindAuth)))
}

func TestStdoutExporter(t *testing.T) {
	var buf bytes.Buffer
	p, err := Init(context.Background(), enabled(), WithWriter(&buf), WithSyncExport(), WithVersion("1.2.3"))
	require.NoError(t, err)

	_, span := StartSpan(context.Background(), "connect")
	span.SetAttribute("attempt", 1)
	span.End(nil)

	require.NoError(t, p.Shutdown(context.Background()))
	_, _ = Init(context.Background(), config.TracingConfig{})

	assert.Contains(t, buf.String(), `"Name": "connect"`)
	assert.Contains(t, buf.String(), "formsync-test")
}

func TestSampler(t *testing.T) {
	assert.Equal(t, "AlwaysOnSampler", sampler(1).Description())
	assert.Equal(t, "AlwaysOffSampler", sampler(0).Description())
	assert.Contains(t, sampler(0.5).Description(), "TraceIDRatioBased")
}
