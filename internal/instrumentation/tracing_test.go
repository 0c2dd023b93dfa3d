package instrumentation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// recordSpans installs a global tracer provider that keeps ended spans.
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return rec
}

func attrMap(kvs []attribute.KeyValue) map[string]any {
	m := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		m[string(kv.Key)] = kv.Value.AsInterface()
	}
	return m
}

func TestSpanAttributeBuilder(t *testing.T) {
	attrs := NewSpanAttributeBuilder().
		WithTool("generate_daily_digest").
		WithOperation("generate_digest").
		WithEmailID("g_1").
		WithDate("2024-05-01").
		WithCacheHit(true).
		WithShared(false).
		Build()

	assert.Equal(t, map[string]any{
		SpanAttrTool:      "generate_daily_digest",
		SpanAttrOperation: "generate_digest",
		SpanAttrEmailID:   "g_1",
		SpanAttrDate:      "2024-05-01",
		SpanAttrCacheHit:  true,
		SpanAttrShared:    false,
	}, attrMap(attrs))
}

func TestSpanAttributeBuilderSkipsEmptyIDs(t *testing.T) {
	attrs := NewSpanAttributeBuilder().
		WithTool("list_emails").
		WithEmailID("").
		WithDate("").
		Build()

	assert.Len(t, attrs, 1)
}

func TestStartSpans(t *testing.T) {
	tests := []struct {
		name     string
		start    func(context.Context) (context.Context, trace.Span)
		wantName string
		wantKind trace.SpanKind
		wantAttr map[string]any
	}{
		{
			name: "tool",
			start: func(ctx context.Context) (context.Context, trace.Span) {
				return StartToolSpan(ctx, "list_summary_dates")
			},
			wantName: "tool.list_summary_dates",
			wantKind: trace.SpanKindServer,
			wantAttr: map[string]any{SpanAttrTool: "list_summary_dates"},
		},
		{
			name: "gateway",
			start: func(ctx context.Context) (context.Context, trace.Span) {
				return StartGatewaySpan(ctx, "summarize", attribute.String(SpanAttrEmailID, "g_1"))
			},
			wantName: "gateway.summarize",
			wantKind: trace.SpanKindClient,
			wantAttr: map[string]any{SpanAttrOperation: "summarize", SpanAttrEmailID: "g_1"},
		},
		{
			name: "digest",
			start: func(ctx context.Context) (context.Context, trace.Span) {
				return StartDigestSpan(ctx, "2024-05-01")
			},
			wantName: "digest.generate",
			wantKind: trace.SpanKindInternal,
			wantAttr: map[string]any{SpanAttrDate: "2024-05-01"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := recordSpans(t)

			ctx, span := tt.start(context.Background())
			assert.True(t, trace.SpanFromContext(ctx).SpanContext().IsValid())
			span.End()

			ended := rec.Ended()
			require.Len(t, ended, 1)
			assert.Equal(t, tt.wantName, ended[0].Name())
			assert.Equal(t, tt.wantKind, ended[0].SpanKind())
			assert.Equal(t, tt.wantAttr, attrMap(ended[0].Attributes()))
		})
	}
}

func TestSpanStatus(t *testing.T) {
	rec := recordSpans(t)

	_, failed := StartGatewaySpan(context.Background(), "generate_digest")
	SetSpanError(failed, errors.New("digest backend unavailable"))
	failed.End()

	_, ok := StartToolSpan(context.Background(), "get_summary")
	SetSpanError(ok, nil)
	SetSpanSuccess(ok)
	ok.End()

	ended := rec.Ended()
	require.Len(t, ended, 2)

	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "digest backend unavailable", ended[0].Status().Description)
	require.Len(t, ended[0].Events(), 1)
	assert.Equal(t, "exception", ended[0].Events()[0].Name)

	assert.Equal(t, codes.Ok, ended[1].Status().Code)
	assert.Empty(t, ended[1].Events())
}
