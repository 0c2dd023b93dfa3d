package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName names the tracer used by every inboxdigest span.
const TracerName = "github.com/teemow/inboxdigest"

// Span attribute keys.
const (
	SpanAttrTool       = "mcp.tool"
	SpanAttrOperation  = "gateway.operation"
	SpanAttrHTTPStatus = "http.status_code"
	SpanAttrRequestID  = "gateway.request_id"
	SpanAttrEmailID    = "inbox.email_id"
	SpanAttrDate       = "digest.date"
	SpanAttrCacheHit   = "cache.hit"

	// SpanAttrShared is set when a digest request joined one already in flight.
	SpanAttrShared = "digest.shared"
)

// SpanAttributeBuilder collects span attributes under the keys above.
// Empty identifiers are skipped.
type SpanAttributeBuilder struct {
	attrs []attribute.KeyValue
}

// NewSpanAttributeBuilder creates an empty builder.
func NewSpanAttributeBuilder() *SpanAttributeBuilder {
	return &SpanAttributeBuilder{attrs: make([]attribute.KeyValue, 0, 4)}
}

func (b *SpanAttributeBuilder) str(key, value string) *SpanAttributeBuilder {
	if value != "" {
		b.attrs = append(b.attrs, attribute.String(key, value))
	}
	return b
}

// WithTool adds the MCP tool name.
func (b *SpanAttributeBuilder) WithTool(tool string) *SpanAttributeBuilder {
	return b.str(SpanAttrTool, tool)
}

// WithOperation adds the gateway operation.
func (b *SpanAttributeBuilder) WithOperation(operation string) *SpanAttributeBuilder {
	return b.str(SpanAttrOperation, operation)
}

// WithEmailID adds the email id.
func (b *SpanAttributeBuilder) WithEmailID(emailID string) *SpanAttributeBuilder {
	return b.str(SpanAttrEmailID, emailID)
}

// WithDate adds the digest date.
func (b *SpanAttributeBuilder) WithDate(date string) *SpanAttributeBuilder {
	return b.str(SpanAttrDate, date)
}

// WithCacheHit records whether a cache answered.
func (b *SpanAttributeBuilder) WithCacheHit(hit bool) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.Bool(SpanAttrCacheHit, hit))
	return b
}

// WithShared records whether the result came from a concurrent request.
func (b *SpanAttributeBuilder) WithShared(shared bool) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.Bool(SpanAttrShared, shared))
	return b
}

// Build returns the collected attributes.
func (b *SpanAttributeBuilder) Build() []attribute.KeyValue {
	return b.attrs
}

func startSpan(ctx context.Context, name string, kind trace.SpanKind, lead attribute.KeyValue, attrs []attribute.KeyValue) (context.Context, trace.Span) {
	all := make([]attribute.KeyValue, 0, len(attrs)+1)
	all = append(all, lead)
	all = append(all, attrs...)
	return otel.Tracer(TracerName).Start(ctx, name, trace.WithAttributes(all...), trace.WithSpanKind(kind))
}

// StartToolSpan starts the server span "tool.<name>" for an MCP tool call.
// The caller ends the span.
func StartToolSpan(ctx context.Context, toolName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return startSpan(ctx, "tool."+toolName, trace.SpanKindServer, attribute.String(SpanAttrTool, toolName), attrs)
}

// StartGatewaySpan starts the client span "gateway.<operation>" for a
// backend call.
func StartGatewaySpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return startSpan(ctx, "gateway."+operation, trace.SpanKindClient, attribute.String(SpanAttrOperation, operation), attrs)
}

// StartDigestSpan starts the internal span "digest.generate" for date.
func StartDigestSpan(ctx context.Context, date string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return startSpan(ctx, "digest.generate", trace.SpanKindInternal, attribute.String(SpanAttrDate, date), attrs)
}

// SetSpanError records err on span. A nil err is ignored.
func SetSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanSuccess marks span as OK.
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
