package instrumentation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
const (
	attrOperation = "operation"
	attrStatus    = "status"
	attrCache     = "cache"
	attrResult    = "result"
	attrEvent     = "event"
	attrTool      = "tool"
	attrProvider  = "provider"
)

// Metrics provides methods for recording observability metrics.
// A nil *Metrics and a zero Metrics are both valid no-op recorders.
type Metrics struct {
	// Gateway metrics
	gatewayRequestsTotal   metric.Int64Counter
	gatewayRequestDuration metric.Float64Histogram

	// Cache metrics
	cacheLookupsTotal metric.Int64Counter
	cacheWritesTotal  metric.Int64Counter
	cacheEvictedTotal metric.Int64Counter

	// Digest metrics
	digestGenerationsTotal metric.Int64Counter
	digestSummaries        metric.Int64Histogram

	// Session metrics
	sessionEventsTotal metric.Int64Counter

	// Push channel metrics
	pushEventsTotal metric.Int64Counter

	// MCP Tool metrics
	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	// detailedLabels controls whether high-cardinality labels are included
	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The detailedLabels parameter controls whether high-cardinality labels are included.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	var err error

	m.gatewayRequestsTotal, err = meter.Int64Counter(
		"gateway_requests_total",
		metric.WithDescription("Total number of backend gateway requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway_requests_total counter: %w", err)
	}

	m.gatewayRequestDuration, err = meter.Float64Histogram(
		"gateway_request_duration_seconds",
		metric.WithDescription("Backend gateway request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway_request_duration_seconds histogram: %w", err)
	}

	m.cacheLookupsTotal, err = meter.Int64Counter(
		"cache_lookups_total",
		metric.WithDescription("Total number of summary and digest cache lookups"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache_lookups_total counter: %w", err)
	}

	m.cacheWritesTotal, err = meter.Int64Counter(
		"cache_writes_total",
		metric.WithDescription("Total number of cache writes"),
		metric.WithUnit("{write}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache_writes_total counter: %w", err)
	}

	m.cacheEvictedTotal, err = meter.Int64Counter(
		"cache_evicted_total",
		metric.WithDescription("Total number of cache entries removed by maintenance"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache_evicted_total counter: %w", err)
	}

	m.digestGenerationsTotal, err = meter.Int64Counter(
		"digest_generations_total",
		metric.WithDescription("Total number of daily digest requests by outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create digest_generations_total counter: %w", err)
	}

	m.digestSummaries, err = meter.Int64Histogram(
		"digest_summaries",
		metric.WithDescription("Number of summaries submitted per digest generation"),
		metric.WithUnit("{summary}"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create digest_summaries histogram: %w", err)
	}

	m.sessionEventsTotal, err = meter.Int64Counter(
		"session_events_total",
		metric.WithDescription("Total number of session lifecycle events"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session_events_total counter: %w", err)
	}

	m.pushEventsTotal, err = meter.Int64Counter(
		"push_events_total",
		metric.WithDescription("Total number of summary push events received"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create push_events_total counter: %w", err)
	}

	m.toolInvocationsTotal, err = meter.Int64Counter(
		"mcp_tool_invocations_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_invocations_total counter: %w", err)
	}

	m.toolDuration, err = meter.Float64Histogram(
		"mcp_tool_duration_seconds",
		metric.WithDescription("MCP tool execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_duration_seconds histogram: %w", err)
	}

	return m, nil
}

// RecordGatewayRequest records a backend call.
//
// Parameters:
//   - operation: gateway operation (summarize, generate_digest, auth_status, ...)
//   - status: "success", "error" or "expired"
//   - duration: time taken, including reading the response
func (m *Metrics) RecordGatewayRequest(ctx context.Context, operation, status string, duration time.Duration) {
	if m == nil || m.gatewayRequestsTotal == nil || m.gatewayRequestDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := metric.WithAttributes(
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	)
	m.gatewayRequestsTotal.Add(ctx, 1, attrs)
	m.gatewayRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordCacheLookup records a cache lookup. cache is "summary" or "digest".
func (m *Metrics) RecordCacheLookup(ctx context.Context, cache string, hit bool) {
	if m == nil || m.cacheLookupsTotal == nil {
		return // Instrumentation not initialized
	}

	result := ResultMiss
	if hit {
		result = ResultHit
	}
	m.cacheLookupsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrCache, cache),
		attribute.String(attrResult, result),
	))
}

// RecordCacheWrite records a cache write and whether it succeeded.
func (m *Metrics) RecordCacheWrite(ctx context.Context, cache, status string) {
	if m == nil || m.cacheWritesTotal == nil {
		return // Instrumentation not initialized
	}

	m.cacheWritesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrCache, cache),
		attribute.String(attrStatus, status),
	))
}

// RecordCacheEviction records entries removed by a cleanup sweep.
func (m *Metrics) RecordCacheEviction(ctx context.Context, removed int) {
	if m == nil || m.cacheEvictedTotal == nil || removed <= 0 {
		return
	}
	m.cacheEvictedTotal.Add(ctx, int64(removed))
}

// RecordDigestGeneration records a digest request outcome and how many
// summaries were submitted.
func (m *Metrics) RecordDigestGeneration(ctx context.Context, result string, summaries int) {
	if m == nil || m.digestGenerationsTotal == nil || m.digestSummaries == nil {
		return // Instrumentation not initialized
	}

	m.digestGenerationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
	if result == DigestResultGenerated {
		m.digestSummaries.Record(ctx, int64(summaries))
	}
}

// RecordSessionEvent records a session lifecycle event (login, logout, expired, redirect_loop).
func (m *Metrics) RecordSessionEvent(ctx context.Context, event string) {
	if m == nil || m.sessionEventsTotal == nil {
		return // Instrumentation not initialized
	}
	m.sessionEventsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrEvent, event)))
}

// RecordPushEvent records a summary push event. The provider label is only
// attached when detailed labels are enabled.
func (m *Metrics) RecordPushEvent(ctx context.Context, status, provider string) {
	if m == nil || m.pushEventsTotal == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{attribute.String(attrStatus, status)}
	if m.detailedLabels && provider != "" {
		attrs = append(attrs, attribute.String(attrProvider, provider))
	}
	m.pushEventsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordToolInvocation records an MCP tool invocation with tool name, status, and duration.
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	if m == nil || m.toolInvocationsTotal == nil || m.toolDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := metric.WithAttributes(
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	)
	m.toolInvocationsTotal.Add(ctx, 1, attrs)
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
}
