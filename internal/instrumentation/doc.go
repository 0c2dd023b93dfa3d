// Package instrumentation provides OpenTelemetry instrumentation for the
// inboxdigest client and its MCP server.
//
// This package provides:
//   - OpenTelemetry metrics for gateway calls, cache behavior, digest generation and sessions
//   - Distributed tracing for gateway calls and MCP tool invocations
//   - Prometheus metrics export via a dedicated metrics port
//   - OTLP export support for modern observability platforms
//
// # Metrics
//
// Gateway Metrics:
//   - gateway_requests_total: Counter of backend calls by operation and status
//   - gateway_request_duration_seconds: Histogram of backend call durations
//
// Cache Metrics:
//   - cache_lookups_total: Counter of summary/digest lookups by result (hit, miss)
//   - cache_writes_total: Counter of cache writes by status
//   - cache_evicted_total: Counter of entries removed by the maintenance sweep
//
// Digest and Session Metrics:
//   - digest_generations_total: Counter of digest requests by outcome
//   - digest_summaries: Histogram of summaries submitted per generation
//   - session_events_total: Counter of login, logout, expiry and redirect-loop events
//   - push_events_total: Counter of summary push events
//
// MCP Tool Metrics:
//   - mcp_tool_invocations_total: Counter of MCP tool invocations by tool name and status
//   - mcp_tool_duration_seconds: Histogram of MCP tool execution durations
//
// # Tracing
//
// Spans are created for gateway calls (gateway.<operation>), MCP tool
// invocations (tool.<name>) and digest generation (digest.generate).
//
// # Configuration
//
// Instrumentation can be configured via environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: Metrics exporter type (prometheus, otlp, stdout, default: prometheus)
//   - TRACING_EXPORTER: Tracing exporter type (otlp, stdout, none, default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: inboxdigest)
//   - METRICS_ENABLED, METRICS_ADDR: serve /metrics next to the MCP server (default: off, :9090)
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer provider.Shutdown(ctx)
//
//	metrics := provider.Metrics()
//	metrics.RecordCacheLookup(ctx, instrumentation.CacheSummary, true)
package instrumentation
