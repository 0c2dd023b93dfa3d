// Package server wires the inboxdigest runtime.
//
// ServerContext opens the configured key-value store and builds the summary
// cache, digest store, session guard, gateway client, inbox service and
// digest orchestrator on top of it. CLI commands and MCP tools share one
// ServerContext per process.
//
// MetricsServer exposes the Prometheus registry populated by the
// OpenTelemetry exporter together with liveness and readiness probes. The
// readiness probe fails while shutting down or when the store is unreachable.
package server
