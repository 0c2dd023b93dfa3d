package common

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/teemow/inboxdigest/internal/instrumentation"
	"github.com/teemow/inboxdigest/internal/logging"
	"github.com/teemow/inboxdigest/internal/server"
)

// ToolHandler is the signature of an MCP tool handler.
type ToolHandler = func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// InstrumentedToolHandler runs handler inside a "tool.<name>" span and
// records the invocation count, duration and outcome. Error results count
// as failures just like Go errors.
//
//	s.AddTool(tool, common.InstrumentedToolHandler("list_digests", sc, handleListDigests))
func InstrumentedToolHandler(toolName string, sc *server.ServerContext, handler ToolHandler) ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, span := instrumentation.StartToolSpan(ctx, toolName)
		defer span.End()

		start := time.Now()
		result, err := handler(ctx, request)
		elapsed := time.Since(start)

		status := finishToolSpan(span, result, err)
		sc.Metrics().RecordToolInvocation(ctx, toolName, status, elapsed)
		logging.WithTool(sc.Logger(), toolName).Debug("tool invoked",
			logging.Status(status),
			logging.Duration(elapsed),
			logging.Err(err))

		return result, err
	}
}

func finishToolSpan(span trace.Span, result *mcp.CallToolResult, err error) string {
	switch {
	case err != nil:
		instrumentation.SetSpanError(span, err)
		return instrumentation.StatusError
	case result != nil && result.IsError:
		span.SetStatus(codes.Error, firstText(result))
		return instrumentation.StatusError
	}
	instrumentation.SetSpanSuccess(span)
	return instrumentation.StatusSuccess
}

func firstText(r *mcp.CallToolResult) string {
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}
