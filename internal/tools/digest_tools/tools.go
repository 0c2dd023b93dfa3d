package digest_tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxdigest/internal/server"
	"github.com/teemow/inboxdigest/internal/tools/common"
)

const dateDescription = "Calendar date in YYYY-MM-DD format (default: today)"

// RegisterDigestTools registers all digest-related tools with the MCP server
func RegisterDigestTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	datesTool := mcp.NewTool("list_summary_dates",
		mcp.WithDescription("List the calendar dates that have cached email summaries, most recent first"),
	)
	s.AddTool(datesTool, common.InstrumentedToolHandler("list_summary_dates", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListSummaryDates(ctx, request, sc)
		}))

	countsTool := mcp.NewTool("summary_counts",
		mcp.WithDescription("Count the cached summaries of a date per mail provider"),
		mcp.WithString("date",
			mcp.Description(dateDescription),
		),
	)
	s.AddTool(countsTool, common.InstrumentedToolHandler("summary_counts", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSummaryCounts(ctx, request, sc)
		}))

	summariesTool := mcp.NewTool("list_summaries_for_date",
		mcp.WithDescription("List the cached summaries of a date in chronological order"),
		mcp.WithString("date",
			mcp.Description(dateDescription),
		),
		mcp.WithBoolean("groupByProvider",
			mcp.Description("Group the summaries by mail provider (default: false)"),
		),
	)
	s.AddTool(summariesTool, common.InstrumentedToolHandler("list_summaries_for_date", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListSummariesForDate(ctx, request, sc)
		}))

	if err := RegisterDailyDigestTools(s, sc, readOnly); err != nil {
		return fmt.Errorf("failed to register daily digest tools: %w", err)
	}

	if !readOnly {
		cleanupTool := mcp.NewTool("cleanup_cache",
			mcp.WithDescription("Remove cached summaries and digests older than the given number of days"),
			mcp.WithNumber("maxAgeDays",
				mcp.Description("Retention in days (default: the configured cache max age, 0 removes everything)"),
			),
		)
		s.AddTool(cleanupTool, common.InstrumentedToolHandler("cleanup_cache", sc,
			func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return handleCleanupCache(ctx, request, sc)
			}))
	}

	return nil
}
