package mail_tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxdigest/internal/cache"
	"github.com/teemow/inboxdigest/internal/server"
	"github.com/teemow/inboxdigest/internal/tools/batch"
	"github.com/teemow/inboxdigest/internal/tools/common"
)

// RegisterSummaryTools registers the summary tools. queue_summaries asks the
// backend to do work and is only available when readOnly is false.
func RegisterSummaryTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	cachedTool := mcp.NewTool("get_cached_summary",
		mcp.WithDescription("Return the cached summary of an email without contacting the backend"),
		mcp.WithString("emailId",
			mcp.Required(),
			mcp.Description("Email identifier"),
		),
	)
	s.AddTool(cachedTool, common.InstrumentedToolHandler("get_cached_summary", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetCachedSummary(ctx, request, sc)
		}))

	summarizeTool := mcp.NewTool("summarize_email",
		mcp.WithDescription("Summarize an email. A cached summary is returned unless refresh is set"),
		mcp.WithString("emailId",
			mcp.Required(),
			mcp.Description("Email identifier"),
		),
		mcp.WithBoolean("refresh",
			mcp.Description("Ignore the cached summary and summarize again (default: false)"),
		),
	)
	s.AddTool(summarizeTool, common.InstrumentedToolHandler("summarize_email", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSummarizeEmail(ctx, request, sc)
		}))

	summarizeManyTool := mcp.NewTool("summarize_emails",
		mcp.WithDescription("Summarize several emails concurrently and report the outcome per email"),
		mcp.WithString("emailIds",
			mcp.Required(),
			mcp.Description("Email ID (string) or array of email IDs"),
		),
		mcp.WithBoolean("refresh",
			mcp.Description("Ignore cached summaries and summarize again (default: false)"),
		),
	)
	s.AddTool(summarizeManyTool, common.InstrumentedToolHandler("summarize_emails", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSummarizeEmails(ctx, request, sc)
		}))

	if !readOnly {
		queueTool := mcp.NewTool("queue_summaries",
			mcp.WithDescription("Queue emails for background summarization. Summaries are cached as each one completes"),
			mcp.WithString("emailIds",
				mcp.Required(),
				mcp.Description("Email ID (string) or array of email IDs"),
			),
		)
		s.AddTool(queueTool, common.InstrumentedToolHandler("queue_summaries", sc,
			func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return handleQueueSummaries(ctx, request, sc)
			}))
	}

	return nil
}

func handleGetCachedSummary(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	emailID := common.StringArg(request.GetArguments(), "emailId")
	if emailID == "" {
		return mcp.NewToolResultError("emailId is required"), nil
	}

	summary, err := sc.Inbox().Cached(ctx, emailID)
	if err != nil {
		return common.ErrorResult("Failed to read summary cache", err), nil
	}
	if summary == nil {
		return mcp.NewToolResultText(fmt.Sprintf("No cached summary for %s", emailID)), nil
	}
	return mcp.NewToolResultText(formatSummary(*summary, true)), nil
}

func handleSummarizeEmail(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	emailID := common.StringArg(args, "emailId")
	if emailID == "" {
		return mcp.NewToolResultError("emailId is required"), nil
	}
	refresh := common.BoolArg(args, "refresh", false)

	result, err := sc.Inbox().Summarize(ctx, emailID, refresh)
	if err != nil {
		return common.ErrorResult("Failed to get summary", err), nil
	}
	return mcp.NewToolResultText(formatSummary(*result.Summary, result.FromCache)), nil
}

func handleSummarizeEmails(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	ids, err := batch.EmailIDs(args["emailIds"], "emailIds")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	refresh := common.BoolArg(args, "refresh", false)

	results, err := sc.Inbox().SummarizeMany(ctx, ids, refresh)
	// only a session failure aborts the batch
	if err != nil {
		return common.ErrorResult("Failed to summarize emails", err), nil
	}
	return mcp.NewToolResultText(batch.NewReport(results).String()), nil
}

func handleQueueSummaries(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	ids, err := batch.EmailIDs(request.GetArguments()["emailIds"], "emailIds")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	msg, err := sc.Inbox().QueueBatch(ctx, ids)
	if err != nil {
		return common.ErrorResult("Failed to queue emails", err), nil
	}
	return mcp.NewToolResultText(msg), nil
}

// formatSummary renders a cached summary with its provenance.
func formatSummary(s cache.CachedSummary, fromCache bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Email: %s\n", s.EmailID)
	if s.EmailSubject != "" {
		fmt.Fprintf(&b, "Subject: %s\n", s.EmailSubject)
	}
	if s.EmailDate != "" {
		fmt.Fprintf(&b, "Date: %s\n", s.EmailDate)
	}
	source := "backend"
	if fromCache {
		source = "cache"
	}
	fmt.Fprintf(&b, "Cached at: %s (source: %s)\n", s.CachedAt, source)

	if f, err := s.Fields(); err == nil {
		if f.Category != "" {
			fmt.Fprintf(&b, "Category: %s\n", f.Category)
		}
		if len(f.KeywordsFound) > 0 {
			fmt.Fprintf(&b, "Keywords: %s\n", strings.Join(f.KeywordsFound, ", "))
		}
	}

	b.WriteString("\n")
	b.WriteString(s.SummaryHTMLFull)
	return b.String()
}
