package mail_tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxdigest/internal/server"
	"github.com/teemow/inboxdigest/internal/tools/common"
)

// RegisterMailTools registers all session and mailbox tools with the MCP server
func RegisterMailTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	authStatusTool := mcp.NewTool("auth_status",
		mcp.WithDescription("Show the signed-in user and which mail providers are connected"),
	)
	s.AddTool(authStatusTool, common.InstrumentedToolHandler("auth_status", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleAuthStatus(ctx, request, sc)
		}))

	listLabelsTool := mcp.NewTool("list_labels",
		mcp.WithDescription("List the mailbox labels and folders"),
	)
	s.AddTool(listLabelsTool, common.InstrumentedToolHandler("list_labels", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListLabels(ctx, request, sc)
		}))

	listEmailsTool := mcp.NewTool("list_emails",
		mcp.WithDescription("List the emails of a label and mark which ones already have a cached summary"),
		mcp.WithString("labelId",
			mcp.Description("Label to list (default: INBOX)"),
		),
		mcp.WithNumber("maxResults",
			mcp.Description("Maximum number of emails to return (default: all)"),
		),
	)
	s.AddTool(listEmailsTool, common.InstrumentedToolHandler("list_emails", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListEmails(ctx, request, sc)
		}))

	getEmailTool := mcp.NewTool("get_email",
		mcp.WithDescription("Fetch the full content of an email"),
		mcp.WithString("emailId",
			mcp.Required(),
			mcp.Description("Email identifier"),
		),
	)
	s.AddTool(getEmailTool, common.InstrumentedToolHandler("get_email", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetEmail(ctx, request, sc)
		}))

	if err := RegisterSummaryTools(s, sc, readOnly); err != nil {
		return fmt.Errorf("failed to register summary tools: %w", err)
	}

	return nil
}
