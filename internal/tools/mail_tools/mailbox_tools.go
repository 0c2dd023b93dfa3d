package mail_tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/inboxdigest/internal/server"
	"github.com/teemow/inboxdigest/internal/tools/common"
)

type authStatusResult struct {
	LoggedIn            bool   `json:"loggedIn"`
	UserID              string `json:"userId,omitempty"`
	Email               string `json:"email,omitempty"`
	IsGoogleConnected   bool   `json:"isGoogleConnected"`
	IsO365Connected     bool   `json:"isO365Connected"`
	OnboardingCompleted bool   `json:"onboardingCompleted"`
}

func handleAuthStatus(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	user, err := sc.Session().CurrentUser(ctx)
	if err != nil {
		return common.ErrorResult("Failed to read session", err), nil
	}

	status, err := sc.Gateway().AuthStatus(ctx)
	if err != nil {
		return common.ErrorResult("Failed to get auth status", err), nil
	}

	result := authStatusResult{
		LoggedIn:            true,
		IsGoogleConnected:   status.IsGoogleConnected,
		IsO365Connected:     status.IsO365Connected,
		OnboardingCompleted: status.OnboardingCompleted,
	}
	if user != nil {
		result.UserID = user.ID
		result.Email = user.Email
	}
	return common.JSONResult(result)
}

func handleListLabels(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	labels, err := sc.Gateway().ListLabels(ctx)
	if err != nil {
		return common.ErrorResult("Failed to list labels", err), nil
	}

	if len(labels) == 0 {
		return mcp.NewToolResultText("No labels found"), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d labels:\n\n", len(labels))
	for _, l := range labels {
		fmt.Fprintf(&b, "- %s (ID: %s)\n", l.Name, l.ID)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func handleListEmails(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	labelID := common.StringArg(args, "labelId")
	maxResults := common.IntArg(args, "maxResults", 0)

	emails, err := sc.Inbox().ListEmails(ctx, labelID)
	if err != nil {
		return common.ErrorResult("Failed to list emails", err), nil
	}

	if maxResults > 0 && len(emails) > maxResults {
		emails = emails[:maxResults]
	}
	if len(emails) == 0 {
		return mcp.NewToolResultText("No emails found"), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d emails:\n\n", len(emails))
	for i, e := range emails {
		marker := " "
		if e.Summarized {
			marker = "*"
		}
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, marker, e.Subject)
		fmt.Fprintf(&b, "   ID: %s\n", e.ID)
		if e.From != "" {
			fmt.Fprintf(&b, "   From: %s\n", e.From)
		}
		if e.Date != "" {
			fmt.Fprintf(&b, "   Date: %s\n", e.Date)
		}
		if e.Snippet != "" {
			fmt.Fprintf(&b, "   Snippet: %s\n", e.Snippet)
		}
		b.WriteString("\n")
	}
	b.WriteString("[*] = summary cached")
	return mcp.NewToolResultText(b.String()), nil
}

func handleGetEmail(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	emailID := common.StringArg(args, "emailId")
	if emailID == "" {
		return mcp.NewToolResultError("emailId is required"), nil
	}

	email, err := sc.Gateway().GetEmail(ctx, emailID)
	if err != nil {
		return common.ErrorResult("Failed to fetch email content", err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Subject: %s\n", email.Subject)
	fmt.Fprintf(&b, "From: %s\n", email.From)
	if email.To != "" {
		fmt.Fprintf(&b, "To: %s\n", email.To)
	}
	fmt.Fprintf(&b, "Date: %s\n", email.Date)
	fmt.Fprintf(&b, "ID: %s\n\n", email.ID)
	b.WriteString(email.Body)
	return mcp.NewToolResultText(b.String()), nil
}
