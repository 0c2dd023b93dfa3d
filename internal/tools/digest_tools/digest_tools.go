package digest_tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxdigest/internal/digest"
	"github.com/teemow/inboxdigest/internal/server"
	"github.com/teemow/inboxdigest/internal/tools/common"
)

// RegisterDailyDigestTools registers the digest generation tools. Video
// export writes files and is only available when readOnly is false.
func RegisterDailyDigestTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	generateTool := mcp.NewTool("generate_daily_digest",
		mcp.WithDescription("Return the daily digest of a date, generating it from the cached summaries when none is saved"),
		mcp.WithString("date",
			mcp.Description(dateDescription),
		),
	)
	s.AddTool(generateTool, common.InstrumentedToolHandler("generate_daily_digest", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGenerateDailyDigest(ctx, request, sc)
		}))

	listTool := mcp.NewTool("list_daily_digests",
		mcp.WithDescription("List the saved daily digests, newest first"),
	)
	s.AddTool(listTool, common.InstrumentedToolHandler("list_daily_digests", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListDailyDigests(ctx, request, sc)
		}))

	if !readOnly {
		videoTool := mcp.NewTool("export_digest_video",
			mcp.WithDescription("Render a saved daily digest as a narrated video file"),
			mcp.WithString("date",
				mcp.Description(dateDescription),
			),
			mcp.WithString("directory",
				mcp.Description("Directory to write daily_digest_<date>.mp4 into (default: current directory)"),
			),
		)
		s.AddTool(videoTool, common.InstrumentedToolHandler("export_digest_video", sc,
			func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return handleExportDigestVideo(ctx, request, sc)
			}))
	}

	return nil
}

func handleGenerateDailyDigest(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	date, err := dateArg(request.GetArguments(), sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := sc.Orchestrator().Generate(ctx, date)
	if errors.Is(err, digest.ErrNoSummaries) {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err != nil {
		return common.ErrorResult("Failed to generate daily digest", err), nil
	}

	source := "generated"
	if result.FromCache {
		source = "saved"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Daily digest for %s (%s, %d emails)\n\n", date, source, result.Digest.TotalEmails)
	b.WriteString(result.Digest.DigestHTML)
	return mcp.NewToolResultText(b.String()), nil
}

type digestEntry struct {
	Date        string `json:"date"`
	TotalEmails int    `json:"totalEmails"`
	SavedAt     string `json:"savedAt,omitempty"`
	HasScript   bool   `json:"hasAudioScript"`
}

func handleListDailyDigests(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	digests, err := sc.Digests().All(ctx)
	if err != nil {
		return common.ErrorResult("Failed to list daily digests", err), nil
	}

	entries := make([]digestEntry, 0, len(digests))
	for _, d := range digests {
		entries = append(entries, digestEntry{
			Date:        d.Date,
			TotalEmails: d.TotalEmails,
			SavedAt:     d.SavedAt,
			HasScript:   d.Script() != "",
		})
	}
	return common.JSONResult(entries)
}

func handleExportDigestVideo(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	date, err := dateArg(args, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	saved, err := sc.Digests().Get(ctx, date)
	if err != nil {
		return common.ErrorResult("Failed to read daily digest", err), nil
	}
	if saved == nil {
		return mcp.NewToolResultError(fmt.Sprintf("No daily digest saved for %s. Generate it first.", date)), nil
	}

	path, n, err := sc.Orchestrator().ExportVideoFile(ctx, *saved, common.StringArg(args, "directory"))
	if errors.Is(err, digest.ErrInsufficientVideoData) {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err != nil {
		return common.ErrorResult("Failed to generate video", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Video saved to %s (%d bytes)", path, n)), nil
}
