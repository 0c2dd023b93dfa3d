package digest_tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/inboxdigest/internal/cache"
	"github.com/teemow/inboxdigest/internal/digest"
	"github.com/teemow/inboxdigest/internal/server"
	"github.com/teemow/inboxdigest/internal/tools/common"
)

// dateArg returns the date argument, defaulting to today in the assembler location.
func dateArg(args map[string]interface{}, sc *server.ServerContext) (string, error) {
	date := strings.TrimSpace(common.StringArg(args, "date"))
	if date == "" {
		return sc.Assembler().Today(), nil
	}
	if err := cache.ValidateDate(date); err != nil {
		return "", err
	}
	return date, nil
}

func handleListSummaryDates(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	dates, err := sc.Assembler().AvailableDates(ctx)
	if err != nil {
		return common.ErrorResult("Failed to list summary dates", err), nil
	}
	if len(dates) == 0 {
		return mcp.NewToolResultText("No cached summaries yet"), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d dates with summaries:\n\n", len(dates))
	for _, d := range dates {
		fmt.Fprintf(&b, "- %s\n", d)
	}
	return mcp.NewToolResultText(b.String()), nil
}

type countsResult struct {
	Date string `json:"date"`
	digest.ProviderCounts
}

func handleSummaryCounts(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	date, err := dateArg(request.GetArguments(), sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	counts, err := sc.Assembler().CountByProviderForDate(ctx, date)
	if err != nil {
		return common.ErrorResult("Failed to count summaries", err), nil
	}
	return common.JSONResult(countsResult{Date: date, ProviderCounts: counts})
}

func handleListSummariesForDate(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	date, err := dateArg(args, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if common.BoolArg(args, "groupByProvider", false) {
		grouped, err := sc.Assembler().SummariesByProvider(ctx, date)
		if err != nil {
			return common.ErrorResult("Failed to list summaries", err), nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "Summaries for %s by provider:\n", date)
		for _, p := range []digest.Provider{digest.ProviderGmail, digest.ProviderOutlook, digest.ProviderUnknown} {
			fmt.Fprintf(&b, "\n%s (%d):\n", p, len(grouped[p]))
			for _, s := range grouped[p] {
				writeSummaryLine(&b, s)
			}
		}
		return mcp.NewToolResultText(b.String()), nil
	}

	summaries, err := sc.Assembler().SummariesForDate(ctx, date)
	if err != nil {
		return common.ErrorResult("Failed to list summaries", err), nil
	}
	if len(summaries) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No summaries for %s", date)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d summaries for %s:\n\n", len(summaries), date)
	for _, s := range summaries {
		writeSummaryLine(&b, s)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func writeSummaryLine(b *strings.Builder, s cache.CachedSummary) {
	category := ""
	if f, err := s.Fields(); err == nil && f.Category != "" {
		category = " [" + f.Category + "]"
	}
	fmt.Fprintf(b, "- %s%s\n  ID: %s, Date: %s\n", s.EmailSubject, category, s.EmailID, s.EffectiveDate())
}

func handleCleanupCache(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	maxAge := sc.Config().CacheMaxAge
	if days, ok := request.GetArguments()["maxAgeDays"].(float64); ok {
		if days < 0 {
			return mcp.NewToolResultError("maxAgeDays cannot be negative"), nil
		}
		maxAge = cache.MaxAgeFromDays(days)
	}

	removed, err := sc.Maintainer().Cleanup(ctx, maxAge)
	if err != nil {
		return common.ErrorResult("Failed to clean up cache", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Removed %d cached entries", removed)), nil
}
