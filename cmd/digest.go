package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxdigest/internal/cache"
	"github.com/teemow/inboxdigest/internal/digest"
)

// dateArg returns the first argument, or today when none is given.
func dateArg(a *app, args []string) (string, error) {
	if len(args) == 0 || args[0] == "" {
		return a.sc.Assembler().Today(), nil
	}
	if err := cache.ValidateDate(args[0]); err != nil {
		return "", err
	}
	return args[0], nil
}

func newDatesCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dates",
		Short: "List the days that have cached summaries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			dates, err := a.sc.Assembler().AvailableDates(ctx)
			if err != nil {
				return err
			}
			if a.printer.JSONMode() {
				return a.printer.JSON(dates)
			}
			if len(dates) == 0 {
				a.printer.Info("No cached summaries yet.")
				return nil
			}

			table := a.printer.NewTable("Date", "Gmail", "Outlook", "Other", "Total")
			for _, date := range dates {
				counts, err := a.sc.Assembler().CountByProviderForDate(ctx, date)
				if err != nil {
					return err
				}
				table.AddRow(date,
					strconv.Itoa(counts.Gmail),
					strconv.Itoa(counts.Outlook),
					strconv.Itoa(counts.Unknown),
					strconv.Itoa(counts.Total))
			}
			return table.Render()
		},
	}
}

// dayReport is the JSON form of the counts command.
type dayReport struct {
	Date      string                                    `json:"date"`
	Counts    digest.ProviderCounts                     `json:"counts"`
	Summaries map[digest.Provider][]cache.CachedSummary `json:"summaries,omitempty"`
}

func newCountsCmd(opts *globalOptions) *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "counts [date]",
		Short: "Count a day's summaries per provider",
		Long:  "Count the cached summaries of a day (YYYY-MM-DD, default today) per mail provider.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			date, err := dateArg(a, args)
			if err != nil {
				return err
			}
			report := dayReport{Date: date}
			if report.Counts, err = a.sc.Assembler().CountByProviderForDate(ctx, date); err != nil {
				return err
			}
			if list {
				if report.Summaries, err = a.sc.Assembler().SummariesByProvider(ctx, date); err != nil {
					return err
				}
			}

			return a.printer.Result(report, func() { printDay(a, report) })
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "List the summaries grouped by provider")
	return cmd
}

func printDay(a *app, r dayReport) {
	p := a.printer
	p.Header(r.Date)
	p.Print("%s %d  %s %d  %s %d  total %d",
		p.Provider(string(digest.ProviderGmail)), r.Counts.Gmail,
		p.Provider(string(digest.ProviderOutlook)), r.Counts.Outlook,
		p.Provider(string(digest.ProviderUnknown)), r.Counts.Unknown,
		r.Counts.Total)

	for _, provider := range []digest.Provider{digest.ProviderGmail, digest.ProviderOutlook, digest.ProviderUnknown} {
		summaries := r.Summaries[provider]
		if len(summaries) == 0 {
			continue
		}
		p.Print("")
		p.Print("%s", p.Bold(string(provider)))
		for _, s := range summaries {
			p.Print("  %s  %s", s.EmailID, s.EmailSubject)
		}
	}
}

func newDigestCmd(opts *globalOptions) *cobra.Command {
	var (
		video bool
		dir   string
	)
	cmd := &cobra.Command{
		Use:   "digest [date]",
		Short: "Show or generate the daily digest of a day",
		Long: `Show the daily digest of a day (YYYY-MM-DD, default today). When none is
saved it is generated from the day's cached summaries. With --video the digest
is also rendered to daily_digest_<date>.mp4 in --dir.`,
		Args: cobra.MaximumNArgs(1),
		RunE: opts.guarded(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			date, err := dateArg(a, args)
			if err != nil {
				return err
			}

			result, err := a.sc.Orchestrator().Generate(ctx, date)
			if errors.Is(err, digest.ErrNoSummaries) {
				return fmt.Errorf("%s: %w", date, err)
			}
			if err != nil {
				return err
			}

			var videoPath string
			if video {
				path, n, err := a.sc.Orchestrator().ExportVideoFile(ctx, result.Digest, dir)
				if err != nil {
					return err
				}
				videoPath = path
				a.logger.Debug("video written", slog.String("path", path), slog.Int64("bytes", n))
			}

			payload := map[string]any{
				"digest":    result.Digest,
				"fromCache": result.FromCache,
				"state":     a.sc.Orchestrator().State(date).String(),
			}
			if videoPath != "" {
				payload["video"] = videoPath
			}
			return a.printer.Result(payload, func() {
				source := "generated"
				if result.FromCache {
					source = "saved"
				}
				a.printer.Header(fmt.Sprintf("Daily digest %s", date))
				a.printer.Print("%s", a.printer.Dim(fmt.Sprintf("%d emails, %s", result.Digest.TotalEmails, source)))
				if script := result.Digest.Script(); script != "" {
					a.printer.Print("")
					a.printer.Print("%s", script)
				}
				if videoPath != "" {
					a.printer.Success("Video saved to %s", videoPath)
				}
			})
		}),
	}
	cmd.Flags().BoolVar(&video, "video", false, "Render the digest to an MP4 video")
	cmd.Flags().StringVar(&dir, "dir", ".", "Directory for the video file")
	return cmd
}

func newDigestsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "digests",
		Short: "List saved daily digests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			digests, err := a.sc.Digests().All(cmd.Context())
			if err != nil {
				return err
			}
			if a.printer.JSONMode() {
				return a.printer.JSON(digests)
			}
			if len(digests) == 0 {
				a.printer.Info("No saved digests.")
				return nil
			}

			table := a.printer.NewTable("Date", "Emails", "Saved", "Script")
			for _, d := range digests {
				table.AddRow(d.Date, strconv.Itoa(d.TotalEmails), d.SavedAt, a.printer.Check(d.Script() != ""))
			}
			return table.Render()
		},
	}
}

func newCleanupCmd(opts *globalOptions) *cobra.Command {
	var (
		maxAgeDays int
		forever    bool
	)
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove old and unreadable cache entries",
		Long: `Remove cached summaries and digests older than --max-age-days (default from
INBOXDIGEST_CACHE_MAX_AGE_DAYS, 30 days). Entries that cannot be parsed are
always removed. With --keep-forever only unparsable entries are removed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			maxAge := a.cfg.CacheMaxAge
			switch {
			case forever:
				maxAge = cache.KeepForever
			case cmd.Flags().Changed("max-age-days"):
				if maxAgeDays < 0 {
					return fmt.Errorf("--max-age-days must not be negative")
				}
				maxAge = cache.MaxAgeFromDays(float64(maxAgeDays))
			}

			removed, err := a.sc.Maintainer().Cleanup(cmd.Context(), maxAge)
			if err != nil {
				return err
			}
			return a.printer.Result(map[string]int{"removed": removed}, func() {
				a.printer.Success("Removed %d cache entries", removed)
			})
		},
	}
	cmd.Flags().IntVar(&maxAgeDays, "max-age-days", 0, "Remove entries at least this many days old")
	cmd.Flags().BoolVar(&forever, "keep-forever", false, "Only remove unparsable entries")
	cmd.MarkFlagsMutuallyExclusive("max-age-days", "keep-forever")
	return cmd
}
