package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxdigest/internal/cache"
	"github.com/teemow/inboxdigest/internal/digest"
	"github.com/teemow/inboxdigest/internal/inbox"
	"github.com/teemow/inboxdigest/internal/logging"
)

func newLabelsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "labels",
		Short: "List mailbox labels and folders",
		Args:  cobra.NoArgs,
		RunE: opts.guarded(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			labels, err := a.sc.Gateway().ListLabels(ctx)
			if err != nil {
				return err
			}
			if a.printer.JSONMode() {
				return a.printer.JSON(labels)
			}

			table := a.printer.NewTable("ID", "Name")
			for _, l := range labels {
				table.AddRow(l.ID, l.Name)
			}
			return table.Render()
		}),
	}
}

func newEmailsCmd(opts *globalOptions) *cobra.Command {
	var label string
	cmd := &cobra.Command{
		Use:   "emails",
		Short: "List emails of a label and show which are summarized",
		Args:  cobra.NoArgs,
		RunE: opts.guarded(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			emails, err := a.sc.Inbox().ListEmails(ctx, label)
			if err != nil {
				return err
			}
			if a.printer.JSONMode() {
				return a.printer.JSON(emails)
			}
			if len(emails) == 0 {
				a.printer.Info("No emails found.")
				return nil
			}

			table := a.printer.NewTable("ID", "Provider", "Date", "From", "Subject", "Summary")
			for _, e := range emails {
				table.AddRow(e.ID,
					a.printer.Provider(string(digest.ProviderFor(e.ID))),
					e.Date,
					e.From,
					e.Subject,
					a.printer.Check(e.Summarized))
			}
			return table.Render()
		}),
	}
	cmd.Flags().StringVar(&label, "label", "INBOX", "Label or folder id to list")
	return cmd
}

// summarizeResult is the JSON form of one summarize outcome.
type summarizeResult struct {
	inbox.Result
	Error string `json:"error,omitempty"`
}

func newSummarizeCmd(opts *globalOptions) *cobra.Command {
	var (
		refresh bool
		queue   bool
	)
	cmd := &cobra.Command{
		Use:   "summarize <email-id>...",
		Short: "Summarize emails and cache the results",
		Long: `Summarize one or more emails. Cached summaries are reused unless --refresh
is set. With --queue the emails are handed to the backend for background
summarization instead; run "inboxdigest listen" or "inboxdigest serve" with
REDIS_URL set to receive the results.`,
		Args: cobra.MinimumNArgs(1),
		RunE: opts.guarded(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			if queue {
				msg, err := a.sc.Inbox().QueueBatch(ctx, args)
				if err != nil {
					return err
				}
				return a.printer.Result(map[string]string{"message": msg}, func() {
					a.printer.Success("%s", msg)
				})
			}

			results, err := a.sc.Inbox().SummarizeMany(ctx, args, refresh)
			if err != nil {
				return err
			}
			return printSummarizeResults(a, results)
		}),
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Ignore cached summaries and summarize again")
	cmd.Flags().BoolVar(&queue, "queue", false, "Queue the emails for background summarization")
	return cmd
}

func printSummarizeResults(a *app, results []inbox.Result) error {
	failed := 0
	out := make([]summarizeResult, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
		out = append(out, summarizeResult{Result: r, Error: r.Error()})
	}

	if a.printer.JSONMode() {
		if err := a.printer.JSON(out); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			switch {
			case r.Err != nil:
				a.printer.Error("%s: %v", r.EmailID, r.Err)
			case r.FromCache:
				a.printer.Success("%s %s", r.EmailID, a.printer.Dim("(cached)"))
			default:
				a.printer.Success("%s", r.EmailID)
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d emails could not be summarized", failed, len(results))
	}
	return nil
}

func newSummaryCmd(opts *globalOptions) *cobra.Command {
	var html bool
	cmd := &cobra.Command{
		Use:   "summary <email-id>",
		Short: "Show the cached summary of an email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.sc.Inbox().Cached(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if s == nil {
				return fmt.Errorf("no cached summary for %s; run `inboxdigest summarize %s`", args[0], args[0])
			}
			if a.printer.JSONMode() {
				return a.printer.JSON(s)
			}
			return printSummary(a, *s, html)
		},
	}
	cmd.Flags().BoolVar(&html, "html", false, "Print the full HTML summary")
	return cmd
}

func printSummary(a *app, s cache.CachedSummary, html bool) error {
	p := a.printer
	p.Header(s.EmailSubject)
	p.Print("ID:        %s (%s)", s.EmailID, p.Provider(string(digest.ProviderFor(s.EmailID))))
	if s.EmailDate != "" {
		p.Print("Date:      %s", s.EmailDate)
	}
	p.Print("Cached at: %s", s.CachedAt)

	fields, err := s.Fields()
	if err != nil {
		a.logger.Debug("summary_json not decodable", logging.Err(err))
	}
	if fields.Category != "" {
		p.Print("Category:  %s", fields.Category)
	}
	if fields.AudioScript != "" {
		p.Print("")
		p.Print("%s", fields.AudioScript)
	}
	if html {
		p.Print("")
		p.Print("%s", s.SummaryHTMLFull)
	}
	return nil
}
