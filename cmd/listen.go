package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newListenCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Cache summaries pushed by the backend",
		Long: `Subscribe to the push channel of the logged-in user on REDIS_URL and cache
every summary the backend delivers for queued emails. Runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: opts.guarded(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer cancel()

			listener, err := a.sc.PushListener(ctx)
			if err != nil {
				return err
			}
			a.printer.Info("Listening on %s (Ctrl-C to stop)", listener.Channel())
			return listener.Run(ctx)
		}),
	}
}
