package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxdigest/internal/config"
	"github.com/teemow/inboxdigest/internal/logging"
	"github.com/teemow/inboxdigest/internal/output"
	"github.com/teemow/inboxdigest/internal/server"
	"github.com/teemow/inboxdigest/internal/session"
)

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
}

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	envFile   string
	apiURL    string
	store     string
	jsonOut   bool
	color     string
	logLevel  string
	logFormat string
}

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "inboxdigest",
		Short: "Summarize your inbox and build a daily digest",
		Long: `inboxdigest talks to the summarization gateway to summarize emails,
keeps the summaries in a local cache and turns one day's summaries into a
daily digest.

It can run as:
  - A command-line client (default)
  - An MCP (Model Context Protocol) server for AI assistants`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetVersionTemplate(`{{printf "inboxdigest version %s\n" .Version}}`)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.envFile, "env-file", "", "Environment file to load (default: .env when present)")
	flags.StringVar(&opts.apiURL, "api-url", "", "Backend gateway base URL. Can also use INBOXDIGEST_API_URL env var.")
	flags.StringVar(&opts.store, "store", "", "State backend: file, memory or redis. Can also use INBOXDIGEST_STORE env var.")
	flags.BoolVar(&opts.jsonOut, "json", false, "Print results as JSON")
	flags.StringVar(&opts.color, "color", "auto", "Colorize output: auto, always or never")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn or error. Can also use LOG_LEVEL env var.")
	flags.StringVar(&opts.logFormat, "log-format", "", "Log format: text or json. Can also use LOG_FORMAT env var.")

	rootCmd.AddCommand(
		newLoginCmd(opts),
		newSignupCmd(opts),
		newLogoutCmd(opts),
		newStatusCmd(opts),
		newLabelsCmd(opts),
		newEmailsCmd(opts),
		newSummarizeCmd(opts),
		newSummaryCmd(opts),
		newDatesCmd(opts),
		newCountsCmd(opts),
		newDigestCmd(opts),
		newDigestsCmd(opts),
		newCleanupCmd(opts),
		newListenCmd(opts),
		newServeCmd(opts),
		newGenerateDocsCmd(),
		newVersionCmd(opts),
	)
	return rootCmd
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the env file and environment, then applies flag overrides.
func (o *globalOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(o.envFile)
	if err != nil {
		return config.Config{}, err
	}
	if o.apiURL != "" {
		cfg.APIURL = o.apiURL
	}
	if o.store != "" {
		cfg.Store = o.store
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.logFormat != "" {
		cfg.LogFormat = o.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// app bundles what a command needs at run time.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	printer *output.Printer
	sc      *server.ServerContext
}

// newApp loads the configuration and wires the services.
func (o *globalOptions) newApp(cmd *cobra.Command, extra ...server.Option) (*app, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	mode, err := output.ParseColorMode(o.color)
	if err != nil {
		return nil, err
	}
	format := output.FormatText
	if o.jsonOut {
		format = output.FormatJSON
	}
	printer := output.NewPrinterWithWriters(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.ResolveColors(mode), format)

	serverOpts := append([]server.Option{server.WithLogger(logger)}, extra...)
	sc, err := server.NewServerContext(cmd.Context(), cfg, serverOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create server context: %w", err)
	}

	return &app{cfg: cfg, logger: logger, printer: printer, sc: sc}, nil
}

// Close releases the server context.
func (a *app) Close() {
	if err := a.sc.Shutdown(); err != nil {
		a.logger.Warn("shutdown failed", logging.Err(err))
	}
}

// errLoginRequired is returned after a guarded command found no valid session.
var errLoginRequired = errors.New("please log in with `inboxdigest login`")

// sessionError counts an unauthenticated landing and translates session
// failures into user-facing errors. Other errors pass through.
func (a *app) sessionError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if !errors.Is(err, session.ErrNotLoggedIn) && !errors.Is(err, session.ErrSessionExpired) {
		return err
	}

	if landingErr := a.sc.Session().RecordLanding(ctx); errors.Is(landingErr, session.ErrRedirectLoop) {
		return landingErr
	} else if landingErr != nil {
		a.logger.Warn("failed to record login attempt", logging.Err(landingErr))
	}

	if errors.Is(err, session.ErrSessionExpired) {
		return fmt.Errorf("%w: %w", session.ErrSessionExpired, errLoginRequired)
	}
	return fmt.Errorf("%w: %w", session.ErrNotLoggedIn, errLoginRequired)
}

// guarded runs fn with a wired app and applies the session guard to its error.
func (o *globalOptions) guarded(fn func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := o.newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		return a.sessionError(ctx, fn(ctx, cmd, a, args))
	}
}
