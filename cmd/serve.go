package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxdigest/internal/instrumentation"
	"github.com/teemow/inboxdigest/internal/logging"
	"github.com/teemow/inboxdigest/internal/resources"
	"github.com/teemow/inboxdigest/internal/server"
	"github.com/teemow/inboxdigest/internal/tools/digest_tools"
	"github.com/teemow/inboxdigest/internal/tools/mail_tools"
)

// serveOptions holds the flags of the serve command.
type serveOptions struct {
	yolo           bool
	metricsEnabled bool
	metricsAddr    string
	noPush         bool
}

func newServeCmd(opts *globalOptions) *cobra.Command {
	so := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server over stdio",
		Long: `Start the MCP server so AI assistants can summarize emails and build
daily digests. The server speaks MCP over stdin/stdout; logs go to stderr.

By default the server is read-only: queue_summaries, export_digest_video and
cleanup_cache are hidden. Pass --yolo to enable them.

When REDIS_URL is set and a session exists, the server also listens on the
push channel and caches summaries delivered by the backend.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts, so)
		},
	}

	cmd.Flags().BoolVar(&so.yolo, "yolo", false, "Enable tools that change state")
	cmd.Flags().BoolVar(&so.metricsEnabled, "metrics-enabled", false, "Serve Prometheus metrics and health probes (env METRICS_ENABLED)")
	cmd.Flags().StringVar(&so.metricsAddr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address (env METRICS_ADDR)")
	cmd.Flags().BoolVar(&so.noPush, "no-push", false, "Do not listen on the push channel")

	return cmd
}

func runServe(cmd *cobra.Command, opts *globalOptions, so *serveOptions) error {
	shutdownCtx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	cmd.SetContext(shutdownCtx)

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	if cmd.Flags().Changed("metrics-enabled") {
		instrConfig.MetricsServe = so.metricsEnabled
	}
	if cmd.Flags().Changed("metrics-addr") {
		instrConfig.MetricsAddr = so.metricsAddr
	}

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}

	a, err := opts.newApp(cmd, server.WithMetrics(provider.Metrics()))
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return err
	}
	logger := logging.WithComponent(a.logger, "serve")

	defer func() {
		a.Close()
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Warn("instrumentation shutdown failed", logging.Err(err))
		}
	}()

	if provider.ServeMetrics() {
		health := server.NewHealthChecker(a.sc)
		metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    provider.MetricsAddr(),
			InstrumentationProvider: provider,
			Health:                  health,
			Logger:                  logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		metricsDone := make(chan struct{})
		go func() {
			defer close(metricsDone)
			if err := metricsServer.Run(shutdownCtx); err != nil {
				logger.Error("metrics server stopped", logging.Err(err))
			}
		}()
		defer func() {
			cancel()
			<-metricsDone
		}()
		health.SetReady(true)
	}

	if !so.noPush && a.cfg.RedisURL != "" {
		startPushListener(shutdownCtx, a)
	}

	mcpSrv := mcpserver.NewMCPServer("inboxdigest", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false),
	)

	// readOnly is the inverse of yolo
	readOnly := !so.yolo
	if readOnly {
		logger.Info("starting MCP server in read-only mode (use --yolo to enable write operations)")
	} else {
		logger.Info("starting MCP server with write operations enabled")
	}

	if err := registerAllTools(mcpSrv, a.sc, readOnly); err != nil {
		return err
	}

	return runStdioServer(shutdownCtx, mcpSrv)
}

// startPushListener caches summaries pushed by the backend until ctx ends.
// A missing session only disables the listener.
func startPushListener(ctx context.Context, a *app) {
	logger := logging.WithComponent(a.logger, "serve")
	listener, err := a.sc.PushListener(ctx)
	if err != nil {
		logger.Warn("push listener disabled", logging.Err(err))
		return
	}
	go func() {
		if err := listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("push listener stopped", logging.Err(err))
		}
	}()
}

func runStdioServer(ctx context.Context, mcpSrv *mcpserver.MCPServer) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	select {
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("server stopped with error: %w", err)
		}
		return nil
	case <-ctx.Done():
		return nil
	}
}

// registerAllTools registers all MCP tools and resources
func registerAllTools(mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	type toolRegistration struct {
		name     string
		register func() error
	}

	registrations := []toolRegistration{
		{
			name: "Mail",
			register: func() error {
				return mail_tools.RegisterMailTools(mcpSrv, sc, readOnly)
			},
		},
		{
			name: "Digest",
			register: func() error {
				return digest_tools.RegisterDigestTools(mcpSrv, sc, readOnly)
			},
		},
		{
			name: "Resources",
			register: func() error {
				return resources.RegisterResources(mcpSrv, sc)
			},
		},
	}

	for _, reg := range registrations {
		if err := reg.register(); err != nil {
			return fmt.Errorf("failed to register %s: %w", reg.name, err)
		}
	}

	return nil
}
