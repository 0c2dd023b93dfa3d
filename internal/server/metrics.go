package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teemow/inboxdigest/internal/instrumentation"
	"github.com/teemow/inboxdigest/internal/logging"
)

// Metrics server defaults.
const (
	DefaultMetricsAddr         = instrumentation.DefaultMetricsAddr
	DefaultMetricsReadTimeout  = 10 * time.Second
	DefaultMetricsWriteTimeout = 10 * time.Second
	DefaultMetricsIdleTimeout  = 60 * time.Second
	DefaultShutdownTimeout     = 30 * time.Second
)

// MetricsServerConfig configures the scrape endpoint.
type MetricsServerConfig struct {
	// Addr defaults to DefaultMetricsAddr
	Addr string

	// InstrumentationProvider must export to Prometheus
	InstrumentationProvider *instrumentation.Provider

	// Health serves /healthz and /readyz. A checker without a backend is
	// used when nil.
	Health *HealthChecker

	Logger *slog.Logger
}

// MetricsServer serves /metrics and the health probes on their own port,
// away from the stdio MCP transport.
type MetricsServer struct {
	addr   string
	health *HealthChecker
	logger *slog.Logger
}

// NewMetricsServer checks that the provider can be scraped.
func NewMetricsServer(config MetricsServerConfig) (*MetricsServer, error) {
	p := config.InstrumentationProvider
	switch {
	case p == nil:
		return nil, errors.New("instrumentation provider is required for metrics server")
	case !p.Enabled():
		return nil, errors.New("instrumentation provider is not enabled")
	case !p.PrometheusEnabled():
		return nil, errors.New("metrics exporter is not prometheus")
	}

	s := &MetricsServer{
		addr:   config.Addr,
		health: config.Health,
		logger: config.Logger,
	}
	if s.addr == "" {
		s.addr = DefaultMetricsAddr
	}
	if s.health == nil {
		s.health = NewHealthChecker(nil)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = logging.WithComponent(s.logger, "metrics")
	return s, nil
}

// Addr returns the configured listen address.
func (s *MetricsServer) Addr() string {
	return s.addr
}

// Handler returns the mux serving /metrics, /healthz and /readyz.
func (s *MetricsServer) Handler() http.Handler {
	mux := http.NewServeMux()
	// The otel prometheus exporter registers with the default registry.
	mux.Handle("/metrics", promhttp.Handler())
	s.health.RegisterHealthEndpoints(mux)
	return mux
}

// Run listens on Addr and serves until ctx ends, then shuts down within
// DefaultShutdownTimeout.
func (s *MetricsServer) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener. It closes ln.
func (s *MetricsServer) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: DefaultMetricsReadTimeout,
		WriteTimeout:      DefaultMetricsWriteTimeout,
		IdleTimeout:       DefaultMetricsIdleTimeout,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.logger.Info("serving metrics", slog.String("addr", ln.Addr().String()))

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.health.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}
	<-errc
	s.logger.Info("metrics server stopped")
	return nil
}
