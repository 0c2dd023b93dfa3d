package instrumentation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ProviderOption configures a Provider.
type ProviderOption func(*providerOptions)

type providerOptions struct {
	logger      *slog.Logger
	debugWriter io.Writer
	global      bool
}

// WithProviderLogger sets the logger used for exporter warnings.
func WithProviderLogger(logger *slog.Logger) ProviderOption {
	return func(o *providerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithDebugWriter redirects the stdout exporters. They write to stderr by
// default because stdout carries the MCP protocol.
func WithDebugWriter(w io.Writer) ProviderOption {
	return func(o *providerOptions) {
		if w != nil {
			o.debugWriter = w
		}
	}
}

// WithoutGlobals keeps the provider out of the otel globals. StartSpan and
// friends then keep using whatever was installed before.
func WithoutGlobals() ProviderOption {
	return func(o *providerOptions) {
		o.global = false
	}
}

// Provider owns the meter and tracer pipelines of the process.
type Provider struct {
	cfg        Config
	meters     *sdkmetric.MeterProvider
	tracers    *sdktrace.TracerProvider
	prometheus *prometheus.Exporter
	metrics    *Metrics
}

// NewProvider builds the telemetry pipelines described by cfg. A disabled
// config yields a provider whose Metrics are no-ops.
func NewProvider(ctx context.Context, cfg Config, opts ...ProviderOption) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{cfg: cfg, metrics: &Metrics{}}, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := providerOptions{logger: slog.Default(), debugWriter: os.Stderr, global: true}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With(slog.String("component", "instrumentation"))

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	p := &Provider{cfg: cfg}

	reader, promExporter, err := newMetricReader(ctx, cfg, o.debugWriter, logger)
	if err != nil {
		return nil, err
	}
	p.prometheus = promExporter
	p.meters = sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader))

	if p.tracers, err = newTracerProvider(ctx, cfg, res, o.debugWriter, logger); err != nil {
		return nil, errors.Join(err, p.meters.Shutdown(ctx))
	}

	if o.global {
		otel.SetMeterProvider(p.meters)
		otel.SetTracerProvider(p.tracers)
	}

	if p.metrics, err = NewMetrics(p.meters.Meter(cfg.ServiceName), cfg.DetailedLabels); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to create metrics recorder: %w", err), p.Shutdown(ctx))
	}
	return p, nil
}

func newResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	instance := cfg.ServiceInstanceID
	if instance == "" {
		instance, _ = os.Hostname()
	}
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	}
	if instance != "" {
		attrs = append(attrs, semconv.ServiceInstanceID(instance))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

// newMetricReader returns the reader for cfg.MetricsExporter. The prometheus
// exporter is returned as well so the scrape endpoint can be offered.
func newMetricReader(ctx context.Context, cfg Config, debug io.Writer, logger *slog.Logger) (sdkmetric.Reader, *prometheus.Exporter, error) {
	switch cfg.MetricsExporter {
	case ExporterPrometheus, "":
		exp, err := prometheus.New()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		return exp, exp, nil

	case ExporterOTLP:
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.OTLPInsecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		exp, err := otlpmetrichttp.New(ctx, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create OTLP metrics exporter: %w", err)
		}
		return sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(DefaultMetricInterval)), nil, nil

	case ExporterStdout:
		logger.Warn("writing metrics to the debug stream", slog.String("exporter", ExporterStdout))
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(debug))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create stdout metrics exporter: %w", err)
		}
		return sdkmetric.NewPeriodicReader(exp), nil, nil
	}
	return nil, nil, fmt.Errorf("unsupported metrics exporter: %s", cfg.MetricsExporter)
}

func newTracerProvider(ctx context.Context, cfg Config, res *resource.Resource, debug io.Writer, logger *slog.Logger) (*sdktrace.TracerProvider, error) {
	var (
		exp sdktrace.SpanExporter
		err error
	)
	switch cfg.TracingExporter {
	case ExporterNone, "":
		return sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.NeverSample()),
		), nil

	case ExporterOTLP:
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.OTLPInsecure {
			// Spans carry email ids and digest dates.
			logger.Warn("exporting traces without TLS", slog.String("endpoint", cfg.OTLPEndpoint))
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if exp, err = otlptracehttp.New(ctx, opts...); err != nil {
			return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
		}

	case ExporterStdout:
		logger.Warn("writing traces to the debug stream", slog.String("exporter", ExporterStdout))
		if exp, err = stdouttrace.New(stdouttrace.WithWriter(debug)); err != nil {
			return nil, fmt.Errorf("failed to create stdout trace exporter: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported tracing exporter: %s", cfg.TracingExporter)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.TraceSamplingRate))),
	), nil
}

// Metrics returns the recorder. It is never nil.
func (p *Provider) Metrics() *Metrics {
	return p.metrics
}

// Tracer returns a named tracer, or a no-op tracer when disabled.
func (p *Provider) Tracer(name string) trace.Tracer {
	if p.tracers == nil {
		return noop.NewTracerProvider().Tracer(name)
	}
	return p.tracers.Tracer(name)
}

// PrometheusEnabled reports whether metrics land in the Prometheus default
// registry and can be scraped.
func (p *Provider) PrometheusEnabled() bool {
	return p.prometheus != nil
}

// ServeMetrics reports whether the scrape endpoint should be started.
func (p *Provider) ServeMetrics() bool {
	return p.cfg.MetricsServe && p.PrometheusEnabled()
}

// MetricsAddr returns the configured scrape address.
func (p *Provider) MetricsAddr() string {
	if p.cfg.MetricsAddr == "" {
		return DefaultMetricsAddr
	}
	return p.cfg.MetricsAddr
}

// Enabled reports whether telemetry is exported at all.
func (p *Provider) Enabled() bool {
	return p.meters != nil
}

// Shutdown flushes pending telemetry and stops both pipelines.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.meters != nil {
		if err := p.meters.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown meter provider: %w", err))
		}
	}
	if p.tracers != nil {
		if err := p.tracers.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown tracer provider: %w", err))
		}
	}
	return errors.Join(errs...)
}
