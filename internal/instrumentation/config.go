package instrumentation

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
)

// Environment variables read by DefaultConfig.
const (
	EnvEnabled         = "INSTRUMENTATION_ENABLED"
	EnvServiceName     = "OTEL_SERVICE_NAME"
	EnvServiceInstance = "OTEL_SERVICE_INSTANCE_ID"
	EnvMetricsExporter = "METRICS_EXPORTER"
	EnvTracingExporter = "TRACING_EXPORTER"
	EnvOTLPEndpoint    = "OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvOTLPInsecure    = "OTEL_EXPORTER_OTLP_INSECURE"
	EnvSamplingRate    = "OTEL_TRACES_SAMPLER_ARG"
	EnvDetailedLabels  = "METRICS_DETAILED_LABELS"
	EnvMetricsServe    = "METRICS_ENABLED"
	EnvMetricsAddr     = "METRICS_ADDR"
)

// DefaultServiceName identifies the process in exported telemetry.
const DefaultServiceName = "inboxdigest"

// DefaultMetricsAddr is where the Prometheus scrape endpoint listens.
const DefaultMetricsAddr = ":9090"

// DefaultSamplingRate is the share of root traces that are recorded.
const DefaultSamplingRate = 0.1

var (
	metricsExporters = []string{ExporterPrometheus, ExporterOTLP, ExporterStdout}
	tracingExporters = []string{ExporterOTLP, ExporterStdout, ExporterNone}
)

// Config controls how metrics and traces leave the process. The MCP server
// owns stdout, so every local exporter writes to stderr.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// ServiceInstanceID falls back to the hostname when empty
	ServiceInstanceID string

	// Enabled turns the whole pipeline on. A disabled provider still hands
	// out a Metrics value whose methods are no-ops.
	Enabled bool

	// MetricsExporter is prometheus, otlp or stdout
	MetricsExporter string

	// TracingExporter is otlp, stdout or none
	TracingExporter string

	// OTLPEndpoint is host:port of the collector, without a scheme
	OTLPEndpoint string

	// OTLPInsecure disables TLS towards the collector. Only for local setups.
	OTLPInsecure bool

	// TraceSamplingRate is applied to root spans (0.0 to 1.0)
	TraceSamplingRate float64

	// DetailedLabels adds the mail provider to push event metrics
	DetailedLabels bool

	// MetricsServe starts the scrape endpoint next to the MCP server
	MetricsServe bool

	// MetricsAddr is the listen address of the scrape endpoint
	MetricsAddr string
}

// DefaultConfig returns the built-in settings overlaid with the environment.
func DefaultConfig() Config {
	return Config{
		ServiceName:       envString(EnvServiceName, DefaultServiceName),
		ServiceVersion:    "unknown",
		ServiceInstanceID: envString(EnvServiceInstance, ""),
		Enabled:           envBool(EnvEnabled, true),
		MetricsExporter:   strings.ToLower(envString(EnvMetricsExporter, ExporterPrometheus)),
		TracingExporter:   strings.ToLower(envString(EnvTracingExporter, ExporterNone)),
		OTLPEndpoint:      envString(EnvOTLPEndpoint, ""),
		OTLPInsecure:      envBool(EnvOTLPInsecure, false),
		TraceSamplingRate: envFloat(EnvSamplingRate, DefaultSamplingRate),
		DetailedLabels:    envBool(EnvDetailedLabels, false),
		MetricsServe:      envBool(EnvMetricsServe, false),
		MetricsAddr:       envString(EnvMetricsAddr, DefaultMetricsAddr),
	}
}

// Validate reports every inconsistent setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		errs = append(errs, fmt.Errorf("trace sampling rate must be between 0.0 and 1.0, got %g", c.TraceSamplingRate))
	}
	if c.MetricsExporter != "" && !slices.Contains(metricsExporters, c.MetricsExporter) {
		errs = append(errs, fmt.Errorf("invalid metrics exporter %q, must be one of: %s",
			c.MetricsExporter, strings.Join(metricsExporters, ", ")))
	}
	if c.TracingExporter != "" && !slices.Contains(tracingExporters, c.TracingExporter) {
		errs = append(errs, fmt.Errorf("invalid tracing exporter %q, must be one of: %s",
			c.TracingExporter, strings.Join(tracingExporters, ", ")))
	}
	if c.OTLPEndpoint == "" && (c.MetricsExporter == ExporterOTLP || c.TracingExporter == ExporterOTLP) {
		errs = append(errs, fmt.Errorf("OTLP endpoint is required when exporting over OTLP; set %s", EnvOTLPEndpoint))
	}
	if c.MetricsServe && c.MetricsExporter != "" && c.MetricsExporter != ExporterPrometheus {
		errs = append(errs, fmt.Errorf("%s requires the prometheus metrics exporter, got %q", EnvMetricsServe, c.MetricsExporter))
	}
	return errors.Join(errs...)
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// envBool and envFloat keep the default on unparsable input.
func envBool(key string, def bool) bool {
	b, err := strconv.ParseBool(envString(key, strconv.FormatBool(def)))
	if err != nil {
		return def
	}
	return b
}

func envFloat(key string, def float64) float64 {
	v := envString(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
