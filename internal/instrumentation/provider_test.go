package instrumentation

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(metrics, tracing string) Config {
	return Config{
		ServiceName:       "inboxdigest-test",
		ServiceVersion:    "1.0.0",
		ServiceInstanceID: "test-host",
		Enabled:           true,
		MetricsExporter:   metrics,
		TracingExporter:   tracing,
		TraceSamplingRate: 1,
	}
}

func newTestProvider(t *testing.T, cfg Config, opts ...ProviderOption) *Provider {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	p, err := NewProvider(ctx, cfg, append([]ProviderOption{WithoutGlobals()}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	return p
}

func TestNewProviderDisabled(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{ServiceName: "inboxdigest-test"})
	require.NoError(t, err)

	assert.False(t, p.Enabled())
	assert.False(t, p.PrometheusEnabled())
	assert.False(t, p.ServeMetrics())
	assert.NotNil(t, p.Tracer("cache"))
	require.NotNil(t, p.Metrics())

	// The no-op recorder accepts calls.
	p.Metrics().RecordCacheLookup(context.Background(), CacheSummary, true)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProviderPrometheus(t *testing.T) {
	cfg := testConfig(ExporterPrometheus, ExporterNone)
	cfg.MetricsServe = true
	cfg.MetricsAddr = "127.0.0.1:0"
	p := newTestProvider(t, cfg)

	assert.True(t, p.Enabled())
	assert.True(t, p.PrometheusEnabled())
	assert.True(t, p.ServeMetrics())
	assert.Equal(t, "127.0.0.1:0", p.MetricsAddr())
	assert.NotNil(t, p.Metrics())
	assert.NotNil(t, p.Tracer(TracerName))
}

func TestNewProviderDefaultsMetricsAddr(t *testing.T) {
	p := newTestProvider(t, testConfig(ExporterPrometheus, ExporterNone))
	assert.False(t, p.ServeMetrics())
	assert.Equal(t, DefaultMetricsAddr, p.MetricsAddr())
}

func TestNewProviderStdoutWritesToDebugWriter(t *testing.T) {
	var debug, logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	p := newTestProvider(t, testConfig(ExporterStdout, ExporterStdout),
		WithDebugWriter(&debug),
		WithProviderLogger(logger))

	assert.True(t, p.Enabled())
	assert.False(t, p.PrometheusEnabled())

	_, span := p.Tracer(TracerName).Start(context.Background(), "digest.generate")
	span.End()
	p.Metrics().RecordDigestGeneration(context.Background(), DigestResultGenerated, 3)

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Contains(t, debug.String(), "digest.generate")
	assert.Contains(t, logs.String(), "component=instrumentation")
}

func TestNewProviderRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "metrics exporter", cfg: testConfig("statsd", ExporterNone)},
		{name: "tracing exporter", cfg: testConfig(ExporterPrometheus, "zipkin")},
		{name: "otlp without endpoint", cfg: testConfig(ExporterPrometheus, ExporterOTLP)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProvider(context.Background(), tt.cfg, WithoutGlobals())
			assert.Error(t, err)
		})
	}
}

func TestProviderShutdownTwice(t *testing.T) {
	p, err := NewProvider(context.Background(), testConfig(ExporterPrometheus, ExporterNone), WithoutGlobals())
	require.NoError(t, err)

	require.NoError(t, p.Shutdown(context.Background()))
	assert.NotPanics(t, func() { _ = p.Shutdown(context.Background()) })
}
