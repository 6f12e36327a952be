package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/fyrsmithlabs/guidekeeper/internal/config"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"disabled skips checks", func(c *Config) { c.Endpoint = "" }, ""},
		{"valid", func(c *Config) { c.Enabled = true }, ""},
		{"missing endpoint", func(c *Config) { c.Enabled = true; c.Endpoint = "" }, "endpoint"},
		{"bad protocol", func(c *Config) { c.Enabled = true; c.Protocol = "udp" }, "protocol"},
		{"insecure remote", func(c *Config) { c.Enabled = true; c.Endpoint = "otel.example.com:4317" }, "insecure"},
		{"secure remote", func(c *Config) {
			c.Enabled = true
			c.Endpoint = "otel.example.com:4317"
			c.Insecure = false
		}, ""},
		{"sample rate", func(c *Config) { c.Enabled = true; c.SampleRate = 1.5 }, "sample_rate"},
		{"shutdown", func(c *Config) { c.Enabled = true; c.ShutdownTimeout = 0 }, "shutdown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestIsLoopback(t *testing.T) {
	for endpoint, want := range map[string]bool{
		"localhost:4317":         true,
		"127.0.0.1:4317":         true,
		"127.0.0.2":              true,
		"[::1]:4317":             true,
		"::1":                    true,
		"http://localhost:4318":  true,
		"otel.example.com:4317":  false,
		"10.0.0.5:4317":          false,
		"https://collector:4318": false,
	} {
		assert.Equal(t, want, isLoopback(endpoint), endpoint)
	}
}

func TestFromSettings(t *testing.T) {
	cfg := FromSettings(config.Default().Telemetry, "1.2.3")
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "guidekeeper", cfg.ServiceName)
	assert.Equal(t, "1.2.3", cfg.ServiceVersion)
	assert.Equal(t, ProtocolGRPC, cfg.Protocol)
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.NoError(t, cfg.Validate())
}

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)
	assert.False(t, tel.IsEnabled())
	assert.NotNil(t, tel.Tracer("x"))
	assert.NotNil(t, tel.Meter("x"))
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.SampleRate = -1
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNew_WithInjectedExporters(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	exporter := tracetest.NewInMemoryExporter()
	reader := sdkmetric.NewManualReader()

	tel, err := New(context.Background(), cfg, WithSpanExporter(exporter), WithMetricReader(reader))
	require.NoError(t, err)
	assert.True(t, tel.Health().Healthy)

	_, span := tel.Tracer("test").Start(context.Background(), "unit")
	span.End()
	require.NoError(t, tel.ForceFlush(context.Background()))
	require.Len(t, exporter.GetSpans(), 1)
	assert.Equal(t, "unit", exporter.GetSpans()[0].Name)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, tel.Shutdown(ctx))
	assert.False(t, tel.IsEnabled())
	assert.NoError(t, tel.Shutdown(ctx))
}

func TestTelemetry_NilSafe(t *testing.T) {
	var tel *Telemetry
	assert.NotNil(t, tel.Tracer("x"))
	assert.NotNil(t, tel.Meter("x"))
	assert.NoError(t, tel.Shutdown(context.Background()))
	assert.NoError(t, tel.ForceFlush(context.Background()))
	assert.False(t, tel.IsEnabled())
	assert.Equal(t, HealthStatus{}, tel.Health())
}

func TestTestTelemetry(t *testing.T) {
	tt := NewTestTelemetry()
	ctx := context.Background()

	_, span := tt.Tracer("test").Start(ctx, "layer")
	span.SetAttributes(attribute.Int("layer.index", 2), attribute.String("guide.path", "a/agents.md"))
	span.End()

	tt.AssertSpanExists(t, "layer")
	tt.AssertSpanAttribute(t, "layer", "layer.index", int64(2))
	tt.AssertSpanAttribute(t, "layer", "guide.path", "a/agents.md")

	counter, err := tt.Meter("test").Int64Counter("guide.updates")
	require.NoError(t, err)
	counter.Add(ctx, 1)

	rm, err := tt.Collect(ctx)
	require.NoError(t, err)
	assert.True(t, HasMetric(rm, "guide.updates"))
}
