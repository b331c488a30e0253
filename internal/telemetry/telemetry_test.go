package telemetry_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/agentoven/orchestrator/internal/config"
	"github.com/agentoven/orchestrator/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := telemetry.Init(context.Background(), config.TelemetryConfig{Enabled: false}, "test")
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := telemetry.Init(context.Background(), config.TelemetryConfig{Enabled: true}, "test")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSamplerRatios(t *testing.T) {
	cases := map[float64]string{
		1:    "root:AlwaysOnSampler",
		2:    "root:AlwaysOnSampler",
		0:    "root:AlwaysOffSampler",
		-1:   "root:AlwaysOffSampler",
		0.25: "root:TraceIDRatioBased{0.25}",
	}
	for ratio, want := range cases {
		desc := telemetry.Sampler(ratio).Description()
		assert.True(t, strings.HasPrefix(desc, "ParentBased{"), "ratio %g: %s", ratio, desc)
		assert.Contains(t, desc, want, "ratio %g", ratio)
	}
}

func TestInitEnabledInstallsProvider(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	cfg := config.TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "127.0.0.1:4317",
		ServiceName:  "orchestrator-test",
		SampleRatio:  0.5,
		Insecure:     true,
	}
	shutdown, err := telemetry.Init(context.Background(), cfg, "test")
	require.NoError(t, err)

	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, ok, "global tracer provider is the SDK provider")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, shutdown(ctx))
}
