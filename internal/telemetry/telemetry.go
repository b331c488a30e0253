// Package telemetry configures OpenTelemetry tracing for the daemon.
//
// Spans are produced by the HTTP middleware and the engine through the
// global tracer provider; this package only decides where they go.
package telemetry

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentoven/orchestrator/internal/config"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// ShutdownFunc flushes buffered spans and releases the exporter.
type ShutdownFunc func(context.Context) error

func noop(context.Context) error { return nil }

// Init installs a global tracer provider exporting to cfg.OTLPEndpoint.
// With tracing disabled it installs nothing and returns a no-op flush.
func Init(ctx context.Context, cfg config.TelemetryConfig, version string) (func(context.Context) error, error) {
	if !cfg.Enabled || cfg.OTLPEndpoint == "" {
		log.Debug().Bool("enabled", cfg.Enabled).Msg("telemetry.off")
		return noop, nil
	}

	res, err := buildResource(ctx, cfg.ServiceName, version)
	if err != nil {
		return nil, err
	}
	exp, err := otlptracegrpc.New(ctx, exporterOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("otlp exporter %s: %w", cfg.OTLPEndpoint, err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(Sampler(cfg.SampleRatio)),
		sdktrace.WithBatcher(exp),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	log.Info().
		Str("endpoint", cfg.OTLPEndpoint).
		Float64("sample_ratio", cfg.SampleRatio).
		Bool("insecure", cfg.Insecure).
		Msg("telemetry.on")

	return flushAndClose(tp), nil
}

// Sampler keeps the parent's decision for child spans and samples root
// spans at ratio. Ratios at or beyond the bounds sample all or none.
func Sampler(ratio float64) sdktrace.Sampler {
	var root sdktrace.Sampler
	switch {
	case ratio >= 1:
		root = sdktrace.AlwaysSample()
	case ratio <= 0:
		root = sdktrace.NeverSample()
	default:
		root = sdktrace.TraceIDRatioBased(ratio)
	}
	return sdktrace.ParentBased(root)
}

func exporterOptions(cfg config.TelemetryConfig) []otlptracegrpc.Option {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return opts
}

func buildResource(ctx context.Context, service, version string) (*resource.Resource, error) {
	if service == "" {
		service = "orchestrator"
	}
	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithHost(),
		resource.WithProcessPID(),
		resource.WithAttributes(
			semconv.ServiceName(service),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}
	return res, nil
}

// flushAndClose exports whatever is buffered before shutting the provider
// down, so spans from the last requests survive a daemon stop.
func flushAndClose(tp *sdktrace.TracerProvider) ShutdownFunc {
	return func(ctx context.Context) error {
		flushErr := tp.ForceFlush(ctx)
		if flushErr != nil {
			log.Warn().Err(flushErr).Msg("telemetry.flush_failed")
		}
		return errors.Join(flushErr, tp.Shutdown(ctx))
	}
}
