// Package telemetry provides logging and OpenTelemetry instrumentation.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// OTELConfig configures OTLP export.
type OTELConfig struct {
	ServiceName string
	Endpoint    string // empty disables export
	Insecure    bool
	SampleRate  float64

	// MetricReaders are attached to the meter provider alongside any
	// OTLP reader, e.g. a Prometheus bridge.
	MetricReaders []sdkmetric.Reader
}

// InitOTEL sets up global tracer and meter providers. The returned
// function shuts both down.
func InitOTEL(ctx context.Context, cfg OTELConfig) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	traceOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
	}
	metricOpts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
	}
	for _, reader := range cfg.MetricReaders {
		metricOpts = append(metricOpts, sdkmetric.WithReader(reader))
	}

	if cfg.Endpoint != "" {
		traceExp, err := createTraceExporter(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("create trace exporter: %w", err)
		}
		sampleRate := cfg.SampleRate
		if sampleRate == 0 {
			sampleRate = 1.0
		}
		traceOpts = append(traceOpts,
			sdktrace.WithBatcher(traceExp),
			sdktrace.WithSampler(sdktrace.TraceIDRatioBased(sampleRate)),
		)

		metricExp, err := createMetricExporter(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("create metric exporter: %w", err)
		}
		metricOpts = append(metricOpts,
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		)
	}

	tracerProvider := sdktrace.NewTracerProvider(traceOpts...)
	otel.SetTracerProvider(tracerProvider)

	meterProvider := sdkmetric.NewMeterProvider(metricOpts...)
	otel.SetMeterProvider(meterProvider)

	return func(ctx context.Context) error {
		if err := tracerProvider.Shutdown(ctx); err != nil {
			return err
		}
		return meterProvider.Shutdown(ctx)
	}, nil
}

func createTraceExporter(ctx context.Context, cfg OTELConfig) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return otlptracegrpc.New(ctx, opts...)
}

func createMetricExporter(ctx context.Context, cfg OTELConfig) (sdkmetric.Exporter, error) {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	return otlpmetricgrpc.New(ctx, opts...)
}
