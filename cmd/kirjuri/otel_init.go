package main

import (
	"context"
	"os"
	"syscall"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/sjkallio/kirjuri/telemetry"
)

// initTelemetry wires the global tracer and meter providers. OTLP
// export switches on when an endpoint is configured in the
// environment; extra readers (the Prometheus bridge) are attached
// either way.
func initTelemetry(ctx context.Context, readers ...sdkmetric.Reader) (func(context.Context) error, error) {
	return telemetry.InitOTEL(ctx, telemetry.OTELConfig{
		ServiceName:   "kirjuri",
		Endpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Insecure:      os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true",
		SampleRate:    1.0,
		MetricReaders: readers,
	})
}

func signalsToCatch() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM}
}
