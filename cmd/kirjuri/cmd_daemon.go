package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/prometheus"

	"github.com/sjkallio/kirjuri/telemetry"
)

var (
	daemonInterval    time.Duration
	daemonMetricsAddr string
)

// daemonCmd represents the daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run continuous synchronization daemon",
	Long: `Run Kirjuri in daemon mode: sync every configured connection on an
interval, export metrics, and keep building the snapshot history.

Connections sync concurrently and independently. One failing
connection never blocks the others. Graceful shutdown on
SIGTERM/SIGINT.`,
	Example: `  kirjuri daemon                       # Use interval from config
  kirjuri daemon --interval 30m        # Override sync interval
  kirjuri daemon --metrics :9090       # Custom metrics address`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.Flags().DurationVar(&daemonInterval, "interval", 0, "Sync interval (default from config)")
	daemonCmd.Flags().StringVar(&daemonMetricsAddr, "metrics", ":2112", "Metrics HTTP server address")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	interval := daemonInterval
	if interval == 0 {
		interval = rt.cfg.Sync.Interval
	}

	// Prometheus exporter bridges the OTEL meter provider to /metrics
	promExporter, err := prometheus.New()
	if err != nil {
		return fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	shutdownOTEL, err := initTelemetry(context.Background(), promExporter)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOTEL(ctx)
	}()

	logger := telemetry.NewLogger("daemon")
	logger.Info().
		Dur("interval", interval).
		Str("metrics_addr", daemonMetricsAddr).
		Int("connections", len(rt.cfg.Connections)).
		Msg("kirjuri daemon starting")

	var g run.Group

	// Signal handling
	g.Add(run.SignalHandler(context.Background(), signalsToCatch()...))

	// Metrics server
	listener, err := net.Listen("tcp", daemonMetricsAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", daemonMetricsAddr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", handleHealth)
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	g.Add(func() error {
		return server.Serve(listener)
	}, func(error) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	})

	// Sync loop
	loopCtx, loopCancel := context.WithCancel(context.Background())
	g.Add(func() error {
		return syncLoop(loopCtx, rt, interval, logger)
	}, func(error) {
		loopCancel()
	})

	err = g.Run()
	var sigErr run.SignalError
	if errors.As(err, &sigErr) {
		logger.Info().Str("signal", sigErr.Signal.String()).Msg("shutting down")
		return nil
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// syncLoop runs SyncAll immediately and then on every tick. Sync
// failures are logged and the loop keeps going; only context
// cancellation stops it.
func syncLoop(ctx context.Context, rt *runtime, interval time.Duration, logger *telemetry.Logger) error {
	if _, err := rt.orch.SyncAll(ctx); err != nil {
		logger.Error().Err(err).Msg("sync cycle had failures")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := rt.orch.SyncAll(ctx); err != nil {
				logger.Error().Err(err).Msg("sync cycle had failures")
			}
		}
	}
}
