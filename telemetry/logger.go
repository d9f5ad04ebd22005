package telemetry

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTELHook adds trace and span IDs to every log entry
type OTELHook struct{}

func (h OTELHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	ctx := e.GetCtx()
	if ctx == nil {
		return
	}

	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return
	}

	e.Str("trace_id", span.SpanContext().TraceID().String())
	e.Str("span_id", span.SpanContext().SpanID().String())

	if level == zerolog.ErrorLevel {
		span.SetStatus(codes.Error, msg)
	}
}

// Logger wraps zerolog with OTEL integration
type Logger struct {
	zerolog.Logger
}

// NewLogger creates a new logger with OTEL hooks
func NewLogger(service string) *Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	logger := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", service).
		Logger().
		Hook(OTELHook{})

	return &Logger{Logger: logger}
}

// WithContext returns a logger with context (for trace propagation)
func (l *Logger) WithContext(ctx context.Context) *zerolog.Logger {
	logger := l.Logger.With().Ctx(ctx).Logger()
	return &logger
}

// Convenience methods for sync pipeline logging

// LogSyncStart logs the beginning of a connection sync.
func (l *Logger) LogSyncStart(ctx context.Context, connectionID, snapshotID string) {
	l.WithContext(ctx).Info().
		Str("connection_id", connectionID).
		Str("snapshot_id", snapshotID).
		Str("operation", "sync").
		Msg("sync started")
}

// LogScopeError logs a non-fatal per-scope failure.
func (l *Logger) LogScopeError(ctx context.Context, connectionID, scopeID, phase string, err error) {
	l.WithContext(ctx).Warn().
		Err(err).
		Str("connection_id", connectionID).
		Str("scope", scopeID).
		Str("phase", phase).
		Msg("scope unreachable, continuing with remaining scopes")
}

// LogZombie logs a billed-but-gone resource.
func (l *Logger) LogZombie(ctx context.Context, connectionID, resourceID string, cost float64) {
	l.WithContext(ctx).Info().
		Str("connection_id", connectionID).
		Str("resource_id", resourceID).
		Float64("cost", cost).
		Msg("billing references resource absent from inventory")
}

// LogUnrecognized logs an unclassifiable billing item.
func (l *Logger) LogUnrecognized(ctx context.Context, connectionID, service, metric string) {
	l.WithContext(ctx).Info().
		Str("connection_id", connectionID).
		Str("service", service).
		Str("metric", metric).
		Msg("billing item outside taxonomy, recorded as unrecognized")
}

// LogStorageError logs a persistence failure.
func (l *Logger) LogStorageError(ctx context.Context, operation string, err error) {
	l.WithContext(ctx).Error().
		Err(err).
		Str("operation", operation).
		Msg("storage operation failed")
}
