// Package observer records sync outcomes as OTEL metrics.
package observer

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/sjkallio/kirjuri/types"
)

// SyncMetrics records per-run sync outcomes
type SyncMetrics struct {
	meter             metric.Meter
	syncsTotal        metric.Int64Counter
	resourceStates    metric.Int64Counter
	scopeErrors       metric.Int64Counter
	unrecognizedTotal metric.Int64Counter
	connectionCost    metric.Float64Gauge
	syncDuration      metric.Float64Histogram
}

// NewSyncMetrics creates the metrics observer
func NewSyncMetrics() (*SyncMetrics, error) {
	meter := otel.Meter("kirjuri")

	syncs, err := meter.Int64Counter(
		"kirjuri_syncs_total",
		metric.WithDescription("Total sync runs by terminal status"),
		metric.WithUnit("{sync}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}

	states, err := meter.Int64Counter(
		"kirjuri_resource_states_total",
		metric.WithDescription("Total resource state rows by action"),
		metric.WithUnit("{resource}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}

	scopeErrs, err := meter.Int64Counter(
		"kirjuri_scope_errors_total",
		metric.WithDescription("Total non-fatal per-scope failures"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}

	unrecognized, err := meter.Int64Counter(
		"kirjuri_unrecognized_billing_total",
		metric.WithDescription("Total unclassifiable billing rows appended"),
		metric.WithUnit("{row}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}

	cost, err := meter.Float64Gauge(
		"kirjuri_connection_cost",
		metric.WithDescription("Reconciled total cost of the latest successful snapshot"),
		metric.WithUnit("{currency}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gauge: %w", err)
	}

	duration, err := meter.Float64Histogram(
		"kirjuri_sync_duration_seconds",
		metric.WithDescription("Wall time of one sync run"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create histogram: %w", err)
	}

	return &SyncMetrics{
		meter:             meter,
		syncsTotal:        syncs,
		resourceStates:    states,
		scopeErrors:       scopeErrs,
		unrecognizedTotal: unrecognized,
		connectionCost:    cost,
		syncDuration:      duration,
	}, nil
}

// RecordSync records one terminal snapshot
func (m *SyncMetrics) RecordSync(ctx context.Context, snap types.Snapshot) {
	connAttr := attribute.String("connection", snap.ConnectionID)

	m.syncsTotal.Add(ctx, 1, metric.WithAttributes(
		connAttr,
		attribute.String("status", string(snap.Status)),
	))

	m.recordActions(ctx, snap.ConnectionID, snap.Counts)

	m.scopeErrors.Add(ctx, int64(len(snap.ScopeErrors)), metric.WithAttributes(connAttr))

	if snap.Status == types.SnapshotSuccess {
		m.connectionCost.Record(ctx, snap.TotalCost, metric.WithAttributes(connAttr))
	}

	if !snap.CompletedAt.IsZero() {
		m.syncDuration.Record(ctx, snap.CompletedAt.Sub(snap.StartedAt).Seconds(), metric.WithAttributes(connAttr))
	}
}

// recordActions increments the per-action state counter
func (m *SyncMetrics) recordActions(ctx context.Context, connectionID string, counts types.ActionCounts) {
	for action, n := range map[types.StateAction]int{
		types.ActionCreated:   counts.Created,
		types.ActionUpdated:   counts.Updated,
		types.ActionDeleted:   counts.Deleted,
		types.ActionUnchanged: counts.Unchanged,
	} {
		if n == 0 {
			continue
		}
		m.resourceStates.Add(ctx, int64(n), metric.WithAttributes(
			attribute.String("connection", connectionID),
			attribute.String("action", string(action)),
		))
	}
}

// RecordUnrecognized records newly appended unclassifiable rows
func (m *SyncMetrics) RecordUnrecognized(ctx context.Context, connectionID string, n int) {
	if n == 0 {
		return
	}
	m.unrecognizedTotal.Add(ctx, int64(n), metric.WithAttributes(
		attribute.String("connection", connectionID),
	))
}

// Timer returns a stop function recording elapsed wall time
func (m *SyncMetrics) Timer(ctx context.Context, connectionID string) func() {
	start := time.Now()
	return func() {
		m.syncDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
			attribute.String("connection", connectionID),
		))
	}
}
