// Package orchestrator runs the sync pipeline: observe, correlate,
// aggregate, diff, persist. One snapshot per run per connection.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sjkallio/kirjuri/aggregator"
	"github.com/sjkallio/kirjuri/config"
	"github.com/sjkallio/kirjuri/correlator"
	"github.com/sjkallio/kirjuri/journal"
	"github.com/sjkallio/kirjuri/observer"
	"github.com/sjkallio/kirjuri/pricing"
	"github.com/sjkallio/kirjuri/providers"
	"github.com/sjkallio/kirjuri/snapshot"
	"github.com/sjkallio/kirjuri/storage"
	"github.com/sjkallio/kirjuri/telemetry"
	"github.com/sjkallio/kirjuri/types"
)

// SyncSummary is the outcome of one sync run.
type SyncSummary struct {
	Snapshot     types.Snapshot `json:"snapshot"`
	Unrecognized int            `json:"unrecognized"`
}

// Orchestrator wires the pipeline stages together.
type Orchestrator struct {
	cfg        *config.Config
	store      *storage.Store
	journal    *journal.Journal
	metrics    *observer.SyncMetrics
	correlator *correlator.Correlator
	aggregator *aggregator.Aggregator
	differ     *snapshot.Differ
	logger     *telemetry.Logger
}

// New builds an orchestrator over an open store and journal.
func New(cfg *config.Config, store *storage.Store, jnl *journal.Journal) (*Orchestrator, error) {
	metrics, err := observer.NewSyncMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	return &Orchestrator{
		cfg:        cfg,
		store:      store,
		journal:    jnl,
		metrics:    metrics,
		correlator: correlator.New(pricing.NewStaticEstimator()),
		aggregator: aggregator.New(),
		differ:     snapshot.NewDiffer(cfg.Sync.CostTolerance),
		logger:     telemetry.NewLogger("orchestrator"),
	}, nil
}

// Sync runs one full sync for a connection. Scope-level failures are
// recorded on the snapshot and the run still succeeds; connection-level
// failures finalize the snapshot as error and are returned.
func (o *Orchestrator) Sync(ctx context.Context, conn types.ProviderConnection) (*SyncSummary, error) {
	builder := snapshot.NewBuilder(conn.ID)
	o.logger.LogSyncStart(ctx, conn.ID, builder.ID())

	if err := o.store.SaveSnapshot(builder.Snapshot()); err != nil {
		o.logger.LogStorageError(ctx, "save_snapshot", err)
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}

	provider, err := providers.ForConnection(ctx, conn)
	if err != nil {
		return o.fail(ctx, builder, fmt.Errorf("provider setup: %w", err))
	}

	// Scope discovery doubles as the credential probe. Failing here is
	// an authentication failure and fatal for the whole connection.
	scopes, err := provider.DiscoverScopes(ctx)
	if err != nil {
		return o.fail(ctx, builder, fmt.Errorf("authentication failure: %w", err))
	}

	now := time.Now().UTC()
	obs := providers.Collect(ctx, provider, scopes, providers.CollectOptions{
		CallTimeout: o.cfg.Sync.CallTimeout,
		PeriodStart: now.Add(-o.cfg.Sync.BillingPeriod),
		PeriodEnd:   now,
	})
	builder.RecordScopeErrors(obs.ScopeErrors)
	for _, scopeErr := range obs.ScopeErrors {
		o.logger.LogScopeError(ctx, conn.ID, scopeErr.ScopeID, scopeErr.Phase, errors.New(scopeErr.Message))
	}
	o.appendJournal(journal.EntryObserved, conn.ID, builder.ID(), map[string]int{
		"scopes":    obs.ScopesTotal,
		"inventory": len(obs.Inventory),
		"billing":   len(obs.Billing),
		"errors":    len(obs.ScopeErrors),
	})

	if obs.InventoryUnavailable() && obs.BillingUnavailable() {
		return o.fail(ctx, builder, errors.New("no scope yielded inventory or billing"))
	}
	if obs.BillingUnavailable() {
		builder.MarkBillingDegraded()
	}

	result := o.correlator.Correlate(ctx, conn.ID, obs.Inventory, obs.Billing)
	for i := range result.Unrecognized {
		result.Unrecognized[i].SnapshotID = builder.ID()
	}
	o.appendJournal(journal.EntryCorrelated, conn.ID, builder.ID(), map[string]int{
		"resources":    len(result.Resources),
		"unrecognized": len(result.Unrecognized),
	})

	resources := o.aggregator.Aggregate(result.Resources, result.Hints)
	o.appendJournal(journal.EntryAggregated, conn.ID, builder.ID(), map[string]int{
		"resources": len(resources),
	})

	prior, err := o.priorStates(conn.ID)
	if err != nil {
		return o.fail(ctx, builder, fmt.Errorf("failed to load prior states: %w", err))
	}

	states := o.differ.Diff(builder.ID(), conn.ID, prior, resources)
	counts, total := snapshot.Totals(states)

	final := builder.Finalize(counts, total)
	if err := o.persist(ctx, final, states, resources, result.Unrecognized); err != nil {
		return o.fail(ctx, builder, err)
	}
	o.appendJournal(journal.EntryPersisted, conn.ID, final.ID, map[string]int{
		"states": len(states),
	})

	if err := o.store.SaveSnapshot(final); err != nil {
		o.logger.LogStorageError(ctx, "save_snapshot", err)
		return nil, fmt.Errorf("failed to finalize snapshot: %w", err)
	}
	o.appendJournal(journal.EntryFinalized, conn.ID, final.ID, final.Counts)

	o.metrics.RecordSync(ctx, final)
	o.metrics.RecordUnrecognized(ctx, conn.ID, len(result.Unrecognized))

	o.logger.WithContext(ctx).Info().
		Str("connection_id", conn.ID).
		Str("snapshot_id", final.ID).
		Int("resources", counts.Total()).
		Float64("total_cost", final.TotalCost).
		Bool("billing_degraded", final.BillingDegraded).
		Msg("sync complete")

	return &SyncSummary{Snapshot: final, Unrecognized: len(result.Unrecognized)}, nil
}

// fail finalizes the snapshot as error and persists the terminal
// record. The original failure is returned even if persisting the
// error snapshot also fails.
func (o *Orchestrator) fail(ctx context.Context, builder *snapshot.Builder, cause error) (*SyncSummary, error) {
	final := builder.Fail(cause, types.ActionCounts{}, 0)

	if err := o.store.SaveSnapshot(final); err != nil {
		o.logger.LogStorageError(ctx, "save_snapshot", err)
	}
	if o.journal != nil {
		_ = o.journal.AppendError(journal.EntryFailed, final.ConnectionID, final.ID, nil, cause)
	}
	o.metrics.RecordSync(ctx, final)

	o.logger.WithContext(ctx).Error().
		Err(cause).
		Str("connection_id", final.ConnectionID).
		Str("snapshot_id", final.ID).
		Msg("sync failed")

	return &SyncSummary{Snapshot: final}, cause
}

// priorStates loads the diff anchor: states of the latest successful
// snapshot. No prior success means everything is new.
func (o *Orchestrator) priorStates(connectionID string) ([]types.ResourceState, error) {
	prior, err := o.store.LatestSuccessfulSnapshot(connectionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return o.store.SnapshotStates(prior.ID)
}

// persist writes states, materialized resources, and unrecognized rows.
// A write conflict means another sync finished in between; the upsert
// is retried in skip-stale mode so the overtaken rows keep the newer
// sync's data while the rest of the batch still lands.
func (o *Orchestrator) persist(ctx context.Context, snap types.Snapshot, states []types.ResourceState, resources []types.Resource, unrecognized []types.UnrecognizedResource) error {
	if err := o.store.SaveStates(states); err != nil {
		o.logger.LogStorageError(ctx, "save_states", err)
		return fmt.Errorf("failed to persist states: %w", err)
	}

	deleted := make([]string, 0)
	for _, st := range states {
		if st.StateAction == types.ActionDeleted {
			deleted = append(deleted, st.ProviderResourceID)
		}
	}

	err := o.store.UpsertResources(snap, resources, deleted)
	if errors.Is(err, storage.ErrConflict) {
		o.logger.WithContext(ctx).Warn().
			Str("connection_id", snap.ConnectionID).
			Msg("materialized write conflict, keeping newer rows")
		err = o.store.UpsertResourcesSkipStale(snap, resources, deleted)
	}
	if err != nil {
		o.logger.LogStorageError(ctx, "upsert_resources", err)
		return fmt.Errorf("failed to persist resources: %w", err)
	}

	if len(unrecognized) > 0 {
		if err := o.store.AppendUnrecognized(unrecognized); err != nil {
			o.logger.LogStorageError(ctx, "append_unrecognized", err)
			return fmt.Errorf("failed to persist unrecognized rows: %w", err)
		}
	}
	return nil
}

func (o *Orchestrator) appendJournal(entryType journal.EntryType, connectionID, snapshotID string, data interface{}) {
	if o.journal == nil {
		return
	}
	// Journal failures degrade auditability, never the sync itself.
	_ = o.journal.Append(entryType, connectionID, snapshotID, data)
}

// SyncAll syncs every configured connection. Connections run
// concurrently and are isolated: one connection's failure never
// affects another's run. Returned summaries follow config order.
func (o *Orchestrator) SyncAll(ctx context.Context) ([]*SyncSummary, error) {
	summaries := make([]*SyncSummary, len(o.cfg.Connections))
	errs := make([]error, len(o.cfg.Connections))

	var wg sync.WaitGroup
	for i, conn := range o.cfg.Connections {
		wg.Add(1)
		go func(i int, conn types.ProviderConnection) {
			defer wg.Done()
			summaries[i], errs[i] = o.Sync(ctx, conn)
		}(i, conn)
	}
	wg.Wait()

	return summaries, errors.Join(errs...)
}

// TriggerSync runs an immediate sync for one configured connection.
func (o *Orchestrator) TriggerSync(ctx context.Context, connectionID string) (*SyncSummary, error) {
	conn, err := o.cfg.Connection(connectionID)
	if err != nil {
		return nil, err
	}
	return o.Sync(ctx, *conn)
}

// CurrentResources returns the live reconciled rows for a connection.
func (o *Orchestrator) CurrentResources(connectionID string) ([]storage.MaterializedResource, error) {
	return o.store.CurrentResources(connectionID)
}

// CurrentStates returns the non-deleted state rows of the latest
// successful snapshot.
func (o *Orchestrator) CurrentStates(connectionID string) ([]types.ResourceState, error) {
	return o.store.CurrentStates(connectionID)
}

// ResourceHistory returns the full state trail of one resource.
func (o *Orchestrator) ResourceHistory(connectionID, resourceID string) ([]types.ResourceState, error) {
	return o.store.ResourceHistory(connectionID, resourceID)
}

// Snapshots returns recent snapshots for a connection, newest first.
func (o *Orchestrator) Snapshots(connectionID string, limit int) ([]types.Snapshot, error) {
	return o.store.ListSnapshots(connectionID, limit)
}
