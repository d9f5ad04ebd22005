// Package snapshot assembles one sync run's reconciled output into an
// immutable snapshot and classifies every resource's transition against
// the prior successful run.
package snapshot

import (
	"time"

	"github.com/google/uuid"

	"github.com/sjkallio/kirjuri/types"
)

// Builder drives one snapshot through running → success | error.
// Both terminal transitions are one-shot; the returned snapshot is the
// immutable record to persist.
type Builder struct {
	snap types.Snapshot
}

// NewBuilder opens a running snapshot for one connection.
func NewBuilder(connectionID string) *Builder {
	return &Builder{
		snap: types.Snapshot{
			ID:           uuid.NewString(),
			ConnectionID: connectionID,
			Status:       types.SnapshotRunning,
			StartedAt:    time.Now().UTC(),
		},
	}
}

// Snapshot returns the snapshot in its current state.
func (b *Builder) Snapshot() types.Snapshot {
	return b.snap
}

// ID returns the snapshot id.
func (b *Builder) ID() string {
	return b.snap.ID
}

// RecordScopeErrors attaches non-fatal per-scope failures. These never
// force the error status on their own.
func (b *Builder) RecordScopeErrors(errs []types.ScopeError) {
	b.snap.ScopeErrors = append(b.snap.ScopeErrors, errs...)
}

// MarkBillingDegraded flags that billing was entirely unavailable and
// costs are estimates.
func (b *Builder) MarkBillingDegraded() {
	b.snap.BillingDegraded = true
}

// Finalize completes the snapshot as success with its aggregate totals.
func (b *Builder) Finalize(counts types.ActionCounts, totalCost float64) types.Snapshot {
	b.snap.Status = types.SnapshotSuccess
	b.snap.CompletedAt = time.Now().UTC()
	b.snap.Counts = counts
	b.snap.TotalCost = totalCost
	return b.snap
}

// Fail completes the snapshot as error after a fatal connection-level
// failure. Whatever partial totals were computed stay on the record.
func (b *Builder) Fail(err error, counts types.ActionCounts, totalCost float64) types.Snapshot {
	b.snap.Status = types.SnapshotError
	b.snap.CompletedAt = time.Now().UTC()
	b.snap.Counts = counts
	b.snap.TotalCost = totalCost
	if err != nil {
		b.snap.Error = err.Error()
	}
	return b.snap
}
