package types

import "time"

// SnapshotStatus is the snapshot lifecycle state.
// running is the only non-terminal state.
type SnapshotStatus string

const (
	SnapshotRunning SnapshotStatus = "running"
	SnapshotSuccess SnapshotStatus = "success"
	SnapshotError   SnapshotStatus = "error"
)

// StateAction classifies a resource's transition between snapshots.
type StateAction string

const (
	ActionCreated   StateAction = "created"
	ActionUpdated   StateAction = "updated"
	ActionDeleted   StateAction = "deleted"
	ActionUnchanged StateAction = "unchanged"
)

// ActionCounts tallies resource states by action for one snapshot.
type ActionCounts struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Deleted   int `json:"deleted"`
	Unchanged int `json:"unchanged"`
}

// Total returns the number of classified resources.
func (c ActionCounts) Total() int {
	return c.Created + c.Updated + c.Deleted + c.Unchanged
}

// Add increments the tally for one action.
func (c *ActionCounts) Add(action StateAction) {
	switch action {
	case ActionCreated:
		c.Created++
	case ActionUpdated:
		c.Updated++
	case ActionDeleted:
		c.Deleted++
	case ActionUnchanged:
		c.Unchanged++
	}
}

// ScopeError records a non-fatal per-scope failure during a sync run.
type ScopeError struct {
	ScopeID    string    `json:"scope_id"`
	Phase      string    `json:"phase"` // inventory or billing
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Snapshot is one reconciliation run for one connection. Immutable once
// status leaves running. Strictly ordered by StartedAt within a connection.
type Snapshot struct {
	ID              string         `json:"id"`
	ConnectionID    string         `json:"connection_id"`
	Status          SnapshotStatus `json:"status"`
	StartedAt       time.Time      `json:"started_at"`
	CompletedAt     time.Time      `json:"completed_at,omitempty"`
	Counts          ActionCounts   `json:"resource_counts"`
	TotalCost       float64        `json:"total_cost"`
	BillingDegraded bool           `json:"billing_degraded,omitempty"`
	ScopeErrors     []ScopeError   `json:"scope_errors,omitempty"`
	Error           string         `json:"error,omitempty"`
}

// ChangeFlags records which tracked field groups changed for an updated
// resource. All false for created/deleted/unchanged.
type ChangeFlags struct {
	Cost   bool `json:"has_cost_change"`
	Status bool `json:"has_status_change"`
	Config bool `json:"has_config_change"`
}

// Any reports whether any field group changed.
func (f ChangeFlags) Any() bool {
	return f.Cost || f.Status || f.Config
}

// ResourceState is the recorded state of exactly one resource within
// exactly one snapshot. Never deleted - the permanent audit trail.
type ResourceState struct {
	SnapshotID         string            `json:"snapshot_id"`
	ConnectionID       string            `json:"connection_id"`
	ProviderResourceID string            `json:"provider_resource_id"`
	ResourceType       ResourceType      `json:"resource_type"`
	StateAction        StateAction       `json:"state_action"`
	PreviousState      map[string]string `json:"previous_state,omitempty"`
	CurrentState       map[string]string `json:"current_state,omitempty"`
	Changes            ChangeFlags       `json:"change_flags"`
	Cost               float64           `json:"cost"`
	RecordedAt         time.Time         `json:"recorded_at"`
}

// UnrecognizedResource is a billing line item that could not be classified.
// Append-only: every sync that observes it produces a new row, preserving
// discovery frequency for later mapping work.
type UnrecognizedResource struct {
	ConnectionID string         `json:"connection_id"`
	SnapshotID   string         `json:"snapshot_id"`
	RawBilling   map[string]any `json:"raw_billing_payload"`
	DiscoveredAt time.Time      `json:"discovered_at"`
}
