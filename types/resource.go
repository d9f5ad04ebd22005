package types

import "time"

// ResourceType is the normalized taxonomy every provider type maps into.
type ResourceType string

const (
	TypeServer            ResourceType = "server"
	TypeVolume            ResourceType = "volume"
	TypeDatabase          ResourceType = "database"
	TypeKubernetesCluster ResourceType = "kubernetes_cluster"
	TypeLoadBalancer      ResourceType = "load_balancer"
	TypeSnapshot          ResourceType = "snapshot"
	TypeImage             ResourceType = "image"
	TypeNetwork           ResourceType = "network"
	TypeBackup            ResourceType = "backup"
	TypeOther             ResourceType = "other"
)

// StatusDeletedBilled marks a zombie: billed by the provider but gone
// from inventory. The cost is real even if the resource isn't.
const StatusDeletedBilled = "DELETED_BILLED"

// Scope is one unit of API visibility within a connection - a region,
// project, or subscription. A credential may see fewer scopes than the
// full account.
type Scope struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"` // region, subscription, project
	Region string `json:"region,omitempty"`
}

// ObservedResource is one raw inventory record as returned by a provider
// adapter, before correlation.
type ObservedResource struct {
	ProviderResourceID string            `json:"provider_resource_id"`
	RawType            string            `json:"raw_type"`
	Name               string            `json:"name"`
	Region             string            `json:"region"`
	ScopeID            string            `json:"scope_id"`
	Status             string            `json:"status"`
	AttachedTo         string            `json:"attached_to,omitempty"`    // explicit owner from attachment metadata
	ClusterLabel       string            `json:"cluster_label,omitempty"`  // owning cluster id from labels/tags
	SpecFields         map[string]string `json:"spec_fields,omitempty"`
	RawPayload         map[string]any    `json:"raw_payload,omitempty"`
	CreatedAt          time.Time         `json:"created_at,omitempty"`
}

// BillingItem is one billing line item as returned by a provider adapter.
type BillingItem struct {
	ProviderResourceID string         `json:"provider_resource_id"`
	ParentResourceID   string         `json:"parent_resource_id,omitempty"` // set when the provider bills children under a parent
	Service            string         `json:"service"`
	Metric             string         `json:"metric"`
	Region             string         `json:"region"`
	ScopeID            string         `json:"scope_id"`
	Cost               float64        `json:"cost"`
	Currency           string         `json:"currency"`
	PeriodStart        time.Time      `json:"period_start"`
	PeriodEnd          time.Time      `json:"period_end"`
	Raw                map[string]any `json:"raw,omitempty"`
}

// Resource is the reconciled view of one logical resource within a sync
// run, and the materialized "latest known" record once persisted.
type Resource struct {
	ProviderResourceID string            `json:"provider_resource_id"`
	ConnectionID       string            `json:"connection_id"`
	Type               ResourceType      `json:"type"`
	Name               string            `json:"name"`
	Region             string            `json:"region"`
	ScopeID            string            `json:"scope_id"`
	Status             string            `json:"status"`
	Cost               float64           `json:"cost"`
	BaseCost           float64           `json:"base_cost,omitempty"` // pre-aggregation cost, kept for the audit breakdown
	Currency           string            `json:"currency,omitempty"`
	IsActive           bool              `json:"is_active"`
	ParentResourceID   string            `json:"parent_resource_id,omitempty"`
	LowConfidence      bool              `json:"low_confidence,omitempty"`
	SpecFields         map[string]string `json:"spec_fields,omitempty"`
	PeriodStart        time.Time         `json:"period_start,omitempty"`
	PeriodEnd          time.Time         `json:"period_end,omitempty"`
}

// IsZombie reports whether the resource exists only in billing.
func (r *Resource) IsZombie() bool {
	return r.Status == StatusDeletedBilled
}

// ParentHints carries the aggregation evidence collected for one resource
// during correlation, in priority order.
type ParentHints struct {
	AttachmentID    string `json:"attachment_id,omitempty"`     // explicit attachment/ownership metadata
	ClusterID       string `json:"cluster_id,omitempty"`        // label matching a cluster id
	BillingParentID string `json:"billing_parent_id,omitempty"` // parent declared on the billing line
}

// Empty reports whether no explicit evidence was collected.
func (h ParentHints) Empty() bool {
	return h.AttachmentID == "" && h.ClusterID == "" && h.BillingParentID == ""
}
