// Package correlator reconciles billing line items against live
// inventory to produce the authoritative type and cost per resource.
package correlator

import (
	"context"
	"time"

	"github.com/sjkallio/kirjuri/pricing"
	"github.com/sjkallio/kirjuri/telemetry"
	"github.com/sjkallio/kirjuri/types"
)

// Result is the correlated view of one connection's observation.
type Result struct {
	Resources    []types.Resource
	Hints        map[string]types.ParentHints
	Unrecognized []types.UnrecognizedResource
}

// Correlator matches billing to inventory and classifies resources.
type Correlator struct {
	estimator pricing.Estimator
	logger    *telemetry.Logger
}

// New creates a correlator. The estimator prices orphans with no
// billing rows.
func New(estimator pricing.Estimator) *Correlator {
	return &Correlator{
		estimator: estimator,
		logger:    telemetry.NewLogger("correlator"),
	}
}

// Correlate produces one reconciled resource per id observed in either
// inventory or billing:
//   - both: classified from inventory type, cost summed from billing
//   - billing only: zombie, status DELETED_BILLED, billed cost kept
//   - inventory only: orphan, estimated cost, flagged low-confidence
//   - unclassifiable billing: unrecognized row, one per line item
func (c *Correlator) Correlate(ctx context.Context, connectionID string, inventory []types.ObservedResource, billing []types.BillingItem) *Result {
	result := &Result{
		Hints: make(map[string]types.ParentHints),
	}

	billingGroups := types.GroupBillingByResource(billing)
	matched := make(map[string]bool, len(inventory))

	for _, observed := range inventory {
		items := billingGroups[observed.ProviderResourceID]
		matched[observed.ProviderResourceID] = true
		result.Resources = append(result.Resources, c.correlateInventory(ctx, connectionID, observed, items))
		result.Hints[observed.ProviderResourceID] = hintsFor(observed, items)
	}

	for id, items := range billingGroups {
		if matched[id] {
			continue
		}
		resource, unrecognized := c.correlateBillingOnly(ctx, connectionID, id, items)
		if len(unrecognized) > 0 {
			result.Unrecognized = append(result.Unrecognized, unrecognized...)
			continue
		}
		result.Resources = append(result.Resources, *resource)
		result.Hints[id] = hintsForBilling(items)
	}

	return result
}

// correlateInventory builds the resource for an id present in inventory.
func (c *Correlator) correlateInventory(ctx context.Context, connectionID string, observed types.ObservedResource, items []types.BillingItem) types.Resource {
	rtype, ok := ClassifyRawType(observed.RawType)
	if !ok {
		// Inventory types outside the table still get a billing-side
		// inference before falling back to other
		rtype = types.TypeOther
		if len(items) > 0 {
			if inferred, billingOK := ClassifyBilling(items[0]); billingOK {
				rtype = inferred
			}
		}
	}

	resource := types.Resource{
		ProviderResourceID: observed.ProviderResourceID,
		ConnectionID:       connectionID,
		Type:               rtype,
		Name:               observed.Name,
		Region:             observed.Region,
		ScopeID:            observed.ScopeID,
		Status:             observed.Status,
		IsActive:           true,
		SpecFields:         observed.SpecFields,
	}

	if len(items) == 0 {
		// Orphan: in inventory but never billed. Best-effort estimate,
		// explicitly low-confidence.
		resource.Cost = c.estimator.Estimate(observed, rtype)
		resource.LowConfidence = true
		return resource
	}

	resource.Cost, resource.Currency = sumCost(items)
	resource.PeriodStart, resource.PeriodEnd = periodOf(items)
	return resource
}

// correlateBillingOnly handles ids billed but absent from inventory.
func (c *Correlator) correlateBillingOnly(ctx context.Context, connectionID, id string, items []types.BillingItem) (*types.Resource, []types.UnrecognizedResource) {
	rtype, ok := ClassifyBilling(items[0])
	if !ok {
		// Not forced into the taxonomy: one unrecognized row per line
		// item, every run, no deduplication
		unrecognized := make([]types.UnrecognizedResource, 0, len(items))
		for _, item := range items {
			c.logger.LogUnrecognized(ctx, connectionID, item.Service, item.Metric)
			unrecognized = append(unrecognized, types.UnrecognizedResource{
				ConnectionID: connectionID,
				RawBilling:   rawPayload(item),
				DiscoveredAt: time.Now(),
			})
		}
		return nil, unrecognized
	}

	cost, currency := sumCost(items)
	c.logger.LogZombie(ctx, connectionID, id, cost)

	resource := &types.Resource{
		ProviderResourceID: id,
		ConnectionID:       connectionID,
		Type:               rtype,
		Name:               id,
		Region:             items[0].Region,
		ScopeID:            items[0].ScopeID,
		Status:             types.StatusDeletedBilled,
		Cost:               cost,
		Currency:           currency,
		IsActive:           false, // logically deleted, cost still visible
	}
	resource.PeriodStart, resource.PeriodEnd = periodOf(items)
	return resource, nil
}

func hintsFor(observed types.ObservedResource, items []types.BillingItem) types.ParentHints {
	hints := types.ParentHints{
		AttachmentID: observed.AttachedTo,
		ClusterID:    observed.ClusterLabel,
	}
	for _, item := range items {
		if item.ParentResourceID != "" {
			hints.BillingParentID = item.ParentResourceID
			break
		}
	}
	return hints
}

func hintsForBilling(items []types.BillingItem) types.ParentHints {
	var hints types.ParentHints
	for _, item := range items {
		if item.ParentResourceID != "" {
			hints.BillingParentID = item.ParentResourceID
			break
		}
	}
	return hints
}

func sumCost(items []types.BillingItem) (float64, string) {
	var total float64
	var currency string
	for _, item := range items {
		total += item.Cost
		if currency == "" {
			currency = item.Currency
		}
	}
	return total, currency
}

func periodOf(items []types.BillingItem) (time.Time, time.Time) {
	var start, end time.Time
	for _, item := range items {
		if start.IsZero() || (!item.PeriodStart.IsZero() && item.PeriodStart.Before(start)) {
			start = item.PeriodStart
		}
		if item.PeriodEnd.After(end) {
			end = item.PeriodEnd
		}
	}
	return start, end
}

func rawPayload(item types.BillingItem) map[string]any {
	payload := map[string]any{
		"provider_resource_id": item.ProviderResourceID,
		"service":              item.Service,
		"metric":               item.Metric,
		"region":               item.Region,
		"scope_id":             item.ScopeID,
		"cost":                 item.Cost,
		"currency":             item.Currency,
	}
	for key, value := range item.Raw {
		payload[key] = value
	}
	return payload
}
