package providers

import (
	"context"
	"time"

	"github.com/sjkallio/kirjuri/types"
)

// Observation is the combined result of collecting one connection's
// scopes. Per-scope failures are recorded, never raised.
type Observation struct {
	Inventory   []types.ObservedResource
	Billing     []types.BillingItem
	ScopeErrors []types.ScopeError
	ScopesTotal int
	InventoryOK int
	BillingOK   int
}

// InventoryUnavailable reports whether no scope yielded inventory.
func (o *Observation) InventoryUnavailable() bool {
	return o.InventoryOK == 0 && o.ScopesTotal > 0
}

// BillingUnavailable reports whether no scope yielded billing data.
func (o *Observation) BillingUnavailable() bool {
	return o.BillingOK == 0 && o.ScopesTotal > 0
}

// CollectOptions bound the collection phase.
type CollectOptions struct {
	CallTimeout time.Duration
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// Collect fetches inventory and billing across all scopes. Inventory and
// billing are fetched independently per scope so that one endpoint's
// failure never blocks the other, and one scope's failure never blocks
// sibling scopes.
func Collect(ctx context.Context, provider CloudProvider, scopes []types.Scope, opts CollectOptions) *Observation {
	obs := &Observation{ScopesTotal: len(scopes)}

	for _, scope := range scopes {
		inventory, err := collectInventory(ctx, provider, scope, opts.CallTimeout)
		if err != nil {
			obs.ScopeErrors = append(obs.ScopeErrors, scopeError(scope, "inventory", err))
		} else {
			obs.Inventory = append(obs.Inventory, inventory...)
			obs.InventoryOK++
		}

		billing, err := collectBilling(ctx, provider, scope, opts)
		if err != nil {
			obs.ScopeErrors = append(obs.ScopeErrors, scopeError(scope, "billing", err))
		} else {
			obs.Billing = append(obs.Billing, billing...)
			obs.BillingOK++
		}
	}

	return obs
}

func collectInventory(ctx context.Context, provider CloudProvider, scope types.Scope, timeout time.Duration) ([]types.ObservedResource, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return provider.ListInventory(callCtx, scope)
}

func collectBilling(ctx context.Context, provider CloudProvider, scope types.Scope, opts CollectOptions) ([]types.BillingItem, error) {
	callCtx, cancel := context.WithTimeout(ctx, opts.CallTimeout)
	defer cancel()
	return provider.ListBilling(callCtx, scope, opts.PeriodStart, opts.PeriodEnd)
}

func scopeError(scope types.Scope, phase string, err error) types.ScopeError {
	return types.ScopeError{
		ScopeID:    scope.ID,
		Phase:      phase,
		Message:    err.Error(),
		OccurredAt: time.Now(),
	}
}
