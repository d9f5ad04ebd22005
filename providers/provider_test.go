package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sjkallio/kirjuri/types"
)

// fakeProvider implements CloudProvider with canned per-scope results.
type fakeProvider struct {
	scopes       []types.Scope
	inventory    map[string][]types.ObservedResource
	billing      map[string][]types.BillingItem
	inventoryErr map[string]error
	billingErr   map[string]error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) DiscoverScopes(ctx context.Context) ([]types.Scope, error) {
	return f.scopes, nil
}

func (f *fakeProvider) ListInventory(ctx context.Context, scope types.Scope) ([]types.ObservedResource, error) {
	if err := f.inventoryErr[scope.ID]; err != nil {
		return nil, err
	}
	return f.inventory[scope.ID], nil
}

func (f *fakeProvider) ListBilling(ctx context.Context, scope types.Scope, start, end time.Time) ([]types.BillingItem, error) {
	if err := f.billingErr[scope.ID]; err != nil {
		return nil, err
	}
	return f.billing[scope.ID], nil
}

func TestRegistry(t *testing.T) {
	Register("fake", func(ctx context.Context, conn types.ProviderConnection) (CloudProvider, error) {
		return &fakeProvider{}, nil
	})

	conn := types.ProviderConnection{ID: "c1", Provider: "fake"}
	p, err := ForConnection(context.Background(), conn)
	if err != nil {
		t.Fatalf("ForConnection failed: %v", err)
	}
	if p.Name() != "fake" {
		t.Errorf("Expected fake provider, got %s", p.Name())
	}

	conn.Provider = "nonexistent"
	if _, err := ForConnection(context.Background(), conn); err == nil {
		t.Error("Expected error for unknown provider")
	}
}

func TestCollect_ScopeFailureIsolation(t *testing.T) {
	scopes := []types.Scope{
		{ID: "eu-north-1", Kind: "region"},
		{ID: "us-east-1", Kind: "region"},
		{ID: "ap-south-1", Kind: "region"},
	}
	provider := &fakeProvider{
		scopes: scopes,
		inventory: map[string][]types.ObservedResource{
			"eu-north-1": {{ProviderResourceID: "i-1"}},
			"ap-south-1": {{ProviderResourceID: "i-2"}},
		},
		billing: map[string][]types.BillingItem{
			"eu-north-1": {{ProviderResourceID: "i-1", Cost: 10}},
			"ap-south-1": {{ProviderResourceID: "i-2", Cost: 20}},
		},
		inventoryErr: map[string]error{
			"us-east-1": errors.New("request timed out"),
		},
		billingErr: map[string]error{
			"us-east-1": errors.New("request timed out"),
		},
	}

	obs := Collect(context.Background(), provider, scopes, CollectOptions{
		CallTimeout: time.Second,
	})

	if len(obs.Inventory) != 2 {
		t.Errorf("Expected 2 inventory resources from healthy scopes, got %d", len(obs.Inventory))
	}
	if len(obs.Billing) != 2 {
		t.Errorf("Expected 2 billing items from healthy scopes, got %d", len(obs.Billing))
	}
	if len(obs.ScopeErrors) != 2 {
		t.Errorf("Expected 2 scope errors (inventory + billing), got %d", len(obs.ScopeErrors))
	}
	if obs.InventoryUnavailable() {
		t.Error("Inventory should not be reported unavailable when two scopes succeeded")
	}
}

func TestCollect_BillingEntirelyUnavailable(t *testing.T) {
	scopes := []types.Scope{{ID: "eu-north-1", Kind: "region"}}
	provider := &fakeProvider{
		scopes: scopes,
		inventory: map[string][]types.ObservedResource{
			"eu-north-1": {{ProviderResourceID: "i-1"}},
		},
		billingErr: map[string]error{
			"eu-north-1": errors.New("access denied"),
		},
	}

	obs := Collect(context.Background(), provider, scopes, CollectOptions{CallTimeout: time.Second})

	if !obs.BillingUnavailable() {
		t.Error("Billing should be reported unavailable")
	}
	if obs.InventoryUnavailable() {
		t.Error("Inventory should be available")
	}
}
