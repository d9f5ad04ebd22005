package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sjkallio/kirjuri/config"
	"github.com/sjkallio/kirjuri/journal"
	"github.com/sjkallio/kirjuri/providers"
	"github.com/sjkallio/kirjuri/storage"
	"github.com/sjkallio/kirjuri/types"
)

// fakeProvider is a scriptable provider shared through the registry.
type fakeProvider struct {
	scopes    []types.Scope
	scopesErr error
	inventory map[string][]types.ObservedResource
	billing   map[string][]types.BillingItem
	invErrs   map[string]error
	billErrs  map[string]error
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) DiscoverScopes(ctx context.Context) ([]types.Scope, error) {
	if p.scopesErr != nil {
		return nil, p.scopesErr
	}
	return p.scopes, nil
}

func (p *fakeProvider) ListInventory(ctx context.Context, scope types.Scope) ([]types.ObservedResource, error) {
	if err := p.invErrs[scope.ID]; err != nil {
		return nil, err
	}
	return p.inventory[scope.ID], nil
}

func (p *fakeProvider) ListBilling(ctx context.Context, scope types.Scope, start, end time.Time) ([]types.BillingItem, error) {
	if err := p.billErrs[scope.ID]; err != nil {
		return nil, err
	}
	return p.billing[scope.ID], nil
}

var testProviders = map[string]*fakeProvider{}

func init() {
	providers.Register("fake", func(ctx context.Context, conn types.ProviderConnection) (providers.CloudProvider, error) {
		p, ok := testProviders[conn.ID]
		if !ok {
			return nil, errors.New("no fake provider scripted")
		}
		return p, nil
	})
}

func newOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()

	cfg := &config.Config{
		Version:    "1",
		StorageDir: t.TempDir(),
		Connections: []types.ProviderConnection{
			{ID: "conn-1", Name: "test", Provider: "fake"},
		},
		Sync: config.SyncConfig{
			Interval:      config.DefaultInterval,
			CallTimeout:   config.DefaultCallTimeout,
			BillingPeriod: config.DefaultBillingPeriod,
			CostTolerance: config.DefaultCostTolerance,
		},
	}

	store, err := storage.Open(cfg.StorageDir)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	jnl, err := journal.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { jnl.Close() })

	o, err := New(cfg, store, jnl)
	require.NoError(t, err)
	return o
}

func scriptProvider(t *testing.T, p *fakeProvider) {
	t.Helper()
	testProviders["conn-1"] = p
	t.Cleanup(func() { delete(testProviders, "conn-1") })
}

func observedServer(id, scopeID string) types.ObservedResource {
	return types.ObservedResource{
		ProviderResourceID: id,
		RawType:            "ec2:instance",
		Region:             "us-east-1",
		ScopeID:            scopeID,
		Status:             "running",
	}
}

func billedServer(id, scopeID string, cost float64) types.BillingItem {
	return types.BillingItem{
		ProviderResourceID: id,
		Service:            "Amazon Elastic Compute Cloud - Compute",
		Region:             "us-east-1",
		ScopeID:            scopeID,
		Cost:               cost,
		Currency:           "USD",
	}
}

func TestSyncEndToEnd(t *testing.T) {
	o := newOrchestrator(t)
	scriptProvider(t, &fakeProvider{
		scopes:    []types.Scope{{ID: "acct-1", Kind: "account"}},
		inventory: map[string][]types.ObservedResource{"acct-1": {observedServer("i-aaa", "acct-1")}},
		billing:   map[string][]types.BillingItem{"acct-1": {billedServer("i-aaa", "acct-1", 42)}},
	})

	summary, err := o.Sync(context.Background(), types.ProviderConnection{ID: "conn-1", Provider: "fake"})
	require.NoError(t, err)

	assert.Equal(t, types.SnapshotSuccess, summary.Snapshot.Status)
	assert.Equal(t, 1, summary.Snapshot.Counts.Created)
	assert.InDelta(t, 42, summary.Snapshot.TotalCost, 0.0001)
	assert.False(t, summary.Snapshot.BillingDegraded)

	current, err := o.CurrentResources("conn-1")
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, "i-aaa", current[0].ProviderResourceID)
	assert.Equal(t, types.TypeServer, current[0].Type)
	assert.InDelta(t, 42, current[0].Cost, 0.0001)
}

func TestSyncIdempotent(t *testing.T) {
	o := newOrchestrator(t)
	scriptProvider(t, &fakeProvider{
		scopes:    []types.Scope{{ID: "acct-1", Kind: "account"}},
		inventory: map[string][]types.ObservedResource{"acct-1": {observedServer("i-aaa", "acct-1")}},
		billing:   map[string][]types.BillingItem{"acct-1": {billedServer("i-aaa", "acct-1", 42)}},
	})
	conn := types.ProviderConnection{ID: "conn-1", Provider: "fake"}

	first, err := o.Sync(context.Background(), conn)
	require.NoError(t, err)
	second, err := o.Sync(context.Background(), conn)
	require.NoError(t, err)

	assert.Equal(t, 1, first.Snapshot.Counts.Created)
	assert.Equal(t, 1, second.Snapshot.Counts.Unchanged)
	assert.Zero(t, second.Snapshot.Counts.Created)
	assert.InDelta(t, first.Snapshot.TotalCost, second.Snapshot.TotalCost, 0.0001)

	history, err := o.ResourceHistory("conn-1", "i-aaa")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, types.ActionCreated, history[0].StateAction)
	assert.Equal(t, types.ActionUnchanged, history[1].StateAction)
}

func TestSyncScopeFailureIsolated(t *testing.T) {
	o := newOrchestrator(t)
	scriptProvider(t, &fakeProvider{
		scopes: []types.Scope{{ID: "acct-1", Kind: "account"}, {ID: "acct-2", Kind: "account"}},
		inventory: map[string][]types.ObservedResource{
			"acct-1": {observedServer("i-aaa", "acct-1")},
		},
		billing: map[string][]types.BillingItem{
			"acct-1": {billedServer("i-aaa", "acct-1", 42)},
		},
		invErrs:  map[string]error{"acct-2": errors.New("throttled")},
		billErrs: map[string]error{"acct-2": errors.New("throttled")},
	})

	summary, err := o.Sync(context.Background(), types.ProviderConnection{ID: "conn-1", Provider: "fake"})
	require.NoError(t, err, "one scope failing never fails the run")

	assert.Equal(t, types.SnapshotSuccess, summary.Snapshot.Status)
	assert.Len(t, summary.Snapshot.ScopeErrors, 2, "inventory and billing failures both recorded")
	assert.Equal(t, 1, summary.Snapshot.Counts.Created, "healthy scope still synced")
}

func TestSyncAuthFailureFatal(t *testing.T) {
	o := newOrchestrator(t)
	scriptProvider(t, &fakeProvider{scopesErr: errors.New("token expired")})

	summary, err := o.Sync(context.Background(), types.ProviderConnection{ID: "conn-1", Provider: "fake"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authentication failure")
	assert.Equal(t, types.SnapshotError, summary.Snapshot.Status)

	snaps, err := o.Snapshots("conn-1", 0)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, types.SnapshotError, snaps[0].Status)
}

func TestSyncBillingDegraded(t *testing.T) {
	o := newOrchestrator(t)
	scriptProvider(t, &fakeProvider{
		scopes:    []types.Scope{{ID: "acct-1", Kind: "account"}},
		inventory: map[string][]types.ObservedResource{"acct-1": {observedServer("i-aaa", "acct-1")}},
		billErrs:  map[string]error{"acct-1": errors.New("cost api down")},
	})

	summary, err := o.Sync(context.Background(), types.ProviderConnection{ID: "conn-1", Provider: "fake"})
	require.NoError(t, err, "missing billing alone never fails a run")

	assert.Equal(t, types.SnapshotSuccess, summary.Snapshot.Status)
	assert.True(t, summary.Snapshot.BillingDegraded)
	assert.Equal(t, 1, summary.Snapshot.Counts.Created, "inventory-only resources estimated")
}

func TestSyncNothingAvailableFatal(t *testing.T) {
	o := newOrchestrator(t)
	scriptProvider(t, &fakeProvider{
		scopes:   []types.Scope{{ID: "acct-1", Kind: "account"}},
		invErrs:  map[string]error{"acct-1": errors.New("down")},
		billErrs: map[string]error{"acct-1": errors.New("down")},
	})

	summary, err := o.Sync(context.Background(), types.ProviderConnection{ID: "conn-1", Provider: "fake"})
	require.Error(t, err)
	assert.Equal(t, types.SnapshotError, summary.Snapshot.Status)
}

func TestSyncZombiePreserved(t *testing.T) {
	o := newOrchestrator(t)
	p := &fakeProvider{
		scopes:    []types.Scope{{ID: "acct-1", Kind: "account"}},
		inventory: map[string][]types.ObservedResource{"acct-1": {observedServer("i-ghost", "acct-1")}},
		billing:   map[string][]types.BillingItem{"acct-1": {billedServer("i-ghost", "acct-1", 42)}},
	}
	scriptProvider(t, p)
	conn := types.ProviderConnection{ID: "conn-1", Provider: "fake"}

	_, err := o.Sync(context.Background(), conn)
	require.NoError(t, err)

	// The instance vanished from inventory but still bills.
	p.inventory = map[string][]types.ObservedResource{"acct-1": nil}

	summary, err := o.Sync(context.Background(), conn)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Snapshot.Counts.Updated)
	assert.InDelta(t, 42, summary.Snapshot.TotalCost, 0.0001, "billed cost survives deletion")

	current, err := o.CurrentResources("conn-1")
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, types.StatusDeletedBilled, current[0].Status)
	assert.False(t, current[0].IsActive)
}

func TestSyncUnrecognizedAccumulates(t *testing.T) {
	o := newOrchestrator(t)
	scriptProvider(t, &fakeProvider{
		scopes: []types.Scope{{ID: "acct-1", Kind: "account"}},
		billing: map[string][]types.BillingItem{"acct-1": {{
			ProviderResourceID: "mystery-arn",
			Service:            "Some Experimental Service",
			Metric:             "experimental_units",
			ScopeID:            "acct-1",
			Cost:               1.5,
		}}},
		inventory: map[string][]types.ObservedResource{"acct-1": {observedServer("i-aaa", "acct-1")}},
	})
	conn := types.ProviderConnection{ID: "conn-1", Provider: "fake"}

	for i := 0; i < 3; i++ {
		summary, err := o.Sync(context.Background(), conn)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Unrecognized)
	}

	items, err := o.store.UnrecognizedFor("conn-1")
	require.NoError(t, err)
	assert.Len(t, items, 3, "one row per sync, no dedup")
}

func TestTriggerSyncUnknownConnection(t *testing.T) {
	o := newOrchestrator(t)

	_, err := o.TriggerSync(context.Background(), "missing")
	assert.Error(t, err)
}

func TestSyncAllIsolated(t *testing.T) {
	cfg := &config.Config{
		Version:    "1",
		StorageDir: t.TempDir(),
		Connections: []types.ProviderConnection{
			{ID: "conn-1", Provider: "fake"},
			{ID: "conn-2", Provider: "fake"},
		},
		Sync: config.SyncConfig{
			CallTimeout:   config.DefaultCallTimeout,
			BillingPeriod: config.DefaultBillingPeriod,
			CostTolerance: config.DefaultCostTolerance,
		},
	}
	store, err := storage.Open(cfg.StorageDir)
	require.NoError(t, err)
	defer store.Close()

	o, err := New(cfg, store, nil)
	require.NoError(t, err)

	testProviders["conn-1"] = &fakeProvider{
		scopes:    []types.Scope{{ID: "acct-1", Kind: "account"}},
		inventory: map[string][]types.ObservedResource{"acct-1": {observedServer("i-aaa", "acct-1")}},
		billing:   map[string][]types.BillingItem{"acct-1": {billedServer("i-aaa", "acct-1", 10)}},
	}
	testProviders["conn-2"] = &fakeProvider{scopesErr: errors.New("token expired")}
	defer delete(testProviders, "conn-1")
	defer delete(testProviders, "conn-2")

	summaries, err := o.SyncAll(context.Background())
	require.Error(t, err, "failed connection surfaces in joined error")
	require.Len(t, summaries, 2)

	assert.Equal(t, types.SnapshotSuccess, summaries[0].Snapshot.Status)
	assert.Equal(t, types.SnapshotError, summaries[1].Snapshot.Status)
}
