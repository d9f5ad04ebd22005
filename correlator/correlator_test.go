package correlator

import (
	"context"
	"testing"

	"github.com/sjkallio/kirjuri/pricing"
	"github.com/sjkallio/kirjuri/types"
)

func newTestCorrelator() *Correlator {
	return New(pricing.NewStaticEstimator())
}

func TestCorrelate_InventoryWithBilling(t *testing.T) {
	c := newTestCorrelator()

	inventory := []types.ObservedResource{
		{ProviderResourceID: "i-1", RawType: "ec2:instance", Name: "web-1", Region: "eu-north-1", ScopeID: "eu-north-1", Status: "running"},
	}
	billing := []types.BillingItem{
		{ProviderResourceID: "i-1", Service: "Amazon Elastic Compute Cloud - Compute", Cost: 70, Currency: "USD"},
		{ProviderResourceID: "i-1", Service: "Amazon Elastic Compute Cloud - Compute", Cost: 30, Currency: "USD"},
	}

	result := c.Correlate(context.Background(), "c1", inventory, billing)

	if len(result.Resources) != 1 {
		t.Fatalf("Expected 1 resource, got %d", len(result.Resources))
	}
	r := result.Resources[0]
	if r.Type != types.TypeServer {
		t.Errorf("Expected server type, got %s", r.Type)
	}
	if r.Cost != 100 {
		t.Errorf("Expected cost 100, got %v", r.Cost)
	}
	if r.LowConfidence {
		t.Error("Billed resource should not be low-confidence")
	}
	if !r.IsActive {
		t.Error("Inventoried resource should be active")
	}
}

func TestCorrelate_ZombiePreservation(t *testing.T) {
	c := newTestCorrelator()

	// old-vm-42 billed at 50/day with no matching inventory entry
	billing := []types.BillingItem{
		{ProviderResourceID: "i-old-vm-42", Service: "Amazon Elastic Compute Cloud - Compute", Cost: 50, Currency: "USD"},
	}

	result := c.Correlate(context.Background(), "c1", nil, billing)

	if len(result.Resources) != 1 {
		t.Fatalf("Expected 1 zombie resource, got %d", len(result.Resources))
	}
	zombie := result.Resources[0]
	if zombie.Status != types.StatusDeletedBilled {
		t.Errorf("Expected DELETED_BILLED, got %s", zombie.Status)
	}
	if zombie.Cost != 50 {
		t.Errorf("Expected billed cost 50, got %v", zombie.Cost)
	}
	if zombie.IsActive {
		t.Error("Zombie should be inactive")
	}
}

func TestCorrelate_OrphanEstimate(t *testing.T) {
	c := newTestCorrelator()

	inventory := []types.ObservedResource{
		{ProviderResourceID: "vol-orphan", RawType: "ebs:volume", Status: "available"},
	}

	result := c.Correlate(context.Background(), "c1", inventory, nil)

	if len(result.Resources) != 1 {
		t.Fatalf("Expected 1 resource, got %d", len(result.Resources))
	}
	orphan := result.Resources[0]
	if !orphan.LowConfidence {
		t.Error("Orphan estimate must be flagged low-confidence")
	}
	if orphan.Cost == 0 {
		t.Error("Static estimator should produce a non-zero volume estimate")
	}
}

func TestCorrelate_UnrecognizedNoDedup(t *testing.T) {
	c := newTestCorrelator()

	billing := []types.BillingItem{
		{ProviderResourceID: "mystery-charge", Service: "Quantum Flux Capacity", Metric: "flux_units", Cost: 9},
		{ProviderResourceID: "mystery-charge", Service: "Quantum Flux Capacity", Metric: "flux_units", Cost: 9},
	}

	result := c.Correlate(context.Background(), "c1", nil, billing)

	if len(result.Resources) != 0 {
		t.Errorf("Unclassifiable items must not be forced into the taxonomy, got %d resources", len(result.Resources))
	}
	if len(result.Unrecognized) != 2 {
		t.Errorf("Expected one unrecognized row per line item, got %d", len(result.Unrecognized))
	}
}

func TestCorrelate_MetricInference(t *testing.T) {
	c := newTestCorrelator()

	billing := []types.BillingItem{
		{ProviderResourceID: "disk-123", Service: "Unheard Of Service", Metric: "volume_read_ops", Cost: 3},
	}

	result := c.Correlate(context.Background(), "c1", nil, billing)

	if len(result.Resources) != 1 {
		t.Fatalf("Expected metric-name inference to classify the item, got %d resources", len(result.Resources))
	}
	if result.Resources[0].Type != types.TypeVolume {
		t.Errorf("Expected volume from volume_ metric prefix, got %s", result.Resources[0].Type)
	}
}

func TestCorrelate_BillingParentHint(t *testing.T) {
	c := newTestCorrelator()

	inventory := []types.ObservedResource{
		{ProviderResourceID: "vol-1", RawType: "ebs:volume", AttachedTo: "i-1"},
	}
	billing := []types.BillingItem{
		{ProviderResourceID: "vol-1", ParentResourceID: "i-1", Service: "Amazon Elastic Block Store", Cost: 2},
	}

	result := c.Correlate(context.Background(), "c1", inventory, billing)

	hints := result.Hints["vol-1"]
	if hints.AttachmentID != "i-1" {
		t.Errorf("Expected attachment hint i-1, got %q", hints.AttachmentID)
	}
	if hints.BillingParentID != "i-1" {
		t.Errorf("Expected billing parent hint i-1, got %q", hints.BillingParentID)
	}
}

func TestClassifyBilling_Fallbacks(t *testing.T) {
	tests := []struct {
		name string
		item types.BillingItem
		want types.ResourceType
		ok   bool
	}{
		{"service match", types.BillingItem{Service: "Azure Kubernetes Service"}, types.TypeKubernetesCluster, true},
		{"metric prefix", types.BillingItem{Service: "x", Metric: "snapshot_storage_gb"}, types.TypeSnapshot, true},
		{"id prefix", types.BillingItem{Service: "x", Metric: "y", ProviderResourceID: "snap-0abc"}, types.TypeSnapshot, true},
		{"id path", types.BillingItem{ProviderResourceID: "/subscriptions/s/providers/microsoft.compute/disks/d1"}, types.TypeVolume, true},
		{"unclassifiable", types.BillingItem{Service: "x", Metric: "y", ProviderResourceID: "z"}, types.TypeOther, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ClassifyBilling(tt.item)
			if ok != tt.ok || got != tt.want {
				t.Errorf("ClassifyBilling() = (%v, %v), want (%v, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}
