package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sjkallio/kirjuri/types"
)

func aggregate(resources []types.Resource, hints map[string]types.ParentHints) map[string]types.Resource {
	result := New().Aggregate(resources, hints)
	return types.BuildResourceMap(result)
}

func TestAggregate_VolumeIntoServer(t *testing.T) {
	resources := []types.Resource{
		{ProviderResourceID: "i-1", Type: types.TypeServer, Name: "web-1", Cost: 100, IsActive: true},
		{ProviderResourceID: "vol-1", Type: types.TypeVolume, Name: "web-1-root", Cost: 20, IsActive: true},
	}
	hints := map[string]types.ParentHints{
		"vol-1": {AttachmentID: "i-1"},
	}

	byID := aggregate(resources, hints)

	assert.Equal(t, 120.0, byID["i-1"].Cost, "parent total folds child cost exactly once")
	assert.Equal(t, 100.0, byID["i-1"].BaseCost)
	assert.False(t, byID["vol-1"].IsActive)
	assert.Equal(t, "i-1", byID["vol-1"].ParentResourceID)
	assert.Equal(t, 20.0, byID["vol-1"].Cost, "child row keeps its own cost for the breakdown")
	assert.False(t, byID["vol-1"].LowConfidence, "explicit attachment is not low-confidence")
}

func TestAggregate_ChainVolumeServerCluster(t *testing.T) {
	resources := []types.Resource{
		{ProviderResourceID: "prod-k8s", Type: types.TypeKubernetesCluster, Name: "prod-k8s", Cost: 50, IsActive: true},
		{ProviderResourceID: "i-worker", Type: types.TypeServer, Name: "worker-1", Cost: 100, IsActive: true},
		{ProviderResourceID: "vol-csi", Type: types.TypeVolume, Name: "pvc-data", Cost: 10, IsActive: true},
	}
	hints := map[string]types.ParentHints{
		"i-worker": {ClusterID: "prod-k8s"},
		"vol-csi":  {AttachmentID: "i-worker"},
	}

	byID := aggregate(resources, hints)

	// volume folds into the worker first, then the worker's full total
	// folds into the cluster
	assert.Equal(t, 110.0, byID["i-worker"].Cost)
	assert.Equal(t, 160.0, byID["prod-k8s"].Cost)
	assert.False(t, byID["i-worker"].IsActive)
	assert.False(t, byID["vol-csi"].IsActive)
	assert.Equal(t, "prod-k8s", byID["i-worker"].ParentResourceID)
}

func TestAggregate_NamingHeuristicLowConfidence(t *testing.T) {
	resources := []types.Resource{
		{ProviderResourceID: "i-1", Type: types.TypeServer, Name: "app-7", Cost: 80, IsActive: true},
		{ProviderResourceID: "vol-9", Type: types.TypeVolume, Name: "disk-for-app-7", Cost: 5, IsActive: true},
	}

	byID := aggregate(resources, nil)

	assert.Equal(t, "i-1", byID["vol-9"].ParentResourceID)
	assert.True(t, byID["vol-9"].LowConfidence, "heuristic matches are flagged for audit")
	assert.Equal(t, 85.0, byID["i-1"].Cost)
}

func TestAggregate_UnmatchedChildStaysStandalone(t *testing.T) {
	resources := []types.Resource{
		{ProviderResourceID: "vol-lonely", Type: types.TypeVolume, Name: "scratch", Cost: 3, IsActive: true},
	}

	byID := aggregate(resources, map[string]types.ParentHints{
		"vol-lonely": {AttachmentID: "i-gone"},
	})

	assert.True(t, byID["vol-lonely"].IsActive, "child of a vanished parent returns to standalone")
	assert.Equal(t, "", byID["vol-lonely"].ParentResourceID)
}

func TestAggregate_ZombieParentNotMatched(t *testing.T) {
	resources := []types.Resource{
		{ProviderResourceID: "i-zombie", Type: types.TypeServer, Name: "old", Cost: 40, Status: types.StatusDeletedBilled, IsActive: false},
		{ProviderResourceID: "vol-1", Type: types.TypeVolume, Name: "old-data", Cost: 7, IsActive: true},
	}
	hints := map[string]types.ParentHints{
		"vol-1": {AttachmentID: "i-zombie"},
	}

	byID := aggregate(resources, hints)

	assert.True(t, byID["vol-1"].IsActive)
	assert.Equal(t, 40.0, byID["i-zombie"].Cost, "zombie cost untouched")
}

func TestAggregate_TieBreakPrefersRegion(t *testing.T) {
	resources := []types.Resource{
		{ProviderResourceID: "i-a", Type: types.TypeServer, Name: "a", Region: "us-east-1", Cost: 10, IsActive: true},
		{ProviderResourceID: "i-b", Type: types.TypeServer, Name: "b", Region: "eu-north-1", Cost: 10, IsActive: true},
		{ProviderResourceID: "vol-1", Type: types.TypeVolume, Region: "eu-north-1", Cost: 2, IsActive: true},
	}
	hints := map[string]types.ParentHints{
		"vol-1": {AttachmentID: "i-a", BillingParentID: "i-b"},
	}

	byID := aggregate(resources, hints)

	assert.Equal(t, "i-b", byID["vol-1"].ParentResourceID, "matching region wins the tie-break")
}

func TestAggregate_TieBreakLowestID(t *testing.T) {
	resources := []types.Resource{
		{ProviderResourceID: "i-bbb", Type: types.TypeServer, Name: "b", Region: "eu-north-1", Cost: 10, IsActive: true},
		{ProviderResourceID: "i-aaa", Type: types.TypeServer, Name: "a", Region: "eu-north-1", Cost: 10, IsActive: true},
		{ProviderResourceID: "vol-1", Type: types.TypeVolume, Region: "eu-north-1", Cost: 2, IsActive: true},
	}
	hints := map[string]types.ParentHints{
		"vol-1": {AttachmentID: "i-bbb", BillingParentID: "i-aaa"},
	}

	byID := aggregate(resources, hints)

	assert.Equal(t, "i-aaa", byID["vol-1"].ParentResourceID)
}

func TestAggregate_Idempotent(t *testing.T) {
	build := func() ([]types.Resource, map[string]types.ParentHints) {
		return []types.Resource{
				{ProviderResourceID: "i-1", Type: types.TypeServer, Name: "web", Cost: 100, IsActive: true},
				{ProviderResourceID: "vol-1", Type: types.TypeVolume, Name: "web-root", Cost: 20, IsActive: true},
				{ProviderResourceID: "vol-2", Type: types.TypeVolume, Name: "web-data", Cost: 30, IsActive: true},
			}, map[string]types.ParentHints{
				"vol-1": {AttachmentID: "i-1"},
				"vol-2": {AttachmentID: "i-1"},
			}
	}

	r1, h1 := build()
	r2, h2 := build()
	first := New().Aggregate(r1, h1)
	second := New().Aggregate(r2, h2)

	assert.Equal(t, first, second, "re-running on the same observed set yields the same assignment")
	assert.Equal(t, 150.0, types.BuildResourceMap(first)["i-1"].Cost)
}
