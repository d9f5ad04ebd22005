// Package pricing is the price-lookup collaborator used only when a
// resource's own billing data is absent.
package pricing

import "github.com/sjkallio/kirjuri/types"

// Estimator estimates a daily cost for a resource with no billing rows.
// Estimates are best-effort and always flagged low-confidence upstream.
type Estimator interface {
	Estimate(resource types.ObservedResource, rtype types.ResourceType) float64
}

// StaticEstimator estimates from a fixed per-type daily rate table.
// A real deployment swaps in a catalog-backed implementation.
type StaticEstimator struct {
	rates map[types.ResourceType]float64
}

// NewStaticEstimator creates an estimator with conservative defaults.
func NewStaticEstimator() *StaticEstimator {
	return &StaticEstimator{
		rates: map[types.ResourceType]float64{
			types.TypeServer:            1.2,
			types.TypeVolume:            0.1,
			types.TypeDatabase:          2.4,
			types.TypeKubernetesCluster: 2.4,
			types.TypeLoadBalancer:      0.6,
			types.TypeSnapshot:          0.05,
		},
	}
}

// Estimate returns the daily rate for the resource type, 0 when unknown.
func (e *StaticEstimator) Estimate(resource types.ObservedResource, rtype types.ResourceType) float64 {
	return e.rates[rtype]
}

// ZeroEstimator always estimates 0. Orphans then carry no cost until
// billing observes them.
type ZeroEstimator struct{}

// Estimate returns 0.
func (ZeroEstimator) Estimate(resource types.ObservedResource, rtype types.ResourceType) float64 {
	return 0
}
