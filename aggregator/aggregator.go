// Package aggregator folds child resources into the parent that owns
// them for cost-reporting purposes.
package aggregator

import (
	"sort"
	"strings"

	"github.com/sjkallio/kirjuri/types"
)

// Aggregator assigns children to parents and folds costs exactly once.
type Aggregator struct{}

// New creates an aggregator.
func New() *Aggregator {
	return &Aggregator{}
}

// Aggregate mutates the resource set in place:
//   - each matched child is set inactive with parent_resource_id, its
//     cost added to the parent exactly once
//   - parents keep their pre-aggregation cost in BaseCost
//   - children matching no parent stay standalone
//
// Volumes fold before servers so that a server already carrying its
// volumes folds its full total into an owning cluster. Deterministic:
// children are processed in id order and tie-breaks are total.
func (a *Aggregator) Aggregate(resources []types.Resource, hints map[string]types.ParentHints) []types.Resource {
	index := buildIndex(resources)

	for i := range resources {
		resources[i].BaseCost = resources[i].Cost
	}

	// volume-level children first, then cluster membership
	a.assignPass(resources, index, hints, func(r *types.Resource) bool {
		return r.Type == types.TypeVolume || r.Type == types.TypeSnapshot
	})
	a.assignPass(resources, index, hints, func(r *types.Resource) bool {
		return r.Type == types.TypeServer || r.Type == types.TypeLoadBalancer
	})

	return resources
}

type resourceIndex struct {
	byID     map[string]int
	byName   map[string][]int
	clusters map[string]int // cluster name or id → position
}

func buildIndex(resources []types.Resource) *resourceIndex {
	index := &resourceIndex{
		byID:     make(map[string]int, len(resources)),
		byName:   make(map[string][]int),
		clusters: make(map[string]int),
	}
	for i := range resources {
		r := &resources[i]
		index.byID[r.ProviderResourceID] = i
		if r.Name != "" {
			index.byName[r.Name] = append(index.byName[r.Name], i)
		}
		if r.Type == types.TypeKubernetesCluster {
			index.clusters[r.ProviderResourceID] = i
			if r.Name != "" {
				index.clusters[r.Name] = i
			}
		}
	}
	return index
}

func (a *Aggregator) assignPass(resources []types.Resource, index *resourceIndex, hints map[string]types.ParentHints, isChild func(*types.Resource) bool) {
	order := childOrder(resources, isChild)

	for _, i := range order {
		child := &resources[i]

		parentIdx, lowConfidence, found := a.findParent(resources, index, child, hints[child.ProviderResourceID])
		if !found {
			continue // standalone, never force-matched
		}

		parent := &resources[parentIdx]
		parent.Cost += child.Cost
		child.IsActive = false
		child.ParentResourceID = parent.ProviderResourceID
		if lowConfidence {
			child.LowConfidence = true
		}
	}
}

// childOrder lists eligible child positions sorted by resource id so
// re-running on the same observed set yields the same assignment.
func childOrder(resources []types.Resource, isChild func(*types.Resource) bool) []int {
	var order []int
	for i := range resources {
		r := &resources[i]
		if !isChild(r) || !r.IsActive || r.ParentResourceID != "" {
			continue
		}
		order = append(order, i)
	}
	sort.Slice(order, func(a, b int) bool {
		return resources[order[a]].ProviderResourceID < resources[order[b]].ProviderResourceID
	})
	return order
}

// findParent resolves a child's owner: explicit attachment metadata
// first, then the naming heuristic as a last resort. A parent that
// disappeared from the current set is never matched, so a lingering
// child returns to standalone.
func (a *Aggregator) findParent(resources []types.Resource, index *resourceIndex, child *types.Resource, hints types.ParentHints) (int, bool, bool) {
	explicit := a.explicitCandidates(resources, index, child, hints)
	if len(explicit) > 0 {
		return pickCandidate(resources, child, explicit), false, true
	}

	if idx, ok := a.nameHeuristic(resources, index, child); ok {
		return idx, true, true
	}

	return 0, false, false
}

func (a *Aggregator) explicitCandidates(resources []types.Resource, index *resourceIndex, child *types.Resource, hints types.ParentHints) []int {
	var candidates []int
	seen := make(map[int]bool)

	add := func(idx int, ok bool) {
		if !ok || seen[idx] || idx == index.byID[child.ProviderResourceID] {
			return
		}
		parent := &resources[idx]
		// inactive parents (zombies, already-aggregated) cannot own
		if !parent.IsActive {
			return
		}
		seen[idx] = true
		candidates = append(candidates, idx)
	}

	if hints.AttachmentID != "" {
		idx, ok := index.byID[hints.AttachmentID]
		add(idx, ok)
	}
	if hints.BillingParentID != "" {
		idx, ok := index.byID[hints.BillingParentID]
		add(idx, ok)
	}
	if hints.ClusterID != "" {
		idx, ok := index.clusters[hints.ClusterID]
		add(idx, ok)
	}

	return candidates
}

// pickCandidate applies the tie-break among explicit matches: prefer
// matching region and cost period, else lowest resource id.
func pickCandidate(resources []types.Resource, child *types.Resource, candidates []int) int {
	sort.Slice(candidates, func(a, b int) bool {
		ra, rb := &resources[candidates[a]], &resources[candidates[b]]
		sa, sb := candidateRank(child, ra), candidateRank(child, rb)
		if sa != sb {
			return sa < sb
		}
		return ra.ProviderResourceID < rb.ProviderResourceID
	})
	return candidates[0]
}

func candidateRank(child, parent *types.Resource) int {
	rank := 2
	if parent.Region == child.Region {
		rank--
	}
	if samePeriod(child, parent) {
		rank--
	}
	return rank
}

func samePeriod(a, b *types.Resource) bool {
	if a.PeriodStart.IsZero() || b.PeriodStart.IsZero() {
		return false
	}
	return a.PeriodStart.Equal(b.PeriodStart) && a.PeriodEnd.Equal(b.PeriodEnd)
}

// nameHeuristic matches children named after their parent, e.g.
// disk-for-web-1 or web-1-data. Fragile, so matches are flagged
// low-confidence for audit.
func (a *Aggregator) nameHeuristic(resources []types.Resource, index *resourceIndex, child *types.Resource) (int, bool) {
	name := child.Name
	if name == "" {
		return 0, false
	}

	var candidates []int
	for parentName, positions := range index.byName {
		if parentName == "" || parentName == name {
			continue
		}
		if !strings.HasSuffix(name, "-for-"+parentName) && !strings.HasPrefix(name, parentName+"-") {
			continue
		}
		for _, idx := range positions {
			parent := &resources[idx]
			if !parent.IsActive || !ownerType(parent.Type) || parent.ProviderResourceID == child.ProviderResourceID {
				continue
			}
			candidates = append(candidates, idx)
		}
	}

	if len(candidates) == 0 {
		return 0, false
	}
	return pickCandidate(resources, child, candidates), true
}

func ownerType(t types.ResourceType) bool {
	return t == types.TypeServer || t == types.TypeKubernetesCluster
}
