package snapshot

import (
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/sjkallio/kirjuri/types"
)

// Field names recorded in state maps. Grouped for change flagging:
// cost stands alone, status covers lifecycle, everything else is config.
const (
	fieldCost    = "cost"
	fieldOwnCost = "own_cost"
	fieldStatus  = "status"
	fieldType    = "type"
	fieldName    = "name"
	fieldRegion  = "region"
	fieldScope   = "scope_id"
	fieldParent  = "parent"
	fieldActive  = "active"

	specPrefix = "spec."
)

var statusFields = map[string]bool{fieldStatus: true}

// Differ classifies reconciled resources against the states of the
// latest successful snapshot. A nil or empty anchor means everything
// comes out created.
type Differ struct {
	tolerance float64
}

// NewDiffer builds a differ with the given cost tolerance. Cost deltas
// at or below the tolerance do not count as a change.
func NewDiffer(tolerance float64) *Differ {
	return &Differ{tolerance: tolerance}
}

// Diff classifies every resource in the union of the prior states and
// the current run into exactly one state row. Returned states are
// sorted by provider resource id so repeated runs over identical input
// produce identical output.
func (d *Differ) Diff(snapshotID, connectionID string, prior []types.ResourceState, current []types.Resource) []types.ResourceState {
	now := time.Now().UTC()

	prevByID := make(map[string]types.ResourceState, len(prior))
	for _, st := range prior {
		if st.StateAction == types.ActionDeleted {
			continue
		}
		prevByID[st.ProviderResourceID] = st
	}

	states := make([]types.ResourceState, 0, len(current)+len(prevByID))
	seen := make(map[string]bool, len(current))

	for _, res := range current {
		seen[res.ProviderResourceID] = true
		cur := stateFields(res)

		st := types.ResourceState{
			SnapshotID:         snapshotID,
			ConnectionID:       connectionID,
			ProviderResourceID: res.ProviderResourceID,
			ResourceType:       res.Type,
			CurrentState:       cur,
			Cost:               accountedCost(res),
			RecordedAt:         now,
		}

		prev, existed := prevByID[res.ProviderResourceID]
		if !existed {
			st.StateAction = types.ActionCreated
			states = append(states, st)
			continue
		}

		st.PreviousState = prev.CurrentState
		st.Changes = d.compare(prev.CurrentState, cur)
		if st.Changes.Any() {
			st.StateAction = types.ActionUpdated
		} else {
			st.StateAction = types.ActionUnchanged
		}
		states = append(states, st)
	}

	for id, prev := range prevByID {
		if seen[id] {
			continue
		}
		states = append(states, types.ResourceState{
			SnapshotID:         snapshotID,
			ConnectionID:       connectionID,
			ProviderResourceID: id,
			ResourceType:       prev.ResourceType,
			StateAction:        types.ActionDeleted,
			PreviousState:      prev.CurrentState,
			RecordedAt:         now,
		})
	}

	sort.Slice(states, func(i, j int) bool {
		return states[i].ProviderResourceID < states[j].ProviderResourceID
	})
	return states
}

// Totals sums state costs and action counts for snapshot finalization.
// Aggregated children carry zero accounted cost, so the sum equals the
// connection total without double counting.
func Totals(states []types.ResourceState) (types.ActionCounts, float64) {
	var counts types.ActionCounts
	var total float64
	for _, st := range states {
		counts.Add(st.StateAction)
		total += st.Cost
	}
	return counts, total
}

// accountedCost is the cost a state row contributes to the snapshot
// total. A child folded into a parent already had its cost absorbed
// there, so its row contributes nothing.
func accountedCost(res types.Resource) float64 {
	if res.ParentResourceID != "" {
		return 0
	}
	return res.Cost
}

// stateFields flattens a resource into the comparable field map stored
// on its state row. own_cost keeps the pre-aggregation figure visible
// on folded children and parents alike.
func stateFields(res types.Resource) map[string]string {
	fields := map[string]string{
		fieldCost:    formatCost(accountedCost(res)),
		fieldOwnCost: formatCost(ownCost(res)),
		fieldType:    string(res.Type),
		fieldStatus:  res.Status,
		fieldRegion:  res.Region,
		fieldScope:   res.ScopeID,
		fieldParent:  res.ParentResourceID,
		fieldActive:  strconv.FormatBool(res.IsActive),
	}
	if res.Name != "" {
		fields[fieldName] = res.Name
	}
	for k, v := range res.SpecFields {
		fields[specPrefix+k] = v
	}
	return fields
}

// ownCost is the pre-aggregation figure the aggregator stamps on every
// resource before diffing. Trusted as-is: a parent whose own cost is
// zero must not report its folded children's total as its own.
func ownCost(res types.Resource) float64 {
	return res.BaseCost
}

func formatCost(c float64) string {
	return strconv.FormatFloat(c, 'f', -1, 64)
}

// compare flags which field groups differ between two state maps.
func (d *Differ) compare(prev, cur map[string]string) types.ChangeFlags {
	var flags types.ChangeFlags

	// own_cost is compared under the cost flag so a child whose own
	// spend moves while it stays folded still registers as updated.
	if d.costChanged(prev[fieldCost], cur[fieldCost]) || d.costChanged(prev[fieldOwnCost], cur[fieldOwnCost]) {
		flags.Cost = true
	}

	for key := range union(prev, cur) {
		if key == fieldCost || key == fieldOwnCost {
			continue
		}
		if prev[key] == cur[key] {
			continue
		}
		if statusFields[key] {
			flags.Status = true
		} else {
			flags.Config = true
		}
	}
	return flags
}

// costChanged compares costs numerically so formatting drift never
// registers as a change, and applies the tolerance.
func (d *Differ) costChanged(prev, cur string) bool {
	if prev == cur {
		return false
	}
	pv, perr := strconv.ParseFloat(prev, 64)
	cv, cerr := strconv.ParseFloat(cur, 64)
	if perr != nil || cerr != nil {
		return true
	}
	return math.Abs(cv-pv) > d.tolerance
}

func union(a, b map[string]string) map[string]bool {
	keys := make(map[string]bool, len(a)+len(b))
	for k := range a {
		keys[k] = true
	}
	for k := range b {
		keys[k] = true
	}
	return keys
}
