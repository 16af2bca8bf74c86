// Implements the scheduling sweep for the four baseline variants
// (dev_fifo, dev_depset, dc_fifo, dc_depset). These share the event
// loop, candidate selectors and deadlock machinery with the
// containment-tree variants (package candidate, events.go, deadlock.go)
// but lock at flat, non-hierarchical granularity: one NetObj per device
// or per datacenter, with no ancestors or descendants. The tree
// algebra's propagation and cross-node upgrade cases depend on
// containment and so never arise here; the same-node upgrade
// degenerates to a per-object check.
package engine

import (
	"math"

	"github.com/occam-sim/occam/internal/candidate"
	"github.com/occam-sim/occam/internal/ids"
	"github.com/occam-sim/occam/internal/netobj"
)

// FlatScheduler runs the flat-granularity scheduling algebra.
type FlatScheduler struct {
	World  *World
	Select candidate.Selector
}

func (s *FlatScheduler) grantHeld(obj *netobj.NetObj, wf ids.WorkflowID, from, to ids.Category) {
	obj.Locks[from] = removeWF(obj.Locks[from], wf)
	obj.Locks[to] = append(obj.Locks[to], wf)
	w := s.World.Workflows[wf]
	w.RemoveNodeFrom(from, obj.ID)
	w.Locks[to] = append(w.Locks[to], obj.ID)
}

// waiters is the flat counterpart of TreeScheduler.waiters: with no
// hierarchy, the only workflows waiting behind wf are the intent
// holders queued on the very objects wf holds.
func (s *FlatScheduler) waiters(wf ids.WorkflowID) []ids.WorkflowID {
	w := s.World.Workflows[wf]
	seen := map[ids.WorkflowID]bool{wf: true}
	var out []ids.WorkflowID
	for _, held := range []ids.Category{ids.Exclusive, ids.Shared} {
		for _, objID := range w.Locks[held] {
			obj := findNetObjByID(s.World.NetObj, objID)
			if obj == nil {
				continue
			}
			for _, intent := range []ids.Category{ids.IntentExclusive, ids.IntentShared} {
				for _, u := range obj.Locks[intent] {
					if !seen[u] {
						seen[u] = true
						out = append(out, u)
					}
				}
			}
		}
	}
	return out
}

func (s *FlatScheduler) depSetOf(wf ids.WorkflowID) (map[ids.WorkflowID]struct{}, ids.WorkflowID, error) {
	w := s.World.Workflows[wf]
	if w.DepSetValid {
		return w.DepSet, 0, nil
	}
	dep, witness, err := candidate.DepSet(wf, s.waiters)
	if err != nil {
		return nil, witness, err
	}
	w.DepSet = dep
	w.DepSetValid = true
	return dep, 0, nil
}

// Sweep runs one full pass of the flat scheduling algebra over every
// live NetObj, returning whether anything was granted, and a deadlock
// witness if the dependency closure found a cycle.
func (s *FlatScheduler) Sweep() (changed bool, witness ids.WorkflowID, deadlock bool) {
	for _, obj := range s.World.NetObj.All() {
		granted, wf, dl := s.scheduleObj(obj)
		if dl {
			return false, wf, true
		}
		if granted {
			changed = true
		}
	}
	return changed, 0, false
}

func (s *FlatScheduler) scheduleObj(obj *netobj.NetObj) (bool, ids.WorkflowID, bool) {
	counts := obj.Counts()

	if counts.Shared > 0 && counts.IntentShared > 0 {
		return s.grantAllIntentShared(obj), 0, false
	}

	// Fresh-grant only requires obj hold no granted lock of its own;
	// the pending intents are exactly what caseFreshGrant exists to
	// resolve.
	if counts.Shared == 0 && counts.Exclusive == 0 {
		return s.caseFreshGrant(obj)
	}

	if counts.Shared == 1 && counts.Exclusive == 0 && containsWF(obj.Locks[ids.IntentExclusive], obj.Locks[ids.Shared][0]) {
		w := obj.Locks[ids.Shared][0]
		obj.Locks[ids.Shared] = removeWF(obj.Locks[ids.Shared], w)
		s.World.Workflows[w].RemoveNodeFrom(ids.Shared, obj.ID)
		s.grantHeld(obj, w, ids.IntentExclusive, ids.Exclusive)
		return true, 0, false
	}

	return false, 0, false
}

func (s *FlatScheduler) grantAllIntentShared(obj *netobj.NetObj) bool {
	pending := append([]ids.WorkflowID(nil), obj.Locks[ids.IntentShared]...)
	for _, wf := range pending {
		s.grantHeld(obj, wf, ids.IntentShared, ids.Shared)
	}
	return len(pending) > 0
}

func (s *FlatScheduler) caseFreshGrant(obj *netobj.NetObj) (bool, ids.WorkflowID, bool) {
	writeWfs := append([]ids.WorkflowID(nil), obj.Locks[ids.IntentExclusive]...)
	readWfs := append([]ids.WorkflowID(nil), obj.Locks[ids.IntentShared]...)
	if len(writeWfs) == 0 && len(readWfs) == 0 {
		return false, 0, false
	}

	var superRead *candidate.Info
	if len(readWfs) > 0 {
		superRead = &candidate.Info{Arrival: math.Inf(1)}
		for _, wf := range readWfs {
			if a := s.World.Workflows[wf].ArrivalTime; a < superRead.Arrival {
				superRead.Arrival = a
			}
		}
	}

	var winner *candidate.Info
	switch {
	case len(writeWfs) == 0:
		winner = superRead
	case len(writeWfs) == 1 && len(readWfs) == 0:
		winner = &candidate.Info{ID: writeWfs[0], Arrival: s.World.Workflows[writeWfs[0]].ArrivalTime}
	default:
		s.World.ResetDepSets()
		if superRead != nil {
			superRead.DepSet = make(map[ids.WorkflowID]struct{})
		}
		for _, wf := range readWfs {
			dep, w, err := s.depSetOf(wf)
			if err != nil {
				return false, w, true
			}
			for id := range dep {
				superRead.DepSet[id] = struct{}{}
			}
		}
		writers := make([]candidate.Info, 0, len(writeWfs))
		for _, wf := range writeWfs {
			dep, w, err := s.depSetOf(wf)
			if err != nil {
				return false, w, true
			}
			writers = append(writers, candidate.Info{ID: wf, Arrival: s.World.Workflows[wf].ArrivalTime, DepSet: dep})
		}
		winner = s.Select(superRead, writers)
	}

	if winner == superRead {
		for _, wf := range readWfs {
			s.grantHeld(obj, wf, ids.IntentShared, ids.Shared)
		}
		return true, 0, false
	}
	s.grantHeld(obj, winner.ID, ids.IntentExclusive, ids.Exclusive)
	return true, 0, false
}
