// Implements the containment-tree scheduling algebra for occam_fifo
// and occam_depset: a fixed-point sweep over every node in the tree,
// applying whichever of five cases currently matches. Cases 1, 2 and
// 4/5 propagate or upgrade locks that were already partly granted;
// case 3 is the only one that picks among competing fresh candidates,
// via the package candidate selector.
package engine

import (
	"math"

	"github.com/occam-sim/occam/internal/candidate"
	"github.com/occam-sim/occam/internal/ids"
	"github.com/occam-sim/occam/internal/locktree"
)

// TreeScheduler runs the containment-tree scheduling algebra.
type TreeScheduler struct {
	World  *World
	Select candidate.Selector
}

func removeWF(list []ids.WorkflowID, wf ids.WorkflowID) []ids.WorkflowID {
	for i, id := range list {
		if id == wf {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func containsWF(list []ids.WorkflowID, wf ids.WorkflowID) bool {
	for _, id := range list {
		if id == wf {
			return true
		}
	}
	return false
}

// grantHeld moves wf from intent category `from` to held category `to`
// on node, mirroring both sides of the edge.
func (s *TreeScheduler) grantHeld(node *locktree.TreeNode, wf ids.WorkflowID, from, to ids.Category) {
	node.Locks[from] = removeWF(node.Locks[from], wf)
	node.Locks[to] = append(node.Locks[to], wf)
	w := s.World.Workflows[wf]
	w.RemoveNodeFrom(from, node.ID)
	w.Locks[to] = append(w.Locks[to], node.ID)
}

// release strips wf's lock on node, garbage-collecting node if it
// empties, mirroring the removal on the workflow side too.
func (s *TreeScheduler) release(node *locktree.TreeNode, wf ids.WorkflowID, category ids.Category) {
	s.World.Tree.Release(node, wf, category)
	s.World.Workflows[wf].RemoveNodeFrom(category, node.ID)
}

// waiters reports the workflows directly waiting behind a lock wf
// holds: every intent holder on any node in the containment of a node
// wf holds shared or exclusive. This is the edge relation the
// dependency-set closure walks.
func (s *TreeScheduler) waiters(wf ids.WorkflowID) []ids.WorkflowID {
	w := s.World.Workflows[wf]
	tree := s.World.Tree
	seen := map[ids.WorkflowID]bool{wf: true}
	var out []ids.WorkflowID
	for _, held := range []ids.Category{ids.Exclusive, ids.Shared} {
		for _, nodeID := range w.Locks[held] {
			node := tree.FindByID(nodeID)
			if node == nil {
				continue
			}
			for _, cn := range tree.Containment(node, false) {
				for _, intent := range []ids.Category{ids.IntentExclusive, ids.IntentShared} {
					for _, u := range cn.Locks[intent] {
						if !seen[u] {
							seen[u] = true
							out = append(out, u)
						}
					}
				}
			}
		}
	}
	return out
}

// depSetOf returns wf's dependency set, reusing the workflow's cached
// copy when it is still valid for the current scoring pass.
func (s *TreeScheduler) depSetOf(wf ids.WorkflowID) (map[ids.WorkflowID]struct{}, ids.WorkflowID, error) {
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

// Sweep runs one full pass of cases 1-5 over every node in the tree.
// It returns whether anything was granted, and a deadlock witness if
// the dependency-set closure found a cycle while scoring case-3
// candidates (in which case the sweep stops early: the caller rolls
// the witness back and re-enters Sweep from scratch).
func (s *TreeScheduler) Sweep() (changed bool, witness ids.WorkflowID, deadlock bool) {
	tree := s.World.Tree
	nodes := tree.AllChildren(tree.Root)
	for _, n := range nodes {
		// Earlier grants in this same pass may have emptied and removed
		// n (or a release cascade may have); skip anything no longer in
		// the tree, and collect anything that emptied without being
		// removed.
		if tree.FindByID(n.ID) == nil {
			continue
		}
		if tree.DeleteNodeIfPossible(n) {
			continue
		}
		granted, wf, dl := s.scheduleNode(n)
		if dl {
			return false, wf, true
		}
		if granted {
			changed = true
		}
	}
	return changed, 0, false
}

func (s *TreeScheduler) scheduleNode(n *locktree.TreeNode) (bool, ids.WorkflowID, bool) {
	tree := s.World.Tree
	counts := n.Counts()

	// Case 1: shared held, intent-shared pending. A shared grant on n
	// rules out an exclusive holder anywhere in its containment.
	if counts.Shared > 0 && counts.IntentShared > 0 {
		return s.grantAllIntentShared(n), 0, false
	}

	if counts.Shared == 0 && counts.Exclusive == 0 {
		// Case 2: no lock on n itself but shared held somewhere in its
		// containment.
		if counts.IntentShared > 0 && tree.HasLockInContainment(n, ids.Shared, false) {
			return s.casePropagateShared(n), 0, false
		}
		// Case 3: nothing held anywhere in n's containment.
		if !tree.HasLockInContainment(n, ids.Shared, false) && !tree.HasLockInContainment(n, ids.Exclusive, false) {
			return s.caseFreshGrant(n)
		}
		// Case 5: a pending writer here already holds shared elsewhere
		// in the containment, so this is a cross-node upgrade.
		if counts.IntentExclusive > 0 {
			return s.caseUpgradeAcrossContainment(n), 0, false
		}
		return false, 0, false
	}

	// Case 4: the sole shared holder also wants exclusive on the same
	// node.
	if counts.Shared == 1 && counts.Exclusive == 0 && counts.IntentExclusive > 0 {
		return s.caseUpgradeInPlace(n), 0, false
	}

	return false, 0, false
}

func (s *TreeScheduler) grantAllIntentShared(n *locktree.TreeNode) bool {
	pending := append([]ids.WorkflowID(nil), n.Locks[ids.IntentShared]...)
	for _, wf := range pending {
		s.grantHeld(n, wf, ids.IntentShared, ids.Shared)
	}
	return len(pending) > 0
}

// casePropagateShared is case 2: an ancestor's shared grant propagates
// down immediately (2a); a descendant's shared grant propagates up only
// if no descendant holds or awaits exclusive (2b, no split performed).
func (s *TreeScheduler) casePropagateShared(n *locktree.TreeNode) bool {
	tree := s.World.Tree
	if tree.HasLockInPathToRoot(n, ids.Shared, true) {
		return s.grantAllIntentShared(n)
	}
	// An earlier-arrived, still-pending writer among the descendants
	// blocks this batch too; otherwise a later read request could hop
	// over a queued writer just because it hasn't been granted yet,
	// defeating the write-starvation guard this case exists for.
	if tree.HasLockInChildren(n, ids.Exclusive) || tree.HasLockInChildren(n, ids.IntentExclusive) {
		return false
	}
	return s.grantAllIntentShared(n)
}

// caseFreshGrant is case 3: nothing is held anywhere in n's
// containment, so every pending intent in the containment is a fresh
// candidate. Reads fold into one synthetic super-reader; the candidate
// selector arbitrates between it and the individual writers, scoring
// each by its dependency set unless the contest is trivial (no writer,
// or a single writer with no reader).
func (s *TreeScheduler) caseFreshGrant(n *locktree.TreeNode) (bool, ids.WorkflowID, bool) {
	tree := s.World.Tree
	containment := tree.Containment(n, false)

	writeSeen := make(map[ids.WorkflowID]bool)
	readSeen := make(map[ids.WorkflowID]bool)
	var writeWfs, readWfs []ids.WorkflowID

	for _, cn := range containment {
		for _, wf := range cn.Locks[ids.IntentExclusive] {
			if writeSeen[wf] || tree.HasLockInContainment(cn, ids.Shared, false) || tree.HasLockInContainment(cn, ids.Exclusive, false) {
				continue
			}
			writeSeen[wf] = true
			writeWfs = append(writeWfs, wf)
		}
		for _, wf := range cn.Locks[ids.IntentShared] {
			if readSeen[wf] || tree.HasLockInContainment(cn, ids.Exclusive, false) {
				continue
			}
			readSeen[wf] = true
			readWfs = append(readWfs, wf)
		}
	}

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

	granted := false
	if winner == superRead {
		for _, cn := range containment {
			for _, wf := range append([]ids.WorkflowID(nil), cn.Locks[ids.IntentShared]...) {
				if readSeen[wf] {
					s.grantHeld(cn, wf, ids.IntentShared, ids.Shared)
					granted = true
				}
			}
		}
	} else {
		for _, cn := range containment {
			if containsWF(cn.Locks[ids.IntentExclusive], winner.ID) {
				s.grantHeld(cn, winner.ID, ids.IntentExclusive, ids.Exclusive)
				granted = true
			}
		}
	}
	return granted, 0, false
}

// caseUpgradeInPlace is case 4: n's sole shared holder also has
// intent-exclusive on n itself, and nothing anyone else holds on n's
// ancestors or descendants stands in the way, so the shared grant is
// swapped for exclusive on the spot.
func (s *TreeScheduler) caseUpgradeInPlace(n *locktree.TreeNode) bool {
	w := n.Locks[ids.Shared][0]
	if !containsWF(n.Locks[ids.IntentExclusive], w) {
		return false
	}
	tree := s.World.Tree
	if !tree.OnlyWorkflowInPath(n, w) || !tree.OnlyWorkflowInChildren(n, w) {
		return false
	}
	n.Locks[ids.Shared] = removeWF(n.Locks[ids.Shared], w)
	s.World.Workflows[w].RemoveNodeFrom(ids.Shared, n.ID)
	s.grantHeld(n, w, ids.IntentExclusive, ids.Exclusive)
	return true
}

// caseUpgradeAcrossContainment is case 5: n holds nothing, but a
// workflow with intent-exclusive here already holds shared somewhere in
// n's containment. If the shared grant sits on an ancestor and the
// workflow is alone on the path, the exclusive lands on that ancestor
// in place of its shared grant; if instead the workflow is alone in
// n's descendants, its descendant grants are pulled up into an
// exclusive on n itself. No split is ever performed for an upgrade.
func (s *TreeScheduler) caseUpgradeAcrossContainment(n *locktree.TreeNode) bool {
	tree := s.World.Tree
	sharedHolders := tree.WorkflowsInContainment(n, ids.Shared, false)
	changed := false

	for _, w := range append([]ids.WorkflowID(nil), n.Locks[ids.IntentExclusive]...) {
		if _, ok := sharedHolders[w]; !ok {
			continue
		}

		if anc := findSharedAncestor(tree, n, w); anc != nil && tree.OnlyWorkflowInPath(n, w) && !isChildOfRoot(tree, n) {
			s.releaseHeldInChildren(anc, w)
			// Consume the intent on n and swap the ancestor's shared
			// grant for exclusive.
			n.Locks[ids.IntentExclusive] = removeWF(n.Locks[ids.IntentExclusive], w)
			s.World.Workflows[w].RemoveNodeFrom(ids.IntentExclusive, n.ID)
			anc.Locks[ids.Shared] = removeWF(anc.Locks[ids.Shared], w)
			s.World.Workflows[w].RemoveNodeFrom(ids.Shared, anc.ID)
			anc.Locks[ids.Exclusive] = append(anc.Locks[ids.Exclusive], w)
			s.World.Workflows[w].Locks[ids.Exclusive] = append(s.World.Workflows[w].Locks[ids.Exclusive], anc.ID)
			changed = true
			continue
		}

		if len(n.Children) > 0 && tree.OnlyWorkflowInChildren(n, w) {
			s.releaseHeldInChildren(n, w)
			s.grantHeld(n, w, ids.IntentExclusive, ids.Exclusive)
			changed = true
		}
	}
	return changed
}

// releaseHeldInChildren strips w's held (not intended) locks from
// every descendant of n, collecting each vacated node.
func (s *TreeScheduler) releaseHeldInChildren(n *locktree.TreeNode, w ids.WorkflowID) {
	for _, d := range s.World.Tree.AllChildren(n) {
		for _, c := range []ids.Category{ids.Shared, ids.Exclusive} {
			if containsWF(d.Locks[c], w) {
				s.release(d, w, c)
			}
		}
	}
}

func isChildOfRoot(tree *locktree.Tree, n *locktree.TreeNode) bool {
	for _, c := range tree.Root.Children {
		if c == n {
			return true
		}
	}
	return false
}

// findSharedAncestor returns the ancestor of n (root excluded) where w
// holds a shared lock, if any.
func findSharedAncestor(tree *locktree.Tree, n *locktree.TreeNode, w ids.WorkflowID) *locktree.TreeNode {
	for _, p := range tree.Path(n) {
		if p == n {
			continue
		}
		if containsWF(p.Locks[ids.Shared], w) {
			return p
		}
	}
	return nil
}
