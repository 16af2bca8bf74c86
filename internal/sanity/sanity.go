// Package sanity implements the optional, default-disabled invariant
// checks behind the -sanity flag. They are O(n^2) and not meant for
// production runs: per-workflow lock/status consistency and per-node
// containment checks (no node held shared and exclusive at once, at
// most one exclusive holder on the path to root). A shared holder on
// one node and an exclusive holder on another node of the same root
// path are not reported.
package sanity

import (
	"fmt"

	"github.com/occam-sim/occam/internal/engine"
	"github.com/occam-sim/occam/internal/ids"
	"github.com/occam-sim/occam/internal/locktree"
	"github.com/occam-sim/occam/internal/workflow"
)

// Violation is one broken invariant: a small fixed number naming which
// check failed, and a human-readable description.
type Violation struct {
	Invariant int
	Detail    string
}

func (v Violation) String() string {
	return fmt.Sprintf("invariant %d: %s", v.Invariant, v.Detail)
}

// Check runs every invariant against w's current state and returns
// every violation found; a nil/empty result means the state is
// consistent. The tree-granularity invariants that depend on
// containment (3, 5) are skipped for flat-granularity worlds, since
// NetObjs have no parent/child relationship to check.
func Check(w *engine.World) []Violation {
	var out []Violation
	out = append(out, checkMirroring(w)...)
	out = append(out, checkNodeExclusivity(w)...)
	out = append(out, checkStatus(w)...)
	if w.Tree != nil {
		out = append(out, checkTreeContainment(w.Tree)...)
	}
	return out
}

// checkMirroring is invariant 1: every held/intent edge on a workflow
// is mirrored by the corresponding entry on the node/netobj it names.
// Only that direction is checked: a node/netobj entry naming a
// workflow whose own lists lack that node is not reported.
func checkMirroring(w *engine.World) []Violation {
	var out []Violation
	nodeHas := func(nodeID ids.NodeID, c ids.Category, wf ids.WorkflowID) bool {
		if w.Tree != nil {
			n := w.Tree.FindByID(nodeID)
			return n != nil && containsID(n.Locks[c], wf)
		}
		for _, obj := range w.NetObj.All() {
			if ids.NodeID(obj.ID) == nodeID {
				return containsID(obj.Locks[c], wf)
			}
		}
		return false
	}
	for wfID, wf := range w.Workflows {
		for c := ids.Category(0); c < ids.NumCategories; c++ {
			for _, nodeID := range wf.Locks[c] {
				if !nodeHas(nodeID, c, wfID) {
					out = append(out, Violation{1, fmt.Sprintf("workflow %d lists node %d in %s but the node has no matching entry", wfID, nodeID, c)})
				}
			}
		}
	}
	return out
}

// checkNodeExclusivity is invariant 2: a node holds at most one
// exclusive holder, and never both shared and exclusive at once.
func checkNodeExclusivity(w *engine.World) []Violation {
	var out []Violation
	check := func(id ids.NodeID, shared, exclusive int) {
		if exclusive > 1 {
			out = append(out, Violation{2, fmt.Sprintf("node %d has %d exclusive holders", id, exclusive)})
		}
		if exclusive > 0 && shared > 0 {
			out = append(out, Violation{2, fmt.Sprintf("node %d holds both shared and exclusive", id)})
		}
	}
	if w.Tree != nil {
		nodes := append([]*locktree.TreeNode{w.Tree.Root}, w.Tree.AllChildren(w.Tree.Root)...)
		for _, n := range nodes {
			check(n.ID, len(n.Locks[ids.Shared]), len(n.Locks[ids.Exclusive]))
		}
	} else {
		for _, obj := range w.NetObj.All() {
			check(obj.ID, len(obj.Locks[ids.Shared]), len(obj.Locks[ids.Exclusive]))
		}
	}
	return out
}

// checkStatus is invariant 6: a workflow is Running iff both of its
// intent lists are empty.
func checkStatus(w *engine.World) []Violation {
	var out []Violation
	for id, wf := range w.Workflows {
		runnable := wf.Runnable()
		running := wf.Status == workflow.Running
		if runnable != running {
			out = append(out, Violation{6, fmt.Sprintf("workflow %d status=%v but runnable=%v", id, wf.Status, runnable)})
		}
	}
	return out
}

// checkTreeContainment is invariants 3 and 5: every non-root node's
// language is a strict subset of its parent's and siblings are
// pairwise disjoint (3), and at most one node on any root-path holds
// exclusive (5).
func checkTreeContainment(t *locktree.Tree) []Violation {
	var out []Violation
	var walk func(n *locktree.TreeNode, exclusiveSeen bool)
	walk = func(n *locktree.TreeNode, exclusiveSeen bool) {
		if len(n.Locks[ids.Exclusive]) > 0 {
			if exclusiveSeen {
				out = append(out, Violation{5, fmt.Sprintf("node %d: more than one exclusive holder on this root path", n.ID)})
			}
			exclusiveSeen = true
		}
		for i := 0; i < len(n.Children); i++ {
			for j := i + 1; j < len(n.Children); j++ {
				a, b := n.Children[i], n.Children[j]
				if !a.Set.Disjoint(b.Set) {
					out = append(out, Violation{3, fmt.Sprintf("siblings %d and %d under %d overlap", a.ID, b.ID, n.ID)})
				}
			}
			child := n.Children[i]
			if !n.Set.Contains(child.Set) {
				out = append(out, Violation{3, fmt.Sprintf("node %d is not contained by its parent %d", child.ID, n.ID)})
			}
			walk(child, exclusiveSeen)
		}
	}
	walk(t.Root, false)
	return out
}

func containsID(list []ids.WorkflowID, id ids.WorkflowID) bool {
	for _, x := range list {
		if x == id {
			return true
		}
	}
	return false
}
