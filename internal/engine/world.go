// Package engine ties the containment tree (locktree), the flat
// per-device/per-datacenter lock table (netobj), and the workflow
// table together into the scheduling algebra and event loop described
// by the lock policy. It is the only package that imports both
// locktree/netobj and workflow, and is therefore the single place
// responsible for keeping a workflow's own Category-indexed lock lists
// mirrored against the corresponding node or NetObj's lists: every
// edge lives in two arenas, and the reverse-edge discipline is
// enforced by the helpers here and in the per-granularity grant
// paths, nowhere else.
package engine

import (
	"github.com/occam-sim/occam/internal/ids"
	"github.com/occam-sim/occam/internal/locktree"
	"github.com/occam-sim/occam/internal/netobj"
	"github.com/occam-sim/occam/internal/resolver"
	"github.com/occam-sim/occam/internal/workflow"
)

// World owns every workflow and every lock object (tree- or netobj-
// granularity, never both) for one simulation run.
type World struct {
	Resolver *resolver.Resolver

	Workflows map[ids.WorkflowID]*workflow.Workflow
	nextWfID  ids.WorkflowID

	Tree   *locktree.Tree // non-nil for occam_fifo / occam_depset
	NetObj *netobj.Table  // non-nil for the four baseline variants

	Pending []ids.WorkflowID // arrival order, for the progress-guarantee fallback witness
	Running map[ids.WorkflowID]struct{}
}

// NewTreeWorld builds a World backed by the containment tree.
func NewTreeWorld(r *resolver.Resolver, rootRegex string) (*World, error) {
	rootSet, err := r.ResolveDevices(rootRegex)
	if err != nil {
		return nil, err
	}
	return &World{
		Resolver:  r,
		Workflows: make(map[ids.WorkflowID]*workflow.Workflow),
		Tree:      locktree.NewTree(rootSet),
		Running:   make(map[ids.WorkflowID]struct{}),
	}, nil
}

// NewFlatWorld builds a World backed by the flat per-device/per-
// datacenter NetObj table.
func NewFlatWorld(r *resolver.Resolver) *World {
	return &World{
		Resolver:  r,
		Workflows: make(map[ids.WorkflowID]*workflow.Workflow),
		NetObj:    netobj.NewTable(),
		Running:   make(map[ids.WorkflowID]struct{}),
	}
}

// NewWorkflow allocates a fresh workflow ID and registers an empty,
// pending workflow under it.
func (w *World) NewWorkflow(name string) *workflow.Workflow {
	w.nextWfID++
	wf := workflow.New(w.nextWfID, name)
	w.Workflows[wf.ID] = wf
	return wf
}

// ApplyEdgeOps mirrors every locktree.EdgeOp produced by a tree Insert
// onto the corresponding workflow's own Category list. This is the
// "single helper" the design notes ask for on the tree side; see
// ApplyNetObjGrant for the flat-granularity equivalent.
func (w *World) ApplyEdgeOps(ops []locktree.EdgeOp) {
	for _, op := range ops {
		wf := w.Workflows[op.Workflow]
		wf.Locks[op.Category] = append(wf.Locks[op.Category], ids.NodeID(op.Node.ID))
	}
}

// ActiveNodeCount reports how many lock objects are currently live:
// tree nodes (root included) for occam_fifo/occam_depset, or NetObjs
// for the four baseline variants. Used by internal/report for the
// `<result>_active_netobj.txt` time series.
func (w *World) ActiveNodeCount() int {
	if w.Tree != nil {
		return 1 + len(w.Tree.AllChildren(w.Tree.Root))
	}
	return w.NetObj.Len()
}

// ResetDepSets invalidates every workflow's cached dependency set
// before a fresh candidate-scoring pass.
func (w *World) ResetDepSets() {
	for _, wf := range w.Workflows {
		wf.ResetDepSet()
	}
}

// ApplyNetObjGrant mirrors a single netobj grant onto wf's own Category
// list. Unlike the tree, NetObj grants never cascade (there is no
// splitting), so there is exactly one edge to mirror per call.
func (w *World) ApplyNetObjGrant(wf *workflow.Workflow, obj *netobj.NetObj, category ids.Category) {
	wf.Locks[category] = append(wf.Locks[category], ids.NodeID(obj.ID))
}
