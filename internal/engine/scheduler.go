// Wires the event loop, the granularity-specific scheduling sweep and
// the candidate policy together into the six named scheduler variants:
// occam_fifo, occam_depset, dev_fifo, dev_depset, dc_fifo, dc_depset.
package engine

import (
	"fmt"

	"github.com/occam-sim/occam/internal/candidate"
	"github.com/occam-sim/occam/internal/ids"
	"github.com/occam-sim/occam/internal/netobj"
	"github.com/occam-sim/occam/internal/resolver"
	"github.com/occam-sim/occam/internal/workflow"
)

// Variant names one of the six scheduler configurations.
type Variant string

const (
	OccamFIFO   Variant = "occam_fifo"
	OccamDepSet Variant = "occam_depset"
	DevFIFO     Variant = "dev_fifo"
	DevDepSet   Variant = "dev_depset"
	DCFIFO      Variant = "dc_fifo"
	DCDepSet    Variant = "dc_depset"
)

func (v Variant) selector() candidate.Selector {
	switch v {
	case OccamDepSet, DevDepSet, DCDepSet:
		return candidate.SelectDepSet
	default:
		return candidate.SelectFIFO
	}
}

func accessCategories(a workflow.AccessType) (held, intent ids.Category) {
	if a == workflow.Write {
		return ids.Exclusive, ids.IntentExclusive
	}
	return ids.Shared, ids.IntentShared
}

// NewOccamScheduler builds the tree-granularity engine for occam_fifo
// or occam_depset.
func NewOccamScheduler(v Variant, w *World, log EventLogger) *Scheduler {
	ts := &TreeScheduler{World: w, Select: v.selector()}

	s := &Scheduler{World: w, Sweeper: ts, Log: log}

	s.ResolveRequest = func(wfID ids.WorkflowID) error {
		wf := w.Workflows[wfID]
		req := wf.CurrentRequest()
		set, err := w.Resolver.ResolveDevices(req.Regex)
		if err != nil {
			return err
		}
		_, intentCat := accessCategories(req.Access)
		_, ops := w.Tree.Insert(set, wfID, intentCat)
		w.ApplyEdgeOps(ops)
		return nil
	}

	s.ReleaseCurrent = func(wfID ids.WorkflowID) {
		wf := w.Workflows[wfID]
		releaseTreeCategory(ts, wf, ids.Shared)
		releaseTreeCategory(ts, wf, ids.Exclusive)
	}

	s.StripAll = func(wfID ids.WorkflowID) {
		wf := w.Workflows[wfID]
		for c := ids.Category(0); c < ids.NumCategories; c++ {
			releaseTreeCategory(ts, wf, c)
		}
	}

	return s
}

func releaseTreeCategory(ts *TreeScheduler, wf *workflow.Workflow, c ids.Category) {
	nodes := append([]ids.NodeID(nil), wf.Locks[c]...)
	for _, nodeID := range nodes {
		node := ts.World.Tree.FindByID(nodeID)
		if node == nil {
			continue
		}
		ts.release(node, wf.ID, c)
	}
}

// flatKeyFunc maps a request's regex to the flat granularity's keys:
// device names for dev_fifo/dev_depset, datacenter names for
// dc_fifo/dc_depset.
type flatKeyFunc func(r *resolver.Resolver, regex string) ([]string, error)

func deviceKeys(r *resolver.Resolver, regex string) ([]string, error) {
	set, err := r.ResolveDevices(regex)
	if err != nil {
		return nil, err
	}
	return set.Devices(), nil
}

func datacenterKeys(r *resolver.Resolver, regex string) ([]string, error) {
	set, err := r.ResolveDCs(regex)
	if err != nil {
		return nil, err
	}
	return set.Devices(), nil
}

// NewBaselineScheduler builds the flat-granularity engine for one of
// the four baseline variants.
func NewBaselineScheduler(v Variant, w *World, log EventLogger) *Scheduler {
	var keysOf flatKeyFunc
	switch v {
	case DevFIFO, DevDepSet:
		keysOf = deviceKeys
	case DCFIFO, DCDepSet:
		keysOf = datacenterKeys
	default:
		panic(fmt.Sprintf("engine: %s is not a baseline variant", v))
	}

	fs := &FlatScheduler{World: w, Select: v.selector()}
	s := &Scheduler{World: w, Sweeper: fs, Log: log}

	s.ResolveRequest = func(wfID ids.WorkflowID) error {
		wf := w.Workflows[wfID]
		req := wf.CurrentRequest()
		keys, err := keysOf(w.Resolver, req.Regex)
		if err != nil {
			return err
		}
		_, intentCat := accessCategories(req.Access)
		for _, key := range keys {
			obj := w.NetObj.GetOrCreate(key)
			w.NetObj.Grant(obj, wfID, intentCat)
			w.ApplyNetObjGrant(wf, obj, intentCat)
		}
		return nil
	}

	s.ReleaseCurrent = func(wfID ids.WorkflowID) {
		wf := w.Workflows[wfID]
		releaseFlatCategory(w, wf, ids.Shared)
		releaseFlatCategory(w, wf, ids.Exclusive)
	}

	s.StripAll = func(wfID ids.WorkflowID) {
		wf := w.Workflows[wfID]
		for c := ids.Category(0); c < ids.NumCategories; c++ {
			releaseFlatCategory(w, wf, c)
		}
	}

	return s
}

func releaseFlatCategory(w *World, wf *workflow.Workflow, c ids.Category) {
	nodes := append([]ids.NodeID(nil), wf.Locks[c]...)
	for _, nodeID := range nodes {
		obj := findNetObjByID(w.NetObj, nodeID)
		if obj == nil {
			continue
		}
		w.NetObj.Release(obj, wf.ID, c)
		wf.RemoveNodeFrom(c, nodeID)
	}
}

func findNetObjByID(t *netobj.Table, id ids.NodeID) *netobj.NetObj {
	for _, o := range t.All() {
		if o.ID == id {
			return o
		}
	}
	return nil
}

// NewScheduler builds the Scheduler for any of the six named variants
// against a freshly constructed World for that variant's granularity.
func NewScheduler(v Variant, r *resolver.Resolver, rootRegex string, log EventLogger) (*Scheduler, error) {
	switch v {
	case OccamFIFO, OccamDepSet:
		w, err := NewTreeWorld(r, rootRegex)
		if err != nil {
			return nil, err
		}
		return NewOccamScheduler(v, w, log), nil
	case DevFIFO, DevDepSet, DCFIFO, DCDepSet:
		w := NewFlatWorld(r)
		return NewBaselineScheduler(v, w, log), nil
	default:
		return nil, fmt.Errorf("engine: unknown variant %q", v)
	}
}
