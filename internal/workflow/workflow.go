// Package workflow holds the per-workflow state the scheduler tracks:
// its ordered sequence of object requests, which of those requests is
// current, its status, and the four category-indexed lists of nodes it
// holds or intends a lock against.
package workflow

import (
	"github.com/occam-sim/occam/internal/ids"
)

// AccessType is whether a request reads or writes the devices its
// regex names.
type AccessType int

const (
	Read AccessType = iota
	Write
)

func (a AccessType) String() string {
	if a == Write {
		return "write"
	}
	return "read"
}

// Status is whether a workflow is waiting for locks or has acquired
// everything its current request needs and is executing.
type Status int

const (
	Pending Status = iota
	Running
)

// Request is one object a workflow asks the scheduler to lock: a
// regex denoting the devices it touches, how long it runs once
// granted, and whether it reads or writes them.
type Request struct {
	Regex    string
	Duration float64
	Access   AccessType
}

// Workflow carries a sequence of Requests. The engine services only
// the first: it is locked, run for its Duration and released, and the
// workflow then completes; later entries in Requests are never locked
// or run.
type Workflow struct {
	ID          ids.WorkflowID
	Name        string
	ArrivalTime float64

	Requests []Request
	CurObj   int // index into Requests of the request being serviced, -1 before the first arrival

	Status Status

	// Locks[c] is the set of node/netobj IDs this workflow holds or
	// intends in category c. Mirrored by the corresponding category
	// list on each referenced node; see the engine package's edge
	// helpers for the single place both sides are kept in sync.
	Locks [ids.NumCategories][]ids.NodeID

	// DepSet is this workflow plus, transitively, every workflow
	// waiting behind a lock held by a member of the set, used by the
	// dependency-set candidate policy. DepSetValid says whether it
	// needs recomputing.
	DepSet      map[ids.WorkflowID]struct{}
	DepSetValid bool
}

// New creates a pending workflow with no requests and no locks.
func New(id ids.WorkflowID, name string) *Workflow {
	return &Workflow{
		ID:     id,
		Name:   name,
		CurObj: -1,
		Status: Pending,
	}
}

// Reset clears a workflow's progress and locks so it can be replayed
// from its first request, as happens after a deadlock rollback. Name
// and Requests survive a reset; everything scheduling-related does
// not.
func (w *Workflow) Reset() {
	w.CurObj = -1
	w.Locks = [ids.NumCategories][]ids.NodeID{}
	w.ResetDepSet()
	w.Status = Pending
}

// ResetDepSet invalidates the cached dependency set ahead of a fresh
// recomputation pass.
func (w *Workflow) ResetDepSet() {
	w.DepSet = nil
	w.DepSetValid = false
}

// AddRequest appends a request to the workflow's sequence.
func (w *Workflow) AddRequest(r Request) {
	w.Requests = append(w.Requests, r)
}

// CurrentRequest returns the request the workflow is presently trying
// to lock or run.
func (w *Workflow) CurrentRequest() Request {
	return w.Requests[w.CurObj]
}

// Runnable reports whether the workflow holds no outstanding intents,
// i.e. it has been granted every lock its current request needs.
func (w *Workflow) Runnable() bool {
	return len(w.Locks[ids.IntentShared]) == 0 && len(w.Locks[ids.IntentExclusive]) == 0
}

// IsLastRequest reports whether the workflow's current request is the
// last one in its sequence.
func (w *Workflow) IsLastRequest() bool {
	return w.CurObj == len(w.Requests)-1
}

// HasNodeIn reports whether nodeID appears in category c's list.
func (w *Workflow) HasNodeIn(c ids.Category, nodeID ids.NodeID) bool {
	for _, id := range w.Locks[c] {
		if id == nodeID {
			return true
		}
	}
	return false
}

// RemoveNodeFrom removes the first occurrence of nodeID from category
// c's list, if present.
func (w *Workflow) RemoveNodeFrom(c ids.Category, nodeID ids.NodeID) {
	list := w.Locks[c]
	for i, id := range list {
		if id == nodeID {
			w.Locks[c] = append(list[:i], list[i+1:]...)
			return
		}
	}
}
