// Package candidate implements the two candidate-selection policies
// (FIFO and dependency-set) the scheduler uses to pick, among several
// workflows simultaneously blocked on the same node, which one to
// grant next, plus the dependency-set closure those policies are
// scored against.
//
// The closure is walked as an explicit colored-DFS: white
// (unvisited), grey (on the current path), black (fully explored). A
// grey node reached again is a back-edge, a real cycle in the
// wait-for graph, and is reported as ErrDeadlock, making deadlock
// detection a bounded check rather than a recursion-depth accident.
package candidate

import (
	"errors"

	"github.com/occam-sim/occam/internal/ids"
)

// ErrDeadlock is returned by DepSet when the wait-for graph reachable
// from the requested workflow contains a cycle.
var ErrDeadlock = errors.New("candidate: dependency cycle detected")

type color int

const (
	white color = iota
	grey
	black
)

// WaitersFunc returns the workflows directly waiting behind a lock wf
// currently holds: the intent holders queued on the nodes or netobjs
// wf holds (in the tree, anywhere within their containment). Whether a
// waiter's pending request conflicts with wf's grant is not checked.
type WaitersFunc func(wf ids.WorkflowID) []ids.WorkflowID

// DepSet returns the dependency set of start: start itself plus,
// transitively, every workflow waiting behind a lock some member of
// the set currently holds. The bigger the set, the more of the
// backlog draining start would unblock, which is what the
// dependency-set policy maximizes.
//
// If the walk closes a cycle, DepSet returns ErrDeadlock together
// with the workflow the cycle was closed on, for use as the rollback
// witness.
func DepSet(start ids.WorkflowID, waiters WaitersFunc) (map[ids.WorkflowID]struct{}, ids.WorkflowID, error) {
	colors := make(map[ids.WorkflowID]color)
	deps := make(map[ids.WorkflowID]struct{})

	var visit func(wf ids.WorkflowID) (ids.WorkflowID, error)
	visit = func(wf ids.WorkflowID) (ids.WorkflowID, error) {
		colors[wf] = grey
		deps[wf] = struct{}{}
		for _, waiter := range waiters(wf) {
			switch colors[waiter] {
			case grey:
				return waiter, ErrDeadlock
			case white:
				if w, err := visit(waiter); err != nil {
					return w, err
				}
			}
		}
		colors[wf] = black
		return 0, nil
	}

	if w, err := visit(start); err != nil {
		return nil, w, err
	}
	return deps, 0, nil
}
