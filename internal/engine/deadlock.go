// Implements deadlock rollback: strip a witness workflow of every
// lock it holds or intends, reset it to pending, and replay its
// arrival. Detection itself lives in candidate.DepSet's colored-DFS
// (see internal/candidate/closure.go); this file only handles
// recovery.
package engine

import "github.com/occam-sim/occam/internal/ids"

// StripAll is implemented once per granularity (tree_schedule.go,
// flat_schedule.go aren't the right home since rollback needs every
// category, not just the ones a single case touches) and is assigned
// onto the Scheduler by whichever constructor builds it.
type StripAllFunc func(wf ids.WorkflowID)

// rollback implements the witness-recovery procedure: every held and
// intent edge the witness has, on either granularity, is torn down in
// both directions, the workflow is reset to its pre-arrival state, and
// a fresh WfArrival is enqueued at the current simulated time so it
// re-enters the pending list and retries from its first request.
func (s *Scheduler) rollback(witness ids.WorkflowID) {
	if s.Log != nil {
		s.Log.Deadlock(s.Clock, witness, s.World)
	}
	if s.StripAll != nil {
		s.StripAll(witness)
	}
	wf := s.World.Workflows[witness]
	wf.Reset()
	s.World.Pending = removeWFID(s.World.Pending, witness)
	delete(s.World.Running, witness)
	s.EnqueueArrival(witness, s.Clock)
}

// progressWitness implements the progress-guarantee fallback: if the
// running list has emptied without anyone finishing and the pending
// list is non-empty, the head of the pending list (the one that
// arrived first) is forced through rollback so the simulation cannot
// wedge forever.
func (s *Scheduler) progressWitness() (ids.WorkflowID, bool) {
	if len(s.World.Running) > 0 || len(s.World.Pending) == 0 {
		return 0, false
	}
	return s.World.Pending[0], true
}
