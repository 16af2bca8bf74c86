package candidate

import (
	"math"

	"github.com/occam-sim/occam/internal/ids"
)

// Info is everything a selection policy needs to know about one
// candidate: a single write-access workflow, or the synthetic
// super-reader standing in for the whole batch of read candidates at
// a node (earliest arrival among them, union of their dependency
// sets). The super-reader never enters the tree; it exists only for
// the duration of one selection.
type Info struct {
	ID      ids.WorkflowID
	Arrival float64
	DepSet  map[ids.WorkflowID]struct{}
}

// Selector picks between the folded super-reader (nil when no read
// candidate is eligible) and the write candidates, returning the
// chosen entry (the superRead pointer itself when the read batch
// wins).
type Selector func(superRead *Info, writers []Info) *Info

// SelectFIFO defaults to the read batch; a writer wins only by
// arriving strictly earlier than the batch's earliest reader.
func SelectFIFO(superRead *Info, writers []Info) *Info {
	sched := superRead
	earliest := math.Inf(1)
	if superRead != nil {
		earliest = superRead.Arrival
	}
	for i := range writers {
		if writers[i].Arrival < earliest {
			earliest = writers[i].Arrival
			sched = &writers[i]
		}
	}
	return sched
}

// SelectDepSet picks the candidate with the largest dependency set,
// breaking ties by earliest arrival; the read batch wins outright
// ties, same as FIFO's default.
func SelectDepSet(superRead *Info, writers []Info) *Info {
	sched := superRead
	maxDep := -1
	earliest := math.Inf(1)
	if superRead != nil {
		maxDep = len(superRead.DepSet)
		earliest = superRead.Arrival
	}
	for i := range writers {
		w := &writers[i]
		if len(w.DepSet) > maxDep || (len(w.DepSet) == maxDep && w.Arrival < earliest) {
			maxDep = len(w.DepSet)
			earliest = w.Arrival
			sched = w
		}
	}
	return sched
}
