// Implements the discrete-event loop: a (time, sequence) min-heap of
// the four event kinds, dispatched one at a time under a single
// simulated clock.
package engine

import (
	"container/heap"

	"github.com/rs/zerolog/log"

	"github.com/occam-sim/occam/internal/ids"
	"github.com/occam-sim/occam/internal/workflow"
)

// Kind distinguishes the four events the loop dispatches.
type Kind int

const (
	WfArrival Kind = iota
	WfCompletion
	ObjStart
	ObjEnd
)

func (k Kind) String() string {
	switch k {
	case WfArrival:
		return "wf_arrival"
	case WfCompletion:
		return "wf_completion"
	case ObjStart:
		return "obj_start"
	case ObjEnd:
		return "obj_end"
	default:
		return "unknown"
	}
}

// Event is one entry in the simulation clock's priority queue. Seq is
// assigned monotonically at insertion and breaks ties between events
// scheduled for the same simulated time, so equal-time events dequeue
// in insertion order.
type Event struct {
	Time     float64
	Seq      int
	Kind     Kind
	Workflow ids.WorkflowID
}

type eventHeap []Event

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].Time != h[j].Time {
		return h[i].Time < h[j].Time
	}
	return h[i].Seq < h[j].Seq
}
func (h eventHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x any)        { *h = append(*h, x.(Event)) }
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// granularitySweeper is whichever of TreeScheduler or FlatScheduler
// backs a given run; both expose the same Sweep contract.
type granularitySweeper interface {
	Sweep() (changed bool, witness ids.WorkflowID, deadlock bool)
}

// EventLogger receives a callback after every dispatched event, so a
// caller can append progress/schedule/queue-length records without the
// event loop itself knowing about file formats. internal/report
// implements this against the five output files.
type EventLogger interface {
	Record(time float64, e Event, w *World)

	// Deadlock is called once per rollback, at the moment a witness is
	// chosen, so the log trace can carry its `Deadlock: ev_time = ...`
	// line. It is not a dispatched Event itself: rollback happens
	// inside the re-entrant scheduling sweep, between event dispatches.
	Deadlock(time float64, witness ids.WorkflowID, w *World)
}

// Scheduler drives the event loop for one run of one variant. The
// Sweeper that NewScheduler installs for the variant fixes both the
// candidate policy (FIFO or DepSet) and the lock object model (tree
// vs. flat); the event machinery below is identical across all six.
type Scheduler struct {
	World   *World
	Sweeper granularitySweeper

	heap    eventHeap
	nextSeq int

	Clock float64
	Log   EventLogger

	// ResolveRequest turns a workflow's current request into whatever
	// the granularity needs locked (a regexset.Set for the tree, one or
	// more device/datacenter names for the flat table) and records the
	// resulting intents. Supplied by the caller so Scheduler itself
	// stays granularity-agnostic; see NewOccamScheduler/NewBaselineScheduler.
	ResolveRequest func(wf ids.WorkflowID) error

	// ReleaseCurrent releases every node/netobj the workflow currently
	// holds for its just-finished request.
	ReleaseCurrent func(wf ids.WorkflowID)

	// StripAll tears down every held and intent edge a workflow has,
	// on whichever granularity backs this run; used only by deadlock
	// rollback (deadlock.go).
	StripAll StripAllFunc
}

func (s *Scheduler) push(e Event) {
	e.Seq = s.nextSeq
	s.nextSeq++
	heap.Push(&s.heap, e)
}

// EnqueueArrival schedules wf's next (or first) request arrival at t.
func (s *Scheduler) EnqueueArrival(wf ids.WorkflowID, t float64) {
	s.push(Event{Time: t, Kind: WfArrival, Workflow: wf})
}

// Run drains the event heap, dispatching each event and re-entering
// the scheduling sweep (with rollback-on-deadlock) after every state
// change. Progress records are appended after every dispatch.
func (s *Scheduler) Run() {
	for s.heap.Len() > 0 {
		e := heap.Pop(&s.heap).(Event)
		s.Clock = e.Time
		s.dispatch(e)
		if s.Log != nil {
			s.Log.Record(s.Clock, e, s.World)
		}
	}
}

func (s *Scheduler) dispatch(e Event) {
	switch e.Kind {
	case WfArrival:
		wf := s.World.Workflows[e.Workflow]
		if wf.CurObj == -1 {
			wf.ArrivalTime = e.Time
		}
		wf.CurObj++
		if err := s.ResolveRequest(e.Workflow); err != nil {
			log.Error().Err(err).Str("workflow", wf.Name).Msg("dropping workflow: request did not resolve")
			return
		}
		s.World.Pending = append(s.World.Pending, e.Workflow)
		s.runSchedule()
		s.startRunnable()

	case ObjStart:
		wf := s.World.Workflows[e.Workflow]
		dur := wf.CurrentRequest().Duration
		s.push(Event{Time: s.Clock + dur, Kind: ObjEnd, Workflow: e.Workflow})

	case ObjEnd:
		// A workflow's request list may carry more than one entry but
		// only the first is ever exercised; advancing to a later
		// request is deliberately not modeled, so every workflow
		// completes after its first request.
		s.push(Event{Time: s.Clock, Kind: WfCompletion, Workflow: e.Workflow})

	case WfCompletion:
		s.ReleaseCurrent(e.Workflow)
		delete(s.World.Running, e.Workflow)
		s.World.Pending = removeWFID(s.World.Pending, e.Workflow)
		s.runSchedule()
	}
}

// startRunnable moves every pending workflow whose intents have all
// been granted into the running list and enqueues its ObjStart.
func (s *Scheduler) startRunnable() {
	var stillPending []ids.WorkflowID
	for _, id := range s.World.Pending {
		wf := s.World.Workflows[id]
		if wf.Runnable() {
			wf.Status = workflow.Running
			s.World.Running[id] = struct{}{}
			s.push(Event{Time: s.Clock, Kind: ObjStart, Workflow: id})
		} else {
			stillPending = append(stillPending, id)
		}
	}
	s.World.Pending = stillPending
}

// runSchedule re-enters the granularity's Sweep until a full pass makes
// no further progress, rolling back a deadlock witness whenever Sweep
// reports one and then re-entering from scratch.
func (s *Scheduler) runSchedule() {
	for {
		changed, witness, deadlock := s.Sweeper.Sweep()
		if deadlock {
			s.rollback(witness)
			continue
		}
		if !changed {
			s.startRunnable()
			if w, ok := s.progressWitness(); ok {
				s.rollback(w)
				continue
			}
			return
		}
		s.startRunnable()
	}
}

func removeWFID(list []ids.WorkflowID, wf ids.WorkflowID) []ids.WorkflowID {
	for i, id := range list {
		if id == wf {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
