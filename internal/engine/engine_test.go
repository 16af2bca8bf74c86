package engine

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/occam-sim/occam/internal/ids"
	"github.com/occam-sim/occam/internal/locktree"
	"github.com/occam-sim/occam/internal/regexset"
	"github.com/occam-sim/occam/internal/resolver"
	"github.com/occam-sim/occam/internal/workflow"
)

// testUniverse is the three-device fixture every end-to-end scenario
// runs against: devices {d0dc1, d1dc1, d2dc1}, datacenter dc1.
func testUniverse() *resolver.Universe {
	return &resolver.Universe{
		Devices: []string{"d0dc1", "d1dc1", "d2dc1"},
		DCs:     []string{"dc1"},
		DeviceDC: map[string]string{
			"d0dc1": "dc1", "d1dc1": "dc1", "d2dc1": "dc1",
		},
	}
}

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	r := resolver.New(testUniverse(), 1.0, rand.New(rand.NewSource(1)))
	s, err := NewScheduler(OccamFIFO, r, ".*", nil)
	require.NoError(t, err)
	return s
}

// spawn enqueues the arrival of a read/write workflow at time arrival
// against regex for dur.
func spawn(s *Scheduler, name, regex string, access workflow.AccessType, dur, arrival float64) {
	wf := s.World.NewWorkflow(name)
	wf.AddRequest(workflow.Request{Regex: regex, Duration: dur, Access: access})
	s.EnqueueArrival(wf.ID, arrival)
}

// recorder captures each dispatched ObjStart/WfCompletion so tests can assert
// on a workflow's actual run interval without polling World state mid-run.
type recorder struct {
	starts    map[string]float64
	ends      map[string]float64
	deadlocks []string
	s         *Scheduler
}

func newRecorder(s *Scheduler) *recorder {
	return &recorder{starts: map[string]float64{}, ends: map[string]float64{}, s: s}
}

func (r *recorder) Record(t float64, e Event, w *World) {
	name := w.Workflows[e.Workflow].Name
	switch e.Kind {
	case ObjStart:
		r.starts[name] = t
	case WfCompletion:
		r.ends[name] = t
	}
}

func (r *recorder) Deadlock(t float64, witness ids.WorkflowID, w *World) {
	r.deadlocks = append(r.deadlocks, w.Workflows[witness].Name)
}

func TestBasicExclusion(t *testing.T) {
	s := newTestScheduler(t)
	rec := newRecorder(s)
	s.Log = rec

	spawn(s, "A", "d0dc1", workflow.Read, 10, 0)
	spawn(s, "B", "d0dc1", workflow.Write, 5, 1)
	s.Run()

	assert.Equal(t, 0.0, rec.starts["A"])
	assert.Equal(t, 10.0, rec.ends["A"])
	assert.Equal(t, 10.0, rec.starts["B"])
	assert.Equal(t, 15.0, rec.ends["B"])
}

func TestSharedReadBatching(t *testing.T) {
	s := newTestScheduler(t)
	rec := newRecorder(s)
	s.Log = rec

	spawn(s, "A", "d[0-2]dc1", workflow.Read, 10, 0)
	spawn(s, "B", "d0dc1", workflow.Read, 3, 0)
	spawn(s, "C", "d1dc1", workflow.Read, 3, 0)
	s.Run()

	assert.Equal(t, 0.0, rec.starts["A"])
	assert.Equal(t, 0.0, rec.starts["B"])
	assert.Equal(t, 0.0, rec.starts["C"])
	assert.LessOrEqual(t, rec.ends["A"], 10.0)
	assert.LessOrEqual(t, rec.ends["B"], 10.0)
	assert.LessOrEqual(t, rec.ends["C"], 10.0)
}

func TestWriteStarvationAvoidedFIFO(t *testing.T) {
	s := newTestScheduler(t)
	rec := newRecorder(s)
	s.Log = rec

	spawn(s, "A", "d0dc1", workflow.Read, 100, 0)
	spawn(s, "B", "d0dc1", workflow.Write, 1, 1)
	spawn(s, "C", "d0dc1", workflow.Read, 1, 2)
	s.Run()

	assert.Equal(t, 100.0, rec.starts["B"])
	assert.Equal(t, 101.0, rec.starts["C"])
}

// TestDisjointRegionsRunConcurrently: a write on d0dc1 and a read on
// d1dc1 target disjoint regions under the same tree and must be
// granted independently of one another, each via its own node's local
// (empty) containment rather than waiting on the whole tree to clear.
// A later write spanning both regions (C, on d[0-1]dc1) can only run
// once every reader/writer in its own containment (both A and B)
// has released.
func TestDisjointRegionsRunConcurrently(t *testing.T) {
	s, err := NewScheduler(OccamDepSet, resolver.New(testUniverse(), 1.0, rand.New(rand.NewSource(1))), ".*", nil)
	require.NoError(t, err)
	rec := newRecorder(s)
	s.Log = rec

	spawn(s, "A", "d0dc1", workflow.Write, 100, 0)
	spawn(s, "B", "d1dc1", workflow.Read, 100, 1)
	spawn(s, "C", "d[0-1]dc1", workflow.Write, 1, 2)
	spawn(s, "D", "d1dc1", workflow.Read, 1, 3)
	s.Run()

	assert.Equal(t, 0.0, rec.starts["A"])
	assert.Equal(t, 1.0, rec.starts["B"], "B's region is disjoint from A's and must not wait on A")
	// D folds into B's already-granted shared region (case 2b, no
	// split) and drains long before A or B release.
	assert.Less(t, rec.ends["D"], rec.ends["A"])
	assert.Equal(t, 101.0, rec.starts["C"], "C spans both regions and must wait for both A and B to release")
}

// TestCompetingWritersBothComplete runs two writers spanning the same
// two devices through the flat dev_depset variant: the first to be
// dispatched takes both devices, the second queues behind it on each
// and is granted the moment the first completes. Neither starves and
// both finish.
func TestCompetingWritersBothComplete(t *testing.T) {
	s, err := NewScheduler(DevDepSet, resolver.New(testUniverse(), 1.0, rand.New(rand.NewSource(1))), ".*", nil)
	require.NoError(t, err)
	rec := newRecorder(s)
	s.Log = rec

	spawn(s, "A", "d[0-1]dc1", workflow.Write, 1, 0)
	spawn(s, "B", "d[0-1]dc1", workflow.Write, 1, 0)
	s.Run()

	assert.Contains(t, rec.ends, "A")
	assert.Contains(t, rec.ends, "B")
}

// mustResolve is a test shorthand for resolving a regex against the
// scheduler's own universe.
func mustResolve(t *testing.T, s *Scheduler, regex string) *regexset.Set {
	t.Helper()
	set, err := s.World.Resolver.ResolveDevices(regex)
	require.NoError(t, err)
	return set
}

// addIntentExclusive wires a pending exclusive intent onto node by
// hand, mirroring both sides of the edge, for tests that need a lock
// state the single-request workload path cannot reach directly.
func addIntentExclusive(w *World, node *locktree.TreeNode, wf *workflow.Workflow) {
	node.Locks[ids.IntentExclusive] = append(node.Locks[ids.IntentExclusive], wf.ID)
	wf.Locks[ids.IntentExclusive] = append(wf.Locks[ids.IntentExclusive], node.ID)
}

// TestUpgradeInPlace drives case 4 of the tree algebra: the sole
// shared holder of a node also wants exclusive on that same node, and
// with nobody else holding anywhere in its containment the shared
// grant is swapped for exclusive on the spot.
func TestUpgradeInPlace(t *testing.T) {
	s := newTestScheduler(t)
	ts := s.Sweeper.(*TreeScheduler)

	w := s.World.NewWorkflow("W")
	node, ops := s.World.Tree.Insert(mustResolve(t, s, "d0dc1"), w.ID, ids.Shared)
	s.World.ApplyEdgeOps(ops)
	addIntentExclusive(s.World, node, w)

	changed, _, deadlock := ts.Sweep()
	require.False(t, deadlock)
	assert.True(t, changed)
	assert.Equal(t, []ids.WorkflowID{w.ID}, node.Locks[ids.Exclusive])
	assert.Empty(t, node.Locks[ids.Shared])
	assert.Empty(t, node.Locks[ids.IntentExclusive])
	assert.True(t, w.Runnable())
}

// TestUpgradeFromDescendant drives the descendant variant of case 5:
// a workflow holding shared on a child region and waiting for
// exclusive on the containing node has its child grant pulled up into
// an exclusive on the containing node itself.
func TestUpgradeFromDescendant(t *testing.T) {
	s := newTestScheduler(t)
	ts := s.Sweeper.(*TreeScheduler)

	w := s.World.NewWorkflow("W")
	child, ops := s.World.Tree.Insert(mustResolve(t, s, "d0dc1"), w.ID, ids.Shared)
	s.World.ApplyEdgeOps(ops)
	parent, ops := s.World.Tree.Insert(mustResolve(t, s, "d[0-1]dc1"), w.ID, ids.IntentExclusive)
	s.World.ApplyEdgeOps(ops)
	require.True(t, parent.Set.ProperlyContains(child.Set))

	changed, _, deadlock := ts.Sweep()
	require.False(t, deadlock)
	assert.True(t, changed)
	assert.Equal(t, []ids.WorkflowID{w.ID}, parent.Locks[ids.Exclusive])
	assert.Empty(t, parent.Children, "the vacated child must be collected")
	assert.True(t, w.Runnable())
	assert.False(t, w.HasNodeIn(ids.Shared, child.ID))
}

// TestUpgradeFromAncestor drives the ancestor variant of case 5: the
// workflow holds shared on an ancestor and wants exclusive on a
// descendant; the exclusive lands on the ancestor in place of its
// shared grant, without splitting.
func TestUpgradeFromAncestor(t *testing.T) {
	s := newTestScheduler(t)
	ts := s.Sweeper.(*TreeScheduler)

	w := s.World.NewWorkflow("W")
	anc, ops := s.World.Tree.Insert(mustResolve(t, s, "d[0-1]dc1"), w.ID, ids.Shared)
	s.World.ApplyEdgeOps(ops)
	desc, ops := s.World.Tree.Insert(mustResolve(t, s, "d0dc1"), w.ID, ids.IntentExclusive)
	s.World.ApplyEdgeOps(ops)
	require.Contains(t, anc.Children, desc)

	changed, _, deadlock := ts.Sweep()
	require.False(t, deadlock)
	assert.True(t, changed)
	assert.Equal(t, []ids.WorkflowID{w.ID}, anc.Locks[ids.Exclusive])
	assert.Empty(t, anc.Locks[ids.Shared])
	assert.True(t, w.Runnable())
}

// TestClosureDeadlockWitness builds a crossed shared-to-exclusive
// upgrade (each workflow holds what the other waits for) plus a pair
// of fresh writers whose case-3 scoring walks the dependency closure
// into the cycle. The colored-DFS must surface a workflow on the
// cycle as witness and rollback must free the tree enough for the
// survivor's upgrade to proceed.
func TestClosureDeadlockWitness(t *testing.T) {
	r := resolver.New(testUniverse(), 1.0, rand.New(rand.NewSource(1)))
	s, err := NewScheduler(OccamDepSet, r, ".*", nil)
	require.NoError(t, err)
	rec := newRecorder(s)
	s.Log = rec

	w1 := s.World.NewWorkflow("W1")
	w2 := s.World.NewWorkflow("W2")
	w3 := s.World.NewWorkflow("W3")
	w4 := s.World.NewWorkflow("W4")

	n0, ops := s.World.Tree.Insert(mustResolve(t, s, "d0dc1"), w1.ID, ids.Shared)
	s.World.ApplyEdgeOps(ops)
	n1, ops := s.World.Tree.Insert(mustResolve(t, s, "d1dc1"), w2.ID, ids.Shared)
	s.World.ApplyEdgeOps(ops)

	// The crossed upgrade: each waits for exclusive on the node the
	// other holds shared.
	addIntentExclusive(s.World, n1, w1)
	addIntentExclusive(s.World, n0, w2)

	// W3 shares n0 so its closure walk reaches the cycle, and contends
	// with W4 for d2 so case 3 actually scores dependency sets.
	n0.Locks[ids.Shared] = append(n0.Locks[ids.Shared], w3.ID)
	w3.Locks[ids.Shared] = append(w3.Locks[ids.Shared], n0.ID)
	_, ops = s.World.Tree.Insert(mustResolve(t, s, "d2dc1"), w3.ID, ids.IntentExclusive)
	s.World.ApplyEdgeOps(ops)
	_, ops = s.World.Tree.Insert(mustResolve(t, s, "d2dc1"), w4.ID, ids.IntentExclusive)
	s.World.ApplyEdgeOps(ops)

	s.runSchedule()

	require.NotEmpty(t, rec.deadlocks)
	assert.Equal(t, "W2", rec.deadlocks[0], "the witness must be on the cycle")
	assert.True(t, w2.Runnable(), "the witness is stripped bare by rollback")
	// With W2 gone, W1's pending exclusive on n1 is freshly grantable.
	assert.Equal(t, []ids.WorkflowID{w1.ID}, n1.Locks[ids.Exclusive])
}

// TestProgressFallbackRollsBackPendingHead wedges two workflows in a
// crossed upgrade with no case-3 contention anywhere, so the closure
// walk never runs. The running list is empty, the pending list is not,
// and no sweep makes progress: the progress guarantee must roll back
// the head of the pending list, after which the survivor is granted.
func TestProgressFallbackRollsBackPendingHead(t *testing.T) {
	s := newTestScheduler(t)
	rec := newRecorder(s)
	s.Log = rec

	w1 := s.World.NewWorkflow("W1")
	w2 := s.World.NewWorkflow("W2")

	n0, ops := s.World.Tree.Insert(mustResolve(t, s, "d0dc1"), w1.ID, ids.Shared)
	s.World.ApplyEdgeOps(ops)
	n1, ops := s.World.Tree.Insert(mustResolve(t, s, "d1dc1"), w2.ID, ids.Shared)
	s.World.ApplyEdgeOps(ops)
	addIntentExclusive(s.World, n1, w1)
	addIntentExclusive(s.World, n0, w2)
	s.World.Pending = append(s.World.Pending, w1.ID, w2.ID)

	s.runSchedule()

	require.Equal(t, []string{"W1"}, rec.deadlocks)
	assert.Equal(t, workflow.Running, w2.Status, "the survivor takes both grants once the head is rolled back")
	assert.True(t, w1.Runnable(), "the witness is stripped bare by rollback")
	assert.Empty(t, s.World.Pending)
}

func TestContainmentSplit(t *testing.T) {
	s := newTestScheduler(t)
	rec := newRecorder(s)
	s.Log = rec

	spawn(s, "A", "d0dc1", workflow.Read, 10, 0)
	spawn(s, "B", "d[0-1]dc1", workflow.Write, 5, 1)
	s.Run()

	assert.Equal(t, 0.0, rec.starts["A"])
	assert.Equal(t, 10.0, rec.ends["A"])
	assert.Equal(t, 10.0, rec.starts["B"])
	assert.Equal(t, 15.0, rec.ends["B"])
}
