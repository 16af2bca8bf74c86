package candidate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/occam-sim/occam/internal/ids"
)

func set(ids_ ...ids.WorkflowID) map[ids.WorkflowID]struct{} {
	out := make(map[ids.WorkflowID]struct{}, len(ids_))
	for _, id := range ids_ {
		out[id] = struct{}{}
	}
	return out
}

func TestSelectFIFOPicksEarliestWriter(t *testing.T) {
	writers := []Info{
		{ID: 1, Arrival: 5},
		{ID: 2, Arrival: 1},
		{ID: 3, Arrival: 2},
	}
	got := SelectFIFO(nil, writers)
	assert.Equal(t, ids.WorkflowID(2), got.ID)
}

func TestSelectFIFOReadBatchWinsTies(t *testing.T) {
	superRead := &Info{ID: 9, Arrival: 1}
	writers := []Info{{ID: 1, Arrival: 1}}
	assert.Same(t, superRead, SelectFIFO(superRead, writers))

	// A strictly earlier writer beats the batch.
	writers[0].Arrival = 0
	assert.Equal(t, ids.WorkflowID(1), SelectFIFO(superRead, writers).ID)
}

func TestSelectDepSetPicksLargerClosure(t *testing.T) {
	writers := []Info{
		{ID: 1, Arrival: 2, DepSet: set(1, 10, 11)},
		{ID: 2, Arrival: 1, DepSet: set(2, 10)},
	}
	got := SelectDepSet(nil, writers)
	assert.Equal(t, ids.WorkflowID(1), got.ID)
}

func TestSelectDepSetTieBreaksOnArrival(t *testing.T) {
	writers := []Info{
		{ID: 1, Arrival: 5, DepSet: set(1)},
		{ID: 2, Arrival: 1, DepSet: set(2)},
	}
	got := SelectDepSet(nil, writers)
	assert.Equal(t, ids.WorkflowID(2), got.ID)
}

func TestSelectDepSetReadBatchBeatsSmallerWriter(t *testing.T) {
	// The batch's union dependency set outranks each individual
	// writer's, so the batch is scheduled even though a writer arrived
	// first.
	superRead := &Info{Arrival: 1, DepSet: set(4, 5, 100)}
	writers := []Info{{ID: 3, Arrival: 0, DepSet: set(3, 100)}}
	assert.Same(t, superRead, SelectDepSet(superRead, writers))
}

func TestSelectDepSetWriterWinsEqualSizeEarlierArrival(t *testing.T) {
	superRead := &Info{Arrival: 2, DepSet: set(4, 100)}
	writers := []Info{{ID: 3, Arrival: 1, DepSet: set(3, 100)}}
	assert.Equal(t, ids.WorkflowID(3), SelectDepSet(superRead, writers).ID)
}
