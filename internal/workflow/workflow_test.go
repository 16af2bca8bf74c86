package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/occam-sim/occam/internal/ids"
)

func TestRunnable(t *testing.T) {
	w := New(1, "A")
	assert.True(t, w.Runnable())

	w.Locks[ids.IntentShared] = append(w.Locks[ids.IntentShared], 7)
	assert.False(t, w.Runnable())

	w.RemoveNodeFrom(ids.IntentShared, 7)
	assert.True(t, w.Runnable())
}

func TestReset(t *testing.T) {
	w := New(1, "A")
	w.AddRequest(Request{Regex: "d0dc1", Duration: 10, Access: Write})
	w.CurObj = 0
	w.Locks[ids.Exclusive] = append(w.Locks[ids.Exclusive], 3)
	w.DepSet = map[ids.WorkflowID]struct{}{2: {}}
	w.DepSetValid = true
	w.Status = Running

	w.Reset()

	assert.Equal(t, -1, w.CurObj)
	assert.Equal(t, Pending, w.Status)
	assert.Nil(t, w.DepSet)
	assert.False(t, w.DepSetValid)
	assert.Empty(t, w.Locks[ids.Exclusive])
	// Name and Requests survive a reset.
	assert.Equal(t, "A", w.Name)
	assert.Len(t, w.Requests, 1)
}

func TestHasNodeIn(t *testing.T) {
	w := New(1, "A")
	w.Locks[ids.Shared] = append(w.Locks[ids.Shared], 5)
	assert.True(t, w.HasNodeIn(ids.Shared, 5))
	assert.False(t, w.HasNodeIn(ids.Shared, 6))
}
