package report

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/occam-sim/occam/internal/engine"
	"github.com/occam-sim/occam/internal/resolver"
	"github.com/occam-sim/occam/internal/workflow"
)

// runScenario drives a two-workflow run end to end through a real
// scheduler so the recorder sees the same event stream production
// does.
func runScenario(t *testing.T, logPath, outPath string) {
	t.Helper()
	u := &resolver.Universe{
		Devices:  []string{"d0dc1", "d1dc1"},
		DCs:      []string{"dc1"},
		DeviceDC: map[string]string{},
	}
	r := resolver.New(u, 1.0, rand.New(rand.NewSource(1)))

	rec, err := New(logPath, outPath)
	require.NoError(t, err)

	s, err := engine.NewScheduler(engine.OccamFIFO, r, ".*", rec)
	require.NoError(t, err)

	a := s.World.NewWorkflow("A")
	a.AddRequest(workflow.Request{Regex: "d0dc1", Duration: 10, Access: workflow.Read})
	s.EnqueueArrival(a.ID, 0)
	b := s.World.NewWorkflow("B")
	b.AddRequest(workflow.Request{Regex: "d0dc1", Duration: 5, Access: workflow.Write})
	s.EnqueueArrival(b.ID, 1)

	s.Run()
	require.NoError(t, rec.Finish())
}

func TestRecorderWritesAllFiles(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "run.log")
	outPath := filepath.Join(dir, "result.txt")

	runScenario(t, logPath, outPath)

	logData, err := os.ReadFile(logPath)
	require.NoError(t, err)
	log := string(logData)
	assert.Contains(t, log, "WfArrival: ev_time = 0, wf_name = A")
	assert.Contains(t, log, "ObjStart: ev_time = 0, wf_name = A, obj_id = 0")
	assert.Contains(t, log, "ObjEnd: ev_time = 10, wf_name = A, obj_id = 0")
	assert.Contains(t, log, "WfCompletion: ev_time = 15, wf_name = B, obj_id = 0")

	mainData, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(mainData), "0 0 10 A 10 0 d0dc1")
	assert.Contains(t, string(mainData), "1 10 15 B 5 9 d0dc1")

	schData, err := os.ReadFile(filepath.Join(dir, "result_sch.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(schData), "B 9 1 15 d0dc1")

	for _, name := range []string{"result_q_len.txt", "result_active_netobj.txt"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.NotEmpty(t, data, name)
	}
}

func TestRecorderNoLogPath(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "result.txt")
	runScenario(t, "", outPath)

	_, err := os.Stat(outPath)
	assert.NoError(t, err)
}
