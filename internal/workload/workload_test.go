package workload

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/occam-sim/occam/internal/workflow"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadText(t *testing.T) {
	path := writeFile(t, "workload.txt",
		"0 drain_undrain_devices 10 d0dc1\n"+
			"\n"+
			"5 cableguy_ping_test 3 d[0-1]dc1\n")

	rows, err := Load(path, Default, 1.0, 1.0, -1)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, 0.0, rows[0].StartTime)
	assert.Equal(t, "drain_undrain_devices", rows[0].Name)
	assert.Equal(t, 10.0, rows[0].ExecTime)
	assert.Equal(t, "d0dc1", rows[0].Regex)
	assert.Equal(t, workflow.Write, rows[0].Access)
	assert.Equal(t, workflow.Read, rows[1].Access)
}

func TestLoadTextScalesAndLimits(t *testing.T) {
	path := writeFile(t, "workload.txt",
		"2 a 10 d0dc1\n4 b 10 d1dc1\n6 c 10 d2dc1\n")

	rows, err := Load(path, Default, 0.5, 2.0, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 1.0, rows[0].StartTime)
	assert.Equal(t, 20.0, rows[0].ExecTime)
}

func TestLoadTextBadRow(t *testing.T) {
	path := writeFile(t, "workload.txt", "0 a 10 d0dc1\nnot enough fields\n")
	_, err := Load(path, Default, 1.0, 1.0, -1)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, 2, cfgErr.Line)
}

func TestLoadCSV(t *testing.T) {
	path := writeFile(t, "workload.csv",
		"start_time,wf_name,exec_time,regex,device_list\n"+
			"0,vmhandler,5,d0dc1,\"[d0dc1]\"\n"+
			"3,rdam_dc,7,d[0-2]dc1,\"[d0dc1, d1dc1, d2dc1]\"\n")

	rows, err := Load(path, ReadHeavy, 1.0, 1.0, -1)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "vmhandler", rows[0].Name)
	assert.Equal(t, 3.0, rows[1].StartTime)
	// CSV rows are always write access, whatever the map says.
	assert.Equal(t, workflow.Write, rows[0].Access)
	assert.Equal(t, workflow.Write, rows[1].Access)
}

func TestLoadCSVMissingColumn(t *testing.T) {
	path := writeFile(t, "workload.csv", "start_time,wf_name,exec_time\n0,a,5\n")
	_, err := Load(path, Default, 1.0, 1.0, -1)
	assert.ErrorContains(t, err, "regex")
}

func TestAccessMapResolve(t *testing.T) {
	assert.Equal(t, workflow.Write, Default.Resolve("drain_undrain_devices"))
	assert.Equal(t, workflow.Write, Default.Resolve("vmhandler"))
	assert.Equal(t, workflow.Read, Default.Resolve("device_data_audit"))
	assert.Equal(t, workflow.Read, Default.Resolve("never heard of it"))
	assert.Equal(t, workflow.Write, WriteHeavy.Resolve("device_data_audit"))
	assert.Equal(t, workflow.Read, ReadHeavy.Resolve("drain_undrain_devices"))
	assert.Equal(t, workflow.Write, ReadHeavy.Resolve("bb_circuit_turnup"))
	assert.Equal(t, workflow.Write, Balanced.Resolve("bb_circuit_turnup"))
	assert.Equal(t, workflow.Read, Balanced.Resolve("rdam_dc"))
}

func TestGenRegexStaysInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 100; i++ {
		regex := GenRegex(rng, "dc1", 8)
		assert.Regexp(t, `^d(\d|\[\d-\d\])dc1$`, regex)
	}
}

func TestGenWorkflowMonotonicStart(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	prev := 0.0
	for i := 0; i < 50; i++ {
		row := GenWorkflow(rng, "w", "dc1", 8, prev, 5, 10, workflow.Read)
		assert.GreaterOrEqual(t, row.StartTime, prev)
		assert.LessOrEqual(t, row.ExecTime, 10.0)
		prev = row.StartTime
	}
}
