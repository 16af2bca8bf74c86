// Package workload loads the two workload input formats,
// whitespace-delimited text and CSV, each contributing one workflow
// with a single access-request object per row. It also carries the
// four named access-type mappings keyed off the trace's eleven
// workflow names, and a synthetic generator for fixture workloads
// that don't come from a file.
package workload

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/occam-sim/occam/internal/workflow"
)

// Row is one parsed workload line, before it is turned into a
// workflow.Workflow (which needs a fresh ids.WorkflowID from the
// World the caller owns).
type Row struct {
	StartTime float64
	Name      string
	ExecTime  float64
	Regex     string
	Access    workflow.AccessType
}

// AccessMap names one of the four access-type configurations (read-
// heavy, write-heavy, balanced, default), each a mapping from the
// trace's workflow names to an AccessType. A name absent from the map
// defaults to Read.
type AccessMap map[string]workflow.AccessType

// The eleven workflow names the workload traces use. They are trace
// data, not code identifiers, and are kept verbatim.
const (
	wfCableguyPingTest                = "cableguy_ping_test"
	wfBBCircuitTurnup                 = "bb_circuit_turnup"
	wfVMHandler                       = "vmhandler"
	wfDNEDeviceStateChange            = "dne_device_state_change"
	wfDeviceDataAudit                 = "device_data_audit"
	wfDrainUndrainDevices             = "drain_undrain_devices"
	wfENSOpsBreakfixBaseWorkflow      = "ens_ops_breakfix_base_workflow"
	wfCollectionAnalysisTroubleshoot  = "collection_analysis_troubleshooting"
	wfPXLockAndPushToRoutersSub       = "px_lock_and_push_to_routers_sub"
	wfDCMatryoshkaConfigenRunner      = "dc_matryoshka_configen_runner"
	wfRDAMDC                          = "rdam_dc"
)

// ReadHeavy, WriteHeavy, Balanced and Default are the four named
// access-type configurations.
var (
	ReadHeavy = AccessMap{
		wfCableguyPingTest:               workflow.Read,
		wfBBCircuitTurnup:                workflow.Write,
		wfVMHandler:                      workflow.Write,
		wfDNEDeviceStateChange:           workflow.Read,
		wfDeviceDataAudit:                workflow.Read,
		wfDrainUndrainDevices:            workflow.Read,
		wfENSOpsBreakfixBaseWorkflow:     workflow.Read,
		wfCollectionAnalysisTroubleshoot: workflow.Read,
		wfPXLockAndPushToRoutersSub:      workflow.Read,
		wfDCMatryoshkaConfigenRunner:     workflow.Write,
		wfRDAMDC:                         workflow.Read,
	}
	WriteHeavy = AccessMap{
		wfCableguyPingTest:               workflow.Read,
		wfBBCircuitTurnup:                workflow.Write,
		wfVMHandler:                      workflow.Write,
		wfDNEDeviceStateChange:           workflow.Write,
		wfDeviceDataAudit:                workflow.Write,
		wfDrainUndrainDevices:            workflow.Write,
		wfENSOpsBreakfixBaseWorkflow:     workflow.Write,
		wfCollectionAnalysisTroubleshoot: workflow.Write,
		wfPXLockAndPushToRoutersSub:      workflow.Write,
		wfDCMatryoshkaConfigenRunner:     workflow.Write,
		wfRDAMDC:                         workflow.Write,
	}
	Balanced = AccessMap{
		wfCableguyPingTest:               workflow.Read,
		wfBBCircuitTurnup:                workflow.Write,
		wfVMHandler:                      workflow.Write,
		wfDNEDeviceStateChange:           workflow.Write,
		wfDeviceDataAudit:                workflow.Read,
		wfDrainUndrainDevices:            workflow.Write,
		wfENSOpsBreakfixBaseWorkflow:     workflow.Read,
		wfCollectionAnalysisTroubleshoot: workflow.Write,
		wfPXLockAndPushToRoutersSub:      workflow.Write,
		wfDCMatryoshkaConfigenRunner:     workflow.Write,
		wfRDAMDC:                         workflow.Read,
	}
	Default = AccessMap{
		wfCableguyPingTest:               workflow.Read,
		wfBBCircuitTurnup:                workflow.Write,
		wfVMHandler:                      workflow.Write,
		wfDNEDeviceStateChange:           workflow.Write,
		wfDeviceDataAudit:                workflow.Read,
		wfDrainUndrainDevices:            workflow.Write,
		wfENSOpsBreakfixBaseWorkflow:     workflow.Read,
		wfCollectionAnalysisTroubleshoot: workflow.Read,
		wfPXLockAndPushToRoutersSub:      workflow.Write,
		wfDCMatryoshkaConfigenRunner:     workflow.Write,
		wfRDAMDC:                         workflow.Read,
	}
)

// Resolve looks up name in m, defaulting to Read when absent.
func (m AccessMap) Resolve(name string) workflow.AccessType {
	if a, ok := m[name]; ok {
		return a
	}
	return workflow.Read
}

// ConfigError reports a malformed workload input: a missing input
// file or an unparseable row.
type ConfigError struct {
	Path string
	Line int
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("workload: %s:%d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("workload: %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Load reads a workload file, selecting text or CSV format by
// extension, scaling start/exec times by gapScale/execScale, and
// resolving each row's access type via accessMap. limit caps the
// number of rows read; -1 means unlimited.
func Load(path string, accessMap AccessMap, gapScale, execScale float64, limit int) ([]Row, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return loadCSV(path, accessMap, gapScale, execScale, limit)
	default:
		return loadText(path, accessMap, gapScale, execScale, limit)
	}
}

func loadText(path string, accessMap AccessMap, gapScale, execScale float64, limit int) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	defer f.Close()

	var rows []Row
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if limit >= 0 && len(rows) >= limit {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 4 {
			return nil, &ConfigError{Path: path, Line: lineNo, Err: fmt.Errorf("expected 4 fields, got %d", len(fields))}
		}
		start, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, &ConfigError{Path: path, Line: lineNo, Err: fmt.Errorf("start_time: %w", err)}
		}
		exec, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, &ConfigError{Path: path, Line: lineNo, Err: fmt.Errorf("exec_time: %w", err)}
		}
		name := fields[1]
		rows = append(rows, Row{
			StartTime: start * gapScale,
			Name:      name,
			ExecTime:  exec * execScale,
			Regex:     fields[3],
			Access:    accessMap.Resolve(name),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	return rows, nil
}

// loadCSV reads the header `start_time,wf_name,exec_time,regex,
// device_list` format. The access type is fixed at Write; nothing is
// derived from the device_list column.
func loadCSV(path string, accessMap AccessMap, gapScale, execScale float64, limit int) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	for _, want := range []string{"start_time", "wf_name", "exec_time", "regex"} {
		if _, ok := col[want]; !ok {
			return nil, &ConfigError{Path: path, Err: fmt.Errorf("missing column %q", want)}
		}
	}

	var rows []Row
	lineNo := 1
	for {
		if limit >= 0 && len(rows) >= limit {
			break
		}
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &ConfigError{Path: path, Line: lineNo, Err: err}
		}
		lineNo++
		start, err := strconv.ParseFloat(rec[col["start_time"]], 64)
		if err != nil {
			return nil, &ConfigError{Path: path, Line: lineNo, Err: fmt.Errorf("start_time: %w", err)}
		}
		exec, err := strconv.ParseFloat(rec[col["exec_time"]], 64)
		if err != nil {
			return nil, &ConfigError{Path: path, Line: lineNo, Err: fmt.Errorf("exec_time: %w", err)}
		}
		rows = append(rows, Row{
			StartTime: start * gapScale,
			Name:      rec[col["wf_name"]],
			ExecTime:  exec * execScale,
			Regex:     rec[col["regex"]],
			Access:    workflow.Write,
		})
	}
	return rows, nil
}

// GenRegex synthesizes a random bracket-expression regex over a device
// universe's numeric prefixes, so fixtures and benchmarks that don't
// want to depend on a file on disk can build randomized workloads
// directly.
func GenRegex(rng *rand.Rand, devicePrefix string, deviceCount int) string {
	if deviceCount <= 0 {
		return devicePrefix
	}
	lo := rng.Intn(deviceCount)
	hi := lo + rng.Intn(deviceCount-lo)
	if lo == hi {
		return fmt.Sprintf("d%d%s", lo, devicePrefix)
	}
	return fmt.Sprintf("d[%d-%d]%s", lo, hi, devicePrefix)
}

// GenWorkflow synthesizes a single-request workflow row with a random
// arrival gap, duration, and regex.
func GenWorkflow(rng *rand.Rand, name string, devicePrefix string, deviceCount int, prevStart, maxGap, maxDur float64, access workflow.AccessType) Row {
	return Row{
		StartTime: prevStart + rng.Float64()*maxGap,
		Name:      name,
		ExecTime:  rng.Float64() * maxDur,
		Regex:     GenRegex(rng, devicePrefix, deviceCount),
		Access:    access,
	}
}
