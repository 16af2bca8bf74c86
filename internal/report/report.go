// Package report implements the simulator's five output files: a
// line-oriented event trace plus four per-workflow/time-series summary
// files written once the run completes. This is deliberately a
// separate, fixed-format line writer rather than the zerolog
// structured logger the rest of the engine uses for its own
// diagnostics: the trace and summary formats are a contract consumed
// by downstream analysis tooling and must not drift with the
// diagnostic stream.
package report

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/occam-sim/occam/internal/engine"
	"github.com/occam-sim/occam/internal/ids"
)

type wfRecord struct {
	name        string
	regex       string
	execTime    float64
	arrival     float64 // start
	actualStart float64
	finish      float64
	started     bool
	finished    bool
}

type series struct {
	t     float64
	count int
}

// Recorder implements engine.EventLogger, buffering the line-oriented
// `<result>.log` trace directly to disk as events are dispatched and
// accumulating the per-workflow/time-series state needed to write the
// other four files once Finish is called.
type Recorder struct {
	logPath   string
	resultOut string

	logFile *os.File
	logW    *bufio.Writer

	byWF map[ids.WorkflowID]*wfRecord

	qLen   []series
	active []series
}

// New opens `<logPath>` for the event trace (if logPath is non-empty)
// and prepares a Recorder whose Finish method writes the four
// `resultOut`-derived summary files (`resultOut`, `resultOut_sch.txt`,
// `resultOut_q_len.txt`, `resultOut_active_netobj.txt`, with a
// trailing `.txt` on resultOut, if any, stripped before the suffix is
// appended; any other extension is kept).
func New(logPath, resultOut string) (*Recorder, error) {
	r := &Recorder{
		logPath:   logPath,
		resultOut: resultOut,
		byWF:      make(map[ids.WorkflowID]*wfRecord),
	}
	if logPath != "" {
		f, err := os.Create(logPath)
		if err != nil {
			return nil, fmt.Errorf("report: create %s: %w", logPath, err)
		}
		r.logFile = f
		r.logW = bufio.NewWriter(f)
	}
	return r, nil
}

func (r *Recorder) rec(wf ids.WorkflowID) *wfRecord {
	rr, ok := r.byWF[wf]
	if !ok {
		rr = &wfRecord{}
		r.byWF[wf] = rr
	}
	return rr
}

// Record implements engine.EventLogger: it appends one line to the
// event trace per dispatched event and samples the pending-queue
// length and live-lock-object count for the time-series files.
func (r *Recorder) Record(t float64, e engine.Event, w *engine.World) {
	wf := w.Workflows[e.Workflow]
	rr := r.rec(e.Workflow)

	switch e.Kind {
	case engine.WfArrival:
		if !rr.started && rr.arrival == 0 {
			rr.arrival = t
			rr.name = wf.Name
			req := wf.CurrentRequest()
			rr.regex = req.Regex
			rr.execTime = req.Duration
		}
		r.logLine(t, "WfArrival", wf.Name, -1)
	case engine.ObjStart:
		rr.actualStart = t
		rr.started = true
		r.logLine(t, "ObjStart", wf.Name, wf.CurObj)
	case engine.ObjEnd:
		r.logLine(t, "ObjEnd", wf.Name, wf.CurObj)
	case engine.WfCompletion:
		rr.finish = t
		rr.finished = true
		r.logLine(t, "WfCompletion", wf.Name, wf.CurObj)
	}

	r.qLen = append(r.qLen, series{t: t, count: len(w.Pending)})
	r.active = append(r.active, series{t: t, count: w.ActiveNodeCount()})
}

// Deadlock implements engine.EventLogger: it appends the `Deadlock:`
// line the log trace carries on rollback, and clears the witness's
// in-flight record since its next WfArrival starts the row over.
func (r *Recorder) Deadlock(t float64, witness ids.WorkflowID, w *engine.World) {
	wf := w.Workflows[witness]
	if r.logW != nil {
		fmt.Fprintf(r.logW, "Deadlock: ev_time = %g, wf_name = %s\n", t, wf.Name)
	}
	delete(r.byWF, witness)
}

func (r *Recorder) logLine(t float64, kind, name string, objID int) {
	if r.logW == nil {
		return
	}
	if objID >= 0 {
		fmt.Fprintf(r.logW, "%s: ev_time = %g, wf_name = %s, obj_id = %d\n", kind, t, name, objID)
	} else {
		fmt.Fprintf(r.logW, "%s: ev_time = %g, wf_name = %s\n", kind, t, name)
	}
}

// Finish flushes the event trace and writes the four summary files.
// Call it once after the Scheduler's Run has drained the event heap.
func (r *Recorder) Finish() error {
	if r.logW != nil {
		if err := r.logW.Flush(); err != nil {
			return fmt.Errorf("report: flush %s: %w", r.logPath, err)
		}
		if err := r.logFile.Close(); err != nil {
			return fmt.Errorf("report: close %s: %w", r.logPath, err)
		}
	}
	if r.resultOut == "" {
		return nil
	}
	base := strings.TrimSuffix(r.resultOut, ".txt")

	if err := r.writeMain(r.resultOut); err != nil {
		return err
	}
	if err := r.writeSchedule(base + "_sch.txt"); err != nil {
		return err
	}
	if err := r.writeSeries(base+"_q_len.txt", r.qLen); err != nil {
		return err
	}
	if err := r.writeSeries(base+"_active_netobj.txt", r.active); err != nil {
		return err
	}
	return nil
}

// orderedWorkflows returns every recorded workflow sorted by arrival
// time then name, for deterministic output ordering.
func (r *Recorder) orderedWorkflows() []*wfRecord {
	out := make([]*wfRecord, 0, len(r.byWF))
	for _, rr := range r.byWF {
		out = append(out, rr)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].arrival != out[j].arrival {
			return out[i].arrival < out[j].arrival
		}
		return out[i].name < out[j].name
	})
	return out
}

// writeMain writes `<result>.txt`: one line per workflow,
// `start actual_start finish wf_name exec_time schedule_time regex`,
// where schedule_time is the wait between arrival and actual start.
func (r *Recorder) writeMain(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create %s: %w", path, err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, rr := range r.orderedWorkflows() {
		scheduleTime := rr.actualStart - rr.arrival
		fmt.Fprintf(w, "%g %g %g %s %g %g %s\n",
			rr.arrival, rr.actualStart, rr.finish, rr.name, rr.execTime, scheduleTime, rr.regex)
	}
	return w.Flush()
}

// writeSchedule writes `<result>_sch.txt`: one line per workflow,
// `wf_name schedule_time insert_time delete_time regex`, where
// insert_time/delete_time are when the workflow's node entered and
// left the lock structure (arrival and completion, respectively).
func (r *Recorder) writeSchedule(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create %s: %w", path, err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, rr := range r.orderedWorkflows() {
		scheduleTime := rr.actualStart - rr.arrival
		fmt.Fprintf(w, "%s %g %g %g %s\n", rr.name, scheduleTime, rr.arrival, rr.finish, rr.regex)
	}
	return w.Flush()
}

func (r *Recorder) writeSeries(path string, s []series) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create %s: %w", path, err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, p := range s {
		fmt.Fprintf(w, "%g %d\n", p.t, p.count)
	}
	return w.Flush()
}
