// Command occam runs the discrete-event regex lock-manager simulator
// against a workload folder and writes the result files.
package main

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/occam-sim/occam/internal/config"
	"github.com/occam-sim/occam/internal/engine"
	"github.com/occam-sim/occam/internal/report"
	"github.com/occam-sim/occam/internal/resolver"
	"github.com/occam-sim/occam/internal/sanity"
	"github.com/occam-sim/occam/internal/workflow"
	"github.com/occam-sim/occam/internal/workload"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.Default()
	var verbose bool

	cmd := &cobra.Command{
		Use:           "occam",
		Short:         "Discrete-event simulator for a regex-based device lock scheduler",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			level := zerolog.InfoLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
				Level(level).With().Timestamp().Logger()
			return run(cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&cfg.RunFolder, "f", "f", cfg.RunFolder, "run folder containing devices.txt, dcs.txt, and the workload file")
	flags.Float64Var(&cfg.GapScale, "gs", cfg.GapScale, "gap-time scale applied to every workload arrival time")
	flags.Float64Var(&cfg.ExecScale, "es", cfg.ExecScale, "exec-time scale applied to every workload duration")
	flags.StringVarP(&cfg.Scheduler, "s", "s", cfg.Scheduler, fmt.Sprintf("scheduler variant, one of %v", config.Variants))
	flags.StringVarP(&cfg.OutPath, "o", "o", cfg.OutPath, "result file path")
	flags.IntVarP(&cfg.MaxWorkflows, "n", "n", cfg.MaxWorkflows, "max workflows to load from the workload file, -1 for all")
	flags.StringVarP(&cfg.LogPath, "l", "l", cfg.LogPath, "event log path (empty disables the event trace)")
	flags.Float64Var(&cfg.CacheHitRate, "cache-hit-rate", cfg.CacheHitRate, "fraction of regex resolutions retained in the warm cache")
	flags.BoolVar(&cfg.Sanity, "sanity", cfg.Sanity, "run the O(n^2) invariant checks once, after the last event (slow, off by default)")
	flags.BoolVarP(&verbose, "v", "v", false, "enable debug-level logging")

	return cmd
}

func run(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	universe, err := loadUniverse(cfg.RunFolder)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(1))
	r := resolver.New(universe, cfg.CacheHitRate, rng)
	if mapPath := filepath.Join(cfg.RunFolder, "regex_device_map"); fileExists(mapPath) {
		if err := r.LoadRegexDeviceMap(mapPath); err != nil {
			return err
		}
	}

	accessMap := workload.Default
	rows, err := loadWorkload(cfg.RunFolder, accessMap, cfg.GapScale, cfg.ExecScale, cfg.MaxWorkflows)
	if err != nil {
		return err
	}

	rec, err := report.New(cfg.LogPath, cfg.OutPath)
	if err != nil {
		return err
	}

	sched, err := engine.NewScheduler(engine.Variant(cfg.Scheduler), r, ".*", rec)
	if err != nil {
		return err
	}

	for _, row := range rows {
		wf := sched.World.NewWorkflow(row.Name)
		wf.AddRequest(workflow.Request{Regex: row.Regex, Duration: row.ExecTime, Access: row.Access})
		sched.EnqueueArrival(wf.ID, row.StartTime)
	}

	sched.Run()

	if cfg.Sanity {
		if violations := sanity.Check(sched.World); len(violations) > 0 {
			for _, v := range violations {
				log.Error().Msg(v.String())
			}
			return fmt.Errorf("sanity: %d invariant violations at end of run", len(violations))
		}
	}

	if err := rec.Finish(); err != nil {
		return err
	}

	r.LogStats()
	log.Info().Int("workflows", len(rows)).Str("scheduler", cfg.Scheduler).Msg("run complete")
	return nil
}

func loadUniverse(runFolder string) (*resolver.Universe, error) {
	devices, err := resolver.LoadDevices(filepath.Join(runFolder, "devices.txt"))
	if err != nil {
		return nil, err
	}
	dcs, err := resolver.LoadDCs(filepath.Join(runFolder, "dcs.txt"))
	if err != nil {
		return nil, err
	}
	return &resolver.Universe{Devices: devices, DCs: dcs, DeviceDC: make(map[string]string)}, nil
}

func loadWorkload(runFolder string, accessMap workload.AccessMap, gapScale, execScale float64, limit int) ([]workload.Row, error) {
	for _, name := range []string{"workload.csv", "workload.txt"} {
		path := filepath.Join(runFolder, name)
		if fileExists(path) {
			return workload.Load(path, accessMap, gapScale, execScale, limit)
		}
	}
	return nil, &workload.ConfigError{Path: runFolder, Err: fmt.Errorf("no workload.csv or workload.txt found")}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
