// Package config holds the plain struct populated directly from the
// CLI flags. There is no file-based configuration layer: the flag
// surface below is the simulator's entire configuration surface.
package config

import "fmt"

// Config is every CLI flag, after defaulting and validation.
type Config struct {
	RunFolder    string  // -f
	GapScale     float64 // -gs
	ExecScale    float64 // -es
	Scheduler    string  // -s
	OutPath      string  // -o
	MaxWorkflows int     // -n, -1 means unlimited
	LogPath      string  // -l

	// CacheHitRate tunes the resolver's warm-cache subsampling; Sanity
	// enables the slow invariant checks. Both are flags on the same
	// command rather than a config file.
	CacheHitRate float64
	Sanity       bool
}

// Variants are the six named scheduler choices -s accepts; kept here
// rather than importing internal/engine so config has no dependency on
// the engine it configures.
var Variants = []string{"dc_fifo", "dev_fifo", "dc_depset", "dev_depset", "occam_depset", "occam_fifo"}

// Default returns the documented flag defaults.
func Default() Config {
	return Config{
		RunFolder:    "lessdc",
		GapScale:     1.0,
		ExecScale:    1.0,
		Scheduler:    "occam_depset",
		OutPath:      "occam_depset.txt",
		MaxWorkflows: 1000,
		CacheHitRate: 0.95,
	}
}

// Error reports a bad CLI flag value or a missing input.
type Error struct {
	Field string
	Err   error
}

func (e *Error) Error() string { return fmt.Sprintf("config: %s: %v", e.Field, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Validate reports a *Error if any flag value is out of range or
// names an unknown scheduler variant.
func (c Config) Validate() error {
	if c.RunFolder == "" {
		return &Error{Field: "-f", Err: fmt.Errorf("run folder must not be empty")}
	}
	if c.OutPath == "" {
		return &Error{Field: "-o", Err: fmt.Errorf("result path must not be empty")}
	}
	if c.MaxWorkflows < -1 {
		return &Error{Field: "-n", Err: fmt.Errorf("must be -1 (unlimited) or >= 0, got %d", c.MaxWorkflows)}
	}
	if c.GapScale < 0 {
		return &Error{Field: "-gs", Err: fmt.Errorf("must be >= 0, got %g", c.GapScale)}
	}
	if c.ExecScale < 0 {
		return &Error{Field: "-es", Err: fmt.Errorf("must be >= 0, got %g", c.ExecScale)}
	}
	if c.CacheHitRate < 0 || c.CacheHitRate > 1 {
		return &Error{Field: "-cache-hit-rate", Err: fmt.Errorf("must be within [0, 1], got %g", c.CacheHitRate)}
	}
	if !validVariant(c.Scheduler) {
		return &Error{Field: "-s", Err: fmt.Errorf("unknown scheduler %q, want one of %v", c.Scheduler, Variants)}
	}
	return nil
}

func validVariant(s string) bool {
	for _, v := range Variants {
		if v == s {
			return true
		}
	}
	return false
}
