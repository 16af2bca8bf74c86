// Package resolver loads the bounded universe of devices and
// datacenters a run operates over (devices.txt, dcs.txt, and an
// optional precomputed regex-to-device map) and turns workflow
// regexes into regexset.Sets against that universe.
package resolver

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/occam-sim/occam/internal/regexset"
)

// DefaultCacheHitRate is the fraction of regex resolutions assumed
// cheap enough to have been served from a warm cache, versus a cold
// resolve.
const DefaultCacheHitRate = 0.95

// Universe is the bounded, concrete set of devices and datacenters a
// run operates over.
type Universe struct {
	Devices  []string
	DCs      []string
	DeviceDC map[string]string // device name -> owning datacenter
}

// LoadDevices reads a newline-delimited device list.
func LoadDevices(path string) ([]string, error) {
	return loadLines(path)
}

// LoadDCs reads a newline-delimited datacenter list.
func LoadDCs(path string) ([]string, error) {
	return loadLines(path)
}

func loadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("resolver: open %s: %w", path, err)
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("resolver: read %s: %w", path, err)
	}
	sort.Strings(out)
	return out, nil
}

// DCOf reports which datacenter owns device: an explicit DeviceDC
// entry when one was loaded, otherwise the longest DC name embedded in
// the device's own name, per the fleet's device naming convention.
func (u *Universe) DCOf(device string) (string, bool) {
	if dc, ok := u.DeviceDC[device]; ok {
		return dc, true
	}
	best := ""
	for _, dc := range u.DCs {
		if strings.Contains(device, dc) && len(dc) > len(best) {
			best = dc
		}
	}
	if best == "" {
		return "", false
	}
	return best, true
}

// Resolver turns regex strings into regexset.Sets, memoizing results
// at a configurable target hit rate so runs can model a partially
// warm cache.
type Resolver struct {
	universe     *Universe
	devCache     map[string]*regexset.Set
	dcCache      map[string]*regexset.Set
	cacheHitRate float64
	rng          *rand.Rand
	hits, misses int
}

// New builds a Resolver over universe with the given cache hit rate in
// [0, 1]. Pass a seeded rng for reproducible runs.
func New(universe *Universe, cacheHitRate float64, rng *rand.Rand) *Resolver {
	return &Resolver{
		universe:     universe,
		devCache:     make(map[string]*regexset.Set),
		dcCache:      make(map[string]*regexset.Set),
		cacheHitRate: cacheHitRate,
		rng:          rng,
	}
}

// Universe returns the resolver's backing device/datacenter universe.
func (r *Resolver) Universe() *Universe { return r.universe }

// ResolveDevices returns the regexset.Set of devices matched by regex,
// reusing any warm cache entry before recompiling.
func (r *Resolver) ResolveDevices(regex string) (*regexset.Set, error) {
	if set, ok := r.devCache[regex]; ok {
		r.hits++
		return set, nil
	}
	r.misses++
	set, err := regexset.CompileAndMatch(regex, r.universe.Devices)
	if err != nil {
		return nil, err
	}
	r.maybeRetain(r.devCache, regex, set)
	return set, nil
}

// ResolveDCs returns the regexset.Set of datacenters covered by regex:
// the owners of every device the regex matches, projected through
// DCOf. A workload regex names devices, so the per-datacenter lock
// granularity coarsens the matched device set rather than re-matching
// the regex against datacenter names.
func (r *Resolver) ResolveDCs(regex string) (*regexset.Set, error) {
	if set, ok := r.dcCache[regex]; ok {
		r.hits++
		return set, nil
	}
	r.misses++
	devs, err := r.ResolveDevices(regex)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var dcs []string
	for _, d := range devs.Devices() {
		if dc, ok := r.universe.DCOf(d); ok && !seen[dc] {
			seen[dc] = true
			dcs = append(dcs, dc)
		}
	}
	sort.Strings(dcs)
	set := regexset.New(regex, dcs)
	r.maybeRetain(r.dcCache, regex, set)
	return set, nil
}

func (r *Resolver) maybeRetain(cache map[string]*regexset.Set, regex string, set *regexset.Set) {
	if r.rng.Float64() < r.cacheHitRate {
		cache[regex] = set
	}
}

// Stats reports the cache hit/miss counts accumulated so far, useful
// for sanity-checking that a run's subsampled hit rate tracks the
// configured target.
func (r *Resolver) Stats() (hits, misses int) { return r.hits, r.misses }

// LogStats emits the resolver's cache hit rate at debug level.
func (r *Resolver) LogStats() {
	total := r.hits + r.misses
	if total == 0 {
		return
	}
	log.Debug().
		Int("hits", r.hits).
		Int("misses", r.misses).
		Float64("rate", float64(r.hits)/float64(total)).
		Msg("resolver cache stats")
}
