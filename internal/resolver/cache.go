// Implements the on-disk cache formats: the ampersand-separated
// regex_device_map, plus the cache-hit-rate subsample applied as rows
// are primed. Priming goes through the same Bernoulli retention as
// cold resolves, so a configured hit rate below 1.0 leaves a matching
// fraction of the precomputed map cold.
package resolver

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/occam-sim/occam/internal/regexset"
)

// PrimeDevices seeds the device cache for regex with a precomputed
// device list: a later ResolveDevices(regex) call returns this Set
// without a linear scan. Subsampled by the Resolver's configured
// cache hit rate.
func (r *Resolver) PrimeDevices(regex string, devices []string) {
	sorted := append([]string(nil), devices...)
	sort.Strings(sorted)
	r.maybeRetain(r.devCache, regex, regexset.New(regex, sorted))
}

// PrimeDCs is PrimeDevices' counterpart for the datacenter cache.
func (r *Resolver) PrimeDCs(regex string, dcs []string) {
	sorted := append([]string(nil), dcs...)
	sort.Strings(sorted)
	r.maybeRetain(r.dcCache, regex, regexset.New(regex, sorted))
}

// LoadRegexDeviceMap reads the `regex & [device,...]` map format and
// primes the Resolver's device and datacenter caches with every row.
// Rows whose list literal fails to parse are reported as an error
// naming the offending line.
func (r *Resolver) LoadRegexDeviceMap(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("resolver: open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		regex, devices, err := parseRegexDeviceMapLine(line)
		if err != nil {
			return fmt.Errorf("resolver: %s:%d: %w", path, lineNo, err)
		}
		r.PrimeDevices(regex, devices)
		seen := make(map[string]bool)
		var dcs []string
		for _, d := range devices {
			if dc, ok := r.universe.DCOf(d); ok && !seen[dc] {
				seen[dc] = true
				dcs = append(dcs, dc)
			}
		}
		r.PrimeDCs(regex, dcs)
	}
	return scanner.Err()
}

func parseRegexDeviceMapLine(line string) (regex string, devices []string, err error) {
	idx := strings.LastIndex(line, "&")
	if idx < 0 {
		return "", nil, fmt.Errorf("missing '&' separator")
	}
	regex = strings.TrimSpace(line[:idx])
	listLiteral := strings.TrimSpace(line[idx+1:])
	devices, err = parseListLiteral(listLiteral)
	if err != nil {
		return "", nil, err
	}
	return regex, devices, nil
}

// parseListLiteral parses a Python-style list literal of bare or
// quoted identifiers, e.g. `[d0dc1, d1dc1]` or `['d0dc1', 'd1dc1']`,
// the format both regex_device_map and the CSV workload's device_list
// column use.
func parseListLiteral(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil, fmt.Errorf("not a list literal: %q", s)
	}
	inner := strings.TrimSpace(s[1 : len(s)-1])
	if inner == "" {
		return nil, nil
	}
	parts := strings.Split(inner, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if unquoted, err := strconv.Unquote(strings.Replace(p, "'", `"`, -1)); err == nil {
			p = unquoted
		}
		p = strings.Trim(p, `'"`)
		if p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}
