// Package planmodel defines the plan-variable domain model: the decision
// points a rollout walks, and the small vocabulary of command strings
// (RAW/DNL/IDL/gap) that populate their domains.
package planmodel

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	// CmdIdle is the fallback-of-last-resort choice for any non-gap variable.
	CmdIdle = "IDL"
	// CmdGap marks a second with neither access nor ground contact; such
	// variables are never placed in the active set.
	CmdGap = "***"

	rawPrefix = "RAW."
	dnlPrefix = "DNL."
)

// Variable is a decision point keyed by satellite and second.
type Variable struct {
	SatID  string
	Second int
}

func (v Variable) String() string {
	return fmt.Sprintf("%s@%d", v.SatID, v.Second)
}

// Domain is an ordered sequence of command choices. Order matters: it is
// the order the simulate stage's uniform sampling and heuristic sorter
// both operate over.
type Domain []string

func (d Domain) Clone() Domain {
	out := make(Domain, len(d))
	copy(out, d)
	return out
}

// Has reports whether cmd is present in the domain.
func (d Domain) Has(cmd string) bool {
	for _, c := range d {
		if c == cmd {
			return true
		}
	}
	return false
}

// Without returns a copy of d with cmd removed, preserving relative order.
func (d Domain) Without(cmd string) Domain {
	out := make(Domain, 0, len(d))
	for _, c := range d {
		if c != cmd {
			out = append(out, c)
		}
	}
	return out
}

// IsRaw reports whether cmd is a RAW.<csv> observation command.
func IsRaw(cmd string) bool { return strings.HasPrefix(cmd, rawPrefix) }

// IsDnl reports whether cmd is a DNL.<groundStation> downlink command.
func IsDnl(cmd string) bool { return strings.HasPrefix(cmd, dnlPrefix) }

// IsIdle reports whether cmd is the idle command.
func IsIdle(cmd string) bool { return cmd == CmdIdle }

// IsGap reports whether cmd is the gap sentinel.
func IsGap(cmd string) bool { return cmd == CmdGap }

// GroundStation extracts the ground-station id from a DNL command.
func GroundStation(cmd string) string {
	return strings.TrimPrefix(cmd, dnlPrefix)
}

// RawGps parses the comma-separated ground-point ids out of a RAW command.
func RawGps(cmd string) ([]int, error) {
	if !IsRaw(cmd) {
		return nil, fmt.Errorf("planmodel: %q is not a RAW command", cmd)
	}
	csv := strings.TrimPrefix(cmd, rawPrefix)
	if csv == "" {
		return nil, fmt.Errorf("planmodel: RAW command %q has an empty gp list", cmd)
	}
	parts := strings.Split(csv, ",")
	gps := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("planmodel: parsing gp in %q: %w", cmd, err)
		}
		gps = append(gps, n)
	}
	return gps, nil
}

// BuildRawCmd sorts, dedupes, and serializes gps into a RAW command string.
func BuildRawCmd(gps []int) string {
	sorted := dedupeSorted(gps)
	strs := make([]string, len(sorted))
	for i, gp := range sorted {
		strs[i] = strconv.Itoa(gp)
	}
	return rawPrefix + strings.Join(strs, ",")
}

func dedupeSorted(gps []int) []int {
	seen := make(map[int]struct{}, len(gps))
	out := make([]int, 0, len(gps))
	for _, gp := range gps {
		if _, ok := seen[gp]; ok {
			continue
		}
		seen[gp] = struct{}{}
		out = append(out, gp)
	}
	sort.Ints(out)
	return out
}
