// Package rollout drives one full rollout: it walks every active plan
// variable in chronological order, asks a policy to choose a command,
// applies it to satellite state, and propagates the resulting
// constraints into the remaining variables' domains. Grounded on
// reinforcement/learning.go's per-episode agent loop, re-specialized to
// the plan-variable domain.
package rollout

import (
	"fmt"

	"github.com/richardlevinson/dshield-planner/planerrors"
	"github.com/richardlevinson/dshield-planner/planmodel"
	"github.com/richardlevinson/dshield-planner/satstate"
)

// Policy chooses the command to execute for variable v out of choices,
// given the live state of v's satellite. Implemented by the MCTS
// engine's stage machine.
type Policy interface {
	ChooseValue(v planmodel.Variable, choices planmodel.Domain, state *satstate.State) (string, error)
}

// SatelliteConfig bundles a satellite's static storage/power parameters
// and its read-only eclipse predicate.
type SatelliteConfig struct {
	Storage satstate.StorageParams
	Power   satstate.EnergyParams
	Eclipse satstate.EclipseFunc
}

// Violation records a DomainInvariantViolation surfaced during a rollout:
// a propagation step collapsed a domain to a non-IDL singleton.
type Violation struct {
	Variable planmodel.Variable
	Domain   planmodel.Domain
}

// Result is the outcome of one rollout.
type Result struct {
	States     map[string]*satstate.State
	Objective  float64
	Violations []Violation
}

// Simulator holds the immutable plan-variable scaffolding (built once at
// startup) and the static per-satellite configuration. Run is safe to
// call repeatedly and concurrently from different goroutines, each call
// operating on its own freshly-cloned mutable copy of domains/active
// set/GpIndex.
type Simulator struct {
	build      *planmodel.BuildResult
	satellites map[string]SatelliteConfig

	// satOrder is the chronological subsequence of build.Active belonging
	// to each satellite, and varIndex maps a variable to its position
	// within its satellite's subsequence. Both are immutable once built.
	satOrder map[string][]planmodel.Variable
	varIndex map[planmodel.Variable]int
}

// New constructs a Simulator from the plan-variable builder's output and
// per-satellite configuration.
func New(build *planmodel.BuildResult, satellites map[string]SatelliteConfig) *Simulator {
	sim := &Simulator{
		build:      build,
		satellites: satellites,
		satOrder:   make(map[string][]planmodel.Variable),
		varIndex:   make(map[planmodel.Variable]int),
	}
	for _, v := range build.Active {
		sim.satOrder[v.SatID] = append(sim.satOrder[v.SatID], v)
		sim.varIndex[v] = len(sim.satOrder[v.SatID]) - 1
	}
	return sim
}

// Run drives one full rollout against policy, returning each satellite's
// final state and the combined objective.
func (sim *Simulator) Run(policy Policy, value satstate.ValueFunc) (*Result, error) {
	domains := make(map[planmodel.Variable]planmodel.Domain, len(sim.build.Domains))
	for v, d := range sim.build.Domains {
		domains[v] = d.Clone()
	}
	active := make(map[planmodel.Variable]bool, len(sim.build.Active))
	for _, v := range sim.build.Active {
		active[v] = true
	}
	gpIndex := cloneGpIndex(sim.build.GpIndex)

	states := make(map[string]*satstate.State, len(sim.satellites))
	for satID, cfg := range sim.satellites {
		states[satID] = satstate.New(satID, cfg.Storage, cfg.Power, sim.build.HorizonStart, cfg.Eclipse, value)
	}

	result := &Result{States: states}

	// Pre-rollout pass: storage starts empty for every satellite, so only
	// the DNL-empty narrowing (rule 2) can fire, run once up front.
	for satID := range sim.satellites {
		sim.stripUntilOpposite(domains, active, satID, -1, planmodel.IsDnl, planmodel.IsRaw, result)
	}

	for _, v := range sim.build.Active {
		if !active[v] {
			continue
		}
		state := states[v.SatID]
		if state == nil {
			return nil, fmt.Errorf("rollout: no satellite config registered for %s: %w", v.SatID, planerrors.ErrInputMissing)
		}

		choices, err := forceDownlinkIfStorageNotEmpty(state, domains[v])
		if err != nil {
			return nil, err
		}
		domains[v] = choices

		cmd, err := policy.ChooseValue(v, choices, state)
		if err != nil {
			return nil, fmt.Errorf("rollout: policy.ChooseValue at %s: %w", v, err)
		}

		if err := state.Update(v, cmd); err != nil {
			return nil, err
		}

		sim.propagateChoice(v, cmd, state, domains, active, gpIndex, result)
	}

	objective := 0.0
	for _, s := range states {
		objective += s.Objective()
	}
	result.Objective = objective

	return result, nil
}

func cloneGpIndex(src planmodel.GpIndex) planmodel.GpIndex {
	out := make(planmodel.GpIndex, len(src))
	for gp, vars := range src {
		cp := make([]planmodel.Variable, len(vars))
		copy(cp, vars)
		out[gp] = cp
	}
	return out
}

// forceDownlinkIfStorageNotEmpty removes IDL from choices when the
// satellite's storage is non-empty and a DNL choice is available,
// per spec §4.2. Callers must only invoke this on active (non-gap)
// variables, which always carry IDL until this point.
func forceDownlinkIfStorageNotEmpty(state *satstate.State, choices planmodel.Domain) (planmodel.Domain, error) {
	if state.StorageUsed <= 0 {
		return choices, nil
	}
	hasDnl := false
	for _, c := range choices {
		if planmodel.IsDnl(c) {
			hasDnl = true
			break
		}
	}
	if !hasDnl {
		return choices, nil
	}
	if !choices.Has(planmodel.CmdIdle) {
		return nil, fmt.Errorf("rollout: forceDownlinkIfStorageNotEmpty: IDL missing from domain %v before removal: %w", choices, planerrors.ErrDomainInvariantViolation)
	}
	return choices.Without(planmodel.CmdIdle), nil
}

// propagateChoice narrows the remaining active variables' domains after
// cmd has been applied at v, per spec §4.2's three narrowing actions.
func (sim *Simulator) propagateChoice(
	v planmodel.Variable,
	cmd string,
	state *satstate.State,
	domains map[planmodel.Variable]planmodel.Domain,
	active map[planmodel.Variable]bool,
	gpIndex planmodel.GpIndex,
	result *Result,
) {
	idx := sim.varIndex[v]

	switch {
	case planmodel.IsRaw(cmd) && state.StorageUsed >= sim.satellites[v.SatID].Storage.Capacity:
		sim.stripUntilOpposite(domains, active, v.SatID, idx, planmodel.IsRaw, planmodel.IsDnl, result)

	case planmodel.IsDnl(cmd) && state.StorageUsed <= 0:
		sim.stripUntilOpposite(domains, active, v.SatID, idx, planmodel.IsDnl, planmodel.IsRaw, result)
	}

	if planmodel.IsRaw(cmd) {
		gps, err := planmodel.RawGps(cmd)
		if err != nil {
			// Already validated by satstate.Update; unreachable in
			// practice, but propagation must not panic on it.
			return
		}
		for _, gp := range gps {
			sim.stripObservedGp(gp, v, domains, active, gpIndex, result)
		}
	}
}

// stripUntilOpposite walks the satellite's remaining variables (strictly
// after fromIdx in chronological order), removing every choice matching
// stripTarget from each still-active variable's domain, stopping at — and
// including — the first variable whose domain offers a choice matching
// isOpposite. This implements both rule 1 (storage full: strip RAW until
// first DNL) and rule 2 (storage empty: strip DNL until first RAW), as
// well as the pre-rollout pass (fromIdx == -1).
func (sim *Simulator) stripUntilOpposite(
	domains map[planmodel.Variable]planmodel.Domain,
	active map[planmodel.Variable]bool,
	satID string,
	fromIdx int,
	stripTarget func(string) bool,
	isOpposite func(string) bool,
	result *Result,
) {
	order := sim.satOrder[satID]
	for i := fromIdx + 1; i < len(order); i++ {
		w := order[i]
		if !active[w] {
			continue
		}
		d := domains[w]

		hasOpposite := false
		stripped := make(planmodel.Domain, 0, len(d))
		for _, c := range d {
			if isOpposite(c) {
				hasOpposite = true
			}
			if stripTarget(c) {
				continue
			}
			stripped = append(stripped, c)
		}
		domains[w] = stripped
		collapseCheck(w, stripped, active, result)

		if hasOpposite {
			break
		}
	}
}

// stripObservedGp removes gp from every other active variable's RAW
// parameter list, per propagateChoice rule 3. Reimplemented as a parsed
// integer-list operation throughout (never substring replacement), per
// the fix to the stripObservedGps bug flagged in spec §9.
func (sim *Simulator) stripObservedGp(
	gp int,
	v planmodel.Variable,
	domains map[planmodel.Variable]planmodel.Domain,
	active map[planmodel.Variable]bool,
	gpIndex planmodel.GpIndex,
	result *Result,
) {
	covering := gpIndex[gp]
	for _, w := range covering {
		if w == v || !active[w] {
			continue
		}
		d := domains[w]

		rawCmd, rawIdx := findRaw(d)
		if rawCmd == "" {
			continue
		}
		gps, err := planmodel.RawGps(rawCmd)
		if err != nil {
			continue
		}
		remaining := removeInt(gps, gp)

		var newDomain planmodel.Domain
		if len(remaining) == 0 {
			newDomain = append(append(planmodel.Domain{}, d[:rawIdx]...), d[rawIdx+1:]...)
		} else {
			newDomain = d.Clone()
			newDomain[rawIdx] = planmodel.BuildRawCmd(remaining)
		}
		domains[w] = newDomain
		collapseCheck(w, newDomain, active, result)
	}
	gpIndex[gp] = nil
}

func collapseCheck(v planmodel.Variable, domain planmodel.Domain, active map[planmodel.Variable]bool, result *Result) {
	if len(domain) != 1 {
		return
	}
	if domain[0] == planmodel.CmdIdle {
		delete(active, v)
		return
	}
	result.Violations = append(result.Violations, Violation{Variable: v, Domain: domain.Clone()})
}

func findRaw(d planmodel.Domain) (cmd string, idx int) {
	for i, c := range d {
		if planmodel.IsRaw(c) {
			return c, i
		}
	}
	return "", -1
}

func removeInt(xs []int, target int) []int {
	out := make([]int, 0, len(xs))
	for _, x := range xs {
		if x != target {
			out = append(out, x)
		}
	}
	return out
}
