// Package report writes the output files spec §6 names: plan-variable
// listings, best-plan summaries/details, the verification re-simulation
// trace, and per-satellite image logs. Grounded on
// _examples/original_source/fileUtil.py's writePlanVarFile/
// writeBestPlanFile/writeImageInfo, translated from Python f-string
// formatting into fmt.Fprintf writers over an io.Writer (so callers choose
// os.Create vs. a buffer in tests) rather than fileUtil's hard-coded
// os.path joins.
package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/richardlevinson/dshield-planner/planmodel"
)

// WritePlanVars writes one line per variable and its domain. filtered
// selects which of the builder's two variable sets to list: the active,
// post-pruning set (planVars.filtered.txt in fileUtil's naming) or the
// full set including single-choice variables pruned before search
// (planVars.txt).
func WritePlanVars(w io.Writer, build *planmodel.BuildResult, filtered bool) error {
	type entry struct {
		v      planmodel.Variable
		domain planmodel.Domain
	}
	var entries []entry
	if filtered {
		for _, v := range build.Active {
			entries = append(entries, entry{v, build.Domains[v]})
		}
	} else {
		for v, d := range build.Full {
			entries = append(entries, entry{v, d})
		}
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].v.Second != entries[j].v.Second {
				return entries[i].v.Second < entries[j].v.Second
			}
			return entries[i].v.SatID < entries[j].v.SatID
		})
	}

	if _, err := fmt.Fprintf(w, "Var count: %d\n\n", len(entries)); err != nil {
		return err
	}
	for _, e := range entries {
		if _, err := fmt.Fprintf(w, "%s.%d: %v\n", e.v.SatID, e.v.Second, []string(e.domain)); err != nil {
			return err
		}
	}
	return nil
}
