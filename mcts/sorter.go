package mcts

import (
	"sort"

	"github.com/richardlevinson/dshield-planner/planmodel"
	"github.com/richardlevinson/dshield-planner/satstate"
)

// Sorter ranks a variable's remaining choices best-first for a given
// satellite's current state. Per Design Note 9, the sorter is a
// capability distinct from the engine's random-vs-heuristic probability
// knob: a Sorter never decides whether to use its own ranking, it only
// produces one when asked.
type Sorter interface {
	Rank(v planmodel.Variable, choices planmodel.Domain, state *satstate.State) planmodel.Domain
}

// GreedySorter implements the "aggregate gp score" heuristic of spec
// §4.3: RAW commands score by the summed half-value of their
// not-yet-observed ground points; DNL scores by half the current
// downlink image's value times its current progress; IDL scores zero.
type GreedySorter struct {
	ValueOf satstate.ValueFunc
}

// Rank returns choices sorted by descending aggregate gp score.
func (g GreedySorter) Rank(v planmodel.Variable, choices planmodel.Domain, state *satstate.State) planmodel.Domain {
	var observed map[int]struct{}
	if state != nil {
		observed = state.ObservedGps()
	}
	scores := make(map[string]float64, len(choices))

	for _, c := range choices {
		switch {
		case planmodel.IsRaw(c):
			gps, err := planmodel.RawGps(c)
			if err != nil {
				scores[c] = 0
				continue
			}
			score := 0.0
			for _, gp := range gps {
				if _, seen := observed[gp]; !seen {
					score += g.valueOf(gp) / 2
				}
			}
			scores[c] = score

		case planmodel.IsDnl(c):
			if state == nil {
				scores[c] = 0
				continue
			}
			img := state.CurrentDownlinkImage()
			if img == nil {
				scores[c] = 0
				continue
			}
			scores[c] = (img.Value / 2) * img.DownlinkPct

		default:
			scores[c] = 0
		}
	}

	ranked := choices.Clone()
	sort.SliceStable(ranked, func(i, j int) bool {
		return scores[ranked[i]] > scores[ranked[j]]
	})
	return ranked
}

func (g GreedySorter) valueOf(gp int) float64 {
	if g.ValueOf == nil {
		return 0
	}
	return g.ValueOf(gp)
}
