package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/richardlevinson/dshield-planner/satstate"
)

// cmdName strips a command's parameter suffix ("RAW.100,101" -> "RAW"),
// matching fileUtil's `cmd, params = choice.split(".")`.
func cmdName(cmd string) string {
	if i := strings.Index(cmd, "."); i >= 0 {
		return cmd[:i]
	}
	return cmd
}

// WriteBestPlanDetails writes the per-second command listing terminated by
// the "Downlinked Targets (<k>/<n>)" trailer, per spec §6. Grounded on
// fileUtil.writeBestPlanFile(verbose=True).
func WriteBestPlanDetails(w io.Writer, satID string, score float64, plan []satstate.PlanStep, images []satstate.Image) error {
	if _, err := fmt.Fprintf(w, "Best Plan Score: %.3f\n\n", score); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Satellite.TP:   command\n-------------   -------\n"); err != nil {
		return err
	}
	for _, step := range plan {
		label := fmt.Sprintf("%s.%d:", step.Var.SatID, step.Var.Second)
		if _, err := fmt.Fprintf(w, "%-16s%s\n", label, step.Cmd); err != nil {
			return err
		}
	}
	if err := writeDownlinkedTrailer(w, images); err != nil {
		return err
	}
	gps := observedGpList(images)
	_, err := fmt.Fprintf(w, "\nGP targets (%d):\n%v\n", len(gps), gps)
	return err
}

// WriteBestPlanSummary writes run-coalesced command intervals: consecutive
// plan steps with the same command name (RAW/DNL/IDL, parameters ignored)
// collapse into one "<start> - <end>: <cmd> (<duration>)" line. Grounded on
// fileUtil.writeBestPlanFile(verbose=False).
func WriteBestPlanSummary(w io.Writer, satID string, score float64, plan []satstate.PlanStep, images []satstate.Image) error {
	if _, err := fmt.Fprintf(w, "Best Plan Score: %.3f\n\n", score); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "      Time slot:   command    (duration)\n  --------------   -------    ----------\n"); err != nil {
		return err
	}
	if len(plan) == 0 {
		return writeDownlinkedTrailer(w, images)
	}

	runStart := plan[0].Var.Second
	runCmd := cmdName(plan[0].Cmd)
	prevSecond := runStart
	for i := 1; i < len(plan); i++ {
		second := plan[i].Var.Second
		cmd := cmdName(plan[i].Cmd)
		if cmd != runCmd {
			if err := writeInterval(w, runStart, prevSecond, runCmd); err != nil {
				return err
			}
			runStart = second
			runCmd = cmd
		}
		prevSecond = second
	}
	if err := writeInterval(w, runStart, prevSecond, runCmd); err != nil {
		return err
	}
	return writeDownlinkedTrailer(w, images)
}

func writeInterval(w io.Writer, start, end int, cmd string) error {
	duration := end - start + 1
	unit := fmt.Sprintf("%d s", duration)
	if duration >= 60 {
		unit = fmt.Sprintf("%.2f m", float64(duration)/60)
	}
	_, err := fmt.Fprintf(w, "%6d - %6d:     %-6s   (%s)\n", start, end, cmd, unit)
	return err
}

func writeDownlinkedTrailer(w io.Writer, images []satstate.Image) error {
	observed := map[int]struct{}{}
	type downlinked struct {
		id  int
		pct float64
	}
	var downlinks []downlinked
	for _, img := range images {
		for _, gp := range img.Targets {
			observed[gp] = struct{}{}
		}
		if img.DownlinkPct > 0 {
			downlinks = append(downlinks, downlinked{img.ID, round3(img.DownlinkPct)})
		}
	}
	if _, err := fmt.Fprintf(w, "\n\nDownlinked Targets (%d/%d)\n", len(downlinks), len(observed)); err != nil {
		return err
	}
	parts := make([]string, len(downlinks))
	for i, d := range downlinks {
		parts[i] = fmt.Sprintf("(%d, %g)", d.id, d.pct)
	}
	_, err := fmt.Fprintf(w, "[%s]\n", strings.Join(parts, ", "))
	return err
}

func round3(x float64) float64 {
	return float64(int(x*1000+0.5)) / 1000
}

// observedGpList returns the sorted distinct ground points observed across
// images, for the verbose details file's trailing "GP targets" listing.
func observedGpList(images []satstate.Image) []int {
	seen := map[int]struct{}{}
	for _, img := range images {
		for _, gp := range img.Targets {
			seen[gp] = struct{}{}
		}
	}
	gps := make([]int, 0, len(seen))
	for gp := range seen {
		gps = append(gps, gp)
	}
	sort.Ints(gps)
	return gps
}
