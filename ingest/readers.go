// Package ingest reads the external, read-only-after-startup tables spec
// §6 calls out as out of scope for the core: access windows, ground-contact
// windows, eclipse sets, target values, and the power config file.
// Grounded on _examples/original_source/fileUtil.py's
// readSatChoiceFile/readEclipseFileForSat/readTargetValues/
// readPowerConfigFile; line-oriented formats are read with bufio.Scanner,
// matching the teacher's preference for the standard library where no
// pack dependency already covers a concern (no example repo parses
// line-oriented telemetry files, so there is no ecosystem idiom to defer
// to here).
package ingest

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/richardlevinson/dshield-planner/planerrors"
	"github.com/richardlevinson/dshield-planner/planmodel"
)

// ReadAccessWindows parses a per-satellite access-window file: an opaque
// four-line header followed by "<second> <sourceId> <gpCsv>" lines. Seconds
// absent from the file are left out of the returned map entirely; the
// builder treats any second without an entry as a gap, so no explicit
// "--- GAP ---" synthesis is needed here (spec §5's gap-aware ingestion
// falls out of planmodel.Builder's own missing-second handling).
func ReadAccessWindows(path string) (map[int]planmodel.SecondInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: access window file: %w: %w", planerrors.ErrInputMissing, err)
	}
	defer f.Close()

	seconds := make(map[int]planmodel.SecondInput)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo <= 4 {
			continue // opaque header
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, fmt.Errorf("ingest: %s:%d: %w: expected 3 fields, got %d", path, lineNo, planerrors.ErrConstraintBreach, len(fields))
		}
		second, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("ingest: %s:%d: %w", path, lineNo, err)
		}
		sourceID := fields[1]
		gps, err := parseIntCSV(fields[2])
		if err != nil {
			return nil, fmt.Errorf("ingest: %s:%d: %w", path, lineNo, err)
		}

		entry, ok := seconds[second]
		if !ok {
			entry = planmodel.SecondInput{Kind: planmodel.KindAccess, AccessGps: map[string][]int{}}
		}
		entry.AccessGps[sourceID] = append(entry.AccessGps[sourceID], gps...)
		seconds[second] = entry
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ingest: %s: %w", path, err)
	}
	return seconds, nil
}

// GroundContactWindow is one inclusive [Start,End] contact interval with a
// ground station, as read from one ground-contact file.
type GroundContactWindow struct {
	GsID       string
	Start, End int
}

// ReadGroundContacts parses a ground-contact file: a header whose first
// line ends with the ground-station id, then "<startSec>,<endSec>" lines.
func ReadGroundContacts(path string) (*GroundContactWindow, []GroundContactWindow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("ingest: ground contact file: %w: %w", planerrors.ErrInputMissing, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var gsID string
	var windows []GroundContactWindow
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if lineNo == 1 {
			fields := strings.Fields(line)
			if len(fields) == 0 {
				return nil, nil, fmt.Errorf("ingest: %s:1: %w: empty header", path, planerrors.ErrInputAmbiguous)
			}
			gsID = fields[len(fields)-1]
			continue
		}
		if line == "" || !strings.Contains(line, ",") {
			continue // remaining header lines
		}
		parts := strings.SplitN(line, ",", 2)
		start, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, nil, fmt.Errorf("ingest: %s:%d: %w", path, lineNo, err)
		}
		end, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, nil, fmt.Errorf("ingest: %s:%d: %w", path, lineNo, err)
		}
		windows = append(windows, GroundContactWindow{GsID: gsID, Start: start, End: end})
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("ingest: %s: %w", path, err)
	}
	if gsID == "" {
		return nil, nil, fmt.Errorf("ingest: %s: %w: no ground station id in header", path, planerrors.ErrInputAmbiguous)
	}
	return &GroundContactWindow{GsID: gsID}, windows, nil
}

// ApplyGroundContacts marks every second within each window's inclusive
// range as KindDownlink in seconds, per spec §6 ("each inclusive second in
// [start,end] becomes a DNL variable"). A second already claimed by an
// access window is NOT overwritten; ground contact only fills seconds the
// access-window reader left open, since a satellite cannot simultaneously
// be mid-observation and mid-downlink in one plan variable.
func ApplyGroundContacts(seconds map[int]planmodel.SecondInput, windows []GroundContactWindow) {
	for _, w := range windows {
		for s := w.Start; s <= w.End; s++ {
			if _, taken := seconds[s]; taken {
				continue
			}
			seconds[s] = planmodel.SecondInput{Kind: planmodel.KindDownlink, GsID: w.GsID}
		}
	}
}

// EclipseSet is the set of ticks during which a satellite is in eclipse,
// read from a per-satellite eclipse file (header line beginning with
// "start", then inclusive "<start>,<end>" ranges).
type EclipseSet map[int]struct{}

// Contains reports whether t falls in an eclipse range, satisfying
// satstate.EclipseFunc's signature via the Func method below.
func (e EclipseSet) Contains(t int) bool {
	_, in := e[t]
	return in
}

// Func adapts the set to satstate.EclipseFunc.
func (e EclipseSet) Func() func(int) bool {
	return e.Contains
}

// ReadEclipses parses an eclipse file into an EclipseSet.
func ReadEclipses(path string) (EclipseSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: eclipse file: %w: %w", planerrors.ErrInputMissing, err)
	}
	defer f.Close()

	set := make(EclipseSet)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if lineNo == 1 {
			if !strings.HasPrefix(line, "start") {
				return nil, fmt.Errorf("ingest: %s:1: %w: expected header starting with \"start\"", path, planerrors.ErrInputAmbiguous)
			}
			continue
		}
		parts := strings.SplitN(line, ",", 2)
		if len(parts) != 2 {
			continue
		}
		start, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, fmt.Errorf("ingest: %s:%d: %w", path, lineNo, err)
		}
		end, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("ingest: %s:%d: %w", path, lineNo, err)
		}
		for t := start; t <= end; t++ {
			set[t] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ingest: %s: %w", path, err)
	}
	return set, nil
}

// ReadTargetValues parses the target-value file: header line skipped, then
// "<gpId>,<floatValue>" lines.
func ReadTargetValues(path string) (map[int]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: target value file: %w: %w", planerrors.ErrInputMissing, err)
	}
	defer f.Close()

	values := make(map[int]float64)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo == 1 {
			continue // header
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ",", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("ingest: %s:%d: %w: expected \"gp,value\"", path, lineNo, planerrors.ErrConstraintBreach)
		}
		gp, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, fmt.Errorf("ingest: %s:%d: %w", path, lineNo, err)
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("ingest: %s:%d: %w", path, lineNo, err)
		}
		values[gp] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ingest: %s: %w", path, err)
	}
	return values, nil
}

func parseIntCSV(csv string) ([]int, error) {
	fields := strings.Split(csv, ",")
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("parsing gp list %q: %w", csv, err)
		}
		out = append(out, n)
	}
	return out, nil
}
