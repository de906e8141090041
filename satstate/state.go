// Package satstate models per-satellite dynamic state: storage, energy,
// the ordered list of images and their downlink progress, and the
// executed plan prefix. One State is created per satellite per rollout
// and is exclusive to the worker driving that rollout.
package satstate

import (
	"fmt"
	"math"

	"github.com/richardlevinson/dshield-planner/planmodel"
)

// StorageParams are the static, read-only storage limits for a satellite.
type StorageParams struct {
	Capacity             float64
	CollectionRatePerSec float64
	DownlinkRatePerSec   float64
}

// EnergyParams are the static power-model constants for a satellite,
// together with the derived quantities computed once from configuration.
// Grounded on battery-backtest's BatteryParams/validated-state split.
type EnergyParams struct {
	MaxChargeAh      float64
	MinChargePct     float64
	InitialChargePct float64
	PowerIn          float64
	IdlePowerOut     float64
	SensorPowerOut   float64
	DownlinkPowerOut float64

	// Derived, per spec §4.4.
	MaxE     float64
	MinE     float64
	InitialE float64
}

// NewEnergyParams derives MaxE/MinE/InitialE from the raw power-model
// constants, per spec §4.4: maxE = maxCharge*3600, minE = maxE*minPct/100,
// initialE = maxE*initialPct/100.
func NewEnergyParams(maxChargeAh, minChargePct, initialChargePct, powerIn, idlePowerOut, sensorPowerOut, downlinkPowerOut float64) EnergyParams {
	maxE := maxChargeAh * 3600
	return EnergyParams{
		MaxChargeAh:      maxChargeAh,
		MinChargePct:     minChargePct,
		InitialChargePct: initialChargePct,
		PowerIn:          powerIn,
		IdlePowerOut:     idlePowerOut,
		SensorPowerOut:   sensorPowerOut,
		DownlinkPowerOut: downlinkPowerOut,
		MaxE:             maxE,
		MinE:             maxE * minChargePct / 100,
		InitialE:         maxE * initialChargePct / 100,
	}
}

// Image is one observed ground-image, produced by a RAW command and
// progressively downlinked by subsequent DNL commands.
type Image struct {
	ID          int
	Value       float64
	DownlinkPct float64
	Targets     []int

	Start *int
	End   *int
}

// Latency reports the tick span between observation and completed
// downlink, or ok=false if the image has not finished downlinking.
func (img Image) Latency() (latency int, ok bool) {
	if img.Start == nil || img.End == nil {
		return 0, false
	}
	return *img.End - *img.Start, true
}

// PlanStep is one executed (variable, command) pair, in execution order.
type PlanStep struct {
	Var planmodel.Variable
	Cmd string
}

// EclipseFunc reports whether a satellite is eclipsed at tick t.
type EclipseFunc func(t int) bool

// ValueFunc looks up a ground point's scalar value.
type ValueFunc func(gp int) float64

// State is one satellite's dynamic state for the duration of a single
// rollout. It is reset (via New) at the start of every rollout.
type State struct {
	SatID string

	StorageUsed float64
	Energy      float64
	Images      []Image
	Plan        []PlanStep

	storage StorageParams
	power   EnergyParams
	eclipse EclipseFunc
	value   ValueFunc

	horizonStart int
	// priorTick is the last executed tick for this satellite. Initialized
	// to horizonStart-1 rather than the source's -1 sentinel, so the
	// first energy update's (priorTick, tick] walk starts at horizonStart
	// instead of silently assuming the horizon begins at second 0.
	priorTick int

	nextImageID int
}

// New constructs a fresh satellite state at the start of a rollout.
func New(satID string, storage StorageParams, power EnergyParams, horizonStart int, eclipse EclipseFunc, value ValueFunc) *State {
	return &State{
		SatID:        satID,
		Energy:       power.InitialE,
		storage:      storage,
		power:        power,
		eclipse:      eclipse,
		value:        value,
		horizonStart: horizonStart,
		priorTick:    horizonStart - 1,
	}
}

// currentDownlinkImage returns the first image with DownlinkPct < 1, the
// sole "current downlink" image per spec §3's invariant.
func (s *State) currentDownlinkImage() *Image {
	for i := range s.Images {
		if s.Images[i].DownlinkPct < 1.0 {
			return &s.Images[i]
		}
	}
	return nil
}

// CurrentDownlinkImage exposes the current downlink image to the
// heuristic sorter, which scores a DNL choice by that image's value and
// downlink progress.
func (s *State) CurrentDownlinkImage() *Image {
	return s.currentDownlinkImage()
}

// Update applies cmd at variable v (whose second is the current tick) to
// the satellite's state: storage delta, image creation/downlink
// bookkeeping, energy update, and plan-history append. Per spec §4.2.
func (s *State) Update(v planmodel.Variable, cmd string) error {
	if v.SatID != s.SatID {
		return fmt.Errorf("satstate: variable %s does not belong to satellite %s", v, s.SatID)
	}
	tick := v.Second

	s.stepEnergy(tick, cmd)

	switch {
	case planmodel.IsRaw(cmd):
		if err := s.applyRaw(tick, cmd); err != nil {
			return err
		}
	case planmodel.IsDnl(cmd):
		s.applyDownlink(tick)
	case planmodel.IsIdle(cmd):
		// No storage effect; energy already updated above.
	default:
		return fmt.Errorf("satstate: unrecognized command %q for %s", cmd, v)
	}

	s.Plan = append(s.Plan, PlanStep{Var: v, Cmd: cmd})
	s.priorTick = tick
	return nil
}

func (s *State) applyRaw(tick int, cmd string) error {
	gps, err := planmodel.RawGps(cmd)
	if err != nil {
		return err
	}
	value := 0.0
	for _, gp := range gps {
		if s.value != nil {
			value += s.value(gp)
		}
	}
	start := tick
	s.Images = append(s.Images, Image{
		ID:      s.nextImageID,
		Value:   value,
		Targets: gps,
		Start:   &start,
	})
	s.nextImageID++

	s.StorageUsed = math.Min(s.StorageUsed+s.storage.CollectionRatePerSec, s.storage.Capacity)
	return nil
}

// applyDownlink advances the current image's downlink percentage by the
// tick's downlink rate, expressed in image-size units (one image's
// storage footprint is one CollectionRatePerSec's worth of bits). If the
// tick's downlink rate exceeds what's left of the current image, the
// remainder rolls into as many subsequent images as it spans, rather than
// being dropped into a single next-image and silently lost (the overflow
// bug spec.md flags in updateDownlinkedImagePct).
func (s *State) applyDownlink(tick int) {
	remainingUnits := s.storage.DownlinkRatePerSec
	imageUnit := s.storage.CollectionRatePerSec

	for remainingUnits > 0 {
		img := s.currentDownlinkImage()
		if img == nil {
			break
		}
		neededUnits := (1.0 - img.DownlinkPct) * imageUnit
		if remainingUnits >= neededUnits {
			img.DownlinkPct = 1.0
			end := tick
			img.End = &end
			remainingUnits -= neededUnits
		} else {
			img.DownlinkPct += remainingUnits / imageUnit
			remainingUnits = 0
		}
	}

	s.StorageUsed = math.Max(s.StorageUsed-s.storage.DownlinkRatePerSec, 0)
}

// stepEnergy applies the per-second energy accumulation/drain for the
// span (priorTick, tick], per spec §4.4.
func (s *State) stepEnergy(tick int, cmd string) {
	accumulator := 0.0
	for t := s.priorTick + 1; t <= tick; t++ {
		if s.Energy < s.power.MaxE && (s.eclipse == nil || !s.eclipse(t)) {
			accumulator += s.power.PowerIn
		}
	}
	s.Energy = math.Min(s.Energy+accumulator, s.power.MaxE)

	energyOut := s.power.IdlePowerOut + s.power.SensorPowerOut
	if planmodel.IsDnl(cmd) {
		energyOut += s.power.DownlinkPowerOut
	}
	s.Energy = clamp(s.Energy-energyOut, 0, s.power.MaxE)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func clamp01(x float64) float64 {
	return clamp(x, 0, 1)
}

// Objective computes this satellite's contribution to the plan objective:
// for each image, half its value for observation plus half scaled
// linearly by downlink completion. Per spec §4.3.
func (s *State) Objective() float64 {
	total := 0.0
	for _, img := range s.Images {
		total += img.Value/2 + (img.Value/2)*clamp01(img.DownlinkPct)
	}
	return total
}

// ObservedGps returns the set of distinct ground points this satellite
// has observed so far in the rollout.
func (s *State) ObservedGps() map[int]struct{} {
	seen := make(map[int]struct{})
	for _, img := range s.Images {
		for _, gp := range img.Targets {
			seen[gp] = struct{}{}
		}
	}
	return seen
}
