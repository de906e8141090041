package rollout

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/richardlevinson/dshield-planner/planmodel"
	"github.com/richardlevinson/dshield-planner/satstate"
)

// firstChoicePolicy always takes the first remaining choice, which for
// every domain built by planmodel.Builder is the non-IDL command if one
// remains. It exists only to drive deterministic tests of propagation.
type firstChoicePolicy struct{}

func (firstChoicePolicy) ChooseValue(v planmodel.Variable, choices planmodel.Domain, state *satstate.State) (string, error) {
	return choices[0], nil
}

func noEclipse(int) bool { return false }

func valueOf(gp int) float64 {
	return 10.0
}

func oneSatConfig(satID string) map[string]SatelliteConfig {
	return map[string]SatelliteConfig{
		satID: {
			Storage: satstate.StorageParams{Capacity: 200, CollectionRatePerSec: 100, DownlinkRatePerSec: 50},
			Power:   satstate.NewEnergyParams(1e6, 0, 100, 1e6, 0, 0, 0),
			Eclipse: noEclipse,
		},
	}
}

func TestScenario1ForcedDownlinkAfterStorageFull(t *testing.T) {
	Convey("Given a single satellite whose storage fills after two RAWs", t, func() {
		b := planmodel.Builder{
			Satellites: []planmodel.SatelliteInput{
				{
					SatID: "S1",
					Seconds: map[int]planmodel.SecondInput{
						2: {Kind: planmodel.KindAccess, AccessGps: map[string][]int{"a": {100}}},
						3: {Kind: planmodel.KindAccess, AccessGps: map[string][]int{"a": {101}}},
						4: {Kind: planmodel.KindAccess, AccessGps: map[string][]int{"a": {102}}},
						5: {Kind: planmodel.KindDownlink, GsID: "G1"},
						6: {Kind: planmodel.KindDownlink, GsID: "G1"},
						7: {Kind: planmodel.KindDownlink, GsID: "G1"},
					},
				},
			},
			HorizonStart:    0,
			HorizonDuration: 10,
		}
		build, err := b.Build()
		So(err, ShouldBeNil)

		sim := New(build, oneSatConfig("S1"))
		result, err := sim.Run(firstChoicePolicy{}, valueOf)
		So(err, ShouldBeNil)

		s1 := result.States["S1"]

		Convey("Storage fills to capacity and the plan forces DNL at 5,6,7", func() {
			cmds := map[int]string{}
			for _, step := range s1.Plan {
				cmds[step.Var.Second] = step.Cmd
			}
			So(cmds[2], ShouldEqual, "RAW.100")
			So(cmds[3], ShouldEqual, "RAW.101")
			So(cmds[5], ShouldEqual, "DNL.G1")
			So(cmds[6], ShouldEqual, "DNL.G1")
			So(cmds[7], ShouldEqual, "DNL.G1")
		})

		Convey("Variable at second 4 was dropped from the active set (collapsed to IDL-only)", func() {
			_, played := func() (string, bool) {
				for _, step := range s1.Plan {
					if step.Var.Second == 4 {
						return step.Cmd, true
					}
				}
				return "", false
			}()
			So(played, ShouldBeFalse)
		})

		Convey("Image 1 fully downlinks and image 2 reaches half, objective is 1.75*value", func() {
			So(len(s1.Images), ShouldEqual, 2)
			So(s1.Images[0].DownlinkPct, ShouldEqual, 1.0)
			So(s1.Images[1].DownlinkPct, ShouldEqual, 0.5)
			So(result.Objective, ShouldEqual, 1.75*10.0)
		})

		Convey("No domain invariant violations were surfaced", func() {
			So(result.Violations, ShouldBeEmpty)
		})
	})
}

func TestScenario2DuplicateGpAcrossSatellites(t *testing.T) {
	Convey("Given two satellites with identical access to the same gp", t, func() {
		b := planmodel.Builder{
			Satellites: []planmodel.SatelliteInput{
				{SatID: "S1", Seconds: map[int]planmodel.SecondInput{10: {Kind: planmodel.KindAccess, AccessGps: map[string][]int{"a": {42}}}}},
				{SatID: "S2", Seconds: map[int]planmodel.SecondInput{10: {Kind: planmodel.KindAccess, AccessGps: map[string][]int{"a": {42}}}}},
			},
			HorizonStart:    10,
			HorizonDuration: 0,
		}
		build, err := b.Build()
		So(err, ShouldBeNil)

		cfg := map[string]SatelliteConfig{
			"S1": {Storage: satstate.StorageParams{Capacity: 200, CollectionRatePerSec: 100, DownlinkRatePerSec: 50}, Power: satstate.NewEnergyParams(1e6, 0, 100, 1e6, 0, 0, 0), Eclipse: noEclipse},
			"S2": {Storage: satstate.StorageParams{Capacity: 200, CollectionRatePerSec: 100, DownlinkRatePerSec: 50}, Power: satstate.NewEnergyParams(1e6, 0, 100, 1e6, 0, 0, 0), Eclipse: noEclipse},
		}
		sim := New(build, cfg)
		result, err := sim.Run(firstChoicePolicy{}, valueOf)
		So(err, ShouldBeNil)

		Convey("Exactly one satellite observes gp 42", func() {
			observed := 0
			for _, s := range result.States {
				observed += len(s.Images)
			}
			So(observed, ShouldEqual, 1)
		})
	})
}

// TestCollapseCheckReportsNonIdlSingleton exercises the two outcomes of a
// domain narrowing to exactly one choice: a non-IDL singleton is a bug and
// must be surfaced via Result.Violations (spec §4.2/§7), while an IDL
// singleton is the ordinary "nothing left to do" case and only drops the
// variable from the active set.
func TestCollapseCheckReportsNonIdlSingleton(t *testing.T) {
	Convey("Given a variable whose domain collapsed to one non-IDL choice", t, func() {
		v := planmodel.Variable{SatID: "S1", Second: 9}
		active := map[planmodel.Variable]bool{v: true}
		result := &Result{}

		collapseCheck(v, planmodel.Domain{"RAW.7"}, active, result)

		Convey("A Violation is recorded and the variable stays active", func() {
			So(len(result.Violations), ShouldEqual, 1)
			So(result.Violations[0].Variable, ShouldResemble, v)
			So(result.Violations[0].Domain, ShouldResemble, planmodel.Domain{"RAW.7"})
			So(active[v], ShouldBeTrue)
		})
	})

	Convey("Given a variable whose domain collapsed to IDL alone", t, func() {
		v := planmodel.Variable{SatID: "S1", Second: 9}
		active := map[planmodel.Variable]bool{v: true}
		result := &Result{}

		collapseCheck(v, planmodel.Domain{planmodel.CmdIdle}, active, result)

		Convey("No violation is recorded and the variable is dropped from the active set", func() {
			So(result.Violations, ShouldBeEmpty)
			So(active[v], ShouldBeFalse)
		})
	})
}

func TestForceDownlinkIfStorageNotEmpty(t *testing.T) {
	Convey("Given a satellite with non-empty storage and a DNL choice available", t, func() {
		storage := satstate.StorageParams{Capacity: 200, CollectionRatePerSec: 100, DownlinkRatePerSec: 50}
		power := satstate.NewEnergyParams(1e6, 0, 100, 1e6, 0, 0, 0)
		s := satstate.New("S1", storage, power, 0, noEclipse, valueOf)
		So(s.Update(planmodel.Variable{SatID: "S1", Second: 1}, "RAW.1"), ShouldBeNil)

		choices, err := forceDownlinkIfStorageNotEmpty(s, planmodel.Domain{"DNL.G1", planmodel.CmdIdle})

		Convey("IDL is removed", func() {
			So(err, ShouldBeNil)
			So(choices, ShouldResemble, planmodel.Domain{"DNL.G1"})
		})
	})

	Convey("Given a satellite with empty storage", t, func() {
		storage := satstate.StorageParams{Capacity: 200, CollectionRatePerSec: 100, DownlinkRatePerSec: 50}
		power := satstate.NewEnergyParams(1e6, 0, 100, 1e6, 0, 0, 0)
		s := satstate.New("S1", storage, power, 0, noEclipse, valueOf)

		choices, err := forceDownlinkIfStorageNotEmpty(s, planmodel.Domain{"DNL.G1", planmodel.CmdIdle})

		Convey("IDL remains a legal choice", func() {
			So(err, ShouldBeNil)
			So(choices, ShouldResemble, planmodel.Domain{"DNL.G1", planmodel.CmdIdle})
		})
	})
}
