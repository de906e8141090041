package planmodel

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestBuild(t *testing.T) {
	Convey("Given a single satellite with access, downlink, and gap seconds", t, func() {
		b := Builder{
			Satellites: []SatelliteInput{
				{
					SatID: "S1",
					Seconds: map[int]SecondInput{
						2: {Kind: KindAccess, AccessGps: map[string][]int{"src1": {100}}},
						3: {Kind: KindAccess, AccessGps: map[string][]int{"src1": {100}}},
						4: {Kind: KindAccess, AccessGps: map[string][]int{"src1": {100}}},
						5: {Kind: KindDownlink, GsID: "G1"},
						6: {Kind: KindDownlink, GsID: "G1"},
						7: {Kind: KindDownlink, GsID: "G1"},
					},
				},
			},
			HorizonStart:    0,
			HorizonDuration: 10,
		}

		result, err := b.Build()

		Convey("It builds without error", func() {
			So(err, ShouldBeNil)
		})

		Convey("Seconds 0,1,8,9,10 are gaps and excluded from the active set", func() {
			for _, sec := range []int{0, 1, 8, 9, 10} {
				v := Variable{SatID: "S1", Second: sec}
				So(result.Full[v], ShouldResemble, Domain{CmdGap})
				So(result.Domains[v], ShouldBeNil)
			}
		})

		Convey("Access seconds get a RAW/IDL domain", func() {
			v := Variable{SatID: "S1", Second: 2}
			So(result.Full[v], ShouldResemble, Domain{"RAW.100", CmdIdle})
		})

		Convey("Downlink seconds get a DNL/IDL domain", func() {
			v := Variable{SatID: "S1", Second: 5}
			So(result.Full[v], ShouldResemble, Domain{"DNL.G1", CmdIdle})
		})

		Convey("The active set is chronologically ordered and excludes gaps", func() {
			So(len(result.Active), ShouldEqual, 6)
			for i := 1; i < len(result.Active); i++ {
				So(result.Active[i].Second, ShouldBeGreaterThan, result.Active[i-1].Second)
			}
		})

		Convey("GpIndex maps gp 100 to the three RAW variables covering it", func() {
			So(len(result.GpIndex[100]), ShouldEqual, 3)
		})
	})

	Convey("Given two satellites with identical access to the same gp", t, func() {
		b := Builder{
			Satellites: []SatelliteInput{
				{SatID: "S1", Seconds: map[int]SecondInput{10: {Kind: KindAccess, AccessGps: map[string][]int{"a": {42}}}}},
				{SatID: "S2", Seconds: map[int]SecondInput{10: {Kind: KindAccess, AccessGps: map[string][]int{"a": {42}}}}},
			},
			HorizonStart:    10,
			HorizonDuration: 0,
		}
		result, err := b.Build()

		Convey("Both satellites get an active RAW.42 variable", func() {
			So(err, ShouldBeNil)
			So(len(result.Active), ShouldEqual, 2)
			So(result.GpIndex[42], ShouldResemble, []Variable{
				{SatID: "S1", Second: 10},
				{SatID: "S2", Second: 10},
			})
		})
	})
}

func TestCommandHelpers(t *testing.T) {
	Convey("RawGps parses a RAW command's gp list", t, func() {
		gps, err := RawGps("RAW.5,3,3,9")
		So(err, ShouldBeNil)
		So(gps, ShouldResemble, []int{5, 3, 3, 9})
	})

	Convey("BuildRawCmd sorts and dedupes", t, func() {
		So(BuildRawCmd([]int{9, 3, 5, 3}), ShouldEqual, "RAW.3,5,9")
	})

	Convey("IsRaw, IsDnl, IsIdle, IsGap classify commands", t, func() {
		So(IsRaw("RAW.1,2"), ShouldBeTrue)
		So(IsDnl("DNL.G1"), ShouldBeTrue)
		So(IsIdle("IDL"), ShouldBeTrue)
		So(IsGap("***"), ShouldBeTrue)
		So(IsRaw("IDL"), ShouldBeFalse)
	})

	Convey("GroundStation extracts the station id", t, func() {
		So(GroundStation("DNL.G1"), ShouldEqual, "G1")
	})
}
