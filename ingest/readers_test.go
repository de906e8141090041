package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/richardlevinson/dshield-planner/planerrors"
	"github.com/richardlevinson/dshield-planner/planmodel"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}

func TestReadAccessWindows(t *testing.T) {
	Convey("Given an access window file with a four-line header", t, func() {
		content := "h1\nh2\nh3\nh4\n" +
			"2 a 100,101\n" +
			"3 a 102\n"
		path := writeTemp(t, "S1_accessWindows.txt", content)

		seconds, err := ReadAccessWindows(path)

		Convey("Each data line becomes a KindAccess entry", func() {
			So(err, ShouldBeNil)
			So(seconds[2].Kind, ShouldEqual, planmodel.KindAccess)
			So(seconds[2].AccessGps["a"], ShouldResemble, []int{100, 101})
			So(seconds[3].AccessGps["a"], ShouldResemble, []int{102})
		})

		Convey("Seconds absent from the file are simply absent from the map", func() {
			_, ok := seconds[4]
			So(ok, ShouldBeFalse)
		})
	})
}

func TestReadGroundContactsAndApply(t *testing.T) {
	Convey("Given a ground contact file for station G1", t, func() {
		content := "header line ending in G1\n" +
			"10,12\n"
		path := writeTemp(t, "S1_G1_contacts.txt", content)

		meta, windows, err := ReadGroundContacts(path)
		So(err, ShouldBeNil)
		So(meta.GsID, ShouldEqual, "G1")
		So(windows, ShouldHaveLength, 1)
		So(windows[0], ShouldResemble, GroundContactWindow{GsID: "G1", Start: 10, End: 12})

		Convey("ApplyGroundContacts marks every inclusive second as KindDownlink", func() {
			seconds := map[int]planmodel.SecondInput{}
			ApplyGroundContacts(seconds, windows)
			So(seconds[10].Kind, ShouldEqual, planmodel.KindDownlink)
			So(seconds[11].GsID, ShouldEqual, "G1")
			So(seconds[12].Kind, ShouldEqual, planmodel.KindDownlink)
			_, ok := seconds[13]
			So(ok, ShouldBeFalse)
		})

		Convey("ApplyGroundContacts never overwrites a second already claimed by access", func() {
			seconds := map[int]planmodel.SecondInput{
				11: {Kind: planmodel.KindAccess, AccessGps: map[string][]int{"a": {5}}},
			}
			ApplyGroundContacts(seconds, windows)
			So(seconds[11].Kind, ShouldEqual, planmodel.KindAccess)
			So(seconds[10].Kind, ShouldEqual, planmodel.KindDownlink)
		})
	})
}

func TestReadEclipses(t *testing.T) {
	Convey("Given an eclipse file with a start header", t, func() {
		content := "start,end\n100,200\n"
		path := writeTemp(t, "S1_eclipse.txt", content)

		set, err := ReadEclipses(path)

		Convey("Every tick in the inclusive range is marked", func() {
			So(err, ShouldBeNil)
			So(set.Contains(100), ShouldBeTrue)
			So(set.Contains(200), ShouldBeTrue)
			So(set.Contains(201), ShouldBeFalse)
			So(set.Contains(99), ShouldBeFalse)
		})
	})
}

func TestReadTargetValues(t *testing.T) {
	Convey("Given a target value file with a skipped header", t, func() {
		content := "gp,value\n100,0.9\n101,0.5\n"
		path := writeTemp(t, "TV_run1.txt", content)

		values, err := ReadTargetValues(path)

		Convey("Each data row maps gp to its float value", func() {
			So(err, ShouldBeNil)
			So(values[100], ShouldEqual, 0.9)
			So(values[101], ShouldEqual, 0.5)
		})
	})
}

func TestMissingFileIsInputMissing(t *testing.T) {
	Convey("Reading a nonexistent access window file surfaces ErrInputMissing", t, func() {
		_, err := ReadAccessWindows(filepath.Join(t.TempDir(), "nope.txt"))
		So(errors.Is(err, planerrors.ErrInputMissing), ShouldBeTrue)
	})
}
