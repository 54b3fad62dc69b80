package automerge_test

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"opctl/internal/automerge"
)

func TestDirectorModes(t *testing.T) {
	Convey("Given a Disabled director", t, func() {
		d := automerge.New(automerge.Disabled, 200, 0)
		d.AddSmallChunk()
		d.AddSmallChunk()

		Convey("it never asks for a merge", func() {
			So(d.ShouldMerge(), ShouldBeFalse)
		})
	})

	Convey("Given a Relaxed director", t, func() {
		d := automerge.New(automerge.Relaxed, 200, 0)

		Convey("before any chunk arrives it does not merge", func() {
			So(d.ShouldMerge(), ShouldBeFalse)
		})

		Convey("as soon as one chunk arrives it wants to merge", func() {
			d.AddSmallChunk()
			So(d.ShouldMerge(), ShouldBeTrue)
		})
	})

	Convey("Given an Economy director for 200 estimated tiny map outputs (§8 scenario 5)", t, func() {
		d := automerge.New(automerge.Economy, 200, 0)

		Convey("its ceiling is ceil(2.5*sqrt(200))", func() {
			So(d.Ceiling(), ShouldEqual, 36)
		})

		Convey("it withholds merge until the ceiling is reached", func() {
			for i := 0; i < 35; i++ {
				d.AddSmallChunk()
			}
			So(d.ShouldMerge(), ShouldBeFalse)

			d.AddSmallChunk()
			So(d.ShouldMerge(), ShouldBeTrue)
		})

		Convey("after Merged() drains the inventory it stops demanding a merge", func() {
			for i := 0; i < 36; i++ {
				d.AddSmallChunk()
			}
			So(d.ShouldMerge(), ShouldBeTrue)
			d.Merged(36)
			So(d.Pending(), ShouldEqual, 0)
			So(d.ShouldMerge(), ShouldBeFalse)
		})
	})

	Convey("Given a Manual director with an operator ceiling of 10", t, func() {
		d := automerge.New(automerge.Manual, 0, 10)

		Convey("it uses the manual ceiling rather than a derived one", func() {
			So(d.Ceiling(), ShouldEqual, 10)
			for i := 0; i < 9; i++ {
				d.AddSmallChunk()
			}
			So(d.ShouldMerge(), ShouldBeFalse)
			d.AddSmallChunk()
			So(d.ShouldMerge(), ShouldBeTrue)
		})
	})
}
