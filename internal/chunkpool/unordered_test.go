package chunkpool_test

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"opctl/internal/chunkpool"
	"opctl/internal/model"
)

func slice(weight int64, chunks ...model.ChunkID) model.DataSlice {
	return model.DataSlice{Chunks: chunks, DataWeight: weight, RowCount: weight}
}

func stripe(weight int64, chunks ...model.ChunkID) model.ChunkStripe {
	return model.ChunkStripe{Slices: []model.DataSlice{slice(weight, chunks...)}}
}

func TestUnorderedPoolConservation(t *testing.T) {
	Convey("Given an unordered pool with ten 100-weight stripes", t, func() {
		p, err := chunkpool.NewPool(chunkpool.KindUnordered, chunkpool.Config{JobSliceCount: 1})
		So(err, ShouldBeNil)

		var cookies []model.Cookie
		for i := 0; i < 10; i++ {
			c := p.Add(stripe(100, model.ChunkID("c")))
			cookies = append(cookies, c)
		}

		Convey("extracting all ten jobs drains pending to zero", func() {
			var outs []model.Cookie
			for i := 0; i < 10; i++ {
				ex, ok := p.Extract("node1")
				So(ok, ShouldBeTrue)
				outs = append(outs, ex.OutputCookie)
			}
			pending, running, _ := p.JobCounter()
			So(pending, ShouldEqual, 0)
			So(running, ShouldEqual, 10)

			_, ok := p.Extract("node1")
			So(ok, ShouldBeFalse)

			Convey("completing every job moves weight to completed", func() {
				for _, out := range outs {
					So(p.Completed(out), ShouldBeNil)
				}
				pw, rw, cw, lw := p.DataWeightCounter()
				So(pw, ShouldEqual, 0)
				So(rw, ShouldEqual, 0)
				So(cw, ShouldEqual, 1000)
				So(lw, ShouldEqual, 0)
			})

			Convey("losing a job returns its stripe to pending", func() {
				So(p.Lost(outs[0]), ShouldBeNil)
				pending, running, _ := p.JobCounter()
				So(pending, ShouldEqual, 1)
				So(running, ShouldEqual, 9)

				Convey("the lost stripe's weight is not double-counted", func() {
					pw, rw, cw, lw := p.DataWeightCounter()
					So(pw+rw+cw+lw, ShouldEqual, 1000)
					So(pw, ShouldEqual, 100)
					So(rw, ShouldEqual, 900)
					So(lw, ShouldEqual, 0)
				})

				Convey("re-extracting and completing the lost stripe still sums to the total", func() {
					ex, ok := p.Extract("node1")
					So(ok, ShouldBeTrue)
					So(p.Completed(ex.OutputCookie), ShouldBeNil)
					for _, out := range outs[1:] {
						So(p.Completed(out), ShouldBeNil)
					}
					pw, rw, cw, lw := p.DataWeightCounter()
					So(pw+rw+cw+lw, ShouldEqual, 1000)
					So(cw, ShouldEqual, 1000)
				})

				Convey("losing the same cookie twice is an error", func() {
					So(p.Lost(outs[0]), ShouldNotBeNil)
				})
			})
		})
	})
}

func TestUnorderedPoolSuspendResume(t *testing.T) {
	Convey("Given a pool with one suspended stripe", t, func() {
		p, _ := chunkpool.NewPool(chunkpool.KindUnordered, chunkpool.Config{})
		c := p.Add(stripe(10, model.ChunkID("a")))
		p.Suspend(c)

		Convey("it is not extractable while suspended", func() {
			_, ok := p.Extract("node1")
			So(ok, ShouldBeFalse)

			Convey("resuming makes it extractable again", func() {
				p.Resume(c)
				_, ok := p.Extract("node1")
				So(ok, ShouldBeTrue)
			})
		})

		Convey("a double suspend requires a double resume", func() {
			p.Suspend(c)
			p.Resume(c)
			_, ok := p.Extract("node1")
			So(ok, ShouldBeFalse)
			p.Resume(c)
			_, ok = p.Extract("node1")
			So(ok, ShouldBeTrue)
		})
	})
}

func TestUnorderedPoolLocality(t *testing.T) {
	Convey("Given stripes with differing node locality", t, func() {
		p, _ := chunkpool.NewPool(chunkpool.KindUnordered, chunkpool.Config{JobSliceCount: 1})
		local := stripe(10, model.ChunkID("a"))
		local.NodeLocality = map[model.NodeID]int{"nodeA": 1}
		remote := stripe(10, model.ChunkID("b"))

		p.Add(remote)
		p.Add(local)

		Convey("extraction for nodeA prefers the local stripe first", func() {
			ex, ok := p.Extract("nodeA")
			So(ok, ShouldBeTrue)
			So(ex.Stripes.Stripes[0].NodeLocality["nodeA"], ShouldEqual, 1)
		})
	})
}
