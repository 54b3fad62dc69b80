package chunkpool_test

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"opctl/internal/chunkpool"
	"opctl/internal/model"
)

// TestOrderedPoolPreservesSequence exercises the merge/ordered-merge pool
// kind (§4.1): extraction must never skip ahead of an unready stripe, even
// when later stripes are ready, since a merge task must write its output in
// the same order the inputs arrived.
func TestOrderedPoolPreservesSequence(t *testing.T) {
	Convey("Given four stripes added in order, with the second suspended", t, func() {
		p, err := chunkpool.NewPool(chunkpool.KindOrdered, chunkpool.Config{JobSliceCount: 1})
		So(err, ShouldBeNil)

		var cookies []model.Cookie
		for i, chunk := range []model.ChunkID{"a", "b", "c", "d"} {
			c := p.Add(stripe(10, chunk))
			cookies = append(cookies, c)
			_ = i
		}
		p.Suspend(cookies[1])

		Convey("extraction yields only the first stripe, stopping before the suspended one", func() {
			ex, ok := p.Extract("node1")
			So(ok, ShouldBeTrue)
			So(ex.Stripes.Stripes[0].Slices[0].Chunks[0], ShouldEqual, model.ChunkID("a"))

			_, ok = p.Extract("node1")
			So(ok, ShouldBeFalse, "the suspended stripe must block extraction of everything after it")

			Convey("resuming it unblocks the rest of the sequence", func() {
				p.Resume(cookies[1])
				ex, ok := p.Extract("node1")
				So(ok, ShouldBeTrue)
				So(ex.Stripes.Stripes[0].Slices[0].Chunks[0], ShouldEqual, model.ChunkID("b"))
			})
		})
	})
}

func TestOrderedPoolConservation(t *testing.T) {
	Convey("Given an ordered pool with three 10-weight stripes", t, func() {
		p, _ := chunkpool.NewPool(chunkpool.KindOrdered, chunkpool.Config{JobSliceCount: 1})
		var outs []model.Cookie
		for _, chunk := range []model.ChunkID{"a", "b", "c"} {
			p.Add(stripe(10, chunk))
		}
		for i := 0; i < 3; i++ {
			ex, ok := p.Extract("node1")
			So(ok, ShouldBeTrue)
			outs = append(outs, ex.OutputCookie)
		}

		Convey("losing the head stripe keeps total weight conserved", func() {
			So(p.Lost(outs[0]), ShouldBeNil)
			pw, rw, cw, lw := p.DataWeightCounter()
			So(pw+rw+cw+lw, ShouldEqual, 30)
			So(lw, ShouldEqual, 0)
		})
	})
}
