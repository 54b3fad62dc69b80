package chunkpool_test

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"opctl/internal/chunkpool"
	"opctl/internal/model"
)

func keyedStripe(key string, weight int64, chunks ...model.ChunkID) model.ChunkStripe {
	s := stripe(weight, chunks...)
	s.ReduceKey = key
	return s
}

// TestSortedPoolKeyGuarantee mirrors spec.md §8 end-to-end scenario 3: two
// input tables sorted by k with keys {1,2,3,4,5} each must be seen by
// reducers as exactly 5 distinct keys, all rows for one key in one job.
func TestSortedPoolKeyGuarantee(t *testing.T) {
	Convey("Given ten stripes across five reduce keys from two tables", t, func() {
		p, err := chunkpool.NewPool(chunkpool.KindSorted, chunkpool.Config{
			EnableKeyGuarantee: true,
			JobSliceCount:      1, // force a small job size so keys would split without the guarantee
		})
		So(err, ShouldBeNil)

		for _, k := range []string{"1", "2", "3", "4", "5"} {
			p.Add(keyedStripe(k, 100, model.ChunkID("t1-"+k)))
			p.Add(keyedStripe(k, 100, model.ChunkID("t2-"+k)))
		}

		Convey("every extracted job contains exactly one key's two stripes", func() {
			seen := map[string]bool{}
			for i := 0; i < 5; i++ {
				ex, ok := p.Extract("node1")
				So(ok, ShouldBeTrue)
				So(len(ex.Stripes.Stripes), ShouldEqual, 2)
				key := ex.Stripes.Stripes[0].ReduceKey
				So(ex.Stripes.Stripes[1].ReduceKey, ShouldEqual, key)
				So(seen[key], ShouldBeFalse)
				seen[key] = true
			}
			So(len(seen), ShouldEqual, 5)

			_, ok := p.Extract("node1")
			So(ok, ShouldBeFalse)
		})
	})
}

func TestSortedPoolWithoutKeyGuaranteeMaySplit(t *testing.T) {
	Convey("Given key guarantee disabled and a tight job size", t, func() {
		p, _ := chunkpool.NewPool(chunkpool.KindSorted, chunkpool.Config{
			EnableKeyGuarantee: false,
			JobSliceCount:      1,
		})
		p.Add(keyedStripe("1", 100, model.ChunkID("a")))
		p.Add(keyedStripe("1", 100, model.ChunkID("b")))

		Convey("a single key's two stripes are split across two jobs", func() {
			ex1, ok := p.Extract("node1")
			So(ok, ShouldBeTrue)
			So(len(ex1.Stripes.Stripes), ShouldEqual, 1)

			ex2, ok := p.Extract("node1")
			So(ok, ShouldBeTrue)
			So(len(ex2.Stripes.Stripes), ShouldEqual, 1)
		})
	})
}
