package chunkpool_test

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"opctl/internal/chunkpool"
	"opctl/internal/model"
)

func partitionedStripe(tag int, weight int64, chunks ...model.ChunkID) model.ChunkStripe {
	s := stripe(weight, chunks...)
	s.PartitionTag = tag
	return s
}

// TestShufflePoolKeepsPartitionsSeparate exercises the map-reduce shuffle
// pool kind (§4.1): a single extraction must never mix stripes from two
// partitions, since each reduce job only ever reads one partition.
func TestShufflePoolKeepsPartitionsSeparate(t *testing.T) {
	Convey("Given stripes from three partitions", t, func() {
		p, err := chunkpool.NewPool(chunkpool.KindShuffle, chunkpool.Config{JobSliceCount: 2})
		So(err, ShouldBeNil)

		p.Add(partitionedStripe(0, 10, model.ChunkID("p0a")))
		p.Add(partitionedStripe(1, 10, model.ChunkID("p1a")))
		p.Add(partitionedStripe(0, 10, model.ChunkID("p0b")))
		p.Add(partitionedStripe(1, 10, model.ChunkID("p1b")))
		p.Add(partitionedStripe(2, 10, model.ChunkID("p2a")))

		Convey("each extraction contains a single partition's stripes", func() {
			seenPartitions := map[int]int{}
			for i := 0; i < 3; i++ {
				ex, ok := p.Extract("node1")
				So(ok, ShouldBeTrue)
				tag := ex.Stripes.Stripes[0].PartitionTag
				for _, s := range ex.Stripes.Stripes[1:] {
					So(s.PartitionTag, ShouldEqual, tag)
				}
				seenPartitions[tag] += len(ex.Stripes.Stripes)
			}
			So(seenPartitions[0], ShouldEqual, 2)
			So(seenPartitions[1], ShouldEqual, 2)
			So(seenPartitions[2], ShouldEqual, 1)

			_, ok := p.Extract("node1")
			So(ok, ShouldBeFalse)
		})
	})
}

func TestShufflePoolConservation(t *testing.T) {
	Convey("Given a shuffle pool with stripes across two partitions", t, func() {
		p, _ := chunkpool.NewPool(chunkpool.KindShuffle, chunkpool.Config{JobSliceCount: 1})
		p.Add(partitionedStripe(0, 10, model.ChunkID("a")))
		p.Add(partitionedStripe(1, 10, model.ChunkID("b")))

		ex0, ok := p.Extract("node1")
		So(ok, ShouldBeTrue)
		_, ok = p.Extract("node1")
		So(ok, ShouldBeTrue)

		Convey("losing one partition's job conserves total weight", func() {
			So(p.Lost(ex0.OutputCookie), ShouldBeNil)
			pw, rw, cw, lw := p.DataWeightCounter()
			So(pw+rw+cw+lw, ShouldEqual, 20)
			So(lw, ShouldEqual, 0)
		})
	})
}
