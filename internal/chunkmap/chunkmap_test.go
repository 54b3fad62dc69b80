package chunkmap_test

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"opctl/internal/chunkmap"
	"opctl/internal/model"
)

func TestResolveDefaultsToSelf(t *testing.T) {
	Convey("An unmapped chunk resolves to itself", t, func() {
		m := chunkmap.New()
		So(m.Resolve("a"), ShouldEqual, model.ChunkID("a"))
	})
}

func TestRelocateChains(t *testing.T) {
	Convey("Given a chunk relocated twice", t, func() {
		m := chunkmap.New()
		m.Relocate("a", "b")
		m.Relocate("b", "c")

		Convey("resolving the original id follows the whole chain", func() {
			So(m.Resolve("a"), ShouldEqual, model.ChunkID("c"))
			So(m.Resolve("b"), ShouldEqual, model.ChunkID("c"))
		})
	})
}
