package joblet_test

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"opctl/internal/joblet"
	"opctl/internal/model"
)

func TestRegistryForTaskAndForget(t *testing.T) {
	Convey("Given a registry with completed jobs for two tasks", t, func() {
		r := joblet.NewRegistry()
		r.RegisterForTask(1, "j1", [][]model.ChunkID{{"c1"}})
		r.RegisterForTask(1, "j2", [][]model.ChunkID{{"c2"}})
		r.RegisterForTask(2, "j3", [][]model.ChunkID{{"c3"}})

		Convey("ForTask returns only the matching task's jobs", func() {
			So(r.ForTask(1), ShouldHaveLength, 2)
			So(r.ForTask(2), ShouldHaveLength, 1)
		})

		Convey("Forget removes a job from every future ForTask call", func() {
			r.Forget("j1")
			So(r.ForTask(1), ShouldHaveLength, 1)
		})
	})
}

func TestRegistryRestartCount(t *testing.T) {
	Convey("Given a fresh registry", t, func() {
		r := joblet.NewRegistry()

		Convey("RecordRestart increments monotonically per task", func() {
			So(r.RecordRestart(1), ShouldEqual, 1)
			So(r.RecordRestart(1), ShouldEqual, 2)
			So(r.RecordRestart(2), ShouldEqual, 1)
			So(r.RestartCount(1), ShouldEqual, 2)
		})
	})
}
