package controller_test

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"opctl/internal/chunkpool"
	"opctl/internal/config"
	"opctl/internal/controller"
	"opctl/internal/host"
	"opctl/internal/model"
	"opctl/internal/task"
)

func testDeps(master *host.FakeMaster) controller.Deps {
	return controller.Deps{
		Master:                   master,
		Scheduler:                host.NewFakeScheduler(1),
		ChunkListWatermark:       1,
		ChunkListBatch:           4,
		TaskGroupLocalityTimeout: time.Millisecond,
		ChunkListCheckK:          1,
	}
}

func oneMapStripe(weight int64, chunks ...model.ChunkID) model.ChunkStripe {
	return model.ChunkStripe{Slices: []model.DataSlice{{Chunks: chunks, DataWeight: weight, RowCount: 1}}}
}

func TestOperationLifecycleHappyPath(t *testing.T) {
	Convey("Given a freshly constructed operation with one map task and one output table", t, func() {
		master := host.NewFakeMaster()
		op := controller.New(context.Background(), "op-1", config.Default(), testDeps(master))

		var mapHandle model.TaskHandle = 1
		var sinkIdx int
		table := &model.OutputTable{Path: "//out", Sorted: false}

		build := func(ctx context.Context, o *controller.Operation) error {
			pool, err := chunkpool.NewPool(chunkpool.KindUnordered, chunkpool.Config{JobSliceCount: 1})
			if err != nil {
				return err
			}
			idx, _, err := o.AddOutputTable(table)
			if err != nil {
				return err
			}
			sinkIdx = idx
			edges := []model.EdgeDescriptor{{DestinationSink: idx, LivePreviewIdx: -1}}
			t := o.AddTask(mapHandle, pool, edges, task.Config{JobType: "map", ResourceTemplate: model.Resources{CPU: 1, Memory: 100}}, nil, nil)
			t.AddInput(oneMapStripe(10, "c1"))
			t.FinishInput()
			return nil
		}

		So(op.Prepare(context.Background(), nil, nil, nil), ShouldBeNil)
		So(op.Materialize(context.Background(), build), ShouldBeNil)

		Convey("the operation is Running after Materialize", func() {
			So(op.State(), ShouldEqual, controller.StateRunning)
		})

		Convey("ScheduleJob extracts the pending job and completing it finishes the task", func() {
			desc, err := op.ScheduleJob(context.Background(), model.Offer{Node: "n1", Resources: model.Resources{CPU: 1, Memory: 100}}, model.Resources{CPU: 4, Memory: 1000}, "default")
			So(err, ShouldBeNil)
			So(desc, ShouldNotBeNil)

			summary := model.JobSummary{
				JobID:         desc.JobID,
				OutputChunks:  [][]model.ChunkID{{"out1"}},
				OutputWeights: [][]int64{{10}},
			}
			So(op.OnJobCompleted(context.Background(), mapHandle, summary), ShouldBeNil)

			t, err := op.Task(mapHandle)
			So(err, ShouldBeNil)
			So(t.CheckCompleted(), ShouldBeTrue)

			Convey("Complete runs the commit pipeline and finishes the operation", func() {
				So(op.Complete(context.Background()), ShouldBeNil)
				So(op.State(), ShouldEqual, controller.StateFinished)
				So(table.Entries, ShouldHaveLength, 1)
				So(table.Entries[0].ChunkTree, ShouldEqual, model.ChunkID("out1"))
			})
		})

		_ = sinkIdx
	})
}

func TestOperationRejectsCompleteBeforeTasksFinish(t *testing.T) {
	Convey("Given an operation with an incomplete task", t, func() {
		master := host.NewFakeMaster()
		op := controller.New(context.Background(), "op-2", config.Default(), testDeps(master))

		build := func(ctx context.Context, o *controller.Operation) error {
			pool, err := chunkpool.NewPool(chunkpool.KindUnordered, chunkpool.Config{JobSliceCount: 1})
			if err != nil {
				return err
			}
			idx, _, err := o.AddOutputTable(&model.OutputTable{Path: "//out"})
			if err != nil {
				return err
			}
			edges := []model.EdgeDescriptor{{DestinationSink: idx, LivePreviewIdx: -1}}
			t := o.AddTask(1, pool, edges, task.Config{JobType: "map", ResourceTemplate: model.Resources{CPU: 1, Memory: 100}}, nil, nil)
			t.AddInput(oneMapStripe(10, "c1"))
			return nil
		}

		So(op.Prepare(context.Background(), nil, nil, nil), ShouldBeNil)
		So(op.Materialize(context.Background(), build), ShouldBeNil)

		Convey("Complete refuses to run", func() {
			err := op.Complete(context.Background())
			So(err, ShouldNotBeNil)
			So(op.State(), ShouldEqual, controller.StateRunning)
		})
	})
}

func TestOperationFailOnJobRestartRejectsRevival(t *testing.T) {
	Convey("Given an operation configured with fail_on_job_restart", t, func() {
		master := host.NewFakeMaster()
		spec := config.Default()
		spec.FailOnJobRestart = true
		op := controller.New(context.Background(), "op-3", spec, testDeps(master))

		revived, err := op.Revive(context.Background(), []byte(`{"version":1}`))

		Convey("Revive rejects the snapshot", func() {
			So(revived, ShouldBeFalse)
			So(err, ShouldNotBeNil)
		})
	})
}
