package taskgroup_test

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"opctl/internal/model"
	"opctl/internal/opcerrors"
	"opctl/internal/taskgroup"
)

// fakeTask is a minimal taskgroup.Task double driven entirely by test setup,
// so the group's scheduling logic can be exercised without the real chunk
// pool machinery.
type fakeTask struct {
	pending   int
	minMemory int64
	locality  int64
	scheduled int
	reason    opcerrors.SchedulingReason
	fail      bool
}

func (t *fakeTask) GetPendingJobCount() int                  { return t.pending }
func (t *fakeTask) GetMinNeededResources() model.Resources   { return model.Resources{Memory: t.minMemory} }
func (t *fakeTask) Locality(model.NodeID) int64              { return t.locality }
func (t *fakeTask) ScheduleJob(ctx context.Context, offer model.Offer, limits model.Resources, treeID string, tentative bool) (*model.StartDescriptor, opcerrors.SchedulingReason, error) {
	if t.pending == 0 {
		return nil, opcerrors.ReasonNoCandidateTasks, nil
	}
	if t.fail {
		return nil, t.reason, nil
	}
	t.pending--
	t.scheduled++
	return &model.StartDescriptor{JobID: "job"}, opcerrors.ReasonNone, nil
}

type fakeChecker struct{ short map[model.CellTag]bool }

func (c *fakeChecker) HasEnough(cell model.CellTag, k int) bool { return !c.short[cell] }
func (c *fakeChecker) Refill(model.CellTag)                     {}

func TestTaskGroupRejectsBelowFloor(t *testing.T) {
	Convey("Given a group with a resource floor above the offer", t, func() {
		g := taskgroup.New(model.Resources{CPU: 4}, time.Second, 1)
		offer := model.Offer{Node: "n1", Resources: model.Resources{CPU: 1}}

		sd, _, reason, err := g.Schedule(context.Background(), offer, nil, time.Now())
		So(err, ShouldBeNil)
		So(sd, ShouldBeNil)
		So(reason, ShouldEqual, opcerrors.ReasonNotEnoughResources)
	})
}

func TestTaskGroupLocalPassPrefersLocality(t *testing.T) {
	Convey("Given two tasks with a locality hint for the same node", t, func() {
		g := taskgroup.New(model.Resources{}, time.Second, 1)
		low := &fakeTask{pending: 1, locality: 1}
		high := &fakeTask{pending: 1, locality: 5}
		g.AddTask(1, low, nil, []model.NodeID{"n1"})
		g.AddTask(2, high, nil, []model.NodeID{"n1"})

		offer := model.Offer{Node: "n1", Resources: model.Resources{CPU: 1}}
		sd, handle, reason, err := g.Schedule(context.Background(), offer, nil, time.Now())

		Convey("the higher-locality task is scheduled first", func() {
			So(err, ShouldBeNil)
			So(sd, ShouldNotBeNil)
			So(handle, ShouldEqual, model.TaskHandle(2))
			So(reason, ShouldEqual, opcerrors.ReasonNone)
			So(high.scheduled, ShouldEqual, 1)
			So(low.scheduled, ShouldEqual, 0)
		})
	})
}

func TestTaskGroupNonLocalDelaysFirstTouch(t *testing.T) {
	Convey("Given one candidate task with no locality hint", t, func() {
		g := taskgroup.New(model.Resources{}, time.Minute, 1)
		tk := &fakeTask{pending: 1, minMemory: 10}
		g.AddTask(1, tk, nil, nil)

		offer := model.Offer{Node: "n1", Resources: model.Resources{CPU: 1}}
		now := time.Now()

		Convey("the first offer delays the task instead of scheduling it", func() {
			sd, _, _, err := g.Schedule(context.Background(), offer, nil, now)
			So(err, ShouldBeNil)
			So(sd, ShouldBeNil)
			So(g.FailureReasons()[opcerrors.ReasonTaskDelayed], ShouldBeGreaterThan, 0)
			So(tk.scheduled, ShouldEqual, 0)

			Convey("a later offer past the locality timeout schedules it", func() {
				later := now.Add(2 * time.Minute)
				sd, handle, reason, err := g.Schedule(context.Background(), offer, nil, later)
				So(err, ShouldBeNil)
				So(sd, ShouldNotBeNil)
				So(handle, ShouldEqual, model.TaskHandle(1))
				So(reason, ShouldEqual, opcerrors.ReasonNone)
				So(tk.scheduled, ShouldEqual, 1)
			})
		})
	})
}

func TestTaskGroupChunkListShortageBlocksScheduling(t *testing.T) {
	Convey("Given a task whose destination cell is short on chunk lists", t, func() {
		g := taskgroup.New(model.Resources{}, time.Minute, 1)
		tk := &fakeTask{pending: 1}
		g.AddTask(1, tk, []model.CellTag{7}, []model.NodeID{"n1"})
		checker := &fakeChecker{short: map[model.CellTag]bool{7: true}}

		offer := model.Offer{Node: "n1", Resources: model.Resources{CPU: 1}}
		sd, _, reason, err := g.Schedule(context.Background(), offer, checker, time.Now())

		Convey("scheduling is withheld and the shortage is recorded", func() {
			So(err, ShouldBeNil)
			So(sd, ShouldBeNil)
			So(reason, ShouldEqual, opcerrors.ReasonNoCandidateTasks)
			So(g.FailureReasons()[opcerrors.ReasonNotEnoughChunkLists], ShouldBeGreaterThan, 0)
			So(tk.scheduled, ShouldEqual, 0)
		})
	})
}

func TestTaskGroupBannedTentativeTree(t *testing.T) {
	Convey("Given a group whose tree has been banned", t, func() {
		g := taskgroup.New(model.Resources{}, time.Minute, 1)
		tk := &fakeTask{pending: 1}
		g.AddTask(1, tk, nil, []model.NodeID{"n1"})
		g.OnOperationBannedInTentativeTree("tentative")

		offer := model.Offer{Node: "n1", Resources: model.Resources{CPU: 1}, TreeID: "tentative"}
		sd, _, reason, err := g.Schedule(context.Background(), offer, nil, time.Now())

		Convey("the offer is rejected without touching any task", func() {
			So(err, ShouldBeNil)
			So(sd, ShouldBeNil)
			So(reason, ShouldEqual, opcerrors.ReasonOperationNotRunning)
			So(tk.scheduled, ShouldEqual, 0)
		})
	})
}
