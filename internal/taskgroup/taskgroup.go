// Package taskgroup implements the Task Group & Scheduler Interface (C4):
// a priority bucket of tasks sharing a minimum resource floor, answering
// scheduling offers with a two-pass local/non-local loop (§4.4).
package taskgroup

import (
	"context"
	"time"

	"opctl/internal/model"
	"opctl/internal/opcerrors"
)

// Task is the subset of *task.Task the group needs to drive scheduling; a
// narrow interface so the group can be tested against fakes without
// depending on the chunk pool machinery.
type Task interface {
	GetPendingJobCount() int
	GetMinNeededResources() model.Resources
	Locality(node model.NodeID) int64
	ScheduleJob(ctx context.Context, offer model.Offer, limits model.Resources, treeID string, tentative bool) (*model.StartDescriptor, opcerrors.SchedulingReason, error)
}

// ChunkListChecker answers whether enough chunk lists are pre-allocated for
// a task's destination cells before ScheduleJob is attempted (§4.4 "chunk
// list pre-allocation"). Implemented by the controller's chunk-list pool.
type ChunkListChecker interface {
	HasEnough(cell model.CellTag, k int) bool
	Refill(cell model.CellTag)
}

type member struct {
	task             Task
	destinationCells []model.CellTag
}

// TaskGroup is a priority bucket grouping tasks with a common minimum
// resource floor (§3.1 TaskGroup).
type TaskGroup struct {
	MinResources    model.Resources
	LocalityTimeout time.Duration
	ChunkListK      int

	members map[model.TaskHandle]*member

	// localityHints maps a node id to the tasks that reported a locality
	// hint for it, i.e. tasks holding at least one stripe with positive
	// locality there (§3.1 "per-node-id locality hint map").
	localityHints map[model.NodeID][]model.TaskHandle

	// touched/delayedUntil implement the non-local pass's one-shot delay:
	// the first time a candidate is considered it is pushed back by
	// LocalityTimeout to give the local pass elsewhere a chance to claim it
	// first (§4.4 step 3).
	touched      map[model.TaskHandle]bool
	delayedUntil map[model.TaskHandle]time.Time

	bannedTrees map[string]bool

	reasons map[opcerrors.SchedulingReason]int
}

// New constructs an empty TaskGroup.
func New(minResources model.Resources, localityTimeout time.Duration, chunkListK int) *TaskGroup {
	return &TaskGroup{
		MinResources:    minResources,
		LocalityTimeout: localityTimeout,
		ChunkListK:      chunkListK,
		members:         make(map[model.TaskHandle]*member),
		localityHints:   make(map[model.NodeID][]model.TaskHandle),
		touched:         make(map[model.TaskHandle]bool),
		delayedUntil:    make(map[model.TaskHandle]time.Time),
		bannedTrees:     make(map[string]bool),
		reasons:         make(map[opcerrors.SchedulingReason]int),
	}
}

// AddTask registers t under handle, along with the cells its outgoing edges
// write to (for chunk-list pre-allocation) and the nodes it currently has a
// locality hint for.
func (g *TaskGroup) AddTask(handle model.TaskHandle, t Task, destinationCells []model.CellTag, localNodes []model.NodeID) {
	g.members[handle] = &member{task: t, destinationCells: destinationCells}
	for _, n := range localNodes {
		g.localityHints[n] = append(g.localityHints[n], handle)
	}
}

// RemoveTask drops a completed task from the group so it is no longer
// considered by future scheduling passes.
func (g *TaskGroup) RemoveTask(handle model.TaskHandle) {
	delete(g.members, handle)
	delete(g.touched, handle)
	delete(g.delayedUntil, handle)
	for n, handles := range g.localityHints {
		g.localityHints[n] = removeHandle(handles, handle)
	}
}

func removeHandle(handles []model.TaskHandle, target model.TaskHandle) []model.TaskHandle {
	out := handles[:0]
	for _, h := range handles {
		if h != target {
			out = append(out, h)
		}
	}
	return out
}

// OnOperationBannedInTentativeTree excludes treeID from future scheduling
// offers for this group without touching jobs already running there (§14
// supplemented feature; §6 names the callback but leaves it unelaborated).
func (g *TaskGroup) OnOperationBannedInTentativeTree(treeID string) {
	g.bannedTrees[treeID] = true
}

func (g *TaskGroup) recordReason(r opcerrors.SchedulingReason) { g.reasons[r]++ }

// FailureReasons returns a snapshot of aggregated scheduling-failure counts
// for progress reporting (§4.4 "failure-to-schedule reasons are counted").
func (g *TaskGroup) FailureReasons() map[opcerrors.SchedulingReason]int {
	out := make(map[opcerrors.SchedulingReason]int, len(g.reasons))
	for r, n := range g.reasons {
		out[r] = n
	}
	return out
}
