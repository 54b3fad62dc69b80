package taskgroup

import (
	"context"
	"sort"
	"time"

	"opctl/internal/model"
	"opctl/internal/opcerrors"
)

// Schedule answers one scheduling offer per §4.4: reject outright if the
// offer can't even cover the group's resource floor, otherwise try the
// local pass (tasks with a locality hint for offer.Node) before falling
// back to the non-local pass (candidates ordered by min-memory, subject to
// the one-shot locality delay).
func (g *TaskGroup) Schedule(ctx context.Context, offer model.Offer, checker ChunkListChecker, now time.Time) (*model.StartDescriptor, model.TaskHandle, opcerrors.SchedulingReason, error) {
	if g.bannedTrees[offer.TreeID] {
		g.recordReason(opcerrors.ReasonOperationNotRunning)
		return nil, model.InvalidTaskHandle, opcerrors.ReasonOperationNotRunning, nil
	}
	if !offer.Resources.Dominates(g.MinResources) {
		g.recordReason(opcerrors.ReasonNotEnoughResources)
		return nil, model.InvalidTaskHandle, opcerrors.ReasonNotEnoughResources, nil
	}

	if sd, h, reason, err := g.scheduleLocal(ctx, offer, checker); sd != nil || err != nil {
		return sd, h, reason, err
	}

	return g.scheduleNonLocal(ctx, offer, checker, now)
}

// scheduleLocal implements §4.4 step 2: among tasks with a locality hint
// for offer.Node, pick the one with the highest locality score that clears
// the chunk-list check, and schedule it.
func (g *TaskGroup) scheduleLocal(ctx context.Context, offer model.Offer, checker ChunkListChecker) (*model.StartDescriptor, model.TaskHandle, opcerrors.SchedulingReason, error) {
	candidates := g.localityHints[offer.Node]
	if len(candidates) == 0 {
		return nil, model.InvalidTaskHandle, opcerrors.ReasonNone, nil
	}

	type scored struct {
		handle   model.TaskHandle
		locality int64
	}
	var ranked []scored
	for _, h := range candidates {
		m, ok := g.members[h]
		if !ok || m.task.GetPendingJobCount() == 0 {
			continue
		}
		ranked = append(ranked, scored{handle: h, locality: m.task.Locality(offer.Node)})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].locality > ranked[j].locality })

	for _, r := range ranked {
		m := g.members[r.handle]
		if !g.hasEnoughChunkLists(checker, m) {
			g.recordReason(opcerrors.ReasonNotEnoughChunkLists)
			continue
		}
		sd, reason, err := m.task.ScheduleJob(ctx, offer, offer.Resources, offer.TreeID, false)
		if err != nil {
			return nil, r.handle, reason, err
		}
		if sd != nil {
			return sd, r.handle, opcerrors.ReasonNone, nil
		}
		g.recordReason(reason)
	}
	return nil, model.InvalidTaskHandle, opcerrors.ReasonNone, nil
}

// scheduleNonLocal implements §4.4 step 3: promote delayed tasks whose
// timeout expired, then walk remaining candidates in increasing min-memory
// order, delaying any task touched for the first time.
func (g *TaskGroup) scheduleNonLocal(ctx context.Context, offer model.Offer, checker ChunkListChecker, now time.Time) (*model.StartDescriptor, model.TaskHandle, opcerrors.SchedulingReason, error) {
	for h, until := range g.delayedUntil {
		if !now.Before(until) {
			delete(g.delayedUntil, h)
		}
	}

	type candidate struct {
		handle    model.TaskHandle
		minMemory int64
	}
	var candidates []candidate
	for h, m := range g.members {
		if m.task.GetPendingJobCount() == 0 {
			continue
		}
		candidates = append(candidates, candidate{handle: h, minMemory: m.task.GetMinNeededResources().Memory})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].minMemory < candidates[j].minMemory })

	if len(candidates) == 0 {
		g.recordReason(opcerrors.ReasonNoCandidateTasks)
		return nil, model.InvalidTaskHandle, opcerrors.ReasonNoCandidateTasks, nil
	}

	for _, c := range candidates {
		if !g.touched[c.handle] {
			g.touched[c.handle] = true
			g.delayedUntil[c.handle] = now.Add(g.LocalityTimeout)
			g.recordReason(opcerrors.ReasonTaskDelayed)
			continue
		}
		if until, delayed := g.delayedUntil[c.handle]; delayed && now.Before(until) {
			g.recordReason(opcerrors.ReasonTaskDelayed)
			continue
		}

		m := g.members[c.handle]
		if !g.hasEnoughChunkLists(checker, m) {
			g.recordReason(opcerrors.ReasonNotEnoughChunkLists)
			continue
		}
		sd, reason, err := m.task.ScheduleJob(ctx, offer, offer.Resources, offer.TreeID, false)
		if err != nil {
			return nil, c.handle, reason, err
		}
		if sd != nil {
			delete(g.delayedUntil, c.handle)
			return sd, c.handle, opcerrors.ReasonNone, nil
		}
		g.recordReason(reason)
	}

	return nil, model.InvalidTaskHandle, opcerrors.ReasonNoCandidateTasks, nil
}

func (g *TaskGroup) hasEnoughChunkLists(checker ChunkListChecker, m *member) bool {
	if checker == nil {
		return true
	}
	ok := true
	for _, cell := range m.destinationCells {
		if !checker.HasEnough(cell, g.ChunkListK) {
			checker.Refill(cell)
			ok = false
		}
	}
	return ok
}
