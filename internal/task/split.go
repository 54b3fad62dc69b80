package task

import (
	"context"
	"math"

	"go.chromium.org/luci/common/logging"

	"opctl/internal/model"
)

// reconstructInterruptedWork implements §4.3: rebuild input data slices from
// the unread descriptors a cooperatively-stopped job reported, split them
// proportionally to how much of the expected rows were actually read, and
// re-add the remainder to the pool as new stripes.
func (t *Task) reconstructInterruptedWork(ctx context.Context, consumedCookie model.Cookie, summary model.JobSummary) error {
	remaining := collectUnread(summary)
	if len(remaining) == 0 {
		return nil
	}
	remaining = t.resolveRelocatedChunks(remaining)

	splitCount := estimateSplitCount(summary)
	groups := splitSlices(remaining, splitCount)

	for _, group := range groups {
		stripe := model.ChunkStripe{Slices: group, CreatedAtSeq: t.nextSeq()}
		cookie := t.Pool.Add(stripe)
		logging.Infof(ctx, "task %d: re-added split stripe %s covering %d unread slices from interrupted job %s (source cookie %s)",
			t.Handle, cookie, len(group), summary.JobID, consumedCookie)
	}
	return nil
}

// resolveRelocatedChunks rewrites every chunk id in slices through the
// task's chunk map (§4.3 "looking up chunks by the mapping in C2"): a chunk
// reported unread by an interrupted job may have since been teleported or
// folded into an auto-merge output, and the reconstructed stripe must point
// at wherever it lives now, not at the id the job reported.
func (t *Task) resolveRelocatedChunks(slices []model.DataSlice) []model.DataSlice {
	if t.chunkMap == nil {
		return slices
	}
	out := make([]model.DataSlice, len(slices))
	for i, sl := range slices {
		resolved := make([]model.ChunkID, len(sl.Chunks))
		for j, c := range sl.Chunks {
			resolved[j] = t.chunkMap.Resolve(c)
		}
		sl.Chunks = resolved
		out[i] = sl
	}
	return out
}

func collectUnread(summary model.JobSummary) []model.DataSlice {
	var out []model.DataSlice
	for _, d := range summary.UnreadSlices {
		out = append(out, d.Slice)
	}
	return out
}

// estimateSplitCount implements the §4.3 ratio: total-expected-rows /
// rows-already-read, rounded up and floored at 1 so an interrupted job
// always re-splits into at least its own remaining work.
func estimateSplitCount(summary model.JobSummary) int {
	if summary.RowsRead <= 0 || summary.TotalExpectedRowCount <= 0 {
		return 1
	}
	ratio := float64(summary.TotalExpectedRowCount) / float64(summary.RowsRead)
	n := int(math.Ceil(ratio))
	if n < 1 {
		return 1
	}
	return n
}

// splitSlices distributes slices round-robin across at most n groups, so
// the reconstructed stripes share the remaining work roughly evenly instead
// of producing one oversized stripe and n-1 empty ones.
func splitSlices(slices []model.DataSlice, n int) [][]model.DataSlice {
	if n > len(slices) {
		n = len(slices)
	}
	if n < 1 {
		n = 1
	}
	groups := make([][]model.DataSlice, n)
	for i, sl := range slices {
		groups[i%n] = append(groups[i%n], sl)
	}
	nonEmpty := groups[:0]
	for _, g := range groups {
		if len(g) > 0 {
			nonEmpty = append(nonEmpty, g)
		}
	}
	return nonEmpty
}
