package txpipeline

import (
	"sort"

	"go.chromium.org/luci/common/errors"

	"opctl/internal/model"
)

// orderEntries implements §4.6 AttachOutputChunks ordering: for sorted
// output, order by ascending MinKey and reject overlaps (and, if
// validateUniqueKeys, duplicate boundary keys); for ordered (non-sorted)
// output honoring GetOutputOrder(), arrange by the recorded OrderIndex
// instead.
func orderEntries(table *model.OutputTable, validateUniqueKeys bool) ([]model.OutputChunkEntry, error) {
	entries := append([]model.OutputChunkEntry(nil), table.Entries...)

	if !table.Sorted {
		sort.Slice(entries, func(i, j int) bool { return entries[i].OrderIndex < entries[j].OrderIndex })
		return entries, nil
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].MinKey.Less(entries[j].MinKey) })

	for i := 1; i < len(entries); i++ {
		prev, cur := entries[i-1], entries[i]
		if cur.MinKey.Less(prev.MaxKey) {
			return nil, errors.Reason("output table %s: overlapping chunk trees %s (max %s) and %s (min %s)",
				table.Path, prev.ChunkTree, prev.MaxKey, cur.ChunkTree, cur.MinKey).Err()
		}
		if validateUniqueKeys && !prev.MaxKey.Less(cur.MinKey) {
			return nil, errors.Reason("output table %s: duplicate boundary key between chunk trees %s and %s",
				table.Path, prev.ChunkTree, cur.ChunkTree).Err()
		}
	}
	return entries, nil
}

// batchChunkIDs splits ids into groups of at most maxPerRequest, the
// §4.6 "batched chunk-service calls limited by MaxChildrenPerAttachRequest".
func batchChunkIDs(ids []model.ChunkID, maxPerRequest int) [][]model.ChunkID {
	if maxPerRequest <= 0 {
		return [][]model.ChunkID{ids}
	}
	var out [][]model.ChunkID
	for len(ids) > 0 {
		n := maxPerRequest
		if n > len(ids) {
			n = len(ids)
		}
		out = append(out, ids[:n])
		ids = ids[n:]
	}
	return out
}
