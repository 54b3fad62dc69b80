package controller

import (
	"sync"

	"opctl/internal/model"
)

// LivePreview is the §14 supplemented feature: intermediate,
// continuously-updated preview output attached under the Async
// transaction, mentioned by spec.md §3.1/§4.9 but never given an operation
// surface there. One LivePreview tracks one edge's accumulated chunk-tree
// entries so a reader can see partial output before the operation commits.
type LivePreview struct {
	mu      sync.RWMutex
	enabled bool
	tables  map[int][]model.OutputChunkEntry // live-preview index -> entries
}

// NewLivePreview constructs a LivePreview; enabled mirrors
// OperationSpec.EnableLivePreview.
func NewLivePreview(enabled bool) *LivePreview {
	return &LivePreview{enabled: enabled, tables: make(map[int][]model.OutputChunkEntry)}
}

// Enabled reports whether live preview is active for this operation.
func (lp *LivePreview) Enabled() bool { return lp.enabled }

// Update records newly produced chunk entries for a live-preview index,
// called on each OnJobCompleted when enabled (§14).
func (lp *LivePreview) Update(idx int, entries []model.OutputChunkEntry) {
	if !lp.enabled || idx < 0 {
		return
	}
	lp.mu.Lock()
	defer lp.mu.Unlock()
	lp.tables[idx] = append(lp.tables[idx], entries...)
}

// Snapshot returns a copy of the accumulated entries for a live-preview
// index, safe for a concurrent reader.
func (lp *LivePreview) Snapshot(idx int) []model.OutputChunkEntry {
	lp.mu.RLock()
	defer lp.mu.RUnlock()
	entries := lp.tables[idx]
	out := make([]model.OutputChunkEntry, len(entries))
	copy(out, entries)
	return out
}
