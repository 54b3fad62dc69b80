// Package chunkmap implements the input chunk mapping (C2): it maps
// original chunk identities to their current replica after relocation
// (teleportation, auto-merge rewrite), so interrupt-and-split (§4.3) can
// reconstruct slices from a job's reported descriptors against chunks that
// may have moved since the job started.
package chunkmap

import "opctl/internal/model"

// Map is mutated only on the controller's single-writer invoker (§5); it
// needs no internal locking.
type Map struct {
	current map[model.ChunkID]model.ChunkID
}

// New returns an empty mapping; every chunk defaults to mapping to itself
// until explicitly relocated.
func New() *Map {
	return &Map{current: make(map[model.ChunkID]model.ChunkID)}
}

// Resolve returns the chunk id that original currently lives under.
func (m *Map) Resolve(original model.ChunkID) model.ChunkID {
	if cur, ok := m.current[original]; ok {
		return cur
	}
	return original
}

// Relocate records that original now lives as replacement. Relocations
// compose: resolving an id that was itself a prior replacement still
// resolves to the final, current location.
func (m *Map) Relocate(original, replacement model.ChunkID) {
	// Collapse any existing chain so Resolve stays O(1).
	for k, v := range m.current {
		if v == original {
			m.current[k] = replacement
		}
	}
	m.current[original] = replacement
}

// Len reports how many chunk ids have ever been relocated.
func (m *Map) Len() int { return len(m.current) }
