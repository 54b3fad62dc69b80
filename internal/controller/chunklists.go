package controller

import (
	"context"
	"sync"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"opctl/internal/model"
)

// chunkListSource is the narrow Master surface chunkListPool needs: bulk
// pre-allocation of fresh chunk-list ids per cell.
type chunkListSource interface {
	AllocateChunkList(ctx context.Context, cell model.CellTag) (model.ChunkID, error)
}

// chunkListPool is the operation's global chunk-list pool per cell tag
// (§5 "Shared resources": allocate-if-below-watermark bulk allocation). It
// satisfies both task.ChunkListAllocator (single Allocate calls, draining
// the pool) and taskgroup.ChunkListChecker (HasEnough/Refill, used by the
// scheduling loop's pre-check before accepting an offer).
type chunkListPool struct {
	mu        sync.Mutex
	ctx       context.Context
	master    chunkListSource
	watermark int
	batch     int

	available map[model.CellTag][]model.ChunkID
}

// newChunkListPool constructs a pool that refills a cell once its available
// count is at or below watermark, pulling batch new ids at a time.
func newChunkListPool(ctx context.Context, master chunkListSource, watermark, batch int) *chunkListPool {
	if batch < 1 {
		batch = 1
	}
	return &chunkListPool{
		ctx:       ctx,
		master:    master,
		watermark: watermark,
		batch:     batch,
		available: make(map[model.CellTag][]model.ChunkID),
	}
}

// Allocate extracts one chunk-list id for cell, refilling first if the
// reserve is at or below the watermark.
func (p *chunkListPool) Allocate(cell model.CellTag) (model.ChunkID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.available[cell]) <= p.watermark {
		if err := p.refillLocked(cell); err != nil && len(p.available[cell]) == 0 {
			return "", errors.Annotate(err, "refilling chunk-list pool for cell %d", cell).Err()
		}
	}
	ids := p.available[cell]
	if len(ids) == 0 {
		return "", errors.Reason("chunk-list pool for cell %d exhausted", cell).Err()
	}
	id := ids[0]
	p.available[cell] = ids[1:]
	return id, nil
}

// HasEnough reports whether the pool can satisfy k more allocations from
// cell right now, without itself triggering a refill (taskgroup's
// ChunkListChecker precondition check, §4.4).
func (p *chunkListPool) HasEnough(cell model.CellTag, k int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.available[cell]) >= k
}

// Refill triggers a watermark-driven top-up for cell (§4.4's
// ChunkListChecker.Refill, called when HasEnough just failed).
func (p *chunkListPool) Refill(cell model.CellTag) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.refillLocked(cell); err != nil {
		logging.Warningf(p.ctx, "chunk-list pool: refilling cell %d: %s", cell, err)
	}
}

func (p *chunkListPool) refillLocked(cell model.CellTag) error {
	for i := 0; i < p.batch; i++ {
		id, err := p.master.AllocateChunkList(p.ctx, cell)
		if err != nil {
			return err
		}
		p.available[cell] = append(p.available[cell], id)
	}
	return nil
}
