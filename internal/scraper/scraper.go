// Package scraper implements the Chunk Scraper (C6): periodically asks
// Master for replica lists of a tracked chunk-id set, in batches, and
// classifies each reply as available, unavailable, or (for input chunks)
// fatally missing (§4.5).
package scraper

import (
	"context"
	"sync"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/sync/parallel"

	"opctl/internal/model"
)

// Kind distinguishes an input-table scraper (missing chunks are fatal) from
// an intermediate-chunk scraper (missing chunks are dropped silently,
// expected during auto-merge) per §4.5.
type Kind int

const (
	KindInput Kind = iota
	KindIntermediate
)

// MasterClient is the subset of the Master RPC surface the scraper needs
// (§6 "Chunk service: ... locate-chunks for the scraper").
type MasterClient interface {
	LocateChunks(ctx context.Context, ids []model.ChunkID) (map[model.ChunkID][]model.Replica, error)
}

// MinReplicas returns how many replicas a chunk coded with codec needs to
// be considered available; the scraper never hardcodes these per erasure
// scheme, since the real thresholds live with the storage layer (§4.5 "per
// erasure policy").
type MinReplicas func(codec model.ErasureCodec) int

// Callbacks are the per-chunk reactions §4.5 describes; OnMissing is only
// invoked for KindInput scrapers (the caller decides whether that fails the
// whole operation).
type Callbacks struct {
	OnAvailable   func(id model.ChunkID, replicas []model.Replica)
	OnUnavailable func(id model.ChunkID)
	OnMissing     func(id model.ChunkID)
}

// Scraper tracks a set of chunk ids to relocate and periodically resolves
// them against Master in batches (§4.5).
type Scraper struct {
	kind        Kind
	master      MasterClient
	batchSize   int
	minReplicas MinReplicas
	codecOf     func(model.ChunkID) model.ErasureCodec
	cb          Callbacks

	mu        sync.Mutex
	pending   map[model.ChunkID]bool
	running   bool
	startedAt int // count of times Start was observed, for tests/metrics
}

// New constructs a Scraper. codecOf looks up a chunk's erasure codec so the
// scraper can apply minReplicas without owning a chunk registry itself.
func New(kind Kind, master MasterClient, batchSize int, minReplicas MinReplicas, codecOf func(model.ChunkID) model.ErasureCodec, cb Callbacks) *Scraper {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &Scraper{
		kind:        kind,
		master:      master,
		batchSize:   batchSize,
		minReplicas: minReplicas,
		codecOf:     codecOf,
		cb:          cb,
		pending:     make(map[model.ChunkID]bool),
	}
}

// Add starts tracking id for relocation, starting the scraper if it was
// idle (§4.5 "started when [unavailable count] goes non-zero").
func (s *Scraper) Add(id model.ChunkID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[id] = true
	if !s.running {
		s.running = true
		s.startedAt++
	}
}

// Remove stops tracking id, stopping the scraper once nothing remains
// (§4.5 "stopped when the unavailable count hits zero").
func (s *Scraper) Remove(id model.ChunkID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
	if len(s.pending) == 0 {
		s.running = false
	}
}

// Running reports whether the scraper currently has chunks to resolve.
func (s *Scraper) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// StartedCount reports how many times Add has (re-)started the scraper
// from idle, for tests and metrics.
func (s *Scraper) StartedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

func (s *Scraper) snapshotPending() []model.ChunkID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ChunkID, 0, len(s.pending))
	for id := range s.pending {
		out = append(out, id)
	}
	return out
}

func (s *Scraper) batches(ids []model.ChunkID) [][]model.ChunkID {
	var out [][]model.ChunkID
	for len(ids) > 0 {
		n := s.batchSize
		if n > len(ids) {
			n = len(ids)
		}
		out = append(out, ids[:n])
		ids = ids[n:]
	}
	return out
}

// Poll runs one scrape pass over every currently tracked chunk, issuing
// batched LocateChunks calls with bounded fan-out (§4.5, §5 suspension
// points: each batch call is a suspension point between otherwise
// consistent state).
func (s *Scraper) Poll(ctx context.Context) error {
	if !s.Running() {
		return nil
	}
	batches := s.batches(s.snapshotPending())
	if len(batches) == 0 {
		return nil
	}

	return parallel.WorkPool(8, func(work chan<- func() error) {
		for _, batch := range batches {
			batch := batch
			work <- func() error { return s.pollBatch(ctx, batch) }
		}
	})
}

func (s *Scraper) pollBatch(ctx context.Context, batch []model.ChunkID) error {
	located, err := s.master.LocateChunks(ctx, batch)
	if err != nil {
		return errors.Annotate(err, "scraper: locating %d chunks", len(batch)).Err()
	}
	for _, id := range batch {
		replicas, found := located[id]
		if !found {
			s.onMissing(ctx, id)
			continue
		}
		if len(replicas) >= s.minReplicasFor(id) {
			s.Remove(id)
			if s.cb.OnAvailable != nil {
				s.cb.OnAvailable(id, replicas)
			}
		} else if s.cb.OnUnavailable != nil {
			s.cb.OnUnavailable(id)
		}
	}
	return nil
}

func (s *Scraper) minReplicasFor(id model.ChunkID) int {
	if s.minReplicas == nil || s.codecOf == nil {
		return 1
	}
	return s.minReplicas(s.codecOf(id))
}

func (s *Scraper) onMissing(ctx context.Context, id model.ChunkID) {
	switch s.kind {
	case KindInput:
		logging.Errorf(ctx, "scraper: input chunk %s missing", id)
		if s.cb.OnMissing != nil {
			s.cb.OnMissing(id)
		}
	case KindIntermediate:
		logging.Debugf(ctx, "scraper: intermediate chunk %s missing, dropping (expected during auto-merge)", id)
		s.Remove(id)
	}
}
