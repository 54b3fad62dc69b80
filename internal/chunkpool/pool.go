// Package chunkpool implements the chunk pool variants of §4.1: Unordered,
// Ordered, Sorted, Shuffle and Sink. Each pool partitions input data slices
// into job-sized stripes respecting locality, key ordering and size
// constraints, and tracks pending/suspended/completed/lost stripes.
//
// Pools are an open variant set (spec.md §9 design note): rather than a
// class hierarchy, Kind is a closed enum and NewPool is a factory keyed on
// it, so persistence can dispatch on the tag alone.
package chunkpool

import (
	"opctl/internal/model"

	"go.chromium.org/luci/common/errors"
)

// Kind names a concrete pool variant.
type Kind int

const (
	KindUnordered Kind = iota
	KindOrdered
	KindSorted
	KindShuffle
	KindSink
)

func (k Kind) String() string {
	switch k {
	case KindUnordered:
		return "unordered"
	case KindOrdered:
		return "ordered"
	case KindSorted:
		return "sorted"
	case KindShuffle:
		return "shuffle"
	case KindSink:
		return "sink"
	default:
		return "unknown"
	}
}

// Extraction carries the result of successfully pulling one job's worth of
// work out of a pool.
type Extraction struct {
	OutputCookie model.Cookie
	Stripes      model.ChunkStripeList
	// InputCookies records which input cookies contributed to this
	// extraction, so recovery (Lost) can map an output cookie back to the
	// exact set of input cookies it consumed (§3.1 invariant).
	InputCookies []model.Cookie
}

// Pool is the capability set every chunk pool variant implements (§4.1).
type Pool interface {
	Kind() Kind

	// Add registers a new input stripe and returns its input cookie.
	Add(stripe model.ChunkStripe) model.Cookie

	// Suspend marks the stripe behind cookie as having one more unavailable
	// chunk; idempotent per the per-cookie suspension counter — repeated
	// calls for distinct newly-unavailable chunks accumulate, the pool never
	// hands out a stripe while its counter is above zero.
	Suspend(cookie model.Cookie)

	// Resume reverses one Suspend call. The stripe becomes extractable again
	// once its counter returns to zero.
	Resume(cookie model.Cookie)

	// Reset replaces the still-pending stripe behind cookie with a new one
	// (e.g. after chunk teleportation remapped its constituent chunks via
	// chunkmap) and clears its suspension counter.
	Reset(cookie model.Cookie, stripe model.ChunkStripe) error

	// Finish declares that no more Add calls will arrive. No pool kind
	// batches stripes, so every implementation is a no-op.
	Finish()

	// Extract pulls one job's worth of ready stripes for a scheduling offer
	// from node. Returns ok=false if nothing is extractable right now.
	Extract(node model.NodeID) (Extraction, bool)

	// Completed reports that the job holding outputCookie finished
	// successfully.
	Completed(outputCookie model.Cookie) error

	// Failed returns the stripe behind outputCookie to the pending set.
	Failed(outputCookie model.Cookie) error

	// Aborted behaves like Failed but is counted separately by the caller.
	Aborted(outputCookie model.Cookie) error

	// Lost returns the stripe list behind outputCookie to the pending set
	// exactly once; calling it twice for the same cookie is a bug and
	// returns an error instead of silently succeeding (§3.1 invariant).
	Lost(outputCookie model.Cookie) error

	// JobCounter returns (pending, running, completed) job counts.
	JobCounter() (pending, running, completed int)

	// DataWeightCounter returns (pending, running, completed, lost) data
	// weight, which must sum to the pool's total input weight at all times
	// (§8 invariant 1).
	DataWeightCounter() (pending, running, completed, lostInFlight int64)

	// Locality estimates how well node n is positioned to extract from this
	// pool right now (sum of per-chunk locality scores over ready stripes).
	Locality(n model.NodeID) int64
}

// ErrDoubleLost is returned by Lost when outputCookie was already released.
var ErrDoubleLost = errors.Reason("lost() called twice for the same output cookie").Err()

// ErrUnknownCookie is returned when a cookie doesn't belong to this pool.
var ErrUnknownCookie = errors.Reason("unknown cookie").Err()

// Config configures stripe extraction. JobDataWeight and JobSliceCount are
// the two alternative job-sizing knobs of §4.1; zero means "unbounded" for
// that dimension.
type Config struct {
	JobDataWeight int64
	JobSliceCount int

	// EnableKeyGuarantee disables splitting a reduce-key across jobs for the
	// Sorted pool (§4.1). NewPool applies no default: the zero value leaves
	// the guarantee off, so a key's stripes may be split across jobs unless
	// the caller sets it.
	EnableKeyGuarantee bool

	// KeyColumns is the ReduceBy/JoinBy/SortBy prefix the Sorted pool groups
	// by.
	KeyColumns []string

	// PartitionCount is the number of shuffle partitions for the Shuffle
	// pool (map-reduce mapper -> reducer fan-out).
	PartitionCount int
}

// EntriesProvider is implemented by the Sink pool kind so the transaction
// pipeline (C7) can read back everything recorded into it without the rest
// of the Pool interface needing to expose sink-only behavior.
type EntriesProvider interface {
	Entries() []model.ChunkStripe
}

// NewPool is the factory referenced by spec.md §9: it dispatches on Kind
// rather than growing a type hierarchy.
func NewPool(kind Kind, cfg Config) (Pool, error) {
	switch kind {
	case KindUnordered:
		return newUnorderedPool(cfg), nil
	case KindOrdered:
		return newOrderedPool(cfg), nil
	case KindSorted:
		return newSortedPool(cfg), nil
	case KindShuffle:
		return newShufflePool(cfg), nil
	case KindSink:
		return newSinkPool(cfg), nil
	default:
		return nil, errors.Reason("unknown pool kind %d", kind).Err()
	}
}
