package model

// ChunkStripe is a set of DataSlices forming one job's input, possibly split
// per table. WaitingChunkCount tracks how many of its chunks are currently
// unavailable; the stripe is ready iff WaitingChunkCount == 0 (§3.1).
type ChunkStripe struct {
	Slices            []DataSlice
	WaitingChunkCount int

	CreatedAtSeq int64 // logical age, used to break locality ties (§4.1)

	// NodeLocality is precomputed by the Task when it builds the stripe from
	// its InputChunks (which own replica/locality data, §3.1), so the pool
	// itself never needs a chunk registry — it only scores stripes it
	// already holds.
	NodeLocality map[NodeID]int

	// ReduceKey is the serialized ReduceBy/JoinBy/SortBy prefix this stripe
	// shares with every other stripe carrying the same reduce key; the
	// Sorted pool groups on it to honor the key guarantee (§4.1).
	ReduceKey string

	// PartitionTag is the shuffle partition this stripe belongs to, used by
	// the Shuffle pool between a mapper and a reducer (§4.1).
	PartitionTag int
}

// Ready reports whether every chunk backing this stripe is currently
// available.
func (s *ChunkStripe) Ready() bool { return s.WaitingChunkCount == 0 }

// DataWeight sums the data weight of every slice in the stripe.
func (s *ChunkStripe) DataWeight() int64 {
	var w int64
	for _, sl := range s.Slices {
		w += sl.DataWeight
	}
	return w
}

// RowCount sums the row count of every slice in the stripe.
func (s *ChunkStripe) RowCount() int64 {
	var n int64
	for _, sl := range s.Slices {
		n += sl.RowCount
	}
	return n
}

// ChunkCount returns the number of distinct chunks referenced by the stripe.
func (s *ChunkStripe) ChunkCount() int {
	seen := make(map[ChunkID]bool)
	for _, sl := range s.Slices {
		for _, c := range sl.Chunks {
			seen[c] = true
		}
	}
	return len(seen)
}

// ChunkStripeList is the ordered list of stripes handed to one job (§3.1),
// annotated with the aggregate totals the scheduler and progress reporters
// need without re-walking every slice.
type ChunkStripeList struct {
	Stripes []ChunkStripe

	TotalDataWeight int64
	TotalRowCount   int64
	TotalChunkCount int
}

// NewChunkStripeList computes the aggregate totals for stripes.
func NewChunkStripeList(stripes []ChunkStripe) ChunkStripeList {
	l := ChunkStripeList{Stripes: stripes}
	seen := make(map[ChunkID]bool)
	for _, s := range stripes {
		l.TotalDataWeight += s.DataWeight()
		l.TotalRowCount += s.RowCount()
		for _, sl := range s.Slices {
			for _, c := range sl.Chunks {
				seen[c] = true
			}
		}
	}
	l.TotalChunkCount = len(seen)
	return l
}
