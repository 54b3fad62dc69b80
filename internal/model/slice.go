package model

// LimitKind selects how a DataSlice's Lower/Upper bounds are interpreted.
type LimitKind int

const (
	LimitByRowIndex LimitKind = iota
	LimitByKey
	LimitByChunkIndex
)

// StripeTag identifies the logical stripe a DataSlice was cut from, so that
// interrupt-and-resume (§4.3) can reconstruct remaining work against the
// same input cookie lineage.
type StripeTag int64

// DataSlice is a (possibly versioned) view over one or more chunks bounded by
// a lower/upper limit. It is the unit of data a job can consume (§3.1).
type DataSlice struct {
	Chunks []ChunkID
	Kind   LimitKind

	LowerRow, UpperRow     int64
	LowerKey, UpperKey     BoundaryKey
	LowerChunk, UpperChunk int

	Tag StripeTag

	DataWeight int64
	RowCount   int64
}

// Unavailable reports whether any chunk backing this slice is currently
// marked unavailable by the scraper's view, used by the pool to decide
// whether a pending stripe must suspend.
func (s *DataSlice) Unavailable(unavailable map[ChunkID]bool) bool {
	for _, c := range s.Chunks {
		if unavailable[c] {
			return true
		}
	}
	return false
}
