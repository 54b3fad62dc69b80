package model

// BoundaryKey is an opaque, comparable serialized key used to order sorted
// output and to detect overlaps/duplicates at commit time (§8 invariant 5).
type BoundaryKey string

// Less reports whether k sorts strictly before other. Keys compare bytewise;
// the real key encoding (composite typed values) is an external-collaborator
// concern (§6) — callers only ever receive already-serialized keys from the
// Master.
func (k BoundaryKey) Less(other BoundaryKey) bool { return k < other }

// ErasureCodec names the erasure coding scheme protecting a chunk's replicas.
type ErasureCodec int

const (
	// ErasureNone means the chunk is replicated, not erasure coded.
	ErasureNone ErasureCodec = iota
	ErasureReedSolomon
	ErasureLRC
)

// Replica is one physical copy of a chunk, hosted on a cell and reachable
// through a set of candidate nodes for locality scoring.
type Replica struct {
	Cell  CellTag
	Nodes []NodeID
}

// InputChunk is an immutable descriptor of one stored data chunk (§3.1).
// It is reference-counted by the Task that added it to a pool; the count
// lives on the owning Task, not here, since ownership is single-writer.
type InputChunk struct {
	ID    ChunkID
	Cell  CellTag
	Table int // index into the operation's input table list

	Replicas []Replica
	Codec    ErasureCodec

	RowCount    int64
	ByteSize    int64
	DataWeight  int64

	// LowerKey/UpperKey are optional boundary keys for sorted input tables.
	LowerKey BoundaryKey
	UpperKey BoundaryKey
	HasKeys  bool
}

// Locality returns a score for how well this chunk is placed for node n:
// the number of replicas with a candidate on n. Ties in pool extraction are
// broken by stripe age, not a finer locality score (§4.1).
func (c *InputChunk) Locality(n NodeID) int {
	score := 0
	for _, r := range c.Replicas {
		for _, cand := range r.Nodes {
			if cand == n {
				score++
			}
		}
	}
	return score
}
