package model

// TableSchema is a minimal stand-in for the real schema object (owned by the
// Master, §6): a sort order plus a uniqueness flag, which is all the commit
// pipeline (§4.6 invariant 5) and the pool variants (§4.1 Sorted) need.
type TableSchema struct {
	SortColumns []string
	UniqueKeys  bool
}

// OutputChunkEntry is one (boundary key, chunk-tree id) pair accumulated
// during execution, as described in §3.1 OutputTable.
type OutputChunkEntry struct {
	MinKey    BoundaryKey
	MaxKey    BoundaryKey
	ChunkTree ChunkID
	// OrderIndex records the position implied by GetOutputOrder() for
	// ordered (not sorted) outputs, so AttachOutputChunks can arrange by
	// recorded order instead of key (§4.6).
	OrderIndex int
}

// OutputTable is the target of one edge descriptor's Sink pool (§3.1).
type OutputTable struct {
	Path   string
	Schema TableSchema
	Sorted bool

	// PartSizeForDebugTables configures small-file packing for stderr/core tables; zero
	// means "not a stderr/core table" (§4.6, §14 supplemented feature).
	PartSizeForDebugTables int64

	BeginUploadTx TransactionID
	ChunkListID   ChunkID

	Entries []OutputChunkEntry
}

// EdgeDescriptor configures one outgoing data-flow arrow of a Task (glossary).
// It names the destination pool, whether the edge carries CompletedJob
// recovery info, and an optional live-preview index (§14).
type EdgeDescriptor struct {
	DestinationTask TaskHandle
	// DestinationSink is set instead of DestinationTask when this edge
	// terminates at an OutputTable rather than a downstream Task.
	DestinationSink int // index into the operation's output table list, or -1
	Recovery        bool
	LivePreviewIdx  int // -1 when live preview is disabled for this edge
}

const NoSink = -1
