package txpipeline

import (
	"context"

	"opctl/internal/model"
)

// MasterClient is the subset of the Master RPC surface the commit pipeline
// drives (§6: transaction start/abort/commit, chunk-service begin/end
// upload, teleport, batched attach).
type MasterClient interface {
	StartTransaction(ctx context.Context, parent model.TransactionID) (model.TransactionID, error)
	BeginUpload(ctx context.Context, table *model.OutputTable, tx model.TransactionID) error
	EndUpload(ctx context.Context, table *model.OutputTable) error
	TeleportChunk(ctx context.Context, chunk model.ChunkID, fromCell, toCell model.CellTag) error
	AttachChunks(ctx context.Context, table *model.OutputTable, children []model.ChunkID) error
	CommitTransaction(ctx context.Context, tx model.TransactionID) error
	AbortTransaction(ctx context.Context, tx model.TransactionID) error
}

// ChunkTreeInfo is what the pipeline needs to know about a chunk-tree id to
// decide whether it requires teleportation (§4.6 TeleportChunks).
type ChunkTreeInfo struct {
	IsChunkList bool
	Cell        model.CellTag
}

// ChunkTreeResolver looks up chunk-tree placement; implemented by C2's
// chunk map plus whatever registry tracks raw-chunk vs chunk-list identity.
type ChunkTreeResolver interface {
	Resolve(id model.ChunkID) ChunkTreeInfo
}
