package controller

import (
	"go.chromium.org/luci/common/errors"

	"opctl/internal/chunkpool"
	"opctl/internal/model"
	"opctl/internal/task"
)

// taskRegistrar adapts joblet.Registry to task.CompletedJobRegistrar, binding
// the owning task's handle so restart bookkeeping stays per-task.
type taskRegistrar struct {
	handle model.TaskHandle
	reg    jobletRegistrar
}

// jobletRegistrar is the narrow capability taskRegistrar needs from
// internal/joblet.Registry.
type jobletRegistrar interface {
	RegisterForTask(handle model.TaskHandle, jobID model.JobID, outputChunks [][]model.ChunkID)
}

func (r *taskRegistrar) Register(jobID model.JobID, outputChunks [][]model.ChunkID) {
	r.reg.RegisterForTask(r.handle, jobID, outputChunks)
}

// operationRouter implements task.Router by resolving an EdgeDescriptor
// against the operation's live task and sink-pool tables (§9: edges carry
// handles, never owning pointers, so routing always goes through this
// central lookup rather than a pointer baked into the edge).
type operationRouter struct {
	op *Operation
}

func (r *operationRouter) Resolve(edge model.EdgeDescriptor) (task.Destination, error) {
	if edge.DestinationSink != model.NoSink {
		pool, ok := r.op.sinkPools[edge.DestinationSink]
		if !ok {
			return nil, errors.Reason("no sink pool registered for output table index %d", edge.DestinationSink).Err()
		}
		return pool, nil
	}
	t, ok := r.op.tasks[edge.DestinationTask]
	if !ok {
		return nil, errors.Reason("no task registered for handle %d", edge.DestinationTask).Err()
	}
	return t.Pool, nil
}

// sinkEntries reads back everything an output table's sink pool has
// accumulated, for the commit pipeline to attach (§4.6).
func sinkEntries(pool chunkpool.Pool) []model.ChunkStripe {
	provider, ok := pool.(chunkpool.EntriesProvider)
	if !ok {
		return nil
	}
	return provider.Entries()
}
