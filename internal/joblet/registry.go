// Package joblet implements the controller-side joblet bookkeeping of C5:
// CompletedJob recovery records for edges that need them, and a per-task
// restart index so a replayed predecessor doesn't double-count rows.
package joblet

import (
	"sync"

	"opctl/internal/model"
)

// CompletedJob is controller-side recovery info for a finished job whose
// downstream edge requires it (§3.1, §4.2): enough to resend the job's
// output without re-running it if a later task forces a predecessor replay.
type CompletedJob struct {
	JobID        model.JobID
	TaskHandle   model.TaskHandle
	OutputChunks [][]model.ChunkID
}

// Registry tracks CompletedJobs and a per-task restart count.
type Registry struct {
	mu        sync.RWMutex
	completed map[model.JobID]CompletedJob
	restarts  map[model.TaskHandle]int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		completed: make(map[model.JobID]CompletedJob),
		restarts:  make(map[model.TaskHandle]int),
	}
}

// Register implements task.CompletedJobRegistrar without a task handle;
// the controller should prefer RegisterForTask when it knows the handle,
// since ForTask can't group entries registered through this method.
func (r *Registry) Register(jobID model.JobID, outputChunks [][]model.ChunkID) {
	r.RegisterForTask(model.InvalidTaskHandle, jobID, outputChunks)
}

// RegisterForTask is the handle-aware variant the controller calls when it
// already knows which task produced jobID.
func (r *Registry) RegisterForTask(handle model.TaskHandle, jobID model.JobID, outputChunks [][]model.ChunkID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed[jobID] = CompletedJob{JobID: jobID, TaskHandle: handle, OutputChunks: outputChunks}
}

// ForTask returns every CompletedJob recorded for handle, used to resend
// recovery info to a downstream edge after a predecessor restart.
func (r *Registry) ForTask(handle model.TaskHandle) []CompletedJob {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []CompletedJob
	for _, cj := range r.completed {
		if cj.TaskHandle == handle {
			out = append(out, cj)
		}
	}
	return out
}

// Forget drops a CompletedJob once its recovery info is no longer needed.
func (r *Registry) Forget(jobID model.JobID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.completed, jobID)
}

// RecordRestart increments and returns the restart count for handle, so a
// task that must re-run (§7 IntermediateChunkUnavailable: "if the producing
// task is restartable, replay") can tell how many times its input cookie
// lineage has already been replayed.
func (r *Registry) RecordRestart(handle model.TaskHandle) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.restarts[handle]++
	return r.restarts[handle]
}

// RestartCount reports how many times handle's task has been restarted.
func (r *Registry) RestartCount(handle model.TaskHandle) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.restarts[handle]
}
