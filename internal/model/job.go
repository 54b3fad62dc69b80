package model

import "time"

// InterruptReason names why a job stopped cooperatively instead of running
// to completion (§4.3).
type InterruptReason int

const (
	InterruptNone InterruptReason = iota
	InterruptScheduler
	InterruptJobSplitter
	InterruptResourceOverdraft
)

// AbortReason enumerates the job-abort causes §4.2 treats specially.
type AbortReason int

const (
	AbortNone AbortReason = iota
	AbortResourceOverdraft
	AbortFailedChunks
	AbortUserRequest
	AbortAccountLimitExceeded
)

// DataSliceDescriptor is one remaining-work slice reported by an
// interrupted job: Read distinguishes rows the job already consumed (but
// whose output wasn't durably committed) from rows it never touched (§4.3).
type DataSliceDescriptor struct {
	Slice DataSlice
	Read  bool
}

// JobSummary is what a node reports back through the scheduler for a
// finished, failed, aborted or interrupted job (§6).
type JobSummary struct {
	JobID JobID

	// Error carries the job-level failure, if any, with opcerrors tags
	// (fatal, transient, ...) attached by the caller.
	Error error

	// OutputChunks holds the chunk-tree ids produced per outgoing edge, in
	// edge-index order. OutputWeights mirrors its shape with each chunk's
	// data weight, since the controller builds downstream ChunkStripes from
	// both together.
	OutputChunks  [][]ChunkID
	OutputWeights [][]int64

	InterruptReason InterruptReason
	AbortReason     AbortReason

	// UnreadSlices/ReadSlices are only populated when InterruptReason !=
	// InterruptNone (§4.3).
	UnreadSlices []DataSliceDescriptor
	ReadSlices   []DataSliceDescriptor

	TotalExpectedRowCount int64
	RowsRead              int64

	ObservedJobProxyMemory int64
	ObservedUserJobMemory  int64

	CPUTimeRatio   float64
	IOOpsPerSecond float64
	TmpfsUsedBytes int64
	Duration       time.Duration
}

// Offer is one scheduling opportunity presented by the scheduler (§4.4, §6).
type Offer struct {
	Node      NodeID
	Resources Resources
	TreeID    string
}

// JobSpec is the job specification handed to the scheduler/node: the
// per-task template plus this job's concrete stripe list and freshly
// extracted output chunk-list ids (§4.2).
type JobSpec struct {
	JobType string

	Stripes ChunkStripeList

	// OutputChunkLists has one entry per outgoing edge descriptor, freshly
	// extracted from the operation's chunk-list pool.
	OutputChunkLists []ChunkID

	MemoryLimit int64

	UserJobCommand string
	UserJobEnv     map[string]string
	TmpfsSizeBytes int64
}

// StartDescriptor is what ScheduleJob returns on success (§4.2, §6).
type StartDescriptor struct {
	JobID         JobID
	Resources     Resources
	Interruptible bool
	Spec          JobSpec
}
