// Package opcerrors defines the controller's error-kind taxonomy (§7) as
// luci/common/errors tags rather than as concrete error types, so a single
// wrapped error can carry several kinds (e.g. transient + chunk-unavailable)
// and existing annotation chains keep working with errors.Annotate.
package opcerrors

import "go.chromium.org/luci/common/errors"

var (
	// FatalTag marks a UserJobFailed error whose "fatal" attribute requires
	// immediately failing the whole operation (§4.2, §7).
	FatalTag = errors.BoolTag{Key: errors.NewTagKey("operation-fatal")}

	// TransientTag marks RPC errors retried with exponential backoff by the
	// Master/Scheduler clients (§7) instead of bubbling to the controller.
	TransientTag = errors.BoolTag{Key: errors.NewTagKey("transient")}

	// ResolveTag marks a Resolve error: a referenced node disappeared,
	// typically recoverable via clean-start revival (§7).
	ResolveTag = errors.BoolTag{Key: errors.NewTagKey("resolve")}

	// TransactionAbortedTag marks a scheduler- or user-aborted transaction;
	// the operation aborts (§7).
	TransactionAbortedTag = errors.BoolTag{Key: errors.NewTagKey("transaction-aborted")}

	// ChunkUnavailableTag marks an input chunk missing; policy chooses among
	// Fail/Skip/Wait (§7).
	ChunkUnavailableTag = errors.BoolTag{Key: errors.NewTagKey("chunk-unavailable")}

	// IntermediateChunkUnavailableTag marks a lost intermediate chunk; if the
	// producing task is restartable it is replayed, else the operation fails
	// (§7).
	IntermediateChunkUnavailableTag = errors.BoolTag{Key: errors.NewTagKey("intermediate-chunk-unavailable")}

	// ResourceOverdraftTag marks a job aborted for exceeding its memory
	// reservation; treated as an abort that bumps the memory digest (§7).
	ResourceOverdraftTag = errors.BoolTag{Key: errors.NewTagKey("resource-overdraft")}

	// AccountLimitExceededTag marks an error that suspends the operation
	// pending admin action (§7).
	AccountLimitExceededTag = errors.BoolTag{Key: errors.NewTagKey("account-limit-exceeded")}

	// OperationFailedOnJobRestartTag marks a restart attempted while
	// fail_on_job_restart is set (§7).
	OperationFailedOnJobRestartTag = errors.BoolTag{Key: errors.NewTagKey("failed-on-job-restart")}

	// AssertionFailureTag marks an internal-bug error; carries stack-trace
	// and core-path attributes at the call site via errors.Annotate (§7).
	AssertionFailureTag = errors.BoolTag{Key: errors.NewTagKey("assertion-failure")}
)

// SchedulingReason enumerates the scheduling-loop failure reasons that are
// aggregated and reported, never raised as Go errors (§7, §4.4).
type SchedulingReason int

const (
	ReasonNone SchedulingReason = iota
	ReasonNotEnoughResources
	ReasonNotEnoughChunkLists
	ReasonNoCandidateTasks
	ReasonTaskDelayed
	ReasonOperationNotRunning
	ReasonJobSpecThrottling
)

func (r SchedulingReason) String() string {
	switch r {
	case ReasonNotEnoughResources:
		return "NotEnoughResources"
	case ReasonNotEnoughChunkLists:
		return "NotEnoughChunkLists"
	case ReasonNoCandidateTasks:
		return "NoCandidateTasks"
	case ReasonTaskDelayed:
		return "TaskDelayed"
	case ReasonOperationNotRunning:
		return "OperationNotRunning"
	case ReasonJobSpecThrottling:
		return "JobSpecThrottling"
	default:
		return "None"
	}
}
