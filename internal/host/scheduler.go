package host

import (
	"context"

	"opctl/internal/model"
)

// SchedulerClient is the controller-facing half of the Scheduler boundary
// (§6): the controller calls OnOperationBannedInTentativeTree on it; the
// scheduler calls back into the controller's ScheduleJob/OnJob* methods
// (modeled as the Controller interface below).
type SchedulerClient interface {
	OnOperationBannedInTentativeTree(ctx context.Context, treeID string)
	GetExecNodeCount(ctx context.Context) (int, error)
}

// Controller is the subset of an operation's surface the scheduler drives
// (§6). internal/controller.Operation does not satisfy it: its
// OnJobCompleted, OnJobFailed and OnJobAborted also take the owning task's
// handle.
type Controller interface {
	ScheduleJob(ctx context.Context, offer model.Offer, limits model.Resources, treeID string) (*model.StartDescriptor, error)
	OnJobStarted(ctx context.Context, jobID model.JobID)
	OnJobRunning(ctx context.Context, summary model.JobSummary)
	OnJobCompleted(ctx context.Context, summary model.JobSummary) error
	OnJobFailed(ctx context.Context, summary model.JobSummary) error
	OnJobAborted(ctx context.Context, summary model.JobSummary, byScheduler bool) error
}
