package snapshot

import (
	"context"

	"go.chromium.org/luci/common/logging"

	"opctl/internal/model"
)

// Releaser performs the RPC-side release work for each queue (§4.7):
// job-release to the scheduler, or unstage requests to Master.
type Releaser interface {
	ReleaseCompletedJobs(ctx context.Context, jobIDs []model.JobID) error
	UnstageStripes(ctx context.Context, stripes []model.ChunkStripeList) error
	UnstageChunkTrees(ctx context.Context, chunks []model.ChunkID) error
	ReleaseArchivedSpecs(ctx context.Context, specs []ArchivedJobSpec) error
}

// Manager owns the four monotonic release queues of §4.7 and drives their
// checkpoint/release cycle around each successful snapshot.
type Manager struct {
	completedJobs       *ReleaseQueue[model.JobID]
	intermediateStripes *ReleaseQueue[model.ChunkStripeList]
	chunkTrees          *ReleaseQueue[model.ChunkID]
	jobSpecArchive      *ReleaseQueue[ArchivedJobSpec]

	releaser Releaser
}

// NewManager constructs a Manager backed by releaser.
func NewManager(releaser Releaser) *Manager {
	return &Manager{
		completedJobs:       NewReleaseQueue[model.JobID](),
		intermediateStripes: NewReleaseQueue[model.ChunkStripeList](),
		chunkTrees:          NewReleaseQueue[model.ChunkID](),
		jobSpecArchive:      NewReleaseQueue[ArchivedJobSpec](),
		releaser:            releaser,
	}
}

func (m *Manager) RecordCompletedJob(id model.JobID)                 { m.completedJobs.Append(id) }
func (m *Manager) RecordIntermediateStripes(l model.ChunkStripeList) { m.intermediateStripes.Append(l) }
func (m *Manager) RecordChunkTree(id model.ChunkID)                  { m.chunkTrees.Append(id) }

// Archive satisfies task.Archiver directly, so a Manager can be handed to
// task.New as-is (§14 supplemented feature: archival wired from C3 into C8).
func (m *Manager) Archive(jobID model.JobID, spec model.JobSpec) {
	m.jobSpecArchive.Append(ArchivedJobSpec{JobID: jobID, Spec: spec})
}

// Checkpoint implements §4.7: mark each queue's current length as its
// release point, serialize state, and release the pre-snapshot prefix of
// each queue via the Releaser, so revival from this snapshot still sees
// these chunks/jobs attached. Release failures are logged, not fatal — a
// snapshot that succeeded is still valid even if the best-effort cleanup of
// already-superseded references lags behind.
func (m *Manager) Checkpoint(ctx context.Context, state *State) ([]byte, error) {
	m.completedJobs.Checkpoint()
	m.intermediateStripes.Checkpoint()
	m.chunkTrees.Checkpoint()
	m.jobSpecArchive.Checkpoint()

	data, err := Marshal(state)
	if err != nil {
		return nil, err
	}

	if released := m.completedJobs.Release(); len(released) > 0 {
		if err := m.releaser.ReleaseCompletedJobs(ctx, released); err != nil {
			logging.Errorf(ctx, "snapshot: releasing completed jobs: %s", err)
		}
	}
	if released := m.intermediateStripes.Release(); len(released) > 0 {
		if err := m.releaser.UnstageStripes(ctx, released); err != nil {
			logging.Errorf(ctx, "snapshot: unstaging intermediate stripes: %s", err)
		}
	}
	if released := m.chunkTrees.Release(); len(released) > 0 {
		if err := m.releaser.UnstageChunkTrees(ctx, released); err != nil {
			logging.Errorf(ctx, "snapshot: unstaging chunk trees: %s", err)
		}
	}
	if released := m.jobSpecArchive.Release(); len(released) > 0 {
		if err := m.releaser.ReleaseArchivedSpecs(ctx, released); err != nil {
			logging.Errorf(ctx, "snapshot: releasing archived job specs: %s", err)
		}
	}

	return data, nil
}
