// Package task implements the Task component (C3): a DAG node owning one
// chunk pool, building job specs on ScheduleJob and routing each finished
// job's output to its downstream edges (§4.2).
package task

import (
	"context"
	"fmt"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"opctl/internal/chunkmap"
	"opctl/internal/chunkpool"
	"opctl/internal/model"
	"opctl/internal/opcerrors"
	"opctl/internal/progress"
)

// overdraftBumpFactor is the "overdraft-factor" of §4.10's memory digest
// rule: on ResourceOverdraft, sample at least previous-factor ×
// overdraft-factor, so the next reservation grows instead of repeating.
const overdraftBumpFactor = 1.2

// defaultMemoryReserveQuantile is the §4.2 default reserve-factor quantile
// when a task's config leaves it unset.
const defaultMemoryReserveQuantile = 0.95

// Destination is how a Task pushes a finished job's output stripe without
// needing to know whether the edge terminates at a downstream Task's pool or
// a final output table (§3.1 EdgeDescriptor).
type Destination interface {
	Add(stripe model.ChunkStripe) model.Cookie
}

// Router resolves an EdgeDescriptor to the Destination it targets. The
// controller implements this by looking up task handles and output tables in
// its own DAG, keeping Task free of DAG-wide knowledge (§9 variant-set
// design note: edges carry handles, not owning pointers).
type Router interface {
	Resolve(edge model.EdgeDescriptor) (Destination, error)
}

// CompletedJobRegistrar records a CompletedJob when a downstream edge
// requires recovery info (§4.2); implemented by the joblet registry (C5).
type CompletedJobRegistrar interface {
	Register(jobID model.JobID, outputChunks [][]model.ChunkID)
}

// ChunkListAllocator extracts a fresh output chunk-list id for one outgoing
// edge of a scheduled job (§4.2, §5 "global chunk-list pool per cell tag").
type ChunkListAllocator interface {
	Allocate(cell model.CellTag) (model.ChunkID, error)
}

// Archiver records a scheduled job's resolved spec for later inspection of
// stuck jobs (§14 supplemented feature: the job-spec archive release
// queue); nil disables archival for this task.
type Archiver interface {
	Archive(jobID model.JobID, spec model.JobSpec)
}

// ChunkTracker registers a chunk id with whichever scraper should resolve it
// (§4.5); implemented by the controller so a Task never needs to know which
// scraper instance exists.
type ChunkTracker interface {
	Track(id model.ChunkID)
}

// Config is a Task's immutable per-task template (§3.1 Task fields).
type Config struct {
	JobType          string
	ResourceTemplate model.Resources
	UserJobCommand   string
	UserJobEnv       map[string]string
	TmpfsSizeBytes   int64

	// MaxFailedJobCount is the §4.2 failed-job limit; zero means unlimited.
	MaxFailedJobCount int

	// MemoryReserveQuantile selects the digest quantile used for the next
	// job's memory limit; zero defaults to defaultMemoryReserveQuantile.
	MemoryReserveQuantile float64

	// OutputCell is the cell tag passed to ChunkListAllocator.Allocate for
	// every outgoing edge of this task.
	OutputCell model.CellTag

	// ReadsOriginalInput marks a task whose AddInput chunks come straight
	// from an operation's input tables rather than another task's output;
	// it selects which chunk scraper (§4.5 KindInput vs KindIntermediate)
	// tracks this task's chunks, which in turn decides whether a chunk that
	// never resolves is fatal or silently dropped.
	ReadsOriginalInput bool
}

// Task is a node in the job DAG (§3.1, §4.2).
type Task struct {
	Handle model.TaskHandle
	Pool   chunkpool.Pool
	Edges  []model.EdgeDescriptor

	cfg Config

	router     Router
	registrar  CompletedJobRegistrar
	chunkLists ChunkListAllocator
	archiver   Archiver
	chunkMap   *chunkmap.Map
	tracker    ChunkTracker

	jobProxyDigest *progress.Digest
	userJobDigest  *progress.Digest
	histogram      *progress.Histogram

	// jobOutputCookies maps an in-flight job id back to the output cookie
	// the pool issued for it, so On{Completed,Failed,Aborted,Lost} can call
	// back into the pool without the caller having to remember cookies.
	jobOutputCookies map[model.JobID]model.Cookie

	// chunkCookies maps a chunk id back to every pending input cookie whose
	// stripe references it, so a scraper callback keyed by chunk id can
	// Suspend/Resume the right stripes (§4.5).
	chunkCookies map[model.ChunkID][]model.Cookie

	failedJobs    int
	abortedJobs   int
	finishedInput bool
	seq           int64
}

// New constructs a Task. chunkLists and registrar may be nil if this task
// has no outgoing edges requiring them (a terminal map-only task feeding a
// single Sink, say).
func New(handle model.TaskHandle, pool chunkpool.Pool, edges []model.EdgeDescriptor, cfg Config, router Router, registrar CompletedJobRegistrar, chunkLists ChunkListAllocator) *Task {
	if cfg.MemoryReserveQuantile <= 0 {
		cfg.MemoryReserveQuantile = defaultMemoryReserveQuantile
	}
	return &Task{
		Handle:           handle,
		Pool:             pool,
		Edges:            edges,
		cfg:              cfg,
		router:           router,
		registrar:        registrar,
		chunkLists:       chunkLists,
		jobProxyDigest:   progress.NewDigest(),
		userJobDigest:    progress.NewDigest(),
		histogram:        progress.NewHistogram(),
		jobOutputCookies: make(map[model.JobID]model.Cookie),
		chunkCookies:     make(map[model.ChunkID][]model.Cookie),
	}
}

// SetArchiver wires in the job-spec archiver after construction; the
// controller calls this once it has built the snapshot manager, so Task's
// constructor doesn't need to know about C8 (§14 supplemented feature).
func (t *Task) SetArchiver(a Archiver) { t.archiver = a }

// SetChunkTracker wires in the controller's scraper registration hook; every
// chunk a subsequent AddInput sees is reported to it (§4.5). nil disables
// scraping for this task's input.
func (t *Task) SetChunkTracker(tr ChunkTracker) { t.tracker = tr }

// SetChunkMap wires in the operation-wide chunk mapping (C2) so
// reconstructInterruptedWork can resolve a reported chunk id to wherever it
// currently lives before re-adding it to the pool; nil disables resolution,
// falling back to the id the job reported verbatim.
func (t *Task) SetChunkMap(m *chunkmap.Map) { t.chunkMap = m }

// AddInput registers one input stripe with the task's pool.
func (t *Task) AddInput(stripe model.ChunkStripe) model.Cookie {
	cookie := t.Pool.Add(stripe)
	for _, slice := range stripe.Slices {
		for _, id := range slice.Chunks {
			t.chunkCookies[id] = append(t.chunkCookies[id], cookie)
			if t.tracker != nil {
				t.tracker.Track(id)
			}
		}
	}
	return cookie
}

// OnChunkUnavailable suspends every pending stripe referencing id until it
// is reported available again (§4.5 OnUnavailable, UnavailableChunkPolicy
// Wait).
func (t *Task) OnChunkUnavailable(id model.ChunkID) {
	for _, c := range t.chunkCookies[id] {
		t.Pool.Suspend(c)
	}
}

// OnChunkAvailable resumes every stripe id's unavailability had suspended
// (§4.5 OnAvailable).
func (t *Task) OnChunkAvailable(id model.ChunkID) {
	for _, c := range t.chunkCookies[id] {
		t.Pool.Resume(c)
	}
}

// OnChunkSkipped suspends every stripe referencing id and stops tracking it,
// so a later availability report can never resume it (UnavailableChunkPolicy
// Skip: the operation accepts permanently missing data for these stripes
// rather than waiting or failing outright).
func (t *Task) OnChunkSkipped(id model.ChunkID) {
	for _, c := range t.chunkCookies[id] {
		t.Pool.Suspend(c)
	}
	delete(t.chunkCookies, id)
}

// GetPendingJobCount returns the number of stripes ready to be scheduled.
func (t *Task) GetPendingJobCount() int {
	pending, _, _ := t.Pool.JobCounter()
	return pending
}

// GetTotalNeededResources projects the per-job template across every
// pending job, the figure the scheduling loop sums across a task group to
// decide whether an offer's resources are worth pursuing at all (§4.4).
func (t *Task) GetTotalNeededResources() model.Resources {
	return t.cfg.ResourceTemplate.Scale(t.GetPendingJobCount())
}

// GetMinNeededResources returns the template if any job is pending, or the
// zero vector otherwise — the quantity the non-local scheduling pass sorts
// candidates by (§4.4 step 3).
func (t *Task) GetMinNeededResources() model.Resources {
	if t.GetPendingJobCount() == 0 {
		return model.Resources{}
	}
	return t.cfg.ResourceTemplate
}

// Locality reports how well node is positioned to extract from this task's
// pool right now, used by the task group's local scheduling pass (§4.4).
func (t *Task) Locality(node model.NodeID) int64 { return t.Pool.Locality(node) }

// CheckCompleted reports whether this task will never produce another job:
// input is finished and the pool has nothing pending or running.
func (t *Task) CheckCompleted() bool {
	if !t.finishedInput {
		return false
	}
	pending, running, _ := t.Pool.JobCounter()
	return pending == 0 && running == 0
}

// FinishInput declares that no further input stripes will arrive from the
// predecessor vertex (§4.2 FinishInput(predecessor-vertex); the predecessor
// identity itself is tracked by the controller's DAG, not by Task).
func (t *Task) FinishInput() {
	t.finishedInput = true
	t.Pool.Finish()
}

func (t *Task) nextSeq() int64 {
	t.seq++
	return t.seq
}

// ScheduleJob implements §4.2: pull a ready stripe list for offer.Node,
// build the job spec, extract fresh output chunk-list ids, and pick a
// memory limit from the reserve-factor digest.
func (t *Task) ScheduleJob(ctx context.Context, offer model.Offer, limits model.Resources, treeID string, tentative bool) (*model.StartDescriptor, opcerrors.SchedulingReason, error) {
	if t.finishedInput && t.GetPendingJobCount() == 0 {
		return nil, opcerrors.ReasonNoCandidateTasks, nil
	}
	if !limits.Dominates(t.cfg.ResourceTemplate) {
		return nil, opcerrors.ReasonNotEnoughResources, nil
	}

	extraction, ok := t.Pool.Extract(offer.Node)
	if !ok {
		return nil, opcerrors.ReasonNoCandidateTasks, nil
	}

	outputChunkLists := make([]model.ChunkID, len(t.Edges))
	for i := range t.Edges {
		if t.chunkLists == nil {
			continue
		}
		id, err := t.chunkLists.Allocate(t.cfg.OutputCell)
		if err != nil {
			if ferr := t.Pool.Failed(extraction.OutputCookie); ferr != nil {
				return nil, opcerrors.ReasonNotEnoughChunkLists, errors.Annotate(ferr, "task %d: returning stripe after chunk-list shortage", t.Handle).Err()
			}
			return nil, opcerrors.ReasonNotEnoughChunkLists, nil
		}
		outputChunkLists[i] = id
	}

	factor := t.jobProxyDigest.Quantile(t.cfg.MemoryReserveQuantile, 1.0)
	memoryLimit := int64(float64(t.cfg.ResourceTemplate.Memory) * factor)

	jobID := model.JobID(fmt.Sprintf("t%d-c%s", t.Handle, extraction.OutputCookie))
	t.jobOutputCookies[jobID] = extraction.OutputCookie
	t.histogram.OnJobStart(extraction.Stripes.TotalDataWeight)

	logging.Infof(ctx, "task %d: scheduled job %s on node %s tree %s (tentative=%v)", t.Handle, jobID, offer.Node, treeID, tentative)

	spec := model.JobSpec{
		JobType:          t.cfg.JobType,
		Stripes:          extraction.Stripes,
		OutputChunkLists: outputChunkLists,
		MemoryLimit:      memoryLimit,
		UserJobCommand:   t.cfg.UserJobCommand,
		UserJobEnv:       t.cfg.UserJobEnv,
		TmpfsSizeBytes:   t.cfg.TmpfsSizeBytes,
	}
	if t.archiver != nil {
		t.archiver.Archive(jobID, spec)
	}

	return &model.StartDescriptor{
		JobID:         jobID,
		Resources:     t.cfg.ResourceTemplate,
		Interruptible: true,
		Spec:          spec,
	}, opcerrors.ReasonNone, nil
}

func (t *Task) takeCookie(jobID model.JobID) (model.Cookie, error) {
	cookie, ok := t.jobOutputCookies[jobID]
	if !ok {
		return model.InvalidCookie, errors.Reason("task %d: unknown job %s", t.Handle, jobID).Err()
	}
	delete(t.jobOutputCookies, jobID)
	return cookie, nil
}

// OnJobCompleted implements §4.2 "on completion": route each output stripe
// downstream, register a CompletedJob if any edge requires recovery info,
// and — if the job was interrupted — reconstruct its remaining input.
func (t *Task) OnJobCompleted(ctx context.Context, summary model.JobSummary) error {
	cookie, err := t.takeCookie(summary.JobID)
	if err != nil {
		return err
	}

	if err := t.Pool.Completed(cookie); err != nil {
		return errors.Annotate(err, "task %d: completing cookie %s", t.Handle, cookie).Err()
	}

	t.histogram.OnJobCompleted(sumWeights(summary.OutputWeights))
	t.jobProxyDigest.AddSample(summary.ObservedJobProxyMemory, t.cfg.ResourceTemplate.Memory)
	t.userJobDigest.AddSample(summary.ObservedUserJobMemory, t.cfg.ResourceTemplate.Memory)

	requiresRecovery := false
	for i, edge := range t.Edges {
		if t.router == nil {
			break
		}
		dest, err := t.router.Resolve(edge)
		if err != nil {
			return errors.Annotate(err, "task %d: resolving edge %d", t.Handle, i).Err()
		}
		var chunks []model.ChunkID
		var weights []int64
		if i < len(summary.OutputChunks) {
			chunks = summary.OutputChunks[i]
		}
		if i < len(summary.OutputWeights) {
			weights = summary.OutputWeights[i]
		}
		dest.Add(t.buildOutputStripe(chunks, weights, edge))
		if edge.Recovery {
			requiresRecovery = true
		}
	}
	if requiresRecovery && t.registrar != nil {
		t.registrar.Register(summary.JobID, summary.OutputChunks)
	}

	if summary.InterruptReason != model.InterruptNone {
		return t.reconstructInterruptedWork(ctx, cookie, summary)
	}
	logging.Debugf(ctx, "task %d: job %s completed", t.Handle, summary.JobID)
	return nil
}

func (t *Task) buildOutputStripe(chunks []model.ChunkID, weights []int64, edge model.EdgeDescriptor) model.ChunkStripe {
	slice := model.DataSlice{Chunks: chunks, Kind: model.LimitByChunkIndex, UpperChunk: len(chunks)}
	for _, w := range weights {
		slice.DataWeight += w
	}
	return model.ChunkStripe{Slices: []model.DataSlice{slice}, CreatedAtSeq: t.nextSeq()}
}

func sumWeights(perEdge [][]int64) int64 {
	var total int64
	for _, edge := range perEdge {
		for _, w := range edge {
			total += w
		}
	}
	return total
}

// OnJobFailed implements §4.2 "on failure": a fatal-tagged error fails the
// whole operation; otherwise the failed-job counter increments and, past
// the configured limit, the same happens. Below the limit the stripe goes
// back to pending.
func (t *Task) OnJobFailed(ctx context.Context, summary model.JobSummary) error {
	cookie, err := t.takeCookie(summary.JobID)
	if err != nil {
		return err
	}

	if summary.Error != nil && opcerrors.FatalTag.In(summary.Error) {
		return errors.Annotate(summary.Error, "task %d: fatal job failure on %s", t.Handle, summary.JobID).Err()
	}

	t.failedJobs++
	if t.cfg.MaxFailedJobCount > 0 && t.failedJobs > t.cfg.MaxFailedJobCount {
		return errors.Annotate(summary.Error, "task %d: exceeded max failed job count %d", t.Handle, t.cfg.MaxFailedJobCount).Err()
	}

	if err := t.Pool.Failed(cookie); err != nil {
		return errors.Annotate(err, "task %d: returning failed cookie %s", t.Handle, cookie).Err()
	}
	logging.Warningf(ctx, "task %d: job %s failed (%d/%d)", t.Handle, summary.JobID, t.failedJobs, t.cfg.MaxFailedJobCount)
	return nil
}

// OnJobAborted implements §4.2 "on abort": counted separately from
// failures; ResourceOverdraft bumps the memory digest, FailedChunks and
// AccountLimitExceeded side effects belong to the scraper and controller
// respectively and are left to the caller to drive.
func (t *Task) OnJobAborted(ctx context.Context, summary model.JobSummary) error {
	cookie, err := t.takeCookie(summary.JobID)
	if err != nil {
		return err
	}
	t.abortedJobs++

	if summary.AbortReason == model.AbortResourceOverdraft {
		previous := t.jobProxyDigest.Quantile(t.cfg.MemoryReserveQuantile, 1.0)
		t.jobProxyDigest.BumpForOverdraft(previous, overdraftBumpFactor)
	}

	if err := t.Pool.Aborted(cookie); err != nil {
		return errors.Annotate(err, "task %d: returning aborted cookie %s", t.Handle, cookie).Err()
	}
	logging.Warningf(ctx, "task %d: job %s aborted (reason=%d)", t.Handle, summary.JobID, summary.AbortReason)
	return nil
}

// OnJobLost implements §4.2 "on lost": delegate to the pool's Lost. Only a
// job this task still tracks (scheduled and not yet completed, failed,
// aborted or lost) is accepted; any other job id, including a second report
// for the same job, gets an unknown-job error before the pool is consulted.
func (t *Task) OnJobLost(ctx context.Context, jobID model.JobID) error {
	cookie, err := t.takeCookie(jobID)
	if err != nil {
		return err
	}
	if err := t.Pool.Lost(cookie); err != nil {
		return errors.Annotate(err, "task %d: losing cookie %s", t.Handle, cookie).Err()
	}
	logging.Warningf(ctx, "task %d: job for cookie %s lost", t.Handle, cookie)
	return nil
}
