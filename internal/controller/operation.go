package controller

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"golang.org/x/sync/errgroup"

	"opctl/internal/automerge"
	"opctl/internal/chunkmap"
	"opctl/internal/chunkpool"
	"opctl/internal/config"
	"opctl/internal/joblet"
	"opctl/internal/model"
	"opctl/internal/opcerrors"
	"opctl/internal/progress"
	"opctl/internal/scraper"
	"opctl/internal/snapshot"
	"opctl/internal/task"
	"opctl/internal/taskgroup"
	"opctl/internal/txpipeline"
)

// TaskBuilder is the derived controller's custom task construction hook
// (§4.9 Materialize): given the freshly-Prepared Operation, it adds every
// Task and output table the concrete job graph needs.
type TaskBuilder func(ctx context.Context, op *Operation) error

// Deps bundles the external collaborators an Operation needs; nil fields
// fall back to no-op/in-memory behavior where that's safe (e.g. no
// scraper.MasterClient means chunk availability scraping never runs).
type Deps struct {
	Master    MasterClient
	Scheduler SchedulerClient
	Releaser  snapshot.Releaser

	// ChunkListWatermark/Batch configure the shared chunk-list pool's
	// allocate-if-below-watermark policy (§5).
	ChunkListWatermark int
	ChunkListBatch     int

	// TaskGroupLocalityTimeout bounds how long the non-local scheduling
	// pass delays a freshly touched task (§4.4).
	TaskGroupLocalityTimeout time.Duration
	// ChunkListCheckK is how many chunk lists scheduleNonLocal/scheduleLocal
	// require to be pre-allocated before accepting an offer (§4.4).
	ChunkListCheckK int
}

// MasterClient is the subset of host.MasterClient the operation itself
// calls directly (lock/attributes/transactions); txpipeline and scraper see
// narrower views of the same concrete client.
type MasterClient interface {
	txpipeline.MasterClient
	scraper.MasterClient
	chunkListSource
	LockInput(ctx context.Context, path string, tx model.TransactionID) error
	GetTableAttributes(ctx context.Context, path string) (model.TableSchema, error)
}

// SchedulerClient is the operation-facing half of the scheduler boundary
// (§6).
type SchedulerClient interface {
	OnOperationBannedInTentativeTree(ctx context.Context, treeID string)
	GetExecNodeCount(ctx context.Context) (int, error)
}

// Operation is the top-level C11 state machine tying every other component
// together behind a single-writer serialized invoker (§4.9, §5).
type Operation struct {
	id   string
	spec config.OperationSpec

	deps Deps

	ctx    context.Context
	cancel context.CancelFunc
	invoker *Invoker

	stateMu sync.Mutex
	state   State

	tasks map[model.TaskHandle]*task.Task

	// groups buckets tasks by resource floor into priority-ordered
	// TaskGroups (§3.1 TaskGroup is "a priority bucket"; §4.4 "Task groups
	// are iterated in fixed priority order"). A group's floor is the
	// ResourceTemplate shared by every task placed in it; groups are kept
	// sorted ascending by floor so cheaper, more plentiful jobs are offered
	// scheduling attempts before pricier ones starve them out.
	groups       []*taskgroup.TaskGroup
	groupByFloor map[model.Resources]*taskgroup.TaskGroup

	sinkPools map[int]chunkpool.Pool

	outputTables []*model.OutputTable
	debugTables  []*model.OutputTable

	jobRegistry *joblet.Registry
	chunkLists  *chunkListPool

	inputScraper        *scraper.Scraper
	intermediateScraper *scraper.Scraper

	snapshotMgr *snapshot.Manager
	livePreview *LivePreview

	mergeDirectors map[model.TaskHandle]*automerge.Director
	chunkMap       *chunkmap.Map

	outputTx, debugTx, inputTx, asyncTx model.TransactionID

	alertBoard *progress.AlertBoard

	// unavailableChunkCount and completedJobCount feed the periodic C10
	// analyzers (analyzeUnavailableChunks, analyzeEstimatedDuration); both
	// are only ever touched from within the invoker, so no separate lock
	// is needed.
	unavailableChunkCount int
	completedJobCount     int

	// progressMu guards the cached brief-progress string (§5: "one
	// spin-lock for progress strings").
	progressMu     sync.RWMutex
	cachedProgress string

	startedAt time.Time

	finalErr error
}

// New constructs an Operation in state Preparing. ctx is the operation's
// own cancelable context (§5 "each operation owns a cancelable context");
// cancel it (or call Abort/Fail) to stop all outstanding work.
func New(ctx context.Context, id string, spec config.OperationSpec, deps Deps) *Operation {
	opCtx, cancel := context.WithCancel(ctx)
	op := &Operation{
		id:             id,
		spec:           spec,
		deps:           deps,
		ctx:            opCtx,
		cancel:         cancel,
		state:          StatePreparing,
		tasks:          make(map[model.TaskHandle]*task.Task),
		groupByFloor:   make(map[model.Resources]*taskgroup.TaskGroup),
		sinkPools:      make(map[int]chunkpool.Pool),
		jobRegistry:    joblet.NewRegistry(),
		mergeDirectors: make(map[model.TaskHandle]*automerge.Director),
		chunkMap:       chunkmap.New(),
		alertBoard:     progress.NewAlertBoard(),
		livePreview:    NewLivePreview(spec.EnableLivePreview),
	}
	op.invoker = NewInvoker(opCtx)
	op.chunkLists = newChunkListPool(opCtx, deps.Master, deps.ChunkListWatermark, deps.ChunkListBatch)
	if deps.Releaser != nil {
		op.snapshotMgr = snapshot.NewManager(deps.Releaser)
	}
	if deps.Master != nil {
		op.inputScraper = scraper.New(scraper.KindInput, deps.Master, 0, nil, nil, scraper.Callbacks{
			OnAvailable:   op.onChunkAvailable,
			OnUnavailable: op.onChunkUnavailable,
			OnMissing:     op.onInputChunkMissing,
		})
		op.intermediateScraper = scraper.New(scraper.KindIntermediate, deps.Master, 0, nil, nil, scraper.Callbacks{
			OnAvailable:   op.onChunkAvailable,
			OnUnavailable: op.onChunkUnavailable,
		})
	}
	return op
}

// ID returns the operation id used for logging and addressing.
func (o *Operation) ID() string { return o.id }

// State reports the current lifecycle state.
func (o *Operation) State() State {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	return o.state
}

func (o *Operation) transition(next State) error {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	if !canAdvance(o.state, next) {
		return nil // terminal/illegal transitions are silently suppressed (§4.9)
	}
	o.state = next
	return nil
}

// Prepare implements §4.9 Prepare: lock inputs, resolve schemas and start
// the four operation-lifetime transactions (live preview is already set up
// by New). It must run before Materialize and is not idempotent — callers
// drive it exactly once per attempt.
func (o *Operation) Prepare(ctx context.Context, inputPaths []string, outputTables, debugTables []*model.OutputTable) error {
	return o.invoker.Run(ctx, func() error {
		if o.State() != StatePreparing {
			return errors.Reason("operation %s: Prepare called outside Preparing", o.id).Err()
		}
		for _, path := range inputPaths {
			if err := o.deps.Master.LockInput(ctx, path, o.inputTx); err != nil {
				return errors.Annotate(err, "locking input %s", path).Err()
			}
			if _, err := o.deps.Master.GetTableAttributes(ctx, path); err != nil {
				return errors.Annotate(err, "resolving schema for %s", path).Err()
			}
		}

		var err error
		if o.outputTx, err = o.deps.Master.StartTransaction(ctx, ""); err != nil {
			return errors.Annotate(err, "starting output transaction").Err()
		}
		if o.debugTx, err = o.deps.Master.StartTransaction(ctx, ""); err != nil {
			return errors.Annotate(err, "starting debug transaction").Err()
		}
		if o.inputTx, err = o.deps.Master.StartTransaction(ctx, ""); err != nil {
			return errors.Annotate(err, "starting input transaction").Err()
		}
		if o.asyncTx, err = o.deps.Master.StartTransaction(ctx, ""); err != nil {
			return errors.Annotate(err, "starting async transaction").Err()
		}

		o.outputTables = outputTables
		o.debugTables = debugTables
		o.startedAt = now(ctx)
		return nil
	})
}

// now returns the operation's notion of "current time": the wall clock;
// ctx is not consulted.
func now(ctx context.Context) time.Time { return time.Now() }

// Materialize implements §4.9 Materialize: run the derived controller's
// task-construction hook, start scrapers, and transition to Running.
func (o *Operation) Materialize(ctx context.Context, build TaskBuilder) error {
	return o.invoker.Run(ctx, func() error {
		if o.State() != StatePreparing {
			return errors.Reason("operation %s: Materialize called outside Preparing", o.id).Err()
		}
		if build != nil {
			if err := build(ctx, o); err != nil {
				return errors.Annotate(err, "materializing task graph").Err()
			}
		}
		o.startScrapers()
		o.startAnalyzers()
		return o.transition(StateRunning)
	})
}

// analyzerTickInterval is how often the periodic C10 analyzers re-run
// (§4.9 Materialize: "start periodic analyzers"); no per-operation override
// surface exists yet, so one constant serves every operation, matching
// scraperPollInterval's role for the scrapers.
const analyzerTickInterval = 15 * time.Second

// analyzerThresholds are the fixed trip points for the job-type analyzers.
// No per-job telemetry (tmpfs usage, CPU ratio, IOPS) is tracked anywhere
// in this tree today, so RunAnalyzers is always called with an empty
// []JobStats and only the unavailable-chunks and estimated-duration
// analyzers ever trip in practice (nothing here sets LostIntermediateCount
// or SchedulingThrottled); the job-level thresholds are kept so that wiring up
// real telemetry later is a pure addition.
var analyzerThresholds = progress.Thresholds{
	TmpfsUnderuseRatio: 0.2,
	LowCPURatio:        0.25,
	WoodpeckerIOPS:     300,
	AbortedTimeRatio:   0.3,
	ShortJobDuration:   2 * time.Second,
}

// startAnalyzers runs progress.RunAnalyzers on analyzerTickInterval until
// the operation's context is cancelled, feeding it the bookkeeping this
// controller already keeps (§4.10).
func (o *Operation) startAnalyzers() {
	go func() {
		ticker := time.NewTicker(analyzerTickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-o.ctx.Done():
				return
			case <-ticker.C:
				_ = o.invoker.Run(o.ctx, func() error {
					o.runAnalyzersLocked()
					return nil
				})
			}
		}
	}()
}

// runAnalyzersLocked assembles an OperationStats snapshot from task/registry
// bookkeeping and runs every analyzer against it. Callers must already be
// inside the invoker.
func (o *Operation) runAnalyzersLocked() {
	pending := 0
	for _, t := range o.tasks {
		pending += t.GetPendingJobCount()
	}
	stats := progress.OperationStats{
		UnavailableChunkCount: o.unavailableChunkCount,
		CompletedJobCount:     o.completedJobCount,
		PendingJobCount:       pending,
		ElapsedSinceStart:     time.Since(o.startedAt),
	}
	progress.RunAnalyzers(o.alertBoard, nil, stats, analyzerThresholds, time.Now())
}

// scraperPollInterval is how often each scraper re-resolves its pending
// chunk set against Master (§4.5 says the rate is a policy knob; there is
// no per-operation override surface yet, so one constant serves both
// scrapers).
const scraperPollInterval = 2 * time.Second

// startScrapers starts both scrapers' poll loops; the scrapers themselves
// were already constructed in New (so AddTask's chunk tracking has somewhere
// to register chunks before Materialize ever runs).
func (o *Operation) startScrapers() {
	if o.inputScraper == nil {
		return
	}
	// Run both scrapers' poll loops concurrently under one errgroup, bound
	// to the operation's own cancelable context so Fail/Abort stops them
	// (grounded on bootstrapper/main.go's errgroup.WithContext pattern).
	group, gctx := errgroup.WithContext(o.ctx)
	group.Go(func() error { return tickScraper(gctx, o.inputScraper) })
	group.Go(func() error { return tickScraper(gctx, o.intermediateScraper) })
	go func() {
		if err := group.Wait(); err != nil && err != context.Canceled {
			logging.Errorf(o.ctx, "operation %s: scraper loop: %s", o.id, err)
		}
	}()
}

// onChunkAvailable implements §4.5 OnAvailable for every policy: once a
// chunk resolves, whichever tasks suspended a stripe waiting on it resume
// (§8 scenario 4, "after replica restored, work resumes with no duplicate
// rows"). Run through the invoker since it mutates pool state.
func (o *Operation) onChunkAvailable(id model.ChunkID, _ []model.Replica) {
	_ = o.invoker.Run(o.ctx, func() error {
		if o.unavailableChunkCount > 0 {
			o.unavailableChunkCount--
		}
		for _, t := range o.tasks {
			t.OnChunkAvailable(id)
		}
		return nil
	})
}

// onChunkUnavailable implements §4.5 OnUnavailable, branching on
// UnavailableChunkPolicy (§7): Wait suspends and waits for OnAvailable, Skip
// suspends permanently, Fail takes the whole operation down immediately.
func (o *Operation) onChunkUnavailable(id model.ChunkID) {
	_ = o.invoker.Run(o.ctx, func() error {
		o.unavailableChunkCount++
		switch o.spec.UnavailableChunkPolicy {
		case config.PolicyFail:
			return o.Fail(o.ctx, errors.Reason("operation %s: chunk %s unavailable under fail policy", o.id, id).Err())
		case config.PolicySkip:
			logging.Warningf(o.ctx, "operation %s: chunk %s unavailable, skipping under policy", o.id, id)
			for _, t := range o.tasks {
				t.OnChunkSkipped(id)
			}
			return nil
		default: // PolicyWait
			for _, t := range o.tasks {
				t.OnChunkUnavailable(id)
			}
			return nil
		}
	})
}

// onInputChunkMissing implements §4.5 OnMissing for input chunks (§7): a
// definitively missing input chunk has no replica to wait for, so Wait and
// Fail both end the operation; only Skip lets it proceed without that data.
func (o *Operation) onInputChunkMissing(id model.ChunkID) {
	_ = o.invoker.Run(o.ctx, func() error {
		logging.Errorf(o.ctx, "operation %s: input chunk %s missing", o.id, id)
		if o.spec.UnavailableChunkPolicy == config.PolicySkip {
			for _, t := range o.tasks {
				t.OnChunkSkipped(id)
			}
			return nil
		}
		return o.Fail(o.ctx, errors.Reason("operation %s: input chunk %s missing", o.id, id).Err())
	})
}

// operationChunkTracker routes one task's newly added chunk ids to whichever
// scraper its task config designates (§4.5 KindInput vs KindIntermediate).
type operationChunkTracker struct {
	op    *Operation
	input bool
}

func (c *operationChunkTracker) Track(id model.ChunkID) {
	if c.input {
		if c.op.inputScraper != nil {
			c.op.inputScraper.Add(id)
		}
		return
	}
	if c.op.intermediateScraper != nil {
		c.op.intermediateScraper.Add(id)
	}
}

// tickScraper polls s on scraperPollInterval until ctx is cancelled.
func tickScraper(ctx context.Context, s *scraper.Scraper) error {
	ticker := time.NewTicker(scraperPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Poll(ctx); err != nil {
				return err
			}
		}
	}
}

// Revive implements §4.9 Revive: if snapshotData is non-empty, deserialize
// it in place into this freshly constructed Operation; fail_on_job_restart
// rejects any revival outright. An empty snapshot falls back to
// Prepare+Materialize, which the caller must invoke itself (a clean start
// is indistinguishable from a from-scratch operation once this returns).
func (o *Operation) Revive(ctx context.Context, snapshotData []byte) (revived bool, err error) {
	err = o.invoker.Run(ctx, func() error {
		if len(snapshotData) == 0 {
			return nil
		}
		if o.spec.FailOnJobRestart {
			return opcerrors.OperationFailedOnJobRestartTag.Apply(
				errors.Reason("operation %s: revival attempted with fail_on_job_restart set", o.id).Err())
		}
		state, err := snapshot.Unmarshal(snapshotData)
		if err != nil {
			return errors.Annotate(err, "loading snapshot").Err()
		}
		for _, id := range state.CompletedJobIDs {
			o.jobRegistry.Register(id, nil)
		}
		revived = true
		return o.transition(StateRunning)
	})
	return revived, err
}

// AddTask registers a new Task in the operation's DAG, wiring its router,
// completed-job registrar and chunk-list allocator to this Operation
// (§9: edges carry handles, never owning pointers — this is the one place
// that resolves a handle to a live component).
func (o *Operation) AddTask(handle model.TaskHandle, pool chunkpool.Pool, edges []model.EdgeDescriptor, cfg task.Config, destinationCells []model.CellTag, localNodes []model.NodeID) *task.Task {
	t := task.New(handle, pool, edges, cfg, &operationRouter{op: o}, &taskRegistrar{handle: handle, reg: o.jobRegistry}, o.chunkLists)
	if o.snapshotMgr != nil {
		t.SetArchiver(o.snapshotMgr)
	}
	t.SetChunkMap(o.chunkMap)
	t.SetChunkTracker(&operationChunkTracker{op: o, input: cfg.ReadsOriginalInput})
	o.tasks[handle] = t
	o.groupForFloor(cfg.ResourceTemplate).AddTask(handle, t, destinationCells, localNodes)
	if o.spec.AutoMergeMode() != automerge.Disabled {
		o.mergeDirectors[handle] = automerge.New(o.spec.AutoMergeMode(), o.spec.AutoMergeManualLimit, o.spec.AutoMergeManualLimit)
	}
	return t
}

// groupForFloor returns the TaskGroup whose resource floor is floor,
// creating it if this is the first task at that floor and re-sorting the
// priority order (§3.1 TaskGroup, §4.4 "iterated in fixed priority order").
// Groups are ordered ascending by memory floor: cheaper tasks get first
// crack at an offer so a handful of large-footprint tasks can't starve many
// small ones out of every scheduling pass.
func (o *Operation) groupForFloor(floor model.Resources) *taskgroup.TaskGroup {
	if g, ok := o.groupByFloor[floor]; ok {
		return g
	}
	g := taskgroup.New(floor, o.deps.TaskGroupLocalityTimeout, o.deps.ChunkListCheckK)
	o.groupByFloor[floor] = g
	o.groups = append(o.groups, g)
	sort.Slice(o.groups, func(i, j int) bool {
		a, b := o.groups[i].MinResources, o.groups[j].MinResources
		if a.Memory != b.Memory {
			return a.Memory < b.Memory
		}
		if a.CPU != b.CPU {
			return a.CPU < b.CPU
		}
		return a.UserSlots < b.UserSlots
	})
	return g
}

// AddOutputTable registers an output table and its backing sink pool,
// returning the sink index to use as EdgeDescriptor.DestinationSink.
func (o *Operation) AddOutputTable(table *model.OutputTable) (int, chunkpool.Pool, error) {
	pool, err := chunkpool.NewPool(chunkpool.KindSink, chunkpool.Config{})
	if err != nil {
		return 0, nil, err
	}
	idx := len(o.outputTables)
	o.outputTables = append(o.outputTables, table)
	o.sinkPools[idx] = pool
	return idx, pool, nil
}

// ScheduleJob implements the Scheduler-facing ScheduleJob RPC (§6): it must
// be synchronous and bounded in latency, so it runs the taskgroup lookup
// directly rather than round-tripping through the invoker (scheduling
// callbacks must not suspend, §5) — TaskGroup's own bookkeeping is already
// safe for this single-writer caller since the scheduler never calls it
// concurrently with itself.
func (o *Operation) ScheduleJob(ctx context.Context, offer model.Offer, limits model.Resources, treeID string) (*model.StartDescriptor, error) {
	if o.State() != StateRunning {
		return nil, nil
	}
	now := time.Now()
	for _, g := range o.groups {
		desc, _, reason, err := g.Schedule(ctx, offer, o.chunkLists, now)
		if err != nil {
			return nil, errors.Annotate(err, "scheduling job").Err()
		}
		_ = reason // aggregated via group.FailureReasons(), never raised (§7)
		if desc != nil {
			return desc, nil
		}
	}
	return nil, nil
}

// OnJobStarted/OnJobRunning/OnJobCompleted/OnJobFailed/OnJobAborted
// implement the Scheduler→Controller callbacks of §6. OnJobStarted and
// OnJobRunning only log; the other three mutate task/pool state and are
// serialized through the invoker.

func (o *Operation) OnJobStarted(ctx context.Context, jobID model.JobID) {
	logging.Debugf(ctx, "operation %s: job %s started", o.id, jobID)
}

func (o *Operation) OnJobRunning(ctx context.Context, summary model.JobSummary) {
	logging.Debugf(ctx, "operation %s: job %s running", o.id, summary.JobID)
}

func (o *Operation) forTask(handle model.TaskHandle) (*task.Task, error) {
	t, ok := o.tasks[handle]
	if !ok {
		return nil, errors.Reason("operation %s: unknown task handle %d", o.id, handle).Err()
	}
	return t, nil
}

// Task returns the task registered under handle. No jobID->TaskHandle map
// is kept, so the OnJob* callbacks take the owning task's handle from the
// caller.
func (o *Operation) Task(handle model.TaskHandle) (*task.Task, error) { return o.forTask(handle) }

func (o *Operation) OnJobCompleted(ctx context.Context, handle model.TaskHandle, summary model.JobSummary) error {
	return o.invoker.Run(ctx, func() error {
		t, err := o.forTask(handle)
		if err != nil {
			return err
		}
		if err := t.OnJobCompleted(ctx, summary); err != nil {
			if opcerrors.FatalTag.In(err) {
				return o.Fail(ctx, err)
			}
			return err
		}
		o.completedJobCount++
		if o.snapshotMgr != nil {
			o.snapshotMgr.RecordCompletedJob(summary.JobID)
		}
		o.runAutoMerge(ctx, handle, summary)
		return nil
	})
}

// runAutoMerge implements C9 (§4.8): every output chunk a completed job
// produces is a candidate small chunk until the task's Director says
// otherwise. There is no merge-task-construction subsystem in this
// controller to actually schedule the merge job, so crossing the ceiling is
// surfaced as an alert and the director's counter is reset, mirroring what a
// real merge job completing would do to it.
func (o *Operation) runAutoMerge(ctx context.Context, handle model.TaskHandle, summary model.JobSummary) {
	d, ok := o.mergeDirectors[handle]
	if !ok {
		return
	}
	for _, chunks := range summary.OutputChunks {
		for range chunks {
			d.AddSmallChunk()
		}
	}
	if !d.ShouldMerge() {
		return
	}
	pending := d.Pending()
	logging.Infof(ctx, "operation %s: task %d crossed auto-merge ceiling with %d pending small chunks", o.id, handle, pending)
	o.alertBoard.Set("auto_merge_pending", progress.SeverityInfo, map[string]any{
		"task_handle": handle,
		"pending":     pending,
	}, now(ctx))
	d.Merged(pending)
}

func (o *Operation) OnJobFailed(ctx context.Context, handle model.TaskHandle, summary model.JobSummary) error {
	return o.invoker.Run(ctx, func() error {
		t, err := o.forTask(handle)
		if err != nil {
			return err
		}
		if err := t.OnJobFailed(ctx, summary); err != nil {
			return o.Fail(ctx, err)
		}
		return nil
	})
}

func (o *Operation) OnJobAborted(ctx context.Context, handle model.TaskHandle, summary model.JobSummary, byScheduler bool) error {
	return o.invoker.Run(ctx, func() error {
		t, err := o.forTask(handle)
		if err != nil {
			return err
		}
		return t.OnJobAborted(ctx, summary)
	})
}

// Fail transitions the operation to Failing then Finished (§4.9, §7); it
// must run from within the invoker (callers outside it should go through
// OnJob* or call Abort). Idempotent: once Finished, further calls are no-ops.
func (o *Operation) Fail(ctx context.Context, cause error) error {
	if o.State() == StateFinished {
		return nil
	}
	o.finalErr = cause
	_ = o.transition(StateFailing)
	logging.Errorf(ctx, "operation %s: failing: %s", o.id, cause)
	o.cancel()
	_ = o.transition(StateFinished)
	return cause
}

// Abort cancels the operation's context and marks it Finished without a
// specific cause, mirroring a user- or scheduler-initiated abort (§7
// TransactionAborted).
func (o *Operation) Abort(ctx context.Context, reason string) error {
	return o.invoker.Run(ctx, func() error {
		if o.State() == StateFinished {
			return nil
		}
		_ = o.transition(StateFailing)
		logging.Warningf(ctx, "operation %s: aborted: %s", o.id, reason)
		o.cancel()
		_ = o.transition(StateFinished)
		return nil
	})
}

// AllTasksComplete reports whether every task has exhausted its pool,
// the §4.9 Complete precondition.
func (o *Operation) AllTasksComplete() bool {
	for _, t := range o.tasks {
		if !t.CheckCompleted() {
			return false
		}
	}
	return true
}

// Complete implements §4.9 Complete: once every task reports complete,
// build the commit pipeline from every output/debug table's accumulated
// sink entries and run it; on success transition to Finished.
func (o *Operation) Complete(ctx context.Context) error {
	return o.invoker.Run(ctx, func() error {
		if o.State() != StateRunning {
			return errors.Reason("operation %s: Complete called outside Running", o.id).Err()
		}
		if !o.AllTasksComplete() {
			return errors.Reason("operation %s: Complete called before all tasks finished", o.id).Err()
		}
		for idx, table := range o.outputTables {
			table.Entries = stripesToEntries(sinkEntries(o.sinkPools[idx]))
		}
		pipe := txpipeline.New(txpipeline.Config{MaxChildrenPerAttachRequest: 10000, ValidateUniqueKeys: true},
			o.deps.Master, nil, o.outputTables, o.debugTables, o.outputTx, o.debugTx, o.inputTx, o.asyncTx)
		if err := pipe.Run(ctx); err != nil {
			return o.Fail(ctx, err)
		}
		return o.transition(StateFinished)
	})
}

// stripesToEntries converts accumulated sink-pool stripes into the flat
// OutputChunkEntry list the commit pipeline orders and attaches (§4.6);
// one entry per chunk, in append order, using the slice's recorded
// boundary keys.
func stripesToEntries(stripes []model.ChunkStripe) []model.OutputChunkEntry {
	var entries []model.OutputChunkEntry
	idx := 0
	for _, stripe := range stripes {
		for _, slice := range stripe.Slices {
			for _, chunk := range slice.Chunks {
				entries = append(entries, model.OutputChunkEntry{
					MinKey:     slice.LowerKey,
					MaxKey:     slice.UpperKey,
					ChunkTree:  chunk,
					OrderIndex: idx,
				})
				idx++
			}
		}
	}
	return entries
}

// Checkpoint drives a snapshot.Manager checkpoint over the operation's four
// release queues and returns the serialized state (§4.7, §8 invariant 7).
func (o *Operation) Checkpoint(ctx context.Context) ([]byte, error) {
	if o.snapshotMgr == nil {
		return nil, errors.Reason("operation %s: no snapshot releaser configured", o.id).Err()
	}
	var data []byte
	err := o.invoker.Run(ctx, func() error {
		state := &snapshot.State{}
		var err error
		data, err = o.snapshotMgr.Checkpoint(ctx, state)
		return err
	})
	return data, err
}

// Alerts returns the current analyzer/operational alert snapshot (§4.10).
func (o *Operation) Alerts() []progress.Alert { return o.alertBoard.Snapshot() }
