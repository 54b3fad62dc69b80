package host

import (
	"context"
	"fmt"
	"sync"

	"go.chromium.org/luci/common/logging"

	"opctl/internal/model"
	"opctl/internal/snapshot"
)

// FakeMaster is an in-memory MasterClient, usable in tests and the local
// single-process demo mode (no live cluster required).
type FakeMaster struct {
	mu       sync.Mutex
	schemas  map[string]model.TableSchema
	txSeq    int
	chunkSeq int
}

// NewFakeMaster constructs an empty FakeMaster.
func NewFakeMaster() *FakeMaster {
	return &FakeMaster{schemas: make(map[string]model.TableSchema)}
}

// SetSchema seeds the attributes GetTableAttributes returns for path.
func (m *FakeMaster) SetSchema(path string, schema model.TableSchema) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schemas[path] = schema
}

func (m *FakeMaster) LockInput(ctx context.Context, path string, tx model.TransactionID) error {
	return nil
}

func (m *FakeMaster) GetTableAttributes(ctx context.Context, path string) (model.TableSchema, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.schemas[path], nil
}

func (m *FakeMaster) StartTransaction(ctx context.Context, parent model.TransactionID) (model.TransactionID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txSeq++
	return model.TransactionID(fmt.Sprintf("%s/tx-%d", parent, m.txSeq)), nil
}

func (m *FakeMaster) CommitTransaction(ctx context.Context, tx model.TransactionID) error { return nil }
func (m *FakeMaster) AbortTransaction(ctx context.Context, tx model.TransactionID) error  { return nil }

func (m *FakeMaster) BeginUpload(ctx context.Context, table *model.OutputTable, tx model.TransactionID) error {
	return nil
}

func (m *FakeMaster) EndUpload(ctx context.Context, table *model.OutputTable) error { return nil }

func (m *FakeMaster) TeleportChunk(ctx context.Context, chunk model.ChunkID, fromCell, toCell model.CellTag) error {
	return nil
}

func (m *FakeMaster) AttachChunks(ctx context.Context, table *model.OutputTable, children []model.ChunkID) error {
	return nil
}

func (m *FakeMaster) LocateChunks(ctx context.Context, ids []model.ChunkID) (map[model.ChunkID][]model.Replica, error) {
	return map[model.ChunkID][]model.Replica{}, nil
}

func (m *FakeMaster) AllocateChunkList(ctx context.Context, cell model.CellTag) (model.ChunkID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunkSeq++
	return model.ChunkID(fmt.Sprintf("cell-%d-chunklist-%d", cell, m.chunkSeq)), nil
}

// FakeScheduler is an in-memory SchedulerClient recording banned trees.
type FakeScheduler struct {
	mu          sync.Mutex
	banned      map[string]bool
	execNodes   int
}

// NewFakeScheduler constructs a FakeScheduler reporting execNodes available
// nodes.
func NewFakeScheduler(execNodes int) *FakeScheduler {
	return &FakeScheduler{banned: make(map[string]bool), execNodes: execNodes}
}

func (s *FakeScheduler) OnOperationBannedInTentativeTree(ctx context.Context, treeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.banned[treeID] = true
}

func (s *FakeScheduler) GetExecNodeCount(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.execNodes, nil
}

// Banned reports whether treeID was ever reported banned.
func (s *FakeScheduler) Banned(treeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.banned[treeID]
}

// FakeReleaser is a snapshot.Releaser that only logs, for local single-
// process runs where no live scheduler/master is there to release into.
type FakeReleaser struct{}

// NewFakeReleaser constructs a FakeReleaser.
func NewFakeReleaser() *FakeReleaser { return &FakeReleaser{} }

func (r *FakeReleaser) ReleaseCompletedJobs(ctx context.Context, jobIDs []model.JobID) error {
	logging.Debugf(ctx, "fake releaser: releasing %d completed jobs", len(jobIDs))
	return nil
}

func (r *FakeReleaser) UnstageStripes(ctx context.Context, stripes []model.ChunkStripeList) error {
	logging.Debugf(ctx, "fake releaser: unstaging %d stripe lists", len(stripes))
	return nil
}

func (r *FakeReleaser) UnstageChunkTrees(ctx context.Context, chunks []model.ChunkID) error {
	logging.Debugf(ctx, "fake releaser: unstaging %d chunk trees", len(chunks))
	return nil
}

func (r *FakeReleaser) ReleaseArchivedSpecs(ctx context.Context, specs []snapshot.ArchivedJobSpec) error {
	logging.Debugf(ctx, "fake releaser: releasing %d archived job specs", len(specs))
	return nil
}
