package txpipeline

import (
	"context"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/sync/parallel"

	"opctl/internal/model"
)

// Config configures one Pipeline run (§4.6).
type Config struct {
	MaxChildrenPerAttachRequest int
	ValidateUniqueKeys          bool
	DestinationCell             model.CellTag
}

// Pipeline drives the §4.6 commit state machine for one operation's output.
type Pipeline struct {
	cfg      Config
	master   MasterClient
	resolver ChunkTreeResolver

	// CustomCommit lets a derived controller hook one extra step between
	// EndUploadAll and CommitOutputCompletion (§4.6 CustomCommit); nil skips
	// it.
	CustomCommit func(ctx context.Context) error

	outputTables []*model.OutputTable
	debugTables  []*model.OutputTable

	// outputTx/debugTx are the long-lived transactions opened at Prepare;
	// inputTx/asyncTx likewise. The pipeline commits the former and aborts
	// the latter two as its final step, but never started them and so never
	// aborts them on its own failure path.
	outputTx model.TransactionID
	debugTx  model.TransactionID
	inputTx  model.TransactionID
	asyncTx  model.TransactionID

	outputCompletionTx model.TransactionID
	debugCompletionTx  model.TransactionID

	state   State
	started []model.TransactionID
}

// New constructs a Pipeline ready to commit outputTables (and, if any,
// debugTables — stderr/core tables handled by the dedicated part_size path)
// against the four operation-lifetime transactions.
func New(cfg Config, master MasterClient, resolver ChunkTreeResolver, outputTables, debugTables []*model.OutputTable, outputTx, debugTx, inputTx, asyncTx model.TransactionID) *Pipeline {
	return &Pipeline{
		cfg:          cfg,
		master:       master,
		resolver:     resolver,
		outputTables: outputTables,
		debugTables:  debugTables,
		outputTx:     outputTx,
		debugTx:      debugTx,
		inputTx:      inputTx,
		asyncTx:      asyncTx,
		state:        StateRunning,
	}
}

// State reports the pipeline's current step.
func (p *Pipeline) State() State { return p.state }

// Run drives the full §4.6 chain. On any step's failure it aborts whatever
// ephemeral completion transactions this run itself started, in reverse
// order, and returns the original error; the long-lived output/debug/input/
// async transactions are left untouched (owned by the controller's broader
// lifecycle, never the user transaction — §4.6 "User transaction is never
// aborted by the controller").
func (p *Pipeline) Run(ctx context.Context) error {
	steps := []struct {
		state State
		fn    func(context.Context) error
	}{
		{StateStartOutputCompletion, p.startOutputCompletion},
		{StateBeginUploadAll, p.beginUploadAll},
		{StateTeleportChunks, p.teleportChunks},
		{StateAttachOutputChunks, p.attachOutputChunks},
		{StateEndUploadAll, p.endUploadAll},
		{StateCustomCommit, p.runCustomCommit},
		{StateCommitOutputCompletion, p.commitOutputCompletion},
		{StateCommitDebugCompletion, p.commitDebugCompletion},
		{StateCommitTransactions, p.commitMainTransactions},
		{StateAbortInputAsync, p.abortInputAsync},
	}

	for _, step := range steps {
		p.state = step.state
		if err := step.fn(ctx); err != nil {
			p.abortStarted(ctx)
			p.state = StateAborted
			return errors.Annotate(err, "commit pipeline failed at %s", step.state).Err()
		}
	}
	p.state = StateCommitted
	return nil
}

func (p *Pipeline) startOutputCompletion(ctx context.Context) error {
	tx, err := p.master.StartTransaction(ctx, p.outputTx)
	if err != nil {
		return errors.Annotate(err, "starting output completion transaction").Err()
	}
	p.outputCompletionTx = tx
	p.started = append(p.started, tx)

	if len(p.debugTables) == 0 {
		return nil
	}
	dtx, err := p.master.StartTransaction(ctx, p.debugTx)
	if err != nil {
		return errors.Annotate(err, "starting debug completion transaction").Err()
	}
	p.debugCompletionTx = dtx
	p.started = append(p.started, dtx)
	return nil
}

func (p *Pipeline) allTables() []*model.OutputTable {
	return append(append([]*model.OutputTable(nil), p.outputTables...), p.debugTables...)
}

func (p *Pipeline) beginUploadAll(ctx context.Context) error {
	tables := p.allTables()
	return parallel.WorkPool(8, func(work chan<- func() error) {
		for _, t := range tables {
			t := t
			tx := p.outputCompletionTx
			if p.isDebugTable(t) {
				tx = p.debugCompletionTx
			}
			work <- func() error {
				if err := p.master.BeginUpload(ctx, t, tx); err != nil {
					return errors.Annotate(err, "begin-upload for %s", t.Path).Err()
				}
				t.BeginUploadTx = tx
				return nil
			}
		}
	})
}

func (p *Pipeline) isDebugTable(t *model.OutputTable) bool {
	for _, d := range p.debugTables {
		if d == t {
			return true
		}
	}
	return false
}

// teleportChunks implements §4.6: for every chunk-tree id that is a raw
// chunk (not a chunk list) living in a cell other than the destination,
// issue a cross-cell teleport.
func (p *Pipeline) teleportChunks(ctx context.Context) error {
	if p.resolver == nil {
		return nil
	}
	var toTeleport []model.ChunkID
	for _, t := range p.allTables() {
		for _, e := range t.Entries {
			info := p.resolver.Resolve(e.ChunkTree)
			if !info.IsChunkList && info.Cell != p.cfg.DestinationCell {
				toTeleport = append(toTeleport, e.ChunkTree)
			}
		}
	}
	if len(toTeleport) == 0 {
		return nil
	}
	return parallel.WorkPool(8, func(work chan<- func() error) {
		for _, id := range toTeleport {
			id := id
			info := p.resolver.Resolve(id)
			work <- func() error {
				if err := p.master.TeleportChunk(ctx, id, info.Cell, p.cfg.DestinationCell); err != nil {
					return errors.Annotate(err, "teleporting chunk %s", id).Err()
				}
				return nil
			}
		}
	})
}

// attachOutputChunks implements §4.6 AttachOutputChunks: order each
// table's entries (sorted-by-key or recorded order), detect overlaps/
// duplicates for sorted output, and attach in MaxChildrenPerAttachRequest
// batches.
func (p *Pipeline) attachOutputChunks(ctx context.Context) error {
	for _, t := range p.allTables() {
		ordered, err := orderEntries(t, p.cfg.ValidateUniqueKeys)
		if err != nil {
			return err
		}
		ids := make([]model.ChunkID, len(ordered))
		for i, e := range ordered {
			ids[i] = e.ChunkTree
		}
		for _, batch := range batchChunkIDs(ids, p.cfg.MaxChildrenPerAttachRequest) {
			if err := p.master.AttachChunks(ctx, t, batch); err != nil {
				return errors.Annotate(err, "attaching %d chunks to %s", len(batch), t.Path).Err()
			}
		}
	}
	return nil
}

func (p *Pipeline) endUploadAll(ctx context.Context) error {
	tables := p.allTables()
	return parallel.WorkPool(8, func(work chan<- func() error) {
		for _, t := range tables {
			t := t
			work <- func() error {
				if err := p.master.EndUpload(ctx, t); err != nil {
					return errors.Annotate(err, "end-upload for %s", t.Path).Err()
				}
				return nil
			}
		}
	})
}

func (p *Pipeline) runCustomCommit(ctx context.Context) error {
	if p.CustomCommit == nil {
		return nil
	}
	return p.CustomCommit(ctx)
}

func (p *Pipeline) commitOutputCompletion(ctx context.Context) error {
	if err := p.master.CommitTransaction(ctx, p.outputCompletionTx); err != nil {
		return errors.Annotate(err, "committing output completion transaction").Err()
	}
	p.started = removeTx(p.started, p.outputCompletionTx)
	return nil
}

func (p *Pipeline) commitDebugCompletion(ctx context.Context) error {
	if len(p.debugTables) == 0 {
		return nil
	}
	if err := p.master.CommitTransaction(ctx, p.debugCompletionTx); err != nil {
		return errors.Annotate(err, "committing debug completion transaction").Err()
	}
	p.started = removeTx(p.started, p.debugCompletionTx)
	return nil
}

// commitMainTransactions commits the long-lived Output (and Debug)
// transactions themselves, making the attach durable (§4.6
// "CommitTransactions(Output, Debug)").
func (p *Pipeline) commitMainTransactions(ctx context.Context) error {
	if err := p.master.CommitTransaction(ctx, p.outputTx); err != nil {
		return errors.Annotate(err, "committing output transaction").Err()
	}
	if len(p.debugTables) == 0 {
		return nil
	}
	if err := p.master.CommitTransaction(ctx, p.debugTx); err != nil {
		return errors.Annotate(err, "committing debug transaction").Err()
	}
	return nil
}

// abortInputAsync is the final forward-chain step, not a failure path: once
// output is durably committed, the input lock transaction and the
// live-preview async transaction have served their purpose and are
// released (§4.6).
func (p *Pipeline) abortInputAsync(ctx context.Context) error {
	if err := p.master.AbortTransaction(ctx, p.inputTx); err != nil {
		logging.Warningf(ctx, "txpipeline: aborting input transaction: %s", err)
	}
	if err := p.master.AbortTransaction(ctx, p.asyncTx); err != nil {
		logging.Warningf(ctx, "txpipeline: aborting async transaction: %s", err)
	}
	return nil
}

func (p *Pipeline) abortStarted(ctx context.Context) {
	for i := len(p.started) - 1; i >= 0; i-- {
		if err := p.master.AbortTransaction(ctx, p.started[i]); err != nil {
			logging.Errorf(ctx, "txpipeline: aborting transaction %s during rollback: %s", p.started[i], err)
		}
	}
	p.started = nil
}

func removeTx(txs []model.TransactionID, target model.TransactionID) []model.TransactionID {
	out := txs[:0]
	for _, tx := range txs {
		if tx != target {
			out = append(out, tx)
		}
	}
	return out
}
