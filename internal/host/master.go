// Package host implements the external-collaborator boundary (§6): a Master
// RPC client (Cypress, chunk service, transactions) with a wrapper that
// retries transient errors using go.chromium.org/luci/common/retry
// exponential backoff, a Scheduler client, and in-memory fakes usable
// without a live cluster. The Scheduler client has no retrying wrapper.
package host

import (
	"context"
	"time"

	"go.chromium.org/luci/common/retry"

	"opctl/internal/model"
	"opctl/internal/opcerrors"
)

// MasterClient is the full RPC surface the controller's components need
// from the Master (§6): Cypress node ops, chunk service, and transactions.
// It is a superset of txpipeline.MasterClient and scraper.MasterClient;
// both are satisfied structurally by any MasterClient implementation.
type MasterClient interface {
	// LockInput acquires the operation's exclusive lock on an input table
	// under the given transaction (§4.9 Prepare).
	LockInput(ctx context.Context, path string, tx model.TransactionID) error
	// GetTableAttributes fetches chunk_count/compressed_data_size/schema
	// and the like (§6).
	GetTableAttributes(ctx context.Context, path string) (model.TableSchema, error)

	StartTransaction(ctx context.Context, parent model.TransactionID) (model.TransactionID, error)
	CommitTransaction(ctx context.Context, tx model.TransactionID) error
	AbortTransaction(ctx context.Context, tx model.TransactionID) error

	BeginUpload(ctx context.Context, table *model.OutputTable, tx model.TransactionID) error
	EndUpload(ctx context.Context, table *model.OutputTable) error
	TeleportChunk(ctx context.Context, chunk model.ChunkID, fromCell, toCell model.CellTag) error
	AttachChunks(ctx context.Context, table *model.OutputTable, children []model.ChunkID) error

	LocateChunks(ctx context.Context, ids []model.ChunkID) (map[model.ChunkID][]model.Replica, error)

	AllocateChunkList(ctx context.Context, cell model.CellTag) (model.ChunkID, error)
}

const (
	retryInitialDelay = 200 * time.Millisecond
	retryMaxDelay     = 5 * time.Second
	retryCount        = 5
)

func masterRetryFactory() retry.Factory {
	return func() retry.Iterator {
		return &retry.ExponentialBackoff{
			Limited:  retry.Limited{Retries: retryCount, Delay: retryInitialDelay},
			MaxDelay: retryMaxDelay,
		}
	}
}

// retriableMaster wraps a MasterClient, retrying any call whose error is
// tagged opcerrors.TransientTag (§7 "transient RPC errors are retried with
// exponential backoff inside the master/scheduler clients").
type retriableMaster struct {
	inner MasterClient
	retry retry.Factory
}

// NewRetriableMaster wraps inner with the standard Master retry policy.
func NewRetriableMaster(inner MasterClient) MasterClient {
	return &retriableMaster{inner: inner, retry: masterRetryFactory()}
}

func shouldRetry(err error) bool {
	return err != nil && opcerrors.TransientTag.In(err)
}

// call runs f, retrying through m.retry only while f's error is tagged
// transient; it mirrors the retriable-client pattern used elsewhere in the
// codebase, where the wrapped error is captured by the closure and the
// inner retry func signals "stop" by returning nil once the error is no
// longer retryable.
func (m *retriableMaster) call(ctx context.Context, f func() error) error {
	var lastErr error
	retry.Retry(ctx, m.retry, func() error {
		lastErr = f()
		if shouldRetry(lastErr) {
			return lastErr
		}
		return nil
	}, nil)
	return lastErr
}

func (m *retriableMaster) LockInput(ctx context.Context, path string, tx model.TransactionID) error {
	return m.call(ctx, func() error { return m.inner.LockInput(ctx, path, tx) })
}

func (m *retriableMaster) GetTableAttributes(ctx context.Context, path string) (schema model.TableSchema, err error) {
	err = m.call(ctx, func() error {
		schema, err = m.inner.GetTableAttributes(ctx, path)
		return err
	})
	return schema, err
}

func (m *retriableMaster) StartTransaction(ctx context.Context, parent model.TransactionID) (tx model.TransactionID, err error) {
	err = m.call(ctx, func() error {
		tx, err = m.inner.StartTransaction(ctx, parent)
		return err
	})
	return tx, err
}

func (m *retriableMaster) CommitTransaction(ctx context.Context, tx model.TransactionID) error {
	return m.call(ctx, func() error { return m.inner.CommitTransaction(ctx, tx) })
}

func (m *retriableMaster) AbortTransaction(ctx context.Context, tx model.TransactionID) error {
	return m.call(ctx, func() error { return m.inner.AbortTransaction(ctx, tx) })
}

func (m *retriableMaster) BeginUpload(ctx context.Context, table *model.OutputTable, tx model.TransactionID) error {
	return m.call(ctx, func() error { return m.inner.BeginUpload(ctx, table, tx) })
}

func (m *retriableMaster) EndUpload(ctx context.Context, table *model.OutputTable) error {
	return m.call(ctx, func() error { return m.inner.EndUpload(ctx, table) })
}

func (m *retriableMaster) TeleportChunk(ctx context.Context, chunk model.ChunkID, fromCell, toCell model.CellTag) error {
	return m.call(ctx, func() error { return m.inner.TeleportChunk(ctx, chunk, fromCell, toCell) })
}

func (m *retriableMaster) AttachChunks(ctx context.Context, table *model.OutputTable, children []model.ChunkID) error {
	return m.call(ctx, func() error { return m.inner.AttachChunks(ctx, table, children) })
}

func (m *retriableMaster) LocateChunks(ctx context.Context, ids []model.ChunkID) (located map[model.ChunkID][]model.Replica, err error) {
	err = m.call(ctx, func() error {
		located, err = m.inner.LocateChunks(ctx, ids)
		return err
	})
	return located, err
}

func (m *retriableMaster) AllocateChunkList(ctx context.Context, cell model.CellTag) (id model.ChunkID, err error) {
	err = m.call(ctx, func() error {
		id, err = m.inner.AllocateChunkList(ctx, cell)
		return err
	})
	return id, err
}
