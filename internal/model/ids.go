// Package model holds the shared data model for an operation: chunks,
// slices, stripes, tables and the small value types that identify them.
package model

import "fmt"

// ChunkID identifies one immutable stored data chunk.
type ChunkID string

// NodeID identifies a cluster node offering job slots.
type NodeID string

// CellTag identifies a storage cell (for chunk-list allocation and teleport).
type CellTag int32

// Cookie is an opaque handle returned by a chunk pool. It identifies either
// an input stripe (InputCookie) or an extracted job's stripe list
// (OutputCookie). Cookies are arena-style monotonic handles, never reused.
type Cookie int64

// TaskHandle identifies a Task within an operation's DAG by a stable integer
// handle, per the arena-allocation design note: edges reference handles, not
// pointers, so the DAG can be cyclic and trivially serialized.
type TaskHandle int32

// TransactionID identifies a master transaction.
type TransactionID string

// JobID identifies one scheduled job (joblet).
type JobID string

func (c ChunkID) String() string { return string(c) }
func (n NodeID) String() string  { return string(n) }

func (c Cookie) String() string {
	if c == InvalidCookie {
		return "<invalid>"
	}
	return fmt.Sprintf("%d", int64(c))
}

// InvalidCookie is never returned by a pool and marks an absent reference.
const InvalidCookie Cookie = -1

// InvalidTaskHandle marks an absent task reference (e.g. a sink edge).
const InvalidTaskHandle TaskHandle = -1
