// Package snapshot implements the persisted-state envelope and the four
// monotonic release queues of §4.7: completed-job ids, intermediate stripe
// lists, chunk trees, and job-spec archive requests.
package snapshot

// ReleaseQueue is a monotonically-growing queue with a checkpoint/release
// cycle (§4.7): Append adds an item pending release, Checkpoint marks the
// current length as safe to release at the next successful snapshot, and
// Release drains everything up to the last checkpoint.
type ReleaseQueue[T any] struct {
	items      []T
	checkpoint int
}

// NewReleaseQueue returns an empty queue.
func NewReleaseQueue[T any]() *ReleaseQueue[T] { return &ReleaseQueue[T]{} }

// Append records a new pending item.
func (q *ReleaseQueue[T]) Append(item T) { q.items = append(q.items, item) }

// Checkpoint records the current length as this queue's release point and
// returns it, the "Checkpoint() cookie" of §4.7.
func (q *ReleaseQueue[T]) Checkpoint() int {
	q.checkpoint = len(q.items)
	return q.checkpoint
}

// Release returns every item up to the last checkpoint and compacts the
// queue so they are never released twice; items appended after the
// checkpoint remain, so revival from that snapshot still sees them.
func (q *ReleaseQueue[T]) Release() []T {
	released := append([]T(nil), q.items[:q.checkpoint]...)
	q.items = append([]T(nil), q.items[q.checkpoint:]...)
	q.checkpoint = 0
	return released
}

// Len reports the number of items currently pending release.
func (q *ReleaseQueue[T]) Len() int { return len(q.items) }
