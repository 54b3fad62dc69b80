package controller

import (
	"context"

	"go.chromium.org/luci/common/errors"
)

// errStopped is returned by Run once the invoker's draining goroutine has
// exited (its bound context was cancelled), distinct from the caller's own
// ctx.Err() which may still be nil at that point.
var errStopped = errors.Reason("invoker: stopped").Err()

// Invoker is the Go analogue of a cancelable serialized invoker (§5): every
// state-mutating call to the operation is marshaled through a single
// goroutine draining a bounded channel, so no two mutators ever run
// concurrently, while callers still get synchronous, per-call results.
type Invoker struct {
	work chan func()
	done chan struct{}
}

// NewInvoker starts the invoker's draining goroutine, bound to ctx: once ctx
// is cancelled the goroutine runs whatever is already queued and exits, and
// from then on Run returns errStopped without running its fn.
func NewInvoker(ctx context.Context) *Invoker {
	inv := &Invoker{
		work: make(chan func(), 64),
		done: make(chan struct{}),
	}
	go inv.loop(ctx)
	return inv
}

func (inv *Invoker) loop(ctx context.Context) {
	defer close(inv.done)
	for {
		select {
		case fn := <-inv.work:
			fn()
		case <-ctx.Done():
			// Drain whatever was already queued ahead of exiting, so a Run()
			// call that enqueued just before cancellation still gets its fn
			// executed instead of hanging on a result nobody will send.
			for {
				select {
				case fn := <-inv.work:
					fn()
				default:
					return
				}
			}
		}
	}
}

// Run submits fn to the single-writer goroutine and blocks until it has
// run (or ctx is cancelled first), returning fn's error.
func (inv *Invoker) Run(ctx context.Context, fn func() error) error {
	// Check done first: once the draining goroutine has exited, nothing
	// reads inv.work any more, and a buffered send below would succeed
	// without ever running fn, hanging the result wait below forever.
	select {
	case <-inv.done:
		return errStopped
	default:
	}

	result := make(chan error, 1)
	submit := func() { result <- fn() }

	select {
	case inv.work <- submit:
	case <-ctx.Done():
		return ctx.Err()
	case <-inv.done:
		return errStopped
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop waits for the invoker's loop to exit once its context is cancelled.
func (inv *Invoker) Stop() {
	<-inv.done
}
