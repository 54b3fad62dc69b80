// Package controller implements the top-level operation state machine
// (C11, §4.9): Preparing → Running → (Failing →)? Finished, driving every
// other component (task, taskgroup, joblet, scraper, txpipeline, snapshot,
// automerge, progress) behind a single-writer serialized invoker.
package controller

// State names one step of the §4.9 operation lifecycle. Legal transitions
// only move forward; OnOperationCompleted/Failed/Aborted are idempotent and
// always land on Finished.
type State int

const (
	StatePreparing State = iota
	StateRunning
	StateFailing
	StateFinished
)

func (s State) String() string {
	switch s {
	case StatePreparing:
		return "Preparing"
	case StateRunning:
		return "Running"
	case StateFailing:
		return "Failing"
	case StateFinished:
		return "Finished"
	default:
		return "Unknown"
	}
}

// canAdvance reports whether the legal-forward-transitions-only rule (§4.9)
// permits moving from s to next.
func canAdvance(s, next State) bool {
	if s == StateFinished {
		return false
	}
	switch next {
	case StateRunning:
		return s == StatePreparing
	case StateFailing:
		return s == StatePreparing || s == StateRunning
	case StateFinished:
		return true
	default:
		return false
	}
}
