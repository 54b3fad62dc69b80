package progress

// Histogram tracks estimated vs. actual input data weight across a task's
// jobs (§4.10), updated on job start (estimated) and completion (actual).
type Histogram struct {
	estimated int64
	actual    int64
	started   int
	completed int
}

func NewHistogram() *Histogram { return &Histogram{} }

// OnJobStart records the estimated data weight for a job about to run.
func (h *Histogram) OnJobStart(estimatedWeight int64) {
	h.estimated += estimatedWeight
	h.started++
}

// OnJobCompleted records the actual data weight a finished job consumed.
func (h *Histogram) OnJobCompleted(actualWeight int64) {
	h.actual += actualWeight
	h.completed++
}

// EstimatedTotal and ActualTotal expose the running sums for progress
// reporting (§4.10).
func (h *Histogram) EstimatedTotal() int64 { return h.estimated }
func (h *Histogram) ActualTotal() int64    { return h.actual }

// AverageJobDuration-style consumers use Started/Completed to compute
// throughput; exposed directly rather than precomputing a ratio so callers
// can decide how to handle the started==0 case.
func (h *Histogram) Started() int   { return h.started }
func (h *Histogram) Completed() int { return h.completed }
